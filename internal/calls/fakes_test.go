package calls

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/troikatech/callbridge/pkg/livekit"
	"github.com/troikatech/callbridge/pkg/twilio"
)

type fakeRooms struct {
	mu        sync.Mutex
	live      []string
	listErr   error
	listDelay time.Duration
	createErr error
	created   []livekit.RoomSpec
}

func (f *fakeRooms) ListRoomNames(ctx context.Context) ([]string, error) {
	if f.listDelay > 0 {
		select {
		case <-time.After(f.listDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]string(nil), f.live...), nil
}

func (f *fakeRooms) CreateRoom(ctx context.Context, spec livekit.RoomSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, spec)
	f.live = append(f.live, spec.Name)
	return nil
}

type fakeDialer struct {
	mu    sync.Mutex
	from  string
	sid   string
	err   error
	dials []twilio.DialRequest
}

func (f *fakeDialer) FromNumber() string { return f.from }

func (f *fakeDialer) PlaceCall(ctx context.Context, req twilio.DialRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dials = append(f.dials, req)
	if f.err != nil {
		return "", f.err
	}
	return f.sid, nil
}

var errGateway = errors.New("gateway unavailable")
