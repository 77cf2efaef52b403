package calls

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/troikatech/callbridge/pkg/env"
)

func newNamer(strategy string, lister RoomLister, store Store) *RoomNamer {
	return NewRoomNamer(strategy, lister, store, 50*time.Millisecond, zap.NewNop())
}

func TestDerive_CallerStrategyPredictsRoom(t *testing.T) {
	n := newNamer(env.RoomStrategyCaller, &fakeRooms{}, NewMemoryStore())

	if got := n.Derive(context.Background(), "+15551234567"); got != "call_15551234567" {
		t.Fatalf("expected call_15551234567, got %q", got)
	}
}

func TestDerive_CallerStrategyDisambiguatesLiveRoom(t *testing.T) {
	n := newNamer(env.RoomStrategyCaller, &fakeRooms{live: []string{"call_15551234567"}}, NewMemoryStore())
	n.now = func() time.Time { return time.UnixMilli(1700000000123) }

	if got := n.Derive(context.Background(), "+15551234567"); got != "call_15551234567_1700000000123" {
		t.Fatalf("expected timestamped name, got %q", got)
	}
}

func TestDerive_CallerStrategyRandomSuffixOnDoubleCollision(t *testing.T) {
	rooms := &fakeRooms{live: []string{"call_15551234567", "call_15551234567_1700000000123"}}
	n := newNamer(env.RoomStrategyCaller, rooms, NewMemoryStore())
	n.now = func() time.Time { return time.UnixMilli(1700000000123) }
	n.randHex = func(int) string { return "beef" }

	if got := n.Derive(context.Background(), "+15551234567"); got != "call_15551234567_1700000000123_beef" {
		t.Fatalf("unexpected name %q", got)
	}
}

func TestDerive_CallerStrategyChecksStoreReservations(t *testing.T) {
	store := NewMemoryStore()
	rec := newRecord("c1", "call_15551234567")
	store.CreateCall(context.Background(), rec, rec.roomConfig())
	n := newNamer(env.RoomStrategyCaller, nil, store)

	got := n.Derive(context.Background(), "+15551234567")
	if got == "call_15551234567" || !strings.HasPrefix(got, "call_15551234567_") {
		t.Fatalf("expected a disambiguated name, got %q", got)
	}
}

func TestDerive_RandomStrategy(t *testing.T) {
	n := newNamer(env.RoomStrategyRandom, &fakeRooms{}, NewMemoryStore())

	got := n.Derive(context.Background(), "+15551234567")
	if !strings.HasPrefix(got, "call_") || len(got) != len("call_")+randomNameLength {
		t.Fatalf("unexpected random name %q", got)
	}
}

func TestDerive_RandomStrategyRetriesOnCollision(t *testing.T) {
	names := []string{"aaaaaaaa", "aaaaaaaa", "bbbbbbbb"}
	rooms := &fakeRooms{live: []string{"call_aaaaaaaa"}}
	n := newNamer(env.RoomStrategyRandom, rooms, NewMemoryStore())
	n.randHex = func(int) string {
		next := names[0]
		names = names[1:]
		return next
	}

	if got := n.Derive(context.Background(), ""); got != "call_bbbbbbbb" {
		t.Fatalf("expected call_bbbbbbbb, got %q", got)
	}
}

func TestDerive_RandomStrategyFallsBackToLongSuffix(t *testing.T) {
	rooms := &fakeRooms{live: []string{"call_aaaaaaaa"}}
	n := newNamer(env.RoomStrategyRandom, rooms, NewMemoryStore())
	n.randHex = func(l int) string { return strings.Repeat("a", l) }

	if got := n.Derive(context.Background(), ""); got != "call_"+strings.Repeat("a", fallbackLength) {
		t.Fatalf("expected long fallback, got %q", got)
	}
}

func TestDerive_ListingFailsOpen(t *testing.T) {
	for name, rooms := range map[string]*fakeRooms{
		"error":   {listErr: errGateway},
		"timeout": {listDelay: time.Second},
	} {
		t.Run(name, func(t *testing.T) {
			n := newNamer(env.RoomStrategyCaller, rooms, NewMemoryStore())

			start := time.Now()
			got := n.Derive(context.Background(), "+15551234567")
			if got != "call_15551234567" {
				t.Fatalf("expected optimistic name, got %q", got)
			}
			if time.Since(start) > 500*time.Millisecond {
				t.Fatalf("listing was not bounded")
			}
		})
	}
}

func TestCallerPrefix(t *testing.T) {
	cases := map[string]string{
		"call_15551234567":               "call_15551234567",
		"call_15551234567_1700000000123": "call_15551234567",
		"call_15551234567_abcd":          "call_15551234567",
		"call_abcdef12":                  "",
		"room_1555":                      "",
	}
	for in, want := range cases {
		if got := callerPrefix(in); got != want {
			t.Errorf("callerPrefix(%q) = %q, want %q", in, got, want)
		}
	}
}
