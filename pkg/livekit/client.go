package livekit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/livekit/protocol/auth"
	lkproto "github.com/livekit/protocol/livekit"
	"github.com/livekit/protocol/webhook"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/troikatech/callbridge/pkg/circuitbreaker"
	"github.com/troikatech/callbridge/pkg/metrics"
	"github.com/troikatech/callbridge/pkg/otel"
)

const serviceName = "livekit"

// RoomSpec describes a session room to create.
type RoomSpec struct {
	Name      string
	Metadata  string // JSON, visible to the dispatched agent
	AgentName string // agent to dispatch into the room; empty skips dispatch
}

// RoomEvent is the subset of a LiveKit webhook we correlate on.
type RoomEvent struct {
	Event        string
	RoomName     string
	RoomMetadata string
	CreatedAt    time.Time
}

// roomService is the part of lksdk.RoomServiceClient we use.
type roomService interface {
	ListRooms(ctx context.Context, req *lkproto.ListRoomsRequest) (*lkproto.ListRoomsResponse, error)
	CreateRoom(ctx context.Context, req *lkproto.CreateRoomRequest) (*lkproto.Room, error)
	UpdateRoomMetadata(ctx context.Context, req *lkproto.UpdateRoomMetadataRequest) (*lkproto.Room, error)
}

type Client struct {
	rooms   roomService
	keys    auth.KeyProvider
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

func NewClient(url, apiKey, apiSecret string, logger *zap.Logger) *Client {
	return &Client{
		rooms:   lksdk.NewRoomServiceClient(url, apiKey, apiSecret),
		keys:    auth.NewSimpleKeyProvider(apiKey, apiSecret),
		breaker: circuitbreaker.New(serviceName, circuitbreaker.DefaultConfig()),
		logger:  logger,
	}
}

func (c *Client) call(ctx context.Context, operation string, fn func(ctx context.Context) error, attrs ...attribute.KeyValue) error {
	start := time.Now()
	ctx, end := otel.StartGatewaySpan(ctx, serviceName, operation, attrs...)

	err := c.breaker.Execute(ctx, func() error { return fn(ctx) })
	end(err)

	metrics.RecordServiceCall(serviceName, err == nil, time.Since(start))
	metrics.UpdateCircuitBreaker(serviceName, c.breaker.GetState().String(), int64(c.breaker.Failures()))
	return err
}

// ListRoomNames returns the names of rooms currently live on the server.
func (c *Client) ListRoomNames(ctx context.Context) ([]string, error) {
	var names []string
	err := c.call(ctx, "list_rooms", func(ctx context.Context) error {
		resp, err := c.rooms.ListRooms(ctx, &lkproto.ListRoomsRequest{})
		if err != nil {
			return fmt.Errorf("list rooms: %w", err)
		}
		names = make([]string, 0, len(resp.GetRooms()))
		for _, r := range resp.GetRooms() {
			names = append(names, r.GetName())
		}
		return nil
	})
	return names, err
}

// CreateRoom creates the room with metadata and an agent dispatch. A room
// that already exists under the same name is accepted: the server keeps the
// first dispatch, so re-creating is not an error.
func (c *Client) CreateRoom(ctx context.Context, spec RoomSpec) error {
	return c.call(ctx, "create_room", func(ctx context.Context) error {
		req := &lkproto.CreateRoomRequest{
			Name:     spec.Name,
			Metadata: spec.Metadata,
		}
		if spec.AgentName != "" {
			req.Agents = []*lkproto.RoomAgentDispatch{{AgentName: spec.AgentName, Metadata: spec.Metadata}}
		}

		if _, err := c.rooms.CreateRoom(ctx, req); err != nil {
			exists, listErr := c.roomExists(ctx, spec.Name)
			if listErr != nil || !exists {
				return fmt.Errorf("create room %s: %w", spec.Name, err)
			}
			c.logger.Warn("Room already exists, reusing it",
				zap.String("room_name", spec.Name),
				zap.Error(err),
			)
		}

		// Metadata on create is not always visible to agents that join
		// before the first participant; set it again explicitly.
		if _, err := c.rooms.UpdateRoomMetadata(ctx, &lkproto.UpdateRoomMetadataRequest{
			Room:     spec.Name,
			Metadata: spec.Metadata,
		}); err != nil {
			c.logger.Warn("Could not update room metadata after creation",
				zap.String("room_name", spec.Name),
				zap.Error(err),
			)
		}
		return nil
	}, attribute.String("room.name", spec.Name))
}

func (c *Client) roomExists(ctx context.Context, name string) (bool, error) {
	resp, err := c.rooms.ListRooms(ctx, &lkproto.ListRoomsRequest{Names: []string{name}})
	if err != nil {
		return false, err
	}
	for _, r := range resp.GetRooms() {
		if r.GetName() == name {
			return true, nil
		}
	}
	return false, nil
}

var ErrUnsignedWebhook = errors.New("livekit webhook signature invalid")

// ReceiveWebhook verifies a LiveKit webhook request and extracts the room
// portion of the event.
func (c *Client) ReceiveWebhook(r *http.Request) (*RoomEvent, error) {
	event, err := webhook.ReceiveWebhookEvent(r, c.keys)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsignedWebhook, err)
	}

	out := &RoomEvent{Event: event.GetEvent()}
	if room := event.GetRoom(); room != nil {
		out.RoomName = room.GetName()
		out.RoomMetadata = room.GetMetadata()
		out.CreatedAt = time.Unix(room.GetCreationTime(), 0)
	}
	return out, nil
}
