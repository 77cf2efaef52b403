package livekit

import (
	"context"
	"errors"
	"testing"

	lkproto "github.com/livekit/protocol/livekit"
	"go.uber.org/zap"

	"github.com/troikatech/callbridge/pkg/circuitbreaker"
)

type fakeRooms struct {
	rooms       map[string]*lkproto.Room
	createErr   error
	listErr     error
	lastCreate  *lkproto.CreateRoomRequest
	metadataSet map[string]string
}

func newFakeRooms(names ...string) *fakeRooms {
	f := &fakeRooms{rooms: map[string]*lkproto.Room{}, metadataSet: map[string]string{}}
	for _, n := range names {
		f.rooms[n] = &lkproto.Room{Name: n}
	}
	return f
}

func (f *fakeRooms) ListRooms(ctx context.Context, req *lkproto.ListRoomsRequest) (*lkproto.ListRoomsResponse, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	resp := &lkproto.ListRoomsResponse{}
	for name, r := range f.rooms {
		if len(req.Names) > 0 && req.Names[0] != name {
			continue
		}
		resp.Rooms = append(resp.Rooms, r)
	}
	return resp, nil
}

func (f *fakeRooms) CreateRoom(ctx context.Context, req *lkproto.CreateRoomRequest) (*lkproto.Room, error) {
	f.lastCreate = req
	if f.createErr != nil {
		return nil, f.createErr
	}
	r := &lkproto.Room{Name: req.Name, Metadata: req.Metadata}
	f.rooms[req.Name] = r
	return r, nil
}

func (f *fakeRooms) UpdateRoomMetadata(ctx context.Context, req *lkproto.UpdateRoomMetadataRequest) (*lkproto.Room, error) {
	f.metadataSet[req.Room] = req.Metadata
	return &lkproto.Room{Name: req.Room, Metadata: req.Metadata}, nil
}

func newTestClient(rooms roomService) *Client {
	return &Client{
		rooms:   rooms,
		breaker: circuitbreaker.New(serviceName, circuitbreaker.DefaultConfig()),
		logger:  zap.NewNop(),
	}
}

func TestCreateRoom_DispatchesAgentAndSetsMetadata(t *testing.T) {
	rooms := newFakeRooms()
	c := newTestClient(rooms)

	err := c.CreateRoom(context.Background(), RoomSpec{Name: "call_abc", Metadata: `{"call_id":"1"}`, AgentName: "callcenter-agent"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(rooms.lastCreate.Agents) != 1 || rooms.lastCreate.Agents[0].AgentName != "callcenter-agent" {
		t.Fatalf("expected agent dispatch, got %+v", rooms.lastCreate.Agents)
	}
	if rooms.metadataSet["call_abc"] != `{"call_id":"1"}` {
		t.Fatalf("metadata not re-applied")
	}
}

func TestCreateRoom_ExistingRoomIsNotFatal(t *testing.T) {
	rooms := newFakeRooms("call_abc")
	rooms.createErr = errors.New("already exists")
	c := newTestClient(rooms)

	if err := c.CreateRoom(context.Background(), RoomSpec{Name: "call_abc"}); err != nil {
		t.Fatalf("existing room should be accepted, got %v", err)
	}
}

func TestCreateRoom_FailureSurfaces(t *testing.T) {
	rooms := newFakeRooms()
	rooms.createErr = errors.New("unavailable")
	c := newTestClient(rooms)

	if err := c.CreateRoom(context.Background(), RoomSpec{Name: "call_abc"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestListRoomNames(t *testing.T) {
	c := newTestClient(newFakeRooms("a", "b"))

	names, err := c.ListRoomNames(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 names, got %v", names)
	}
}
