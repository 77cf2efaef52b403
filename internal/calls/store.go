package calls

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Store holds call records and room configs. Implementations must be safe
// for concurrent use and must return copies.
type Store interface {
	// CreateCall stores rec and its room config under rec.RoomName in one
	// step. It fails with ErrRoomTaken while another call holds the room
	// name; a name whose call ended or whose room was released is taken over.
	CreateCall(ctx context.Context, rec *CallRecord, cfg RoomConfig) error
	GetCall(ctx context.Context, id string) (*CallRecord, error)
	// UpdateCall applies fn to the stored record. The record is left
	// unchanged when fn returns an error.
	UpdateCall(ctx context.Context, id string, fn func(*CallRecord) error) (*CallRecord, error)
	FindByCarrierID(ctx context.Context, carrierCallID string) (*CallRecord, error)
	FindCalls(ctx context.Context, match func(*CallRecord) bool) ([]*CallRecord, error)
	GetRoomConfig(ctx context.Context, roomName string) (*RoomConfig, error)
	// AliasRoom stores cfg under an additional room name. An entry still
	// held by another call is kept.
	AliasRoom(ctx context.Context, roomName string, cfg RoomConfig) error
	// RoomReserved reports whether a non-terminal call holds roomName.
	RoomReserved(ctx context.Context, roomName string) bool
	// ReleaseRoom marks roomName as closed on the gateway. Its config stays
	// readable until another call takes the name over.
	ReleaseRoom(ctx context.Context, roomName string) error
}

// MemoryStore is the in-process Store. One lock guards the records, the
// room configs and the carrier-id index so the index is never observed out
// of step with the records. Records are never evicted; room names are
// reused once their holder ends.
type MemoryStore struct {
	mu        sync.RWMutex
	calls     map[string]*CallRecord
	rooms     map[string]RoomConfig
	released  map[string]bool
	byCarrier map[string]string
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		calls:     make(map[string]*CallRecord),
		rooms:     make(map[string]RoomConfig),
		released:  make(map[string]bool),
		byCarrier: make(map[string]string),
		now:       time.Now,
	}
}

func (s *MemoryStore) CreateCall(ctx context.Context, rec *CallRecord, cfg RoomConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.calls[rec.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateCall, rec.ID)
	}
	if s.heldLocked(rec.RoomName) {
		return fmt.Errorf("%w: %s", ErrRoomTaken, rec.RoomName)
	}

	stored := *rec
	s.calls[rec.ID] = &stored
	s.rooms[rec.RoomName] = cfg
	delete(s.released, rec.RoomName)
	if stored.CarrierCallID != "" {
		s.byCarrier[stored.CarrierCallID] = stored.ID
	}
	return nil
}

func (s *MemoryStore) GetCall(ctx context.Context, id string) (*CallRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.calls[id]
	if !ok {
		return nil, fmt.Errorf("call %s: %w", id, ErrNotFound)
	}
	out := *rec
	return &out, nil
}

func (s *MemoryStore) UpdateCall(ctx context.Context, id string, fn func(*CallRecord) error) (*CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.calls[id]
	if !ok {
		return nil, fmt.Errorf("call %s: %w", id, ErrNotFound)
	}

	next := *rec
	if err := fn(&next); err != nil {
		return nil, err
	}
	if next.ID != rec.ID {
		return nil, fmt.Errorf("call %s: id is immutable", id)
	}
	if rec.CarrierCallID != "" && next.CarrierCallID != rec.CarrierCallID {
		return nil, fmt.Errorf("call %s: %w", id, ErrCarrierIDImmutable)
	}

	if rec.CarrierCallID == "" && next.CarrierCallID != "" {
		s.byCarrier[next.CarrierCallID] = id
	}
	next.UpdatedAt = s.now()
	*rec = next

	out := next
	return &out, nil
}

func (s *MemoryStore) FindByCarrierID(ctx context.Context, carrierCallID string) (*CallRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byCarrier[carrierCallID]
	if !ok {
		return nil, fmt.Errorf("carrier call %s: %w", carrierCallID, ErrNotFound)
	}
	out := *s.calls[id]
	return &out, nil
}

func (s *MemoryStore) FindCalls(ctx context.Context, match func(*CallRecord) bool) ([]*CallRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*CallRecord
	for _, rec := range s.calls {
		c := *rec
		if match(&c) {
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetRoomConfig(ctx context.Context, roomName string) (*RoomConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.rooms[roomName]
	if !ok {
		return nil, fmt.Errorf("room %s: %w", roomName, ErrNotFound)
	}
	return &cfg, nil
}

func (s *MemoryStore) AliasRoom(ctx context.Context, roomName string, cfg RoomConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.rooms[roomName]; ok && existing.CallID != cfg.CallID && s.heldLocked(roomName) {
		return nil
	}
	s.rooms[roomName] = cfg
	delete(s.released, roomName)
	return nil
}

func (s *MemoryStore) RoomReserved(ctx context.Context, roomName string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.heldLocked(roomName)
}

func (s *MemoryStore) ReleaseRoom(ctx context.Context, roomName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[roomName]; !ok {
		return fmt.Errorf("room %s: %w", roomName, ErrNotFound)
	}
	s.released[roomName] = true
	return nil
}

// heldLocked reports whether roomName belongs to a call that has not ended
// and whose room has not been released. Callers hold s.mu.
func (s *MemoryStore) heldLocked(roomName string) bool {
	cfg, ok := s.rooms[roomName]
	if !ok || s.released[roomName] {
		return false
	}
	owner, ok := s.calls[cfg.CallID]
	if !ok {
		return true
	}
	return !owner.Status.IsTerminal()
}
