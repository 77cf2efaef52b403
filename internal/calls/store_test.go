package calls

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func newRecord(id, room string) *CallRecord {
	return &CallRecord{ID: id, Phone: "+15551234567", RoomName: room, Status: StatusInitiating}
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	rec := newRecord("c1", "call_1")

	if err := s.CreateCall(ctx, rec, rec.roomConfig()); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	got, err := s.GetCall(ctx, "c1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	got.Status = StatusFailed
	again, _ := s.GetCall(ctx, "c1")
	if again.Status != StatusInitiating {
		t.Fatalf("store must return copies")
	}

	cfg, err := s.GetRoomConfig(ctx, "call_1")
	if err != nil || cfg.CallID != "c1" {
		t.Fatalf("expected room config for c1, got %+v %v", cfg, err)
	}
}

func TestMemoryStore_NotFound(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.GetCall(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetRoomConfig(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.FindByCarrierID(ctx, "CA404"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_RoomReservedOnce(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first := newRecord("c1", "call_15551234567")
	second := newRecord("c2", "call_15551234567")
	if err := s.CreateCall(ctx, first, first.roomConfig()); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := s.CreateCall(ctx, second, second.roomConfig()); !errors.Is(err, ErrRoomTaken) {
		t.Fatalf("expected ErrRoomTaken, got %v", err)
	}
	if _, err := s.GetCall(ctx, "c2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("rejected call must not be stored")
	}
}

func TestMemoryStore_CarrierIndex(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	rec := newRecord("c1", "call_1")
	s.CreateCall(ctx, rec, rec.roomConfig())

	if _, err := s.UpdateCall(ctx, "c1", func(r *CallRecord) error {
		r.CarrierCallID = "CA1"
		return nil
	}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	got, err := s.FindByCarrierID(ctx, "CA1")
	if err != nil || got.ID != "c1" {
		t.Fatalf("expected c1 via carrier index, got %+v %v", got, err)
	}

	_, err = s.UpdateCall(ctx, "c1", func(r *CallRecord) error {
		r.CarrierCallID = "CA2"
		return nil
	})
	if !errors.Is(err, ErrCarrierIDImmutable) {
		t.Fatalf("expected ErrCarrierIDImmutable, got %v", err)
	}
	if _, err := s.FindByCarrierID(ctx, "CA2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("rejected update must not touch the index")
	}
}

func TestMemoryStore_UpdateErrorLeavesRecord(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	rec := newRecord("c1", "call_1")
	s.CreateCall(ctx, rec, rec.roomConfig())

	_, err := s.UpdateCall(ctx, "c1", func(r *CallRecord) error {
		r.Status = StatusCompleted
		return errors.New("abort")
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	got, _ := s.GetCall(ctx, "c1")
	if got.Status != StatusInitiating {
		t.Fatalf("record changed despite error: %s", got.Status)
	}
}

func TestMemoryStore_AliasKeepsExisting(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	rec := newRecord("c1", "call_1")
	s.CreateCall(ctx, rec, rec.roomConfig())

	s.AliasRoom(ctx, "call_1", RoomConfig{CallID: "other"})
	s.AliasRoom(ctx, "call_1_abcd", rec.roomConfig())

	if cfg, _ := s.GetRoomConfig(ctx, "call_1"); cfg.CallID != "c1" {
		t.Fatalf("alias must not overwrite an existing room")
	}
	if cfg, err := s.GetRoomConfig(ctx, "call_1_abcd"); err != nil || cfg.CallID != "c1" {
		t.Fatalf("expected alias, got %+v %v", cfg, err)
	}
}

func TestMemoryStore_ConcurrentUpdates(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := newRecord(fmt.Sprintf("c%d", i), fmt.Sprintf("call_%d", i))
			s.CreateCall(ctx, rec, rec.roomConfig())
			s.UpdateCall(ctx, rec.ID, func(r *CallRecord) error {
				r.CarrierCallID = fmt.Sprintf("CA%d", i)
				return nil
			})
		}(i)
	}
	wg.Wait()

	for i := 0; i < 50; i++ {
		got, err := s.FindByCarrierID(ctx, fmt.Sprintf("CA%d", i))
		if err != nil || got.ID != fmt.Sprintf("c%d", i) {
			t.Fatalf("index out of step for CA%d: %+v %v", i, got, err)
		}
	}
}

func TestMemoryStore_RoomFreedWhenCallEnds(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	first := newRecord("c1", "call_15551234567")
	s.CreateCall(ctx, first, first.roomConfig())

	s.UpdateCall(ctx, "c1", func(r *CallRecord) error {
		r.Status = StatusCompleted
		return nil
	})
	if s.RoomReserved(ctx, "call_15551234567") {
		t.Fatalf("room of a completed call must not stay reserved")
	}

	second := newRecord("c2", "call_15551234567")
	second.Prompt = "second prompt"
	if err := s.CreateCall(ctx, second, second.roomConfig()); err != nil {
		t.Fatalf("expected takeover, got %v", err)
	}
	cfg, err := s.GetRoomConfig(ctx, "call_15551234567")
	if err != nil || cfg.CallID != "c2" || cfg.Prompt != "second prompt" {
		t.Fatalf("expected the new call's config, got %+v %v", cfg, err)
	}
	if !s.RoomReserved(ctx, "call_15551234567") {
		t.Fatalf("room must be reserved by the new call")
	}
}

func TestMemoryStore_RoomFreedWhenReleased(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	first := newRecord("c1", "call_1")
	s.CreateCall(ctx, first, first.roomConfig())

	if err := s.ReleaseRoom(ctx, "call_1"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if s.RoomReserved(ctx, "call_1") {
		t.Fatalf("released room must not stay reserved")
	}
	if cfg, err := s.GetRoomConfig(ctx, "call_1"); err != nil || cfg.CallID != "c1" {
		t.Fatalf("config must stay readable after release, got %+v %v", cfg, err)
	}

	second := newRecord("c2", "call_1")
	if err := s.CreateCall(ctx, second, second.roomConfig()); err != nil {
		t.Fatalf("expected takeover, got %v", err)
	}
	if !s.RoomReserved(ctx, "call_1") {
		t.Fatalf("takeover must clear the release")
	}
	if err := s.ReleaseRoom(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_AliasReplacesEndedOwner(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	old := newRecord("c1", "call_1")
	s.CreateCall(ctx, old, old.roomConfig())
	s.UpdateCall(ctx, "c1", func(r *CallRecord) error {
		r.Status = StatusFailed
		return nil
	})

	s.AliasRoom(ctx, "call_1", RoomConfig{CallID: "c2"})
	if cfg, _ := s.GetRoomConfig(ctx, "call_1"); cfg.CallID != "c2" {
		t.Fatalf("alias must replace a room whose call ended, got %s", cfg.CallID)
	}
}
