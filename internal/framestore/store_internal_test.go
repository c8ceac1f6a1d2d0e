package framestore

import (
	"testing"

	"github.com/Shreyaanp/mdaitest/internal/frame"
)

// TestWrite_SlotHeldByReader simulates the reader holding the writer's
// target buffer. The writer must not touch the held buffer.
func TestWrite_SlotHeldByReader(t *testing.T) {
	s := New(4, 4)

	held := s.slots[0].Swap(nil)
	held.f.Seq = 77

	s.Write(0, frame.Frame{Data: []byte{1, 2, 3}, Seq: 5})
	s.PublishLatest(0)

	if held.f.Seq != 77 {
		t.Fatal("writer modified a buffer owned by the reader")
	}
	if got := s.Stats().Reallocs; got != 1 {
		t.Errorf("Reallocs = %d, want 1", got)
	}

	// Reader returns its buffer; the slot already has a newer one.
	if s.slots[0].CompareAndSwap(nil, held) {
		t.Fatal("stale buffer was reinstalled over the writer's")
	}

	f, ok := s.ReadLatest()
	if !ok || f.Seq != 5 {
		t.Errorf("ReadLatest = %d,%v want 5,true", f.Seq, ok)
	}
}

func TestCheckSlotPanics(t *testing.T) {
	s := New(1, 1)
	defer func() {
		if recover() == nil {
			t.Error("expected panic for slot 2")
		}
	}()
	s.PublishLatest(2)
}

// TestRead_LatestMovedBeforeSwap replays a reader that loaded the latest
// index, then lost the race: the writer published the other slot and refilled
// the old one without publishing it. The reader must not return the
// unpublished frame.
func TestRead_LatestMovedBeforeSwap(t *testing.T) {
	s := New(4, 4)
	s.Write(0, frame.Frame{Data: []byte{0}, Seq: 0})
	s.PublishLatest(0)

	idx := s.latest.Load()

	s.Write(s.WriteSlot(), frame.Frame{Data: []byte{1}, Seq: 1})
	s.PublishLatest(1)
	s.Write(s.WriteSlot(), frame.Frame{Data: []byte{2}, Seq: 2}) // slot 0, not published

	var dst frame.Frame
	if s.copySlot(idx, &dst) {
		t.Fatalf("copied seq=%d from slot %d after latest moved to %d", dst.Seq, idx, s.latest.Load())
	}
	if s.slots[idx].Load() == nil {
		t.Fatal("buffer not handed back to the slot")
	}

	f, ok := s.ReadLatest()
	if !ok || f.Seq != 1 {
		t.Fatalf("ReadLatest = %d,%v want 1,true", f.Seq, ok)
	}

	// the refilled slot becomes visible only once published
	s.PublishLatest(0)
	if f, _ := s.ReadLatest(); f.Seq != 2 {
		t.Errorf("ReadLatest after publish = %d, want 2", f.Seq)
	}
}
