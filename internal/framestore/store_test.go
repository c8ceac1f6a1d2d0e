package framestore_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Shreyaanp/mdaitest/internal/frame"
	"github.com/Shreyaanp/mdaitest/internal/framestore"
)

// makeFrame builds a frame whose every field is derived from seq, so a reader
// can detect a mix of two frames.
func makeFrame(seq uint32) frame.Frame {
	n := 64 + int(seq%512)
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(seq) ^ byte(i)
	}
	return frame.Frame{
		Data:        data,
		Width:       seq%1000 + 1,
		Height:      seq%777 + 1,
		TimestampMS: uint64(seq) * 33,
		Seq:         seq,
	}
}

func consistent(f frame.Frame) bool {
	want := makeFrame(f.Seq)
	if f.Width != want.Width || f.Height != want.Height || f.TimestampMS != want.TimestampMS {
		return false
	}
	if len(f.Data) != len(want.Data) {
		return false
	}
	for i := range f.Data {
		if f.Data[i] != want.Data[i] {
			return false
		}
	}
	return true
}

func writeAndPublish(s *framestore.Store, f frame.Frame) {
	slot := s.WriteSlot()
	s.Write(slot, f)
	s.PublishLatest(slot)
}

func TestReadLatest_NoneBeforePublish(t *testing.T) {
	s := framestore.New(4, 4)

	if _, ok := s.ReadLatest(); ok {
		t.Fatal("ReadLatest returned a frame before anything was published")
	}

	// Written but not published is still invisible.
	s.Write(s.WriteSlot(), makeFrame(0))
	if _, ok := s.ReadLatest(); ok {
		t.Fatal("ReadLatest observed an unpublished write")
	}
}

// TestMostRecentWins validates that N writes before any read yield the Nth.
func TestMostRecentWins(t *testing.T) {
	s := framestore.New(32, 32)

	for seq := uint32(0); seq < 10; seq++ {
		writeAndPublish(s, makeFrame(seq))
	}

	f, ok := s.ReadLatest()
	if !ok {
		t.Fatal("no frame after 10 publishes")
	}
	if f.Seq != 9 {
		t.Errorf("Seq = %d, want 9 (last written)", f.Seq)
	}
	if !consistent(f) {
		t.Error("frame fields inconsistent")
	}
}

func TestWriteSlotAlternates(t *testing.T) {
	s := framestore.New(2, 2)

	first := s.WriteSlot()
	s.Write(first, makeFrame(0))
	s.PublishLatest(first)

	second := s.WriteSlot()
	if second == first {
		t.Fatalf("WriteSlot returned latest slot %d", first)
	}
	s.Write(second, makeFrame(1))
	s.PublishLatest(second)

	if s.WriteSlot() != first {
		t.Error("WriteSlot did not return to the first slot")
	}
}

// TestReadLatest_ReturnsCopy validates that callers may keep the returned
// frame while the writer continues.
func TestReadLatest_ReturnsCopy(t *testing.T) {
	s := framestore.New(8, 8)
	writeAndPublish(s, makeFrame(1))

	got, _ := s.ReadLatest()

	for seq := uint32(2); seq < 6; seq++ {
		writeAndPublish(s, makeFrame(seq))
	}

	if got.Seq != 1 || !consistent(got) {
		t.Error("earlier read was mutated by later writes")
	}
}

func TestReadLatestInto_ReusesCapacity(t *testing.T) {
	s := framestore.New(8, 8)
	writeAndPublish(s, makeFrame(3))

	dst := frame.Frame{Data: make([]byte, 0, 4096)}
	base := &dst.Data[:1][0]

	if !s.ReadLatestInto(&dst) {
		t.Fatal("ReadLatestInto found nothing")
	}
	if &dst.Data[0] != base {
		t.Error("ReadLatestInto reallocated although capacity was sufficient")
	}
	if !consistent(dst) {
		t.Error("frame fields inconsistent")
	}
}

func TestCapacityPreallocated(t *testing.T) {
	s := framestore.New(640, 480)
	if got, want := s.Capacity(), 640*480*3; got != want {
		t.Errorf("Capacity = %d, want %d", got, want)
	}
}

// TestNoTearing stresses one writer against one reader.
//
// Contract: every frame the reader observes has width, height, timestamp,
// sequence and payload that all belong to the same written frame, and
// sequence numbers never go backwards.
//
// Run with -race: slot ownership must be transferred only through atomics.
func TestNoTearing(t *testing.T) {
	s := framestore.New(16, 16)

	const writes = 20000

	var done atomic.Bool
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer done.Store(true)
		for seq := uint32(0); seq < writes; seq++ {
			writeAndPublish(s, makeFrame(seq))
		}
	}()

	var reads, torn int
	var last uint32
	seen := false
	var dst frame.Frame

	for !done.Load() {
		if !s.ReadLatestInto(&dst) {
			continue
		}
		reads++
		if !consistent(dst) {
			torn++
		}
		if seen && dst.Seq < last {
			t.Fatalf("sequence went backwards: %d after %d", dst.Seq, last)
		}
		last, seen = dst.Seq, true
	}
	wg.Wait()

	if torn > 0 {
		t.Fatalf("%d of %d reads were torn", torn, reads)
	}

	f, ok := s.ReadLatest()
	if !ok || f.Seq != writes-1 {
		t.Errorf("final read = %d,%v want %d,true", f.Seq, ok, writes-1)
	}

	st := s.Stats()
	if st.Writes != writes {
		t.Errorf("Stats.Writes = %d, want %d", st.Writes, writes)
	}
	t.Logf("reads=%d reallocs=%d", reads, st.Reallocs)
}
