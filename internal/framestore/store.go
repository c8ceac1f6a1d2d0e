package framestore

import (
	"fmt"
	"sync/atomic"

	"github.com/Shreyaanp/mdaitest/internal/frame"
)

// numSlots is fixed; the store never grows.
const numSlots = 2

// noFrame marks a store that has never published.
const noFrame = -1

// buffer is the owned storage behind a slot.
type buffer struct {
	f frame.Frame
}

// Store is a single-producer/single-consumer latest-value cell backed by
// two reusable slots.
type Store struct {
	slots  [numSlots]atomic.Pointer[buffer]
	latest atomic.Int32

	capacity int

	writes   atomic.Uint64
	reads    atomic.Uint64
	reallocs atomic.Uint64
}

// Stats is a point-in-time view of store activity.
type Stats struct {
	Writes   uint64 // frames written and published
	Reads    uint64 // successful ReadLatest calls
	Reallocs uint64 // writer found its slot held by the reader
}

// New allocates both slots sized to an uncompressed RGB frame, which bounds
// any JPEG of the same dimensions.
func New(width, height int) *Store {
	capacity := width * height * 3
	if capacity < 0 {
		capacity = 0
	}

	s := &Store{capacity: capacity}
	for i := range s.slots {
		s.slots[i].Store(&buffer{f: frame.Frame{Data: make([]byte, 0, capacity)}})
	}
	s.latest.Store(noFrame)
	return s
}

// WriteSlot returns the slot the writer should fill next: the one not
// currently marked latest.
func (s *Store) WriteSlot() int {
	if s.latest.Load() == 0 {
		return 1
	}
	return 0
}

// Write copies f completely into slot. It does not make the frame visible;
// call PublishLatest afterwards.
//
// Only one goroutine may call Write.
func (s *Store) Write(slot int, f frame.Frame) {
	s.checkSlot(slot)

	b := s.slots[slot].Swap(nil)
	if b == nil {
		// reader still copying this slot; it will drop its buffer on return
		s.reallocs.Add(1)
		b = &buffer{f: frame.Frame{Data: make([]byte, 0, max(s.capacity, len(f.Data)))}}
	}

	b.f.Width = f.Width
	b.f.Height = f.Height
	b.f.TimestampMS = f.TimestampMS
	b.f.Seq = f.Seq
	b.f.Data = append(b.f.Data[:0], f.Data...)

	s.slots[slot].Store(b)
}

// PublishLatest atomically marks slot as holding the latest frame.
func (s *Store) PublishLatest(slot int) {
	s.checkSlot(slot)
	s.latest.Store(int32(slot))
	s.writes.Add(1)
}

// ReadLatest returns a copy of the latest published frame, or false if
// nothing was published yet.
func (s *Store) ReadLatest() (frame.Frame, bool) {
	var out frame.Frame
	if !s.ReadLatestInto(&out) {
		return frame.Frame{}, false
	}
	return out, true
}

// ReadLatestInto copies the latest frame into dst, reusing dst.Data's
// capacity. It reports false (leaving dst untouched) if nothing was
// published yet.
//
// Only one goroutine may read at a time.
func (s *Store) ReadLatestInto(dst *frame.Frame) bool {
	for {
		idx := s.latest.Load()
		if idx == noFrame {
			return false
		}
		if s.copySlot(idx, dst) {
			s.reads.Add(1)
			return true
		}
	}
}

// copySlot copies slot idx into dst if idx is still the latest slot once the
// reader owns its buffer. A false return means latest moved (or the writer
// holds the slot) and the caller must look again.
func (s *Store) copySlot(idx int32, dst *frame.Frame) bool {
	b := s.slots[idx].Swap(nil)
	if b == nil {
		// writer owns this slot right now, which means latest has
		// moved or is about to
		return false
	}

	// The writer may have published the other slot and refilled this one
	// between the Load and the Swap. That buffer was never published.
	if s.latest.Load() != idx {
		s.slots[idx].CompareAndSwap(nil, b)
		return false
	}

	dst.Width = b.f.Width
	dst.Height = b.f.Height
	dst.TimestampMS = b.f.TimestampMS
	dst.Seq = b.f.Seq
	dst.Data = append(dst.Data[:0], b.f.Data...)

	// Hand the buffer back unless the writer replaced it meanwhile.
	s.slots[idx].CompareAndSwap(nil, b)
	return true
}

// Stats returns activity counters.
func (s *Store) Stats() Stats {
	return Stats{
		Writes:   s.writes.Load(),
		Reads:    s.reads.Load(),
		Reallocs: s.reallocs.Load(),
	}
}

// Capacity returns the preallocated byte size of each slot.
func (s *Store) Capacity() int {
	return s.capacity
}

func (s *Store) checkSlot(slot int) {
	if slot < 0 || slot >= numSlots {
		panic(fmt.Sprintf("framestore: slot %d out of range", slot))
	}
}
