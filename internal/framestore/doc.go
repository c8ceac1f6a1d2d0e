// Package framestore implements the double-buffered "latest frame" cell that
// sits between the capture goroutine and the publish loop.
//
// # Philosophy
//
// "Most recent wins." The publisher never sees a queue of historical
// frames, only the newest complete one. A slow reader loses intermediate
// frames; it never slows the writer down.
//
// # Layout
//
// Two slots (A, B), each preallocated to width*height*3 bytes, plus an
// atomic latest index:
//
//	capture goroutine            publish loop
//	    │                             │
//	    ├─ WriteSlot() → B            │
//	    ├─ Write(B, frame)            ├─ ReadLatest() → copy of A
//	    ├─ PublishLatest(B)           │
//	    │                             ├─ ReadLatest() → copy of B
//	    ├─ WriteSlot() → A            │
//
// # Ownership
//
// Each slot holds an atomically swapped pointer to its buffer. Whoever
// swaps the pointer out owns the buffer until it is stored back:
//
//   - Write takes the target slot's buffer, fills it, stores it back.
//   - ReadLatest takes the latest slot's buffer, copies it, returns it.
//
// If the writer reaches a slot whose buffer the reader is still copying, it
// fills a fresh buffer instead and the reader's copy is discarded when it
// finishes (counted as Reallocs). The writer never waits for the reader and
// the reader never observes a partially written frame.
//
// In steady state (reader copy ≪ frame interval) no allocation happens.
//
// # Usage
//
//	store := framestore.New(640, 480)
//
//	// writer
//	slot := store.WriteSlot()
//	store.Write(slot, f)
//	store.PublishLatest(slot)
//
//	// reader
//	if f, ok := store.ReadLatest(); ok {
//	    publish(f)
//	}
package framestore
