package frame

// GapTracker lets a consumer de-duplicate republished frames and count frames
// it never saw. The publisher does not guarantee delivery; sequence numbers
// are the only way to notice loss.
//
// Not safe for concurrent use.
type GapTracker struct {
	started bool
	last    uint32

	Accepted   uint64 // frames with a new sequence number
	Duplicates uint64 // frames already seen (same or older sequence)
	Missed     uint64 // sequence numbers skipped between accepted frames
	Restarts   uint64 // producer restarts detected (sequence went back to 0)
}

// Observe records seq and reports whether the frame is new.
func (g *GapTracker) Observe(seq uint32) bool {
	if !g.started {
		g.started = true
		g.last = seq
		g.Accepted++
		return true
	}

	switch {
	case seq == g.last:
		g.Duplicates++
		return false
	case seq < g.last:
		if seq != 0 {
			g.Duplicates++
			return false
		}
		// producer restarted, sequence numbering begins again
		g.Restarts++
	default:
		g.Missed += uint64(seq - g.last - 1)
	}

	g.last = seq
	g.Accepted++
	return true
}

// Last returns the most recent accepted sequence number.
func (g *GapTracker) Last() (uint32, bool) {
	return g.last, g.started
}
