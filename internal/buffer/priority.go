package buffer

import "time"

// Readiness tracks whether a stack's own project and sampling project are
// both known-ready to receive forwarded envelopes. A freshly created stack
// is optimistically ready on both counts until mark_ready says otherwise.
type Readiness struct {
	ownProjectReady      bool
	samplingProjectReady bool
}

// NewReadiness returns the optimistic default: both projects ready.
func NewReadiness() Readiness {
	return Readiness{ownProjectReady: true, samplingProjectReady: true}
}

// Ready reports whether both the own and sampling project are ready.
func (r Readiness) Ready() bool {
	return r.ownProjectReady && r.samplingProjectReady
}

// Priority is the sort key a stack occupies in the EnvelopeBuffer's
// priority queue. The greatest Priority value (per Less) is popped first.
type Priority struct {
	Readiness        Readiness
	ReceivedAt       time.Time
	NextProjectFetch time.Time
}

// NewPriority builds the priority for a freshly created stack: optimistic
// readiness, and a fetch cooldown that has already elapsed.
func NewPriority(receivedAt time.Time) Priority {
	return Priority{
		Readiness:        NewReadiness(),
		ReceivedAt:       receivedAt,
		NextProjectFetch: time.Now(),
	}
}

// Less implements the buffer's total order over Priority values: p.Less(other)
// reports whether p is the lower priority (serves later) of the two. It is a
// direct port of the original implementation's Ord for Priority, and the
// queue (pqueue.go) serves the greatest element, so:
//
//   - ready, ready: the entry with the more recent ReceivedAt is greater and
//     serves first (newest-ready wins, spec.md §8 S1)
//   - ready, not-ready: the ready entry is always greater and serves first
//   - not-ready, ready: the not-ready entry is always lesser
//   - not-ready, not-ready: the entry with the later NextProjectFetch is
//     lesser, so the one due for a fetch soonest (and, on a tie, the one
//     with the oldest ReceivedAt) is greatest and serves first (spec.md §8 S2)
func (p Priority) Less(other Priority) bool {
	pReady := p.Readiness.Ready()
	oReady := other.Readiness.Ready()

	switch {
	case pReady && oReady:
		return p.ReceivedAt.Before(other.ReceivedAt)
	case pReady && !oReady:
		// p is ready, other is not: p sorts after (greater) than other.
		return false
	case !pReady && oReady:
		// p is not ready, other is: p sorts before (lesser) than other.
		return true
	default:
		if !p.NextProjectFetch.Equal(other.NextProjectFetch) {
			return p.NextProjectFetch.After(other.NextProjectFetch)
		}
		return p.ReceivedAt.After(other.ReceivedAt)
	}
}

// Greater reports whether p sorts strictly after other in the buffer's
// total order (p would be served before other).
func (p Priority) Greater(other Priority) bool {
	return other.Less(p)
}
