package buffer

import (
	"context"
	"time"
)

// EnvelopeStack is a LIFO sequence of envelopes belonging to one
// ProjectKeyPair. Both the in-memory and disk-backed implementations
// satisfy it; the buffer core never branches on which one it holds.
//
// Every method may suspend (the disk-backed stack performs I/O through
// internal/store), so each takes a context.Context the caller can cancel.
type EnvelopeStack interface {
	// Push appends an envelope to the top of the stack.
	Push(ctx context.Context, e Envelope) error
	// Peek returns the envelope currently on top without removing it. The
	// second return value is false if the stack is empty.
	Peek(ctx context.Context) (Envelope, bool, error)
	// Pop removes and returns the envelope on top of the stack. Calling Pop
	// on an empty stack is a caller error (invariant I2 guarantees the
	// buffer never does this) and returns ErrStackEmpty.
	Pop(ctx context.Context) (Envelope, error)
	// IsEmpty reports whether the stack currently holds no envelopes.
	IsEmpty(ctx context.Context) (bool, error)
}

// Peek describes the state of the top entry of the buffer's priority
// queue, distinguishing an empty buffer from a non-empty one whose top
// project is or isn't ready to be forwarded, and (if not ready) when it
// will next be worth checking.
type Peek struct {
	// Empty is true if the buffer holds no stacks at all.
	Empty bool
	// Ready is true if the top stack's project pair is ready to forward.
	// Meaningless when Empty is true.
	Ready bool
	// ProjectKeyPair identifies the top stack. Meaningless when Empty.
	ProjectKeyPair ProjectKeyPair
	// LastReceivedAt is the receipt time of the envelope on top of the
	// stack. Meaningless when Empty.
	LastReceivedAt time.Time
	// NextProjectFetch is when the top stack's project config is next due
	// for a refresh. Only meaningful when Empty is false and Ready is
	// false.
	NextProjectFetch time.Time
}
