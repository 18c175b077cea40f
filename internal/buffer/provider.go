package buffer

import "context"

// StackCreationType records why a stack is being created, distinguishing a
// genuinely new project pair from one being restored during Initialize.
// Implementations may use this to skip redundant store writes for stacks
// that already have rows on disk.
type StackCreationType int

const (
	// StackCreationNew marks a stack created for a pair seen for the first
	// time by this process.
	StackCreationNew StackCreationType = iota
	// StackCreationInitialization marks a stack recreated for a pair that
	// survived a previous process's disk-backed storage.
	StackCreationInitialization
)

// StackProvider constructs and manages the EnvelopeStack implementations
// for one backend (memory or disk). EnvelopeBuffer is generic over it so
// that stack dispatch never goes through a suspending interface method.
type StackProvider[S EnvelopeStack] interface {
	// Initialize prepares the backend and returns the project key pairs
	// that already have buffered envelopes surviving from a previous
	// process (always empty for the memory backend).
	Initialize(ctx context.Context) ([]ProjectKeyPair, error)
	// CreateStack returns a new stack handle for pair. It does not perform
	// I/O; the stack touches the backend only from its own methods.
	CreateStack(creationType StackCreationType, pair ProjectKeyPair) S
	// StoreTotalCount returns the authoritative number of envelopes
	// currently held by the backend, independent of the in-process
	// tracked_count. Disk-backed providers derive it from a row count;
	// the memory provider always reports zero.
	StoreTotalCount(ctx context.Context) (int64, error)
	// Flush hands every remaining stack to the backend for a final,
	// best-effort persist before shutdown. Called with the full set of
	// stacks the buffer is discarding from memory.
	Flush(ctx context.Context, stacks map[ProjectKeyPair]S)
	// HasCapacity reports whether the backend can currently accept more
	// envelopes, based on the capacity thresholds it was configured with.
	HasCapacity() bool
	// StackType returns a short backend name ("memory", "disk") used to tag
	// telemetry emitted by EnvelopeBuffer.
	StackType() string
}
