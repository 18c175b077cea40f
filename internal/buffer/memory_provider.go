package buffer

import (
	"context"

	"github.com/chartly-labs/envbuffer/internal/memcheck"
)

// MemoryStackProvider creates MemoryStack instances and enforces a process
// memory ceiling: once estimated usage reaches CapacityBytes, HasCapacity
// returns false. EnvelopeBuffer.Push does not consult HasCapacity and
// CreateStack never fails, so the ceiling is only reported, not enforced
// here.
type MemoryStackProvider struct {
	Checker       memcheck.Checker
	CapacityBytes uint64
}

// NewMemoryStackProvider returns a provider whose HasCapacity reports false
// once the process's estimated heap usage reaches capacityBytes. A zero
// capacityBytes disables the check.
func NewMemoryStackProvider(checker memcheck.Checker, capacityBytes uint64) *MemoryStackProvider {
	return &MemoryStackProvider{Checker: checker, CapacityBytes: capacityBytes}
}

// Initialize returns no surviving pairs: the memory backend never
// outlives the process that created it.
func (p *MemoryStackProvider) Initialize(_ context.Context) ([]ProjectKeyPair, error) {
	return nil, nil
}

func (p *MemoryStackProvider) CreateStack(_ StackCreationType, _ ProjectKeyPair) *MemoryStack {
	return NewMemoryStack()
}

// StoreTotalCount always returns zero: the memory backend keeps no
// authoritative count independent of the buffer's own tracked_count.
func (p *MemoryStackProvider) StoreTotalCount(_ context.Context) (int64, error) {
	return 0, nil
}

// Flush is a no-op: envelopes held only in memory do not survive shutdown.
func (p *MemoryStackProvider) Flush(_ context.Context, _ map[ProjectKeyPair]*MemoryStack) {}

func (p *MemoryStackProvider) HasCapacity() bool {
	if p.CapacityBytes == 0 {
		return true
	}
	return p.Checker.UsedBytes() < p.CapacityBytes
}

// StackType identifies this provider's backend for telemetry.
func (p *MemoryStackProvider) StackType() string { return "memory" }
