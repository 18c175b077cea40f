package buffer

import (
	"context"
	"fmt"

	"github.com/chartly-labs/envbuffer/internal/store"
)

// DiskStackProvider creates DiskStack instances over a shared store and
// enforces the configured disk capacity thresholds.
type DiskStackProvider struct {
	Store         *store.Store
	Codec         EnvelopeCodec
	HeadCapacity  int
	CapacityBytes int64
	CapacityRows  int64
}

// NewDiskStackProvider returns a provider backed by s. A zero codec
// defaults to JSONCodec.
func NewDiskStackProvider(s *store.Store, codec EnvelopeCodec, headCapacity int, capacityBytes, capacityRows int64) *DiskStackProvider {
	if codec == nil {
		codec = JSONCodec{}
	}
	return &DiskStackProvider{
		Store:         s,
		Codec:         codec,
		HeadCapacity:  headCapacity,
		CapacityBytes: capacityBytes,
		CapacityRows:  capacityRows,
	}
}

// Initialize ensures the schema exists and returns every project key pair
// with rows surviving from a previous process, so EnvelopeBuffer.Initialize
// can recreate their stacks.
func (p *DiskStackProvider) Initialize(ctx context.Context) ([]ProjectKeyPair, error) {
	if err := p.Store.InitSchema(ctx); err != nil {
		return nil, NewStoreError(err)
	}
	rows, err := p.Store.DistinctPairs(ctx)
	if err != nil {
		return nil, NewStoreError(err)
	}
	pairs := make([]ProjectKeyPair, 0, len(rows))
	for _, r := range rows {
		pairs = append(pairs, NewProjectKeyPair(ProjectKey(r[0]), ProjectKey(r[1])))
	}
	return pairs, nil
}

func (p *DiskStackProvider) CreateStack(_ StackCreationType, pair ProjectKeyPair) *DiskStack {
	return NewDiskStack(p.Store, p.Codec, pair, p.HeadCapacity)
}

// StoreTotalCount returns the authoritative row count across all pairs.
func (p *DiskStackProvider) StoreTotalCount(ctx context.Context) (int64, error) {
	count, err := p.Store.TotalCount(ctx)
	if err != nil {
		return 0, NewStoreError(err)
	}
	return count, nil
}

// Flush persists every stack's resident head. A stack whose flush fails
// does not abort the loop; its error is neither logged nor returned.
func (p *DiskStackProvider) Flush(ctx context.Context, stacks map[ProjectKeyPair]*DiskStack) {
	for pair, stack := range stacks {
		if err := stack.Flush(ctx); err != nil {
			// Best-effort: skip the failed pair and keep flushing the
			// rest.
			_ = fmt.Errorf("buffer: flush pair %v: %w", pair, err)
		}
	}
}

func (p *DiskStackProvider) HasCapacity() bool {
	if p.CapacityBytes == 0 && p.CapacityRows == 0 {
		return true
	}
	ctx := context.Background()
	if p.CapacityRows > 0 {
		if n, err := p.Store.TotalCount(ctx); err == nil && n >= p.CapacityRows {
			return false
		}
	}
	if p.CapacityBytes > 0 {
		if n, err := p.Store.TotalBytes(ctx); err == nil && n >= p.CapacityBytes {
			return false
		}
	}
	return true
}

// StackType identifies this provider's backend for telemetry.
func (p *DiskStackProvider) StackType() string { return "disk" }
