package buffer

import (
	"context"
	"time"

	"github.com/chartly-labs/envbuffer/internal/memcheck"
	"github.com/chartly-labs/envbuffer/internal/relayconfig"
	"github.com/chartly-labs/envbuffer/internal/store"
	"github.com/chartly-labs/envbuffer/internal/telemetry"
)

// envelopeBuffer is the method set both EnvelopeBuffer instantiations
// share, once their backend's stack and provider types are erased. Neither
// instantiation's methods expose their type parameters in this signature
// set, so the concrete *EnvelopeBuffer[*MemoryStack, *MemoryStackProvider]
// and *EnvelopeBuffer[*DiskStack, *DiskStackProvider] both satisfy it
// without any adapter code — the Go analogue of the original's enum-based
// PolymorphicEnvelopeBuffer dispatch, without a trait object.
type envelopeBuffer interface {
	Initialize(ctx context.Context) error
	Push(ctx context.Context, e Envelope) error
	Peek(ctx context.Context) (Peek, error)
	Pop(ctx context.Context) (Envelope, error)
	MarkReady(project ProjectKey, ready bool) bool
	MarkSeen(pair ProjectKeyPair, cooldown time.Duration)
	HasCapacity() bool
	ItemCount() uint64
	StackCount() int
	Flush(ctx context.Context)
}

// Kind identifies which backend a PolymorphicEnvelopeBuffer wraps.
type Kind int

const (
	KindMemory Kind = iota
	KindDisk
)

// PolymorphicEnvelopeBuffer is the single entry point the forwarding loop
// talks to. It hides which backend is active behind a fixed set of
// operations; the partition-tagged metrics are emitted by the wrapped
// EnvelopeBuffer.
type PolymorphicEnvelopeBuffer struct {
	inner        envelopeBuffer
	kind         Kind
	store        *store.Store // nil for KindMemory
	partitionTag string
}

// NewPolymorphicEnvelopeBuffer selects a backend for partition according
// to cfg: a non-empty SpoolPath selects the disk backend over cfg's sqlite
// or postgres DSN; otherwise the bounded in-memory backend is used.
func NewPolymorphicEnvelopeBuffer(partition relayconfig.PartitionConfig, partitionTag string, logger *telemetry.Logger, meter telemetry.Meter) (*PolymorphicEnvelopeBuffer, error) {
	if partition.SpoolPath == "" {
		provider := NewMemoryStackProvider(memcheck.NewRuntimeChecker(), partition.MemoryCapacityBytes)
		inner := NewEnvelopeBuffer[*MemoryStack](provider, partitionTag, logger, meter)
		return &PolymorphicEnvelopeBuffer{inner: inner, kind: KindMemory, partitionTag: partitionTag}, nil
	}

	s, err := store.Open(partition.SpoolPath)
	if err != nil {
		return nil, NewStoreError(err)
	}
	provider := NewDiskStackProvider(s, JSONCodec{}, partition.DiskHeadCapacity, partition.DiskCapacityBytes, partition.DiskCapacityRows)
	inner := NewEnvelopeBuffer[*DiskStack](provider, partitionTag, logger, meter)
	return &PolymorphicEnvelopeBuffer{inner: inner, kind: KindDisk, store: s, partitionTag: partitionTag}, nil
}

// IsMemory reports whether the buffer is backed by the in-memory provider.
func (p *PolymorphicEnvelopeBuffer) IsMemory() bool { return p.kind == KindMemory }

// PartitionTag returns the string tag this buffer reports on its metrics.
func (p *PolymorphicEnvelopeBuffer) PartitionTag() string { return p.partitionTag }

func (p *PolymorphicEnvelopeBuffer) Initialize(ctx context.Context) error {
	return p.inner.Initialize(ctx)
}

func (p *PolymorphicEnvelopeBuffer) Push(ctx context.Context, e Envelope) error {
	return p.inner.Push(ctx, e)
}

func (p *PolymorphicEnvelopeBuffer) Peek(ctx context.Context) (Peek, error) {
	return p.inner.Peek(ctx)
}

func (p *PolymorphicEnvelopeBuffer) Pop(ctx context.Context) (Envelope, error) {
	return p.inner.Pop(ctx)
}

func (p *PolymorphicEnvelopeBuffer) MarkReady(project ProjectKey, ready bool) bool {
	return p.inner.MarkReady(project, ready)
}

func (p *PolymorphicEnvelopeBuffer) MarkSeen(pair ProjectKeyPair, cooldown time.Duration) {
	p.inner.MarkSeen(pair, cooldown)
}

func (p *PolymorphicEnvelopeBuffer) HasCapacity() bool { return p.inner.HasCapacity() }

// ItemCount returns the in-process tracked envelope count.
func (p *PolymorphicEnvelopeBuffer) ItemCount() uint64 { return p.inner.ItemCount() }

// TotalSize returns the store's total byte usage. Always zero for the
// in-memory backend, which keeps no independent size accounting.
func (p *PolymorphicEnvelopeBuffer) TotalSize(ctx context.Context) int64 {
	if p.store == nil {
		return 0
	}
	n, err := p.store.TotalBytes(ctx)
	if err != nil {
		return 0
	}
	return n
}

// StackCount returns the number of distinct project key pairs queued.
func (p *PolymorphicEnvelopeBuffer) StackCount() int { return p.inner.StackCount() }

// Shutdown flushes the buffer and, for the disk backend, closes the
// store. It returns true if a flush to durable storage occurred, matching
// the original's shutdown() return value of whether the sqlite variant
// was the one active.
func (p *PolymorphicEnvelopeBuffer) Shutdown(ctx context.Context) bool {
	p.inner.Flush(ctx)
	if p.store == nil {
		return false
	}
	_ = p.store.Close()
	return true
}
