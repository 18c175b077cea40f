package buffer

import (
	"context"

	"github.com/chartly-labs/envbuffer/internal/store"
)

// DiskStack is an EnvelopeStack whose contents may exceed available
// memory: a bounded in-RAM head holds the most recently pushed envelopes,
// and a persistent store holds the rest. Pushing past the head's capacity
// spills the oldest half of the head to the store; popping past an empty
// head refills it with the newest batch still on disk.
//
// This mirrors the original's SqliteEnvelopeStack design note (a disk
// store is a write-back cache, not a pass-through), adapted here to a
// generic database/sql-backed store rather than sqlite specifically, since
// internal/store also supports postgres.
type DiskStack struct {
	store        *store.Store
	codec        EnvelopeCodec
	pair         ProjectKeyPair
	headCapacity int
	head         []Envelope // oldest first; top of stack is the last element
}

// NewDiskStack returns a DiskStack over s for pair. The head holds up to
// 2*headCapacity envelopes; the push that exceeds that spills all but the
// newest headCapacity to disk.
func NewDiskStack(s *store.Store, codec EnvelopeCodec, pair ProjectKeyPair, headCapacity int) *DiskStack {
	if headCapacity <= 0 {
		headCapacity = 128
	}
	return &DiskStack{store: s, codec: codec, pair: pair, headCapacity: headCapacity}
}

func (s *DiskStack) Push(ctx context.Context, e Envelope) error {
	s.head = append(s.head, e)
	if len(s.head) > 2*s.headCapacity {
		if err := s.spill(ctx); err != nil {
			return NewStackError(err)
		}
	}
	return nil
}

// spill persists the oldest half of the head, keeping only the newest
// headCapacity envelopes resident.
func (s *DiskStack) spill(ctx context.Context) error {
	cut := len(s.head) - s.headCapacity
	for _, e := range s.head[:cut] {
		encoded, err := s.codec.Encode(e)
		if err != nil {
			return err
		}
		sampling, ok := e.SamplingProjectKey()
		if !ok {
			sampling = e.OwnProjectKey()
		}
		if err := s.store.Push(ctx, string(e.OwnProjectKey()), string(sampling), e.ReceivedAt(), e.Size(), encoded); err != nil {
			return err
		}
	}
	remaining := make([]Envelope, len(s.head)-cut)
	copy(remaining, s.head[cut:])
	s.head = remaining
	return nil
}

// refill pulls the newest batch still on disk back into the head, if the
// head is currently empty and the store has rows for this pair.
func (s *DiskStack) refill(ctx context.Context) error {
	if len(s.head) > 0 {
		return nil
	}
	rows, err := s.store.PopMany(ctx, string(s.pair.OwnKey), string(s.pair.SamplingKey), s.headCapacity)
	if err != nil {
		return err
	}
	// rows are newest-first (seq DESC); the head slice is oldest-first, so
	// reverse while decoding.
	head := make([]Envelope, len(rows))
	for i, row := range rows {
		e, err := s.codec.Decode(s.pair.OwnKey, s.pair.SamplingKey, row.ReceivedAt, row.SizeBytes, row.Payload)
		if err != nil {
			return err
		}
		head[len(rows)-1-i] = e
	}
	s.head = head
	return nil
}

func (s *DiskStack) Peek(ctx context.Context) (Envelope, bool, error) {
	if err := s.refill(ctx); err != nil {
		return nil, false, NewStoreError(err)
	}
	if len(s.head) == 0 {
		return nil, false, nil
	}
	return s.head[len(s.head)-1], true, nil
}

func (s *DiskStack) Pop(ctx context.Context) (Envelope, error) {
	if err := s.refill(ctx); err != nil {
		return nil, NewStoreError(err)
	}
	n := len(s.head)
	if n == 0 {
		return nil, ErrStackEmpty
	}
	e := s.head[n-1]
	s.head[n-1] = nil
	s.head = s.head[:n-1]
	return e, nil
}

func (s *DiskStack) IsEmpty(ctx context.Context) (bool, error) {
	if len(s.head) > 0 {
		return false, nil
	}
	count, err := s.store.CountForPair(ctx, string(s.pair.OwnKey), string(s.pair.SamplingKey))
	if err != nil {
		return false, NewStoreError(err)
	}
	return count == 0, nil
}

// Flush persists every envelope still resident in the head, leaving the
// head empty. Called by DiskStackProvider.Flush during shutdown.
func (s *DiskStack) Flush(ctx context.Context) error {
	for _, e := range s.head {
		encoded, err := s.codec.Encode(e)
		if err != nil {
			return err
		}
		sampling, ok := e.SamplingProjectKey()
		if !ok {
			sampling = e.OwnProjectKey()
		}
		if err := s.store.Push(ctx, string(e.OwnProjectKey()), string(sampling), e.ReceivedAt(), e.Size(), encoded); err != nil {
			return err
		}
	}
	s.head = nil
	return nil
}
