package buffer

import (
	"context"
	"testing"
	"time"
)

type testEnvelope struct {
	own        ProjectKey
	sampling   ProjectKey
	hasSampling bool
	receivedAt time.Time
	size       int
}

func (e testEnvelope) ReceivedAt() time.Time     { return e.receivedAt }
func (e testEnvelope) OwnProjectKey() ProjectKey { return e.own }
func (e testEnvelope) SamplingProjectKey() (ProjectKey, bool) {
	if !e.hasSampling {
		return "", false
	}
	return e.sampling, true
}
func (e testEnvelope) Size() int { return e.size }

func newEnvelope(own string, receivedAt time.Time) testEnvelope {
	return testEnvelope{own: ProjectKey(own), receivedAt: receivedAt}
}

func newEnvelopeWithSampling(own, sampling string, receivedAt time.Time) testEnvelope {
	return testEnvelope{own: ProjectKey(own), sampling: ProjectKey(sampling), hasSampling: true, receivedAt: receivedAt}
}

func newMemoryBuffer() *EnvelopeBuffer[*MemoryStack, *MemoryStackProvider] {
	provider := NewMemoryStackProvider(nil, 0)
	return NewEnvelopeBuffer[*MemoryStack](provider, "test", nil, nil)
}

const (
	projectA = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	projectB = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	projectC = "cccccccccccccccccccccccccccccccc"
)

// TestInsertPop mirrors the original's test_insert_pop: pushing envelopes
// for two distinct projects and popping the most recently received one
// first, since both stacks start out optimistically ready (spec.md §8 S1).
func TestInsertPop(t *testing.T) {
	ctx := context.Background()
	b := newMemoryBuffer()
	base := time.Unix(1_700_000_000, 0)

	if err := b.Push(ctx, newEnvelope(projectA, base)); err != nil {
		t.Fatalf("push a: %v", err)
	}
	if err := b.Push(ctx, newEnvelope(projectB, base.Add(time.Second))); err != nil {
		t.Fatalf("push b: %v", err)
	}

	peek, err := b.Peek(ctx)
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if peek.Empty || !peek.Ready || peek.ProjectKeyPair.OwnKey != projectB {
		t.Fatalf("expected project b (newer) on top, got %+v", peek)
	}

	first, err := b.Pop(ctx)
	if err != nil {
		t.Fatalf("pop 1: %v", err)
	}
	if first.OwnProjectKey() != projectB {
		t.Fatalf("expected to pop project b first, got %s", first.OwnProjectKey())
	}

	second, err := b.Pop(ctx)
	if err != nil {
		t.Fatalf("pop 2: %v", err)
	}
	if second.OwnProjectKey() != projectA {
		t.Fatalf("expected to pop project a second, got %s", second.OwnProjectKey())
	}

	peek, err = b.Peek(ctx)
	if err != nil {
		t.Fatalf("peek after drain: %v", err)
	}
	if !peek.Empty {
		t.Fatalf("expected buffer to be empty after popping both envelopes")
	}
}

// TestProjectInternalOrder mirrors test_project_internal_order: within a
// single project's stack, envelopes pop LIFO (most recently pushed first).
func TestProjectInternalOrder(t *testing.T) {
	ctx := context.Background()
	b := newMemoryBuffer()
	base := time.Unix(1_700_000_000, 0)

	if err := b.Push(ctx, newEnvelope(projectA, base)); err != nil {
		t.Fatalf("push 1: %v", err)
	}
	if err := b.Push(ctx, newEnvelope(projectA, base.Add(time.Second))); err != nil {
		t.Fatalf("push 2: %v", err)
	}
	if err := b.Push(ctx, newEnvelope(projectA, base.Add(2*time.Second))); err != nil {
		t.Fatalf("push 3: %v", err)
	}

	for i, want := range []time.Time{base.Add(2 * time.Second), base.Add(time.Second), base} {
		got, err := b.Pop(ctx)
		if err != nil {
			t.Fatalf("pop %d: %v", i, err)
		}
		if !got.ReceivedAt().Equal(want) {
			t.Fatalf("pop %d: expected received_at %v, got %v", i, want, got.ReceivedAt())
		}
	}
}

// TestSamplingProjectsDistinctStacks mirrors test_sampling_projects: two
// envelopes sharing an own project but differing in sampling project
// occupy distinct stacks.
func TestSamplingProjectsDistinctStacks(t *testing.T) {
	ctx := context.Background()
	b := newMemoryBuffer()
	base := time.Unix(1_700_000_000, 0)

	if err := b.Push(ctx, newEnvelopeWithSampling(projectA, projectB, base)); err != nil {
		t.Fatalf("push 1: %v", err)
	}
	if err := b.Push(ctx, newEnvelopeWithSampling(projectA, projectC, base.Add(time.Second))); err != nil {
		t.Fatalf("push 2: %v", err)
	}

	if b.StackCount() != 2 {
		t.Fatalf("expected 2 distinct stacks, got %d", b.StackCount())
	}
	if len(b.stacksByProject[projectA]) != 2 {
		t.Fatalf("expected project a to participate in 2 pairs, got %d", len(b.stacksByProject[projectA]))
	}
}

// TestProjectKeysDistinctSelfPairSingleIndexEntry mirrors
// test_project_keys_distinct: a self-pair (own == sampling) contributes a
// single reverse-index entry, not two.
func TestProjectKeysDistinctSelfPairSingleIndexEntry(t *testing.T) {
	ctx := context.Background()
	b := newMemoryBuffer()

	if err := b.Push(ctx, newEnvelope(projectA, time.Unix(1, 0))); err != nil {
		t.Fatalf("push: %v", err)
	}
	if len(b.stacksByProject[projectA]) != 1 {
		t.Fatalf("expected exactly one reverse-index entry for a self-pair, got %d", len(b.stacksByProject[projectA]))
	}
}

// TestMarkReadyReordersAcrossBothSlots verifies that marking a project not
// ready demotes every pair where it appears as either the own or the
// sampling key, and that the not-ready entry always sorts after any ready
// entry regardless of receipt time.
func TestMarkReadyReordersAcrossBothSlots(t *testing.T) {
	ctx := context.Background()
	b := newMemoryBuffer()
	base := time.Unix(1_700_000_000, 0)

	if err := b.Push(ctx, newEnvelope(projectA, base.Add(time.Hour))); err != nil {
		t.Fatalf("push a: %v", err)
	}
	if err := b.Push(ctx, newEnvelope(projectB, base)); err != nil {
		t.Fatalf("push b: %v", err)
	}

	if changed := b.MarkReady(projectA, false); !changed {
		t.Fatalf("expected MarkReady to report a change")
	}

	peek, err := b.Peek(ctx)
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if peek.Empty || !peek.Ready || peek.ProjectKeyPair.OwnKey != projectB {
		t.Fatalf("expected the still-ready, much-older project b on top, got %+v", peek)
	}

	if changed := b.MarkReady(projectA, true); !changed {
		t.Fatalf("expected re-marking ready to report a change")
	}
	peek, err = b.Peek(ctx)
	if err != nil {
		t.Fatalf("peek after re-ready: %v", err)
	}
	if peek.ProjectKeyPair.OwnKey != projectA {
		t.Fatalf("expected project a back on top once ready again, got %+v", peek)
	}
}

// TestInitializeLoadsSurvivingPairs exercises EnvelopeBuffer.Initialize
// against a fake provider reporting pairs that survived a previous
// process, mirroring test_initialize_buffer's restart scenario.
func TestInitializeLoadsSurvivingPairs(t *testing.T) {
	ctx := context.Background()
	survivor := NewProjectKeyPair(projectA, projectA)
	provider := &fakeProvider{
		survivingPairs: []ProjectKeyPair{survivor},
		totalCount:     3,
	}
	b := NewEnvelopeBuffer[*MemoryStack](provider, "test", nil, nil)

	if err := b.Initialize(ctx); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if b.StackCount() != 1 {
		t.Fatalf("expected the surviving pair's stack to be recreated, got %d stacks", b.StackCount())
	}
	if !b.totalCountInitialized {
		t.Fatalf("expected total count to be marked initialized")
	}
	if b.totalCount != 3 {
		t.Fatalf("expected total count 3, got %d", b.totalCount)
	}
}

// TestInitializeDowngradesOnStoreTotalCountError mirrors the original's
// handling of a failed or timed-out store_total_count load: initialize
// still succeeds, but totalCountInitialized is left false.
func TestInitializeDowngradesOnStoreTotalCountError(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{totalCountErr: context.DeadlineExceeded}
	b := NewEnvelopeBuffer[*MemoryStack](provider, "test", nil, nil)

	if err := b.Initialize(ctx); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if b.totalCountInitialized {
		t.Fatalf("expected totalCountInitialized to remain false after a store error")
	}
}

// fakeProvider is a minimal StackProvider[*MemoryStack] for exercising
// EnvelopeBuffer.Initialize without a real store.
type fakeProvider struct {
	survivingPairs []ProjectKeyPair
	totalCount     int64
	totalCountErr  error
}

func (p *fakeProvider) Initialize(context.Context) ([]ProjectKeyPair, error) {
	return p.survivingPairs, nil
}

func (p *fakeProvider) CreateStack(StackCreationType, ProjectKeyPair) *MemoryStack {
	return NewMemoryStack()
}

func (p *fakeProvider) StoreTotalCount(context.Context) (int64, error) {
	return p.totalCount, p.totalCountErr
}

func (p *fakeProvider) Flush(context.Context, map[ProjectKeyPair]*MemoryStack) {}

func (p *fakeProvider) HasCapacity() bool { return true }

func (p *fakeProvider) StackType() string { return "fake" }
