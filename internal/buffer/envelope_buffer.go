package buffer

import (
	"context"
	"time"

	"github.com/chartly-labs/envbuffer/internal/telemetry"
)

// assertionsEnabled gates the buffer's internal consistency checks, which
// the original expresses as debug_assert! (elided in release builds). Go
// has no build-mode assertion elision, so this is a plain constant a
// caller can flip before building an optimized binary; tripping one is
// always a bug in this package, never in caller input.
const assertionsEnabled = true

func assert(cond bool, msg string) {
	if assertionsEnabled && !cond {
		panic("buffer: invariant violated: " + msg)
	}
}

// EnvelopeBuffer is the priority-driven scheduler multiplexing every
// project key pair's stack. It is generic over the stack provider so that
// dispatch to the memory or disk backend never goes through a dynamic,
// suspending interface call; PolymorphicEnvelopeBuffer is the sum-type
// façade that picks one instantiation at runtime.
type EnvelopeBuffer[S EnvelopeStack, P StackProvider[S]] struct {
	provider P
	queue    *priorityQueue[S]
	// stacksByProject is the reverse index from a single project key to
	// every pair it participates in, kept in lockstep with queue via
	// pushStack/popStack, the sole choke points that mutate both.
	stacksByProject map[ProjectKey]map[ProjectKeyPair]struct{}

	totalCount            int64
	trackedCount          uint64
	totalCountInitialized bool

	partitionTag string
	logger       *telemetry.Logger
	meter        telemetry.Meter
}

// NewEnvelopeBuffer constructs an EnvelopeBuffer over provider. logger and
// meter may be nil; nil loggers fall back to a discarding logger and nil
// meters are no-ops (see internal/telemetry).
func NewEnvelopeBuffer[S EnvelopeStack, P StackProvider[S]](provider P, partitionTag string, logger *telemetry.Logger, meter telemetry.Meter) *EnvelopeBuffer[S, P] {
	if logger == nil {
		logger = telemetry.Nop()
	}
	if meter == nil {
		meter = telemetry.NopMeter{}
	}
	return &EnvelopeBuffer[S, P]{
		provider:        provider,
		queue:           newPriorityQueue[S](),
		stacksByProject: make(map[ProjectKey]map[ProjectKeyPair]struct{}),
		partitionTag:    partitionTag,
		logger:          logger,
		meter:           meter,
	}
}

// Initialize restores any stacks that survived a previous process (a
// no-op for the memory backend) and attempts to load the store's
// authoritative total count under a one-second deadline. A timed-out or
// failed count load is non-fatal: the buffer continues with
// totalCountInitialized false and logs the downgrade.
func (b *EnvelopeBuffer[S, P]) Initialize(ctx context.Context) error {
	timer := telemetry.StartTimer(b.meter, "buffer_initialize_seconds", telemetry.Labels{"partition": b.partitionTag})
	defer timer.Stop()

	pairs, err := b.provider.Initialize(ctx)
	if err != nil {
		return err
	}
	for _, pair := range pairs {
		if _, err := b.pushStack(ctx, StackCreationInitialization, pair, nil); err != nil {
			// No initial envelope is pushed for a restored pair, so this
			// path cannot fail; kept for symmetry with Push's error check.
			return err
		}
	}

	count, err := b.loadStoreTotalCount(ctx)
	if err != nil {
		b.totalCountInitialized = false
		b.logger.Error("failed to load total envelope count", map[string]any{
			"partition": b.partitionTag,
			"error":     err.Error(),
		})
	} else {
		b.totalCount = count
		b.totalCountInitialized = true
	}
	b.trackTotalCount()
	return nil
}

// loadStoreTotalCount bounds the provider's StoreTotalCount call to one
// second, matching the original's tokio::time::timeout around the same
// call.
func (b *EnvelopeBuffer[S, P]) loadStoreTotalCount(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	type result struct {
		count int64
		err   error
	}
	done := make(chan result, 1)
	go func() {
		count, err := b.provider.StoreTotalCount(ctx)
		done <- result{count, err}
	}()

	select {
	case r := <-done:
		return r.count, r.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Push adds an envelope to its project key pair's stack, creating the
// stack if this is the first envelope seen for that pair.
func (b *EnvelopeBuffer[S, P]) Push(ctx context.Context, e Envelope) error {
	timer := telemetry.StartTimer(b.meter, "buffer_push_seconds", telemetry.Labels{"partition": b.partitionTag})
	defer timer.Stop()
	telemetry.ObserveHistogram(b.meter, "buffer_envelope_body_bytes", telemetry.Labels{"partition": b.partitionTag}, float64(e.Size()), telemetry.DefaultHistogramBuckets())

	pair := ProjectKeyPairFromEnvelope(e)
	item, exists := b.queue.Get(pair)
	if !exists {
		var err error
		item, err = b.pushStack(ctx, StackCreationNew, pair, &e)
		if err != nil {
			return NewPushFailed(err)
		}
	} else {
		if err := item.value.Push(ctx, e); err != nil {
			return NewPushFailed(err)
		}
		b.queue.UpdatePriority(pair, priorityForReceivedAt(item.priority, e.ReceivedAt()))
	}

	b.totalCount++
	b.trackedCount++
	b.trackTotalCount()
	return nil
}

func priorityForReceivedAt(prev Priority, receivedAt time.Time) Priority {
	prev.ReceivedAt = receivedAt
	return prev
}

// Peek reports the state of the top entry without removing anything.
func (b *EnvelopeBuffer[S, P]) Peek(ctx context.Context) (Peek, error) {
	timer := telemetry.StartTimer(b.meter, "buffer_peek_seconds", telemetry.Labels{"partition": b.partitionTag})
	defer timer.Stop()

	top, ok := b.queue.Top()
	if !ok {
		return Peek{Empty: true}, nil
	}
	envelope, found, err := top.value.Peek(ctx)
	if err != nil {
		return Peek{}, NewStackError(err)
	}
	assert(found, "top-of-queue stack is empty")

	if top.priority.Readiness.Ready() {
		return Peek{
			Ready:          true,
			ProjectKeyPair: top.key,
			LastReceivedAt: envelope.ReceivedAt(),
		}, nil
	}
	return Peek{
		Ready:            false,
		ProjectKeyPair:   top.key,
		LastReceivedAt:   envelope.ReceivedAt(),
		NextProjectFetch: top.priority.NextProjectFetch,
	}, nil
}

// Pop removes and returns the top envelope. Callers must not call Pop on
// an empty buffer; use Peek first.
func (b *EnvelopeBuffer[S, P]) Pop(ctx context.Context) (Envelope, error) {
	timer := telemetry.StartTimer(b.meter, "buffer_pop_seconds", telemetry.Labels{"partition": b.partitionTag})
	defer timer.Stop()

	top, ok := b.queue.Top()
	if !ok {
		return nil, ErrStackEmpty
	}
	pair := top.key
	envelope, err := top.value.Pop(ctx)
	if err != nil {
		return nil, NewStackError(err)
	}

	empty, err := top.value.IsEmpty(ctx)
	if err != nil {
		return nil, NewStackError(err)
	}
	if empty {
		b.popStack(pair)
	} else {
		next, found, err := top.value.Peek(ctx)
		if err != nil {
			return nil, NewStackError(err)
		}
		assert(found, "stack reported non-empty but peek found nothing")
		b.queue.UpdatePriority(pair, priorityForReceivedAt(top.priority, next.ReceivedAt()))
	}

	b.totalCount--
	if b.trackedCount > 0 {
		b.trackedCount--
	}
	b.trackTotalCount()
	return envelope, nil
}

// MarkReady flips the readiness flag for project across every pair it
// participates in, re-sorting their queue entries. It returns true if at
// least one pair's priority changed.
func (b *EnvelopeBuffer[S, P]) MarkReady(project ProjectKey, ready bool) bool {
	changed := false
	for pair := range b.stacksByProject[project] {
		item, ok := b.queue.Get(pair)
		if !ok {
			continue
		}
		found := false
		priority := item.priority
		if pair.OwnKey == project {
			if priority.Readiness.ownProjectReady != ready {
				priority.Readiness.ownProjectReady = ready
				changed = true
			}
			found = true
		}
		if pair.SamplingKey == project {
			if priority.Readiness.samplingProjectReady != ready {
				priority.Readiness.samplingProjectReady = ready
				changed = true
			}
			found = true
		}
		assert(found, "project key not present in either slot of its own pair")
		b.queue.UpdatePriority(pair, priority)
	}
	return changed
}

// MarkSeen records that pair's project configuration was just fetched,
// deferring the next fetch attempt by cooldown.
func (b *EnvelopeBuffer[S, P]) MarkSeen(pair ProjectKeyPair, cooldown time.Duration) {
	item, ok := b.queue.Get(pair)
	if !ok {
		return
	}
	priority := item.priority
	priority.NextProjectFetch = time.Now().Add(cooldown)
	b.queue.UpdatePriority(pair, priority)
}

// HasCapacity reports whether the backing provider can accept more
// envelopes.
func (b *EnvelopeBuffer[S, P]) HasCapacity() bool {
	return b.provider.HasCapacity()
}

// ItemCount returns the in-process tracked envelope count (may drift from
// the store's authoritative count; see spec.md §3 on tracked_count).
func (b *EnvelopeBuffer[S, P]) ItemCount() uint64 {
	return b.trackedCount
}

// StackCount returns the number of distinct project key pairs currently
// queued.
func (b *EnvelopeBuffer[S, P]) StackCount() int {
	return b.queue.Count()
}

// Flush drains every stack and hands them to the provider for a
// best-effort persist, emptying the buffer.
func (b *EnvelopeBuffer[S, P]) Flush(ctx context.Context) {
	stacks := b.queue.Drain()
	b.provider.Flush(ctx, stacks)
	b.stacksByProject = make(map[ProjectKey]map[ProjectKeyPair]struct{})
}

// pushStack creates a new stack for pair, optionally pushing an initial
// envelope, and inserts it into both the priority queue and the reverse
// index. It is the only place a stack is added to the buffer.
//
// If the initial push fails, the queue entry and reverse index just
// created are rolled back rather than left as a dangling empty stack, per
// the push contract's failure-atomicity requirement.
func (b *EnvelopeBuffer[S, P]) pushStack(ctx context.Context, creationType StackCreationType, pair ProjectKeyPair, initial *Envelope) (*queueItem[S], error) {
	stack := b.provider.CreateStack(creationType, pair)
	receivedAt := time.Now()
	var pushErr error
	if initial != nil {
		receivedAt = (*initial).ReceivedAt()
		pushErr = stack.Push(ctx, *initial)
	}

	b.queue.Insert(pair, stack, NewPriority(receivedAt))
	for _, key := range pair.Iter() {
		if b.stacksByProject[key] == nil {
			b.stacksByProject[key] = make(map[ProjectKeyPair]struct{})
		}
		b.stacksByProject[key][pair] = struct{}{}
	}
	telemetry.SetGauge(b.meter, "buffer_stack_count", telemetry.Labels{"partition": b.partitionTag}, float64(b.queue.Count()))

	if pushErr != nil {
		b.popStack(pair)
		b.logger.Error("rolled back new stack after initial push failed", map[string]any{
			"partition": b.partitionTag,
			"error":     pushErr.Error(),
		})
		return nil, pushErr
	}
	item, _ := b.queue.Get(pair)
	return item, nil
}

// popStack removes pair's now-empty stack from both the priority queue and
// the reverse index. It is the only place a stack is removed.
func (b *EnvelopeBuffer[S, P]) popStack(pair ProjectKeyPair) {
	for _, key := range pair.Iter() {
		pairs := b.stacksByProject[key]
		_, ok := pairs[pair]
		assert(ok, "project key is missing from reverse index")
		delete(pairs, pair)
		if len(pairs) == 0 {
			delete(b.stacksByProject, key)
		}
	}
	b.queue.Remove(pair)
	telemetry.SetGauge(b.meter, "buffer_stack_count", telemetry.Labels{"partition": b.partitionTag}, float64(b.queue.Count()))
}

// trackTotalCount reports the current total envelope count as a
// histogram observation, tagged by whether it reflects an authoritative
// store-derived baseline.
func (b *EnvelopeBuffer[S, P]) trackTotalCount() {
	telemetry.ObserveHistogram(b.meter, "buffer_envelopes_total", telemetry.Labels{
		"partition":   b.partitionTag,
		"stack_type":  b.provider.StackType(),
		"initialized": boolString(b.totalCountInitialized),
	}, float64(b.totalCount), telemetry.DefaultHistogramBuckets())
}

func boolString(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
