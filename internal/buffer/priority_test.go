package buffer

import (
	"testing"
	"time"
)

func readyPriority(receivedAt time.Time) Priority {
	return Priority{Readiness: NewReadiness(), ReceivedAt: receivedAt}
}

func notReadyPriority(receivedAt, nextFetch time.Time) Priority {
	return Priority{
		Readiness:        Readiness{},
		ReceivedAt:       receivedAt,
		NextProjectFetch: nextFetch,
	}
}

func TestPriorityReadyOrdersByReceivedAtAscending(t *testing.T) {
	base := time.Unix(1000, 0)
	older := readyPriority(base)
	newer := readyPriority(base.Add(time.Minute))

	if !older.Less(newer) {
		t.Fatalf("expected older envelope to sort before newer")
	}
	if newer.Less(older) {
		t.Fatalf("expected newer envelope not to sort before older")
	}
}

func TestPriorityReadyAlwaysBeatsNotReady(t *testing.T) {
	base := time.Unix(1000, 0)
	ready := readyPriority(base.Add(time.Hour))              // much newer
	notReady := notReadyPriority(base, base.Add(time.Second)) // much older

	if ready.Less(notReady) {
		t.Fatalf("ready entry must never sort before a not-ready entry")
	}
	if !notReady.Less(ready) {
		t.Fatalf("not-ready entry must sort before a ready entry regardless of age")
	}
}

func TestPriorityNotReadyOrdersByNextProjectFetchDescendingThenReceivedAtDescending(t *testing.T) {
	base := time.Unix(1000, 0)

	soonFetch := notReadyPriority(base, base.Add(time.Second))
	laterFetch := notReadyPriority(base, base.Add(time.Minute))

	// Among not-ready entries the ordering inverts relative to the ready
	// case: the entry with the later next_project_fetch sorts first.
	if !laterFetch.Less(soonFetch) {
		t.Fatalf("entry with later next_project_fetch must sort first among not-ready entries")
	}
	if soonFetch.Less(laterFetch) {
		t.Fatalf("entry with sooner next_project_fetch must not sort first among not-ready entries")
	}

	sameFetch := base.Add(time.Second)
	older := notReadyPriority(base, sameFetch)
	newer := notReadyPriority(base.Add(time.Minute), sameFetch)

	// Tie on next_project_fetch: newer received_at sorts first.
	if !newer.Less(older) {
		t.Fatalf("when next_project_fetch ties, newer received_at must sort first")
	}
}

func TestPriorityIsATotalOrderNoSelfLess(t *testing.T) {
	p := readyPriority(time.Unix(1, 0))
	if p.Less(p) {
		t.Fatalf("a priority must never sort before itself")
	}
}
