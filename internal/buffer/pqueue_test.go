package buffer

import (
	"testing"
	"time"
)

func pair(own, sampling string) ProjectKeyPair {
	return NewProjectKeyPair(ProjectKey(own), ProjectKey(sampling))
}

func TestPriorityQueueInsertTopRemove(t *testing.T) {
	q := newPriorityQueue[*MemoryStack]()
	base := time.Unix(1000, 0)

	a := pair("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	b := pair("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	q.Insert(a, NewMemoryStack(), NewPriority(base.Add(time.Minute)))
	q.Insert(b, NewMemoryStack(), NewPriority(base))

	if q.Count() != 2 {
		t.Fatalf("expected 2 items, got %d", q.Count())
	}

	top, ok := q.Top()
	if !ok {
		t.Fatalf("expected a top item")
	}
	if top.key != a {
		t.Fatalf("expected pair a (newer) to be on top, got %v", top.key)
	}

	removed, ok := q.Remove(a)
	if !ok {
		t.Fatalf("expected to remove pair a")
	}
	if removed == nil {
		t.Fatalf("expected non-nil removed stack")
	}
	if q.Count() != 1 {
		t.Fatalf("expected 1 item after removal, got %d", q.Count())
	}

	top, ok = q.Top()
	if !ok || top.key != b {
		t.Fatalf("expected pair b to be the sole remaining top item")
	}
}

func TestPriorityQueueUpdatePriorityReordersHeap(t *testing.T) {
	q := newPriorityQueue[*MemoryStack]()
	base := time.Unix(1000, 0)

	a := pair("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	b := pair("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	q.Insert(a, NewMemoryStack(), NewPriority(base))
	q.Insert(b, NewMemoryStack(), NewPriority(base.Add(time.Minute)))

	top, _ := q.Top()
	if top.key != b {
		t.Fatalf("expected b (newer) on top initially")
	}

	// Push a's received_at far into the future; a should become the top.
	if !q.UpdatePriority(a, NewPriority(base.Add(time.Hour))) {
		t.Fatalf("expected UpdatePriority to find key a")
	}
	top, _ = q.Top()
	if top.key != a {
		t.Fatalf("expected a on top after its priority moved later, got %v", top.key)
	}
}

func TestPriorityQueueGetMissingKey(t *testing.T) {
	q := newPriorityQueue[*MemoryStack]()
	if _, ok := q.Get(pair("cccccccccccccccccccccccccccccccc", "cccccccccccccccccccccccccccccccc")); ok {
		t.Fatalf("expected Get on an empty queue to report not-found")
	}
}

func TestPriorityQueueDrainEmptiesQueue(t *testing.T) {
	q := newPriorityQueue[*MemoryStack]()
	a := pair("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	q.Insert(a, NewMemoryStack(), NewPriority(time.Unix(1, 0)))

	drained := q.Drain()
	if len(drained) != 1 {
		t.Fatalf("expected 1 drained entry, got %d", len(drained))
	}
	if _, ok := drained[a]; !ok {
		t.Fatalf("expected drained map to contain pair a")
	}
	if q.Count() != 0 {
		t.Fatalf("expected queue to be empty after drain")
	}
}
