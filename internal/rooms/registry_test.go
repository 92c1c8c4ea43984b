package rooms

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

func TestRegistry_FirstJoinOpensSubscription(t *testing.T) {
	r := NewRegistry()

	if !r.Join("l1", "s1") {
		t.Fatal("first join should report wasFirst")
	}
	if !r.Subscribed("l1") {
		t.Fatal("room should be subscribed after first join")
	}
	if r.Join("l1", "s2") {
		t.Fatal("second session joining must not report wasFirst")
	}
}

func TestRegistry_JoinIsIdempotent(t *testing.T) {
	r := NewRegistry()

	r.Join("l1", "s1")
	if r.Join("l1", "s1") {
		t.Fatal("re-join of same session must not report wasFirst")
	}
	if got := len(r.Members("l1")); got != 1 {
		t.Fatalf("members = %d, want 1", got)
	}
}

func TestRegistry_LastLeaveClosesSubscription(t *testing.T) {
	r := NewRegistry()

	r.Join("l1", "s1")
	r.Join("l1", "s2")

	if r.Leave("l1", "s1") {
		t.Fatal("leave with another session remaining must not report empty")
	}
	if !r.Subscribed("l1") {
		t.Fatal("room should stay subscribed while s2 remains")
	}
	if !r.Leave("l1", "s2") {
		t.Fatal("last leave should report isNowEmpty")
	}
	if r.Subscribed("l1") {
		t.Fatal("empty room must not hold a subscription")
	}
}

func TestRegistry_LeaveUnknownIsNoOp(t *testing.T) {
	r := NewRegistry()

	if r.Leave("l1", "s1") {
		t.Fatal("leave of unknown room must be a no-op")
	}
	r.Join("l1", "s1")
	if r.Leave("l1", "ghost") {
		t.Fatal("leave of non-member must be a no-op")
	}
	if !r.Subscribed("l1") {
		t.Fatal("no-op leave must not tear down the subscription")
	}
}

func TestRegistry_RoomRecreatedAfterEmpty(t *testing.T) {
	r := NewRegistry()

	r.Join("l1", "s1")
	r.Leave("l1", "s1")

	if !r.Join("l1", "s2") {
		t.Fatal("join after room emptied should report wasFirst again")
	}
	if got := len(r.Members("l1")); got != 1 {
		t.Fatalf("members = %d, want 1", got)
	}
}

// The subscription invariant must hold for any interleaving: wasFirst and
// isNowEmpty transitions are observed exactly once per empty<->active cycle.
func TestRegistry_ConcurrentJoinLeaveObservesTransitionsOnce(t *testing.T) {
	r := NewRegistry()

	const sessions = 64
	var firsts, empties atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("s%d", i)
			if r.Join("l1", id) {
				firsts.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if firsts.Load() != 1 {
		t.Fatalf("wasFirst observed %d times, want exactly 1", firsts.Load())
	}

	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("s%d", i)
			if r.Leave("l1", id) {
				empties.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if empties.Load() != 1 {
		t.Fatalf("isNowEmpty observed %d times, want exactly 1", empties.Load())
	}
	if r.Subscribed("l1") {
		t.Fatal("drained room must not hold a subscription")
	}
}

// Hammer join/leave cycles concurrently; afterwards the subscription state
// must match membership for every room touched.
func TestRegistry_InvariantUnderChurn(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			id := fmt.Sprintf("s%d", w)
			for i := 0; i < 200; i++ {
				live := fmt.Sprintf("l%d", i%3)
				r.Join(live, id)
				r.Leave(live, id)
			}
		}(w)
	}
	wg.Wait()

	for i := 0; i < 3; i++ {
		live := fmt.Sprintf("l%d", i)
		members := len(r.Members(live))
		subscribed := r.Subscribed(live)
		if (members > 0) != subscribed {
			t.Fatalf("%s: members=%d subscribed=%v, invariant violated", live, members, subscribed)
		}
		if members != 0 {
			t.Fatalf("%s: %d members left after churn, want 0", live, members)
		}
	}
}
