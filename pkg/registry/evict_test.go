package registry

import (
	"context"
	"testing"
	"time"

	"github.com/olta-dev/olta/pkg/lobby"
	"github.com/olta-dev/olta/pkg/store"
)

func withClock(r *Registry) *fakeClock {
	c := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	r.mu.Lock()
	r.now = c.Now
	r.mu.Unlock()
	return c
}

func TestSweep_EvictsIdleSessionsWithoutSubscribers(t *testing.T) {
	p := newFakePersister()
	r := newTestRegistry(t, nil, p, Config{IdleTTL: time.Minute})
	clock := withClock(r)
	ctx := context.Background()

	r.CreateDocument(ctx, "idle", "cubes", cube("1", "2", "3"))
	r.AddSubscriber(ctx, "watched", newFakeSink("s"))

	clock.Advance(30 * time.Second)
	if n := r.Sweep(); n != 0 {
		t.Fatalf("Sweep() before TTL evicted %d", n)
	}

	clock.Advance(time.Minute)
	if n := r.Sweep(); n != 1 {
		t.Fatalf("Sweep() evicted %d, want 1", n)
	}
	if got := r.Stats().HotSessions; got != 1 {
		t.Fatalf("HotSessions = %d, want 1", got)
	}

	reqs := p.requests()
	final := reqs[len(reqs)-1]
	if final.SessionID != "idle" || final.Hot {
		t.Fatalf("final snapshot = %+v, want idle with hot=false", final)
	}
	l, err := lobby.Unmarshal(final.State)
	if err != nil {
		t.Fatal(err)
	}
	if l.Hot || l.DocumentCount() != 1 {
		t.Fatalf("final snapshot lobby = %+v", l)
	}
}

func TestSweep_ReloadPrefersPendingSnapshot(t *testing.T) {
	st := store.NewMemoryStore()
	p := newFakePersister()
	r := newTestRegistry(t, st, p, Config{IdleTTL: time.Minute})
	clock := withClock(r)
	ctx := context.Background()

	r.CreateDocument(ctx, "p1", "cubes", cube("1", "2", "3"))
	r.CreateDocument(ctx, "p1", "cubes", cube("4", "5", "6"))
	r.DeleteDocument(ctx, "p1", "cubes", "2")

	clock.Advance(2 * time.Minute)
	if n := r.Sweep(); n != 1 {
		t.Fatalf("Sweep() evicted %d, want 1", n)
	}

	// The store is still empty: nothing has been written yet.
	id, err := r.CreateDocument(ctx, "p1", "cubes", cube("7", "8", "9"))
	if err != nil {
		t.Fatal(err)
	}
	if id != "3" {
		t.Fatalf("id after reload = %q, want 3", id)
	}
	state, _ := r.FullState(ctx, "p1")
	if len(state["cubes"]) != 2 {
		t.Fatalf("reloaded collection has %d documents, want 2", len(state["cubes"]))
	}
}

func TestSweep_ReloadFromStore(t *testing.T) {
	st := store.NewMemoryStore()
	p := newFakePersister()
	r := newTestRegistry(t, st, p, Config{IdleTTL: time.Minute})
	clock := withClock(r)
	ctx := context.Background()

	r.CreateDocument(ctx, "p1", "cubes", cube("1", "2", "3"))
	clock.Advance(2 * time.Minute)
	r.Sweep()

	reqs := p.requests()
	final := reqs[len(reqs)-1]
	st.Save(ctx, store.Record{SessionID: final.SessionID, State: final.State, Hot: final.Hot})
	p.flush()

	state, err := r.FullState(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if len(state["cubes"]) != 1 {
		t.Fatalf("reloaded collection has %d documents, want 1", len(state["cubes"]))
	}
	if n := len(p.requests()); n != len(reqs) {
		t.Fatal("reloading a stored session enqueued a write")
	}
}

func TestSweep_CapacityEvictsLeastRecentlyUsed(t *testing.T) {
	p := newFakePersister()
	r := newTestRegistry(t, nil, p, Config{MaxHotSessions: 2})
	clock := withClock(r)
	ctx := context.Background()

	r.GetOrLoad(ctx, "a")
	clock.Advance(time.Second)
	r.GetOrLoad(ctx, "b")
	clock.Advance(time.Second)
	r.GetOrLoad(ctx, "a")
	clock.Advance(time.Second)
	r.GetOrLoad(ctx, "c")

	if got := r.Stats().HotSessions; got != 2 {
		t.Fatalf("HotSessions = %d, want 2", got)
	}
	r.mu.Lock()
	_, hasA := r.sessions["a"]
	_, hasB := r.sessions["b"]
	_, hasC := r.sessions["c"]
	r.mu.Unlock()
	if !hasA || hasB || !hasC {
		t.Fatalf("hot = a:%v b:%v c:%v, want a and c", hasA, hasB, hasC)
	}
}

func TestSweep_CapacityNeverEvictsSubscribedOrNewSession(t *testing.T) {
	r := newTestRegistry(t, nil, nil, Config{MaxHotSessions: 1})
	ctx := context.Background()

	if err := r.AddSubscriber(ctx, "a", newFakeSink("s")); err != nil {
		t.Fatal(err)
	}
	id, err := r.CreateDocument(ctx, "b", "cubes", cube("1", "2", "3"))
	if err != nil || id != "1" {
		t.Fatalf("CreateDocument() = %q, %v", id, err)
	}
	if got := r.Stats().HotSessions; got != 2 {
		t.Fatalf("HotSessions = %d, want 2 (cap exceeded by subscribed session)", got)
	}
}

func TestSweep_SkipsWhenEnqueueFails(t *testing.T) {
	p := newFakePersister()
	r := newTestRegistry(t, nil, p, Config{IdleTTL: time.Minute})
	clock := withClock(r)

	r.GetOrLoad(context.Background(), "p1")
	p.mu.Lock()
	p.err = errSinkClosed
	p.mu.Unlock()

	clock.Advance(2 * time.Minute)
	if n := r.Sweep(); n != 0 {
		t.Fatalf("Sweep() evicted %d with a closed persister, want 0", n)
	}
}

func TestRemoveSubscriberMakesSessionEvictable(t *testing.T) {
	r := newTestRegistry(t, nil, nil, Config{IdleTTL: time.Minute})
	clock := withClock(r)
	ctx := context.Background()

	r.AddSubscriber(ctx, "p1", newFakeSink("s"))
	clock.Advance(2 * time.Minute)
	if n := r.Sweep(); n != 0 {
		t.Fatal("subscribed session was evicted")
	}

	r.RemoveSubscriber("p1", "s")
	if n := r.Sweep(); n != 0 {
		t.Fatal("session evicted right after its last subscriber left")
	}
	clock.Advance(2 * time.Minute)
	if n := r.Sweep(); n != 1 {
		t.Fatalf("Sweep() evicted %d, want 1", n)
	}
}
