// Package storetest is a conformance suite every store.Store backend must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aridsondez/queuestore/internal/queue"
	"github.com/aridsondez/queuestore/internal/queue/store"
)

// Factory returns an initialised, empty store for one subtest.
type Factory func(t *testing.T) store.Store

// Run exercises the queue and message contracts against the stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"QueueRoundTrip", testQueueRoundTrip},
		{"QueueDuplicate", testQueueDuplicate},
		{"QueueUpdate", testQueueUpdate},
		{"QueueList", testQueueList},
		{"LookupMissing", testLookupMissing},
		{"Cascade", testCascade},
		{"PersistUnresolvedTimeout", testPersistUnresolved},
		{"PersistMissingQueue", testPersistMissingQueue},
		{"PersistDuplicateMessage", testPersistDuplicateMessage},
		{"MessageRoundTrip", testMessageRoundTrip},
		{"MessageUpdate", testMessageUpdate},
		{"DeleteMessageIdempotent", testDeleteMessageIdempotent},
		{"PendingBoundary", testPendingBoundary},
		{"PendingScopedToQueue", testPendingScopedToQueue},
		{"PendingAnyEligible", testPendingAnyEligible},
		{"ClaimStaleObservation", testClaimStale},
		{"ClaimExclusive", testClaimExclusive},
		{"ClaimReclaimCycle", testClaimReclaimCycle},
		{"DeleteAfterProcessing", testDeleteAfterProcessing},
		{"InitIdempotent", testInitIdempotent},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func ms(n int64) time.Time { return time.UnixMilli(n) }

func mustPersistQueue(t *testing.T, s store.Store, q queue.Queue) {
	t.Helper()
	if err := s.PersistQueue(context.Background(), q); err != nil {
		t.Fatalf("PersistQueue(%s): %v", q.Name, err)
	}
}

func mustPersistMessage(t *testing.T, s store.Store, m queue.Message) {
	t.Helper()
	if err := s.PersistMessage(context.Background(), m); err != nil {
		t.Fatalf("PersistMessage(%s): %v", m.ID, err)
	}
}

func assertMessage(t *testing.T, got, want queue.Message) {
	t.Helper()
	if got.ID != want.ID || got.Queue != want.Queue || got.Content != want.Content ||
		got.VisibilityTimeout != want.VisibilityTimeout || !got.LastDelivered.Equal(want.LastDelivered) {
		t.Fatalf("message = %+v, want %+v", got, want)
	}
}

func lastDelivered(t *testing.T, s store.Store, id string) int64 {
	t.Helper()
	m, ok, err := s.LookupMessage(context.Background(), id)
	if err != nil {
		t.Fatalf("LookupMessage(%s): %v", id, err)
	}
	if !ok {
		t.Fatalf("LookupMessage(%s): not found", id)
	}
	return queue.EpochMillis(m.LastDelivered)
}

func seed(t *testing.T, s store.Store) queue.Message {
	t.Helper()
	mustPersistQueue(t, s, queue.Queue{Name: "q", DefaultVisibilityTimeout: 30 * time.Second})
	m := queue.Message{ID: "m1", Queue: "q", Content: "hello", VisibilityTimeout: time.Second}
	mustPersistMessage(t, s, m)
	return m
}

func testQueueRoundTrip(t *testing.T, s store.Store) {
	want := queue.Queue{Name: "q", DefaultVisibilityTimeout: 30 * time.Second}
	mustPersistQueue(t, s, want)

	got, ok, err := s.LookupQueue(context.Background(), "q")
	if err != nil {
		t.Fatalf("LookupQueue: %v", err)
	}
	if !ok || got != want {
		t.Fatalf("LookupQueue = %+v, %v; want %+v, true", got, ok, want)
	}
}

func testQueueDuplicate(t *testing.T, s store.Store) {
	mustPersistQueue(t, s, queue.Queue{Name: "q", DefaultVisibilityTimeout: time.Second})
	err := s.PersistQueue(context.Background(), queue.Queue{Name: "q", DefaultVisibilityTimeout: 2 * time.Second})
	if !errors.Is(err, queue.ErrDuplicate) {
		t.Fatalf("PersistQueue duplicate error = %v, want ErrDuplicate", err)
	}
}

func testQueueUpdate(t *testing.T, s store.Store) {
	ctx := context.Background()
	mustPersistQueue(t, s, queue.Queue{Name: "q", DefaultVisibilityTimeout: time.Second})

	updated := queue.Queue{Name: "q", DefaultVisibilityTimeout: 45 * time.Second}
	if err := s.UpdateQueue(ctx, updated); err != nil {
		t.Fatalf("UpdateQueue: %v", err)
	}
	got, _, err := s.LookupQueue(ctx, "q")
	if err != nil {
		t.Fatalf("LookupQueue: %v", err)
	}
	if got != updated {
		t.Fatalf("LookupQueue after update = %+v, want %+v", got, updated)
	}

	err = s.UpdateQueue(ctx, queue.Queue{Name: "absent", DefaultVisibilityTimeout: time.Second})
	if !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("UpdateQueue absent error = %v, want ErrNotFound", err)
	}
}

func testQueueList(t *testing.T, s store.Store) {
	names := map[string]time.Duration{"a": time.Second, "b": 2 * time.Second, "c": 3 * time.Second}
	for name, d := range names {
		mustPersistQueue(t, s, queue.Queue{Name: name, DefaultVisibilityTimeout: d})
	}
	qs, err := s.ListQueues(context.Background())
	if err != nil {
		t.Fatalf("ListQueues: %v", err)
	}
	if len(qs) != len(names) {
		t.Fatalf("ListQueues returned %d queues, want %d", len(qs), len(names))
	}
	for _, q := range qs {
		if d, ok := names[q.Name]; !ok || d != q.DefaultVisibilityTimeout {
			t.Fatalf("unexpected queue %+v", q)
		}
	}
}

func testLookupMissing(t *testing.T, s store.Store) {
	ctx := context.Background()
	if _, ok, err := s.LookupQueue(ctx, "nope"); err != nil || ok {
		t.Fatalf("LookupQueue(nope) = ok %v, err %v; want false, nil", ok, err)
	}
	if _, ok, err := s.LookupMessage(ctx, "nope"); err != nil || ok {
		t.Fatalf("LookupMessage(nope) = ok %v, err %v; want false, nil", ok, err)
	}
	if _, ok, err := s.LookupPending(ctx, "nope", ms(1_000_000)); err != nil || ok {
		t.Fatalf("LookupPending(nope) = ok %v, err %v; want false, nil", ok, err)
	}
}

func testCascade(t *testing.T, s store.Store) {
	ctx := context.Background()
	seed(t, s)
	mustPersistMessage(t, s, queue.Message{ID: "m2", Queue: "q", VisibilityTimeout: time.Second})

	if err := s.DeleteQueue(ctx, "q"); err != nil {
		t.Fatalf("DeleteQueue: %v", err)
	}
	for _, id := range []string{"m1", "m2"} {
		if _, ok, err := s.LookupMessage(ctx, id); err != nil || ok {
			t.Fatalf("LookupMessage(%s) after queue delete = ok %v, err %v", id, ok, err)
		}
	}
	if _, ok, _ := s.LookupQueue(ctx, "q"); ok {
		t.Fatalf("queue still present after delete")
	}
	if err := s.DeleteQueue(ctx, "q"); err != nil {
		t.Fatalf("DeleteQueue of absent queue: %v", err)
	}
}

func testPersistUnresolved(t *testing.T, s store.Store) {
	mustPersistQueue(t, s, queue.Queue{Name: "q", DefaultVisibilityTimeout: time.Second})
	err := s.PersistMessage(context.Background(), queue.Message{
		ID:                "m1",
		Queue:             "q",
		VisibilityTimeout: queue.UseQueueDefault,
	})
	if !errors.Is(err, queue.ErrInvalidArgument) {
		t.Fatalf("PersistMessage unresolved error = %v, want ErrInvalidArgument", err)
	}
	if _, ok, _ := s.LookupMessage(context.Background(), "m1"); ok {
		t.Fatalf("unresolved message reached storage")
	}
}

func testPersistMissingQueue(t *testing.T, s store.Store) {
	err := s.PersistMessage(context.Background(), queue.Message{ID: "m1", Queue: "ghost", VisibilityTimeout: time.Second})
	if !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("PersistMessage without queue error = %v, want ErrNotFound", err)
	}
}

func testPersistDuplicateMessage(t *testing.T, s store.Store) {
	m := seed(t, s)
	if err := s.PersistMessage(context.Background(), m); !errors.Is(err, queue.ErrDuplicate) {
		t.Fatalf("PersistMessage duplicate error = %v, want ErrDuplicate", err)
	}
}

func testMessageRoundTrip(t *testing.T, s store.Store) {
	mustPersistQueue(t, s, queue.Queue{Name: "q", DefaultVisibilityTimeout: time.Second})
	want := queue.Message{
		ID:                "m1",
		Queue:             "q",
		Content:           `{"order":42}`,
		VisibilityTimeout: 2500 * time.Millisecond,
		LastDelivered:     ms(1_700_000_000_000),
	}
	mustPersistMessage(t, s, want)

	got, ok, err := s.LookupMessage(context.Background(), "m1")
	if err != nil || !ok {
		t.Fatalf("LookupMessage = ok %v, err %v", ok, err)
	}
	assertMessage(t, got, want)
}

func testMessageUpdate(t *testing.T, s store.Store) {
	ctx := context.Background()
	m := seed(t, s)

	m.Content = "changed"
	m.VisibilityTimeout = 5 * time.Second
	m.LastDelivered = ms(700)
	if err := s.UpdateMessage(ctx, m); err != nil {
		t.Fatalf("UpdateMessage: %v", err)
	}
	got, _, err := s.LookupMessage(ctx, m.ID)
	if err != nil {
		t.Fatalf("LookupMessage: %v", err)
	}
	assertMessage(t, got, m)

	unresolved := m
	unresolved.VisibilityTimeout = queue.UseQueueDefault
	if err := s.UpdateMessage(ctx, unresolved); !errors.Is(err, queue.ErrInvalidArgument) {
		t.Fatalf("UpdateMessage unresolved error = %v, want ErrInvalidArgument", err)
	}

	absent := queue.Message{ID: "absent", Queue: "q", VisibilityTimeout: time.Second}
	if err := s.UpdateMessage(ctx, absent); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("UpdateMessage absent error = %v, want ErrNotFound", err)
	}
}

func testDeleteMessageIdempotent(t *testing.T, s store.Store) {
	ctx := context.Background()
	seed(t, s)
	for i := 0; i < 2; i++ {
		if err := s.DeleteMessage(ctx, "m1"); err != nil {
			t.Fatalf("DeleteMessage #%d: %v", i+1, err)
		}
	}
	if _, ok, _ := s.LookupMessage(ctx, "m1"); ok {
		t.Fatalf("message still present after delete")
	}
}

func testPendingBoundary(t *testing.T, s store.Store) {
	ctx := context.Background()
	m := seed(t, s)

	if _, ok, err := s.LookupPending(ctx, "q", ms(999)); err != nil || ok {
		t.Fatalf("LookupPending(999) = ok %v, err %v; want empty", ok, err)
	}
	got, ok, err := s.LookupPending(ctx, "q", ms(1000))
	if err != nil || !ok {
		t.Fatalf("LookupPending(1000) = ok %v, err %v; want m1", ok, err)
	}
	assertMessage(t, got, m)
}

func testPendingScopedToQueue(t *testing.T, s store.Store) {
	seed(t, s)
	mustPersistQueue(t, s, queue.Queue{Name: "other", DefaultVisibilityTimeout: time.Second})
	if _, ok, err := s.LookupPending(context.Background(), "other", ms(10_000)); err != nil || ok {
		t.Fatalf("LookupPending(other) = ok %v, err %v; want empty", ok, err)
	}
}

func testPendingAnyEligible(t *testing.T, s store.Store) {
	mustPersistQueue(t, s, queue.Queue{Name: "q", DefaultVisibilityTimeout: time.Second})
	eligible := map[string]bool{}
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("m%d", i)
		mustPersistMessage(t, s, queue.Message{ID: id, Queue: "q", VisibilityTimeout: time.Second})
		eligible[id] = true
	}
	// in flight until 10s
	mustPersistMessage(t, s, queue.Message{ID: "busy", Queue: "q", VisibilityTimeout: time.Second, LastDelivered: ms(9000)})

	got, ok, err := s.LookupPending(context.Background(), "q", ms(5000))
	if err != nil || !ok {
		t.Fatalf("LookupPending = ok %v, err %v", ok, err)
	}
	if !eligible[got.ID] {
		t.Fatalf("LookupPending returned %s, want one of %v", got.ID, eligible)
	}
}

func testClaimStale(t *testing.T, s store.Store) {
	ctx := context.Background()
	m := seed(t, s)

	stale := m
	stale.LastDelivered = ms(123)
	if _, ok, err := s.UpdateLastDelivered(ctx, stale, ms(500)); err != nil || ok {
		t.Fatalf("UpdateLastDelivered with stale observation = ok %v, err %v; want false, nil", ok, err)
	}
	if got := lastDelivered(t, s, m.ID); got != 0 {
		t.Fatalf("last delivered = %d, want 0", got)
	}

	missing := queue.Message{ID: "ghost", Queue: "q"}
	if _, ok, err := s.UpdateLastDelivered(ctx, missing, ms(500)); err != nil || ok {
		t.Fatalf("UpdateLastDelivered on missing message = ok %v, err %v; want false, nil", ok, err)
	}
}

func testClaimExclusive(t *testing.T, s store.Store) {
	ctx := context.Background()
	m := seed(t, s)

	const consumers = 8
	start := make(chan struct{})
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins []queue.Message
	)
	for i := 0; i < consumers; i++ {
		wg.Add(1)
		go func(consumer int) {
			defer wg.Done()
			<-start
			claimed, ok, err := s.UpdateLastDelivered(ctx, m, ms(500))
			if err != nil {
				t.Errorf("consumer-%d UpdateLastDelivered: %v", consumer, err)
				return
			}
			if ok {
				mu.Lock()
				wins = append(wins, claimed)
				mu.Unlock()
			}
		}(i)
	}
	close(start)
	wg.Wait()

	if len(wins) != 1 {
		t.Fatalf("%d consumers won the claim, want exactly 1", len(wins))
	}
	if got := queue.EpochMillis(wins[0].LastDelivered); got != 500 {
		t.Fatalf("claimed last delivered = %d, want 500", got)
	}
	if got := lastDelivered(t, s, m.ID); got != 500 {
		t.Fatalf("stored last delivered = %d, want 500", got)
	}
}

func testClaimReclaimCycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	m := seed(t, s)

	claimed, ok, err := s.UpdateLastDelivered(ctx, m, ms(500))
	if err != nil || !ok {
		t.Fatalf("first claim = ok %v, err %v", ok, err)
	}
	if _, ok, err := s.LookupPending(ctx, "q", ms(1400)); err != nil || ok {
		t.Fatalf("LookupPending(1400) = ok %v, err %v; want in flight", ok, err)
	}
	again, ok, err := s.LookupPending(ctx, "q", ms(1500))
	if err != nil || !ok {
		t.Fatalf("LookupPending(1500) = ok %v, err %v; want m1", ok, err)
	}
	assertMessage(t, again, claimed)

	// The first claim's observation is now stale.
	if _, ok, _ := s.UpdateLastDelivered(ctx, m, ms(1500)); ok {
		t.Fatalf("claim with stale observation succeeded")
	}
	if _, ok, err := s.UpdateLastDelivered(ctx, again, ms(1500)); err != nil || !ok {
		t.Fatalf("re-claim = ok %v, err %v", ok, err)
	}
	if got := lastDelivered(t, s, m.ID); got != 1500 {
		t.Fatalf("stored last delivered = %d, want 1500", got)
	}
}

func testDeleteAfterProcessing(t *testing.T, s store.Store) {
	ctx := context.Background()
	m := seed(t, s)

	if _, ok, err := s.UpdateLastDelivered(ctx, m, ms(500)); err != nil || !ok {
		t.Fatalf("claim = ok %v, err %v", ok, err)
	}
	if err := s.DeleteMessage(ctx, m.ID); err != nil {
		t.Fatalf("DeleteMessage: %v", err)
	}
	if _, ok, err := s.LookupMessage(ctx, m.ID); err != nil || ok {
		t.Fatalf("LookupMessage after delete = ok %v, err %v", ok, err)
	}
	for _, now := range []int64{1000, 1500, 1_000_000} {
		if _, ok, err := s.LookupPending(ctx, "q", ms(now)); err != nil || ok {
			t.Fatalf("LookupPending(%d) after delete = ok %v, err %v", now, ok, err)
		}
	}
}

func testInitIdempotent(t *testing.T, s store.Store) {
	ctx := context.Background()
	seed(t, s)
	for i := 0; i < 2; i++ {
		if err := s.Init(ctx, true); err != nil {
			t.Fatalf("Init #%d on existing schema: %v", i+1, err)
		}
	}
	if err := s.Init(ctx, false); err != nil {
		t.Fatalf("Init without schema creation: %v", err)
	}
	if _, ok, err := s.LookupMessage(ctx, "m1"); err != nil || !ok {
		t.Fatalf("data lost across Init: ok %v, err %v", ok, err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
