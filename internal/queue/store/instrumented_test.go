package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/aridsondez/queuestore/internal/metrics"
	"github.com/aridsondez/queuestore/internal/queue"
	"github.com/aridsondez/queuestore/internal/queue/store"
	"github.com/aridsondez/queuestore/internal/queue/store/sqlstore"
	"github.com/aridsondez/queuestore/internal/testutil/database"
)

func TestInstrumentRecordsClaims(t *testing.T) {
	ctx := context.Background()
	s := store.Instrument(sqlstore.New(database.OpenSQLite(t), sqlstore.SQLite))
	if err := s.Init(ctx, true); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if again := store.Instrument(s); again != s {
		t.Fatalf("Instrument wrapped an instrumented store twice")
	}

	const q = "instrumented-q"
	if err := s.PersistQueue(ctx, queue.Queue{Name: q, DefaultVisibilityTimeout: time.Second}); err != nil {
		t.Fatalf("PersistQueue: %v", err)
	}
	m := queue.Message{ID: "instrumented-m1", Queue: q, VisibilityTimeout: time.Second}
	if err := s.PersistMessage(ctx, m); err != nil {
		t.Fatalf("PersistMessage: %v", err)
	}
	if got := testutil.ToFloat64(metrics.MessagesPersisted.WithLabelValues(q)); got != 1 {
		t.Fatalf("messages persisted = %v, want 1", got)
	}

	if _, _, err := s.LookupPending(ctx, q, time.UnixMilli(10)); err != nil {
		t.Fatalf("LookupPending: %v", err)
	}
	if _, _, err := s.LookupPending(ctx, q, time.UnixMilli(5000)); err != nil {
		t.Fatalf("LookupPending: %v", err)
	}
	if got := testutil.ToFloat64(metrics.PendingLookups.WithLabelValues(q, "empty")); got != 1 {
		t.Fatalf("empty lookups = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.PendingLookups.WithLabelValues(q, "hit")); got != 1 {
		t.Fatalf("hit lookups = %v, want 1", got)
	}

	if _, ok, err := s.UpdateLastDelivered(ctx, m, time.UnixMilli(5000)); err != nil || !ok {
		t.Fatalf("first claim = ok %v, err %v", ok, err)
	}
	if _, ok, err := s.UpdateLastDelivered(ctx, m, time.UnixMilli(5000)); err != nil || ok {
		t.Fatalf("second claim = ok %v, err %v", ok, err)
	}
	if got := testutil.ToFloat64(metrics.Claims.WithLabelValues(q, "won")); got != 1 {
		t.Fatalf("claims won = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.Claims.WithLabelValues(q, "lost")); got != 1 {
		t.Fatalf("claims lost = %v, want 1", got)
	}

	before := testutil.ToFloat64(metrics.StoreErrors.WithLabelValues("persist_message"))
	_ = s.PersistMessage(ctx, queue.Message{ID: "x", Queue: q, VisibilityTimeout: queue.UseQueueDefault})
	if got := testutil.ToFloat64(metrics.StoreErrors.WithLabelValues("persist_message")); got != before+1 {
		t.Fatalf("persist errors = %v, want %v", got, before+1)
	}
}
