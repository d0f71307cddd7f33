package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/aridsondez/queuestore/internal/api"
	"github.com/aridsondez/queuestore/internal/queue"
	"github.com/aridsondez/queuestore/internal/queue/store"
	"github.com/aridsondez/queuestore/internal/queue/store/sqlstore"
	"github.com/aridsondez/queuestore/internal/testutil/database"
)

func newTestHandler(t *testing.T) (http.Handler, store.Store) {
	t.Helper()
	s := store.Instrument(sqlstore.New(database.OpenSQLite(t), sqlstore.SQLite))
	if err := s.Init(context.Background(), true); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return api.NewServer(":0", s, zerolog.Nop()).Handler, s
}

func do(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := do(t, h, "/healthz")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("GET /healthz = %d %q", rec.Code, rec.Body.String())
	}
}

func TestHealthzStoreDown(t *testing.T) {
	h, s := newTestHandler(t)
	if err := s.Close(context.Background(), false); err != nil {
		t.Fatalf("Close: %v", err)
	}
	rec := do(t, h, "/healthz")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("GET /healthz on closed store = %d, want 503", rec.Code)
	}
}

func TestQueueInspection(t *testing.T) {
	h, s := newTestHandler(t)
	ctx := context.Background()
	for _, q := range []queue.Queue{
		{Name: "orders", DefaultVisibilityTimeout: 30 * time.Second},
		{Name: "emails", DefaultVisibilityTimeout: time.Second},
	} {
		if err := s.PersistQueue(ctx, q); err != nil {
			t.Fatalf("PersistQueue: %v", err)
		}
	}

	rec := do(t, h, "/admin/queues")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /admin/queues = %d", rec.Code)
	}
	var list []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("listed %d queues, want 2", len(list))
	}

	rec = do(t, h, "/admin/queues/orders")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /admin/queues/orders = %d", rec.Code)
	}
	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode queue: %v", err)
	}
	if got["name"] != "orders" || got["default_visibility_timeout_ms"] != float64(30000) {
		t.Fatalf("unexpected queue body: %v", got)
	}

	rec = do(t, h, "/admin/queues/missing")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("GET /admin/queues/missing = %d, want 404", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h, s := newTestHandler(t)
	if err := s.PersistQueue(context.Background(), queue.Queue{Name: "metrics-q"}); err != nil {
		t.Fatalf("PersistQueue: %v", err)
	}
	rec := do(t, h, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "queuestore_queue_ops_total") {
		t.Fatalf("metrics output missing queuestore_queue_ops_total")
	}
}
