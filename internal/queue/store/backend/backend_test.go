package backend_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/aridsondez/queuestore/internal/queue"
	"github.com/aridsondez/queuestore/internal/queue/store/backend"
)

func TestOpenSQLite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cfg := backend.Config{
		Driver:       backend.DriverSQLite,
		DSN:          "file:" + filepath.Join(t.TempDir(), "backend.db"),
		CreateSchema: true,
		Logger:       zerolog.Nop(),
	}

	s, err := backend.Open(ctx, cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.PersistQueue(ctx, queue.Queue{Name: "q", DefaultVisibilityTimeout: time.Second}); err != nil {
		t.Fatalf("PersistQueue: %v", err)
	}
	if err := s.Close(ctx, false); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopening without schema creation sees the same data.
	cfg.CreateSchema = false
	s, err = backend.Open(ctx, cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = s.Close(ctx, true) }()
	if _, ok, err := s.LookupQueue(ctx, "q"); err != nil || !ok {
		t.Fatalf("LookupQueue after reopen = ok %v, err %v", ok, err)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	_, err := backend.Open(context.Background(), backend.Config{Driver: "oracle", DSN: "x"})
	if err == nil {
		t.Fatal("Open with unknown driver succeeded")
	}
}
