package client_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aridsondez/queuestore/internal/queue"
	"github.com/aridsondez/queuestore/internal/queue/store"
	"github.com/aridsondez/queuestore/internal/queue/store/sqlstore"
	"github.com/aridsondez/queuestore/internal/testutil/database"
	"github.com/aridsondez/queuestore/pkg/client"
)

func newStore(t *testing.T) store.Store {
	t.Helper()
	s := sqlstore.New(database.OpenSQLite(t), sqlstore.SQLite)
	ctx := context.Background()
	if err := s.Init(ctx, true); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := s.PersistQueue(ctx, queue.Queue{Name: "orders", DefaultVisibilityTimeout: 30 * time.Second}); err != nil {
		t.Fatalf("PersistQueue: %v", err)
	}
	return s
}

func TestEnqueue(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name           string
		opts           *client.EnqueueOptions
		wantVisibility time.Duration
		wantID         string
	}{
		{name: "nil options", opts: nil, wantVisibility: 30 * time.Second},
		{name: "queue default", opts: &client.EnqueueOptions{Visibility: queue.UseQueueDefault}, wantVisibility: 30 * time.Second},
		{name: "explicit", opts: &client.EnqueueOptions{ID: "fixed", Visibility: 5 * time.Second}, wantVisibility: 5 * time.Second, wantID: "fixed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := newStore(t)
			c := client.New(s)
			ctx := context.Background()

			msg, err := c.Enqueue(ctx, "orders", "hello", tt.opts)
			if err != nil {
				t.Fatalf("Enqueue: %v", err)
			}
			if tt.wantID != "" && msg.ID != tt.wantID {
				t.Fatalf("ID = %q, want %q", msg.ID, tt.wantID)
			}
			if msg.ID == "" {
				t.Fatal("empty generated id")
			}

			stored, ok, err := s.LookupMessage(ctx, msg.ID)
			if err != nil || !ok {
				t.Fatalf("LookupMessage: ok=%v err=%v", ok, err)
			}
			if stored.VisibilityTimeout != tt.wantVisibility {
				t.Fatalf("stored visibility = %v, want %v", stored.VisibilityTimeout, tt.wantVisibility)
			}
			if stored.Content != "hello" || stored.Queue != "orders" || !stored.LastDelivered.IsZero() {
				t.Fatalf("stored = %+v", stored)
			}
		})
	}
}

func TestEnqueueMissingQueue(t *testing.T) {
	t.Parallel()
	c := client.New(newStore(t))
	_, err := c.Enqueue(context.Background(), "nope", "x", nil)
	if !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("Enqueue to missing queue = %v, want ErrNotFound", err)
	}
}

func TestEnqueueDuplicateID(t *testing.T) {
	t.Parallel()
	c := client.New(newStore(t))
	ctx := context.Background()
	opts := &client.EnqueueOptions{ID: "dup"}
	if _, err := c.Enqueue(ctx, "orders", "x", opts); err != nil {
		t.Fatalf("first Enqueue: %v", err)
	}
	if _, err := c.Enqueue(ctx, "orders", "y", opts); !errors.Is(err, queue.ErrDuplicate) {
		t.Fatalf("second Enqueue = %v, want ErrDuplicate", err)
	}
}
