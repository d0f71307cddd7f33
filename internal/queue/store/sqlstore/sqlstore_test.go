package sqlstore_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/aridsondez/queuestore/internal/queue"
	"github.com/aridsondez/queuestore/internal/queue/store"
	"github.com/aridsondez/queuestore/internal/queue/store/sqlstore"
	"github.com/aridsondez/queuestore/internal/queue/store/storetest"
	"github.com/aridsondez/queuestore/internal/testutil/database"
)

func TestSQLiteStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s := sqlstore.New(database.OpenSQLite(t), sqlstore.SQLite)
		if err := s.Init(context.Background(), true); err != nil {
			t.Fatalf("Init: %v", err)
		}
		return s
	})
}

func TestMySQLStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		ctx := context.Background()
		db := database.OpenMySQL(t)
		s := sqlstore.New(db, sqlstore.MySQL)
		if err := s.Init(ctx, true); err != nil {
			t.Fatalf("Init: %v", err)
		}
		_, _ = db.ExecContext(ctx, `DELETE FROM messages`)
		_, _ = db.ExecContext(ctx, `DELETE FROM queues`)
		return s
	})
}

func TestSQLiteStoreSchemaLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dsn := "file:" + filepath.Join(t.TempDir(), "queuestore.db")

	open := func() *sqlstore.SQLStore {
		db, err := sqlstore.OpenSQLite(ctx, dsn)
		if err != nil {
			t.Fatalf("OpenSQLite: %v", err)
		}
		return sqlstore.New(db, sqlstore.SQLite)
	}

	s := open()
	if err := s.Init(ctx, true); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := s.PersistQueue(ctx, queue.Queue{Name: "q", DefaultVisibilityTimeout: time.Second}); err != nil {
		t.Fatalf("PersistQueue: %v", err)
	}
	if err := s.Close(ctx, false); err != nil {
		t.Fatalf("Close(false): %v", err)
	}

	s = open()
	if err := s.Init(ctx, false); err != nil {
		t.Fatalf("Init(false): %v", err)
	}
	if _, ok, err := s.LookupQueue(ctx, "q"); err != nil || !ok {
		t.Fatalf("queue lost across reopen: ok %v, err %v", ok, err)
	}
	if err := s.Close(ctx, true); err != nil {
		t.Fatalf("Close(true): %v", err)
	}

	db, err := sqlstore.OpenSQLite(ctx, dsn)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer func(db *sql.DB) { _ = db.Close() }(db)
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table'`).Scan(&n); err != nil {
		t.Fatalf("count tables: %v", err)
	}
	if n != 0 {
		t.Fatalf("%d tables left after drop, want 0", n)
	}

	// Dropping an absent schema is a no-op.
	if err := sqlstore.New(db, sqlstore.SQLite).Close(ctx, true); err != nil {
		t.Fatalf("Close(true) on empty database: %v", err)
	}
}

func TestSQLiteForeignKeyCascade(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := database.OpenSQLite(t)
	s := sqlstore.New(db, sqlstore.SQLite)
	if err := s.Init(ctx, true); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := s.PersistQueue(ctx, queue.Queue{Name: "q"}); err != nil {
		t.Fatalf("PersistQueue: %v", err)
	}
	if err := s.PersistMessage(ctx, queue.Message{ID: "m1", Queue: "q"}); err != nil {
		t.Fatalf("PersistMessage: %v", err)
	}

	// Bypass the store: the schema itself must cascade.
	if _, err := db.ExecContext(ctx, `DELETE FROM queues WHERE name = 'q'`); err != nil {
		t.Fatalf("delete queue row: %v", err)
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n); err != nil {
		t.Fatalf("count messages: %v", err)
	}
	if n != 0 {
		t.Fatalf("%d messages survived queue deletion", n)
	}
}
