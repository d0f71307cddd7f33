package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aridsondez/queuestore/internal/queue/store/sqlstore"
)

var sqliteSeq atomic.Int64

// OpenSQLite returns a fresh in-memory SQLite DB private to the test.
func OpenSQLite(t *testing.T) *sql.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:queuestore_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), sqliteSeq.Add(1))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := sqlstore.OpenSQLite(ctx, dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}
