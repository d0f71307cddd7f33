package database

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/aridsondez/queuestore/internal/queue/store/sqlstore"
)

// OpenMySQL connects to MYSQL_DSN and skips the test when it is unset.
func OpenMySQL(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		t.Skip("MYSQL_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := sqlstore.OpenMySQL(ctx, dsn)
	if err != nil {
		t.Fatalf("open mysql: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}
