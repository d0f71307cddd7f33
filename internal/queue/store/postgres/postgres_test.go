package postgres_test

import (
	"context"
	"testing"

	"github.com/aridsondez/queuestore/internal/queue/store"
	"github.com/aridsondez/queuestore/internal/queue/store/postgres"
	"github.com/aridsondez/queuestore/internal/queue/store/storetest"
	"github.com/aridsondez/queuestore/internal/testutil/database"
)

func TestPostgresStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		ctx := context.Background()
		pool := database.OpenPostgres(t)
		s := postgres.New(pool)
		if err := s.Init(ctx, true); err != nil {
			t.Fatalf("Init: %v", err)
		}
		if _, err := pool.Exec(ctx, `TRUNCATE messages, queues`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return s
	})
}
