// Package sqlstore implements store.Store on database/sql for SQLite and MySQL.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aridsondez/queuestore/internal/queue"
	"github.com/aridsondez/queuestore/internal/queue/store"
)

var _ store.Store = (*SQLStore)(nil)

// SQLStore is a store.Store over a *sql.DB in one of the supported dialects.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	log     zerolog.Logger
}

// Option configures a SQLStore.
type Option func(*SQLStore)

// WithLogger sets the logger used for schema lifecycle events.
func WithLogger(l zerolog.Logger) Option {
	return func(s *SQLStore) {
		s.log = l
	}
}

// New wraps db. The caller keeps ownership of db until Close is called.
func New(db *sql.DB, dialect Dialect, opts ...Option) *SQLStore {
	s := &SQLStore{
		db:      db,
		dialect: dialect,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const (
	sqlInsertQueue = `INSERT INTO queues (name, default_visibility_timeout_ms) VALUES (?, ?)`
	sqlUpdateQueue = `UPDATE queues SET default_visibility_timeout_ms = ? WHERE name = ?`
	sqlDeleteQueue = `DELETE FROM queues WHERE name = ?`
	sqlLookupQueue = `SELECT name, default_visibility_timeout_ms FROM queues WHERE name = ?`
	sqlListQueues  = `SELECT name, default_visibility_timeout_ms FROM queues`
	sqlQueueExists = `SELECT COUNT(*) FROM queues WHERE name = ?`

	sqlInsertMessage = `
INSERT INTO messages (id, queue_name, content, visibility_timeout_ms, last_delivered_ms)
VALUES (?, ?, ?, ?, ?)`

	sqlUpdateMessage = `
UPDATE messages
SET queue_name = ?, content = ?, visibility_timeout_ms = ?, last_delivered_ms = ?
WHERE id = ?`

	sqlDeleteMessage       = `DELETE FROM messages WHERE id = ?`
	sqlDeleteQueueMessages = `DELETE FROM messages WHERE queue_name = ?`

	sqlLookupMessage = `
SELECT m.id, q.name, m.content, m.visibility_timeout_ms, m.last_delivered_ms
FROM messages m
JOIN queues q ON q.name = m.queue_name
WHERE m.id = ?`

	// No ORDER BY: any eligible row may be returned.
	sqlLookupPending = `
SELECT id, queue_name, content, visibility_timeout_ms, last_delivered_ms
FROM messages
WHERE queue_name = ?
  AND last_delivered_ms + visibility_timeout_ms <= ?
LIMIT 1`

	// Compare-and-swap on last_delivered_ms.
	sqlClaim = `
UPDATE messages
SET last_delivered_ms = ?
WHERE id = ?
  AND last_delivered_ms = ?`
)

// Init creates the tables that the catalog reports missing.
func (s *SQLStore) Init(ctx context.Context, createSchema bool) error {
	if !createSchema {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, t := range s.dialect.tables {
			exists, err := s.tableExists(ctx, tx, t.name)
			if err != nil {
				return err
			}
			if exists {
				s.log.Debug().Str("dialect", s.dialect.Name).Str("table", t.name).Msg("table already present")
				continue
			}
			for _, stmt := range t.ddl {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("create %s: %w", t.name, err)
				}
			}
			s.log.Info().Str("dialect", s.dialect.Name).Str("table", t.name).Msg("table created")
		}
		return nil
	})
}

// Close drops the tables when dropSchema is set and closes the handle.
func (s *SQLStore) Close(ctx context.Context, dropSchema bool) error {
	if dropSchema {
		err := s.inTx(ctx, func(tx *sql.Tx) error {
			for i := len(s.dialect.tables) - 1; i >= 0; i-- {
				name := s.dialect.tables[i].name
				exists, err := s.tableExists(ctx, tx, name)
				if err != nil {
					return err
				}
				if !exists {
					continue
				}
				if _, err := tx.ExecContext(ctx, "DROP TABLE "+name); err != nil {
					return fmt.Errorf("drop %s: %w", name, err)
				}
				s.log.Info().Str("dialect", s.dialect.Name).Str("table", name).Msg("table dropped")
			}
			return nil
		})
		if err != nil {
			_ = s.db.Close()
			return err
		}
	}
	return s.db.Close()
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) tableExists(ctx context.Context, tx *sql.Tx, name string) (bool, error) {
	var n int
	if err := tx.QueryRowContext(ctx, s.dialect.tableExists, name).Scan(&n); err != nil {
		return false, fmt.Errorf("check table %s: %w", name, err)
	}
	return n > 0, nil
}

func (s *SQLStore) PersistQueue(ctx context.Context, q queue.Queue) error {
	if err := q.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, sqlInsertQueue, q.Name, q.DefaultVisibilityTimeout.Milliseconds())
	if err != nil {
		return s.mapError(err, "queue "+q.Name)
	}
	return nil
}

func (s *SQLStore) UpdateQueue(ctx context.Context, q queue.Queue) error {
	if err := q.Validate(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, sqlUpdateQueue, q.DefaultVisibilityTimeout.Milliseconds(), q.Name)
	if err != nil {
		return fmt.Errorf("update queue %s: %w", q.Name, err)
	}
	return requireRow(res, "queue "+q.Name)
}

// DeleteQueue removes dependent messages and then the queue in one
// transaction, so the cascade holds even where foreign keys are not enforced.
func (s *SQLStore) DeleteQueue(ctx context.Context, name string) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, sqlDeleteQueueMessages, name); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, sqlDeleteQueue, name)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete queue %s: %w", name, err)
	}
	return nil
}

func (s *SQLStore) LookupQueue(ctx context.Context, name string) (queue.Queue, bool, error) {
	var (
		q  queue.Queue
		ms int64
	)
	err := s.db.QueryRowContext(ctx, sqlLookupQueue, name).Scan(&q.Name, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return queue.Queue{}, false, nil
	}
	if err != nil {
		return queue.Queue{}, false, fmt.Errorf("lookup queue %s: %w", name, err)
	}
	q.DefaultVisibilityTimeout = queue.Millis(ms)
	return q, true, nil
}

func (s *SQLStore) ListQueues(ctx context.Context) ([]queue.Queue, error) {
	rows, err := s.db.QueryContext(ctx, sqlListQueues)
	if err != nil {
		return nil, fmt.Errorf("list queues: %w", err)
	}
	defer func(rows *sql.Rows) { _ = rows.Close() }(rows)

	var out []queue.Queue
	for rows.Next() {
		var (
			q  queue.Queue
			ms int64
		)
		if err := rows.Scan(&q.Name, &ms); err != nil {
			return nil, err
		}
		q.DefaultVisibilityTimeout = queue.Millis(ms)
		out = append(out, q)
	}
	return out, rows.Err()
}

// PersistMessage checks the owning queue and inserts the row in one transaction.
func (s *SQLStore) PersistMessage(ctx context.Context, m queue.Message) error {
	if err := m.Validate(); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := requireQueue(ctx, tx, m.Queue); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, sqlInsertMessage,
			m.ID,
			m.Queue,
			m.Content,
			m.VisibilityTimeout.Milliseconds(),
			queue.EpochMillis(m.LastDelivered),
		)
		if err != nil {
			return s.mapError(err, "message "+m.ID)
		}
		return nil
	})
}

func (s *SQLStore) UpdateMessage(ctx context.Context, m queue.Message) error {
	if err := m.Validate(); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := requireQueue(ctx, tx, m.Queue); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, sqlUpdateMessage,
			m.Queue,
			m.Content,
			m.VisibilityTimeout.Milliseconds(),
			queue.EpochMillis(m.LastDelivered),
			m.ID,
		)
		if err != nil {
			return s.mapError(err, "message "+m.ID)
		}
		return requireRow(res, "message "+m.ID)
	})
}

func (s *SQLStore) DeleteMessage(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, sqlDeleteMessage, id); err != nil {
		return fmt.Errorf("delete message %s: %w", id, err)
	}
	return nil
}

func (s *SQLStore) LookupMessage(ctx context.Context, id string) (queue.Message, bool, error) {
	m, err := scanMessage(s.db.QueryRowContext(ctx, sqlLookupMessage, id))
	if errors.Is(err, sql.ErrNoRows) {
		return queue.Message{}, false, nil
	}
	if err != nil {
		return queue.Message{}, false, fmt.Errorf("lookup message %s: %w", id, err)
	}
	return m, true, nil
}

func (s *SQLStore) LookupPending(ctx context.Context, queueName string, now time.Time) (queue.Message, bool, error) {
	m, err := scanMessage(s.db.QueryRowContext(ctx, sqlLookupPending, queueName, queue.EpochMillis(now)))
	if errors.Is(err, sql.ErrNoRows) {
		return queue.Message{}, false, nil
	}
	if err != nil {
		return queue.Message{}, false, fmt.Errorf("lookup pending %s: %w", queueName, err)
	}
	return m, true, nil
}

// UpdateLastDelivered succeeds only if exactly one row still carries the
// last delivery the caller observed.
func (s *SQLStore) UpdateLastDelivered(ctx context.Context, m queue.Message, delivered time.Time) (queue.Message, bool, error) {
	next := queue.EpochMillis(delivered)
	res, err := s.db.ExecContext(ctx, sqlClaim, next, m.ID, queue.EpochMillis(m.LastDelivered))
	if err != nil {
		return queue.Message{}, false, fmt.Errorf("claim message %s: %w", m.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return queue.Message{}, false, fmt.Errorf("claim message %s: %w", m.ID, err)
	}
	if n != 1 {
		return queue.Message{}, false, nil
	}
	m.LastDelivered = queue.FromEpochMillis(next)
	return m, true, nil
}

func (s *SQLStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) mapError(err error, what string) error {
	switch s.dialect.classify(err) {
	case errDuplicate:
		return fmt.Errorf("%w: %s", queue.ErrDuplicate, what)
	case errMissingParent:
		return fmt.Errorf("%w: queue for %s", queue.ErrNotFound, what)
	}
	return fmt.Errorf("write %s: %w", what, err)
}

func requireQueue(ctx context.Context, tx *sql.Tx, name string) error {
	var n int
	if err := tx.QueryRowContext(ctx, sqlQueueExists, name).Scan(&n); err != nil {
		return fmt.Errorf("check queue %s: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: queue %s", queue.ErrNotFound, name)
	}
	return nil
}

func requireRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", queue.ErrNotFound, what)
	}
	return nil
}

func scanMessage(row *sql.Row) (queue.Message, error) {
	var (
		m           queue.Message
		visibility  int64
		lastDeliver int64
	)
	if err := row.Scan(&m.ID, &m.Queue, &m.Content, &visibility, &lastDeliver); err != nil {
		return queue.Message{}, err
	}
	m.VisibilityTimeout = queue.Millis(visibility)
	m.LastDelivered = queue.FromEpochMillis(lastDeliver)
	return m, nil
}
