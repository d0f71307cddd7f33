package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/aridsondez/queuestore/internal/queue"
	"github.com/aridsondez/queuestore/internal/queue/store"
)

// Ensure *PostgresStore implements store.Store at compile time.
var _ store.Store = (*PostgresStore)(nil)

// SQLSTATE codes mapped onto queue errors.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

type PostgresStore struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

type Option func(*PostgresStore)

// WithLogger sets the logger used for schema lifecycle events.
func WithLogger(l zerolog.Logger) Option {
	return func(p *PostgresStore) {
		p.log = l
	}
}

func New(pool *pgxpool.Pool, opts ...Option) *PostgresStore {
	p := &PostgresStore{pool: pool, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SQL templates
const (
	sqlInsertQueue = `INSERT INTO queues (name, default_visibility_timeout_ms) VALUES ($1, $2);`
	sqlUpdateQueue = `UPDATE queues SET default_visibility_timeout_ms = $2 WHERE name = $1;`
	sqlDeleteQueue = `DELETE FROM queues WHERE name = $1;`
	sqlLookupQueue = `SELECT name, default_visibility_timeout_ms FROM queues WHERE name = $1;`
	sqlListQueues  = `SELECT name, default_visibility_timeout_ms FROM queues;`

	sqlInsertMessage = `
INSERT INTO messages (id, queue_name, content, visibility_timeout_ms, last_delivered_ms)
VALUES ($1, $2, $3, $4, $5);`

	sqlUpdateMessage = `
UPDATE messages
SET queue_name = $2, content = $3, visibility_timeout_ms = $4, last_delivered_ms = $5
WHERE id = $1;`

	sqlDeleteMessage = `DELETE FROM messages WHERE id = $1;`

	sqlLookupMessage = `
SELECT m.id, q.name, m.content, m.visibility_timeout_ms, m.last_delivered_ms
FROM messages m
JOIN queues q ON q.name = m.queue_name
WHERE m.id = $1;`

	// No ORDER BY: any eligible row may be returned.
	sqlLookupPending = `
SELECT id, queue_name, content, visibility_timeout_ms, last_delivered_ms
FROM messages
WHERE queue_name = $1
  AND last_delivered_ms + visibility_timeout_ms <= $2
LIMIT 1;`

	// Compare-and-swap on last_delivered_ms.
	sqlClaim = `
UPDATE messages
SET last_delivered_ms = $2
WHERE id = $1
  AND last_delivered_ms = $3
RETURNING id, queue_name, content, visibility_timeout_ms, last_delivered_ms;`
)

func (p *PostgresStore) Init(ctx context.Context, createSchema bool) error {
	if !createSchema {
		return nil
	}
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		for _, t := range schema {
			exists, err := tableExists(ctx, tx, t.name)
			if err != nil {
				return err
			}
			if exists {
				p.log.Debug().Str("table", t.name).Msg("table already present")
				continue
			}
			for _, stmt := range t.ddl {
				if _, err := tx.Exec(ctx, stmt); err != nil {
					return fmt.Errorf("create %s: %w", t.name, err)
				}
			}
			p.log.Info().Str("table", t.name).Msg("table created")
		}
		return nil
	})
}

func (p *PostgresStore) Close(ctx context.Context, dropSchema bool) error {
	defer p.pool.Close()
	if !dropSchema {
		return nil
	}
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		for i := len(schema) - 1; i >= 0; i-- {
			name := schema[i].name
			exists, err := tableExists(ctx, tx, name)
			if err != nil {
				return err
			}
			if !exists {
				continue
			}
			if _, err := tx.Exec(ctx, "DROP TABLE "+pgx.Identifier{name}.Sanitize()); err != nil {
				return fmt.Errorf("drop %s: %w", name, err)
			}
			p.log.Info().Str("table", name).Msg("table dropped")
		}
		return nil
	})
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func tableExists(ctx context.Context, tx pgx.Tx, name string) (bool, error) {
	var exists bool
	if err := tx.QueryRow(ctx, sqlTableExists, name).Scan(&exists); err != nil {
		return false, fmt.Errorf("check table %s: %w", name, err)
	}
	return exists, nil
}

// PersistQueue inserts a new queue row.
func (p *PostgresStore) PersistQueue(ctx context.Context, q queue.Queue) error {
	if err := q.Validate(); err != nil {
		return err
	}
	_, err := p.pool.Exec(ctx, sqlInsertQueue, q.Name, q.DefaultVisibilityTimeout.Milliseconds())
	if err != nil {
		return mapError(err, "queue "+q.Name)
	}
	return nil
}

func (p *PostgresStore) UpdateQueue(ctx context.Context, q queue.Queue) error {
	if err := q.Validate(); err != nil {
		return err
	}
	tag, err := p.pool.Exec(ctx, sqlUpdateQueue, q.Name, q.DefaultVisibilityTimeout.Milliseconds())
	if err != nil {
		return fmt.Errorf("update queue %s: %w", q.Name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: queue %s", queue.ErrNotFound, q.Name)
	}
	return nil
}

// DeleteQueue relies on ON DELETE CASCADE to remove owned messages.
func (p *PostgresStore) DeleteQueue(ctx context.Context, name string) error {
	if _, err := p.pool.Exec(ctx, sqlDeleteQueue, name); err != nil {
		return fmt.Errorf("delete queue %s: %w", name, err)
	}
	return nil
}

func (p *PostgresStore) LookupQueue(ctx context.Context, name string) (queue.Queue, bool, error) {
	var (
		q  queue.Queue
		ms int64
	)
	err := p.pool.QueryRow(ctx, sqlLookupQueue, name).Scan(&q.Name, &ms)
	if errors.Is(err, pgx.ErrNoRows) {
		return queue.Queue{}, false, nil
	}
	if err != nil {
		return queue.Queue{}, false, fmt.Errorf("lookup queue %s: %w", name, err)
	}
	q.DefaultVisibilityTimeout = queue.Millis(ms)
	return q, true, nil
}

func (p *PostgresStore) ListQueues(ctx context.Context) ([]queue.Queue, error) {
	rows, err := p.pool.Query(ctx, sqlListQueues)
	if err != nil {
		return nil, fmt.Errorf("list queues: %w", err)
	}
	defer rows.Close()

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

// PersistMessage inserts a message; the owning queue must exist.
func (p *PostgresStore) PersistMessage(ctx context.Context, m queue.Message) error {
	if err := m.Validate(); err != nil {
		return err
	}
	_, err := p.pool.Exec(ctx, sqlInsertMessage,
		m.ID,
		m.Queue,
		m.Content,
		m.VisibilityTimeout.Milliseconds(),
		queue.EpochMillis(m.LastDelivered),
	)
	if err != nil {
		return mapError(err, "message "+m.ID)
	}
	return nil
}

func (p *PostgresStore) UpdateMessage(ctx context.Context, m queue.Message) error {
	if err := m.Validate(); err != nil {
		return err
	}
	tag, err := p.pool.Exec(ctx, sqlUpdateMessage,
		m.ID,
		m.Queue,
		m.Content,
		m.VisibilityTimeout.Milliseconds(),
		queue.EpochMillis(m.LastDelivered),
	)
	if err != nil {
		return mapError(err, "message "+m.ID)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: message %s", queue.ErrNotFound, m.ID)
	}
	return nil
}

func (p *PostgresStore) DeleteMessage(ctx context.Context, id string) error {
	if _, err := p.pool.Exec(ctx, sqlDeleteMessage, id); err != nil {
		return fmt.Errorf("delete message %s: %w", id, err)
	}
	return nil
}

func (p *PostgresStore) LookupMessage(ctx context.Context, id string) (queue.Message, bool, error) {
	m, err := scanMessage(p.pool.QueryRow(ctx, sqlLookupMessage, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return queue.Message{}, false, nil
	}
	if err != nil {
		return queue.Message{}, false, fmt.Errorf("lookup message %s: %w", id, err)
	}
	return m, true, nil
}

func (p *PostgresStore) LookupPending(ctx context.Context, queueName string, now time.Time) (queue.Message, bool, error) {
	m, err := scanMessage(p.pool.QueryRow(ctx, sqlLookupPending, queueName, queue.EpochMillis(now)))
	if errors.Is(err, pgx.ErrNoRows) {
		return queue.Message{}, false, nil
	}
	if err != nil {
		return queue.Message{}, false, fmt.Errorf("lookup pending %s: %w", queueName, err)
	}
	return m, true, nil
}

// UpdateLastDelivered only touches the row while last_delivered_ms still
// holds the value the caller observed; otherwise no row comes back.
func (p *PostgresStore) UpdateLastDelivered(ctx context.Context, m queue.Message, delivered time.Time) (queue.Message, bool, error) {
	claimed, err := scanMessage(p.pool.QueryRow(ctx, sqlClaim,
		m.ID,
		queue.EpochMillis(delivered),
		queue.EpochMillis(m.LastDelivered),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return queue.Message{}, false, nil
	}
	if err != nil {
		return queue.Message{}, false, fmt.Errorf("claim message %s: %w", m.ID, err)
	}
	return claimed, true, nil
}

func scanMessage(row pgx.Row) (queue.Message, error) {
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

func mapError(err error, what string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("%w: %s", queue.ErrDuplicate, what)
		case codeForeignKeyViolation:
			return fmt.Errorf("%w: queue for %s", queue.ErrNotFound, what)
		}
	}
	return fmt.Errorf("write %s: %w", what, err)
}
