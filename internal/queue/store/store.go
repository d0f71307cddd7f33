package store

import (
	"context"
	"time"

	"github.com/aridsondez/queuestore/internal/queue"
)

// QueueStore persists queue definitions. Every call is one atomic unit.
type QueueStore interface {
	// PersistQueue inserts a new queue; queue.ErrDuplicate if the name exists.
	PersistQueue(ctx context.Context, q queue.Queue) error

	// UpdateQueue overwrites the attributes of an existing queue; queue.ErrNotFound if absent.
	UpdateQueue(ctx context.Context, q queue.Queue) error

	// DeleteQueue removes the queue and every message it owns.
	DeleteQueue(ctx context.Context, name string) error

	// LookupQueue returns the queue, or ok=false when it does not exist.
	LookupQueue(ctx context.Context, name string) (q queue.Queue, ok bool, err error)

	// ListQueues returns all queues in no particular order.
	ListQueues(ctx context.Context) ([]queue.Queue, error)
}

// MessageStore persists messages and implements the delivery claim.
type MessageStore interface {
	// PersistMessage inserts a message whose visibility timeout is already
	// resolved; queue.ErrInvalidArgument otherwise.
	PersistMessage(ctx context.Context, m queue.Message) error

	// UpdateMessage overwrites the message by id; queue.ErrNotFound if absent.
	UpdateMessage(ctx context.Context, m queue.Message) error

	// DeleteMessage removes the message. A missing id is not an error.
	DeleteMessage(ctx context.Context, id string) error

	// LookupMessage returns the message joined with its owning queue.
	LookupMessage(ctx context.Context, id string) (m queue.Message, ok bool, err error)

	// LookupPending returns one message of queueName that is pending at now.
	// Which one is unspecified when several are eligible.
	LookupPending(ctx context.Context, queueName string, now time.Time) (m queue.Message, ok bool, err error)

	// UpdateLastDelivered claims m by setting its last delivery to delivered,
	// provided the stored value still equals m.LastDelivered. ok=false means
	// another consumer claimed it first.
	UpdateLastDelivered(ctx context.Context, m queue.Message, delivered time.Time) (claimed queue.Message, ok bool, err error)
}

// Store is the DB-agnostic interface the rest of the app uses.
type Store interface {
	QueueStore
	MessageStore

	// Init prepares the store; with createSchema it creates any missing tables.
	Init(ctx context.Context, createSchema bool) error

	// Close releases the connection handle, dropping the tables first when dropSchema is set.
	Close(ctx context.Context, dropSchema bool) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error
}
