package client

import (
	"context"
	"fmt"
	"time"

	"github.com/aridsondez/queuestore/internal/queue"
	"github.com/aridsondez/queuestore/internal/queue/store"
)

// Client enqueues messages directly into a store
type Client struct {
	store store.Store
}

// New creates a new Client backed by s
func New(s store.Store) *Client {
	return &Client{store: s}
}

// EnqueueOptions for customizing message enqueue
type EnqueueOptions struct {
	ID         string        // Message id (default: random uuid)
	Visibility time.Duration // Visibility timeout (default: the queue's default)
	// LastDelivered backdates or postdates the first delivery window.
	// The zero value makes the message pending immediately.
	LastDelivered time.Time
}

// Enqueue resolves the message's visibility timeout against its queue and
// persists it. It returns queue.ErrNotFound if the queue does not exist.
func (c *Client) Enqueue(ctx context.Context, queueName, content string, opts *EnqueueOptions) (queue.Message, error) {
	if opts == nil {
		opts = &EnqueueOptions{Visibility: queue.UseQueueDefault}
	}

	q, ok, err := c.store.LookupQueue(ctx, queueName)
	if err != nil {
		return queue.Message{}, fmt.Errorf("lookup queue %q: %w", queueName, err)
	}
	if !ok {
		return queue.Message{}, fmt.Errorf("%w: queue %q", queue.ErrNotFound, queueName)
	}

	visibility := opts.Visibility
	if visibility == 0 {
		visibility = queue.UseQueueDefault
	}
	id := opts.ID
	if id == "" {
		id = queue.NewMessageID()
	}

	msg := queue.Message{
		ID:                id,
		Queue:             q.Name,
		Content:           content,
		VisibilityTimeout: visibility,
		LastDelivered:     opts.LastDelivered,
	}.ResolveVisibility(q)

	if err := c.store.PersistMessage(ctx, msg); err != nil {
		return queue.Message{}, fmt.Errorf("enqueue to %q: %w", queueName, err)
	}
	return msg, nil
}
