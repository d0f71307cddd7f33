package store

import (
	"context"
	"time"

	"github.com/aridsondez/queuestore/internal/metrics"
	"github.com/aridsondez/queuestore/internal/queue"
)

var _ Store = (*instrumented)(nil)

type instrumented struct {
	Store
}

// Instrument wraps s so that every queue and message operation is counted
// and timed in the metrics package.
func Instrument(s Store) Store {
	if _, ok := s.(*instrumented); ok {
		return s
	}
	return &instrumented{Store: s}
}

func observe(op string, start time.Time, err error) {
	metrics.StoreDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StoreErrors.WithLabelValues(op).Inc()
	}
}

func (i *instrumented) PersistQueue(ctx context.Context, q queue.Queue) (err error) {
	defer func(start time.Time) { observe("persist_queue", start, err) }(time.Now())
	if err = i.Store.PersistQueue(ctx, q); err == nil {
		metrics.QueueOps.WithLabelValues("persist").Inc()
	}
	return err
}

func (i *instrumented) UpdateQueue(ctx context.Context, q queue.Queue) (err error) {
	defer func(start time.Time) { observe("update_queue", start, err) }(time.Now())
	if err = i.Store.UpdateQueue(ctx, q); err == nil {
		metrics.QueueOps.WithLabelValues("update").Inc()
	}
	return err
}

func (i *instrumented) DeleteQueue(ctx context.Context, name string) (err error) {
	defer func(start time.Time) { observe("delete_queue", start, err) }(time.Now())
	if err = i.Store.DeleteQueue(ctx, name); err == nil {
		metrics.QueueOps.WithLabelValues("delete").Inc()
	}
	return err
}

func (i *instrumented) LookupQueue(ctx context.Context, name string) (q queue.Queue, ok bool, err error) {
	defer func(start time.Time) { observe("lookup_queue", start, err) }(time.Now())
	return i.Store.LookupQueue(ctx, name)
}

func (i *instrumented) ListQueues(ctx context.Context) (qs []queue.Queue, err error) {
	defer func(start time.Time) { observe("list_queues", start, err) }(time.Now())
	return i.Store.ListQueues(ctx)
}

func (i *instrumented) PersistMessage(ctx context.Context, m queue.Message) (err error) {
	defer func(start time.Time) { observe("persist_message", start, err) }(time.Now())
	if err = i.Store.PersistMessage(ctx, m); err == nil {
		metrics.MessagesPersisted.WithLabelValues(m.Queue).Inc()
	}
	return err
}

func (i *instrumented) UpdateMessage(ctx context.Context, m queue.Message) (err error) {
	defer func(start time.Time) { observe("update_message", start, err) }(time.Now())
	return i.Store.UpdateMessage(ctx, m)
}

func (i *instrumented) DeleteMessage(ctx context.Context, id string) (err error) {
	defer func(start time.Time) { observe("delete_message", start, err) }(time.Now())
	if err = i.Store.DeleteMessage(ctx, id); err == nil {
		metrics.MessagesDeleted.Inc()
	}
	return err
}

func (i *instrumented) LookupMessage(ctx context.Context, id string) (m queue.Message, ok bool, err error) {
	defer func(start time.Time) { observe("lookup_message", start, err) }(time.Now())
	return i.Store.LookupMessage(ctx, id)
}

func (i *instrumented) LookupPending(ctx context.Context, queueName string, now time.Time) (m queue.Message, ok bool, err error) {
	defer func(start time.Time) { observe("lookup_pending", start, err) }(time.Now())
	m, ok, err = i.Store.LookupPending(ctx, queueName, now)
	if err == nil {
		result := "empty"
		if ok {
			result = "hit"
		}
		metrics.PendingLookups.WithLabelValues(queueName, result).Inc()
	}
	return m, ok, err
}

func (i *instrumented) UpdateLastDelivered(ctx context.Context, m queue.Message, delivered time.Time) (claimed queue.Message, ok bool, err error) {
	defer func(start time.Time) { observe("update_last_delivered", start, err) }(time.Now())
	claimed, ok, err = i.Store.UpdateLastDelivered(ctx, m, delivered)
	if err == nil {
		outcome := "lost"
		if ok {
			outcome = "won"
		}
		metrics.Claims.WithLabelValues(m.Queue, outcome).Inc()
	}
	return claimed, ok, err
}
