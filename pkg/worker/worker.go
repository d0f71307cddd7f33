package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aridsondez/queuestore/internal/metrics"
	"github.com/aridsondez/queuestore/internal/queue"
	"github.com/aridsondez/queuestore/internal/queue/store"
)

// HandlerFunc processes a message and returns an error if processing failed.
// Returning nil means success (message will be deleted).
// Returning an error means failure (message becomes pending again once its
// visibility timeout elapses).
type HandlerFunc func(ctx context.Context, msg queue.Message) error

// Worker claims and processes messages from one or more queues
type Worker struct {
	store     store.MessageStore
	handlers  map[string]HandlerFunc
	pollDelay time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

// Config for creating a new worker
type Config struct {
	Store     store.MessageStore
	PollDelay time.Duration    // Sleep when a queue has nothing pending (default: 1s)
	Logger    zerolog.Logger   // default: zerolog.Nop()
	Now       func() time.Time // default: time.Now
}

// New creates a new Worker with the given configuration
func New(cfg Config) *Worker {
	if cfg.PollDelay == 0 {
		cfg.PollDelay = 1 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Worker{
		store:     cfg.Store,
		handlers:  make(map[string]HandlerFunc),
		pollDelay: cfg.PollDelay,
		now:       cfg.Now,
		log:       cfg.Logger.With().Str("component", "worker").Logger(),
	}
}

// Handle registers a handler function for a specific queue
func (w *Worker) Handle(queueName string, handler HandlerFunc) {
	w.handlers[queueName] = handler
	w.log.Info().Str("queue", queueName).Msg("registered handler")
}

// Run starts one poller per registered queue and blocks until ctx is
// cancelled or a poller fails on a store error.
func (w *Worker) Run(ctx context.Context) error {
	if len(w.handlers) == 0 {
		return fmt.Errorf("no handlers registered")
	}

	w.log.Info().Int("queues", len(w.handlers)).Msg("worker starting")

	g, gctx := errgroup.WithContext(ctx)
	for name, handler := range w.handlers {
		g.Go(func() error {
			return w.pollQueue(gctx, name, handler)
		})
	}

	err := g.Wait()
	w.log.Info().Msg("worker shutting down")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// pollQueue drains a queue, sleeping pollDelay whenever nothing is pending.
func (w *Worker) pollQueue(ctx context.Context, queueName string, handler HandlerFunc) error {
	log := w.log.With().Str("queue", queueName).Logger()
	log.Debug().Msg("started polling")

	for {
		if err := ctx.Err(); err != nil {
			log.Debug().Msg("stopped polling")
			return err
		}

		processed, err := w.Poll(ctx, queueName, handler)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Msg("poll failed")
		}
		if processed {
			continue
		}

		select {
		case <-ctx.Done():
			log.Debug().Msg("stopped polling")
			return ctx.Err()
		case <-time.After(w.pollDelay):
		}
	}
}

// Poll makes one claim attempt on queueName. It reports whether a message
// was claimed and handed to handler. A lost claim is retried immediately
// against the next pending message; store errors are returned.
func (w *Worker) Poll(ctx context.Context, queueName string, handler HandlerFunc) (bool, error) {
	for {
		now := w.now()
		msg, ok, err := w.store.LookupPending(ctx, queueName, now)
		if err != nil {
			return false, fmt.Errorf("lookup pending on %q: %w", queueName, err)
		}
		if !ok {
			return false, nil
		}

		claimed, won, err := w.store.UpdateLastDelivered(ctx, msg, now)
		if err != nil {
			return false, fmt.Errorf("claim %q: %w", msg.ID, err)
		}
		if !won {
			w.log.Debug().Str("queue", queueName).Str("message_id", msg.ID).Msg("claim lost, re-polling")
			continue
		}

		w.processMessage(ctx, claimed, handler)
		return true, nil
	}
}

// processMessage runs the handler with panic recovery. The handler context
// expires when the claim does.
func (w *Worker) processMessage(ctx context.Context, msg queue.Message, handler HandlerFunc) {
	log := w.log.With().Str("queue", msg.Queue).Str("message_id", msg.ID).Logger()

	handlerCtx, cancel := context.WithDeadline(ctx, msg.VisibleAt())
	defer cancel()

	err := runHandler(handlerCtx, msg, handler)
	if err != nil {
		var p panicError
		if errors.As(err, &p) {
			metrics.HandlerResults.WithLabelValues(msg.Queue, "panic").Inc()
			log.Error().Interface("panic", p.value).Time("visible_at", msg.VisibleAt()).Msg("handler panicked, message left for redelivery")
			return
		}
		metrics.HandlerResults.WithLabelValues(msg.Queue, "error").Inc()
		log.Warn().Err(err).Time("visible_at", msg.VisibleAt()).Msg("handler failed, message left for redelivery")
		return
	}

	// Success - the message is done
	if err := w.store.DeleteMessage(ctx, msg.ID); err != nil {
		metrics.HandlerResults.WithLabelValues(msg.Queue, "error").Inc()
		log.Error().Err(err).Msg("delete after processing failed")
		return
	}

	metrics.HandlerResults.WithLabelValues(msg.Queue, "ok").Inc()
	log.Debug().Msg("processed message")
}

type panicError struct{ value any }

func (p panicError) Error() string { return fmt.Sprintf("panic: %v", p.value) }

func runHandler(ctx context.Context, msg queue.Message, handler HandlerFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError{value: r}
		}
	}()
	return handler(ctx, msg)
}
