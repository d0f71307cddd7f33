// Package queue holds the queue and message records persisted by the stores.
package queue

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// UseQueueDefault marks a message whose visibility timeout has not been
// resolved against its queue yet. Stores reject it.
const UseQueueDefault time.Duration = -1

var validate = validator.New(validator.WithRequiredStructEnabled())

// Queue is the durable queue definition.
type Queue struct {
	Name                     string        `validate:"required,max=255"`
	DefaultVisibilityTimeout time.Duration `validate:"gte=0"`
}

// Message is the durable message row mapped to Go.
type Message struct {
	ID                string `validate:"required,max=255"`
	Queue             string `validate:"required,max=255"`
	Content           string
	VisibilityTimeout time.Duration
	// LastDelivered is the time of the last successful claim; the zero
	// value means the message was never delivered.
	LastDelivered time.Time
}

// Validate checks the queue before it is written.
func (q Queue) Validate() error {
	if err := validate.Struct(q); err != nil {
		return fmt.Errorf("%w: queue: %v", ErrInvalidArgument, err)
	}
	return nil
}

// Validate checks the message before it is written. The visibility timeout
// must already be concrete.
func (m Message) Validate() error {
	if m.VisibilityTimeout == UseQueueDefault {
		return fmt.Errorf("%w: message %q: visibility timeout not resolved", ErrInvalidArgument, m.ID)
	}
	if m.VisibilityTimeout < 0 {
		return fmt.Errorf("%w: message %q: negative visibility timeout %s", ErrInvalidArgument, m.ID, m.VisibilityTimeout)
	}
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("%w: message: %v", ErrInvalidArgument, err)
	}
	return nil
}

// ResolveVisibility returns m with UseQueueDefault replaced by the queue's
// default visibility timeout. Concrete timeouts are left alone.
func (m Message) ResolveVisibility(q Queue) Message {
	if m.VisibilityTimeout == UseQueueDefault {
		m.VisibilityTimeout = q.DefaultVisibilityTimeout
	}
	return m
}

// Pending reports whether the message is eligible for delivery at now.
func (m Message) Pending(now time.Time) bool {
	return EpochMillis(m.LastDelivered)+m.VisibilityTimeout.Milliseconds() <= EpochMillis(now)
}

// VisibleAt is the first instant at which the message is pending again.
func (m Message) VisibleAt() time.Time {
	return FromEpochMillis(EpochMillis(m.LastDelivered) + m.VisibilityTimeout.Milliseconds())
}

// EpochMillis converts t to milliseconds since the Unix epoch. The zero time
// maps to 0.
func EpochMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromEpochMillis is the inverse of EpochMillis.
func FromEpochMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// Millis converts a stored millisecond count to a duration.
func Millis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// NewMessageID returns a random message identifier.
func NewMessageID() string {
	return uuid.NewString()
}
