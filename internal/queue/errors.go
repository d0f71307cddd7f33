package queue

import "errors"

var (
	// ErrInvalidArgument is returned for records that must not reach storage,
	// such as a message with an unresolved visibility timeout.
	ErrInvalidArgument = errors.New("queue: invalid argument")
	// ErrDuplicate is returned when a queue name or message id already exists.
	ErrDuplicate = errors.New("queue: already exists")
	// ErrNotFound is returned by updates of absent rows and by message writes
	// that reference a missing queue. Lookups report absence with ok=false.
	ErrNotFound = errors.New("queue: not found")
)
