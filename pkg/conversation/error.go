package conversation

import "errors"

var (
	// ErrPersistence is returned when the conversation store is unavailable
	// or a write cannot be durably recorded. It is fatal to the request;
	// callers must retry from scratch.
	ErrPersistence = errors.New("conversation store unavailable")

	// ErrNilTurn is returned when a nil turn is appended.
	ErrNilTurn = errors.New("cannot append nil turn")

	// ErrInvalidTurn is returned when a turn is missing its conversation id,
	// message id, or carries an unknown role.
	ErrInvalidTurn = errors.New("invalid turn")
)
