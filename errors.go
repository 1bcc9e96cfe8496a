package reposit

import "errors"

var (
	// ErrUnknownEntity is returned when a name matches no registered entity.
	ErrUnknownEntity = errors.New("unknown entity")
)
