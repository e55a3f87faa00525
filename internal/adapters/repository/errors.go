package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrUnknownDriver = errors.New("unknown store driver")
	ErrNilRecord     = errors.New("nil log record")
	ErrClosed        = errors.New("store closed")
)
