package api

import (
	"errors"
	"fmt"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest     = errors.New("bad request")
	ErrListVideos     = errors.New("failed to read videos directory")
	ErrPersist        = errors.New("error logging action")
	ErrUnknownVariant = errors.New("unknown variant")
	ErrUnprocessable  = errors.New("unprocessable")
)

// kindError carries the operation, a sentinel kind and the underlying cause.
type kindError struct {
	op   string
	kind error
	err  error
}

func (e *kindError) Error() string {
	if e.err == nil {
		return e.op + ": " + e.kind.Error()
	}
	return fmt.Sprintf("%s: %v: %v", e.op, e.kind, e.err)
}

func (e *kindError) Unwrap() []error {
	if e.err == nil {
		return []error{e.kind}
	}
	return []error{e.kind, e.err}
}

// WrapKind tags err with op and kind. Both kind and err match errors.Is.
func WrapKind(op string, kind, err error) error {
	return &kindError{op: op, kind: kind, err: err}
}

// NewKind returns an error of the given kind with no further cause.
func NewKind(op string, kind error) error {
	return &kindError{op: op, kind: kind}
}
