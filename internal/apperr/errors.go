package apperr

import "errors"

// ErrInvalid is returned when the input fails domain validation.
var ErrInvalid = errors.New("invalid input")

// ErrConflict indicates a uniqueness or state conflict (HTTP 409).
var ErrConflict = errors.New("conflict")

// ErrNotFound indicates that the requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrForbidden indicates that the caller may not act on the resource (HTTP 403).
var ErrForbidden = errors.New("forbidden")

// ErrUnprocessable indicates that the resource exists but is not usable
// in its current shape (HTTP 422).
var ErrUnprocessable = errors.New("unprocessable")

// Error is a named domain error that belongs to one of the kinds above.
type Error struct {
	kind error
	msg  string
}

// New returns an error that matches kind with errors.Is.
func New(kind error, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func (e *Error) Error() string { return e.msg }

// Unwrap exposes the kind so errors.Is(err, apperr.ErrConflict) works.
func (e *Error) Unwrap() error { return e.kind }

// Kind returns the kind sentinel of err, or nil if err carries none.
func Kind(err error) error {
	for _, k := range []error{ErrInvalid, ErrNotFound, ErrConflict, ErrForbidden, ErrUnprocessable} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
