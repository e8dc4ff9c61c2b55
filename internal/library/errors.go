package library

import (
	"errors"
	"fmt"
)

// ErrInvalidDocument is returned when a JSON file does not hold an object.
var ErrInvalidDocument = errors.New("document is not a JSON object")

// Error describes a failed file operation on presets, metadata or playlists.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op, path string, err error) error {
	return &Error{Op: op, Path: path, Err: err}
}
