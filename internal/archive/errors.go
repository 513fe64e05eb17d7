package archive

import (
	"errors"
	"fmt"
)

var ErrInvalidArchive = errors.New("invalid archive")

// ValidationError describes why an archive was rejected. It always unwraps to
// ErrInvalidArchive.
type ValidationError struct {
	Name string
	Msg  string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return ErrInvalidArchive.Error()
	}
	return fmt.Sprintf("%s: %s", ErrInvalidArchive.Error(), e.Msg)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidArchive }

func invalidf(name, format string, args ...any) error {
	return &ValidationError{Name: name, Msg: fmt.Sprintf(format, args...)}
}
