package browser

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound = errors.New("element not found")
	ErrTimeout  = errors.New("timed out")
)

// Error records which operation and selector chain failed.
type Error struct {
	Op    string
	Chain Chain
	Err   error
}

func (e *Error) Error() string {
	if len(e.Chain) == 0 {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %v", e.Op, strings.Join(e.Chain, " | "), e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
