package server

import (
	"errors"
	"fmt"
	"syscall"
)

var (
	ErrInvalidState     = errors.New("invalid server state")
	ErrPortInUse        = errors.New("port already in use")
	ErrPermissionDenied = errors.New("permission denied")
)

// BindError reports a failure to open the listen socket. Kind is ErrPortInUse,
// ErrPermissionDenied or nil when the cause is something else.
type BindError struct {
	Addr string
	Kind error
	Err  error
}

func (e *BindError) Error() string {
	if e.Kind != nil {
		return fmt.Sprintf("failed to bind %s: %v: %v", e.Addr, e.Kind, e.Err)
	}
	return fmt.Sprintf("failed to bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() []error {
	if e.Kind == nil {
		return []error{e.Err}
	}
	return []error{e.Kind, e.Err}
}

func classifyBindError(addr string, err error) *BindError {
	bindErr := &BindError{Addr: addr, Err: err}
	switch {
	case errors.Is(err, syscall.EADDRINUSE):
		bindErr.Kind = ErrPortInUse
	case errors.Is(err, syscall.EACCES):
		bindErr.Kind = ErrPermissionDenied
	}
	return bindErr
}
