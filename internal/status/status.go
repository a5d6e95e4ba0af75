package status

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"
)

// Code is the wire-visible outcome of one guest operation. The zero value is OK.
type Code int32

const (
	OK Code = iota
	ErrFail
	ErrInvalidArg
	ErrNotFound
	ErrPermission
	ErrAlreadyExists
	ErrNotAFile
	ErrNotADirectory
	ErrResourceExhausted
	ErrUnsupported
	ErrProgramNotStarted
	ErrEmptyPassword
	ErrUserMismatch
	ErrInvalidBody
)

func (c Code) String() string {
	switch c {
	case OK:
		return "ok"
	case ErrInvalidArg:
		return "invalid argument"
	case ErrNotFound:
		return "not found"
	case ErrPermission:
		return "permission denied"
	case ErrAlreadyExists:
		return "already exists"
	case ErrNotAFile:
		return "not a file"
	case ErrNotADirectory:
		return "not a directory"
	case ErrResourceExhausted:
		return "resource exhausted"
	case ErrUnsupported:
		return "operation not supported"
	case ErrProgramNotStarted:
		return "program not started"
	case ErrEmptyPassword:
		return "empty password not allowed"
	case ErrUserMismatch:
		return "session user mismatch"
	case ErrInvalidBody:
		return "invalid request body"
	default:
		return "failure"
	}
}

// Error carries a Code together with context and an optional wrapped cause.
type Error struct {
	Code  Code
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	s := e.Code.String()
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Cause != nil {
		s += ": " + e.Cause.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Cause }

// New returns a bare coded error.
func New(c Code) error { return &Error{Code: c} }

// Errf returns a coded error with a formatted message.
func Errf(c Code, format string, args ...any) error {
	return &Error{Code: c, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code to an underlying error. A nil cause yields nil.
func Wrap(c Code, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Code: c, Cause: cause}
}

// CodeOf extracts the Code from err. Nil maps to OK; errors without an
// embedded code map to ErrFail.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrFail
}

// FromOS translates an OS-level error observed at the point of failure into
// a coded error, the way the wire protocol expects errno to surface.
func FromOS(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, syscall.ENOENT), errors.Is(err, syscall.ESRCH):
		return Wrap(ErrNotFound, err)
	case errors.Is(err, fs.ErrPermission), errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM):
		return Wrap(ErrPermission, err)
	case errors.Is(err, fs.ErrExist), errors.Is(err, syscall.EEXIST):
		return Wrap(ErrAlreadyExists, err)
	case errors.Is(err, syscall.ENOTDIR):
		return Wrap(ErrNotADirectory, err)
	case errors.Is(err, syscall.EISDIR):
		return Wrap(ErrNotAFile, err)
	case errors.Is(err, syscall.ENOMEM), errors.Is(err, syscall.ENOSPC):
		return Wrap(ErrResourceExhausted, err)
	default:
		return Wrap(ErrFail, err)
	}
}
