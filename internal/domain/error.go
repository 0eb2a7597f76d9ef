package domain

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	CodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	CodeNotFound        ErrorCode = "NOT_FOUND"
	CodeUnavailable     ErrorCode = "UNAVAILABLE"
	CodeFailedPrecond   ErrorCode = "FAILED_PRECONDITION"
	CodeInternal        ErrorCode = "INTERNAL"
	CodeDeadline        ErrorCode = "DEADLINE_EXCEEDED"
)

var (
	// ErrComponentDisabled is returned by manager accessors for components switched off by config.
	ErrComponentDisabled = errors.New("observability component is disabled")
	// ErrManagerShutdown is returned by manager accessors after Shutdown.
	ErrManagerShutdown = errors.New("observability manager is shut down")
	// ErrSnapshotNotFound indicates no persisted snapshot exists for an id.
	ErrSnapshotNotFound = errors.New("diagnostic snapshot not found")
	// ErrInvalidConfig wraps configuration validation failures.
	ErrInvalidConfig = errors.New("invalid observability config")
)

type Error struct {
	Code    ErrorCode
	Op      string
	Message string
	Cause   error
	Meta    map[string]string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.Op == "" {
		if msg == "" {
			return string(e.Code)
		}
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
	if msg == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, msg)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func E(code ErrorCode, op, msg string, cause error) *Error {
	if msg == "" && cause != nil {
		msg = cause.Error()
	}
	return &Error{
		Code:    code,
		Op:      op,
		Message: msg,
		Cause:   cause,
	}
}

func Wrap(code ErrorCode, op string, err error) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		if existing.Op != "" || op == "" {
			return existing
		}
		return &Error{
			Code:    existing.Code,
			Op:      op,
			Message: existing.Message,
			Cause:   existing.Cause,
			Meta:    existing.Meta,
		}
	}
	return E(code, op, "", err)
}

// CodeFrom extracts a stable code from err, falling back to the sentinel mapping.
func CodeFrom(err error) (ErrorCode, bool) {
	if err == nil {
		return "", false
	}
	var domainErr *Error
	if errors.As(err, &domainErr) && domainErr.Code != "" {
		return domainErr.Code, true
	}
	switch {
	case errors.Is(err, ErrInvalidConfig):
		return CodeInvalidArgument, true
	case errors.Is(err, ErrSnapshotNotFound):
		return CodeNotFound, true
	case errors.Is(err, ErrComponentDisabled), errors.Is(err, ErrManagerShutdown):
		return CodeFailedPrecond, true
	default:
		return "", false
	}
}
