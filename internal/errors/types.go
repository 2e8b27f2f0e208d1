package errors

import (
	"errors"
	"fmt"
)

var (
	ErrArgumentInvalid    = errors.New("invalid argument")
	ErrArgumentMissing    = errors.New("missing argument")
	ErrArgumentConflict   = errors.New("conflicting arguments")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrDaemon             = errors.New("docker daemon error")
	ErrStream             = fmt.Errorf("%w: progress stream reported failure", ErrDaemon)
	ErrNotFound           = errors.New("resource not found")
	ErrTransport          = errors.New("transport failure")
	ErrFileSystem         = errors.New("filesystem operation failed")
	ErrConfigInvalid      = errors.New("configuration invalid")
)

// OrchestriqError carries a category (one of the Err* sentinels) together
// with the operation context it happened in.
type OrchestriqError struct {
	Type        error
	Context     string
	Cause       string
	Suggestion  string
	StatusCode  int
	OriginalErr error
}

func (e *OrchestriqError) Error() string {
	msg := e.Cause
	if msg == "" && e.OriginalErr != nil {
		msg = e.OriginalErr.Error()
	}
	if msg == "" {
		msg = e.Type.Error()
	}
	if e.Context == "" {
		return msg
	}
	return e.Context + ": " + msg
}

func (e *OrchestriqError) Unwrap() error {
	return e.OriginalErr
}

// Is reports whether target is this error's category or one of the
// categories it wraps (a stream error is also a daemon error).
func (e *OrchestriqError) Is(target error) bool {
	return e.Type != nil && errors.Is(e.Type, target)
}

func NewOrchestriqError(errorType error, context, cause, suggestion string, originalErr error) *OrchestriqError {
	return &OrchestriqError{
		Type:        errorType,
		Context:     context,
		Cause:       cause,
		Suggestion:  suggestion,
		OriginalErr: originalErr,
	}
}

func NewArgumentInvalid(context, cause string) *OrchestriqError {
	return NewOrchestriqError(ErrArgumentInvalid, context, cause, "", nil)
}

func NewArgumentMissing(context, cause string) *OrchestriqError {
	return NewOrchestriqError(ErrArgumentMissing, context, cause, "", nil)
}

func NewArgumentConflict(context, cause, suggestion string) *OrchestriqError {
	return NewOrchestriqError(ErrArgumentConflict, context, cause, suggestion, nil)
}

func NewPreconditionError(context, cause, suggestion string, originalErr error) *OrchestriqError {
	return NewOrchestriqError(ErrPreconditionFailed, context, cause, suggestion, originalErr)
}

// NewDaemonError records a non-success Engine response.
func NewDaemonError(context string, statusCode int, message string) *OrchestriqError {
	err := NewOrchestriqError(ErrDaemon, context, message, "", nil)
	err.StatusCode = statusCode
	return err
}

func NewStreamError(context, message string) *OrchestriqError {
	return NewOrchestriqError(ErrStream, context, message, "", nil)
}

func NewNotFoundError(context string, statusCode int, message string) *OrchestriqError {
	err := NewOrchestriqError(ErrNotFound, context, message, "", nil)
	err.StatusCode = statusCode
	return err
}

func NewTransportError(context, suggestion string, originalErr error) *OrchestriqError {
	return NewOrchestriqError(ErrTransport, context, "", suggestion, originalErr)
}

func NewFileSystemError(context, cause string, originalErr error) *OrchestriqError {
	return NewOrchestriqError(ErrFileSystem, context, cause, "", originalErr)
}

func NewConfigError(context, cause, suggestion string, originalErr error) *OrchestriqError {
	return NewOrchestriqError(ErrConfigInvalid, context, cause, suggestion, originalErr)
}

// Wrap adds operation context to err. Categorised errors keep their type;
// anything else is reported as a transport failure.
func Wrap(context string, err error) error {
	if err == nil {
		return nil
	}
	var oe *OrchestriqError
	if errors.As(err, &oe) {
		wrapped := *oe
		if wrapped.Context == "" {
			wrapped.Context = context
		} else {
			wrapped.Context = context + ": " + wrapped.Context
		}
		return &wrapped
	}
	return NewTransportError(context, "", err)
}

// StatusCode extracts the HTTP status of a daemon error, or 0.
func StatusCode(err error) int {
	var oe *OrchestriqError
	if errors.As(err, &oe) {
		return oe.StatusCode
	}
	return 0
}
