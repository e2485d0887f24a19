package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-realtime-api/internal/realtime"
)

var (
	// ErrForbidden indicates the actor lacks an accepted connection or group membership for the action.
	ErrForbidden = errors.New("action not permitted")
	// ErrNotFound indicates the referenced resource does not exist or is not visible to the actor.
	ErrNotFound = errors.New("resource not found")
	// ErrValidation indicates malformed input rejected before any persistence.
	ErrValidation = errors.New("validation failed")
	// ErrCallInProgress indicates one of the parties already has a pending or active call.
	ErrCallInProgress = errors.New("call already in progress")
	// ErrUnreachable indicates the destination has no live connection.
	ErrUnreachable = realtime.ErrUnreachable
	// ErrTransportFailure indicates a push to a live connection failed.
	ErrTransportFailure = realtime.ErrSendFailed
)

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func wrapValidation(err error) error {
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return err
}

func notFoundOr(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

// ErrorCode maps an error onto the short code sent in websocket acknowledgements.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation), errors.Is(err, realtime.ErrInvalidFrame):
		return "validation"
	case errors.Is(err, ErrCallInProgress):
		return "call_in_progress"
	case errors.Is(err, ErrUnreachable):
		return "unreachable"
	case errors.Is(err, ErrTransportFailure):
		return "transport_failure"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "internal"
	}
}
