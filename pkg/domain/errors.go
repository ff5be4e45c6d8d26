package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the approval engine's failure taxonomy. Concrete
// error types below match them through errors.Is.
var (
	ErrUnauthenticated        = errors.New("unauthenticated")
	ErrInsufficientPermission = errors.New("insufficient permission")
	ErrValidation             = errors.New("validation failed")
	ErrNotFound               = errors.New("not found")
	ErrInvalidState           = errors.New("invalid state")
	ErrUnsupportedTable       = errors.New("unsupported table")
	ErrUnknownRequestType     = errors.New("unknown request type")
	ErrApplyFailed            = errors.New("failed to apply changes")
)

// PermissionError reports a failed policy check.
type PermissionError struct {
	Message string
}

func (e *PermissionError) Error() string {
	if e.Message == "" {
		return ErrInsufficientPermission.Error()
	}
	return e.Message
}

// Is matches ErrInsufficientPermission.
func (e *PermissionError) Is(target error) bool { return target == ErrInsufficientPermission }

// Denied builds a PermissionError with a formatted message.
func Denied(format string, args ...any) error {
	return &PermissionError{Message: fmt.Sprintf(format, args...)}
}

// ValidationError reports malformed input for a single field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Invalid builds a ValidationError.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError is returned when a referenced entity does not exist.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// Is matches ErrNotFound.
func (e NotFoundError) Is(target error) bool { return target == ErrNotFound }

// StateError reports an operation that the request's current status does not allow.
type StateError struct {
	ID     string
	Status ApprovalStatus
	// Op names the refused operation, "resolved" when empty.
	Op string
}

func (e StateError) Error() string {
	op := e.Op
	if op == "" {
		op = "resolved"
	}
	return fmt.Sprintf("approval request %s is %s and cannot be %s", e.ID, e.Status, op)
}

// Is matches ErrInvalidState.
func (e StateError) Is(target error) bool { return target == ErrInvalidState }

// UnsupportedTableError is returned by the dispatcher for unknown tables.
type UnsupportedTableError struct {
	Table TableName
}

func (e UnsupportedTableError) Error() string {
	return fmt.Sprintf("unsupported table %q", string(e.Table))
}

// Is matches ErrUnsupportedTable.
func (e UnsupportedTableError) Is(target error) bool { return target == ErrUnsupportedTable }

// UnknownRequestTypeError is returned by the apply engine for unknown request types.
type UnknownRequestTypeError struct {
	Type RequestType
}

func (e UnknownRequestTypeError) Error() string {
	return fmt.Sprintf("unknown request type %q", string(e.Type))
}

// Is matches ErrUnknownRequestType.
func (e UnknownRequestTypeError) Is(target error) bool { return target == ErrUnknownRequestType }
