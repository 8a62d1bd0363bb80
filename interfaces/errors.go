package interfaces

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrConfiguration is returned for a missing or invalid binding property or an unresolvable tag.
	ErrConfiguration = errors.New("configuration error")

	// ErrValidation is returned when submitted properties violate collection constraints.
	ErrValidation = errors.New("validation error")

	// ErrStorageOperation is returned when a physical storage operation fails.
	// This could be due to network faults, remote error responses or filesystem collisions.
	ErrStorageOperation = errors.New("storage operation failed")

	// ErrNotFound is returned when a collection, item, version or physical address does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when a uniquely named record already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrConcurrentModification is returned when an optimistic concurrency check fails.
	ErrConcurrentModification = errors.New("concurrent modification")
)

// Subsystems reported by ManagerError.
const (
	SubsystemRegistry   = "registry"
	SubsystemProvider   = "provider"
	SubsystemValidation = "validation"
	SubsystemStore      = "store"
	SubsystemManager    = "manager"
)

// StorageOperationError wraps a provider failure with a response status hint.
type StorageOperationError struct {
	// Status is the suggested HTTP status code.
	Status int

	// Message describes the failed operation.
	Message string

	// Err is the underlying cause, may be nil.
	Err error
}

// NewStorageError creates a StorageOperationError.
func NewStorageError(status int, message string, cause error) *StorageOperationError {
	return &StorageOperationError{Status: status, Message: message, Err: cause}
}

func (e *StorageOperationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrStorageOperation, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", ErrStorageOperation, e.Message, e.Err)
}

func (e *StorageOperationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrStorageOperation}
	}
	return []error{ErrStorageOperation, e.Err}
}

// StatusHint returns the suggested status code.
func (e *StorageOperationError) StatusHint() int {
	return e.Status
}

// ValidationError lists every constraint violation found for a property bag.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(e.Errors, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func (e *ValidationError) StatusHint() int {
	return http.StatusBadRequest
}

// ManagerError is returned by every orchestration operation. It carries the
// suggested status hint, a message and the originating subsystem.
type ManagerError struct {
	Status    int
	Message   string
	Subsystem string
	Err       error
}

func (e *ManagerError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Subsystem, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Subsystem, e.Message, e.Err)
}

func (e *ManagerError) Unwrap() error {
	return e.Err
}

func (e *ManagerError) StatusHint() int {
	return e.Status
}

// StatusHint extracts the suggested status code from an error chain. Sentinel
// errors map to their conventional status; anything else is a 500.
func StatusHint(err error) int {
	var hinted interface{ StatusHint() int }
	if errors.As(err, &hinted) && hinted.StatusHint() != 0 {
		return hinted.StatusHint()
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrConcurrentModification):
		return http.StatusConflict
	case errors.Is(err, ErrConfiguration):
		return http.StatusInternalServerError
	case errors.Is(err, ErrStorageOperation):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
