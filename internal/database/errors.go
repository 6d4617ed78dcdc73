package database

import (
	"errors"
	"fmt"
)

// Error kinds shared by the store, the reconciler and the collaborator clients.
var (
	ErrNotFound        = errors.New("not found")
	ErrFaceNotFound    = fmt.Errorf("face %w", ErrNotFound)
	ErrValidation      = errors.New("validation failed")
	ErrExternalService = errors.New("external service error")
)

// ServiceError records a failed call to a recognition or storage collaborator.
// It matches ErrExternalService under errors.Is and unwraps to the cause.
type ServiceError struct {
	Service string // e.g. "rekognition", "s3", "dynamodb"
	Op      string // e.g. "DetectLabels"
	Err     error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Is makes every ServiceError match ErrExternalService.
func (e *ServiceError) Is(target error) bool {
	return target == ErrExternalService
}

// NewServiceError wraps err as a ServiceError, or returns nil for a nil err.
func NewServiceError(service, op string, err error) error {
	if err == nil {
		return nil
	}
	return &ServiceError{Service: service, Op: op, Err: err}
}

// Validationf builds an ErrValidation error with a formatted reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
