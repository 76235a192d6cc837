package errors

import (
	"errors"
	"fmt"
	"time"
)

// Error domains group failures by the subsystem that raised them.
const (
	DomainProvisioning = "provisioning"
	DomainReconcile    = "reconcile"
	DomainPanel        = "panel"
	DomainDatabase     = "database"
	DomainAPI          = "api"
	DomainSystem       = "system"
)

// Stable error codes surfaced to callers and mapped to transport status codes.
const (
	ErrCodeInvalidArgument    = "invalid_argument"
	ErrCodeNoCapacity         = "no_capacity"
	ErrCodeNotFound           = "not_found"
	ErrCodeRemoteUnreachable  = "remote_unreachable"
	ErrCodeRemoteWrite        = "remote_write_error"
	ErrCodeProvisioningFailed = "provisioning_failed"
	ErrCodeDatabase           = "database_error"
	ErrCodeConfiguration      = "configuration_error"
	ErrCodeInternal           = "internal"
)

// DomainError is the base interface for all structured errors in the application.
type DomainError interface {
	error

	// Domain returns the subsystem context (e.g. "panel", "provisioning").
	Domain() string

	// Code returns a stable error code for API responses.
	Code() string

	// Retryable indicates if the operation can be retried.
	Retryable() bool

	// Metadata returns additional error context.
	Metadata() map[string]any

	// WithMetadata adds metadata to the error.
	WithMetadata(key string, value any) DomainError

	// Timestamp returns when the error occurred.
	Timestamp() time.Time
}

// BaseError is the foundational implementation of DomainError.
type BaseError struct {
	domain    string
	code      string
	message   string
	cause     error
	retryable bool
	metadata  map[string]any
	timestamp time.Time
}

func (e *BaseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *BaseError) Domain() string       { return e.domain }
func (e *BaseError) Code() string         { return e.code }
func (e *BaseError) Retryable() bool      { return e.retryable }
func (e *BaseError) Unwrap() error        { return e.cause }
func (e *BaseError) Timestamp() time.Time { return e.timestamp }

func (e *BaseError) Metadata() map[string]any {
	if e.metadata == nil {
		return nil
	}
	out := make(map[string]any, len(e.metadata))
	for k, v := range e.metadata {
		out[k] = v
	}
	return out
}

// WithMetadata returns a copy of the error carrying the extra key/value pair.
func (e *BaseError) WithMetadata(key string, value any) DomainError {
	metadata := make(map[string]any, len(e.metadata)+1)
	for k, v := range e.metadata {
		metadata[k] = v
	}
	metadata[key] = value

	return &BaseError{
		domain:    e.domain,
		code:      e.code,
		message:   e.message,
		cause:     e.cause,
		retryable: e.retryable,
		metadata:  metadata,
		timestamp: e.timestamp,
	}
}

// NewBaseError creates a new BaseError with the provided fields.
func NewBaseError(domain, code, message string, retryable bool, cause error, metadata map[string]any) DomainError {
	return &BaseError{
		domain:    domain,
		code:      code,
		message:   message,
		cause:     cause,
		retryable: retryable,
		metadata:  metadata,
		timestamp: time.Now(),
	}
}

// NewProvisioningError creates an error in the provisioning domain.
func NewProvisioningError(code, message string, retryable bool, cause error) DomainError {
	return NewBaseError(DomainProvisioning, code, message, retryable, cause, nil)
}

// NewReconcileError creates an error in the reconcile domain.
func NewReconcileError(code, message string, retryable bool, cause error) DomainError {
	return NewBaseError(DomainReconcile, code, message, retryable, cause, nil)
}

// NewPanelError creates an error in the remote panel domain.
func NewPanelError(code, message string, retryable bool, cause error) DomainError {
	return NewBaseError(DomainPanel, code, message, retryable, cause, nil)
}

// NewDatabaseError creates an error in the database domain.
func NewDatabaseError(code, message string, retryable bool, cause error) DomainError {
	return NewBaseError(DomainDatabase, code, message, retryable, cause, nil)
}

// NewSystemError creates an error in the system domain.
func NewSystemError(code, message string, retryable bool, cause error) DomainError {
	return NewBaseError(DomainSystem, code, message, retryable, cause, nil)
}

// WrapWithDomain wraps an existing error with domain context.
func WrapWithDomain(err error, domain, code, message string, retryable bool) DomainError {
	return NewBaseError(domain, code, message, retryable, err, nil)
}

// IsDomainError checks if an error is a DomainError.
func IsDomainError(err error) bool {
	var domainErr DomainError
	return errors.As(err, &domainErr)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var domainErr DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Retryable()
	}
	return false
}

// GetErrorCode returns the error code if it's a DomainError, otherwise "unknown".
func GetErrorCode(err error) string {
	var domainErr DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code()
	}
	return "unknown"
}

// GetErrorDomain returns the error domain if it's a DomainError, otherwise "unknown".
func GetErrorDomain(err error) string {
	var domainErr DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Domain()
	}
	return "unknown"
}

// IsErrorCode checks if any error in the chain carries the specified code.
func IsErrorCode(err error, code string) bool {
	for err != nil {
		if domainErr, ok := err.(DomainError); ok && domainErr.Code() == code {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}
