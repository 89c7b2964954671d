package service

import (
	"errors"
	"fmt"
)

// Error codes carried by AppError. Handlers translate them into HTTP statuses.
const (
	CodeValidation     = "VALIDATION_ERROR"
	CodeAuthentication = "AUTHENTICATION_FAILED"
	CodeForbidden      = "FORBIDDEN"
	CodeNotFound       = "NOT_FOUND"
	CodeInternal       = "INTERNAL_ERROR"
)

var (
	ErrEmailAlreadyExists    = errors.New("email already exists")
	ErrUsernameAlreadyExists = errors.New("username already exists")
	ErrInvalidCredentials    = errors.New("no active account found with the given credentials")
	ErrAccountNotValid       = errors.New("user account is not valid")
	ErrProtectedFields       = errors.New("cannot update email or password")
)

// AppError represents a custom application error
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewValidationError(message string) *AppError {
	return &AppError{Code: CodeValidation, Message: message}
}

func NewAuthenticationError(message string, cause error) *AppError {
	return &AppError{Code: CodeAuthentication, Message: message, Err: cause}
}

func NewForbiddenError(message string) *AppError {
	return &AppError{Code: CodeForbidden, Message: message}
}

func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{Code: CodeNotFound, Message: fmt.Sprintf("%s with ID %v not found", resource, id)}
}

func NewInternalError(err error) *AppError {
	return &AppError{Code: CodeInternal, Message: "Internal server error", Err: err}
}

// CodeOf returns the AppError code in err's chain, or CodeInternal.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// sentinelError wraps a sentinel so callers can match it with errors.Is while clients
// only ever see message.
func sentinelError(code string, sentinel error, message string) *AppError {
	return &AppError{Code: code, Message: message, Err: sentinel}
}
