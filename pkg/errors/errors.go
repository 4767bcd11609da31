package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
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

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrConflict
	ErrInternal
)

// Ledger and saga error codes. These are business rejections: valid
// outcomes of a payment attempt that travel between services as events,
// never as faults.
const (
	ErrAccountNotFound ErrorCode = iota + 2000
	ErrAccountAlreadyExists
	ErrInsufficientFunds
	ErrInvalidAmount
	ErrOrderNotFound
)

// Error constructors
func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewBadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Message: message,
		Err:     err,
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

func AccountNotFound(userID string) *AppError {
	return &AppError{
		Code:    ErrAccountNotFound,
		Message: fmt.Sprintf("account not found for user %s", userID),
	}
}

func AccountAlreadyExists(userID string) *AppError {
	return &AppError{
		Code:    ErrAccountAlreadyExists,
		Message: fmt.Sprintf("account already exists for user %s", userID),
	}
}

func InsufficientFunds(userID string) *AppError {
	return &AppError{
		Code:    ErrInsufficientFunds,
		Message: fmt.Sprintf("insufficient funds for user %s", userID),
	}
}

func InvalidAmount(message string) *AppError {
	return &AppError{
		Code:    ErrInvalidAmount,
		Message: message,
	}
}

func OrderNotFound(id string) *AppError {
	return &AppError{
		Code:    ErrOrderNotFound,
		Message: fmt.Sprintf("order %s not found", id),
	}
}

// Code extracts the ErrorCode from err, or ErrInternal when err is not
// an AppError.
func Code(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// IsBusiness reports whether err is a business rejection rather than an
// infrastructure failure. Business rejections must not abort a consumer
// loop; they are encoded into outcome events instead.
func IsBusiness(err error) bool {
	switch Code(err) {
	case ErrAccountNotFound, ErrAccountAlreadyExists, ErrInsufficientFunds, ErrInvalidAmount, ErrOrderNotFound:
		return true
	}
	return false
}
