package model

import (
	"errors"
	"fmt"
)

// ErrorCode represents a structured error code.
type ErrorCode string

// API error codes.
const (
	ErrValidation ErrorCode = "VALIDATION_ERROR"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
)

// Kernel contract violations. Each one is fatal.
const (
	ErrBlockInInterrupt  ErrorCode = "BLOCK_IN_INTERRUPT"
	ErrLockReentry       ErrorCode = "LOCK_REENTRY"
	ErrLockNotHeld       ErrorCode = "LOCK_NOT_HELD"
	ErrCondLockNotHeld   ErrorCode = "COND_LOCK_NOT_HELD"
	ErrPriorityRange     ErrorCode = "PRIORITY_RANGE"
	ErrStackOverflow     ErrorCode = "STACK_OVERFLOW"
	ErrInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrDonationCycle     ErrorCode = "DONATION_CYCLE"
	ErrIntrLevel         ErrorCode = "INTR_LEVEL"
	ErrDeadlock          ErrorCode = "DEADLOCK"
)

// ContractCodes lists every kernel contract violation code.
var ContractCodes = []ErrorCode{
	ErrBlockInInterrupt, ErrLockReentry, ErrLockNotHeld, ErrCondLockNotHeld,
	ErrPriorityRange, ErrStackOverflow, ErrInvalidTransition, ErrDonationCycle,
	ErrIntrLevel, ErrDeadlock,
}

// IsContractCode reports whether c names a kernel contract violation.
func (c ErrorCode) IsContractCode() bool {
	for _, known := range ContractCodes {
		if c == known {
			return true
		}
	}
	return false
}

// ErrNoThreadSlots is returned when the thread table has no free TCB.
var ErrNoThreadSlots = errors.New("no free thread slots")

// APIError is a structured error returned by the introspection API.
type APIError struct {
	Code    ErrorCode    `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// NewValidationError creates an APIError with validation details.
func NewValidationError(msg string, details ...FieldError) *APIError {
	return &APIError{Code: ErrValidation, Message: msg, Details: details}
}

// NewNotFoundError creates a NOT_FOUND APIError.
func NewNotFoundError(resource, id string) *APIError {
	return &APIError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s '%s' not found", resource, id),
	}
}

// ContractError describes a broken caller: a kernel operation was used in a
// way its contract forbids.
type ContractError struct {
	Code     ErrorCode
	Message  string
	ThreadID int32
	Thread   string
}

func (e *ContractError) Error() string {
	if e.Thread == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (thread %d %q)", e.Code, e.Message, e.ThreadID, e.Thread)
}

// NewContractError creates a ContractError not yet attributed to a thread.
func NewContractError(code ErrorCode, format string, args ...any) *ContractError {
	return &ContractError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// IsContract reports whether err is a contract violation with the given code.
func IsContract(err error, code ErrorCode) bool {
	var ce *ContractError
	return errors.As(err, &ce) && ce.Code == code
}

// KernelPanic is the record of a fatal kernel halt.
type KernelPanic struct {
	ThreadID int32
	Thread   string
	Tick     int64
	Value    any
	Stack    []byte
}

func (p *KernelPanic) Error() string {
	return fmt.Sprintf("kernel panic in thread %d %q at tick %d: %v", p.ThreadID, p.Thread, p.Tick, p.Value)
}

// Unwrap exposes the panic value when it is an error.
func (p *KernelPanic) Unwrap() error {
	if err, ok := p.Value.(error); ok {
		return err
	}
	return nil
}

// InvalidTransitionError is returned when a status transition is invalid.
type InvalidTransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s state transition: %s → %s (entity %s)", e.Entity, e.From, e.To, e.ID)
}
