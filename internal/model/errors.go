package model

import (
	"errors"
	"fmt"
	"time"
)

// Error kinds. Typed errors below report one of these through errors.Is.
var (
	ErrValidation        = errors.New("validation error")
	ErrAuthorization     = errors.New("authorization error")
	ErrDivergenceTimeout = errors.New("divergence timeout")
	ErrNotFound          = errors.New("not found")
	ErrRemoteCall        = errors.New("remote call failed")
)

// ValidationError reports malformed desired state. It is always local and
// never reaches the remote system.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation: %s", e.Reason)
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NewValidationError builds a ValidationError with a formatted reason.
func NewValidationError(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// RangeError reports a value that does not fit its declared bit width.
type RangeError struct {
	Field string
	Value string
	Width uint
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("range: %s value %s exceeds %d bits", e.Field, e.Value, e.Width)
}

func (e *RangeError) Is(target error) bool { return target == ErrValidation }

// NotFoundError reports a lookup miss (whitelist target, registry name).
type NotFoundError struct {
	What string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s", e.What)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound || target == ErrValidation
}

// AuthorizationError reports a role without a usable signer.
type AuthorizationError struct {
	Role   string
	Reason string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("authorization: role %s: %s", e.Role, e.Reason)
}

func (e *AuthorizationError) Is(target error) bool { return target == ErrAuthorization }

// DivergenceTimeoutError reports a transaction whose confirmations were not
// observed within the wait bound. The state is not corrupted and the unit can
// be rerun; the transaction is never resubmitted automatically.
type DivergenceTimeoutError struct {
	TxHash string
	Waited time.Duration
	Err    error
}

func (e *DivergenceTimeoutError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tx %s not confirmed after %s: %v", e.TxHash, e.Waited, e.Err)
	}
	return fmt.Sprintf("tx %s not confirmed after %s", e.TxHash, e.Waited)
}

func (e *DivergenceTimeoutError) Is(target error) bool { return target == ErrDivergenceTimeout }

func (e *DivergenceTimeoutError) Unwrap() error { return e.Err }

// RemoteCallError carries the failing method and arguments for diagnosis.
type RemoteCallError struct {
	Contract string
	Method   string
	Args     string
	Err      error
}

func (e *RemoteCallError) Error() string {
	return fmt.Sprintf("%s.%s(%s): %v", e.Contract, e.Method, e.Args, e.Err)
}

func (e *RemoteCallError) Is(target error) bool { return target == ErrRemoteCall }

func (e *RemoteCallError) Unwrap() error { return e.Err }
