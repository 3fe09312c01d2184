package errors

import (
	"context"
	"errors"
	"fmt"
)

// Wrap wraps an error with additional context while preserving the error chain.
// If err is nil, Wrap returns nil.
// If err is already a structured Error, its code and metadata are kept.
// Otherwise it becomes an Internal error wrapping the original.
func Wrap(err error, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}

	var regErr *Error
	if errors.As(err, &regErr) {
		wrapped := &Error{
			code:      regErr.code,
			category:  regErr.category,
			message:   message,
			cause:     err,
			metadata:  regErr.Metadata(),
			retryable: regErr.retryable,
			timestamp: regErr.timestamp,
		}
		for _, opt := range opts {
			opt(wrapped)
		}
		return wrapped
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return New(ErrCodeTimeout, message, append(opts, WithCause(err))...)
	}
	if errors.Is(err, context.Canceled) {
		return New(ErrCodeCanceled, message, append(opts, WithCause(err))...)
	}

	return New(ErrCodeInternal, message, append(opts, WithCause(err))...)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WrapWithCode wraps an error with a specific error code.
func WrapWithCode(err error, code ErrorCode, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}
	opts = append(opts, WithCause(err))
	return New(code, message, opts...)
}

// AsRegistryError extracts a RegistryError from an error chain.
// Returns nil if none is found.
func AsRegistryError(err error) RegistryError {
	var regErr *Error
	if errors.As(err, &regErr) {
		return regErr
	}
	return nil
}

// Is checks if the outermost structured error in the chain has the given code.
func Is(err error, code ErrorCode) bool {
	var regErr *Error
	if errors.As(err, &regErr) {
		return regErr.code == code
	}
	return false
}

// IsCategory checks if the outermost structured error has the given category.
func IsCategory(err error, category ErrorCategory) bool {
	var regErr *Error
	if errors.As(err, &regErr) {
		return regErr.category == category
	}
	return false
}

// IsRetryable checks if the error is retryable.
// Errors outside the taxonomy are never retryable.
func IsRetryable(err error) bool {
	var regErr *Error
	if errors.As(err, &regErr) {
		return regErr.Retryable()
	}
	return false
}

// Code extracts the error code from an error, if available.
func Code(err error) ErrorCode {
	var regErr *Error
	if errors.As(err, &regErr) {
		return regErr.code
	}
	return ""
}

// GetMetadata extracts metadata from an error.
// Returns nil if err is not a structured Error.
func GetMetadata(err error) map[string]string {
	var regErr *Error
	if errors.As(err, &regErr) {
		return regErr.Metadata()
	}
	return nil
}

// Cause returns the root cause of the error chain.
func Cause(err error) error {
	for {
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return err
		}
		inner := unwrapper.Unwrap()
		if inner == nil {
			return err
		}
		err = inner
	}
}

// Join combines multiple errors into a single error, skipping nils.
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// RecoverPanic converts a recovered panic value into an Error.
func RecoverPanic(recovered interface{}) *Error {
	if recovered == nil {
		return nil
	}
	var message string
	switch v := recovered.(type) {
	case error:
		message = v.Error()
	case string:
		message = v
	default:
		message = fmt.Sprintf("%v", v)
	}
	return New(ErrCodePanic, message, WithMetadata("panic_value", fmt.Sprintf("%T", recovered)))
}
