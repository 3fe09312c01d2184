package errors

// ErrorCategory classifies errors by their retry semantics.
type ErrorCategory string

const (
	// CategoryTransient indicates temporary failures where retry may succeed.
	CategoryTransient ErrorCategory = "transient"

	// CategoryPermanent indicates failures where retry will not help.
	CategoryPermanent ErrorCategory = "permanent"

	// CategoryInternal indicates unexpected errors or recovered panics.
	CategoryInternal ErrorCategory = "internal"
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	return string(c)
}

// IsRetryable returns true if errors in this category may succeed on retry.
func (c ErrorCategory) IsRetryable() bool {
	return c == CategoryTransient
}

// ErrorCode identifies specific error types within categories.
type ErrorCode string

const (
	// Transient errors
	ErrCodeTimeout      ErrorCode = "TIMEOUT"      // Session or operation timed out
	ErrCodeUnavailable  ErrorCode = "UNAVAILABLE"  // Coordination service unreachable
	ErrCodeCoordination ErrorCode = "COORDINATION" // Coordination-service failure

	// Permanent errors
	ErrCodeConfiguration ErrorCode = "CONFIGURATION"  // Capability/manifest defect
	ErrCodeRouting       ErrorCode = "ROUTING"        // No routing URL for adaptive call
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"      // Node or entry does not exist
	ErrCodeAlreadyExists ErrorCode = "ALREADY_EXISTS" // Node or entry already exists
	ErrCodeInvalidInput  ErrorCode = "INVALID_INPUT"  // Malformed URL or argument
	ErrCodeClosed        ErrorCode = "CLOSED"         // Registry or client closed
	ErrCodeUnsupported   ErrorCode = "UNSUPPORTED"    // Operation not supported
	ErrCodeCanceled      ErrorCode = "CANCELED"       // Operation was canceled

	// Internal errors
	ErrCodeInternal ErrorCode = "INTERNAL" // Unexpected internal error
	ErrCodePanic    ErrorCode = "PANIC"    // Recovered from panic
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// DefaultCategory returns the default category for an error code.
func (c ErrorCode) DefaultCategory() ErrorCategory {
	switch c {
	case ErrCodeTimeout, ErrCodeUnavailable, ErrCodeCoordination:
		return CategoryTransient

	case ErrCodeConfiguration, ErrCodeRouting, ErrCodeNotFound, ErrCodeAlreadyExists,
		ErrCodeInvalidInput, ErrCodeClosed, ErrCodeUnsupported, ErrCodeCanceled:
		return CategoryPermanent

	default:
		return CategoryInternal
	}
}

var codeDescriptions = map[ErrorCode]string{
	ErrCodeTimeout:       "operation timed out",
	ErrCodeUnavailable:   "coordination service unavailable",
	ErrCodeCoordination:  "coordination failure",
	ErrCodeConfiguration: "invalid configuration",
	ErrCodeRouting:       "no routing url",
	ErrCodeNotFound:      "not found",
	ErrCodeAlreadyExists: "already exists",
	ErrCodeInvalidInput:  "invalid input",
	ErrCodeClosed:        "closed",
	ErrCodeUnsupported:   "operation not supported",
	ErrCodeCanceled:      "operation canceled",
	ErrCodeInternal:      "internal error",
	ErrCodePanic:         "recovered from panic",
}

// Description returns a human-readable description for the error code.
func (c ErrorCode) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}
