package txman

import (
	"errors"
	"fmt"
)

// Kind classifies a failure into the stable taxonomy callers are allowed to
// depend on. Raw driver errors never cross the package boundary unclassified.
type Kind int

const (
	// Unknown is an unmapped driver code. Treat as non-retryable unless proven otherwise.
	Unknown Kind = iota
	// PoolExhausted means no connection became available within the acquire timeout.
	PoolExhausted
	// ConnectionInvalid means a leased connection failed its liveness check.
	ConnectionInvalid
	// DuplicateKey means a uniqueness constraint was violated.
	DuplicateKey
	// DataIntegrityViolation means some other constraint was violated (foreign key, not-null, check).
	DataIntegrityViolation
	// SyntaxError means the statement itself is malformed. Programming defect.
	SyntaxError
	// TransientError is a driver-reported transient condition (lock timeout, deadlock). Safe to retry.
	TransientError
	// TransactionClosed means an operation was attempted against a descriptor that is no longer ACTIVE.
	TransactionClosed
	// AlreadyBound means Begin found an unresolvable existing binding on the execution context.
	AlreadyBound
)

var kindNames = map[Kind]string{
	Unknown:                "unknown",
	PoolExhausted:          "pool exhausted",
	ConnectionInvalid:      "connection invalid",
	DuplicateKey:           "duplicate key",
	DataIntegrityViolation: "data integrity violation",
	SyntaxError:            "syntax error",
	TransientError:         "transient error",
	TransactionClosed:      "transaction closed",
	AlreadyBound:           "already bound",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Retryable reports whether a retry after backoff may succeed for this kind.
// It is guidance only, this package never retries on its own.
func (k Kind) Retryable() bool {
	return k == PoolExhausted || k == TransientError
}

// SemanticError is the single error shape this package surfaces. The original
// driver error is always kept as Cause, classification never drops it.
type SemanticError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *SemanticError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *SemanticError) Unwrap() error {
	return e.Cause
}

// NewError builds a SemanticError. cause may be nil for defects this package
// detects itself (AlreadyBound, TransactionClosed).
func NewError(kind Kind, message string, cause error) *SemanticError {
	return &SemanticError{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err. Errors that did not pass through this
// package report Unknown.
func KindOf(err error) Kind {
	var se *SemanticError
	if errors.As(err, &se) {
		return se.Kind
	}
	return Unknown
}
