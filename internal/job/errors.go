package job

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes invariant violations.
type ErrorCode string

const (
	// ErrCodeDuplicateNode indicates a second node with an existing key.
	ErrCodeDuplicateNode ErrorCode = "DUPLICATE_NODE"

	// ErrCodeMissingParent indicates a parent absent from the graph.
	ErrCodeMissingParent ErrorCode = "MISSING_PARENT"

	// ErrCodeNotReady indicates a node finalized before its parents were attached.
	ErrCodeNotReady ErrorCode = "NOT_READY"

	// ErrCodeFinalized indicates a mutation after finalize.
	ErrCodeFinalized ErrorCode = "FINALIZED"

	// ErrCodeCycle indicates a dependency cycle.
	ErrCodeCycle ErrorCode = "CYCLE"

	// ErrCodeBadOption indicates an option key outside a kind's vocabulary.
	ErrCodeBadOption ErrorCode = "BAD_OPTION"
)

// InvariantError reports a programming defect detected while building a
// graph. Builders treat it as fatal.
type InvariantError struct {
	Code    ErrorCode
	Node    string
	Message string
}

// Error implements the error interface.
func (e *InvariantError) Error() string {
	if e.Node != "" {
		return fmt.Sprintf("%s: %s (node=%s)", e.Code, e.Message, e.Node)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// HasCode reports whether err wraps an InvariantError with the given code.
func HasCode(err error, code ErrorCode) bool {
	var ie *InvariantError
	if errors.As(err, &ie) {
		return ie.Code == code
	}
	return false
}

func invariant(code ErrorCode, node, format string, args ...any) *InvariantError {
	return &InvariantError{Code: code, Node: node, Message: fmt.Sprintf(format, args...)}
}
