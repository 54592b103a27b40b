// internal/executor/errors.go
package executor

import "errors"

// ErrorCode classifies why a single action did not complete.
type ErrorCode string

const (
	// CodeGrammarMismatch: the text matched no command in the active grammar.
	CodeGrammarMismatch ErrorCode = "GRAMMAR_MISMATCH"
	// CodeBoundsViolation: a coordinate fell outside the current screen.
	CodeBoundsViolation ErrorCode = "BOUNDS_VIOLATION"
	// CodeDeviceFailure: the input device returned an error or panicked.
	CodeDeviceFailure ErrorCode = "DEVICE_FAILURE"
	// CodeDepthExceeded: a batch was nested deeper than allowed.
	CodeDepthExceeded ErrorCode = "DEPTH_EXCEEDED"
	// CodeInvalidAction: the action is well-formed but cannot be performed,
	// e.g. a PRESS with no key names.
	CodeInvalidAction ErrorCode = "INVALID_ACTION"
	// CodeCancelled: the context ended before the action started.
	CodeCancelled ErrorCode = "CANCELLED"
)

// ErrDepthExceeded is reported for batches nested beyond the configured depth.
var ErrDepthExceeded = errors.New("executor: batch nesting depth exceeded")

// ErrGrammarMismatch is reported for Unknown actions.
var ErrGrammarMismatch = errors.New("executor: text matched no command")
