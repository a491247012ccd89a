package shelf

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Sentinel errors for common shelf error conditions.
// These errors can be used with errors.Is() for error checking.
var (
	// ErrStoreNotFound indicates a persisted store snapshot is missing.
	// Loading a non-existent snapshot is fatal for the caller, never
	// silently treated as an empty store.
	ErrStoreNotFound = errors.New("store snapshot not found")

	// ErrNodeNotFound indicates a node id was not present in the arena.
	ErrNodeNotFound = errors.New("node not found")

	// ErrBudgetExceeded indicates the call-budget ceiling was reached.
	// It is fatal and intended to short-circuit a pipeline run rather
	// than bill or compute indefinitely.
	ErrBudgetExceeded = errors.New("call budget exceeded")

	// ErrQuota indicates the provider rejected a call for quota or
	// authorization reasons. Distinguishable from transient failures.
	ErrQuota = errors.New("provider quota or authorization failure")

	// ErrMalformedResponse indicates a model response did not match the
	// expected shape and could not be parsed.
	ErrMalformedResponse = errors.New("malformed model response")

	// ErrEmptyInput indicates an operation received no content units.
	ErrEmptyInput = errors.New("empty input")
)

// Error kinds categorize errors by their type.
const (
	// KindNotFound represents errors where a resource was not found.
	KindNotFound = "not_found"

	// KindValidation represents errors related to input validation.
	KindValidation = "validation"

	// KindParse represents errors parsing model output.
	KindParse = "parse"

	// KindBudget represents call-budget exhaustion.
	KindBudget = "budget"

	// KindQuota represents provider quota or authorization failures.
	KindQuota = "quota"

	// KindNetwork represents errors related to network operations.
	KindNetwork = "network"

	// KindTimeout represents errors related to operation timeouts.
	KindTimeout = "timeout"

	// KindInternal represents internal errors.
	KindInternal = "internal"
)

// Error is a structured error type that wraps underlying errors with
// additional context about the operation that failed and the category of
// error.
//
// Error implements the error interface and supports error unwrapping,
// making it compatible with errors.Is() and errors.As().
type Error struct {
	// Op is the operation that failed (e.g., "Store.Load", "Retriever.Retrieve").
	Op string

	// Kind categorizes the error (e.g., KindNotFound, KindBudget).
	Kind string

	// Err is the underlying error that caused this error.
	Err error

	// Context provides additional context about the error (optional).
	// This can include node ids, paths, or other debugging information.
	Context map[string]any
}

// Error implements the error interface, returning a formatted message that
// includes the operation, kind, and underlying error.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("shelf: %s: %s", e.Op, e.Kind)
	}

	if len(e.Context) > 0 {
		return fmt.Sprintf("shelf: %s (%s): %v [context: %+v]", e.Op, e.Kind, e.Err, e.Context)
	}

	return fmt.Sprintf("shelf: %s (%s): %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error, allowing errors.Is() and errors.As()
// to work correctly with wrapped errors.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error matching for Error, allowing comparison based on the
// underlying error or on another Error's kind.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}

	if t, ok := target.(*Error); ok {
		if t.Kind != "" && e.Kind == t.Kind {
			if t.Op == "" || e.Op == t.Op {
				return true
			}
		}
	}

	return errors.Is(e.Err, target)
}

// WithContext returns a new Error with the provided context added.
func (e *Error) WithContext(ctx map[string]any) *Error {
	newErr := *e
	if newErr.Context == nil {
		newErr.Context = make(map[string]any)
	}
	for k, v := range ctx {
		newErr.Context[k] = v
	}
	return &newErr
}

// NewNotFoundError creates a new Error with KindNotFound.
func NewNotFoundError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindNotFound, Err: err}
}

// NewValidationError creates a new Error with KindValidation.
func NewValidationError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindValidation, Err: err}
}

// NewParseError creates a new Error with KindParse.
func NewParseError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindParse, Err: err}
}

// NewBudgetError creates a new Error with KindBudget.
func NewBudgetError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindBudget, Err: err}
}

// NewQuotaError creates a new Error with KindQuota.
func NewQuotaError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindQuota, Err: err}
}

// NewNetworkError creates a new Error with KindNetwork.
func NewNetworkError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindNetwork, Err: err}
}

// NewTimeoutError creates a new Error with KindTimeout.
func NewTimeoutError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindTimeout, Err: err}
}

// NewInternalError creates a new Error with KindInternal.
func NewInternalError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindInternal, Err: err}
}

// IsFatal reports whether an error should abort a pipeline run outright.
// Budget exhaustion and quota failures are never retried or masked.
func IsFatal(err error) bool {
	return errors.Is(err, ErrBudgetExceeded) || errors.Is(err, ErrQuota)
}

// CloseWithLog attempts to close the provided resource and logs any error
// at warning level. Intended for use in defer statements so cleanup errors
// are not silently ignored. If logger is nil, slog.Default() is used.
func CloseWithLog(closer io.Closer, logger *slog.Logger, name string) {
	if closer == nil {
		return
	}

	if logger == nil {
		logger = slog.Default()
	}

	if err := closer.Close(); err != nil {
		logger.Warn("failed to close resource",
			"resource", name,
			"error", err)
	}
}
