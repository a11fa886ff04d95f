package apierrors

import (
	"errors"
	"fmt"
)

// Precondition failures. These are checked before any write, so a caller
// can always retry after correcting its input.
var (
	ErrProjectNotFound          = errors.New("project not found")
	ErrInvalidName              = errors.New("invalid project name")
	ErrSameSourceAndDestination = errors.New("source and destination are the same")
	ErrLocationChangeViaRename  = errors.New("cannot change project location via rename, use move instead")
	ErrDepthExceeded            = errors.New("project path depth exceeds maximum")
	ErrUnknownField             = errors.New("unknown update field")
	ErrProjectExists            = errors.New("project with the same name already exists")
	ErrMissingIDOrName          = errors.New("project id or name required")
)

// ErrStoreUnavailable classifies store request failures: timeouts, network
// errors, malformed results. A multi-step mutation aborted on this error
// may have left partial state behind.
var ErrStoreUnavailable = errors.New("document store unavailable")

// NotFoundError wraps ErrProjectNotFound with the offending id.
type NotFoundError struct {
	ID      string
	Company string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("project not found: id=%s company=%s", e.ID, e.Company)
}

func (e *NotFoundError) Unwrap() error { return ErrProjectNotFound }

// DepthExceededError wraps ErrDepthExceeded and carries the configured
// bound for diagnostics.
type DepthExceededError struct {
	MaxDepth int
}

func (e *DepthExceededError) Error() string {
	return fmt.Sprintf("project path depth exceeds maximum of %d", e.MaxDepth)
}

func (e *DepthExceededError) Unwrap() error { return ErrDepthExceeded }

// StoreError wraps an underlying driver error as ErrStoreUnavailable while
// keeping the failed operation name.
func StoreError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}
