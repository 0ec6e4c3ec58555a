package economy

import "errors"

// Engine-level error kinds. Storage-adjacent kinds (account not found,
// insufficient balance, item not found/out of stock, already claimed) live
// with their repo interfaces; callers match all of them with errors.Is.
var (
	// ErrInvalidTransfer covers self-transfers, non-positive amounts, and
	// failed re-validation at trade settlement time.
	ErrInvalidTransfer = errors.New("invalid transfer")
	// ErrTransferLimitExceeded means the rolling-24h outbound cap was hit.
	ErrTransferLimitExceeded = errors.New("daily transfer limit exceeded")
	// ErrItemNotAvailable means the item exists but is not for sale.
	ErrItemNotAvailable = errors.New("item not available")
	// ErrInvalidState means the trade was already resolved.
	ErrInvalidState = errors.New("trade already resolved")
	// ErrNotAuthorized means the actor may not act on this entity.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrTimeout means the unit of work exceeded its time budget with no
	// observable effect. Retryable.
	ErrTimeout = errors.New("operation timed out")
	// ErrConflict means a concurrent modification aborted the unit of work.
	// Retryable.
	ErrConflict = errors.New("concurrent modification conflict")
)
