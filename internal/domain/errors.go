package domain

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrNotActive             = errors.New("listing not active")
	ErrInvalidPrice          = errors.New("invalid price")
	ErrInvalidQuantity       = errors.New("invalid quantity")
	ErrNotOwnerOrNotApproved = errors.New("seller does not own or has not approved the asset")
	ErrDuplicateListing      = errors.New("identical listing already active")
	ErrInsufficientPayment   = errors.New("payment below listing price")
	ErrExcessPayment         = errors.New("payment above listing price")
	ErrTransferDenied        = errors.New("asset transfer denied")
	ErrPaymentTransferFailed = errors.New("payment transfer failed")
	ErrInvalidRate           = errors.New("fee rate out of range")
	ErrSplitMismatch         = errors.New("fee split does not sum to the whole fee")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrAlreadyInitialized    = errors.New("marketplace already initialized")
	ErrNotInitialized        = errors.New("marketplace not initialized")
	ErrPaused                = errors.New("marketplace paused")
	ErrLockHeld              = errors.New("lock already held")
)
