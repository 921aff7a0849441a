package domain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListingStore is the authoritative listing table. State transitions are
// conditional on the current state so that concurrent callers observe
// exactly-once semantics: a transition whose precondition no longer holds
// fails with ErrNotActive and mutates nothing.
type ListingStore interface {
	// Create persists l in active state and returns the assigned
	// sequential id.
	Create(ctx context.Context, l Listing) (int64, error)

	// GetByID returns the listing or ErrNotFound.
	GetByID(ctx context.Context, id int64) (Listing, error)

	// ListActive returns active listings, newest first.
	ListActive(ctx context.Context, opts ListOpts) ([]Listing, error)

	// ListBySeller returns a seller's listings in any state, newest first.
	ListBySeller(ctx context.Context, seller common.Address, opts ListOpts) ([]Listing, error)

	// HasActiveDuplicate reports whether seller already has an active
	// listing for the same contract and asset id.
	HasActiveDuplicate(ctx context.Context, contract common.Address, assetID *big.Int, seller common.Address) (bool, error)

	// Cancel transitions active → cancelled; ErrNotActive otherwise.
	Cancel(ctx context.Context, id int64) error

	// MarkSold transitions active → sold and records the buyer and fee.
	// This conditional update is the exactly-once purchase gate.
	MarkSold(ctx context.Context, id int64, buyer common.Address, feePaid *big.Int) error

	// Reopen transitions sold → active. Settlement rollback only; no other
	// caller may revive a terminal listing.
	Reopen(ctx context.Context, id int64) error
}

// FeePolicyStore persists the singleton fee policy.
type FeePolicyStore interface {
	// Get returns the current policy or ErrNotFound before initialization.
	Get(ctx context.Context) (FeePolicy, error)
	Put(ctx context.Context, p FeePolicy) error
}

// AdminState is the singleton administrative record.
type AdminState struct {
	Admin         common.Address
	ProposedAdmin *common.Address
	Paused        bool
	InitializedAt time.Time
	UpdatedAt     time.Time
}

// AdminStore persists the administrative record.
type AdminStore interface {
	// Get returns the record or ErrNotFound before initialization.
	Get(ctx context.Context) (AdminState, error)

	// Init writes the initial record exactly once; a second call fails with
	// ErrAlreadyInitialized.
	Init(ctx context.Context, admin common.Address) error

	Put(ctx context.Context, s AdminState) error
}

// LockManager provides keyed mutual exclusion across processes. Acquire
// returns ErrLockHeld when another party holds the key; on success the
// returned func releases the lock and is safe to call multiple times.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter enforces a sliding request budget per key.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
