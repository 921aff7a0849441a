// Package domain defines the marketplace entities, the error taxonomy, and the
// interfaces that the storage, ledger, and messaging layers implement.
package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// AssetStandard selects which capability adapter moves an asset.
type AssetStandard string

const (
	// AssetSingleUnit is a registry with exactly one indivisible unit per
	// asset id (ERC-721 convention).
	AssetSingleUnit AssetStandard = "single"
	// AssetMultiUnit is a registry with a fungible quantity of units per
	// asset id (ERC-1155 convention).
	AssetMultiUnit AssetStandard = "multi"
)

// Valid reports whether s is a known standard.
func (s AssetStandard) Valid() bool {
	return s == AssetSingleUnit || s == AssetMultiUnit
}

// ListingState tracks the listing lifecycle.
type ListingState string

const (
	ListingStateActive    ListingState = "active"
	ListingStateSold      ListingState = "sold"
	ListingStateCancelled ListingState = "cancelled"
)

// Terminal reports whether no further transition is allowed out of s.
func (s ListingState) Terminal() bool {
	return s == ListingStateSold || s == ListingStateCancelled
}

// Listing is a seller's offer to sell a fixed quantity of a specific asset at
// a fixed native-currency price. Everything except State, Buyer, FeePaid and
// the lifecycle timestamps is immutable after creation. Rows are never
// deleted; terminal listings are retained for audit.
type Listing struct {
	ID            int64
	AssetContract common.Address
	AssetID       *big.Int
	Standard      AssetStandard
	Quantity      uint64
	Seller        common.Address
	Price         *big.Int // wei
	State         ListingState
	Buyer         *common.Address // set when sold
	FeePaid       *big.Int        // set when sold
	CreatedAt     time.Time
	SoldAt        *time.Time
	CancelledAt   *time.Time
}

// ListOpts carries standard pagination parameters for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}
