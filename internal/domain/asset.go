package domain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AssetAdapter is the narrow capability interface the marketplace consumes
// from an external asset registry. The marketplace never reimplements registry
// bookkeeping; it only queries ownership, checks transfer authorization, and
// moves units on the seller's behalf.
//
// Transfer must be all-or-nothing on the registry side and must return
// ErrTransferDenied (possibly wrapped) when the registry rejects the move;
// insufficient balance, revoked approval, or a nonexistent asset. Callers
// never assume success without a nil error.
type AssetAdapter interface {
	// VerifyOwnership reports whether owner holds at least quantity units of
	// assetID in the given registry contract.
	VerifyOwnership(ctx context.Context, contract common.Address, assetID *big.Int, quantity uint64, owner common.Address) (bool, error)

	// VerifyApproval reports whether owner has authorized operator to move
	// its assets in the given registry contract.
	VerifyApproval(ctx context.Context, contract common.Address, owner, operator common.Address) (bool, error)

	// Transfer moves quantity units of assetID from one holder to another.
	Transfer(ctx context.Context, contract common.Address, assetID *big.Int, quantity uint64, from, to common.Address) error
}

// AdapterSet maps each asset standard to the adapter that speaks it.
type AdapterSet map[AssetStandard]AssetAdapter

// For returns the adapter for the given standard.
func (s AdapterSet) For(std AssetStandard) (AssetAdapter, error) {
	a, ok := s[std]
	if !ok {
		return nil, fmt.Errorf("no asset adapter for standard %q: %w", std, ErrNotFound)
	}
	return a, nil
}
