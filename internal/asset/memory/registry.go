// Package memory provides in-memory asset registries implementing
// domain.AssetAdapter. They back local mode and tests; production deployments
// use the evm adapters instead.
package memory

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zulelabs/marketd/internal/domain"
)

type assetKey struct {
	contract common.Address
	assetID  string
}

type approvalKey struct {
	contract common.Address
	owner    common.Address
	operator common.Address
}

// SingleUnitRegistry models registries with exactly one indivisible unit per
// asset id. Transfers are performed by the marketplace acting as operator and
// require an approval from the current owner.
type SingleUnitRegistry struct {
	operator common.Address

	mu        sync.Mutex
	owners    map[assetKey]common.Address
	approvals map[approvalKey]bool
}

// NewSingleUnit creates a registry whose transfers are executed by operator.
func NewSingleUnit(operator common.Address) *SingleUnitRegistry {
	return &SingleUnitRegistry{
		operator:  operator,
		owners:    make(map[assetKey]common.Address),
		approvals: make(map[approvalKey]bool),
	}
}

// Mint assigns assetID to owner. Test and local-mode setup helper.
func (r *SingleUnitRegistry) Mint(contract common.Address, assetID *big.Int, owner common.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners[assetKey{contract, assetID.String()}] = owner
}

// SetApprovalForAll records or revokes owner's blanket approval of operator.
func (r *SingleUnitRegistry) SetApprovalForAll(contract, owner, operator common.Address, approved bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.approvals[approvalKey{contract, owner, operator}] = approved
}

// OwnerOf returns the current owner of assetID, or false if never minted.
func (r *SingleUnitRegistry) OwnerOf(contract common.Address, assetID *big.Int) (common.Address, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, ok := r.owners[assetKey{contract, assetID.String()}]
	return owner, ok
}

func (r *SingleUnitRegistry) VerifyOwnership(_ context.Context, contract common.Address, assetID *big.Int, quantity uint64, owner common.Address) (bool, error) {
	if quantity != 1 {
		return false, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.owners[assetKey{contract, assetID.String()}]
	return ok && cur == owner, nil
}

func (r *SingleUnitRegistry) VerifyApproval(_ context.Context, contract common.Address, owner, operator common.Address) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.approvals[approvalKey{contract, owner, operator}], nil
}

func (r *SingleUnitRegistry) Transfer(_ context.Context, contract common.Address, assetID *big.Int, quantity uint64, from, to common.Address) error {
	if quantity != 1 {
		return fmt.Errorf("single-unit registry: quantity %d: %w", quantity, domain.ErrTransferDenied)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := assetKey{contract, assetID.String()}
	cur, ok := r.owners[key]
	if !ok || cur != from {
		return fmt.Errorf("single-unit registry: %s not owner of asset %s: %w", from, assetID, domain.ErrTransferDenied)
	}
	if from != r.operator && !r.approvals[approvalKey{contract, from, r.operator}] {
		return fmt.Errorf("single-unit registry: operator not approved by %s: %w", from, domain.ErrTransferDenied)
	}
	r.owners[key] = to
	return nil
}

// MultiUnitRegistry models registries holding a fungible quantity of units
// per asset id.
type MultiUnitRegistry struct {
	operator common.Address

	mu        sync.Mutex
	balances  map[assetKey]map[common.Address]uint64
	approvals map[approvalKey]bool
}

// NewMultiUnit creates a registry whose transfers are executed by operator.
func NewMultiUnit(operator common.Address) *MultiUnitRegistry {
	return &MultiUnitRegistry{
		operator:  operator,
		balances:  make(map[assetKey]map[common.Address]uint64),
		approvals: make(map[approvalKey]bool),
	}
}

// Mint credits owner with quantity units of assetID.
func (r *MultiUnitRegistry) Mint(contract common.Address, assetID *big.Int, owner common.Address, quantity uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := assetKey{contract, assetID.String()}
	if r.balances[key] == nil {
		r.balances[key] = make(map[common.Address]uint64)
	}
	r.balances[key][owner] += quantity
}

// SetApprovalForAll records or revokes owner's blanket approval of operator.
func (r *MultiUnitRegistry) SetApprovalForAll(contract, owner, operator common.Address, approved bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.approvals[approvalKey{contract, owner, operator}] = approved
}

// BalanceOf returns owner's unit balance for assetID.
func (r *MultiUnitRegistry) BalanceOf(contract common.Address, assetID *big.Int, owner common.Address) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.balances[assetKey{contract, assetID.String()}][owner]
}

func (r *MultiUnitRegistry) VerifyOwnership(_ context.Context, contract common.Address, assetID *big.Int, quantity uint64, owner common.Address) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.balances[assetKey{contract, assetID.String()}][owner] >= quantity, nil
}

func (r *MultiUnitRegistry) VerifyApproval(_ context.Context, contract common.Address, owner, operator common.Address) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.approvals[approvalKey{contract, owner, operator}], nil
}

func (r *MultiUnitRegistry) Transfer(_ context.Context, contract common.Address, assetID *big.Int, quantity uint64, from, to common.Address) error {
	if quantity == 0 {
		return fmt.Errorf("multi-unit registry: zero quantity: %w", domain.ErrTransferDenied)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := assetKey{contract, assetID.String()}
	if r.balances[key][from] < quantity {
		return fmt.Errorf("multi-unit registry: %s holds %d of asset %s, need %d: %w",
			from, r.balances[key][from], assetID, quantity, domain.ErrTransferDenied)
	}
	if from != r.operator && !r.approvals[approvalKey{contract, from, r.operator}] {
		return fmt.Errorf("multi-unit registry: operator not approved by %s: %w", from, domain.ErrTransferDenied)
	}
	r.balances[key][from] -= quantity
	r.balances[key][to] += quantity
	return nil
}

// Compile-time interface checks.
var (
	_ domain.AssetAdapter = (*SingleUnitRegistry)(nil)
	_ domain.AssetAdapter = (*MultiUnitRegistry)(nil)
)
