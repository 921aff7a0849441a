package evm

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/zulelabs/marketd/internal/domain"
)

// erc721ABI covers only the surface the marketplace consumes.
const erc721ABI = `[
	{"type":"function","stateMutability":"view","name":"ownerOf","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","stateMutability":"view","name":"isApprovedForAll","inputs":[{"name":"owner","type":"address"},{"name":"operator","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","stateMutability":"nonpayable","name":"safeTransferFrom","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"}],"outputs":[]}
]`

// ERC721Adapter speaks the single-unit registry convention.
type ERC721Adapter struct {
	backend      Backend
	parsed       abi.ABI
	auth         *bind.TransactOpts
	minedTimeout time.Duration
}

func newERC721(backend Backend, auth *bind.TransactOpts, minedTimeout time.Duration) (*ERC721Adapter, error) {
	return &ERC721Adapter{
		backend:      backend,
		parsed:       mustParseABI(erc721ABI),
		auth:         auth,
		minedTimeout: minedTimeout,
	}, nil
}

func (a *ERC721Adapter) contract(addr common.Address) *bind.BoundContract {
	return bind.NewBoundContract(addr, a.parsed, a.backend, a.backend, a.backend)
}

// VerifyOwnership checks ownerOf. A single-unit asset can only ever satisfy
// quantity 1; a reverted call (nonexistent token) is a negative answer.
func (a *ERC721Adapter) VerifyOwnership(ctx context.Context, contract common.Address, assetID *big.Int, quantity uint64, owner common.Address) (bool, error) {
	if quantity != 1 {
		return false, nil
	}

	var out []any
	err := a.contract(contract).Call(&bind.CallOpts{Context: ctx}, &out, "ownerOf", assetID)
	if err != nil {
		if isRevert(err) {
			return false, nil
		}
		return false, fmt.Errorf("erc721: ownerOf %s/%s: %w", contract, assetID, err)
	}
	cur := *abi.ConvertType(out[0], new(common.Address)).(*common.Address)
	return cur == owner, nil
}

func (a *ERC721Adapter) VerifyApproval(ctx context.Context, contract common.Address, owner, operator common.Address) (bool, error) {
	var out []any
	err := a.contract(contract).Call(&bind.CallOpts{Context: ctx}, &out, "isApprovedForAll", owner, operator)
	if err != nil {
		if isRevert(err) {
			return false, nil
		}
		return false, fmt.Errorf("erc721: isApprovedForAll %s: %w", contract, err)
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

// Transfer submits safeTransferFrom from the operator account and waits for
// the receipt. A revert at submission or in the mined receipt maps to
// domain.ErrTransferDenied.
func (a *ERC721Adapter) Transfer(ctx context.Context, contract common.Address, assetID *big.Int, quantity uint64, from, to common.Address) error {
	if quantity != 1 {
		return fmt.Errorf("erc721: quantity %d: %w", quantity, domain.ErrTransferDenied)
	}

	opts := *a.auth
	opts.Context = ctx

	tx, err := a.contract(contract).Transact(&opts, "safeTransferFrom", from, to, assetID)
	if err != nil {
		if isRevert(err) {
			return fmt.Errorf("erc721: safeTransferFrom %s/%s: %w", contract, assetID, domain.ErrTransferDenied)
		}
		return fmt.Errorf("erc721: safeTransferFrom %s/%s: %w", contract, assetID, err)
	}
	return waitMined(ctx, a.backend, tx, a.minedTimeout)
}

var _ domain.AssetAdapter = (*ERC721Adapter)(nil)
