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

// erc1155ABI covers only the surface the marketplace consumes.
const erc1155ABI = `[
	{"type":"function","stateMutability":"view","name":"balanceOf","inputs":[{"name":"account","type":"address"},{"name":"id","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","stateMutability":"view","name":"isApprovedForAll","inputs":[{"name":"account","type":"address"},{"name":"operator","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","stateMutability":"nonpayable","name":"safeTransferFrom","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"id","type":"uint256"},{"name":"amount","type":"uint256"},{"name":"data","type":"bytes"}],"outputs":[]}
]`

// ERC1155Adapter speaks the multi-unit registry convention.
type ERC1155Adapter struct {
	backend      Backend
	parsed       abi.ABI
	auth         *bind.TransactOpts
	minedTimeout time.Duration
}

func newERC1155(backend Backend, auth *bind.TransactOpts, minedTimeout time.Duration) (*ERC1155Adapter, error) {
	return &ERC1155Adapter{
		backend:      backend,
		parsed:       mustParseABI(erc1155ABI),
		auth:         auth,
		minedTimeout: minedTimeout,
	}, nil
}

func (a *ERC1155Adapter) contract(addr common.Address) *bind.BoundContract {
	return bind.NewBoundContract(addr, a.parsed, a.backend, a.backend, a.backend)
}

func (a *ERC1155Adapter) VerifyOwnership(ctx context.Context, contract common.Address, assetID *big.Int, quantity uint64, owner common.Address) (bool, error) {
	var out []any
	err := a.contract(contract).Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", owner, assetID)
	if err != nil {
		if isRevert(err) {
			return false, nil
		}
		return false, fmt.Errorf("erc1155: balanceOf %s/%s: %w", contract, assetID, err)
	}
	bal := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	return bal.Cmp(new(big.Int).SetUint64(quantity)) >= 0, nil
}

func (a *ERC1155Adapter) VerifyApproval(ctx context.Context, contract common.Address, owner, operator common.Address) (bool, error) {
	var out []any
	err := a.contract(contract).Call(&bind.CallOpts{Context: ctx}, &out, "isApprovedForAll", owner, operator)
	if err != nil {
		if isRevert(err) {
			return false, nil
		}
		return false, fmt.Errorf("erc1155: isApprovedForAll %s: %w", contract, err)
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

func (a *ERC1155Adapter) Transfer(ctx context.Context, contract common.Address, assetID *big.Int, quantity uint64, from, to common.Address) error {
	if quantity == 0 {
		return fmt.Errorf("erc1155: zero quantity: %w", domain.ErrTransferDenied)
	}

	opts := *a.auth
	opts.Context = ctx

	tx, err := a.contract(contract).Transact(&opts, "safeTransferFrom",
		from, to, assetID, new(big.Int).SetUint64(quantity), []byte{})
	if err != nil {
		if isRevert(err) {
			return fmt.Errorf("erc1155: safeTransferFrom %s/%s: %w", contract, assetID, domain.ErrTransferDenied)
		}
		return fmt.Errorf("erc1155: safeTransferFrom %s/%s: %w", contract, assetID, err)
	}
	return waitMined(ctx, a.backend, tx, a.minedTimeout)
}

var _ domain.AssetAdapter = (*ERC1155Adapter)(nil)
