// Package evm implements domain.AssetAdapter against on-chain ERC-721 and
// ERC-1155 registries. The marketplace operator account executes transfers on
// the seller's behalf, which the seller enables with setApprovalForAll.
package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/zulelabs/marketd/internal/domain"
)

// Backend is the subset of ethclient.Client the adapters need: contract calls
// plus receipt lookup for mined transfers.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Config holds chain connection and operator parameters.
type Config struct {
	RPCURL         string
	ChainID        int64
	OperatorKeyHex string // hex-encoded private key of the marketplace operator
	MinedTimeout   time.Duration
}

// Adapters bundles the two standard adapters plus the operator identity they
// transact from.
type Adapters struct {
	SingleUnit *ERC721Adapter
	MultiUnit  *ERC1155Adapter
	Operator   common.Address
}

// Dial connects to the chain RPC endpoint and builds both adapters from the
// operator key.
func Dial(ctx context.Context, cfg Config) (*Adapters, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("evm: dial %s: %w", cfg.RPCURL, err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.OperatorKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("evm: parse operator key: %w", err)
	}

	return NewAdapters(client, key, big.NewInt(cfg.ChainID), cfg.MinedTimeout)
}

// NewAdapters builds both adapters on an existing backend.
func NewAdapters(backend Backend, operatorKey *ecdsa.PrivateKey, chainID *big.Int, minedTimeout time.Duration) (*Adapters, error) {
	auth, err := bind.NewKeyedTransactorWithChainID(operatorKey, chainID)
	if err != nil {
		return nil, fmt.Errorf("evm: build transactor: %w", err)
	}
	if minedTimeout <= 0 {
		minedTimeout = 2 * time.Minute
	}

	erc721, err := newERC721(backend, auth, minedTimeout)
	if err != nil {
		return nil, err
	}
	erc1155, err := newERC1155(backend, auth, minedTimeout)
	if err != nil {
		return nil, err
	}

	return &Adapters{
		SingleUnit: erc721,
		MultiUnit:  erc1155,
		Operator:   auth.From,
	}, nil
}

// Set returns the adapters keyed by asset standard for the settlement engine.
func (a *Adapters) Set() domain.AdapterSet {
	return domain.AdapterSet{
		domain.AssetSingleUnit: a.SingleUnit,
		domain.AssetMultiUnit:  a.MultiUnit,
	}
}

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("evm: parse ABI: %v", err))
	}
	return parsed
}

// isRevert reports whether a call error looks like a contract revert rather
// than a transport failure. Reverted view calls (e.g. ownerOf on a burned
// token) are negative answers, not errors.
func isRevert(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "execution reverted") || strings.Contains(msg, "revert")
}

// waitMined blocks until tx is mined and maps a failed receipt to
// domain.ErrTransferDenied.
func waitMined(ctx context.Context, backend bind.DeployBackend, tx *types.Transaction, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	receipt, err := bind.WaitMined(ctx, backend, tx)
	if err != nil {
		return fmt.Errorf("evm: wait mined %s: %w", tx.Hash(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("evm: transfer tx %s reverted: %w", tx.Hash(), domain.ErrTransferDenied)
	}
	return nil
}
