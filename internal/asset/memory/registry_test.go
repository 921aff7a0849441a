package memory

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zulelabs/marketd/internal/domain"
)

var (
	market   = common.HexToAddress("0x0000000000000000000000000000000000000101")
	contract = common.HexToAddress("0x0000000000000000000000000000000000000202")
	seller   = common.HexToAddress("0x0000000000000000000000000000000000000303")
	buyer    = common.HexToAddress("0x0000000000000000000000000000000000000404")
)

func TestSingleUnitTransfer(t *testing.T) {
	ctx := context.Background()
	reg := NewSingleUnit(market)
	id := big.NewInt(1)

	reg.Mint(contract, id, seller)
	reg.SetApprovalForAll(contract, seller, market, true)

	ok, err := reg.VerifyOwnership(ctx, contract, id, 1, seller)
	if err != nil || !ok {
		t.Fatalf("VerifyOwnership = %v, %v; want true", ok, err)
	}
	ok, err = reg.VerifyApproval(ctx, contract, seller, market)
	if err != nil || !ok {
		t.Fatalf("VerifyApproval = %v, %v; want true", ok, err)
	}

	if err := reg.Transfer(ctx, contract, id, 1, seller, buyer); err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	owner, _ := reg.OwnerOf(contract, id)
	if owner != buyer {
		t.Fatalf("owner after transfer = %s, want %s", owner, buyer)
	}
}

func TestSingleUnitTransferDeniedWithoutApproval(t *testing.T) {
	ctx := context.Background()
	reg := NewSingleUnit(market)
	id := big.NewInt(1)
	reg.Mint(contract, id, seller)

	err := reg.Transfer(ctx, contract, id, 1, seller, buyer)
	if !errors.Is(err, domain.ErrTransferDenied) {
		t.Fatalf("Transfer without approval = %v, want ErrTransferDenied", err)
	}

	owner, _ := reg.OwnerOf(contract, id)
	if owner != seller {
		t.Fatalf("owner mutated on denied transfer: %s", owner)
	}
}

func TestSingleUnitQuantityMustBeOne(t *testing.T) {
	ctx := context.Background()
	reg := NewSingleUnit(market)
	id := big.NewInt(7)
	reg.Mint(contract, id, seller)
	reg.SetApprovalForAll(contract, seller, market, true)

	if ok, _ := reg.VerifyOwnership(ctx, contract, id, 2, seller); ok {
		t.Fatal("VerifyOwnership with quantity 2 must be false for single-unit assets")
	}
	if err := reg.Transfer(ctx, contract, id, 2, seller, buyer); !errors.Is(err, domain.ErrTransferDenied) {
		t.Fatalf("Transfer quantity 2 = %v, want ErrTransferDenied", err)
	}
}

func TestMultiUnitTransfer(t *testing.T) {
	ctx := context.Background()
	reg := NewMultiUnit(market)
	id := big.NewInt(1)

	reg.Mint(contract, id, seller, 10)
	reg.SetApprovalForAll(contract, seller, market, true)

	ok, err := reg.VerifyOwnership(ctx, contract, id, 10, seller)
	if err != nil || !ok {
		t.Fatalf("VerifyOwnership = %v, %v; want true", ok, err)
	}
	if ok, _ := reg.VerifyOwnership(ctx, contract, id, 11, seller); ok {
		t.Fatal("VerifyOwnership above balance must be false")
	}

	if err := reg.Transfer(ctx, contract, id, 4, seller, buyer); err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	if got := reg.BalanceOf(contract, id, seller); got != 6 {
		t.Fatalf("seller balance = %d, want 6", got)
	}
	if got := reg.BalanceOf(contract, id, buyer); got != 4 {
		t.Fatalf("buyer balance = %d, want 4", got)
	}
}

func TestMultiUnitTransferDenied(t *testing.T) {
	ctx := context.Background()
	reg := NewMultiUnit(market)
	id := big.NewInt(1)
	reg.Mint(contract, id, seller, 3)
	reg.SetApprovalForAll(contract, seller, market, true)

	if err := reg.Transfer(ctx, contract, id, 5, seller, buyer); !errors.Is(err, domain.ErrTransferDenied) {
		t.Fatalf("Transfer above balance = %v, want ErrTransferDenied", err)
	}
	if got := reg.BalanceOf(contract, id, seller); got != 3 {
		t.Fatalf("seller balance mutated on denied transfer: %d", got)
	}

	reg.SetApprovalForAll(contract, seller, market, false)
	if err := reg.Transfer(ctx, contract, id, 1, seller, buyer); !errors.Is(err, domain.ErrTransferDenied) {
		t.Fatalf("Transfer after revoked approval = %v, want ErrTransferDenied", err)
	}
}
