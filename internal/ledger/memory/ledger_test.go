package memory

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zulelabs/marketd/internal/domain"
)

var (
	alice = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b02")
	carol = common.HexToAddress("0x0000000000000000000000000000000000000c03")
)

func balanceOf(t *testing.T, l *Ledger, a common.Address) *big.Int {
	t.Helper()
	b, err := l.Balance(context.Background(), a)
	if err != nil {
		t.Fatalf("Balance(%s): %v", a, err)
	}
	return b
}

func TestDepositWithdraw(t *testing.T) {
	ctx := context.Background()
	l := New()

	if err := l.Deposit(ctx, alice, big.NewInt(100)); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if err := l.Withdraw(ctx, alice, big.NewInt(40)); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if got := balanceOf(t, l, alice); got.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("balance = %s, want 60", got)
	}

	err := l.Withdraw(ctx, alice, big.NewInt(61))
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("overdraw = %v, want ErrInsufficientFunds", err)
	}
	if got := balanceOf(t, l, alice); got.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("balance mutated on failed withdraw: %s", got)
	}
}

func TestTransferSplitAtomic(t *testing.T) {
	ctx := context.Background()
	l := New()
	if err := l.Deposit(ctx, alice, big.NewInt(100)); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	legs := []domain.PaymentLeg{
		{To: bob, Amount: big.NewInt(98)},
		{To: carol, Amount: big.NewInt(2)},
	}
	if err := l.TransferSplit(ctx, alice, legs); err != nil {
		t.Fatalf("TransferSplit: %v", err)
	}

	if got := balanceOf(t, l, alice); got.Sign() != 0 {
		t.Fatalf("payer balance = %s, want 0", got)
	}
	if got := balanceOf(t, l, bob); got.Cmp(big.NewInt(98)) != 0 {
		t.Fatalf("bob balance = %s, want 98", got)
	}
	if got := balanceOf(t, l, carol); got.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("carol balance = %s, want 2", got)
	}
}

func TestTransferSplitInsufficientLeavesAllUntouched(t *testing.T) {
	ctx := context.Background()
	l := New()
	if err := l.Deposit(ctx, alice, big.NewInt(50)); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	legs := []domain.PaymentLeg{
		{To: bob, Amount: big.NewInt(49)},
		{To: carol, Amount: big.NewInt(2)},
	}
	err := l.TransferSplit(ctx, alice, legs)
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("TransferSplit = %v, want ErrInsufficientFunds", err)
	}

	if got := balanceOf(t, l, alice); got.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("payer balance mutated: %s", got)
	}
	if got := balanceOf(t, l, bob); got.Sign() != 0 {
		t.Fatalf("bob credited on failed split: %s", got)
	}
}

func TestConcurrentWithdrawNoOverdraft(t *testing.T) {
	ctx := context.Background()
	l := New()
	if err := l.Deposit(ctx, alice, big.NewInt(10)); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	const attempts = 50
	var wg sync.WaitGroup
	var okCount sync.Map
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := l.Withdraw(ctx, alice, big.NewInt(1)); err == nil {
				okCount.Store(i, true)
			}
		}(i)
	}
	wg.Wait()

	var succeeded int
	okCount.Range(func(_, _ any) bool { succeeded++; return true })
	if succeeded != 10 {
		t.Fatalf("%d withdrawals succeeded, want 10", succeeded)
	}
	if got := balanceOf(t, l, alice); got.Sign() != 0 {
		t.Fatalf("balance = %s, want 0", got)
	}
}
