// Package memory provides the in-memory balance ledger used by local mode and
// tests. The postgres-backed ledger in store/postgres is the durable variant.
package memory

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zulelabs/marketd/internal/domain"
)

// Ledger holds native-currency balances keyed by account. All operations are
// check-then-mutate under one mutex, so a multi-leg settlement either applies
// fully or not at all.
type Ledger struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{balances: make(map[common.Address]*big.Int)}
}

func (l *Ledger) balance(account common.Address) *big.Int {
	b, ok := l.balances[account]
	if !ok {
		b = new(big.Int)
		l.balances[account] = b
	}
	return b
}

// Deposit credits account by amount.
func (l *Ledger) Deposit(_ context.Context, account common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("ledger: deposit amount must be positive: %w", domain.ErrInvalidPrice)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balance(account).Add(l.balance(account), amount)
	return nil
}

// Withdraw debits account by amount, failing with ErrInsufficientFunds when
// the balance is lower.
func (l *Ledger) Withdraw(_ context.Context, account common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("ledger: withdraw amount must be positive: %w", domain.ErrInvalidPrice)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.balance(account)
	if b.Cmp(amount) < 0 {
		return fmt.Errorf("ledger: withdraw %s from %s (balance %s): %w",
			amount, account, b, domain.ErrInsufficientFunds)
	}
	b.Sub(b, amount)
	return nil
}

// Balance returns a copy of account's balance.
func (l *Ledger) Balance(_ context.Context, account common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.balance(account)), nil
}

// TransferSplit atomically debits from by the sum of the legs and credits
// each recipient. Nothing moves if from lacks the total.
func (l *Ledger) TransferSplit(_ context.Context, from common.Address, legs []domain.PaymentLeg) error {
	total := new(big.Int)
	for _, leg := range legs {
		if leg.Amount == nil || leg.Amount.Sign() < 0 {
			return fmt.Errorf("ledger: negative leg to %s: %w", leg.To, domain.ErrPaymentTransferFailed)
		}
		total.Add(total, leg.Amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.balance(from)
	if b.Cmp(total) < 0 {
		return fmt.Errorf("ledger: settle %s from %s (balance %s): %w",
			total, from, b, domain.ErrInsufficientFunds)
	}
	b.Sub(b, total)
	for _, leg := range legs {
		l.balance(leg.To).Add(l.balance(leg.To), leg.Amount)
	}
	return nil
}

var _ domain.BalanceLedger = (*Ledger)(nil)
