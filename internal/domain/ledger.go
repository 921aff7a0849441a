package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PaymentLeg is one credit within a settlement payout.
type PaymentLeg struct {
	To     common.Address
	Amount *big.Int
}

// BalanceLedger custodies native-currency balances for marketplace accounts.
// Implementations must use atomic check-then-mutate semantics: a debit either
// observes sufficient funds and applies, or fails with ErrInsufficientFunds
// leaving every balance untouched.
type BalanceLedger interface {
	// Deposit credits account by amount.
	Deposit(ctx context.Context, account common.Address, amount *big.Int) error

	// Withdraw debits account by amount, failing with ErrInsufficientFunds
	// if the balance is lower than amount.
	Withdraw(ctx context.Context, account common.Address, amount *big.Int) error

	// Balance returns the current balance of account (zero if unknown).
	Balance(ctx context.Context, account common.Address) (*big.Int, error)

	// TransferSplit atomically debits from by the sum of the legs and
	// credits each leg's recipient. Either every leg applies or none does.
	TransferSplit(ctx context.Context, from common.Address, legs []PaymentLeg) error
}
