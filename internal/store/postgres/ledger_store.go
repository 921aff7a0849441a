package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zulelabs/marketd/internal/domain"
)

// LedgerStore implements domain.BalanceLedger using PostgreSQL. Debits are
// conditional updates guarded by the non-negative balance constraint, so
// check-then-mutate has no race window.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a LedgerStore backed by the given connection pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

func (s *LedgerStore) Deposit(ctx context.Context, account common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("postgres: deposit amount must be positive: %w", domain.ErrInvalidPrice)
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO balances (account, amount) VALUES ($1, $2)
		 ON CONFLICT (account) DO UPDATE SET amount = balances.amount + EXCLUDED.amount`,
		account.Hex(), amount.String())
	if err != nil {
		return fmt.Errorf("postgres: deposit to %s: %w", account, err)
	}
	return nil
}

func (s *LedgerStore) Withdraw(ctx context.Context, account common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("postgres: withdraw amount must be positive: %w", domain.ErrInvalidPrice)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE balances SET amount = amount - $2
		 WHERE account = $1 AND amount >= $2`,
		account.Hex(), amount.String())
	if err != nil {
		return fmt.Errorf("postgres: withdraw from %s: %w", account, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: withdraw %s from %s: %w", amount, account, domain.ErrInsufficientFunds)
	}
	return nil
}

func (s *LedgerStore) Balance(ctx context.Context, account common.Address) (*big.Int, error) {
	var amount string
	err := s.pool.QueryRow(ctx,
		`SELECT amount::text FROM balances WHERE account = $1`, account.Hex(),
	).Scan(&amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return new(big.Int), nil
		}
		return nil, fmt.Errorf("postgres: balance of %s: %w", account, err)
	}

	b, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return nil, fmt.Errorf("postgres: balance of %s: bad numeric %q", account, amount)
	}
	return b, nil
}

// TransferSplit debits the payer and credits every leg inside one database
// transaction; a payer shortfall rolls everything back.
func (s *LedgerStore) TransferSplit(ctx context.Context, from common.Address, legs []domain.PaymentLeg) error {
	total := new(big.Int)
	for _, leg := range legs {
		if leg.Amount == nil || leg.Amount.Sign() < 0 {
			return fmt.Errorf("postgres: negative leg to %s: %w", leg.To, domain.ErrPaymentTransferFailed)
		}
		total.Add(total, leg.Amount)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin settlement transfer: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE balances SET amount = amount - $2
		 WHERE account = $1 AND amount >= $2`,
		from.Hex(), total.String())
	if err != nil {
		return fmt.Errorf("postgres: settlement debit %s: %w", from, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: settlement debit %s for %s: %w", from, total, domain.ErrInsufficientFunds)
	}

	for _, leg := range legs {
		if leg.Amount.Sign() == 0 {
			continue
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO balances (account, amount) VALUES ($1, $2)
			 ON CONFLICT (account) DO UPDATE SET amount = balances.amount + EXCLUDED.amount`,
			leg.To.Hex(), leg.Amount.String())
		if err != nil {
			return fmt.Errorf("postgres: settlement credit %s: %w", leg.To, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit settlement transfer: %w", err)
	}
	return nil
}

var _ domain.BalanceLedger = (*LedgerStore)(nil)
