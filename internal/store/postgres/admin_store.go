package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zulelabs/marketd/internal/domain"
)

// AdminStore persists the singleton administrative record.
type AdminStore struct {
	pool *pgxpool.Pool
}

// NewAdminStore creates an AdminStore backed by the given connection pool.
func NewAdminStore(pool *pgxpool.Pool) *AdminStore {
	return &AdminStore{pool: pool}
}

func (s *AdminStore) Get(ctx context.Context) (domain.AdminState, error) {
	var st domain.AdminState
	var admin string
	var proposed *string

	err := s.pool.QueryRow(ctx,
		`SELECT admin, proposed_admin, paused, initialized_at, updated_at
		 FROM marketplace_admin`,
	).Scan(&admin, &proposed, &st.Paused, &st.InitializedAt, &st.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.AdminState{}, fmt.Errorf("postgres: admin state: %w", domain.ErrNotFound)
		}
		return domain.AdminState{}, fmt.Errorf("postgres: get admin state: %w", err)
	}

	st.Admin = common.HexToAddress(admin)
	if proposed != nil {
		p := common.HexToAddress(*proposed)
		st.ProposedAdmin = &p
	}
	return st, nil
}

// Init inserts the singleton row; the primary-key constraint makes a second
// initialization fail atomically.
func (s *AdminStore) Init(ctx context.Context, admin common.Address) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO marketplace_admin (admin) VALUES ($1)`, admin.Hex())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("postgres: admin init: %w", domain.ErrAlreadyInitialized)
		}
		return fmt.Errorf("postgres: admin init: %w", err)
	}
	return nil
}

func (s *AdminStore) Put(ctx context.Context, st domain.AdminState) error {
	var proposed *string
	if st.ProposedAdmin != nil {
		p := st.ProposedAdmin.Hex()
		proposed = &p
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE marketplace_admin
		 SET admin = $1, proposed_admin = $2, paused = $3, updated_at = NOW()`,
		st.Admin.Hex(), proposed, st.Paused)
	if err != nil {
		return fmt.Errorf("postgres: put admin state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: put admin state before init: %w", domain.ErrNotInitialized)
	}
	return nil
}

// FeePolicyStore persists the singleton fee policy; recipients are stored as
// a JSONB array.
type FeePolicyStore struct {
	pool *pgxpool.Pool
}

// NewFeePolicyStore creates a FeePolicyStore backed by the given pool.
func NewFeePolicyStore(pool *pgxpool.Pool) *FeePolicyStore {
	return &FeePolicyStore{pool: pool}
}

type feeRecipientJSON struct {
	Address  string `json:"address"`
	ShareBps uint32 `json:"share_bps"`
}

func (s *FeePolicyStore) Get(ctx context.Context) (domain.FeePolicy, error) {
	var p domain.FeePolicy
	var recipients []byte

	err := s.pool.QueryRow(ctx,
		`SELECT rate_bps, recipients, updated_at FROM fee_policy`,
	).Scan(&p.RateBps, &recipients, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.FeePolicy{}, fmt.Errorf("postgres: fee policy: %w", domain.ErrNotFound)
		}
		return domain.FeePolicy{}, fmt.Errorf("postgres: get fee policy: %w", err)
	}

	var raw []feeRecipientJSON
	if err := json.Unmarshal(recipients, &raw); err != nil {
		return domain.FeePolicy{}, fmt.Errorf("postgres: decode fee recipients: %w", err)
	}
	for _, r := range raw {
		p.Recipients = append(p.Recipients, domain.FeeRecipient{
			Address:  common.HexToAddress(r.Address),
			ShareBps: r.ShareBps,
		})
	}
	return p, nil
}

func (s *FeePolicyStore) Put(ctx context.Context, p domain.FeePolicy) error {
	raw := make([]feeRecipientJSON, 0, len(p.Recipients))
	for _, r := range p.Recipients {
		raw = append(raw, feeRecipientJSON{Address: r.Address.Hex(), ShareBps: r.ShareBps})
	}
	recipients, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("postgres: encode fee recipients: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO fee_policy (singleton, rate_bps, recipients, updated_at)
		 VALUES (TRUE, $1, $2, NOW())
		 ON CONFLICT (singleton) DO UPDATE
		 SET rate_bps = EXCLUDED.rate_bps, recipients = EXCLUDED.recipients, updated_at = NOW()`,
		p.RateBps, recipients)
	if err != nil {
		return fmt.Errorf("postgres: put fee policy: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique-constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}

var (
	_ domain.AdminStore     = (*AdminStore)(nil)
	_ domain.FeePolicyStore = (*FeePolicyStore)(nil)
)
