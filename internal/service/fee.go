package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zulelabs/marketd/internal/domain"
)

// FeeService gates fee policy mutation behind the admin and serves reads.
type FeeService struct {
	fees   domain.FeePolicyStore
	admin  domain.AdminStore
	logger *slog.Logger
}

// NewFeeService creates a FeeService.
func NewFeeService(fees domain.FeePolicyStore, admin domain.AdminStore, logger *slog.Logger) *FeeService {
	return &FeeService{
		fees:   fees,
		admin:  admin,
		logger: logger.With(slog.String("component", "fee_service")),
	}
}

// SetFee replaces the fee policy. Admin only; a malformed rate or split is
// rejected here, at configuration time, never at sale time. The new policy
// applies to future sales only; active listings settle at whatever policy
// is current when they sell.
func (s *FeeService) SetFee(ctx context.Context, caller common.Address, rateBps uint32, recipients []domain.FeeRecipient) error {
	st, err := s.admin.Get(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("fee: %w", domain.ErrNotInitialized)
		}
		return fmt.Errorf("fee: %w", err)
	}
	if caller != st.Admin {
		return fmt.Errorf("fee: set by %s: %w", caller, domain.ErrUnauthorized)
	}

	policy := domain.FeePolicy{
		RateBps:    rateBps,
		Recipients: recipients,
		UpdatedAt:  time.Now().UTC(),
	}
	if err := policy.Validate(); err != nil {
		return fmt.Errorf("fee: %w", err)
	}

	if err := s.fees.Put(ctx, policy); err != nil {
		return fmt.Errorf("fee: persist: %w", err)
	}

	s.logger.InfoContext(ctx, "fee policy updated",
		slog.Uint64("rate_bps", uint64(rateBps)),
		slog.Int("recipients", len(recipients)),
	)
	return nil
}

// CurrentFee returns the active policy.
func (s *FeeService) CurrentFee(ctx context.Context) (domain.FeePolicy, error) {
	p, err := s.fees.Get(ctx)
	if err != nil {
		return domain.FeePolicy{}, fmt.Errorf("fee: %w", err)
	}
	return p, nil
}
