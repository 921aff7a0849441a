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

// AdminService owns the administrative record: one-time initialization,
// two-step authority transfer, and the pause switch.
type AdminService struct {
	admin  domain.AdminStore
	fees   domain.FeePolicyStore
	logger *slog.Logger
}

// NewAdminService creates an AdminService.
func NewAdminService(admin domain.AdminStore, fees domain.FeePolicyStore, logger *slog.Logger) *AdminService {
	return &AdminService{
		admin:  admin,
		fees:   fees,
		logger: logger.With(slog.String("component", "admin_service")),
	}
}

// Initialize sets the admin identity and seeds the fee policy with the admin
// as the sole fee recipient. Exactly once; a second call fails with
// ErrAlreadyInitialized.
func (s *AdminService) Initialize(ctx context.Context, admin common.Address, feeRateBps uint32) error {
	if feeRateBps > domain.BpsDenominator {
		return fmt.Errorf("admin: init rate %d: %w", feeRateBps, domain.ErrInvalidRate)
	}

	if err := s.admin.Init(ctx, admin); err != nil {
		return fmt.Errorf("admin: %w", err)
	}

	policy := domain.FeePolicy{
		RateBps:    feeRateBps,
		Recipients: []domain.FeeRecipient{{Address: admin, ShareBps: domain.BpsDenominator}},
		UpdatedAt:  time.Now().UTC(),
	}
	if err := s.fees.Put(ctx, policy); err != nil {
		return fmt.Errorf("admin: seed fee policy: %w", err)
	}

	s.logger.InfoContext(ctx, "marketplace initialized",
		slog.String("admin", admin.Hex()),
		slog.Uint64("fee_rate_bps", uint64(feeRateBps)),
	)
	return nil
}

// State returns the administrative record.
func (s *AdminService) State(ctx context.Context) (domain.AdminState, error) {
	st, err := s.admin.Get(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.AdminState{}, fmt.Errorf("admin: %w", domain.ErrNotInitialized)
		}
		return domain.AdminState{}, fmt.Errorf("admin: %w", err)
	}
	return st, nil
}

// TransferAdmin proposes a new authority. The transfer completes only when
// the proposed identity calls AcceptAdmin, so a typo cannot lock the system
// out of administration.
func (s *AdminService) TransferAdmin(ctx context.Context, caller, proposed common.Address) error {
	st, err := s.State(ctx)
	if err != nil {
		return err
	}
	if caller != st.Admin {
		return fmt.Errorf("admin: transfer by %s: %w", caller, domain.ErrUnauthorized)
	}

	st.ProposedAdmin = &proposed
	if err := s.admin.Put(ctx, st); err != nil {
		return fmt.Errorf("admin: persist transfer proposal: %w", err)
	}

	s.logger.InfoContext(ctx, "admin transfer proposed",
		slog.String("current", st.Admin.Hex()),
		slog.String("proposed", proposed.Hex()),
	)
	return nil
}

// AcceptAdmin completes a pending transfer. Only the proposed identity may
// accept.
func (s *AdminService) AcceptAdmin(ctx context.Context, caller common.Address) error {
	st, err := s.State(ctx)
	if err != nil {
		return err
	}
	if st.ProposedAdmin == nil || caller != *st.ProposedAdmin {
		return fmt.Errorf("admin: accept by %s: %w", caller, domain.ErrUnauthorized)
	}

	st.Admin = caller
	st.ProposedAdmin = nil
	if err := s.admin.Put(ctx, st); err != nil {
		return fmt.Errorf("admin: persist transfer: %w", err)
	}

	s.logger.InfoContext(ctx, "admin transfer accepted", slog.String("admin", caller.Hex()))
	return nil
}

// SetPaused flips the pause switch. While paused, listing creation and
// purchases are rejected; cancellation stays available.
func (s *AdminService) SetPaused(ctx context.Context, caller common.Address, paused bool) error {
	st, err := s.State(ctx)
	if err != nil {
		return err
	}
	if caller != st.Admin {
		return fmt.Errorf("admin: pause by %s: %w", caller, domain.ErrUnauthorized)
	}

	st.Paused = paused
	if err := s.admin.Put(ctx, st); err != nil {
		return fmt.Errorf("admin: persist pause: %w", err)
	}

	s.logger.InfoContext(ctx, "pause switch set", slog.Bool("paused", paused))
	return nil
}
