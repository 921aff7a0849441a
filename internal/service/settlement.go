package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/zulelabs/marketd/internal/domain"
)

// purchaseLockTTL bounds how long a crashed instance can hold the optional
// cross-process purchase lock.
const purchaseLockTTL = 30 * time.Second

// SettlementService executes purchases. A purchase is an all-or-nothing
// bundle: claim the listing, move the payment split, move the asset. Every
// check precedes the first mutation, internal mutations carry compensating
// actions, and the irreversible external asset transfer runs last.
type SettlementService struct {
	listings domain.ListingStore
	fees     domain.FeePolicyStore
	admin    domain.AdminStore
	ledger   domain.BalanceLedger
	adapters domain.AdapterSet
	journal  domain.EventJournal
	bus      domain.EventBus
	operator common.Address
	guard    *keyedMutex
	locks    domain.LockManager // optional, for multi-instance deployments
	logger   *slog.Logger
}

// NewSettlementService creates a SettlementService.
func NewSettlementService(
	listings domain.ListingStore,
	fees domain.FeePolicyStore,
	admin domain.AdminStore,
	ledger domain.BalanceLedger,
	adapters domain.AdapterSet,
	journal domain.EventJournal,
	bus domain.EventBus,
	operator common.Address,
	logger *slog.Logger,
) *SettlementService {
	return &SettlementService{
		listings: listings,
		fees:     fees,
		admin:    admin,
		ledger:   ledger,
		adapters: adapters,
		journal:  journal,
		bus:      bus,
		operator: operator,
		guard:    newKeyedMutex(),
		logger:   logger.With(slog.String("component", "settlement")),
	}
}

// WithLockManager attaches a distributed lock so concurrent instances sharing
// one database do not race past the in-process guard. Without it, the
// conditional sold-state update remains the cross-process arbiter.
func (s *SettlementService) WithLockManager(locks domain.LockManager) *SettlementService {
	s.locks = locks
	return s
}

// Purchase settles listingID for buyer against an exact payment from the
// buyer's deposited balance. On any failure the listing stays active and no
// funds or assets move.
func (s *SettlementService) Purchase(ctx context.Context, listingID int64, buyer common.Address, payment *big.Int) (domain.Listing, error) {
	s.guard.Lock(listingID)
	defer s.guard.Unlock(listingID)

	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, fmt.Sprintf("listing:%d", listingID), purchaseLockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				return domain.Listing{}, fmt.Errorf("settlement: purchase of listing %d in flight: %w",
					listingID, domain.ErrNotActive)
			}
			return domain.Listing{}, fmt.Errorf("settlement: %w", err)
		}
		defer unlock()
	}

	st, err := s.admin.Get(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Listing{}, fmt.Errorf("settlement: %w", domain.ErrNotInitialized)
		}
		return domain.Listing{}, fmt.Errorf("settlement: %w", err)
	}
	if st.Paused {
		return domain.Listing{}, fmt.Errorf("settlement: %w", domain.ErrPaused)
	}

	l, err := s.listings.GetByID(ctx, listingID)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("settlement: %w", err)
	}
	if l.State != domain.ListingStateActive {
		return domain.Listing{}, fmt.Errorf("settlement: listing %d is %s: %w", listingID, l.State, domain.ErrNotActive)
	}
	if buyer == l.Seller {
		return domain.Listing{}, fmt.Errorf("settlement: seller cannot buy own listing: %w", domain.ErrUnauthorized)
	}

	// Strict equality: no refund path exists, so an overpayment would strand
	// funds and is rejected outright.
	if payment == nil || payment.Cmp(l.Price) < 0 {
		return domain.Listing{}, fmt.Errorf("settlement: payment below price %s: %w", l.Price, domain.ErrInsufficientPayment)
	}
	if payment.Cmp(l.Price) > 0 {
		return domain.Listing{}, fmt.Errorf("settlement: payment above price %s: %w", l.Price, domain.ErrExcessPayment)
	}

	adapter, err := s.adapters.For(l.Standard)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("settlement: %w", err)
	}

	// Ownership and approval may have changed since listing time; a stale
	// listing fails here instead of failing half-settled below.
	owns, err := adapter.VerifyOwnership(ctx, l.AssetContract, l.AssetID, l.Quantity, l.Seller)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("settlement: verify ownership: %w", err)
	}
	approved := false
	if owns {
		approved, err = adapter.VerifyApproval(ctx, l.AssetContract, l.Seller, s.operator)
		if err != nil {
			return domain.Listing{}, fmt.Errorf("settlement: verify approval: %w", err)
		}
	}
	if !owns || !approved {
		return domain.Listing{}, fmt.Errorf("settlement: listing %d stale (ownership or approval gone): %w",
			listingID, domain.ErrTransferDenied)
	}

	policy, err := s.fees.Get(ctx)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("settlement: fee policy: %w", err)
	}
	fee := policy.Fee(l.Price)
	proceeds := new(big.Int).Sub(l.Price, fee)

	legs := make([]domain.PaymentLeg, 0, len(policy.Recipients)+1)
	if proceeds.Sign() > 0 {
		legs = append(legs, domain.PaymentLeg{To: l.Seller, Amount: proceeds})
	}
	legs = append(legs, policy.SplitFee(fee)...)

	// Compensating actions for committed internal steps, run in reverse on
	// a later failure.
	var undo []func(context.Context) error

	rollback := func(cause error) {
		for i := len(undo) - 1; i >= 0; i-- {
			if err := undo[i](ctx); err != nil {
				s.logger.ErrorContext(ctx, "settlement rollback step failed",
					slog.Int64("listing_id", listingID),
					slog.String("cause", cause.Error()),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	// Claim the listing first: the conditional active→sold flip is the
	// exactly-once gate shared with any concurrent instance.
	if err := s.listings.MarkSold(ctx, listingID, buyer, fee); err != nil {
		return domain.Listing{}, fmt.Errorf("settlement: %w", err)
	}
	undo = append(undo, func(ctx context.Context) error {
		return s.listings.Reopen(ctx, listingID)
	})

	if err := s.ledger.TransferSplit(ctx, buyer, legs); err != nil {
		rollback(err)
		return domain.Listing{}, fmt.Errorf("settlement: distribute payment: %w: %w", domain.ErrPaymentTransferFailed, err)
	}
	undo = append(undo, func(ctx context.Context) error {
		var firstErr error
		for _, leg := range legs {
			refund := []domain.PaymentLeg{{To: buyer, Amount: leg.Amount}}
			if err := s.ledger.TransferSplit(ctx, leg.To, refund); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	})

	// Irreversible external step last: once the registry moves the asset
	// there is nothing left that can fail the sale.
	if err := adapter.Transfer(ctx, l.AssetContract, l.AssetID, l.Quantity, l.Seller, buyer); err != nil {
		rollback(err)
		if errors.Is(err, domain.ErrTransferDenied) {
			return domain.Listing{}, fmt.Errorf("settlement: asset transfer: %w", err)
		}
		return domain.Listing{}, fmt.Errorf("settlement: asset transfer: %w: %w", domain.ErrTransferDenied, err)
	}

	now := time.Now().UTC()
	l.State = domain.ListingStateSold
	l.Buyer = &buyer
	l.FeePaid = fee
	l.SoldAt = &now

	e := domain.Event{
		ID:            uuid.New().String(),
		Type:          domain.EventListingSold,
		ListingID:     listingID,
		At:            now,
		Seller:        l.Seller,
		Buyer:         &buyer,
		AssetContract: l.AssetContract,
		AssetID:       l.AssetID,
		Standard:      l.Standard,
		Quantity:      l.Quantity,
		Price:         l.Price,
		FeePaid:       fee,
	}
	if err := s.journal.Append(ctx, e); err != nil {
		// The sale is committed; the journal gap is logged, not unwound.
		s.logger.ErrorContext(ctx, "journal append failed",
			slog.String("event_id", e.ID),
			slog.String("error", err.Error()),
		)
	}
	if err := s.bus.Publish(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "event publish failed",
			slog.String("event_id", e.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "listing sold",
		slog.Int64("listing_id", listingID),
		slog.String("buyer", buyer.Hex()),
		slog.String("price", l.Price.String()),
		slog.String("fee", fee.String()),
	)
	return l, nil
}
