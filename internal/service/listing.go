// Package service holds the marketplace business logic: the listing registry,
// the settlement engine, fee policy management, and administrative control.
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

// CreateListingRequest carries the fields a seller submits when listing.
type CreateListingRequest struct {
	AssetContract common.Address
	AssetID       *big.Int
	Standard      domain.AssetStandard
	Quantity      uint64
	Seller        common.Address
	Price         *big.Int
}

// ListingService is the listing registry. It owns creation, reads, and
// cancellation; sales go through the SettlementService.
type ListingService struct {
	listings domain.ListingStore
	admin    domain.AdminStore
	adapters domain.AdapterSet
	journal  domain.EventJournal
	bus      domain.EventBus
	operator common.Address
	logger   *slog.Logger
}

// NewListingService creates a ListingService. operator is the marketplace
// identity sellers grant transfer approval to.
func NewListingService(
	listings domain.ListingStore,
	admin domain.AdminStore,
	adapters domain.AdapterSet,
	journal domain.EventJournal,
	bus domain.EventBus,
	operator common.Address,
	logger *slog.Logger,
) *ListingService {
	return &ListingService{
		listings: listings,
		admin:    admin,
		adapters: adapters,
		journal:  journal,
		bus:      bus,
		operator: operator,
		logger:   logger.With(slog.String("component", "listing_service")),
	}
}

// Create verifies the seller's ownership and approval, persists an active
// listing, and emits ListingCreated. The seller keeps custody; the approval
// is the marketplace's authorization to move the asset at sale time.
func (s *ListingService) Create(ctx context.Context, req CreateListingRequest) (domain.Listing, error) {
	st, err := s.admin.Get(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Listing{}, fmt.Errorf("listing: create: %w", domain.ErrNotInitialized)
		}
		return domain.Listing{}, fmt.Errorf("listing: create: %w", err)
	}
	if st.Paused {
		return domain.Listing{}, fmt.Errorf("listing: create: %w", domain.ErrPaused)
	}

	if !req.Standard.Valid() {
		return domain.Listing{}, fmt.Errorf("listing: unknown standard %q: %w", req.Standard, domain.ErrInvalidQuantity)
	}
	if req.Price == nil || req.Price.Sign() <= 0 {
		return domain.Listing{}, fmt.Errorf("listing: price must be positive: %w", domain.ErrInvalidPrice)
	}
	if req.Quantity == 0 || (req.Standard == domain.AssetSingleUnit && req.Quantity != 1) {
		return domain.Listing{}, fmt.Errorf("listing: quantity %d for %s asset: %w",
			req.Quantity, req.Standard, domain.ErrInvalidQuantity)
	}

	adapter, err := s.adapters.For(req.Standard)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("listing: %w", err)
	}

	owns, err := adapter.VerifyOwnership(ctx, req.AssetContract, req.AssetID, req.Quantity, req.Seller)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("listing: verify ownership: %w", err)
	}
	if !owns {
		// Distinguish an oversized quantity from a stranger listing someone
		// else's asset: holding at least one unit means the asset is the
		// seller's, just not enough of it.
		if req.Standard == domain.AssetMultiUnit && req.Quantity > 1 {
			holdsAny, err := adapter.VerifyOwnership(ctx, req.AssetContract, req.AssetID, 1, req.Seller)
			if err != nil {
				return domain.Listing{}, fmt.Errorf("listing: verify ownership: %w", err)
			}
			if holdsAny {
				return domain.Listing{}, fmt.Errorf("listing: quantity %d exceeds balance: %w",
					req.Quantity, domain.ErrInvalidQuantity)
			}
		}
		return domain.Listing{}, fmt.Errorf("listing: %w", domain.ErrNotOwnerOrNotApproved)
	}

	approved, err := adapter.VerifyApproval(ctx, req.AssetContract, req.Seller, s.operator)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("listing: verify approval: %w", err)
	}
	if !approved {
		return domain.Listing{}, fmt.Errorf("listing: marketplace not approved: %w", domain.ErrNotOwnerOrNotApproved)
	}

	dup, err := s.listings.HasActiveDuplicate(ctx, req.AssetContract, req.AssetID, req.Seller)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("listing: check duplicate: %w", err)
	}
	if dup {
		return domain.Listing{}, fmt.Errorf("listing: %w", domain.ErrDuplicateListing)
	}

	l := domain.Listing{
		AssetContract: req.AssetContract,
		AssetID:       req.AssetID,
		Standard:      req.Standard,
		Quantity:      req.Quantity,
		Seller:        req.Seller,
		Price:         req.Price,
		CreatedAt:     time.Now().UTC(),
	}
	id, err := s.listings.Create(ctx, l)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("listing: persist: %w", err)
	}
	l.ID = id
	l.State = domain.ListingStateActive

	s.emit(ctx, domain.Event{
		ID:            uuid.New().String(),
		Type:          domain.EventListingCreated,
		ListingID:     id,
		At:            time.Now().UTC(),
		Seller:        l.Seller,
		AssetContract: l.AssetContract,
		AssetID:       l.AssetID,
		Standard:      l.Standard,
		Quantity:      l.Quantity,
		Price:         l.Price,
	})

	s.logger.InfoContext(ctx, "listing created",
		slog.Int64("listing_id", id),
		slog.String("seller", l.Seller.Hex()),
		slog.String("price", l.Price.String()),
	)
	return l, nil
}

// Get returns a listing by id.
func (s *ListingService) Get(ctx context.Context, id int64) (domain.Listing, error) {
	return s.listings.GetByID(ctx, id)
}

// ListActive returns active listings, newest first.
func (s *ListingService) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Listing, error) {
	return s.listings.ListActive(ctx, opts)
}

// ListBySeller returns a seller's listings in any state.
func (s *ListingService) ListBySeller(ctx context.Context, seller common.Address, opts domain.ListOpts) ([]domain.Listing, error) {
	return s.listings.ListBySeller(ctx, seller, opts)
}

// Cancel transitions an active listing to cancelled. Only the seller or the
// admin may cancel; cancellation stays allowed while paused so sellers can
// always withdraw their offers.
func (s *ListingService) Cancel(ctx context.Context, id int64, caller common.Address) error {
	l, err := s.listings.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("listing: cancel: %w", err)
	}

	if caller != l.Seller {
		st, err := s.admin.Get(ctx)
		if err != nil || caller != st.Admin {
			return fmt.Errorf("listing: cancel %d by %s: %w", id, caller, domain.ErrUnauthorized)
		}
	}

	if err := s.listings.Cancel(ctx, id); err != nil {
		return fmt.Errorf("listing: cancel: %w", err)
	}

	s.emit(ctx, domain.Event{
		ID:            uuid.New().String(),
		Type:          domain.EventListingCancelled,
		ListingID:     id,
		At:            time.Now().UTC(),
		Seller:        l.Seller,
		AssetContract: l.AssetContract,
		AssetID:       l.AssetID,
		Standard:      l.Standard,
		Quantity:      l.Quantity,
	})

	s.logger.InfoContext(ctx, "listing cancelled",
		slog.Int64("listing_id", id),
		slog.String("caller", caller.Hex()),
	)
	return nil
}

// emit journals and publishes an event. The listing mutation has already
// committed; failures here are logged, not propagated.
func (s *ListingService) emit(ctx context.Context, e domain.Event) {
	if err := s.journal.Append(ctx, e); err != nil {
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
}
