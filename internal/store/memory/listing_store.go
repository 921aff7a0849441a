// Package memory implements the domain store interfaces in process memory for
// local mode and tests. The postgres package is the durable implementation.
package memory

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zulelabs/marketd/internal/domain"
)

// ListingStore keeps listings in a map guarded by one mutex so that state
// transitions are atomic check-then-mutate.
type ListingStore struct {
	mu     sync.Mutex
	nextID int64
	items  map[int64]domain.Listing
}

// NewListingStore creates an empty store. IDs are sequential starting at 1.
func NewListingStore() *ListingStore {
	return &ListingStore{nextID: 1, items: make(map[int64]domain.Listing)}
}

func (s *ListingStore) Create(_ context.Context, l domain.Listing) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l.ID = s.nextID
	s.nextID++
	l.State = domain.ListingStateActive
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	s.items[l.ID] = l
	return l.ID, nil
}

func (s *ListingStore) GetByID(_ context.Context, id int64) (domain.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.items[id]
	if !ok {
		return domain.Listing{}, fmt.Errorf("memory: listing %d: %w", id, domain.ErrNotFound)
	}
	return l, nil
}

func (s *ListingStore) ListActive(_ context.Context, opts domain.ListOpts) ([]domain.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Listing
	for _, l := range s.items {
		if l.State == domain.ListingStateActive {
			out = append(out, l)
		}
	}
	return paginate(out, opts), nil
}

func (s *ListingStore) ListBySeller(_ context.Context, seller common.Address, opts domain.ListOpts) ([]domain.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Listing
	for _, l := range s.items {
		if l.Seller == seller {
			out = append(out, l)
		}
	}
	return paginate(out, opts), nil
}

func (s *ListingStore) HasActiveDuplicate(_ context.Context, contract common.Address, assetID *big.Int, seller common.Address) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range s.items {
		if l.State == domain.ListingStateActive &&
			l.AssetContract == contract &&
			l.Seller == seller &&
			l.AssetID.Cmp(assetID) == 0 {
			return true, nil
		}
	}
	return false, nil
}

func (s *ListingStore) Cancel(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.items[id]
	if !ok {
		return fmt.Errorf("memory: listing %d: %w", id, domain.ErrNotFound)
	}
	if l.State != domain.ListingStateActive {
		return fmt.Errorf("memory: cancel listing %d in state %s: %w", id, l.State, domain.ErrNotActive)
	}
	now := time.Now().UTC()
	l.State = domain.ListingStateCancelled
	l.CancelledAt = &now
	s.items[id] = l
	return nil
}

func (s *ListingStore) MarkSold(_ context.Context, id int64, buyer common.Address, feePaid *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.items[id]
	if !ok {
		return fmt.Errorf("memory: listing %d: %w", id, domain.ErrNotFound)
	}
	if l.State != domain.ListingStateActive {
		return fmt.Errorf("memory: sell listing %d in state %s: %w", id, l.State, domain.ErrNotActive)
	}
	now := time.Now().UTC()
	l.State = domain.ListingStateSold
	l.Buyer = &buyer
	l.FeePaid = feePaid
	l.SoldAt = &now
	s.items[id] = l
	return nil
}

func (s *ListingStore) Reopen(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.items[id]
	if !ok {
		return fmt.Errorf("memory: listing %d: %w", id, domain.ErrNotFound)
	}
	if l.State != domain.ListingStateSold {
		return fmt.Errorf("memory: reopen listing %d in state %s: %w", id, l.State, domain.ErrNotActive)
	}
	l.State = domain.ListingStateActive
	l.Buyer = nil
	l.FeePaid = nil
	l.SoldAt = nil
	s.items[id] = l
	return nil
}

func paginate(listings []domain.Listing, opts domain.ListOpts) []domain.Listing {
	sort.Slice(listings, func(i, j int) bool { return listings[i].ID > listings[j].ID })
	if opts.Offset > 0 {
		if opts.Offset >= len(listings) {
			return nil
		}
		listings = listings[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(listings) {
		listings = listings[:opts.Limit]
	}
	return listings
}

var _ domain.ListingStore = (*ListingStore)(nil)
