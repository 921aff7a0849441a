package memory

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zulelabs/marketd/internal/domain"
)

var (
	nftContract = common.HexToAddress("0x0000000000000000000000000000000000000111")
	seller      = common.HexToAddress("0x0000000000000000000000000000000000000222")
	buyer       = common.HexToAddress("0x0000000000000000000000000000000000000333")
)

func newListing() domain.Listing {
	return domain.Listing{
		AssetContract: nftContract,
		AssetID:       big.NewInt(1),
		Standard:      domain.AssetSingleUnit,
		Quantity:      1,
		Seller:        seller,
		Price:         big.NewInt(1000),
	}
}

func TestCreateAssignsSequentialIDs(t *testing.T) {
	ctx := context.Background()
	s := NewListingStore()

	id1, err := s.Create(ctx, newListing())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	id2, err := s.Create(ctx, newListing())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id1 != 1 || id2 != 2 {
		t.Fatalf("ids = %d, %d; want 1, 2", id1, id2)
	}

	got, err := s.GetByID(ctx, id1)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.State != domain.ListingStateActive {
		t.Fatalf("state = %s, want active", got.State)
	}
	if got.Price.Cmp(big.NewInt(1000)) != 0 || got.Quantity != 1 {
		t.Fatalf("fields mutated on create: %+v", got)
	}
}

func TestGetByIDNotFound(t *testing.T) {
	s := NewListingStore()
	_, err := s.GetByID(context.Background(), 42)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetByID = %v, want ErrNotFound", err)
	}
}

func TestMarkSoldIsExactlyOnce(t *testing.T) {
	ctx := context.Background()
	s := NewListingStore()
	id, _ := s.Create(ctx, newListing())

	if err := s.MarkSold(ctx, id, buyer, big.NewInt(10)); err != nil {
		t.Fatalf("MarkSold: %v", err)
	}
	err := s.MarkSold(ctx, id, buyer, big.NewInt(10))
	if !errors.Is(err, domain.ErrNotActive) {
		t.Fatalf("second MarkSold = %v, want ErrNotActive", err)
	}

	got, _ := s.GetByID(ctx, id)
	if got.State != domain.ListingStateSold || got.Buyer == nil || *got.Buyer != buyer {
		t.Fatalf("listing after sale = %+v", got)
	}
}

func TestCancelOnlyFromActive(t *testing.T) {
	ctx := context.Background()
	s := NewListingStore()
	id, _ := s.Create(ctx, newListing())

	if err := s.Cancel(ctx, id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := s.Cancel(ctx, id); !errors.Is(err, domain.ErrNotActive) {
		t.Fatalf("second Cancel = %v, want ErrNotActive", err)
	}
	if err := s.MarkSold(ctx, id, buyer, nil); !errors.Is(err, domain.ErrNotActive) {
		t.Fatalf("MarkSold after cancel = %v, want ErrNotActive", err)
	}
}

func TestReopenRestoresActive(t *testing.T) {
	ctx := context.Background()
	s := NewListingStore()
	id, _ := s.Create(ctx, newListing())

	if err := s.Reopen(ctx, id); !errors.Is(err, domain.ErrNotActive) {
		t.Fatalf("Reopen active listing = %v, want ErrNotActive", err)
	}

	if err := s.MarkSold(ctx, id, buyer, big.NewInt(1)); err != nil {
		t.Fatalf("MarkSold: %v", err)
	}
	if err := s.Reopen(ctx, id); err != nil {
		t.Fatalf("Reopen: %v", err)
	}

	got, _ := s.GetByID(ctx, id)
	if got.State != domain.ListingStateActive || got.Buyer != nil || got.SoldAt != nil {
		t.Fatalf("listing after reopen = %+v", got)
	}
}

func TestHasActiveDuplicate(t *testing.T) {
	ctx := context.Background()
	s := NewListingStore()
	id, _ := s.Create(ctx, newListing())

	dup, err := s.HasActiveDuplicate(ctx, nftContract, big.NewInt(1), seller)
	if err != nil || !dup {
		t.Fatalf("HasActiveDuplicate = %v, %v; want true", dup, err)
	}
	if dup, _ := s.HasActiveDuplicate(ctx, nftContract, big.NewInt(2), seller); dup {
		t.Fatal("different asset id must not be a duplicate")
	}

	if err := s.Cancel(ctx, id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if dup, _ := s.HasActiveDuplicate(ctx, nftContract, big.NewInt(1), seller); dup {
		t.Fatal("cancelled listing must not count as a duplicate")
	}
}

func TestListActivePagination(t *testing.T) {
	ctx := context.Background()
	s := NewListingStore()
	for i := 0; i < 5; i++ {
		l := newListing()
		l.AssetID = big.NewInt(int64(i + 1))
		if _, err := s.Create(ctx, l); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	page, err := s.ListActive(ctx, domain.ListOpts{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("page size = %d, want 2", len(page))
	}
	// Newest first: ids 5,4,3,2,1 → offset 1 limit 2 → 4,3.
	if page[0].ID != 4 || page[1].ID != 3 {
		t.Fatalf("page ids = %d, %d; want 4, 3", page[0].ID, page[1].ID)
	}
}
