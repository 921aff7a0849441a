package service

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zulelabs/marketd/internal/asset/memory"
	"github.com/zulelabs/marketd/internal/bus"
	"github.com/zulelabs/marketd/internal/domain"
	ledgermem "github.com/zulelabs/marketd/internal/ledger/memory"
	storemem "github.com/zulelabs/marketd/internal/store/memory"
)

var (
	testAdmin    = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	testOperator = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	testSeller   = common.HexToAddress("0x0000000000000000000000000000000000000001")
	testBuyer    = common.HexToAddress("0x0000000000000000000000000000000000000002")
	testContract = common.HexToAddress("0x00000000000000000000000000000000000000cc")
)

func ether(n int64, div int64) *big.Int {
	wei := new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	if div > 1 {
		wei.Div(wei, big.NewInt(div))
	}
	return wei
}

// harness wires the full service stack against in-memory backends.
type harness struct {
	listings *storemem.ListingStore
	admin    *storemem.AdminStore
	fees     *storemem.FeePolicyStore
	ledger   *ledgermem.Ledger
	journal  *storemem.EventJournal
	single   *memory.SingleUnitRegistry
	multi    *memory.MultiUnitRegistry
	adapters domain.AdapterSet

	listingSvc    *ListingService
	settlementSvc *SettlementService
	feeSvc        *FeeService
	adminSvc      *AdminService
}

func newHarness(t *testing.T, feeRateBps uint32) *harness {
	t.Helper()

	h := &harness{
		listings: storemem.NewListingStore(),
		admin:    storemem.NewAdminStore(),
		fees:     storemem.NewFeePolicyStore(),
		ledger:   ledgermem.New(),
		journal:  storemem.NewEventJournal(),
		single:   memory.NewSingleUnit(testOperator),
		multi:    memory.NewMultiUnit(testOperator),
	}
	h.adapters = domain.AdapterSet{
		domain.AssetSingleUnit: h.single,
		domain.AssetMultiUnit:  h.multi,
	}

	logger := slog.New(slog.DiscardHandler)
	b := bus.NewMemory()

	h.adminSvc = NewAdminService(h.admin, h.fees, logger)
	h.feeSvc = NewFeeService(h.fees, h.admin, logger)
	h.listingSvc = NewListingService(h.listings, h.admin, h.adapters, h.journal, b, testOperator, logger)
	h.settlementSvc = NewSettlementService(h.listings, h.fees, h.admin, h.ledger, h.adapters, h.journal, b, testOperator, logger)

	if err := h.adminSvc.Initialize(context.Background(), testAdmin, feeRateBps); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return h
}

// listSingle mints asset id 1 to the seller, approves the operator, and lists
// it at the given price.
func (h *harness) listSingle(t *testing.T, price *big.Int) domain.Listing {
	t.Helper()

	assetID := big.NewInt(1)
	h.single.Mint(testContract, assetID, testSeller)
	h.single.SetApprovalForAll(testContract, testSeller, testOperator, true)

	l, err := h.listingSvc.Create(context.Background(), CreateListingRequest{
		AssetContract: testContract,
		AssetID:       assetID,
		Standard:      domain.AssetSingleUnit,
		Quantity:      1,
		Seller:        testSeller,
		Price:         price,
	})
	if err != nil {
		t.Fatalf("create listing: %v", err)
	}
	return l
}

func (h *harness) mustBalance(t *testing.T, account common.Address) *big.Int {
	t.Helper()
	b, err := h.ledger.Balance(context.Background(), account)
	if err != nil {
		t.Fatalf("balance of %s: %v", account.Hex(), err)
	}
	return b
}

func TestPurchaseSettlesAtomically(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 100) // 1%

	price := ether(2, 10) // 0.2
	l := h.listSingle(t, price)

	if err := h.ledger.Deposit(ctx, testBuyer, price); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	sold, err := h.settlementSvc.Purchase(ctx, l.ID, testBuyer, price)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}

	if sold.State != domain.ListingStateSold {
		t.Fatalf("state = %s, want sold", sold.State)
	}
	if sold.Buyer == nil || *sold.Buyer != testBuyer {
		t.Fatalf("buyer = %v, want %s", sold.Buyer, testBuyer.Hex())
	}

	wantFee := new(big.Int).Div(price, big.NewInt(100)) // 1% of 0.2
	if sold.FeePaid.Cmp(wantFee) != 0 {
		t.Fatalf("fee paid = %s, want %s", sold.FeePaid, wantFee)
	}

	wantProceeds := new(big.Int).Sub(price, wantFee)
	if got := h.mustBalance(t, testSeller); got.Cmp(wantProceeds) != 0 {
		t.Errorf("seller balance = %s, want %s", got, wantProceeds)
	}
	// The admin is the sole fee recipient seeded at initialization.
	if got := h.mustBalance(t, testAdmin); got.Cmp(wantFee) != 0 {
		t.Errorf("fee recipient balance = %s, want %s", got, wantFee)
	}
	if got := h.mustBalance(t, testBuyer); got.Sign() != 0 {
		t.Errorf("buyer balance = %s, want 0", got)
	}

	owner, ok := h.single.OwnerOf(testContract, l.AssetID)
	if !ok || owner != testBuyer {
		t.Errorf("asset owner = %s, want buyer", owner.Hex())
	}

	events := h.journal.Events()
	last := events[len(events)-1]
	if last.Type != domain.EventListingSold || last.ListingID != l.ID {
		t.Errorf("last event = %s for listing %d, want listing_sold for %d", last.Type, last.ListingID, l.ID)
	}
	if last.FeePaid.Cmp(wantFee) != 0 {
		t.Errorf("event fee = %s, want %s", last.FeePaid, wantFee)
	}
}

func TestPurchaseRequiresExactPayment(t *testing.T) {
	ctx := context.Background()
	price := ether(1, 1)

	tests := []struct {
		name    string
		payment *big.Int
		wantErr error
	}{
		{"underpayment", new(big.Int).Sub(price, big.NewInt(1)), domain.ErrInsufficientPayment},
		{"zero", big.NewInt(0), domain.ErrInsufficientPayment},
		{"nil", nil, domain.ErrInsufficientPayment},
		{"overpayment", new(big.Int).Add(price, big.NewInt(1)), domain.ErrExcessPayment},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, 100)
			l := h.listSingle(t, price)
			if err := h.ledger.Deposit(ctx, testBuyer, ether(2, 1)); err != nil {
				t.Fatalf("deposit: %v", err)
			}

			_, err := h.settlementSvc.Purchase(ctx, l.ID, testBuyer, tc.payment)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("purchase err = %v, want %v", err, tc.wantErr)
			}

			// Rejection must leave the listing purchasable.
			got, err := h.listingSvc.Get(ctx, l.ID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.State != domain.ListingStateActive {
				t.Errorf("state after rejected payment = %s, want active", got.State)
			}
			if b := h.mustBalance(t, testBuyer); b.Cmp(ether(2, 1)) != 0 {
				t.Errorf("buyer balance = %s, want untouched", b)
			}
		})
	}
}

func TestPurchaseConcurrentBuyersExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)

	price := ether(1, 1)
	l := h.listSingle(t, price)

	const buyers = 16
	accounts := make([]common.Address, buyers)
	for i := range accounts {
		accounts[i] = common.BigToAddress(big.NewInt(int64(1000 + i)))
		if err := h.ledger.Deposit(ctx, accounts[i], price); err != nil {
			t.Fatalf("deposit: %v", err)
		}
	}

	var wg sync.WaitGroup
	results := make([]error, buyers)
	for i := range accounts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = h.settlementSvc.Purchase(ctx, l.ID, accounts[i], price)
		}(i)
	}
	wg.Wait()

	winners := 0
	for i, err := range results {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, domain.ErrNotActive):
		default:
			t.Errorf("buyer %d: unexpected error %v", i, err)
		}
	}
	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}

	// Exactly one payment was taken.
	spent := 0
	for _, a := range accounts {
		if h.mustBalance(t, a).Sign() == 0 {
			spent++
		}
	}
	if spent != 1 {
		t.Errorf("debited buyers = %d, want 1", spent)
	}
	if got := h.mustBalance(t, testSeller); got.Cmp(price) != 0 {
		t.Errorf("seller balance = %s, want %s", got, price)
	}
}

func TestPurchaseSelfDenied(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)
	l := h.listSingle(t, ether(1, 1))

	if err := h.ledger.Deposit(ctx, testSeller, ether(1, 1)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	_, err := h.settlementSvc.Purchase(ctx, l.ID, testSeller, ether(1, 1))
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("self purchase err = %v, want ErrUnauthorized", err)
	}
}

func TestPurchaseInsufficientFundsRollsBack(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 100)

	price := ether(1, 1)
	l := h.listSingle(t, price)

	// The buyer claims the full price but deposited less.
	if err := h.ledger.Deposit(ctx, testBuyer, ether(1, 2)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	_, err := h.settlementSvc.Purchase(ctx, l.ID, testBuyer, price)
	if !errors.Is(err, domain.ErrPaymentTransferFailed) {
		t.Fatalf("purchase err = %v, want ErrPaymentTransferFailed", err)
	}
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("purchase err = %v, want wrapped ErrInsufficientFunds", err)
	}

	got, err := h.listingSvc.Get(ctx, l.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != domain.ListingStateActive {
		t.Errorf("state after rollback = %s, want active", got.State)
	}
	if b := h.mustBalance(t, testBuyer); b.Cmp(ether(1, 2)) != 0 {
		t.Errorf("buyer balance = %s, want untouched", b)
	}
	if b := h.mustBalance(t, testSeller); b.Sign() != 0 {
		t.Errorf("seller balance = %s, want 0", b)
	}
	if owner, _ := h.single.OwnerOf(testContract, l.AssetID); owner != testSeller {
		t.Errorf("asset owner = %s, want seller", owner.Hex())
	}
}

// denyingAdapter passes verification but refuses the final transfer, modeling
// a registry that rejects the move at settlement time.
type denyingAdapter struct {
	domain.AssetAdapter
}

func (d denyingAdapter) Transfer(context.Context, common.Address, *big.Int, uint64, common.Address, common.Address) error {
	return domain.ErrTransferDenied
}

func TestPurchaseTransferDeniedRollsBackPayment(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 100)

	price := ether(1, 1)
	l := h.listSingle(t, price)
	h.adapters[domain.AssetSingleUnit] = denyingAdapter{h.single}

	if err := h.ledger.Deposit(ctx, testBuyer, price); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	_, err := h.settlementSvc.Purchase(ctx, l.ID, testBuyer, price)
	if !errors.Is(err, domain.ErrTransferDenied) {
		t.Fatalf("purchase err = %v, want ErrTransferDenied", err)
	}

	got, err := h.listingSvc.Get(ctx, l.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != domain.ListingStateActive {
		t.Errorf("state after rollback = %s, want active", got.State)
	}
	if got.Buyer != nil {
		t.Errorf("buyer = %s, want nil after rollback", got.Buyer.Hex())
	}
	if b := h.mustBalance(t, testBuyer); b.Cmp(price) != 0 {
		t.Errorf("buyer balance = %s, want refunded %s", b, price)
	}
	if b := h.mustBalance(t, testSeller); b.Sign() != 0 {
		t.Errorf("seller balance = %s, want 0", b)
	}
	if b := h.mustBalance(t, testAdmin); b.Sign() != 0 {
		t.Errorf("fee recipient balance = %s, want 0", b)
	}
}

func TestPurchaseStaleApprovalDenied(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)

	price := ether(1, 1)
	l := h.listSingle(t, price)
	// Approval revoked between listing and purchase.
	h.single.SetApprovalForAll(testContract, testSeller, testOperator, false)

	if err := h.ledger.Deposit(ctx, testBuyer, price); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	_, err := h.settlementSvc.Purchase(ctx, l.ID, testBuyer, price)
	if !errors.Is(err, domain.ErrTransferDenied) {
		t.Fatalf("purchase err = %v, want ErrTransferDenied", err)
	}
	if b := h.mustBalance(t, testBuyer); b.Cmp(price) != 0 {
		t.Errorf("buyer balance = %s, want untouched", b)
	}
}

func TestPurchaseWhilePaused(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)

	price := ether(1, 1)
	l := h.listSingle(t, price)
	if err := h.ledger.Deposit(ctx, testBuyer, price); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := h.adminSvc.SetPaused(ctx, testAdmin, true); err != nil {
		t.Fatalf("pause: %v", err)
	}

	_, err := h.settlementSvc.Purchase(ctx, l.ID, testBuyer, price)
	if !errors.Is(err, domain.ErrPaused) {
		t.Fatalf("purchase err = %v, want ErrPaused", err)
	}

	if err := h.adminSvc.SetPaused(ctx, testAdmin, false); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if _, err := h.settlementSvc.Purchase(ctx, l.ID, testBuyer, price); err != nil {
		t.Fatalf("purchase after unpause: %v", err)
	}
}

func TestPurchaseCancelledListing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)

	price := ether(1, 1)
	l := h.listSingle(t, price)
	if err := h.listingSvc.Cancel(ctx, l.ID, testSeller); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := h.ledger.Deposit(ctx, testBuyer, price); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	_, err := h.settlementSvc.Purchase(ctx, l.ID, testBuyer, price)
	if !errors.Is(err, domain.ErrNotActive) {
		t.Fatalf("purchase err = %v, want ErrNotActive", err)
	}
}

func TestPurchaseMultiUnitPartialBalance(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 250) // 2.5%

	assetID := big.NewInt(7)
	h.multi.Mint(testContract, assetID, testSeller, 10)
	h.multi.SetApprovalForAll(testContract, testSeller, testOperator, true)

	price := ether(3, 1)
	l, err := h.listingSvc.Create(ctx, CreateListingRequest{
		AssetContract: testContract,
		AssetID:       assetID,
		Standard:      domain.AssetMultiUnit,
		Quantity:      4,
		Seller:        testSeller,
		Price:         price,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := h.ledger.Deposit(ctx, testBuyer, price); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := h.settlementSvc.Purchase(ctx, l.ID, testBuyer, price); err != nil {
		t.Fatalf("purchase: %v", err)
	}

	if got := h.multi.BalanceOf(testContract, assetID, testBuyer); got != 4 {
		t.Errorf("buyer units = %d, want 4", got)
	}
	if got := h.multi.BalanceOf(testContract, assetID, testSeller); got != 6 {
		t.Errorf("seller units = %d, want 6", got)
	}
}

func TestPurchaseFeeSplitSumsExactly(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)

	r1 := common.BigToAddress(big.NewInt(501))
	r2 := common.BigToAddress(big.NewInt(502))
	r3 := common.BigToAddress(big.NewInt(503))
	err := h.feeSvc.SetFee(ctx, testAdmin, 300, []domain.FeeRecipient{
		{Address: r1, ShareBps: 3334},
		{Address: r2, ShareBps: 3333},
		{Address: r3, ShareBps: 3333},
	})
	if err != nil {
		t.Fatalf("set fee: %v", err)
	}

	// A price whose 3% fee does not divide evenly three ways.
	price := big.NewInt(1_000_001)
	l := h.listSingle(t, price)
	if err := h.ledger.Deposit(ctx, testBuyer, price); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	sold, err := h.settlementSvc.Purchase(ctx, l.ID, testBuyer, price)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}

	// Every unit of the price must land somewhere.
	total := new(big.Int)
	for _, a := range []common.Address{testSeller, r1, r2, r3} {
		total.Add(total, h.mustBalance(t, a))
	}
	if total.Cmp(price) != 0 {
		t.Fatalf("distributed total = %s, want %s", total, price)
	}

	feeTotal := new(big.Int)
	for _, a := range []common.Address{r1, r2, r3} {
		feeTotal.Add(feeTotal, h.mustBalance(t, a))
	}
	if feeTotal.Cmp(sold.FeePaid) != 0 {
		t.Errorf("fee legs total = %s, want %s", feeTotal, sold.FeePaid)
	}
}

// blockedLocks simulates another instance holding the purchase lock.
type blockedLocks struct{}

func (blockedLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, domain.ErrLockHeld
}

func TestPurchaseLockHeldElsewhere(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)

	price := ether(1, 1)
	l := h.listSingle(t, price)
	if err := h.ledger.Deposit(ctx, testBuyer, price); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	h.settlementSvc.WithLockManager(blockedLocks{})
	_, err := h.settlementSvc.Purchase(ctx, l.ID, testBuyer, price)
	if !errors.Is(err, domain.ErrNotActive) {
		t.Fatalf("purchase err = %v, want ErrNotActive", err)
	}
}
