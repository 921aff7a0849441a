package service

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zulelabs/marketd/internal/domain"
)

func TestInitializeExactlyOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 100) // the harness performed the first Initialize

	err := h.adminSvc.Initialize(ctx, testBuyer, 200)
	if !errors.Is(err, domain.ErrAlreadyInitialized) {
		t.Fatalf("second init err = %v, want ErrAlreadyInitialized", err)
	}

	st, err := h.adminSvc.State(ctx)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if st.Admin != testAdmin {
		t.Errorf("admin = %s, want the first initializer", st.Admin.Hex())
	}
}

func TestInitializeRejectsRateAboveDenominator(t *testing.T) {
	h := newHarness(t, 0)

	// The rate is validated before the store is touched.
	err := h.adminSvc.Initialize(context.Background(), testAdmin, domain.BpsDenominator+1)
	if !errors.Is(err, domain.ErrInvalidRate) {
		t.Fatalf("init err = %v, want ErrInvalidRate", err)
	}
}

func TestInitializeSeedsFeePolicy(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 250)

	p, err := h.feeSvc.CurrentFee(ctx)
	if err != nil {
		t.Fatalf("current fee: %v", err)
	}
	if p.RateBps != 250 {
		t.Errorf("rate = %d, want 250", p.RateBps)
	}
	if len(p.Recipients) != 1 || p.Recipients[0].Address != testAdmin {
		t.Errorf("recipients = %v, want the admin alone", p.Recipients)
	}
	if p.Recipients[0].ShareBps != domain.BpsDenominator {
		t.Errorf("share = %d, want %d", p.Recipients[0].ShareBps, domain.BpsDenominator)
	}
}

func TestAdminTransferTwoStep(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)
	next := common.BigToAddress(big.NewInt(900))

	if err := h.adminSvc.TransferAdmin(ctx, testAdmin, next); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	// The proposal alone grants nothing.
	st, err := h.adminSvc.State(ctx)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if st.Admin != testAdmin {
		t.Errorf("admin = %s, want unchanged until acceptance", st.Admin.Hex())
	}
	if st.ProposedAdmin == nil || *st.ProposedAdmin != next {
		t.Fatalf("proposed = %v, want %s", st.ProposedAdmin, next.Hex())
	}
	if err := h.adminSvc.SetPaused(ctx, next, true); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("proposed admin pause err = %v, want ErrUnauthorized", err)
	}

	if err := h.adminSvc.AcceptAdmin(ctx, next); err != nil {
		t.Fatalf("accept: %v", err)
	}
	st, err = h.adminSvc.State(ctx)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if st.Admin != next {
		t.Errorf("admin = %s, want %s", st.Admin.Hex(), next.Hex())
	}
	if st.ProposedAdmin != nil {
		t.Errorf("proposed = %s, want cleared", st.ProposedAdmin.Hex())
	}

	// The old admin lost its authority.
	if err := h.adminSvc.SetPaused(ctx, testAdmin, true); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("old admin pause err = %v, want ErrUnauthorized", err)
	}
	if err := h.adminSvc.SetPaused(ctx, next, true); err != nil {
		t.Fatalf("new admin pause: %v", err)
	}
}

func TestAdminTransferAuthorization(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)
	next := common.BigToAddress(big.NewInt(901))

	if err := h.adminSvc.TransferAdmin(ctx, testBuyer, next); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("stranger transfer err = %v, want ErrUnauthorized", err)
	}

	if err := h.adminSvc.AcceptAdmin(ctx, testBuyer); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("accept without proposal err = %v, want ErrUnauthorized", err)
	}

	if err := h.adminSvc.TransferAdmin(ctx, testAdmin, next); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := h.adminSvc.AcceptAdmin(ctx, testBuyer); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("accept by non-proposed err = %v, want ErrUnauthorized", err)
	}
}

func TestSetFeeValidation(t *testing.T) {
	ctx := context.Background()
	r1 := common.BigToAddress(big.NewInt(700))
	r2 := common.BigToAddress(big.NewInt(701))

	tests := []struct {
		name       string
		rate       uint32
		recipients []domain.FeeRecipient
		wantErr    error
	}{
		{
			"rate above denominator",
			domain.BpsDenominator + 1,
			[]domain.FeeRecipient{{Address: r1, ShareBps: domain.BpsDenominator}},
			domain.ErrInvalidRate,
		},
		{
			"shares under denominator",
			100,
			[]domain.FeeRecipient{{Address: r1, ShareBps: 5000}, {Address: r2, ShareBps: 4999}},
			domain.ErrSplitMismatch,
		},
		{
			"shares over denominator",
			100,
			[]domain.FeeRecipient{{Address: r1, ShareBps: 5000}, {Address: r2, ShareBps: 5001}},
			domain.ErrSplitMismatch,
		},
		{
			"zero share recipient",
			100,
			[]domain.FeeRecipient{{Address: r1, ShareBps: domain.BpsDenominator}, {Address: r2, ShareBps: 0}},
			domain.ErrSplitMismatch,
		},
		{
			"nonzero rate without recipients",
			100,
			nil,
			domain.ErrSplitMismatch,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, 0)
			err := h.feeSvc.SetFee(ctx, testAdmin, tc.rate, tc.recipients)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("set fee err = %v, want %v", err, tc.wantErr)
			}

			// The previous policy survives a rejected update.
			p, err := h.feeSvc.CurrentFee(ctx)
			if err != nil {
				t.Fatalf("current fee: %v", err)
			}
			if p.RateBps != 0 {
				t.Errorf("rate after rejection = %d, want 0", p.RateBps)
			}
		})
	}
}

func TestSetFeeAdminOnly(t *testing.T) {
	h := newHarness(t, 0)
	err := h.feeSvc.SetFee(context.Background(), testBuyer, 100,
		[]domain.FeeRecipient{{Address: testBuyer, ShareBps: domain.BpsDenominator}})
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("set fee err = %v, want ErrUnauthorized", err)
	}
}

func TestSetFeeZeroRateAllowsEmptyRecipients(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 100)

	if err := h.feeSvc.SetFee(ctx, testAdmin, 0, nil); err != nil {
		t.Fatalf("set zero fee: %v", err)
	}

	// A sale under the zero policy pays the seller the full price.
	price := ether(1, 1)
	l := h.listSingle(t, price)
	if err := h.ledger.Deposit(ctx, testBuyer, price); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	sold, err := h.settlementSvc.Purchase(ctx, l.ID, testBuyer, price)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if sold.FeePaid.Sign() != 0 {
		t.Errorf("fee paid = %s, want 0", sold.FeePaid)
	}
	if got := h.mustBalance(t, testSeller); got.Cmp(price) != 0 {
		t.Errorf("seller balance = %s, want full price %s", got, price)
	}
}
