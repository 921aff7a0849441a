package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// BpsDenominator is the basis-point scale used for fee rates and recipient
// shares: 10000 bps == 100%.
const BpsDenominator = 10_000

// FeeRecipient is one party entitled to a share of the platform fee.
// ShareBps is the recipient's fraction of the fee, not of the sale price.
type FeeRecipient struct {
	Address  common.Address
	ShareBps uint32
}

// FeePolicy is the process-wide fee configuration. It is set at
// initialization, replaced only through the admin service, and read by the
// settlement engine at sale time, never cached on a listing, so a policy
// change applies to future sales of already-active listings.
type FeePolicy struct {
	RateBps    uint32
	Recipients []FeeRecipient
	UpdatedAt  time.Time
}

// Validate rejects a malformed policy at configuration time. A zero rate may
// have an empty recipient list; a non-zero rate requires recipients whose
// shares sum to exactly BpsDenominator.
func (p FeePolicy) Validate() error {
	if p.RateBps > BpsDenominator {
		return ErrInvalidRate
	}
	if p.RateBps == 0 && len(p.Recipients) == 0 {
		return nil
	}
	if len(p.Recipients) == 0 {
		return ErrSplitMismatch
	}
	var sum uint64
	for _, r := range p.Recipients {
		if r.ShareBps == 0 {
			return ErrSplitMismatch
		}
		sum += uint64(r.ShareBps)
	}
	if sum != BpsDenominator {
		return ErrSplitMismatch
	}
	return nil
}

// Fee returns the platform fee for price, truncating toward zero.
func (p FeePolicy) Fee(price *big.Int) *big.Int {
	fee := new(big.Int).Mul(price, big.NewInt(int64(p.RateBps)))
	return fee.Quo(fee, big.NewInt(BpsDenominator))
}

// SplitFee divides fee among the recipients by share. Integer-division dust
// is assigned to the first recipient so the returned legs always sum to fee
// exactly. Zero-amount legs are dropped.
func (p FeePolicy) SplitFee(fee *big.Int) []PaymentLeg {
	if fee == nil || fee.Sign() <= 0 || len(p.Recipients) == 0 {
		return nil
	}

	legs := make([]PaymentLeg, 0, len(p.Recipients))
	distributed := new(big.Int)
	for _, r := range p.Recipients[1:] {
		amt := new(big.Int).Mul(fee, big.NewInt(int64(r.ShareBps)))
		amt.Quo(amt, big.NewInt(BpsDenominator))
		if amt.Sign() == 0 {
			continue
		}
		distributed.Add(distributed, amt)
		legs = append(legs, PaymentLeg{To: r.Address, Amount: amt})
	}

	// First recipient takes its share plus all truncation dust.
	first := new(big.Int).Sub(fee, distributed)
	if first.Sign() > 0 {
		legs = append([]PaymentLeg{{To: p.Recipients[0].Address, Amount: first}}, legs...)
	}
	return legs
}
