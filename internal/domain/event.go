package domain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventType identifies a marketplace event.
type EventType string

const (
	EventListingCreated   EventType = "listing_created"
	EventListingCancelled EventType = "listing_cancelled"
	EventListingSold      EventType = "listing_sold"
)

// Event is the observable side effect of a listing transition. Events are
// appended to the durable journal and published on the bus for indexers and
// WebSocket subscribers.
type Event struct {
	ID        string    `json:"id"` // uuid
	Type      EventType `json:"type"`
	ListingID int64     `json:"listing_id"`
	At        time.Time `json:"at"`

	Seller        common.Address  `json:"seller"`
	Buyer         *common.Address `json:"buyer,omitempty"`
	AssetContract common.Address  `json:"asset_contract"`
	AssetID       *big.Int        `json:"asset_id"`
	Standard      AssetStandard   `json:"standard"`
	Quantity      uint64          `json:"quantity"`
	Price         *big.Int        `json:"price,omitempty"`
	FeePaid       *big.Int        `json:"fee_paid,omitempty"`
}

// EventBus publishes events to live subscribers. Delivery is best-effort;
// the durable record is the EventJournal.
type EventBus interface {
	Publish(ctx context.Context, e Event) error
}

// EventJournal is the durable, append-only record of marketplace events.
type EventJournal interface {
	Append(ctx context.Context, e Event) error
	ListSince(ctx context.Context, since time.Time, opts ListOpts) ([]Event, error)
}
