package postgres

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zulelabs/marketd/internal/domain"
)

// EventStore implements domain.EventJournal using PostgreSQL. The journal is
// append-only; nothing updates or deletes rows.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates an EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

func (s *EventStore) Append(ctx context.Context, e domain.Event) error {
	var buyer *string
	if e.Buyer != nil {
		b := e.Buyer.Hex()
		buyer = &b
	}
	var price, feePaid *string
	if e.Price != nil {
		v := e.Price.String()
		price = &v
	}
	if e.FeePaid != nil {
		v := e.FeePaid.String()
		feePaid = &v
	}

	const query = `
		INSERT INTO market_events (
			id, event_type, listing_id, seller, buyer,
			asset_contract, asset_id, standard, quantity,
			price, fee_paid, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.pool.Exec(ctx, query,
		e.ID, string(e.Type), e.ListingID, e.Seller.Hex(), buyer,
		e.AssetContract.Hex(), e.AssetID.String(), string(e.Standard), int64(e.Quantity),
		price, feePaid, e.At,
	)
	if err != nil {
		return fmt.Errorf("postgres: append event %s: %w", e.ID, err)
	}
	return nil
}

func (s *EventStore) ListSince(ctx context.Context, since time.Time, opts domain.ListOpts) ([]domain.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, event_type, listing_id, seller, buyer,
		        asset_contract, asset_id::text, standard, quantity,
		        price::text, fee_paid::text, occurred_at
		 FROM market_events
		 WHERE occurred_at >= $1
		 ORDER BY occurred_at ASC
		 LIMIT $2 OFFSET $3`, since, nonZeroLimit(opts.Limit), opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		var eventType, seller, contract, assetID, standard string
		var buyer, price, feePaid *string
		var quantity int64

		err := rows.Scan(
			&e.ID, &eventType, &e.ListingID, &seller, &buyer,
			&contract, &assetID, &standard, &quantity,
			&price, &feePaid, &e.At,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}

		e.Type = domain.EventType(eventType)
		e.Seller = common.HexToAddress(seller)
		if buyer != nil {
			b := common.HexToAddress(*buyer)
			e.Buyer = &b
		}
		e.AssetContract = common.HexToAddress(contract)
		e.AssetID, _ = new(big.Int).SetString(assetID, 10)
		e.Standard = domain.AssetStandard(standard)
		e.Quantity = uint64(quantity)
		if price != nil {
			e.Price, _ = new(big.Int).SetString(*price, 10)
		}
		if feePaid != nil {
			e.FeePaid, _ = new(big.Int).SetString(*feePaid, 10)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

var _ domain.EventJournal = (*EventStore)(nil)
