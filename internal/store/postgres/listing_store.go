package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zulelabs/marketd/internal/domain"
)

// ListingStore implements domain.ListingStore using PostgreSQL. State
// transitions are single conditional UPDATEs, so the database is the
// exactly-once arbiter across processes.
type ListingStore struct {
	pool *pgxpool.Pool
}

// NewListingStore creates a ListingStore backed by the given connection pool.
func NewListingStore(pool *pgxpool.Pool) *ListingStore {
	return &ListingStore{pool: pool}
}

func (s *ListingStore) Create(ctx context.Context, l domain.Listing) (int64, error) {
	const query = `
		INSERT INTO listings (
			asset_contract, asset_id, standard, quantity, seller, price, state
		) VALUES ($1, $2, $3, $4, $5, $6, 'active')
		RETURNING id`

	var id int64
	err := s.pool.QueryRow(ctx, query,
		l.AssetContract.Hex(), l.AssetID.String(), string(l.Standard),
		int64(l.Quantity), l.Seller.Hex(), l.Price.String(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: create listing: %w", err)
	}
	return id, nil
}

const listingSelectCols = `id, asset_contract, asset_id::text, standard, quantity,
	seller, price::text, state, buyer, fee_paid::text,
	created_at, sold_at, cancelled_at`

func scanListing(scanner interface{ Scan(dest ...any) error }) (domain.Listing, error) {
	var l domain.Listing
	var contract, assetID, standard, seller, price, state string
	var quantity int64
	var buyer, feePaid *string

	err := scanner.Scan(
		&l.ID, &contract, &assetID, &standard, &quantity,
		&seller, &price, &state, &buyer, &feePaid,
		&l.CreatedAt, &l.SoldAt, &l.CancelledAt,
	)
	if err != nil {
		return domain.Listing{}, err
	}

	l.AssetContract = common.HexToAddress(contract)
	l.AssetID, _ = new(big.Int).SetString(assetID, 10)
	l.Standard = domain.AssetStandard(standard)
	l.Quantity = uint64(quantity)
	l.Seller = common.HexToAddress(seller)
	l.Price, _ = new(big.Int).SetString(price, 10)
	l.State = domain.ListingState(state)
	if buyer != nil {
		b := common.HexToAddress(*buyer)
		l.Buyer = &b
	}
	if feePaid != nil {
		l.FeePaid, _ = new(big.Int).SetString(*feePaid, 10)
	}
	return l, nil
}

func scanListingRows(rows pgx.Rows) ([]domain.Listing, error) {
	var listings []domain.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

func (s *ListingStore) GetByID(ctx context.Context, id int64) (domain.Listing, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+listingSelectCols+` FROM listings WHERE id = $1`, id)

	l, err := scanListing(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Listing{}, fmt.Errorf("postgres: listing %d: %w", id, domain.ErrNotFound)
		}
		return domain.Listing{}, fmt.Errorf("postgres: get listing %d: %w", id, err)
	}
	return l, nil
}

func (s *ListingStore) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Listing, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+listingSelectCols+` FROM listings
		 WHERE state = 'active'
		 ORDER BY id DESC
		 LIMIT $1 OFFSET $2`, nonZeroLimit(opts.Limit), opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active listings: %w", err)
	}
	defer rows.Close()

	listings, err := scanListingRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan active listings: %w", err)
	}
	return listings, nil
}

func (s *ListingStore) ListBySeller(ctx context.Context, seller common.Address, opts domain.ListOpts) ([]domain.Listing, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+listingSelectCols+` FROM listings
		 WHERE seller = $1
		 ORDER BY id DESC
		 LIMIT $2 OFFSET $3`, seller.Hex(), nonZeroLimit(opts.Limit), opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list listings by seller: %w", err)
	}
	defer rows.Close()

	listings, err := scanListingRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan listings by seller: %w", err)
	}
	return listings, nil
}

func (s *ListingStore) HasActiveDuplicate(ctx context.Context, contract common.Address, assetID *big.Int, seller common.Address) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM listings
			WHERE state = 'active' AND asset_contract = $1 AND asset_id = $2 AND seller = $3
		)`, contract.Hex(), assetID.String(), seller.Hex(),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: check duplicate listing: %w", err)
	}
	return exists, nil
}

func (s *ListingStore) Cancel(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE listings SET state = 'cancelled', cancelled_at = NOW()
		 WHERE id = $1 AND state = 'active'`, id)
	if err != nil {
		return fmt.Errorf("postgres: cancel listing %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionConflict(ctx, id)
	}
	return nil
}

func (s *ListingStore) MarkSold(ctx context.Context, id int64, buyer common.Address, feePaid *big.Int) error {
	var fee *string
	if feePaid != nil {
		v := feePaid.String()
		fee = &v
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE listings SET state = 'sold', buyer = $2, fee_paid = $3, sold_at = NOW()
		 WHERE id = $1 AND state = 'active'`, id, buyer.Hex(), fee)
	if err != nil {
		return fmt.Errorf("postgres: mark listing %d sold: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionConflict(ctx, id)
	}
	return nil
}

func (s *ListingStore) Reopen(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE listings SET state = 'active', buyer = NULL, fee_paid = NULL, sold_at = NULL
		 WHERE id = $1 AND state = 'sold'`, id)
	if err != nil {
		return fmt.Errorf("postgres: reopen listing %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionConflict(ctx, id)
	}
	return nil
}

// transitionConflict distinguishes a missing row from a state conflict after
// a conditional update matched nothing.
func (s *ListingStore) transitionConflict(ctx context.Context, id int64) error {
	var exists bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM listings WHERE id = $1)", id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("postgres: check listing %d: %w", id, err)
	}
	if !exists {
		return fmt.Errorf("postgres: listing %d: %w", id, domain.ErrNotFound)
	}
	return fmt.Errorf("postgres: listing %d: %w", id, domain.ErrNotActive)
}

func nonZeroLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	return limit
}

var _ domain.ListingStore = (*ListingStore)(nil)
