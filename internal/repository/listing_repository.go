package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/rental-settlement/internal/model"
)

// ListingRepo reads apartment listings. Listings are owned by the catalog
// side of the marketplace; settlement only needs price, publication state
// and owner.
type ListingRepo struct {
	db *sql.DB
}

// NewListingRepo returns a new ListingRepo bound to the given database.
func NewListingRepo(db *sql.DB) *ListingRepo { return &ListingRepo{db: db} }

const listingColumns = `id, owner_id, title, base_price, published`

// GetListing returns the listing with the given id or ErrNotFound.
func (r *ListingRepo) GetListing(ctx context.Context, id string) (model.Listing, error) {
	return getListing(ctx, r.db, `SELECT `+listingColumns+` FROM listings WHERE id = ?`, id)
}

// LockTx takes a row lock on the listing for the rest of tx. Every
// settlement for the same listing passes through this lock, which
// serializes the overlap check and the booking insert.
func (r *ListingRepo) LockTx(ctx context.Context, tx *sql.Tx, id string) (model.Listing, error) {
	return getListing(ctx, tx, `SELECT `+listingColumns+` FROM listings WHERE id = ? FOR UPDATE`, id)
}

func getListing(ctx context.Context, q querier, query, id string) (model.Listing, error) {
	var l model.Listing
	err := q.QueryRowContext(ctx, query, id).Scan(&l.ID, &l.OwnerID, &l.Title, &l.BasePrice, &l.Published)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Listing{}, ErrNotFound
	}
	if err != nil {
		return model.Listing{}, err
	}
	return l, nil
}
