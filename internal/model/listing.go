package model

// Listing is the read-only view of an apartment that settlement needs.
// Listings are managed elsewhere; this service never writes them.
//
// Fields:
//  ID        – listing identifier (UUID).
//  OwnerID   – user who hosts the listing and receives payouts.
//  Title     – display title, echoed in payout history.
//  BasePrice – nightly price in kobo.
//  Published – only published listings can be booked.
type Listing struct {
	ID        string `json:"id"`         // listings.id
	OwnerID   string `json:"owner_id"`   // listings.owner_id
	Title     string `json:"title"`      // listings.title
	BasePrice int64  `json:"base_price"` // listings.base_price
	Published bool   `json:"published"`  // listings.published
}

// PriceFor returns the price of staying for the given range before any
// discount is applied.
func (l Listing) PriceFor(r DateRange) int64 {
	return r.Nights() * l.BasePrice
}
