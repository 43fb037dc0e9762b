package domain

import (
	"time"

	"github.com/google/uuid"
)

// Bid is an immutable record of one accepted offer. It references its auction
// and bidder by id only; the auction's leading/winning pointers reference back
// into this append-only history.
type Bid struct {
	ID               uuid.UUID
	AuctionID        uuid.UUID
	UserID           uuid.UUID
	AmountCents      int64
	Currency         string
	PlacedAt         time.Time
	IdempotencyKey   *string
	ExtendedDeadline bool
}

// NewBid creates a bid record at its acceptance instant.
func NewBid(auctionID, userID uuid.UUID, amountCents int64, currency string, placedAt time.Time, idempotencyKey *string, extendedDeadline bool) *Bid {
	return &Bid{
		ID:               uuid.New(),
		AuctionID:        auctionID,
		UserID:           userID,
		AmountCents:      amountCents,
		Currency:         currency,
		PlacedAt:         placedAt,
		IdempotencyKey:   idempotencyKey,
		ExtendedDeadline: extendedDeadline,
	}
}
