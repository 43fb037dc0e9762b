package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AuctionStore is the durable keyed storage for Auction records. Update is
// the single sanctioned mutation path: an atomic conditional write keyed on
// the aggregate's Revision. The interface deliberately carries no driver
// types so the engine ports to any store offering conditional writes.
type AuctionStore interface {
	Create(ctx context.Context, a *Auction) error
	GetByID(ctx context.Context, id uuid.UUID) (*Auction, error)

	// Update commits the aggregate if and only if the stored revision still
	// equals a.Revision, then increments a.Revision to the committed value.
	// Returns ErrRevisionConflict when another commit won the race.
	Update(ctx context.Context, a *Auction) error

	ListByStatus(ctx context.Context, status Status, limit int) ([]*Auction, error)
	ListDueToOpen(ctx context.Context, now time.Time) ([]*Auction, error)
	ListDueToClose(ctx context.Context, now time.Time) ([]*Auction, error)

	// ListFinished returns terminal and ended auctions, most recent deadline
	// first, bounded by limit. Feeds the board's past window.
	ListFinished(ctx context.Context, limit int) ([]*Auction, error)
}

// BidStore is append-only storage for Bid records. Insert enforces the
// (auctionID, userID, idempotencyKey) uniqueness constraint that makes
// client retries safe.
type BidStore interface {
	Insert(ctx context.Context, b *Bid) error

	// FindByIdempotencyKey returns (nil, nil) when no bid matches.
	FindByIdempotencyKey(ctx context.Context, auctionID, userID uuid.UUID, key string) (*Bid, error)

	// ListByAuction returns bids ordered by amount descending, then placement.
	ListByAuction(ctx context.Context, auctionID uuid.UUID) ([]*Bid, error)

	CountByAuction(ctx context.Context, auctionID uuid.UUID) (int, error)
}
