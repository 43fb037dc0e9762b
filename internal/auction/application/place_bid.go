package application

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rparedes/callbid/internal/auction/domain"
	"github.com/rparedes/callbid/internal/shared/clock"
	"github.com/rparedes/callbid/internal/shared/logger"
)

var log = logger.GetLogger()

const (
	// maxBidAttempts bounds the optimistic retry loop; exhaustion surfaces
	// ErrBidConflict and the caller refetches and resubmits.
	maxBidAttempts = 5
	baseBackoff    = 10 * time.Millisecond
)

// PlaceBidCommand is the input for one bid submission.
type PlaceBidCommand struct {
	AuctionID      uuid.UUID
	UserID         uuid.UUID
	AmountCents    int64
	IdempotencyKey *string
}

// PlaceBidResult reports the accepted (or replayed) bid together with the
// auction snapshot as committed by this acceptance.
type PlaceBidResult struct {
	Bid              *domain.Bid
	Auction          *domain.Auction
	Replayed         bool
	ExtendedDeadline bool
}

// BidEngine is the race-free bid acceptance protocol. The auction record is
// the single shared mutable resource; every commit is an atomic conditional
// write keyed on the auction revision, retried a bounded number of times with
// jittered backoff. No lock is ever held.
type BidEngine struct {
	auctions domain.AuctionStore
	bids     domain.BidStore
	clk      clock.Clock
}

func NewBidEngine(auctions domain.AuctionStore, bids domain.BidStore, clk clock.Clock) *BidEngine {
	return &BidEngine{auctions: auctions, bids: bids, clk: clk}
}

// PlaceBid validates and atomically commits one bid.
//
// Idempotency: when the command carries a key already present for
// (auction, user), the prior bid's outcome is returned unchanged and no
// mutation occurs.
//
// Commit: check the key for a replay -> load snapshot -> re-validate ->
// compute anti-snipe extension -> conditional update on revision -> insert
// the Bid record. A revision conflict discards the attempt and retries from
// a fresh snapshot; transient store failures consume the same attempt
// budget. A Bid insert failing after the auction commit succeeded is an
// inconsistency that is logged for manual reconciliation, never silently
// retried.
func (e *BidEngine) PlaceBid(ctx context.Context, cmd PlaceBidCommand) (*PlaceBidResult, error) {
	if cmd.AmountCents <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	var (
		committed *domain.Auction
		bid       *domain.Bid
	)
	for attempt := 1; attempt <= maxBidAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("place bid: %w", err)
		}

		// The key is checked on every attempt, not once up front: a duplicate
		// submission racing this one can land its bid at any point before our
		// commit, and a replay must return the stored outcome without touching
		// the auction.
		if cmd.IdempotencyKey != nil && *cmd.IdempotencyKey != "" {
			if res, err := e.findReplay(ctx, cmd); err != nil || res != nil {
				return res, err
			}
		}

		snapshot, err := e.auctions.GetByID(ctx, cmd.AuctionID)
		if err != nil {
			if errors.Is(err, domain.ErrAuctionNotFound) {
				return nil, err
			}
			log.Warn("bid attempt: auction load failed",
				zap.String("auctionID", cmd.AuctionID.String()),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			if err := e.backoff(ctx, attempt); err != nil {
				return nil, err
			}
			continue
		}

		// Re-validation happens against this snapshot every attempt: a
		// lifecycle transition racing the bid is caught here, not assumed
		// stable from an earlier read.
		next := snapshot.Clone()
		candidate, err := next.ApplyBid(cmd.UserID, cmd.AmountCents, cmd.IdempotencyKey, e.clk.Now())
		if err != nil {
			return nil, err
		}

		if err := e.auctions.Update(ctx, next); err != nil {
			if errors.Is(err, domain.ErrRevisionConflict) {
				log.Debug("bid attempt lost the revision race",
					zap.String("auctionID", cmd.AuctionID.String()),
					zap.Int("attempt", attempt),
					zap.Int64("revision", snapshot.Revision),
				)
			} else {
				log.Warn("bid attempt: conditional update failed",
					zap.String("auctionID", cmd.AuctionID.String()),
					zap.Int("attempt", attempt),
					zap.Error(err),
				)
			}
			if err := e.backoff(ctx, attempt); err != nil {
				return nil, err
			}
			continue
		}

		committed = next
		bid = candidate
		break
	}

	if committed == nil {
		log.Warn("bid rejected: retry budget exhausted",
			zap.String("auctionID", cmd.AuctionID.String()),
			zap.String("userID", cmd.UserID.String()),
			zap.Int64("amountCents", cmd.AmountCents),
		)
		return nil, domain.ErrBidConflict
	}

	if err := e.bids.Insert(ctx, bid); err != nil {
		// The auction commit is durable but the bid record is not — including
		// when a duplicate key slipped past the replay check and lost to the
		// uniqueness constraint. Retrying would double-count the auction-side
		// mutation, so this is surfaced for manual reconciliation instead.
		log.Error("INCONSISTENCY: auction committed but bid insert failed, manual reconciliation required",
			zap.String("auctionID", committed.ID.String()),
			zap.String("bidID", bid.ID.String()),
			zap.String("userID", cmd.UserID.String()),
			zap.Int64("amountCents", bid.AmountCents),
			zap.Int64("revision", committed.Revision),
			zap.Error(err),
		)
		return nil, fmt.Errorf("place bid: bid record insert failed after auction commit: %w", err)
	}

	log.Info("bid accepted",
		zap.String("auctionID", committed.ID.String()),
		zap.String("bidID", bid.ID.String()),
		zap.String("userID", cmd.UserID.String()),
		zap.Int64("amountCents", bid.AmountCents),
		zap.Int("bidCount", committed.BidCount),
		zap.Bool("extendedDeadline", bid.ExtendedDeadline),
		zap.Time("biddingEndsAt", committed.BiddingEndsAt),
	)

	return &PlaceBidResult{
		Bid:              bid,
		Auction:          committed,
		ExtendedDeadline: bid.ExtendedDeadline,
	}, nil
}

// findReplay returns the stored outcome for an idempotency key, or nil when
// the key has not been seen.
func (e *BidEngine) findReplay(ctx context.Context, cmd PlaceBidCommand) (*PlaceBidResult, error) {
	prior, err := e.bids.FindByIdempotencyKey(ctx, cmd.AuctionID, cmd.UserID, *cmd.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("place bid: idempotency lookup failed: %w", err)
	}
	if prior == nil {
		return nil, nil
	}
	a, err := e.auctions.GetByID(ctx, cmd.AuctionID)
	if err != nil {
		return nil, fmt.Errorf("place bid: auction load for replay failed: %w", err)
	}
	log.Info("bid replayed idempotently",
		zap.String("auctionID", cmd.AuctionID.String()),
		zap.String("bidID", prior.ID.String()),
		zap.String("userID", cmd.UserID.String()),
	)
	return &PlaceBidResult{
		Bid:              prior,
		Auction:          a,
		Replayed:         true,
		ExtendedDeadline: prior.ExtendedDeadline,
	}, nil
}

// backoff sleeps a jittered, attempt-scaled interval without holding any
// lock, honoring cancellation. No sleep after the final attempt.
func (e *BidEngine) backoff(ctx context.Context, attempt int) error {
	if attempt >= maxBidAttempts {
		return ctx.Err()
	}
	d := time.Duration(attempt)*baseBackoff + time.Duration(rand.Int64N(int64(baseBackoff)))
	select {
	case <-ctx.Done():
		return fmt.Errorf("place bid: %w", ctx.Err())
	case <-time.After(d):
		return nil
	}
}
