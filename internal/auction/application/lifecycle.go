package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rparedes/callbid/internal/auction/domain"
	"github.com/rparedes/callbid/internal/shared/clock"
)

// maxTransitionAttempts bounds CAS retries for lifecycle transitions. They
// contend with the bid path far less than bids contend with each other.
const maxTransitionAttempts = 3

// LifecycleService moves auctions through their lifecycle. Every transition
// is a compare-and-swap write against the auction revision, so lifecycle
// sweeps and the bid engine cannot race each other into an inconsistent
// status/price pairing. All transition functions are safe to call
// concurrently and are idempotent.
type LifecycleService struct {
	auctions domain.AuctionStore
	bids     domain.BidStore
	clk      clock.Clock
}

func NewLifecycleService(auctions domain.AuctionStore, bids domain.BidStore, clk clock.Clock) *LifecycleService {
	return &LifecycleService{auctions: auctions, bids: bids, clk: clk}
}

// Create registers a new auction slot in DRAFT (or directly SCHEDULED).
func (s *LifecycleService) Create(ctx context.Context, p domain.NewAuctionParams) (*domain.Auction, error) {
	a, err := domain.NewAuction(p, s.clk.Now())
	if err != nil {
		return nil, err
	}
	if err := s.auctions.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("lifecycle: create auction: %w", err)
	}
	log.Info("auction created",
		zap.String("auctionID", a.ID.String()),
		zap.String("status", string(a.Status)),
		zap.Time("biddingStartsAt", a.BiddingStartsAt),
		zap.Time("biddingEndsAt", a.BiddingEndsAt),
	)
	return a, nil
}

// mutate reloads the auction and applies fn under the CAS protocol, retrying
// a bounded number of times on revision conflicts. fn reports whether it
// changed anything; unchanged aggregates are not rewritten, so idempotent
// replays do not burn revisions.
func (s *LifecycleService) mutate(ctx context.Context, id uuid.UUID, fn func(*domain.Auction) (bool, error)) (*domain.Auction, error) {
	var lastErr error
	for attempt := 1; attempt <= maxTransitionAttempts; attempt++ {
		a, err := s.auctions.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		changed, err := fn(a)
		if err != nil {
			return nil, err
		}
		if !changed {
			return a, nil
		}
		if err := s.auctions.Update(ctx, a); err != nil {
			if errors.Is(err, domain.ErrRevisionConflict) {
				lastErr = err
				continue
			}
			return nil, fmt.Errorf("lifecycle: update auction %s: %w", id, err)
		}
		return a, nil
	}
	return nil, fmt.Errorf("lifecycle: transition for auction %s kept conflicting: %w", id, lastErr)
}

// UpdateConfig replaces operator-authored configuration. Rejected once
// bidding has started.
func (s *LifecycleService) UpdateConfig(ctx context.Context, id uuid.UUID, p domain.UpdateConfigParams) (*domain.Auction, error) {
	return s.mutate(ctx, id, func(a *domain.Auction) (bool, error) {
		if err := a.ApplyConfig(p, s.clk.Now()); err != nil {
			return false, err
		}
		return true, nil
	})
}

// Publish moves a DRAFT auction to SCHEDULED.
func (s *LifecycleService) Publish(ctx context.Context, id uuid.UUID) (*domain.Auction, error) {
	return s.mutate(ctx, id, func(a *domain.Auction) (bool, error) {
		if a.Status == domain.StatusScheduled {
			return false, nil
		}
		if err := a.MarkScheduled(s.clk.Now()); err != nil {
			return false, err
		}
		return true, nil
	})
}

// OpenDue transitions every SCHEDULED auction whose bidding window has opened
// to LIVE. Invoked by the scheduler task; failures on individual auctions are
// logged and do not stop the sweep.
func (s *LifecycleService) OpenDue(ctx context.Context) (int, error) {
	now := s.clk.Now()
	due, err := s.auctions.ListDueToOpen(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("lifecycle: list due to open: %w", err)
	}
	opened := 0
	for _, a := range due {
		_, err := s.mutate(ctx, a.ID, func(a *domain.Auction) (bool, error) {
			if a.Status == domain.StatusLive {
				return false, nil
			}
			if err := a.Open(s.clk.Now()); err != nil {
				return false, err
			}
			return true, nil
		})
		if err != nil {
			log.Warn("open sweep: transition failed",
				zap.String("auctionID", a.ID.String()),
				zap.Error(err),
			)
			continue
		}
		opened++
		log.Info("auction opened for bidding", zap.String("auctionID", a.ID.String()))
	}
	return opened, nil
}

// CloseDue transitions every LIVE auction whose current (possibly extended)
// deadline has passed to ENDED, then settles the outcome: the leading bidder
// becomes the winner, and an auction that closed without bids is cancelled
// with a system reason since SETTLED requires a winner.
func (s *LifecycleService) CloseDue(ctx context.Context) (int, error) {
	now := s.clk.Now()
	due, err := s.auctions.ListDueToClose(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("lifecycle: list due to close: %w", err)
	}
	closed := 0
	for _, a := range due {
		ended, err := s.mutate(ctx, a.ID, func(a *domain.Auction) (bool, error) {
			if a.Status == domain.StatusEnded {
				return false, nil
			}
			// A bid may have extended the deadline after the listing; Close
			// re-checks it against the fresh snapshot and refuses early closes.
			if err := a.Close(s.clk.Now()); err != nil {
				return false, err
			}
			return true, nil
		})
		if err != nil {
			if !errors.Is(err, domain.ErrInvalidTransition) {
				log.Warn("close sweep: transition failed",
					zap.String("auctionID", a.ID.String()),
					zap.Error(err),
				)
			}
			continue
		}
		closed++

		if ended.WinnerUserID == nil {
			if _, err := s.Cancel(ctx, a.ID, domain.ReasonNoBids); err != nil {
				log.Warn("close sweep: no-bid cancellation failed",
					zap.String("auctionID", a.ID.String()),
					zap.Error(err),
				)
			} else {
				log.Info("auction closed unsold", zap.String("auctionID", a.ID.String()))
			}
			continue
		}
		log.Info("auction ended",
			zap.String("auctionID", ended.ID.String()),
			zap.String("winnerUserID", ended.WinnerUserID.String()),
			zap.Int64("finalAmountCents", ended.CurrentBidCents),
			zap.Int("bidCount", ended.BidCount),
		)
	}
	return closed, nil
}

// Cancel moves any non-terminal auction to CANCELLED. The bid history stays
// in place for audit.
func (s *LifecycleService) Cancel(ctx context.Context, id uuid.UUID, reason string) (*domain.Auction, error) {
	a, err := s.mutate(ctx, id, func(a *domain.Auction) (bool, error) {
		if a.Status == domain.StatusCancelled {
			return false, nil
		}
		if err := a.Cancel(reason, s.clk.Now()); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	log.Info("auction cancelled",
		zap.String("auctionID", id.String()),
		zap.String("reason", reason),
	)
	return a, nil
}

// ConfirmBooking records the booking confirmation for the winner, stores the
// meeting access reference, and finalizes the auction to SETTLED. Replays
// are no-ops once settled.
func (s *LifecycleService) ConfirmBooking(ctx context.Context, id uuid.UUID, meetingAccessRef string) (*domain.Auction, error) {
	a, err := s.mutate(ctx, id, func(a *domain.Auction) (bool, error) {
		if a.Status == domain.StatusSettled {
			return false, nil
		}
		now := s.clk.Now()
		if err := a.ConfirmBooking(now); err != nil {
			return false, err
		}
		if meetingAccessRef != "" {
			a.MeetingAccessRef = &meetingAccessRef
		}
		if err := a.Settle(now); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	log.Info("auction settled",
		zap.String("auctionID", id.String()),
		zap.String("winnerUserID", a.WinnerUserID.String()),
		zap.Int64("finalAmountCents", a.CurrentBidCents),
	)
	return a, nil
}

// MarkWinnerNotified flips the winner-notification flag at most once.
// Delivery itself belongs to the notification collaborator.
func (s *LifecycleService) MarkWinnerNotified(ctx context.Context, id uuid.UUID) (*domain.Auction, error) {
	return s.mutate(ctx, id, func(a *domain.Auction) (bool, error) {
		if a.WinnerNotifiedAt != nil {
			return false, nil
		}
		if err := a.MarkWinnerNotified(s.clk.Now()); err != nil {
			return false, err
		}
		return true, nil
	})
}

// MarkAdminNotified flips the admin-notification flag at most once.
func (s *LifecycleService) MarkAdminNotified(ctx context.Context, id uuid.UUID) (*domain.Auction, error) {
	return s.mutate(ctx, id, func(a *domain.Auction) (bool, error) {
		if a.AdminNotifiedAt != nil {
			return false, nil
		}
		if err := a.MarkAdminNotified(s.clk.Now()); err != nil {
			return false, err
		}
		return true, nil
	})
}

// SetAdminNotes updates the operator's free-form notes on a non-terminal
// auction.
func (s *LifecycleService) SetAdminNotes(ctx context.Context, id uuid.UUID, notes string) (*domain.Auction, error) {
	return s.mutate(ctx, id, func(a *domain.Auction) (bool, error) {
		if a.Status.Terminal() {
			return false, domain.ErrInvalidTransition
		}
		if a.AdminNotes == notes {
			return false, nil
		}
		a.AdminNotes = notes
		a.UpdatedAt = s.clk.Now()
		return true, nil
	})
}
