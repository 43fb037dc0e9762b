package domain

import (
	"errors"
	"fmt"
)

var (
	ErrAuctionNotFound         = errors.New("auction not found")
	ErrAuctionNotAcceptingBids = errors.New("auction is not accepting bids")
	ErrBidTooLow               = errors.New("bid amount is too low")
	ErrBidConflict             = errors.New("bid conflicted with concurrent updates, refetch and retry")
	ErrInvalidAmount           = errors.New("bid amount must be greater than zero")
	ErrInvalidTransition       = errors.New("invalid auction status transition")
	ErrInvalidConfig           = errors.New("invalid auction configuration")
	ErrConfigLocked            = errors.New("auction configuration is locked once bidding has started")
	ErrCancelReasonRequired    = errors.New("cancellation requires a reason")
	ErrNoWinner                = errors.New("auction has no winner")
	ErrBookingNotConfirmed     = errors.New("booking has not been confirmed")

	// Store-level sentinels.
	ErrRevisionConflict = errors.New("auction revision conflict")
	ErrDuplicateBid     = errors.New("bid already exists for this idempotency key")
)

// BidTooLowError reports the minimum acceptable amount alongside the current
// leading amount so the caller can resubmit without another round trip.
type BidTooLowError struct {
	MinimumCents    int64
	CurrentBidCents int64
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("bid amount is too low: minimum acceptable is %d (current leading %d)", e.MinimumCents, e.CurrentBidCents)
}

// Unwrap lets callers match with errors.Is(err, ErrBidTooLow).
func (e *BidTooLowError) Unwrap() error { return ErrBidTooLow }
