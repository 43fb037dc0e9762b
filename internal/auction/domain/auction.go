package domain

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an auction. Transitions follow
// DRAFT -> SCHEDULED -> LIVE -> ENDED -> SETTLED, with CANCELLED reachable
// from any non-terminal state. Only LIVE accepts bids.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusScheduled Status = "scheduled"
	StatusLive      Status = "live"
	StatusEnded     Status = "ended"
	StatusSettled   Status = "settled"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusSettled || s == StatusCancelled
}

// DurationClasses are the allowed call lengths in minutes.
var DurationClasses = []int{15, 30, 60}

// ReasonNoBids is the system-generated cancellation reason for auctions that
// close without a single bid; SETTLED requires a winner.
const ReasonNoBids = "closed without bids"

// AntiSnipeConfig controls deadline extension for late bids. Per-auction,
// not global.
type AntiSnipeConfig struct {
	Enabled       bool
	WindowSeconds int
	ExtendSeconds int
	MaxExtensions int
}

// Auction is the aggregate for one sellable call slot. All mutation of the
// engine-owned fields goes through the optimistic CAS protocol: the store
// commits an update only when Revision is unchanged since the read.
type Auction struct {
	ID uuid.UUID

	// Immutable once bidding has started.
	Title             string
	Description       string
	DurationMinutes   int
	CallStartsAt      time.Time
	BiddingStartsAt   time.Time
	BiddingEndsAt     time.Time
	StartingBidCents  int64
	MinIncrementCents int64
	Currency          string
	AntiSnipe         AntiSnipeConfig

	// Engine-owned.
	Status          Status
	CurrentBidCents int64
	LeadingBidderID *uuid.UUID
	LeadingBidID    *uuid.UUID
	BidCount        int
	ExtensionCount  int
	LastBidAt       *time.Time
	Revision        int64

	// Lifecycle-owned.
	SettledAt          *time.Time
	BookingConfirmedAt *time.Time
	WinnerNotifiedAt   *time.Time
	AdminNotifiedAt    *time.Time
	WinnerUserID       *uuid.UUID
	WinningBidID       *uuid.UUID
	MeetingAccessRef   *string
	AdminNotes         string
	CancelReason       string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewAuctionParams carries everything an operator supplies at creation.
type NewAuctionParams struct {
	Title             string
	Description       string
	DurationMinutes   int
	CallStartsAt      time.Time
	BiddingStartsAt   time.Time
	BiddingEndsAt     time.Time
	StartingBidCents  int64
	MinIncrementCents int64
	Currency          string
	AntiSnipe         AntiSnipeConfig
	Scheduled         bool // create directly in SCHEDULED instead of DRAFT
}

func (p NewAuctionParams) validate() error {
	if p.Title == "" {
		return ErrInvalidConfig
	}
	if !validDurationClass(p.DurationMinutes) {
		return ErrInvalidConfig
	}
	if !p.BiddingStartsAt.Before(p.BiddingEndsAt) {
		return ErrInvalidConfig
	}
	if p.StartingBidCents <= 0 || p.MinIncrementCents <= 0 {
		return ErrInvalidConfig
	}
	if len(p.Currency) != 3 {
		return ErrInvalidConfig
	}
	if p.AntiSnipe.Enabled {
		if p.AntiSnipe.WindowSeconds <= 0 || p.AntiSnipe.ExtendSeconds <= 0 || p.AntiSnipe.MaxExtensions <= 0 {
			return ErrInvalidConfig
		}
	}
	return nil
}

func validDurationClass(minutes int) bool {
	for _, d := range DurationClasses {
		if d == minutes {
			return true
		}
	}
	return false
}

// NewAuction builds a fresh aggregate in DRAFT (or SCHEDULED) with the
// current price sitting at the starting bid.
func NewAuction(p NewAuctionParams, now time.Time) (*Auction, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	status := StatusDraft
	if p.Scheduled {
		status = StatusScheduled
	}
	return &Auction{
		ID:                uuid.New(),
		Title:             p.Title,
		Description:       p.Description,
		DurationMinutes:   p.DurationMinutes,
		CallStartsAt:      p.CallStartsAt,
		BiddingStartsAt:   p.BiddingStartsAt,
		BiddingEndsAt:     p.BiddingEndsAt,
		StartingBidCents:  p.StartingBidCents,
		MinIncrementCents: p.MinIncrementCents,
		Currency:          p.Currency,
		AntiSnipe:         p.AntiSnipe,
		Status:            status,
		CurrentBidCents:   p.StartingBidCents,
		Revision:          1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// Clone returns a deep copy so a bid attempt can be computed without touching
// the snapshot another goroutine may still be validating against.
func (a *Auction) Clone() *Auction {
	cp := *a
	cp.LeadingBidderID = copyUUID(a.LeadingBidderID)
	cp.LeadingBidID = copyUUID(a.LeadingBidID)
	cp.WinnerUserID = copyUUID(a.WinnerUserID)
	cp.WinningBidID = copyUUID(a.WinningBidID)
	cp.LastBidAt = copyTime(a.LastBidAt)
	cp.SettledAt = copyTime(a.SettledAt)
	cp.BookingConfirmedAt = copyTime(a.BookingConfirmedAt)
	cp.WinnerNotifiedAt = copyTime(a.WinnerNotifiedAt)
	cp.AdminNotifiedAt = copyTime(a.AdminNotifiedAt)
	if a.MeetingAccessRef != nil {
		ref := *a.MeetingAccessRef
		cp.MeetingAccessRef = &ref
	}
	return &cp
}

func copyUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	cp := *id
	return &cp
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

// MinimumNextBidCents is the lowest amount the next bid may carry: the
// starting bid when nothing has been accepted yet, otherwise the current
// leading amount plus the minimum increment.
func (a *Auction) MinimumNextBidCents() int64 {
	if a.LeadingBidID == nil {
		return a.StartingBidCents
	}
	return a.CurrentBidCents + a.MinIncrementCents
}

// AcceptsBidsAt checks status and bidding window against server time.
func (a *Auction) AcceptsBidsAt(now time.Time) error {
	if a.Status != StatusLive {
		return ErrAuctionNotAcceptingBids
	}
	if now.Before(a.BiddingStartsAt) || !now.Before(a.BiddingEndsAt) {
		return ErrAuctionNotAcceptingBids
	}
	return nil
}

// ApplyBid validates a proposed bid against this snapshot and, when valid,
// mutates the aggregate in place: new leading amount/bidder/bid, bid count,
// last-bid timestamp, and the anti-snipe extension when the bid lands inside
// the trailing window and the extension cap is not yet reached. The deadline
// only ever moves forward. The caller owns persistence via CAS.
func (a *Auction) ApplyBid(userID uuid.UUID, amountCents int64, idempotencyKey *string, now time.Time) (*Bid, error) {
	if amountCents <= 0 {
		return nil, ErrInvalidAmount
	}
	if err := a.AcceptsBidsAt(now); err != nil {
		return nil, err
	}
	if min := a.MinimumNextBidCents(); amountCents < min {
		return nil, &BidTooLowError{
			MinimumCents:    min,
			CurrentBidCents: a.CurrentBidCents,
		}
	}

	extended := false
	if a.AntiSnipe.Enabled && a.ExtensionCount < a.AntiSnipe.MaxExtensions {
		window := time.Duration(a.AntiSnipe.WindowSeconds) * time.Second
		if a.BiddingEndsAt.Sub(now) <= window {
			a.BiddingEndsAt = a.BiddingEndsAt.Add(time.Duration(a.AntiSnipe.ExtendSeconds) * time.Second)
			a.ExtensionCount++
			extended = true
		}
	}

	bid := NewBid(a.ID, userID, amountCents, a.Currency, now, idempotencyKey, extended)

	a.CurrentBidCents = amountCents
	a.LeadingBidderID = &bid.UserID
	a.LeadingBidID = &bid.ID
	a.BidCount++
	a.LastBidAt = &bid.PlacedAt
	a.UpdatedAt = now

	return bid, nil
}

// Open moves SCHEDULED to LIVE once the bidding window has opened. Calling
// it on an auction that is already LIVE is a no-op so concurrent sweeps stay
// idempotent.
func (a *Auction) Open(now time.Time) error {
	if a.Status == StatusLive {
		return nil
	}
	if a.Status != StatusScheduled {
		return ErrInvalidTransition
	}
	if now.Before(a.BiddingStartsAt) {
		return ErrInvalidTransition
	}
	a.Status = StatusLive
	a.UpdatedAt = now
	return nil
}

// Close moves LIVE to ENDED once the current (possibly extended) deadline has
// passed, recording the winner from the leading bid when one exists.
func (a *Auction) Close(now time.Time) error {
	if a.Status == StatusEnded {
		return nil
	}
	if a.Status != StatusLive {
		return ErrInvalidTransition
	}
	if now.Before(a.BiddingEndsAt) {
		return ErrInvalidTransition
	}
	a.Status = StatusEnded
	if a.BidCount > 0 {
		a.WinnerUserID = copyUUID(a.LeadingBidderID)
		a.WinningBidID = copyUUID(a.LeadingBidID)
	}
	a.UpdatedAt = now
	return nil
}

// ConfirmBooking records the booking confirmation timestamp. Set at most
// once; replays are no-ops. Requires a winner, so it is only reachable from
// ENDED onward.
func (a *Auction) ConfirmBooking(now time.Time) error {
	if a.BookingConfirmedAt != nil {
		return nil
	}
	if a.Status != StatusEnded {
		return ErrInvalidTransition
	}
	if a.WinnerUserID == nil {
		return ErrNoWinner
	}
	a.BookingConfirmedAt = &now
	a.UpdatedAt = now
	return nil
}

// Settle finalizes ENDED into SETTLED; the winner must exist and the booking
// must already be confirmed.
func (a *Auction) Settle(now time.Time) error {
	if a.Status == StatusSettled {
		return nil
	}
	if a.Status != StatusEnded {
		return ErrInvalidTransition
	}
	if a.WinnerUserID == nil || a.WinningBidID == nil {
		return ErrNoWinner
	}
	if a.BookingConfirmedAt == nil {
		return ErrBookingNotConfirmed
	}
	a.Status = StatusSettled
	a.SettledAt = &now
	a.UpdatedAt = now
	return nil
}

// Cancel moves any non-terminal state to CANCELLED. The reason is mandatory
// and the bid history is left untouched for audit.
func (a *Auction) Cancel(reason string, now time.Time) error {
	if reason == "" {
		return ErrCancelReasonRequired
	}
	if a.Status.Terminal() {
		return ErrInvalidTransition
	}
	a.Status = StatusCancelled
	a.CancelReason = reason
	a.UpdatedAt = now
	return nil
}

// MarkWinnerNotified is an idempotent set-once notification flag.
func (a *Auction) MarkWinnerNotified(now time.Time) error {
	if a.WinnerNotifiedAt != nil {
		return nil
	}
	if a.Status != StatusEnded && a.Status != StatusSettled {
		return ErrInvalidTransition
	}
	a.WinnerNotifiedAt = &now
	a.UpdatedAt = now
	return nil
}

// MarkAdminNotified is an idempotent set-once notification flag.
func (a *Auction) MarkAdminNotified(now time.Time) error {
	if a.AdminNotifiedAt != nil {
		return nil
	}
	if a.Status != StatusEnded && a.Status != StatusSettled {
		return ErrInvalidTransition
	}
	a.AdminNotifiedAt = &now
	a.UpdatedAt = now
	return nil
}

// UpdateConfigParams carries operator edits allowed before bidding starts.
type UpdateConfigParams struct {
	Title             string
	Description       string
	DurationMinutes   int
	CallStartsAt      time.Time
	BiddingStartsAt   time.Time
	BiddingEndsAt     time.Time
	StartingBidCents  int64
	MinIncrementCents int64
	Currency          string
	AntiSnipe         AntiSnipeConfig
}

// ApplyConfig replaces the operator-authored configuration. Rejected once the
// auction has left DRAFT/SCHEDULED: bidding runs on frozen terms.
func (a *Auction) ApplyConfig(p UpdateConfigParams, now time.Time) error {
	if a.Status != StatusDraft && a.Status != StatusScheduled {
		return ErrConfigLocked
	}
	np := NewAuctionParams{
		Title:             p.Title,
		Description:       p.Description,
		DurationMinutes:   p.DurationMinutes,
		CallStartsAt:      p.CallStartsAt,
		BiddingStartsAt:   p.BiddingStartsAt,
		BiddingEndsAt:     p.BiddingEndsAt,
		StartingBidCents:  p.StartingBidCents,
		MinIncrementCents: p.MinIncrementCents,
		Currency:          p.Currency,
		AntiSnipe:         p.AntiSnipe,
	}
	if err := np.validate(); err != nil {
		return err
	}
	a.Title = p.Title
	a.Description = p.Description
	a.DurationMinutes = p.DurationMinutes
	a.CallStartsAt = p.CallStartsAt
	a.BiddingStartsAt = p.BiddingStartsAt
	a.BiddingEndsAt = p.BiddingEndsAt
	a.StartingBidCents = p.StartingBidCents
	a.MinIncrementCents = p.MinIncrementCents
	a.Currency = p.Currency
	a.AntiSnipe = p.AntiSnipe
	a.CurrentBidCents = p.StartingBidCents
	a.UpdatedAt = now
	return nil
}

// MarkScheduled publishes a DRAFT auction for bidding.
func (a *Auction) MarkScheduled(now time.Time) error {
	if a.Status == StatusScheduled {
		return nil
	}
	if a.Status != StatusDraft {
		return ErrInvalidTransition
	}
	a.Status = StatusScheduled
	a.UpdatedAt = now
	return nil
}
