package application

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rparedes/callbid/internal/auction/domain"
)

// AuctionStateDTO exposes the current auction state to the HTTP and WS
// surfaces.
type AuctionStateDTO struct {
	AuctionID           uuid.UUID  `json:"auction_id"`
	Title               string     `json:"title"`
	Description         string     `json:"description"`
	DurationMinutes     int        `json:"duration_minutes"`
	Status              string     `json:"status"`
	Currency            string     `json:"currency"`
	StartingBidCents    int64      `json:"starting_bid_cents"`
	MinIncrementCents   int64      `json:"min_increment_cents"`
	CurrentBidCents     int64      `json:"current_bid_cents"`
	MinimumNextBidCents int64      `json:"minimum_next_bid_cents"`
	BidCount            int        `json:"bid_count"`
	ExtensionCount      int        `json:"extension_count"`
	CallStartsAt        time.Time  `json:"call_starts_at"`
	BiddingStartsAt     time.Time  `json:"bidding_starts_at"`
	BiddingEndsAt       time.Time  `json:"bidding_ends_at"`
	LeadingBidderID     *uuid.UUID `json:"leading_bidder_id,omitempty"`
	LastBidAt           *time.Time `json:"last_bid_at,omitempty"`
	WinnerUserID        *uuid.UUID `json:"winner_user_id,omitempty"`
	CancelReason        string     `json:"cancel_reason,omitempty"`
}

// AuctionService is the application interface the transport layers depend on.
type AuctionService interface {
	PlaceBid(ctx context.Context, cmd PlaceBidCommand) (*PlaceBidResult, error)
	GetAuctionState(ctx context.Context, id uuid.UUID) (*AuctionStateDTO, error)
	ListBids(ctx context.Context, auctionID uuid.UUID) ([]*domain.Bid, error)
	MemberBoard(ctx context.Context, userID uuid.UUID) (*Board, error)
}

// AuctionNotifier receives the committed auction state after every accepted
// bid, whichever transport carried it, so live watchers stay current. A nil
// notifier disables fan-out.
type AuctionNotifier interface {
	AuctionStateChanged(state *AuctionStateDTO)
}

type auctionService struct {
	engine   *BidEngine
	board    *BoardService
	auctions domain.AuctionStore
	bids     domain.BidStore
	notifier AuctionNotifier
}

func NewAuctionService(engine *BidEngine, board *BoardService, auctions domain.AuctionStore, bids domain.BidStore, notifier AuctionNotifier) AuctionService {
	return &auctionService{engine: engine, board: board, auctions: auctions, bids: bids, notifier: notifier}
}

func (s *auctionService) PlaceBid(ctx context.Context, cmd PlaceBidCommand) (*PlaceBidResult, error) {
	res, err := s.engine.PlaceBid(ctx, cmd)
	if err != nil {
		return nil, err
	}
	// Replays committed nothing, so there is no new state to announce.
	if s.notifier != nil && !res.Replayed {
		s.notifier.AuctionStateChanged(ToAuctionState(res.Auction))
	}
	return res, nil
}

func (s *auctionService) GetAuctionState(ctx context.Context, id uuid.UUID) (*AuctionStateDTO, error) {
	a, err := s.auctions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return ToAuctionState(a), nil
}

func (s *auctionService) ListBids(ctx context.Context, auctionID uuid.UUID) ([]*domain.Bid, error) {
	if _, err := s.auctions.GetByID(ctx, auctionID); err != nil {
		return nil, err
	}
	return s.bids.ListByAuction(ctx, auctionID)
}

func (s *auctionService) MemberBoard(ctx context.Context, userID uuid.UUID) (*Board, error) {
	return s.board.MemberBoard(ctx, userID)
}

// ToAuctionState maps the aggregate onto its transport shape.
func ToAuctionState(a *domain.Auction) *AuctionStateDTO {
	return &AuctionStateDTO{
		AuctionID:           a.ID,
		Title:               a.Title,
		Description:         a.Description,
		DurationMinutes:     a.DurationMinutes,
		Status:              string(a.Status),
		Currency:            a.Currency,
		StartingBidCents:    a.StartingBidCents,
		MinIncrementCents:   a.MinIncrementCents,
		CurrentBidCents:     a.CurrentBidCents,
		MinimumNextBidCents: a.MinimumNextBidCents(),
		BidCount:            a.BidCount,
		ExtensionCount:      a.ExtensionCount,
		CallStartsAt:        a.CallStartsAt,
		BiddingStartsAt:     a.BiddingStartsAt,
		BiddingEndsAt:       a.BiddingEndsAt,
		LeadingBidderID:     a.LeadingBidderID,
		LastBidAt:           a.LastBidAt,
		WinnerUserID:        a.WinnerUserID,
		CancelReason:        a.CancelReason,
	}
}
