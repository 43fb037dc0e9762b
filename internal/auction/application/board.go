package application

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rparedes/callbid/internal/auction/domain"
)

const boardPastCacheKey = "callbid:board:past"

// BoardEntry is one auction as a member sees it on the board.
type BoardEntry struct {
	AuctionID           uuid.UUID  `json:"auction_id"`
	Title               string     `json:"title"`
	Status              string     `json:"status"`
	DurationMinutes     int        `json:"duration_minutes"`
	CallStartsAt        time.Time  `json:"call_starts_at"`
	BiddingStartsAt     time.Time  `json:"bidding_starts_at"`
	BiddingEndsAt       time.Time  `json:"bidding_ends_at"`
	Currency            string     `json:"currency"`
	CurrentBidCents     int64      `json:"current_bid_cents"`
	MinimumNextBidCents int64      `json:"minimum_next_bid_cents,omitempty"`
	BidCount            int        `json:"bid_count"`
	ExtensionCount      int        `json:"extension_count"`
	LeadingBidderID     *uuid.UUID `json:"leading_bidder_id,omitempty"`
	WinnerUserID        *uuid.UUID `json:"winner_user_id,omitempty"`
	IsLeading           bool       `json:"is_leading"`
}

// Board groups a member's view: live auctions by soonest deadline, upcoming
// by start time, and a bounded window of past outcomes.
type Board struct {
	Live     []BoardEntry `json:"live"`
	Upcoming []BoardEntry `json:"upcoming"`
	Past     []BoardEntry `json:"past"`
}

// BoardService is the pure read path over the auction store. The past window
// may be served from cache; live and upcoming always read the source of
// truth so a member never sees a stale leading amount on an auction they are
// bidding on.
type BoardService struct {
	auctions  domain.AuctionStore
	cache     *redis.Client // nil disables caching
	pastTTL   time.Duration
	pastLimit int
}

func NewBoardService(auctions domain.AuctionStore, cache *redis.Client, pastTTL time.Duration, pastLimit int) *BoardService {
	if pastLimit <= 0 {
		pastLimit = 20
	}
	return &BoardService{auctions: auctions, cache: cache, pastTTL: pastTTL, pastLimit: pastLimit}
}

// MemberBoard builds the board for one member, annotating each entry with
// whether that member is the current leader (or, for past auctions, the
// winner).
func (s *BoardService) MemberBoard(ctx context.Context, userID uuid.UUID) (*Board, error) {
	live, err := s.auctions.ListByStatus(ctx, domain.StatusLive, 0)
	if err != nil {
		return nil, err
	}
	sort.Slice(live, func(i, j int) bool {
		return live[i].BiddingEndsAt.Before(live[j].BiddingEndsAt)
	})

	upcoming, err := s.auctions.ListByStatus(ctx, domain.StatusScheduled, 0)
	if err != nil {
		return nil, err
	}
	sort.Slice(upcoming, func(i, j int) bool {
		return upcoming[i].BiddingStartsAt.Before(upcoming[j].BiddingStartsAt)
	})

	past, err := s.pastWindow(ctx)
	if err != nil {
		return nil, err
	}

	board := &Board{
		Live:     make([]BoardEntry, 0, len(live)),
		Upcoming: make([]BoardEntry, 0, len(upcoming)),
		Past:     make([]BoardEntry, 0, len(past)),
	}
	for _, a := range live {
		e := toBoardEntry(a)
		e.MinimumNextBidCents = a.MinimumNextBidCents()
		e.IsLeading = a.LeadingBidderID != nil && *a.LeadingBidderID == userID
		board.Live = append(board.Live, e)
	}
	for _, a := range upcoming {
		board.Upcoming = append(board.Upcoming, toBoardEntry(a))
	}
	for _, a := range past {
		e := toBoardEntry(a)
		e.IsLeading = a.WinnerUserID != nil && *a.WinnerUserID == userID
		board.Past = append(board.Past, e)
	}
	return board, nil
}

// pastWindow reads the bounded past list, through the cache when one is
// configured. Terminal auctions no longer change, so a short TTL is safe.
func (s *BoardService) pastWindow(ctx context.Context) ([]*domain.Auction, error) {
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, boardPastCacheKey).Bytes()
		if err == nil {
			var cached []*domain.Auction
			if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
				return cached, nil
			}
		} else if err != redis.Nil {
			log.Warn("board cache read failed", zap.Error(err))
		}
	}

	past, err := s.auctions.ListFinished(ctx, s.pastLimit)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if raw, err := json.Marshal(past); err == nil {
			if err := s.cache.Set(ctx, boardPastCacheKey, raw, s.pastTTL).Err(); err != nil {
				log.Warn("board cache write failed", zap.Error(err))
			}
		}
	}
	return past, nil
}

func toBoardEntry(a *domain.Auction) BoardEntry {
	return BoardEntry{
		AuctionID:       a.ID,
		Title:           a.Title,
		Status:          string(a.Status),
		DurationMinutes: a.DurationMinutes,
		CallStartsAt:    a.CallStartsAt,
		BiddingStartsAt: a.BiddingStartsAt,
		BiddingEndsAt:   a.BiddingEndsAt,
		Currency:        a.Currency,
		CurrentBidCents: a.CurrentBidCents,
		BidCount:        a.BidCount,
		ExtensionCount:  a.ExtensionCount,
		LeadingBidderID: a.LeadingBidderID,
		WinnerUserID:    a.WinnerUserID,
	}
}
