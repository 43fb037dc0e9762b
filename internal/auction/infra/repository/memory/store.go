// Package memory provides in-memory implementations of the auction and bid
// stores with the same compare-and-swap and uniqueness semantics as the
// Postgres implementations. They back the engine's test suites and local
// development without a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rparedes/callbid/internal/auction/domain"
)

type AuctionStore struct {
	mu       sync.Mutex
	auctions map[uuid.UUID]*domain.Auction
}

func NewAuctionStore() *AuctionStore {
	return &AuctionStore{auctions: make(map[uuid.UUID]*domain.Auction)}
}

func (s *AuctionStore) Create(_ context.Context, a *domain.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auctions[a.ID] = a.Clone()
	return nil
}

func (s *AuctionStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.auctions[id]
	if !ok {
		return nil, domain.ErrAuctionNotFound
	}
	return a.Clone(), nil
}

// Update applies the conditional-write contract: commit only when the stored
// revision matches, then advance it.
func (s *AuctionStore) Update(_ context.Context, a *domain.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.auctions[a.ID]
	if !ok {
		return domain.ErrAuctionNotFound
	}
	if stored.Revision != a.Revision {
		return domain.ErrRevisionConflict
	}
	a.Revision++
	s.auctions[a.ID] = a.Clone()
	return nil
}

func (s *AuctionStore) ListByStatus(_ context.Context, status domain.Status, limit int) ([]*domain.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Auction
	for _, a := range s.auctions {
		if a.Status == status {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BiddingEndsAt.Before(out[j].BiddingEndsAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *AuctionStore) ListDueToOpen(_ context.Context, now time.Time) ([]*domain.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Auction
	for _, a := range s.auctions {
		if a.Status == domain.StatusScheduled && !now.Before(a.BiddingStartsAt) {
			out = append(out, a.Clone())
		}
	}
	return out, nil
}

func (s *AuctionStore) ListDueToClose(_ context.Context, now time.Time) ([]*domain.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Auction
	for _, a := range s.auctions {
		if a.Status == domain.StatusLive && !now.Before(a.BiddingEndsAt) {
			out = append(out, a.Clone())
		}
	}
	return out, nil
}

func (s *AuctionStore) ListFinished(_ context.Context, limit int) ([]*domain.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Auction
	for _, a := range s.auctions {
		switch a.Status {
		case domain.StatusEnded, domain.StatusSettled, domain.StatusCancelled:
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[j].BiddingEndsAt.Before(out[i].BiddingEndsAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type bidKey struct {
	auctionID uuid.UUID
	userID    uuid.UUID
	key       string
}

type BidStore struct {
	mu    sync.Mutex
	bids  map[uuid.UUID][]*domain.Bid // by auction
	byKey map[bidKey]*domain.Bid
}

func NewBidStore() *BidStore {
	return &BidStore{
		bids:  make(map[uuid.UUID][]*domain.Bid),
		byKey: make(map[bidKey]*domain.Bid),
	}
}

func (s *BidStore) Insert(_ context.Context, b *domain.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.IdempotencyKey != nil && *b.IdempotencyKey != "" {
		k := bidKey{b.AuctionID, b.UserID, *b.IdempotencyKey}
		if _, exists := s.byKey[k]; exists {
			return domain.ErrDuplicateBid
		}
		s.byKey[k] = b
	}
	s.bids[b.AuctionID] = append(s.bids[b.AuctionID], b)
	return nil
}

func (s *BidStore) FindByIdempotencyKey(_ context.Context, auctionID, userID uuid.UUID, key string) (*domain.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.byKey[bidKey{auctionID, userID, key}]
	if !ok {
		return nil, nil
	}
	return b, nil
}

func (s *BidStore) ListByAuction(_ context.Context, auctionID uuid.UUID) ([]*domain.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Bid, len(s.bids[auctionID]))
	copy(out, s.bids[auctionID])
	sort.Slice(out, func(i, j int) bool {
		if out[i].AmountCents != out[j].AmountCents {
			return out[i].AmountCents > out[j].AmountCents
		}
		return out[i].PlacedAt.Before(out[j].PlacedAt)
	})
	return out, nil
}

func (s *BidStore) CountByAuction(_ context.Context, auctionID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bids[auctionID]), nil
}
