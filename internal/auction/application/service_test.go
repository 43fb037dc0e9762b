package application

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu     sync.Mutex
	states []*AuctionStateDTO
}

func (n *recordingNotifier) AuctionStateChanged(state *AuctionStateDTO) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.states = append(n.states, state)
}

func (n *recordingNotifier) snapshot() []*AuctionStateDTO {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*AuctionStateDTO(nil), n.states...)
}

func TestPlaceBidNotifiesWatchers(t *testing.T) {
	f := newEngineFixture(t, nil)
	notifier := &recordingNotifier{}
	board := NewBoardService(f.auctions, nil, 0, 10)
	svc := NewAuctionService(f.engine, board, f.auctions, f.bids, notifier)

	user := uuid.New()
	key := "notify-1"
	res, err := svc.PlaceBid(context.Background(), PlaceBidCommand{
		AuctionID:      f.auction.ID,
		UserID:         user,
		AmountCents:    999,
		IdempotencyKey: &key,
	})
	require.NoError(t, err)

	states := notifier.snapshot()
	require.Len(t, states, 1, "an accepted bid announces the committed state")
	assert.Equal(t, f.auction.ID, states[0].AuctionID)
	assert.Equal(t, int64(999), states[0].CurrentBidCents)
	assert.Equal(t, res.Auction.BiddingEndsAt, states[0].BiddingEndsAt)

	// A replay commits nothing and must not re-announce.
	replay, err := svc.PlaceBid(context.Background(), PlaceBidCommand{
		AuctionID:      f.auction.ID,
		UserID:         user,
		AmountCents:    999,
		IdempotencyKey: &key,
	})
	require.NoError(t, err)
	require.True(t, replay.Replayed)
	assert.Len(t, notifier.snapshot(), 1)

	// Rejected bids announce nothing.
	_, err = svc.PlaceBid(context.Background(), PlaceBidCommand{
		AuctionID:   f.auction.ID,
		UserID:      uuid.New(),
		AmountCents: 1000,
	})
	require.Error(t, err)
	assert.Len(t, notifier.snapshot(), 1)
}

func TestPlaceBidNilNotifier(t *testing.T) {
	f := newEngineFixture(t, nil)
	board := NewBoardService(f.auctions, nil, 0, 10)
	svc := NewAuctionService(f.engine, board, f.auctions, f.bids, nil)

	_, err := svc.PlaceBid(context.Background(), PlaceBidCommand{
		AuctionID:   f.auction.ID,
		UserID:      uuid.New(),
		AmountCents: 999,
	})
	require.NoError(t, err)
}
