package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rparedes/callbid/internal/auction/domain"
)

func newStoredAuction(t *testing.T) (*AuctionStore, *domain.Auction) {
	t.Helper()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	a, err := domain.NewAuction(domain.NewAuctionParams{
		Title:             "test call",
		DurationMinutes:   15,
		CallStartsAt:      base.Add(48 * time.Hour),
		BiddingStartsAt:   base,
		BiddingEndsAt:     base.Add(time.Hour),
		StartingBidCents:  1000,
		MinIncrementCents: 100,
		Currency:          "USD",
		Scheduled:         true,
	}, base)
	require.NoError(t, err)

	s := NewAuctionStore()
	require.NoError(t, s.Create(context.Background(), a))
	return s, a
}

func TestAuctionStoreConditionalUpdate(t *testing.T) {
	s, a := newStoredAuction(t)
	ctx := context.Background()

	// Two snapshots at revision 1. The first write wins and bumps the
	// revision; the second carries a stale revision and must fail.
	first, err := s.GetByID(ctx, a.ID)
	require.NoError(t, err)
	second, err := s.GetByID(ctx, a.ID)
	require.NoError(t, err)

	first.AdminNotes = "winner"
	require.NoError(t, s.Update(ctx, first))
	assert.Equal(t, int64(2), first.Revision, "successful update bumps the caller's revision")

	second.AdminNotes = "loser"
	err = s.Update(ctx, second)
	assert.ErrorIs(t, err, domain.ErrRevisionConflict)

	stored, err := s.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "winner", stored.AdminNotes)
	assert.Equal(t, int64(2), stored.Revision)
}

func TestAuctionStoreSnapshotsAreIsolated(t *testing.T) {
	s, a := newStoredAuction(t)
	ctx := context.Background()

	snap, err := s.GetByID(ctx, a.ID)
	require.NoError(t, err)
	snap.CurrentBidCents = 99999

	// Mutating a snapshot without Update leaves the store untouched.
	stored, err := s.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), stored.CurrentBidCents)
}

func TestAuctionStoreGetUnknown(t *testing.T) {
	s := NewAuctionStore()
	_, err := s.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrAuctionNotFound)
}

func TestBidStoreIdempotencyKeyUniqueness(t *testing.T) {
	s := NewBidStore()
	ctx := context.Background()
	auctionID, userID := uuid.New(), uuid.New()
	key := "retry-1"
	now := time.Now().UTC()

	first := domain.NewBid(auctionID, userID, 1000, "USD", now, &key, false)
	require.NoError(t, s.Insert(ctx, first))

	dup := domain.NewBid(auctionID, userID, 1000, "USD", now, &key, false)
	assert.ErrorIs(t, s.Insert(ctx, dup), domain.ErrDuplicateBid)

	// Same key under a different user is a distinct bid.
	other := domain.NewBid(auctionID, uuid.New(), 1100, "USD", now, &key, false)
	require.NoError(t, s.Insert(ctx, other))

	found, err := s.FindByIdempotencyKey(ctx, auctionID, userID, key)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, first.ID, found.ID)

	missing, err := s.FindByIdempotencyKey(ctx, auctionID, userID, "never-seen")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestBidStoreListOrdersByAmountDesc(t *testing.T) {
	s := NewBidStore()
	ctx := context.Background()
	auctionID := uuid.New()
	now := time.Now().UTC()

	for _, amount := range []int64{1000, 1300, 1100} {
		require.NoError(t, s.Insert(ctx, domain.NewBid(auctionID, uuid.New(), amount, "USD", now, nil, false)))
	}

	bids, err := s.ListByAuction(ctx, auctionID)
	require.NoError(t, err)
	require.Len(t, bids, 3)
	assert.Equal(t, int64(1300), bids[0].AmountCents)
	assert.Equal(t, int64(1100), bids[1].AmountCents)
	assert.Equal(t, int64(1000), bids[2].AmountCents)

	n, err := s.CountByAuction(ctx, auctionID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
