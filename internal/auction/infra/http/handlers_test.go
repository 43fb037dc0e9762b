package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rparedes/callbid/internal/auction/application"
	"github.com/rparedes/callbid/internal/auction/domain"
	"github.com/rparedes/callbid/internal/auction/infra/repository/memory"
	"github.com/rparedes/callbid/internal/shared/clock"
)

var httpBase = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// countingNotifier records fan-out calls so tests can assert HTTP-accepted
// bids announce state to socket watchers.
type countingNotifier struct {
	mu   sync.Mutex
	last *application.AuctionStateDTO
	n    int
}

func (c *countingNotifier) AuctionStateChanged(state *application.AuctionStateDTO) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = state
	c.n++
}

func (c *countingNotifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

type apiFixture struct {
	app       *fiber.App
	lifecycle *application.LifecycleService
	auctions  *memory.AuctionStore
	notifier  *countingNotifier
	clk       *clock.Fake
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	auctions := memory.NewAuctionStore()
	bids := memory.NewBidStore()
	clk := clock.NewFake(httpBase)
	notifier := &countingNotifier{}

	engine := application.NewBidEngine(auctions, bids, clk)
	board := application.NewBoardService(auctions, nil, time.Minute, 20)
	lifecycle := application.NewLifecycleService(auctions, bids, clk)
	svc := application.NewAuctionService(engine, board, auctions, bids, notifier)

	app := fiber.New()
	NewHandler(svc, lifecycle).RegisterRoutes(app)
	return &apiFixture{app: app, lifecycle: lifecycle, auctions: auctions, notifier: notifier, clk: clk}
}

// liveAuction creates an auction already open for bidding.
func (f *apiFixture) liveAuction(t *testing.T) *domain.Auction {
	t.Helper()
	a, err := f.lifecycle.Create(context.Background(), domain.NewAuctionParams{
		Title:             "60 minute strategy call",
		DurationMinutes:   60,
		CallStartsAt:      httpBase.Add(48 * time.Hour),
		BiddingStartsAt:   httpBase.Add(time.Minute),
		BiddingEndsAt:     httpBase.Add(time.Hour),
		StartingBidCents:  999,
		MinIncrementCents: 100,
		Currency:          "USD",
		AntiSnipe: domain.AntiSnipeConfig{
			Enabled:       true,
			WindowSeconds: 120,
			ExtendSeconds: 120,
			MaxExtensions: 3,
		},
		Scheduled: true,
	})
	require.NoError(t, err)

	f.clk.Set(httpBase.Add(2 * time.Minute))
	_, err = f.lifecycle.OpenDue(context.Background())
	require.NoError(t, err)
	return a
}

func (f *apiFixture) request(t *testing.T, method, path string, body any, headers map[string]string) *http.Response {
	t.Helper()
	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func memberHeaders(userID uuid.UUID) map[string]string {
	return map[string]string{
		"X-User-ID":           userID.String(),
		"X-Membership-Active": "true",
	}
}

func TestPlaceBidEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	a := f.liveAuction(t)
	user := uuid.New()

	resp := f.request(t, fiber.MethodPost, "/auctions/"+a.ID.String()+"/bids",
		fiber.Map{"amount_cents": 999}, memberHeaders(user))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		BidID            uuid.UUID                    `json:"bid_id"`
		Replayed         bool                         `json:"replayed"`
		ExtendedDeadline bool                         `json:"extended_deadline"`
		Auction          *application.AuctionStateDTO `json:"auction"`
	}
	decode(t, resp, &body)
	assert.NotEqual(t, uuid.Nil, body.BidID)
	assert.False(t, body.Replayed)
	require.NotNil(t, body.Auction)
	assert.Equal(t, int64(999), body.Auction.CurrentBidCents)
	assert.Equal(t, int64(1099), body.Auction.MinimumNextBidCents)
	require.NotNil(t, body.Auction.LeadingBidderID)
	assert.Equal(t, user, *body.Auction.LeadingBidderID)
}

func TestPlaceBidEndpointIdempotencyHeader(t *testing.T) {
	f := newAPIFixture(t)
	a := f.liveAuction(t)
	user := uuid.New()

	headers := memberHeaders(user)
	headers["X-Idempotency-Key"] = "retry-001"

	first := f.request(t, fiber.MethodPost, "/auctions/"+a.ID.String()+"/bids",
		fiber.Map{"amount_cents": 999}, headers)
	require.Equal(t, fiber.StatusOK, first.StatusCode)
	var firstBody struct {
		BidID uuid.UUID `json:"bid_id"`
	}
	decode(t, first, &firstBody)

	second := f.request(t, fiber.MethodPost, "/auctions/"+a.ID.String()+"/bids",
		fiber.Map{"amount_cents": 999}, headers)
	require.Equal(t, fiber.StatusOK, second.StatusCode)
	var secondBody struct {
		BidID    uuid.UUID `json:"bid_id"`
		Replayed bool      `json:"replayed"`
	}
	decode(t, second, &secondBody)
	assert.True(t, secondBody.Replayed)
	assert.Equal(t, firstBody.BidID, secondBody.BidID)
}

func TestPlaceBidEndpointTooLow(t *testing.T) {
	f := newAPIFixture(t)
	a := f.liveAuction(t)

	resp := f.request(t, fiber.MethodPost, "/auctions/"+a.ID.String()+"/bids",
		fiber.Map{"amount_cents": 1200}, memberHeaders(uuid.New()))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = f.request(t, fiber.MethodPost, "/auctions/"+a.ID.String()+"/bids",
		fiber.Map{"amount_cents": 1250}, memberHeaders(uuid.New()))
	require.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)

	var body struct {
		Error           string `json:"error"`
		MinimumCents    int64  `json:"minimum_cents"`
		CurrentBidCents int64  `json:"current_bid_cents"`
	}
	decode(t, resp, &body)
	assert.Equal(t, int64(1300), body.MinimumCents)
	assert.Equal(t, int64(1200), body.CurrentBidCents)
}

func TestPlaceBidEndpointClosedAuction(t *testing.T) {
	f := newAPIFixture(t)
	a := f.liveAuction(t)

	f.clk.Set(a.BiddingEndsAt.Add(time.Second))
	resp := f.request(t, fiber.MethodPost, "/auctions/"+a.ID.String()+"/bids",
		fiber.Map{"amount_cents": 999}, memberHeaders(uuid.New()))
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestPlaceBidEndpointAuthGate(t *testing.T) {
	f := newAPIFixture(t)
	a := f.liveAuction(t)
	path := "/auctions/" + a.ID.String() + "/bids"

	resp := f.request(t, fiber.MethodPost, path, fiber.Map{"amount_cents": 999}, nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	headers := memberHeaders(uuid.New())
	headers["X-Membership-Active"] = "false"
	resp = f.request(t, fiber.MethodPost, path, fiber.Map{"amount_cents": 999}, headers)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	// A missing membership header fails closed, same as an inactive one.
	resp = f.request(t, fiber.MethodPost, path, fiber.Map{"amount_cents": 999},
		map[string]string{"X-User-ID": uuid.NewString()})
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestPlaceBidEndpointAnnouncesState(t *testing.T) {
	f := newAPIFixture(t)
	a := f.liveAuction(t)
	path := "/auctions/" + a.ID.String() + "/bids"

	resp := f.request(t, fiber.MethodPost, path,
		fiber.Map{"amount_cents": 999}, memberHeaders(uuid.New()))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// An HTTP-accepted bid reaches socket watchers through the same fan-out
	// path as socket-submitted bids.
	require.Equal(t, 1, f.notifier.count())
	assert.Equal(t, a.ID, f.notifier.last.AuctionID)
	assert.Equal(t, int64(999), f.notifier.last.CurrentBidCents)

	// A replayed bid announces nothing new.
	headers := memberHeaders(uuid.New())
	headers["X-Idempotency-Key"] = "announce-1"
	for i := 0; i < 2; i++ {
		resp = f.request(t, fiber.MethodPost, path, fiber.Map{"amount_cents": 1099}, headers)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}
	assert.Equal(t, 2, f.notifier.count())
}

func TestPlaceBidEndpointUnknownAuction(t *testing.T) {
	f := newAPIFixture(t)
	resp := f.request(t, fiber.MethodPost, "/auctions/"+uuid.NewString()+"/bids",
		fiber.Map{"amount_cents": 999}, memberHeaders(uuid.New()))
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestGetAuctionStatePublic(t *testing.T) {
	f := newAPIFixture(t)
	a := f.liveAuction(t)

	resp := f.request(t, fiber.MethodGet, "/auctions/"+a.ID.String(), nil, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var state application.AuctionStateDTO
	decode(t, resp, &state)
	assert.Equal(t, a.ID, state.AuctionID)
	assert.Equal(t, string(domain.StatusLive), state.Status)
	assert.Equal(t, int64(999), state.MinimumNextBidCents)
}

func TestListBidsOrderedByAmount(t *testing.T) {
	f := newAPIFixture(t)
	a := f.liveAuction(t)
	path := "/auctions/" + a.ID.String() + "/bids"

	for _, amount := range []int64{999, 1100, 1300} {
		resp := f.request(t, fiber.MethodPost, path,
			fiber.Map{"amount_cents": amount}, memberHeaders(uuid.New()))
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}

	resp := f.request(t, fiber.MethodGet, path, nil, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Bids []struct {
			AmountCents int64 `json:"amount_cents"`
		} `json:"bids"`
	}
	decode(t, resp, &body)
	require.Len(t, body.Bids, 3)
	assert.Equal(t, int64(1300), body.Bids[0].AmountCents)
	assert.Equal(t, int64(999), body.Bids[2].AmountCents)
}

func TestMemberBoardEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	a := f.liveAuction(t)
	user := uuid.New()

	resp := f.request(t, fiber.MethodPost, "/auctions/"+a.ID.String()+"/bids",
		fiber.Map{"amount_cents": 999}, memberHeaders(user))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = f.request(t, fiber.MethodGet, "/board", nil, memberHeaders(user))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var board application.Board
	decode(t, resp, &board)
	require.Len(t, board.Live, 1)
	assert.True(t, board.Live[0].IsLeading)
}

func TestAdminCreatePublishLifecycle(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.request(t, fiber.MethodPost, "/admin/auctions/", fiber.Map{
		"title":               "15 minute intro call",
		"duration_minutes":    15,
		"call_starts_at":      httpBase.Add(96 * time.Hour).Format(time.RFC3339),
		"bidding_starts_at":   httpBase.Add(time.Hour).Format(time.RFC3339),
		"bidding_ends_at":     httpBase.Add(2 * time.Hour).Format(time.RFC3339),
		"starting_bid_cents":  500,
		"min_increment_cents": 50,
		"currency":            "USD",
	}, nil)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var created application.AuctionStateDTO
	decode(t, resp, &created)
	assert.Equal(t, string(domain.StatusDraft), created.Status)

	resp = f.request(t, fiber.MethodPost,
		fmt.Sprintf("/admin/auctions/%s/publish", created.AuctionID), nil, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var published application.AuctionStateDTO
	decode(t, resp, &published)
	assert.Equal(t, string(domain.StatusScheduled), published.Status)
}

func TestAdminCreateRejectsBadDuration(t *testing.T) {
	f := newAPIFixture(t)
	resp := f.request(t, fiber.MethodPost, "/admin/auctions/", fiber.Map{
		"title":               "45 minute call",
		"duration_minutes":    45,
		"call_starts_at":      httpBase.Add(96 * time.Hour).Format(time.RFC3339),
		"bidding_starts_at":   httpBase.Add(time.Hour).Format(time.RFC3339),
		"bidding_ends_at":     httpBase.Add(2 * time.Hour).Format(time.RFC3339),
		"starting_bid_cents":  500,
		"min_increment_cents": 50,
		"currency":            "USD",
	}, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestAdminCancelEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	a := f.liveAuction(t)

	resp := f.request(t, fiber.MethodPost,
		fmt.Sprintf("/admin/auctions/%s/cancel", a.ID), fiber.Map{}, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode, "reason is mandatory")
	resp.Body.Close()

	resp = f.request(t, fiber.MethodPost,
		fmt.Sprintf("/admin/auctions/%s/cancel", a.ID),
		fiber.Map{"reason": "expert unavailable"}, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var state application.AuctionStateDTO
	decode(t, resp, &state)
	assert.Equal(t, string(domain.StatusCancelled), state.Status)
	assert.Equal(t, "expert unavailable", state.CancelReason)
}

func TestAdminConfirmBookingEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	a := f.liveAuction(t)

	resp := f.request(t, fiber.MethodPost, "/auctions/"+a.ID.String()+"/bids",
		fiber.Map{"amount_cents": 999}, memberHeaders(uuid.New()))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()

	f.clk.Set(a.BiddingEndsAt.Add(time.Second))
	_, err := f.lifecycle.CloseDue(context.Background())
	require.NoError(t, err)

	resp = f.request(t, fiber.MethodPost,
		fmt.Sprintf("/admin/auctions/%s/confirm-booking", a.ID),
		fiber.Map{"meeting_access_ref": "meet/xyz"}, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var state application.AuctionStateDTO
	decode(t, resp, &state)
	assert.Equal(t, string(domain.StatusSettled), state.Status)
}

func TestAdminUpdateLockedWhenLive(t *testing.T) {
	f := newAPIFixture(t)
	a := f.liveAuction(t)

	resp := f.request(t, fiber.MethodPatch, "/admin/auctions/"+a.ID.String(), fiber.Map{
		"title":               "renamed",
		"duration_minutes":    60,
		"call_starts_at":      a.CallStartsAt.Format(time.RFC3339),
		"bidding_starts_at":   a.BiddingStartsAt.Format(time.RFC3339),
		"bidding_ends_at":     a.BiddingEndsAt.Format(time.RFC3339),
		"starting_bid_cents":  999,
		"min_increment_cents": 100,
		"currency":            "USD",
	}, nil)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}
