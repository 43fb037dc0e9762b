package http

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rparedes/callbid/internal/auction/application"
	"github.com/rparedes/callbid/internal/auction/domain"
	"github.com/rparedes/callbid/internal/shared/logger"
)

var log = logger.GetLogger()

// Handler wires the auction application services into fiber routes. Member
// identity arrives pre-verified from the auth collaborator as the X-User-ID
// header; this layer trusts it and never re-derives it.
type Handler struct {
	svc       application.AuctionService
	lifecycle *application.LifecycleService
	validate  *validator.Validate
}

func NewHandler(svc application.AuctionService, lifecycle *application.LifecycleService) *Handler {
	return &Handler{
		svc:       svc,
		lifecycle: lifecycle,
		validate:  validator.New(),
	}
}

func (h *Handler) RegisterRoutes(app *fiber.App) {
	member := app.Group("/", requireMember)
	member.Get("/board", h.memberBoard)
	member.Post("/auctions/:id/bids", h.placeBid)

	app.Get("/auctions/:id", h.getAuction)
	app.Get("/auctions/:id/bids", h.listBids)

	admin := app.Group("/admin/auctions")
	admin.Post("/", h.createAuction)
	admin.Patch("/:id", h.updateAuction)
	admin.Post("/:id/publish", h.publishAuction)
	admin.Post("/:id/cancel", h.cancelAuction)
	admin.Post("/:id/confirm-booking", h.confirmBooking)
	admin.Post("/:id/notify-winner", h.notifyWinner)
	admin.Post("/:id/notify-admin", h.notifyAdmin)
	admin.Put("/:id/notes", h.setNotes)
}

// requireMember gates member routes on the identity and membership flags the
// auth collaborator injects upstream.
func requireMember(c *fiber.Ctx) error {
	if _, err := uuid.Parse(c.Get("X-User-ID")); err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "missing or invalid member identity")
	}
	// Fail closed: only an explicit "true" from the auth collaborator passes.
	if c.Get("X-Membership-Active") != "true" {
		return fiber.NewError(fiber.StatusForbidden, "membership is not active")
	}
	return c.Next()
}

type placeBidRequest struct {
	AmountCents    int64  `json:"amount_cents" validate:"required,gt=0"`
	IdempotencyKey string `json:"idempotency_key" validate:"omitempty,max=128"`
}

type placeBidResponse struct {
	BidID            uuid.UUID                    `json:"bid_id"`
	Replayed         bool                         `json:"replayed"`
	ExtendedDeadline bool                         `json:"extended_deadline"`
	Auction          *application.AuctionStateDTO `json:"auction"`
}

func (h *Handler) placeBid(c *fiber.Ctx) error {
	auctionID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid auction id")
	}
	userID, _ := uuid.Parse(c.Get("X-User-ID"))

	var req placeBidRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.Get("X-Idempotency-Key")
	}

	cmd := application.PlaceBidCommand{
		AuctionID:   auctionID,
		UserID:      userID,
		AmountCents: req.AmountCents,
	}
	if req.IdempotencyKey != "" {
		cmd.IdempotencyKey = &req.IdempotencyKey
	}

	res, err := h.svc.PlaceBid(c.Context(), cmd)
	if err != nil {
		return respondDomainError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(placeBidResponse{
		BidID:            res.Bid.ID,
		Replayed:         res.Replayed,
		ExtendedDeadline: res.ExtendedDeadline,
		Auction:          application.ToAuctionState(res.Auction),
	})
}

func (h *Handler) getAuction(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid auction id")
	}
	state, err := h.svc.GetAuctionState(c.Context(), id)
	if err != nil {
		return respondDomainError(c, err)
	}
	return c.JSON(state)
}

type bidView struct {
	BidID            uuid.UUID `json:"bid_id"`
	UserID           uuid.UUID `json:"user_id"`
	AmountCents      int64     `json:"amount_cents"`
	Currency         string    `json:"currency"`
	PlacedAt         time.Time `json:"placed_at"`
	ExtendedDeadline bool      `json:"extended_deadline"`
}

func (h *Handler) listBids(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid auction id")
	}
	bids, err := h.svc.ListBids(c.Context(), id)
	if err != nil {
		return respondDomainError(c, err)
	}
	out := make([]bidView, 0, len(bids))
	for _, b := range bids {
		out = append(out, bidView{
			BidID:            b.ID,
			UserID:           b.UserID,
			AmountCents:      b.AmountCents,
			Currency:         b.Currency,
			PlacedAt:         b.PlacedAt,
			ExtendedDeadline: b.ExtendedDeadline,
		})
	}
	return c.JSON(fiber.Map{"bids": out})
}

func (h *Handler) memberBoard(c *fiber.Ctx) error {
	userID, _ := uuid.Parse(c.Get("X-User-ID"))
	board, err := h.svc.MemberBoard(c.Context(), userID)
	if err != nil {
		return respondDomainError(c, err)
	}
	return c.JSON(board)
}

type antiSnipeRequest struct {
	Enabled       bool `json:"enabled"`
	WindowSeconds int  `json:"window_seconds" validate:"gte=0"`
	ExtendSeconds int  `json:"extend_seconds" validate:"gte=0"`
	MaxExtensions int  `json:"max_extensions" validate:"gte=0"`
}

type auctionConfigRequest struct {
	Title             string           `json:"title" validate:"required,max=200"`
	Description       string           `json:"description" validate:"max=2000"`
	DurationMinutes   int              `json:"duration_minutes" validate:"required"`
	CallStartsAt      time.Time        `json:"call_starts_at" validate:"required"`
	BiddingStartsAt   time.Time        `json:"bidding_starts_at" validate:"required"`
	BiddingEndsAt     time.Time        `json:"bidding_ends_at" validate:"required"`
	StartingBidCents  int64            `json:"starting_bid_cents" validate:"required,gt=0"`
	MinIncrementCents int64            `json:"min_increment_cents" validate:"required,gt=0"`
	Currency          string           `json:"currency" validate:"required,len=3"`
	AntiSnipe         antiSnipeRequest `json:"anti_snipe"`
	Scheduled         bool             `json:"scheduled"`
}

func (r antiSnipeRequest) toDomain() domain.AntiSnipeConfig {
	return domain.AntiSnipeConfig{
		Enabled:       r.Enabled,
		WindowSeconds: r.WindowSeconds,
		ExtendSeconds: r.ExtendSeconds,
		MaxExtensions: r.MaxExtensions,
	}
}

func (h *Handler) createAuction(c *fiber.Ctx) error {
	var req auctionConfigRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}
	a, err := h.lifecycle.Create(c.Context(), domain.NewAuctionParams{
		Title:             req.Title,
		Description:       req.Description,
		DurationMinutes:   req.DurationMinutes,
		CallStartsAt:      req.CallStartsAt,
		BiddingStartsAt:   req.BiddingStartsAt,
		BiddingEndsAt:     req.BiddingEndsAt,
		StartingBidCents:  req.StartingBidCents,
		MinIncrementCents: req.MinIncrementCents,
		Currency:          req.Currency,
		AntiSnipe:         req.AntiSnipe.toDomain(),
		Scheduled:         req.Scheduled,
	})
	if err != nil {
		return respondDomainError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(application.ToAuctionState(a))
}

func (h *Handler) updateAuction(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid auction id")
	}
	var req auctionConfigRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}
	a, err := h.lifecycle.UpdateConfig(c.Context(), id, domain.UpdateConfigParams{
		Title:             req.Title,
		Description:       req.Description,
		DurationMinutes:   req.DurationMinutes,
		CallStartsAt:      req.CallStartsAt,
		BiddingStartsAt:   req.BiddingStartsAt,
		BiddingEndsAt:     req.BiddingEndsAt,
		StartingBidCents:  req.StartingBidCents,
		MinIncrementCents: req.MinIncrementCents,
		Currency:          req.Currency,
		AntiSnipe:         req.AntiSnipe.toDomain(),
	})
	if err != nil {
		return respondDomainError(c, err)
	}
	return c.JSON(application.ToAuctionState(a))
}

func (h *Handler) publishAuction(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid auction id")
	}
	a, err := h.lifecycle.Publish(c.Context(), id)
	if err != nil {
		return respondDomainError(c, err)
	}
	return c.JSON(application.ToAuctionState(a))
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func (h *Handler) cancelAuction(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid auction id")
	}
	var req cancelRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}
	a, err := h.lifecycle.Cancel(c.Context(), id, req.Reason)
	if err != nil {
		return respondDomainError(c, err)
	}
	return c.JSON(application.ToAuctionState(a))
}

type confirmBookingRequest struct {
	MeetingAccessRef string `json:"meeting_access_ref" validate:"max=500"`
}

func (h *Handler) confirmBooking(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid auction id")
	}
	var req confirmBookingRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	a, err := h.lifecycle.ConfirmBooking(c.Context(), id, req.MeetingAccessRef)
	if err != nil {
		return respondDomainError(c, err)
	}
	return c.JSON(application.ToAuctionState(a))
}

func (h *Handler) notifyWinner(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid auction id")
	}
	a, err := h.lifecycle.MarkWinnerNotified(c.Context(), id)
	if err != nil {
		return respondDomainError(c, err)
	}
	return c.JSON(application.ToAuctionState(a))
}

func (h *Handler) notifyAdmin(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid auction id")
	}
	a, err := h.lifecycle.MarkAdminNotified(c.Context(), id)
	if err != nil {
		return respondDomainError(c, err)
	}
	return c.JSON(application.ToAuctionState(a))
}

type notesRequest struct {
	Notes string `json:"notes" validate:"max=2000"`
}

func (h *Handler) setNotes(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid auction id")
	}
	var req notesRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	a, err := h.lifecycle.SetAdminNotes(c.Context(), id, req.Notes)
	if err != nil {
		return respondDomainError(c, err)
	}
	return c.JSON(application.ToAuctionState(a))
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

// respondDomainError maps the domain error taxonomy onto HTTP. BidTooLow
// carries the minimum acceptable amount so clients can resubmit without a
// refetch; BidConflict is flagged retryable.
func respondDomainError(c *fiber.Ctx, err error) error {
	var tooLow *domain.BidTooLowError
	switch {
	case errors.Is(err, domain.ErrAuctionNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.As(err, &tooLow):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":             "bid amount is too low",
			"minimum_cents":     tooLow.MinimumCents,
			"current_bid_cents": tooLow.CurrentBidCents,
		})
	case errors.Is(err, domain.ErrAuctionNotAcceptingBids),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrConfigLocked),
		errors.Is(err, domain.ErrNoWinner),
		errors.Is(err, domain.ErrBookingNotConfirmed):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, domain.ErrBidConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error(), "retryable": true})
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidConfig),
		errors.Is(err, domain.ErrCancelReasonRequired):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	default:
		log.Error("unhandled error in HTTP layer", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
}
