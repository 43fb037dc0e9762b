package websocket

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rparedes/callbid/internal/auction/application"
	"github.com/rparedes/callbid/internal/auction/domain"
	"github.com/rparedes/callbid/internal/shared/logger"
	"github.com/rparedes/callbid/internal/shared/websocket"
)

var log = logger.GetLogger()

// AuctionWSHandler consumes inbound hub messages for the auction module:
// bids arrive over the socket, go through the same bid engine as HTTP, and
// the committed auction state fans out to everyone watching the auction.
type AuctionWSHandler struct {
	svc application.AuctionService
	hub *websocket.Hub
}

func NewAuctionWSHandler(svc application.AuctionService, hub *websocket.Hub) *AuctionWSHandler {
	return &AuctionWSHandler{svc: svc, hub: hub}
}

// ListenForMessages drains the hub's inbound channel until the context ends.
func (h *AuctionWSHandler) ListenForMessages(ctx context.Context) {
	log.Info("auction ws handler listening")
	for {
		select {
		case <-ctx.Done():
			log.Info("auction ws handler stopped")
			return
		case msg := <-h.hub.InboundMessages:
			go h.processMessage(ctx, msg.Client, msg.Data)
		}
	}
}

func (h *AuctionWSHandler) processMessage(ctx context.Context, client *websocket.Client, data []byte) {
	var base BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		h.sendError(client, "invalid message format", nil)
		return
	}
	switch base.Type {
	case MessageTypeClientBid:
		h.handleClientBid(ctx, client, data)
	default:
		h.sendError(client, "unknown message type", nil)
	}
}

// SendInitialState pushes the current auction state to a freshly connected
// client.
func (h *AuctionWSHandler) SendInitialState(ctx context.Context, client *websocket.Client) {
	auctionID, err := uuid.Parse(client.AuctionID)
	if err != nil {
		h.sendError(client, "invalid auction id", nil)
		return
	}
	state, err := h.svc.GetAuctionState(ctx, auctionID)
	if err != nil {
		h.sendError(client, "failed to load auction state", err)
		return
	}
	msg := ServerAuctionStateMessage{
		BaseMessage: BaseMessage{Type: MessageTypeServerAuctionState},
		Payload:     state,
	}
	if data, err := json.Marshal(msg); err == nil {
		select {
		case client.Send <- data:
		default:
		}
	}
}

func (h *AuctionWSHandler) handleClientBid(ctx context.Context, client *websocket.Client, data []byte) {
	var bidMsg ClientBidMessage
	if err := json.Unmarshal(data, &bidMsg); err != nil {
		h.sendError(client, "invalid bid message format", nil)
		return
	}
	auctionID, err := uuid.Parse(client.AuctionID)
	if err != nil {
		h.sendError(client, "invalid auction id", nil)
		return
	}
	userID, err := uuid.Parse(client.UserID)
	if err != nil {
		h.sendError(client, "invalid member identity", nil)
		return
	}

	cmd := application.PlaceBidCommand{
		AuctionID:   auctionID,
		UserID:      userID,
		AmountCents: bidMsg.Payload.AmountCents,
	}
	if bidMsg.Payload.IdempotencyKey != "" {
		key := bidMsg.Payload.IdempotencyKey
		cmd.IdempotencyKey = &key
	}

	res, err := h.svc.PlaceBid(ctx, cmd)
	if err != nil {
		h.sendBidRejection(client, err)
		return
	}

	// Answer the bidder directly; the room broadcast happens in the service
	// layer so HTTP-submitted bids fan out the same way.
	resultMsg := ServerBidResultMessage{BaseMessage: BaseMessage{Type: MessageTypeServerBidResult}}
	resultMsg.Payload.BidID = res.Bid.ID.String()
	resultMsg.Payload.Replayed = res.Replayed
	resultMsg.Payload.ExtendedDeadline = res.ExtendedDeadline
	h.send(client, resultMsg)
}

func (h *AuctionWSHandler) sendBidRejection(client *websocket.Client, err error) {
	msg := ServerErrorMessage{BaseMessage: BaseMessage{Type: MessageTypeServerError}}
	msg.Payload.Error = err.Error()

	var tooLow *domain.BidTooLowError
	switch {
	case errors.As(err, &tooLow):
		msg.Payload.MinimumCents = tooLow.MinimumCents
		msg.Payload.CurrentBidCents = tooLow.CurrentBidCents
	case errors.Is(err, domain.ErrBidConflict):
		msg.Payload.Retryable = true
	}
	h.send(client, msg)
}

func (h *AuctionWSHandler) sendError(client *websocket.Client, text string, err error) {
	if err != nil {
		log.Warn("ws request failed", zap.String("error", text), zap.Error(err))
	}
	msg := ServerErrorMessage{BaseMessage: BaseMessage{Type: MessageTypeServerError}}
	msg.Payload.Error = text
	h.send(client, msg)
}

func (h *AuctionWSHandler) send(client *websocket.Client, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error("failed to marshal ws message", zap.Error(err))
		return
	}
	select {
	case client.Send <- data:
	default:
		log.Warn("ws client send buffer full, message dropped",
			zap.String("clientID", client.ID),
			zap.String("auctionID", client.AuctionID),
		)
	}
}
