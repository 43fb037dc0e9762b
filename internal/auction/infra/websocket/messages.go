package websocket

import (
	"github.com/rparedes/callbid/internal/auction/application"
)

// MessageType identifies a websocket frame.
type MessageType string

const (
	MessageTypeClientBid          MessageType = "client_bid"
	MessageTypeServerAuctionState MessageType = "server_auction_state"
	MessageTypeServerBidResult    MessageType = "server_bid_result"
	MessageTypeServerError        MessageType = "server_error"
)

// BaseMessage carries the discriminator every frame starts with.
type BaseMessage struct {
	Type MessageType `json:"type"`
}

// ClientBidMessage is a member's bid submitted over the socket. The user id
// comes from the authenticated connection, not the payload.
type ClientBidMessage struct {
	BaseMessage
	Payload struct {
		AmountCents    int64  `json:"amount_cents"`
		IdempotencyKey string `json:"idempotency_key,omitempty"`
	} `json:"payload"`
}

// ServerAuctionStateMessage is broadcast to the auction's room after every
// accepted bid, and sent to a client on connect.
type ServerAuctionStateMessage struct {
	BaseMessage
	Payload *application.AuctionStateDTO `json:"payload"`
}

// ServerBidResultMessage answers the bidding client directly.
type ServerBidResultMessage struct {
	BaseMessage
	Payload struct {
		BidID            string `json:"bid_id"`
		Replayed         bool   `json:"replayed"`
		ExtendedDeadline bool   `json:"extended_deadline"`
	} `json:"payload"`
}

// ServerErrorMessage reports a rejected bid or malformed frame. BidTooLow
// rejections include the minimum the next bid must meet.
type ServerErrorMessage struct {
	BaseMessage
	Payload struct {
		Error           string `json:"error"`
		MinimumCents    int64  `json:"minimum_cents,omitempty"`
		CurrentBidCents int64  `json:"current_bid_cents,omitempty"`
		Retryable       bool   `json:"retryable,omitempty"`
	} `json:"payload"`
}
