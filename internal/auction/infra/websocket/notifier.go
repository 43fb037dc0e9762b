package websocket

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/rparedes/callbid/internal/auction/application"
	"github.com/rparedes/callbid/internal/shared/websocket"
)

// StateNotifier fans committed auction state out to the auction's socket
// room. It implements application.AuctionNotifier, so bids accepted over
// HTTP reach socket watchers the same way socket-submitted bids do.
type StateNotifier struct {
	hub *websocket.Hub
}

func NewStateNotifier(hub *websocket.Hub) *StateNotifier {
	return &StateNotifier{hub: hub}
}

func (n *StateNotifier) AuctionStateChanged(state *application.AuctionStateDTO) {
	msg := ServerAuctionStateMessage{
		BaseMessage: BaseMessage{Type: MessageTypeServerAuctionState},
		Payload:     state,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error("failed to marshal auction state broadcast", zap.Error(err))
		return
	}
	n.hub.BroadcastToAuction(state.AuctionID.String(), data)
}
