package websocket

import (
	"context"

	"github.com/gofiber/fiber/v2"
	fiberws "github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/rparedes/callbid/internal/shared/websocket"
)

// RegisterRoutes mounts the live-auction socket at /ws/auctions/:id. The
// member identity comes from the same trusted header the HTTP surface uses;
// it is captured before the protocol upgrade.
func RegisterRoutes(ctx context.Context, app *fiber.App, hub *websocket.Hub, handler *AuctionWSHandler) {
	app.Use("/ws/auctions/:id", func(c *fiber.Ctx) error {
		if !fiberws.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		c.Locals("auctionID", c.Params("id"))
		c.Locals("userID", c.Get("X-User-ID"))
		return c.Next()
	})

	app.Get("/ws/auctions/:id", fiberws.New(func(conn *fiberws.Conn) {
		auctionID, _ := conn.Locals("auctionID").(string)
		userID, _ := conn.Locals("userID").(string)
		if _, err := uuid.Parse(auctionID); err != nil {
			_ = conn.Close()
			return
		}

		client := &websocket.Client{
			Hub:       hub,
			Conn:      conn,
			Send:      make(chan []byte, 64),
			AuctionID: auctionID,
			UserID:    userID,
			ID:        uuid.NewString(),
		}
		hub.RegisterClient(client)
		handler.SendInitialState(ctx, client)

		go client.WritePump(ctx)
		client.ReadPump(ctx)
	}))
}
