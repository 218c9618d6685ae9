package handler

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/BadgersMC/LumalyteSRV/internal/service"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// wsConn is the slice of *websocket.Conn the pumps use, extracted so the
// keepalive logic is testable without a network connection.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
	Close() error
}

// WSHandler upgrades proxy connections to the outbound message feed.
type WSHandler struct {
	hub       *service.ProxyHub
	serverKey string
}

func NewWSHandler(hub *service.ProxyHub, serverKey string) *WSHandler {
	return &WSHandler{hub: hub, serverKey: serverKey}
}

func (h *WSHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	// Browsers cannot set headers on upgrade, but the proxy can.
	if c.Get("X-Server-Key") != h.serverKey {
		return c.Status(403).JSON(fiber.Map{"error": "invalid server key"})
	}

	c.Locals("proxy_name", c.Get("X-Proxy-Name", "proxy"))
	return websocket.New(h.handleConnection)(c)
}

func (h *WSHandler) handleConnection(c *websocket.Conn) {
	name, _ := c.Locals("proxy_name").(string)

	client := &service.ProxyClient{
		Conn: c,
		Name: name,
		Send: make(chan []byte, 256),
	}

	h.hub.Register(client)
	defer h.hub.Unregister(client)

	go writePump(c, client.Send, pingPeriod)

	// The proxy reports events over HTTP and sends nothing here, so the
	// server drives the keepalive: writePump pings on an interval and each
	// pong pushes the read deadline forward. An idle proxy stays connected.
	readPump(c, pongWait)
}

func readPump(c wsConn, wait time.Duration) {
	c.SetReadDeadline(time.Now().Add(wait))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(wait))
	})
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}

func writePump(c wsConn, send <-chan []byte, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	defer c.Close()

	for {
		select {
		case msg, ok := <-send:
			if !ok {
				c.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			c.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
