package service

import (
	"encoding/json"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/rs/zerolog/log"

	"github.com/BadgersMC/LumalyteSRV/internal/model"
)

// ProxyClient is one connected proxy instance.
type ProxyClient struct {
	Conn *websocket.Conn
	Name string
	Send chan []byte
}

// ProxyHub fans Discord-originated messages out to every connected proxy.
// Usually there is exactly one, but nothing requires that.
type ProxyHub struct {
	clients    map[*ProxyClient]bool
	register   chan *ProxyClient
	unregister chan *ProxyClient
	broadcast  chan []byte
	mu         sync.RWMutex
	done       chan struct{}
}

func NewProxyHub() *ProxyHub {
	return &ProxyHub{
		clients:    make(map[*ProxyClient]bool),
		register:   make(chan *ProxyClient),
		unregister: make(chan *ProxyClient),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
	}
}

func (h *ProxyHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			log.Info().Str("proxy", client.Name).Int("total", total).Msg("proxy connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			log.Info().Str("proxy", client.Name).Int("total", total).Msg("proxy disconnected")

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.Send <- message:
				default:
					close(client.Send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()

		case <-h.done:
			return
		}
	}
}

func (h *ProxyHub) Shutdown() {
	close(h.done)
}

// Register and Unregister hand the client to the Run loop. Both fall through
// after Shutdown so a connection tearing down late never blocks.
func (h *ProxyHub) Register(client *ProxyClient) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

func (h *ProxyHub) Unregister(client *ProxyClient) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast sends a message to every connected proxy.
func (h *ProxyHub) Broadcast(msg *model.GameMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- data:
	case <-h.done:
	}
}

// ConnCount returns the number of connected proxies.
func (h *ProxyHub) ConnCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
