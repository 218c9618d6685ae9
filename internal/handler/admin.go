package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/BadgersMC/LumalyteSRV/internal/service"
)

type AdminHandler struct {
	links   *service.LinkService
	tracker *service.StatusTracker
	hub     *service.ProxyHub
}

func NewAdminHandler(links *service.LinkService, tracker *service.StatusTracker, hub *service.ProxyHub) *AdminHandler {
	return &AdminHandler{links: links, tracker: tracker, hub: hub}
}

func (h *AdminHandler) Stats(c *fiber.Ctx) error {
	links, pending, err := h.links.Stats(c.Context())
	if err != nil {
		return c.Status(503).JSON(fiber.Map{"error": "store unavailable"})
	}

	return c.JSON(fiber.Map{
		"linked_accounts":   links,
		"pending_codes":     pending,
		"players_online":    h.tracker.TotalPlayers(),
		"proxies_connected": h.hub.ConnCount(),
		"servers":           h.tracker.Snapshot(),
	})
}
