package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/BadgersMC/LumalyteSRV/internal/model"
	"github.com/BadgersMC/LumalyteSRV/internal/service"
)

const msgStoreUnavailable = "The link service is temporarily unavailable. Please try again later."

// ProxyHandler serves the server-key-authenticated API the proxy calls:
// player events for the chat bridge and the /link and /unlink commands.
type ProxyHandler struct {
	bridge *service.BridgeService
	links  *service.LinkService
}

func NewProxyHandler(bridge *service.BridgeService, links *service.LinkService) *ProxyHandler {
	return &ProxyHandler{bridge: bridge, links: links}
}

// Events ingests one player event from the proxy.
func (h *ProxyHandler) Events(c *fiber.Ctx) error {
	var ev model.ProxyEvent
	if err := c.BodyParser(&ev); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	if ev.Type == "" || ev.Username == "" {
		return c.Status(400).JSON(fiber.Map{"error": "type and username required"})
	}

	h.bridge.HandleProxyEvent(ev)
	return c.JSON(fiber.Map{"ok": true})
}

// Link redeems a code for a player. Validation outcomes come back as 200
// with the result payload; only store failures produce a 503.
func (h *ProxyHandler) Link(c *fiber.Ctx) error {
	var req model.LinkRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	if _, err := uuid.Parse(req.UUID); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid uuid"})
	}
	if req.Code == "" {
		return c.Status(400).JSON(fiber.Map{"error": "code required"})
	}

	result, err := h.links.Link(c.Context(), req.UUID, req.Code)
	if err != nil {
		log.Error().Err(err).Str("uuid", req.UUID).Msg("link failed")
		return c.Status(503).JSON(model.LinkResult{Message: msgStoreUnavailable})
	}
	return c.JSON(result)
}

// Unlink removes a player's link.
func (h *ProxyHandler) Unlink(c *fiber.Ctx) error {
	var req model.UnlinkRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	if _, err := uuid.Parse(req.UUID); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid uuid"})
	}

	result, err := h.links.Unlink(c.Context(), req.UUID)
	if err != nil {
		log.Error().Err(err).Str("uuid", req.UUID).Msg("unlink failed")
		return c.Status(503).JSON(model.UnlinkResult{Message: msgStoreUnavailable})
	}
	return c.JSON(result)
}

// Status reports whether a player's account is linked.
func (h *ProxyHandler) Status(c *fiber.Ctx) error {
	id := c.Params("uuid")
	if _, err := uuid.Parse(id); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid uuid"})
	}

	discordID, err := h.links.Owner(c.Context(), id)
	if err != nil {
		log.Error().Err(err).Str("uuid", id).Msg("status lookup failed")
		return c.Status(503).JSON(fiber.Map{"error": "store unavailable"})
	}
	return c.JSON(fiber.Map{"linked": discordID != "", "discord_id": discordID})
}
