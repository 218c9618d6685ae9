package service

import (
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/BadgersMC/LumalyteSRV/internal/config"
	"github.com/BadgersMC/LumalyteSRV/internal/metrics"
	"github.com/BadgersMC/LumalyteSRV/internal/model"
)

// ChannelSender delivers bridge output to the Discord side. Implemented by
// the bot; calls are best-effort and must not block the caller.
type ChannelSender interface {
	SendChannelMessage(content string)
	UpdateActivity(players int)
}

// BridgeService mirrors chat and presence between the proxy and Discord.
// Game events arrive over HTTP, get rendered with the configured templates
// and forwarded to the Discord channel (through the webhook for chat, so
// messages carry the player's name and skin). Discord messages flow the
// other way through the proxy hub.
type BridgeService struct {
	templates config.Templates
	tracker   *StatusTracker
	hub       *ProxyHub
	webhook   *WebhookSender
	sender    ChannelSender
}

func NewBridgeService(templates config.Templates, tracker *StatusTracker, hub *ProxyHub, webhook *WebhookSender) *BridgeService {
	return &BridgeService{
		templates: templates,
		tracker:   tracker,
		hub:       hub,
		webhook:   webhook,
	}
}

// SetSender wires the Discord-side sink. Called once the bot exists; until
// then events are still tracked but nothing is mirrored.
func (b *BridgeService) SetSender(s ChannelSender) {
	b.sender = s
}

// HandleProxyEvent applies one player event: updates presence tracking and
// mirrors the event into Discord.
func (b *BridgeService) HandleProxyEvent(ev model.ProxyEvent) {
	switch ev.Type {
	case model.EventChat:
		b.tracker.MarkOnline(ev.Server)
		b.forwardChat(ev)
		return
	case model.EventJoin:
		b.tracker.PlayerJoined(ev.Server, ev.Username)
		b.sendSystem(b.templates.Join, ev)
	case model.EventSwitch:
		b.tracker.PlayerJoined(ev.Server, ev.Username)
		b.sendSystem(b.templates.Switch, ev)
	case model.EventLeave:
		b.tracker.PlayerLeft(ev.Username)
		b.sendSystem(b.templates.Leave, ev)
	case model.EventDisconnect:
		b.tracker.PlayerLeft(ev.Username)
		b.sendSystem(b.templates.Disconnect, ev)
	default:
		log.Warn().Str("type", ev.Type).Msg("unknown proxy event type")
		return
	}

	if b.sender != nil {
		b.sender.UpdateActivity(b.tracker.TotalPlayers())
	}
}

func (b *BridgeService) forwardChat(ev model.ProxyEvent) {
	if b.webhook.Enabled() {
		username := Render(b.templates.WebhookUsername, map[string]string{
			"username": ev.Username,
			"prefix":   ev.Prefix,
			"server":   ev.Server,
		})
		avatar := Render(b.templates.WebhookAvatar, map[string]string{"uuid": ev.UUID})
		b.webhook.Send(username, avatar, ev.Message)
	} else if b.sender != nil {
		b.sender.SendChannelMessage(Render(b.templates.Chat, eventVars(ev)))
	}
	metrics.MessagesBridged.WithLabelValues("to_discord").Inc()
}

func (b *BridgeService) sendSystem(format string, ev model.ProxyEvent) {
	if b.sender == nil {
		return
	}
	b.sender.SendChannelMessage(Render(format, eventVars(ev)))
}

func eventVars(ev model.ProxyEvent) map[string]string {
	return map[string]string{
		"username": ev.Username,
		"uuid":     ev.UUID,
		"prefix":   ev.Prefix,
		"server":   ev.Server,
		"previous": ev.PreviousServer,
		"message":  ev.Message,
	}
}

// HandleDiscordMessage mirrors a Discord chat message into the game: renders
// the in-game template and broadcasts it to every connected proxy.
func (b *BridgeService) HandleDiscordMessage(username, content string) {
	if strings.TrimSpace(content) == "" {
		return
	}
	text := Render(b.templates.GameChat, map[string]string{
		"username": escapeGameText(username),
		"message":  escapeGameText(content),
	})
	b.hub.Broadcast(&model.GameMessage{Type: "chat", Text: text})
	metrics.MessagesBridged.WithLabelValues("to_game").Inc()
}

// escapeGameText strips the legacy color-code character so Discord users
// cannot inject formatting into in-game chat.
func escapeGameText(s string) string {
	return strings.ReplaceAll(s, "§", "")
}

// ServerStarted implements StatusNotifier.
func (b *BridgeService) ServerStarted(name string) {
	if b.sender == nil {
		return
	}
	b.sender.SendChannelMessage(Render(b.templates.ServerStart, map[string]string{"server": name}))
}

// ServerStopped implements StatusNotifier.
func (b *BridgeService) ServerStopped(name string) {
	if b.sender == nil {
		return
	}
	b.sender.SendChannelMessage(Render(b.templates.ServerStop, map[string]string{"server": name}))
}
