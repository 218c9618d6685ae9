package model

import "time"

// PendingLink is an unconsumed link code awaiting redemption in-game.
// At most one row exists per Discord user; issuing a new code replaces it.
type PendingLink struct {
	DiscordID string    `json:"discord_id"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"created_at"`
}

// LinkedAccount is the durable association between a Minecraft account and a
// Discord user. One uuid maps to at most one Discord id.
type LinkedAccount struct {
	UUID      string `json:"uuid"`
	DiscordID string `json:"discord_id"`
}

// LinkRequest is sent by the proxy when a player runs /link <code>.
type LinkRequest struct {
	UUID string `json:"uuid"`
	Code string `json:"code"`
}

// UnlinkRequest is sent by the proxy when a player runs /unlink.
type UnlinkRequest struct {
	UUID string `json:"uuid"`
}

// LinkResult is the outcome of a link attempt. Message is safe to show the
// player verbatim. DiscordID is set only on success.
type LinkResult struct {
	Success   bool   `json:"success"`
	DiscordID string `json:"discord_id,omitempty"`
	Message   string `json:"message"`
}

// UnlinkResult is the outcome of an unlink. DiscordID carries the previously
// linked Discord id so the caller can revoke the role grant.
type UnlinkResult struct {
	Success   bool   `json:"success"`
	DiscordID string `json:"discord_id,omitempty"`
	Message   string `json:"message"`
}
