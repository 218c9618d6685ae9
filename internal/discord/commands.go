package discord

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"github.com/BadgersMC/LumalyteSRV/internal/config"
	"github.com/BadgersMC/LumalyteSRV/internal/service"
)

// CommandHandler processes bot prefix commands.
type CommandHandler struct {
	cfg     *config.Config
	links   *service.LinkService
	tracker *service.StatusTracker
}

func NewCommandHandler(cfg *config.Config, links *service.LinkService, tracker *service.StatusTracker) *CommandHandler {
	return &CommandHandler{cfg: cfg, links: links, tracker: tracker}
}

// Handle dispatches a prefix command.
func (h *CommandHandler) Handle(s *discordgo.Session, m *discordgo.MessageCreate) {
	parts := strings.Fields(m.Content)
	if len(parts) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch strings.ToLower(parts[0]) {
	case "!link":
		h.cmdLink(ctx, s, m)
	case "!list":
		h.cmdList(s, m)
	case "!help":
		h.cmdHelp(s, m)
	}
}

func (h *CommandHandler) cmdLink(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate) {
	code, err := h.links.IssueCode(ctx, m.Author.ID)
	if err != nil {
		log.Error().Err(err).Str("discord_id", m.Author.ID).Msg("failed to issue link code")
		s.ChannelMessageSend(m.ChannelID, "❌ An error occurred while generating your link code. Please try again later.")
		return
	}

	embed := &discordgo.MessageEmbed{
		Title: "Link your Minecraft account",
		Description: "Your linking code: **" + code + "**\n\n" +
			"Run this command in-game:\n`/link " + code + "`\n\n" +
			"The code expires in 15 minutes.",
		Color:  0x00C8FF,
		Footer: &discordgo.MessageEmbedFooter{Text: "LumalyteSRV"},
	}

	// The code is already stored; if DMs are closed the user just has to
	// open them and ask again.
	ch, err := s.UserChannelCreate(m.Author.ID)
	if err != nil {
		s.ChannelMessageSend(m.ChannelID, "❌ Failed to send DM. Please ensure your DMs are open.")
		log.Warn().Err(err).Str("discord_id", m.Author.ID).Msg("failed to open DM channel")
		return
	}
	if _, err := s.ChannelMessageSendEmbed(ch.ID, embed); err != nil {
		s.ChannelMessageSend(m.ChannelID, "❌ Failed to send DM. Please ensure your DMs are open.")
		log.Warn().Err(err).Str("discord_id", m.Author.ID).Msg("failed to deliver link code DM")
		return
	}
	s.ChannelMessageSend(m.ChannelID, "✅ Check your DMs for your linking code!")
}

func (h *CommandHandler) cmdList(s *discordgo.Session, m *discordgo.MessageCreate) {
	t := h.cfg.Templates

	var sb strings.Builder
	sb.WriteString("```\n")
	for _, state := range h.tracker.Snapshot() {
		sb.WriteString(service.Render(t.ListServer, map[string]string{
			"server": state.Name,
			"online": strconv.Itoa(state.Players),
			"max":    strconv.Itoa(state.MaxPlayers),
		}))
		sb.WriteByte('\n')

		switch {
		case !state.Online:
			sb.WriteString(t.ListOffline)
			sb.WriteByte('\n')
		case state.Players == 0:
			sb.WriteString(t.ListNoPlayers)
			sb.WriteByte('\n')
		default:
			for _, username := range h.tracker.Players(state.Name) {
				sb.WriteString(service.Render(t.ListPlayer, map[string]string{"username": username}))
				sb.WriteByte('\n')
			}
		}
		sb.WriteByte('\n')
	}
	sb.WriteString("```")

	s.ChannelMessageSend(m.ChannelID, sb.String())
}

func (h *CommandHandler) cmdHelp(s *discordgo.Session, m *discordgo.MessageCreate) {
	embed := &discordgo.MessageEmbed{
		Title: "LumalyteSRV Bot Commands",
		Color: 0x00C8FF,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "`!link`", Value: "Link your Discord account to your Minecraft account"},
			{Name: "`!list`", Value: "Show online players per server"},
			{Name: "`!help`", Value: "Show this help"},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: "LumalyteSRV"},
	}
	s.ChannelMessageSendEmbed(m.ChannelID, embed)
}
