package discord

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"github.com/BadgersMC/LumalyteSRV/internal/config"
	"github.com/BadgersMC/LumalyteSRV/internal/service"
)

var webhookIDRegex = regexp.MustCompile(`^https://discord\.com/api/webhooks/(\d+)/`)

// Bot owns the Discord gateway session: it dispatches prefix commands,
// forwards bridged-channel messages into the game and carries the
// bridge-to-Discord sink (service.ChannelSender).
type Bot struct {
	session   *discordgo.Session
	cfg       *config.Config
	commands  *CommandHandler
	bridge    *service.BridgeService
	tracker   *service.StatusTracker
	roleSync  *RoleSync
	webhookID string
	done      chan struct{}
}

// NewBot creates and configures the bot. A missing token disables the
// Discord side entirely; the returned nil bot is safe to use.
func NewBot(
	cfg *config.Config,
	links *service.LinkService,
	bridge *service.BridgeService,
	tracker *service.StatusTracker,
) (*Bot, error) {
	if cfg.DiscordToken == "" {
		log.Warn().Msg("no bot token configured, Discord side disabled")
		return nil, nil
	}

	s, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}

	s.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	bot := &Bot{
		session:   s,
		cfg:       cfg,
		commands:  NewCommandHandler(cfg, links, tracker),
		bridge:    bridge,
		tracker:   tracker,
		roleSync:  NewRoleSync(s, cfg),
		webhookID: parseWebhookID(cfg.WebhookURL),
		done:      make(chan struct{}),
	}

	s.AddHandler(bot.onMessageCreate)

	return bot, nil
}

func parseWebhookID(url string) string {
	m := webhookIDRegex.FindStringSubmatch(url)
	if m == nil {
		return ""
	}
	return m[1]
}

// Start opens the gateway connection and kicks off the topic updater.
func (b *Bot) Start() error {
	if b == nil || b.session == nil {
		return nil
	}
	if err := b.session.Open(); err != nil {
		return err
	}
	log.Info().Msg("bot connected to Discord")

	if b.cfg.TopicInterval >= 10*time.Minute && b.cfg.ChatChannelID != "" {
		go b.topicLoop()
	}
	return nil
}

// Stop closes the gateway connection.
func (b *Bot) Stop() {
	if b == nil || b.session == nil {
		return
	}
	close(b.done)
	_ = b.session.Close()
	log.Info().Msg("bot disconnected")
}

// RoleSync returns the role mirror for wiring into the link coordinator.
func (b *Bot) RoleSync() *RoleSync {
	if b == nil {
		return nil
	}
	return b.roleSync
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author.ID == s.State.User.ID {
		return
	}
	// Our own webhook echoes game chat back at us.
	if b.webhookID != "" && m.WebhookID == b.webhookID {
		return
	}

	if strings.HasPrefix(m.Content, "!") {
		b.commands.Handle(s, m)
		return
	}

	if m.ChannelID != b.cfg.ChatChannelID || m.Author.Bot {
		return
	}
	b.bridge.HandleDiscordMessage(displayName(m), m.Content)
}

func displayName(m *discordgo.MessageCreate) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}

// SendChannelMessage implements service.ChannelSender. Delivery is
// best-effort and never blocks the caller.
func (b *Bot) SendChannelMessage(content string) {
	if b == nil || b.session == nil || b.cfg.ChatChannelID == "" || content == "" {
		return
	}
	go func() {
		if _, err := b.session.ChannelMessageSend(b.cfg.ChatChannelID, content); err != nil {
			log.Error().Err(err).Msg("failed to send channel message")
		}
	}()
}

// UpdateActivity implements service.ChannelSender.
func (b *Bot) UpdateActivity(players int) {
	if b == nil || b.session == nil || !b.cfg.ShowActivity {
		return
	}
	status := service.Render(b.cfg.ActivityFormat, map[string]string{
		"amount": strconv.Itoa(players),
	})
	go func() {
		if err := b.session.UpdateGameStatus(0, status); err != nil {
			log.Error().Err(err).Msg("failed to update activity")
		}
	}()
}

func (b *Bot) topicLoop() {
	ticker := time.NewTicker(b.cfg.TopicInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			topic := service.Render("{amount} players online", map[string]string{
				"amount": strconv.Itoa(b.tracker.TotalPlayers()),
			})
			_, err := b.session.ChannelEdit(b.cfg.ChatChannelID, &discordgo.ChannelEdit{Topic: topic})
			if err != nil {
				log.Error().Err(err).Msg("failed to update channel topic")
			}
		case <-b.done:
			return
		}
	}
}
