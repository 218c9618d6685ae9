package service

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// WebhookSender posts player chat to Discord through a channel webhook so
// each message carries the player's name and avatar instead of the bot's.
type WebhookSender struct {
	url    string
	client *http.Client
}

func NewWebhookSender(url string) *WebhookSender {
	return &WebhookSender{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled reports whether a webhook URL is configured.
func (s *WebhookSender) Enabled() bool {
	return s != nil && s.url != ""
}

type webhookPayload struct {
	Username  string `json:"username,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Content   string `json:"content"`
}

// Send posts one message. Delivery is fire-and-forget; failures are logged
// and never propagate to the caller.
func (s *WebhookSender) Send(username, avatarURL, content string) {
	if !s.Enabled() {
		return
	}
	payload := webhookPayload{Username: username, AvatarURL: avatarURL, Content: content}
	go func() {
		body, err := json.Marshal(payload)
		if err != nil {
			log.Error().Err(err).Msg("webhook marshal failed")
			return
		}
		resp, err := s.client.Post(s.url, "application/json", bytes.NewReader(body))
		if err != nil {
			log.Error().Err(err).Msg("webhook send failed")
			return
		}
		resp.Body.Close()
		if resp.StatusCode >= 400 {
			log.Warn().Int("status", resp.StatusCode).Msg("webhook rejected message")
		}
	}()
}
