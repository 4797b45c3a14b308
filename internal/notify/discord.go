package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// discordLimit is Discord's maximum message length.
const discordLimit = 2000

// DiscordSender posts to a Discord webhook.
type DiscordSender struct {
	webhookURL string
	http       *resty.Client
}

// NewDiscordSender creates a DiscordSender for webhookURL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		http:       resty.New().SetTimeout(10 * time.Second),
	}
}

// Send posts "**title**\nmessage", truncated to Discord's limit.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	content := fmt.Sprintf("**%s**\n%s", title, message)
	if r := []rune(content); len(r) > discordLimit {
		content = string(r[:discordLimit-1]) + "…"
	}

	resp, err := d.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"content": content}).
		Post(d.webhookURL)
	if err != nil {
		return fmt.Errorf("discord: send: %w", err)
	}
	// Discord answers 204 No Content on success.
	if resp.IsError() {
		body := resp.String()
		if len(body) > 256 {
			body = body[:256]
		}
		return fmt.Errorf("discord: status %d: %s", resp.StatusCode(), body)
	}
	return nil
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string { return "discord" }
