package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const telegramAPI = "https://api.telegram.org"

// TelegramSender posts to a chat through the Telegram Bot API.
type TelegramSender struct {
	token  string
	chatID string
	http   *resty.Client
}

// NewTelegramSender creates a TelegramSender for the bot token and chat.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		token:  token,
		chatID: chatID,
		http:   resty.New().SetBaseURL(telegramAPI).SetTimeout(10 * time.Second),
	}
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send posts "*title*\nmessage" with Markdown parsing.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	var out telegramResponse
	resp, err := t.http.R().
		SetContext(ctx).
		SetPathParam("token", t.token).
		SetBody(map[string]string{
			"chat_id":    t.chatID,
			"text":       fmt.Sprintf("*%s*\n%s", title, message),
			"parse_mode": "Markdown",
		}).
		SetResult(&out).
		SetError(&out).
		Post("/bot{token}/sendMessage")
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	if resp.IsError() || !out.OK {
		return fmt.Errorf("telegram: status %d: %s", resp.StatusCode(), out.Description)
	}
	return nil
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string { return "telegram" }
