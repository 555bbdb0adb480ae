package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/newthinker/upbot/internal/config"
	"github.com/newthinker/upbot/internal/notifier"
)

const defaultAPIBase = "https://api.telegram.org"

// Telegram implements the Notifier interface for Telegram Bot API
type Telegram struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
}

func New(botToken, chatID string) *Telegram {
	return &Telegram{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  defaultAPIBase,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (t *Telegram) Name() string {
	return "telegram"
}

func (t *Telegram) Init(cfg config.NotifierConfig) error {
	if cfg.BotToken != "" {
		t.botToken = cfg.BotToken
	}
	if cfg.ChatID != "" {
		t.chatID = cfg.ChatID
	}
	if cfg.URL != "" {
		t.apiBase = strings.TrimSuffix(cfg.URL, "/")
	}
	if t.apiBase == "" {
		t.apiBase = defaultAPIBase
	}
	if t.client == nil {
		t.client = &http.Client{Timeout: 30 * time.Second}
	}

	if t.botToken == "" {
		return fmt.Errorf("telegram: bot_token is required")
	}
	if t.chatID == "" {
		return fmt.Errorf("telegram: chat_id is required")
	}

	return nil
}

func (t *Telegram) Send(ctx context.Context, e notifier.Event) error {
	return t.sendMessage(ctx, t.formatEvent(e))
}

func (t *Telegram) SendBatch(ctx context.Context, events []notifier.Event) error {
	if len(events) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📊 *%d upbot events*\n\n", len(events)))

	for i, e := range events {
		sb.WriteString(t.formatEvent(e))
		if i < len(events)-1 {
			sb.WriteString("\n---\n\n")
		}
	}

	return t.sendMessage(ctx, sb.String())
}

func emoji(k notifier.Kind) string {
	switch k {
	case notifier.KindStartup:
		return "🚀"
	case notifier.KindShutdown:
		return "🛑"
	case notifier.KindFilled:
		return "✅"
	case notifier.KindStopLoss:
		return "📉"
	case notifier.KindTakeProfit:
		return "💰"
	case notifier.KindTrailingStop:
		return "🎯"
	case notifier.KindRejected:
		return "⛔"
	case notifier.KindPortfolio:
		return "📊"
	case notifier.KindAlert:
		return "🔔"
	default:
		return "⚠️"
	}
}

func (t *Telegram) formatEvent(e notifier.Event) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%s *%s*\n", emoji(e.Kind), e.Title()))
	if e.Message != "" {
		sb.WriteString(e.Message + "\n")
	}
	for _, f := range e.Fields {
		sb.WriteString(fmt.Sprintf("• %s: %s\n", f.Key, f.Value))
	}
	sb.WriteString(fmt.Sprintf("⏰ %s", e.Time.Format("2006-01-02 15:04:05")))

	return sb.String()
}

func (t *Telegram) sendMessage(ctx context.Context, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.botToken)

	payload := map[string]any{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var result map[string]any
		json.NewDecoder(resp.Body).Decode(&result)
		return fmt.Errorf("telegram: API error (status %d): %v", resp.StatusCode, result)
	}

	return nil
}
