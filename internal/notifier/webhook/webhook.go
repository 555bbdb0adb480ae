// Package webhook implements an HTTP webhook notifier
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/newthinker/upbot/internal/config"
	"github.com/newthinker/upbot/internal/notifier"
)

// Webhook posts events as JSON to a URL.
type Webhook struct {
	url     string
	headers map[string]string
	client  *http.Client
}

func New(url string, headers map[string]string) *Webhook {
	return &Webhook{
		url:     url,
		headers: headers,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) Init(cfg config.NotifierConfig) error {
	if cfg.URL != "" {
		w.url = cfg.URL
	}
	if len(cfg.Headers) > 0 {
		w.headers = cfg.Headers
	}

	if w.url == "" {
		return fmt.Errorf("webhook: url is required")
	}

	if w.client == nil {
		w.client = &http.Client{Timeout: 30 * time.Second}
	}

	return nil
}

type payload struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	notifier.Event
}

type batchPayload struct {
	Type   string    `json:"type"`
	Count  int       `json:"count"`
	Events []payload `json:"events"`
}

func toPayload(e notifier.Event) payload {
	return payload{Type: "event", Title: e.Title(), Event: e}
}

func (w *Webhook) Send(ctx context.Context, e notifier.Event) error {
	return w.post(ctx, toPayload(e))
}

func (w *Webhook) SendBatch(ctx context.Context, events []notifier.Event) error {
	if len(events) == 0 {
		return nil
	}

	batch := batchPayload{Type: "batch", Count: len(events), Events: make([]payload, len(events))}
	for i, e := range events {
		batch.Events[i] = toPayload(e)
	}
	return w.post(ctx, batch)
}

func (w *Webhook) post(ctx context.Context, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("webhook: failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: server returned %d", resp.StatusCode)
	}

	return nil
}
