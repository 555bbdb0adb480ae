// Package email implements an SMTP-based email notifier
package email

import (
	"context"
	"fmt"
	"html"
	"net/smtp"
	"strings"

	"github.com/newthinker/upbot/internal/config"
	"github.com/newthinker/upbot/internal/notifier"
)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Email implements the Notifier interface for SMTP email
type Email struct {
	host     string
	port     int
	username string
	password string
	from     string
	to       []string
	send     sendFunc
}

func New(host string, port int, username, password, from string, to []string) *Email {
	return &Email{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		to:       to,
		send:     smtp.SendMail,
	}
}

func (e *Email) Name() string { return "email" }

func (e *Email) Init(cfg config.NotifierConfig) error {
	if cfg.Host != "" {
		e.host = cfg.Host
	}
	if cfg.Port != 0 {
		e.port = cfg.Port
	}
	if cfg.Username != "" {
		e.username = cfg.Username
	}
	if cfg.Password != "" {
		e.password = cfg.Password
	}
	if cfg.From != "" {
		e.from = cfg.From
	}
	if len(cfg.To) > 0 {
		e.to = cfg.To
	}
	if e.port == 0 {
		e.port = 587
	}
	if e.send == nil {
		e.send = smtp.SendMail
	}

	if e.host == "" || e.from == "" || len(e.to) == 0 {
		return fmt.Errorf("email: host, from, and to are required")
	}
	return nil
}

// smtp.SendMail takes no context; ctx is checked before dialing.
func (e *Email) Send(ctx context.Context, ev notifier.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subject := fmt.Sprintf("upbot: %s", ev.Title())
	return e.sendEmail(subject, e.formatEvent(ev))
}

func (e *Email) SendBatch(ctx context.Context, events []notifier.Event) error {
	if len(events) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	subject := fmt.Sprintf("upbot digest: %d events", len(events))

	var sb strings.Builder
	sb.WriteString("<html><body>")
	sb.WriteString("<h2>upbot events</h2>")
	sb.WriteString("<hr>")

	for _, ev := range events {
		sb.WriteString(e.formatEventHTML(ev))
		sb.WriteString("<hr>")
	}

	sb.WriteString("</body></html>")

	return e.sendEmail(subject, sb.String())
}

func (e *Email) formatEvent(ev notifier.Event) string {
	var sb strings.Builder
	sb.WriteString(ev.Title() + "\n\n")
	if ev.Message != "" {
		sb.WriteString(ev.Message + "\n\n")
	}
	for _, f := range ev.Fields {
		sb.WriteString(fmt.Sprintf("%s: %s\n", f.Key, f.Value))
	}
	sb.WriteString(fmt.Sprintf("Time: %s\n", ev.Time.Format("2006-01-02 15:04:05")))
	return sb.String()
}

func color(k notifier.Kind) string {
	switch k {
	case notifier.KindStopLoss, notifier.KindRejected, notifier.KindError, notifier.KindAlert:
		return "#dc3545" // red
	case notifier.KindTakeProfit, notifier.KindFilled:
		return "#28a745" // green
	default:
		return "#333333"
	}
}

func (e *Email) formatEventHTML(ev notifier.Event) string {
	var sb strings.Builder
	sb.WriteString(`<div style="margin: 10px 0;">`)
	sb.WriteString(fmt.Sprintf(`<h3 style="color: %s;">%s</h3>`, color(ev.Kind), html.EscapeString(ev.Title())))
	if ev.Message != "" {
		sb.WriteString(fmt.Sprintf("<p>%s</p>", html.EscapeString(ev.Message)))
	}
	for _, f := range ev.Fields {
		sb.WriteString(fmt.Sprintf("<p><strong>%s:</strong> %s</p>", html.EscapeString(f.Key), html.EscapeString(f.Value)))
	}
	sb.WriteString(fmt.Sprintf("<p><small>%s</small></p>", ev.Time.Format("2006-01-02 15:04:05")))
	sb.WriteString("</div>")
	return sb.String()
}

func (e *Email) sendEmail(subject, body string) error {
	addr := fmt.Sprintf("%s:%d", e.host, e.port)

	var auth smtp.Auth
	if e.username != "" {
		auth = smtp.PlainAuth("", e.username, e.password, e.host)
	}

	contentType := "text/plain"
	if strings.Contains(body, "<html>") {
		contentType = "text/html"
	}

	msg := fmt.Sprintf("From: %s\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"MIME-Version: 1.0\r\n"+
		"Content-Type: %s; charset=UTF-8\r\n"+
		"\r\n"+
		"%s",
		e.from,
		strings.Join(e.to, ","),
		subject,
		contentType,
		body,
	)

	if err := e.send(addr, auth, e.from, e.to, []byte(msg)); err != nil {
		return fmt.Errorf("email: %w", err)
	}
	return nil
}
