package notification

import (
	"context"
	"fmt"
	"html"
	"net/smtp"
	"strings"
	"time"

	"NetSentinel/internal/config"
	"NetSentinel/internal/model"
)

// EmailSink sends one HTML digest per cycle that produced alerts.
type EmailSink struct {
	cfg      config.SMTPConfig
	auth     smtp.Auth
	host     string
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailSink creates a new EmailSink.
func NewEmailSink(cfg config.SMTPConfig, host string) *EmailSink {
	// PlainAuth will not send credentials until the server identifies itself as a trusted one.
	auth := smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	return &EmailSink{cfg: cfg, auth: auth, host: host, sendMail: smtp.SendMail}
}

func (n *EmailSink) Name() string { return "email" }

// Write sends the digest to the configured recipients.
func (n *EmailSink) Write(_ context.Context, events []model.AlertEvent) error {
	if len(events) == 0 {
		return nil
	}
	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	var recipients []string
	for _, r := range strings.Split(n.cfg.To, ",") {
		if r = strings.TrimSpace(r); r != "" {
			recipients = append(recipients, r)
		}
	}
	if len(recipients) == 0 {
		return fmt.Errorf("no email recipients configured")
	}

	subject := fmt.Sprintf("NetSentinel Alert Summary for %s (%d Triggered)", n.host, len(events))
	msg := []byte("To: " + strings.Join(recipients, ", ") + "\r\n" +
		"From: " + n.cfg.From + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"Content-Type: text/html; charset=UTF-8\r\n" +
		"\r\n" +
		digestBody(n.host, events))

	if err := n.sendMail(addr, n.auth, n.cfg.From, recipients, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func (n *EmailSink) Close() error { return nil }

func digestBody(host string, events []model.AlertEvent) string {
	var b strings.Builder
	b.WriteString("<h1>NetSentinel Alert Summary</h1>")
	fmt.Fprintf(&b, "<p>The following alerts were raised on <b>%s</b>:</p><hr><ul>", html.EscapeString(host))
	for _, ev := range events {
		when := time.Unix(int64(ev.DetectedAt), 0).UTC().Format(time.RFC3339)
		fmt.Fprintf(&b, "<li>[%s] <b>%s</b> - %s <i>(%s)</i></li>",
			html.EscapeString(strings.ToUpper(string(ev.Severity))),
			html.EscapeString(ev.Title),
			html.EscapeString(ev.Detail),
			when)
	}
	b.WriteString("</ul>")
	return b.String()
}
