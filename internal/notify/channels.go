package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"gopkg.in/gomail.v2"

	"crewtrack/internal/model"
)

// Channel delivers one message batch to one recipient.
type Channel interface {
	Name() string
	Send(ctx context.Context, recipient Recipient, messages []Message) error
}

// EmailChannel delivers batches over SMTP as a plain-text message with an
// HTML alternative part.
type EmailChannel struct {
	dialer *gomail.Dialer
	from   string
}

func NewEmailChannel(host string, port int, username, password string, useTLS bool, from string) *EmailChannel {
	dialer := gomail.NewDialer(host, port, username, password)
	dialer.SSL = useTLS && port == 465
	return &EmailChannel{dialer: dialer, from: from}
}

func (c *EmailChannel) Name() string { return model.ChannelEmail }

func (c *EmailChannel) Send(ctx context.Context, recipient Recipient, messages []Message) error {
	if recipient.Email == "" {
		return fmt.Errorf("no email address for %q", recipient.Username)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", c.from)
	msg.SetHeader("To", recipient.Email)
	msg.SetHeader("Subject", batchSubject(messages))
	msg.SetBody("text/plain", plainBody(messages))
	msg.AddAlternative("text/html", htmlBody(messages))

	if err := c.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send email to %q: %w", recipient.Email, err)
	}
	return nil
}

func batchSubject(messages []Message) string {
	if len(messages) == 1 {
		return messages[0].Subject
	}
	return "Task tracker updates"
}

func plainBody(messages []Message) string {
	parts := make([]string, 0, len(messages))
	for _, message := range messages {
		parts = append(parts, message.Subject+"\n\n"+message.Body)
	}
	return strings.Join(parts, "\n\n---\n\n")
}

func htmlBody(messages []Message) string {
	var sb strings.Builder
	for _, message := range messages {
		sb.WriteString("<h3>" + html.EscapeString(message.Subject) + "</h3>\n")
		for _, line := range strings.Split(message.Body, "\n") {
			sb.WriteString("<p>" + html.EscapeString(line) + "</p>\n")
		}
	}
	return sb.String()
}

// WebhookChannel posts batches to the recipient's webhook endpoint as a
// small JSON payload.
type WebhookChannel struct {
	client      *http.Client
	senderLabel string
}

type webhookPayload struct {
	SenderLabel string `json:"sender_label"`
	Content     string `json:"content"`
}

func NewWebhookChannel(senderLabel string) *WebhookChannel {
	return &WebhookChannel{
		client:      &http.Client{Timeout: 5 * time.Second},
		senderLabel: senderLabel,
	}
}

func (c *WebhookChannel) Name() string { return model.ChannelWebhook }

func (c *WebhookChannel) Send(ctx context.Context, recipient Recipient, messages []Message) error {
	if recipient.WebhookURL == "" {
		return fmt.Errorf("no webhook endpoint for %q", recipient.Username)
	}

	body, err := json.Marshal(webhookPayload{
		SenderLabel: c.senderLabel,
		Content:     plainBody(messages),
	})
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, recipient.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook for %q: %w", recipient.Username, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook for %q returned %d", recipient.Username, resp.StatusCode)
	}
	return nil
}

// Dispatcher fans one job out to every channel its preferences enable.
type Dispatcher struct {
	channels []Channel
}

func NewDispatcher(channels ...Channel) *Dispatcher {
	return &Dispatcher{channels: channels}
}

// Dispatch attempts each enabled channel independently and reports whether
// at least one delivery succeeded. Channel failures are logged, never
// propagated; one broken channel must not block the others.
func (d *Dispatcher) Dispatch(ctx context.Context, job Job) bool {
	delivered := false
	for _, channel := range d.channels {
		if !job.Prefs.HasChannel(channel.Name()) {
			continue
		}
		if err := channel.Send(ctx, job.Recipient, job.Messages); err != nil {
			slog.Warn("channel delivery failed",
				"channel", channel.Name(),
				"user", job.Recipient.Username,
				"error", err)
			continue
		}
		delivered = true
	}
	return delivered
}
