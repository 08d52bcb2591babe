package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hamed0406/portwatch/internal/domain"
)

// EmailConfig describes the SMTP relay and the recipients of alert mail.
type EmailConfig struct {
	Addr     string // host:port of the relay
	Username string // empty for an unauthenticated relay
	Password string
	From     string
	To       []string
}

func (c EmailConfig) Validate() error {
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return domain.ConfigError("smtp address %q: %v", c.Addr, err)
	}
	if !strings.Contains(c.From, "@") {
		return domain.ConfigError("alert sender %q is not an address", c.From)
	}
	if len(c.To) == 0 {
		return domain.ConfigError("no alert recipients configured")
	}
	for _, to := range c.To {
		if !strings.Contains(to, "@") {
			return domain.ConfigError("alert recipient %q is not an address", to)
		}
	}
	return nil
}

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Email sends one plain-text message per alert to every recipient.
type Email struct {
	cfg  EmailConfig
	send SendFunc
	now  func() time.Time
}

func NewEmail(cfg EmailConfig) (*Email, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Email{cfg: cfg, send: smtp.SendMail, now: time.Now}, nil
}

func (e *Email) Dispatch(ctx context.Context, ev domain.AlertEvent) domain.DispatchResult {
	if err := ctx.Err(); err != nil {
		return domain.Failed("email", err)
	}

	msg := e.buildMessage(ev)
	var auth smtp.Auth
	if e.cfg.Username != "" {
		host, _, _ := net.SplitHostPort(e.cfg.Addr)
		auth = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, host)
	}

	// smtp.SendMail has no context; give up waiting when ctx ends.
	done := make(chan error, 1)
	go func() { done <- e.send(e.cfg.Addr, auth, e.cfg.From, e.cfg.To, msg) }()

	select {
	case err := <-done:
		if err != nil {
			return domain.Failed("email", fmt.Errorf("send mail via %s: %w", e.cfg.Addr, err))
		}
		return domain.Delivered("email")
	case <-ctx.Done():
		return domain.Failed("email", ctx.Err())
	}
}

func (e *Email) buildMessage(ev domain.AlertEvent) []byte {
	now := e.now()
	id := uuid.New().String()

	mailHost := "portwatch"
	if at := strings.LastIndex(e.cfg.From, "@"); at >= 0 && at < len(e.cfg.From)-1 {
		mailHost = e.cfg.From[at+1:]
	}

	headers := [][2]string{
		{"From", e.cfg.From},
		{"To", strings.Join(e.cfg.To, ", ")},
		{"Subject", ev.Subject()},
		{"Date", now.Format(time.RFC1123Z)},
		{"Message-ID", fmt.Sprintf("<%s.%d@%s>", id, now.UnixNano(), mailHost)},
		{"MIME-Version", "1.0"},
		{"Content-Type", `text/plain; charset="UTF-8"`},
		{"X-Portwatch-Endpoint", ev.Endpoint.String()},
		{"X-Portwatch-Error-Kind", ev.Kind.String()},
	}

	var b strings.Builder
	for _, h := range headers {
		b.WriteString(h[0])
		b.WriteString(": ")
		b.WriteString(h[1])
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	b.WriteString(ev.Message)
	b.WriteString("\r\n")
	return []byte(b.String())
}
