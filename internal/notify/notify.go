// Package notify is the outbound notification boundary. The engine only
// needs a fire-and-forget "send notification" capability; delivery
// mechanics live behind the Notifier interface.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/inbucket/html2text"
	mail "github.com/wneessen/go-mail"
)

type Category string

const (
	CategoryAbsence    Category = "absence"
	CategoryLeave      Category = "leave"
	CategoryEnrollment Category = "enrollment"
)

type Notification struct {
	// Recipient email address, already resolved by the caller.
	Recipient string
	Category  Category
	Title     string
	// Message body. May contain HTML; a plain-text alternative is derived.
	Message string
}

type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// Mailer delivers notifications over SMTP.
type Mailer struct {
	cfg    SMTPConfig
	logger *slog.Logger
}

func NewMailer(cfg SMTPConfig) *Mailer {
	return &Mailer{
		cfg:    cfg,
		logger: slog.With("component", "notify"),
	}
}

func (m *Mailer) Send(ctx context.Context, n Notification) error {
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(n.Recipient); err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}
	msg.Subject(fmt.Sprintf("[%s] %s", n.Category, n.Title))

	if strings.Contains(n.Message, "<") {
		text, err := html2text.FromString(n.Message, html2text.Options{})
		if err != nil {
			text = n.Message
		}
		msg.SetBodyString(mail.TypeTextHTML, n.Message)
		msg.AddAlternativeString(mail.TypeTextPlain, text)
	} else {
		msg.SetBodyString(mail.TypeTextPlain, n.Message)
	}

	opts := []mail.Option{mail.WithPort(m.cfg.Port)}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password),
		)
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	client, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		m.logger.Warn("Notification delivery failed", "recipient", n.Recipient, "category", n.Category, "error", err)
		return err
	}
	return nil
}

// LogNotifier is used when no SMTP host is configured. Notifications are
// fire-and-forget, so logging them is an acceptable delivery.
type LogNotifier struct{}

func (LogNotifier) Send(_ context.Context, n Notification) error {
	slog.Info("Notification (no SMTP configured)",
		"recipient", n.Recipient,
		"category", n.Category,
		"title", n.Title,
	)
	return nil
}
