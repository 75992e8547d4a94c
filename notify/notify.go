// Package notify delivers short plain-text notifications to the site admin.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/wneessen/go-mail"

	"socrates/config"
)

// ErrNoRecipient is returned when a notifier has nowhere to deliver to.
var ErrNoRecipient = errors.New("no recipient configured")

// Message is one notification.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Notifier delivers a Message.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Mailer delivers composed messages. *mail.Client satisfies it.
type Mailer interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// Email sends notifications over SMTP.
type Email struct {
	cfg    config.EmailConfig
	mailer Mailer
}

// EmailOption configures an Email notifier.
type EmailOption func(*Email)

// WithMailer replaces the SMTP transport.
func WithMailer(m Mailer) EmailOption {
	return func(e *Email) {
		e.mailer = m
	}
}

// NewEmail creates an SMTP notifier.
func NewEmail(cfg config.EmailConfig, opts ...EmailOption) *Email {
	e := &Email{cfg: cfg}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Notify sends msg as a plain-text email. An empty msg.To uses the
// configured admin address.
func (e *Email) Notify(ctx context.Context, msg Message) error {
	to := msg.To
	if to == "" {
		to = e.cfg.To
	}
	if to == "" {
		return ErrNoRecipient
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m, err := e.compose(to, msg)
	if err != nil {
		return err
	}

	mailer := e.mailer
	if mailer == nil {
		client, err := e.newClient()
		if err != nil {
			return fmt.Errorf("create smtp client: %w", err)
		}
		mailer = client
	}

	if err := mailer.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	slog.Info("email sent", "to", to, "subject", msg.Subject)
	return nil
}

func (e *Email) newClient() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(e.cfg.SMTPPort),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if e.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(e.cfg.Username),
			mail.WithPassword(e.cfg.Password),
		)
	}
	return mail.NewClient(e.cfg.SMTPHost, opts...)
}

func (e *Email) compose(to string, msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(e.cfg.From); err != nil {
		return nil, fmt.Errorf("set sender %q: %w", e.cfg.From, err)
	}
	if err := m.To(to); err != nil {
		return nil, fmt.Errorf("set recipient %q: %w", to, err)
	}
	m.Subject(sanitizeHeader(msg.Subject))
	m.SetDate()
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	return m, nil
}

func sanitizeHeader(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

// Sender is the subset of tgbotapi.BotAPI used to deliver messages.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts notifications to the admin's Telegram chat.
type Telegram struct {
	api    Sender
	mu     sync.RWMutex
	chatID int64
}

// NewTelegram creates a Telegram notifier. chatID may be zero until an admin
// registers with /start.
func NewTelegram(api Sender, chatID int64) *Telegram {
	return &Telegram{api: api, chatID: chatID}
}

// SetChatID changes the destination chat.
func (t *Telegram) SetChatID(chatID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.chatID = chatID
}

// ChatID returns the destination chat.
func (t *Telegram) ChatID() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.chatID
}

// Notify sends the subject and body as one message. msg.To is ignored.
func (t *Telegram) Notify(ctx context.Context, msg Message) error {
	chatID := t.ChatID()
	if chatID == 0 {
		return ErrNoRecipient
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	text := msg.Subject
	if msg.Body != "" {
		text += "\n\n" + msg.Body
	}
	if _, err := t.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

// Multi fans a message out to every notifier and joins their errors.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards every message.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(ctx context.Context, msg Message) error {
	return nil
}
