package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	gomail "github.com/wneessen/go-mail"

	"github.com/m3rciful/mebelbot/internal/leads"
)

// EmailSettings configures the SMTP channel.
type EmailSettings struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
	Company  string
	Location *time.Location
}

// EmailChannel mails a plain-text lead summary to the operators.
type EmailChannel struct {
	cfg  EmailSettings
	send func(ctx context.Context, msg *gomail.Msg) error
}

// NewEmailChannel returns an SMTP channel.
func NewEmailChannel(cfg EmailSettings) *EmailChannel {
	ch := &EmailChannel{cfg: cfg}
	ch.send = ch.dialAndSend
	return ch
}

func (e *EmailChannel) Name() string { return "email" }

func (e *EmailChannel) Deliver(ctx context.Context, l leads.Lead) error {
	subject, body := e.compose(l)
	msg := gomail.NewMsg()
	if err := msg.From(e.cfg.From); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(e.cfg.To...); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, body)
	return e.send(ctx, msg)
}

func (e *EmailChannel) compose(l leads.Lead) (string, string) {
	loc := e.cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	subject := fmt.Sprintf("Новая заявка: %s", l.Name)
	if e.cfg.Company != "" {
		subject = "[" + e.cfg.Company + "] " + subject
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Имя: %s\n", l.Name)
	if l.Phone != "" {
		fmt.Fprintf(&b, "Телефон: %s\n", l.Phone)
	}
	if l.Email != "" {
		fmt.Fprintf(&b, "Email: %s\n", l.Email)
	}
	if l.Message != "" {
		fmt.Fprintf(&b, "Запрос: %s\n", l.Message)
	}
	fmt.Fprintf(&b, "Источник: %s\n", l.Source)
	fmt.Fprintf(&b, "Создана: %s\n", l.CreatedAt.In(loc).Format("02.01.2006 15:04"))
	fmt.Fprintf(&b, "ID: %s\n", l.ID)
	return subject, b.String()
}

func (e *EmailChannel) dialAndSend(ctx context.Context, msg *gomail.Msg) error {
	opts := []gomail.Option{
		gomail.WithPort(e.cfg.Port),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(DefaultTimeout),
	}
	if e.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(e.cfg.Username),
			gomail.WithPassword(e.cfg.Password),
		)
	}
	client, err := gomail.NewClient(e.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
