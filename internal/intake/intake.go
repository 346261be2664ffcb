// Package intake runs the conversational form that turns a chat into a lead:
// service choice, then name, then phone.
package intake

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/mebelbot/core/logger"
	"github.com/m3rciful/mebelbot/core/telegram/keyboard"
	"github.com/m3rciful/mebelbot/internal/leads"
	"github.com/m3rciful/mebelbot/internal/phone"
	"github.com/m3rciful/mebelbot/internal/session"
)

const component = "service.intake"

// LeadCreator persists a new lead.
type LeadCreator interface {
	Create(ctx context.Context, in leads.NewLead) (leads.Lead, error)
}

// NotifyFunc is told about every created lead. It runs detached from the
// inbound event and its outcome never reaches the customer.
type NotifyFunc func(ctx context.Context, l leads.Lead)

// Reply is what the bot answers to the customer. Text is plain, not Markdown.
type Reply struct {
	Text   string
	Markup *tele.ReplyMarkup
}

// Options configure a Machine.
type Options struct {
	Sessions      session.Store
	Leads         LeadCreator
	Notify        NotifyFunc
	Phone         phone.Normalizer
	FallbackPhone string
	// Go runs fn in the background; defaults to a plain goroutine.
	Go func(fn func())
}

// Machine drives intake sessions.
type Machine struct {
	sessions session.Store
	leads    LeadCreator
	notify   NotifyFunc
	phone    phone.Normalizer
	fallback string
	goFn     func(func())
}

// New returns a Machine.
func New(opts Options) *Machine {
	m := &Machine{
		sessions: opts.Sessions,
		leads:    opts.Leads,
		notify:   opts.Notify,
		phone:    opts.Phone,
		fallback: opts.FallbackPhone,
		goFn:     opts.Go,
	}
	if m.goFn == nil {
		m.goFn = func(fn func()) { go fn() }
	}
	return m
}

// Service describes t in the resulting lead's message.
func Service(t session.Type) string {
	switch t {
	case session.TypeConsultation:
		return "Консультация"
	default:
		return "Замер"
	}
}

const (
	askName        = "Как к вам обращаться? Напишите, пожалуйста, ваше имя."
	askNameAgain   = "Имя не может быть пустым. Напишите, пожалуйста, как к вам обращаться."
	askPhoneFormat = "Спасибо, %s! Укажите номер телефона для связи или нажмите кнопку ниже."
	askPhoneAgain  = "Номер телефона не может быть пустым. Укажите, пожалуйста, номер для связи."
	cancelled      = "Заявка отменена. Чтобы начать заново, выберите услугу в меню."
	shareLabel     = "📱 Отправить номер"
)

// Start opens a session for chatID, replacing any previous one.
func (m *Machine) Start(ctx context.Context, chatID int64, t session.Type) (Reply, error) {
	if !t.Valid() {
		t = session.TypeMeasurement
	}
	if err := m.sessions.Set(ctx, chatID, session.Session{Type: t, Step: session.StepAwaitingName}); err != nil {
		m.logFail(ctx, chatID, "session_set", err)
		return m.Apology(), err
	}
	logger.Info(ctx, component, "intake.start",
		slog.Int64("chat_id", chatID),
		slog.String("type", string(t)),
	)
	return Reply{Text: startBanner(t) + "\n\n" + askName, Markup: keyboard.RemoveKeyboard()}, nil
}

func startBanner(t session.Type) string {
	if t == session.TypeConsultation {
		return "📝 Запись на консультацию."
	}
	return "📐 Запись на бесплатный замер."
}

// Cancel drops the session for chatID without creating a lead.
func (m *Machine) Cancel(ctx context.Context, chatID int64) (Reply, error) {
	if err := m.sessions.Delete(ctx, chatID); err != nil {
		m.logFail(ctx, chatID, "session_delete", err)
		return m.Apology(), err
	}
	logger.Info(ctx, component, "intake.cancel", slog.Int64("chat_id", chatID))
	return Reply{Text: cancelled, Markup: keyboard.RemoveKeyboard()}, nil
}

// Active reports whether chatID has a live session.
func (m *Machine) Active(ctx context.Context, chatID int64) (bool, error) {
	_, ok, err := m.sessions.Get(ctx, chatID)
	return ok, err
}

// HandleText feeds a customer message to the session of chatID. handled is
// false when the message is a command or no session exists; nothing changes then.
func (m *Machine) HandleText(ctx context.Context, chatID int64, text string) (reply Reply, handled bool, err error) {
	if strings.HasPrefix(strings.TrimSpace(text), "/") {
		return Reply{}, false, nil
	}
	s, ok, err := m.sessions.Get(ctx, chatID)
	if err != nil {
		m.logFail(ctx, chatID, "session_get", err)
		return m.Apology(), true, err
	}
	if !ok {
		return Reply{}, false, nil
	}

	value := strings.TrimSpace(text)
	switch s.Step {
	case session.StepAwaitingName:
		if value == "" {
			return Reply{Text: askNameAgain}, true, nil
		}
		s.Name = value
		s.Step = session.StepAwaitingPhone
		if err := m.sessions.Set(ctx, chatID, s); err != nil {
			m.logFail(ctx, chatID, "session_set", err)
			return m.Apology(), true, err
		}
		return Reply{
			Text:   fmt.Sprintf(askPhoneFormat, s.Name),
			Markup: keyboard.ContactButton(shareLabel),
		}, true, nil

	case session.StepAwaitingPhone:
		if value == "" {
			return Reply{Text: askPhoneAgain}, true, nil
		}
		s.Phone = m.phone.E164(value)
		return m.complete(ctx, chatID, s), true, nil

	default:
		// A session written by an older build; start over.
		_ = m.sessions.Delete(ctx, chatID)
		return Reply{Text: cancelled}, true, nil
	}
}

func (m *Machine) complete(ctx context.Context, chatID int64, s session.Session) Reply {
	defer func() {
		if err := m.sessions.Delete(ctx, chatID); err != nil {
			m.logFail(ctx, chatID, "session_delete", err)
		}
	}()

	lead, err := m.leads.Create(ctx, leads.NewLead{
		Name:     s.Name,
		Phone:    s.Phone,
		Message:  Service(s.Type),
		Source:   leads.SourceTelegramBot,
		Priority: leads.PriorityNormal,
	})
	if err != nil {
		m.logFail(ctx, chatID, "lead_create", err)
		return m.Apology()
	}

	logger.Info(logger.WithLeadID(ctx, lead.ID), component, "intake.complete",
		slog.Int64("chat_id", chatID),
		slog.String("type", string(s.Type)),
	)
	if m.notify != nil {
		nctx := context.WithoutCancel(ctx)
		m.goFn(func() { m.notify(nctx, lead) })
	}
	return Reply{
		Text:   "✅ Спасибо, " + s.Name + "! Заявка принята, мы перезвоним вам в ближайшее время.",
		Markup: keyboard.RemoveKeyboard(),
	}
}

// Apology is the customer reply when something failed on our side.
func (m *Machine) Apology() Reply {
	text := "😔 Извините, не удалось принять заявку."
	if m.fallback != "" {
		text += " Пожалуйста, позвоните нам: " + m.fallback
	}
	return Reply{Text: text, Markup: keyboard.RemoveKeyboard()}
}

func (m *Machine) logFail(ctx context.Context, chatID int64, op string, err error) {
	logger.Error(ctx, component, "intake.fail",
		slog.String("op", op),
		slog.Int64("chat_id", chatID),
		slog.String("err", logger.Err(err)),
	)
}
