package telegrambot

import (
	"context"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/mebelbot/internal/notify"
)

// BotAPI is the part of *tele.Bot the Messenger calls.
type BotAPI interface {
	Send(to tele.Recipient, what any, opts ...any) (*tele.Message, error)
	Edit(msg tele.Editable, what any, opts ...any) (*tele.Message, error)
}

// Messenger sends operator messages in MarkdownV2 outside of an update.
// Telebot calls take no context, so each call runs in its own goroutine and
// the caller stops waiting once ctx or the timeout ends. The HTTP client
// timeout bounds the abandoned request.
type Messenger struct {
	api     BotAPI
	timeout time.Duration
}

var _ notify.Messenger = (*Messenger)(nil)

// NewMessenger wraps api. A non-positive timeout leaves only ctx in charge.
func NewMessenger(api BotAPI, timeout time.Duration) *Messenger {
	return &Messenger{api: api, timeout: timeout}
}

// Send posts text to the chat to.
func (m *Messenger) Send(ctx context.Context, to int64, text string, markup *tele.ReplyMarkup) (*tele.Message, error) {
	opts := &tele.SendOptions{ParseMode: tele.ModeMarkdownV2, ReplyMarkup: markup}
	return m.call(ctx, func() (*tele.Message, error) {
		return m.api.Send(tele.ChatID(to), text, opts)
	})
}

// Edit replaces the text of msg. A nil markup drops its inline keyboard.
func (m *Messenger) Edit(ctx context.Context, msg tele.Editable, text string, markup *tele.ReplyMarkup) error {
	opts := &tele.SendOptions{ParseMode: tele.ModeMarkdownV2, ReplyMarkup: markup}
	_, err := m.call(ctx, func() (*tele.Message, error) {
		return m.api.Edit(msg, text, opts)
	})
	return err
}

type callResult struct {
	msg *tele.Message
	err error
}

func (m *Messenger) call(ctx context.Context, fn func() (*tele.Message, error)) (*tele.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	done := make(chan callResult, 1)
	go func() {
		msg, err := fn()
		done <- callResult{msg: msg, err: err}
	}()
	select {
	case res := <-done:
		return res.msg, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
