// Package notify delivers new-lead notifications to operator channels.
package notify

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/mebelbot/core/logger"
	"github.com/m3rciful/mebelbot/internal/leads"
)

const component = "service.notify"

// DefaultTimeout bounds one channel delivery.
const DefaultTimeout = 10 * time.Second

// Messenger is the outbound part of the Telegram Bot API the services need.
// A nil markup on Edit removes the inline keyboard.
type Messenger interface {
	Send(ctx context.Context, to int64, text string, markup *tele.ReplyMarkup) (*tele.Message, error)
	Edit(ctx context.Context, msg tele.Editable, text string, markup *tele.ReplyMarkup) error
}

// Channel is one operator destination.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, l leads.Lead) error
}

// Result reports one channel's delivery.
type Result struct {
	Channel string
	Err     error
	Took    time.Duration
}

// OK reports whether delivery succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Dispatcher fans a lead out to every channel. Channels run concurrently and
// one failing or slow channel never affects the others.
type Dispatcher struct {
	channels []Channel
	timeout  time.Duration
}

// NewDispatcher returns a Dispatcher. timeout <= 0 selects DefaultTimeout.
func NewDispatcher(timeout time.Duration, channels ...Channel) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{channels: channels, timeout: timeout}
}

// Channels returns the configured channel names.
func (d *Dispatcher) Channels() []string {
	out := make([]string, len(d.channels))
	for i, ch := range d.channels {
		out[i] = ch.Name()
	}
	return out
}

// Notify delivers l to every channel and waits for all of them. Failures are
// logged and reported per channel; nothing is retried.
func (d *Dispatcher) Notify(ctx context.Context, l leads.Lead) []Result {
	ctx = logger.WithLeadID(ctx, l.ID)
	results := make([]Result, len(d.channels))
	var g errgroup.Group
	for i, ch := range d.channels {
		g.Go(func() error {
			results[i] = d.deliver(ctx, ch, l)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if !r.OK() {
			failed++
		}
	}
	status := "ok"
	if failed > 0 {
		status = "partial"
		if failed == len(results) {
			status = "error"
		}
	}
	logger.Info(ctx, component, "notify.done",
		slog.String("status", status),
		slog.Int("channels", len(results)),
		slog.Int("failed", failed),
	)
	return results
}

func (d *Dispatcher) deliver(ctx context.Context, ch Channel, l leads.Lead) Result {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	start := time.Now()
	err := ch.Deliver(ctx, l)
	res := Result{Channel: ch.Name(), Err: err, Took: time.Since(start)}
	if err != nil {
		logger.Warn(ctx, component, "notify.channel",
			slog.String("status", "error"),
			slog.String("channel", res.Channel),
			slog.Duration("duration", logger.RoundMS(res.Took)),
			slog.String("err", logger.Err(err)),
		)
		return res
	}
	logger.Debug(ctx, component, "notify.channel",
		slog.String("status", "ok"),
		slog.String("channel", res.Channel),
		slog.Duration("duration", logger.RoundMS(res.Took)),
	)
	return res
}
