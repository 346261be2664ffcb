package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/m3rciful/mebelbot/core/logger"
	"github.com/m3rciful/mebelbot/internal/leads"
	"github.com/m3rciful/mebelbot/internal/leadview"
)

// TelegramChannel posts the lead card with action buttons to one chat.
type TelegramChannel struct {
	chatID    int64
	messenger Messenger
	render    leadview.Renderer
}

// NewTelegramChannel returns a channel for chatID.
func NewTelegramChannel(m Messenger, chatID int64, r leadview.Renderer) *TelegramChannel {
	return &TelegramChannel{chatID: chatID, messenger: m, render: r}
}

func (t *TelegramChannel) Name() string { return "telegram:" + strconv.FormatInt(t.chatID, 10) }

func (t *TelegramChannel) Deliver(ctx context.Context, l leads.Lead) error {
	if _, err := t.messenger.Send(ctx, t.chatID, t.render.Lead(l), leadview.Actions(l)); err != nil {
		return fmt.Errorf("send to %d: %w", t.chatID, err)
	}
	return nil
}

// TelegramChannels builds one channel per chat id.
func TelegramChannels(m Messenger, chatIDs []int64, r leadview.Renderer) []Channel {
	out := make([]Channel, 0, len(chatIDs))
	for _, id := range chatIDs {
		out = append(out, NewTelegramChannel(m, id, r))
	}
	return out
}

// Broadcaster sends short operator notices to the notify chats.
type Broadcaster struct {
	messenger Messenger
	chatIDs   []int64
	timeout   time.Duration
}

// NewBroadcaster returns a Broadcaster. timeout <= 0 selects DefaultTimeout.
func NewBroadcaster(m Messenger, chatIDs []int64, timeout time.Duration) *Broadcaster {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Broadcaster{messenger: m, chatIDs: append([]int64(nil), chatIDs...), timeout: timeout}
}

// Broadcast sends MarkdownV2 text to every chat except exceptChatID.
func (b *Broadcaster) Broadcast(ctx context.Context, text string, exceptChatID int64) []Result {
	var targets []int64
	for _, id := range b.chatIDs {
		if id != exceptChatID {
			targets = append(targets, id)
		}
	}
	results := make([]Result, len(targets))
	var g errgroup.Group
	for i, id := range targets {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, b.timeout)
			defer cancel()
			start := time.Now()
			_, err := b.messenger.Send(cctx, id, text, nil)
			results[i] = Result{Channel: "telegram:" + strconv.FormatInt(id, 10), Err: err, Took: time.Since(start)}
			if err != nil {
				logger.Warn(ctx, component, "notify.broadcast",
					slog.String("status", "error"),
					slog.Int64("chat_id", id),
					slog.String("err", logger.Err(err)),
				)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
