package helpers

import (
	"context"

	"github.com/m3rciful/mebelbot/core/logger"

	tele "gopkg.in/telebot.v4"
)

const (
	contextKey   = "logger_ctx"
	respondedKey = "cb_responded"
)

// StoreContext attaches reusable context to tele.Context for downstream helpers.
func StoreContext(c tele.Context, ctx context.Context) {
	if c == nil || ctx == nil {
		return
	}
	c.Set(contextKey, ctx)
}

// ContextFrom telegram context if previously stored by middleware.
func ContextFrom(c tele.Context) (context.Context, bool) {
	if c == nil {
		return nil, false
	}
	ctx, ok := c.Get(contextKey).(context.Context)
	return ctx, ok && ctx != nil
}

// BuildContext constructs a context.Context from tele.Context,
// enriching it with RID and update/user/chat metadata for consistent service logging.
func BuildContext(c tele.Context) context.Context {
	if cached, ok := ContextFrom(c); ok {
		return cached
	}
	if c == nil {
		return context.Background()
	}

	upd := c.Update()
	var chatID, userID int64
	if chat := c.Chat(); chat != nil {
		chatID = chat.ID
	}
	if user := c.Sender(); user != nil {
		userID = user.ID
	}

	rid, _ := c.Get("rid").(string)
	if rid == "" {
		rid = logger.BuildRID(upd.ID, chatID, userID)
	}

	ctx := logger.WithRID(context.Background(), rid)
	ctx = logger.WithUpdateMeta(ctx, upd.ID, userID, chatID)
	ctx = logger.WithLogger(ctx, logger.Component("tg"))
	StoreContext(c, ctx)
	return ctx
}

// WithHandler enriches stored context with handler metadata for downstream logs.
func WithHandler(c tele.Context, handler string) context.Context {
	ctx := BuildContext(c)
	if handler == "" {
		return ctx
	}
	ctx = logger.WithHandler(ctx, handler)
	StoreContext(c, ctx)
	return ctx
}

// WithLeadID records the lead an update is about so later log lines carry it.
func WithLeadID(c tele.Context, leadID string) context.Context {
	ctx := logger.WithLeadID(BuildContext(c), leadID)
	StoreContext(c, ctx)
	return ctx
}

// Respond answers the current callback query once. Later calls are no-ops,
// since Telegram rejects a second answer for the same query.
func Respond(c tele.Context, resp *tele.CallbackResponse) error {
	if c == nil || c.Callback() == nil {
		return nil
	}
	if done, _ := c.Get(respondedKey).(bool); done {
		return nil
	}
	c.Set(respondedKey, true)
	if resp == nil {
		return c.Respond()
	}
	return c.Respond(resp)
}
