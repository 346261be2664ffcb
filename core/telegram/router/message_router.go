package router

import (
	"strings"
	"time"

	tg "github.com/m3rciful/mebelbot/core/telegram"
	"github.com/m3rciful/mebelbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// FSM is a conversation that owns plain text of a chat while it is active.
type FSM interface {
	Active(c tele.Context) bool
	Handle(c tele.Context) error
}

// TextOptions controls fallback behaviour for text updates.
type TextOptions struct {
	UnknownText tele.HandlerFunc
}

// TextRoutes builds the OnText handler. Slash commands always go to the
// registry, so they never reach an active conversation.
func TextRoutes(fsm FSM, reg *tg.Registry, opts TextOptions) []tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		text := strings.TrimSpace(c.Text())

		if strings.HasPrefix(text, "/") && reg != nil {
			key, cmd, ok := reg.LookupCommand(text)
			if ok && cmd.OperatorOnly {
				// Gated commands are served only by their CommandRoutes endpoints.
				logHandlerSummary(c, normalizeHandlerName(key), start, "skip", nil)
				return nil
			}
			if ok && cmd.Handler != nil {
				return handleWithSummary(c, normalizeHandlerName(key), start, func() error {
					return cmd.Handler(c)
				})
			}
			logHandlerSummary(c, "unknown_command", start, "skip", nil)
			return nil
		}

		if fsm != nil && fsm.Active(c) {
			return handleWithSummary(c, "fsm", start, func() error { return fsm.Handle(c) })
		}

		if reg != nil {
			if fb := reg.TextFallback(); fb != nil {
				return handleWithSummary(c, "fallback", start, func() error { return fb(c) })
			}
		}
		if opts.UnknownText != nil {
			return handleWithSummary(c, "unknown_text", start, func() error { return opts.UnknownText(c) })
		}
		logHandlerSummary(c, "unknown_text", start, "skip", nil)
		return nil
	}

	return []tg.Route{{
		Endpoint: tele.OnText,
		Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
	}}
}
