package router

import (
	"log/slog"
	"time"

	tg "github.com/m3rciful/mebelbot/core/telegram"
	"github.com/m3rciful/mebelbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/mebelbot/core/telegram/helpers"
	"github.com/m3rciful/mebelbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CallbackOptions customises fallback behaviour for callbacks.
type CallbackOptions struct {
	NotFound tele.HandlerFunc
}

// CallbackRoute returns a handler that routes callbacks through the registry.
// Handlers answer the query themselves via helpers.Respond; an empty answer is
// sent afterwards when they did not, so the client spinner always stops.
func CallbackRoute(reg *tg.Registry, opts CallbackOptions) tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		if c.Callback() == nil {
			return nil
		}
		defer func() { _ = tghelpers.Respond(c, nil) }()

		key, _ := callbacks.FromCallback(c.Callback())
		name := "callback." + normalizeHandlerName(key)
		extras := []slog.Attr{slog.String("cb_key", key)}

		cbHandler, ok := reg.GetCallback(key)
		if !ok || cbHandler == nil {
			fallback := reg.CallbackNotFound()
			if fallback == nil {
				fallback = opts.NotFound
			}
			if fallback == nil {
				logHandlerSummary(c, name, start, "not_found", nil, extras...)
				return nil
			}
			return handleWithSummary(c, name, start, func() error { return fallback(c) }, extras...)
		}
		return handleWithSummary(c, name, start, func() error { return cbHandler(c) }, extras...)
	}
	return tg.Route{
		Endpoint: tele.OnCallback,
		Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
	}
}
