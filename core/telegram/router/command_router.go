package router

import (
	"log/slog"
	"time"

	"github.com/m3rciful/mebelbot/core/logger"
	tg "github.com/m3rciful/mebelbot/core/telegram"
	"github.com/m3rciful/mebelbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CommandRouteOptions configures how commands are wrapped and exposed.
type CommandRouteOptions struct {
	IsOperator       func(userID int64) bool
	OnOperatorReject tele.HandlerFunc
}

// CommandRoutes prepares command handlers wrapped with shared middleware.
func CommandRoutes(reg *tg.Registry, opts CommandRouteOptions) []tg.Route {
	if reg == nil {
		return nil
	}
	access := middleware.OperatorOnly(middleware.OperatorOptions{
		IsOperator: opts.IsOperator,
		OnReject:   opts.OnOperatorReject,
	})

	routes := make([]tg.Route, 0, len(reg.Commands()))
	for cmd, def := range reg.Commands() {
		name := normalizeHandlerName(cmd)
		inner := def.Handler
		h := func(c tele.Context) error {
			return handleWithSummary(c, name, time.Now(), func() error { return inner(c) })
		}
		if def.OperatorOnly {
			h = access(h)
		}
		h = middleware.RecoverMiddleware(middleware.LoggerMiddleware(h))
		// Aliases get their own endpoints so they share the access gate.
		for _, endpoint := range append([]string{cmd}, aliasEndpoints(def.Aliases)...) {
			routes = append(routes, tg.Route{Endpoint: endpoint, Handler: h})
		}
	}

	logger.TWire.Info("tg.wire",
		slog.String("event", "tg.wire.complete"),
		slog.Int("count", len(reg.Commands())),
		slog.Int("callbacks", len(reg.ListCallbacks())),
	)
	return routes
}

func aliasEndpoints(aliases []string) []string {
	out := make([]string, 0, len(aliases))
	for _, a := range aliases {
		if a == "" {
			continue
		}
		if a[0] != '/' {
			a = "/" + a
		}
		out = append(out, a)
	}
	return out
}
