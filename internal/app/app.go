// Package app wires configuration, storage, the bot and the HTTP API into
// one runnable application.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/mebelbot/core/bootstrap"
	corecmd "github.com/m3rciful/mebelbot/core/cmd"
	"github.com/m3rciful/mebelbot/core/logger"
	coretelegram "github.com/m3rciful/mebelbot/core/telegram"
	tghelpers "github.com/m3rciful/mebelbot/core/telegram/helpers"
	"github.com/m3rciful/mebelbot/internal/actions"
	"github.com/m3rciful/mebelbot/internal/config"
	"github.com/m3rciful/mebelbot/internal/httpapi"
	"github.com/m3rciful/mebelbot/internal/intake"
	"github.com/m3rciful/mebelbot/internal/leads"
	"github.com/m3rciful/mebelbot/internal/leads/kvstore"
	"github.com/m3rciful/mebelbot/internal/leads/redisstore"
	"github.com/m3rciful/mebelbot/internal/leads/sqlstore"
	"github.com/m3rciful/mebelbot/internal/leadview"
	"github.com/m3rciful/mebelbot/internal/notify"
	"github.com/m3rciful/mebelbot/internal/phone"
	"github.com/m3rciful/mebelbot/internal/session"
	"github.com/m3rciful/mebelbot/internal/telegrambot"
)

const (
	component = "app"

	janitorInterval   = time.Minute
	retentionInterval = time.Hour
	drainTimeout      = 15 * time.Second
)

// App is the assembled application.
type App struct {
	cfg   *config.AppConfig
	infra *bootstrap.Result
	rdb   *redis.Client

	bot      *tele.Bot
	tgBot    *telegrambot.Bot
	http     *httpapi.Server
	store    *leads.Store
	sessions session.Store

	// inflight tracks detached notifications so Close can wait for them.
	inflight sync.WaitGroup
}

// NewBot builds the telebot instance; tests replace it.
var NewBot = coretelegram.NewBot

// Bootstrap satisfies corecmd.Options.Bootstrap.
func Bootstrap(ctx context.Context, carrier corecmd.ConfigCarrier) (corecmd.App, error) {
	cfg, ok := carrier.(*config.AppConfig)
	if !ok {
		return nil, fmt.Errorf("app: unexpected config type %T", carrier)
	}
	return New(ctx, cfg)
}

// New connects storage and builds every component for cfg.
func New(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	infra, err := bootstrap.Run(ctx, bootstrap.Options{
		Config:        cfg.CoreConfig(),
		Driver:        cfg.SQLDriver(),
		Database:      cfg.Database,
		Migrations:    sqlstore.Migrations,
		MigrationsDir: sqlstore.MigrationsDir,
	})
	if err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, infra: infra}
	if err := a.build(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.cfg
	if cfg.UsesRedis() {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("app: invalid redis url: %w", err)
		}
		a.rdb = redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := a.rdb.Ping(pingCtx).Err(); err != nil {
			return fmt.Errorf("app: redis ping failed: %w", err)
		}
	}

	backend, err := a.leadBackend(ctx)
	if err != nil {
		return err
	}
	a.store = leads.NewStore(backend)
	a.sessions = a.sessionStore()

	bot, err := NewBot(cfg.CoreConfig())
	if err != nil {
		return err
	}
	a.bot = bot

	tgCfg := cfg.Telegram
	sendTimeout := time.Duration(tgCfg.SendTimeoutSeconds) * time.Second
	messenger := telegrambot.NewMessenger(bot, sendTimeout)
	render := leadview.Renderer{Location: cfg.Location()}

	channels := notify.TelegramChannels(messenger, tgCfg.NotifyChatIDs, render)
	if cfg.Email.Enabled() {
		channels = append(channels, notify.NewEmailChannel(notify.EmailSettings{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
			To:       cfg.Email.To,
			Company:  cfg.Business.CompanyName,
			Location: render.Location,
		}))
	}
	dispatcher := notify.NewDispatcher(notify.DefaultTimeout, channels...)
	notifyLead := func(ctx context.Context, l leads.Lead) { dispatcher.Notify(ctx, l) }
	logger.TWire.Info("notify channels",
		slog.String("event", "notify.wire"),
		slog.Any("channels", dispatcher.Channels()),
	)

	normalizer := phone.NewNormalizer(cfg.Business.PhoneRegion)
	machine := intake.New(intake.Options{
		Sessions:      a.sessions,
		Leads:         a.store,
		Notify:        notifyLead,
		Phone:         normalizer,
		FallbackPhone: cfg.Business.FallbackPhone,
		Go:            a.detach,
	})
	router := actions.New(actions.Options{
		Store:       a.store,
		Messenger:   messenger,
		Broadcaster: notify.NewBroadcaster(messenger, tgCfg.NotifyChatIDs, notify.DefaultTimeout),
		IsOperator:  tgCfg.IsOperator,
		Renderer:    render,
	})
	a.tgBot, err = telegrambot.New(telegrambot.Options{
		Intake:     machine,
		Actions:    router,
		Pricing:    cfg.Pricing,
		IsOperator: tgCfg.IsOperator,
		Company:    cfg.Business.CompanyName,
	})
	if err != nil {
		return err
	}

	a.http = httpapi.New(httpapi.Options{
		Store:   a.store,
		Notify:  notifyLead,
		Pricing: cfg.Pricing,
		Phone:   normalizer,
		Admin: httpapi.AdminOptions{
			PasswordHash: cfg.Admin.PasswordHash,
			JWTSecret:    cfg.Admin.JWTSecret,
			TokenTTL:     cfg.Admin.TokenTTL,
		},
		CORSOrigins:         cfg.HTTP.CORSOrigins,
		PublicRatePerMinute: cfg.HTTP.PublicRatePerMinute,
		Go:                  a.detach,
	})
	return nil
}

func (a *App) leadBackend(ctx context.Context) (leads.Backend, error) {
	switch a.cfg.Storage.Leads {
	case config.DriverRedis:
		return redisstore.New(a.rdb, a.cfg.Redis.KeyPrefix), nil
	case config.DriverPostgres, config.DriverSQLite:
		b, err := sqlstore.New(ctx, a.infra.DB)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		logger.TWire.Warn("leads kept in memory; they are lost on restart",
			slog.String("event", "storage.memory"))
		return kvstore.New(), nil
	}
}

func (a *App) sessionStore() session.Store {
	ttl := a.cfg.Storage.SessionTTL
	if a.cfg.Storage.Sessions == config.DriverRedis {
		return session.NewRedis(a.rdb, a.cfg.Redis.KeyPrefix, ttl)
	}
	return session.NewMemory(ttl)
}

// detach runs fn in the background and lets Close wait for it.
func (a *App) detach(fn func()) {
	a.inflight.Add(1)
	go func() {
		defer a.inflight.Done()
		fn()
	}()
}

// TelegramRunOptions satisfies corecmd.App.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	if a.tgBot == nil {
		return coretelegram.RunOptions{}, errors.New("app: telegram bot not built")
	}
	core := a.cfg.CoreConfig()
	onLimited := func(c tele.Context) error {
		if c.Callback() != nil {
			return tghelpers.Respond(c, &tele.CallbackResponse{Text: "Слишком часто, подождите немного"})
		}
		return nil
	}
	return coretelegram.RunOptions{
		Config:      core,
		Bot:         a.bot,
		Registry:    a.tgBot.Registry(),
		Middlewares: coretelegram.DefaultMiddlewares(core, onLimited),
		Routes:      a.tgBot.Routes(),
	}, nil
}

// Services satisfies corecmd.App: the HTTP API plus storage housekeeping.
func (a *App) Services() []corecmd.Service {
	services := []corecmd.Service{{
		Name: "http",
		Run:  func(ctx context.Context) error { return a.http.Run(ctx, a.cfg.HTTP.Listen) },
	}}
	if mem, ok := a.sessions.(*session.Memory); ok {
		services = append(services, corecmd.Service{
			Name: "session-janitor",
			Run: func(ctx context.Context) error {
				mem.RunJanitor(ctx, janitorInterval)
				return nil
			},
		})
	}
	if retention := a.cfg.Storage.LeadRetention; retention > 0 {
		services = append(services, corecmd.Service{
			Name: "lead-retention",
			Run:  func(ctx context.Context) error { return a.runRetention(ctx, retention, retentionInterval) },
		})
	}
	return services
}

func (a *App) runRetention(ctx context.Context, retention, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := a.store.Cleanup(ctx, retention, leads.StatusProcessed, leads.StatusDeleted)
			if err != nil {
				logger.Warn(ctx, component, "retention.failed", slog.String("err", logger.Err(err)))
				continue
			}
			if n > 0 {
				logger.Info(ctx, component, "retention.removed", slog.Int("count", n))
			}
		}
	}
}

// Close waits for in-flight notifications, then releases storage.
func (a *App) Close() error {
	drained := make(chan struct{})
	go func() {
		a.inflight.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(drainTimeout):
		logger.L.With("component", component).Warn("notifications still in flight",
			slog.String("event", "app.drain_timeout"))
	}

	var errs []error
	if a.rdb != nil {
		errs = append(errs, a.rdb.Close())
	}
	errs = append(errs, a.infra.Close())
	return errors.Join(errs...)
}
