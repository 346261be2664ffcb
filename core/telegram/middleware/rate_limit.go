package middleware

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/m3rciful/mebelbot/core/logger"
	tghelpers "github.com/m3rciful/mebelbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// RateLimitOptions configures behaviour of the rate limit middleware.
type RateLimitOptions struct {
	// Interval is the minimum spacing between two updates of one user.
	Interval  time.Duration
	Exclude   map[string]struct{}
	OnLimited tele.HandlerFunc
}

type visitor struct {
	lim  *rate.Limiter
	seen time.Time
}

// userLimiter keeps one token bucket per user and drops idle ones.
type userLimiter struct {
	mu       sync.Mutex
	every    rate.Limit
	visitors map[int64]*visitor
	lastGC   time.Time
}

func newUserLimiter(interval time.Duration) *userLimiter {
	return &userLimiter{
		every:    rate.Every(interval),
		visitors: make(map[int64]*visitor),
	}
}

func (l *userLimiter) allow(userID int64, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.lastGC) > time.Minute {
		for id, v := range l.visitors {
			if now.Sub(v.seen) > time.Minute {
				delete(l.visitors, id)
			}
		}
		l.lastGC = now
	}
	v, ok := l.visitors[userID]
	if !ok {
		v = &visitor{lim: rate.NewLimiter(l.every, 1)}
		l.visitors[userID] = v
	}
	v.seen = now
	return v.lim.AllowN(now, 1)
}

func updateKind(upd tele.Update) string {
	switch {
	case upd.Callback != nil:
		return "callback"
	case upd.Message != nil:
		return "message"
	default:
		return "other"
	}
}

// RateLimitMiddleware drops updates of a user arriving faster than opts.Interval.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	lim := newUserLimiter(opts.Interval)
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || opts.Interval <= 0 {
				return next(c)
			}
			if _, skip := opts.Exclude[updateKind(c.Update())]; skip {
				return next(c)
			}
			if lim.allow(user.ID, time.Now()) {
				return next(c)
			}
			logger.Warn(tghelpers.BuildContext(c), "tg", "tg.rate_limit",
				slog.String("outcome", "skip"),
			)
			if opts.OnLimited != nil {
				_ = opts.OnLimited(c)
			}
			return nil
		}
	}
}
