package middleware

import tele "gopkg.in/telebot.v4"

// OperatorOptions defines how operator-only checks behave.
type OperatorOptions struct {
	// IsOperator reports whether a Telegram user may run operator commands.
	IsOperator func(userID int64) bool
	OnReject   tele.HandlerFunc
}

func (o OperatorOptions) allowed(c tele.Context) bool {
	if o.IsOperator == nil {
		return false
	}
	user := c.Sender()
	return user != nil && o.IsOperator(user.ID)
}

// OperatorOnly ensures that only operators reach downstream handlers.
// Without an IsOperator check every sender is rejected.
func OperatorOnly(opts OperatorOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if !opts.allowed(c) {
				if opts.OnReject != nil {
					return opts.OnReject(c)
				}
				return nil
			}
			return next(c)
		}
	}
}
