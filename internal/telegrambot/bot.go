// Package telegrambot binds the intake conversation and the operator actions
// to the Telegram runtime in core/telegram.
package telegrambot

import (
	"log/slog"
	"math"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/mebelbot/core/logger"
	tg "github.com/m3rciful/mebelbot/core/telegram"
	"github.com/m3rciful/mebelbot/core/telegram/callbacks"
	"github.com/m3rciful/mebelbot/core/telegram/commands"
	tghelpers "github.com/m3rciful/mebelbot/core/telegram/helpers"
	"github.com/m3rciful/mebelbot/core/telegram/keyboard"
	"github.com/m3rciful/mebelbot/core/telegram/middleware"
	"github.com/m3rciful/mebelbot/core/telegram/router"
	"github.com/m3rciful/mebelbot/internal/actions"
	"github.com/m3rciful/mebelbot/internal/intake"
	"github.com/m3rciful/mebelbot/internal/leadview"
	"github.com/m3rciful/mebelbot/internal/pricing"
	"github.com/m3rciful/mebelbot/internal/session"
)

// Customer menu keys.
const (
	KeyMeasure = "svc_measure"
	KeyConsult = "svc_consult"
	KeyPrice   = "svc_price"
	KeyCancel  = "svc_cancel"
)

// Options configure a Bot.
type Options struct {
	Intake     *intake.Machine
	Actions    *actions.Router
	Pricing    pricing.Table
	IsOperator func(userID int64) bool
	Company    string
}

// Bot owns the registry and routes of the mebel bot.
type Bot struct {
	intake     *intake.Machine
	actions    *actions.Router
	pricing    pricing.Table
	isOperator func(int64) bool
	company    string
	reg        *tg.Registry
}

// New registers every command and callback on a fresh registry.
func New(opts Options) (*Bot, error) {
	b := &Bot{
		intake:     opts.Intake,
		actions:    opts.Actions,
		pricing:    opts.Pricing,
		isOperator: opts.IsOperator,
		company:    opts.Company,
		reg:        tg.NewRegistry(),
	}
	if b.isOperator == nil {
		b.isOperator = func(int64) bool { return false }
	}

	b.reg.RegisterCommand("/start", commands.Command{Handler: b.onStart, Description: "Главное меню"})
	b.reg.RegisterCommand("/cancel", commands.Command{Handler: b.onCancel, Description: "Отменить заявку"})
	b.reg.RegisterCommand("/price", commands.Command{Handler: b.onPrice, Description: "Цены"})
	b.reg.RegisterCommand("/admin", commands.Command{
		Handler:      b.onAdmin,
		Description:  "Панель оператора",
		OperatorOnly: true,
		Aliases:      []string{"menu"},
	})

	callbacksByKey := map[string]tele.HandlerFunc{
		KeyMeasure: b.onService(session.TypeMeasurement),
		KeyConsult: b.onService(session.TypeConsultation),
		KeyPrice:   b.onPriceButton,
		KeyCancel:  b.onCancelButton,
	}
	for key, h := range callbacksByKey {
		if err := b.reg.RegisterCallback(key, h); err != nil {
			return nil, err
		}
	}
	for _, prefix := range []string{leadview.LeadPrefix, leadview.MenuPrefix} {
		if err := b.reg.RegisterCallbackPrefix(prefix, b.onAction); err != nil {
			return nil, err
		}
	}
	b.reg.SetCallbackNotFound(b.onAction)
	b.reg.SetTextFallback(b.onStray)
	return b, nil
}

// Registry exposes the commands for RunOptions.
func (b *Bot) Registry() *tg.Registry { return b.reg }

// Routes lists every handler the bot binds.
func (b *Bot) Routes() []tg.Route {
	routes := router.CommandRoutes(b.reg, router.CommandRouteOptions{
		IsOperator: b.isOperator,
		OnOperatorReject: func(c tele.Context) error {
			return tghelpers.SendText(c, "⛔ Команда доступна только операторам.")
		},
	})
	routes = append(routes, router.CallbackRoute(b.reg, router.CallbackOptions{}))
	routes = append(routes, router.TextRoutes(b, b.reg, router.TextOptions{})...)
	routes = append(routes, tg.Route{
		Endpoint: tele.OnContact,
		Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(b.onContact)),
	})
	return routes
}

// Active reports whether the chat of c is in the middle of an intake.
func (b *Bot) Active(c tele.Context) bool {
	chat := c.Chat()
	if chat == nil {
		return false
	}
	ctx := tghelpers.WithHandler(c, "intake")
	ok, err := b.intake.Active(ctx, chat.ID)
	if err != nil {
		logger.Warn(ctx, "tg.intake", "session.lookup_failed", slog.String("err", logger.Err(err)))
		return false
	}
	return ok
}

// Handle feeds the text of c to the intake.
func (b *Bot) Handle(c tele.Context) error {
	return b.feed(c, c.Text())
}

func (b *Bot) feed(c tele.Context, text string) error {
	chat := c.Chat()
	if chat == nil {
		return nil
	}
	ctx := tghelpers.WithHandler(c, "intake")
	reply, handled, _ := b.intake.HandleText(ctx, chat.ID, text)
	if !handled {
		return b.onStray(c)
	}
	return sendReply(c, reply)
}

func (b *Bot) onContact(c tele.Context) error {
	msg := c.Message()
	if msg == nil || msg.Contact == nil || !b.Active(c) {
		return nil
	}
	return b.feed(c, msg.Contact.PhoneNumber)
}

func sendReply(c tele.Context, r intake.Reply) error {
	if r.Markup != nil {
		return tghelpers.SendText(c, r.Text, r.Markup)
	}
	return tghelpers.SendText(c, r.Text)
}

func (b *Bot) welcome() string {
	return "Здравствуйте! Вас приветствует " + b.company + ".\n\n" +
		"Мы изготавливаем мебель на заказ: кухни, шкафы, прихожие. " +
		"Выберите, что вас интересует:"
}

// CustomerMenu is the inline menu shown to customers.
func CustomerMenu() *tele.ReplyMarkup {
	return keyboard.InlineButtons([]keyboard.InlineBtn{
		{Text: "📐 Бесплатный замер", Unique: KeyMeasure},
		{Text: "💬 Консультация", Unique: KeyConsult},
		{Text: "💰 Цены", Unique: KeyPrice},
	})
}

func cancelMenu() *tele.ReplyMarkup {
	return keyboard.InlineButtonsRows([]keyboard.InlineBtn{{Text: "✖️ Отменить заявку", Unique: KeyCancel}})
}

func (b *Bot) onStart(c tele.Context) error {
	return tghelpers.SendText(c, b.welcome(), CustomerMenu())
}

func (b *Bot) onStray(c tele.Context) error {
	return tghelpers.SendText(c, "Чтобы оставить заявку, выберите услугу:", CustomerMenu())
}

func (b *Bot) onService(t session.Type) tele.HandlerFunc {
	return func(c tele.Context) error {
		_ = tghelpers.Respond(c, nil)
		chat := c.Chat()
		if chat == nil {
			return nil
		}
		ctx := tghelpers.WithHandler(c, "intake")
		reply, err := b.intake.Start(ctx, chat.ID, t)
		if err != nil {
			return sendReply(c, reply)
		}
		if err := sendReply(c, reply); err != nil {
			return err
		}
		return tghelpers.SendText(c, "Передумали? Заявку можно отменить.", cancelMenu())
	}
}

func (b *Bot) cancel(c tele.Context) error {
	chat := c.Chat()
	if chat == nil {
		return nil
	}
	reply, _ := b.intake.Cancel(tghelpers.WithHandler(c, "intake"), chat.ID)
	if err := sendReply(c, reply); err != nil {
		return err
	}
	return tghelpers.SendText(c, "Выберите услугу:", CustomerMenu())
}

func (b *Bot) onCancel(c tele.Context) error { return b.cancel(c) }

func (b *Bot) onCancelButton(c tele.Context) error {
	_ = tghelpers.Respond(c, &tele.CallbackResponse{Text: "Заявка отменена"})
	return b.cancel(c)
}

func (b *Bot) onPrice(c tele.Context) error {
	return tghelpers.SendText(c, PriceList(b.pricing), CustomerMenu())
}

func (b *Bot) onPriceButton(c tele.Context) error {
	_ = tghelpers.Respond(c, nil)
	return b.onPrice(c)
}

func (b *Bot) onAdmin(c tele.Context) error {
	return tghelpers.SendMDV2(c, actions.MenuText, leadview.Menu())
}

// onAction hands operator buttons to the action router and answers the
// callback with its reply.
func (b *Bot) onAction(c tele.Context) error {
	cb := c.Callback()
	if cb == nil {
		return nil
	}
	key, payload := callbacks.FromCallback(cb)
	ctx := tghelpers.WithHandler(c, "actions")
	if payload != "" && strings.HasPrefix(key, leadview.LeadPrefix) {
		ctx = tghelpers.WithLeadID(c, payload)
	}

	ev := actions.Event{Key: key, Payload: payload}
	if u := c.Sender(); u != nil {
		ev.ActorID = u.ID
	}
	if chat := c.Chat(); chat != nil {
		ev.ChatID = chat.ID
	}
	if cb.Message != nil {
		ev.Message = cb.Message
	}

	reply, err := b.actions.Handle(ctx, ev)
	if rerr := tghelpers.Respond(c, &tele.CallbackResponse{Text: reply.Text, ShowAlert: reply.Alert}); rerr != nil && err == nil {
		err = rerr
	}
	return err
}

var kindLabels = map[string]string{
	"kitchen":  "Кухня",
	"wardrobe": "Шкаф",
	"hallway":  "Прихожая",
	"bathroom": "Мебель для ванной",
	"office":   "Офисная мебель",
}

// PriceList renders the base price per metre of every kind in t.
func PriceList(t pricing.Table) string {
	var sb strings.Builder
	sb.WriteString("💰 Ориентировочные цены за погонный метр:\n\n")
	for _, kind := range t.Kinds() {
		label, ok := kindLabels[kind]
		if !ok {
			label = kind
		}
		sb.WriteString("• ")
		sb.WriteString(label)
		sb.WriteString(": от ")
		sb.WriteString(rubles(int64(math.Round(t.BasePerMetre[kind]))))
		sb.WriteString("\n")
	}
	sb.WriteString("\nТочная стоимость зависит от материалов и фурнитуры. Её назовёт замерщик после бесплатного замера.")
	return sb.String()
}

// rubles formats v with thousands separated by spaces.
func rubles(v int64) string {
	s := strconv.FormatInt(v, 10)
	var out []byte
	for i := range len(s) {
		if i > 0 && (len(s)-i)%3 == 0 && s[i-1] != '-' {
			out = append(out, ' ')
		}
		out = append(out, s[i])
	}
	return string(out) + " ₽"
}
