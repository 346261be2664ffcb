// Package actions handles operator button presses on lead notifications and
// the operator menu.
package actions

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/mebelbot/core/logger"
	"github.com/m3rciful/mebelbot/core/telegram/format"
	"github.com/m3rciful/mebelbot/internal/apperr"
	"github.com/m3rciful/mebelbot/internal/leads"
	"github.com/m3rciful/mebelbot/internal/leadview"
	"github.com/m3rciful/mebelbot/internal/notify"
)

const component = "service.actions"

// Actor is recorded as the author of bot-originated audit entries.
const Actor = "operator"

// ListLimit caps list views.
const ListLimit = 10

// LeadStore is the part of leads.Store the router uses.
type LeadStore interface {
	Get(ctx context.Context, id string) (leads.Lead, error)
	List(ctx context.Context, f leads.Filter) ([]leads.Lead, error)
	UpdateStatus(ctx context.Context, id string, status leads.Status, actor, comment string) (leads.Lead, error)
	AppendAction(ctx context.Context, id string, a leads.Action) (leads.Lead, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (leads.Stats, error)
}

// Broadcaster spreads a notice to the other operator chats.
type Broadcaster interface {
	Broadcast(ctx context.Context, text string, exceptChatID int64) []notify.Result
}

// Event is one button press.
type Event struct {
	ActorID int64
	ChatID  int64
	// Message holds the buttons that were pressed; nil sends a new message instead.
	Message tele.Editable
	Key     string
	Payload string
}

// Reply is the callback acknowledgement shown to the operator.
type Reply struct {
	Text  string
	Alert bool
}

// Options configure a Router.
type Options struct {
	Store       LeadStore
	Messenger   notify.Messenger
	Broadcaster Broadcaster
	IsOperator  func(userID int64) bool
	Renderer    leadview.Renderer
}

// Router applies Commands to leads and reflects the result in the message.
type Router struct {
	store      LeadStore
	messenger  notify.Messenger
	broadcast  Broadcaster
	isOperator func(int64) bool
	render     leadview.Renderer
}

// New returns a Router. A nil IsOperator rejects everyone.
func New(opts Options) *Router {
	r := &Router{
		store:      opts.Store,
		messenger:  opts.Messenger,
		broadcast:  opts.Broadcaster,
		isOperator: opts.IsOperator,
		render:     opts.Renderer,
	}
	if r.isOperator == nil {
		r.isOperator = func(int64) bool { return false }
	}
	return r
}

var (
	replyForbidden = Reply{Text: "⛔ Недостаточно прав", Alert: true}
	replyNotFound  = Reply{Text: "Заявка не найдена или уже удалена", Alert: true}
	replyFailed    = Reply{Text: "Не удалось выполнить действие, попробуйте позже", Alert: true}
	replyUnknown   = Reply{Text: "🚧 Эта функция пока не реализована"}
)

// Handle decodes ev and runs it. Failures become visible replies; the
// returned error is only for logging by the caller.
func (r *Router) Handle(ctx context.Context, ev Event) (Reply, error) {
	cmd := Decode(ev.Key, ev.Payload)
	if operatorScoped(cmd, ev.Key) && !r.isOperator(ev.ActorID) {
		logger.Warn(ctx, component, "action.forbidden",
			slog.String("status", "forbidden"),
			slog.Int64("user_id", ev.ActorID),
			slog.String("key", ev.Key),
		)
		return replyForbidden, nil
	}

	var (
		reply Reply
		err   error
	)
	switch c := cmd.(type) {
	case StatusChange:
		reply, err = r.changeStatus(ctx, ev, c)
	case ContactReveal:
		reply, err = r.revealContact(ctx, ev, c)
	case ContactConfirm:
		reply, err = r.confirmContact(ctx, ev, c)
	case Delete:
		reply, err = r.askDelete(ctx, ev, c)
	case DeleteConfirm:
		reply, err = r.confirmDelete(ctx, ev, c)
	case Back:
		reply, err = r.showLead(ctx, ev, c.LeadID)
	case Show:
		reply, err = r.showLead(ctx, ev, c.LeadID)
	case MenuNav:
		reply, err = r.menu(ctx, ev, c.Target)
	case Unknown:
		logger.Info(ctx, component, "action.unknown", slog.String("key", c.Key))
		reply = replyUnknown
	}
	if err != nil {
		return r.failure(ctx, ev, err), err
	}
	return reply, nil
}

// operatorScoped reports whether cmd needs an operator. Foreign keys that
// decode to Unknown are answered to anyone.
func operatorScoped(cmd Command, key string) bool {
	if _, unknown := cmd.(Unknown); !unknown {
		return true
	}
	return strings.HasPrefix(key, leadview.LeadPrefix) || strings.HasPrefix(key, leadview.MenuPrefix)
}

func (r *Router) failure(ctx context.Context, ev Event, err error) Reply {
	if apperr.Is(err, apperr.KindNotFound) {
		logger.Info(ctx, component, "action.not_found",
			slog.String("status", "not_found"),
			slog.String("key", ev.Key),
		)
		return replyNotFound
	}
	logger.Error(ctx, component, "action.fail",
		slog.String("status", "error"),
		slog.String("key", ev.Key),
		slog.String("err", logger.Err(err)),
	)
	return replyFailed
}

func (r *Router) changeStatus(ctx context.Context, ev Event, c StatusChange) (Reply, error) {
	ctx = logger.WithLeadID(ctx, c.LeadID)
	l, err := r.store.UpdateStatus(ctx, c.LeadID, c.To, Actor, "")
	if err != nil {
		return Reply{}, err
	}
	logger.Info(ctx, component, "action.status",
		slog.Int64("user_id", ev.ActorID),
		slog.String("lead_status", string(l.Status)),
	)
	r.show(ctx, ev, r.render.Lead(l), leadview.Actions(l))
	return Reply{Text: "Статус: " + leadview.StatusLabel(l.Status)}, nil
}

func (r *Router) revealContact(ctx context.Context, ev Event, c ContactReveal) (Reply, error) {
	ctx = logger.WithLeadID(ctx, c.LeadID)
	l, err := r.store.Get(ctx, c.LeadID)
	if err != nil {
		return Reply{}, err
	}
	kind := leadview.KeyCall
	if c.Kind == ContactMessage {
		kind = leadview.KeyMessage
	}
	r.show(ctx, ev, r.render.Contact(l, kind), leadview.ContactConfirm(l, kind))
	return Reply{}, nil
}

func (r *Router) confirmContact(ctx context.Context, ev Event, c ContactConfirm) (Reply, error) {
	ctx = logger.WithLeadID(ctx, c.LeadID)
	typ := leads.ActionCalled
	if c.Kind == ContactMessage {
		typ = leads.ActionMessaged
	}
	l, err := r.store.AppendAction(ctx, c.LeadID, leads.Action{Type: typ, By: Actor})
	if err != nil {
		return Reply{}, err
	}
	logger.Info(ctx, component, "action.contact",
		slog.Int64("user_id", ev.ActorID),
		slog.String("type", typ),
	)
	r.show(ctx, ev, r.render.Lead(l), leadview.Actions(l))
	return Reply{Text: "Отмечено ✔️"}, nil
}

func (r *Router) askDelete(ctx context.Context, ev Event, c Delete) (Reply, error) {
	ctx = logger.WithLeadID(ctx, c.LeadID)
	l, err := r.store.Get(ctx, c.LeadID)
	if err != nil {
		return Reply{}, err
	}
	r.show(ctx, ev, r.render.DeletePrompt(l), leadview.DeleteConfirm(l))
	return Reply{}, nil
}

func (r *Router) confirmDelete(ctx context.Context, ev Event, c DeleteConfirm) (Reply, error) {
	ctx = logger.WithLeadID(ctx, c.LeadID)
	l, err := r.store.Get(ctx, c.LeadID)
	if err != nil {
		return Reply{}, err
	}
	if err := r.store.Delete(ctx, c.LeadID); err != nil {
		return Reply{}, err
	}
	logger.Info(ctx, component, "action.delete", slog.Int64("user_id", ev.ActorID))
	notice := r.render.Deleted(l, "оператор")
	r.show(ctx, ev, notice, nil)
	if r.broadcast != nil {
		r.broadcast.Broadcast(ctx, notice, ev.ChatID)
	}
	return Reply{Text: "Заявка удалена"}, nil
}

func (r *Router) showLead(ctx context.Context, ev Event, id string) (Reply, error) {
	ctx = logger.WithLeadID(ctx, id)
	l, err := r.store.Get(ctx, id)
	if err != nil {
		return Reply{}, err
	}
	r.show(ctx, ev, r.render.Lead(l), leadview.Actions(l))
	return Reply{}, nil
}

func (r *Router) menu(ctx context.Context, ev Event, target MenuTarget) (Reply, error) {
	switch target {
	case MenuStats:
		st, err := r.store.Stats(ctx)
		if err != nil {
			return Reply{}, err
		}
		r.show(ctx, ev, renderStats(st), leadview.BackToMenu())
	case MenuNew, MenuInProgress, MenuAll:
		var f leads.Filter
		title := "📚 Все заявки"
		switch target {
		case MenuNew:
			f.Status, title = leads.StatusNew, "🆕 Новые заявки"
		case MenuInProgress:
			f.Status, title = leads.StatusInProgress, "⏳ Заявки в работе"
		}
		list, err := r.store.List(ctx, f)
		if err != nil {
			return Reply{}, err
		}
		r.show(ctx, ev, r.renderList(title, list), leadview.List(r.render, head(list, ListLimit)))
	case MenuHelp:
		r.show(ctx, ev, helpText, leadview.BackToMenu())
	default:
		r.show(ctx, ev, MenuText, leadview.Menu())
	}
	return Reply{}, nil
}

// MenuText heads the operator main menu.
var MenuText = format.Bold(format.EscapeMarkdownV2("🛋 Панель оператора")) + "\n\n" +
	format.EscapeMarkdownV2("Выберите раздел:")

var helpText = format.Bold(format.EscapeMarkdownV2("❓ Помощь")) + "\n\n" + format.EscapeMarkdownV2(strings.Join([]string{
	"Новые заявки приходят в этот чат с кнопками действий.",
	"⏳ В работу, 📞 Созвонились и ✅ Готово меняют статус заявки.",
	"☎️ Позвонить и 💬 Написать показывают контакты и отмечают контакт в истории.",
	"🗑 Удалить убирает заявку после подтверждения.",
	"/admin открывает это меню.",
}, "\n"))

func renderStats(st leads.Stats) string {
	var b strings.Builder
	b.WriteString(format.Bold(format.EscapeMarkdownV2("📊 Статистика")))
	b.WriteString("\n\n")
	b.WriteString(format.EscapeMarkdownV2(fmt.Sprintf("Всего заявок: %d", st.Total)))
	for _, s := range leads.Statuses {
		if s == leads.StatusDeleted {
			continue
		}
		b.WriteString("\n")
		b.WriteString(format.EscapeMarkdownV2(fmt.Sprintf("%s: %d", leadview.StatusLabel(s), st.ByStatus[s])))
	}
	return b.String()
}

func (r *Router) renderList(title string, list []leads.Lead) string {
	var b strings.Builder
	b.WriteString(format.Bold(format.EscapeMarkdownV2(title)))
	if len(list) == 0 {
		b.WriteString("\n\n")
		b.WriteString(format.EscapeMarkdownV2("Заявок нет."))
		return b.String()
	}
	b.WriteString(format.EscapeMarkdownV2(fmt.Sprintf(" (%d)", len(list))))
	b.WriteString("\n")
	for _, l := range head(list, ListLimit) {
		b.WriteString("\n")
		b.WriteString(r.render.Summary(l))
	}
	if len(list) > ListLimit {
		b.WriteString("\n\n")
		b.WriteString(format.EscapeMarkdownV2(fmt.Sprintf("Показаны последние %d.", ListLimit)))
	}
	return b.String()
}

func head(list []leads.Lead, n int) []leads.Lead {
	if len(list) > n {
		return list[:n]
	}
	return list
}

// show edits the pressed message, or sends a new one when there is none.
// Delivery problems are logged; the store change already happened.
func (r *Router) show(ctx context.Context, ev Event, text string, markup *tele.ReplyMarkup) {
	var err error
	if ev.Message != nil {
		err = r.messenger.Edit(ctx, ev.Message, text, markup)
	} else {
		_, err = r.messenger.Send(ctx, ev.ChatID, text, markup)
	}
	if err != nil {
		logger.Warn(ctx, component, "action.render",
			slog.String("status", "error"),
			slog.Int64("chat_id", ev.ChatID),
			slog.String("err", logger.Err(err)),
		)
	}
}
