// Package leadview renders leads for operators in Telegram: message text,
// action keyboards and the callback keys those keyboards carry.
package leadview

import (
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/mebelbot/core/telegram/format"
	"github.com/m3rciful/mebelbot/core/telegram/keyboard"
	"github.com/m3rciful/mebelbot/internal/leads"
)

// Callback keys. Lead-scoped keys carry the lead id as payload.
const (
	KeyDone          = "app_done"
	KeyInProgress    = "app_in_progress"
	KeyCallCompleted = "app_call_completed"
	KeyCall          = "app_call"
	KeyMessage       = "app_message"
	KeyCallOK        = "app_call_ok"
	KeyMessageOK     = "app_message_ok"
	KeyDelete        = "app_delete"
	KeyDeleteOK      = "app_delete_ok"
	KeyBack          = "app_back"
	KeyShow          = "app_show"

	KeyMenuMain       = "menu_main"
	KeyMenuStats      = "menu_stats"
	KeyMenuNew        = "menu_new"
	KeyMenuInProgress = "menu_in_progress"
	KeyMenuAll        = "menu_all"
	KeyMenuHelp       = "menu_help"

	// LeadPrefix and MenuPrefix select the operator callback domains.
	LeadPrefix = "app_"
	MenuPrefix = "menu_"
)

var statusLabels = map[leads.Status]string{
	leads.StatusNew:           "🆕 Новая",
	leads.StatusInProgress:    "⏳ В работе",
	leads.StatusCallCompleted: "📞 Созвонились",
	leads.StatusProcessed:     "✅ Обработана",
	leads.StatusDeleted:       "🗑 Удалена",
}

// StatusLabel returns the operator-facing name of s.
func StatusLabel(s leads.Status) string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

var sourceLabels = map[leads.Source]string{
	leads.SourceWebsiteForm: "форма на сайте",
	leads.SourceCalculator:  "калькулятор",
	leads.SourceTelegramBot: "Telegram-бот",
}

// Renderer formats leads in MarkdownV2.
type Renderer struct {
	// Location is used for timestamps; nil means UTC.
	Location *time.Location
}

func (r Renderer) when(t time.Time) string {
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("02.01.2006 15:04")
}

// Lead renders the full operator card.
func (r Renderer) Lead(l leads.Lead) string {
	var b strings.Builder
	title := "📋 Заявка"
	if l.Status == leads.StatusNew {
		title = "🔔 Новая заявка"
	}
	if l.Priority == leads.PriorityHigh {
		title += " ‼️"
	}
	b.WriteString(format.Bold(format.EscapeMarkdownV2(title)))
	b.WriteString("\n\n")
	line(&b, "👤 Имя", l.Name)
	line(&b, "📞 Телефон", orDash(l.Phone))
	if l.Email != "" {
		line(&b, "✉️ Email", l.Email)
	}
	if l.Message != "" {
		line(&b, "🛠 Запрос", l.Message)
	}
	line(&b, "🌐 Источник", sourceLabel(l.Source))
	line(&b, "🕒 Создана", r.when(l.CreatedAt))
	b.WriteString(format.EscapeMarkdownV2("🆔 "))
	b.WriteString(format.Code(l.ID))
	b.WriteString("\n\n")
	b.WriteString(format.EscapeMarkdownV2("Статус: "))
	b.WriteString(format.Bold(format.EscapeMarkdownV2(StatusLabel(l.Status))))
	if n := len(l.Notes); n > 0 {
		b.WriteString("\n")
		line(&b, "📝 Заметка", l.Notes[n-1].Text)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Summary renders one short line for list views.
func (r Renderer) Summary(l leads.Lead) string {
	return fmt.Sprintf("%s %s · %s",
		format.EscapeMarkdownV2(r.when(l.CreatedAt)),
		format.Bold(format.EscapeMarkdownV2(l.Name)),
		format.EscapeMarkdownV2(StatusLabel(l.Status)),
	)
}

// Contact renders the contact-reveal prompt for kind (KeyCall or KeyMessage).
func (r Renderer) Contact(l leads.Lead, kind string) string {
	verb := "Позвоните клиенту"
	if kind == KeyMessage {
		verb = "Напишите клиенту"
	}
	var b strings.Builder
	b.WriteString(format.Bold(format.EscapeMarkdownV2(verb)))
	b.WriteString("\n\n")
	line(&b, "👤", l.Name)
	line(&b, "📞", orDash(l.Phone))
	if l.Email != "" {
		line(&b, "✉️", l.Email)
	}
	b.WriteString("\n")
	b.WriteString(format.EscapeMarkdownV2("Отметить контакт выполненным?"))
	return b.String()
}

// DeletePrompt asks the operator to confirm deletion.
func (r Renderer) DeletePrompt(l leads.Lead) string {
	return format.Bold(format.EscapeMarkdownV2("Удалить заявку?")) + "\n\n" +
		format.EscapeMarkdownV2(l.Name+" · "+orDash(l.Phone)) + "\n" +
		format.EscapeMarkdownV2("Действие нельзя отменить.")
}

// Deleted is the text left in place of a removed lead card.
func (r Renderer) Deleted(l leads.Lead, by string) string {
	return format.EscapeMarkdownV2(fmt.Sprintf("🗑 Заявка %s (%s) удалена, %s", l.Name, orDash(l.Phone), by))
}

func line(b *strings.Builder, label, value string) {
	b.WriteString(format.EscapeMarkdownV2(label + ": "))
	b.WriteString(format.EscapeMarkdownV2(value))
	b.WriteString("\n")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "—"
	}
	return s
}

func sourceLabel(s leads.Source) string {
	if l, ok := sourceLabels[s]; ok {
		return l
	}
	return string(s)
}

func btn(text, key, id string) keyboard.InlineBtn {
	return keyboard.InlineBtn{Text: text, Unique: key, Data: id}
}

// Actions returns the operator keyboard for l, or nil when the lead is in a
// state that takes no further actions. Editing with a nil markup removes buttons.
func Actions(l leads.Lead) *tele.ReplyMarkup {
	if l.Status == leads.StatusProcessed || l.Status == leads.StatusDeleted {
		return nil
	}
	var status []keyboard.InlineBtn
	if l.Status != leads.StatusInProgress {
		status = append(status, btn("⏳ В работу", KeyInProgress, l.ID))
	}
	if l.Status != leads.StatusCallCompleted {
		status = append(status, btn("📞 Созвонились", KeyCallCompleted, l.ID))
	}
	status = append(status, btn("✅ Готово", KeyDone, l.ID))
	return keyboard.InlineButtonsRows(
		status,
		[]keyboard.InlineBtn{
			btn("☎️ Позвонить", KeyCall, l.ID),
			btn("💬 Написать", KeyMessage, l.ID),
		},
		[]keyboard.InlineBtn{btn("🗑 Удалить", KeyDelete, l.ID)},
	)
}

// ContactConfirm offers to log the contact of kind or go back.
func ContactConfirm(l leads.Lead, kind string) *tele.ReplyMarkup {
	ok := KeyCallOK
	if kind == KeyMessage {
		ok = KeyMessageOK
	}
	return keyboard.InlineButtonsRows([]keyboard.InlineBtn{
		btn("✔️ Выполнено", ok, l.ID),
		btn("↩️ Отмена", KeyBack, l.ID),
	})
}

// DeleteConfirm offers to delete l or go back.
func DeleteConfirm(l leads.Lead) *tele.ReplyMarkup {
	return keyboard.InlineButtonsRows([]keyboard.InlineBtn{
		btn("🗑 Да, удалить", KeyDeleteOK, l.ID),
		btn("↩️ Отмена", KeyBack, l.ID),
	})
}

// Menu is the operator main menu.
func Menu() *tele.ReplyMarkup {
	return keyboard.InlineButtonsNPerRow([]keyboard.InlineBtn{
		btn("🆕 Новые", KeyMenuNew, ""),
		btn("⏳ В работе", KeyMenuInProgress, ""),
		btn("📚 Все заявки", KeyMenuAll, ""),
		btn("📊 Статистика", KeyMenuStats, ""),
		btn("❓ Помощь", KeyMenuHelp, ""),
	}, 2)
}

// List renders buttons opening each lead plus a way back to the menu.
func List(r Renderer, list []leads.Lead) *tele.ReplyMarkup {
	rows := make([][]keyboard.InlineBtn, 0, len(list)+1)
	for _, l := range list {
		rows = append(rows, []keyboard.InlineBtn{btn(r.when(l.CreatedAt)+" · "+l.Name, KeyShow, l.ID)})
	}
	rows = append(rows, []keyboard.InlineBtn{btn("⬅️ Меню", KeyMenuMain, "")})
	return keyboard.InlineButtonsRows(rows...)
}

// BackToMenu is a single-button keyboard returning to the main menu.
func BackToMenu() *tele.ReplyMarkup {
	return keyboard.InlineButtonsRows([]keyboard.InlineBtn{btn("⬅️ Меню", KeyMenuMain, "")})
}
