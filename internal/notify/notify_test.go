package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	gomail "github.com/wneessen/go-mail"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/mebelbot/internal/leads"
	"github.com/m3rciful/mebelbot/internal/leadview"
)

type sent struct {
	to     int64
	text   string
	markup *tele.ReplyMarkup
}

type fakeMessenger struct {
	mu    sync.Mutex
	sent  []sent
	fail  map[int64]error
	block map[int64]bool
}

func (f *fakeMessenger) Send(ctx context.Context, to int64, text string, markup *tele.ReplyMarkup) (*tele.Message, error) {
	if f.block[to] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := f.fail[to]; err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{to: to, text: text, markup: markup})
	return &tele.Message{ID: len(f.sent), Chat: &tele.Chat{ID: to}}, nil
}

func (f *fakeMessenger) Edit(context.Context, tele.Editable, string, *tele.ReplyMarkup) error {
	return nil
}

func (f *fakeMessenger) recipients() map[int64]bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[int64]bool{}
	for _, s := range f.sent {
		out[s.to] = true
	}
	return out
}

var lead = leads.Lead{
	ID:        "01902a3c-7b8e-7c4d-9f10-123456789abc",
	Name:      "Ivan",
	Phone:     "+79990001111",
	Message:   "Замер",
	Source:    leads.SourceTelegramBot,
	Priority:  leads.PriorityNormal,
	Status:    leads.StatusNew,
	CreatedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
}

func TestNotifyDeliversToEveryChat(t *testing.T) {
	m := &fakeMessenger{}
	d := NewDispatcher(time.Second, TelegramChannels(m, []int64{1, 2, 3}, leadview.Renderer{})...)
	results := d.Notify(context.Background(), lead)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for _, r := range results {
		if !r.OK() {
			t.Fatalf("%s failed: %v", r.Channel, r.Err)
		}
	}
	got := m.recipients()
	for _, id := range []int64{1, 2, 3} {
		if !got[id] {
			t.Fatalf("chat %d not notified", id)
		}
	}
	if m.sent[0].markup == nil || len(m.sent[0].markup.InlineKeyboard) == 0 {
		t.Fatal("notification carries no action keyboard")
	}
	if !strings.Contains(m.sent[0].text, "Ivan") {
		t.Fatalf("unexpected text %q", m.sent[0].text)
	}
}

func TestNotifyIsolatesFailures(t *testing.T) {
	m := &fakeMessenger{
		fail:  map[int64]error{2: errors.New("chat not found")},
		block: map[int64]bool{3: true},
	}
	d := NewDispatcher(50*time.Millisecond, TelegramChannels(m, []int64{1, 2, 3, 4}, leadview.Renderer{})...)

	start := time.Now()
	results := d.Notify(context.Background(), lead)
	if time.Since(start) > time.Second {
		t.Fatal("slow channel delayed the fan-out beyond its timeout")
	}
	byName := map[string]Result{}
	for _, r := range results {
		byName[r.Channel] = r
	}
	if !byName["telegram:1"].OK() || !byName["telegram:4"].OK() {
		t.Fatalf("healthy channels failed: %+v", results)
	}
	if byName["telegram:2"].OK() {
		t.Fatal("failing channel reported ok")
	}
	if !errors.Is(byName["telegram:3"].Err, context.DeadlineExceeded) {
		t.Fatalf("blocked channel should time out, got %v", byName["telegram:3"].Err)
	}
}

func TestBroadcastSkipsOrigin(t *testing.T) {
	m := &fakeMessenger{}
	b := NewBroadcaster(m, []int64{10, 20, 30}, time.Second)
	results := b.Broadcast(context.Background(), "notice", 20)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	got := m.recipients()
	if got[20] || !got[10] || !got[30] {
		t.Fatalf("unexpected recipients %v", got)
	}
}

func TestEmailChannelComposesMessage(t *testing.T) {
	ch := NewEmailChannel(EmailSettings{
		Host:    "smtp.example.com",
		Port:    587,
		From:    "bot@example.com",
		To:      []string{"sales@example.com"},
		Company: "Мебель",
	})
	var captured *gomail.Msg
	ch.send = func(_ context.Context, msg *gomail.Msg) error {
		captured = msg
		return nil
	}
	if err := ch.Deliver(context.Background(), lead); err != nil {
		t.Fatal(err)
	}
	if captured == nil {
		t.Fatal("message not sent")
	}
	subject, body := ch.compose(lead)
	if subject != "[Мебель] Новая заявка: Ivan" {
		t.Fatalf("unexpected subject %q", subject)
	}
	for _, want := range []string{"Телефон: +79990001111", "ID: " + lead.ID, "01.05.2024 10:00"} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %q:\n%s", want, body)
		}
	}
}

func TestEmailChannelRejectsBadAddress(t *testing.T) {
	ch := NewEmailChannel(EmailSettings{From: "not an address", To: []string{"sales@example.com"}})
	ch.send = func(context.Context, *gomail.Msg) error {
		t.Fatal("send must not be reached")
		return nil
	}
	if err := ch.Deliver(context.Background(), lead); err == nil {
		t.Fatal("expected from address error")
	}
}
