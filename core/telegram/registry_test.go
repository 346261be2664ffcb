package telegram

import (
	"testing"

	"github.com/m3rciful/mebelbot/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

func TestRegistryCallbackLookupOrder(t *testing.T) {
	reg := NewRegistry()
	var hit string
	mk := func(name string) tele.HandlerFunc {
		return func(tele.Context) error { hit = name; return nil }
	}
	if err := reg.RegisterCallbackPrefix("app_", mk("app")); err != nil {
		t.Fatal(err)
	}
	if err := reg.RegisterCallbackPrefix("app_delete", mk("delete")); err != nil {
		t.Fatal(err)
	}
	if err := reg.RegisterCallback("app_done", mk("exact")); err != nil {
		t.Fatal(err)
	}

	tests := map[string]string{
		"app_done":       "exact",
		"app_delete_yes": "delete",
		"app_call":       "app",
	}
	for key, want := range tests {
		h, ok := reg.GetCallback(key)
		if !ok {
			t.Fatalf("no handler for %s", key)
		}
		_ = h(nil)
		if hit != want {
			t.Fatalf("%s routed to %s, want %s", key, hit, want)
		}
	}
	if _, ok := reg.GetCallback("menu_main"); ok {
		t.Fatal("unexpected handler for menu_main")
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	h := func(tele.Context) error { return nil }
	if err := reg.RegisterCallback("svc_measure", h); err != nil {
		t.Fatal(err)
	}
	if err := reg.RegisterCallback("svc_measure", h); err == nil {
		t.Fatal("expected duplicate error")
	}
	if err := reg.RegisterCallbackPrefix("menu_", h); err != nil {
		t.Fatal(err)
	}
	if err := reg.RegisterCallbackPrefix("menu_", h); err == nil {
		t.Fatal("expected duplicate prefix error")
	}
}

func TestRegistryLookupCommand(t *testing.T) {
	reg := NewRegistry()
	h := func(tele.Context) error { return nil }
	reg.RegisterCommand("/start", commands.Command{Handler: h, Description: "Меню", Aliases: []string{"menu"}})
	reg.RegisterCommand("/admin", commands.Command{Handler: h, Description: "Заявки", OperatorOnly: true})

	for _, in := range []string{"/start", "start", "/start@mebel_bot", "/start promo", "/menu"} {
		if key, _, ok := reg.LookupCommand(in); !ok || key != "/start" {
			t.Fatalf("LookupCommand(%q) = %q, %v", in, key, ok)
		}
	}
	if _, _, ok := reg.LookupCommand("Иван"); ok {
		t.Fatal("plain text must not resolve to a command")
	}

	visible := reg.ListCommands(true)
	if len(visible) != 1 || visible[0].Text != "start" {
		t.Fatalf("visible commands = %+v", visible)
	}
}
