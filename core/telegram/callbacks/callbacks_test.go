package callbacks

import (
	"errors"
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name        string
		data        string
		key, payload string
	}{
		{"telebot form", "\fapp_done|0192f7c4-aaaa", "app_done", "0192f7c4-aaaa"},
		{"payload keeps separator", "\fapp_done|a|b", "app_done", "a|b"},
		{"no payload", "\fmenu_main", "menu_main", ""},
		{"no prefix", "menu_stats|", "menu_stats", ""},
		{"empty", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, p := Parse(tt.data)
			if k != tt.key || p != tt.payload {
				t.Fatalf("Parse(%q) = %q, %q; want %q, %q", tt.data, k, p, tt.key, tt.payload)
			}
		})
	}
}

func TestEncodeRoundTripsThroughParse(t *testing.T) {
	data, err := Encode("app_delete_yes", "0192f7c4-5a1e-7b3d-9c2f-1e2d3c4b5a69")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(data) > MaxDataLen {
		t.Fatalf("encoded length %d exceeds limit", len(data))
	}
	k, p := Parse(data)
	if k != "app_delete_yes" || p != "0192f7c4-5a1e-7b3d-9c2f-1e2d3c4b5a69" {
		t.Fatalf("unexpected parse result %q %q", k, p)
	}
}

func TestEncodeRejects(t *testing.T) {
	if _, err := Encode("app_done", strings.Repeat("x", 64)); !errors.Is(err, ErrTooLong) {
		t.Fatalf("expected ErrTooLong, got %v", err)
	}
	if _, err := Encode("a|b", "x"); err == nil {
		t.Fatal("expected error for key containing separator")
	}
}

func TestFromCallbackPrefersUnique(t *testing.T) {
	cb := &tele.Callback{Unique: "svc_measure", Data: "x"}
	if k, p := FromCallback(cb); k != "svc_measure" || p != "x" {
		t.Fatalf("got %q %q", k, p)
	}
	if k, _ := FromCallback(nil); k != "" {
		t.Fatalf("nil callback key = %q", k)
	}
}
