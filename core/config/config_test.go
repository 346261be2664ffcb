package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaultsOperatorsFromNotifyChats(t *testing.T) {
	path := writeYAML(t, `
telegram:
  token: "123:abc"
  notify_chat_ids: [111, 222]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.RunMode != RunModeLongpoll {
		t.Fatalf("run mode = %q", cfg.Telegram.RunMode)
	}
	if !reflect.DeepEqual(cfg.Telegram.OperatorIDs, []int64{111, 222}) {
		t.Fatalf("operators = %v", cfg.Telegram.OperatorIDs)
	}
	if cfg.Telegram.SendTimeoutSeconds != 10 {
		t.Fatalf("send timeout = %d", cfg.Telegram.SendTimeoutSeconds)
	}
	if !cfg.Telegram.IsOperator(222) || cfg.Telegram.IsOperator(333) {
		t.Fatal("IsOperator mismatch")
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeYAML(t, `
telegram:
  token: "from-file"
  notify_chat_ids: [1]
`)
	t.Setenv("BOT_TOKEN", "from-env")
	t.Setenv("TELEGRAM_OPERATOR_IDS", "7,8")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "from-env" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if !reflect.DeepEqual(cfg.Telegram.OperatorIDs, []int64{7, 8}) {
		t.Fatalf("operators = %v", cfg.Telegram.OperatorIDs)
	}
}

func TestNormalizeErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no token", Config{Telegram: TelegramConfig{NotifyChatIDs: []int64{1}}}},
		{"no chats", Config{Telegram: TelegramConfig{Token: "t"}}},
		{"bad mode", Config{Telegram: TelegramConfig{Token: "t", RunMode: "carrier-pigeon", NotifyChatIDs: []int64{1}}}},
		{"webhook without url", Config{Telegram: TelegramConfig{Token: "t", RunMode: "webhook", NotifyChatIDs: []int64{1}}}},
		{"bad exclude", Config{
			Telegram:  TelegramConfig{Token: "t", NotifyChatIDs: []int64{1}},
			RateLimit: RateLimitConfig{ExcludeUpdates: []string{"inline"}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			if err := Normalize(&cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestDecodeMissingFileUsesEnv(t *testing.T) {
	t.Setenv("BOT_TOKEN", "env-only")
	var cfg Config
	if err := Decode(filepath.Join(t.TempDir(), "absent.yml"), &cfg); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Telegram.Token != "env-only" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
}
