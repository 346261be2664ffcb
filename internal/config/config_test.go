package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimal = `
telegram:
  token: "123:abc"
  notify_chat_ids: [111]
business:
  fallback_phone: "+7 495 000-00-00"
`

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeYAML(t, minimal))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Leads != DriverMemory || cfg.Storage.Sessions != DriverMemory {
		t.Fatalf("unexpected storage %+v", cfg.Storage)
	}
	if cfg.Storage.SessionTTL != 30*time.Minute {
		t.Fatalf("session ttl = %v", cfg.Storage.SessionTTL)
	}
	if cfg.HTTP.Listen != ":8080" || cfg.Business.PhoneRegion != "RU" || cfg.Redis.KeyPrefix != "mebel:" {
		t.Fatalf("defaults not applied: %+v %+v", cfg.HTTP, cfg.Business)
	}
	if cfg.Pricing.BasePerMetre["kitchen"] != 45000 {
		t.Fatalf("pricing defaults missing: %+v", cfg.Pricing.BasePerMetre)
	}
	if cfg.CoreConfig().Telegram.Token != "123:abc" {
		t.Fatal("core config not decoded inline")
	}
	if cfg.Location().String() != "Europe/Moscow" || cfg.Storage.LeadRetention != 0 {
		t.Fatalf("unexpected timezone %s or retention %v", cfg.Location(), cfg.Storage.LeadRetention)
	}
	if cfg.SQLDriver() != "" || cfg.UsesRedis() {
		t.Fatal("memory storage should not need sql or redis")
	}
}

func TestLoadPricingOverrideAndDurations(t *testing.T) {
	cfg, err := Load(writeYAML(t, minimal+`
storage:
  leads: sqlite
  session_ttl: 45m
database:
  sqlite_path: /tmp/leads.db
pricing:
  base_per_metre:
    kitchen: 52000
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.SessionTTL != 45*time.Minute {
		t.Fatalf("session ttl = %v", cfg.Storage.SessionTTL)
	}
	if cfg.SQLDriver() != DriverSQLite || cfg.Database.SQLitePath != "/tmp/leads.db" {
		t.Fatalf("unexpected sql config %+v", cfg.Database)
	}
	if cfg.Pricing.BasePerMetre["kitchen"] != 52000 || cfg.Pricing.BasePerMetre["office"] != 32000 {
		t.Fatalf("unexpected pricing %+v", cfg.Pricing.BasePerMetre)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("STORAGE_SESSIONS", "redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_FROM", "bot@example.com")
	t.Setenv("SMTP_TO", "sales@example.com,owner@example.com")
	cfg, err := Load(writeYAML(t, minimal))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.UsesRedis() || cfg.Redis.URL != "redis://localhost:6379/0" {
		t.Fatalf("redis not picked up: %+v", cfg.Redis)
	}
	if !cfg.Email.Enabled() || len(cfg.Email.To) != 2 || cfg.Email.Port != 587 {
		t.Fatalf("unexpected email config %+v", cfg.Email)
	}
}

func TestNormalizeErrors(t *testing.T) {
	cases := map[string]string{
		"bad leads driver":   minimal + "storage:\n  leads: mongo\n",
		"bad sessions":       minimal + "storage:\n  sessions: sqlite\n",
		"redis without url":  minimal + "storage:\n  leads: redis\n",
		"postgres no host":   minimal + "storage:\n  leads: postgres\n",
		"short jwt":          minimal + "admin:\n  password_hash: \"$2a$10$abc\"\n  jwt_secret: short\n",
		"plain password":     minimal + "admin:\n  password_hash: hunter2\n  jwt_secret: 0123456789abcdef\n",
		"bad pricing":        minimal + "pricing:\n  installation: 0.5\n",
		"missing fallback":   strings.Replace(minimal, `fallback_phone: "+7 495 000-00-00"`, `company_name: x`, 1),
		"bad timezone":       strings.Replace(minimal, "business:\n", "business:\n  timezone: Mars/Olympus\n", 1),
		"negative retention": minimal + "storage:\n  lead_retention: -1h\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeYAML(t, body)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := loadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("missing file: %v", err)
	}

	good := filepath.Join(dir, "good.env")
	if err := os.WriteFile(good, []byte("MEBEL_DOTENV_CHECK=ok\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MEBEL_DOTENV_CHECK", "")
	os.Unsetenv("MEBEL_DOTENV_CHECK")
	if err := loadDotEnv(good); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("MEBEL_DOTENV_CHECK"); got != "ok" {
		t.Fatalf("env = %q", got)
	}

	bad := filepath.Join(dir, "bad.env")
	if err := os.WriteFile(bad, []byte("BOT-TOKEN=123\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	prev := DotEnvPath
	DotEnvPath = bad
	t.Cleanup(func() { DotEnvPath = prev })
	if _, err := Load(writeYAML(t, minimal)); err == nil || !strings.Contains(err.Error(), "bad.env") {
		t.Fatalf("malformed dotenv err = %v", err)
	}
}
