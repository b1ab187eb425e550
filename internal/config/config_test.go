package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return NewManager(path)
}

const minimalYAML = `
telegram:
  token: "123:abc"
  announce_chat_ids: [-1001, -1002]
`

func TestParseMinimalYAML(t *testing.T) {
	m := writeConfig(t, "config.yaml", minimalYAML)
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if len(cfg.Telegram.AnnounceChatIDs) != 2 {
		t.Fatalf("announce ids = %v", cfg.Telegram.AnnounceChatIDs)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	m := writeConfig(t, "config.yaml", minimalYAML+`
twithc:
  client_id: "typo"
`)
	if _, err := m.Parse(); err == nil {
		t.Fatalf("expected unknown-field error")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing token", `
telegram:
  announce_chat_ids: [1]
`},
		{"missing chats", `
telegram:
  token: "t"
`},
		{"bad timezone", minimalYAML + `
timezone: "Mars/Olympus"
`},
		{"bad digest time", minimalYAML + `
digest:
  times: ["25:00"]
`},
		{"bad duration", minimalYAML + `
reminder:
  interval: "one hour"
`},
		{"negative duration", minimalYAML + `
twitch:
  poll_interval: "-5s"
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := writeConfig(t, "config.yaml", tc.body)
			if _, err := m.Parse(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestDefaultsAndFallbacks(t *testing.T) {
	m := writeConfig(t, "config.yaml", minimalYAML)
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if got := cfg.DigestTimes(); len(got) != 2 || got[0] != "10:00" || got[1] != "14:00" {
		t.Fatalf("default digest times = %v", got)
	}
	if got := cfg.ReminderTargets(); len(got) != 2 || got[0] != -1001 {
		t.Fatalf("reminder targets must fall back to announce list: %v", got)
	}
	if got := cfg.DigestTargets(); len(got) != 2 {
		t.Fatalf("digest targets must fall back to announce list: %v", got)
	}
	if cfg.Location() != time.UTC {
		t.Fatalf("default location must be UTC")
	}
}

func TestExplicitTargetsWin(t *testing.T) {
	m := writeConfig(t, "config.yaml", minimalYAML+`
  reminder_chat_ids: [-42]
`)
	// YAML above appends to the telegram block via indentation.
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := cfg.ReminderTargets(); len(got) != 1 || got[0] != -42 {
		t.Fatalf("explicit reminder targets must win: %v", got)
	}
	if got := cfg.DigestTargets(); len(got) != 2 {
		t.Fatalf("digest still falls back: %v", got)
	}
}

func TestLocation(t *testing.T) {
	m := writeConfig(t, "config.yaml", minimalYAML+`
timezone: "Europe/Kyiv"
`)
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Location().String() != "Europe/Kyiv" {
		t.Fatalf("location = %v", cfg.Location())
	}
}

func TestParseHHMM(t *testing.T) {
	if h, min, err := ParseHHMM("09:30"); err != nil || h != 9 || min != 30 {
		t.Fatalf("ParseHHMM(09:30) = %d,%d,%v", h, min, err)
	}
	for _, bad := range []string{"24:00", "9:75", "noon", "10:00:00", ""} {
		if _, _, err := ParseHHMM(bad); err == nil {
			t.Fatalf("ParseHHMM(%q) must fail", bad)
		}
	}
}

func TestParseDurationField(t *testing.T) {
	if d, err := ParseDurationField("k", "90s"); err != nil || d != 90*time.Second {
		t.Fatalf("got %v, %v", d, err)
	}
	if d, err := ParseDurationField("k", ""); err != nil || d != 0 {
		t.Fatalf("empty must be zero: %v, %v", d, err)
	}
	if _, err := ParseDurationField("k", "-1s"); err == nil {
		t.Fatalf("negative must fail")
	}
	if DurationOr("", 5*time.Second) != 5*time.Second {
		t.Fatalf("DurationOr default failed")
	}
	if DurationOr("2s", 5*time.Second) != 2*time.Second {
		t.Fatalf("DurationOr parse failed")
	}
}

func TestJSONConfig(t *testing.T) {
	m := writeConfig(t, "config.json", `{
  "telegram": {"token": "t", "announce_chat_ids": [1]}
}`)
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse json: %v", err)
	}
	if cfg.Telegram.Token != "t" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
}
