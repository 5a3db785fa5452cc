package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func tempConfigPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "config.json")
}

func writeTestConfig(t *testing.T, path string, cfg *Config) {
	t.Helper()
	if err := Save(path, cfg); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
}

func TestLoad_WritesDefaults(t *testing.T) {
	path := tempConfigPath(t)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected defaults to be written: %v", err)
	}
	if cfg.Brain.Policy != "retry" {
		t.Errorf("expected default brain policy retry, got %q", cfg.Brain.Policy)
	}
	if cfg.Watcher.TickSeconds != 60 {
		t.Errorf("expected tick 60s, got %d", cfg.Watcher.TickSeconds)
	}
	if cfg.Email.IntervalMinutes != 5 || cfg.WhatsApp.IntervalMinutes != 1 {
		t.Errorf("unexpected default intervals: email=%d whatsapp=%d", cfg.Email.IntervalMinutes, cfg.WhatsApp.IntervalMinutes)
	}
	if cfg.PersistDedupState {
		t.Error("dedup state should not be persisted by default")
	}
	if cfg.LLM.MaxContextTokens != 16000 || cfg.LLM.MaxTokens != 500 {
		t.Errorf("unexpected llm budget: context=%d output=%d", cfg.LLM.MaxContextTokens, cfg.LLM.MaxTokens)
	}
}

func TestSave_ReloadRoundTrip(t *testing.T) {
	path := tempConfigPath(t)

	original := Default()
	original.DataDir = "/tmp/deskhand-data"
	original.LogLevel = "debug"
	original.Keywords = []string{"urgent", "PIAIC"}
	original.Admin.WhatsApp = "+15550001111"
	original.Forward.ToWhatsApp = true
	original.LinkedIn.Enabled = true
	original.LinkedIn.IntervalMinutes = 15
	original.LinkedIn.Email = "me@example.com"
	original.Brain.Policy = "best_effort"
	original.Brain.MaxAttempts = 3

	if err := Save(path, original); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.DataDir != original.DataDir {
		t.Errorf("DataDir mismatch: %v != %v", loaded.DataDir, original.DataDir)
	}
	if len(loaded.Keywords) != 2 || loaded.Keywords[1] != "PIAIC" {
		t.Errorf("Keywords mismatch: %v", loaded.Keywords)
	}
	if loaded.Admin.WhatsApp != "+15550001111" || !loaded.Forward.ToWhatsApp {
		t.Errorf("admin/forward mismatch: %+v %+v", loaded.Admin, loaded.Forward)
	}
	if !loaded.LinkedIn.Enabled || loaded.LinkedIn.IntervalMinutes != 15 {
		t.Errorf("linkedin channel mismatch: %+v", loaded.LinkedIn.ChannelConfig)
	}
	if loaded.LinkedIn.Email != "me@example.com" {
		t.Errorf("linkedin email mismatch: %q", loaded.LinkedIn.Email)
	}
	if loaded.Brain.Policy != "best_effort" || loaded.Brain.MaxAttempts != 3 {
		t.Errorf("brain mismatch: %+v", loaded.Brain)
	}
}

func TestLoad_AcceptsCommentsAndTrailingCommas(t *testing.T) {
	path := tempConfigPath(t)
	data := `{
  // watch only archived chats on whatsapp
  "whatsapp": {
    "enabled": true,
    "include_archived": true,
  },
  /* brain */
  "brain": {"policy": "best_effort",},
}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.WhatsApp.IncludeArchived {
		t.Error("expected include_archived=true")
	}
	if cfg.Brain.Policy != "best_effort" {
		t.Errorf("expected best_effort, got %q", cfg.Brain.Policy)
	}
	// untouched fields keep their defaults
	if cfg.Brain.IntervalSeconds != 5 {
		t.Errorf("expected default interval 5, got %d", cfg.Brain.IntervalSeconds)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := tempConfigPath(t)
	writeTestConfig(t, path, Default())

	t.Setenv("DESKHAND_DATA_DIR", "/srv/deskhand")
	t.Setenv("LINKEDIN_PASSWORD", "from-env")
	t.Setenv("DESKHAND_HEADLESS", "false")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DataDir != "/srv/deskhand" {
		t.Errorf("expected env data dir, got %q", cfg.DataDir)
	}
	if cfg.LinkedIn.Password != "from-env" {
		t.Errorf("expected env password, got %q", cfg.LinkedIn.Password)
	}
	if cfg.Browser.Headless {
		t.Error("expected headless=false from env")
	}
}

func TestSave_AtomicWrite(t *testing.T) {
	path := tempConfigPath(t)
	if err := Save(path, Default()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file should not exist after successful save")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read saved config: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Errorf("saved file is not valid JSON: %v", err)
	}
}

func TestToMap_EmbeddedChannelFields(t *testing.T) {
	cfg := Default()
	cfg.LinkedIn.Limit = 7

	m, err := ToMap(cfg)
	if err != nil {
		t.Fatalf("ToMap failed: %v", err)
	}
	li, ok := m["linkedin"].(map[string]any)
	if !ok {
		t.Fatalf("expected linkedin to be map, got %T", m["linkedin"])
	}
	// JSON numbers are float64
	if li["limit"] != float64(7) {
		t.Errorf("expected linkedin.limit=7, got %v", li["limit"])
	}
}

func TestListValues_Mask(t *testing.T) {
	cfg := Default()
	cfg.LLM.APIKey = "sk-secret-key-1234"
	cfg.LinkedIn.Password = "pass-5678"

	plain, err := ListValues(cfg, false)
	if err != nil {
		t.Fatalf("ListValues failed: %v", err)
	}
	if plain["llm.api_key"] != "sk-secret-key-1234" {
		t.Errorf("expected unmasked llm.api_key, got %v", plain["llm.api_key"])
	}

	masked, err := ListValues(cfg, true)
	if err != nil {
		t.Fatalf("ListValues failed: %v", err)
	}
	if masked["llm.api_key"] != "***1234" {
		t.Errorf("expected masked llm.api_key, got %v", masked["llm.api_key"])
	}
	if masked["linkedin.password"] != "********" {
		t.Errorf("expected masked linkedin.password, got %v", masked["linkedin.password"])
	}
	if masked["brain.policy"] != "retry" {
		t.Errorf("expected brain.policy=retry, got %v", masked["brain.policy"])
	}
}

func TestGetValue_UnknownKey(t *testing.T) {
	path := tempConfigPath(t)
	writeTestConfig(t, path, Default())

	_, err := GetValue(path, "nonexistent.key")
	if err == nil {
		t.Fatal("expected error for unknown key, got nil")
	}
	if err.Error() != "unknown config key: nonexistent.key" {
		t.Errorf("unexpected error %q", err.Error())
	}
}

func TestSetValue(t *testing.T) {
	path := tempConfigPath(t)
	writeTestConfig(t, path, Default())

	tests := []struct {
		key  string
		raw  string
		want any
	}{
		{"log_level", "debug", "debug"},
		{"watcher.parallel", "3", float64(3)},
		{"persist_dedup_state", "true", true},
		{"llm.temperature", "0.3", 0.3},
		{"custom.setting", "value", "value"},
	}
	for _, tt := range tests {
		if err := SetValue(path, tt.key, tt.raw); err != nil {
			t.Fatalf("SetValue(%s) failed: %v", tt.key, err)
		}
		v, err := GetValue(path, tt.key)
		if err != nil {
			t.Fatalf("GetValue(%s) failed: %v", tt.key, err)
		}
		if v != tt.want {
			t.Errorf("%s: expected %v (%T), got %v (%T)", tt.key, tt.want, tt.want, v, v)
		}
	}

	// other values survive
	v, err := GetValue(path, "brain.policy")
	if err != nil {
		t.Fatal(err)
	}
	if v != "retry" {
		t.Errorf("expected brain.policy preserved, got %v", v)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Watcher.Parallel != 3 || !cfg.PersistDedupState {
		t.Errorf("expected set values to load into Config, got %+v", cfg.Watcher)
	}
}

func TestSetValue_KeepsFieldTypes(t *testing.T) {
	path := tempConfigPath(t)
	writeTestConfig(t, path, Default())

	if err := SetValue(path, "admin.telegram_chat_id", "42"); err != nil {
		t.Fatal(err)
	}
	if err := SetValue(path, "keywords", "urgent,invoice,PIAIC"); err != nil {
		t.Fatal(err)
	}
	if err := SetValue(path, "watcher.tick_seconds", "soon"); err == nil {
		t.Error("expected error for a non-numeric tick")
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("config must still load after set: %v", err)
	}
	if cfg.Admin.TelegramChatID != "42" {
		t.Errorf("expected chat id \"42\", got %q", cfg.Admin.TelegramChatID)
	}
	if len(cfg.Keywords) != 3 || cfg.Keywords[2] != "PIAIC" {
		t.Errorf("unexpected keywords %v", cfg.Keywords)
	}
}

func TestSetValue_NonexistentFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist", "config.json")
	if err := SetValue(path, "log_level", "debug"); err == nil {
		t.Fatal("expected error for nonexistent file, got nil")
	}
}

func TestParseKeywords(t *testing.T) {
	got := ParseKeywords(" urgent, ,invoice,")
	if len(got) != 2 || got[0] != "urgent" || got[1] != "invoice" {
		t.Errorf("unexpected keywords %v", got)
	}
}
