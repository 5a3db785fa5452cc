package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"
)

// ChannelConfig holds the settings shared by browser-driven channels.
type ChannelConfig struct {
	Enabled         bool   `json:"enabled"`
	IntervalMinutes int    `json:"interval_minutes"`
	IncludeArchived bool   `json:"include_archived"`
	Limit           int    `json:"limit"`
	SessionDir      string `json:"session_dir,omitempty"`
}

type Config struct {
	DataDir           string   `json:"data_dir"`
	LogLevel          string   `json:"log_level"`
	Keywords          []string `json:"keywords"`
	PriorityKeywords  []string `json:"priority_keywords"`
	PersistDedupState bool     `json:"persist_dedup_state"`
	Dedup             struct {
		PreviewChars int `json:"preview_chars"`
	} `json:"dedup"`
	Admin struct {
		Email          string `json:"email"`
		WhatsApp       string `json:"whatsapp"`
		TelegramChatID string `json:"telegram_chat_id"`
	} `json:"admin"`
	Forward struct {
		ToEmail    bool `json:"to_email"`
		ToWhatsApp bool `json:"to_whatsapp"`
		ToTelegram bool `json:"to_telegram"`
	} `json:"forward"`
	Browser struct {
		Headless                       bool   `json:"headless"`
		BinPath                        string `json:"bin_path"`
		UserAgent                      string `json:"user_agent"`
		LoginTimeoutSeconds            int    `json:"login_timeout_seconds"`
		InteractiveLoginTimeoutSeconds int    `json:"interactive_login_timeout_seconds"`
		SendTimeoutSeconds             int    `json:"send_timeout_seconds"`
		ScreenshotDir                  string `json:"screenshot_dir"`
	} `json:"browser"`
	WhatsApp ChannelConfig `json:"whatsapp"`
	LinkedIn struct {
		ChannelConfig
		Email    string `json:"email"`
		Password string `json:"password"`
	} `json:"linkedin"`
	GitHub struct {
		Enabled bool `json:"enabled"`
	} `json:"github"`
	Email struct {
		Enabled         bool `json:"enabled"`
		IntervalMinutes int  `json:"interval_minutes"`
		SMTP            struct {
			Host     string `json:"host"`
			Port     int    `json:"port"`
			Username string `json:"username"`
			Password string `json:"password"`
			From     string `json:"from"`
		} `json:"smtp"`
	} `json:"email"`
	Watcher struct {
		TickSeconds int `json:"tick_seconds"`
		Parallel    int `json:"parallel"`
	} `json:"watcher"`
	Brain struct {
		Enabled          bool   `json:"enabled"`
		IntervalSeconds  int    `json:"interval_seconds"`
		Policy           string `json:"policy"`
		MaxAttempts      int    `json:"max_attempts"`
		TriggerMaxTokens int    `json:"trigger_max_tokens"`
	} `json:"brain"`
	HTTP struct {
		Enabled bool   `json:"enabled"`
		Listen  string `json:"listen"`
	} `json:"http"`
	Telegram struct {
		Token string `json:"token"`
	} `json:"telegram"`
	LLM struct {
		BaseURL          string  `json:"base_url"`
		APIKey           string  `json:"api_key"`
		Model            string  `json:"model"`
		MaxTokens        int     `json:"max_tokens"`
		MaxContextTokens int     `json:"max_context_tokens"`
		Temperature      float32 `json:"temperature"`
		SystemPromptPath string  `json:"system_prompt_path,omitempty"`
		Owner            string  `json:"owner,omitempty"`
	} `json:"llm"`
}

// Default returns a Config populated with the built-in defaults.
func Default() *Config {
	cfg := &Config{
		DataDir:          "data",
		LogLevel:         "info",
		Keywords:         []string{"urgent", "help", "invoice", "payment"},
		PriorityKeywords: []string{"urgent"},
	}
	cfg.Dedup.PreviewChars = 20
	cfg.Browser.Headless = true
	cfg.Browser.LoginTimeoutSeconds = 60
	cfg.Browser.InteractiveLoginTimeoutSeconds = 300
	cfg.Browser.SendTimeoutSeconds = 30
	cfg.WhatsApp = ChannelConfig{Enabled: true, IntervalMinutes: 1, Limit: 20}
	cfg.LinkedIn.ChannelConfig = ChannelConfig{IntervalMinutes: 10, Limit: 20}
	cfg.Email.IntervalMinutes = 5
	cfg.Email.SMTP.Port = 587
	cfg.Watcher.TickSeconds = 60
	cfg.Watcher.Parallel = 1
	cfg.Brain.Enabled = true
	cfg.Brain.IntervalSeconds = 5
	cfg.Brain.Policy = "retry"
	cfg.Brain.TriggerMaxTokens = 64
	cfg.HTTP.Listen = "127.0.0.1:8089"
	cfg.LLM.BaseURL = "https://api.openai.com/v1"
	cfg.LLM.Model = "gpt-4o-mini"
	cfg.LLM.MaxTokens = 500
	cfg.LLM.MaxContextTokens = 16000
	cfg.LLM.Temperature = 0.7
	return cfg
}

// Load reads the config at path on top of the defaults. A missing file is
// created with the defaults. Environment variables take precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DESKHAND_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("DESKHAND_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DESKHAND_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Browser.Headless = b
		}
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("LINKEDIN_EMAIL"); v != "" {
		cfg.LinkedIn.Email = v
	}
	if v := os.Getenv("LINKEDIN_PASSWORD"); v != "" {
		cfg.LinkedIn.Password = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		cfg.Email.SMTP.Password = v
	}
}

// VaultDir is the root of the task-file tree.
func (c *Config) VaultDir() string { return filepath.Join(c.DataDir, "vault") }

func (c *Config) HistoryDir() string { return filepath.Join(c.DataDir, "chat_history") }

func (c *Config) SessionsDir() string { return filepath.Join(c.DataDir, "sessions") }

func (c *Config) PIDPath() string { return filepath.Join(c.DataDir, "deskhand.pid") }

func (c *Config) DedupPath() string { return filepath.Join(c.DataDir, "dedup.db") }

func (c *Config) ScreenshotDir() string {
	if c.Browser.ScreenshotDir != "" {
		return c.Browser.ScreenshotDir
	}
	return filepath.Join(c.DataDir, "screenshots")
}

// Save writes cfg to path atomically.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeAtomic(path, append(data, '\n'))
}

func writeAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ToMap converts cfg into a generic nested map using its JSON field names.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return m, nil
}

// ListValues returns cfg flattened to dot-separated keys, optionally with
// secrets masked.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

func readRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(jsonc.ToJSON(data), &m); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return m, nil
}

// GetValue reads a single dot-separated key from the file at path.
func GetValue(path, key string) (any, error) {
	m, err := readRaw(path)
	if err != nil {
		return nil, err
	}
	v, ok := Flatten(m)[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return v, nil
}

// SetValue sets a dot-separated key in the file at path. The raw value is
// converted to the type the key already has; new keys are decoded as JSON
// when possible, otherwise stored as a string.
func SetValue(path, key, raw string) error {
	m, err := readRaw(path)
	if err != nil {
		return err
	}
	flat := Flatten(m)
	v, err := coerce(key, flat[key], raw)
	if err != nil {
		return err
	}
	flat[key] = v

	data, err := json.MarshalIndent(Unflatten(flat), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeAtomic(path, append(data, '\n'))
}

// ParseKeywords splits a comma separated list, dropping empty entries.
func ParseKeywords(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
