package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		LogLevel:     "info",
		CommandStart: StringList{"/"},
		Agent: AgentConfig{
			Provider:    "gemini",
			GeminiModel: "gemini-2.5-flash",
		},
	}
}

// Load reads config from a JSON file, then overlays env vars.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envIDs := func(key string, dst *Int64List) {
		if v := os.Getenv(key); v != "" {
			*dst = ParseInt64List(v)
		}
	}

	envStr("LOG_LEVEL", &c.LogLevel)
	if v := os.Getenv("COMMAND_START"); v != "" {
		c.CommandStart = ParseStringList(v)
	}
	envIDs("SUPERUSERS", &c.Superusers)

	envStr("ONEBOT__WS_URL", &c.OneBot.WSURL)
	envStr("ONEBOT__ACCESS_TOKEN", &c.OneBot.AccessToken)
	envStr("ONEBOT__LISTEN_ADDR", &c.OneBot.ListenAddr)

	envIDs("ANTI_RECALL__MONITOR_GROUPS", &c.AntiRecall.MonitorGroups)
	envIDs("ANTI_RECALL__TARGET_USER_ID", &c.AntiRecall.TargetUserIDs)
	if v := os.Getenv("ANTI_RECALL__ARCHIVE_GROUP_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil && id > 0 {
			c.AntiRecall.ArchiveGroupID = id
		}
	}

	envStr("AGENT__PROVIDER", &c.Agent.Provider)
	envStr("AGENT__GEMINI_BASE_URL", &c.Agent.GeminiBaseURL)
	envStr("AGENT__GEMINI_API_KEY", &c.Agent.GeminiAPIKey)
	envStr("AGENT__GEMINI_MODEL", &c.Agent.GeminiModel)
	envStr("AGENT__N8N_BASE_URL", &c.Agent.N8NBaseURL)
	envStr("AGENT__N8N_API_KEY", &c.Agent.N8NAPIKey)
	envStr("AGENT__N8N_WEBHOOK_PATH", &c.Agent.N8NWebhookPath)
}

// Save writes the config to a JSON file.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}
