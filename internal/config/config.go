package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode"
)

// Config is the root process configuration for the bot.
type Config struct {
	LogLevel     string     `json:"log_level"`
	CommandStart StringList `json:"command_start"`
	Superusers   Int64List  `json:"superusers"`

	OneBot     OneBotConfig     `json:"onebot"`
	AntiRecall AntiRecallConfig `json:"anti_recall"`
	Agent      AgentConfig      `json:"agent"`
}

// OneBotConfig describes how to reach the OneBot V11 gateway. At least one
// of WSURL (forward connection) or ListenAddr (reverse listener) must be set
// for the bot to receive events.
type OneBotConfig struct {
	WSURL       string `json:"ws_url"`
	AccessToken string `json:"access_token"`
	ListenAddr  string `json:"listen_addr"`
}

// AntiRecallConfig scopes the anti-recall feature.
type AntiRecallConfig struct {
	MonitorGroups  Int64List `json:"monitor_groups"`
	TargetUserIDs  Int64List `json:"target_user_id"`
	ArchiveGroupID int64     `json:"archive_group_id"`
}

// AgentConfig holds the LLM provider and n8n webhook settings for the
// conversational agent.
type AgentConfig struct {
	Provider       string `json:"provider"`
	GeminiBaseURL  string `json:"gemini_base_url"`
	GeminiAPIKey   string `json:"gemini_api_key"`
	GeminiModel    string `json:"gemini_model"`
	N8NBaseURL     string `json:"n8n_base_url"`
	N8NAPIKey      string `json:"n8n_api_key"`
	N8NWebhookPath string `json:"n8n_webhook_path"`
}

// IsSuperuser reports whether id is listed in superusers.
func (c *Config) IsSuperuser(id int64) bool {
	return c.Superusers.Contains(id)
}

// Warnings returns operator-facing notes about configuration gaps that keep
// features dormant without being errors.
func (c *Config) Warnings() []string {
	var out []string
	if len(c.AntiRecall.MonitorGroups) == 0 {
		out = append(out, "未配置监控群组，防撤回功能将不会生效")
	}
	if len(c.AntiRecall.TargetUserIDs) == 0 {
		out = append(out, "未配置目标用户，撤回通知将不会发送")
	}
	if c.OneBot.WSURL == "" && c.OneBot.ListenAddr == "" {
		out = append(out, "onebot.ws_url 与 onebot.listen_addr 均未配置，机器人无法连接协议端")
	}
	if c.AntiRecall.ArchiveGroupID != 0 && c.AntiRecall.MonitorGroups.Contains(c.AntiRecall.ArchiveGroupID) {
		out = append(out, "归档群同时在监控列表中，还原副本会再次进入缓存")
	}
	return out
}

// ParseLogLevel maps a config string to a slog level, defaulting to info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// StringList accepts both "single" and ["many"] in JSON; numeric elements
// are stringified.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = StringList{s}
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*l = result
	return nil
}

// ParseStringList splits an env value into strings: a JSON array when it
// looks like one, otherwise comma separated.
func ParseStringList(s string) StringList {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if strings.HasPrefix(s, "[") {
		var out StringList
		if err := json.Unmarshal([]byte(s), &out); err == nil {
			return out
		}
	}
	parts := strings.Split(s, ",")
	out := make(StringList, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Int64List is a list of QQ ids. JSON may carry it as an array of ints or
// digit strings, a bare int, or a separator-delimited string. Booleans are
// rejected, zero and unparseable entries are dropped, duplicates collapse
// keeping first-seen order.
type Int64List []int64

func (l *Int64List) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}
	switch data[0] {
	case '[':
		var raw []interface{}
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		*l = coerceIDs(raw)
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = ParseInt64List(s)
		return nil
	case 't', 'f':
		return fmt.Errorf("id list: boolean is not a valid id")
	default:
		var n int64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("id list: %w", err)
		}
		*l = dedupeIDs([]int64{n})
		return nil
	}
}

// Contains reports whether id is in the list.
func (l Int64List) Contains(id int64) bool {
	for _, v := range l {
		if v == id {
			return true
		}
	}
	return false
}

// ParseInt64List parses ids from an env value: a JSON array when it looks
// like one, otherwise comma or whitespace separated digits.
func ParseInt64List(s string) Int64List {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if strings.HasPrefix(s, "[") {
		var raw []interface{}
		if err := json.Unmarshal([]byte(s), &raw); err == nil {
			return coerceIDs(raw)
		}
	}
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	out := make([]int64, 0, len(fields))
	for _, f := range fields {
		if n, err := strconv.ParseInt(f, 10, 64); err == nil {
			out = append(out, n)
		}
	}
	return dedupeIDs(out)
}

func coerceIDs(raw []interface{}) Int64List {
	out := make([]int64, 0, len(raw))
	for _, v := range raw {
		switch x := v.(type) {
		case float64:
			out = append(out, int64(x))
		case string:
			if n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64); err == nil {
				out = append(out, n)
			}
		}
	}
	return dedupeIDs(out)
}

func dedupeIDs(in []int64) Int64List {
	seen := make(map[int64]struct{}, len(in))
	out := make(Int64List, 0, len(in))
	for _, v := range in {
		if v == 0 {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
