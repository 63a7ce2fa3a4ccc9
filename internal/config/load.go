package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/titanous/json5"
)

var (
	errMissingBotToken     = errors.New("config: CLAWBRIDGE_BOT_TOKEN is required")
	errMissingAllowedUsers = errors.New("config: CLAWBRIDGE_ALLOWED_USERS is required")
)

// Load builds a Config by starting from Default(), overlaying an optional
// JSON5 file at path (if non-empty and present), then applying environment
// variables — env vars always win, matching the teacher's env-overrides-
// file-overrides-default layering.
//
// A .env file in the current working directory is loaded first via
// godotenv, if present; real environment variables already set are never
// overwritten by it.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if uerr := json5.Unmarshal(data, cfg); uerr != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, uerr)
			}
		case os.IsNotExist(err):
			// No file is not an error; env vars and defaults carry the config.
		default:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides overlays CLAWBRIDGE_* environment variables onto cfg.
// Env vars take precedence over file values, matching the teacher's
// applyEnvOverrides pattern (GOCLAW_* closures) narrowed to this bridge's
// own contract.
func applyEnvOverrides(c *Config) {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envCSV := func(key string, dst *[]string) {
		if v := os.Getenv(key); v != "" {
			*dst = splitCSV(v)
		}
	}
	envBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = v == "true" || v == "1"
		}
	}
	envFloat := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}
	envDuration := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	envStr("CLAWBRIDGE_CHANNEL", &c.Channel)
	envStr("CLAWBRIDGE_BOT_TOKEN", &c.BotToken)
	if v := os.Getenv("CLAWBRIDGE_ALLOWED_USERS"); v != "" {
		c.AllowedUsers = parseInt64CSV(v)
	}

	envStr("CLAWBRIDGE_WORKING_DIR", &c.WorkingDir)
	envCSV("CLAWBRIDGE_ALLOWED_PATHS", &c.AllowedPaths)
	envCSV("CLAWBRIDGE_TEMP_PATHS", &c.TempPaths)

	envStr("CLAWBRIDGE_TRANSCRIPTION_KEY", &c.TranscriptionKey)

	envBool("CLAWBRIDGE_RATE_LIMIT_ENABLED", &c.RateLimit.Enabled)
	envFloat("CLAWBRIDGE_RATE_LIMIT_REQUESTS", &c.RateLimit.Requests)
	envDuration("CLAWBRIDGE_RATE_LIMIT_WINDOW", &c.RateLimit.Window)

	envStr("CLAWBRIDGE_AUDIT_PATH", &c.Audit.Path)
	envBool("CLAWBRIDGE_AUDIT_JSON", &c.Audit.JSON)

	envStr("CLAWBRIDGE_THINKING_DEFAULT_BUDGET", &c.Thinking.DefaultBudget)
	envCSV("CLAWBRIDGE_THINKING_KEYWORDS", &c.Thinking.Keywords)
	envCSV("CLAWBRIDGE_THINKING_DEEP_KEYWORDS", &c.Thinking.DeepKeywords)

	envBool("CLAWBRIDGE_PROGRESS_SPINNER_ENABLED", &c.Progress.SpinnerEnabled)
	envBool("CLAWBRIDGE_PROGRESS_SHOW_ELAPSED", &c.Progress.ShowElapsed)
	envBool("CLAWBRIDGE_PROGRESS_REACTION_ENABLED", &c.Progress.ReactionEnabled)

	envBool("CLAWBRIDGE_DELETE_THINKING_ON_DONE", &c.Deletion.ThinkingOnDone)
	envBool("CLAWBRIDGE_DELETE_TOOL_ON_DONE", &c.Deletion.ToolOnDone)

	envDuration("CLAWBRIDGE_QUERY_TIMEOUT", &c.QueryTimeout)

	envStr("CLAWBRIDGE_AGENT_COMMAND", &c.AgentCommand)
	envCSV("CLAWBRIDGE_AGENT_ARGS", &c.AgentArgs)
	envStr("CLAWBRIDGE_MODEL", &c.Model)

	envStr("CLAWBRIDGE_BUTTON_DIR", &c.ButtonDir)
	envStr("CLAWBRIDGE_MCP_CONFIG", &c.MCPConfigPath)
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseInt64CSV(v string) []int64 {
	parts := splitCSV(v)
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		if n, err := strconv.ParseInt(p, 10, 64); err == nil {
			out = append(out, n)
		}
	}
	return out
}

// ExpandHome replaces a leading ~ with the user's home directory, matching
// the teacher's ExpandHome helper.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
