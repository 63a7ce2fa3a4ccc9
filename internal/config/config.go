// Package config loads the bridge's runtime configuration: required and
// optional environment variables (the external contract), optionally
// layered under a JSON5 file for operators who prefer a config file to a
// pile of env vars.
package config

import "time"

// RateLimit mirrors the {enabled, requests, window} tuple from the
// environment contract.
type RateLimit struct {
	Enabled  bool          `json:"enabled"`
	Requests float64       `json:"requests"`
	Window   time.Duration `json:"window"`
}

// Audit mirrors the {path, json?} tuple.
type Audit struct {
	Path string `json:"path"`
	JSON bool   `json:"json"`
}

// Thinking mirrors the {default_budget, keywords_csv, deep_keywords_csv}
// tuple used to pick a thinking budget per incoming message.
type Thinking struct {
	DefaultBudget string   `json:"default_budget"`
	Keywords      []string `json:"keywords"`
	DeepKeywords  []string `json:"deep_keywords"`
}

// Progress mirrors the {spinner_enabled, show_elapsed, reaction_enabled}
// tuple controlling the Streaming Renderer's chrome.
type Progress struct {
	SpinnerEnabled  bool `json:"spinner_enabled"`
	ShowElapsed     bool `json:"show_elapsed"`
	ReactionEnabled bool `json:"reaction_enabled"`
}

// Deletion controls whether thinking/tool-status messages are deleted once
// a Query finishes.
type Deletion struct {
	ThinkingOnDone bool `json:"thinking_on_done"`
	ToolOnDone     bool `json:"tool_on_done"`
}

// Config is the bridge's full runtime configuration: one chat bot, one
// working directory, one agent backend, scoped to the environment-variable
// contract rather than a multi-tenant gateway's full surface.
type Config struct {
	Channel      string  `json:"channel"`
	BotToken     string  `json:"-"`
	AllowedUsers []int64 `json:"allowed_users"`

	WorkingDir   string   `json:"working_dir"`
	AllowedPaths []string `json:"allowed_paths,omitempty"`
	TempPaths    []string `json:"temp_paths,omitempty"`

	TranscriptionKey string `json:"-"`

	RateLimit RateLimit `json:"rate_limit"`
	Audit     Audit     `json:"audit"`
	Thinking  Thinking  `json:"thinking"`
	Progress  Progress  `json:"progress"`
	Deletion  Deletion  `json:"deletion"`

	QueryTimeout time.Duration `json:"query_timeout"`

	AgentCommand string   `json:"agent_command"`
	AgentArgs    []string `json:"agent_args,omitempty"`
	Model        string   `json:"model"`

	ButtonDir string `json:"button_dir"`

	// MCPConfigPath points at a JSON file declaring the MCP servers the
	// agent process should connect to; validated at startup by
	// agentproc.ValidateMCPConfig against its own ServerConfig shape.
	MCPConfigPath string `json:"mcp_config_path,omitempty"`
}

// Default returns a Config with sensible defaults for every optional field.
// The required fields (BotToken, AllowedUsers) are left empty; Load fills
// them from the JSON5 file (AllowedUsers only; BotToken has no JSON key) and
// the environment, then rejects a config missing either via Validate.
func Default() *Config {
	return &Config{
		Channel:      "telegram",
		WorkingDir:   "~/.clawbridge/workspace",
		RateLimit:    RateLimit{Enabled: true, Requests: 20, Window: time.Minute},
		Audit:        Audit{Path: "~/.clawbridge/audit.log", JSON: true},
		Thinking:     Thinking{DefaultBudget: "standard"},
		Progress:     Progress{SpinnerEnabled: true, ShowElapsed: true, ReactionEnabled: true},
		Deletion:     Deletion{ThinkingOnDone: true, ToolOnDone: false},
		QueryTimeout: 3 * time.Minute,
		AgentCommand: "claude",
		ButtonDir:    "~/.clawbridge/buttons",
	}
}

// Validate checks that the required contract fields are present.
func (c *Config) Validate() error {
	if c.BotToken == "" {
		return errMissingBotToken
	}
	if len(c.AllowedUsers) == 0 {
		return errMissingAllowedUsers
	}
	return nil
}
