package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				key := kv[:i]
				if len(key) > 11 && key[:11] == "CLAWBRIDGE_" {
					t.Setenv(key, "")
					os.Unsetenv(key)
				}
				break
			}
		}
	}
}

func TestLoadRequiresBotTokenAndAllowedUsers(t *testing.T) {
	clearEnv(t)
	if _, err := Load(""); err == nil {
		t.Fatal("expected an error when CLAWBRIDGE_BOT_TOKEN and CLAWBRIDGE_ALLOWED_USERS are unset")
	}
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("CLAWBRIDGE_BOT_TOKEN", "tok-123")
	t.Setenv("CLAWBRIDGE_ALLOWED_USERS", "111, 222,333")
	t.Setenv("CLAWBRIDGE_RATE_LIMIT_REQUESTS", "42")
	t.Setenv("CLAWBRIDGE_QUERY_TIMEOUT", "90s")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BotToken != "tok-123" {
		t.Errorf("BotToken = %q", cfg.BotToken)
	}
	if len(cfg.AllowedUsers) != 3 || cfg.AllowedUsers[0] != 111 || cfg.AllowedUsers[2] != 333 {
		t.Errorf("AllowedUsers = %v", cfg.AllowedUsers)
	}
	if cfg.RateLimit.Requests != 42 {
		t.Errorf("RateLimit.Requests = %v", cfg.RateLimit.Requests)
	}
	if cfg.QueryTimeout != 90*time.Second {
		t.Errorf("QueryTimeout = %v", cfg.QueryTimeout)
	}
	// Untouched defaults should survive.
	if cfg.AgentCommand != "claude" {
		t.Errorf("AgentCommand = %q, want default", cfg.AgentCommand)
	}
}

func TestLoadFileOverlayThenEnvWins(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json5")
	if err := os.WriteFile(path, []byte(`{
		model: "file-model",
		agent_command: "from-file",
	}`), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("CLAWBRIDGE_BOT_TOKEN", "tok")
	t.Setenv("CLAWBRIDGE_ALLOWED_USERS", "1")
	t.Setenv("CLAWBRIDGE_AGENT_COMMAND", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model != "file-model" {
		t.Errorf("Model = %q, want file value to survive", cfg.Model)
	}
	if cfg.AgentCommand != "from-env" {
		t.Errorf("AgentCommand = %q, want env var to win over file", cfg.AgentCommand)
	}
}

func TestLoadMissingFileIsNotFatal(t *testing.T) {
	clearEnv(t)
	t.Setenv("CLAWBRIDGE_BOT_TOKEN", "tok")
	t.Setenv("CLAWBRIDGE_ALLOWED_USERS", "1")

	if _, err := Load(filepath.Join(t.TempDir(), "missing.json5")); err != nil {
		t.Fatalf("expected a missing config file to fall back to defaults, got %v", err)
	}
}

func TestExpandHome(t *testing.T) {
	home, _ := os.UserHomeDir()
	if got := ExpandHome("~/foo"); got != home+"/foo" {
		t.Errorf("ExpandHome(~/foo) = %q, want %q", got, home+"/foo")
	}
	if got := ExpandHome("/abs/path"); got != "/abs/path" {
		t.Errorf("ExpandHome should leave absolute paths untouched, got %q", got)
	}
}
