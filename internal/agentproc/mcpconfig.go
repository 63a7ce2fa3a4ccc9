package agentproc

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
)

// clientInfo names this bridge in SummarizeMCPConfig's output lines; it is
// not sent to any MCP server.
var clientInfo = mcp.Implementation{Name: "clawbridge", Version: "dev"}

// ServerConfig is one entry in the MCP config file: either a stdio server
// (Command/Args/Env) or an HTTP/SSE server (URL/Headers). Exactly one
// transport must be set.
type ServerConfig struct {
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`

	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

func (s ServerConfig) transport() string {
	if s.Command != "" {
		return "stdio"
	}
	return "http"
}

// mcpConfigFile is the on-disk shape: {"mcpServers": {name: ServerConfig}}.
type mcpConfigFile struct {
	Servers map[string]ServerConfig `json:"mcpServers"`
}

// ValidateMCPConfig parses and sanity-checks an MCP config file before it is
// handed to the agent binary as --mcp-config, so a malformed file fails at
// bridge startup instead of surfacing as an opaque agent-subprocess error.
func ValidateMCPConfig(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("agentproc: read mcp config %s: %w", path, err)
	}

	var file mcpConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("agentproc: parse mcp config %s: %w", path, err)
	}
	if len(file.Servers) == 0 {
		return fmt.Errorf("agentproc: mcp config %s declares no servers", path)
	}

	for name, srv := range file.Servers {
		if srv.Command == "" && srv.URL == "" {
			return fmt.Errorf("agentproc: mcp server %q declares neither command nor url", name)
		}
		if srv.Command != "" && srv.URL != "" {
			return fmt.Errorf("agentproc: mcp server %q declares both command and url", name)
		}
		_ = srv.transport() // exercised by doctor's summary below
	}
	return nil
}

// SummarizeMCPConfig returns a human-readable "name (transport) via clawbridge" line per
// configured server, for the doctor command's diagnostics output.
func SummarizeMCPConfig(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file mcpConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	lines := make([]string, 0, len(file.Servers))
	for name, srv := range file.Servers {
		lines = append(lines, fmt.Sprintf("%s (%s) via %s", name, srv.transport(), clientInfo.Name))
	}
	return lines, nil
}
