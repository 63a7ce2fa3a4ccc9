// Package agentproc implements the Model port's concrete adapter: it drives
// the reference coding-assistant agent as a child process, feeding prompts
// on stdin and decoding its newline-delimited JSON event stream off stdout.
//
// Grounded on the subprocess-NDJSON pattern used by agent-bridge tooling in
// the retrieval pack (the child process is spawned once per session and
// resumed across queries by passing its minted session id back in).
package agentproc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	"github.com/nextlevelbuilder/clawbridge/internal/ports"
)

// Binary is the path to the agent executable; configured once at start-up.
type Binary struct {
	Path string
	// ConfigDir, when non-empty, is exported as CLAUDE_CONFIG_DIR so the
	// agent has a writable config directory even when $HOME is read-only.
	ConfigDir string
}

// Process is a ports.Model backed by a child process per session.
type Process struct {
	bin Binary
}

// New constructs a Process-backed Model port adapter.
func New(bin Binary) *Process {
	return &Process{bin: bin}
}

func (p *Process) Capabilities() ports.ModelCapabilities {
	return ports.ModelCapabilities{Streaming: true, Tools: true, Vision: true, Thinking: true, MCP: true}
}

// session is the concrete ports.Handle: one spawned or resumed agent
// process plus the plumbing needed to stream its NDJSON output and inject
// further prompts (including synthesized steering frames) on stdin.
type session struct {
	mu        sync.Mutex
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    io.ReadCloser
	sessionID string
	events    chan ports.Event
	cancel    context.CancelFunc
}

func (s *session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

func (s *session) setSessionID(id string) {
	s.mu.Lock()
	s.sessionID = id
	s.mu.Unlock()
}

func buildArgs(opts ports.SessionOpts) []string {
	args := []string{
		"--non-interactive",
		"--output-format=stream-json",
		"--verbose",
		"--permission-mode=bypassPermissions",
		"--dangerously-skip-permissions",
	}
	for _, dir := range opts.AllowedDirs {
		args = append(args, "--add-dir="+dir)
	}
	if opts.MCPConfigPath != "" {
		args = append(args, "--mcp-config="+opts.MCPConfigPath)
	}
	if opts.ResumeID != "" {
		args = append(args, "--resume="+opts.ResumeID)
	}
	if opts.Model != "" {
		args = append(args, "--model="+opts.Model)
	}
	return args
}

func (p *Process) spawn(ctx context.Context, opts ports.SessionOpts) (*session, error) {
	runCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(runCtx, p.bin.Path, buildArgs(opts)...)
	cmd.Dir = opts.WorkingDir
	if p.bin.ConfigDir != "" {
		cmd.Env = append(cmd.Environ(), "CLAUDE_CONFIG_DIR="+p.bin.ConfigDir)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("agentproc: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("agentproc: stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("agentproc: spawn: %w", err)
	}

	s := &session{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		events: make(chan ports.Event, 16),
		cancel: cancel,
	}

	go s.decodeLoop(&stderr)

	return s, nil
}

// Start spawns a fresh agent.
func (p *Process) Start(ctx context.Context, opts ports.SessionOpts) (ports.Handle, error) {
	opts.ResumeID = ""
	return p.spawn(ctx, opts)
}

// Resume spawns the agent with --resume=<id>.
func (p *Process) Resume(ctx context.Context, sessionID string, opts ports.SessionOpts) (ports.Handle, error) {
	opts.ResumeID = sessionID
	return p.spawn(ctx, opts)
}

// stdinLine is the one-JSON-object-per-line stdin contract.
type stdinLine struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// Send writes one prompt line to the agent's stdin.
func (p *Process) Send(ctx context.Context, handle ports.Handle, prompt string) error {
	s, ok := handle.(*session)
	if !ok {
		return fmt.Errorf("agentproc: handle is not a *session")
	}
	return s.writeLine(prompt)
}

func (s *session) writeLine(content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stdin == nil {
		return fmt.Errorf("agentproc: stdin closed")
	}
	line, err := json.Marshal(stdinLine{Type: "user", Content: content})
	if err != nil {
		return err
	}
	if _, err := s.stdin.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("agentproc: write stdin: %w", err)
	}
	return nil
}

// InjectSteering writes a synthesized steering frame to the agent's stdin,
// per the format spec.md §4.1 requires.
func (s *session) InjectSteering(joined string) error {
	frame := "[USER SENT MESSAGE DURING EXECUTION]\n" + joined + "\n[END USER MESSAGE]"
	return s.writeLine(frame)
}

// InjectSteering exposes the underlying session's steering hook to callers
// holding only a ports.Handle.
func InjectSteering(handle ports.Handle, joined string) error {
	s, ok := handle.(*session)
	if !ok {
		return fmt.Errorf("agentproc: handle is not a *session")
	}
	return s.InjectSteering(joined)
}

// Stream returns the channel of decoded events for this handle.
func (p *Process) Stream(handle ports.Handle) <-chan ports.Event {
	s, ok := handle.(*session)
	if !ok {
		ch := make(chan ports.Event)
		close(ch)
		return ch
	}
	return s.events
}

// Cancel closes stdin and signals the process, unblocking the decode loop.
// The decode loop still emits the resulting exit error as an Err event; the
// Session Runner logs it and reports the query as cancelled rather than as a
// crash, since the final Result event may race the abort.
func (p *Process) Cancel(handle ports.Handle) error {
	s, ok := handle.(*session)
	if !ok {
		return fmt.Errorf("agentproc: handle is not a *session")
	}
	s.mu.Lock()
	if s.stdin != nil {
		s.stdin.Close()
		s.stdin = nil
	}
	s.mu.Unlock()
	s.cancel()
	return nil
}

// --- NDJSON decode ---

// decodeLoop scans stdout line-by-line, emitting ports.Event values.
// Unknown top-level `type` values decode into EventUnknown (which the
// Session Runner logs at debug) — never fatal — so new agent event shapes
// never break decoding.
func (s *session) decodeLoop(stderr *bytes.Buffer) {
	defer close(s.events)

	scanner := bufio.NewScanner(s.stdout)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var raw map[string]any
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			slog.Debug("agentproc: skipping malformed NDJSON line", "error", err)
			continue
		}

		for _, ev := range s.translate(line, raw) {
			s.events <- ev
		}
	}

	if err := scanner.Err(); err != nil {
		s.events <- ports.Event{Kind: ports.EventUnknown, Err: fmt.Errorf("agentproc: scan stdout: %w", err)}
	}

	waitErr := s.cmd.Wait()
	if waitErr != nil {
		slog.Warn("agentproc: agent process exited", "error", waitErr, "stderr", stderr.String())
		s.events <- ports.Event{Kind: ports.EventUnknown, Err: fmt.Errorf("agentproc: %w", waitErr)}
	}
}

func (s *session) translate(line string, raw map[string]any) []ports.Event {
	typ, _ := raw["type"].(string)

	switch typ {
	case "system":
		if subtype, _ := raw["subtype"].(string); subtype == "init" {
			if id, _ := raw["session_id"].(string); id != "" {
				s.setSessionID(id)
				return []ports.Event{{Kind: ports.EventSessionInit, SessionID: id, Raw: raw}}
			}
		}
		return nil

	case "assistant":
		return s.translateAssistant(raw)

	case "result":
		return []ports.Event{s.translateResult(raw)}

	default:
		return []ports.Event{{Kind: ports.EventUnknown, Raw: raw}}
	}
}

func (s *session) translateAssistant(raw map[string]any) []ports.Event {
	var out []ports.Event

	msg, _ := raw["message"].(map[string]any)
	blocks, _ := msg["content"].([]any)
	for _, b := range blocks {
		block, ok := b.(map[string]any)
		if !ok {
			continue
		}
		switch block["type"] {
		case "text":
			text, _ := block["text"].(string)
			out = append(out, ports.Event{Kind: ports.EventAssistantText, TextDelta: text, Raw: raw})
		case "thinking":
			text, _ := block["thinking"].(string)
			if text == "" {
				text, _ = block["text"].(string)
			}
			out = append(out, ports.Event{Kind: ports.EventAssistantThinking, TextDelta: text, Raw: raw})
		case "tool_use":
			name, _ := block["name"].(string)
			input, _ := block["input"].(map[string]any)
			out = append(out, ports.Event{Kind: ports.EventToolUse, ToolName: name, ToolInput: input, Raw: raw})
		}
	}

	return out
}

func (s *session) translateResult(raw map[string]any) ports.Event {
	ev := ports.Event{Kind: ports.EventResult, Raw: raw}
	if d, ok := raw["duration_ms"].(float64); ok {
		ev.DurationMS = int64(d)
	}
	if usage, ok := raw["usage"].(map[string]any); ok {
		ev.Usage = parseUsageMap(usage)
	}
	return ev
}

func parseUsageMap(m map[string]any) ports.Usage {
	get := func(k string) int64 {
		if v, ok := m[k].(float64); ok {
			return int64(v)
		}
		return 0
	}
	return ports.Usage{
		InputTokens:  get("input_tokens"),
		OutputTokens: get("output_tokens"),
		CacheRead:    get("cache_read_input_tokens"),
		CacheCreate:  get("cache_creation_input_tokens"),
	}
}
