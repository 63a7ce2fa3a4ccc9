// Package runner implements the Session Runner: it launches or resumes the
// external agent, decodes its heterogeneous NDJSON event stream, maps
// events onto user-visible status updates, guards every tool invocation
// against the Safety Kernel, and cancels mid-stream on demand.
package runner

import (
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/clawbridge/internal/ports"
)

// ThinkingBudget is the per-query token allowance dedicated to the agent's
// internal reasoning channel. Spec fixes the three allowed values.
type ThinkingBudget int

const (
	ThinkingNone ThinkingBudget = 0
	ThinkingMed  ThinkingBudget = 10_000
	ThinkingDeep ThinkingBudget = 50_000
)

// ChooseThinkingBudget picks a budget by keyword match against the prompt,
// per the Model port's thinking-budget contract.
func ChooseThinkingBudget(prompt string, deepKeywords, keywords []string) ThinkingBudget {
	lower := strings.ToLower(prompt)
	for _, kw := range deepKeywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return ThinkingDeep
		}
	}
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return ThinkingMed
		}
	}
	return ThinkingNone
}

// UsageCounters are the cumulative, monotone-nondecreasing counters a
// Session tracks across all of its Queries.
type UsageCounters struct {
	InputTokens  int64
	OutputTokens int64
	CacheRead    int64
	CacheCreate  int64
	Queries      int64
}

func (u *UsageCounters) Add(delta UsageCounters) {
	u.InputTokens += delta.InputTokens
	u.OutputTokens += delta.OutputTokens
	u.CacheRead += delta.CacheRead
	u.CacheCreate += delta.CacheCreate
	u.Queries += delta.Queries
}

// Total returns total_input + total_output, the basis for context-budget
// alarm thresholds.
func (u UsageCounters) Total() int64 { return u.InputTokens + u.OutputTokens }

// WarningFlags track one-shot context-budget alarm crossings.
type WarningFlags struct {
	Warned70      bool
	Warned85      bool
	Warned95      bool
	SaveRequired  bool
}

// State is the Session Runner's state-machine position for one Session.
type State int

const (
	StateIdle State = iota
	StateProcessing
	StateRunning
	StateDone
	StateFailed
	StateCancelled
)

// Session is the spec's Session entity: identity, cumulative usage, and the
// runner's live state for one chat.
type Session struct {
	mu sync.Mutex

	SessionID   string
	WorkingDir  string
	StartedAt   time.Time
	Usage       UsageCounters
	LastMessage string
	Warnings    WarningFlags

	RecentlyRestored     bool
	MessagesSinceRestore int

	Handle ports.Handle

	state         State
	stopRequested bool
	cancelFn      func()

	Steering *SteeringBuffer
}

// NewSession creates an empty Session for workingDir; session_id is minted
// lazily by the agent on first event.
func NewSession(workingDir string) *Session {
	return &Session{
		WorkingDir: workingDir,
		StartedAt:  time.Now(),
		Steering:   NewSteeringBuffer(),
		state:      StateIdle,
	}
}

// State returns a snapshot of the runner's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(v State) {
	s.mu.Lock()
	s.state = v
	s.mu.Unlock()
}

// StopResult is the outcome of a Session.Stop() call.
type StopResult int

const (
	StopStopped StopResult = iota
	StopPending
	StopNoop
)

// Stop is idempotent: stop(); stop() has the same observable effect as one
// call. Phase A (processing, pre-spawn) sets stop_requested, causing the
// runner to fail with Cancelled before spawning. Phase B (running) invokes
// the registered cancel function, closing the agent's stdin.
func (s *Session) Stop() StopResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateProcessing:
		if s.stopRequested {
			return StopPending
		}
		s.stopRequested = true
		return StopPending
	case StateRunning:
		if s.cancelFn != nil {
			fn := s.cancelFn
			s.cancelFn = nil
			fn()
		}
		return StopStopped
	default:
		return StopNoop
	}
}

// Reset clears id, counters, and warning flags — used by /new.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SessionID = ""
	s.Usage = UsageCounters{}
	s.LastMessage = ""
	s.Warnings = WarningFlags{}
	s.RecentlyRestored = false
	s.MessagesSinceRestore = 0
	s.state = StateIdle
	s.stopRequested = false
}
