package persistence

import (
	"regexp"

	"github.com/nextlevelbuilder/clawbridge/internal/runner"
)

// contextLimit is the default LIMIT spec.md §4.5 names.
const contextLimit = 200_000

// Thresholds, as fractions of contextLimit.
const (
	threshold70 = 0.70
	threshold85 = 0.85
	threshold95 = 0.95
	thresholdSave = 0.90 // 180_000 at the default limit
)

// CooldownN is the number of subsequent user messages during which
// context-budget alarms stay silent after a restore.
const CooldownN = 50

// CheckBudget computes C = total_input + total_output and sets every
// one-shot warning flag newly crossed, while recently_restored is false.
// Returns the names of thresholds crossed for the first time this call
// (possibly more than one, if usage jumped past several at once), so the
// caller can decide what to surface.
func CheckBudget(usage runner.UsageCounters, warnings *runner.WarningFlags, recentlyRestored bool) []string {
	if recentlyRestored {
		return nil
	}
	c := float64(usage.Total())

	var crossed []string
	if c >= threshold70*contextLimit && !warnings.Warned70 {
		warnings.Warned70 = true
		crossed = append(crossed, "70")
	}
	if c >= threshold85*contextLimit && !warnings.Warned85 {
		warnings.Warned85 = true
		crossed = append(crossed, "85")
	}
	if c >= threshold95*contextLimit && !warnings.Warned95 {
		warnings.Warned95 = true
		crossed = append(crossed, "95")
	}
	if c >= thresholdSave*contextLimit && !warnings.SaveRequired {
		warnings.SaveRequired = true
		crossed = append(crossed, "save_required")
	}
	return crossed
}

// lastSaveIDPattern is the strict regex a .last-save-id file's contents
// must match: exactly 15 characters, YYYYMMDD_HHMMSS.
var lastSaveIDPattern = regexp.MustCompile(`^\d{8}_\d{6}$`)

// ValidSaveID reports whether s is a well-formed save-id, per spec.md's
// round-trip property: accepts exactly 15-character strings of that shape.
func ValidSaveID(s string) bool {
	return lastSaveIDPattern.MatchString(s)
}
