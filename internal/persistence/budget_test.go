package persistence

import (
	"testing"

	"github.com/nextlevelbuilder/clawbridge/internal/runner"
)

func TestCheckBudgetThresholdsFireOnce(t *testing.T) {
	var warnings runner.WarningFlags

	// Below every threshold: nothing fires.
	usage := runner.UsageCounters{InputTokens: 50_000, OutputTokens: 50_000} // 100_000 / 200_000 = 50%
	if crossed := CheckBudget(usage, &warnings, false); len(crossed) != 0 {
		t.Fatalf("expected no thresholds crossed at 50%%, got %v", crossed)
	}

	// Cross 70%.
	usage.OutputTokens = 95_000 // 145_000 / 200_000 = 72.5%
	crossed := CheckBudget(usage, &warnings, false)
	if len(crossed) != 1 || crossed[0] != "70" {
		t.Fatalf("expected only [70] crossed, got %v", crossed)
	}
	if !warnings.Warned70 {
		t.Error("expected Warned70 to be set")
	}

	// Re-checking at the same usage must not re-fire.
	if crossed := CheckBudget(usage, &warnings, false); len(crossed) != 0 {
		t.Errorf("expected no re-fire at unchanged usage, got %v", crossed)
	}

	// Jump straight past 85%, 90% (save_required), and 95% in one step.
	usage.OutputTokens = 145_000 // 190_000 / 200_000 = 95%
	crossed = CheckBudget(usage, &warnings, false)
	want := map[string]bool{"85": true, "95": true, "save_required": true}
	if len(crossed) != len(want) {
		t.Fatalf("expected 3 thresholds crossed at once, got %v", crossed)
	}
	for _, c := range crossed {
		if !want[c] {
			t.Errorf("unexpected threshold name %q", c)
		}
	}
	if !warnings.Warned85 || !warnings.Warned95 || !warnings.SaveRequired {
		t.Error("expected all three flags set after jump")
	}
}

func TestCheckBudgetSilentWhileRecentlyRestored(t *testing.T) {
	var warnings runner.WarningFlags
	usage := runner.UsageCounters{InputTokens: 190_000, OutputTokens: 10_000} // 100%

	if crossed := CheckBudget(usage, &warnings, true); crossed != nil {
		t.Errorf("expected nil while recently restored, got %v", crossed)
	}
	if warnings.Warned70 || warnings.Warned85 || warnings.Warned95 || warnings.SaveRequired {
		t.Error("expected no flags set while recently restored")
	}
}

func TestValidSaveID(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"20260731_142233", true},
		{"20260731_1422334", false},
		{"2026-07-31_142233", false},
		{"", false},
		{"abcdefgh_hijklm", false},
	}
	for _, tc := range cases {
		if got := ValidSaveID(tc.in); got != tc.want {
			t.Errorf("ValidSaveID(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
