// Package safety implements the per-user allowlist, token-bucket rate
// limiting, path-containment validation, shell-command policy, and archive
// extraction hardening that every tool invocation from the agent must pass
// through before it is allowed to touch the host.
package safety

import "time"

// UserID is the opaque numeric identity minted by the chat platform.
type UserID int64

// Policy is the read-only configuration the Kernel enforces. A Policy is
// loaded once at start-up and treated as an immutable snapshot — callers
// never mutate a Policy in place; reloading means constructing a new one.
type Policy struct {
	AllowedUsers    map[UserID]struct{}
	AllowedPaths    []string // canonical directories, checked with symlink resolution
	TempPaths       []string // always-readable prefixes (downloaded media)
	BlockedPatterns []string // literal substrings denied in a Bash command
	RateCapacity    float64
	RateWindow      time.Duration
}

// NewPolicy builds a Policy from raw inputs, canonicalizing allowed/temp
// paths where possible. allowedUsers must be non-empty per spec invariant;
// callers are expected to validate that at start-up (see config package).
func NewPolicy(allowedUsers []UserID, allowedPaths, tempPaths, blockedPatterns []string, rateCapacity float64, rateWindow time.Duration) *Policy {
	users := make(map[UserID]struct{}, len(allowedUsers))
	for _, u := range allowedUsers {
		users[u] = struct{}{}
	}
	return &Policy{
		AllowedUsers:    users,
		AllowedPaths:    allowedPaths,
		TempPaths:       tempPaths,
		BlockedPatterns: blockedPatterns,
		RateCapacity:    rateCapacity,
		RateWindow:      rateWindow,
	}
}

// ArchiveLimits bounds a single safe_extract_archive call.
type ArchiveLimits struct {
	MaxFiles        int
	MaxBytesPerFile int64
	MaxTotalBytes   int64
}

// RateResult is the outcome of a rate_check call.
type RateResult struct {
	Allowed    bool
	RetryAfter time.Duration
}
