package safety

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxTrackedLimiters bounds the rate-limiter map: once it is full, one
// arbitrary entry is evicted per new caller (idle entries are never
// pruned), keeping memory bounded under many distinct callers.
const maxTrackedLimiters = 4096

// Kernel is the Safety Kernel: is_authorized, rate_check, is_path_allowed,
// check_command and safe_extract_archive all hang off one immutable Policy
// snapshot plus the per-user rate-limiter state the Policy's capacity/window
// parameterize.
type Kernel struct {
	policy *Policy

	mu       sync.Mutex
	limiters map[UserID]*rate.Limiter
}

// New constructs a Kernel bound to the given policy snapshot.
func New(policy *Policy) *Kernel {
	return &Kernel{
		policy:   policy,
		limiters: make(map[UserID]*rate.Limiter),
	}
}

// IsAuthorized reports allowlist membership.
func (k *Kernel) IsAuthorized(user UserID) bool {
	_, ok := k.policy.AllowedUsers[user]
	return ok
}

// RateCheck applies a continuous-refill token bucket, one per UserID,
// lazily created on first use. Concurrency-safe.
func (k *Kernel) RateCheck(user UserID) RateResult {
	now := time.Now()
	limiter := k.limiterFor(user)
	r := limiter.ReserveN(now, 1)
	if !r.OK() {
		return RateResult{Allowed: false}
	}
	delay := r.DelayFrom(now)
	if delay <= 0 {
		return RateResult{Allowed: true}
	}
	r.CancelAt(now)
	return RateResult{Allowed: false, RetryAfter: delay}
}

func (k *Kernel) limiterFor(user UserID) *rate.Limiter {
	k.mu.Lock()
	defer k.mu.Unlock()

	if l, ok := k.limiters[user]; ok {
		return l
	}

	if len(k.limiters) >= maxTrackedLimiters {
		k.evictOneLocked()
	}

	limit := rate.Limit(k.policy.RateCapacity / k.policy.RateWindow.Seconds())
	l := rate.NewLimiter(limit, int(k.policy.RateCapacity))
	k.limiters[user] = l
	return l
}

// evictOneLocked drops an arbitrary entry when the tracked-user bound is
// reached. Map iteration order in Go is randomized, which is sufficient —
// the goal is only to cap memory, not to implement LRU.
func (k *Kernel) evictOneLocked() {
	for id := range k.limiters {
		delete(k.limiters, id)
		slog.Debug("safety: evicted rate limiter to bound tracked-user memory", "user", id)
		return
	}
}
