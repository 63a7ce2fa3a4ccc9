package cron

import (
	"time"

	"github.com/adhocore/gronx"
)

// Matcher evaluates cron expressions against a reference time using gronx,
// which understands the standard 5-field expression syntax the manifest's
// cron_expr field uses.
type Matcher struct {
	g gronx.Gronx
}

// NewMatcher builds a Matcher.
func NewMatcher() *Matcher {
	return &Matcher{g: gronx.New()}
}

// Due reports whether expr is scheduled to fire at ref, truncated to minute
// precision (cron expressions have no finer granularity).
func (m *Matcher) Due(expr string, ref time.Time) bool {
	due, err := m.g.IsDue(expr, ref.Truncate(time.Minute))
	if err != nil {
		return false
	}
	return due
}

// DueJobs filters jobs to those whose cron_expr matches ref.
func (m *Matcher) DueJobs(jobs []Job, ref time.Time) []Job {
	var due []Job
	for _, j := range jobs {
		if m.Due(j.CronExpr, ref) {
			due = append(due, j)
		}
	}
	return due
}
