// Package cron implements the Cron job module: a YAML manifest of scheduled
// prompts, reload-on-mtime-change, per-minute expression matching, and the
// pending-queue/per-hour-cap bookkeeping the Concurrency Coordinator
// consults before firing a job into a busy session.
package cron

// Job is one entry of the cron manifest: {name, cron_expr, prompt, enabled,
// notify}, per spec.md §4 "Cron job".
type Job struct {
	Name     string `yaml:"name"`
	CronExpr string `yaml:"cron_expr"`
	Prompt   string `yaml:"prompt"`
	Enabled  bool   `yaml:"enabled"`
	Notify   bool   `yaml:"notify"`
}

// Manifest is the top-level shape of working_dir/cron.yaml.
type Manifest struct {
	Jobs []Job `yaml:"jobs"`
}
