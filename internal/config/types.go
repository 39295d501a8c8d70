package config

// Config is the root of a taskloop config file (YAML or JSON).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging    LoggingConfig     `json:"logging"`
	Diag       DiagConfig        `json:"diag"`
	Schedulers []SchedulerConfig `json:"schedulers"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// DiagConfig enables the diagnostics HTTP server (scheduler snapshots and
// pprof). addr defaults to 127.0.0.1:6060; a non-loopback addr needs token
// or allow_insecure.
type DiagConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
}

// Engine names accepted in SchedulerConfig.Engine.
const (
	EngineEventLoop = "eventloop"
	EngineAsync     = "async"
)

// SchedulerConfig declares one engine instance and the jobs seeded onto it.
//
// Defaults (when fields are omitted/zero):
//   - engine: eventloop
//   - late_threshold: "1s" ("0s" keeps the default; there is no way to disable it here)
type SchedulerConfig struct {
	Name          string      `json:"name"`
	Engine        string      `json:"engine,omitempty"`
	LateThreshold string      `json:"late_threshold,omitempty"`
	Jobs          []JobConfig `json:"jobs"`
}

// Job kinds accepted in JobConfig.Kind.
const (
	JobCountdown = "countdown"
	JobCron      = "cron"
	JobInterval  = "interval"
)

// JobConfig is a self-resubmitting job.
//
//   - countdown: ticks count..0 every `every`, then stops its scheduler.
//   - cron: fires on `spec` (5/6 fields or a descriptor).
//   - interval: fires every `every`; `spread` delays the first firing by a
//     random jitter.
//
// limit caps the number of firings of cron and interval jobs (0: unlimited).
type JobConfig struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Count  int    `json:"count,omitempty"`
	Every  string `json:"every,omitempty"`
	Spec   string `json:"spec,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Spread bool   `json:"spread,omitempty"`
}

// EngineOrDefault returns the configured engine, defaulting to eventloop.
func (s SchedulerConfig) EngineOrDefault() string {
	if s.Engine == "" {
		return EngineEventLoop
	}
	return s.Engine
}
