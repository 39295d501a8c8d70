package config

import (
	"reflect"
	"sort"
	"strings"

	"taskloop/internal/observability/diag"
	"taskloop/pkg/logx"
)

// SummarizeChange returns the changed top-level sections and structured
// attrs for logging a reload. Scheduler changes are reported per name.
// Only logging is applied live; diag and scheduler changes are informational.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	var changed []string
	var attrs []logx.Field

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Diag != newCfg.Diag {
		changed = append(changed, "diag")
		attrs = append(attrs,
			logx.Bool("diag.enabled", newCfg.Diag.Enabled),
			logx.String("diag.addr", newCfg.Diag.Addr),
		)
	}

	if names := diffSchedulers(oldCfg.Schedulers, newCfg.Schedulers); len(names) > 0 {
		changed = append(changed, "schedulers")
		attrs = append(attrs, logx.String("schedulers.changed", strings.Join(names, ",")))
	}
	return changed, attrs
}

func diffSchedulers(oldS, newS []SchedulerConfig) []string {
	index := func(in []SchedulerConfig) map[string]SchedulerConfig {
		m := make(map[string]SchedulerConfig, len(in))
		for _, sc := range in {
			m[strings.TrimSpace(sc.Name)] = sc
		}
		return m
	}
	om, nm := index(oldS), index(newS)

	var out []string
	for name, n := range nm {
		if o, ok := om[name]; !ok || !reflect.DeepEqual(o, n) {
			out = append(out, name)
		}
	}
	for name := range om {
		if _, ok := nm[name]; !ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Logx converts the logging section to the logger service config.
func (l LoggingConfig) Logx() logx.Config {
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
	}
}

// Server converts the diag section to the diagnostics server config.
func (d DiagConfig) Server() diag.Config {
	return diag.Config{Enabled: d.Enabled, Addr: d.Addr, Token: d.Token, AllowInsecure: d.AllowInsecure}
}
