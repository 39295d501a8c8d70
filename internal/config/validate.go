package config

import (
	"errors"
	"fmt"
	"strings"

	"taskloop/internal/observability/diag"
	"taskloop/pkg/logx"
	"taskloop/pkg/sched/recurring"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Validate checks cfg and returns every problem found, each prefixed by its
// field path (e.g. "schedulers[0].jobs[1].every").
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalid)
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if lvl := strings.TrimSpace(cfg.Logging.Level); lvl != "" {
		if _, ok := logx.LookupLevel(lvl); !ok {
			add(fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level))
		}
	}

	if d := cfg.Diag; d.Enabled {
		addr := strings.TrimSpace(d.Addr)
		if addr == "" {
			addr = diag.DefaultAddr
		}
		if err := diag.CheckBind(addr, d.Token, d.AllowInsecure); err != nil {
			add(fmt.Errorf("diag.addr: %w", err))
		}
	}

	seen := map[string]bool{}
	for i, sc := range cfg.Schedulers {
		path := fmt.Sprintf("schedulers[%d]", i)
		name := strings.TrimSpace(sc.Name)
		switch {
		case name == "":
			add(fmt.Errorf("%s.name: required", path))
		case seen[name]:
			add(fmt.Errorf("%s.name: duplicate scheduler %q", path, name))
		}
		seen[name] = true

		switch sc.EngineOrDefault() {
		case EngineEventLoop, EngineAsync:
		default:
			add(fmt.Errorf("%s.engine: unknown engine %q", path, sc.Engine))
		}
		_, err := ParseDuration(path+".late_threshold", sc.LateThreshold)
		add(err)

		jobs := map[string]bool{}
		for j, jc := range sc.Jobs {
			jpath := fmt.Sprintf("%s.jobs[%d]", path, j)
			jname := strings.TrimSpace(jc.Name)
			switch {
			case jname == "":
				add(fmt.Errorf("%s.name: required", jpath))
			case jobs[jname]:
				add(fmt.Errorf("%s.name: duplicate job %q", jpath, jname))
			}
			jobs[jname] = true
			for _, err := range validateJob(jpath, jc) {
				add(err)
			}
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

func validateJob(path string, jc JobConfig) []error {
	var errs []error
	if jc.Limit < 0 {
		errs = append(errs, fmt.Errorf("%s.limit: must be >= 0", path))
	}
	switch jc.Kind {
	case JobCountdown:
		if jc.Count < 0 {
			errs = append(errs, fmt.Errorf("%s.count: must be >= 0", path))
		}
		if _, err := ParseDuration(path+".every", jc.Every); err != nil {
			errs = append(errs, err)
		}
	case JobInterval:
		if _, err := ParsePositiveDuration(path+".every", jc.Every); err != nil {
			errs = append(errs, err)
		}
	case JobCron:
		if strings.TrimSpace(jc.Spec) == "" {
			errs = append(errs, fmt.Errorf("%s.spec: required", path))
		} else if _, err := recurring.ParseCron(jc.Spec); err != nil {
			errs = append(errs, fmt.Errorf("%s.spec: %w", path, err))
		}
	default:
		errs = append(errs, fmt.Errorf("%s.kind: unknown kind %q", path, jc.Kind))
	}
	return errs
}
