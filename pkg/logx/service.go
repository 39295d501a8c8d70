package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

const defaultFilePath = "./taskloop.log"

type Config struct {
	Level   string
	Console bool
	File    FileConfig

	// Out replaces stdout as the console sink; nil means stdout.
	Out io.Writer
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// Service owns the process sinks. Loggers derived from it pick up every
// Apply without being rebuilt.
type Service struct {
	mu   sync.Mutex
	cfg  Config
	file *os.File

	root atomic.Pointer[zerolog.Logger]
}

// New creates the logging service with cfg applied and returns it with a
// root Logger. A log file that cannot be opened is reported on the root
// logger; console output continues.
func New(cfg Config) (*Service, Logger) {
	s := &Service{}
	l := Logger{svc: s}
	if err := s.Apply(cfg); err != nil {
		l.Warn("log file unavailable; continuing on console", Err(err))
	}
	return s, l
}

func (s *Service) current() zerolog.Logger {
	if zl := s.root.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

// Config returns the last applied config.
func (s *Service) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *Service) Close() error {
	s.mu.Lock()
	f := s.file
	s.file = nil
	s.mu.Unlock()

	if f != nil {
		return f.Close()
	}
	return nil
}

// Apply swaps sinks and level at runtime. It is safe to call concurrently.
// If the file sink fails to open the rest of cfg still applies and the
// error is returned.
func (s *Service) Apply(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg = cfg
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	console := cfg.Out
	if console == nil {
		console = Stdout()
	}

	var (
		writers []io.Writer
		openErr error
	)
	if cfg.Console {
		writers = append(writers, newConsoleWriter(console))
	}
	if cfg.File.Enabled {
		f, err := openLogFile(cfg.File.Path)
		if err != nil {
			openErr = err
		} else {
			s.file = f
			writers = append(writers, zerolog.SyncWriter(f))
		}
	}
	// Never go silent: with no usable sink fall back to the console.
	if len(writers) == 0 {
		writers = append(writers, newConsoleWriter(console))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(ParseLevel(cfg.Level)).With().Timestamp().Logger()
	s.root.Store(&zl)
	return openErr
}

func openLogFile(path string) (*os.File, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = defaultFilePath
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logx: open %q: %w", path, err)
	}
	return f, nil
}

// Stdout returns the default console sink.
func Stdout() io.Writer { return os.Stdout }
