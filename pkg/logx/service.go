package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

var (
	globalsOnce sync.Once
	stdout      io.Writer = os.Stdout
	stderr      io.Writer = os.Stderr
)

func setGlobals() {
	globalsOnce.Do(func() {
		zerolog.TimeFieldFormat = consoleTimeFormat
		zerolog.ErrorFieldName = "err"
	})
}

// Service owns the sinks. Apply rebuilds the root logger in place; every
// Logger derived from the Service picks the change up on its next event.
type Service struct {
	mu       sync.Mutex
	cfg      Config
	root     atomic.Pointer[zerolog.Logger]
	file     *os.File
	filePath string
}

func New(cfg Config) (*Service, Logger) {
	setGlobals()
	s := &Service{}
	nop := zerolog.Nop()
	s.root.Store(&nop)
	s.Apply(cfg)
	return s, s.Logger()
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

func (s *Service) current() zerolog.Logger {
	if p := s.root.Load(); p != nil {
		return *p
	}
	return zerolog.Nop()
}

// Apply swaps level and sinks. The log file stays open when its path did
// not change, so a reload never truncates or loses buffered lines.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg

	var sinks []io.Writer
	if cfg.Console {
		sinks = append(sinks, consoleSink(cfg.Format))
	}

	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = defaultFilePath
		}
		if err := s.openFile(path); err != nil {
			fmt.Fprintf(stderr, "logx: %v\n", err)
		}
	} else {
		s.closeFile()
	}
	if s.file != nil {
		sinks = append(sinks, zerolog.SyncWriter(s.file))
	}

	var out io.Writer = io.Discard
	switch len(sinks) {
	case 0:
	case 1:
		out = sinks[0]
	default:
		out = zerolog.MultiLevelWriter(sinks...)
	}
	zl := zerolog.New(out).Level(levelOr(cfg.Level, zerolog.InfoLevel)).With().Timestamp().Logger()
	s.root.Store(&zl)
}

func (s *Service) openFile(path string) error {
	if s.file != nil && s.filePath == path {
		return nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	s.closeFile()
	s.file, s.filePath = f, path
	return nil
}

func (s *Service) closeFile() {
	if s.file != nil {
		_ = s.file.Close()
	}
	s.file, s.filePath = nil, ""
}

// Close detaches every sink. Loggers keep working but write nowhere.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	nop := zerolog.Nop()
	s.root.Store(&nop)
	var err error
	if s.file != nil {
		err = s.file.Close()
	}
	s.file, s.filePath = nil, ""
	return err
}

func consoleSink(format string) io.Writer {
	if strings.EqualFold(strings.TrimSpace(format), FormatJSON) {
		return stdout
	}
	return zerolog.ConsoleWriter{Out: stdout, TimeFormat: consoleTimeFormat}
}
