package logx

import (
	"strings"

	"github.com/rs/zerolog"
)

type Config struct {
	Level string
	// Console writes to stdout. Format selects "console" (human readable,
	// the default) or "json" for collectors such as journald or docker.
	Console bool
	Format  string
	File    FileConfig
}

// FileConfig appends JSON lines to Path.
type FileConfig struct {
	Enabled bool
	Path    string
}

const (
	FormatConsole = "console"
	FormatJSON    = "json"

	defaultFilePath   = "./crosspost.log"
	consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"
)

type Level = zerolog.Level

const (
	LevelTrace = zerolog.TraceLevel
	LevelDebug = zerolog.DebugLevel
	LevelInfo  = zerolog.InfoLevel
	LevelWarn  = zerolog.WarnLevel
	LevelError = zerolog.ErrorLevel
)

// ParseLevel reports whether s names a known level.
func ParseLevel(s string) (Level, bool) {
	lvl := levelOr(s, zerolog.NoLevel)
	return lvl, lvl != zerolog.NoLevel
}

func levelOr(s string, def zerolog.Level) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	}
	return def
}
