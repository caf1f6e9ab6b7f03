package alert

import (
	"context"
	"time"
)

// Sender delivers one alert text. The Telegram poster implements it.
type Sender interface {
	SendText(ctx context.Context, text string) error
}

type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

func (l Level) prefix() string {
	switch l {
	case LevelError:
		return "🚨 "
	case LevelWarn:
		return "⚠️ "
	default:
		return "ℹ️ "
	}
}

type Alert struct {
	Level Level
	Text  string
	// Key identifies repeats of the same condition for dedup. Empty
	// derives it from Level and Text.
	Key string
}

// Config controls the pipeline.
type Config struct {
	Enabled bool
	// OnUnposted also alerts when articles reached no destination, not
	// only when a run failed outright.
	OnUnposted bool

	QueueSize       int
	RatePerSec      float64
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 1
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 10 * time.Second
	}
	if c.DedupWindow < 0 {
		c.DedupWindow = 0
	}
	if c.DedupMaxEntries <= 0 {
		c.DedupMaxEntries = 500
	}
	return c
}

type HistoryItem struct {
	At   time.Time `json:"at"`
	Text string    `json:"text"`
	Err  string    `json:"error,omitempty"`
}
