package logx

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestServiceKeepsFileAcrossApply(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	cfg := Config{Level: "info", File: FileConfig{Enabled: true, Path: path}}

	svc, log := New(cfg)
	defer svc.Close()
	log.Info("first")
	before := svc.file

	cfg.Level = "debug"
	svc.Apply(cfg)
	if svc.file != before {
		t.Fatal("file reopened although path did not change")
	}
	log.Debug("second")

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %s", len(lines), raw)
	}
	var last map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &last); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if last["message"] != "second" || last["level"] != "debug" {
		t.Fatalf("unexpected line: %v", last)
	}
	if c, _ := last["caller"].(string); !strings.HasPrefix(c, "service_test.go:") {
		t.Fatalf("caller = %q", c)
	}
}

func TestServiceDisableFileCloses(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "app.log")
	svc, _ := New(Config{File: FileConfig{Enabled: true, Path: path}})
	if svc.file == nil {
		t.Fatal("file sink not opened")
	}
	svc.Apply(Config{})
	if svc.file != nil {
		t.Fatal("file sink still open after disable")
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestServiceJSONConsole(t *testing.T) {
	var buf bytes.Buffer
	old := stdout
	stdout = &buf
	defer func() { stdout = old }()

	svc, log := New(Config{Level: "warn", Console: true, Format: FormatJSON})
	defer svc.Close()
	log.Info("filtered")
	log.With(String("comp", "runner")).Warn("slow")

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("expected one JSON line, got %q: %v", buf.String(), err)
	}
	if line["comp"] != "runner" || line["message"] != "slow" {
		t.Fatalf("unexpected line: %v", line)
	}
}

func TestClosedServiceDiscards(t *testing.T) {
	var buf bytes.Buffer
	old := stdout
	stdout = &buf
	defer func() { stdout = old }()

	svc, log := New(Config{Console: true, Format: FormatJSON})
	_ = svc.Close()
	log.Error("after close")
	if buf.Len() != 0 {
		t.Fatalf("wrote after close: %q", buf.String())
	}
	if log.Enabled(LevelError) {
		t.Fatal("closed logger reports enabled")
	}
}
