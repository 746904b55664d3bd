package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/kalambet/frontdesk/internal/config"
	"github.com/kalambet/frontdesk/internal/ledger"
	"github.com/kalambet/frontdesk/internal/notify"
	"github.com/kalambet/frontdesk/internal/speech"
	"github.com/kalambet/frontdesk/internal/storage"
)

func TestPIDFile(t *testing.T) {
	path := pidFilePath(filepath.Join(t.TempDir(), "data"))
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	pid, err := readPIDFile(path)
	if err != nil {
		t.Fatalf("readPIDFile: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("pid = %d, want %d", pid, os.Getpid())
	}
	removePIDFile(path)
	if _, err := readPIDFile(path); err == nil {
		t.Error("PID file not removed")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestOpenStore(t *testing.T) {
	dir := t.TempDir()

	s, closeFn, err := openStore(ctx, config.StorageConfig{DataDir: dir, Backend: "json"})
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	if _, ok := s.(*ledger.JSONFileStore); !ok {
		t.Errorf("json backend = %T", s)
	}
	closeFn()

	s, closeFn, err = openStore(ctx, config.StorageConfig{DataDir: dir, Backend: "sqlite"})
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	defer closeFn()
	if _, ok := s.(*storage.Store); !ok {
		t.Errorf("sqlite backend = %T", s)
	}
}

func TestBuildSynthesizer(t *testing.T) {
	if _, ok := buildSynthesizer(config.SpeechConfig{Provider: "none"}).(speech.Nop); !ok {
		t.Error("none should build Nop")
	}
	if _, ok := buildSynthesizer(config.SpeechConfig{Provider: "command"}).(*speech.CommandSynthesizer); !ok {
		t.Error("command should build CommandSynthesizer")
	}
	if _, ok := buildSynthesizer(config.SpeechConfig{Provider: "http"}).(*speech.HTTPSynthesizer); !ok {
		t.Error("http should build HTTPSynthesizer")
	}
}

func TestBuildNotifier(t *testing.T) {
	n, closeFn := buildNotifier(config.NotifyConfig{})
	if m, ok := n.(notify.Multi); !ok || len(m) != 1 {
		t.Errorf("default notifier = %#v, want log only", n)
	}
	closeFn()

	n, closeFn = buildNotifier(config.NotifyConfig{
		WebhookURL:   "http://127.0.0.1:1/hook",
		RedisAddr:    "127.0.0.1:1",
		RedisChannel: "test",
	})
	defer closeFn()
	m := n.(notify.Multi)
	if len(m) != 3 {
		t.Fatalf("notifiers = %d, want 3", len(m))
	}
	if _, ok := m[1].(*notify.WebhookNotifier); !ok {
		t.Errorf("m[1] = %T", m[1])
	}
	if _, ok := m[2].(*notify.RedisNotifier); !ok {
		t.Errorf("m[2] = %T", m[2])
	}
}
