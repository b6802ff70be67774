package config

import (
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func TestLoadRequiresBotToken(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "BOT_TOKEN") {
		t.Fatalf("expected BOT_TOKEN error, got %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Transport != TransportTelegram || cfg.Store != StoreMemory {
		t.Fatalf("transport=%q store=%q", cfg.Transport, cfg.Store)
	}
	if cfg.MovesPerRow != 4 || cfg.ChallengeTTL != 0 || cfg.PollTimeout != 30*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Log.Level != "info" || !cfg.Log.Console {
		t.Fatalf("unexpected log defaults: %+v", cfg.Log)
	}
	if !cfg.ChatAllowed("anything") {
		t.Fatal("empty allow list should admit every chat")
	}
}

func TestLoadParsesValues(t *testing.T) {
	t.Setenv("BOT_TOKEN", "tok")
	t.Setenv("TRANSPORT", " Relay ")
	t.Setenv("RELAY_WS_URL", "ws://localhost:3000/ws")
	t.Setenv("STORE", "redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("CHALLENGE_TTL", "5m")
	t.Setenv("MOVES_PER_ROW", "6")
	t.Setenv("ALLOWED_CHATS", "-100, -200,")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Transport != TransportRelay || cfg.Store != StoreRedis {
		t.Fatalf("transport=%q store=%q", cfg.Transport, cfg.Store)
	}
	if cfg.ChallengeTTL != 5*time.Minute || cfg.MovesPerRow != 6 {
		t.Fatalf("ttl=%v perRow=%d", cfg.ChallengeTTL, cfg.MovesPerRow)
	}
	if len(cfg.AllowedChats) != 2 || !cfg.ChatAllowed("-200") || cfg.ChatAllowed("-300") {
		t.Fatalf("allowed chats = %q", cfg.AllowedChats)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Fatalf("log = %+v", cfg.Log)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown transport": {"TRANSPORT": "irc"},
		"relay without url": {"TRANSPORT": "relay"},
		"unknown store":     {"STORE": "etcd"},
		"redis without url": {"STORE": "redis"},
		"pg without url":    {"STORE": "postgres"},
		"zero per row":      {"MOVES_PER_ROW": "0"},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("BOT_TOKEN", "tok")
			for k, v := range vars {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestExitfExitsWithCode1(t *testing.T) {
	if os.Getenv("TEST_EXITF_SUBPROCESS") == "1" {
		Exitf("config: %s", "broken")
		return
	}
	cmd := exec.Command(os.Args[0], "-test.run=^TestExitfExitsWithCode1$")
	cmd.Env = append(os.Environ(), "TEST_EXITF_SUBPROCESS=1")
	out, err := cmd.CombinedOutput()
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		t.Fatalf("expected *exec.ExitError, got %T: %v", err, err)
	}
	if exitErr.ExitCode() != 1 || !strings.Contains(string(out), "config: broken") {
		t.Fatalf("code=%d out=%q", exitErr.ExitCode(), out)
	}
}
