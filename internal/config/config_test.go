package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.ListenAddr != ":3000" {
		t.Errorf("listen_addr = %q, want :3000", cfg.Server.ListenAddr)
	}
	if cfg.Cache.ChatsTTL() != 2*time.Minute {
		t.Errorf("chats ttl = %v, want 2m", cfg.Cache.ChatsTTL())
	}
	if cfg.Cache.ContactsTTL() != 5*time.Minute {
		t.Errorf("contacts ttl = %v, want 5m", cfg.Cache.ContactsTTL())
	}
	if cfg.Cache.MessagesTTL() != time.Minute {
		t.Errorf("messages ttl = %v, want 1m", cfg.Cache.MessagesTTL())
	}
	if cfg.Scheduler.SweepInterval() != time.Minute {
		t.Errorf("sweep = %v, want 1m", cfg.Scheduler.SweepInterval())
	}
}

func TestLoadLayersOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
default_session = "work"

[server]
listen_addr = ":8080"

[cache]
messages_ttl_secs = 30
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DefaultSession != "work" {
		t.Errorf("default_session = %q", cfg.DefaultSession)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Cache.MessagesTTL() != 30*time.Second {
		t.Errorf("messages ttl = %v, want 30s", cfg.Cache.MessagesTTL())
	}
	// Untouched sections keep defaults.
	if cfg.Cache.ChatsTTL() != 2*time.Minute {
		t.Errorf("chats ttl = %v, want default 2m", cfg.Cache.ChatsTTL())
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := Default()
	cfg.DefaultSession = "personal"
	cfg.AI.Model = "gpt-4o"

	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.DefaultSession != "personal" || loaded.AI.Model != "gpt-4o" {
		t.Errorf("round trip lost fields: %+v", loaded)
	}
}
