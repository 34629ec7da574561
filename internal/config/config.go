package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.warelay/config.toml.
type Config struct {
	DefaultSession string    `toml:"default_session"`
	Server         Server    `toml:"server"`
	Cache          Cache     `toml:"cache"`
	Scheduler      Scheduler `toml:"scheduler"`
	AI             AI        `toml:"ai"`
}

// Server configures the HTTP/websocket boundary.
type Server struct {
	ListenAddr string `toml:"listen_addr"`
}

// Cache holds the freshness windows, in seconds. These are configuration,
// not code: the read path asks the cache with whatever window is set here.
type Cache struct {
	ChatsTTLSecs    int `toml:"chats_ttl_secs"`
	ContactsTTLSecs int `toml:"contacts_ttl_secs"`
	MessagesTTLSecs int `toml:"messages_ttl_secs"`
}

// Scheduler configures the deferred-send sweep.
type Scheduler struct {
	SweepIntervalSecs int `toml:"sweep_interval_secs"`
}

// AI configures the generative-text collaborator.
type AI struct {
	APIKey    string `toml:"api_key"`
	BaseURL   string `toml:"base_url"`
	Model     string `toml:"model"`
	AutoReply bool   `toml:"auto_reply"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server:    Server{ListenAddr: ":3000"},
		Cache:     Cache{ChatsTTLSecs: 120, ContactsTTLSecs: 300, MessagesTTLSecs: 60},
		Scheduler: Scheduler{SweepIntervalSecs: 60},
		AI:        AI{Model: "gpt-4o-mini"},
	}
}

// Load reads config from the given path, layering it over the defaults.
// A missing file is not an error; the defaults are returned as-is.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// ChatsTTL returns the chats freshness window.
func (c *Cache) ChatsTTL() time.Duration { return secs(c.ChatsTTLSecs, 120) }

// ContactsTTL returns the contacts freshness window.
func (c *Cache) ContactsTTL() time.Duration { return secs(c.ContactsTTLSecs, 300) }

// MessagesTTL returns the per-chat message history freshness window.
func (c *Cache) MessagesTTL() time.Duration { return secs(c.MessagesTTLSecs, 60) }

// SweepInterval returns the scheduler sweep period. Due entries may be
// dispatched up to one interval late; that bound is part of the contract.
func (s *Scheduler) SweepInterval() time.Duration { return secs(s.SweepIntervalSecs, 60) }

func secs(n, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * time.Second
}
