package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := Default()
	cfg.DefaultSession = "work"
	cfg.Backend = BackendLocal
	cfg.Calls.Timeout = Duration{3 * time.Second}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultSession != "work" {
		t.Errorf("DefaultSession = %q, want %q", loaded.DefaultSession, "work")
	}
	if loaded.Backend != BackendLocal {
		t.Errorf("Backend = %q, want %q", loaded.Backend, BackendLocal)
	}
	if loaded.Calls.Timeout.Duration != 3*time.Second {
		t.Errorf("Calls.Timeout = %v, want 3s", loaded.Calls.Timeout)
	}
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("default_session = \"x\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTP.Addr != Default().HTTP.Addr {
		t.Errorf("HTTP.Addr = %q, want default", cfg.HTTP.Addr)
	}
	if cfg.Calls.Retries != 2 {
		t.Errorf("Calls.Retries = %d, want 2", cfg.Calls.Retries)
	}
}

func TestLoadHeartbeat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[supabase]\nurl = \"https://x\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Supabase.Heartbeat.Duration != 25*time.Second {
		t.Errorf("default Supabase.Heartbeat = %v, want 25s", cfg.Supabase.Heartbeat)
	}

	if err := os.WriteFile(path, []byte("[supabase]\nheartbeat = \"5s\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Supabase.Heartbeat.Duration != 5*time.Second {
		t.Errorf("Supabase.Heartbeat = %v, want 5s", cfg.Supabase.Heartbeat)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
	cfg, err := LoadOrDefault("/nonexistent/config.toml")
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.DefaultSession != "main" {
		t.Errorf("DefaultSession = %q, want main", cfg.DefaultSession)
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, Default()); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(envPath, []byte("SUPABASE_URL=https://example.supabase.co\nSUPABASE_ANON_KEY=anon\n"), 0600); err != nil {
		t.Fatal(err)
	}
	// godotenv never overrides variables that are already set, even if empty.
	for _, k := range []string{"SUPABASE_URL", "SUPABASE_ANON_KEY"} {
		t.Setenv(k, "")
		_ = os.Unsetenv(k)
	}
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("DETOX_SEND_CLIENT_ID", "true")

	cfg := Default()
	if err := cfg.ApplyEnv(envPath, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	if cfg.Supabase.URL != "https://example.supabase.co" {
		t.Errorf("Supabase.URL = %q", cfg.Supabase.URL)
	}
	if cfg.Supabase.AnonKey != "anon" {
		t.Errorf("Supabase.AnonKey = %q", cfg.Supabase.AnonKey)
	}
	if !cfg.Supabase.SendClientID {
		t.Error("Supabase.SendClientID = false, want true")
	}
	if len(cfg.HTTP.CORSOrigins) != 2 || cfg.HTTP.CORSOrigins[1] != "http://b.test" {
		t.Errorf("CORSOrigins = %v", cfg.HTTP.CORSOrigins)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"local ok", func(c *Config) { c.Backend = BackendLocal }, false},
		{"supabase without url", func(c *Config) {}, true},
		{"supabase ok", func(c *Config) { c.Supabase.URL = "https://x"; c.Supabase.AnonKey = "k" }, false},
		{"unknown backend", func(c *Config) { c.Backend = "mongo" }, true},
		{"zero timeout", func(c *Config) { c.Backend = BackendLocal; c.Calls.Timeout = Duration{} }, true},
		{"negative retries", func(c *Config) { c.Backend = BackendLocal; c.Calls.Retries = -1 }, true},
		{"negative heartbeat", func(c *Config) { c.Backend = BackendLocal; c.Supabase.Heartbeat = Duration{-time.Second} }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
