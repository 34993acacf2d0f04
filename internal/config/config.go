package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Backend names accepted in Config.Backend.
const (
	BackendSupabase = "supabase"
	BackendLocal    = "local"
)

// Config represents the global ~/.detox/config.toml.
type Config struct {
	DefaultSession string          `toml:"default_session"`
	Backend        string          `toml:"backend"`
	UserID         string          `toml:"user_id"`
	Supabase       SupabaseConfig  `toml:"supabase"`
	HTTP           HTTPConfig      `toml:"http"`
	Calls          CallConfig      `toml:"calls"`
	Assistant      AssistantConfig `toml:"assistant"`
}

// SupabaseConfig points the daemon at a hosted project.
type SupabaseConfig struct {
	URL         string `toml:"url"`
	AnonKey     string `toml:"anon_key"`
	AccessToken string `toml:"access_token"`
	// SendClientID adds client_id to inserted rows. Only enable it when the
	// messages table has that column.
	SendClientID bool `toml:"send_client_id"`
	// Heartbeat is the realtime keepalive interval.
	Heartbeat Duration `toml:"heartbeat"`
}

// HTTPConfig controls the app-facing HTTP API and push channel.
type HTTPConfig struct {
	Addr        string   `toml:"addr"`
	CORSOrigins []string `toml:"cors_origins"`
}

// CallConfig bounds every call to the external backend.
type CallConfig struct {
	Timeout        Duration `toml:"timeout"`
	Retries        int      `toml:"retries"`
	Backoff        Duration `toml:"backoff"`
	MatchTolerance Duration `toml:"match_tolerance"`
	ProbeInterval  Duration `toml:"probe_interval"`
}

// AssistantConfig configures the chat assistant proxy.
type AssistantConfig struct {
	APIKey  string   `toml:"api_key"`
	Model   string   `toml:"model"`
	Timeout Duration `toml:"timeout"`
}

// Duration is a time.Duration that reads and writes as "10s" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		DefaultSession: "main",
		Backend:        BackendSupabase,
		Supabase: SupabaseConfig{
			Heartbeat: Duration{25 * time.Second},
		},
		HTTP: HTTPConfig{
			Addr:        "127.0.0.1:5000",
			CORSOrigins: []string{"http://localhost:5173", "http://localhost:3000"},
		},
		Calls: CallConfig{
			Timeout:        Duration{10 * time.Second},
			Retries:        2,
			Backoff:        Duration{200 * time.Millisecond},
			MatchTolerance: Duration{2 * time.Minute},
			ProbeInterval:  Duration{30 * time.Second},
		},
		Assistant: AssistantConfig{
			Model:   "gemini-2.5-flash",
			Timeout: Duration{30 * time.Second},
		},
	}
}

// Load reads config from the given path on top of Default. Returns error if file missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields Default.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
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

// ApplyEnv loads the given .env files (missing ones are skipped) and lets the
// process environment override secrets and addresses.
func (c *Config) ApplyEnv(envFiles ...string) error {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	setString(&c.Supabase.URL, "SUPABASE_URL")
	setString(&c.Supabase.AnonKey, "SUPABASE_ANON_KEY")
	setString(&c.Supabase.AccessToken, "SUPABASE_ACCESS_TOKEN")
	setString(&c.Backend, "DETOX_BACKEND")
	setString(&c.UserID, "DETOX_USER_ID")
	setString(&c.HTTP.Addr, "DETOX_HTTP_ADDR")
	setString(&c.Assistant.APIKey, "GEMINI_API_KEY")
	setString(&c.Assistant.Model, "DETOX_ASSISTANT_MODEL")

	if v := os.Getenv("DETOX_SEND_CLIENT_ID"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		c.Supabase.SendClientID = b
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.HTTP.CORSOrigins = origins
	}
	return nil
}

// Validate checks the fields the daemon cannot start without.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendLocal:
	case BackendSupabase:
		if c.Supabase.URL == "" || c.Supabase.AnonKey == "" {
			return errors.New("supabase backend requires supabase.url and supabase.anon_key")
		}
	default:
		return errors.New("backend must be \"supabase\" or \"local\"")
	}
	if c.Calls.Timeout.Duration <= 0 {
		return errors.New("calls.timeout must be positive")
	}
	if c.Calls.Retries < 0 {
		return errors.New("calls.retries must not be negative")
	}
	if c.Supabase.Heartbeat.Duration < 0 {
		return errors.New("supabase.heartbeat must not be negative")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
