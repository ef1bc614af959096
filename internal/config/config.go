package config

import (
	"encoding/hex"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// apiVersionPrefix is appended to the API URL to form the base of every
// request path.
const apiVersionPrefix = "/api/v1"

// stateKeyLen is the required length in bytes of BIZDESK_STATE_KEY
// after hex decoding.
const stateKeyLen = 32

// Config holds all environment-based configuration for bizdesk.
type Config struct {
	// Root URL of the business API, without the version segment.
	APIURL string `env:"BIZDESK_API_URL" envDefault:"http://localhost:8000"`

	// Fixed transport timeout applied to every request, including the
	// refresh call.
	Timeout time.Duration `env:"BIZDESK_TIMEOUT" envDefault:"30s"`

	// Location of the token database. Defaults to ~/.bizdesk/state.db.
	StatePath string `env:"BIZDESK_STATE_PATH"`

	// Optional hex-encoded 32-byte key. When set, stored tokens are
	// sealed at rest.
	StateKey string `env:"BIZDESK_STATE_KEY"`

	// Optional YAML route table overriding the embedded default.
	RoutesFile string `env:"BIZDESK_ROUTES_FILE"`

	// Coalesce concurrent refresh calls into one. Off by default: every
	// request that sees a 401 refreshes on its own.
	CoalesceRefresh bool `env:"BIZDESK_COALESCE_REFRESH" envDefault:"false"`

	// Environment controls log format
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing the state key to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if cfg.StatePath == "" {
		p, err := DefaultStatePath()
		if err != nil {
			return nil, err
		}

		cfg.StatePath = p
	}

	return cfg, nil
}

func (c *Config) validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("BIZDESK_API_URL must be an absolute URL, got %q", c.APIURL)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("BIZDESK_API_URL must use http or https, got %q", u.Scheme)
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("BIZDESK_TIMEOUT must be positive")
	}

	if _, err := c.StateKeyBytes(); err != nil {
		return err
	}

	return nil
}

// APIBase returns the base URL every request path is appended to.
func (c *Config) APIBase() string {
	return c.APIURL + apiVersionPrefix
}

// Origin returns scheme://host[:port] of the API. Stored tokens are
// scoped to it.
func (c *Config) Origin() string {
	u, err := url.Parse(c.APIURL)
	if err != nil {
		return c.APIURL
	}

	return u.Scheme + "://" + u.Host
}

// StateKeyBytes decodes BIZDESK_STATE_KEY. It returns nil when no key is
// configured.
func (c *Config) StateKeyBytes() ([]byte, error) {
	if c.StateKey == "" {
		return nil, nil
	}

	key, err := hex.DecodeString(c.StateKey)
	if err != nil {
		return nil, fmt.Errorf("BIZDESK_STATE_KEY must be hex encoded")
	}

	if len(key) != stateKeyLen {
		return nil, fmt.Errorf("BIZDESK_STATE_KEY must decode to %d bytes, got %d", stateKeyLen, len(key))
	}

	return key, nil
}

// DefaultStatePath returns ~/.bizdesk/state.db.
func DefaultStatePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, ".bizdesk", "state.db"), nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
