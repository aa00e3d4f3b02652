package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/dmitrijs2005/scanvault/internal/filex"
)

const (
	// DirName is created under the user's home directory.
	DirName  = ".scanvault"
	FileName = "config.toml"

	// ConfigEnvVar overrides the config file location.
	ConfigEnvVar = "SCANVAULT_CLIENT_CONFIG"
)

// Config holds runtime settings for the outbox CLI.
type Config struct {
	ServerURL     string        `toml:"server_url"`
	OutboxDir     string        `toml:"outbox_dir"`
	LibraryPath   string        `toml:"library_path"`
	TokenPath     string        `toml:"token_path"`
	DrainInterval time.Duration `toml:"drain_interval"`
	Poll          PollConfig    `toml:"poll"`
}

// PollConfig bounds the status poller.
type PollConfig struct {
	MaxAttempts int           `toml:"max_attempts"`
	Interval    time.Duration `toml:"interval"`
}

// Defaults returns a Config with every path under baseDir.
func Defaults(baseDir string) *Config {
	return &Config{
		ServerURL:     "http://127.0.0.1:8080",
		OutboxDir:     filepath.Join(baseDir, "outbox"),
		LibraryPath:   filepath.Join(baseDir, "library.db"),
		TokenPath:     filepath.Join(baseDir, "token"),
		DrainInterval: 5 * time.Second,
		Poll: PollConfig{
			MaxAttempts: 20,
			Interval:    3 * time.Second,
		},
	}
}

// DefaultBaseDir is ~/.scanvault.
func DefaultBaseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	return filepath.Join(home, DirName), nil
}

// DefaultPath resolves the config file: SCANVAULT_CLIENT_CONFIG if set,
// otherwise ~/.scanvault/config.toml.
func DefaultPath() (string, error) {
	if p := os.Getenv(ConfigEnvVar); p != "" {
		return p, nil
	}
	base, err := DefaultBaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, FileName), nil
}

// Load overlays the TOML file at path onto defaults rooted next to it.
func Load(path string) (*Config, error) {
	cfg := Defaults(filepath.Dir(path))

	md, err := toml.DecodeFile(path, cfg)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("reading config from %s: unknown keys %s", path, strings.Join(keys, ", "))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path atomically, creating the directory if needed.
func Save(path string, cfg *Config) error {
	if _, err := filex.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return filex.WriteFileAtomic(path, buf.Bytes(), 0o600)
}

func (c *Config) Validate() error {
	switch {
	case c.ServerURL == "":
		return errors.New("server_url is required")
	case c.OutboxDir == "":
		return errors.New("outbox_dir is required")
	case c.Poll.MaxAttempts <= 0:
		return errors.New("poll.max_attempts must be positive")
	case c.Poll.Interval < 0 || c.DrainInterval < 0:
		return errors.New("intervals must not be negative")
	}
	return nil
}
