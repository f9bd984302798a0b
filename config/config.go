// Package config loads run settings from a YAML file, then .env and the
// process environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Angabebr/elc-autofill/entries"
)

const (
	DefaultPath = "autofill.yaml"

	DriverChromedp = "chromedp"
	DriverRod      = "rod"
)

var ErrNoEntries = errors.New("no entries configured")

type Config struct {
	URL             string        `yaml:"url"`
	Driver          string        `yaml:"driver"`
	Headless        bool          `yaml:"headless"`
	UserDataDir     string        `yaml:"user_data_dir"`
	RemoteURL       string        `yaml:"remote_url"`
	KeepBrowserOpen bool          `yaml:"keep_browser_open"`
	Wait            bool          `yaml:"wait"`
	Timeout         time.Duration `yaml:"timeout"`

	ClickPrefix  string `yaml:"click_prefix"`
	SelectPrefix string `yaml:"select_prefix"`

	// Entries is an inline id,label block. EntriesFile wins when both are set.
	Entries     string `yaml:"entries"`
	EntriesFile string `yaml:"entries_file"`

	OpenAI OpenAIConfig `yaml:"openai"`
}

type OpenAIConfig struct {
	APIKey string `yaml:"-"`
	Model  string `yaml:"model"`
}

func Default() Config {
	return Config{
		Driver:       DriverChromedp,
		UserDataDir:  "./browser_data",
		Timeout:      15 * time.Second,
		ClickPrefix:  entries.DefaultClickPrefix,
		SelectPrefix: entries.DefaultSelectPrefix,
	}
}

// Load reads path on top of the defaults. A missing file is only an error
// when required is set. Environment overrides are applied last.
func Load(path string, required bool) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if cfg.EntriesFile != "" && !filepath.IsAbs(cfg.EntriesFile) {
			cfg.EntriesFile = filepath.Join(filepath.Dir(path), cfg.EntriesFile)
		}
	case errors.Is(err, os.ErrNotExist) && !required:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg.applyEnvOverrides()
	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("AUTOFILL_URL"); v != "" {
		c.URL = v
	}
	if v := os.Getenv("AUTOFILL_DRIVER"); v != "" {
		c.Driver = v
	}
	if v := os.Getenv("BROWSER_USER_DATA_DIR"); v != "" {
		c.UserDataDir = v
	}
	if v := os.Getenv("BROWSER_REMOTE_URL"); v != "" {
		c.RemoteURL = v
	}
	if v := os.Getenv("KEEP_BROWSER_OPEN"); v != "" {
		c.KeepBrowserOpen = v == "true"
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.OpenAI.APIKey = v
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		c.OpenAI.Model = v
	}
}

func (c *Config) Validate() error {
	switch c.Driver {
	case DriverChromedp, DriverRod:
	default:
		return fmt.Errorf("unknown driver %q (want %s or %s)", c.Driver, DriverChromedp, DriverRod)
	}
	if strings.TrimSpace(c.ClickPrefix) == "" || strings.TrimSpace(c.SelectPrefix) == "" {
		return errors.New("click_prefix and select_prefix must not be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	return nil
}

// LoadEntries returns the configured entry list.
func (c *Config) LoadEntries() ([]entries.Entry, error) {
	var (
		list []entries.Entry
		err  error
	)
	switch {
	case c.EntriesFile != "":
		list, err = entries.Load(c.EntriesFile)
	case strings.TrimSpace(c.Entries) != "":
		list, err = entries.Parse(c.Entries)
	}
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNoEntries
	}
	return list, nil
}

// ResolveUserDataDir makes the profile directory absolute and creates it.
func (c *Config) ResolveUserDataDir() error {
	if c.UserDataDir == "" || c.RemoteURL != "" {
		return nil
	}
	abs, err := filepath.Abs(c.UserDataDir)
	if err != nil {
		return fmt.Errorf("resolve user data dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return fmt.Errorf("create user data dir %s: %w", abs, err)
	}
	c.UserDataDir = abs
	return nil
}
