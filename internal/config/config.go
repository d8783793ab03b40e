package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/maax3v3/colormix/internal/analysis"
	"github.com/maax3v3/colormix/internal/imaging"
)

// Config holds runtime configuration for the server and the CLI.
// Fields may be loaded from a JSON file and overridden by command-line flags.
type Config struct {
	Addr           string `json:"addr"`
	DataDir        string `json:"data_dir"` // empty keeps history in memory
	Model          string `json:"model"`
	Language       string `json:"language"` // response language of the model
	ContainerWidth int    `json:"container_width"`
	LogLevel       string `json:"log_level"`

	// APIKey is never written to disk.
	APIKey string `json:"-"`
}

// DefaultConfig returns a Config populated with standard defaults.
func DefaultConfig() *Config {
	return &Config{
		Addr:           ":8080",
		DataDir:        "data",
		Model:          analysis.DefaultModel,
		Language:       analysis.DefaultLanguage,
		ContainerWidth: imaging.DefaultContainerWidth,
		LogLevel:       "info",
	}
}

// Validate normalizes values to safe ranges. It only fails on a log level
// it cannot interpret.
func (c *Config) Validate() error {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.Model == "" {
		c.Model = analysis.DefaultModel
	}
	if c.Language == "" {
		c.Language = analysis.DefaultLanguage
	}
	if c.ContainerWidth <= 0 {
		c.ContainerWidth = imaging.DefaultContainerWidth
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Level returns the configured log level, info when it is invalid.
func (c *Config) Level() slog.Level {
	l, err := ParseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

// ParseLevel maps debug, info, warn and error onto slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(strings.TrimSpace(s)))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return l, nil
}

// LoadAPIKey reads the model API key from GEMINI_API_KEY, falling back to
// API_KEY.
func (c *Config) LoadAPIKey() {
	if c.APIKey != "" {
		return
	}
	if k := os.Getenv("GEMINI_API_KEY"); k != "" {
		c.APIKey = k
		return
	}
	c.APIKey = os.Getenv("API_KEY")
}

// Load attempts to read configuration from the given JSON file path. If the
// file does not exist it returns DefaultConfig(). On JSON error it returns
// defaults with the error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	if err := dec.Decode(cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("decoding config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes the configuration to the given path in JSON format.
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}
