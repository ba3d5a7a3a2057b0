package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned by Validate
var ErrInvalidConfig = errors.New("invalid configuration")

// Config represents the hookrelay configuration
type Config struct {
	Host              string  `json:"host,omitempty" yaml:"host,omitempty"`
	Port              int     `json:"port,omitempty" yaml:"port,omitempty"`
	Workers           int     `json:"workers,omitempty" yaml:"workers,omitempty"` // 0 keeps GOMAXPROCS
	TTL               string  `json:"ttl,omitempty" yaml:"ttl,omitempty"`         // duration ("15m") or milliseconds ("900000")
	Capacity          int     `json:"capacity,omitempty" yaml:"capacity,omitempty"`
	MaxBodyBytes      int64   `json:"maxBodyBytes,omitempty" yaml:"maxBodyBytes,omitempty"`
	TrustProxyHeaders *bool   `json:"trustProxyHeaders,omitempty" yaml:"trustProxyHeaders,omitempty"`
	RateLimit         float64 `json:"rateLimit,omitempty" yaml:"rateLimit,omitempty"` // pushes per second per client, 0 disables
	RateBurst         int     `json:"rateBurst,omitempty" yaml:"rateBurst,omitempty"`
	LogLevel          string  `json:"logLevel,omitempty" yaml:"logLevel,omitempty"`
	LogFormat         string  `json:"logFormat,omitempty" yaml:"logFormat,omitempty"`
	NoColor           *bool   `json:"noColor,omitempty" yaml:"noColor,omitempty"`
	Journal           string  `json:"journal,omitempty" yaml:"journal,omitempty"` // SQLite path, empty disables
}

// BoolPtr returns a pointer to b
func BoolPtr(b bool) *bool {
	return &b
}

func getBool(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

// GetTrustProxyHeaders returns the trust proxy setting, defaulting to false
func (c *Config) GetTrustProxyHeaders() bool {
	return getBool(c.TrustProxyHeaders, false)
}

// GetNoColor returns the no color setting, defaulting to false
func (c *Config) GetNoColor() bool {
	return getBool(c.NoColor, false)
}

// Addr returns host:port for the listener
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// TTLDuration parses the TTL setting
func (c *Config) TTLDuration() (time.Duration, error) {
	return ParseTTL(c.TTL)
}

// ParseTTL accepts a Go duration ("90s", "15m") or a bare integer of
// milliseconds ("900000").
func ParseTTL(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("ttl is empty")
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid ttl %q: %w", s, err)
	}
	return d, nil
}

// Validate checks that the configuration can start a server
func (c *Config) Validate() error {
	var problems []string

	if c.Port < 0 || c.Port > 65535 {
		problems = append(problems, fmt.Sprintf("port %d out of range", c.Port))
	}
	if c.Capacity < 1 {
		problems = append(problems, "capacity must be at least 1")
	}
	if ttl, err := c.TTLDuration(); err != nil {
		problems = append(problems, err.Error())
	} else if ttl <= 0 {
		problems = append(problems, "ttl must be positive")
	}
	if c.MaxBodyBytes < 1 {
		problems = append(problems, "maxBodyBytes must be positive")
	}
	if c.Workers < 0 {
		problems = append(problems, "workers cannot be negative")
	}
	if c.RateLimit < 0 {
		problems = append(problems, "rateLimit cannot be negative")
	}
	if c.RateBurst < 0 {
		problems = append(problems, "rateBurst cannot be negative")
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("unknown logFormat %q", c.LogFormat))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// ConfigFilenames contains the possible config file names
var ConfigFilenames = []string{
	"hookrelay.yaml",
	".hookrelay.yaml",
	"hookrelay.yml",
	".hookrelay.yml",
	"hookrelay.json",
	".hookrelay.json",
}

// LoadConfig loads configuration from the specified path or searches for config files
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		return loadConfigFromFile(path)
	}

	return FindAndLoadConfig(".")
}

// FindAndLoadConfig searches for a config file in the given directory
func FindAndLoadConfig(dir string) (*Config, error) {
	if path := FindConfigFile(dir); path != "" {
		return loadConfigFromFile(path)
	}

	return DefaultConfig(), nil
}

// FindConfigFile returns the first config file present in dir, or ""
func FindConfigFile(dir string) string {
	for _, filename := range ConfigFilenames {
		configPath := filepath.Join(dir, filename)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
	}
	return ""
}

func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, config)
	default:
		err = yaml.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return config, nil
}

// Loader builds the effective configuration for the config file at path
type Loader func(path string) (*Config, error)

// Load layers defaults, the file at path (skipped when path is ""),
// HOOKRELAY_* variables and then each override in order, and validates the
// result. A value set in a later layer always wins, zero included.
func Load(path string, overrides ...func(*Config)) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		fileCfg, err := loadConfigFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	for _, override := range overrides {
		override(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig saves the configuration to a file, as JSON or YAML by extension
func (c *Config) SaveConfig(path string) error {
	var data []byte
	var err error
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
