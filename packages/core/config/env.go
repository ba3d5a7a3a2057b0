package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// EnvPrefix is prepended to every environment override
const EnvPrefix = "HOOKRELAY_"

// LoadSystemEnv returns the environment variables starting with prefix,
// keyed by the remainder of their name
func LoadSystemEnv(prefix string) map[string]string {
	result := make(map[string]string)
	for _, e := range os.Environ() {
		key, value, ok := strings.Cut(e, "=")
		if !ok {
			continue
		}
		if prefix == "" {
			result[key] = value
		} else if len(key) > len(prefix) && strings.HasPrefix(key, prefix) {
			result[key[len(prefix):]] = value
		}
	}
	return result
}

// ApplyEnv overrides cfg with every HOOKRELAY_* variable that is set.
// Unset variables leave their field alone.
func ApplyEnv(cfg *Config) error {
	return applyVars(cfg, LoadSystemEnv(EnvPrefix))
}

func applyVars(cfg *Config, vars map[string]string) error {
	if v, ok := lookup(vars, "HOST"); ok {
		cfg.Host = v
	}
	if v, ok := lookup(vars, "TTL"); ok {
		cfg.TTL = v
	}
	if v, ok := lookup(vars, "LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := lookup(vars, "LOG_FORMAT"); ok {
		cfg.LogFormat = v
	}
	if v, ok := lookup(vars, "JOURNAL"); ok {
		cfg.Journal = v
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"PORT", &cfg.Port},
		{"WORKERS", &cfg.Workers},
		{"CAPACITY", &cfg.Capacity},
		{"RATE_BURST", &cfg.RateBurst},
	}
	for _, f := range ints {
		if err := envInt(vars, f.name, f.dst); err != nil {
			return err
		}
	}

	if v, ok := lookup(vars, "MAX_BODY_BYTES"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %sMAX_BODY_BYTES: %w", EnvPrefix, err)
		}
		cfg.MaxBodyBytes = n
	}
	if v, ok := lookup(vars, "RATE_LIMIT"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %sRATE_LIMIT: %w", EnvPrefix, err)
		}
		cfg.RateLimit = f
	}
	if err := envBool(vars, "TRUST_PROXY", &cfg.TrustProxyHeaders); err != nil {
		return err
	}
	return envBool(vars, "NO_COLOR", &cfg.NoColor)
}

// lookup treats an empty variable as unset
func lookup(vars map[string]string, name string) (string, bool) {
	v := vars[name]
	return v, v != ""
}

func envInt(vars map[string]string, name string, dst *int) error {
	v, ok := lookup(vars, name)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
	}
	*dst = n
	return nil
}

func envBool(vars map[string]string, name string, dst **bool) error {
	v, ok := lookup(vars, name)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
	}
	*dst = &b
	return nil
}
