package config

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Host:              "127.0.0.1",
		Port:              8080,
		Workers:           0,
		TTL:               "15m",
		Capacity:          1000,
		MaxBodyBytes:      10 << 20, // 10 MiB
		TrustProxyHeaders: BoolPtr(false),
		RateLimit:         0,
		RateBurst:         0,
		LogLevel:          "info",
		LogFormat:         "text",
		NoColor:           BoolPtr(false),
		Journal:           "",
	}
}

// IsDefault returns true if the config matches defaults
func (c *Config) IsDefault() bool {
	defaults := DefaultConfig()
	return c.Host == defaults.Host &&
		c.Port == defaults.Port &&
		c.Workers == defaults.Workers &&
		c.TTL == defaults.TTL &&
		c.Capacity == defaults.Capacity &&
		c.MaxBodyBytes == defaults.MaxBodyBytes &&
		c.GetTrustProxyHeaders() == defaults.GetTrustProxyHeaders() &&
		c.RateLimit == defaults.RateLimit &&
		c.RateBurst == defaults.RateBurst &&
		c.LogLevel == defaults.LogLevel &&
		c.LogFormat == defaults.LogFormat &&
		c.GetNoColor() == defaults.GetNoColor() &&
		c.Journal == defaults.Journal
}
