package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "POSTPILOT_"

// ServerConfig holds configuration for the postpilot server.
type ServerConfig struct {
	Addr             string        // Listen address (default ":8080")
	LogLevel         string        // Log level: debug, info, warn, error
	LogFormat        string        // Log format: text, json
	DBPath           string        // SQLite database path (default ~/.postpilot/postpilot.db, ":memory:" for testing)
	ConfigFile       string        // Optional YAML file with engine config and seeds; watched for changes
	Timezone         string        // IANA zone for schedule dates and slot windows (default UTC)
	PlanInterval     time.Duration // How often the plan driver runs
	PlanAheadDays    int           // Days after today planned on each pass
	GeneratorURL     string        // Content generator base URL; empty uses the in-process generator
	GeneratorTimeout time.Duration
	PromptLib        string // Optional JavaScript file loaded before prompt expressions
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:             ":8080",
		LogLevel:         "info",
		LogFormat:        "text",
		Timezone:         "UTC",
		PlanInterval:     time.Hour,
		PlanAheadDays:    1,
		GeneratorTimeout: 30 * time.Second,
	}
}

// ApplyEnv overrides fields from POSTPILOT_* variables found via lookup
// (os.LookupEnv when nil).
func (c *ServerConfig) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	str("ADDR", &c.Addr)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	str("DB", &c.DBPath)
	str("CONFIG", &c.ConfigFile)
	str("TIMEZONE", &c.Timezone)
	str("GENERATOR_URL", &c.GeneratorURL)
	str("PROMPT_LIB", &c.PromptLib)

	for name, dst := range map[string]*time.Duration{
		"PLAN_INTERVAL":     &c.PlanInterval,
		"GENERATOR_TIMEOUT": &c.GeneratorTimeout,
	} {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = d
		}
	}
	if v, ok := lookup(EnvPrefix + "PLAN_AHEAD_DAYS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sPLAN_AHEAD_DAYS: %w", EnvPrefix, err)
		}
		c.PlanAheadDays = n
	}
	return nil
}

// Location loads the configured timezone.
func (c ServerConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
