// Package config binds environment defaults, command line flags, and an
// optional YAML file into the runtime configuration.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Output formats accepted by the CLI search mode.
const (
	FormatJSON     = "json"
	FormatText     = "text"
	FormatMarkdown = "markdown"
)

// Config holds the settings for both the proxy and the CLI search mode.
type Config struct {
	UpstreamURL    string        `yaml:"upstream_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxAttempts    int           `yaml:"max_attempts"`
	MetricsAddr    string        `yaml:"metrics_addr"`
	LogLevel       string        `yaml:"log_level"`
	ConfigFile     string        `yaml:"-"`

	// CLI search mode; unset Search selects proxy mode.
	Search string `yaml:"-"`
	Output string `yaml:"-"`
	Format string `yaml:"-"`
}

// BindFlags populates the struct with defaults from environment variables and
// binds command line flags so main can call flag.Parse().
func (c *Config) BindFlags() {
	c.ConfigFile = getEnv("CONFIG_FILE", "")
	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.UpstreamURL = getEnv("UPSTREAM_URL", "")
	if v, err := strconv.ParseFloat(getEnv("REQUEST_TIMEOUT", "5"), 64); err == nil {
		c.RequestTimeout = time.Duration(v * float64(time.Second))
	} else {
		c.RequestTimeout = 5 * time.Second
	}
	if v, err := strconv.Atoi(getEnv("MAX_ATTEMPTS", "3")); err == nil {
		c.MaxAttempts = v
	} else {
		c.MaxAttempts = 3
	}
	mp := getEnv("METRICS_PORT", "")
	if mp != "" && !strings.Contains(mp, ":") {
		mp = ":" + mp
	}
	c.MetricsAddr = mp
	c.Format = FormatJSON

	flag.StringVar(&c.ConfigFile, "config", c.ConfigFile, "config file path")
	flag.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
	flag.StringVar(&c.UpstreamURL, "upstream-url", c.UpstreamURL, "docs MCP endpoint URL; default is the production endpoint")
	flag.Func("request-timeout", "per-attempt timeout in seconds for upstream responses", func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		c.RequestTimeout = time.Duration(f * float64(time.Second))
		return nil
	})
	flag.IntVar(&c.MaxAttempts, "max-attempts", c.MaxAttempts, "max attempts per forwarded request")
	flag.StringVar(&c.MetricsAddr, "metrics-port", c.MetricsAddr, "Prometheus metrics listen address or port (disabled when empty; e.g. 127.0.0.1:9090 or 9090)")
	flag.StringVar(&c.Search, "search", c.Search, "search query for Bun documentation (enables CLI mode)")
	flag.StringVar(&c.Search, "s", c.Search, "short for --search")
	flag.StringVar(&c.Output, "output", c.Output, "output file path (default: stdout)")
	flag.StringVar(&c.Output, "o", c.Output, "short for --output")
	flag.StringVar(&c.Format, "format", c.Format, "output format (json, text, markdown)")
	flag.StringVar(&c.Format, "f", c.Format, "short for --format")
}

// Validate checks values that flag parsing cannot.
func (c *Config) Validate() error {
	switch c.Format {
	case FormatJSON, FormatText, FormatMarkdown:
	default:
		return fmt.Errorf("unknown output format %q", c.Format)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	return nil
}

// LoadFile populates the config from a YAML file. Fields already set remain
// unless overwritten by corresponding entries in the file.
func (c *Config) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, c)
}

func getEnv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
