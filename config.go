package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Bind                string        `yaml:"bind"`
	Port                int           `yaml:"port"`
	Interval            time.Duration `yaml:"interval"`
	WarmUp              time.Duration `yaml:"warmup"`
	WriteTimeout        time.Duration `yaml:"write_timeout"`
	MaxConcurrentWrites int           `yaml:"max_concurrent_writes"`
	StaticDir           string        `yaml:"static_dir"`
	LogLevel            string        `yaml:"log_level"`
	LogFormat           string        `yaml:"log_format"`
	MetricsPath         string        `yaml:"metrics_path"`
}

func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Bind, c.Port)
}

func defaultConfig() *Config {
	return &Config{
		Bind:                "0.0.0.0",
		Port:                8080,
		Interval:            1500 * time.Millisecond,
		WarmUp:              500 * time.Millisecond,
		WriteTimeout:        5 * time.Second,
		MaxConcurrentWrites: 64,
		StaticDir:           "static",
		LogLevel:            "info",
		LogFormat:           "text",
		MetricsPath:         "/metrics",
	}
}

// loadConfig reads path over the defaults. A missing file yields the
// defaults.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.MaxConcurrentWrites == 0 {
		cfg.MaxConcurrentWrites = 64
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", c.Interval)
	}
	if c.WarmUp < 0 {
		return fmt.Errorf("warmup must not be negative, got %s", c.WarmUp)
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive, got %s", c.WriteTimeout)
	}
	if c.MaxConcurrentWrites < 0 {
		return fmt.Errorf("max_concurrent_writes must not be negative, got %d", c.MaxConcurrentWrites)
	}
	if !strings.HasPrefix(c.MetricsPath, "/") {
		return fmt.Errorf("metrics_path must start with /, got %q", c.MetricsPath)
	}
	if _, err := parseLogLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log_format %q", c.LogFormat)
	}
	return nil
}
