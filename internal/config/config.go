package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the optional YAML config file.
const EnvConfigPath = "BILLING_CONFIG"

// Config defines the billing service configuration.
type Config struct {
	HTTPAddr               string        `yaml:"http_addr"`
	LogLevel               string        `yaml:"log_level"`
	TariffDir              string        `yaml:"tariff_dir"`
	DefaultVoltageType     string        `yaml:"default_voltage_type"`
	DefaultIntervalMinutes int           `yaml:"interval_minutes"`
	MaxConcurrentCharges   int           `yaml:"max_concurrent_charges"`
	ReadingMultiplier      float64       `yaml:"reading_multiplier"`
	DateLayout             string        `yaml:"date_layout"`
	ShutdownTimeout        time.Duration `yaml:"shutdown_timeout"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTPAddr:               ":8080",
		LogLevel:               "info",
		TariffDir:              "tariffs",
		DefaultVoltageType:     "230_400_V",
		DefaultIntervalMinutes: 30,
		MaxConcurrentCharges:   4,
		ReadingMultiplier:      1,
		DateLayout:             "02/01/2006 15:04",
		ShutdownTimeout:        10 * time.Second,
	}
}

// Load builds the configuration from defaults, the YAML file named by
// BILLING_CONFIG and environment overrides, in that order.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv(EnvConfigPath); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.HTTPAddr = getenvDefault("HTTP_ADDR", c.HTTPAddr)
	c.LogLevel = getenvDefault("LOG_LEVEL", c.LogLevel)
	c.TariffDir = getenvDefault("TARIFF_DIR", c.TariffDir)
	c.DefaultVoltageType = getenvDefault("DEFAULT_VOLTAGE_TYPE", c.DefaultVoltageType)
	c.DefaultIntervalMinutes = getenvIntDefault("INTERVAL_MINUTES", c.DefaultIntervalMinutes)
	c.MaxConcurrentCharges = getenvIntDefault("MAX_CONCURRENT_CHARGES", c.MaxConcurrentCharges)
	c.ReadingMultiplier = getenvFloatDefault("READING_MULTIPLIER", c.ReadingMultiplier)
	c.DateLayout = getenvDefault("DATE_LAYOUT", c.DateLayout)
	c.ShutdownTimeout = getenvDuration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
}

// Validate rejects settings the service cannot run with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.TariffDir) == "" {
		return errors.New("config: tariff dir required")
	}
	if c.DefaultIntervalMinutes <= 0 {
		return fmt.Errorf("config: interval minutes must be positive, got %d", c.DefaultIntervalMinutes)
	}
	if c.ReadingMultiplier <= 0 {
		return fmt.Errorf("config: reading multiplier must be positive, got %v", c.ReadingMultiplier)
	}
	if c.MaxConcurrentCharges < 0 {
		return fmt.Errorf("config: max concurrent charges must not be negative, got %d", c.MaxConcurrentCharges)
	}
	return nil
}

// Interval returns the default reading interval.
func (c Config) Interval() time.Duration {
	return time.Duration(c.DefaultIntervalMinutes) * time.Minute
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
