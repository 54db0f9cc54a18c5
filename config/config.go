package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Write modes for the backing store.
const (
	WriteNone    = "none"
	WriteThrough = "write-through"
	WriteBack    = "write-back"
)

type CacheConfig struct {
	Capacity         int           `yaml:"capacity"`
	Shards           int           `yaml:"shards"`
	Policy           string        `yaml:"policy"`
	DefaultTTL       time.Duration `yaml:"default_ttl"`
	Granularity      time.Duration `yaml:"granularity"`
	WheelSlots       int           `yaml:"wheel_slots"`
	RefreshTTLOnRead bool          `yaml:"refresh_ttl_on_read"`
	SweepInterval    time.Duration `yaml:"sweep_interval"`

	// RefreshAhead reloads entries from the store in the background once
	// their remaining TTL drops below it. Zero disables it.
	RefreshAhead time.Duration `yaml:"refresh_ahead"`
}

// StoreConfig describes the optional database behind the cache. An empty
// Driver means the cache runs without one.
type StoreConfig struct {
	Driver      string `yaml:"driver"`
	DSN         string `yaml:"dsn"`
	WriteMode   string `yaml:"write_mode"`
	WriteBuffer int    `yaml:"write_buffer"`
	Debug       bool   `yaml:"debug"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Config struct {
	Listen   string `yaml:"listen"`
	APIToken string `yaml:"api_token"`

	Cache CacheConfig `yaml:"cache"`
	Store StoreConfig `yaml:"store"`
	Log   LogConfig   `yaml:"log"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes a YAML document, fills defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.Cache.Capacity == 0 {
		c.Cache.Capacity = 10000
	}
	if c.Cache.Policy == "" {
		c.Cache.Policy = "LRU"
	}
	if c.Cache.SweepInterval == 0 {
		c.Cache.SweepInterval = time.Second
	}
	if c.Store.WriteMode == "" {
		c.Store.WriteMode = WriteNone
	}
	if c.Store.WriteBuffer == 0 {
		c.Store.WriteBuffer = 1024
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate reports every problem found, joined into one error.
func (c *Config) Validate() error {
	var errs []error

	if c.Cache.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("cache.capacity must be positive, got %d", c.Cache.Capacity))
	}
	if c.Cache.Shards < 0 {
		errs = append(errs, fmt.Errorf("cache.shards must not be negative, got %d", c.Cache.Shards))
	}
	switch strings.ToUpper(c.Cache.Policy) {
	case "LRU", "FIFO":
	default:
		errs = append(errs, fmt.Errorf("cache.policy %q is not LRU or FIFO", c.Cache.Policy))
	}
	if c.Cache.DefaultTTL < 0 {
		errs = append(errs, errors.New("cache.default_ttl must not be negative"))
	}
	if c.Cache.Granularity < 0 {
		errs = append(errs, errors.New("cache.granularity must not be negative"))
	}
	if n := c.Cache.WheelSlots; n < 0 || n&(n-1) != 0 {
		errs = append(errs, fmt.Errorf("cache.wheel_slots must be a power of two, got %d", n))
	}
	if c.Cache.RefreshAhead < 0 {
		errs = append(errs, errors.New("cache.refresh_ahead must not be negative"))
	}
	if c.Cache.SweepInterval < 0 {
		errs = append(errs, errors.New("cache.sweep_interval must not be negative"))
	}

	switch c.Store.WriteMode {
	case WriteNone:
	case WriteThrough, WriteBack:
		if c.Store.Driver == "" {
			errs = append(errs, fmt.Errorf("store.write_mode %q needs store.driver", c.Store.WriteMode))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.write_mode %q", c.Store.WriteMode))
	}
	if c.Store.WriteBuffer < 0 {
		errs = append(errs, errors.New("store.write_buffer must not be negative"))
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not text or json", c.Log.Format))
	}

	return errors.Join(errs...)
}

// Apply configures logger from the log section.
func (l LogConfig) Apply(logger *logrus.Logger) error {
	level, err := logrus.ParseLevel(l.Level)
	if err != nil {
		return err
	}
	logger.SetLevel(level)
	if l.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}
