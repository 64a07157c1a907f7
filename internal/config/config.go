// Package config defines the runtime configuration of the bridge server:
// listen address, call timeout, logging, tracing, the UI looper and the
// checkout admission rules. Use Load to read a YAML file, or Default and
// Validate to build one in code.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/yourorg/reader-bridge/internal/policy"
)

// Environment variables that override the file.
const (
	EnvAddr     = "BRIDGE_ADDR"
	EnvLogLevel = "BRIDGE_LOG_LEVEL"
)

// Config holds all server settings.
type Config struct {
	Server   Server   `yaml:"server"`
	Logging  Logging  `yaml:"logging"`
	Tracing  Tracing  `yaml:"tracing"`
	Host     Host     `yaml:"host"`
	Checkout Checkout `yaml:"checkout"`
}

// Server configures the HTTP surface.
type Server struct {
	// Addr is the listen address. Default: ":8080".
	Addr string `yaml:"addr"`
	// CallTimeout bounds how long a request waits for its call to settle.
	// The call itself stays pending after the timeout. Default: 5m, long
	// enough for a customer to tap a card.
	CallTimeout time.Duration `yaml:"call_timeout"`
	// LedgerCapacity is the number of settled calls kept for the report.
	LedgerCapacity int `yaml:"ledger_capacity"`
}

// Logging configures zap.
type Logging struct {
	// Level is a zap level name. Default: "info".
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Tracing configures the stdout span exporter.
type Tracing struct {
	Enabled bool `yaml:"enabled"`
	Pretty  bool `yaml:"pretty"`
}

// Host configures the UI looper.
type Host struct {
	ActivityName string `yaml:"activity_name"`
	UIQueueSize  int    `yaml:"ui_queue_size"`
	// Unavailable starts the bridge without a card reader terminal.
	Unavailable bool `yaml:"unavailable"`
}

// Checkout holds admission rules evaluated after the minimum amount check.
type Checkout struct {
	Rules []policy.RuleConfig `yaml:"rules"`
}

// Default returns a validated configuration with every default applied.
func Default() *Config {
	c := &Config{}
	_ = c.Validate()
	return c
}

// Load reads the YAML file at path, applies env overrides and validates the
// result. An empty path yields the defaults plus env overrides.
func Load(path string) (*Config, error) {
	c := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	}
	c.applyEnv()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvAddr); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
}

// Validate fills implicit defaults and checks the log level and rules.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.CallTimeout == 0 {
		c.Server.CallTimeout = 5 * time.Minute
	}
	if c.Server.CallTimeout < 0 {
		return errors.New("config: server.call_timeout must be positive")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("config: invalid logging.level: %w", err)
	}
	if c.Host.ActivityName == "" {
		c.Host.ActivityName = "main"
	}
	for i, r := range c.Checkout.Rules {
		if r.Name == "" || r.Expression == "" {
			return fmt.Errorf("config: checkout rule %d needs a name and an expression", i)
		}
	}
	return nil
}

// NewLogger builds the zap logger described by c.Logging.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("config: invalid logging.level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if c.Logging.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// CheckoutPolicy compiles the configured admission rules.
func (c *Config) CheckoutPolicy() (*policy.CheckoutPolicy, error) {
	return policy.NewCheckoutPolicy(c.Checkout.Rules)
}
