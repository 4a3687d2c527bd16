// Package config holds the settings of the idalloc service: allocator
// identity, listen address, database, cache and logging.
//
// Values are layered: Default, then an optional JSON file (Load), then
// IDALLOC_* environment variables (FromEnv), then command-line flags applied
// by the caller.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mybank/idalloc"
)

// Config is the top-level service configuration.
type Config struct {
	WorkerID     int64 `json:"workerId"`
	DatacenterID int64 `json:"datacenterId"`
	// Epoch in milliseconds since the Unix epoch.
	Epoch int64 `json:"epoch"`

	HTTPAddr string `json:"httpAddr"`

	// DBDriver is "sqlite3" or "postgres".
	DBDriver string `json:"dbDriver"`
	DBDSN    string `json:"dbDsn"`

	// RedisAddr empty disables the page cache.
	RedisAddr     string        `json:"redisAddr"`
	RedisPassword string        `json:"redisPassword"`
	RedisDB       int           `json:"redisDb"`
	CacheTTL      time.Duration `json:"cacheTtl"`

	LogLevel string `json:"logLevel"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		Epoch:    idalloc.Epoch,
		HTTPAddr: ":8080",
		DBDriver: "sqlite3",
		DBDSN:    "file:idalloc.db?cache=shared",
		CacheTTL: 30 * time.Minute,
		LogLevel: "info",
	}
}

// Load reads a JSON configuration file over the defaults. An empty path
// returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	ac := c.Allocator()
	if err := ac.Validate(); err != nil {
		return err
	}
	switch c.DBDriver {
	case "sqlite3", "postgres":
	default:
		return &idalloc.ConfigError{Field: "DBDriver", Value: c.DBDriver, Reason: "must be sqlite3 or postgres"}
	}
	if c.DBDSN == "" {
		return &idalloc.ConfigError{Field: "DBDSN", Value: "", Reason: "required"}
	}
	if c.HTTPAddr == "" {
		return &idalloc.ConfigError{Field: "HTTPAddr", Value: "", Reason: "required"}
	}
	if c.CacheTTL < 0 {
		return &idalloc.ConfigError{Field: "CacheTTL", Value: c.CacheTTL.String(), Reason: "must not be negative"}
	}
	if c.RedisDB < 0 {
		return &idalloc.ConfigError{Field: "RedisDB", Value: fmt.Sprint(c.RedisDB), Reason: "must not be negative"}
	}
	return nil
}

// Allocator returns the generator configuration for this service, using the
// system clock and LayoutDefault.
func (c Config) Allocator() idalloc.Config {
	cfg := idalloc.DefaultConfig(c.WorkerID, c.DatacenterID)
	cfg.Epoch = c.Epoch
	return cfg
}
