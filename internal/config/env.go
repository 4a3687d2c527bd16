package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/mybank/idalloc"
)

// FromEnv overlays IDALLOC_* environment variables onto cfg.
//
// A numeric or duration variable that is set but does not parse is an error;
// cfg keeps its previous value for that field. Every such variable is
// reported, joined into one error whose parts are *idalloc.ConfigError.
func FromEnv(cfg *Config) error {
	var errs []error

	envInt64 := func(key string, dst *int64) {
		v := os.Getenv(key)
		if v == "" {
			return
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, &idalloc.ConfigError{Field: key, Value: strconv.Quote(v), Reason: "must be a decimal integer"})
			return
		}
		*dst = n
	}
	envString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	envInt64("IDALLOC_WORKER_ID", &cfg.WorkerID)
	envInt64("IDALLOC_DATACENTER_ID", &cfg.DatacenterID)
	envInt64("IDALLOC_EPOCH", &cfg.Epoch)
	envString("IDALLOC_HTTP_ADDR", &cfg.HTTPAddr)
	envString("IDALLOC_DB_DRIVER", &cfg.DBDriver)
	envString("IDALLOC_DB_DSN", &cfg.DBDSN)
	envString("IDALLOC_REDIS_ADDR", &cfg.RedisAddr)
	envString("IDALLOC_REDIS_PASSWORD", &cfg.RedisPassword)
	envString("IDALLOC_LOG_LEVEL", &cfg.LogLevel)

	if v := os.Getenv("IDALLOC_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err != nil {
			errs = append(errs, &idalloc.ConfigError{Field: "IDALLOC_REDIS_DB", Value: strconv.Quote(v), Reason: "must be a decimal integer"})
		} else {
			cfg.RedisDB = n
		}
	}
	if v := os.Getenv("IDALLOC_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err != nil {
			errs = append(errs, &idalloc.ConfigError{Field: "IDALLOC_CACHE_TTL", Value: strconv.Quote(v), Reason: "must be a duration such as 30m"})
		} else {
			cfg.CacheTTL = d
		}
	}

	return errors.Join(errs...)
}
