package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mybank/idalloc"
	"github.com/mybank/idalloc/internal/config"
	"github.com/mybank/idalloc/internal/httpapi"
	"github.com/mybank/idalloc/internal/logging"
	"github.com/mybank/idalloc/ledger"
)

type serveFlags struct {
	configPath   string
	workerID     int64
	datacenterID int64
	addr         string
	dbDriver     string
	dbDSN        string
	redisAddr    string
	logLevel     string
}

func newServeCmd() *cobra.Command {
	var f serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		Long: `Run the HTTP service.

Settings are applied in order: defaults, the JSON file given by --config,
IDALLOC_* environment variables, then command-line flags.`,
		Example: `  idalloc serve --worker 3 --datacenter 1
  IDALLOC_REDIS_ADDR=localhost:6379 idalloc serve --config idalloc.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadServeConfig(cmd, f)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&f.configPath, "config", "", "Path to a JSON config file")
	cmd.Flags().Int64Var(&f.workerID, "worker", 0, fmt.Sprintf("Worker ID (0-%d)", idalloc.MaxWorkerID))
	cmd.Flags().Int64Var(&f.datacenterID, "datacenter", 0, fmt.Sprintf("Datacenter ID (0-%d)", idalloc.MaxDatacenterID))
	cmd.Flags().StringVar(&f.addr, "addr", "", "HTTP listen address")
	cmd.Flags().StringVar(&f.dbDriver, "db-driver", "", "Database driver: sqlite3 or postgres")
	cmd.Flags().StringVar(&f.dbDSN, "db-dsn", "", "Database connection string")
	cmd.Flags().StringVar(&f.redisAddr, "redis-addr", "", "Redis address for the page cache; empty disables caching")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	return cmd
}

// loadServeConfig layers defaults, file, environment and explicitly set flags.
func loadServeConfig(cmd *cobra.Command, f serveFlags) (config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if err := config.FromEnv(&cfg); err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("worker") {
		cfg.WorkerID = f.workerID
	}
	if flags.Changed("datacenter") {
		cfg.DatacenterID = f.datacenterID
	}
	if flags.Changed("addr") {
		cfg.HTTPAddr = f.addr
	}
	if flags.Changed("db-driver") {
		cfg.DBDriver = f.dbDriver
	}
	if flags.Changed("db-dsn") {
		cfg.DBDSN = f.dbDSN
	}
	if flags.Changed("redis-addr") {
		cfg.RedisAddr = f.redisAddr
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func runServer(ctx context.Context, cfg config.Config) error {
	base, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = base.Sync() }()
	logger := logging.WithIdentity(base, cfg.WorkerID, cfg.DatacenterID)

	gen, err := idalloc.NewWithConfig(cfg.Allocator())
	if err != nil {
		return err
	}

	db, err := ledger.Open(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := ledger.NewStore(db, cfg.DBDriver)
	if err != nil {
		return err
	}
	if err := store.Migrate(ctx); err != nil {
		return err
	}

	var cache ledger.PageCache = ledger.NopCache{}
	if cfg.RedisAddr != "" {
		client, err := ledger.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer client.Close()
		cache = ledger.NewRedisPageCache(client, cfg.CacheTTL)
		logger.Info("page cache enabled", zap.String("redis", cfg.RedisAddr), zap.Duration("ttl", cfg.CacheTTL))
	}

	srv := httpapi.New(httpapi.Options{
		Generator: gen,
		Ledger:    ledger.NewService(gen, store, cache, logger),
		Logger:    logger,
		HealthCheck: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			return db.PingContext(ctx)
		},
	})

	logger.Info("starting idalloc",
		zap.String("addr", cfg.HTTPAddr),
		zap.String("db", cfg.DBDriver),
		zap.Int64("epoch", gen.Epoch()),
	)
	err = srv.ListenAndServe(ctx, cfg.HTTPAddr)
	logger.Info("idalloc stopped", zap.Error(err))
	return err
}
