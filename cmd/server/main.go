/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the leave engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags and load configuration
  2. Initialize the logger
  3. Open and migrate the SQL store
  4. Pick the balance lock (Redis when configured, in-process otherwise)
  5. Build the ledger and the request orchestrator
  6. Seed the company named by -seed-company, if any
  7. Configure the HTTP router and serve with graceful shutdown

COMMAND-LINE FLAGS:
  -config        Config file path (default: config.yaml searched, optional)
  -seed-company  Company ID to seed with default settings, leave types and
                 public holidays for the current and next year

ENVIRONMENT:
  JWT_SECRET, DATABASE_DRIVER, SQLITE_PATH, POSTGRES_DSN, REDIS_ADDR,
  LEDGER_ALLOTMENT_POLICY, LOG_LEVEL, ... (see config/config.go)
  A .env file in the working directory is loaded first.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close the database and Redis connections
  4. Exit

EXAMPLES:
  # Run on an in-memory database with a demo company
  LEDGER_ALLOTMENT_POLICY=full JWT_SECRET=dev SQLITE_PATH=":memory:" \
    ./server -seed-company=acme

  # Run against PostgreSQL with the distributed lock
  ./server -config=/etc/leave-engine/config.yaml

SEE ALSO:
  - config/config.go: Configuration keys and defaults
  - api/server.go: Router configuration
  - timeoff/service.go: Request orchestrator
*/
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/warp/leave-engine/api"
	"github.com/warp/leave-engine/config"
	"github.com/warp/leave-engine/ledger"
	"github.com/warp/leave-engine/logger"
	"github.com/warp/leave-engine/store/redislock"
	"github.com/warp/leave-engine/store/sqlstore"
	"github.com/warp/leave-engine/timeoff"
)

func main() {
	// Flags
	configPath := flag.String("config", "", "Config file path")
	seedCompany := flag.String("seed-company", "", "Company ID to seed with defaults")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Get().Error().Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		logger.Get().Error().Err(err).Msg("Failed to initialize logger")
		os.Exit(1)
	}
	log := logger.Get()

	if err := run(cfg, *seedCompany, log); err != nil {
		log.Error().Err(err).Msg("Server failed")
		os.Exit(1)
	}
}

func run(cfg *config.Config, seedCompany string, log *logger.Logger) error {
	ctx := context.Background()

	// Initialize store
	store, err := sqlstore.Open(ctx, cfg.Database.Driver, cfg.Database.DSN(),
		sqlstore.Options{MaxOpenConns: cfg.Database.Postgres.MaxOpenConns})
	if err != nil {
		return err
	}
	defer store.Close()
	log.Info().Str("driver", cfg.Database.Driver).Msg("Database ready")

	// Balance lock
	var locker ledger.Locker
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()

		rl := redislock.New(client, redislock.WithTTL(cfg.Redis.LockTTL))
		if err := rl.Ping(ctx); err != nil {
			return err
		}
		locker = rl
		log.Info().Str("addr", cfg.Redis.Addr).Dur("ttl", cfg.Redis.LockTTL).Msg("Using Redis balance lock")
	} else {
		log.Info().Msg("Using in-process balance lock")
	}

	// Ledger and orchestrator
	policy, err := ledger.ParseAllotmentPolicy(cfg.Ledger.AllotmentPolicy)
	if err != nil {
		return err
	}
	l, err := ledger.New(policy, locker)
	if err != nil {
		return err
	}
	svc := timeoff.NewRequestService(store, store, l,
		timeoff.WithLogger(log),
		timeoff.WithMaxRetries(cfg.Ledger.MaxRetries),
	)

	if seedCompany != "" {
		year := time.Now().Year()
		if err := store.SeedDefaults(ctx, seedCompany, year, year+1); err != nil {
			return err
		}
		log.Info().Str("company_id", seedCompany).Msg("Seeded company defaults")
	}

	// Create router
	opts := api.RouterOptions{
		TokenAuth:   api.NewTokenAuth(cfg.Auth.JWTSecret),
		CORSOrigins: cfg.Server.CORSOrigins,
		Logger:      log,
	}
	if cfg.Metrics.Enabled {
		opts.MetricsPath = cfg.Metrics.Path
	}
	router := api.NewRouter(api.NewHandler(svc, log), opts)

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Str("policy", l.Policy().Name()).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return err
	case <-quit:
	}

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	log.Info().Msg("Server stopped")
	return nil
}
