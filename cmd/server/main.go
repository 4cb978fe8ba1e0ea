package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/clinical-case-trainer/internal/api"
	"github.com/clinical-case-trainer/internal/cache"
	"github.com/clinical-case-trainer/internal/config"
	"github.com/clinical-case-trainer/internal/database"
	"github.com/clinical-case-trainer/internal/domain"
	"github.com/clinical-case-trainer/internal/logging"
	"github.com/clinical-case-trainer/internal/metrics"
	"github.com/clinical-case-trainer/internal/repository"
	"github.com/clinical-case-trainer/internal/service"
)

const usage = `Usage:
  server                           Serve the HTTP API
  server import-cases <dir>        Import case files (*.json) into the catalogue
  server migrate <up|down|status>  Apply, roll back or report database migrations
`

func main() {
	// Load configuration
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	// Setup graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	args := os.Args[1:]
	if len(args) == 0 {
		err = serve(ctx, configManager, logger)
	} else {
		switch args[0] {
		case "import-cases":
			if len(args) != 2 {
				fmt.Fprint(os.Stderr, usage)
				os.Exit(2)
			}
			err = importCases(ctx, configManager, logger, args[1])
		case "migrate":
			if len(args) != 2 || (args[1] != "up" && args[1] != "down" && args[1] != "status") {
				fmt.Fprint(os.Stderr, usage)
				os.Exit(2)
			}
			err = migrate(ctx, configManager, logger, args[1])
		case "help", "--help", "-h":
			fmt.Print(usage)
			return
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n%s", args[0], usage)
			os.Exit(2)
		}
	}

	if err != nil {
		logger.WithError(err).Fatal("Server failed")
	}
}

func serve(ctx context.Context, configManager *config.Manager, logger *logrus.Logger) error {
	cfg := configManager.GetConfig()
	logger.WithFields(logrus.Fields{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Starting Clinical Case Trainer server")

	m := metrics.NewManager(metrics.WithNamespace(cfg.Metrics.Namespace))

	db, err := database.NewConnection(ctx, database.ConfigFrom(cfg.Database), logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := migrate(ctx, configManager, logger, "up"); err != nil {
			return err
		}
	} else if err := migrate(ctx, configManager, logger, "check"); err != nil {
		return err
	}

	healthChecks := map[string]api.HealthCheck{
		"database": db.Health,
	}

	var caseCache domain.CaseCache
	if cfg.Cache.Enabled {
		if cfg.Cache.RedisURL != "" {
			redisCache, err := cache.NewRedisCache(cfg.Cache, logger)
			if err != nil {
				return err
			}
			defer redisCache.Close()
			caseCache = redisCache
			healthChecks["cache"] = redisCache.Ping
		} else {
			caseCache = cache.NewMemoryCache(cfg.Cache.MaxItems, cfg.Cache.DefaultTTL)
		}
	}

	cases := service.NewCaseService(repository.NewCaseRepository(db.Pool, logger), caseCache, logger, m)
	if cfg.Cases.ImportDir != "" {
		n, err := cases.ImportCases(ctx, cfg.Cases.ImportDir)
		if err != nil {
			return fmt.Errorf("failed to import cases: %w", err)
		}
		logger.WithField("cases", n).Info("Case catalogue imported")
	}

	server := api.NewServer(configManager, api.Dependencies{
		Reasoning: service.NewReasoningService(
			repository.NewReasoningRepository(db.Pool, logger),
			logger,
			service.WithReasoningMetrics(m),
		),
		Learning:     service.NewLearningService(repository.NewAttemptRepository(db.Pool, logger), logger, nil),
		Cases:        cases,
		Metrics:      m,
		Logger:       logger,
		HealthChecks: healthChecks,
	})

	if err := server.Start(ctx); err != nil {
		return err
	}

	logger.Info("Server stopped")
	return nil
}

func importCases(ctx context.Context, configManager *config.Manager, logger *logrus.Logger, dir string) error {
	db, err := database.NewConnection(ctx, database.ConfigFrom(*configManager.GetDatabaseConfig()), logger)
	if err != nil {
		return err
	}
	defer db.Close()

	cases := service.NewCaseService(repository.NewCaseRepository(db.Pool, logger), nil, logger, nil)
	n, err := cases.ImportCases(ctx, dir)
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{"dir": dir, "cases": n}).Info("Case import finished")
	return nil
}

func migrate(ctx context.Context, configManager *config.Manager, logger *logrus.Logger, direction string) error {
	runner, err := database.NewMigrationRunner(
		configManager.GetDatabaseURL(),
		configManager.GetDatabaseConfig().MigrationsPath,
		logger,
	)
	if err != nil {
		return err
	}
	defer runner.Close()

	switch direction {
	case "up":
		return runner.Up(ctx)
	case "down":
		return runner.Down(ctx)
	case "status":
		status := runner.Status()
		fmt.Printf("schema version %d (expected %d, dirty %t)\n", status.Version, status.Expected, status.Dirty)
		return nil
	case "check":
		return runner.CheckSchema()
	default:
		return fmt.Errorf("unknown migrate direction %q", direction)
	}
}
