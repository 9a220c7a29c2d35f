package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/chrissnell/pdsi/internal/batch"
	"github.com/chrissnell/pdsi/internal/controllers/restserver"
	"github.com/chrissnell/pdsi/internal/database"
	"github.com/chrissnell/pdsi/internal/dataset"
	"github.com/chrissnell/pdsi/internal/metrics"
	"github.com/chrissnell/pdsi/pkg/config"
)

// App represents the main application
type App struct {
	configProvider config.ConfigProvider
	logger         *zap.SugaredLogger

	// Once computes every station a single time and returns instead of
	// serving.
	Once bool

	registry *prometheus.Registry
	metrics  *metrics.Metrics
}

// New creates a new application instance
func New(configProvider config.ConfigProvider, logger *zap.SugaredLogger) *App {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics()
	m.MustRegister(reg)

	return &App{
		configProvider: configProvider,
		logger:         logger,
		registry:       reg,
		metrics:        m,
	}
}

// Run starts the application and blocks until shutdown. With Once set it
// returns after one batch, with an error if any station failed.
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, err := a.configProvider.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// The database is optional: without it stations are computed but not stored.
	var (
		db     *gorm.DB
		store  batch.Store
		series restserver.SeriesStore
	)
	if cfg.Storage.TimescaleDB != nil && cfg.Storage.TimescaleDB.ConnectionString != "" {
		client := database.NewClient(cfg.Storage.TimescaleDB.ConnectionString, a.logger)
		if err := client.Connect(ctx); err != nil {
			return err
		}
		defer client.Close()
		if err := client.AutoMigrate(); err != nil {
			return err
		}
		db, store, series = client.DB, client, client
	} else {
		a.logger.Info("no database configured; results will not be stored")
	}

	sources := func(st config.StationData) (dataset.Source, error) {
		return dataset.NewSource(st, db)
	}
	runner := batch.NewRunner(cfg.Batch, sources, a.logger,
		batch.WithStore(store),
		batch.WithMetrics(a.metrics),
	)

	if a.Once {
		report, err := runner.Run(ctx, cfg.Stations)
		if err != nil {
			return err
		}
		if report.Failed > 0 {
			return fmt.Errorf("%d of %d stations failed", report.Failed, len(cfg.Stations))
		}
		return nil
	}

	if rc := cfg.RESTServer(); rc != nil {
		ctrl, err := restserver.NewController(ctx, &wg, cfg, *rc, restserver.Deps{
			Store:    series,
			Runner:   runner,
			Metrics:  a.metrics,
			Gatherer: a.registry,
		}, a.logger)
		if err != nil {
			return err
		}
		if err := ctrl.StartController(); err != nil {
			return err
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.schedule(ctx, runner, cfg)
	}()

	a.logger.Info("Application started successfully")

	// Set up signal handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	// Wait for shutdown signal
	select {
	case <-sigs:
		a.logger.Info("shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
		a.logger.Info("context cancelled, shutting down...")
	}

	// Cancel context to signal all goroutines to stop
	cancel()

	// Wait for all workers to terminate
	a.logger.Info("waiting for all workers to terminate...")
	wg.Wait()
	a.logger.Info("shutdown complete")

	return nil
}

// schedule runs the batch on the configured interval, or once when no
// interval is set.
func (a *App) schedule(ctx context.Context, runner *batch.Runner, cfg *config.ConfigData) {
	interval := cfg.Batch.IntervalDuration()
	if interval <= 0 {
		if _, err := runner.Run(ctx, cfg.Stations); err != nil {
			a.logger.Errorw("batch stopped early", "error", err)
		}
		return
	}

	a.logger.Infof("computing %d stations every %v", len(cfg.Stations), interval)
	runner.Loop(ctx, interval, a.configProvider.GetStations)
}
