package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/chrissnell/remoteflow/internal/constants"
	"github.com/chrissnell/remoteflow/internal/controllers/restserver"
	"github.com/chrissnell/remoteflow/internal/flow"
	"github.com/chrissnell/remoteflow/internal/log"
	"github.com/chrissnell/remoteflow/internal/storage/timescaledb"
	"github.com/chrissnell/remoteflow/pkg/config"
	"go.uber.org/zap"
)

const healthCheckInterval = time.Minute

// App represents the main application
type App struct {
	cfg    *config.ConfigData
	logger *zap.SugaredLogger
}

// New creates a new application instance
func New(cfg *config.ConfigData, logger *zap.SugaredLogger) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
	}
}

// Run starts the application and blocks until shutdown
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	settings, err := AnalysisSettings(a.cfg.Analysis)
	if err != nil {
		return err
	}

	store, err := timescaledb.New(ctx, a.cfg.Storage.TimescaleDB.ConnectionString)
	if err != nil {
		return fmt.Errorf("could not initialize TimescaleDB storage: %w", err)
	}
	store.StartHealthMonitor(ctx, healthCheckInterval)

	analyzer := flow.NewAnalyzer(store, settings, log.Named("flow"))
	analyzer.SetThresholdResolver(store)

	ctrl, err := restserver.NewController(ctx, &wg, a.cfg.Server, a.cfg.Analysis, analyzer, store, log.Named("restserver"))
	if err != nil {
		return err
	}
	if err := ctrl.StartController(); err != nil {
		return err
	}

	a.logger.Infow("Application started successfully",
		"version", constants.Version,
		"rate_unit", settings.Rate.Unit,
		"flow_start_threshold", settings.Thresholds.FlowStartThreshold,
		"flow_continue_threshold", settings.Thresholds.FlowContinueThreshold)

	// Set up signal handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigs:
		log.Info("shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
		log.Info("context cancelled, shutting down...")
	}

	// Cancel context to signal all goroutines to stop
	cancel()

	log.Info("waiting for all workers to terminate...")
	wg.Wait()
	log.Info("shutdown complete")

	return nil
}

// AnalysisSettings converts the analysis configuration into analyzer settings
func AnalysisSettings(a config.AnalysisData) (flow.Settings, error) {
	unit, err := flow.ParseRateUnit(a.RateUnit)
	if err != nil {
		return flow.Settings{}, fmt.Errorf("analysis.rate-unit: %w", err)
	}

	return flow.Settings{
		Rate: flow.RateConfig{
			Unit:        unit,
			ScaleFactor: a.ScaleFactor,
		},
		Thresholds: flow.Thresholds{
			FlowStartThreshold:    a.FlowStartThreshold,
			FlowContinueThreshold: a.FlowContinueThreshold,
			MinDurationMinutes:    a.MinDurationMinutes,
			MinAverageRate:        a.MinAverageRate,
			MaxPlausibleRate:      a.MaxPlausibleRate,
			MinTotalVolume:        a.MinTotalVolume,
		},
		RangeMargin: a.RangeMargin(),
		MaxRange:    time.Duration(a.MaxRangeDays) * 24 * time.Hour,
	}, nil
}
