package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/intellimaint/intellimaint/alarm"
	"github.com/intellimaint/intellimaint/config"
	"github.com/intellimaint/intellimaint/cycle"
	"github.com/intellimaint/intellimaint/engine"
	"github.com/intellimaint/intellimaint/hub"
	"github.com/intellimaint/intellimaint/motor"
	"github.com/intellimaint/intellimaint/sched"
	"github.com/intellimaint/intellimaint/store"
)

// serve wires the repositories, services, hub and scheduler, then runs
// until SIGINT/SIGTERM.
func serve(cfg config.Config) error {
	log, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	repos, closeStore, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	broadcast := hub.New(cfg.Hub.SendBuffer, registry, log.Named("hub"))

	importance := engine.NewImportanceMatcher(repos.TagImportance, cfg.DefaultImportance(), log.Named("importance"))
	if err := importance.Refresh(ctx); err != nil {
		log.Warn("initial importance refresh failed", zap.Error(err))
	}
	corr := engine.NewCorrelationAnalyzer(repos.Correlations, repos.Telemetry, cfg.Assessment.WindowMinutes, cfg.Assessment.MaxWindowPoints, log.Named("correlation"))
	if err := corr.Refresh(ctx); err != nil {
		log.Warn("initial correlation refresh failed", zap.Error(err))
	}

	extractor := engine.NewFeatureExtractor(repos.Telemetry, repos.Devices, cfg.Assessment.MaxWindowPoints, log.Named("features"))
	health := engine.NewHealthCalculator(repos.HealthBaselines, repos.Alarms, importance, corr, cfg, log.Named("health"))
	baselines := engine.NewBaselineService(repos.Telemetry, repos.Devices, repos.HealthBaselines, cfg.DynamicBaseline, log.Named("baseline"))
	multiScale := engine.NewMultiScaleAssessor(extractor, health, cfg.MultiScale, log.Named("multiscale"))
	degrade := engine.NewDegradationDetector(repos.Telemetry, repos.Tags, cfg.Degradation, log.Named("degradation"))
	trend := engine.NewTrendForecaster(repos.Telemetry, repos.Tags, repos.AlarmRules, cfg.TrendPrediction, log.Named("trend"))
	rul := engine.NewRULPredictor(repos.HealthSnapshots, cfg.RulPrediction, log.Named("rul"))

	groups := alarm.NewGroups(repos.Alarms, repos.AlarmGroups, log.Named("groups"))
	notifier := alarm.NewNotifier(cfg.AlarmWebhook, log.Named("notify"))
	evaluator := alarm.NewEvaluator(repos.AlarmRules, repos.Telemetry, groups, notifier, log.Named("alarm"))

	diagnoser := motor.NewDiagnoser(repos.Telemetry, repos.MotorInstances, repos.MotorModels, repos.MotorMappings, repos.MotorProfiles, nil, cfg.FaultDetection, log.Named("motor"))

	cycleAnalyzer := cycle.NewAnalyzer(repos.Telemetry, repos.CycleBaselines, repos.Cycles, cfg.Cycle, log.Named("cycle"))
	cycleLearner := cycle.NewBaselineLearner(repos.Telemetry, repos.CycleBaselines, cfg.Cycle, log.Named("cycle-baseline"))

	drivers := &sched.Drivers{
		Cfg:        cfg,
		Repos:      repos,
		Extractor:  extractor,
		Health:     health,
		MultiScale: multiScale,
		Baselines:  baselines,
		Importance: importance,
		Corr:       corr,
		Trend:      trend,
		RUL:        rul,
		Degrade:    degrade,
		Alarms:     evaluator,
		Motors:     diagnoser,
		Cycles:     cycleAnalyzer,
		CycleLearn: cycleLearner,
		Hub:        broadcast,
		Log:        log.Named("drivers"),
	}
	scheduler := sched.New(time.Duration(cfg.Scheduler.RepositoryTimeoutSec)*time.Second, sched.NewMetrics(registry), log.Named("sched"))
	drivers.RegisterAll(scheduler)

	mux := http.NewServeMux()
	mux.Handle("/ws", hub.Handler(broadcast, log.Named("ws")))
	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	go func() {
		log.Info("websocket listener started", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("websocket listener failed", zap.Error(err))
		}
	}()
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	if cfg.MetricsAddr != "" {
		metricsSrv := &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		}
		go func() {
			log.Info("metrics listener started", zap.String("addr", cfg.MetricsAddr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics listener failed", zap.Error(err))
			}
		}()
		defer metricsSrv.Close()
	}

	log.Info("engine started", zap.String("version", Version))
	return scheduler.Run(ctx)
}

// openStore picks sqlite when a data dir is configured, else the
// in-memory store.
func openStore(cfg config.Config, log *zap.Logger) (*store.Repositories, func(), error) {
	if cfg.DataDir == "" {
		log.Warn("no data dir configured, using in-memory store")
		return store.NewMemory().Repositories(), func() {}, nil
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := store.OpenSQLite(filepath.Join(cfg.DataDir, "intellimaint.db"))
	if err != nil {
		return nil, nil, err
	}
	return db.Repositories(), func() { _ = db.Close() }, nil
}
