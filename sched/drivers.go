package sched

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/intellimaint/intellimaint/alarm"
	"github.com/intellimaint/intellimaint/config"
	"github.com/intellimaint/intellimaint/cycle"
	"github.com/intellimaint/intellimaint/engine"
	"github.com/intellimaint/intellimaint/hub"
	"github.com/intellimaint/intellimaint/model"
	"github.com/intellimaint/intellimaint/motor"
	"github.com/intellimaint/intellimaint/store"
)

// Drivers bundles the services the scheduled iterations call into.
type Drivers struct {
	Cfg        config.Config
	Repos      *store.Repositories
	Extractor  *engine.FeatureExtractor
	Health     *engine.HealthCalculator
	MultiScale *engine.MultiScaleAssessor
	Baselines  *engine.BaselineService
	Importance *engine.ImportanceMatcher
	Corr       *engine.CorrelationAnalyzer
	Trend      *engine.TrendForecaster
	RUL        *engine.RULPredictor
	Degrade    *engine.DegradationDetector
	Alarms      *alarm.Evaluator
	Motors      *motor.Diagnoser
	Cycles      *cycle.Analyzer
	CycleLearn  *cycle.BaselineLearner
	Hub         *hub.Hub
	Log         *zap.Logger

	// lastPublished tracks the newest broadcast Ts per (device, tag) so
	// the ticker only pushes deltas, monotone per key.
	pubMu         sync.Mutex
	lastPublished map[[2]string]int64

	// cycleCursor marks the end of the last closed cycle per device so a
	// tick never re-scores a cycle.
	cycleMu     sync.Mutex
	cycleCursor map[string]int64
}

// RegisterAll wires every periodic driver into the scheduler at the
// configured intervals.
func (d *Drivers) RegisterAll(s *Scheduler) {
	sc := d.Cfg.Scheduler
	s.Register("assess", time.Duration(sc.AssessIntervalSec)*time.Second, d.AssessAll)
	s.Register("baseline", time.Duration(sc.BaselineIntervalSec)*time.Second, d.UpdateBaselines)
	s.Register("rules", time.Duration(sc.CorrelationRefreshSec)*time.Second, d.RefreshRules)
	s.Register("predict", time.Duration(sc.PredictionIntervalSec)*time.Second, d.Predict)
	s.Register("motor", time.Duration(sc.MotorIntervalSec)*time.Second, d.DiagnoseMotors)
	s.Register("cycle", time.Duration(sc.CycleIntervalSec)*time.Second, d.AnalyzeCycles)
	s.Register("broadcast", time.Duration(sc.BroadcastIntervalSec)*time.Second, d.BroadcastLatest)
}

// AssessAll extracts features and scores every enabled device with a
// bounded fan-out, appends snapshots, then evaluates the alarm rules
// once over the latest values.
func (d *Drivers) AssessAll(ctx context.Context) error {
	devices, err := d.Repos.Devices.List(ctx)
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}

	sem := semaphore.NewWeighted(int64(d.Cfg.Scheduler.DeviceWorkers))
	g, gctx := errgroup.WithContext(ctx)
	for _, dev := range devices {
		if !dev.Enabled {
			continue
		}
		dev := dev
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			if err := d.assessDevice(gctx, dev.DeviceID); err != nil && gctx.Err() == nil {
				d.Log.Warn("device assessment failed", zap.String("device", dev.DeviceID), zap.Error(err))
			}
			return nil // per-device isolation: never abort the group
		})
	}
	_ = g.Wait()

	return d.Alarms.EvaluateLatest(ctx)
}

func (d *Drivers) assessDevice(ctx context.Context, deviceID string) error {
	feats, err := d.Extractor.Extract(ctx, deviceID, d.Cfg.Assessment.WindowMinutes)
	if err != nil {
		return err
	}
	if feats == nil {
		return nil
	}
	hs, err := d.Health.Assess(ctx, feats)
	if err != nil {
		if errors.Is(err, model.ErrInsufficientData) {
			return nil
		}
		return err
	}
	return d.Repos.HealthSnapshots.Append(ctx, model.HealthSnapshot{
		DeviceID:  hs.DeviceID,
		Timestamp: hs.Timestamp,
		Index:     hs.Index,
		Level:     hs.Level,
	})
}

// UpdateBaselines runs the dynamic baseline updater, then refits the
// per-device cycle baselines from the trailing day.
func (d *Drivers) UpdateBaselines(ctx context.Context) error {
	if err := d.Baselines.UpdateAll(ctx); err != nil {
		return err
	}
	devices, err := d.Repos.Devices.List(ctx)
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}
	now := time.Now().UnixMilli()
	for _, dev := range devices {
		if !dev.Enabled {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := d.CycleLearn.Learn(ctx, dev.DeviceID, now-24*time.Hour.Milliseconds(), now); err != nil {
			if errors.Is(err, model.ErrInsufficientData) {
				d.Log.Debug("cycle baseline skipped", zap.String("device", dev.DeviceID), zap.Error(err))
				continue
			}
			d.Log.Warn("cycle baseline learn failed", zap.String("device", dev.DeviceID), zap.Error(err))
		}
	}
	return nil
}

// AnalyzeCycles segments and scores fresh work cycles for every enabled
// device. The cursor advances to the end of the last closed cycle;
// a cycle still open at the window edge is retried next tick.
func (d *Drivers) AnalyzeCycles(ctx context.Context) error {
	devices, err := d.Repos.Devices.List(ctx)
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}
	now := time.Now().UnixMilli()
	lookback := int64(2 * d.Cfg.Cycle.MaxCycleDuration * 1000)

	d.cycleMu.Lock()
	defer d.cycleMu.Unlock()
	if d.cycleCursor == nil {
		d.cycleCursor = make(map[string]int64)
	}
	for _, dev := range devices {
		if !dev.Enabled {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		start, ok := d.cycleCursor[dev.DeviceID]
		if !ok || start < now-lookback {
			start = now - lookback
		}
		cycles, err := d.Cycles.Analyze(ctx, dev.DeviceID, start, now)
		if err != nil {
			if errors.Is(err, model.ErrInsufficientData) {
				d.Log.Debug("cycle analysis skipped", zap.String("device", dev.DeviceID), zap.Error(err))
			} else {
				d.Log.Warn("cycle analysis failed", zap.String("device", dev.DeviceID), zap.Error(err))
			}
			continue
		}
		if len(cycles) > 0 {
			d.cycleCursor[dev.DeviceID] = cycles[len(cycles)-1].EndTimeUtc
		} else {
			d.cycleCursor[dev.DeviceID] = start
		}
	}
	return nil
}

// RefreshRules reloads the importance patterns and correlation rules.
func (d *Drivers) RefreshRules(ctx context.Context) error {
	if err := d.Importance.Refresh(ctx); err != nil {
		return err
	}
	return d.Corr.Refresh(ctx)
}

// Predict runs multi-scale, degradation, trend and RUL for every
// enabled device, isolating per-device failures.
func (d *Drivers) Predict(ctx context.Context) error {
	devices, err := d.Repos.Devices.List(ctx)
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}
	for _, dev := range devices {
		if !dev.Enabled {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		d.predictDevice(ctx, dev.DeviceID)
	}
	return nil
}

func (d *Drivers) predictDevice(ctx context.Context, deviceID string) {
	skip := func(what string, err error) {
		if err == nil || ctx.Err() != nil {
			return
		}
		if errors.Is(err, model.ErrInsufficientData) {
			d.Log.Debug(what+" skipped", zap.String("device", deviceID), zap.Error(err))
			return
		}
		d.Log.Warn(what+" failed", zap.String("device", deviceID), zap.Error(err))
	}

	if d.Cfg.MultiScale.Enabled {
		_, err := d.MultiScale.Assess(ctx, deviceID)
		skip("multi-scale assessment", err)
	}
	_, err := d.Degrade.DetectDevice(ctx, deviceID)
	skip("degradation detection", err)
	_, err = d.Trend.ForecastDevice(ctx, deviceID)
	skip("trend forecast", err)
	_, err = d.RUL.Predict(ctx, deviceID)
	skip("RUL prediction", err)
}

// DiagnoseMotors diagnoses every enabled motor instance.
func (d *Drivers) DiagnoseMotors(ctx context.Context) error {
	return d.Motors.DiagnoseAll(ctx)
}

// BroadcastLatest reads the latest per-tag samples, diffs against the
// last published timestamps and pushes the deltas to the "all" and
// per-device groups.
func (d *Drivers) BroadcastLatest(ctx context.Context) error {
	latest, err := d.Repos.Telemetry.GetLatest(ctx, "", "")
	if err != nil {
		return fmt.Errorf("load latest values: %w", err)
	}

	d.pubMu.Lock()
	defer d.pubMu.Unlock()
	if d.lastPublished == nil {
		d.lastPublished = make(map[[2]string]int64)
	}
	for _, p := range latest {
		key := [2]string{p.DeviceID, p.TagID}
		if last, ok := d.lastPublished[key]; ok && p.Ts <= last {
			continue
		}
		payload, err := hub.EncodeTelemetry(p)
		if err != nil {
			d.Log.Warn("encode broadcast payload", zap.String("device", p.DeviceID), zap.String("tag", p.TagID), zap.Error(err))
			continue
		}
		d.Hub.PublishDevice(p.DeviceID, payload)
		d.lastPublished[key] = p.Ts
	}
	return nil
}
