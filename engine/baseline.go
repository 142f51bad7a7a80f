package engine

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/intellimaint/intellimaint/config"
	"github.com/intellimaint/intellimaint/model"
	"github.com/intellimaint/intellimaint/store"
)

// learnMinSamples is the per-tag floor for an explicit baseline learn.
const learnMinSamples = 100

// agingFloor bounds how far the old baseline weight decays with age.
const agingFloor = 0.5

// BaselineService learns device baselines and keeps them current with
// periodic weighted updates.
type BaselineService struct {
	telemetry store.TelemetryRepository
	devices   store.DeviceRepository
	baselines store.HealthBaselineRepository
	cfg       config.DynamicBaselineConfig
	log       *zap.Logger
}

// NewBaselineService wires the baseline learner and updater.
func NewBaselineService(t store.TelemetryRepository, d store.DeviceRepository, b store.HealthBaselineRepository, cfg config.DynamicBaselineConfig, log *zap.Logger) *BaselineService {
	return &BaselineService{telemetry: t, devices: d, baselines: b, cfg: cfg, log: log}
}

// Learn computes a fresh baseline from the trailing learningHours window.
// Tags with fewer than 100 numeric samples are skipped; if no tag
// qualifies the learn fails with ErrInsufficientData.
func (s *BaselineService) Learn(ctx context.Context, deviceID string, learningHours float64) (*model.DeviceBaseline, error) {
	now := nowMilli()
	start := now - int64(learningHours*3_600_000)
	points, err := s.telemetry.QuerySimple(ctx, deviceID, "", start, now, 0)
	if err != nil {
		return nil, fmt.Errorf("query learn window for %s: %w", deviceID, err)
	}

	byTag := groupNumeric(points)
	b := &model.DeviceBaseline{
		DeviceID:      deviceID,
		CreatedUtc:    now,
		UpdatedUtc:    now,
		LearningHours: learningHours,
		TagBaselines:  make(map[string]model.TagBaseline),
	}
	for tagID, vals := range byTag {
		if len(vals) < learnMinSamples {
			continue
		}
		b.TagBaselines[tagID] = describeBaseline(tagID, vals)
		b.SampleCount += int64(len(vals))
	}
	if len(b.TagBaselines) == 0 {
		return nil, fmt.Errorf("%w: no tag on %s has %d samples in the learn window", model.ErrInsufficientData, deviceID, learnMinSamples)
	}
	if err := s.baselines.Save(ctx, b); err != nil {
		return nil, fmt.Errorf("save baseline for %s: %w", deviceID, err)
	}
	return b, nil
}

// UpdateAll applies the dynamic update to every enabled device whose
// baseline is stale, isolating per-device failures.
func (s *BaselineService) UpdateAll(ctx context.Context) error {
	if !s.cfg.Enabled {
		return nil
	}
	devices, err := s.devices.List(ctx)
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}
	var merr *multierror.Error
	for _, d := range devices {
		if !d.Enabled {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.UpdateDevice(ctx, d.DeviceID); err != nil {
			if errors.Is(err, model.ErrInsufficientData) || errors.Is(err, model.ErrNotFound) {
				s.log.Debug("baseline update skipped", zap.String("device", d.DeviceID), zap.Error(err))
				continue
			}
			s.log.Warn("baseline update failed", zap.String("device", d.DeviceID), zap.Error(err))
			merr = multierror.Append(merr, err)
		}
	}
	return merr.ErrorOrNil()
}

// UpdateDevice blends the new window into the stored baseline:
//
//	w_new = IncrementalWeight
//	w_old = (1 - w_new) * max(1 - daysSinceCreation*AgingFactor, 0.5)
//	mu'   = (mu_old*w_old + mu_new*w_new) / (w_old + w_new)
//
// New-window points beyond AnomalyFilterThreshold z-scores of the stored
// mean are filtered out first. New tags are inserted directly; existing
// tags unseen in the window are preserved.
func (s *BaselineService) UpdateDevice(ctx context.Context, deviceID string) error {
	b, err := s.baselines.Get(ctx, deviceID)
	if err != nil {
		return err
	}
	now := nowMilli()
	if now-b.UpdatedUtc < int64(s.cfg.UpdateIntervalHours*3_600_000) {
		return nil
	}
	windowStart := now - int64(s.cfg.UpdateIntervalHours*3_600_000)
	points, err := s.telemetry.QuerySimple(ctx, deviceID, "", windowStart, now, 0)
	if err != nil {
		return fmt.Errorf("query update window for %s: %w", deviceID, err)
	}
	byTag := groupNumeric(points)

	var total int
	for _, vals := range byTag {
		total += len(vals)
	}
	if total < s.cfg.MinSampleCount {
		return fmt.Errorf("%w: %d window samples on %s, need %d", model.ErrInsufficientData, total, deviceID, s.cfg.MinSampleCount)
	}

	days := float64(now-b.CreatedUtc) / 86_400_000
	wNew := s.cfg.IncrementalWeight
	wOld := (1 - wNew) * math.Max(1-days*s.cfg.AgingFactor, agingFloor)

	for tagID, vals := range byTag {
		old, exists := b.TagBaselines[tagID]
		if exists && old.NormalStdDev > epsilon {
			vals = filterOutliers(vals, old.NormalMean, old.NormalStdDev, s.cfg.AnomalyFilterThreshold)
		}
		if len(vals) < 2 {
			continue
		}
		fresh := describeBaseline(tagID, vals)
		if !exists {
			b.TagBaselines[tagID] = fresh
			b.SampleCount += int64(len(vals))
			continue
		}
		blended := model.TagBaseline{
			TagID:        tagID,
			NormalMean:   (old.NormalMean*wOld + fresh.NormalMean*wNew) / (wOld + wNew),
			NormalStdDev: (old.NormalStdDev*wOld + fresh.NormalStdDev*wNew) / (wOld + wNew),
			NormalMin:    math.Min(old.NormalMin, fresh.NormalMin),
			NormalMax:    math.Max(old.NormalMax, fresh.NormalMax),
		}
		if math.Abs(blended.NormalMean) >= epsilon {
			blended.NormalCV = blended.NormalStdDev / math.Abs(blended.NormalMean)
		}
		b.TagBaselines[tagID] = blended
		b.SampleCount += int64(len(vals))
	}
	b.UpdatedUtc = now
	if err := s.baselines.Save(ctx, b); err != nil {
		return fmt.Errorf("save baseline for %s: %w", deviceID, err)
	}
	return nil
}

func groupNumeric(points []model.TelemetryPoint) map[string][]float64 {
	byTag := make(map[string][]float64)
	for _, p := range points {
		if v, ok := p.Value(); ok {
			byTag[p.TagID] = append(byTag[p.TagID], v)
		}
	}
	return byTag
}

func filterOutliers(vals []float64, mean, std, zMax float64) []float64 {
	out := vals[:0:0]
	for _, v := range vals {
		if math.Abs(v-mean)/std <= zMax {
			out = append(out, v)
		}
	}
	return out
}

func describeBaseline(tagID string, vals []float64) model.TagBaseline {
	mean := meanOf(vals)
	std := stddevOf(vals, mean)
	min, max := vals[0], vals[0]
	for _, v := range vals {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	cv := 0.0
	if math.Abs(mean) >= epsilon {
		cv = std / math.Abs(mean)
	}
	return model.TagBaseline{
		TagID:        tagID,
		NormalMean:   mean,
		NormalStdDev: std,
		NormalMin:    min,
		NormalMax:    max,
		NormalCV:     cv,
	}
}
