package engine

import (
	"context"
	"fmt"
	"math"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/intellimaint/intellimaint/config"
	"github.com/intellimaint/intellimaint/model"
	"github.com/intellimaint/intellimaint/store"
)

// maxSegments bounds the window split for drift confirmation.
const maxSegments = 5

// DegradationDetector finds slow monotone drift and variance growth in a
// tag's multi-day history.
type DegradationDetector struct {
	telemetry store.TelemetryRepository
	tags      store.TagRepository
	cfg       config.DegradationConfig
	log       *zap.Logger
}

// NewDegradationDetector wires the slow-drift detector.
func NewDegradationDetector(t store.TelemetryRepository, tags store.TagRepository, cfg config.DegradationConfig, log *zap.Logger) *DegradationDetector {
	return &DegradationDetector{telemetry: t, tags: tags, cfg: cfg, log: log}
}

// DetectDevice evaluates every enabled tag of the device, isolating
// per-tag failures.
func (d *DegradationDetector) DetectDevice(ctx context.Context, deviceID string) ([]model.DegradationReport, error) {
	if !d.cfg.Enabled {
		return nil, nil
	}
	tags, err := d.tags.ListByDevice(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("list tags for %s: %w", deviceID, err)
	}
	var reports []model.DegradationReport
	var merr *multierror.Error
	for _, t := range tags {
		if !t.Enabled {
			continue
		}
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		r, err := d.DetectTag(ctx, deviceID, t.TagID)
		if err != nil {
			d.log.Warn("degradation detection failed", zap.String("device", deviceID), zap.String("tag", t.TagID), zap.Error(err))
			merr = multierror.Append(merr, err)
			continue
		}
		if r != nil {
			reports = append(reports, *r)
		}
	}
	return reports, merr.ErrorOrNil()
}

// DetectTag inspects one tag's hourly averages over the detection
// window. Returns nil when no pattern is confirmed.
func (d *DegradationDetector) DetectTag(ctx context.Context, deviceID, tagID string) (*model.DegradationReport, error) {
	now := nowMilli()
	start := now - int64(d.cfg.DetectionWindowDays)*86_400_000
	buckets, err := d.telemetry.Aggregate(ctx, deviceID, tagID, start, now, 3_600_000, model.AggAvg)
	if err != nil {
		return nil, fmt.Errorf("aggregate %s/%s: %w", deviceID, tagID, err)
	}
	if len(buckets) < 2*d.cfg.ConfirmationCount {
		return nil, nil
	}
	vals := make([]float64, len(buckets))
	for i, b := range buckets {
		vals[i] = b.Value
	}
	smoothed := movingAverage(vals, int(math.Max(d.cfg.NoiseFilterWindowHours, 1)))

	segs := splitSegments(smoothed, maxSegments)
	if len(segs) < 2 {
		return nil, nil
	}

	report := func(kind string, rate float64) *model.DegradationReport {
		return &model.DegradationReport{
			DeviceID:      deviceID,
			TagID:         tagID,
			Pattern:       kind,
			DailyRatePct:  rate,
			WindowDays:    d.cfg.DetectionWindowDays,
			SegmentCount:  len(segs),
			DetectedAtUtc: now,
		}
	}

	if kind, ok := monotonePattern(segs, d.cfg.ConfirmationCount); ok {
		rate := dailyRatePct(smoothed, d.cfg.DetectionWindowDays)
		if math.Abs(rate) >= d.cfg.DegradationRateThreshold {
			return report(kind, rate), nil
		}
		return nil, nil
	}
	if varianceGrowing(segs, d.cfg.ConfirmationCount-1) {
		return report(model.DegradationIncreasingVariance, 0), nil
	}
	return nil, nil
}

type segment struct {
	mean   float64
	stddev float64
}

func splitSegments(vals []float64, n int) []segment {
	if len(vals) < n {
		n = len(vals)
	}
	if n < 2 {
		return nil
	}
	segs := make([]segment, 0, n)
	size := len(vals) / n
	for i := 0; i < n; i++ {
		lo := i * size
		hi := lo + size
		if i == n-1 {
			hi = len(vals)
		}
		part := vals[lo:hi]
		m := meanOf(part)
		segs = append(segs, segment{mean: m, stddev: stddevOf(part, m)})
	}
	return segs
}

// monotonePattern reports gradual increase or decrease when at least
// confirm adjacent segments move the same way by more than one percent.
func monotonePattern(segs []segment, confirm int) (string, bool) {
	up, down := 0, 0
	for i := 1; i < len(segs); i++ {
		prev := segs[i-1].mean
		if math.Abs(prev) < epsilon {
			continue
		}
		change := (segs[i].mean - prev) / math.Abs(prev)
		switch {
		case change > 0.01:
			up++
			down = 0
		case change < -0.01:
			down++
			up = 0
		default:
			up, down = 0, 0
		}
		if up >= confirm {
			return model.DegradationGradualIncrease, true
		}
		if down >= confirm {
			return model.DegradationGradualDecrease, true
		}
	}
	return "", false
}

// varianceGrowing reports whether the segment stddev grows by more than
// twenty percent across at least confirm transitions.
func varianceGrowing(segs []segment, confirm int) bool {
	if confirm < 1 {
		confirm = 1
	}
	grow := 0
	for i := 1; i < len(segs); i++ {
		prev := segs[i-1].stddev
		if prev < epsilon {
			grow = 0
			continue
		}
		if segs[i].stddev > prev*1.2 {
			grow++
			if grow >= confirm {
				return true
			}
		} else {
			grow = 0
		}
	}
	return false
}

func dailyRatePct(vals []float64, windowDays int) float64 {
	if len(vals) < 2 || windowDays <= 0 {
		return 0
	}
	first, last := vals[0], vals[len(vals)-1]
	if math.Abs(first) < epsilon {
		return 0
	}
	return (last - first) / math.Abs(first) * 100 / float64(windowDays)
}
