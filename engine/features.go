package engine

import (
	"context"
	"fmt"
	"math"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/intellimaint/intellimaint/model"
	"github.com/intellimaint/intellimaint/store"
)

// trendRatio is the |slope|/|mean| band inside which a trend counts as flat.
const trendRatio = 0.001

// FeatureExtractor turns a telemetry window into per-tag statistics.
type FeatureExtractor struct {
	telemetry store.TelemetryRepository
	devices   store.DeviceRepository
	maxPoints int
	log       *zap.Logger
}

// NewFeatureExtractor builds an extractor capped at maxPoints per window.
func NewFeatureExtractor(t store.TelemetryRepository, d store.DeviceRepository, maxPoints int, log *zap.Logger) *FeatureExtractor {
	if maxPoints <= 0 {
		maxPoints = 2000
	}
	return &FeatureExtractor{telemetry: t, devices: d, maxPoints: maxPoints, log: log}
}

// Extract computes window statistics for every tag of one device.
// Returns nil when the window holds no telemetry. Tags with fewer than
// two numeric samples are dropped.
func (e *FeatureExtractor) Extract(ctx context.Context, deviceID string, windowMinutes int) (*model.DeviceFeatures, error) {
	now := nowMilli()
	start := now - int64(windowMinutes)*60_000
	points, err := e.telemetry.QuerySimple(ctx, deviceID, "", start, now, e.maxPoints)
	if err != nil {
		return nil, fmt.Errorf("query window for %s: %w", deviceID, err)
	}
	if len(points) == 0 {
		return nil, nil
	}

	byTag := make(map[string][]float64)
	for _, p := range points {
		v, ok := p.Value()
		if !ok {
			continue
		}
		byTag[p.TagID] = append(byTag[p.TagID], v)
	}

	feats := &model.DeviceFeatures{
		DeviceID:      deviceID,
		Timestamp:     now,
		WindowMinutes: windowMinutes,
		SampleCount:   len(points),
		TagFeatures:   make(map[string]model.TagFeatures),
	}
	for tagID, vals := range byTag {
		if len(vals) < 2 {
			continue
		}
		feats.TagFeatures[tagID] = describeTag(tagID, vals)
	}
	if len(feats.TagFeatures) == 0 {
		return nil, nil
	}
	return feats, nil
}

// ExtractAll runs Extract over every enabled device, isolating failures
// so one broken device never hides the rest.
func (e *FeatureExtractor) ExtractAll(ctx context.Context, windowMinutes int) (map[string]*model.DeviceFeatures, error) {
	devices, err := e.devices.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	out := make(map[string]*model.DeviceFeatures)
	var merr *multierror.Error
	for _, d := range devices {
		if !d.Enabled {
			continue
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}
		feats, err := e.Extract(ctx, d.DeviceID, windowMinutes)
		if err != nil {
			e.log.Warn("feature extraction failed", zap.String("device", d.DeviceID), zap.Error(err))
			merr = multierror.Append(merr, err)
			continue
		}
		if feats != nil {
			out[d.DeviceID] = feats
		}
	}
	return out, merr.ErrorOrNil()
}

func describeTag(tagID string, vals []float64) model.TagFeatures {
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

	slope := slopeOverIndex(vals)
	dir := 0
	if math.Abs(mean) >= epsilon {
		switch ratio := slope / math.Abs(mean); {
		case ratio > trendRatio:
			dir = 1
		case ratio < -trendRatio:
			dir = -1
		}
	} else {
		switch {
		case slope > trendRatio:
			dir = 1
		case slope < -trendRatio:
			dir = -1
		}
	}

	return model.TagFeatures{
		TagID:                  tagID,
		Count:                  len(vals),
		Mean:                   mean,
		StdDev:                 std,
		Min:                    min,
		Max:                    max,
		Latest:                 vals[len(vals)-1],
		TrendSlope:             slope,
		TrendDirection:         dir,
		CoefficientOfVariation: cv,
		Range:                  max - min,
	}
}
