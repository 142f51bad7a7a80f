package engine

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/intellimaint/intellimaint/config"
	"github.com/intellimaint/intellimaint/model"
	"github.com/intellimaint/intellimaint/pattern"
	"github.com/intellimaint/intellimaint/store"
)

// maxForecastHours clips the hours-to-threshold horizon.
const maxForecastHours = 720

// TrendForecaster projects smoothed tag trajectories toward the nearest
// alarm threshold consistent with the slope direction.
type TrendForecaster struct {
	telemetry store.TelemetryRepository
	tags      store.TagRepository
	rules     store.AlarmRuleRepository
	patterns  *pattern.Cache
	cfg       config.TrendPredictionConfig
	log       *zap.Logger
}

// NewTrendForecaster wires the tag-level forecaster.
func NewTrendForecaster(t store.TelemetryRepository, tags store.TagRepository, rules store.AlarmRuleRepository, cfg config.TrendPredictionConfig, log *zap.Logger) *TrendForecaster {
	return &TrendForecaster{
		telemetry: t,
		tags:      tags,
		rules:     rules,
		patterns:  pattern.NewCache(),
		cfg:       cfg,
		log:       log,
	}
}

// ForecastDevice forecasts every enabled tag of the device, skipping
// tags without a significant trend or a matching rule.
func (f *TrendForecaster) ForecastDevice(ctx context.Context, deviceID string) ([]model.TrendForecast, error) {
	if !f.cfg.Enabled {
		return nil, nil
	}
	tags, err := f.tags.ListByDevice(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("list tags for %s: %w", deviceID, err)
	}
	rules, err := f.rules.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("list alarm rules: %w", err)
	}
	var out []model.TrendForecast
	for _, t := range tags {
		if !t.Enabled {
			continue
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}
		fc, err := f.forecastTag(ctx, deviceID, t.TagID, rules)
		if err != nil {
			f.log.Debug("trend forecast skipped", zap.String("device", deviceID), zap.String("tag", t.TagID), zap.Error(err))
			continue
		}
		if fc != nil {
			out = append(out, *fc)
		}
	}
	return out, nil
}

func (f *TrendForecaster) forecastTag(ctx context.Context, deviceID, tagID string, rules []model.AlarmRule) (*model.TrendForecast, error) {
	now := nowMilli()
	start := now - int64(f.cfg.HistoryWindowHours)*3_600_000
	points, err := f.telemetry.QuerySimple(ctx, deviceID, tagID, start, now, 0)
	if err != nil {
		return nil, err
	}
	var hours, vals []float64
	for _, p := range points {
		if v, ok := p.Value(); ok {
			hours = append(hours, float64(p.Ts-start)/3_600_000)
			vals = append(vals, v)
		}
	}
	if len(vals) < f.cfg.MinDataPoints {
		return nil, fmt.Errorf("%w: %d points, need %d", model.ErrInsufficientData, len(vals), f.cfg.MinDataPoints)
	}

	smoothed := expSmooth(vals, f.cfg.SmoothingAlpha)
	slope, intercept, r2 := linearRegression(hours, smoothed)
	if math.Abs(slope) < f.cfg.TrendSignificanceThreshold {
		return nil, nil
	}
	current := smoothed[len(smoothed)-1]

	rule, threshold, ok := f.matchRule(tagID, rules, slope, current)
	if !ok {
		return nil, nil
	}
	toThreshold := (threshold - current) / slope
	if toThreshold <= 0 {
		return nil, nil
	}
	if toThreshold > maxForecastHours {
		toThreshold = maxForecastHours
	}

	fc := &model.TrendForecast{
		DeviceID:         deviceID,
		TagID:            tagID,
		Slope:            slope,
		Intercept:        intercept,
		R2:               r2,
		RuleID:           rule.RuleID,
		Threshold:        threshold,
		HoursToThreshold: toThreshold,
		Confidence:       r2,
	}
	fc.AlertLevel = alertLevel(toThreshold, r2 < f.cfg.ConfidenceThreshold)
	return fc, nil
}

// matchRule finds the highest-severity enabled rule whose pattern covers
// the tag and whose threshold lies in the slope's direction.
func (f *TrendForecaster) matchRule(tagID string, rules []model.AlarmRule, slope, current float64) (model.AlarmRule, float64, bool) {
	var best model.AlarmRule
	var bestThreshold float64
	found := false
	for _, r := range rules {
		if !f.patterns.Match(r.TagID, tagID) {
			continue
		}
		threshold, ok := directionalThreshold(r, slope, current)
		if !ok {
			continue
		}
		if !found || r.Severity > best.Severity {
			best, bestThreshold, found = r, threshold, true
		}
	}
	return best, bestThreshold, found
}

// directionalThreshold returns the rule bound the trajectory is moving
// toward, if any.
func directionalThreshold(r model.AlarmRule, slope, current float64) (float64, bool) {
	switch r.ConditionType {
	case model.CondGT, model.CondGTE:
		if slope > 0 && r.Threshold > current {
			return r.Threshold, true
		}
	case model.CondLT, model.CondLTE:
		if slope < 0 && r.Threshold < current {
			return r.Threshold, true
		}
	case model.CondOutside:
		if slope > 0 && r.UpperBound > current {
			return r.UpperBound, true
		}
		if slope < 0 && r.LowerBound < current {
			return r.LowerBound, true
		}
	}
	return 0, false
}

// alertLevel bands the ETA; a low-confidence fit demotes the band one
// step.
func alertLevel(hoursToThreshold float64, lowConfidence bool) string {
	levels := []string{model.TrendAlertCritical, model.TrendAlertHigh, model.TrendAlertMedium, model.TrendAlertLow}
	var idx int
	switch {
	case hoursToThreshold <= 24:
		idx = 0
	case hoursToThreshold <= 48:
		idx = 1
	case hoursToThreshold <= 72:
		idx = 2
	case hoursToThreshold <= 168:
		idx = 3
	default:
		return ""
	}
	if lowConfidence && idx < len(levels)-1 {
		idx++
	}
	return levels[idx]
}
