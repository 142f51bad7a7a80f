package engine

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/intellimaint/intellimaint/model"
	"github.com/intellimaint/intellimaint/pattern"
	"github.com/intellimaint/intellimaint/store"
)

// minCommonPoints is the alignment floor for pairwise analysis.
const minCommonPoints = 3

// CorrelationAnalyzer detects suspicious pairwise tag behavior from
// rule-driven checks over the recent telemetry window.
type CorrelationAnalyzer struct {
	repo      store.CorrelationRuleRepository
	telemetry store.TelemetryRepository
	patterns  *pattern.Cache

	windowMinutes int
	maxPoints     int

	rules atomic.Pointer[[]model.CorrelationRule]
	log   *zap.Logger
}

// NewCorrelationAnalyzer builds an analyzer over the given window; call
// Refresh before the first Analyze.
func NewCorrelationAnalyzer(repo store.CorrelationRuleRepository, t store.TelemetryRepository, windowMinutes, maxPoints int, log *zap.Logger) *CorrelationAnalyzer {
	if maxPoints <= 0 {
		maxPoints = 2000
	}
	return &CorrelationAnalyzer{
		repo:          repo,
		telemetry:     t,
		patterns:      pattern.NewCache(),
		windowMinutes: windowMinutes,
		maxPoints:     maxPoints,
		log:           log,
	}
}

// Refresh reloads the enabled rules and swaps them in atomically.
func (a *CorrelationAnalyzer) Refresh(ctx context.Context) error {
	rules, err := a.repo.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("load correlation rules: %w", err)
	}
	a.rules.Store(&rules)
	return nil
}

type series struct {
	ts   []int64
	vals []float64
}

// Analyze runs every matching rule against the device's recent window.
func (a *CorrelationAnalyzer) Analyze(ctx context.Context, deviceID string) ([]model.CorrelationAnomaly, error) {
	rp := a.rules.Load()
	if rp == nil || len(*rp) == 0 {
		return nil, nil
	}
	matching := make([]model.CorrelationRule, 0, len(*rp))
	for _, r := range *rp {
		if a.patterns.Match(r.DevicePattern, deviceID) {
			matching = append(matching, r)
		}
	}
	if len(matching) == 0 {
		return nil, nil
	}

	now := nowMilli()
	start := now - int64(a.windowMinutes)*60_000
	points, err := a.telemetry.QuerySimple(ctx, deviceID, "", start, now, a.maxPoints)
	if err != nil {
		return nil, fmt.Errorf("query window for %s: %w", deviceID, err)
	}
	byTag := make(map[string]*series)
	for _, p := range points {
		v, ok := p.Value()
		if !ok {
			continue
		}
		s := byTag[p.TagID]
		if s == nil {
			s = &series{}
			byTag[p.TagID] = s
		}
		s.ts = append(s.ts, p.Ts)
		s.vals = append(s.vals, v)
	}

	var anomalies []model.CorrelationAnomaly
	for _, r := range matching {
		for tag1, s1 := range byTag {
			if !a.patterns.Match(r.Tag1Pattern, tag1) {
				continue
			}
			for tag2, s2 := range byTag {
				if tag1 == tag2 || !a.patterns.Match(r.Tag2Pattern, tag2) {
					continue
				}
				v1, v2 := alignSeries(s1, s2)
				if len(v1) < minCommonPoints {
					continue
				}
				if !ruleFires(r, v1, v2) {
					continue
				}
				anomalies = append(anomalies, model.CorrelationAnomaly{
					RuleID:          r.ID,
					RuleName:        r.Name,
					Tag1:            tag1,
					Tag2:            tag2,
					Correlation:     pearson(v1, v2),
					RiskDescription: r.RiskDescription,
					PenaltyScore:    r.PenaltyScore,
				})
			}
		}
	}
	return anomalies, nil
}

// alignSeries intersects two series on timestamp; when fewer than three
// timestamps coincide it falls back to index alignment over the shorter
// prefix.
func alignSeries(s1, s2 *series) ([]float64, []float64) {
	byTs := make(map[int64]float64, len(s2.ts))
	for i, ts := range s2.ts {
		byTs[ts] = s2.vals[i]
	}
	var v1, v2 []float64
	for i, ts := range s1.ts {
		if v, ok := byTs[ts]; ok {
			v1 = append(v1, s1.vals[i])
			v2 = append(v2, v)
		}
	}
	if len(v1) >= minCommonPoints {
		return v1, v2
	}
	n := len(s1.vals)
	if len(s2.vals) < n {
		n = len(s2.vals)
	}
	return s1.vals[:n], s2.vals[:n]
}

func ruleFires(r model.CorrelationRule, v1, v2 []float64) bool {
	switch r.Type {
	case model.CorrSameDirection:
		n1, n2 := normSlope(v1), normSlope(v2)
		return math.Abs(n1) > r.Threshold && math.Abs(n2) > r.Threshold && n1*n2 > 0
	case model.CorrOppositeDirection:
		n1, n2 := normSlope(v1), normSlope(v2)
		return math.Abs(n1) > r.Threshold && math.Abs(n2) > r.Threshold && n1*n2 < 0
	case model.CorrThresholdCombination:
		return math.Abs(latestZ(v1)) > r.Threshold && math.Abs(latestZ(v2)) > r.Threshold
	}
	return false
}

// normSlope is the regression slope normalized by the series mean.
func normSlope(vals []float64) float64 {
	slope := slopeOverIndex(vals)
	mean := meanOf(vals)
	if math.Abs(mean) < epsilon {
		return slope
	}
	return slope / math.Abs(mean)
}

// latestZ is the z-score of the last point against its own series.
func latestZ(vals []float64) float64 {
	mean := meanOf(vals)
	std := stddevOf(vals, mean)
	if std < epsilon {
		return 0
	}
	return (vals[len(vals)-1] - mean) / std
}
