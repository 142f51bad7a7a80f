package engine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/intellimaint/intellimaint/config"
	"github.com/intellimaint/intellimaint/model"
	"github.com/intellimaint/intellimaint/store"
)

// defaultScore is the conservative sub-score used when a tag has no
// baseline or its inputs are NaN/Inf.
const defaultScore = 80

// deviationProblemZ is the per-importance z-score above which a tag is
// flagged as a deviation problem.
var deviationProblemZ = map[model.Importance]float64{
	model.ImportanceCritical: 2.0,
	model.ImportanceMajor:    2.5,
	model.ImportanceMinor:    3.0,
	model.ImportanceTrivial:  3.5,
}

// trendProblemNorm is the per-importance normalized-slope percentage
// above which a trending tag is flagged.
var trendProblemNorm = map[model.Importance]float64{
	model.ImportanceCritical: 0.5,
	model.ImportanceMajor:    0.8,
	model.ImportanceMinor:    1.0,
	model.ImportanceTrivial:  1.0,
}

// HealthCalculator derives the composite health score of a device from
// its window features, baseline, open alarms and correlation anomalies.
type HealthCalculator struct {
	baselines store.HealthBaselineRepository
	alarms    store.AlarmRepository
	imp       *ImportanceMatcher
	corr      *CorrelationAnalyzer // optional
	cfg       config.Config
	log       *zap.Logger
}

// NewHealthCalculator wires the score pipeline. corr may be nil to skip
// correlation augmentation.
func NewHealthCalculator(b store.HealthBaselineRepository, a store.AlarmRepository, imp *ImportanceMatcher, corr *CorrelationAnalyzer, cfg config.Config, log *zap.Logger) *HealthCalculator {
	return &HealthCalculator{baselines: b, alarms: a, imp: imp, corr: corr, cfg: cfg, log: log}
}

// Assess computes the health score for one device's features. The score
// is derived only; the caller appends the snapshot for history.
func (c *HealthCalculator) Assess(ctx context.Context, feats *model.DeviceFeatures) (*model.HealthScore, error) {
	if feats == nil || len(feats.TagFeatures) == 0 {
		return nil, fmt.Errorf("%w: no features for assessment", model.ErrInsufficientData)
	}

	baseline, err := c.baselines.Get(ctx, feats.DeviceID)
	if err != nil {
		baseline = nil // no baseline is a degraded mode, not a failure
	}

	open, err := c.openAlarms(ctx, feats.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("load open alarms for %s: %w", feats.DeviceID, err)
	}

	hs := &model.HealthScore{
		DeviceID:    feats.DeviceID,
		Timestamp:   feats.Timestamp,
		HasBaseline: baseline != nil,
	}

	var problems []model.ProblemTag
	hs.DeviationScore, problems = c.deviationScore(feats, baseline, problems)
	hs.TrendScore, problems = c.trendScore(feats, problems)
	hs.StabilityScore = c.stabilityScore(feats, baseline)
	hs.AlarmScore = CalculateAlarmScore(open, c.cfg.AlarmScore, feats.Timestamp)

	w := c.cfg.Weights
	composite := hs.DeviationScore*w.Deviation + hs.TrendScore*w.Trend +
		hs.StabilityScore*w.Stability + hs.AlarmScore*w.Alarm
	hs.Index = int(clampf(math.Round(composite), 0, 100))

	sort.SliceStable(problems, func(i, j int) bool {
		if problems[i].Importance != problems[j].Importance {
			return problems[i].Importance > problems[j].Importance
		}
		return problems[i].ZScore > problems[j].ZScore
	})
	if len(problems) > 3 {
		problems = problems[:3]
	}
	hs.ProblemTags = problems
	hs.DiagnosticMessage = diagnosticMessage(problems)

	if c.corr != nil {
		c.applyCorrelation(ctx, hs)
	}

	hs.Level = c.Band(hs.Index)
	return hs, nil
}

// Band maps an index to its configured health level.
func (c *HealthCalculator) Band(index int) model.HealthLevel {
	lt := c.cfg.LevelThresholds
	switch {
	case index >= lt.HealthyMin:
		return model.HealthHealthy
	case index >= lt.AttentionMin:
		return model.HealthAttention
	case index >= lt.WarningMin:
		return model.HealthWarning
	default:
		return model.HealthCritical
	}
}

func (c *HealthCalculator) openAlarms(ctx context.Context, deviceID string) ([]model.AlarmRecord, error) {
	all, err := c.alarms.Query(ctx, model.AlarmQuery{DeviceID: deviceID})
	if err != nil {
		return nil, err
	}
	open := all[:0:0]
	for _, a := range all {
		if a.Status != model.AlarmClosed {
			open = append(open, a)
		}
	}
	return open, nil
}

// deviationScore is the sigmoid-smoothed baseline deviation, weighted by
// tag importance. Tags without a usable baseline contribute the default.
func (c *HealthCalculator) deviationScore(feats *model.DeviceFeatures, baseline *model.DeviceBaseline, problems []model.ProblemTag) (float64, []model.ProblemTag) {
	var sum, wsum float64
	for tagID, f := range feats.TagFeatures {
		imp := c.imp.Lookup(tagID)
		w := imp.Weight()
		wsum += w

		tb, ok := baseline.Baseline(tagID)
		if !ok || tb.NormalStdDev < epsilon {
			sum += defaultScore * w
			continue
		}
		z := math.Abs(f.Mean-tb.NormalMean) / tb.NormalStdDev
		if z > 10 {
			z = 10
		}
		score := clampf(100*(1-sigmoid(z-3.0, 1.2)*0.95), 5, 100)
		sum += score * w

		if z > deviationProblemZ[imp] {
			problems = append(problems, model.ProblemTag{
				TagID:      tagID,
				Importance: imp,
				ZScore:     z,
				Reason:     fmt.Sprintf("mean %.4g deviates %.1f sigma from baseline %.4g", f.Mean, z, tb.NormalMean),
			})
		}
	}
	if wsum < epsilon {
		return defaultScore, problems
	}
	return sum / wsum, problems
}

// trendScore penalizes sustained drift with sqrt smoothing.
func (c *HealthCalculator) trendScore(feats *model.DeviceFeatures, problems []model.ProblemTag) (float64, []model.ProblemTag) {
	var sum, wsum float64
	for tagID, f := range feats.TagFeatures {
		imp := c.imp.Lookup(tagID)
		w := imp.Weight()
		wsum += w

		var norm float64
		if math.Abs(f.Mean) >= epsilon {
			norm = math.Abs(f.TrendSlope) / math.Abs(f.Mean) * 100
		} else {
			norm = math.Min(10*math.Abs(f.TrendSlope), 20)
		}
		score := clampf(100-8*math.Sqrt(norm), 20, 100)
		sum += score * w

		if f.TrendDirection != 0 && norm > trendProblemNorm[imp] {
			dir := "rising"
			if f.TrendDirection < 0 {
				dir = "falling"
			}
			problems = append(problems, model.ProblemTag{
				TagID:      tagID,
				Importance: imp,
				ZScore:     norm,
				Reason:     fmt.Sprintf("%s at %.2f%% per sample", dir, norm),
			})
		}
	}
	if wsum < epsilon {
		return 100, problems
	}
	return sum / wsum, problems
}

// stabilityScore penalizes coefficient-of-variation excess over the
// baseline-aware threshold with log smoothing.
func (c *HealthCalculator) stabilityScore(feats *model.DeviceFeatures, baseline *model.DeviceBaseline) float64 {
	var sum, wsum float64
	for tagID, f := range feats.TagFeatures {
		imp := c.imp.Lookup(tagID)
		w := imp.Weight()
		wsum += w

		cv := f.CoefficientOfVariation
		if math.IsNaN(cv) || math.IsInf(cv, 0) {
			sum += defaultScore * w
			continue
		}
		cvT := 0.2
		if tb, ok := baseline.Baseline(tagID); ok && tb.NormalCV > epsilon {
			cvT = clampf(1.5*tb.NormalCV, 0.05, 0.5)
		}
		score := 100.0
		if cv > cvT {
			excess := cv / cvT
			score = clampf(100-40*math.Log(excess+1), 20, 100)
		}
		sum += score * w
	}
	if wsum < epsilon {
		return 100
	}
	return sum / wsum
}

// applyCorrelation subtracts rule penalties from the composite index and
// prepends the two leading risk descriptions to the diagnostic message.
func (c *HealthCalculator) applyCorrelation(ctx context.Context, hs *model.HealthScore) {
	anomalies, err := c.corr.Analyze(ctx, hs.DeviceID)
	if err != nil {
		c.log.Warn("correlation analysis failed", zap.String("device", hs.DeviceID), zap.Error(err))
		return
	}
	if len(anomalies) == 0 {
		return
	}
	var penalty float64
	for _, a := range anomalies {
		penalty += a.PenaltyScore
	}
	hs.Index = int(math.Max(float64(hs.Index)-penalty, c.cfg.AlarmScore.MinScore))

	sort.SliceStable(anomalies, func(i, j int) bool { return anomalies[i].PenaltyScore > anomalies[j].PenaltyScore })
	risks := make([]string, 0, 2)
	for _, a := range anomalies {
		if a.RiskDescription == "" {
			continue
		}
		risks = append(risks, a.RiskDescription)
		if len(risks) == 2 {
			break
		}
	}
	if len(risks) > 0 {
		prefix := strings.Join(risks, "; ")
		if hs.DiagnosticMessage != "" {
			hs.DiagnosticMessage = prefix + "; " + hs.DiagnosticMessage
		} else {
			hs.DiagnosticMessage = prefix
		}
	}
}

func diagnosticMessage(problems []model.ProblemTag) string {
	if len(problems) == 0 {
		return ""
	}
	parts := make([]string, 0, len(problems))
	for _, p := range problems {
		parts = append(parts, fmt.Sprintf("%s (%s): %s", p.TagID, p.Importance, p.Reason))
	}
	return strings.Join(parts, "; ")
}
