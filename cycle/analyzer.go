package cycle

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/intellimaint/intellimaint/config"
	"github.com/intellimaint/intellimaint/model"
	"github.com/intellimaint/intellimaint/store"
)

// Anomaly scoring constants from the cycle assessment table.
const (
	timeoutSeconds    = 120
	tooShortSeconds   = 30
	overCurrentAmps   = 12000
	deviationLimitPct = 20
	stallAngleDeg     = 100
	anomalyScoreFloor = 30 // IsAnomaly when the total reaches this
)

// Analyzer pulls the cycle-relevant streams of a device, detects cycles
// and scores each against the learned baselines.
type Analyzer struct {
	telemetry store.TelemetryRepository
	baselines store.CycleBaselineRepository
	cycles    store.CycleRepository
	cfg       config.CycleConfig
	log       *zap.Logger
}

// NewAnalyzer wires the cycle pipeline.
func NewAnalyzer(t store.TelemetryRepository, b store.CycleBaselineRepository, c store.CycleRepository, cfg config.CycleConfig, log *zap.Logger) *Analyzer {
	return &Analyzer{telemetry: t, baselines: b, cycles: c, cfg: cfg, log: log}
}

// Analyze detects and scores the cycles of one device inside
// [startTs, endTs) and appends them to the cycle store.
func (a *Analyzer) Analyze(ctx context.Context, deviceID string, startTs, endTs int64) ([]model.WorkCycle, error) {
	angle, err := a.querySeries(ctx, deviceID, a.cfg.AngleTag, startTs, endTs)
	if err != nil {
		return nil, err
	}
	if len(angle) < 2 {
		return nil, fmt.Errorf("%w: %d angle samples for %s", model.ErrInsufficientData, len(angle), deviceID)
	}
	bounds := DetectBoundaries(angle, a.cfg.AngleThreshold, a.cfg.MinCycleDuration, a.cfg.MaxCycleDuration)
	if len(bounds) == 0 {
		return nil, nil
	}

	baseline, err := a.baselines.Get(ctx, deviceID)
	if err != nil {
		baseline = nil // unlearned devices use the static fallbacks
	}

	cycles := make([]model.WorkCycle, 0, len(bounds))
	for _, b := range bounds {
		if err := ctx.Err(); err != nil {
			return cycles, err
		}
		wc, err := a.analyzeOne(ctx, deviceID, b, baseline)
		if err != nil {
			a.log.Warn("cycle analysis failed", zap.String("device", deviceID), zap.Int64("start", b.StartTs), zap.Error(err))
			continue
		}
		cycles = append(cycles, *wc)
	}
	if len(cycles) > 0 {
		if err := a.cycles.Append(ctx, cycles); err != nil {
			return cycles, fmt.Errorf("store cycles for %s: %w", deviceID, err)
		}
	}
	return cycles, nil
}

func (a *Analyzer) analyzeOne(ctx context.Context, deviceID string, b Boundary, baseline *model.CycleDeviceBaseline) (*model.WorkCycle, error) {
	angle, err := a.querySeries(ctx, deviceID, a.cfg.AngleTag, b.StartTs, b.EndTs)
	if err != nil {
		return nil, err
	}
	m1, err := a.querySeries(ctx, deviceID, a.cfg.Motor1CurrentTag, b.StartTs, b.EndTs)
	if err != nil {
		return nil, err
	}
	m2, err := a.querySeries(ctx, deviceID, a.cfg.Motor2CurrentTag, b.StartTs, b.EndTs)
	if err != nil {
		return nil, err
	}

	wc := &model.WorkCycle{
		DeviceID:        deviceID,
		SegmentID:       uuid.NewString(),
		StartTimeUtc:    b.StartTs,
		EndTimeUtc:      b.EndTs,
		DurationSeconds: b.DurationSeconds(),
		MaxAngle:        b.MaxAngle,
	}
	wc.Motor1PeakCurrent, wc.Motor1AvgCurrent, wc.Motor1EnergyCurrent = motorStats(m1)
	wc.Motor2PeakCurrent, wc.Motor2AvgCurrent, wc.Motor2EnergyCurrent = motorStats(m2)
	if wc.Motor2AvgCurrent > 0 {
		wc.MotorBalanceRatio = wc.Motor1AvgCurrent / wc.Motor2AvgCurrent
	}
	wc.BaselineDeviationPercent = baselineDeviation(angle, m1, m2, baseline)

	scoreCycle(wc, baseline)
	return wc, nil
}

func (a *Analyzer) querySeries(ctx context.Context, deviceID, tagID string, startTs, endTs int64) ([]Sample, error) {
	points, err := a.telemetry.QuerySimple(ctx, deviceID, tagID, startTs, endTs, 0)
	if err != nil {
		return nil, fmt.Errorf("query %s/%s: %w", deviceID, tagID, err)
	}
	out := make([]Sample, 0, len(points))
	for _, p := range points {
		if v, ok := p.Value(); ok {
			out = append(out, Sample{Ts: p.Ts, Value: v})
		}
	}
	return out, nil
}

// motorStats returns peak, average and trapezoidal energy of a current
// series; energy integrates over seconds.
func motorStats(s []Sample) (peak, avg, energy float64) {
	if len(s) == 0 {
		return 0, 0, 0
	}
	var sum float64
	for _, v := range s {
		if v.Value > peak {
			peak = v.Value
		}
		sum += v.Value
	}
	avg = sum / float64(len(s))
	for i := 1; i < len(s); i++ {
		dt := float64(s[i].Ts-s[i-1].Ts) / 1000
		energy += (s[i].Value + s[i-1].Value) / 2 * dt
	}
	return peak, avg, energy
}

// baselineDeviation compares in-cycle currents against the fitted
// current = a*angle^2 + b*angle + c models, averaged over both motors.
func baselineDeviation(angle, m1, m2 []Sample, baseline *model.CycleDeviceBaseline) float64 {
	if baseline == nil {
		return 0
	}
	var sum float64
	var n int
	if baseline.Motor1 != nil {
		if d, ok := polyDeviation(angle, m1, baseline.Motor1); ok {
			sum += d
			n++
		}
	}
	if baseline.Motor2 != nil {
		if d, ok := polyDeviation(angle, m2, baseline.Motor2); ok {
			sum += d
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func polyDeviation(angle, current []Sample, p *model.PolyBaseline) (float64, bool) {
	pairs := alignByTs(angle, current)
	if len(pairs) == 0 {
		return 0, false
	}
	var sum float64
	var n int
	for _, pr := range pairs {
		pred := p.A*pr.x*pr.x + p.B*pr.x + p.C
		if math.Abs(pred) < 1e-9 {
			continue
		}
		sum += math.Abs(pr.y-pred) / math.Abs(pred) * 100
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

type pair struct{ x, y float64 }

// alignByTs joins two series on exact timestamps.
func alignByTs(a, b []Sample) []pair {
	byTs := make(map[int64]float64, len(b))
	for _, s := range b {
		byTs[s.Ts] = s.Value
	}
	var out []pair
	for _, s := range a {
		if v, ok := byTs[s.Ts]; ok {
			out = append(out, pair{x: s.Value, y: v})
		}
	}
	return out
}

// scoreCycle fills the anomaly fields from the contribution table. The
// primary type is the highest contributor; the total is capped at 100.
func scoreCycle(wc *model.WorkCycle, baseline *model.CycleDeviceBaseline) {
	contrib := map[string]float64{}

	if wc.DurationSeconds > timeoutSeconds {
		contrib[model.CycleAnomalyTimeout] = 30 + (wc.DurationSeconds-timeoutSeconds)/10
	}
	if wc.DurationSeconds < tooShortSeconds {
		contrib[model.CycleAnomalyTooShort] = 30 + (tooShortSeconds - wc.DurationSeconds)
	}

	peak := math.Max(wc.Motor1PeakCurrent, wc.Motor2PeakCurrent)
	if peak > overCurrentAmps {
		overPct := (peak - overCurrentAmps) / overCurrentAmps * 100
		contrib[model.CycleAnomalyOverCurrent] = 20 + overPct
	}

	if wc.MotorBalanceRatio > 0 {
		if baseline != nil && baseline.Balance != nil && baseline.Balance.StdDev > 1e-9 {
			mu, sigma := baseline.Balance.Mean, baseline.Balance.StdDev
			if wc.MotorBalanceRatio < mu-2*sigma || wc.MotorBalanceRatio > mu+2*sigma {
				contrib[model.CycleAnomalyImbalance] = math.Abs(wc.MotorBalanceRatio-mu) / sigma * 10
			}
		} else if wc.MotorBalanceRatio < 0.7 || wc.MotorBalanceRatio > 1.3 {
			contrib[model.CycleAnomalyImbalance] = math.Abs(wc.MotorBalanceRatio-1) * 50
		}
	}

	if wc.BaselineDeviationPercent > deviationLimitPct {
		contrib[model.CycleAnomalyBaselineDev] = wc.BaselineDeviationPercent
	}
	if wc.MaxAngle < stallAngleDeg {
		contrib[model.CycleAnomalyAngleStall] = 20 + (stallAngleDeg-wc.MaxAngle)/2
	}

	var total, best float64
	var primary string
	for kind, v := range contrib {
		total += v
		if v > best {
			best, primary = v, kind
		}
	}
	wc.AnomalyScore = math.Min(100, total)
	wc.IsAnomaly = wc.AnomalyScore >= anomalyScoreFloor
	if wc.IsAnomaly {
		wc.AnomalyType = primary
	}
}
