package cycle

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/intellimaint/intellimaint/config"
	"github.com/intellimaint/intellimaint/model"
	"github.com/intellimaint/intellimaint/store"
)

// Learning floors per baseline kind.
const (
	minPolyPairs     = 30 // (angle > 5, current > 100) pairs
	minBalancePairs  = 30 // both currents > 500
	minDurationCount = 5
	baselineVersion  = 1
)

// BaselineLearner fits the per-device cycle baselines: a quadratic
// current-vs-angle model per motor, the balance ratio distribution and
// the cycle duration distribution.
type BaselineLearner struct {
	telemetry store.TelemetryRepository
	baselines store.CycleBaselineRepository
	cfg       config.CycleConfig
	log       *zap.Logger
}

// NewBaselineLearner wires the learner.
func NewBaselineLearner(t store.TelemetryRepository, b store.CycleBaselineRepository, cfg config.CycleConfig, log *zap.Logger) *BaselineLearner {
	return &BaselineLearner{telemetry: t, baselines: b, cfg: cfg, log: log}
}

// Learn fits every learnable baseline from [startTs, endTs) and saves
// the result. Baselines without enough data are left out; at least one
// must succeed.
func (l *BaselineLearner) Learn(ctx context.Context, deviceID string, startTs, endTs int64) (*model.CycleDeviceBaseline, error) {
	angle, err := l.series(ctx, deviceID, l.cfg.AngleTag, startTs, endTs)
	if err != nil {
		return nil, err
	}
	m1, err := l.series(ctx, deviceID, l.cfg.Motor1CurrentTag, startTs, endTs)
	if err != nil {
		return nil, err
	}
	m2, err := l.series(ctx, deviceID, l.cfg.Motor2CurrentTag, startTs, endTs)
	if err != nil {
		return nil, err
	}

	out := &model.CycleDeviceBaseline{DeviceID: deviceID, UpdatedUtc: nowMilli()}

	if pb, err := fitPoly(angle, m1); err == nil {
		out.Motor1 = pb
	} else {
		l.log.Debug("motor1 polyfit skipped", zap.String("device", deviceID), zap.Error(err))
	}
	if pb, err := fitPoly(angle, m2); err == nil {
		out.Motor2 = pb
	} else {
		l.log.Debug("motor2 polyfit skipped", zap.String("device", deviceID), zap.Error(err))
	}
	if bb, err := fitBalance(m1, m2); err == nil {
		out.Balance = bb
	} else {
		l.log.Debug("balance baseline skipped", zap.String("device", deviceID), zap.Error(err))
	}
	bounds := DetectBoundaries(angle, l.cfg.AngleThreshold, l.cfg.MinCycleDuration, l.cfg.MaxCycleDuration)
	if db, err := fitDuration(bounds); err == nil {
		out.Duration = db
	} else {
		l.log.Debug("duration baseline skipped", zap.String("device", deviceID), zap.Error(err))
	}

	if out.Motor1 == nil && out.Motor2 == nil && out.Balance == nil && out.Duration == nil {
		return nil, fmt.Errorf("%w: no cycle baseline learnable for %s", model.ErrInsufficientData, deviceID)
	}
	if err := l.baselines.Save(ctx, out); err != nil {
		return nil, fmt.Errorf("save cycle baseline for %s: %w", deviceID, err)
	}
	return out, nil
}

func (l *BaselineLearner) series(ctx context.Context, deviceID, tagID string, startTs, endTs int64) ([]Sample, error) {
	points, err := l.telemetry.QuerySimple(ctx, deviceID, tagID, startTs, endTs, 0)
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

// fitPoly fits current = a*angle^2 + b*angle + c over qualifying pairs
// (angle above 5 degrees, current above 100) by least squares.
func fitPoly(angle, current []Sample) (*model.PolyBaseline, error) {
	pairs := alignByTs(angle, current)
	qualified := pairs[:0:0]
	for _, p := range pairs {
		if p.x > 5 && p.y > 100 {
			qualified = append(qualified, p)
		}
	}
	if len(qualified) < minPolyPairs {
		return nil, fmt.Errorf("%w: %d qualifying pairs, need %d", model.ErrInsufficientData, len(qualified), minPolyPairs)
	}

	coef, err := polyfit2(qualified)
	if err != nil {
		return nil, err
	}
	var ssRes, ssTot float64
	var meanY float64
	for _, p := range qualified {
		meanY += p.y
	}
	meanY /= float64(len(qualified))
	for _, p := range qualified {
		pred := coef[2]*p.x*p.x + coef[1]*p.x + coef[0]
		ssRes += (p.y - pred) * (p.y - pred)
		ssTot += (p.y - meanY) * (p.y - meanY)
	}
	r2 := 1.0
	if ssTot > 1e-9 {
		r2 = 1 - ssRes/ssTot
	}
	return &model.PolyBaseline{
		Version:     baselineVersion,
		A:           coef[2],
		B:           coef[1],
		C:           coef[0],
		SampleCount: len(qualified),
		R2:          r2,
	}, nil
}

// polyfit2 solves the degree-2 least-squares normal equations for
// coefficients [c0, c1, c2] of c0 + c1*x + c2*x^2.
func polyfit2(pairs []pair) ([]float64, error) {
	var s [5]float64 // sums of x^0 .. x^4
	var t [3]float64 // sums of y*x^0 .. y*x^2
	for _, p := range pairs {
		xp := 1.0
		for k := 0; k < 5; k++ {
			s[k] += xp
			if k < 3 {
				t[k] += p.y * xp
			}
			xp *= p.x
		}
	}
	a := [][]float64{
		{s[0], s[1], s[2]},
		{s[1], s[2], s[3]},
		{s[2], s[3], s[4]},
	}
	b := []float64{t[0], t[1], t[2]}
	return gaussianSolve(a, b)
}

// gaussianSolve runs Gaussian elimination with partial pivoting on the
// augmented system a*x = b, mutating its inputs.
func gaussianSolve(a [][]float64, b []float64) ([]float64, error) {
	n := len(b)
	for col := 0; col < n; col++ {
		pivot := col
		for row := col + 1; row < n; row++ {
			if math.Abs(a[row][col]) > math.Abs(a[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return nil, fmt.Errorf("singular system at column %d", col)
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]

		for row := col + 1; row < n; row++ {
			f := a[row][col] / a[col][col]
			for k := col; k < n; k++ {
				a[row][k] -= f * a[col][k]
			}
			b[row] -= f * b[col]
		}
	}
	x := make([]float64, n)
	for row := n - 1; row >= 0; row-- {
		sum := b[row]
		for k := row + 1; k < n; k++ {
			sum -= a[row][k] * x[k]
		}
		x[row] = sum / a[row][row]
	}
	return x, nil
}

// fitBalance learns the motor balance ratio distribution over samples
// where both currents exceed 500.
func fitBalance(m1, m2 []Sample) (*model.BalanceBaseline, error) {
	pairs := alignByTs(m1, m2)
	var ratios []float64
	for _, p := range pairs {
		if p.x > 500 && p.y > 500 {
			ratios = append(ratios, p.x/p.y)
		}
	}
	if len(ratios) < minBalancePairs {
		return nil, fmt.Errorf("%w: %d balance pairs, need %d", model.ErrInsufficientData, len(ratios), minBalancePairs)
	}
	mean, std := meanStd(ratios)
	return &model.BalanceBaseline{
		Version:     baselineVersion,
		Mean:        mean,
		StdDev:      std,
		SampleCount: len(ratios),
	}, nil
}

func fitDuration(bounds []Boundary) (*model.DurationBaseline, error) {
	if len(bounds) < minDurationCount {
		return nil, fmt.Errorf("%w: %d cycles, need %d", model.ErrInsufficientData, len(bounds), minDurationCount)
	}
	durations := make([]float64, len(bounds))
	for i, b := range bounds {
		durations[i] = b.DurationSeconds()
	}
	mean, std := meanStd(durations)
	return &model.DurationBaseline{
		Version:     baselineVersion,
		Mean:        mean,
		StdDev:      std,
		SampleCount: len(durations),
	}, nil
}

func meanStd(vals []float64) (float64, float64) {
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean := sum / float64(len(vals))
	var ss float64
	for _, v := range vals {
		d := v - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(len(vals)))
}
