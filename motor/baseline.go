package motor

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/intellimaint/intellimaint/model"
	"github.com/intellimaint/intellimaint/store"
)

// learnWindow is the trailing telemetry window consumed by a baseline
// learn.
const learnWindow = 24 * time.Hour

// nowMilli is stubbed in tests that need a fixed clock.
var nowMilli = func() int64 { return time.Now().UnixMilli() }

// Welford accumulates mean and variance online; used for incremental
// profile refresh without re-reading history.
type Welford struct {
	Count int64
	mean  float64
	m2    float64
}

// Add folds one sample into the accumulator.
func (w *Welford) Add(x float64) {
	w.Count++
	delta := x - w.mean
	w.mean += delta / float64(w.Count)
	w.m2 += delta * (x - w.mean)
}

// Mean returns the running mean.
func (w *Welford) Mean() float64 { return w.mean }

// StdDev returns the running population standard deviation.
func (w *Welford) StdDev() float64 {
	if w.Count < 2 {
		return 0
	}
	return math.Sqrt(w.m2 / float64(w.Count))
}

// Seed initializes the accumulator from a stored profile.
func (w *Welford) Seed(mean, stddev float64, count int64) {
	w.Count = count
	w.mean = mean
	w.m2 = stddev * stddev * float64(count)
}

// BaselineLearner builds per-(instance, mode, parameter) profiles from
// mapped telemetry.
type BaselineLearner struct {
	telemetry  store.TelemetryRepository
	instances  store.MotorInstanceRepository
	models     store.MotorModelRepository
	mappings   store.MotorParameterMappingRepository
	profiles   store.BaselineProfileRepository
	minSamples int
	log        *zap.Logger
}

// NewBaselineLearner wires the profile learner.
func NewBaselineLearner(t store.TelemetryRepository, i store.MotorInstanceRepository, m store.MotorModelRepository, mp store.MotorParameterMappingRepository, p store.BaselineProfileRepository, minSamples int, log *zap.Logger) *BaselineLearner {
	if minSamples <= 0 {
		minSamples = 500
	}
	return &BaselineLearner{telemetry: t, instances: i, models: m, mappings: mp, profiles: p, minSamples: minSamples, log: log}
}

// Learn builds and saves a profile for every mapped parameter of the
// instance in the given mode. At least one parameter must qualify.
func (l *BaselineLearner) Learn(ctx context.Context, instanceID, modeID string) ([]model.BaselineProfile, error) {
	inst, err := l.instances.Get(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	motorModel, err := l.models.Get(ctx, inst.ModelID)
	if err != nil {
		return nil, err
	}
	mappings, err := l.mappings.ListByInstance(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("list mappings for %s: %w", instanceID, err)
	}

	var out []model.BaselineProfile
	for _, mapping := range mappings {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		p, err := l.learnParameter(ctx, inst, motorModel, mapping, modeID)
		if err != nil {
			l.log.Debug("profile learn skipped",
				zap.String("instance", instanceID),
				zap.String("parameter", string(mapping.Parameter)),
				zap.Error(err))
			continue
		}
		if err := l.profiles.Save(ctx, p); err != nil {
			return out, fmt.Errorf("save profile %s/%s: %w", instanceID, mapping.Parameter, err)
		}
		out = append(out, *p)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no parameter of %s has %d samples", model.ErrInsufficientData, instanceID, l.minSamples)
	}
	return out, nil
}

func (l *BaselineLearner) learnParameter(ctx context.Context, inst model.MotorInstance, motorModel model.MotorModel, mapping model.MotorParameterMapping, modeID string) (*model.BaselineProfile, error) {
	now := nowMilli()
	start := now - learnWindow.Milliseconds()
	points, err := l.telemetry.QuerySimple(ctx, inst.DeviceID, mapping.TagID, start, now, 0)
	if err != nil {
		return nil, err
	}
	vals := make([]float64, 0, len(points))
	for _, p := range points {
		if v, ok := p.Value(); ok {
			vals = append(vals, mapping.Apply(v))
		}
	}
	if len(vals) < l.minSamples {
		return nil, fmt.Errorf("%w: %d samples, need %d", model.ErrInsufficientData, len(vals), l.minSamples)
	}

	p := describeProfile(vals)
	p.InstanceID = inst.InstanceID
	p.ModeID = modeID
	p.Parameter = mapping.Parameter
	p.UpdatedUtc = now

	if mapping.Parameter.IsCurrent() {
		rate := sampleRateHz(points)
		if rate > 0 {
			p.Frequency = ComputeProfile(vals, rate, motorModel.SupplyFreqHz, motorModel.Bearing, RotationHz(motorModel))
		}
	}
	return p, nil
}

// UpdateOnline folds fresh samples into a stored profile via Welford,
// recomputing the confidence. Percentiles keep their learned values.
func (l *BaselineLearner) UpdateOnline(ctx context.Context, instanceID, modeID string, parameter model.MotorParameter, samples []float64) error {
	p, err := l.profiles.Get(ctx, instanceID, modeID, parameter)
	if err != nil {
		return err
	}
	var w Welford
	w.Seed(p.Mean, p.StdDev, p.SampleCount)
	for _, x := range samples {
		w.Add(x)
		if x < p.Min {
			p.Min = x
		}
		if x > p.Max {
			p.Max = x
		}
	}
	p.Mean = w.Mean()
	p.StdDev = w.StdDev()
	p.SampleCount = w.Count
	p.ConfidencePercent = confidence(p.Mean, p.StdDev, p.SampleCount)
	p.UpdatedUtc = nowMilli()
	return l.profiles.Save(ctx, p)
}

// describeProfile computes the distribution statistics of the sample set.
func describeProfile(vals []float64) *model.BaselineProfile {
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	n := len(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	mean := sum / float64(n)
	var ss float64
	for _, v := range sorted {
		d := v - mean
		ss += d * d
	}
	std := math.Sqrt(ss / float64(n))

	return &model.BaselineProfile{
		Mean:              mean,
		StdDev:            std,
		Min:               sorted[0],
		Max:               sorted[n-1],
		Median:            percentile(sorted, 0.50),
		P05:               percentile(sorted, 0.05),
		P95:               percentile(sorted, 0.95),
		SampleCount:       int64(n),
		ConfidencePercent: confidence(mean, std, int64(n)),
	}
}

func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(q * float64(len(sorted)-1))
	return sorted[idx]
}

// confidence blends relative spread and sample volume:
// 0.6*(1 - min(1, sigma/|mu|)) + 0.4*min(1, n/10000), as a percentage.
func confidence(mean, std float64, n int64) float64 {
	spread := 1.0
	if math.Abs(mean) > 1e-9 {
		spread = math.Min(1, std/math.Abs(mean))
	}
	return (0.6*(1-spread) + 0.4*math.Min(1, float64(n)/10000)) * 100
}

// sampleRateHz estimates the sampling rate from the median inter-sample
// gap.
func sampleRateHz(points []model.TelemetryPoint) float64 {
	if len(points) < 2 {
		return 0
	}
	gaps := make([]int64, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		if d := points[i].Ts - points[i-1].Ts; d > 0 {
			gaps = append(gaps, d)
		}
	}
	if len(gaps) == 0 {
		return 0
	}
	sort.Slice(gaps, func(i, j int) bool { return gaps[i] < gaps[j] })
	return 1000 / float64(gaps[len(gaps)/2])
}
