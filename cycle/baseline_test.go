package cycle

import (
	"context"
	"errors"
	"math"
	"testing"

	"go.uber.org/zap"

	"github.com/intellimaint/intellimaint/config"
	"github.com/intellimaint/intellimaint/model"
	"github.com/intellimaint/intellimaint/store"
)

func TestGaussianSolve(t *testing.T) {
	// 2x + y = 5, x + 3y = 10 -> x = 1, y = 3.
	a := [][]float64{{2, 1}, {1, 3}}
	b := []float64{5, 10}
	x, err := gaussianSolve(a, b)
	if err != nil {
		t.Fatalf("gaussianSolve: %v", err)
	}
	if math.Abs(x[0]-1) > 1e-9 || math.Abs(x[1]-3) > 1e-9 {
		t.Errorf("solution = %v, want [1 3]", x)
	}
}

func TestGaussianSolveSingular(t *testing.T) {
	a := [][]float64{{1, 2}, {2, 4}}
	b := []float64{3, 6}
	if _, err := gaussianSolve(a, b); err == nil {
		t.Fatal("singular system must fail")
	}
}

func TestPolyfit2RoundTrip(t *testing.T) {
	// Sample an exact quadratic and recover its coefficients.
	const a, b, c = 0.5, -3, 250
	var pairs []pair
	for x := 10.0; x <= 170; x += 4 {
		pairs = append(pairs, pair{x: x, y: a*x*x + b*x + c})
	}
	coef, err := polyfit2(pairs)
	if err != nil {
		t.Fatalf("polyfit2: %v", err)
	}
	if math.Abs(coef[2]-a) > 1e-6 || math.Abs(coef[1]-b) > 1e-6 || math.Abs(coef[0]-c) > 1e-4 {
		t.Errorf("coefficients = %v, want [%v %v %v]", coef, c, b, a)
	}
}

func TestFitPoly(t *testing.T) {
	// current = 0.2*angle^2 + 400 over aligned timestamps; every pair
	// qualifies (angle > 5, current > 100).
	var angle, current []Sample
	for i := 0; i < 40; i++ {
		ts := int64(i) * 1000
		x := 10 + float64(i)*4
		angle = append(angle, Sample{Ts: ts, Value: x})
		current = append(current, Sample{Ts: ts, Value: 0.2*x*x + 400})
	}
	pb, err := fitPoly(angle, current)
	if err != nil {
		t.Fatalf("fitPoly: %v", err)
	}
	if math.Abs(pb.A-0.2) > 1e-6 || math.Abs(pb.B) > 1e-4 || math.Abs(pb.C-400) > 1e-2 {
		t.Errorf("fit = A=%v B=%v C=%v, want A=0.2 B=0 C=400", pb.A, pb.B, pb.C)
	}
	if pb.R2 < 0.999 {
		t.Errorf("r2 = %v, want ~1 for an exact quadratic", pb.R2)
	}
	if pb.SampleCount != 40 {
		t.Errorf("sample count = %d, want 40", pb.SampleCount)
	}
	if pb.Version != baselineVersion {
		t.Errorf("version = %d, want %d", pb.Version, baselineVersion)
	}
}

func TestFitPolyTooFewPairs(t *testing.T) {
	var angle, current []Sample
	for i := 0; i < 10; i++ {
		ts := int64(i) * 1000
		angle = append(angle, Sample{Ts: ts, Value: 50})
		current = append(current, Sample{Ts: ts, Value: 500})
	}
	if _, err := fitPoly(angle, current); !errors.Is(err, model.ErrInsufficientData) {
		t.Fatalf("fitPoly = %v, want ErrInsufficientData", err)
	}
}

func TestFitBalance(t *testing.T) {
	var m1, m2 []Sample
	for i := 0; i < 40; i++ {
		ts := int64(i) * 1000
		m1 = append(m1, Sample{Ts: ts, Value: 1100})
		m2 = append(m2, Sample{Ts: ts, Value: 1000})
	}
	bb, err := fitBalance(m1, m2)
	if err != nil {
		t.Fatalf("fitBalance: %v", err)
	}
	if math.Abs(bb.Mean-1.1) > 1e-9 {
		t.Errorf("mean ratio = %v, want 1.1", bb.Mean)
	}
	if bb.StdDev != 0 {
		t.Errorf("stddev = %v, want 0 for constant currents", bb.StdDev)
	}
}

func TestFitBalanceIgnoresIdleSamples(t *testing.T) {
	var m1, m2 []Sample
	// All samples idle (below the 500 gate): not learnable.
	for i := 0; i < 40; i++ {
		ts := int64(i) * 1000
		m1 = append(m1, Sample{Ts: ts, Value: 100})
		m2 = append(m2, Sample{Ts: ts, Value: 100})
	}
	if _, err := fitBalance(m1, m2); !errors.Is(err, model.ErrInsufficientData) {
		t.Fatalf("fitBalance = %v, want ErrInsufficientData", err)
	}
}

func TestLearn(t *testing.T) {
	const now = int64(1_700_000_000_000)
	old := nowMilli
	nowMilli = func() int64 { return now }
	t.Cleanup(func() { nowMilli = old })

	repos := store.NewMemory().Repositories()
	cfg := config.Default().Cycle
	l := NewBaselineLearner(repos.Telemetry, repos.CycleBaselines, cfg, zap.NewNop())
	ctx := context.Background()

	base := now - 3_600_000
	var angle []Sample
	for i := 0; i < 6; i++ {
		angle = rampCycle(angle, base+int64(i)*120_000, 160, 30, 30)
	}
	fv := func(v float64) *float64 { return &v }
	var points []model.TelemetryPoint
	for _, s := range angle {
		points = append(points, model.TelemetryPoint{
			DeviceID: "crane1", TagID: cfg.AngleTag, Ts: s.Ts,
			ValueType: model.ValueFloat64, FloatVal: fv(s.Value),
		})
		// current tracks a quadratic in angle during motion
		cur := 0.1*s.Value*s.Value + 600
		points = append(points,
			model.TelemetryPoint{
				DeviceID: "crane1", TagID: cfg.Motor1CurrentTag, Ts: s.Ts,
				ValueType: model.ValueFloat64, FloatVal: fv(cur),
			},
			model.TelemetryPoint{
				DeviceID: "crane1", TagID: cfg.Motor2CurrentTag, Ts: s.Ts,
				ValueType: model.ValueFloat64, FloatVal: fv(cur),
			})
	}
	if err := repos.Telemetry.Append(ctx, points); err != nil {
		t.Fatal(err)
	}

	b, err := l.Learn(ctx, "crane1", base-1000, now)
	if err != nil {
		t.Fatalf("Learn: %v", err)
	}
	if b.Motor1 == nil || b.Motor2 == nil {
		t.Fatalf("poly baselines missing: %+v", b)
	}
	if math.Abs(b.Motor1.A-0.1) > 1e-6 {
		t.Errorf("motor1 A = %v, want 0.1", b.Motor1.A)
	}
	if b.Balance == nil {
		t.Fatal("balance baseline missing")
	}
	if math.Abs(b.Balance.Mean-1) > 1e-9 {
		t.Errorf("balance mean = %v, want 1", b.Balance.Mean)
	}
	if b.Duration == nil {
		t.Fatal("duration baseline missing")
	}
	if b.Duration.SampleCount < 5 {
		t.Errorf("duration samples = %d, want at least 5", b.Duration.SampleCount)
	}
	if b.UpdatedUtc != now {
		t.Errorf("UpdatedUtc = %d, want the learn time", b.UpdatedUtc)
	}

	if _, err := repos.CycleBaselines.Get(ctx, "crane1"); err != nil {
		t.Errorf("baseline not persisted: %v", err)
	}
}
