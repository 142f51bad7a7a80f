package engine

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

func newBaselineFixture(t *testing.T) (*store.Repositories, *BaselineService, config.DynamicBaselineConfig) {
	t.Helper()
	repos := store.NewMemory().Repositories()
	cfg := config.DynamicBaselineConfig{
		Enabled:                true,
		UpdateIntervalHours:    1,
		MinSampleCount:         10,
		AnomalyFilterThreshold: 3,
		IncrementalWeight:      0.2,
		AgingFactor:            0.01,
	}
	svc := NewBaselineService(repos.Telemetry, repos.Devices, repos.HealthBaselines, cfg, zap.NewNop())
	return repos, svc, cfg
}

func TestLearnInsufficientData(t *testing.T) {
	stubClock(t, 1_700_000_000_000)
	_, svc, _ := newBaselineFixture(t)
	_, err := svc.Learn(context.Background(), "dev1", 24)
	if !errors.Is(err, model.ErrInsufficientData) {
		t.Fatalf("Learn on empty store = %v, want ErrInsufficientData", err)
	}
}

func TestLearn(t *testing.T) {
	const now = int64(1_700_000_000_000)
	stubClock(t, now)
	repos, svc, _ := newBaselineFixture(t)
	ctx := context.Background()

	var points []model.TelemetryPoint
	for i := 0; i < 120; i++ {
		points = append(points, numPoint("dev1", "temp", now-int64(120-i)*60_000, 50))
	}
	// Below the 100-sample floor, must be skipped.
	for i := 0; i < 20; i++ {
		points = append(points, numPoint("dev1", "sparse", now-int64(20-i)*60_000, 7))
	}
	if err := repos.Telemetry.Append(ctx, points); err != nil {
		t.Fatal(err)
	}

	b, err := svc.Learn(ctx, "dev1", 24)
	if err != nil {
		t.Fatalf("Learn: %v", err)
	}
	if _, ok := b.TagBaselines["sparse"]; ok {
		t.Error("tag below the sample floor must not be learned")
	}
	tb, ok := b.TagBaselines["temp"]
	if !ok {
		t.Fatal("temp baseline missing")
	}
	if tb.NormalMean != 50 || tb.NormalStdDev != 0 {
		t.Errorf("baseline = %+v, want mean 50 stddev 0", tb)
	}

	stored, err := repos.HealthBaselines.Get(ctx, "dev1")
	if err != nil {
		t.Fatalf("baseline not persisted: %v", err)
	}
	if stored.SampleCount != 120 {
		t.Errorf("sample count = %d, want 120", stored.SampleCount)
	}
}

func TestUpdateDeviceBlend(t *testing.T) {
	const now = int64(1_700_000_000_000)
	stubClock(t, now)
	repos, svc, _ := newBaselineFixture(t)
	ctx := context.Background()

	old := &model.DeviceBaseline{
		DeviceID:   "dev1",
		CreatedUtc: now, // zero aging: wOld = 0.8
		UpdatedUtc: now - 2*3_600_000,
		TagBaselines: map[string]model.TagBaseline{
			"temp": {TagID: "temp", NormalMean: 100, NormalStdDev: 20, NormalMin: 90, NormalMax: 110, NormalCV: 0.2},
		},
	}
	if err := repos.HealthBaselines.Save(ctx, old); err != nil {
		t.Fatal(err)
	}

	// 11 samples 108..118 inside the 1h update window, mean exactly 113.
	var points []model.TelemetryPoint
	for i := 0; i <= 10; i++ {
		points = append(points, numPoint("dev1", "temp", now-int64(11-i)*60_000, 108+float64(i)))
	}
	if err := repos.Telemetry.Append(ctx, points); err != nil {
		t.Fatal(err)
	}

	if err := svc.UpdateDevice(ctx, "dev1"); err != nil {
		t.Fatalf("UpdateDevice: %v", err)
	}
	got, err := repos.HealthBaselines.Get(ctx, "dev1")
	if err != nil {
		t.Fatal(err)
	}
	tb := got.TagBaselines["temp"]

	// mu' = (100*0.8 + 113*0.2) / 1.0 = 102.6
	if math.Abs(tb.NormalMean-102.6) > 1e-9 {
		t.Errorf("blended mean = %v, want 102.6", tb.NormalMean)
	}
	if tb.NormalMin != 90 {
		t.Errorf("min = %v, want 90 (old bound preserved)", tb.NormalMin)
	}
	if tb.NormalMax != 118 {
		t.Errorf("max = %v, want 118 (widened by the window)", tb.NormalMax)
	}
	if got.UpdatedUtc != now {
		t.Errorf("UpdatedUtc = %d, want %d", got.UpdatedUtc, now)
	}
}

func TestUpdateDeviceFreshBaselineIsNoop(t *testing.T) {
	const now = int64(1_700_000_000_000)
	stubClock(t, now)
	repos, svc, _ := newBaselineFixture(t)
	ctx := context.Background()

	old := &model.DeviceBaseline{
		DeviceID:   "dev1",
		CreatedUtc: now,
		UpdatedUtc: now, // updated just now, inside the interval
		TagBaselines: map[string]model.TagBaseline{
			"temp": {TagID: "temp", NormalMean: 100, NormalStdDev: 20},
		},
	}
	if err := repos.HealthBaselines.Save(ctx, old); err != nil {
		t.Fatal(err)
	}
	if err := svc.UpdateDevice(ctx, "dev1"); err != nil {
		t.Fatalf("UpdateDevice: %v", err)
	}
	got, _ := repos.HealthBaselines.Get(ctx, "dev1")
	if got.TagBaselines["temp"].NormalMean != 100 {
		t.Error("fresh baseline must not be touched")
	}
}

func TestUpdateDeviceInsufficientWindow(t *testing.T) {
	const now = int64(1_700_000_000_000)
	stubClock(t, now)
	repos, svc, _ := newBaselineFixture(t)
	ctx := context.Background()

	old := &model.DeviceBaseline{
		DeviceID:     "dev1",
		CreatedUtc:   now - 86_400_000,
		UpdatedUtc:   now - 2*3_600_000,
		TagBaselines: map[string]model.TagBaseline{"temp": {TagID: "temp", NormalMean: 100, NormalStdDev: 20}},
	}
	if err := repos.HealthBaselines.Save(ctx, old); err != nil {
		t.Fatal(err)
	}
	// Only 3 window samples against a floor of 10.
	var points []model.TelemetryPoint
	for i := 0; i < 3; i++ {
		points = append(points, numPoint("dev1", "temp", now-int64(3-i)*60_000, 100))
	}
	if err := repos.Telemetry.Append(ctx, points); err != nil {
		t.Fatal(err)
	}
	if err := svc.UpdateDevice(ctx, "dev1"); !errors.Is(err, model.ErrInsufficientData) {
		t.Fatalf("UpdateDevice = %v, want ErrInsufficientData", err)
	}
}
