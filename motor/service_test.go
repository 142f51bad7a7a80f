package motor

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/intellimaint/intellimaint/model"
	"github.com/intellimaint/intellimaint/store"
)

func newDiagnoserFixture(t *testing.T) (*store.Repositories, *Diagnoser) {
	t.Helper()
	repos := store.NewMemory().Repositories()
	d := NewDiagnoser(repos.Telemetry, repos.MotorInstances, repos.MotorModels,
		repos.MotorMappings, repos.MotorProfiles, nil, faultCfg(), zap.NewNop())
	return repos, d
}

func TestFixedMode(t *testing.T) {
	mode, err := FixedMode("idle").DetectMode(context.Background(), model.MotorInstance{})
	if err != nil || mode != "idle" {
		t.Errorf("DetectMode = %q/%v, want idle/nil", mode, err)
	}
}

func TestDiagnose(t *testing.T) {
	repos, d := newDiagnoserFixture(t)
	seedMotor(t, repos)
	ctx := context.Background()

	// Learned profile: 50 +- 5. The live reading maps to 75, five sigma
	// out: a critical over-temperature.
	if err := repos.MotorProfiles.Save(ctx, &model.BaselineProfile{
		InstanceID: "inst1", ModeID: "default", Parameter: model.ParamTemperature,
		Mean: 50, StdDev: 5, SampleCount: 1000,
	}); err != nil {
		t.Fatal(err)
	}
	// Raw 37 through scale 2 offset 1 = 75.
	if err := repos.Telemetry.Append(ctx, []model.TelemetryPoint{
		motorPoint("dev1", "temp_raw", 1_700_000_000_000, 37),
	}); err != nil {
		t.Fatal(err)
	}

	r, err := d.Diagnose(ctx, "inst1")
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if r.InstanceID != "inst1" || r.DeviceID != "dev1" || r.ModeID != "default" {
		t.Errorf("result identity wrong: %+v", r)
	}
	if len(r.Faults) != 1 {
		t.Fatalf("got %d faults, want 1: %+v", len(r.Faults), r.Faults)
	}
	f := r.Faults[0]
	if f.Type != model.FaultOverTemperature || f.Severity != model.FaultCritical {
		t.Errorf("fault = %+v, want critical OverTemperature", f)
	}
	if f.ZScore != 5 {
		t.Errorf("z = %v, want 5", f.ZScore)
	}
	if r.HealthScore >= 50 {
		t.Errorf("health = %v, want a heavy deduction for a critical fault", r.HealthScore)
	}

	cached, ok := d.Latest("inst1")
	if !ok || cached.Timestamp != r.Timestamp {
		t.Errorf("Latest must return the cached result, got %+v/%v", cached, ok)
	}
}

func TestDiagnoseHealthyMotor(t *testing.T) {
	repos, d := newDiagnoserFixture(t)
	seedMotor(t, repos)
	ctx := context.Background()

	if err := repos.MotorProfiles.Save(ctx, &model.BaselineProfile{
		InstanceID: "inst1", ModeID: "default", Parameter: model.ParamTemperature,
		Mean: 61, StdDev: 5, SampleCount: 1000,
	}); err != nil {
		t.Fatal(err)
	}
	if err := repos.Telemetry.Append(ctx, []model.TelemetryPoint{
		motorPoint("dev1", "temp_raw", 1_700_000_000_000, 30), // maps to 61
	}); err != nil {
		t.Fatal(err)
	}

	r, err := d.Diagnose(ctx, "inst1")
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if len(r.Faults) != 0 {
		t.Errorf("on-baseline reading raised faults: %+v", r.Faults)
	}
	if r.HealthScore != 100 {
		t.Errorf("health = %v, want 100 at zero deviation", r.HealthScore)
	}
}

func TestDiagnoseUnmappedInstance(t *testing.T) {
	repos, d := newDiagnoserFixture(t)
	ctx := context.Background()
	if err := repos.MotorModels.Save(ctx, model.MotorModel{ModelID: "m1"}); err != nil {
		t.Fatal(err)
	}
	if err := repos.MotorInstances.Save(ctx, model.MotorInstance{
		InstanceID: "bare", DeviceID: "dev9", ModelID: "m1", Enabled: true,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Diagnose(ctx, "bare"); !errors.Is(err, model.ErrInsufficientData) {
		t.Fatalf("Diagnose = %v, want ErrInsufficientData without mappings", err)
	}
}

func TestDiagnoseUnknownInstance(t *testing.T) {
	_, d := newDiagnoserFixture(t)
	if _, err := d.Diagnose(context.Background(), "ghost"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Diagnose = %v, want ErrNotFound", err)
	}
}

func TestDiagnoseAllSkipsDisabled(t *testing.T) {
	repos, d := newDiagnoserFixture(t)
	ctx := context.Background()
	if err := repos.MotorModels.Save(ctx, model.MotorModel{ModelID: "m1"}); err != nil {
		t.Fatal(err)
	}
	if err := repos.MotorInstances.Save(ctx, model.MotorInstance{
		InstanceID: "off", DeviceID: "dev1", ModelID: "m1", Enabled: false,
	}); err != nil {
		t.Fatal(err)
	}
	if err := d.DiagnoseAll(ctx); err != nil {
		t.Fatalf("DiagnoseAll: %v", err)
	}
	if _, ok := d.Latest("off"); ok {
		t.Error("disabled instance must not be diagnosed")
	}
}
