package motor

import (
	"math"
	"strings"
	"testing"

	"github.com/intellimaint/intellimaint/config"
	"github.com/intellimaint/intellimaint/model"
)

func faultCfg() config.FaultDetectionConfig {
	return config.Default().FaultDetection
}

func TestClassifySeverity(t *testing.T) {
	cfg := faultCfg() // bands at 2/3/4/5 sigma
	tests := []struct {
		z    float64
		want model.FaultSeverity
		ok   bool
	}{
		{1.5, 0, false},
		{2, model.FaultMinor, true},
		{3.5, model.FaultModerate, true},
		{4, model.FaultSevere, true},
		{6, model.FaultCritical, true},
	}
	for _, tt := range tests {
		sev, ok := classifySeverity(tt.z, cfg)
		if ok != tt.ok || (ok && sev != tt.want) {
			t.Errorf("classifySeverity(%v) = %v/%v, want %v/%v", tt.z, sev, ok, tt.want, tt.ok)
		}
	}
}

func TestFaultType(t *testing.T) {
	tests := []struct {
		p    model.MotorParameter
		z    float64
		want string
	}{
		{model.ParamCurrentRMS, 3, model.FaultOvercurrent},
		{model.ParamCurrentPhaseA, -3, model.FaultUndercurrent},
		{model.ParamVoltageRMS, 3, model.FaultOvervoltage},
		{model.ParamVoltageB, -3, model.FaultUndervoltage},
		{model.ParamTemperature, 3, model.FaultOverTemperature},
		{model.ParamVibration, 3, model.FaultExcessVibration},
		{model.ParamSpeed, -3, model.FaultSpeedAnomaly},
		{model.ParamPower, 3, model.FaultPowerAnomaly},
	}
	for _, tt := range tests {
		if got := faultType(tt.p, tt.z); got != tt.want {
			t.Errorf("faultType(%s, %v) = %q, want %q", tt.p, tt.z, got, tt.want)
		}
	}
}

func TestDeviationFault(t *testing.T) {
	cfg := faultCfg()
	profile := &model.BaselineProfile{Mean: 100, StdDev: 10}

	f, z := deviationFault(model.ParamTemperature, 135, profile, cfg)
	if f == nil {
		t.Fatal("3.5 sigma must raise a fault")
	}
	if math.Abs(z-3.5) > 1e-9 || f.Severity != model.FaultModerate {
		t.Errorf("z/severity = %v/%v, want 3.5/Moderate", z, f.Severity)
	}
	if f.Type != model.FaultOverTemperature {
		t.Errorf("type = %q, want OverTemperature", f.Type)
	}
	if math.Abs(f.ConfidencePercent-85) > 1e-9 { // 50 + 10*3.5
		t.Errorf("confidence = %v, want 85", f.ConfidencePercent)
	}

	// In-band value: no fault, z still reported for the health score.
	f, z = deviationFault(model.ParamTemperature, 105, profile, cfg)
	if f != nil || math.Abs(z-0.5) > 1e-9 {
		t.Errorf("in-band = %+v / z=%v, want nil / 0.5", f, z)
	}

	// Degenerate baseline: undecidable.
	if f, _ := deviationFault(model.ParamTemperature, 135, &model.BaselineProfile{Mean: 100}, cfg); f != nil {
		t.Errorf("zero-stddev baseline produced %+v", f)
	}
}

func TestPhaseImbalanceFault(t *testing.T) {
	cfg := faultCfg() // threshold 5%

	if f := phaseImbalanceFault(100, 100, 100, cfg); f != nil {
		t.Errorf("balanced phases flagged: %+v", f)
	}
	if f := phaseImbalanceFault(0, 0, 0, cfg); f != nil {
		t.Errorf("idle motor flagged: %+v", f)
	}

	// 10% deviation: above the 5% threshold, at the severe boundary.
	f := phaseImbalanceFault(110, 100, 90, cfg)
	if f == nil {
		t.Fatal("10% imbalance must raise a fault")
	}
	if f.Type != model.FaultPhaseImbalance || f.Severity != model.FaultModerate {
		t.Errorf("fault = %+v, want Moderate PhaseImbalance", f)
	}

	// Well past twice the threshold: severe.
	f = phaseImbalanceFault(130, 100, 90, cfg)
	if f == nil || f.Severity != model.FaultSevere {
		t.Fatalf("gross imbalance = %+v, want Severe", f)
	}
}

func TestBearingFaults(t *testing.T) {
	cfg := faultCfg() // gain threshold 5
	baseline := &model.FrequencyProfile{NoiseFloor: 0.1}
	current := &model.FrequencyProfile{
		BpfoAmplitude: 0.6, // gain 6: above the limit, below 2x threshold
		BpfiAmplitude: 1.2, // gain 12: severe
	}

	faults := bearingFaults(current, baseline, cfg)
	if len(faults) != 2 {
		t.Fatalf("got %d faults, want 2: %+v", len(faults), faults)
	}
	bySev := map[string]model.FaultSeverity{}
	for _, f := range faults {
		bySev[f.Type] = f.Severity
	}
	if bySev[model.FaultBearingOuterRace] != model.FaultModerate {
		t.Errorf("BPFO severity = %v, want Moderate", bySev[model.FaultBearingOuterRace])
	}
	if bySev[model.FaultBearingInnerRace] != model.FaultSevere {
		t.Errorf("BPFI severity = %v, want Severe", bySev[model.FaultBearingInnerRace])
	}

	if got := bearingFaults(current, nil, cfg); got != nil {
		t.Errorf("missing baseline produced %+v", got)
	}
}

func TestHarmonicFault(t *testing.T) {
	cfg := faultCfg() // THD threshold 8%
	if f := harmonicFault(5, cfg); f != nil {
		t.Errorf("in-spec THD flagged: %+v", f)
	}
	if f := harmonicFault(10, cfg); f == nil || f.Severity != model.FaultModerate {
		t.Fatalf("10%% THD = %+v, want Moderate", f)
	}
	if f := harmonicFault(20, cfg); f == nil || f.Severity != model.FaultSevere {
		t.Fatalf("20%% THD = %+v, want Severe", f)
	}
}

func TestComposeResult(t *testing.T) {
	r := &model.DiagnosisResult{}
	composeResult(r, nil, nil)
	if r.HealthScore != 100 {
		t.Errorf("idle health = %v, want 100", r.HealthScore)
	}
	if r.Summary != "no faults detected" {
		t.Errorf("summary = %q", r.Summary)
	}

	// Mean |z| of 1 costs 15 points.
	r = &model.DiagnosisResult{}
	composeResult(r, []float64{1, -1}, nil)
	if math.Abs(r.HealthScore-85) > 1e-9 {
		t.Errorf("health = %v, want 85", r.HealthScore)
	}

	// Faults deduct severity penalty weighted by confidence, worst first.
	r = &model.DiagnosisResult{}
	faults := []model.MotorFault{
		{Type: model.FaultOvercurrent, Severity: model.FaultMinor, ConfidencePercent: 100},
		{Type: model.FaultBearingInnerRace, Severity: model.FaultSevere, ConfidencePercent: 100},
	}
	composeResult(r, nil, faults)
	if math.Abs(r.HealthScore-75) > 1e-9 { // 100 - 5 - 20
		t.Errorf("health = %v, want 75", r.HealthScore)
	}
	if r.Faults[0].Severity != model.FaultSevere {
		t.Errorf("faults not ordered by severity: %+v", r.Faults)
	}
	if !strings.Contains(r.Summary, model.FaultBearingInnerRace) {
		t.Errorf("summary misses the worst fault: %q", r.Summary)
	}
	var stop bool
	for _, rec := range r.Recommendations {
		if strings.Contains(rec, "immediate stop") {
			stop = true
		}
	}
	if !stop {
		t.Errorf("severe fault must recommend a stop: %v", r.Recommendations)
	}
}

func TestRecommendDedup(t *testing.T) {
	faults := []model.MotorFault{
		{Type: model.FaultOvercurrent, Severity: model.FaultMinor},
		{Type: model.FaultOvercurrent, Severity: model.FaultMinor},
	}
	if got := recommend(faults); len(got) != 1 {
		t.Errorf("got %d recommendations, want 1 after dedup: %v", len(got), got)
	}
}
