package motor

import (
	"fmt"
	"math"
	"sort"

	"github.com/intellimaint/intellimaint/config"
	"github.com/intellimaint/intellimaint/model"
)

// severityPenalty is the health deduction weight per fault severity.
var severityPenalty = map[model.FaultSeverity]float64{
	model.FaultMinor:    5,
	model.FaultModerate: 10,
	model.FaultSevere:   20,
	model.FaultCritical: 30,
}

// classifySeverity bands |z| with the configured thresholds; below the
// minor threshold no fault is raised.
func classifySeverity(absZ float64, cfg config.FaultDetectionConfig) (model.FaultSeverity, bool) {
	switch {
	case absZ >= cfg.CriticalThreshold:
		return model.FaultCritical, true
	case absZ >= cfg.SevereThreshold:
		return model.FaultSevere, true
	case absZ >= cfg.ModerateThreshold:
		return model.FaultModerate, true
	case absZ >= cfg.MinorThreshold:
		return model.FaultMinor, true
	}
	return 0, false
}

// faultType infers the fault kind from the deviating parameter and the
// deviation direction.
func faultType(p model.MotorParameter, z float64) string {
	up := z > 0
	switch p {
	case model.ParamCurrentPhaseA, model.ParamCurrentPhaseB, model.ParamCurrentPhaseC, model.ParamCurrentRMS:
		if up {
			return model.FaultOvercurrent
		}
		return model.FaultUndercurrent
	case model.ParamVoltageA, model.ParamVoltageB, model.ParamVoltageC, model.ParamVoltageRMS:
		if up {
			return model.FaultOvervoltage
		}
		return model.FaultUndervoltage
	case model.ParamTemperature:
		return model.FaultOverTemperature
	case model.ParamVibration:
		return model.FaultExcessVibration
	case model.ParamSpeed, model.ParamFrequency, model.ParamTorque:
		return model.FaultSpeedAnomaly
	default:
		return model.FaultPowerAnomaly
	}
}

// deviationFault builds the z-score fault for one parameter, or nil when
// the deviation stays inside the minor band.
func deviationFault(p model.MotorParameter, value float64, profile *model.BaselineProfile, cfg config.FaultDetectionConfig) (*model.MotorFault, float64) {
	if profile == nil || profile.StdDev < 1e-9 {
		return nil, 0
	}
	z := (value - profile.Mean) / profile.StdDev
	sev, ok := classifySeverity(math.Abs(z), cfg)
	if !ok {
		return nil, z
	}
	return &model.MotorFault{
		Type:              faultType(p, z),
		Parameter:         p,
		Severity:          sev,
		ZScore:            z,
		ConfidencePercent: math.Min(95, 50+10*math.Abs(z)),
		Description:       fmt.Sprintf("%s at %.4g, %.1f sigma from baseline %.4g", p, value, z, profile.Mean),
	}, z
}

// phaseImbalanceFault checks the three-phase currents for an imbalance
// above the threshold: max |Ii - avg| / avg as a percentage.
func phaseImbalanceFault(a, b, c float64, cfg config.FaultDetectionConfig) *model.MotorFault {
	avg := (a + b + c) / 3
	if avg < 1e-9 {
		return nil
	}
	maxDev := math.Max(math.Abs(a-avg), math.Max(math.Abs(b-avg), math.Abs(c-avg)))
	pct := maxDev / avg * 100
	if pct <= cfg.PhaseImbalanceThreshold {
		return nil
	}
	sev := model.FaultModerate
	if pct > 2*cfg.PhaseImbalanceThreshold {
		sev = model.FaultSevere
	}
	return &model.MotorFault{
		Type:              model.FaultPhaseImbalance,
		Severity:          sev,
		ConfidencePercent: math.Min(95, 50+5*pct),
		Description:       fmt.Sprintf("phase imbalance %.1f%%, threshold %.1f%%", pct, cfg.PhaseImbalanceThreshold),
	}
}

// bearingFaults flags any characteristic frequency whose amplitude
// exceeds the baseline noise floor times the gain threshold.
func bearingFaults(current, baseline *model.FrequencyProfile, cfg config.FaultDetectionConfig) []model.MotorFault {
	if current == nil || baseline == nil || baseline.NoiseFloor <= 0 {
		return nil
	}
	limit := baseline.NoiseFloor * cfg.BearingFaultGainThreshold
	checks := []struct {
		kind string
		amp  float64
		name string
	}{
		{model.FaultBearingOuterRace, current.BpfoAmplitude, "BPFO"},
		{model.FaultBearingInnerRace, current.BpfiAmplitude, "BPFI"},
		{model.FaultBearingBall, current.BsfAmplitude, "BSF"},
		{model.FaultBearingCage, current.FtfAmplitude, "FTF"},
	}
	var out []model.MotorFault
	for _, c := range checks {
		if c.amp <= limit {
			continue
		}
		gain := c.amp / baseline.NoiseFloor
		sev := model.FaultModerate
		if gain > 2*cfg.BearingFaultGainThreshold {
			sev = model.FaultSevere
		}
		out = append(out, model.MotorFault{
			Type:              c.kind,
			Severity:          sev,
			ConfidencePercent: math.Min(95, 50+2*gain),
			Description:       fmt.Sprintf("%s amplitude %.4g exceeds noise floor %.4g x%.1f", c.name, c.amp, baseline.NoiseFloor, gain),
		})
	}
	return out
}

// harmonicFault flags total harmonic distortion above the threshold.
func harmonicFault(thdPercent float64, cfg config.FaultDetectionConfig) *model.MotorFault {
	if thdPercent <= cfg.ThdThreshold {
		return nil
	}
	sev := model.FaultModerate
	if thdPercent > 2*cfg.ThdThreshold {
		sev = model.FaultSevere
	}
	return &model.MotorFault{
		Type:              model.FaultHarmonicAbnormal,
		Severity:          sev,
		ConfidencePercent: math.Min(95, 50+2*thdPercent),
		Description:       fmt.Sprintf("THD %.1f%%, threshold %.1f%%", thdPercent, cfg.ThdThreshold),
	}
}

// composeResult assembles the diagnosis: health score, top-3 summary and
// the recommendation list.
func composeResult(result *model.DiagnosisResult, zScores []float64, faults []model.MotorFault) {
	health := 100.0
	if len(zScores) > 0 {
		var sum float64
		for _, z := range zScores {
			sum += math.Abs(z)
		}
		health = 100 - 15*(sum/float64(len(zScores)))
	}
	for _, f := range faults {
		health -= severityPenalty[f.Severity] * f.ConfidencePercent / 100
	}
	if health < 0 {
		health = 0
	}
	result.HealthScore = health

	sort.SliceStable(faults, func(i, j int) bool { return faults[i].Severity > faults[j].Severity })
	result.Faults = faults
	result.Summary = summarize(faults)
	result.Recommendations = recommend(faults)
}

func summarize(faults []model.MotorFault) string {
	if len(faults) == 0 {
		return "no faults detected"
	}
	top := faults
	if len(top) > 3 {
		top = top[:3]
	}
	s := ""
	for i, f := range top {
		if i > 0 {
			s += "; "
		}
		s += fmt.Sprintf("%s (%s)", f.Type, f.Severity)
	}
	return s
}

var recommendations = map[string]string{
	model.FaultOvercurrent:      "inspect load and supply for overcurrent cause",
	model.FaultUndercurrent:     "check supply wiring and contactor state",
	model.FaultOvervoltage:      "verify supply voltage regulation",
	model.FaultUndervoltage:     "verify supply voltage regulation",
	model.FaultOverTemperature:  "check cooling and ambient temperature",
	model.FaultExcessVibration:  "check mounting, alignment and balance",
	model.FaultPowerAnomaly:     "review load profile for abnormal power draw",
	model.FaultSpeedAnomaly:     "inspect drive and coupling",
	model.FaultPhaseImbalance:   "inspect phase wiring and supply balance",
	model.FaultBearingOuterRace: "plan bearing inspection: outer race signature",
	model.FaultBearingInnerRace: "plan bearing inspection: inner race signature",
	model.FaultBearingBall:      "plan bearing inspection: rolling element signature",
	model.FaultBearingCage:      "plan bearing inspection: cage signature",
	model.FaultHarmonicAbnormal: "inspect drive electronics for harmonic distortion",
}

func recommend(faults []model.MotorFault) []string {
	seen := map[string]bool{}
	var out []string
	maxSev := model.FaultSeverity(0)
	for _, f := range faults {
		if f.Severity > maxSev {
			maxSev = f.Severity
		}
		if r, ok := recommendations[f.Type]; ok && !seen[f.Type] {
			seen[f.Type] = true
			out = append(out, r)
		}
	}
	if maxSev >= model.FaultSevere {
		out = append(out, "schedule immediate stop")
	}
	return out
}
