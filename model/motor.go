package model

// MotorParameter names a mapped electrical or mechanical quantity.
type MotorParameter string

const (
	ParamCurrentPhaseA MotorParameter = "CurrentPhaseA"
	ParamCurrentPhaseB MotorParameter = "CurrentPhaseB"
	ParamCurrentPhaseC MotorParameter = "CurrentPhaseC"
	ParamCurrentRMS    MotorParameter = "CurrentRMS"
	ParamVoltageA      MotorParameter = "VoltageA"
	ParamVoltageB      MotorParameter = "VoltageB"
	ParamVoltageC      MotorParameter = "VoltageC"
	ParamVoltageRMS    MotorParameter = "VoltageRMS"
	ParamPower         MotorParameter = "Power"
	ParamPowerFactor   MotorParameter = "PF"
	ParamFrequency     MotorParameter = "Freq"
	ParamTorque        MotorParameter = "Torque"
	ParamSpeed         MotorParameter = "Speed"
	ParamTemperature   MotorParameter = "Temp"
	ParamVibration     MotorParameter = "Vibration"
)

// IsCurrent reports whether the parameter is a current channel, which
// additionally carries a frequency profile in its baseline.
func (p MotorParameter) IsCurrent() bool {
	switch p {
	case ParamCurrentPhaseA, ParamCurrentPhaseB, ParamCurrentPhaseC, ParamCurrentRMS:
		return true
	}
	return false
}

// BearingGeometry describes the rolling element bearing of a motor model.
type BearingGeometry struct {
	BallCount        int     `json:"ballCount"`
	BallDiameterMm   float64 `json:"ballDiameterMm"`
	PitchDiameterMm  float64 `json:"pitchDiameterMm"`
	ContactAngleDeg  float64 `json:"contactAngleDeg"`
}

// MotorModel is a catalog entry with geometry and rated values.
type MotorModel struct {
	ModelID        string          `json:"modelId"`
	Name           string          `json:"name"`
	RatedCurrentA  float64         `json:"ratedCurrentA"`
	RatedVoltageV  float64         `json:"ratedVoltageV"`
	RatedPowerKw   float64         `json:"ratedPowerKw"`
	RatedSpeedRpm  float64         `json:"ratedSpeedRpm"`
	SupplyFreqHz   float64         `json:"supplyFreqHz"`
	PolePairs      int             `json:"polePairs"`
	Bearing        BearingGeometry `json:"bearing"`
}

// MotorInstance binds a device to a motor model.
type MotorInstance struct {
	InstanceID string `json:"instanceId"`
	DeviceID   string `json:"deviceId"`
	ModelID    string `json:"modelId"`
	Name       string `json:"name,omitempty"`
	Enabled    bool   `json:"enabled"`
}

// MotorParameterMapping declares which tag supplies which parameter,
// with affine scaling value = Scale*x + Offset.
type MotorParameterMapping struct {
	InstanceID string         `json:"instanceId"`
	Parameter  MotorParameter `json:"parameter"`
	TagID      string         `json:"tagId"`
	Scale      float64        `json:"scale"`
	Offset     float64        `json:"offset"`
}

// Apply scales a raw tag value into engineering units.
func (m MotorParameterMapping) Apply(x float64) float64 {
	scale := m.Scale
	if scale == 0 {
		scale = 1
	}
	return scale*x + m.Offset
}

// OperationMode is a named operating regime of a motor instance.
type OperationMode struct {
	ModeID     string `json:"modeId"`
	InstanceID string `json:"instanceId"`
	Name       string `json:"name"`
}

// FrequencyProfile captures the spectral fingerprint of a current
// channel. Serialized losslessly; readers tolerate unknown fields.
type FrequencyProfile struct {
	Version              int       `json:"version"`
	SampleRateHz         float64   `json:"sampleRateHz"`
	FundamentalHz        float64   `json:"fundamentalHz"`
	FundamentalAmplitude float64   `json:"fundamentalAmplitude"`
	Harmonic2Amplitude   float64   `json:"harmonic2Amplitude"`
	Harmonic3Amplitude   float64   `json:"harmonic3Amplitude"`
	BpfoAmplitude        float64   `json:"bpfoAmplitude"`
	BpfiAmplitude        float64   `json:"bpfiAmplitude"`
	BsfAmplitude         float64   `json:"bsfAmplitude"`
	FtfAmplitude         float64   `json:"ftfAmplitude"`
	ThdPercent           float64   `json:"thdPercent"`
	BandEnergies         []float64 `json:"bandEnergies,omitempty"`
	NoiseFloor           float64   `json:"noiseFloor"`
}

// BaselineProfile is the learned distribution of one parameter in one
// operation mode.
type BaselineProfile struct {
	InstanceID        string            `json:"instanceId"`
	ModeID            string            `json:"modeId"`
	Parameter         MotorParameter    `json:"parameter"`
	Mean              float64           `json:"mean"`
	StdDev            float64           `json:"stdDev"`
	Min               float64           `json:"min"`
	Max               float64           `json:"max"`
	Median            float64           `json:"median"`
	P05               float64           `json:"p05"`
	P95               float64           `json:"p95"`
	SampleCount       int64             `json:"sampleCount"`
	ConfidencePercent float64           `json:"confidencePercent"`
	Frequency         *FrequencyProfile `json:"frequency,omitempty"`
	UpdatedUtc        int64             `json:"updatedUtc"`
}

// FaultSeverity bands the |z| deviation of a parameter.
type FaultSeverity int

const (
	FaultMinor FaultSeverity = iota + 1
	FaultModerate
	FaultSevere
	FaultCritical
)

func (s FaultSeverity) String() string {
	switch s {
	case FaultCritical:
		return "Critical"
	case FaultSevere:
		return "Severe"
	case FaultModerate:
		return "Moderate"
	case FaultMinor:
		return "Minor"
	}
	return "Unknown"
}

// Motor fault types.
const (
	FaultOvercurrent      = "Overcurrent"
	FaultUndercurrent     = "Undercurrent"
	FaultOvervoltage      = "Overvoltage"
	FaultUndervoltage     = "Undervoltage"
	FaultOverTemperature  = "OverTemperature"
	FaultExcessVibration  = "ExcessVibration"
	FaultPowerAnomaly     = "PowerAnomaly"
	FaultSpeedAnomaly     = "SpeedAnomaly"
	FaultPhaseImbalance   = "PhaseImbalance"
	FaultBearingOuterRace = "BearingOuterRace"
	FaultBearingInnerRace = "BearingInnerRace"
	FaultBearingBall      = "BearingBall"
	FaultBearingCage      = "BearingCage"
	FaultHarmonicAbnormal = "HarmonicAbnormal"
)

// MotorFault is one detected fault with its evidence.
type MotorFault struct {
	Type              string         `json:"type"`
	Parameter         MotorParameter `json:"parameter,omitempty"`
	Severity          FaultSeverity  `json:"severity"`
	ZScore            float64        `json:"zScore,omitempty"`
	ConfidencePercent float64        `json:"confidencePercent"`
	Description       string         `json:"description"`
}

// DiagnosisResult is one full fault assessment of a motor instance.
type DiagnosisResult struct {
	InstanceID      string       `json:"instanceId"`
	DeviceID        string       `json:"deviceId"`
	ModeID          string       `json:"modeId,omitempty"`
	Timestamp       int64        `json:"timestamp"`
	HealthScore     float64      `json:"healthScore"` // 0..100
	Faults          []MotorFault `json:"faults,omitempty"`
	Summary         string       `json:"summary,omitempty"`
	Recommendations []string     `json:"recommendations,omitempty"`
}
