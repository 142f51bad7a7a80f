package model

// Cycle anomaly categories, ordered by detection priority only for
// display; the primary type is the highest contributor.
const (
	CycleAnomalyTimeout       = "CycleTimeout"
	CycleAnomalyTooShort      = "CycleTooShort"
	CycleAnomalyOverCurrent   = "OverCurrent"
	CycleAnomalyImbalance     = "MotorImbalance"
	CycleAnomalyBaselineDev   = "BaselineDeviation"
	CycleAnomalyAngleStall    = "AngleStall"
)

// WorkCycle is one detected mechanical cycle with its features and
// anomaly assessment. Cycles of one device never overlap.
type WorkCycle struct {
	DeviceID                 string  `json:"deviceId"`
	SegmentID                string  `json:"segmentId,omitempty"`
	StartTimeUtc             int64   `json:"startTimeUtc"`
	EndTimeUtc               int64   `json:"endTimeUtc"`
	DurationSeconds          float64 `json:"durationSeconds"`
	MaxAngle                 float64 `json:"maxAngle"`
	Motor1PeakCurrent        float64 `json:"motor1PeakCurrent"`
	Motor1AvgCurrent         float64 `json:"motor1AvgCurrent"`
	Motor1EnergyCurrent      float64 `json:"motor1EnergyCurrent"`
	Motor2PeakCurrent        float64 `json:"motor2PeakCurrent"`
	Motor2AvgCurrent         float64 `json:"motor2AvgCurrent"`
	Motor2EnergyCurrent      float64 `json:"motor2EnergyCurrent"`
	MotorBalanceRatio        float64 `json:"motorBalanceRatio"`
	BaselineDeviationPercent float64 `json:"baselineDeviationPercent"`
	AnomalyScore             float64 `json:"anomalyScore"` // 0..100
	IsAnomaly                bool    `json:"isAnomaly"`
	AnomalyType              string  `json:"anomalyType,omitempty"`
}

// PolyBaseline is a fitted current = a*angle^2 + b*angle + c model.
// Persisted as JSON with a version tag; readers tolerate extra fields.
type PolyBaseline struct {
	Version     int     `json:"version"`
	A           float64 `json:"a"`
	B           float64 `json:"b"`
	C           float64 `json:"c"`
	SampleCount int     `json:"sampleCount"`
	R2          float64 `json:"r2"`
}

// BalanceBaseline is the learned motor balance ratio distribution.
type BalanceBaseline struct {
	Version     int     `json:"version"`
	Mean        float64 `json:"mean"`
	StdDev      float64 `json:"stdDev"`
	SampleCount int     `json:"sampleCount"`
}

// DurationBaseline is the learned cycle duration distribution.
type DurationBaseline struct {
	Version     int     `json:"version"`
	Mean        float64 `json:"mean"`
	StdDev      float64 `json:"stdDev"`
	SampleCount int     `json:"sampleCount"`
}

// CycleDeviceBaseline bundles the cycle baselines of one device.
type CycleDeviceBaseline struct {
	DeviceID   string            `json:"deviceId"`
	UpdatedUtc int64             `json:"updatedUtc"`
	Motor1     *PolyBaseline     `json:"motor1,omitempty"`
	Motor2     *PolyBaseline     `json:"motor2,omitempty"`
	Balance    *BalanceBaseline  `json:"balance,omitempty"`
	Duration   *DurationBaseline `json:"duration,omitempty"`
}
