package model

// TrendState classifies the multi-scale trajectory of a device.
type TrendState int

const (
	TrendSharpDecline TrendState = -2
	TrendDeclining    TrendState = -1
	TrendStable       TrendState = 0
	TrendImproving    TrendState = 1
	TrendRecovering   TrendState = 2
)

func (t TrendState) String() string {
	switch t {
	case TrendSharpDecline:
		return "SharpDecline"
	case TrendDeclining:
		return "Declining"
	case TrendImproving:
		return "Improving"
	case TrendRecovering:
		return "Recovering"
	default:
		return "Stable"
	}
}

// MultiScaleScore composes health at three time windows.
type MultiScaleScore struct {
	DeviceID    string     `json:"deviceId"`
	Timestamp   int64      `json:"timestamp"`
	ShortScore  int        `json:"shortScore"`
	MediumScore int        `json:"mediumScore"`
	LongScore   int        `json:"longScore"`
	Composite   int        `json:"composite"`
	Trend       TrendState `json:"trend"`
}

// Degradation pattern kinds.
const (
	DegradationGradualIncrease    = "GradualIncrease"
	DegradationGradualDecrease    = "GradualDecrease"
	DegradationIncreasingVariance = "IncreasingVariance"
)

// DegradationReport is the outcome of slow-drift detection on one tag.
type DegradationReport struct {
	DeviceID       string  `json:"deviceId"`
	TagID          string  `json:"tagId"`
	Pattern        string  `json:"pattern"`
	DailyRatePct   float64 `json:"dailyRatePct"`
	WindowDays     int     `json:"windowDays"`
	SegmentCount   int     `json:"segmentCount"`
	DetectedAtUtc  int64   `json:"detectedAtUtc"`
}

// Trend alert levels, ordered by urgency.
const (
	TrendAlertCritical = "Critical"
	TrendAlertHigh     = "High"
	TrendAlertMedium   = "Medium"
	TrendAlertLow      = "Low"
)

// TrendForecast projects a tag toward its nearest alarm threshold.
type TrendForecast struct {
	DeviceID         string  `json:"deviceId"`
	TagID            string  `json:"tagId"`
	Slope            float64 `json:"slope"` // units per hour
	Intercept        float64 `json:"intercept"`
	R2               float64 `json:"r2"`
	RuleID           string  `json:"ruleId,omitempty"`
	Threshold        float64 `json:"threshold"`
	HoursToThreshold float64 `json:"hoursToThreshold"`
	AlertLevel       string  `json:"alertLevel,omitempty"`
	Confidence       float64 `json:"confidence"`
}

// RUL status kinds.
const (
	RULHealthy                = "Healthy"
	RULNormalDegradation      = "NormalDegradation"
	RULAcceleratedDegradation = "AcceleratedDegradation"
	RULNearFailure            = "NearFailure"
)

// RUL risk buckets.
const (
	RULRiskCritical = "Critical"
	RULRiskHigh     = "High"
	RULRiskMedium   = "Medium"
	RULRiskLow      = "Low"
)

// RULPrediction extrapolates remaining useful life from health history.
type RULPrediction struct {
	DeviceID               string  `json:"deviceId"`
	Timestamp              int64   `json:"timestamp"`
	CurrentIndex           int     `json:"currentIndex"`
	SlopePerHour           float64 `json:"slopePerHour"`
	R2                     float64 `json:"r2"`
	Status                 string  `json:"status"`
	Risk                   string  `json:"risk"`
	RULHours               float64 `json:"rulHours"` // 0 when NearFailure, -1 when no ETA
	PredictedFailureUtc    int64   `json:"predictedFailureUtc,omitempty"`
	RecommendedMaintenance int64   `json:"recommendedMaintenance,omitempty"`
}
