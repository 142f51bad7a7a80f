package model

// HealthLevel bands the composite health index.
type HealthLevel int

const (
	HealthCritical HealthLevel = iota
	HealthWarning
	HealthAttention
	HealthHealthy
)

func (l HealthLevel) String() string {
	switch l {
	case HealthHealthy:
		return "Healthy"
	case HealthAttention:
		return "Attention"
	case HealthWarning:
		return "Warning"
	default:
		return "Critical"
	}
}

// ProblemTag is one tag flagged by a sub-score with its deviation context.
type ProblemTag struct {
	TagID      string     `json:"tagId"`
	Importance Importance `json:"importance"`
	ZScore     float64    `json:"zScore"`
	Reason     string     `json:"reason"`
}

// HealthScore is the derived assessment of one device at one instant.
// Never mutated after emission; snapshots are appended for history.
type HealthScore struct {
	DeviceID          string       `json:"deviceId"`
	Timestamp         int64        `json:"timestamp"`
	Index             int          `json:"index"` // 0..100
	Level             HealthLevel  `json:"level"`
	DeviationScore    float64      `json:"deviationScore"`
	TrendScore        float64      `json:"trendScore"`
	StabilityScore    float64      `json:"stabilityScore"`
	AlarmScore        float64      `json:"alarmScore"`
	HasBaseline       bool         `json:"hasBaseline"`
	ProblemTags       []ProblemTag `json:"problemTags,omitempty"`
	DiagnosticMessage string       `json:"diagnosticMessage,omitempty"`
}

// HealthSnapshot is the persisted history row for one assessment.
type HealthSnapshot struct {
	DeviceID  string      `json:"deviceId"`
	Timestamp int64       `json:"timestamp"`
	Index     int         `json:"index"`
	Level     HealthLevel `json:"level"`
}
