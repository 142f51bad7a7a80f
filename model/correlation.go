package model

// CorrelationType selects the pairwise detection mode.
type CorrelationType string

const (
	CorrSameDirection        CorrelationType = "SameDirection"
	CorrOppositeDirection    CorrelationType = "OppositeDirection"
	CorrThresholdCombination CorrelationType = "ThresholdCombination"
)

// CorrelationRule declares a suspicious relationship between two tag
// patterns on matching devices.
type CorrelationRule struct {
	ID              string          `json:"id"`
	Name            string          `json:"name,omitempty"`
	DevicePattern   string          `json:"devicePattern"`
	Tag1Pattern     string          `json:"tag1Pattern"`
	Tag2Pattern     string          `json:"tag2Pattern"`
	Type            CorrelationType `json:"type"`
	Threshold       float64         `json:"threshold"`
	PenaltyScore    float64         `json:"penaltyScore"`
	RiskDescription string          `json:"riskDescription"`
	Enabled         bool            `json:"enabled"`
}

// CorrelationAnomaly is one detected pairwise anomaly.
type CorrelationAnomaly struct {
	RuleID          string  `json:"ruleId"`
	RuleName        string  `json:"ruleName"`
	Tag1            string  `json:"tag1"`
	Tag2            string  `json:"tag2"`
	Correlation     float64 `json:"correlation"` // Pearson coefficient
	RiskDescription string  `json:"riskDescription"`
	PenaltyScore    float64 `json:"penaltyScore"`
}
