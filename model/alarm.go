package model

// ConditionType is the predicate of an alarm rule.
type ConditionType string

const (
	CondGT      ConditionType = "gt"
	CondGTE     ConditionType = "gte"
	CondLT      ConditionType = "lt"
	CondLTE     ConditionType = "lte"
	CondEQ      ConditionType = "eq"
	CondNEQ     ConditionType = "neq"
	CondBetween ConditionType = "between"
	CondOutside ConditionType = "outside"
)

// Valid reports whether the condition type is one of the known predicates.
func (c ConditionType) Valid() bool {
	switch c {
	case CondGT, CondGTE, CondLT, CondLTE, CondEQ, CondNEQ, CondBetween, CondOutside:
		return true
	}
	return false
}

// AlarmRule is a threshold rule over a tag or a tag glob pattern.
type AlarmRule struct {
	RuleID        string        `json:"ruleId"`
	Name          string        `json:"name,omitempty"`
	TagID         string        `json:"tagId"` // concrete tag or *-glob
	ConditionType ConditionType `json:"conditionType"`
	Threshold     float64       `json:"threshold"`
	UpperBound    float64       `json:"upperBound,omitempty"` // between/outside
	LowerBound    float64       `json:"lowerBound,omitempty"`
	DwellMs       int64         `json:"dwellMs"`
	HysteresisPct float64       `json:"hysteresisPct"`
	Severity      int           `json:"severity"` // 1..5
	Enabled       bool          `json:"enabled"`
}

// AlarmStatus is the forward-only lifecycle of an alarm.
type AlarmStatus int

const (
	AlarmOpen   AlarmStatus = 0
	AlarmAcked  AlarmStatus = 1
	AlarmClosed AlarmStatus = 2
)

func (s AlarmStatus) String() string {
	switch s {
	case AlarmOpen:
		return "Open"
	case AlarmAcked:
		return "Acked"
	case AlarmClosed:
		return "Closed"
	}
	return "Unknown"
}

// AlarmRecord is one fired alarm.
type AlarmRecord struct {
	AlarmID    string      `json:"alarmId"`
	DeviceID   string      `json:"deviceId"`
	TagID      string      `json:"tagId,omitempty"`
	RuleID     string      `json:"ruleId,omitempty"`
	Ts         int64       `json:"ts"`
	Severity   int         `json:"severity"`
	Code       string      `json:"code"`
	Message    string      `json:"message"`
	Status     AlarmStatus `json:"status"`
	AckedBy    string      `json:"ackedBy,omitempty"`
	AckedUtc   int64       `json:"ackedUtc,omitempty"`
	AckNote    string      `json:"ackNote,omitempty"`
	CreatedUtc int64       `json:"createdUtc"`
	UpdatedUtc int64       `json:"updatedUtc"`
}

// AlarmGroup aggregates repeated fires of one rule on one device.
// Severity is the max of open children, Message the latest child's.
type AlarmGroup struct {
	GroupID          string      `json:"groupId"`
	DeviceID         string      `json:"deviceId"`
	RuleID           string      `json:"ruleId"`
	FirstOccurredUtc int64       `json:"firstOccurredUtc"`
	LastOccurredUtc  int64       `json:"lastOccurredUtc"`
	AlarmCount       int         `json:"alarmCount"`
	Severity         int         `json:"severity"`
	Message          string      `json:"message"`
	AggregateStatus  AlarmStatus `json:"aggregateStatus"`
}

// AlarmQuery narrows alarm listings.
type AlarmQuery struct {
	DeviceID string
	RuleID   string
	Status   *AlarmStatus
	StartTs  int64
	EndTs    int64
	Limit    int
}
