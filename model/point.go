package model

import (
	"encoding/base64"
	"time"
)

// ValueType discriminates the typed slot carried by a TelemetryPoint.
type ValueType int

const (
	ValueBool ValueType = iota
	ValueInt8
	ValueInt16
	ValueInt32
	ValueInt64
	ValueUInt8
	ValueUInt16
	ValueUInt32
	ValueUInt64
	ValueFloat32
	ValueFloat64
	ValueString
	ValueDateTime
	ValueByteArray
)

var valueTypeNames = map[ValueType]string{
	ValueBool:      "Bool",
	ValueInt8:      "Int8",
	ValueInt16:     "Int16",
	ValueInt32:     "Int32",
	ValueInt64:     "Int64",
	ValueUInt8:     "UInt8",
	ValueUInt16:    "UInt16",
	ValueUInt32:    "UInt32",
	ValueUInt64:    "UInt64",
	ValueFloat32:   "Float32",
	ValueFloat64:   "Float64",
	ValueString:    "String",
	ValueDateTime:  "DateTime",
	ValueByteArray: "ByteArray",
}

func (v ValueType) String() string {
	if s, ok := valueTypeNames[v]; ok {
		return s
	}
	return "Unknown"
}

// QualityGood is the OPC quality code for a good sample.
const QualityGood = 192

// TelemetryPoint is one typed sample from an edge collector.
// Primary key is (DeviceID, TagID, Ts, Seq); exactly one typed slot is
// populated, selected by ValueType.
type TelemetryPoint struct {
	DeviceID  string    `json:"deviceId"`
	TagID     string    `json:"tagId"`
	Ts        int64     `json:"ts"` // unix milliseconds
	Seq       int64     `json:"seq"`
	ValueType ValueType `json:"valueType"`

	BoolVal   *bool      `json:"boolVal,omitempty"`
	IntVal    *int64     `json:"intVal,omitempty"`  // Int8..Int64
	UintVal   *uint64    `json:"uintVal,omitempty"` // UInt8..UInt64
	FloatVal  *float64   `json:"floatVal,omitempty"`
	StringVal *string    `json:"stringVal,omitempty"`
	TimeVal   *time.Time `json:"timeVal,omitempty"`
	BytesVal  []byte     `json:"bytesVal,omitempty"`

	Quality  int    `json:"quality"`
	Unit     string `json:"unit,omitempty"`
	Protocol string `json:"protocol,omitempty"`
}

// Value coerces the populated slot to float64. Bool maps to 0/1,
// DateTime to unix milliseconds. String and ByteArray have no numeric
// coercion and return false.
func (p *TelemetryPoint) Value() (float64, bool) {
	switch p.ValueType {
	case ValueBool:
		if p.BoolVal == nil {
			return 0, false
		}
		if *p.BoolVal {
			return 1, true
		}
		return 0, true
	case ValueInt8, ValueInt16, ValueInt32, ValueInt64:
		if p.IntVal == nil {
			return 0, false
		}
		return float64(*p.IntVal), true
	case ValueUInt8, ValueUInt16, ValueUInt32, ValueUInt64:
		if p.UintVal == nil {
			return 0, false
		}
		return float64(*p.UintVal), true
	case ValueFloat32, ValueFloat64:
		if p.FloatVal == nil {
			return 0, false
		}
		return *p.FloatVal, true
	case ValueDateTime:
		if p.TimeVal == nil {
			return 0, false
		}
		return float64(p.TimeVal.UnixMilli()), true
	default:
		return 0, false
	}
}

// JSONValue returns the slot as a JSON-representable value for broadcast:
// bool, number or string; byte arrays are base64 strings.
func (p *TelemetryPoint) JSONValue() interface{} {
	switch p.ValueType {
	case ValueBool:
		if p.BoolVal != nil {
			return *p.BoolVal
		}
	case ValueString:
		if p.StringVal != nil {
			return *p.StringVal
		}
	case ValueDateTime:
		if p.TimeVal != nil {
			return p.TimeVal.UTC().Format(time.RFC3339Nano)
		}
	case ValueByteArray:
		if p.BytesVal != nil {
			return base64.StdEncoding.EncodeToString(p.BytesVal)
		}
	default:
		if v, ok := p.Value(); ok {
			return v
		}
	}
	return nil
}

// TagSummary is one row of the distinct-tags listing.
type TagSummary struct {
	DeviceID   string `json:"deviceId"`
	TagID      string `json:"tagId"`
	PointCount int64  `json:"pointCount"`
	LastTs     int64  `json:"lastTs"`
}

// AggregateFn selects the bucket reducer for Aggregate queries.
type AggregateFn string

const (
	AggAvg   AggregateFn = "avg"
	AggMin   AggregateFn = "min"
	AggMax   AggregateFn = "max"
	AggSum   AggregateFn = "sum"
	AggCount AggregateFn = "count"
	AggFirst AggregateFn = "first"
	AggLast  AggregateFn = "last"
)

// AggregateBucket is one non-empty bucket of an Aggregate query.
type AggregateBucket struct {
	BucketTs int64   `json:"bucketTs"`
	Value    float64 `json:"value"`
}

// PointFilter narrows a telemetry Query.
type PointFilter struct {
	DeviceID string
	TagID    string
	StartTs  int64 // inclusive
	EndTs    int64 // exclusive; 0 means open-ended
	Limit    int
	Desc     bool
}
