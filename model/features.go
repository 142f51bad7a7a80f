package model

// TagFeatures are the window statistics of one tag.
type TagFeatures struct {
	TagID                  string  `json:"tagId"`
	Count                  int     `json:"count"`
	Mean                   float64 `json:"mean"`
	StdDev                 float64 `json:"stdDev"`
	Min                    float64 `json:"min"`
	Max                    float64 `json:"max"`
	Latest                 float64 `json:"latest"`
	TrendSlope             float64 `json:"trendSlope"`
	TrendDirection         int     `json:"trendDirection"` // -1, 0, +1
	CoefficientOfVariation float64 `json:"coefficientOfVariation"`
	Range                  float64 `json:"range"`
}

// DeviceFeatures is the ephemeral per-assessment feature set of a device.
type DeviceFeatures struct {
	DeviceID      string                 `json:"deviceId"`
	Timestamp     int64                  `json:"timestamp"`
	WindowMinutes int                    `json:"windowMinutes"`
	SampleCount   int                    `json:"sampleCount"`
	TagFeatures   map[string]TagFeatures `json:"tagFeatures"`
}
