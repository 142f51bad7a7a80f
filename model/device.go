package model

// Device is an edge-connected unit owning a set of tags.
type Device struct {
	DeviceID string `json:"deviceId"`
	Name     string `json:"name,omitempty"`
	Protocol string `json:"protocol"`
	Enabled  bool   `json:"enabled"`
	Location string `json:"location,omitempty"`
}

// Tag is one addressable point on a device.
type Tag struct {
	TagID          string    `json:"tagId"`
	DeviceID       string    `json:"deviceId"`
	DataType       ValueType `json:"dataType"`
	Enabled        bool      `json:"enabled"`
	Unit           string    `json:"unit,omitempty"`
	Address        string    `json:"address,omitempty"`
	ScanIntervalMs int       `json:"scanIntervalMs,omitempty"`
	TagGroup       string    `json:"tagGroup,omitempty"`
}

// Importance ranks a tag's weight in health aggregation.
type Importance int

const (
	ImportanceTrivial Importance = iota + 1
	ImportanceMinor
	ImportanceMajor
	ImportanceCritical
)

func (i Importance) String() string {
	switch i {
	case ImportanceCritical:
		return "Critical"
	case ImportanceMajor:
		return "Major"
	case ImportanceMinor:
		return "Minor"
	case ImportanceTrivial:
		return "Trivial"
	}
	return "Unknown"
}

// Weight returns the averaging weight for the importance rank
// (Critical=4, Major=3, Minor=2, Trivial=1).
func (i Importance) Weight() float64 {
	switch i {
	case ImportanceCritical:
		return 4
	case ImportanceMajor:
		return 3
	case ImportanceMinor:
		return 2
	default:
		return 1
	}
}

// TagImportanceRule maps a tag glob pattern to an importance rank.
// Higher Priority wins when several patterns match.
type TagImportanceRule struct {
	Pattern    string     `json:"pattern"`
	Importance Importance `json:"importance"`
	Priority   int        `json:"priority"`
	Enabled    bool       `json:"enabled"`
}
