package model

// TagBaseline is the learned normal fingerprint of one tag.
type TagBaseline struct {
	TagID        string  `json:"tagId"`
	NormalMean   float64 `json:"normalMean"`
	NormalStdDev float64 `json:"normalStdDev"`
	NormalMin    float64 `json:"normalMin"`
	NormalMax    float64 `json:"normalMax"`
	NormalCV     float64 `json:"normalCv"`
}

// DeviceBaseline owns the per-tag baselines of one device. Created on an
// explicit learn or the first dynamic update, mutated only by the baseline
// service.
type DeviceBaseline struct {
	DeviceID      string                 `json:"deviceId"`
	CreatedUtc    int64                  `json:"createdUtc"`
	UpdatedUtc    int64                  `json:"updatedUtc"`
	SampleCount   int64                  `json:"sampleCount"`
	LearningHours float64                `json:"learningHours"`
	TagBaselines  map[string]TagBaseline `json:"tagBaselines"`
}

// Baseline returns the tag baseline and whether it exists.
func (b *DeviceBaseline) Baseline(tagID string) (TagBaseline, bool) {
	if b == nil {
		return TagBaseline{}, false
	}
	tb, ok := b.TagBaselines[tagID]
	return tb, ok
}
