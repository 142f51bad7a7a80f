package engine

import (
	"testing"

	"github.com/intellimaint/intellimaint/model"
)

// stubClock pins nowMilli for the duration of a test.
func stubClock(t *testing.T, ts int64) {
	t.Helper()
	old := nowMilli
	nowMilli = func() int64 { return ts }
	t.Cleanup(func() { nowMilli = old })
}

func numPoint(device, tag string, ts int64, v float64) model.TelemetryPoint {
	return model.TelemetryPoint{
		DeviceID:  device,
		TagID:     tag,
		Ts:        ts,
		ValueType: model.ValueFloat64,
		FloatVal:  &v,
		Quality:   model.QualityGood,
	}
}
