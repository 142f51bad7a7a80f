// Package cycle segments an angle stream into work cycles, computes
// per-cycle motor features, learns cycle baselines and scores anomalies.
package cycle

import "time"

// peakGateDeg is the minimum in-cycle peak angle for a close to count as
// a completed cycle.
const peakGateDeg = 30

// nowMilli is stubbed in tests that need a fixed clock.
var nowMilli = func() int64 { return time.Now().UnixMilli() }

// Sample is one timestamped value of a cycle-relevant series.
type Sample struct {
	Ts    int64
	Value float64
}

// Boundary is one detected cycle interval [StartTs, EndTs).
type Boundary struct {
	StartTs  int64
	EndTs    int64
	MaxAngle float64
}

// DurationSeconds returns the cycle length in seconds.
func (b Boundary) DurationSeconds() float64 {
	return float64(b.EndTs-b.StartTs) / 1000
}

// DetectBoundaries segments the angle series: a cycle opens on the
// sample crossing up through the threshold and closes on the sample
// returning below it, provided the in-cycle peak exceeded 30 degrees.
// Cycles outside [minDur, maxDur] seconds are discarded. The intervals
// are pairwise disjoint by construction.
func DetectBoundaries(angle []Sample, threshold, minDur, maxDur float64) []Boundary {
	var out []Boundary
	var open bool
	var startTs int64
	var peak float64
	for i := 1; i < len(angle); i++ {
		prev, cur := angle[i-1], angle[i]
		if !open {
			if prev.Value < threshold && cur.Value >= threshold {
				open = true
				startTs = cur.Ts
				peak = cur.Value
			}
			continue
		}
		if cur.Value > peak {
			peak = cur.Value
		}
		if cur.Value < threshold {
			open = false
			if peak <= peakGateDeg {
				continue
			}
			b := Boundary{StartTs: startTs, EndTs: cur.Ts, MaxAngle: peak}
			if d := b.DurationSeconds(); d >= minDur && d <= maxDur {
				out = append(out, b)
			}
		}
	}
	return out
}
