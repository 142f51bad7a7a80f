package motor

import (
	"math"
	"testing"
)

func TestNextPow2(t *testing.T) {
	tests := []struct{ in, want int }{
		{1, 1}, {2, 2}, {3, 4}, {1000, 1024}, {1024, 1024}, {1025, 2048},
	}
	for _, tt := range tests {
		if got := nextPow2(tt.in); got != tt.want {
			t.Errorf("nextPow2(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestFFTMagnitudesSine(t *testing.T) {
	// 10*sin(2*pi*50t) sampled at 1024 Hz for 2048 samples: the 50 Hz
	// component lands exactly on bin 100 (freqRes 0.5). The Hanning
	// window halves the coherent amplitude, so the peak reads ~5.
	const fs = 1024.0
	n := 2048
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = 10 * math.Sin(2*math.Pi*50*float64(i)/fs)
	}
	mags := FFTMagnitudes(samples)
	if len(mags) != n/2 {
		t.Fatalf("got %d bins, want %d", len(mags), n/2)
	}
	freqRes := fs / float64(n)

	peak := AmplitudeAt(mags, freqRes, 50)
	if math.Abs(peak-5) > 0.1 {
		t.Errorf("50 Hz amplitude = %v, want ~5 after windowing", peak)
	}
	if off := AmplitudeAt(mags, freqRes, 300); off > 0.05 {
		t.Errorf("300 Hz amplitude = %v, want near zero for a pure tone", off)
	}
}

func TestFFTMagnitudesEmpty(t *testing.T) {
	if got := FFTMagnitudes(nil); got != nil {
		t.Errorf("empty input = %v, want nil", got)
	}
}

func TestAmplitudeAt(t *testing.T) {
	// freqRes 1: the target bin is the index. The search tolerates
	// leakage by scanning +-2 bins.
	mags := []float64{0, 0, 0, 1, 5, 2, 0, 0, 9, 0}
	tests := []struct {
		name   string
		target float64
		want   float64
	}{
		{"on the peak", 4, 5},
		{"leakage neighbor", 6, 9}, // bin 8 is within reach of bin 6
		{"edge clamped", 0, 0},
		{"beyond the spectrum", 50, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AmplitudeAt(mags, 1, tt.target); got != tt.want {
				t.Errorf("AmplitudeAt(%v) = %v, want %v", tt.target, got, tt.want)
			}
		})
	}
	if got := AmplitudeAt(mags, 0, 4); got != 0 {
		t.Errorf("zero freqRes = %v, want 0", got)
	}
}

func TestBandEnergy(t *testing.T) {
	// freqRes 10: bins sit at 0, 10, 20, 30 Hz.
	mags := []float64{1, 2, 3, 4}
	// [10, 30) covers bins 1 and 2: 4 + 9 = 13.
	if got := BandEnergy(mags, 10, 10, 30); math.Abs(got-13) > 1e-12 {
		t.Errorf("BandEnergy = %v, want 13", got)
	}
	if got := BandEnergy(mags, 10, 100, 200); got != 0 {
		t.Errorf("out-of-range band = %v, want 0", got)
	}
}

func TestNoiseFloor(t *testing.T) {
	if got := noiseFloor([]float64{5, 1, 9, 2, 7}); got != 5 {
		t.Errorf("noiseFloor = %v, want the median 5", got)
	}
	if got := noiseFloor(nil); got != 0 {
		t.Errorf("empty spectrum floor = %v, want 0", got)
	}
}
