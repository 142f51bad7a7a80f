// Package motor implements the FFT-based spectral pipeline: baseline
// profile learning per operation mode and fault diagnosis of motor
// instances.
package motor

import (
	"math"
	"math/bits"
	"math/cmplx"
	"sort"
)

// leakageBins is the half-width of the peak search around a target
// frequency, tolerating spectral leakage.
const leakageBins = 2

// FFTMagnitudes windows the samples with a Hanning window, zero-pads to
// the next power of two, runs an iterative Cooley-Tukey transform and
// returns the single-sided magnitudes |X_k| * 2/N for k < N/2.
func FFTMagnitudes(samples []float64) []float64 {
	if len(samples) == 0 {
		return nil
	}
	n := nextPow2(len(samples))
	buf := make([]complex128, n)
	for i, v := range samples {
		// Hanning over the original range only; the padding stays zero.
		w := 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(len(samples)-1)))
		if len(samples) == 1 {
			w = 1
		}
		buf[i] = complex(v*w, 0)
	}
	fft(buf)

	half := n / 2
	out := make([]float64, half)
	scale := 2 / float64(n)
	for k := 0; k < half; k++ {
		out[k] = cmplx.Abs(buf[k]) * scale
	}
	return out
}

// fft is the in-place iterative radix-2 Cooley-Tukey transform with
// bit-reversal reordering. len(buf) must be a power of two.
func fft(buf []complex128) {
	n := len(buf)
	if n < 2 {
		return
	}
	shift := 64 - uint(bits.TrailingZeros(uint(n)))
	for i := 0; i < n; i++ {
		j := int(bits.Reverse64(uint64(i)) >> shift)
		if j > i {
			buf[i], buf[j] = buf[j], buf[i]
		}
	}
	for size := 2; size <= n; size <<= 1 {
		half := size / 2
		step := -2 * math.Pi / float64(size)
		for start := 0; start < n; start += size {
			for k := 0; k < half; k++ {
				w := cmplx.Rect(1, step*float64(k))
				even := buf[start+k]
				odd := buf[start+k+half] * w
				buf[start+k] = even + odd
				buf[start+k+half] = even - odd
			}
		}
	}
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// AmplitudeAt returns the peak magnitude within leakageBins bins of the
// target frequency. freqRes is fs/N for the transform that produced mags.
func AmplitudeAt(mags []float64, freqRes, targetHz float64) float64 {
	if len(mags) == 0 || freqRes <= 0 || targetHz < 0 {
		return 0
	}
	center := int(math.Round(targetHz / freqRes))
	var peak float64
	for k := center - leakageBins; k <= center+leakageBins; k++ {
		if k >= 0 && k < len(mags) && mags[k] > peak {
			peak = mags[k]
		}
	}
	return peak
}

// BandEnergy sums |X|^2 over [loHz, hiHz).
func BandEnergy(mags []float64, freqRes, loHz, hiHz float64) float64 {
	if len(mags) == 0 || freqRes <= 0 {
		return 0
	}
	var sum float64
	for k, m := range mags {
		f := float64(k) * freqRes
		if f >= loHz && f < hiHz {
			sum += m * m
		}
	}
	return sum
}

// noiseFloor estimates the spectrum's background level as the median
// magnitude.
func noiseFloor(mags []float64) float64 {
	if len(mags) == 0 {
		return 0
	}
	sorted := append([]float64(nil), mags...)
	sort.Float64s(sorted)
	return sorted[len(sorted)/2]
}
