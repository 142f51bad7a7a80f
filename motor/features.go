package motor

import (
	"math"

	"github.com/intellimaint/intellimaint/model"
)

// BearingFrequencies derives the characteristic fault frequencies from
// the rolling-element geometry and the shaft rotation frequency.
func BearingFrequencies(g model.BearingGeometry, rotationHz float64) (bpfo, bpfi, bsf, ftf float64) {
	if g.BallCount <= 0 || g.PitchDiameterMm <= 0 || g.BallDiameterMm <= 0 {
		return 0, 0, 0, 0
	}
	n := float64(g.BallCount)
	ratio := g.BallDiameterMm / g.PitchDiameterMm
	cosTheta := math.Cos(g.ContactAngleDeg * math.Pi / 180)
	rc := ratio * cosTheta

	bpfo = n / 2 * rotationHz * (1 - rc)
	bpfi = n / 2 * rotationHz * (1 + rc)
	bsf = g.PitchDiameterMm / (2 * g.BallDiameterMm) * rotationHz * (1 - rc*rc)
	ftf = rotationHz / 2 * (1 - rc)
	return bpfo, bpfi, bsf, ftf
}

// ComputeProfile builds the spectral fingerprint of a current series:
// fundamental and harmonics at the supply frequency, bearing fault
// amplitudes, THD and band energies. Returns nil for an empty series.
func ComputeProfile(samples []float64, sampleRateHz, supplyHz float64, geometry model.BearingGeometry, rotationHz float64) *model.FrequencyProfile {
	mags := FFTMagnitudes(samples)
	if len(mags) == 0 || sampleRateHz <= 0 {
		return nil
	}
	n := 2 * len(mags)
	freqRes := sampleRateHz / float64(n)

	p := &model.FrequencyProfile{
		Version:              1,
		SampleRateHz:         sampleRateHz,
		FundamentalHz:        supplyHz,
		FundamentalAmplitude: AmplitudeAt(mags, freqRes, supplyHz),
		Harmonic2Amplitude:   AmplitudeAt(mags, freqRes, 2*supplyHz),
		Harmonic3Amplitude:   AmplitudeAt(mags, freqRes, 3*supplyHz),
		NoiseFloor:           noiseFloor(mags),
	}

	bpfo, bpfi, bsf, ftf := BearingFrequencies(geometry, rotationHz)
	p.BpfoAmplitude = AmplitudeAt(mags, freqRes, bpfo)
	p.BpfiAmplitude = AmplitudeAt(mags, freqRes, bpfi)
	p.BsfAmplitude = AmplitudeAt(mags, freqRes, bsf)
	p.FtfAmplitude = AmplitudeAt(mags, freqRes, ftf)

	if p.FundamentalAmplitude > 1e-12 {
		p.ThdPercent = math.Sqrt(p.Harmonic2Amplitude*p.Harmonic2Amplitude+
			p.Harmonic3Amplitude*p.Harmonic3Amplitude) / p.FundamentalAmplitude * 100
	}

	p.BandEnergies = []float64{
		BandEnergy(mags, freqRes, 0, 100),
		BandEnergy(mags, freqRes, 100, 1000),
		BandEnergy(mags, freqRes, 1000, sampleRateHz/2),
	}
	return p
}

// RotationHz derives the nominal shaft rotation frequency of a model
// from its rated speed, falling back to supply frequency over pole
// pairs.
func RotationHz(m model.MotorModel) float64 {
	if m.RatedSpeedRpm > 0 {
		return m.RatedSpeedRpm / 60
	}
	if m.PolePairs > 0 && m.SupplyFreqHz > 0 {
		return m.SupplyFreqHz / float64(m.PolePairs)
	}
	return 0
}
