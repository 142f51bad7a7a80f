package motor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/intellimaint/intellimaint/config"
	"github.com/intellimaint/intellimaint/model"
	"github.com/intellimaint/intellimaint/store"
)

// spectrumSamples is the trailing sample count pulled for the live
// spectral comparison of a current channel.
const spectrumSamples = 4096

// ModeDetector resolves the current operation mode of an instance. The
// production detector is an external collaborator; FixedMode serves
// single-regime installations.
type ModeDetector interface {
	DetectMode(ctx context.Context, inst model.MotorInstance) (string, error)
}

// FixedMode always reports the same mode id.
type FixedMode string

// DetectMode implements ModeDetector.
func (m FixedMode) DetectMode(context.Context, model.MotorInstance) (string, error) {
	return string(m), nil
}

// Diagnoser runs the fault detection pipeline per motor instance and
// caches the latest result.
type Diagnoser struct {
	telemetry store.TelemetryRepository
	instances store.MotorInstanceRepository
	models    store.MotorModelRepository
	mappings  store.MotorParameterMappingRepository
	profiles  store.BaselineProfileRepository
	detector  ModeDetector
	cfg       config.FaultDetectionConfig
	log       *zap.Logger

	mu     sync.Mutex
	latest map[string]*model.DiagnosisResult
}

// NewDiagnoser wires the fault detector.
func NewDiagnoser(t store.TelemetryRepository, i store.MotorInstanceRepository, m store.MotorModelRepository, mp store.MotorParameterMappingRepository, p store.BaselineProfileRepository, detector ModeDetector, cfg config.FaultDetectionConfig, log *zap.Logger) *Diagnoser {
	if detector == nil {
		detector = FixedMode("default")
	}
	return &Diagnoser{
		telemetry: t,
		instances: i,
		models:    m,
		mappings:  mp,
		profiles:  p,
		detector:  detector,
		cfg:       cfg,
		log:       log,
		latest:    make(map[string]*model.DiagnosisResult),
	}
}

// DiagnoseAll diagnoses every enabled instance, isolating failures.
func (d *Diagnoser) DiagnoseAll(ctx context.Context) error {
	instances, err := d.instances.List(ctx)
	if err != nil {
		return fmt.Errorf("list motor instances: %w", err)
	}
	for _, inst := range instances {
		if !inst.Enabled {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := d.Diagnose(ctx, inst.InstanceID); err != nil {
			if errors.Is(err, model.ErrInsufficientData) || errors.Is(err, model.ErrNotFound) {
				d.log.Debug("diagnosis skipped", zap.String("instance", inst.InstanceID), zap.Error(err))
				continue
			}
			d.log.Warn("diagnosis failed", zap.String("instance", inst.InstanceID), zap.Error(err))
		}
	}
	return nil
}

// Diagnose assesses one instance from its latest mapped values and the
// stored baseline profiles, caching the result.
func (d *Diagnoser) Diagnose(ctx context.Context, instanceID string) (*model.DiagnosisResult, error) {
	inst, err := d.instances.Get(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	motorModel, err := d.models.Get(ctx, inst.ModelID)
	if err != nil {
		return nil, err
	}
	mappings, err := d.mappings.ListByInstance(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("list mappings for %s: %w", instanceID, err)
	}
	if len(mappings) == 0 {
		return nil, fmt.Errorf("%w: no parameter mappings for %s", model.ErrInsufficientData, instanceID)
	}
	modeID, err := d.detector.DetectMode(ctx, inst)
	if err != nil {
		return nil, fmt.Errorf("detect mode for %s: %w", instanceID, err)
	}

	result := &model.DiagnosisResult{
		InstanceID: instanceID,
		DeviceID:   inst.DeviceID,
		ModeID:     modeID,
		Timestamp:  nowMilli(),
	}
	var faults []model.MotorFault
	var zScores []float64
	phases := map[model.MotorParameter]float64{}
	var rmsMapping *model.MotorParameterMapping

	for i := range mappings {
		mapping := mappings[i]
		value, ok, err := d.latestValue(ctx, inst.DeviceID, mapping)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		switch mapping.Parameter {
		case model.ParamCurrentPhaseA, model.ParamCurrentPhaseB, model.ParamCurrentPhaseC:
			phases[mapping.Parameter] = value
		case model.ParamCurrentRMS:
			rmsMapping = &mappings[i]
		}

		profile, err := d.profiles.Get(ctx, instanceID, modeID, mapping.Parameter)
		if err != nil {
			continue // unlearned parameter, z-check not possible
		}
		f, z := deviationFault(mapping.Parameter, value, profile, d.cfg)
		zScores = append(zScores, z)
		if f != nil && f.ConfidencePercent >= d.cfg.MinConfidence {
			faults = append(faults, *f)
		}
	}

	if len(phases) == 3 {
		if f := phaseImbalanceFault(phases[model.ParamCurrentPhaseA], phases[model.ParamCurrentPhaseB], phases[model.ParamCurrentPhaseC], d.cfg); f != nil && f.ConfidencePercent >= d.cfg.MinConfidence {
			faults = append(faults, *f)
		}
	}

	if rmsMapping != nil {
		spectral, err := d.spectralFaults(ctx, inst, motorModel, *rmsMapping, modeID)
		if err != nil {
			d.log.Debug("spectral check skipped", zap.String("instance", instanceID), zap.Error(err))
		} else {
			for _, f := range spectral {
				if f.ConfidencePercent >= d.cfg.MinConfidence {
					faults = append(faults, f)
				}
			}
		}
	}

	composeResult(result, zScores, faults)

	d.mu.Lock()
	d.latest[instanceID] = result
	d.mu.Unlock()
	return result, nil
}

// Latest returns the cached diagnosis of an instance.
func (d *Diagnoser) Latest(instanceID string) (*model.DiagnosisResult, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.latest[instanceID]
	return r, ok
}

func (d *Diagnoser) latestValue(ctx context.Context, deviceID string, mapping model.MotorParameterMapping) (float64, bool, error) {
	points, err := d.telemetry.GetLatest(ctx, deviceID, mapping.TagID)
	if err != nil {
		return 0, false, fmt.Errorf("latest %s/%s: %w", deviceID, mapping.TagID, err)
	}
	if len(points) == 0 {
		return 0, false, nil
	}
	v, ok := points[0].Value()
	if !ok {
		return 0, false, nil
	}
	return mapping.Apply(v), true, nil
}

// spectralFaults compares the live current spectrum against the stored
// frequency profile: bearing signatures and harmonic distortion.
func (d *Diagnoser) spectralFaults(ctx context.Context, inst model.MotorInstance, motorModel model.MotorModel, mapping model.MotorParameterMapping, modeID string) ([]model.MotorFault, error) {
	profile, err := d.profiles.Get(ctx, inst.InstanceID, modeID, mapping.Parameter)
	if err != nil {
		return nil, err
	}
	if profile.Frequency == nil {
		return nil, fmt.Errorf("%w: no frequency profile for %s/%s", model.ErrInsufficientData, inst.InstanceID, mapping.Parameter)
	}

	points, err := d.telemetry.Query(ctx, model.PointFilter{
		DeviceID: inst.DeviceID,
		TagID:    mapping.TagID,
		Limit:    spectrumSamples,
		Desc:     true,
	})
	if err != nil {
		return nil, err
	}
	if len(points) < 64 {
		return nil, fmt.Errorf("%w: %d samples for spectrum", model.ErrInsufficientData, len(points))
	}
	// Query returned newest-first; restore chronological order.
	vals := make([]float64, 0, len(points))
	for i := len(points) - 1; i >= 0; i-- {
		if v, ok := points[i].Value(); ok {
			vals = append(vals, mapping.Apply(v))
		}
	}
	live := ComputeProfile(vals, profile.Frequency.SampleRateHz, motorModel.SupplyFreqHz, motorModel.Bearing, RotationHz(motorModel))
	if live == nil {
		return nil, fmt.Errorf("%w: empty spectrum", model.ErrInsufficientData)
	}

	faults := bearingFaults(live, profile.Frequency, d.cfg)
	if f := harmonicFault(live.ThdPercent, d.cfg); f != nil {
		faults = append(faults, *f)
	}
	return faults, nil
}
