package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/intellimaint/intellimaint/config"
	"github.com/intellimaint/intellimaint/model"
	"github.com/intellimaint/intellimaint/store"
)

// flatSlopePerHour is the slope above which the health trajectory counts
// as flat or improving.
const flatSlopePerHour = -0.001

// maintenanceLeadMs is the lead time subtracted from the predicted
// failure for the recommended maintenance date (7 days).
const maintenanceLeadMs = 7 * 86_400_000

// RULPredictor extrapolates remaining useful life from the device's
// health snapshot history.
type RULPredictor struct {
	snapshots store.HealthSnapshotRepository
	cfg       config.RulPredictionConfig
	log       *zap.Logger
}

// NewRULPredictor wires the RUL extrapolator.
func NewRULPredictor(s store.HealthSnapshotRepository, cfg config.RulPredictionConfig, log *zap.Logger) *RULPredictor {
	return &RULPredictor{snapshots: s, cfg: cfg, log: log}
}

// Predict fits index-vs-hours over the history window and derives the
// ETA to the failure threshold.
func (p *RULPredictor) Predict(ctx context.Context, deviceID string) (*model.RULPrediction, error) {
	if !p.cfg.Enabled {
		return nil, nil
	}
	now := nowMilli()
	start := now - int64(p.cfg.HistoryWindowDays)*86_400_000
	history, err := p.snapshots.Query(ctx, deviceID, start, now)
	if err != nil {
		return nil, fmt.Errorf("query health history for %s: %w", deviceID, err)
	}
	if len(history) < p.cfg.MinDataPoints {
		return nil, fmt.Errorf("%w: %d snapshots for %s, need %d", model.ErrInsufficientData, len(history), deviceID, p.cfg.MinDataPoints)
	}

	hours := make([]float64, len(history))
	idx := make([]float64, len(history))
	for i, s := range history {
		hours[i] = float64(s.Timestamp-start) / 3_600_000
		idx[i] = float64(s.Index)
	}
	slope, _, r2 := linearRegression(hours, idx)
	current := history[len(history)-1].Index

	pred := &model.RULPrediction{
		DeviceID:     deviceID,
		Timestamp:    now,
		CurrentIndex: current,
		SlopePerHour: slope,
		R2:           r2,
		RULHours:     -1,
	}

	if float64(current) <= p.cfg.FailureThreshold {
		pred.Status = model.RULNearFailure
		pred.Risk = model.RULRiskCritical
		pred.RULHours = 0
		pred.PredictedFailureUtc = now
		pred.RecommendedMaintenance = now
		return pred, nil
	}
	if slope >= flatSlopePerHour {
		pred.Status = model.RULHealthy
		pred.Risk = model.RULRiskLow
		return pred, nil
	}

	hoursToFail := (p.cfg.FailureThreshold - float64(current)) / slope
	maxHours := float64(p.cfg.MaxPredictionDays) * 24
	if hoursToFail > maxHours {
		hoursToFail = maxHours
	}
	daysToFail := hoursToFail / 24

	pred.RULHours = hoursToFail
	pred.PredictedFailureUtc = now + int64(hoursToFail*3_600_000)
	pred.RecommendedMaintenance = pred.PredictedFailureUtc - maintenanceLeadMs
	pred.Status = rulStatus(slope, daysToFail)
	pred.Risk = rulRisk(daysToFail)
	return pred, nil
}

// rulStatus derives the degradation state from the daily slope. An ETA
// under two days overrides the slope bands as near failure.
func rulStatus(slopePerHour, daysToFail float64) string {
	if daysToFail < 2 {
		return model.RULNearFailure
	}
	daily := slopePerHour * 24
	switch {
	case daily < -2:
		return model.RULAcceleratedDegradation
	case daily < -0.5:
		return model.RULNormalDegradation
	default:
		return model.RULHealthy
	}
}

func rulRisk(daysToFail float64) string {
	switch {
	case daysToFail < 1:
		return model.RULRiskCritical
	case daysToFail < 7:
		return model.RULRiskHigh
	case daysToFail < 30:
		return model.RULRiskMedium
	default:
		return model.RULRiskLow
	}
}
