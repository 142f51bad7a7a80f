package engine

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/intellimaint/intellimaint/config"
	"github.com/intellimaint/intellimaint/model"
)

// MultiScaleAssessor evaluates health at three window lengths and
// classifies the trajectory from the inter-window deltas.
type MultiScaleAssessor struct {
	extractor *FeatureExtractor
	health    *HealthCalculator
	cfg       config.MultiScaleConfig
	log       *zap.Logger
}

// NewMultiScaleAssessor composes the extractor and calculator.
func NewMultiScaleAssessor(e *FeatureExtractor, h *HealthCalculator, cfg config.MultiScaleConfig, log *zap.Logger) *MultiScaleAssessor {
	return &MultiScaleAssessor{extractor: e, health: h, cfg: cfg, log: log}
}

// Assess scores the device at the short, medium and long windows.
func (a *MultiScaleAssessor) Assess(ctx context.Context, deviceID string) (*model.MultiScaleScore, error) {
	short, err := a.scoreAt(ctx, deviceID, a.cfg.ShortTermMinutes)
	if err != nil {
		return nil, err
	}
	medium, err := a.scoreAt(ctx, deviceID, a.cfg.MediumTermMinutes)
	if err != nil {
		return nil, err
	}
	long, err := a.scoreAt(ctx, deviceID, a.cfg.LongTermMinutes)
	if err != nil {
		return nil, err
	}

	composite := float64(short)*a.cfg.ShortTermWeight +
		float64(medium)*a.cfg.MediumTermWeight +
		float64(long)*a.cfg.LongTermWeight
	return &model.MultiScaleScore{
		DeviceID:    deviceID,
		Timestamp:   nowMilli(),
		ShortScore:  short,
		MediumScore: medium,
		LongScore:   long,
		Composite:   int(clampf(math.Round(composite), 0, 100)),
		Trend:       classifyTrend(short, medium, long),
	}, nil
}

func (a *MultiScaleAssessor) scoreAt(ctx context.Context, deviceID string, windowMinutes int) (int, error) {
	feats, err := a.extractor.Extract(ctx, deviceID, windowMinutes)
	if err != nil {
		return 0, err
	}
	if feats == nil {
		return 0, fmt.Errorf("%w: no telemetry in %d minute window for %s", model.ErrInsufficientData, windowMinutes, deviceID)
	}
	hs, err := a.health.Assess(ctx, feats)
	if err != nil {
		return 0, err
	}
	return hs.Index, nil
}

// classifyTrend maps the short-long and medium-long deltas onto the five
// trajectory states with the +-5 / +-15 thresholds. A large short-window
// move confirmed by the medium window counts as sharp; unconfirmed moves
// count as the moderate state.
func classifyTrend(short, medium, long int) model.TrendState {
	sl := short - long
	ml := medium - long
	switch {
	case sl <= -15 && ml <= -5:
		return model.TrendSharpDecline
	case sl <= -5:
		return model.TrendDeclining
	case sl >= 15 && ml >= 5:
		return model.TrendRecovering
	case sl >= 5:
		return model.TrendImproving
	default:
		return model.TrendStable
	}
}
