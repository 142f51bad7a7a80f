// Package config loads and validates the engine configuration.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"

	"github.com/intellimaint/intellimaint/model"
)

// Config is the root engine configuration.
type Config struct {
	DataDir     string `yaml:"data_dir"`
	ListenAddr  string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr"`

	Weights         WeightsConfig         `yaml:"weights"`
	LevelThresholds LevelThresholdsConfig `yaml:"level_thresholds"`

	DefaultTagImportance string `yaml:"default_tag_importance" validate:"oneof=Critical Major Minor Trivial"`

	AlarmScore      AlarmScoreConfig      `yaml:"alarm_score"`
	DynamicBaseline DynamicBaselineConfig `yaml:"dynamic_baseline"`
	MultiScale      MultiScaleConfig      `yaml:"multi_scale"`
	Degradation     DegradationConfig     `yaml:"degradation"`
	TrendPrediction TrendPredictionConfig `yaml:"trend_prediction"`
	RulPrediction   RulPredictionConfig   `yaml:"rul_prediction"`
	FaultDetection  FaultDetectionConfig  `yaml:"fault_detection"`
	Cycle           CycleConfig           `yaml:"cycle"`
	Assessment      AssessmentConfig      `yaml:"assessment"`
	Scheduler       SchedulerConfig       `yaml:"scheduler"`
	Hub             HubConfig             `yaml:"hub"`
	AlarmWebhook    string                `yaml:"alarm_webhook"`
}

// WeightsConfig sets the composite sub-score weights; they must sum to 1.
type WeightsConfig struct {
	Deviation float64 `yaml:"deviation" validate:"gte=0,lte=1"`
	Trend     float64 `yaml:"trend" validate:"gte=0,lte=1"`
	Stability float64 `yaml:"stability" validate:"gte=0,lte=1"`
	Alarm     float64 `yaml:"alarm" validate:"gte=0,lte=1"`
}

// LevelThresholdsConfig sets the band edges for HealthLevel.
type LevelThresholdsConfig struct {
	HealthyMin   int `yaml:"healthy_min" validate:"gte=0,lte=100"`
	AttentionMin int `yaml:"attention_min" validate:"gte=0,lte=100"`
	WarningMin   int `yaml:"warning_min" validate:"gte=0,lte=100"`
}

// AlarmScoreConfig tunes the alarm sub-score penalties.
type AlarmScoreConfig struct {
	CriticalPenalty       float64 `yaml:"critical_penalty"`
	ErrorPenalty          float64 `yaml:"error_penalty"`
	WarningPenalty        float64 `yaml:"warning_penalty"`
	InfoPenalty           float64 `yaml:"info_penalty"`
	ConsiderDuration      bool    `yaml:"consider_duration"`
	DurationFactorPerHour float64 `yaml:"duration_factor_per_hour"`
	MaxDurationMultiplier float64 `yaml:"max_duration_multiplier" validate:"gte=1"`
	MinScore              float64 `yaml:"min_score" validate:"gte=0,lte=100"`
}

// DynamicBaselineConfig tunes the periodic baseline updater.
type DynamicBaselineConfig struct {
	Enabled                bool    `yaml:"enabled"`
	UpdateIntervalHours    float64 `yaml:"update_interval_hours" validate:"gt=0"`
	MinSampleCount         int     `yaml:"min_sample_count" validate:"gt=0"`
	AnomalyFilterThreshold float64 `yaml:"anomaly_filter_threshold" validate:"gt=0"`
	IncrementalWeight      float64 `yaml:"incremental_weight" validate:"gt=0,lt=1"`
	AgingFactor            float64 `yaml:"aging_factor" validate:"gte=0"`
}

// MultiScaleConfig tunes the three-window composition.
type MultiScaleConfig struct {
	Enabled           bool    `yaml:"enabled"`
	ShortTermMinutes  int     `yaml:"short_term_minutes" validate:"gt=0"`
	MediumTermMinutes int     `yaml:"medium_term_minutes" validate:"gt=0"`
	LongTermMinutes   int     `yaml:"long_term_minutes" validate:"gt=0"`
	ShortTermWeight   float64 `yaml:"short_term_weight"`
	MediumTermWeight  float64 `yaml:"medium_term_weight"`
	LongTermWeight    float64 `yaml:"long_term_weight"`
}

// DegradationConfig tunes slow-drift detection.
type DegradationConfig struct {
	Enabled                  bool    `yaml:"enabled"`
	DetectionWindowDays      int     `yaml:"detection_window_days" validate:"gt=0"`
	NoiseFilterWindowHours   float64 `yaml:"noise_filter_window_hours" validate:"gt=0"`
	ConfirmationCount        int     `yaml:"confirmation_count" validate:"gte=2"`
	DegradationRateThreshold float64 `yaml:"degradation_rate_threshold" validate:"gte=0"`
}

// TrendPredictionConfig tunes tag-level threshold forecasting.
type TrendPredictionConfig struct {
	Enabled                    bool    `yaml:"enabled"`
	HistoryWindowHours         int     `yaml:"history_window_hours" validate:"gt=0"`
	MinDataPoints              int     `yaml:"min_data_points" validate:"gte=3"`
	SmoothingAlpha             float64 `yaml:"smoothing_alpha" validate:"gt=0,lte=1"`
	PredictionHorizonHours     float64 `yaml:"prediction_horizon_hours" validate:"gt=0"`
	TrendSignificanceThreshold float64 `yaml:"trend_significance_threshold" validate:"gte=0"`
	ConfidenceThreshold        float64 `yaml:"confidence_threshold" validate:"gte=0,lte=1"`
}

// RulPredictionConfig tunes remaining-useful-life extrapolation.
type RulPredictionConfig struct {
	Enabled           bool    `yaml:"enabled"`
	HistoryWindowDays int     `yaml:"history_window_days" validate:"gt=0"`
	MinDataPoints     int     `yaml:"min_data_points" validate:"gte=3"`
	FailureThreshold  float64 `yaml:"failure_threshold" validate:"gte=0,lte=100"`
	MaxPredictionDays int     `yaml:"max_prediction_days" validate:"gt=0"`
	ModelType         string  `yaml:"model_type" validate:"oneof=linear"`
}

// FaultDetectionConfig tunes motor fault classification.
type FaultDetectionConfig struct {
	MinorThreshold            float64 `yaml:"minor_threshold" validate:"gt=0"`
	ModerateThreshold         float64 `yaml:"moderate_threshold" validate:"gt=0"`
	SevereThreshold           float64 `yaml:"severe_threshold" validate:"gt=0"`
	CriticalThreshold         float64 `yaml:"critical_threshold" validate:"gt=0"`
	PhaseImbalanceThreshold   float64 `yaml:"phase_imbalance_threshold" validate:"gt=0"`
	ThdThreshold              float64 `yaml:"thd_threshold" validate:"gt=0"`
	BearingFaultGainThreshold float64 `yaml:"bearing_fault_gain_threshold" validate:"gt=0"`
	MinConfidence             float64 `yaml:"min_confidence" validate:"gte=0,lte=100"`
	BaselineMinSamples        int     `yaml:"baseline_min_samples" validate:"gt=0"`
}

// CycleConfig tunes work-cycle segmentation.
type CycleConfig struct {
	AngleThreshold   float64 `yaml:"angle_threshold"`
	MinCycleDuration float64 `yaml:"min_cycle_duration" validate:"gt=0"`
	MaxCycleDuration float64 `yaml:"max_cycle_duration" validate:"gt=0"`
	AngleTag         string  `yaml:"angle_tag"`
	Motor1CurrentTag string  `yaml:"motor1_current_tag"`
	Motor2CurrentTag string  `yaml:"motor2_current_tag"`
}

// AssessmentConfig tunes feature extraction.
type AssessmentConfig struct {
	WindowMinutes   int `yaml:"window_minutes" validate:"gt=0"`
	MaxWindowPoints int `yaml:"max_window_points" validate:"gt=0"`
}

// SchedulerConfig sets the driver intervals in seconds.
type SchedulerConfig struct {
	AssessIntervalSec     int `yaml:"assess_interval_sec" validate:"gt=0"`
	BaselineIntervalSec   int `yaml:"baseline_interval_sec" validate:"gt=0"`
	CorrelationRefreshSec int `yaml:"correlation_refresh_sec" validate:"gt=0"`
	PredictionIntervalSec int `yaml:"prediction_interval_sec" validate:"gt=0"`
	MotorIntervalSec      int `yaml:"motor_interval_sec" validate:"gt=0"`
	CycleIntervalSec      int `yaml:"cycle_interval_sec" validate:"gt=0"`
	BroadcastIntervalSec  int `yaml:"broadcast_interval_sec" validate:"gt=0"`
	DeviceWorkers         int `yaml:"device_workers" validate:"gt=0"`
	RepositoryTimeoutSec  int `yaml:"repository_timeout_sec" validate:"gt=0"`
}

// HubConfig tunes the broadcast hub.
type HubConfig struct {
	SendBuffer int `yaml:"send_buffer" validate:"gt=0"`
}

// Default returns a config with sensible defaults.
func Default() Config {
	return Config{
		ListenAddr:           "127.0.0.1:8700",
		Weights:              WeightsConfig{Deviation: 0.40, Trend: 0.30, Stability: 0.20, Alarm: 0.10},
		LevelThresholds:      LevelThresholdsConfig{HealthyMin: 80, AttentionMin: 60, WarningMin: 40},
		DefaultTagImportance: "Minor",
		AlarmScore: AlarmScoreConfig{
			CriticalPenalty:       25,
			ErrorPenalty:          15,
			WarningPenalty:        8,
			InfoPenalty:           3,
			ConsiderDuration:      true,
			DurationFactorPerHour: 0.1,
			MaxDurationMultiplier: 3,
			MinScore:              5,
		},
		DynamicBaseline: DynamicBaselineConfig{
			Enabled:                true,
			UpdateIntervalHours:    24,
			MinSampleCount:         100,
			AnomalyFilterThreshold: 3,
			IncrementalWeight:      0.2,
			AgingFactor:            0.01,
		},
		MultiScale: MultiScaleConfig{
			Enabled:           true,
			ShortTermMinutes:  10,
			MediumTermMinutes: 60,
			LongTermMinutes:   360,
			ShortTermWeight:   0.5,
			MediumTermWeight:  0.3,
			LongTermWeight:    0.2,
		},
		Degradation: DegradationConfig{
			Enabled:                  true,
			DetectionWindowDays:      7,
			NoiseFilterWindowHours:   6,
			ConfirmationCount:        3,
			DegradationRateThreshold: 0.5,
		},
		TrendPrediction: TrendPredictionConfig{
			Enabled:                    true,
			HistoryWindowHours:         48,
			MinDataPoints:              10,
			SmoothingAlpha:             0.3,
			PredictionHorizonHours:     168,
			TrendSignificanceThreshold: 0.01,
			ConfidenceThreshold:        0.6,
		},
		RulPrediction: RulPredictionConfig{
			Enabled:           true,
			HistoryWindowDays: 30,
			MinDataPoints:     10,
			FailureThreshold:  40,
			MaxPredictionDays: 90,
			ModelType:         "linear",
		},
		FaultDetection: FaultDetectionConfig{
			MinorThreshold:            2,
			ModerateThreshold:         3,
			SevereThreshold:           4,
			CriticalThreshold:         5,
			PhaseImbalanceThreshold:   5,
			ThdThreshold:              8,
			BearingFaultGainThreshold: 5,
			MinConfidence:             50,
			BaselineMinSamples:        500,
		},
		Cycle: CycleConfig{
			AngleThreshold:   10,
			MinCycleDuration: 30,
			MaxCycleDuration: 300,
			AngleTag:         "angle",
			Motor1CurrentTag: "motor1_current",
			Motor2CurrentTag: "motor2_current",
		},
		Assessment: AssessmentConfig{WindowMinutes: 30, MaxWindowPoints: 2000},
		Scheduler: SchedulerConfig{
			AssessIntervalSec:     30,
			BaselineIntervalSec:   3600,
			CorrelationRefreshSec: 300,
			PredictionIntervalSec: 300,
			MotorIntervalSec:      1,
			CycleIntervalSec:      60,
			BroadcastIntervalSec:  1,
			DeviceWorkers:         8,
			RepositoryTimeoutSec:  10,
		},
		Hub: HubConfig{SendBuffer: 64},
	}
}

// Load reads a YAML config file over the defaults and validates it.
// An empty path returns the validated defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks structural constraints plus the cross-field rules the
// validator tags cannot express.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", model.ErrValidation, err)
	}
	sum := c.Weights.Deviation + c.Weights.Trend + c.Weights.Stability + c.Weights.Alarm
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("%w: composite weights sum to %.3f, want 1.0", model.ErrValidation, sum)
	}
	lt := c.LevelThresholds
	if !(lt.HealthyMin > lt.AttentionMin && lt.AttentionMin > lt.WarningMin) {
		return fmt.Errorf("%w: level thresholds must satisfy healthy > attention > warning", model.ErrValidation)
	}
	if c.Cycle.MinCycleDuration >= c.Cycle.MaxCycleDuration {
		return fmt.Errorf("%w: cycle min duration must be below max duration", model.ErrValidation)
	}
	if c.MultiScale.Enabled {
		ms := c.MultiScale
		if !(ms.ShortTermMinutes < ms.MediumTermMinutes && ms.MediumTermMinutes < ms.LongTermMinutes) {
			return fmt.Errorf("%w: multi-scale windows must be strictly increasing", model.ErrValidation)
		}
		wsum := ms.ShortTermWeight + ms.MediumTermWeight + ms.LongTermWeight
		if wsum < 0.999 || wsum > 1.001 {
			return fmt.Errorf("%w: multi-scale weights sum to %.3f, want 1.0", model.ErrValidation, wsum)
		}
	}
	return nil
}

// DefaultImportance parses the configured default tag importance.
func (c Config) DefaultImportance() model.Importance {
	switch c.DefaultTagImportance {
	case "Critical":
		return model.ImportanceCritical
	case "Major":
		return model.ImportanceMajor
	case "Trivial":
		return model.ImportanceTrivial
	default:
		return model.ImportanceMinor
	}
}
