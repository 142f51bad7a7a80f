package engine

import (
	"math"

	"github.com/intellimaint/intellimaint/config"
	"github.com/intellimaint/intellimaint/model"
)

// CalculateAlarmScore derives the alarm sub-score from the open-alarm
// multiset. Each open alarm subtracts a severity penalty, optionally
// scaled by how long it has been open; the result never drops below the
// configured floor. Severity 4 and 5 both take the critical penalty.
func CalculateAlarmScore(open []model.AlarmRecord, cfg config.AlarmScoreConfig, now int64) float64 {
	if len(open) == 0 {
		return 100
	}
	var total float64
	for _, a := range open {
		p := basePenalty(a.Severity, cfg)
		if cfg.ConsiderDuration {
			hours := float64(now-a.Ts) / 3_600_000
			if hours < 0 {
				hours = 0
			}
			p *= 1 + math.Min(hours*cfg.DurationFactorPerHour, cfg.MaxDurationMultiplier-1)
		}
		total += p
	}
	return math.Max(100-total, cfg.MinScore)
}

func basePenalty(severity int, cfg config.AlarmScoreConfig) float64 {
	switch {
	case severity >= 4:
		return cfg.CriticalPenalty
	case severity == 3:
		return cfg.ErrorPenalty
	case severity == 2:
		return cfg.WarningPenalty
	default:
		return cfg.InfoPenalty
	}
}

// AlarmScoreFromCount is the count-only fallback used when alarm
// severities are unavailable.
func AlarmScoreFromCount(n int) float64 {
	switch {
	case n <= 0:
		return 100
	case n == 1:
		return 80
	case n == 2:
		return 60
	case n == 3:
		return 40
	default:
		return 20
	}
}
