package engine

import (
	"math"
	"testing"

	"github.com/intellimaint/intellimaint/config"
	"github.com/intellimaint/intellimaint/model"
)

func TestCalculateAlarmScore(t *testing.T) {
	cfg := config.Default().AlarmScore
	cfg.ConsiderDuration = false
	now := int64(1_700_000_000_000)

	tests := []struct {
		name  string
		open  []model.AlarmRecord
		want  float64
	}{
		{"no open alarms", nil, 100},
		{"one critical", []model.AlarmRecord{{Severity: 5, Ts: now}}, 75},
		{"severity four takes critical penalty", []model.AlarmRecord{{Severity: 4, Ts: now}}, 75},
		{"one error", []model.AlarmRecord{{Severity: 3, Ts: now}}, 85},
		{"one warning", []model.AlarmRecord{{Severity: 2, Ts: now}}, 92},
		{"one info", []model.AlarmRecord{{Severity: 1, Ts: now}}, 97},
		{
			"stacked penalties hit the floor",
			[]model.AlarmRecord{
				{Severity: 5, Ts: now}, {Severity: 5, Ts: now},
				{Severity: 5, Ts: now}, {Severity: 5, Ts: now},
			},
			cfg.MinScore,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CalculateAlarmScore(tt.open, cfg, now); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CalculateAlarmScore = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCalculateAlarmScoreDuration(t *testing.T) {
	cfg := config.Default().AlarmScore
	cfg.ConsiderDuration = true
	cfg.DurationFactorPerHour = 0.1
	cfg.MaxDurationMultiplier = 3
	now := int64(1_700_000_000_000)

	// Open for 5 hours: penalty 25 * (1 + 0.5) = 37.5.
	open := []model.AlarmRecord{{Severity: 5, Ts: now - 5*3_600_000}}
	if got := CalculateAlarmScore(open, cfg, now); math.Abs(got-62.5) > 1e-9 {
		t.Errorf("score with 5h duration = %v, want 62.5", got)
	}

	// Very old alarms cap at the max multiplier: 25 * 3 = 75.
	open = []model.AlarmRecord{{Severity: 5, Ts: now - 1000*3_600_000}}
	if got := CalculateAlarmScore(open, cfg, now); math.Abs(got-25) > 1e-9 {
		t.Errorf("score with capped duration = %v, want 25", got)
	}

	// A future timestamp never inflates the penalty.
	open = []model.AlarmRecord{{Severity: 5, Ts: now + 3_600_000}}
	if got := CalculateAlarmScore(open, cfg, now); math.Abs(got-75) > 1e-9 {
		t.Errorf("score with future alarm = %v, want 75", got)
	}
}

func TestAlarmScoreFromCount(t *testing.T) {
	for _, tt := range []struct {
		n    int
		want float64
	}{{0, 100}, {1, 80}, {2, 60}, {3, 40}, {4, 20}, {10, 20}} {
		if got := AlarmScoreFromCount(tt.n); got != tt.want {
			t.Errorf("AlarmScoreFromCount(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}
