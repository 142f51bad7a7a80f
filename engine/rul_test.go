package engine

import (
	"context"
	"errors"
	"math"
	"testing"

	"go.uber.org/zap"

	"github.com/intellimaint/intellimaint/config"
	"github.com/intellimaint/intellimaint/model"
	"github.com/intellimaint/intellimaint/store"
)

func rulFixture(t *testing.T) (*store.Repositories, *RULPredictor) {
	t.Helper()
	repos := store.NewMemory().Repositories()
	cfg := config.RulPredictionConfig{
		Enabled:           true,
		HistoryWindowDays: 30,
		MinDataPoints:     10,
		FailureThreshold:  40,
		MaxPredictionDays: 90,
		ModelType:         "linear",
	}
	return repos, NewRULPredictor(repos.HealthSnapshots, cfg, zap.NewNop())
}

func seedSnapshots(t *testing.T, repos *store.Repositories, now int64, indexAt func(i int) int, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		s := model.HealthSnapshot{
			DeviceID:  "dev1",
			Timestamp: now - int64(n-i)*3_600_000,
			Index:     indexAt(i),
		}
		if err := repos.HealthSnapshots.Append(ctx, s); err != nil {
			t.Fatal(err)
		}
	}
}

func TestPredictDecliningDevice(t *testing.T) {
	const now = int64(1_700_000_000_000)
	stubClock(t, now)
	repos, p := rulFixture(t)

	// Hourly snapshots falling one point per hour: 89 down to 70.
	seedSnapshots(t, repos, now, func(i int) int { return 89 - i }, 20)

	pred, err := p.Predict(context.Background(), "dev1")
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if pred.CurrentIndex != 70 {
		t.Errorf("current index = %d, want 70", pred.CurrentIndex)
	}
	if math.Abs(pred.SlopePerHour+1) > 1e-6 {
		t.Errorf("slope = %v, want -1 per hour", pred.SlopePerHour)
	}
	// (40 - 70) / -1 = 30 hours to the failure threshold.
	if math.Abs(pred.RULHours-30) > 1e-6 {
		t.Errorf("RUL = %v hours, want 30", pred.RULHours)
	}
	// 1.25 days out overrides the slope bands.
	if pred.Status != model.RULNearFailure {
		t.Errorf("status = %q, want NearFailure under a 2-day ETA", pred.Status)
	}
	if pred.Risk != model.RULRiskHigh {
		t.Errorf("risk = %q, want High for a 1.25-day ETA", pred.Risk)
	}
	wantFailure := now + 30*3_600_000
	if pred.PredictedFailureUtc != wantFailure {
		t.Errorf("predicted failure = %d, want %d", pred.PredictedFailureUtc, wantFailure)
	}
	if pred.RecommendedMaintenance != wantFailure-maintenanceLeadMs {
		t.Errorf("recommended maintenance not seven days ahead of failure")
	}
}

func TestPredictBelowThreshold(t *testing.T) {
	const now = int64(1_700_000_000_000)
	stubClock(t, now)
	repos, p := rulFixture(t)

	seedSnapshots(t, repos, now, func(i int) int { return 35 }, 12)

	pred, err := p.Predict(context.Background(), "dev1")
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if pred.Status != model.RULNearFailure || pred.Risk != model.RULRiskCritical {
		t.Errorf("status/risk = %q/%q, want NearFailure/Critical below the threshold", pred.Status, pred.Risk)
	}
	if pred.RULHours != 0 {
		t.Errorf("RUL = %v, want 0 at or below the failure threshold", pred.RULHours)
	}
}

func TestPredictStableDevice(t *testing.T) {
	const now = int64(1_700_000_000_000)
	stubClock(t, now)
	repos, p := rulFixture(t)

	seedSnapshots(t, repos, now, func(i int) int { return 85 }, 12)

	pred, err := p.Predict(context.Background(), "dev1")
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if pred.Status != model.RULHealthy || pred.Risk != model.RULRiskLow {
		t.Errorf("status/risk = %q/%q, want Healthy/Low for a flat history", pred.Status, pred.Risk)
	}
	if pred.RULHours != -1 {
		t.Errorf("RUL = %v, want -1 when no ETA exists", pred.RULHours)
	}
}

func TestPredictHorizonClip(t *testing.T) {
	const now = int64(1_700_000_000_000)
	stubClock(t, now)
	repos, p := rulFixture(t)

	// Barely declining: roughly -0.015 per hour. The raw ETA is about
	// 3600 hours; the 90-day horizon clips it to 2160.
	seedSnapshots(t, repos, now, func(i int) int {
		if i < 50 {
			return 95
		}
		return 94
	}, 100)

	pred, err := p.Predict(context.Background(), "dev1")
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if pred.RULHours > 90*24+1e-6 {
		t.Errorf("RUL = %v hours, must be clipped at the 90-day horizon", pred.RULHours)
	}
}

func TestPredictInsufficientHistory(t *testing.T) {
	const now = int64(1_700_000_000_000)
	stubClock(t, now)
	repos, p := rulFixture(t)

	seedSnapshots(t, repos, now, func(i int) int { return 80 - i }, 5)

	if _, err := p.Predict(context.Background(), "dev1"); !errors.Is(err, model.ErrInsufficientData) {
		t.Fatalf("Predict = %v, want ErrInsufficientData", err)
	}
}

func TestRULStatusBands(t *testing.T) {
	tests := []struct {
		slopePerHour, daysToFail float64
		want                     string
	}{
		{-0.2, 1.5, model.RULNearFailure},     // imminent ETA wins
		{-0.2, 10, model.RULAcceleratedDegradation}, // -4.8/day
		{-0.03, 10, model.RULNormalDegradation},     // -0.72/day
		{-0.01, 10, model.RULHealthy},               // -0.24/day
	}
	for _, tt := range tests {
		if got := rulStatus(tt.slopePerHour, tt.daysToFail); got != tt.want {
			t.Errorf("rulStatus(%v, %v) = %q, want %q", tt.slopePerHour, tt.daysToFail, got, tt.want)
		}
	}
}
