package alarm

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/intellimaint/intellimaint/model"
	"github.com/intellimaint/intellimaint/store"
)

func newEvaluatorFixture(t *testing.T) (*store.Repositories, *Evaluator) {
	t.Helper()
	repos := store.NewMemory().Repositories()
	groups := NewGroups(repos.Alarms, repos.AlarmGroups, zap.NewNop())
	ev := NewEvaluator(repos.AlarmRules, repos.Telemetry, groups, nil, zap.NewNop())
	return repos, ev
}

func point(device, tag string, ts int64, v float64) model.TelemetryPoint {
	return model.TelemetryPoint{
		DeviceID:  device,
		TagID:     tag,
		Ts:        ts,
		ValueType: model.ValueFloat64,
		FloatVal:  &v,
		Quality:   model.QualityGood,
	}
}

func openAlarms(t *testing.T, repos *store.Repositories, deviceID string) []model.AlarmRecord {
	t.Helper()
	all, err := repos.Alarms.Query(context.Background(), model.AlarmQuery{DeviceID: deviceID})
	if err != nil {
		t.Fatal(err)
	}
	return all
}

func TestObserveDwell(t *testing.T) {
	repos, ev := newEvaluatorFixture(t)
	ctx := context.Background()
	rule := model.AlarmRule{
		RuleID: "over-temp", TagID: "temp", ConditionType: model.CondGT,
		Threshold: 80, DwellMs: 10_000, HysteresisPct: 5, Severity: 3, Enabled: true,
	}
	base := int64(1_700_000_000_000)

	// Condition entered but dwell not yet satisfied.
	for i, v := range []float64{85, 86} {
		if err := ev.Observe(ctx, rule, point("dev1", "temp", base+int64(i)*5_000, v)); err != nil {
			t.Fatal(err)
		}
	}
	if got := openAlarms(t, repos, "dev1"); len(got) != 0 {
		t.Fatalf("fired before the dwell elapsed: %+v", got)
	}

	// 10s after entry the dwell is satisfied and the rule fires once.
	if err := ev.Observe(ctx, rule, point("dev1", "temp", base+10_000, 87)); err != nil {
		t.Fatal(err)
	}
	if got := openAlarms(t, repos, "dev1"); len(got) != 1 {
		t.Fatalf("got %d alarms, want exactly 1 after the dwell", len(got))
	}

	// Still in condition: no re-fire.
	if err := ev.Observe(ctx, rule, point("dev1", "temp", base+20_000, 90)); err != nil {
		t.Fatal(err)
	}
	if got := openAlarms(t, repos, "dev1"); len(got) != 1 {
		t.Fatalf("re-fired while still in condition: %d alarms", len(got))
	}
}

func TestObserveDwellResetOnExit(t *testing.T) {
	repos, ev := newEvaluatorFixture(t)
	ctx := context.Background()
	rule := model.AlarmRule{
		RuleID: "over-temp", TagID: "temp", ConditionType: model.CondGT,
		Threshold: 80, DwellMs: 10_000, Severity: 3, Enabled: true,
	}
	base := int64(1_700_000_000_000)

	// Enter, drop out before the dwell, re-enter: the timer restarts.
	if err := ev.Observe(ctx, rule, point("dev1", "temp", base, 85)); err != nil {
		t.Fatal(err)
	}
	if err := ev.Observe(ctx, rule, point("dev1", "temp", base+5_000, 70)); err != nil {
		t.Fatal(err)
	}
	if err := ev.Observe(ctx, rule, point("dev1", "temp", base+8_000, 85)); err != nil {
		t.Fatal(err)
	}
	if err := ev.Observe(ctx, rule, point("dev1", "temp", base+12_000, 85)); err != nil {
		t.Fatal(err)
	}
	if got := openAlarms(t, repos, "dev1"); len(got) != 0 {
		t.Fatalf("dwell must restart after leaving the condition: %+v", got)
	}
	if err := ev.Observe(ctx, rule, point("dev1", "temp", base+18_000, 85)); err != nil {
		t.Fatal(err)
	}
	if got := openAlarms(t, repos, "dev1"); len(got) != 1 {
		t.Fatalf("got %d alarms, want 1 after the restarted dwell elapsed", len(got))
	}
}

func TestObserveHysteresisRearm(t *testing.T) {
	repos, ev := newEvaluatorFixture(t)
	ctx := context.Background()
	rule := model.AlarmRule{
		RuleID: "over-temp", TagID: "temp", ConditionType: model.CondGT,
		Threshold: 80, DwellMs: 0, HysteresisPct: 5, Severity: 3, Enabled: true,
	}
	base := int64(1_700_000_000_000)

	if err := ev.Observe(ctx, rule, point("dev1", "temp", base, 85)); err != nil {
		t.Fatal(err)
	}
	if got := openAlarms(t, repos, "dev1"); len(got) != 1 {
		t.Fatalf("zero-dwell rule must fire immediately, got %d", len(got))
	}

	// 78 is below the threshold but inside the 5% band (76..80): stays armed-off.
	if err := ev.Observe(ctx, rule, point("dev1", "temp", base+1_000, 78)); err != nil {
		t.Fatal(err)
	}
	if err := ev.Observe(ctx, rule, point("dev1", "temp", base+2_000, 85)); err != nil {
		t.Fatal(err)
	}
	if got := openAlarms(t, repos, "dev1"); len(got) != 1 {
		t.Fatalf("re-fired without clearing the hysteresis band: %d alarms", len(got))
	}

	// 75 is beyond threshold - 5%: re-arms; the next violation fires again.
	if err := ev.Observe(ctx, rule, point("dev1", "temp", base+3_000, 75)); err != nil {
		t.Fatal(err)
	}
	if err := ev.Observe(ctx, rule, point("dev1", "temp", base+4_000, 85)); err != nil {
		t.Fatal(err)
	}
	if got := openAlarms(t, repos, "dev1"); len(got) != 2 {
		t.Fatalf("got %d alarms, want 2 after re-arm", len(got))
	}
}

func TestEvaluateLatestPatternMatch(t *testing.T) {
	repos, ev := newEvaluatorFixture(t)
	ctx := context.Background()

	if err := repos.AlarmRules.Upsert(ctx, model.AlarmRule{
		RuleID: "any-temp", TagID: "*_temp", ConditionType: model.CondGT,
		Threshold: 80, Severity: 2, Enabled: true,
	}); err != nil {
		t.Fatal(err)
	}
	ts := int64(1_700_000_000_000)
	if err := repos.Telemetry.Append(ctx, []model.TelemetryPoint{
		point("dev1", "motor_temp", ts, 95),
		point("dev1", "motor_speed", ts, 95),
	}); err != nil {
		t.Fatal(err)
	}

	if err := ev.EvaluateLatest(ctx); err != nil {
		t.Fatalf("EvaluateLatest: %v", err)
	}
	got := openAlarms(t, repos, "dev1")
	if len(got) != 1 {
		t.Fatalf("got %d alarms, want 1 (pattern must cover motor_temp only)", len(got))
	}
	if got[0].TagID != "motor_temp" {
		t.Errorf("fired on %q, want motor_temp", got[0].TagID)
	}
}

func TestConditionHolds(t *testing.T) {
	tests := []struct {
		name string
		rule model.AlarmRule
		v    float64
		want bool
	}{
		{"gt above", model.AlarmRule{ConditionType: model.CondGT, Threshold: 10}, 11, true},
		{"gt at threshold", model.AlarmRule{ConditionType: model.CondGT, Threshold: 10}, 10, false},
		{"gte at threshold", model.AlarmRule{ConditionType: model.CondGTE, Threshold: 10}, 10, true},
		{"lt below", model.AlarmRule{ConditionType: model.CondLT, Threshold: 10}, 9, true},
		{"lte at threshold", model.AlarmRule{ConditionType: model.CondLTE, Threshold: 10}, 10, true},
		{"eq", model.AlarmRule{ConditionType: model.CondEQ, Threshold: 10}, 10, true},
		{"neq", model.AlarmRule{ConditionType: model.CondNEQ, Threshold: 10}, 11, true},
		{"between inside", model.AlarmRule{ConditionType: model.CondBetween, LowerBound: 5, UpperBound: 15}, 10, true},
		{"between outside", model.AlarmRule{ConditionType: model.CondBetween, LowerBound: 5, UpperBound: 15}, 20, false},
		{"outside below", model.AlarmRule{ConditionType: model.CondOutside, LowerBound: 5, UpperBound: 15}, 2, true},
		{"outside inside", model.AlarmRule{ConditionType: model.CondOutside, LowerBound: 5, UpperBound: 15}, 10, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := conditionHolds(tt.rule, tt.v); got != tt.want {
				t.Errorf("conditionHolds(%v) = %v, want %v", tt.v, got, tt.want)
			}
		})
	}
}
