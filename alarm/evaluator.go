// Package alarm implements the threshold rule engine: dwell and
// hysteresis evaluation against the latest per-tag values, per-(device,
// rule) group aggregation and the optional webhook notifier.
package alarm

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/intellimaint/intellimaint/model"
	"github.com/intellimaint/intellimaint/pattern"
	"github.com/intellimaint/intellimaint/store"
)

// nowMilli is stubbed in tests that need a fixed clock.
var nowMilli = func() int64 { return time.Now().UnixMilli() }

type stateKey struct {
	ruleID   string
	deviceID string
	tagID    string
}

// ruleState tracks one (rule, device, tag) through the dwell/re-arm
// machine. fired stays set until the value leaves the condition region
// by the hysteresis margin.
type ruleState struct {
	inCondition bool
	sinceTs     int64
	fired       bool
}

// Evaluator runs the enabled alarm rules against incoming values.
type Evaluator struct {
	rules     store.AlarmRuleRepository
	telemetry store.TelemetryRepository
	groups    *Groups
	notifier  *Notifier // optional
	patterns  *pattern.Cache
	log       *zap.Logger

	mu     sync.Mutex
	states map[stateKey]*ruleState
}

// NewEvaluator wires the rule engine. notifier may be nil.
func NewEvaluator(rules store.AlarmRuleRepository, t store.TelemetryRepository, groups *Groups, notifier *Notifier, log *zap.Logger) *Evaluator {
	return &Evaluator{
		rules:     rules,
		telemetry: t,
		groups:    groups,
		notifier:  notifier,
		patterns:  pattern.NewCache(),
		log:       log,
		states:    make(map[stateKey]*ruleState),
	}
}

// EvaluateLatest runs every enabled rule against the latest value of
// every matching tag. Called on each assess tick.
func (e *Evaluator) EvaluateLatest(ctx context.Context) error {
	rules, err := e.rules.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("list enabled rules: %w", err)
	}
	if len(rules) == 0 {
		return nil
	}
	latest, err := e.telemetry.GetLatest(ctx, "", "")
	if err != nil {
		return fmt.Errorf("load latest values: %w", err)
	}
	for _, p := range latest {
		if err := ctx.Err(); err != nil {
			return err
		}
		for i := range rules {
			if !e.patterns.Match(rules[i].TagID, p.TagID) {
				continue
			}
			if err := e.Observe(ctx, rules[i], p); err != nil {
				e.log.Warn("rule evaluation failed",
					zap.String("rule", rules[i].RuleID),
					zap.String("device", p.DeviceID),
					zap.Error(err))
			}
		}
	}
	return nil
}

// Observe feeds one point into the rule's state machine, firing at most
// once per entry into the condition region. Edge ingestion calls this
// directly for stream-matched rules.
func (e *Evaluator) Observe(ctx context.Context, rule model.AlarmRule, p model.TelemetryPoint) error {
	v, ok := p.Value()
	if !ok {
		return nil
	}
	key := stateKey{ruleID: rule.RuleID, deviceID: p.DeviceID, tagID: p.TagID}

	e.mu.Lock()
	st := e.states[key]
	if st == nil {
		st = &ruleState{}
		e.states[key] = st
	}
	fire := st.step(rule, v, p.Ts)
	e.mu.Unlock()

	if !fire {
		return nil
	}
	rec, err := e.groups.Record(ctx, rule, p.DeviceID, p.TagID, p.Ts,
		fmt.Sprintf("%s: value %.4g violates %s %s", p.TagID, v, rule.ConditionType, thresholdText(rule)))
	if err != nil {
		return err
	}
	if e.notifier != nil {
		e.notifier.Notify("alarm.fired", rec)
	}
	return nil
}

// step advances the state machine and reports whether the rule fires now.
func (st *ruleState) step(rule model.AlarmRule, v float64, ts int64) bool {
	holds := conditionHolds(rule, v)

	if st.fired {
		// Re-arm only after the value has left the condition region by
		// the hysteresis margin.
		if leftByHysteresis(rule, v) {
			st.fired = false
			st.inCondition = false
		}
		return false
	}

	if !holds {
		st.inCondition = false
		return false
	}
	if !st.inCondition {
		st.inCondition = true
		st.sinceTs = ts
	}
	if ts-st.sinceTs >= rule.DwellMs {
		st.fired = true
		return true
	}
	return false
}

func conditionHolds(r model.AlarmRule, v float64) bool {
	switch r.ConditionType {
	case model.CondGT:
		return v > r.Threshold
	case model.CondGTE:
		return v >= r.Threshold
	case model.CondLT:
		return v < r.Threshold
	case model.CondLTE:
		return v <= r.Threshold
	case model.CondEQ:
		return v == r.Threshold
	case model.CondNEQ:
		return v != r.Threshold
	case model.CondBetween:
		return v >= r.LowerBound && v <= r.UpperBound
	case model.CondOutside:
		return v < r.LowerBound || v > r.UpperBound
	}
	return false
}

// leftByHysteresis reports whether the value has crossed out of the
// condition region by HysteresisPct of the relevant threshold.
func leftByHysteresis(r model.AlarmRule, v float64) bool {
	margin := func(t float64) float64 { return math.Abs(t) * r.HysteresisPct / 100 }
	switch r.ConditionType {
	case model.CondGT, model.CondGTE:
		return v < r.Threshold-margin(r.Threshold)
	case model.CondLT, model.CondLTE:
		return v > r.Threshold+margin(r.Threshold)
	case model.CondEQ, model.CondNEQ:
		return !conditionHolds(r, v)
	case model.CondBetween:
		return v < r.LowerBound-margin(r.LowerBound) || v > r.UpperBound+margin(r.UpperBound)
	case model.CondOutside:
		return v >= r.LowerBound+margin(r.LowerBound) && v <= r.UpperBound-margin(r.UpperBound)
	}
	return true
}

func thresholdText(r model.AlarmRule) string {
	switch r.ConditionType {
	case model.CondBetween, model.CondOutside:
		return fmt.Sprintf("[%.4g, %.4g]", r.LowerBound, r.UpperBound)
	default:
		return fmt.Sprintf("%.4g", r.Threshold)
	}
}
