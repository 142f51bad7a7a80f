package alarm

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/intellimaint/intellimaint/model"
	"github.com/intellimaint/intellimaint/store"
)

// Groups maintains the per-(device, rule) open-alarm aggregation: one
// open group per pair, severity = max of open children, message = latest
// child's, AggregateStatus derived from the children.
type Groups struct {
	alarms store.AlarmRepository
	groups store.AlarmGroupRepository
	log    *zap.Logger
}

// NewGroups wires the group aggregator.
func NewGroups(alarms store.AlarmRepository, groups store.AlarmGroupRepository, log *zap.Logger) *Groups {
	return &Groups{alarms: alarms, groups: groups, log: log}
}

// Record creates the fired alarm and attaches it to the open group of
// its (device, rule) pair, creating the group when none is open.
func (g *Groups) Record(ctx context.Context, rule model.AlarmRule, deviceID, tagID string, ts int64, message string) (*model.AlarmRecord, error) {
	now := nowMilli()
	rec := &model.AlarmRecord{
		AlarmID:    uuid.NewString(),
		DeviceID:   deviceID,
		TagID:      tagID,
		RuleID:     rule.RuleID,
		Ts:         ts,
		Severity:   rule.Severity,
		Code:       string(rule.ConditionType),
		Message:    message,
		Status:     model.AlarmOpen,
		CreatedUtc: now,
		UpdatedUtc: now,
	}
	if err := g.alarms.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("create alarm: %w", err)
	}

	grp, err := g.groups.GetOpenByDeviceRule(ctx, deviceID, rule.RuleID)
	switch {
	case errors.Is(err, model.ErrNotFound):
		grp = model.AlarmGroup{
			GroupID:          uuid.NewString(),
			DeviceID:         deviceID,
			RuleID:           rule.RuleID,
			FirstOccurredUtc: ts,
			LastOccurredUtc:  ts,
			AlarmCount:       1,
			Severity:         rule.Severity,
			Message:          message,
			AggregateStatus:  model.AlarmOpen,
		}
	case err != nil:
		return nil, fmt.Errorf("load open group: %w", err)
	default:
		grp.AlarmCount++
		grp.LastOccurredUtc = ts
		if rule.Severity > grp.Severity {
			grp.Severity = rule.Severity
		}
		grp.Message = message
		grp.AggregateStatus = model.AlarmOpen
	}
	if err := g.groups.Upsert(ctx, grp); err != nil {
		return nil, fmt.Errorf("save group: %w", err)
	}
	return rec, nil
}

// AckAlarm acknowledges one alarm and refreshes its group status.
func (g *Groups) AckAlarm(ctx context.Context, alarmID, by, note string) error {
	if err := g.alarms.Ack(ctx, alarmID, by, note); err != nil {
		return err
	}
	rec, err := g.alarms.Get(ctx, alarmID)
	if err != nil {
		return err
	}
	return g.refreshGroupStatus(ctx, rec.DeviceID, rec.RuleID)
}

// AckGroup acknowledges every open child of the group.
func (g *Groups) AckGroup(ctx context.Context, groupID, by, note string) error {
	grp, err := g.groups.Get(ctx, groupID)
	if err != nil {
		return err
	}
	if grp.AggregateStatus == model.AlarmClosed {
		return fmt.Errorf("%w: group %s is closed", model.ErrConflictState, groupID)
	}
	children, err := g.children(ctx, grp)
	if err != nil {
		return err
	}
	for _, c := range children {
		if c.Status != model.AlarmOpen {
			continue
		}
		if err := g.alarms.Ack(ctx, c.AlarmID, by, note); err != nil {
			return err
		}
	}
	grp.AggregateStatus = model.AlarmAcked
	return g.groups.Upsert(ctx, grp)
}

// CloseAlarm closes one alarm and refreshes its group status.
func (g *Groups) CloseAlarm(ctx context.Context, alarmID string) error {
	if err := g.alarms.Close(ctx, alarmID); err != nil {
		return err
	}
	rec, err := g.alarms.Get(ctx, alarmID)
	if err != nil {
		return err
	}
	return g.refreshGroupStatus(ctx, rec.DeviceID, rec.RuleID)
}

// CloseGroup closes the group and every child alarm.
func (g *Groups) CloseGroup(ctx context.Context, groupID string) error {
	grp, err := g.groups.Get(ctx, groupID)
	if err != nil {
		return err
	}
	if grp.AggregateStatus == model.AlarmClosed {
		return fmt.Errorf("%w: group %s already closed", model.ErrConflictState, groupID)
	}
	children, err := g.children(ctx, grp)
	if err != nil {
		return err
	}
	for _, c := range children {
		if c.Status == model.AlarmClosed {
			continue
		}
		if err := g.alarms.Close(ctx, c.AlarmID); err != nil {
			return err
		}
	}
	return g.groups.Close(ctx, groupID)
}

// children lists the alarms aggregated by the group: same device and
// rule, fired at or after the group opened.
func (g *Groups) children(ctx context.Context, grp model.AlarmGroup) ([]model.AlarmRecord, error) {
	all, err := g.alarms.Query(ctx, model.AlarmQuery{DeviceID: grp.DeviceID, RuleID: grp.RuleID})
	if err != nil {
		return nil, err
	}
	out := all[:0:0]
	for _, a := range all {
		if a.Ts >= grp.FirstOccurredUtc {
			out = append(out, a)
		}
	}
	return out, nil
}

// refreshGroupStatus re-derives AggregateStatus and Severity from the
// children: Closed iff all closed, Acked iff all open children acked,
// else Open. Severity tracks the max of non-closed children.
func (g *Groups) refreshGroupStatus(ctx context.Context, deviceID, ruleID string) error {
	grp, err := g.groups.GetOpenByDeviceRule(ctx, deviceID, ruleID)
	if errors.Is(err, model.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	children, err := g.children(ctx, grp)
	if err != nil {
		return err
	}

	allClosed := true
	allAcked := true
	maxSev := 0
	for _, c := range children {
		if c.Status != model.AlarmClosed {
			allClosed = false
			if c.Severity > maxSev {
				maxSev = c.Severity
			}
		}
		if c.Status == model.AlarmOpen {
			allAcked = false
		}
	}
	switch {
	case len(children) == 0 || allClosed:
		return g.groups.Close(ctx, grp.GroupID)
	case allAcked:
		grp.AggregateStatus = model.AlarmAcked
	default:
		grp.AggregateStatus = model.AlarmOpen
	}
	if maxSev > 0 {
		grp.Severity = maxSev
	}
	return g.groups.Upsert(ctx, grp)
}
