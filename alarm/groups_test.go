package alarm

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/intellimaint/intellimaint/model"
	"github.com/intellimaint/intellimaint/store"
)

func newGroupsFixture(t *testing.T) (*store.Repositories, *Groups) {
	t.Helper()
	repos := store.NewMemory().Repositories()
	return repos, NewGroups(repos.Alarms, repos.AlarmGroups, zap.NewNop())
}

func TestRecordAggregates(t *testing.T) {
	repos, g := newGroupsFixture(t)
	ctx := context.Background()
	rule := model.AlarmRule{RuleID: "r1", ConditionType: model.CondGT, Severity: 2}
	base := int64(1_700_000_000_000)

	if _, err := g.Record(ctx, rule, "dev1", "temp", base, "first"); err != nil {
		t.Fatal(err)
	}
	grp, err := repos.AlarmGroups.GetOpenByDeviceRule(ctx, "dev1", "r1")
	if err != nil {
		t.Fatalf("group not created: %v", err)
	}
	if grp.AlarmCount != 1 || grp.Severity != 2 || grp.Message != "first" {
		t.Errorf("unexpected group: %+v", grp)
	}

	// A higher-severity repeat raises the group severity and count.
	rule.Severity = 4
	if _, err := g.Record(ctx, rule, "dev1", "temp", base+60_000, "second"); err != nil {
		t.Fatal(err)
	}
	grp, err = repos.AlarmGroups.GetOpenByDeviceRule(ctx, "dev1", "r1")
	if err != nil {
		t.Fatal(err)
	}
	if grp.AlarmCount != 2 {
		t.Errorf("alarm count = %d, want 2", grp.AlarmCount)
	}
	if grp.Severity != 4 {
		t.Errorf("severity = %d, want the max of the children", grp.Severity)
	}
	if grp.Message != "second" || grp.LastOccurredUtc != base+60_000 {
		t.Errorf("group must carry the latest child: %+v", grp)
	}
	if grp.FirstOccurredUtc != base {
		t.Errorf("FirstOccurredUtc moved: %+v", grp)
	}

	// A different device opens its own group.
	if _, err := g.Record(ctx, rule, "dev2", "temp", base, "other"); err != nil {
		t.Fatal(err)
	}
	other, err := repos.AlarmGroups.GetOpenByDeviceRule(ctx, "dev2", "r1")
	if err != nil {
		t.Fatal(err)
	}
	if other.GroupID == grp.GroupID {
		t.Error("devices must not share a group")
	}
}

func TestCloseGroupClosesChildren(t *testing.T) {
	repos, g := newGroupsFixture(t)
	ctx := context.Background()
	rule := model.AlarmRule{RuleID: "r1", ConditionType: model.CondGT, Severity: 3}
	base := int64(1_700_000_000_000)

	for i := 0; i < 3; i++ {
		if _, err := g.Record(ctx, rule, "dev1", "temp", base+int64(i)*60_000, "fire"); err != nil {
			t.Fatal(err)
		}
	}
	grp, err := repos.AlarmGroups.GetOpenByDeviceRule(ctx, "dev1", "r1")
	if err != nil {
		t.Fatal(err)
	}
	if err := g.CloseGroup(ctx, grp.GroupID); err != nil {
		t.Fatalf("CloseGroup: %v", err)
	}

	children, err := repos.Alarms.Query(ctx, model.AlarmQuery{DeviceID: "dev1", RuleID: "r1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(children) != 3 {
		t.Fatalf("got %d children, want 3", len(children))
	}
	for _, c := range children {
		if c.Status != model.AlarmClosed {
			t.Errorf("child %s status = %v, want Closed", c.AlarmID, c.Status)
		}
	}
	got, err := repos.AlarmGroups.Get(ctx, grp.GroupID)
	if err != nil {
		t.Fatal(err)
	}
	if got.AggregateStatus != model.AlarmClosed {
		t.Errorf("group status = %v, want Closed", got.AggregateStatus)
	}

	// Closing twice is a lifecycle violation.
	if err := g.CloseGroup(ctx, grp.GroupID); !errors.Is(err, model.ErrConflictState) {
		t.Errorf("double close = %v, want ErrConflictState", err)
	}
}

func TestAckGroup(t *testing.T) {
	repos, g := newGroupsFixture(t)
	ctx := context.Background()
	rule := model.AlarmRule{RuleID: "r1", ConditionType: model.CondGT, Severity: 3}
	base := int64(1_700_000_000_000)

	for i := 0; i < 2; i++ {
		if _, err := g.Record(ctx, rule, "dev1", "temp", base+int64(i)*60_000, "fire"); err != nil {
			t.Fatal(err)
		}
	}
	grp, err := repos.AlarmGroups.GetOpenByDeviceRule(ctx, "dev1", "r1")
	if err != nil {
		t.Fatal(err)
	}
	if err := g.AckGroup(ctx, grp.GroupID, "operator", "investigating"); err != nil {
		t.Fatalf("AckGroup: %v", err)
	}

	children, err := repos.Alarms.Query(ctx, model.AlarmQuery{DeviceID: "dev1", RuleID: "r1"})
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range children {
		if c.Status != model.AlarmAcked {
			t.Errorf("child %s status = %v, want Acked", c.AlarmID, c.Status)
		}
		if c.AckedBy != "operator" {
			t.Errorf("AckedBy = %q, want operator", c.AckedBy)
		}
	}
	got, err := repos.AlarmGroups.Get(ctx, grp.GroupID)
	if err != nil {
		t.Fatal(err)
	}
	if got.AggregateStatus != model.AlarmAcked {
		t.Errorf("group status = %v, want Acked", got.AggregateStatus)
	}
}

func TestCloseAlarmRefreshesGroup(t *testing.T) {
	repos, g := newGroupsFixture(t)
	ctx := context.Background()
	rule := model.AlarmRule{RuleID: "r1", ConditionType: model.CondGT, Severity: 3}
	base := int64(1_700_000_000_000)

	if _, err := g.Record(ctx, rule, "dev1", "temp", base, "fire"); err != nil {
		t.Fatal(err)
	}
	rule.Severity = 5
	if _, err := g.Record(ctx, rule, "dev1", "temp", base+60_000, "worse"); err != nil {
		t.Fatal(err)
	}

	alarms, err := repos.Alarms.Query(ctx, model.AlarmQuery{DeviceID: "dev1"})
	if err != nil {
		t.Fatal(err)
	}
	// Close the severity-5 child: the group severity must fall back to 3.
	var worst string
	for _, a := range alarms {
		if a.Severity == 5 {
			worst = a.AlarmID
		}
	}
	if err := g.CloseAlarm(ctx, worst); err != nil {
		t.Fatalf("CloseAlarm: %v", err)
	}

	grp, err := repos.AlarmGroups.GetOpenByDeviceRule(ctx, "dev1", "r1")
	if err != nil {
		t.Fatal(err)
	}
	if grp.Severity != 3 {
		t.Errorf("group severity = %d, want 3 after the critical child closed", grp.Severity)
	}
	if grp.AggregateStatus != model.AlarmOpen {
		t.Errorf("group status = %v, want Open while a child stays open", grp.AggregateStatus)
	}

	// Closing the last child closes the group.
	for _, a := range alarms {
		if a.AlarmID != worst {
			if err := g.CloseAlarm(ctx, a.AlarmID); err != nil {
				t.Fatal(err)
			}
		}
	}
	if _, err := repos.AlarmGroups.GetOpenByDeviceRule(ctx, "dev1", "r1"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("open group lookup = %v, want ErrNotFound after all children closed", err)
	}
}
