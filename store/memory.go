package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/intellimaint/intellimaint/model"
)

// Memory is an in-process implementation of every repository contract.
// It backs tests and datadir-less runs; all state is lost on exit.
type Memory struct {
	mu sync.RWMutex

	points     map[pointKey]model.TelemetryPoint
	devices    map[string]model.Device
	tags       map[string]model.Tag
	alarms     map[string]model.AlarmRecord
	alarmRules map[string]model.AlarmRule
	groups     map[string]model.AlarmGroup
	baselines  map[string]*model.DeviceBaseline
	snapshots  map[string][]model.HealthSnapshot
	cycleBase  map[string]*model.CycleDeviceBaseline
	cycles     map[string][]model.WorkCycle
	corrRules  map[string]model.CorrelationRule
	importance []model.TagImportanceRule
	models     map[string]model.MotorModel
	instances  map[string]model.MotorInstance
	mappings   map[string][]model.MotorParameterMapping
	modes      map[string]model.OperationMode
	profiles   map[string]*model.BaselineProfile
}

type pointKey struct {
	device string
	tag    string
	ts     int64
	seq    int64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		points:     make(map[pointKey]model.TelemetryPoint),
		devices:    make(map[string]model.Device),
		tags:       make(map[string]model.Tag),
		alarms:     make(map[string]model.AlarmRecord),
		alarmRules: make(map[string]model.AlarmRule),
		groups:     make(map[string]model.AlarmGroup),
		baselines:  make(map[string]*model.DeviceBaseline),
		snapshots:  make(map[string][]model.HealthSnapshot),
		cycleBase:  make(map[string]*model.CycleDeviceBaseline),
		cycles:     make(map[string][]model.WorkCycle),
		corrRules:  make(map[string]model.CorrelationRule),
		models:     make(map[string]model.MotorModel),
		instances:  make(map[string]model.MotorInstance),
		mappings:   make(map[string][]model.MotorParameterMapping),
		modes:      make(map[string]model.OperationMode),
		profiles:   make(map[string]*model.BaselineProfile),
	}
}

// Repositories returns the contract bundle backed by this store.
func (m *Memory) Repositories() *Repositories {
	return &Repositories{
		Telemetry:       m,
		Devices:         (*memDevices)(m),
		Tags:            (*memTags)(m),
		Alarms:          (*memAlarms)(m),
		AlarmRules:      (*memAlarmRules)(m),
		AlarmGroups:     (*memGroups)(m),
		HealthBaselines: (*memBaselines)(m),
		HealthSnapshots: (*memSnapshots)(m),
		CycleBaselines:  (*memCycleBaselines)(m),
		Cycles:          (*memCycles)(m),
		Correlations:    (*memCorrRules)(m),
		TagImportance:   (*memImportance)(m),
		MotorModels:     (*memMotorModels)(m),
		MotorInstances:  (*memMotorInstances)(m),
		MotorMappings:   (*memMotorMappings)(m),
		OperationModes:  (*memModes)(m),
		MotorProfiles:   (*memProfiles)(m),
	}
}

// --- TelemetryRepository ---

// Append upserts points keyed by (device, tag, ts, seq).
func (m *Memory) Append(ctx context.Context, points []model.TelemetryPoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range points {
		if p.DeviceID == "" || p.TagID == "" {
			return fmt.Errorf("%w: point missing device or tag id", model.ErrValidation)
		}
		m.points[pointKey{p.DeviceID, p.TagID, p.Ts, p.Seq}] = p
	}
	return nil
}

func (m *Memory) Query(ctx context.Context, f model.PointFilter) ([]model.TelemetryPoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.EndTs != 0 && f.StartTs > f.EndTs {
		return nil, fmt.Errorf("%w: start after end", model.ErrValidation)
	}
	m.mu.RLock()
	var out []model.TelemetryPoint
	for k, p := range m.points {
		if f.DeviceID != "" && k.device != f.DeviceID {
			continue
		}
		if f.TagID != "" && k.tag != f.TagID {
			continue
		}
		if k.ts < f.StartTs {
			continue
		}
		if f.EndTs != 0 && k.ts >= f.EndTs {
			continue
		}
		out = append(out, p)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if f.Desc {
			i, j = j, i
		}
		if out[i].Ts != out[j].Ts {
			return out[i].Ts < out[j].Ts
		}
		return out[i].Seq < out[j].Seq
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *Memory) QuerySimple(ctx context.Context, deviceID, tagID string, startTs, endTs int64, limit int) ([]model.TelemetryPoint, error) {
	return m.Query(ctx, model.PointFilter{DeviceID: deviceID, TagID: tagID, StartTs: startTs, EndTs: endTs, Limit: limit})
}

func (m *Memory) GetLatest(ctx context.Context, deviceID, tagID string) ([]model.TelemetryPoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	latest := make(map[[2]string]model.TelemetryPoint)
	for k, p := range m.points {
		if deviceID != "" && k.device != deviceID {
			continue
		}
		if tagID != "" && k.tag != tagID {
			continue
		}
		key := [2]string{k.device, k.tag}
		cur, ok := latest[key]
		if !ok || p.Ts > cur.Ts || (p.Ts == cur.Ts && p.Seq > cur.Seq) {
			latest[key] = p
		}
	}
	m.mu.RUnlock()
	out := make([]model.TelemetryPoint, 0, len(latest))
	for _, p := range latest {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DeviceID != out[j].DeviceID {
			return out[i].DeviceID < out[j].DeviceID
		}
		return out[i].TagID < out[j].TagID
	})
	return out, nil
}

func (m *Memory) GetTags(ctx context.Context) ([]model.TagSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	sums := make(map[[2]string]*model.TagSummary)
	for k := range m.points {
		key := [2]string{k.device, k.tag}
		s, ok := sums[key]
		if !ok {
			s = &model.TagSummary{DeviceID: k.device, TagID: k.tag}
			sums[key] = s
		}
		s.PointCount++
		if k.ts > s.LastTs {
			s.LastTs = k.ts
		}
	}
	m.mu.RUnlock()
	out := make([]model.TagSummary, 0, len(sums))
	for _, s := range sums {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DeviceID != out[j].DeviceID {
			return out[i].DeviceID < out[j].DeviceID
		}
		return out[i].TagID < out[j].TagID
	})
	return out, nil
}

func (m *Memory) Aggregate(ctx context.Context, deviceID, tagID string, startTs, endTs, bucketMs int64, fn model.AggregateFn) ([]model.AggregateBucket, error) {
	if bucketMs <= 0 {
		return nil, fmt.Errorf("%w: bucket must be positive", model.ErrValidation)
	}
	points, err := m.QuerySimple(ctx, deviceID, tagID, startTs, endTs, 0)
	if err != nil {
		return nil, err
	}
	return aggregatePoints(points, bucketMs, fn)
}

// aggregatePoints reduces sorted points into non-empty buckets. Shared
// with the sqlite implementation for the non-SQL reducers.
func aggregatePoints(points []model.TelemetryPoint, bucketMs int64, fn model.AggregateFn) ([]model.AggregateBucket, error) {
	type acc struct {
		sum, min, max, first, last float64
		count                      int64
		firstTs, lastTs            int64
	}
	buckets := make(map[int64]*acc)
	for i := range points {
		p := &points[i]
		v, ok := p.Value()
		if !ok && fn != model.AggCount {
			continue
		}
		b := p.Ts / bucketMs * bucketMs
		if p.Ts < 0 && p.Ts%bucketMs != 0 {
			b -= bucketMs
		}
		a, exists := buckets[b]
		if !exists {
			a = &acc{min: v, max: v, first: v, last: v, firstTs: p.Ts, lastTs: p.Ts}
			buckets[b] = a
		}
		a.count++
		a.sum += v
		if v < a.min {
			a.min = v
		}
		if v > a.max {
			a.max = v
		}
		if p.Ts < a.firstTs {
			a.firstTs = p.Ts
			a.first = v
		}
		if p.Ts >= a.lastTs {
			a.lastTs = p.Ts
			a.last = v
		}
	}
	out := make([]model.AggregateBucket, 0, len(buckets))
	for ts, a := range buckets {
		var v float64
		switch fn {
		case model.AggAvg:
			v = a.sum / float64(a.count)
		case model.AggMin:
			v = a.min
		case model.AggMax:
			v = a.max
		case model.AggSum:
			v = a.sum
		case model.AggCount:
			v = float64(a.count)
		case model.AggFirst:
			v = a.first
		case model.AggLast:
			v = a.last
		default:
			return nil, fmt.Errorf("%w: unknown aggregate fn %q", model.ErrValidation, fn)
		}
		out = append(out, model.AggregateBucket{BucketTs: ts, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BucketTs < out[j].BucketTs })
	return out, nil
}

// --- DeviceRepository ---

type memDevices Memory

func (m *memDevices) List(ctx context.Context) ([]model.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Device, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out, nil
}

func (m *memDevices) Get(ctx context.Context, deviceID string) (model.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.devices[deviceID]
	if !ok {
		return model.Device{}, fmt.Errorf("device %q: %w", deviceID, model.ErrNotFound)
	}
	return d, nil
}

func (m *memDevices) Upsert(ctx context.Context, d model.Device) error {
	if d.DeviceID == "" {
		return fmt.Errorf("%w: empty device id", model.ErrValidation)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[d.DeviceID] = d
	return nil
}

func (m *memDevices) Delete(ctx context.Context, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[deviceID]; !ok {
		return fmt.Errorf("device %q: %w", deviceID, model.ErrNotFound)
	}
	for _, t := range m.tags {
		if t.DeviceID == deviceID {
			return fmt.Errorf("%w: device %q still has tags", model.ErrConflictState, deviceID)
		}
	}
	delete(m.devices, deviceID)
	return nil
}

// --- TagRepository ---

type memTags Memory

func (m *memTags) List(ctx context.Context) ([]model.Tag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Tag, 0, len(m.tags))
	for _, t := range m.tags {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TagID < out[j].TagID })
	return out, nil
}

func (m *memTags) ListByDevice(ctx context.Context, deviceID string) ([]model.Tag, error) {
	all, _ := m.List(ctx)
	out := all[:0:0]
	for _, t := range all {
		if t.DeviceID == deviceID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memTags) Get(ctx context.Context, tagID string) (model.Tag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tags[tagID]
	if !ok {
		return model.Tag{}, fmt.Errorf("tag %q: %w", tagID, model.ErrNotFound)
	}
	return t, nil
}

func (m *memTags) Upsert(ctx context.Context, t model.Tag) error {
	if t.TagID == "" {
		return fmt.Errorf("%w: empty tag id", model.ErrValidation)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[t.DeviceID]; !ok {
		return fmt.Errorf("%w: tag %q references unknown device %q", model.ErrValidation, t.TagID, t.DeviceID)
	}
	m.tags[t.TagID] = t
	return nil
}

func (m *memTags) Delete(ctx context.Context, tagID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tags[tagID]; !ok {
		return fmt.Errorf("tag %q: %w", tagID, model.ErrNotFound)
	}
	delete(m.tags, tagID)
	return nil
}

// --- AlarmRepository ---

type memAlarms Memory

func (m *memAlarms) Create(ctx context.Context, a *model.AlarmRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.AlarmID == "" {
		return fmt.Errorf("%w: empty alarm id", model.ErrValidation)
	}
	if _, ok := m.alarms[a.AlarmID]; ok {
		return fmt.Errorf("%w: alarm %q exists", model.ErrValidation, a.AlarmID)
	}
	m.alarms[a.AlarmID] = *a
	return nil
}

func (m *memAlarms) Update(ctx context.Context, a *model.AlarmRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.alarms[a.AlarmID]; !ok {
		return fmt.Errorf("alarm %q: %w", a.AlarmID, model.ErrNotFound)
	}
	m.alarms[a.AlarmID] = *a
	return nil
}

func (m *memAlarms) Get(ctx context.Context, alarmID string) (model.AlarmRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.alarms[alarmID]
	if !ok {
		return model.AlarmRecord{}, fmt.Errorf("alarm %q: %w", alarmID, model.ErrNotFound)
	}
	return a, nil
}

func (m *memAlarms) GetOpenCount(ctx context.Context, deviceID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, a := range m.alarms {
		if a.DeviceID == deviceID && a.Status != model.AlarmClosed {
			n++
		}
	}
	return n, nil
}

func (m *memAlarms) GetOpenCountByDevices(ctx context.Context, deviceIDs []string) (map[string]int, error) {
	out := make(map[string]int, len(deviceIDs))
	for _, id := range deviceIDs {
		n, err := m.GetOpenCount(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = n
	}
	return out, nil
}

func (m *memAlarms) Query(ctx context.Context, q model.AlarmQuery) ([]model.AlarmRecord, error) {
	m.mu.RLock()
	var out []model.AlarmRecord
	for _, a := range m.alarms {
		if q.DeviceID != "" && a.DeviceID != q.DeviceID {
			continue
		}
		if q.RuleID != "" && a.RuleID != q.RuleID {
			continue
		}
		if q.Status != nil && a.Status != *q.Status {
			continue
		}
		if a.Ts < q.StartTs {
			continue
		}
		if q.EndTs != 0 && a.Ts >= q.EndTs {
			continue
		}
		out = append(out, a)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Ts < out[j].Ts })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *memAlarms) Ack(ctx context.Context, alarmID, by, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alarms[alarmID]
	if !ok {
		return fmt.Errorf("alarm %q: %w", alarmID, model.ErrNotFound)
	}
	if a.Status == model.AlarmClosed {
		return fmt.Errorf("%w: alarm %q already closed", model.ErrConflictState, alarmID)
	}
	if a.Status == model.AlarmAcked {
		return nil
	}
	a.Status = model.AlarmAcked
	a.AckedBy = by
	a.AckNote = note
	a.AckedUtc = nowMilli()
	a.UpdatedUtc = a.AckedUtc
	m.alarms[alarmID] = a
	return nil
}

func (m *memAlarms) Close(ctx context.Context, alarmID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alarms[alarmID]
	if !ok {
		return fmt.Errorf("alarm %q: %w", alarmID, model.ErrNotFound)
	}
	if a.Status == model.AlarmClosed {
		return fmt.Errorf("%w: alarm %q already closed", model.ErrConflictState, alarmID)
	}
	a.Status = model.AlarmClosed
	a.UpdatedUtc = nowMilli()
	m.alarms[alarmID] = a
	return nil
}

// --- AlarmRuleRepository ---

type memAlarmRules Memory

func (m *memAlarmRules) List(ctx context.Context) ([]model.AlarmRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.AlarmRule, 0, len(m.alarmRules))
	for _, r := range m.alarmRules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RuleID < out[j].RuleID })
	return out, nil
}

func (m *memAlarmRules) ListEnabled(ctx context.Context) ([]model.AlarmRule, error) {
	all, _ := m.List(ctx)
	out := all[:0:0]
	for _, r := range all {
		if r.Enabled {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memAlarmRules) Upsert(ctx context.Context, r model.AlarmRule) error {
	if r.RuleID == "" || !r.ConditionType.Valid() {
		return fmt.Errorf("%w: bad alarm rule", model.ErrValidation)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alarmRules[r.RuleID] = r
	return nil
}

func (m *memAlarmRules) SetEnabled(ctx context.Context, ruleID string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.alarmRules[ruleID]
	if !ok {
		return fmt.Errorf("rule %q: %w", ruleID, model.ErrNotFound)
	}
	r.Enabled = enabled
	m.alarmRules[ruleID] = r
	return nil
}

func (m *memAlarmRules) Delete(ctx context.Context, ruleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.alarmRules[ruleID]; !ok {
		return fmt.Errorf("rule %q: %w", ruleID, model.ErrNotFound)
	}
	delete(m.alarmRules, ruleID)
	return nil
}

// --- AlarmGroupRepository ---

type memGroups Memory

func (m *memGroups) GetOpenByDeviceRule(ctx context.Context, deviceID, ruleID string) (model.AlarmGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, g := range m.groups {
		if g.DeviceID == deviceID && g.RuleID == ruleID && g.AggregateStatus != model.AlarmClosed {
			return g, nil
		}
	}
	return model.AlarmGroup{}, fmt.Errorf("open group for (%s,%s): %w", deviceID, ruleID, model.ErrNotFound)
}

func (m *memGroups) Upsert(ctx context.Context, g model.AlarmGroup) error {
	if g.GroupID == "" {
		return fmt.Errorf("%w: empty group id", model.ErrValidation)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[g.GroupID] = g
	return nil
}

func (m *memGroups) Get(ctx context.Context, groupID string) (model.AlarmGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.groups[groupID]
	if !ok {
		return model.AlarmGroup{}, fmt.Errorf("group %q: %w", groupID, model.ErrNotFound)
	}
	return g, nil
}

func (m *memGroups) Close(ctx context.Context, groupID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[groupID]
	if !ok {
		return fmt.Errorf("group %q: %w", groupID, model.ErrNotFound)
	}
	if g.AggregateStatus == model.AlarmClosed {
		return fmt.Errorf("%w: group %q already closed", model.ErrConflictState, groupID)
	}
	g.AggregateStatus = model.AlarmClosed
	m.groups[groupID] = g
	return nil
}

func (m *memGroups) Query(ctx context.Context, deviceID string, limit int) ([]model.AlarmGroup, error) {
	m.mu.RLock()
	var out []model.AlarmGroup
	for _, g := range m.groups {
		if deviceID != "" && g.DeviceID != deviceID {
			continue
		}
		out = append(out, g)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].LastOccurredUtc > out[j].LastOccurredUtc })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- HealthBaselineRepository ---

type memBaselines Memory

func (m *memBaselines) Get(ctx context.Context, deviceID string) (*model.DeviceBaseline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.baselines[deviceID]
	if !ok {
		return nil, fmt.Errorf("baseline for %q: %w", deviceID, model.ErrNotFound)
	}
	cp := *b
	cp.TagBaselines = make(map[string]model.TagBaseline, len(b.TagBaselines))
	for k, v := range b.TagBaselines {
		cp.TagBaselines[k] = v
	}
	return &cp, nil
}

func (m *memBaselines) Save(ctx context.Context, b *model.DeviceBaseline) error {
	if b == nil || b.DeviceID == "" {
		return fmt.Errorf("%w: empty baseline", model.ErrValidation)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	cp.TagBaselines = make(map[string]model.TagBaseline, len(b.TagBaselines))
	for k, v := range b.TagBaselines {
		cp.TagBaselines[k] = v
	}
	m.baselines[b.DeviceID] = &cp
	return nil
}

func (m *memBaselines) Delete(ctx context.Context, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.baselines[deviceID]; !ok {
		return fmt.Errorf("baseline for %q: %w", deviceID, model.ErrNotFound)
	}
	delete(m.baselines, deviceID)
	return nil
}

// --- HealthSnapshotRepository ---

type memSnapshots Memory

func (m *memSnapshots) Append(ctx context.Context, s model.HealthSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	hist := m.snapshots[s.DeviceID]
	if n := len(hist); n > 0 && s.Timestamp < hist[n-1].Timestamp {
		return fmt.Errorf("%w: snapshot timestamp regressed", model.ErrValidation)
	}
	m.snapshots[s.DeviceID] = append(hist, s)
	return nil
}

func (m *memSnapshots) Query(ctx context.Context, deviceID string, startTs, endTs int64) ([]model.HealthSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.HealthSnapshot
	for _, s := range m.snapshots[deviceID] {
		if s.Timestamp < startTs {
			continue
		}
		if endTs != 0 && s.Timestamp >= endTs {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// --- CycleBaselineRepository ---

type memCycleBaselines Memory

func (m *memCycleBaselines) Get(ctx context.Context, deviceID string) (*model.CycleDeviceBaseline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.cycleBase[deviceID]
	if !ok {
		return nil, fmt.Errorf("cycle baseline for %q: %w", deviceID, model.ErrNotFound)
	}
	cp := *b
	return &cp, nil
}

func (m *memCycleBaselines) Save(ctx context.Context, b *model.CycleDeviceBaseline) error {
	if b == nil || b.DeviceID == "" {
		return fmt.Errorf("%w: empty cycle baseline", model.ErrValidation)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.cycleBase[b.DeviceID] = &cp
	return nil
}

func (m *memCycleBaselines) Delete(ctx context.Context, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cycleBase[deviceID]; !ok {
		return fmt.Errorf("cycle baseline for %q: %w", deviceID, model.ErrNotFound)
	}
	delete(m.cycleBase, deviceID)
	return nil
}

// --- CycleRepository ---

type memCycles Memory

func (m *memCycles) Append(ctx context.Context, cycles []model.WorkCycle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range cycles {
		m.cycles[c.DeviceID] = append(m.cycles[c.DeviceID], c)
	}
	return nil
}

func (m *memCycles) Query(ctx context.Context, deviceID string, startTs, endTs int64, limit int) ([]model.WorkCycle, error) {
	m.mu.RLock()
	var out []model.WorkCycle
	for _, c := range m.cycles[deviceID] {
		if c.StartTimeUtc < startTs {
			continue
		}
		if endTs != 0 && c.StartTimeUtc >= endTs {
			continue
		}
		out = append(out, c)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartTimeUtc < out[j].StartTimeUtc })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- CorrelationRuleRepository ---

type memCorrRules Memory

func (m *memCorrRules) ListEnabled(ctx context.Context) ([]model.CorrelationRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.CorrelationRule
	for _, r := range m.corrRules {
		if r.Enabled {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memCorrRules) Upsert(ctx context.Context, r model.CorrelationRule) error {
	if r.ID == "" {
		return fmt.Errorf("%w: empty correlation rule id", model.ErrValidation)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.corrRules[r.ID] = r
	return nil
}

func (m *memCorrRules) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.corrRules[id]; !ok {
		return fmt.Errorf("correlation rule %q: %w", id, model.ErrNotFound)
	}
	delete(m.corrRules, id)
	return nil
}

// --- TagImportanceRepository ---

type memImportance Memory

func (m *memImportance) List(ctx context.Context) ([]model.TagImportanceRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.TagImportanceRule, len(m.importance))
	copy(out, m.importance)
	return out, nil
}

func (m *memImportance) Save(ctx context.Context, rules []model.TagImportanceRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.importance = make([]model.TagImportanceRule, len(rules))
	copy(m.importance, rules)
	return nil
}

// --- Motor catalog repositories ---

type memMotorModels Memory

func (m *memMotorModels) List(ctx context.Context) ([]model.MotorModel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.MotorModel, 0, len(m.models))
	for _, v := range m.models {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModelID < out[j].ModelID })
	return out, nil
}

func (m *memMotorModels) Get(ctx context.Context, modelID string) (model.MotorModel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.models[modelID]
	if !ok {
		return model.MotorModel{}, fmt.Errorf("motor model %q: %w", modelID, model.ErrNotFound)
	}
	return v, nil
}

func (m *memMotorModels) Save(ctx context.Context, v model.MotorModel) error {
	if v.ModelID == "" {
		return fmt.Errorf("%w: empty model id", model.ErrValidation)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.models[v.ModelID] = v
	return nil
}

func (m *memMotorModels) Delete(ctx context.Context, modelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.models[modelID]; !ok {
		return fmt.Errorf("motor model %q: %w", modelID, model.ErrNotFound)
	}
	delete(m.models, modelID)
	return nil
}

type memMotorInstances Memory

func (m *memMotorInstances) List(ctx context.Context) ([]model.MotorInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.MotorInstance, 0, len(m.instances))
	for _, v := range m.instances {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstanceID < out[j].InstanceID })
	return out, nil
}

func (m *memMotorInstances) Get(ctx context.Context, instanceID string) (model.MotorInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.instances[instanceID]
	if !ok {
		return model.MotorInstance{}, fmt.Errorf("motor instance %q: %w", instanceID, model.ErrNotFound)
	}
	return v, nil
}

func (m *memMotorInstances) Save(ctx context.Context, v model.MotorInstance) error {
	if v.InstanceID == "" {
		return fmt.Errorf("%w: empty instance id", model.ErrValidation)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instances[v.InstanceID] = v
	return nil
}

func (m *memMotorInstances) Delete(ctx context.Context, instanceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.instances[instanceID]; !ok {
		return fmt.Errorf("motor instance %q: %w", instanceID, model.ErrNotFound)
	}
	delete(m.instances, instanceID)
	return nil
}

type memMotorMappings Memory

func (m *memMotorMappings) ListByInstance(ctx context.Context, instanceID string) ([]model.MotorParameterMapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.MotorParameterMapping, len(m.mappings[instanceID]))
	copy(out, m.mappings[instanceID])
	return out, nil
}

func (m *memMotorMappings) Save(ctx context.Context, v model.MotorParameterMapping) error {
	if v.InstanceID == "" || v.TagID == "" {
		return fmt.Errorf("%w: mapping missing instance or tag", model.ErrValidation)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.mappings[v.InstanceID]
	for i := range list {
		if list[i].Parameter == v.Parameter {
			list[i] = v
			return nil
		}
	}
	m.mappings[v.InstanceID] = append(list, v)
	return nil
}

func (m *memMotorMappings) Delete(ctx context.Context, instanceID string, p model.MotorParameter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.mappings[instanceID]
	for i := range list {
		if list[i].Parameter == p {
			m.mappings[instanceID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("mapping %s/%s: %w", instanceID, p, model.ErrNotFound)
}

type memModes Memory

func (m *memModes) ListByInstance(ctx context.Context, instanceID string) ([]model.OperationMode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.OperationMode
	for _, v := range m.modes {
		if v.InstanceID == instanceID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModeID < out[j].ModeID })
	return out, nil
}

func (m *memModes) Save(ctx context.Context, v model.OperationMode) error {
	if v.ModeID == "" {
		return fmt.Errorf("%w: empty mode id", model.ErrValidation)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modes[v.ModeID] = v
	return nil
}

func (m *memModes) Delete(ctx context.Context, modeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.modes[modeID]; !ok {
		return fmt.Errorf("mode %q: %w", modeID, model.ErrNotFound)
	}
	delete(m.modes, modeID)
	return nil
}

type memProfiles Memory

func profileKey(instanceID, modeID string, p model.MotorParameter) string {
	return instanceID + "\x00" + modeID + "\x00" + string(p)
}

func (m *memProfiles) Get(ctx context.Context, instanceID, modeID string, p model.MotorParameter) (*model.BaselineProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.profiles[profileKey(instanceID, modeID, p)]
	if !ok {
		return nil, fmt.Errorf("profile %s/%s/%s: %w", instanceID, modeID, p, model.ErrNotFound)
	}
	cp := *b
	if b.Frequency != nil {
		fp := *b.Frequency
		cp.Frequency = &fp
	}
	return &cp, nil
}

func (m *memProfiles) ListByInstance(ctx context.Context, instanceID string) ([]model.BaselineProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.BaselineProfile
	for _, b := range m.profiles {
		if b.InstanceID == instanceID {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ModeID != out[j].ModeID {
			return out[i].ModeID < out[j].ModeID
		}
		return out[i].Parameter < out[j].Parameter
	})
	return out, nil
}

func (m *memProfiles) Save(ctx context.Context, b *model.BaselineProfile) error {
	if b == nil || b.InstanceID == "" {
		return fmt.Errorf("%w: empty profile", model.ErrValidation)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	if b.Frequency != nil {
		fp := *b.Frequency
		cp.Frequency = &fp
	}
	m.profiles[profileKey(b.InstanceID, b.ModeID, b.Parameter)] = &cp
	return nil
}

func (m *memProfiles) Delete(ctx context.Context, instanceID, modeID string, p model.MotorParameter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := profileKey(instanceID, modeID, p)
	if _, ok := m.profiles[k]; !ok {
		return fmt.Errorf("profile %s/%s/%s: %w", instanceID, modeID, p, model.ErrNotFound)
	}
	delete(m.profiles, k)
	return nil
}
