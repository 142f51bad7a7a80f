package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "modernc.org/sqlite"

	"github.com/intellimaint/intellimaint/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS telemetry (
	device_id TEXT NOT NULL,
	tag_id    TEXT NOT NULL,
	ts        INTEGER NOT NULL,
	seq       INTEGER NOT NULL,
	num_val   REAL,
	payload   TEXT NOT NULL,
	PRIMARY KEY (device_id, tag_id, ts, seq)
);
CREATE INDEX IF NOT EXISTS idx_telemetry_ts ON telemetry (device_id, tag_id, ts);

CREATE TABLE IF NOT EXISTS alarms (
	alarm_id  TEXT PRIMARY KEY,
	device_id TEXT NOT NULL,
	rule_id   TEXT,
	ts        INTEGER NOT NULL,
	status    INTEGER NOT NULL,
	payload   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alarms_device ON alarms (device_id, status);

CREATE TABLE IF NOT EXISTS alarm_groups (
	group_id  TEXT PRIMARY KEY,
	device_id TEXT NOT NULL,
	rule_id   TEXT NOT NULL,
	status    INTEGER NOT NULL,
	last_ts   INTEGER NOT NULL,
	payload   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_groups_device_rule ON alarm_groups (device_id, rule_id, status);

CREATE TABLE IF NOT EXISTS health_snapshots (
	device_id TEXT NOT NULL,
	ts        INTEGER NOT NULL,
	idx       INTEGER NOT NULL,
	level     INTEGER NOT NULL,
	PRIMARY KEY (device_id, ts)
);

CREATE TABLE IF NOT EXISTS cycles (
	device_id TEXT NOT NULL,
	start_ts  INTEGER NOT NULL,
	payload   TEXT NOT NULL,
	PRIMARY KEY (device_id, start_ts)
);

CREATE TABLE IF NOT EXISTS docs (
	kind    TEXT NOT NULL,
	id      TEXT NOT NULL,
	payload TEXT NOT NULL,
	PRIMARY KEY (kind, id)
);
`

// Doc kinds for the generic JSON table. Blobs carry a version field and
// readers tolerate unknown fields.
const (
	kindDevice          = "device"
	kindTag             = "tag"
	kindAlarmRule       = "alarm_rule"
	kindCorrelationRule = "correlation_rule"
	kindImportance      = "tag_importance"
	kindHealthBaseline  = "health_baseline"
	kindCycleBaseline   = "cycle_baseline"
	kindMotorModel      = "motor_model"
	kindMotorInstance   = "motor_instance"
	kindMotorMapping    = "motor_mapping"
	kindOperationMode   = "operation_mode"
	kindMotorProfile    = "motor_profile"
)

// SQLite is the local time-series and metadata store.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (and migrates) the database at path. Transient open
// failures are retried with exponential backoff.
func OpenSQLite(path string) (*SQLite, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; modernc sqlite serializes anyway

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5)
	ping := func() error { return db.Ping() }
	if err := backoff.Retry(ping, bo); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close releases the database handle.
func (s *SQLite) Close() error { return s.db.Close() }

// Repositories returns the contract bundle backed by this store.
func (s *SQLite) Repositories() *Repositories {
	return &Repositories{
		Telemetry:       s,
		Devices:         &sqlDevices{s},
		Tags:            &sqlTags{s},
		Alarms:          &sqlAlarms{s},
		AlarmRules:      &sqlAlarmRules{s},
		AlarmGroups:     &sqlGroups{s},
		HealthBaselines: &sqlBaselines{s},
		HealthSnapshots: &sqlSnapshots{s},
		CycleBaselines:  &sqlCycleBaselines{s},
		Cycles:          &sqlCycles{s},
		Correlations:    &sqlCorrRules{s},
		TagImportance:   &sqlImportance{s},
		MotorModels:     &sqlMotorModels{s},
		MotorInstances:  &sqlMotorInstances{s},
		MotorMappings:   &sqlMotorMappings{s},
		OperationModes:  &sqlModes{s},
		MotorProfiles:   &sqlProfiles{s},
	}
}

// --- generic doc helpers ---

func (s *SQLite) putDoc(ctx context.Context, kind, id string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s %s: %w", kind, id, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO docs (kind, id, payload) VALUES (?, ?, ?)
		 ON CONFLICT (kind, id) DO UPDATE SET payload = excluded.payload`,
		kind, id, string(data))
	return err
}

func (s *SQLite) getDoc(ctx context.Context, kind, id string, v interface{}) error {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM docs WHERE kind = ? AND id = ?`, kind, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %q: %w", kind, id, model.ErrNotFound)
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(payload), v)
}

func (s *SQLite) delDoc(ctx context.Context, kind, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM docs WHERE kind = ? AND id = ?`, kind, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s %q: %w", kind, id, model.ErrNotFound)
	}
	return nil
}

// listDocs decodes every payload of a kind through fn.
func (s *SQLite) listDocs(ctx context.Context, kind string, fn func(payload []byte) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM docs WHERE kind = ? ORDER BY id`, kind)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return err
		}
		if err := fn([]byte(payload)); err != nil {
			return err
		}
	}
	return rows.Err()
}

// --- TelemetryRepository ---

func (s *SQLite) Append(ctx context.Context, points []model.TelemetryPoint) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO telemetry (device_id, tag_id, ts, seq, num_val, payload)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (device_id, tag_id, ts, seq)
		 DO UPDATE SET num_val = excluded.num_val, payload = excluded.payload`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i := range points {
		p := &points[i]
		if p.DeviceID == "" || p.TagID == "" {
			return fmt.Errorf("%w: point missing device or tag id", model.ErrValidation)
		}
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal point: %w", err)
		}
		var num sql.NullFloat64
		if v, ok := p.Value(); ok {
			num = sql.NullFloat64{Float64: v, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, p.DeviceID, p.TagID, p.Ts, p.Seq, num, string(data)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLite) Query(ctx context.Context, f model.PointFilter) ([]model.TelemetryPoint, error) {
	if f.EndTs != 0 && f.StartTs > f.EndTs {
		return nil, fmt.Errorf("%w: start after end", model.ErrValidation)
	}
	q := `SELECT payload FROM telemetry WHERE ts >= ?`
	args := []interface{}{f.StartTs}
	if f.EndTs != 0 {
		q += ` AND ts < ?`
		args = append(args, f.EndTs)
	}
	if f.DeviceID != "" {
		q += ` AND device_id = ?`
		args = append(args, f.DeviceID)
	}
	if f.TagID != "" {
		q += ` AND tag_id = ?`
		args = append(args, f.TagID)
	}
	if f.Desc {
		q += ` ORDER BY ts DESC, seq DESC`
	} else {
		q += ` ORDER BY ts ASC, seq ASC`
	}
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.TelemetryPoint
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var p model.TelemetryPoint
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return nil, fmt.Errorf("decode point: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLite) QuerySimple(ctx context.Context, deviceID, tagID string, startTs, endTs int64, limit int) ([]model.TelemetryPoint, error) {
	return s.Query(ctx, model.PointFilter{DeviceID: deviceID, TagID: tagID, StartTs: startTs, EndTs: endTs, Limit: limit})
}

func (s *SQLite) GetLatest(ctx context.Context, deviceID, tagID string) ([]model.TelemetryPoint, error) {
	q := `SELECT payload FROM telemetry t
	      WHERE ts = (SELECT MAX(ts) FROM telemetry
	                  WHERE device_id = t.device_id AND tag_id = t.tag_id)`
	var args []interface{}
	if deviceID != "" {
		q += ` AND device_id = ?`
		args = append(args, deviceID)
	}
	if tagID != "" {
		q += ` AND tag_id = ?`
		args = append(args, tagID)
	}
	q += ` ORDER BY device_id, tag_id, seq`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	// Keep the max-seq row per (device, tag) when ts ties.
	byKey := make(map[[2]string]model.TelemetryPoint)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var p model.TelemetryPoint
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return nil, fmt.Errorf("decode point: %w", err)
		}
		byKey[[2]string{p.DeviceID, p.TagID}] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]model.TelemetryPoint, 0, len(byKey))
	for _, p := range byKey {
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

func (s *SQLite) GetTags(ctx context.Context) ([]model.TagSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT device_id, tag_id, COUNT(*), MAX(ts) FROM telemetry
		 GROUP BY device_id, tag_id ORDER BY device_id, tag_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.TagSummary
	for rows.Next() {
		var ts model.TagSummary
		if err := rows.Scan(&ts.DeviceID, &ts.TagID, &ts.PointCount, &ts.LastTs); err != nil {
			return nil, err
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

func (s *SQLite) Aggregate(ctx context.Context, deviceID, tagID string, startTs, endTs, bucketMs int64, fn model.AggregateFn) ([]model.AggregateBucket, error) {
	if bucketMs <= 0 {
		return nil, fmt.Errorf("%w: bucket must be positive", model.ErrValidation)
	}
	// first/last need ordered scans; reuse the in-process reducer.
	points, err := s.QuerySimple(ctx, deviceID, tagID, startTs, endTs, 0)
	if err != nil {
		return nil, err
	}
	return aggregatePoints(points, bucketMs, fn)
}

// --- DeviceRepository ---

type sqlDevices struct{ s *SQLite }

func (r *sqlDevices) List(ctx context.Context) ([]model.Device, error) {
	var out []model.Device
	err := r.s.listDocs(ctx, kindDevice, func(payload []byte) error {
		var d model.Device
		if err := json.Unmarshal(payload, &d); err != nil {
			return err
		}
		out = append(out, d)
		return nil
	})
	return out, err
}

func (r *sqlDevices) Get(ctx context.Context, deviceID string) (model.Device, error) {
	var d model.Device
	err := r.s.getDoc(ctx, kindDevice, deviceID, &d)
	return d, err
}

func (r *sqlDevices) Upsert(ctx context.Context, d model.Device) error {
	if d.DeviceID == "" {
		return fmt.Errorf("%w: empty device id", model.ErrValidation)
	}
	return r.s.putDoc(ctx, kindDevice, d.DeviceID, d)
}

func (r *sqlDevices) Delete(ctx context.Context, deviceID string) error {
	tags, err := (&sqlTags{r.s}).ListByDevice(ctx, deviceID)
	if err != nil {
		return err
	}
	if len(tags) > 0 {
		return fmt.Errorf("%w: device %q still has tags", model.ErrConflictState, deviceID)
	}
	return r.s.delDoc(ctx, kindDevice, deviceID)
}

// --- TagRepository ---

type sqlTags struct{ s *SQLite }

func (r *sqlTags) List(ctx context.Context) ([]model.Tag, error) {
	var out []model.Tag
	err := r.s.listDocs(ctx, kindTag, func(payload []byte) error {
		var t model.Tag
		if err := json.Unmarshal(payload, &t); err != nil {
			return err
		}
		out = append(out, t)
		return nil
	})
	return out, err
}

func (r *sqlTags) ListByDevice(ctx context.Context, deviceID string) ([]model.Tag, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0:0]
	for _, t := range all {
		if t.DeviceID == deviceID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *sqlTags) Get(ctx context.Context, tagID string) (model.Tag, error) {
	var t model.Tag
	err := r.s.getDoc(ctx, kindTag, tagID, &t)
	return t, err
}

func (r *sqlTags) Upsert(ctx context.Context, t model.Tag) error {
	if t.TagID == "" {
		return fmt.Errorf("%w: empty tag id", model.ErrValidation)
	}
	var d model.Device
	if err := r.s.getDoc(ctx, kindDevice, t.DeviceID, &d); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return fmt.Errorf("%w: tag %q references unknown device %q", model.ErrValidation, t.TagID, t.DeviceID)
		}
		return err
	}
	return r.s.putDoc(ctx, kindTag, t.TagID, t)
}

func (r *sqlTags) Delete(ctx context.Context, tagID string) error {
	return r.s.delDoc(ctx, kindTag, tagID)
}

// --- AlarmRepository ---

type sqlAlarms struct{ s *SQLite }

func (r *sqlAlarms) put(ctx context.Context, a *model.AlarmRecord) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	_, err = r.s.db.ExecContext(ctx,
		`INSERT INTO alarms (alarm_id, device_id, rule_id, ts, status, payload)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (alarm_id) DO UPDATE SET
		   status = excluded.status, payload = excluded.payload`,
		a.AlarmID, a.DeviceID, a.RuleID, a.Ts, int(a.Status), string(data))
	return err
}

func (r *sqlAlarms) Create(ctx context.Context, a *model.AlarmRecord) error {
	if a.AlarmID == "" {
		return fmt.Errorf("%w: empty alarm id", model.ErrValidation)
	}
	if _, err := r.Get(ctx, a.AlarmID); err == nil {
		return fmt.Errorf("%w: alarm %q exists", model.ErrValidation, a.AlarmID)
	}
	return r.put(ctx, a)
}

func (r *sqlAlarms) Update(ctx context.Context, a *model.AlarmRecord) error {
	if _, err := r.Get(ctx, a.AlarmID); err != nil {
		return err
	}
	return r.put(ctx, a)
}

func (r *sqlAlarms) Get(ctx context.Context, alarmID string) (model.AlarmRecord, error) {
	var payload string
	err := r.s.db.QueryRowContext(ctx,
		`SELECT payload FROM alarms WHERE alarm_id = ?`, alarmID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return model.AlarmRecord{}, fmt.Errorf("alarm %q: %w", alarmID, model.ErrNotFound)
	}
	if err != nil {
		return model.AlarmRecord{}, err
	}
	var a model.AlarmRecord
	if err := json.Unmarshal([]byte(payload), &a); err != nil {
		return model.AlarmRecord{}, err
	}
	return a, nil
}

func (r *sqlAlarms) GetOpenCount(ctx context.Context, deviceID string) (int, error) {
	var n int
	err := r.s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM alarms WHERE device_id = ? AND status != ?`,
		deviceID, int(model.AlarmClosed)).Scan(&n)
	return n, err
}

func (r *sqlAlarms) GetOpenCountByDevices(ctx context.Context, deviceIDs []string) (map[string]int, error) {
	out := make(map[string]int, len(deviceIDs))
	for _, id := range deviceIDs {
		n, err := r.GetOpenCount(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = n
	}
	return out, nil
}

func (r *sqlAlarms) Query(ctx context.Context, q model.AlarmQuery) ([]model.AlarmRecord, error) {
	sqlq := `SELECT payload FROM alarms WHERE ts >= ?`
	args := []interface{}{q.StartTs}
	if q.EndTs != 0 {
		sqlq += ` AND ts < ?`
		args = append(args, q.EndTs)
	}
	if q.DeviceID != "" {
		sqlq += ` AND device_id = ?`
		args = append(args, q.DeviceID)
	}
	if q.RuleID != "" {
		sqlq += ` AND rule_id = ?`
		args = append(args, q.RuleID)
	}
	if q.Status != nil {
		sqlq += ` AND status = ?`
		args = append(args, int(*q.Status))
	}
	sqlq += ` ORDER BY ts ASC`
	if q.Limit > 0 {
		sqlq += ` LIMIT ?`
		args = append(args, q.Limit)
	}
	rows, err := r.s.db.QueryContext(ctx, sqlq, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.AlarmRecord
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var a model.AlarmRecord
		if err := json.Unmarshal([]byte(payload), &a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *sqlAlarms) Ack(ctx context.Context, alarmID, by, note string) error {
	a, err := r.Get(ctx, alarmID)
	if err != nil {
		return err
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
	return r.put(ctx, &a)
}

func (r *sqlAlarms) Close(ctx context.Context, alarmID string) error {
	a, err := r.Get(ctx, alarmID)
	if err != nil {
		return err
	}
	if a.Status == model.AlarmClosed {
		return fmt.Errorf("%w: alarm %q already closed", model.ErrConflictState, alarmID)
	}
	a.Status = model.AlarmClosed
	a.UpdatedUtc = nowMilli()
	return r.put(ctx, &a)
}

// --- AlarmRuleRepository ---

type sqlAlarmRules struct{ s *SQLite }

func (r *sqlAlarmRules) List(ctx context.Context) ([]model.AlarmRule, error) {
	var out []model.AlarmRule
	err := r.s.listDocs(ctx, kindAlarmRule, func(payload []byte) error {
		var rule model.AlarmRule
		if err := json.Unmarshal(payload, &rule); err != nil {
			return err
		}
		out = append(out, rule)
		return nil
	})
	return out, err
}

func (r *sqlAlarmRules) ListEnabled(ctx context.Context) ([]model.AlarmRule, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0:0]
	for _, rule := range all {
		if rule.Enabled {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (r *sqlAlarmRules) Upsert(ctx context.Context, rule model.AlarmRule) error {
	if rule.RuleID == "" || !rule.ConditionType.Valid() {
		return fmt.Errorf("%w: bad alarm rule", model.ErrValidation)
	}
	return r.s.putDoc(ctx, kindAlarmRule, rule.RuleID, rule)
}

func (r *sqlAlarmRules) SetEnabled(ctx context.Context, ruleID string, enabled bool) error {
	var rule model.AlarmRule
	if err := r.s.getDoc(ctx, kindAlarmRule, ruleID, &rule); err != nil {
		return err
	}
	rule.Enabled = enabled
	return r.s.putDoc(ctx, kindAlarmRule, ruleID, rule)
}

func (r *sqlAlarmRules) Delete(ctx context.Context, ruleID string) error {
	return r.s.delDoc(ctx, kindAlarmRule, ruleID)
}

// --- AlarmGroupRepository ---

type sqlGroups struct{ s *SQLite }

func (r *sqlGroups) put(ctx context.Context, g model.AlarmGroup) error {
	data, err := json.Marshal(g)
	if err != nil {
		return err
	}
	_, err = r.s.db.ExecContext(ctx,
		`INSERT INTO alarm_groups (group_id, device_id, rule_id, status, last_ts, payload)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (group_id) DO UPDATE SET
		   status = excluded.status, last_ts = excluded.last_ts, payload = excluded.payload`,
		g.GroupID, g.DeviceID, g.RuleID, int(g.AggregateStatus), g.LastOccurredUtc, string(data))
	return err
}

func (r *sqlGroups) GetOpenByDeviceRule(ctx context.Context, deviceID, ruleID string) (model.AlarmGroup, error) {
	var payload string
	err := r.s.db.QueryRowContext(ctx,
		`SELECT payload FROM alarm_groups
		 WHERE device_id = ? AND rule_id = ? AND status != ?
		 ORDER BY last_ts DESC LIMIT 1`,
		deviceID, ruleID, int(model.AlarmClosed)).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return model.AlarmGroup{}, fmt.Errorf("open group for (%s,%s): %w", deviceID, ruleID, model.ErrNotFound)
	}
	if err != nil {
		return model.AlarmGroup{}, err
	}
	var g model.AlarmGroup
	if err := json.Unmarshal([]byte(payload), &g); err != nil {
		return model.AlarmGroup{}, err
	}
	return g, nil
}

func (r *sqlGroups) Upsert(ctx context.Context, g model.AlarmGroup) error {
	if g.GroupID == "" {
		return fmt.Errorf("%w: empty group id", model.ErrValidation)
	}
	return r.put(ctx, g)
}

func (r *sqlGroups) Get(ctx context.Context, groupID string) (model.AlarmGroup, error) {
	var payload string
	err := r.s.db.QueryRowContext(ctx,
		`SELECT payload FROM alarm_groups WHERE group_id = ?`, groupID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return model.AlarmGroup{}, fmt.Errorf("group %q: %w", groupID, model.ErrNotFound)
	}
	if err != nil {
		return model.AlarmGroup{}, err
	}
	var g model.AlarmGroup
	if err := json.Unmarshal([]byte(payload), &g); err != nil {
		return model.AlarmGroup{}, err
	}
	return g, nil
}

func (r *sqlGroups) Close(ctx context.Context, groupID string) error {
	g, err := r.Get(ctx, groupID)
	if err != nil {
		return err
	}
	if g.AggregateStatus == model.AlarmClosed {
		return fmt.Errorf("%w: group %q already closed", model.ErrConflictState, groupID)
	}
	g.AggregateStatus = model.AlarmClosed
	return r.put(ctx, g)
}

func (r *sqlGroups) Query(ctx context.Context, deviceID string, limit int) ([]model.AlarmGroup, error) {
	sqlq := `SELECT payload FROM alarm_groups`
	var args []interface{}
	if deviceID != "" {
		sqlq += ` WHERE device_id = ?`
		args = append(args, deviceID)
	}
	sqlq += ` ORDER BY last_ts DESC`
	if limit > 0 {
		sqlq += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.s.db.QueryContext(ctx, sqlq, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.AlarmGroup
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var g model.AlarmGroup
		if err := json.Unmarshal([]byte(payload), &g); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// --- HealthBaselineRepository ---

type sqlBaselines struct{ s *SQLite }

func (r *sqlBaselines) Get(ctx context.Context, deviceID string) (*model.DeviceBaseline, error) {
	var b model.DeviceBaseline
	if err := r.s.getDoc(ctx, kindHealthBaseline, deviceID, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *sqlBaselines) Save(ctx context.Context, b *model.DeviceBaseline) error {
	if b == nil || b.DeviceID == "" {
		return fmt.Errorf("%w: empty baseline", model.ErrValidation)
	}
	return r.s.putDoc(ctx, kindHealthBaseline, b.DeviceID, b)
}

func (r *sqlBaselines) Delete(ctx context.Context, deviceID string) error {
	return r.s.delDoc(ctx, kindHealthBaseline, deviceID)
}

// --- HealthSnapshotRepository ---

type sqlSnapshots struct{ s *SQLite }

func (r *sqlSnapshots) Append(ctx context.Context, snap model.HealthSnapshot) error {
	_, err := r.s.db.ExecContext(ctx,
		`INSERT INTO health_snapshots (device_id, ts, idx, level) VALUES (?, ?, ?, ?)
		 ON CONFLICT (device_id, ts) DO UPDATE SET idx = excluded.idx, level = excluded.level`,
		snap.DeviceID, snap.Timestamp, snap.Index, int(snap.Level))
	return err
}

func (r *sqlSnapshots) Query(ctx context.Context, deviceID string, startTs, endTs int64) ([]model.HealthSnapshot, error) {
	sqlq := `SELECT device_id, ts, idx, level FROM health_snapshots WHERE device_id = ? AND ts >= ?`
	args := []interface{}{deviceID, startTs}
	if endTs != 0 {
		sqlq += ` AND ts < ?`
		args = append(args, endTs)
	}
	sqlq += ` ORDER BY ts ASC`
	rows, err := r.s.db.QueryContext(ctx, sqlq, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.HealthSnapshot
	for rows.Next() {
		var snap model.HealthSnapshot
		var level int
		if err := rows.Scan(&snap.DeviceID, &snap.Timestamp, &snap.Index, &level); err != nil {
			return nil, err
		}
		snap.Level = model.HealthLevel(level)
		out = append(out, snap)
	}
	return out, rows.Err()
}

// --- CycleBaselineRepository ---

type sqlCycleBaselines struct{ s *SQLite }

func (r *sqlCycleBaselines) Get(ctx context.Context, deviceID string) (*model.CycleDeviceBaseline, error) {
	var b model.CycleDeviceBaseline
	if err := r.s.getDoc(ctx, kindCycleBaseline, deviceID, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *sqlCycleBaselines) Save(ctx context.Context, b *model.CycleDeviceBaseline) error {
	if b == nil || b.DeviceID == "" {
		return fmt.Errorf("%w: empty cycle baseline", model.ErrValidation)
	}
	return r.s.putDoc(ctx, kindCycleBaseline, b.DeviceID, b)
}

func (r *sqlCycleBaselines) Delete(ctx context.Context, deviceID string) error {
	return r.s.delDoc(ctx, kindCycleBaseline, deviceID)
}

// --- CycleRepository ---

type sqlCycles struct{ s *SQLite }

func (r *sqlCycles) Append(ctx context.Context, cycles []model.WorkCycle) error {
	tx, err := r.s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for i := range cycles {
		data, err := json.Marshal(&cycles[i])
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO cycles (device_id, start_ts, payload) VALUES (?, ?, ?)
			 ON CONFLICT (device_id, start_ts) DO UPDATE SET payload = excluded.payload`,
			cycles[i].DeviceID, cycles[i].StartTimeUtc, string(data)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *sqlCycles) Query(ctx context.Context, deviceID string, startTs, endTs int64, limit int) ([]model.WorkCycle, error) {
	sqlq := `SELECT payload FROM cycles WHERE device_id = ? AND start_ts >= ?`
	args := []interface{}{deviceID, startTs}
	if endTs != 0 {
		sqlq += ` AND start_ts < ?`
		args = append(args, endTs)
	}
	sqlq += ` ORDER BY start_ts ASC`
	if limit > 0 {
		sqlq += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.s.db.QueryContext(ctx, sqlq, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.WorkCycle
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var c model.WorkCycle
		if err := json.Unmarshal([]byte(payload), &c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- CorrelationRuleRepository ---

type sqlCorrRules struct{ s *SQLite }

func (r *sqlCorrRules) ListEnabled(ctx context.Context) ([]model.CorrelationRule, error) {
	var out []model.CorrelationRule
	err := r.s.listDocs(ctx, kindCorrelationRule, func(payload []byte) error {
		var rule model.CorrelationRule
		if err := json.Unmarshal(payload, &rule); err != nil {
			return err
		}
		if rule.Enabled {
			out = append(out, rule)
		}
		return nil
	})
	return out, err
}

func (r *sqlCorrRules) Upsert(ctx context.Context, rule model.CorrelationRule) error {
	if rule.ID == "" {
		return fmt.Errorf("%w: empty correlation rule id", model.ErrValidation)
	}
	return r.s.putDoc(ctx, kindCorrelationRule, rule.ID, rule)
}

func (r *sqlCorrRules) Delete(ctx context.Context, id string) error {
	return r.s.delDoc(ctx, kindCorrelationRule, id)
}

// --- TagImportanceRepository ---

type sqlImportance struct{ s *SQLite }

func (r *sqlImportance) List(ctx context.Context) ([]model.TagImportanceRule, error) {
	var rules []model.TagImportanceRule
	err := r.s.getDoc(ctx, kindImportance, "rules", &rules)
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	return rules, err
}

func (r *sqlImportance) Save(ctx context.Context, rules []model.TagImportanceRule) error {
	return r.s.putDoc(ctx, kindImportance, "rules", rules)
}

// --- Motor catalog repositories ---

type sqlMotorModels struct{ s *SQLite }

func (r *sqlMotorModels) List(ctx context.Context) ([]model.MotorModel, error) {
	var out []model.MotorModel
	err := r.s.listDocs(ctx, kindMotorModel, func(payload []byte) error {
		var m model.MotorModel
		if err := json.Unmarshal(payload, &m); err != nil {
			return err
		}
		out = append(out, m)
		return nil
	})
	return out, err
}

func (r *sqlMotorModels) Get(ctx context.Context, modelID string) (model.MotorModel, error) {
	var m model.MotorModel
	err := r.s.getDoc(ctx, kindMotorModel, modelID, &m)
	return m, err
}

func (r *sqlMotorModels) Save(ctx context.Context, m model.MotorModel) error {
	if m.ModelID == "" {
		return fmt.Errorf("%w: empty model id", model.ErrValidation)
	}
	return r.s.putDoc(ctx, kindMotorModel, m.ModelID, m)
}

func (r *sqlMotorModels) Delete(ctx context.Context, modelID string) error {
	return r.s.delDoc(ctx, kindMotorModel, modelID)
}

type sqlMotorInstances struct{ s *SQLite }

func (r *sqlMotorInstances) List(ctx context.Context) ([]model.MotorInstance, error) {
	var out []model.MotorInstance
	err := r.s.listDocs(ctx, kindMotorInstance, func(payload []byte) error {
		var m model.MotorInstance
		if err := json.Unmarshal(payload, &m); err != nil {
			return err
		}
		out = append(out, m)
		return nil
	})
	return out, err
}

func (r *sqlMotorInstances) Get(ctx context.Context, instanceID string) (model.MotorInstance, error) {
	var m model.MotorInstance
	err := r.s.getDoc(ctx, kindMotorInstance, instanceID, &m)
	return m, err
}

func (r *sqlMotorInstances) Save(ctx context.Context, m model.MotorInstance) error {
	if m.InstanceID == "" {
		return fmt.Errorf("%w: empty instance id", model.ErrValidation)
	}
	return r.s.putDoc(ctx, kindMotorInstance, m.InstanceID, m)
}

func (r *sqlMotorInstances) Delete(ctx context.Context, instanceID string) error {
	return r.s.delDoc(ctx, kindMotorInstance, instanceID)
}

type sqlMotorMappings struct{ s *SQLite }

func mappingDocID(instanceID string, p model.MotorParameter) string {
	return instanceID + "/" + string(p)
}

func (r *sqlMotorMappings) ListByInstance(ctx context.Context, instanceID string) ([]model.MotorParameterMapping, error) {
	var out []model.MotorParameterMapping
	err := r.s.listDocs(ctx, kindMotorMapping, func(payload []byte) error {
		var m model.MotorParameterMapping
		if err := json.Unmarshal(payload, &m); err != nil {
			return err
		}
		if m.InstanceID == instanceID {
			out = append(out, m)
		}
		return nil
	})
	return out, err
}

func (r *sqlMotorMappings) Save(ctx context.Context, m model.MotorParameterMapping) error {
	if m.InstanceID == "" || m.TagID == "" {
		return fmt.Errorf("%w: mapping missing instance or tag", model.ErrValidation)
	}
	return r.s.putDoc(ctx, kindMotorMapping, mappingDocID(m.InstanceID, m.Parameter), m)
}

func (r *sqlMotorMappings) Delete(ctx context.Context, instanceID string, p model.MotorParameter) error {
	return r.s.delDoc(ctx, kindMotorMapping, mappingDocID(instanceID, p))
}

type sqlModes struct{ s *SQLite }

func (r *sqlModes) ListByInstance(ctx context.Context, instanceID string) ([]model.OperationMode, error) {
	var out []model.OperationMode
	err := r.s.listDocs(ctx, kindOperationMode, func(payload []byte) error {
		var m model.OperationMode
		if err := json.Unmarshal(payload, &m); err != nil {
			return err
		}
		if m.InstanceID == instanceID {
			out = append(out, m)
		}
		return nil
	})
	return out, err
}

func (r *sqlModes) Save(ctx context.Context, m model.OperationMode) error {
	if m.ModeID == "" {
		return fmt.Errorf("%w: empty mode id", model.ErrValidation)
	}
	return r.s.putDoc(ctx, kindOperationMode, m.ModeID, m)
}

func (r *sqlModes) Delete(ctx context.Context, modeID string) error {
	return r.s.delDoc(ctx, kindOperationMode, modeID)
}

type sqlProfiles struct{ s *SQLite }

func (r *sqlProfiles) Get(ctx context.Context, instanceID, modeID string, p model.MotorParameter) (*model.BaselineProfile, error) {
	var b model.BaselineProfile
	if err := r.s.getDoc(ctx, kindMotorProfile, profileKey(instanceID, modeID, p), &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *sqlProfiles) ListByInstance(ctx context.Context, instanceID string) ([]model.BaselineProfile, error) {
	var out []model.BaselineProfile
	err := r.s.listDocs(ctx, kindMotorProfile, func(payload []byte) error {
		var b model.BaselineProfile
		if err := json.Unmarshal(payload, &b); err != nil {
			return err
		}
		if b.InstanceID == instanceID {
			out = append(out, b)
		}
		return nil
	})
	return out, err
}

func (r *sqlProfiles) Save(ctx context.Context, b *model.BaselineProfile) error {
	if b == nil || b.InstanceID == "" {
		return fmt.Errorf("%w: empty profile", model.ErrValidation)
	}
	b.UpdatedUtc = time.Now().UnixMilli()
	return r.s.putDoc(ctx, kindMotorProfile, profileKey(b.InstanceID, b.ModeID, b.Parameter), b)
}

func (r *sqlProfiles) Delete(ctx context.Context, instanceID, modeID string, p model.MotorParameter) error {
	return r.s.delDoc(ctx, kindMotorProfile, profileKey(instanceID, modeID, p))
}
