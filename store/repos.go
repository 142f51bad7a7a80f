// Package store defines the repository contracts the engine consumes and
// provides the sqlite-backed and in-memory implementations.
package store

import (
	"context"

	"github.com/intellimaint/intellimaint/model"
)

// TelemetryRepository is the typed point store (C1).
//
// Append is idempotent under identical (DeviceID, TagID, Ts, Seq).
// Queries are monotone in their filter: narrowing never returns more.
type TelemetryRepository interface {
	Append(ctx context.Context, points []model.TelemetryPoint) error
	Query(ctx context.Context, f model.PointFilter) ([]model.TelemetryPoint, error)
	QuerySimple(ctx context.Context, deviceID, tagID string, startTs, endTs int64, limit int) ([]model.TelemetryPoint, error)
	// GetLatest returns the max-Ts point per (device, tag); empty deviceID
	// or tagID widens the selection.
	GetLatest(ctx context.Context, deviceID, tagID string) ([]model.TelemetryPoint, error)
	GetTags(ctx context.Context) ([]model.TagSummary, error)
	// Aggregate buckets [startTs, endTs) by floor(ts/bucketMs)*bucketMs,
	// omitting empty buckets.
	Aggregate(ctx context.Context, deviceID, tagID string, startTs, endTs, bucketMs int64, fn model.AggregateFn) ([]model.AggregateBucket, error)
}

// DeviceRepository manages device metadata.
type DeviceRepository interface {
	List(ctx context.Context) ([]model.Device, error)
	Get(ctx context.Context, deviceID string) (model.Device, error)
	Upsert(ctx context.Context, d model.Device) error
	// Delete fails with ErrConflictState while tags reference the device.
	Delete(ctx context.Context, deviceID string) error
}

// TagRepository manages tag metadata.
type TagRepository interface {
	List(ctx context.Context) ([]model.Tag, error)
	ListByDevice(ctx context.Context, deviceID string) ([]model.Tag, error)
	Get(ctx context.Context, tagID string) (model.Tag, error)
	// Upsert fails with ErrValidation when the referenced device is unknown.
	Upsert(ctx context.Context, t model.Tag) error
	Delete(ctx context.Context, tagID string) error
}

// AlarmRepository manages fired alarms.
type AlarmRepository interface {
	Create(ctx context.Context, a *model.AlarmRecord) error
	Update(ctx context.Context, a *model.AlarmRecord) error
	Get(ctx context.Context, alarmID string) (model.AlarmRecord, error)
	GetOpenCount(ctx context.Context, deviceID string) (int, error)
	GetOpenCountByDevices(ctx context.Context, deviceIDs []string) (map[string]int, error)
	Query(ctx context.Context, q model.AlarmQuery) ([]model.AlarmRecord, error)
	// Ack and Close enforce the forward-only Open -> Acked -> Closed
	// lifecycle; violations return ErrConflictState.
	Ack(ctx context.Context, alarmID, by, note string) error
	Close(ctx context.Context, alarmID string) error
}

// AlarmRuleRepository manages threshold rules.
type AlarmRuleRepository interface {
	List(ctx context.Context) ([]model.AlarmRule, error)
	ListEnabled(ctx context.Context) ([]model.AlarmRule, error)
	Upsert(ctx context.Context, r model.AlarmRule) error
	SetEnabled(ctx context.Context, ruleID string, enabled bool) error
	Delete(ctx context.Context, ruleID string) error
}

// AlarmGroupRepository manages per-(device, rule) open-alarm groups.
type AlarmGroupRepository interface {
	GetOpenByDeviceRule(ctx context.Context, deviceID, ruleID string) (model.AlarmGroup, error)
	Upsert(ctx context.Context, g model.AlarmGroup) error
	Get(ctx context.Context, groupID string) (model.AlarmGroup, error)
	Close(ctx context.Context, groupID string) error
	Query(ctx context.Context, deviceID string, limit int) ([]model.AlarmGroup, error)
}

// HealthBaselineRepository stores per-device tag baselines.
type HealthBaselineRepository interface {
	Get(ctx context.Context, deviceID string) (*model.DeviceBaseline, error)
	Save(ctx context.Context, b *model.DeviceBaseline) error
	Delete(ctx context.Context, deviceID string) error
}

// HealthSnapshotRepository keeps append-only health history.
type HealthSnapshotRepository interface {
	Append(ctx context.Context, s model.HealthSnapshot) error
	Query(ctx context.Context, deviceID string, startTs, endTs int64) ([]model.HealthSnapshot, error)
}

// CycleBaselineRepository stores per-device cycle baselines.
type CycleBaselineRepository interface {
	Get(ctx context.Context, deviceID string) (*model.CycleDeviceBaseline, error)
	Save(ctx context.Context, b *model.CycleDeviceBaseline) error
	Delete(ctx context.Context, deviceID string) error
}

// CycleRepository keeps detected work cycles.
type CycleRepository interface {
	Append(ctx context.Context, cycles []model.WorkCycle) error
	Query(ctx context.Context, deviceID string, startTs, endTs int64, limit int) ([]model.WorkCycle, error)
}

// CorrelationRuleRepository manages pairwise correlation rules.
type CorrelationRuleRepository interface {
	ListEnabled(ctx context.Context) ([]model.CorrelationRule, error)
	Upsert(ctx context.Context, r model.CorrelationRule) error
	Delete(ctx context.Context, id string) error
}

// TagImportanceRepository stores the importance pattern list.
type TagImportanceRepository interface {
	List(ctx context.Context) ([]model.TagImportanceRule, error)
	Save(ctx context.Context, rules []model.TagImportanceRule) error
}

// MotorModelRepository is the motor catalog.
type MotorModelRepository interface {
	List(ctx context.Context) ([]model.MotorModel, error)
	Get(ctx context.Context, modelID string) (model.MotorModel, error)
	Save(ctx context.Context, m model.MotorModel) error
	Delete(ctx context.Context, modelID string) error
}

// MotorInstanceRepository binds devices to motor models.
type MotorInstanceRepository interface {
	List(ctx context.Context) ([]model.MotorInstance, error)
	Get(ctx context.Context, instanceID string) (model.MotorInstance, error)
	Save(ctx context.Context, m model.MotorInstance) error
	Delete(ctx context.Context, instanceID string) error
}

// MotorParameterMappingRepository stores per-instance tag mappings.
type MotorParameterMappingRepository interface {
	ListByInstance(ctx context.Context, instanceID string) ([]model.MotorParameterMapping, error)
	Save(ctx context.Context, m model.MotorParameterMapping) error
	Delete(ctx context.Context, instanceID string, p model.MotorParameter) error
}

// OperationModeRepository stores named operating regimes.
type OperationModeRepository interface {
	ListByInstance(ctx context.Context, instanceID string) ([]model.OperationMode, error)
	Save(ctx context.Context, m model.OperationMode) error
	Delete(ctx context.Context, modeID string) error
}

// BaselineProfileRepository stores per-(instance, mode, parameter)
// learned profiles.
type BaselineProfileRepository interface {
	Get(ctx context.Context, instanceID, modeID string, p model.MotorParameter) (*model.BaselineProfile, error)
	ListByInstance(ctx context.Context, instanceID string) ([]model.BaselineProfile, error)
	Save(ctx context.Context, b *model.BaselineProfile) error
	Delete(ctx context.Context, instanceID, modeID string, p model.MotorParameter) error
}

// Repositories bundles everything the engine consumes.
type Repositories struct {
	Telemetry       TelemetryRepository
	Devices         DeviceRepository
	Tags            TagRepository
	Alarms          AlarmRepository
	AlarmRules      AlarmRuleRepository
	AlarmGroups     AlarmGroupRepository
	HealthBaselines HealthBaselineRepository
	HealthSnapshots HealthSnapshotRepository
	CycleBaselines  CycleBaselineRepository
	Cycles          CycleRepository
	Correlations    CorrelationRuleRepository
	TagImportance   TagImportanceRepository
	MotorModels     MotorModelRepository
	MotorInstances  MotorInstanceRepository
	MotorMappings   MotorParameterMappingRepository
	OperationModes  OperationModeRepository
	MotorProfiles   BaselineProfileRepository
}
