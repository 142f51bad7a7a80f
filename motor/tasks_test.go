package motor

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/intellimaint/intellimaint/model"
	"github.com/intellimaint/intellimaint/store"
)

func waitForFinish(t *testing.T, r *TaskRunner, taskID string) TaskState {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		st, ok := r.Get(taskID)
		if !ok {
			t.Fatalf("task %s vanished while running", taskID)
		}
		if st.Status != TaskRunning {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatalf("task %s still running at the deadline", taskID)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStartLearningReportsFailure(t *testing.T) {
	repos := store.NewMemory().Repositories()
	l := NewBaselineLearner(repos.Telemetry, repos.MotorInstances, repos.MotorModels, repos.MotorMappings, repos.MotorProfiles, 50, zap.NewNop())
	r := NewTaskRunner(context.Background(), l, zap.NewNop())

	// No such instance: the job must finish failed, not crash or linger.
	id := r.StartLearning("ghost", "default")
	st := waitForFinish(t, r, id)
	if st.Status != TaskFailed || st.Error == "" {
		t.Errorf("state = %+v, want Failed with an error message", st)
	}
	if st.FinishedUtc == 0 {
		t.Error("finished task must carry a finish timestamp")
	}
}

func TestStartLearningSucceeds(t *testing.T) {
	const now = int64(1_700_000_000_000)
	old := nowMilli
	nowMilli = func() int64 { return now }
	t.Cleanup(func() { nowMilli = old })

	repos := store.NewMemory().Repositories()
	seedMotor(t, repos)
	ctx := context.Background()

	var points []model.TelemetryPoint
	for i := 0; i < 100; i++ {
		points = append(points, motorPoint("dev1", "temp_raw", now-200_000+int64(i)*1000, 30))
	}
	if err := repos.Telemetry.Append(ctx, points); err != nil {
		t.Fatal(err)
	}

	l := NewBaselineLearner(repos.Telemetry, repos.MotorInstances, repos.MotorModels, repos.MotorMappings, repos.MotorProfiles, 50, zap.NewNop())
	r := NewTaskRunner(ctx, l, zap.NewNop())
	id := r.StartLearning("inst1", "default")
	st := waitForFinish(t, r, id)
	if st.Status != TaskDone {
		t.Errorf("state = %+v, want Done", st)
	}
}

func TestTaskSweep(t *testing.T) {
	repos := store.NewMemory().Repositories()
	l := NewBaselineLearner(repos.Telemetry, repos.MotorInstances, repos.MotorModels, repos.MotorMappings, repos.MotorProfiles, 50, zap.NewNop())
	r := NewTaskRunner(context.Background(), l, zap.NewNop())

	// Plant a long-finished task and a fresh one; starting a job sweeps
	// only the expired entry.
	r.mu.Lock()
	r.tasks["old"] = &TaskState{TaskID: "old", Status: TaskDone, FinishedUtc: nowMilli() - 10*time.Minute.Milliseconds()}
	r.tasks["fresh"] = &TaskState{TaskID: "fresh", Status: TaskDone, FinishedUtc: nowMilli()}
	r.mu.Unlock()

	id := r.StartLearning("ghost", "default")
	waitForFinish(t, r, id)

	if _, ok := r.Get("old"); ok {
		t.Error("expired task must be swept")
	}
	if _, ok := r.Get("fresh"); !ok {
		t.Error("fresh task must survive the sweep")
	}
}
