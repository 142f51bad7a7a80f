package motor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// taskRetention keeps finished tasks visible for status polls.
const taskRetention = 5 * time.Minute

// Task lifecycle states.
const (
	TaskRunning = "Running"
	TaskDone    = "Done"
	TaskFailed  = "Failed"
)

// TaskState is the published status of one background learning job.
type TaskState struct {
	TaskID      string `json:"taskId"`
	InstanceID  string `json:"instanceId"`
	ModeID      string `json:"modeId"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	StartedUtc  int64  `json:"startedUtc"`
	FinishedUtc int64  `json:"finishedUtc,omitempty"`
}

// TaskRunner starts baseline learning jobs in the background and tracks
// their state in memory. Finished entries expire after five minutes; the
// sweep runs lazily on each start.
type TaskRunner struct {
	learner *BaselineLearner
	// base is the service lifetime context: learning survives the
	// originating request's cancellation but not shutdown.
	base context.Context
	log  *zap.Logger

	mu    sync.Mutex
	tasks map[string]*TaskState
}

// NewTaskRunner wires the runner to the service lifetime context.
func NewTaskRunner(base context.Context, learner *BaselineLearner, log *zap.Logger) *TaskRunner {
	return &TaskRunner{learner: learner, base: base, log: log, tasks: make(map[string]*TaskState)}
}

// StartLearning launches a background learn and returns the task id.
func (r *TaskRunner) StartLearning(instanceID, modeID string) string {
	st := &TaskState{
		TaskID:     uuid.NewString(),
		InstanceID: instanceID,
		ModeID:     modeID,
		Status:     TaskRunning,
		StartedUtc: nowMilli(),
	}

	r.mu.Lock()
	r.sweepLocked()
	r.tasks[st.TaskID] = st
	r.mu.Unlock()

	go func() {
		_, err := r.learner.Learn(r.base, instanceID, modeID)

		r.mu.Lock()
		defer r.mu.Unlock()
		st.FinishedUtc = nowMilli()
		if err != nil {
			st.Status = TaskFailed
			st.Error = err.Error()
			r.log.Warn("baseline learning failed", zap.String("instance", instanceID), zap.Error(err))
			return
		}
		st.Status = TaskDone
	}()
	return st.TaskID
}

// Get returns a copy of the task state.
func (r *TaskRunner) Get(taskID string) (TaskState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.tasks[taskID]
	if !ok {
		return TaskState{}, false
	}
	return *st, true
}

// sweepLocked drops entries finished longer than the retention ago.
func (r *TaskRunner) sweepLocked() {
	cutoff := nowMilli() - taskRetention.Milliseconds()
	for id, st := range r.tasks {
		if st.Status != TaskRunning && st.FinishedUtc < cutoff {
			delete(r.tasks, id)
		}
	}
}
