package model

// Task status values observed on the wire. "completed" and "failed" are
// terminal: once reported, no further transitions occur and the result
// payload (if any) is produced exactly once.
const (
	TaskStarted   = "started"
	TaskPending   = "pending"
	TaskRunning   = "running"
	TaskCompleted = "completed"
	TaskFailed    = "failed"
)

// TaskTerminal reports whether a task status admits no further transitions.
func TaskTerminal(status string) bool {
	return status == TaskCompleted || status == TaskFailed
}

// Terminal reports whether the task has reached a terminal status.
func (t Task) Terminal() bool {
	return TaskTerminal(t.Status)
}

// Failed reports whether the task terminated unsuccessfully.
func (t Task) Failed() bool {
	return t.Status == TaskFailed
}
