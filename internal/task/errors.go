package task

import (
	"fmt"
	"time"
)

// FailedError reports that the backend marked the task terminally failed.
type FailedError struct {
	TaskID  string
	Message string
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("task %s failed: %s", e.TaskID, e.Message)
}

// TimeoutError reports an exhausted polling budget. LastProgress is the most
// recent progress observation (-1 when the backend never reported one) and
// Budget the consecutive-stall wall clock that was allowed.
type TimeoutError struct {
	TaskID       string
	LastProgress int
	Budget       time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("task %s made no progress for %s (last progress %d%%)",
		e.TaskID, e.Budget.Round(time.Second), e.LastProgress)
}
