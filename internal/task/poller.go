// Package task resolves asynchronous backend jobs to their terminal state by
// repeated status queries. The timeout budget is liveness-aware: attempts
// only count against it while observations are stalled, so a long job that
// keeps reporting new progress is never cut off.
package task

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"chronoreel/internal/gateway"
	"chronoreel/internal/logging"
	"chronoreel/internal/model"
)

const (
	DefaultMaxAttempts = 200
	DefaultInterval    = 3 * time.Second
)

// StatusFetcher is the slice of the gateway the poller needs.
type StatusFetcher interface {
	TaskStatus(ctx context.Context, taskID string) (model.Task, error)
}

type Options struct {
	// OnProgress is invoked for every observation, terminal ones included,
	// before the poller decides its next action.
	OnProgress func(model.Task)

	// MaxAttempts is the number of consecutive unchanged observations (or
	// transient fetch failures) tolerated before giving up.
	MaxAttempts int

	Interval time.Duration
	Logger   *logrus.Logger
}

// Poll queries the task until it reaches a terminal status and returns the
// full terminal task exactly once. Transient fetch failures (network, 5xx)
// consume budget but do not abort; 4xx responses abort immediately. A change
// in progress or message resets the budget. Cancelling ctx stops the poller
// between attempts with no further queries or callbacks.
func Poll(ctx context.Context, fetcher StatusFetcher, taskID string, opts Options) (model.Task, error) {
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	entry := log.WithFields(logrus.Fields{"component": "poller", "task_id": taskID})

	attempts := 0
	lastProgress := -1
	lastMessage := ""

	for {
		if err := ctx.Err(); err != nil {
			return model.Task{}, fmt.Errorf("poll task %s: %w", taskID, err)
		}
		attempts++

		status, err := fetcher.TaskStatus(ctx, taskID)
		if err != nil {
			if !gateway.IsRetryable(err) {
				return model.Task{}, fmt.Errorf("poll task %s: %w", taskID, err)
			}
			if attempts >= maxAttempts {
				return model.Task{}, fmt.Errorf("poll task %s: retries exhausted: %w", taskID, err)
			}
			entry.WithError(err).WithField("attempt", attempts).Warn("status fetch failed, retrying")
			if err := sleep(ctx, interval); err != nil {
				return model.Task{}, fmt.Errorf("poll task %s: %w", taskID, err)
			}
			continue
		}

		// Liveness extension: new progress or a new message means the job is
		// alive, so the stall budget starts over.
		if status.ProgressValue() != lastProgress || status.Message != lastMessage {
			attempts = 0
			lastProgress = status.ProgressValue()
			lastMessage = status.Message
			entry.WithFields(logrus.Fields{
				"progress": lastProgress,
				"message":  lastMessage,
			}).Debug("task progress")
		}

		if opts.OnProgress != nil {
			opts.OnProgress(status)
		}

		switch {
		case status.Status == model.TaskCompleted:
			return status, nil
		case status.Failed():
			msg := status.Message
			if msg == "" {
				msg = "task failed"
			}
			return model.Task{}, &FailedError{TaskID: taskID, Message: msg}
		case attempts >= maxAttempts:
			return model.Task{}, &TimeoutError{
				TaskID:       taskID,
				LastProgress: lastProgress,
				Budget:       time.Duration(maxAttempts) * interval,
			}
		}

		if err := sleep(ctx, interval); err != nil {
			return model.Task{}, fmt.Errorf("poll task %s: %w", taskID, err)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
