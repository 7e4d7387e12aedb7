package orchestration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/Gresham24/invite-ai/internal/invite"
	"github.com/Gresham24/invite-ai/internal/models"
)

const (
	// RetentionScheduleID identifies the daily retention schedule.
	RetentionScheduleID = "invite-retention"
	// RetentionBatch is how many expired invites one listing activity returns.
	RetentionBatch = 100
)

// Cleaner is the part of the invite service retention needs
type Cleaner interface {
	ExpiredIDs(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
	Expire(ctx context.Context, id string) error
}

// Activities run the side effects of the retention workflow
type Activities struct {
	cleaner Cleaner
}

func NewActivities(cleaner Cleaner) *Activities {
	return &Activities{cleaner: cleaner}
}

// ListExpired returns ids of active invites created before cutoff.
func (a *Activities) ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	return a.cleaner.ExpiredIDs(ctx, cutoff, limit)
}

// ExpireInvite removes one invite. It reports false when the invite was
// already gone.
func (a *Activities) ExpireInvite(ctx context.Context, id string) (bool, error) {
	err := a.cleaner.Expire(ctx, id)
	if errors.Is(err, invite.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// RetentionWorkflow soft-deletes every invite older than params.DaysOld days
// together with its images and reports what it did. Invites that fail are
// recorded and skipped so one bad record cannot stall the pass.
func RetentionWorkflow(ctx workflow.Context, params models.RetentionParams) (*models.CleanupReport, error) {
	if params.DaysOld <= 0 {
		return nil, temporal.NewNonRetryableApplicationError("days_old must be positive", "InvalidParams", nil)
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2,
			MaximumAttempts:    3,
		},
	})
	logger := workflow.GetLogger(ctx)

	cutoff := invite.Cutoff(workflow.Now(ctx), params.DaysOld)
	report := &models.CleanupReport{}
	failed := map[string]bool{}

	var a *Activities
	for {
		limit := RetentionBatch + len(failed)
		var ids []string
		if err := workflow.ExecuteActivity(ctx, a.ListExpired, cutoff, limit).Get(ctx, &ids); err != nil {
			return report, fmt.Errorf("list expired invites: %w", err)
		}

		futures := make([]workflow.Future, 0, len(ids))
		pending := make([]string, 0, len(ids))
		for _, id := range ids {
			if failed[id] {
				continue
			}
			futures = append(futures, workflow.ExecuteActivity(ctx, a.ExpireInvite, id))
			pending = append(pending, id)
		}

		progressed := false
		for i, f := range futures {
			report.Processed++
			var deleted bool
			if err := f.Get(ctx, &deleted); err != nil {
				failed[pending[i]] = true
				report.Errors = append(report.Errors, models.CleanupError{InviteID: pending[i], Error: err.Error()})
				continue
			}
			if deleted {
				report.Deleted++
				progressed = true
			}
		}

		if !progressed || len(ids) < limit {
			break
		}
	}

	logger.Info("Retention pass finished",
		"cutoff", cutoff,
		"processed", report.Processed,
		"deleted", report.Deleted,
		"errors", len(report.Errors),
	)
	return report, nil
}

// NewWorker registers the retention workflow and activities on taskQueue.
func NewWorker(c client.Client, taskQueue string, acts *Activities) worker.Worker {
	w := worker.New(c, taskQueue, worker.Options{})
	w.RegisterWorkflow(RetentionWorkflow)
	w.RegisterActivity(acts)
	return w
}

// RunRetention starts one retention workflow and waits for its report.
func RunRetention(ctx context.Context, c client.Client, taskQueue string, daysOld int) (*models.CleanupReport, error) {
	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        fmt.Sprintf("%s-%d", RetentionScheduleID, time.Now().Unix()),
		TaskQueue: taskQueue,
	}, RetentionWorkflow, models.RetentionParams{DaysOld: daysOld})
	if err != nil {
		return nil, fmt.Errorf("start retention workflow: %w", err)
	}

	var report models.CleanupReport
	if err := run.Get(ctx, &report); err != nil {
		return nil, fmt.Errorf("retention workflow %s: %w", run.GetID(), err)
	}
	return &report, nil
}

// EnsureSchedule creates the daily retention schedule unless it exists.
func EnsureSchedule(ctx context.Context, c client.Client, taskQueue string, daysOld int) error {
	_, err := c.ScheduleClient().Create(ctx, client.ScheduleOptions{
		ID: RetentionScheduleID,
		Spec: client.ScheduleSpec{
			Intervals: []client.ScheduleIntervalSpec{{Every: 24 * time.Hour}},
		},
		Action: &client.ScheduleWorkflowAction{
			ID:        RetentionScheduleID + "-run",
			Workflow:  RetentionWorkflow,
			Args:      []interface{}{models.RetentionParams{DaysOld: daysOld}},
			TaskQueue: taskQueue,
		},
	})
	if errors.Is(err, temporal.ErrScheduleAlreadyRunning) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create retention schedule: %w", err)
	}
	return nil
}
