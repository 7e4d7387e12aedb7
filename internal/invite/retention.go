package invite

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Gresham24/invite-ai/internal/eventbus"
	"github.com/Gresham24/invite-ai/internal/metrics"
	"github.com/Gresham24/invite-ai/internal/models"
)

// DefaultCleanupBatch is how many expired invites one listing returns.
const DefaultCleanupBatch = 100

// Cutoff is the creation time before which invites expire.
func Cutoff(now time.Time, daysOld int) time.Time {
	return now.Add(-time.Duration(daysOld) * 24 * time.Hour)
}

// ExpiredIDs lists active invites created before cutoff, oldest first.
func (s *Service) ExpiredIDs(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	invites, err := s.store.ListExpired(ctx, cutoff, limit)
	if err != nil {
		return nil, persistenceError("list expired", err)
	}
	ids := make([]string, len(invites))
	for i, inv := range invites {
		ids[i] = inv.ID
	}
	return ids, nil
}

// Expire removes one invite as part of retention.
func (s *Service) Expire(ctx context.Context, id string) error {
	if err := s.expire(ctx, id); err != nil {
		metrics.CleanupInvites.WithLabelValues("error").Inc()
		return err
	}
	metrics.CleanupInvites.WithLabelValues("deleted").Inc()
	s.publishEvent(ctx, eventbus.NewEvent(eventbus.SubjectExpired, id, nil))
	return nil
}

// Cleanup soft-deletes every invite older than daysOld days and removes its
// images. Failures are collected per invite and do not stop the pass.
func (s *Service) Cleanup(ctx context.Context, daysOld int, now time.Time) (*models.CleanupReport, error) {
	cutoff := Cutoff(now, daysOld)
	report := &models.CleanupReport{}
	failed := map[string]bool{}

	for {
		// Failed invites are still active and come back in every listing.
		limit := DefaultCleanupBatch + len(failed)
		ids, err := s.ExpiredIDs(ctx, cutoff, limit)
		if err != nil {
			return report, err
		}

		progressed := false
		for _, id := range ids {
			if failed[id] {
				continue
			}
			report.Processed++
			if err := s.Expire(ctx, id); err != nil {
				if errors.Is(err, ErrNotFound) {
					continue
				}
				failed[id] = true
				report.Errors = append(report.Errors, models.CleanupError{InviteID: id, Error: err.Error()})
				continue
			}
			report.Deleted++
			progressed = true
		}

		if !progressed || len(ids) < limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
	}

	s.logger.Info("Retention cleanup finished",
		zap.Time("cutoff", cutoff),
		zap.Int("processed", report.Processed),
		zap.Int("deleted", report.Deleted),
		zap.Int("errors", len(report.Errors)),
	)
	return report, nil
}
