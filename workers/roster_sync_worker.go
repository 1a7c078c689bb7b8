// workers/roster_sync_worker.go
package workers

import (
	"context"
	"time"

	"delivery-impact-service/models"
	"delivery-impact-service/storage"

	"go.uber.org/zap"
)

// PollRoster keeps the volunteer roster flags (active, rating) in step with
// the user profile store. Counters stay owned by this service.
func PollRoster(ctx context.Context, store storage.Store, client *RegistryClient, pollInterval time.Duration, log *zap.Logger) {
	log = log.Named("roster_sync")
	log.Info("starting roster polling", zap.Duration("interval", pollInterval))
	var lastSync time.Time

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if next, err := SyncRoster(ctx, store, client, lastSync, log); err != nil {
			log.Error("roster sync failed", zap.Error(err))
		} else {
			lastSync = next
		}

		select {
		case <-ctx.Done():
			log.Info("roster polling stopped")
			return
		case <-ticker.C:
		}
	}
}

// SyncRoster applies one batch and returns the next cursor. On failure the
// cursor is not advanced.
func SyncRoster(ctx context.Context, store storage.Store, client *RegistryClient, since time.Time, log *zap.Logger) (time.Time, error) {
	volunteers, err := client.ChangedVolunteers(ctx, since)
	if err != nil {
		return since, err
	}
	if len(volunteers) == 0 {
		return since, nil
	}

	latest := since
	err = store.InTx(ctx, func(repo storage.Repository) error {
		for _, v := range volunteers {
			if v.UserID == "" {
				continue
			}
			if err := repo.UpsertVolunteer(ctx, &models.VolunteerProfile{
				UserID:    v.UserID,
				IsActive:  v.IsActive,
				AvgRating: v.AvgRating,
			}); err != nil {
				return err
			}
			if v.UpdatedAt.After(latest) {
				latest = v.UpdatedAt
			}
		}
		return nil
	})
	if err != nil {
		return since, err
	}
	log.Info("roster updated", zap.Int("volunteers", len(volunteers)))
	return latest, nil
}
