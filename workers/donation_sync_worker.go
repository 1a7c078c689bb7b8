// workers/donation_sync_worker.go
package workers

import (
	"context"
	"time"

	"delivery-impact-service/models"
	"delivery-impact-service/storage"

	"go.uber.org/zap"
)

// Recomputer rebuilds impact snapshots for a set of users.
type Recomputer interface {
	RecomputeMany(ctx context.Context, userIDs []string) error
}

// DonationSyncWorker mirrors donation registry changes into the local store
// and recomputes every donor whose donations changed.
type DonationSyncWorker struct {
	store    storage.Store
	client   *RegistryClient
	impact   Recomputer
	interval time.Duration
	log      *zap.Logger

	cursor time.Time
}

func NewDonationSyncWorker(store storage.Store, client *RegistryClient, impact Recomputer, interval time.Duration, log *zap.Logger) *DonationSyncWorker {
	return &DonationSyncWorker{
		store:    store,
		client:   client,
		impact:   impact,
		interval: interval,
		log:      log.Named("donation_sync"),
	}
}

func (w *DonationSyncWorker) Start(ctx context.Context) {
	w.log.Info("starting donation sync worker", zap.Duration("interval", w.interval))
	go w.run(ctx)
}

func (w *DonationSyncWorker) run(ctx context.Context) {
	// Initial sync backfills from the beginning of time.
	if err := w.SyncOnce(ctx); err != nil {
		w.log.Warn("initial donation sync failed", zap.Error(err))
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := w.SyncOnce(ctx); err != nil {
				w.log.Error("donation sync batch failed", zap.Error(err))
			}
		case <-ctx.Done():
			w.log.Info("donation sync worker stopped")
			return
		}
	}
}

// SyncOnce pulls changes since the cursor. The cursor only advances after
// the batch is stored, so a failed batch is fetched again next tick.
func (w *DonationSyncWorker) SyncOnce(ctx context.Context) error {
	remote, err := w.client.ChangedDonations(ctx, w.cursor)
	if err != nil {
		return err
	}
	if len(remote) == 0 {
		w.log.Debug("no donation changes", zap.Time("since", w.cursor))
		return nil
	}

	donations := make([]models.Donation, 0, len(remote))
	var donors []string
	latest := w.cursor
	for _, r := range remote {
		if r.ID == "" || r.DonorID == "" {
			w.log.Warn("skipping donation without id or donor", zap.String("id", r.ID))
			continue
		}
		donations = append(donations, r.toModel())
		donors = append(donors, r.DonorID)
		if r.UpdatedAt.After(latest) {
			latest = r.UpdatedAt
		}
	}

	if err := w.store.UpsertDonations(ctx, donations); err != nil {
		return err
	}
	w.cursor = latest
	w.log.Info("donations mirrored", zap.Int("count", len(donations)), zap.Time("cursor", latest))

	if err := w.impact.RecomputeMany(ctx, donors); err != nil {
		w.log.Error("recompute after sync failed", zap.Error(err))
	}
	return nil
}
