package services

import (
	"context"
	"errors"
	"time"

	"delivery-impact-service/models"
	"delivery-impact-service/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Tier returns the credits quoted for a delivery of distanceKm:
// under 5 km pays 10, 5 to 10 km inclusive pays 15, beyond 10 km pays 25.
func Tier(distanceKm float64) int {
	switch {
	case distanceKm < 5:
		return 10
	case distanceKm <= 10:
		return 15
	default:
		return 25
	}
}

// AwardRequest describes one credit award for a completed task.
type AwardRequest struct {
	TaskID      string
	VolunteerID string
	Amount      int
	AwardedBy   string
	Path        models.VerificationPath
	DistanceKm  float64
}

// CreditLedger records credits at most once per task and keeps the
// volunteer's counters in step with the entries.
type CreditLedger struct {
	Store  storage.Store
	Log    *zap.Logger
	Events *Emitter

	clock func() time.Time
	newID func() string
}

func NewCreditLedger(store storage.Store, log *zap.Logger, events *Emitter) *CreditLedger {
	return &CreditLedger{
		Store:  store,
		Log:    log,
		Events: events,
		clock:  time.Now,
		newID:  uuid.NewString,
	}
}

// Award appends the ledger entry and applies the counter deltas through repo,
// so it joins whatever transaction the caller is running. A second award for
// the same task fails with ErrAlreadyAwarded.
func (l *CreditLedger) Award(ctx context.Context, repo storage.Repository, req AwardRequest) (*models.CreditLedgerEntry, error) {
	const op = "credit_ledger.award"

	if _, err := repo.LedgerEntryForTask(ctx, req.TaskID); err == nil {
		return nil, newError(ErrAlreadyAwarded, op, "task %s already has a ledger entry", req.TaskID)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, storeError(op, err)
	}

	entry := &models.CreditLedgerEntry{
		ID:          l.newID(),
		VolunteerID: req.VolunteerID,
		TaskID:      req.TaskID,
		Amount:      req.Amount,
		AwardedBy:   req.AwardedBy,
		Path:        req.Path,
		AwardedAt:   l.clock().UTC(),
	}
	if err := repo.InsertLedgerEntry(ctx, entry); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, newError(ErrAlreadyAwarded, op, "task %s already has a ledger entry", req.TaskID)
		}
		return nil, storeError(op, err)
	}

	err := repo.ApplyVolunteerDelta(ctx, req.VolunteerID, models.VolunteerDelta{
		Credits:        req.Amount,
		CompletedRides: 1,
		ActiveRides:    -1,
		TotalDistance:  req.DistanceKm,
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, newError(ErrNotFound, op, "volunteer %s", req.VolunteerID)
		}
		return nil, storeError(op, err)
	}
	return entry, nil
}

// Balance is the volunteer's running credit total.
func (l *CreditLedger) Balance(ctx context.Context, volunteerID string) (int, error) {
	v, err := l.Store.GetVolunteer(ctx, volunteerID)
	if err != nil {
		return 0, storeError("credit_ledger.balance", err)
	}
	return v.Credits, nil
}

func (l *CreditLedger) Entries(ctx context.Context, volunteerID string) ([]models.CreditLedgerEntry, error) {
	entries, err := l.Store.LedgerEntries(ctx, volunteerID)
	if err != nil {
		return nil, storeError("credit_ledger.entries", err)
	}
	return entries, nil
}

// Reconcile re-drives the award for completed tasks that have no ledger
// entry, using the amount already fixed on the task. It returns how many
// entries were written.
func (l *CreditLedger) Reconcile(ctx context.Context) (int, error) {
	tasks, err := l.Store.CompletedTasksWithoutEntry(ctx)
	if err != nil {
		return 0, storeError("credit_ledger.reconcile", err)
	}

	written := 0
	for _, task := range tasks {
		if task.CreditsAwarded == nil {
			l.Log.Warn("completed task has no awarded amount", zap.String("task_id", task.ID))
			continue
		}
		req := AwardRequest{
			TaskID:      task.ID,
			VolunteerID: task.VolunteerID,
			Amount:      *task.CreditsAwarded,
			AwardedBy:   task.AwardedBy,
			Path:        task.VerificationPath,
			DistanceKm:  task.DistanceKm,
		}
		var entry *models.CreditLedgerEntry
		err := l.Store.InTx(ctx, func(repo storage.Repository) error {
			var err error
			entry, err = l.Award(ctx, repo, req)
			return err
		})
		if errors.Is(err, ErrAlreadyAwarded) {
			continue
		}
		if err != nil {
			l.Log.Error("ledger reconcile failed", zap.String("task_id", task.ID), zap.Error(err))
			continue
		}
		written++
		l.Log.Info("ledger entry re-driven",
			zap.String("task_id", task.ID), zap.Int("amount", entry.Amount))
		l.Events.Emit(ctx, creditsAwardedEvent(entry))
	}
	return written, nil
}

func creditsAwardedEvent(entry *models.CreditLedgerEntry) models.DomainEvent {
	return models.DomainEvent{
		Type:   models.EventCreditsAwarded,
		UserID: entry.VolunteerID,
		TaskID: entry.TaskID,
		Key:    "credits:" + entry.TaskID,
		Payload: map[string]any{
			"amount": entry.Amount,
			"path":   entry.Path,
		},
		OccurredAt: entry.AwardedAt,
	}
}
