package services

import (
	"context"
	"errors"
	"time"

	"delivery-impact-service/models"
	"delivery-impact-service/storage"

	"go.uber.org/zap"
)

// RecipientConfirmCredits is the flat amount awarded when the recipient closes
// a delivery. It differs from the tiered quote the operator path awards; the
// two amounts are kept apart on purpose until the business owner picks one.
const RecipientConfirmCredits = 5

// ImpactNotifier is told when a user's donation set changed.
type ImpactNotifier interface {
	Notify(ctx context.Context, userID string)
}

// VerificationGateway is the pair of entry points that complete a delivery.
// Both funnel into complete, so the status compare-and-set, the ledger award
// and the donation update commit together or not at all.
type VerificationGateway struct {
	Store  storage.Store
	Ledger *CreditLedger
	Impact ImpactNotifier
	Events *Emitter
	Log    *zap.Logger

	clock func() time.Time
}

func NewVerificationGateway(store storage.Store, ledger *CreditLedger, impact ImpactNotifier, events *Emitter, log *zap.Logger) *VerificationGateway {
	return &VerificationGateway{
		Store:  store,
		Ledger: ledger,
		Impact: impact,
		Events: events,
		Log:    log,
		clock:  time.Now,
	}
}

// OperatorVerify completes the task and awards the credits quoted at assignment.
func (g *VerificationGateway) OperatorVerify(ctx context.Context, taskID, operatorID string) (*models.DeliveryTask, error) {
	return g.complete(ctx, "verification.operator_verify", taskID, operatorID, models.PathOperator)
}

// RecipientConfirm completes the task for its recorded recipient and awards
// RecipientConfirmCredits.
func (g *VerificationGateway) RecipientConfirm(ctx context.Context, taskID, recipientID string) (*models.DeliveryTask, error) {
	return g.complete(ctx, "verification.recipient_confirm", taskID, recipientID, models.PathRecipient)
}

func (g *VerificationGateway) complete(ctx context.Context, op, taskID, actorID string, path models.VerificationPath) (*models.DeliveryTask, error) {
	if actorID == "" {
		return nil, newError(ErrInvalidInput, op, "actor is required")
	}

	now := g.clock().UTC()
	var (
		task  *models.DeliveryTask
		entry *models.CreditLedgerEntry
	)
	err := g.Store.InTx(ctx, func(repo storage.Repository) error {
		updated, err := repo.UpdateTask(ctx, taskID,
			[]models.TaskStatus{models.TaskInProgress, models.TaskPendingVerification},
			func(t *models.DeliveryTask) error {
				if path == models.PathRecipient && t.RecipientID != actorID {
					return newError(ErrUnauthorized, op, "caller %s is not the task recipient", actorID)
				}
				amount := t.CreditsQuoted
				if path == models.PathRecipient {
					amount = RecipientConfirmCredits
				}
				t.Status = models.TaskCompleted
				t.CreditsAwarded = &amount
				t.AwardedBy = actorID
				t.VerificationPath = path
				t.CompletedAt = &now
				t.VerifiedAt = &now
				return nil
			})
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return newError(ErrNotFound, op, "task %s", taskID)
		case errors.Is(err, storage.ErrStale):
			if path == models.PathRecipient && updated.RecipientID != actorID {
				return newError(ErrUnauthorized, op, "caller %s is not the task recipient", actorID)
			}
			if updated.Status == models.TaskCompleted {
				return newError(ErrAlreadyConfirmed, op, "task %s was already completed", taskID)
			}
			return newError(ErrInvalidState, op, "task %s is %s", taskID, updated.Status)
		case err != nil:
			return storeError(op, err)
		}

		entry, err = g.Ledger.Award(ctx, repo, AwardRequest{
			TaskID:      updated.ID,
			VolunteerID: updated.VolunteerID,
			Amount:      *updated.CreditsAwarded,
			AwardedBy:   actorID,
			Path:        path,
			DistanceKm:  updated.DistanceKm,
		})
		if err != nil {
			return err
		}
		if err := repo.SetDonationDelivery(ctx, updated.DonationID, models.DeliveryDelivered, updated.VolunteerID); err != nil {
			return storeError(op, err)
		}
		task = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	g.Log.Info("delivery completed",
		zap.String("task_id", task.ID),
		zap.String("path", string(path)),
		zap.String("awarded_by", actorID),
		zap.Int("credits", entry.Amount))

	events := append(taskStateEvents(task, now), creditsAwardedEvent(entry))
	g.Events.Emit(ctx, events...)
	if g.Impact != nil {
		g.Impact.Notify(ctx, task.DonorID)
	}
	return task, nil
}
