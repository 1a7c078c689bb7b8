package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"delivery-impact-service/models"
	"delivery-impact-service/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AssignRequest binds a volunteer to a claimed donation.
type AssignRequest struct {
	VolunteerID string  `json:"volunteer_id" validate:"required"`
	DonationID  string  `json:"donation_id" validate:"required"`
	DistanceKm  float64 `json:"distance_km" validate:"gte=0"`
}

// DeliveryOrchestrator owns the task state machine up to verification:
//
//	(none)      --assign-->            assigned
//	assigned    --start-->             in_progress
//	in_progress --requestCompletion--> pending_verification
//	assigned, in_progress --cancel-->  cancelled
type DeliveryOrchestrator struct {
	Store    storage.Store
	Distance DistanceProvider
	Events   *Emitter
	Log      *zap.Logger

	clock func() time.Time
	newID func() string
}

func NewDeliveryOrchestrator(store storage.Store, distance DistanceProvider, events *Emitter, log *zap.Logger) *DeliveryOrchestrator {
	return &DeliveryOrchestrator{
		Store:    store,
		Distance: distance,
		Events:   events,
		Log:      log,
		clock:    time.Now,
		newID:    uuid.NewString,
	}
}

func (o *DeliveryOrchestrator) Assign(ctx context.Context, req AssignRequest) (*models.DeliveryTask, error) {
	const op = "delivery.assign"

	if req.VolunteerID == "" || req.DonationID == "" {
		return nil, newError(ErrInvalidInput, op, "volunteer and donation are required")
	}
	if math.IsNaN(req.DistanceKm) || math.IsInf(req.DistanceKm, 0) || req.DistanceKm < 0 {
		return nil, newError(ErrInvalidInput, op, "distance %v is not a valid length", req.DistanceKm)
	}

	now := o.clock().UTC()
	var task models.DeliveryTask
	err := o.Store.InTx(ctx, func(repo storage.Repository) error {
		volunteer, err := repo.GetVolunteer(ctx, req.VolunteerID)
		if errors.Is(err, storage.ErrNotFound) {
			return newError(ErrNotFound, op, "volunteer %s", req.VolunteerID)
		}
		if err != nil {
			return storeError(op, err)
		}
		if !volunteer.IsActive {
			return newError(ErrInvalidState, op, "volunteer %s is not on the active roster", req.VolunteerID)
		}

		donation, err := repo.GetDonation(ctx, req.DonationID)
		if errors.Is(err, storage.ErrNotFound) {
			return newError(ErrNotFound, op, "donation %s", req.DonationID)
		}
		if err != nil {
			return storeError(op, err)
		}
		switch {
		case donation.RecipientID == "":
			return newError(ErrInvalidState, op, "donation %s has not been claimed", donation.ID)
		case donation.Completed():
			return newError(ErrInvalidState, op, "donation %s is already delivered", donation.ID)
		case donation.AssignedVolunteerID != "":
			return newError(ErrInvalidState, op, "donation %s is already linked to a delivery", donation.ID)
		}

		task = models.DeliveryTask{
			ID:            o.newID(),
			DonationID:    donation.ID,
			DonorID:       donation.DonorID,
			RecipientID:   donation.RecipientID,
			VolunteerID:   volunteer.UserID,
			Status:        models.TaskAssigned,
			DistanceKm:    req.DistanceKm,
			CreditsQuoted: Tier(req.DistanceKm),
			AssignedAt:    &now,
		}
		if err := repo.CreateTask(ctx, &task); err != nil {
			return storeError(op, err)
		}
		if err := repo.ApplyVolunteerDelta(ctx, volunteer.UserID, models.VolunteerDelta{TotalRides: 1, ActiveRides: 1}); err != nil {
			return storeError(op, err)
		}
		if err := repo.SetDonationDelivery(ctx, donation.ID, models.DeliveryAssigned, volunteer.UserID); err != nil {
			return storeError(op, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.Log.Info("delivery assigned",
		zap.String("task_id", task.ID),
		zap.String("volunteer_id", task.VolunteerID),
		zap.Float64("distance_km", task.DistanceKm),
		zap.Int("credits_quoted", task.CreditsQuoted))
	o.Events.Emit(ctx, taskStateEvents(&task, now)...)
	return &task, nil
}

// AssignByRoute resolves the distance through the DistanceProvider before assigning.
func (o *DeliveryOrchestrator) AssignByRoute(ctx context.Context, volunteerID, donationID, from, to string) (*models.DeliveryTask, error) {
	km, err := o.Distance.Distance(ctx, from, to)
	if err != nil {
		return nil, &DomainError{Kind: ErrExternalWrite, Op: "delivery.assign_by_route", Message: "distance lookup failed", Err: err}
	}
	return o.Assign(ctx, AssignRequest{VolunteerID: volunteerID, DonationID: donationID, DistanceKm: km})
}

func (o *DeliveryOrchestrator) Start(ctx context.Context, taskID, byVolunteerID string) (*models.DeliveryTask, error) {
	return o.transition(ctx, "delivery.start", taskID,
		[]models.TaskStatus{models.TaskAssigned},
		func(t *models.DeliveryTask, now time.Time) error {
			if t.VolunteerID != byVolunteerID {
				return newError(ErrUnauthorized, "delivery.start", "caller %s is not the task volunteer", byVolunteerID)
			}
			t.Status = models.TaskInProgress
			t.StartedAt = &now
			return nil
		},
		func(repo storage.Repository, t *models.DeliveryTask) error {
			return repo.SetDonationDelivery(ctx, t.DonationID, models.DeliveryInTransit, t.VolunteerID)
		})
}

func (o *DeliveryOrchestrator) RequestCompletion(ctx context.Context, taskID, byVolunteerID, notes string) (*models.DeliveryTask, error) {
	return o.transition(ctx, "delivery.request_completion", taskID,
		[]models.TaskStatus{models.TaskInProgress},
		func(t *models.DeliveryTask, now time.Time) error {
			if t.VolunteerID != byVolunteerID {
				return newError(ErrUnauthorized, "delivery.request_completion", "caller %s is not the task volunteer", byVolunteerID)
			}
			t.Status = models.TaskPendingVerification
			t.CompletionNotes = notes
			return nil
		},
		func(repo storage.Repository, t *models.DeliveryTask) error {
			return repo.SetDonationDelivery(ctx, t.DonationID, models.DeliveryAwaitingConfirmation, t.VolunteerID)
		})
}

// Cancel releases the volunteer's active slot and unlinks the donation so it
// can be assigned again.
func (o *DeliveryOrchestrator) Cancel(ctx context.Context, taskID, reason string) (*models.DeliveryTask, error) {
	return o.transition(ctx, "delivery.cancel", taskID,
		[]models.TaskStatus{models.TaskAssigned, models.TaskInProgress},
		func(t *models.DeliveryTask, now time.Time) error {
			t.Status = models.TaskCancelled
			t.CancelReason = reason
			t.CancelledAt = &now
			return nil
		},
		func(repo storage.Repository, t *models.DeliveryTask) error {
			if err := repo.ApplyVolunteerDelta(ctx, t.VolunteerID, models.VolunteerDelta{ActiveRides: -1}); err != nil {
				return err
			}
			return repo.SetDonationDelivery(ctx, t.DonationID, models.DeliveryNone, "")
		})
}

func (o *DeliveryOrchestrator) Get(ctx context.Context, taskID string) (*models.DeliveryTask, error) {
	task, err := o.Store.GetTask(ctx, taskID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, newError(ErrNotFound, "delivery.get", "task %s", taskID)
	}
	if err != nil {
		return nil, storeError("delivery.get", err)
	}
	return task, nil
}

// transition runs one compare-and-set on the task status plus its side
// effects in a single transaction, then emits the state change.
func (o *DeliveryOrchestrator) transition(
	ctx context.Context,
	op, taskID string,
	from []models.TaskStatus,
	apply func(*models.DeliveryTask, time.Time) error,
	after func(storage.Repository, *models.DeliveryTask) error,
) (*models.DeliveryTask, error) {
	now := o.clock().UTC()
	var task *models.DeliveryTask
	err := o.Store.InTx(ctx, func(repo storage.Repository) error {
		updated, err := repo.UpdateTask(ctx, taskID, from, func(t *models.DeliveryTask) error {
			return apply(t, now)
		})
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return newError(ErrNotFound, op, "task %s", taskID)
		case errors.Is(err, storage.ErrStale):
			return newError(ErrInvalidState, op, "task %s is %s", taskID, updated.Status)
		case err != nil:
			return storeError(op, err)
		}
		if err := after(repo, updated); err != nil {
			return storeError(op, err)
		}
		task = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.Log.Info("delivery transition",
		zap.String("op", op),
		zap.String("task_id", task.ID),
		zap.String("status", string(task.Status)))
	o.Events.Emit(ctx, taskStateEvents(task, now)...)
	return task, nil
}

// taskStateEvents addresses one taskStateChanged to each participant.
func taskStateEvents(t *models.DeliveryTask, at time.Time) []models.DomainEvent {
	payload := map[string]any{
		"task_id":     t.ID,
		"donation_id": t.DonationID,
		"status":      t.Status,
	}
	var out []models.DomainEvent
	seen := map[string]bool{}
	for _, userID := range []string{t.VolunteerID, t.DonorID, t.RecipientID} {
		if userID == "" || seen[userID] {
			continue
		}
		seen[userID] = true
		out = append(out, models.DomainEvent{
			Type:       models.EventTaskStateChanged,
			UserID:     userID,
			TaskID:     t.ID,
			Key:        fmt.Sprintf("task:%s:%s:%s", t.ID, t.Status, userID),
			Payload:    payload,
			OccurredAt: at,
		})
	}
	return out
}
