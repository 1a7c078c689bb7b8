//go:build integration

package storage

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"delivery-impact-service/models"

	"github.com/google/uuid"
)

// Run with: TEST_DATABASE_URL=postgres://... go test -tags integration ./storage/
func openTestPostgres(t *testing.T) *Postgres {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	p, err := OpenPostgres(dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := p.DB().DB(); err == nil {
			sqlDB.Close()
		}
	})
	return p
}

func TestPostgresUpdateTaskCompareAndSet(t *testing.T) {
	ctx := context.Background()
	p := openTestPostgres(t)
	id := uuid.NewString()
	if err := p.CreateTask(ctx, &models.DeliveryTask{
		ID: id, DonationID: uuid.NewString(), DonorID: "donor", RecipientID: "rec",
		VolunteerID: "vol", Status: models.TaskInProgress, DistanceKm: 3, CreditsQuoted: 10,
	}); err != nil {
		t.Fatalf("create task: %v", err)
	}

	const writers = 8
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		won   int
		stale int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := p.InTx(ctx, func(repo Repository) error {
				_, err := repo.UpdateTask(ctx, id, []models.TaskStatus{models.TaskInProgress, models.TaskPendingVerification},
					func(task *models.DeliveryTask) error {
						amount := task.CreditsQuoted
						task.Status = models.TaskCompleted
						task.CreditsAwarded = &amount
						return nil
					})
				return err
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				won++
			case errors.Is(err, ErrStale):
				stale++
			default:
				t.Errorf("update task: %v", err)
			}
		}()
	}
	wg.Wait()

	if won != 1 || stale != writers-1 {
		t.Fatalf("won = %d, stale = %d, want 1 and %d", won, stale, writers-1)
	}
	task, err := p.GetTask(ctx, id)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if task.Status != models.TaskCompleted || task.CreditsAwarded == nil || *task.CreditsAwarded != 10 {
		t.Fatalf("task = %+v, want completed with 10 credits", task)
	}

	current, err := p.UpdateTask(ctx, id, []models.TaskStatus{models.TaskInProgress}, func(*models.DeliveryTask) error { return nil })
	if !errors.Is(err, ErrStale) || current == nil || current.Status != models.TaskCompleted {
		t.Fatalf("stale update = (%v, %v), want completed task and ErrStale", current, err)
	}
}

func TestPostgresLedgerEntryIsUniquePerTask(t *testing.T) {
	ctx := context.Background()
	p := openTestPostgres(t)
	taskID := uuid.NewString()
	entry := func() *models.CreditLedgerEntry {
		return &models.CreditLedgerEntry{
			ID: uuid.NewString(), VolunteerID: "vol", TaskID: taskID, Amount: 10,
			AwardedBy: "op", Path: models.PathOperator, AwardedAt: time.Now().UTC(),
		}
	}

	if err := p.InsertLedgerEntry(ctx, entry()); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := p.InsertLedgerEntry(ctx, entry()); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("second insert err = %v, want ErrDuplicate", err)
	}
}

func TestPostgresAwardIsUniquePerUser(t *testing.T) {
	ctx := context.Background()
	p := openTestPostgres(t)
	userID := "user-" + uuid.NewString()
	award := func() *models.UserAward {
		return &models.UserAward{
			ID: uuid.NewString(), UserID: userID, Code: "first-bite",
			Kind: models.AwardBadge, Name: "First Bite", Points: 10, EarnedAt: time.Now().UTC(),
		}
	}

	if err := p.InsertAward(ctx, award()); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := p.InsertAward(ctx, award()); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("second insert err = %v, want ErrDuplicate", err)
	}
	held, err := p.ListAwards(ctx, userID)
	if err != nil {
		t.Fatalf("list awards: %v", err)
	}
	if len(held) != 1 {
		t.Fatalf("held = %d awards, want 1", len(held))
	}
}

func TestPostgresActiveRidesFloor(t *testing.T) {
	ctx := context.Background()
	p := openTestPostgres(t)
	userID := "vol-" + uuid.NewString()
	if err := p.UpsertVolunteer(ctx, &models.VolunteerProfile{UserID: userID, IsActive: true}); err != nil {
		t.Fatalf("upsert volunteer: %v", err)
	}

	if err := p.ApplyVolunteerDelta(ctx, userID, models.VolunteerDelta{Credits: 5, ActiveRides: -1, TotalDistance: 2.5}); err != nil {
		t.Fatalf("apply delta: %v", err)
	}
	v, err := p.GetVolunteer(ctx, userID)
	if err != nil {
		t.Fatalf("get volunteer: %v", err)
	}
	if v.ActiveRides != 0 || v.Credits != 5 || v.TotalDistance != 2.5 {
		t.Fatalf("volunteer = %+v, want active 0, credits 5, distance 2.5", v)
	}

	if err := p.ApplyVolunteerDelta(ctx, "missing-"+userID, models.VolunteerDelta{Credits: 1}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown volunteer err = %v, want ErrNotFound", err)
	}
}

func TestPostgresInTxRollsBack(t *testing.T) {
	ctx := context.Background()
	p := openTestPostgres(t)
	userID := "vol-" + uuid.NewString()
	if err := p.UpsertVolunteer(ctx, &models.VolunteerProfile{UserID: userID, IsActive: true}); err != nil {
		t.Fatalf("upsert volunteer: %v", err)
	}

	boom := errors.New("boom")
	err := p.InTx(ctx, func(repo Repository) error {
		if err := repo.ApplyVolunteerDelta(ctx, userID, models.VolunteerDelta{Credits: 10}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx error = %v, want %v", err, boom)
	}
	v, err := p.GetVolunteer(ctx, userID)
	if err != nil {
		t.Fatalf("get volunteer: %v", err)
	}
	if v.Credits != 0 {
		t.Fatalf("credits = %d, want 0 after rollback", v.Credits)
	}
}

func TestPostgresUpsertDonationsKeepsDeliveryFields(t *testing.T) {
	ctx := context.Background()
	p := openTestPostgres(t)
	id := "don-" + uuid.NewString()
	d := models.Donation{ID: id, DonorID: "donor", RecipientID: "rec", Category: "produce", Quantity: 2, Unit: "kg", Status: "claimed"}
	if err := p.UpsertDonations(ctx, []models.Donation{d}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := p.SetDonationDelivery(ctx, id, models.DeliveryInTransit, "vol"); err != nil {
		t.Fatalf("set delivery: %v", err)
	}

	d.Quantity = 3
	if err := p.UpsertDonations(ctx, []models.Donation{d}); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	got, err := p.GetDonation(ctx, id)
	if err != nil {
		t.Fatalf("get donation: %v", err)
	}
	if got.Quantity != 3 || got.DeliveryStatus != models.DeliveryInTransit || got.AssignedVolunteerID != "vol" {
		t.Fatalf("donation = %+v, want quantity 3 still in transit with vol", got)
	}
}
