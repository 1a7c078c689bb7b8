package services

import (
	"context"
	"errors"
	"testing"

	"delivery-impact-service/models"
	"delivery-impact-service/storage"
)

func TestTier(t *testing.T) {
	tests := []struct {
		km   float64
		want int
	}{
		{0, 10},
		{3, 10},
		{4.99, 10},
		{5, 15},
		{7, 15},
		{10, 15},
		{10.01, 25},
		{12, 25},
	}
	for _, tt := range tests {
		if got := Tier(tt.km); got != tt.want {
			t.Fatalf("Tier(%v) = %d, want %d", tt.km, got, tt.want)
		}
	}
}

func TestAwardRejectsSecondAwardForTask(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seedVolunteer(t, "vol-1", true)
	if err := env.store.ApplyVolunteerDelta(ctx, "vol-1", models.VolunteerDelta{TotalRides: 1, ActiveRides: 1}); err != nil {
		t.Fatalf("seed rides: %v", err)
	}

	award := func(amount int) error {
		return env.store.InTx(ctx, func(repo storage.Repository) error {
			_, err := env.ledger.Award(ctx, repo, AwardRequest{
				TaskID: "task-1", VolunteerID: "vol-1", Amount: amount,
				AwardedBy: "op-1", Path: models.PathOperator, DistanceKm: 3,
			})
			return err
		})
	}
	if err := award(10); err != nil {
		t.Fatalf("first award: %v", err)
	}
	if err := award(25); !errors.Is(err, ErrAlreadyAwarded) {
		t.Fatalf("second award err = %v, want ErrAlreadyAwarded", err)
	}

	balance, err := env.ledger.Balance(ctx, "vol-1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 10 {
		t.Fatalf("balance = %d, want 10", balance)
	}
	entries, err := env.ledger.Entries(ctx, "vol-1")
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}

	v := env.volunteer(t, "vol-1")
	if v.CompletedRides != 1 || v.ActiveRides != 0 || v.TotalDistance != 3 {
		t.Fatalf("volunteer = %+v, want completed 1, active 0, distance 3", v)
	}
}

func TestAwardUnknownVolunteer(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	err := env.store.InTx(ctx, func(repo storage.Repository) error {
		_, err := env.ledger.Award(ctx, repo, AwardRequest{TaskID: "task-1", VolunteerID: "ghost", Amount: 10})
		return err
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := env.store.LedgerEntryForTask(ctx, "task-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("entry survived a failed award: %v", err)
	}
}

func TestReconcileRedrivesMissingEntry(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seedVolunteer(t, "vol-1", true)

	amount := 15
	task := &models.DeliveryTask{
		ID: "task-9", VolunteerID: "vol-1", Status: models.TaskCompleted,
		DistanceKm: 7, CreditsQuoted: 15, CreditsAwarded: &amount,
		AwardedBy: "op-1", VerificationPath: models.PathOperator,
	}
	if err := env.store.CreateTask(ctx, task); err != nil {
		t.Fatalf("create task: %v", err)
	}

	n, err := env.ledger.Reconcile(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if n != 1 {
		t.Fatalf("reconciled = %d, want 1", n)
	}
	if balance, _ := env.ledger.Balance(ctx, "vol-1"); balance != 15 {
		t.Fatalf("balance = %d, want 15", balance)
	}

	n, err = env.ledger.Reconcile(ctx)
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if n != 0 {
		t.Fatalf("second reconcile wrote %d entries, want 0", n)
	}
}
