package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"delivery-impact-service/models"
)

func TestOperatorVerifyAwardsQuotedCredits(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	task := env.startedTask(t, 7)

	done, err := env.gateway.OperatorVerify(ctx, task.ID, "op-1")
	if err != nil {
		t.Fatalf("operator verify: %v", err)
	}
	if done.Status != models.TaskCompleted {
		t.Fatalf("status = %q, want completed", done.Status)
	}
	if done.CreditsAwarded == nil || *done.CreditsAwarded != 15 {
		t.Fatalf("credits awarded = %v, want 15", done.CreditsAwarded)
	}
	if done.CompletedAt == nil || done.VerifiedAt == nil {
		t.Fatalf("completion timestamps not set: %+v", done)
	}
	if done.AwardedBy != "op-1" || done.VerificationPath != models.PathOperator {
		t.Fatalf("awarded by (%q, %q), want (op-1, operator)", done.AwardedBy, done.VerificationPath)
	}

	if _, err := env.gateway.OperatorVerify(ctx, task.ID, "op-1"); !errors.Is(err, ErrAlreadyConfirmed) {
		t.Fatalf("second verify err = %v, want ErrAlreadyConfirmed", err)
	}
	entries, _ := env.ledger.Entries(ctx, "vol-1")
	if len(entries) != 1 || entries[0].Amount != 15 {
		t.Fatalf("entries = %+v, want one entry of 15", entries)
	}

	v := env.volunteer(t, "vol-1")
	if v.Credits != 15 || v.CompletedRides != 1 || v.ActiveRides != 0 || v.TotalDistance != 7 {
		t.Fatalf("volunteer = %+v, want credits 15, completed 1, active 0, distance 7", v)
	}
	if d := env.donation(t, "don-1"); d.DeliveryStatus != models.DeliveryDelivered {
		t.Fatalf("delivery status = %q, want delivered", d.DeliveryStatus)
	}

	snap, err := env.impact.GetSnapshot(ctx, "donor-1")
	if err != nil {
		t.Fatalf("donor snapshot: %v", err)
	}
	if snap.CompletedDonations != 1 {
		t.Fatalf("completed donations = %d, want 1", snap.CompletedDonations)
	}
}

func TestRecipientConfirmAwardsFlatBonus(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	task := env.startedTask(t, 12)
	if task.CreditsQuoted != 25 {
		t.Fatalf("credits quoted = %d, want 25", task.CreditsQuoted)
	}

	done, err := env.gateway.RecipientConfirm(ctx, task.ID, "rec-1")
	if err != nil {
		t.Fatalf("recipient confirm: %v", err)
	}
	if *done.CreditsAwarded != RecipientConfirmCredits {
		t.Fatalf("credits awarded = %d, want %d", *done.CreditsAwarded, RecipientConfirmCredits)
	}
	if balance, _ := env.ledger.Balance(ctx, "vol-1"); balance != RecipientConfirmCredits {
		t.Fatalf("balance = %d, want %d", balance, RecipientConfirmCredits)
	}
	if _, err := env.gateway.OperatorVerify(ctx, task.ID, "op-1"); !errors.Is(err, ErrAlreadyConfirmed) {
		t.Fatalf("operator after recipient err = %v, want ErrAlreadyConfirmed", err)
	}
}

func TestRecipientConfirmRejectsOtherUser(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	task := env.startedTask(t, 3)

	if _, err := env.gateway.RecipientConfirm(ctx, task.ID, "intruder"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}

	got, err := env.orchestrator.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.TaskInProgress || got.CreditsAwarded != nil {
		t.Fatalf("task changed after rejected confirm: %+v", got)
	}
	if entries, _ := env.ledger.Entries(ctx, "vol-1"); len(entries) != 0 {
		t.Fatalf("entries = %d, want 0", len(entries))
	}
	if d := env.donation(t, "don-1"); d.DeliveryStatus != models.DeliveryInTransit {
		t.Fatalf("delivery status = %q, want in_transit", d.DeliveryStatus)
	}
}

func TestVerifyRequiresStartedTask(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seedVolunteer(t, "vol-1", true)
	env.seedDonations(t,
		models.Donation{ID: "don-a", DonorID: "donor-1", RecipientID: "rec-1"},
		models.Donation{ID: "don-b", DonorID: "donor-1", RecipientID: "rec-1"},
	)

	assigned, err := env.orchestrator.Assign(ctx, AssignRequest{VolunteerID: "vol-1", DonationID: "don-a", DistanceKm: 1})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := env.gateway.OperatorVerify(ctx, assigned.ID, "op-1"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("verify assigned err = %v, want ErrInvalidState", err)
	}

	other, err := env.orchestrator.Assign(ctx, AssignRequest{VolunteerID: "vol-1", DonationID: "don-b", DistanceKm: 1})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := env.orchestrator.Cancel(ctx, other.ID, "no show"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := env.gateway.RecipientConfirm(ctx, other.ID, "rec-1"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("confirm cancelled err = %v, want ErrInvalidState", err)
	}
	if _, err := env.gateway.OperatorVerify(ctx, "missing", "op-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("verify missing err = %v, want ErrNotFound", err)
	}
}

func TestConcurrentConfirmationAwardsOnce(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	task := env.startedTask(t, 8)
	if _, err := env.orchestrator.RequestCompletion(ctx, task.ID, "vol-1", ""); err != nil {
		t.Fatalf("request completion: %v", err)
	}

	const callers = 40
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		others    []error
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = env.gateway.OperatorVerify(ctx, task.ID, "op-1")
			} else {
				_, err = env.gateway.RecipientConfirm(ctx, task.ID, "rec-1")
			}
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			others = append(others, err)
		}(i)
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("successful confirmations = %d, want 1", successes)
	}
	for _, err := range others {
		if !errors.Is(err, ErrAlreadyConfirmed) {
			t.Fatalf("losing confirmation err = %v, want ErrAlreadyConfirmed", err)
		}
	}

	entries, _ := env.ledger.Entries(ctx, "vol-1")
	if len(entries) != 1 {
		t.Fatalf("ledger entries = %d, want 1", len(entries))
	}
	got, _ := env.orchestrator.Get(ctx, task.ID)
	if got.CreditsAwarded == nil || *got.CreditsAwarded != entries[0].Amount {
		t.Fatalf("credits awarded = %v, want %d", got.CreditsAwarded, entries[0].Amount)
	}
	if v := env.volunteer(t, "vol-1"); v.Credits != entries[0].Amount || v.CompletedRides != 1 {
		t.Fatalf("volunteer = %+v, want credits %d and one completed ride", v, entries[0].Amount)
	}
}
