package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"delivery-impact-service/models"
	"delivery-impact-service/storage"

	"go.uber.org/zap/zaptest"
)

var fixedTime = time.Date(2026, 1, 23, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedTime }

func sequentialIDs(prefix string) func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("%s-%d", prefix, n.Add(1))
	}
}

type testEnv struct {
	store        *storage.Memory
	hub          *EventHub
	ledger       *CreditLedger
	orchestrator *DeliveryOrchestrator
	gateway      *VerificationGateway
	impact       *ImpactAggregator
	gamification *GamificationEngine
	ranking      *RankingService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := zaptest.NewLogger(t)
	store := storage.NewMemory()
	hub := NewEventHub(log)
	events := &Emitter{Publisher: hub, Deduper: NewMemoryDeduper(time.Hour), Log: log}

	ledger := NewCreditLedger(store, log, events)
	ledger.clock, ledger.newID = fixedClock, sequentialIDs("entry")

	orchestrator := NewDeliveryOrchestrator(store, StaticDistanceProvider{Default: 3}, events, log)
	orchestrator.clock, orchestrator.newID = fixedClock, sequentialIDs("task")

	gamification := NewGamificationEngine(store, log)
	gamification.clock, gamification.newID = fixedClock, sequentialIDs("award")

	ranking := NewRankingService(store, nil, log)
	ranking.clock = fixedClock

	impact := NewImpactAggregator(store, gamification, ranking, events, log)
	impact.clock = fixedClock

	gateway := NewVerificationGateway(store, ledger, impact, events, log)
	gateway.clock = fixedClock

	return &testEnv{
		store:        store,
		hub:          hub,
		ledger:       ledger,
		orchestrator: orchestrator,
		gateway:      gateway,
		impact:       impact,
		gamification: gamification,
		ranking:      ranking,
	}
}

func (e *testEnv) seedVolunteer(t *testing.T, id string, active bool) {
	t.Helper()
	if err := e.store.UpsertVolunteer(context.Background(), &models.VolunteerProfile{UserID: id, IsActive: active}); err != nil {
		t.Fatalf("seed volunteer %s: %v", id, err)
	}
}

func (e *testEnv) seedDonations(t *testing.T, donations ...models.Donation) {
	t.Helper()
	if err := e.store.UpsertDonations(context.Background(), donations); err != nil {
		t.Fatalf("seed donations: %v", err)
	}
}

func (e *testEnv) volunteer(t *testing.T, id string) *models.VolunteerProfile {
	t.Helper()
	v, err := e.store.GetVolunteer(context.Background(), id)
	if err != nil {
		t.Fatalf("get volunteer %s: %v", id, err)
	}
	return v
}

func (e *testEnv) donation(t *testing.T, id string) *models.Donation {
	t.Helper()
	d, err := e.store.GetDonation(context.Background(), id)
	if err != nil {
		t.Fatalf("get donation %s: %v", id, err)
	}
	return d
}

// startedTask seeds an active volunteer and a claimed donation, then assigns
// and starts a delivery of distanceKm.
func (e *testEnv) startedTask(t *testing.T, distanceKm float64) *models.DeliveryTask {
	t.Helper()
	ctx := context.Background()
	e.seedVolunteer(t, "vol-1", true)
	e.seedDonations(t, models.Donation{
		ID: "don-1", DonorID: "donor-1", RecipientID: "rec-1",
		Category: "produce", Quantity: 5, Unit: "kg", Status: "claimed",
	})
	task, err := e.orchestrator.Assign(ctx, AssignRequest{VolunteerID: "vol-1", DonationID: "don-1", DistanceKm: distanceKm})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	task, err = e.orchestrator.Start(ctx, task.ID, "vol-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return task
}
