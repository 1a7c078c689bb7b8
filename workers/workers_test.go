package workers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"delivery-impact-service/models"
	"delivery-impact-service/storage"

	"go.uber.org/zap/zaptest"
)

type recordingRecomputer struct {
	mu    sync.Mutex
	users []string
}

func (r *recordingRecomputer) RecomputeMany(ctx context.Context, userIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, userIDs...)
	return nil
}

func (r *recordingRecomputer) Notify(ctx context.Context, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, userID)
}

type sinceLog struct {
	mu     sync.Mutex
	values []string
}

func (l *sinceLog) add(v string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.values = append(l.values, v)
}

func (l *sinceLog) at(i int) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.values[i]
}

// registryServer serves a fixed body on path and records the since values it was asked for.
func registryServer(t *testing.T, path string, body any) (*httptest.Server, *sinceLog) {
	t.Helper()
	sinces := &sinceLog{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Service-Token") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path != path {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		sinces.add(r.URL.Query().Get("since"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv, sinces
}

func TestDonationSyncMirrorsAndRecomputes(t *testing.T) {
	ctx := context.Background()
	updated := time.Date(2026, 1, 20, 8, 30, 0, 0, time.UTC)
	srv, sinces := registryServer(t, donationsPath, map[string]any{
		"donations": []RemoteDonation{
			{ID: "d1", DonorID: "donor-1", Category: "produce", Quantity: 5, Unit: "kg", Status: "available", UpdatedAt: updated},
			{ID: "d2", DonorID: "donor-2", RecipientID: "rec-1", Category: "dairy", Quantity: 1, Unit: "kg", Status: "claimed", UpdatedAt: updated.Add(-time.Hour)},
			{ID: "", DonorID: "donor-3"},
		},
	})

	store := storage.NewMemory()
	if err := store.UpsertDonations(ctx, []models.Donation{{ID: "d2", DonorID: "donor-2"}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.SetDonationDelivery(ctx, "d2", models.DeliveryInTransit, "vol-1"); err != nil {
		t.Fatalf("seed delivery: %v", err)
	}

	rec := &recordingRecomputer{}
	client := &RegistryClient{BaseURL: srv.URL, Token: "secret", HTTPClient: srv.Client()}
	w := NewDonationSyncWorker(store, client, rec, time.Minute, zaptest.NewLogger(t))

	if err := w.SyncOnce(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}

	d1, err := store.GetDonation(ctx, "d1")
	if err != nil {
		t.Fatalf("d1 not mirrored: %v", err)
	}
	if d1.Quantity != 5 || d1.Category != "produce" {
		t.Fatalf("d1 = %+v", d1)
	}
	d2, _ := store.GetDonation(ctx, "d2")
	if d2.RecipientID != "rec-1" || d2.DeliveryStatus != models.DeliveryInTransit || d2.AssignedVolunteerID != "vol-1" {
		t.Fatalf("d2 = %+v, want registry fields updated and delivery fields kept", d2)
	}

	sort.Strings(rec.users)
	if len(rec.users) != 2 || rec.users[0] != "donor-1" || rec.users[1] != "donor-2" {
		t.Fatalf("recomputed = %v, want [donor-1 donor-2]", rec.users)
	}

	if err := w.SyncOnce(ctx); err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if got := sinces.at(1); got != updated.Format(time.RFC3339) {
		t.Fatalf("second since = %q, want %q", got, updated.Format(time.RFC3339))
	}
}

func TestDonationSyncKeepsCursorOnFailure(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := &RegistryClient{BaseURL: srv.URL, Token: "secret", HTTPClient: srv.Client()}
	w := NewDonationSyncWorker(storage.NewMemory(), client, &recordingRecomputer{}, time.Minute, zaptest.NewLogger(t))
	if err := w.SyncOnce(ctx); err == nil {
		t.Fatal("sync against failing registry returned nil")
	}
	if !w.cursor.IsZero() {
		t.Fatalf("cursor advanced to %v on failure", w.cursor)
	}
}

func TestSyncRosterUpsertsFlagsOnly(t *testing.T) {
	ctx := context.Background()
	updated := time.Date(2026, 1, 21, 9, 0, 0, 0, time.UTC)
	srv, _ := registryServer(t, volunteersPath, map[string]any{
		"volunteers": []RemoteVolunteer{
			{UserID: "vol-1", IsActive: true, AvgRating: 4.5, UpdatedAt: updated},
			{UserID: "vol-2", IsActive: false, AvgRating: 3, UpdatedAt: updated.Add(-time.Hour)},
		},
	})

	store := storage.NewMemory()
	if err := store.UpsertVolunteer(ctx, &models.VolunteerProfile{UserID: "vol-1"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.ApplyVolunteerDelta(ctx, "vol-1", models.VolunteerDelta{Credits: 40, CompletedRides: 3}); err != nil {
		t.Fatalf("seed counters: %v", err)
	}

	client := &RegistryClient{BaseURL: srv.URL, Token: "secret", HTTPClient: srv.Client()}
	next, err := SyncRoster(ctx, store, client, time.Time{}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("sync roster: %v", err)
	}
	if !next.Equal(updated) {
		t.Fatalf("cursor = %v, want %v", next, updated)
	}

	v1, _ := store.GetVolunteer(ctx, "vol-1")
	if !v1.IsActive || v1.AvgRating != 4.5 || v1.Credits != 40 || v1.CompletedRides != 3 {
		t.Fatalf("vol-1 = %+v, want flags synced and counters kept", v1)
	}
	v2, err := store.GetVolunteer(ctx, "vol-2")
	if err != nil {
		t.Fatalf("vol-2 not created: %v", err)
	}
	if v2.IsActive {
		t.Fatal("vol-2 active, want inactive")
	}
}

func TestDonationChangeListenerHandle(t *testing.T) {
	rec := &recordingRecomputer{}
	l := &DonationChangeListener{Impact: rec, Log: zaptest.NewLogger(t)}

	l.handle(context.Background(), `{"donor_id":"donor-1","donor_ids":["donor-2","donor-1",""]}`)
	l.handle(context.Background(), `not json`)

	if len(rec.users) != 2 || rec.users[0] != "donor-1" || rec.users[1] != "donor-2" {
		t.Fatalf("notified = %v, want [donor-1 donor-2]", rec.users)
	}
}
