// Package storage persists delivery tasks, the credit ledger, volunteer counters,
// the donation mirror, impact snapshots and held awards.
package storage

import (
	"context"
	"errors"

	"delivery-impact-service/models"
)

var (
	ErrNotFound  = errors.New("storage: record not found")
	ErrStale     = errors.New("storage: status changed concurrently")
	ErrDuplicate = errors.New("storage: duplicate record")
)

// RankUpdate carries recomputed ranks for one snapshot.
type RankUpdate struct {
	UserID     string
	GlobalRank int
	LocalRank  int
}

// Repository is the set of reads and writes the core needs.
type Repository interface {
	CreateTask(ctx context.Context, task *models.DeliveryTask) error
	GetTask(ctx context.Context, id string) (*models.DeliveryTask, error)
	// UpdateTask is a compare-and-set on the task status. It returns ErrStale,
	// together with the current task, when the status is not one of from or
	// when another writer changed it between read and write.
	UpdateTask(ctx context.Context, id string, from []models.TaskStatus, apply func(*models.DeliveryTask) error) (*models.DeliveryTask, error)
	CompletedTasksWithoutEntry(ctx context.Context) ([]models.DeliveryTask, error)

	// InsertLedgerEntry returns ErrDuplicate when the task already has an entry.
	InsertLedgerEntry(ctx context.Context, entry *models.CreditLedgerEntry) error
	LedgerEntryForTask(ctx context.Context, taskID string) (*models.CreditLedgerEntry, error)
	LedgerEntries(ctx context.Context, volunteerID string) ([]models.CreditLedgerEntry, error)

	GetVolunteer(ctx context.Context, userID string) (*models.VolunteerProfile, error)
	// UpsertVolunteer writes roster fields only (IsActive, AvgRating); counters are untouched.
	UpsertVolunteer(ctx context.Context, v *models.VolunteerProfile) error
	ApplyVolunteerDelta(ctx context.Context, userID string, delta models.VolunteerDelta) error

	GetDonation(ctx context.Context, id string) (*models.Donation, error)
	// UpsertDonations never overwrites DeliveryStatus or AssignedVolunteerID.
	UpsertDonations(ctx context.Context, donations []models.Donation) error
	DonationsByDonor(ctx context.Context, donorID string) ([]models.Donation, error)
	SetDonationDelivery(ctx context.Context, donationID, status, volunteerID string) error

	SaveSnapshot(ctx context.Context, snap *models.ImpactSnapshot) error
	GetSnapshot(ctx context.Context, userID string) (*models.ImpactSnapshot, error)
	ListSnapshots(ctx context.Context) ([]models.ImpactSnapshot, error)
	UpdateRanks(ctx context.Context, ranks []RankUpdate) error

	ListAwards(ctx context.Context, userID string) ([]models.UserAward, error)
	// InsertAward returns ErrDuplicate when the user already holds the code.
	InsertAward(ctx context.Context, award *models.UserAward) error
}

// Store is a Repository that can run a function as one atomic unit.
type Store interface {
	Repository
	InTx(ctx context.Context, fn func(repo Repository) error) error
}

func statusIn(s models.TaskStatus, from []models.TaskStatus) bool {
	for _, f := range from {
		if s == f {
			return true
		}
	}
	return false
}
