package storage

import (
	"context"
	"errors"
	"fmt"

	"delivery-impact-service/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Postgres is the gorm-backed Store.
type Postgres struct {
	db *gorm.DB
}

// OpenPostgres connects and runs AutoMigrate for every persisted model.
func OpenPostgres(dsn string) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	p := NewPostgres(db)
	if err := p.Migrate(); err != nil {
		return nil, err
	}
	return p, nil
}

func NewPostgres(db *gorm.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Migrate() error {
	if err := p.db.AutoMigrate(
		&models.DeliveryTask{},
		&models.CreditLedgerEntry{},
		&models.VolunteerProfile{},
		&models.Donation{},
		&models.ImpactSnapshot{},
		&models.UserAward{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// DB exposes the handle for health checks.
func (p *Postgres) DB() *gorm.DB {
	return p.db
}

func (p *Postgres) InTx(ctx context.Context, fn func(repo Repository) error) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Postgres{db: tx})
	})
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (p *Postgres) CreateTask(ctx context.Context, task *models.DeliveryTask) error {
	return p.db.WithContext(ctx).Create(task).Error
}

func (p *Postgres) GetTask(ctx context.Context, id string) (*models.DeliveryTask, error) {
	var task models.DeliveryTask
	if err := p.db.WithContext(ctx).Where("id = ?", id).First(&task).Error; err != nil {
		return nil, notFound(err)
	}
	return &task, nil
}

func (p *Postgres) UpdateTask(ctx context.Context, id string, from []models.TaskStatus, apply func(*models.DeliveryTask) error) (*models.DeliveryTask, error) {
	task, err := p.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if !statusIn(task.Status, from) {
		return task, ErrStale
	}
	prev := task.Status
	if err := apply(task); err != nil {
		return nil, err
	}

	// The status guard in the WHERE clause makes this a compare-and-set:
	// a concurrent writer that got there first leaves zero rows affected.
	res := p.db.WithContext(ctx).Model(&models.DeliveryTask{}).
		Where("id = ? AND status = ?", id, prev).
		Updates(map[string]any{
			"status":            task.Status,
			"credits_awarded":   task.CreditsAwarded,
			"awarded_by":        task.AwardedBy,
			"verification_path": task.VerificationPath,
			"completion_notes":  task.CompletionNotes,
			"cancel_reason":     task.CancelReason,
			"started_at":        task.StartedAt,
			"completed_at":      task.CompletedAt,
			"verified_at":       task.VerifiedAt,
			"cancelled_at":      task.CancelledAt,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		current, err := p.GetTask(ctx, id)
		if err != nil {
			return nil, err
		}
		return current, ErrStale
	}
	return task, nil
}

func (p *Postgres) CompletedTasksWithoutEntry(ctx context.Context) ([]models.DeliveryTask, error) {
	var tasks []models.DeliveryTask
	err := p.db.WithContext(ctx).
		Where("status = ?", models.TaskCompleted).
		Where("NOT EXISTS (SELECT 1 FROM credit_ledger_entries e WHERE e.task_id = delivery_tasks.id)").
		Order("id").
		Find(&tasks).Error
	return tasks, err
}

func (p *Postgres) InsertLedgerEntry(ctx context.Context, entry *models.CreditLedgerEntry) error {
	res := p.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "task_id"}}, DoNothing: true}).
		Create(entry)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDuplicate
	}
	return nil
}

func (p *Postgres) LedgerEntryForTask(ctx context.Context, taskID string) (*models.CreditLedgerEntry, error) {
	var e models.CreditLedgerEntry
	if err := p.db.WithContext(ctx).Where("task_id = ?", taskID).First(&e).Error; err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

func (p *Postgres) LedgerEntries(ctx context.Context, volunteerID string) ([]models.CreditLedgerEntry, error) {
	var entries []models.CreditLedgerEntry
	err := p.db.WithContext(ctx).
		Where("volunteer_id = ?", volunteerID).
		Order("awarded_at ASC, task_id ASC").
		Find(&entries).Error
	return entries, err
}

func (p *Postgres) GetVolunteer(ctx context.Context, userID string) (*models.VolunteerProfile, error) {
	var v models.VolunteerProfile
	if err := p.db.WithContext(ctx).Where("user_id = ?", userID).First(&v).Error; err != nil {
		return nil, notFound(err)
	}
	return &v, nil
}

func (p *Postgres) UpsertVolunteer(ctx context.Context, v *models.VolunteerProfile) error {
	return p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_active", "avg_rating", "updated_at"}),
	}).Create(v).Error
}

func (p *Postgres) ApplyVolunteerDelta(ctx context.Context, userID string, delta models.VolunteerDelta) error {
	res := p.db.WithContext(ctx).Model(&models.VolunteerProfile{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"credits":         gorm.Expr("credits + ?", delta.Credits),
			"total_rides":     gorm.Expr("total_rides + ?", delta.TotalRides),
			"completed_rides": gorm.Expr("completed_rides + ?", delta.CompletedRides),
			"active_rides":    gorm.Expr("GREATEST(active_rides + ?, 0)", delta.ActiveRides),
			"total_distance":  gorm.Expr("total_distance + ?", delta.TotalDistance),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) GetDonation(ctx context.Context, id string) (*models.Donation, error) {
	var d models.Donation
	if err := p.db.WithContext(ctx).Where("id = ?", id).First(&d).Error; err != nil {
		return nil, notFound(err)
	}
	return &d, nil
}

func (p *Postgres) UpsertDonations(ctx context.Context, donations []models.Donation) error {
	if len(donations) == 0 {
		return nil
	}
	return p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"donor_id", "recipient_id", "category", "quantity", "unit",
			"status", "serving_size", "created_at", "updated_at",
		}),
	}).Create(&donations).Error
}

func (p *Postgres) DonationsByDonor(ctx context.Context, donorID string) ([]models.Donation, error) {
	var out []models.Donation
	err := p.db.WithContext(ctx).Where("donor_id = ?", donorID).Order("id").Find(&out).Error
	return out, err
}

func (p *Postgres) SetDonationDelivery(ctx context.Context, donationID, status, volunteerID string) error {
	res := p.db.WithContext(ctx).Model(&models.Donation{}).
		Where("id = ?", donationID).
		Updates(map[string]any{"delivery_status": status, "assigned_volunteer_id": volunteerID})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) SaveSnapshot(ctx context.Context, snap *models.ImpactSnapshot) error {
	return p.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(snap).Error
}

func (p *Postgres) GetSnapshot(ctx context.Context, userID string) (*models.ImpactSnapshot, error) {
	var s models.ImpactSnapshot
	if err := p.db.WithContext(ctx).Where("user_id = ?", userID).First(&s).Error; err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (p *Postgres) ListSnapshots(ctx context.Context) ([]models.ImpactSnapshot, error) {
	var out []models.ImpactSnapshot
	err := p.db.WithContext(ctx).Order("user_id").Find(&out).Error
	return out, err
}

func (p *Postgres) UpdateRanks(ctx context.Context, ranks []RankUpdate) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, r := range ranks {
			if err := tx.Model(&models.ImpactSnapshot{}).
				Where("user_id = ?", r.UserID).
				Updates(map[string]any{"global_rank": r.GlobalRank, "local_rank": r.LocalRank}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *Postgres) ListAwards(ctx context.Context, userID string) ([]models.UserAward, error) {
	var out []models.UserAward
	err := p.db.WithContext(ctx).Where("user_id = ?", userID).Order("earned_at ASC, code ASC").Find(&out).Error
	return out, err
}

func (p *Postgres) InsertAward(ctx context.Context, award *models.UserAward) error {
	res := p.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}, {Name: "code"}}, DoNothing: true}).
		Create(award)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDuplicate
	}
	return nil
}
