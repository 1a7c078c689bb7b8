package models

import "time"

// CreditLedgerEntry is an immutable audit row for one completed task.
// TaskID carries a unique index: the store refuses a second award for the same task.
type CreditLedgerEntry struct {
	ID          string           `gorm:"primaryKey;type:uuid" json:"id"`
	VolunteerID string           `gorm:"index;not null" json:"volunteer_id"`
	TaskID      string           `gorm:"uniqueIndex;not null" json:"task_id"`
	Amount      int              `gorm:"not null" json:"amount"`
	AwardedBy   string           `gorm:"not null" json:"awarded_by"` // operator id or recipient id
	Path        VerificationPath `gorm:"type:varchar(16);not null" json:"path"`
	AwardedAt   time.Time        `gorm:"not null" json:"awarded_at"`
}
