// models/delivery_task.go
package models

import (
	"time"
)

// TaskStatus is the lifecycle state of a delivery task.
type TaskStatus string

const (
	TaskAssigned            TaskStatus = "assigned"
	TaskInProgress          TaskStatus = "in_progress"
	TaskPendingVerification TaskStatus = "pending_verification"
	TaskCompleted           TaskStatus = "completed"
	TaskCancelled           TaskStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskCancelled
}

// VerificationPath records which confirmation entry point closed a task.
type VerificationPath string

const (
	PathOperator  VerificationPath = "operator"
	PathRecipient VerificationPath = "recipient"
)

// DeliveryTask is one physical handoff of a donation by a volunteer.
// Rows are never deleted.
type DeliveryTask struct {
	ID          string     `gorm:"primaryKey;type:uuid" json:"id"`
	DonationID  string     `gorm:"index;not null" json:"donation_id"`
	DonorID     string     `gorm:"index;not null" json:"donor_id"`
	RecipientID string     `gorm:"index;not null" json:"recipient_id"`
	VolunteerID string     `gorm:"index;not null" json:"volunteer_id"`
	Status      TaskStatus `gorm:"type:varchar(32);index;not null" json:"status"`

	DistanceKm     float64 `gorm:"not null" json:"distance_km"`
	CreditsQuoted  int     `gorm:"not null" json:"credits_quoted"`
	CreditsAwarded *int    `json:"credits_awarded,omitempty"` // set once, at completion

	AwardedBy        string           `json:"awarded_by,omitempty"`
	VerificationPath VerificationPath `gorm:"type:varchar(16)" json:"verification_path,omitempty"`
	CompletionNotes  string           `gorm:"type:text" json:"completion_notes,omitempty"`
	CancelReason     string           `gorm:"type:text" json:"cancel_reason,omitempty"`

	AssignedAt  *time.Time `json:"assigned_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	VerifiedAt  *time.Time `json:"verified_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
