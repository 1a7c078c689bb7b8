// models/donation.go
package models

import "time"

// Delivery statuses written onto a donation by the delivery lifecycle.
const (
	DeliveryNone                 = ""
	DeliveryAssigned             = "assigned"
	DeliveryInTransit            = "in_transit"
	DeliveryAwaitingConfirmation = "awaiting_confirmation"
	DeliveryDelivered            = "delivered"
)

// DonationStatusCompleted is the registry status of a donation that reached its recipient.
const DonationStatusCompleted = "completed"

// Donation mirrors a record owned by the donation registry.
// This service only ever writes DeliveryStatus and AssignedVolunteerID.
type Donation struct {
	ID          string  `gorm:"primaryKey" json:"id"`
	DonorID     string  `gorm:"index;not null" json:"donor_id"`
	RecipientID string  `gorm:"index" json:"recipient_id,omitempty"` // receiver who claimed it
	Category    string  `json:"category"`
	Quantity    float64 `json:"quantity"`
	Unit        string  `json:"unit"`
	Status      string  `gorm:"index" json:"status"`
	ServingSize *string `json:"serving_size,omitempty"`

	DeliveryStatus      string `gorm:"type:varchar(32)" json:"delivery_status,omitempty"`
	AssignedVolunteerID string `gorm:"index" json:"assigned_volunteer_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `gorm:"index" json:"updated_at"`
}

// Completed reports whether the donation counts as a completed donation.
func (d Donation) Completed() bool {
	return d.Status == DonationStatusCompleted || d.DeliveryStatus == DeliveryDelivered
}
