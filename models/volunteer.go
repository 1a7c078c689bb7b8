package models

import "time"

// VolunteerProfile holds the per-volunteer counters of the user profile store.
type VolunteerProfile struct {
	UserID         string    `gorm:"primaryKey" json:"user_id"`
	Credits        int       `gorm:"default:0" json:"credits"`
	TotalRides     int       `gorm:"default:0" json:"total_rides"`
	CompletedRides int       `gorm:"default:0" json:"completed_rides"`
	ActiveRides    int       `gorm:"default:0" json:"active_rides"`
	TotalDistance  float64   `gorm:"default:0" json:"total_distance"`
	AvgRating      float64   `gorm:"default:0" json:"avg_rating"`
	IsActive       bool      `gorm:"default:false" json:"is_active"`
	UpdatedAt      time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// VolunteerDelta is an additive change applied to a VolunteerProfile.
type VolunteerDelta struct {
	Credits        int
	TotalRides     int
	CompletedRides int
	ActiveRides    int
	TotalDistance  float64
}
