package models

import (
	"time"

	"gorm.io/datatypes"
)

// CategoryShare is one entry of a snapshot's category distribution.
type CategoryShare struct {
	Category   string  `json:"category"`
	Label      string  `json:"label"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// ImpactSnapshot is the derived lifetime impact of one user.
// It is replaced as a whole on every recomputation.
type ImpactSnapshot struct {
	UserID             string                             `gorm:"primaryKey" json:"user_id"`
	TotalDonations     int                                `json:"total_donations"`
	CompletedDonations int                                `json:"completed_donations"`
	PeopleHelped       int                                `json:"people_helped"`
	FoodSavedKg        float64                            `json:"food_saved_kg"`
	CarbonReducedKg    float64                            `json:"carbon_reduced_kg"`
	TopCategories      datatypes.JSONSlice[CategoryShare] `gorm:"type:jsonb" json:"top_categories"`
	TotalImpactPoints  int                                `gorm:"index" json:"total_impact_points"`

	// BonusPoints is the only field the gamification engine writes.
	BonusPoints int `json:"bonus_points"`

	GlobalRank    int     `json:"global_rank"`
	LocalRank     int     `json:"local_rank"`
	Level         int     `json:"level"`
	LevelName     string  `json:"level_name"`
	LevelProgress float64 `json:"level_progress"`

	RecomputedAt time.Time `json:"recomputed_at"`
}

// RankingPoints is the total used for leaderboard ordering.
func (s ImpactSnapshot) RankingPoints() int {
	return s.TotalImpactPoints + s.BonusPoints
}
