// models/gamification.go
package models

import (
	"time"
)

// AwardKind separates badges from achievements; both are point-valued milestones.
type AwardKind string

const (
	AwardBadge       AwardKind = "badge"
	AwardAchievement AwardKind = "achievement"
)

// UserAward is a held badge or achievement. Rows are only ever added.
type UserAward struct {
	ID       string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID   string    `gorm:"uniqueIndex:idx_user_award,priority:1;not null" json:"user_id"`
	Code     string    `gorm:"uniqueIndex:idx_user_award,priority:2;not null" json:"code"`
	Kind     AwardKind `gorm:"type:varchar(16);not null" json:"kind"`
	Name     string    `gorm:"not null" json:"name"`
	Points   int       `gorm:"not null" json:"points"`
	EarnedAt time.Time `gorm:"not null" json:"earned_at"`
}

// GamificationProfile is the per-user view over held awards and level.
type GamificationProfile struct {
	UserID            string      `json:"user_id"`
	Badges            []UserAward `json:"badges"`
	Achievements      []UserAward `json:"achievements"`
	BadgePoints       int         `json:"badge_points"`
	AchievementPoints int         `json:"achievement_points"`
	Level             int         `json:"level"`
	LevelName         string      `json:"level_name"`
	Progress          float64     `json:"progress"`
	NextLevelAt       int         `json:"next_level_at,omitempty"`
}

// BonusPoints is the sum fed back into ranking.
func (p GamificationProfile) BonusPoints() int {
	return p.BadgePoints + p.AchievementPoints
}

// LeaderboardEntry is computed on demand and never stored as a source of truth.
type LeaderboardEntry struct {
	Rank   int    `json:"rank"`
	UserID string `json:"user_id"`
	Points int    `json:"points"`
	Level  int    `json:"level"`
}
