package services

import (
	"context"
	"errors"
	"time"

	"delivery-impact-service/models"
	"delivery-impact-service/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GamificationEngine evaluates award rules and the level curve against an
// impact snapshot. Awards are only ever added. The engine writes the
// snapshot's BonusPoints and level fields and leaves the aggregator's
// computed fields alone; RankingService then orders users by
// TotalImpactPoints + BonusPoints.
type GamificationEngine struct {
	Store storage.Store
	Rules []models.AwardRule
	Log   *zap.Logger

	clock func() time.Time
	newID func() string
}

func NewGamificationEngine(store storage.Store, log *zap.Logger) *GamificationEngine {
	return &GamificationEngine{
		Store: store,
		Rules: Catalogue(),
		Log:   log,
		clock: time.Now,
		newID: uuid.NewString,
	}
}

// Evaluate checks every rule the user does not hold yet, records the newly
// satisfied ones through repo and returns the resulting profile with the
// awards added by this call.
func (e *GamificationEngine) Evaluate(ctx context.Context, repo storage.Repository, snap *models.ImpactSnapshot) (*models.GamificationProfile, []models.UserAward, error) {
	const op = "gamification.evaluate"

	held, err := repo.ListAwards(ctx, snap.UserID)
	if err != nil {
		return nil, nil, storeError(op, err)
	}
	heldCodes := make(map[string]bool, len(held))
	for _, a := range held {
		heldCodes[a.Code] = true
	}

	now := e.clock().UTC()
	var added []models.UserAward
	for _, rule := range e.Rules {
		code := ruleCode(rule)
		if heldCodes[code] || !meetsThreshold(snap, rule.Threshold) {
			continue
		}
		award := models.UserAward{
			ID:       e.newID(),
			UserID:   snap.UserID,
			Code:     code,
			Kind:     rule.Kind,
			Name:     rule.Name,
			Points:   rule.Points,
			EarnedAt: now,
		}
		err := repo.InsertAward(ctx, &award)
		if err != nil && !errors.Is(err, storage.ErrDuplicate) {
			return nil, nil, storeError(op, err)
		}
		heldCodes[code] = true
		held = append(held, award)
		// On a duplicate a concurrent recompute recorded it first: it still
		// counts toward this snapshot's bonus but is not newly earned here.
		if err == nil {
			added = append(added, award)
		}
	}

	profile := buildProfile(snap.UserID, held, snap.TotalImpactPoints)
	snap.BonusPoints = profile.BonusPoints()
	snap.Level = profile.Level
	snap.LevelName = profile.LevelName
	snap.LevelProgress = profile.Progress

	for _, a := range added {
		e.Log.Info("award earned",
			zap.String("user_id", a.UserID),
			zap.String("code", a.Code),
			zap.Int("points", a.Points))
	}
	return profile, added, nil
}

// Profile reads the held awards and places the user on the level curve.
// A user with no snapshot yet sits at zero base points.
func (e *GamificationEngine) Profile(ctx context.Context, userID string) (*models.GamificationProfile, error) {
	const op = "gamification.profile"

	awards, err := e.Store.ListAwards(ctx, userID)
	if err != nil {
		return nil, storeError(op, err)
	}
	base := 0
	snap, err := e.Store.GetSnapshot(ctx, userID)
	switch {
	case err == nil:
		base = snap.TotalImpactPoints
	case !errors.Is(err, storage.ErrNotFound):
		return nil, storeError(op, err)
	}
	return buildProfile(userID, awards, base), nil
}

func buildProfile(userID string, awards []models.UserAward, basePoints int) *models.GamificationProfile {
	p := &models.GamificationProfile{
		UserID:       userID,
		Badges:       []models.UserAward{},
		Achievements: []models.UserAward{},
	}
	for _, a := range awards {
		switch a.Kind {
		case models.AwardAchievement:
			p.Achievements = append(p.Achievements, a)
			p.AchievementPoints += a.Points
		default:
			p.Badges = append(p.Badges, a)
			p.BadgePoints += a.Points
		}
	}
	lvl := LevelFor(basePoints + p.BonusPoints())
	p.Level = lvl.Level
	p.LevelName = lvl.Name
	p.Progress = lvl.Progress
	p.NextLevelAt = lvl.NextLevelAt
	return p
}
