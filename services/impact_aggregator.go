package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"delivery-impact-service/models"
	"delivery-impact-service/storage"

	"github.com/gosimple/unidecode"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Serving multipliers per normalised category; anything else uses defaultCategoryMultiplier.
var categoryMultipliers = map[string]float64{
	"cooked meals":    1.0,
	"raw ingredients": 0.3,
	"packaged foods":  0.5,
	"baked goods":     0.8,
	"dairy":           0.4,
	"produce":         0.2,
	"beverages":       0.1,
}

// Kilograms per unit of quantity; anything else uses defaultUnitMultiplier.
var unitMultipliers = map[string]float64{
	"kg":         1.0,
	"lbs":        0.453592,
	"servings":   0.3,
	"pieces":     0.2,
	"bags":       1.5,
	"boxes":      2.0,
	"containers": 1.0,
	"liters":     1.0,
	"bottles":    0.5,
	"packages":   0.8,
}

const (
	defaultCategoryMultiplier = 0.5
	defaultUnitMultiplier     = 0.3
	carbonPerKgFood           = 2.5
	topCategoryCount          = 5
)

// normalizeKey folds a free-text category or unit to its lookup key:
// ASCII, lower case, underscores and hyphens read as spaces.
func normalizeKey(s string) string {
	s = strings.ToLower(unidecode.Unidecode(s))
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

func categoryLabel(key string) string {
	if key == "" {
		return "Uncategorized"
	}
	return cases.Title(language.English).String(key)
}

// servings estimates how many people one donation feeds. An explicit
// positive serving size wins; otherwise quantity times the category
// multiplier, floored, never below one.
func servings(d models.Donation, quantity float64, categoryKey string) int {
	if d.ServingSize != nil {
		if n, ok := leadingInt(*d.ServingSize); ok && n > 0 {
			return n
		}
	}
	mult, ok := categoryMultipliers[categoryKey]
	if !ok {
		mult = defaultCategoryMultiplier
	}
	return max(1, int(math.Floor(quantity*mult)))
}

// leadingInt reads the integer a free-text size starts with, so "12 servings"
// is 12 and "about 12" is not a number.
func leadingInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	return n, err == nil
}

// ComputeImpact derives a snapshot from a user's full donation history.
// Donations are summed in id order, so equal multisets give bit-identical
// results whatever order they arrive in.
func ComputeImpact(userID string, donations []models.Donation, now time.Time) models.ImpactSnapshot {
	sorted := append([]models.Donation(nil), donations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	snap := models.ImpactSnapshot{UserID: userID, RecomputedAt: now}
	counts := map[string]int{}
	for _, d := range sorted {
		snap.TotalDonations++
		if d.Completed() {
			snap.CompletedDonations++
		}

		quantity := d.Quantity
		if math.IsNaN(quantity) || math.IsInf(quantity, 0) || quantity < 0 {
			quantity = 0
		}
		category := normalizeKey(d.Category)
		counts[category]++
		snap.PeopleHelped += servings(d, quantity, category)

		unitMult, ok := unitMultipliers[normalizeKey(d.Unit)]
		if !ok {
			unitMult = defaultUnitMultiplier
		}
		food := quantity * unitMult
		snap.FoodSavedKg += food
		snap.CarbonReducedKg += food * carbonPerKgFood
	}

	shares := make([]models.CategoryShare, 0, len(counts))
	for key, n := range counts {
		shares = append(shares, models.CategoryShare{
			Category:   key,
			Label:      categoryLabel(key),
			Count:      n,
			Percentage: math.Round(float64(n)/float64(snap.TotalDonations)*10000) / 100,
		})
	}
	sort.Slice(shares, func(i, j int) bool {
		if shares[i].Count != shares[j].Count {
			return shares[i].Count > shares[j].Count
		}
		return shares[i].Category < shares[j].Category
	})
	if len(shares) > topCategoryCount {
		shares = shares[:topCategoryCount]
	}
	snap.TopCategories = shares

	snap.TotalImpactPoints = snap.TotalDonations*10 +
		snap.CompletedDonations*15 +
		snap.PeopleHelped*5 +
		int(math.Round(snap.FoodSavedKg*2)) +
		int(math.Round(snap.CarbonReducedKg))
	return snap
}

// ImpactAggregator recomputes a user's snapshot from scratch on every trigger:
//
//	donations -> ComputeImpact -> GamificationEngine.Evaluate (bonus points, level)
//	          -> RankingService.Place -> SaveSnapshot
//
// The snapshot is replaced whole, so repeated or reordered triggers converge.
type ImpactAggregator struct {
	Store         storage.Store
	Gamification  *GamificationEngine
	Ranking       *RankingService
	Events        *Emitter
	Log           *zap.Logger
	RankingInline bool

	queue chan string
	clock func() time.Time
}

func NewImpactAggregator(store storage.Store, gamification *GamificationEngine, ranking *RankingService, events *Emitter, log *zap.Logger) *ImpactAggregator {
	return &ImpactAggregator{
		Store:        store,
		Gamification: gamification,
		Ranking:      ranking,
		Events:       events,
		Log:          log,
		clock:        time.Now,
	}
}

// Recompute rebuilds, evaluates, ranks and stores the snapshot for userID.
func (a *ImpactAggregator) Recompute(ctx context.Context, userID string) (*models.ImpactSnapshot, error) {
	const op = "impact.recompute"
	if userID == "" {
		return nil, newError(ErrInvalidInput, op, "user is required")
	}

	var (
		snap  models.ImpactSnapshot
		added []models.UserAward
	)
	err := a.Store.InTx(ctx, func(repo storage.Repository) error {
		donations, err := repo.DonationsByDonor(ctx, userID)
		if err != nil {
			return storeError(op, err)
		}
		snap = ComputeImpact(userID, donations, a.clock().UTC())

		if _, added, err = a.Gamification.Evaluate(ctx, repo, &snap); err != nil {
			return err
		}
		if err := a.Ranking.Place(ctx, repo, &snap); err != nil {
			return err
		}
		if err := repo.SaveSnapshot(ctx, &snap); err != nil {
			return storeError(op, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.Log.Debug("impact recomputed",
		zap.String("user_id", userID),
		zap.Int("total_donations", snap.TotalDonations),
		zap.Int("impact_points", snap.TotalImpactPoints),
		zap.Int("bonus_points", snap.BonusPoints),
		zap.Int("global_rank", snap.GlobalRank))

	events := []models.DomainEvent{{
		Type:       models.EventSnapshotUpdated,
		UserID:     userID,
		Key:        fmt.Sprintf("snapshot:%s:%d", userID, snap.RecomputedAt.UnixNano()),
		Payload:    snap,
		OccurredAt: snap.RecomputedAt,
	}}
	for _, award := range added {
		events = append(events, models.DomainEvent{
			Type:       models.EventBadgeEarned,
			UserID:     userID,
			Key:        "award:" + userID + ":" + award.Code,
			Payload:    award,
			OccurredAt: award.EarnedAt,
		})
	}
	a.Events.Emit(ctx, events...)

	if a.RankingInline {
		if _, err := a.Ranking.Refresh(ctx); err != nil {
			a.Log.Warn("inline ranking refresh failed", zap.Error(err))
		}
	}
	return &snap, nil
}

// RecomputeMany recomputes each distinct user once and joins the failures.
func (a *ImpactAggregator) RecomputeMany(ctx context.Context, userIDs []string) error {
	seen := map[string]bool{}
	var errs []error
	for _, id := range userIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if _, err := a.Recompute(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *ImpactAggregator) GetSnapshot(ctx context.Context, userID string) (*models.ImpactSnapshot, error) {
	snap, err := a.Store.GetSnapshot(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, newError(ErrNotFound, "impact.get_snapshot", "no snapshot for user %s", userID)
	}
	if err != nil {
		return nil, storeError("impact.get_snapshot", err)
	}
	return snap, nil
}

// Notify schedules a recompute for userID. With workers running it is
// queued; otherwise, or when the queue is full, it runs inline. Failures are
// logged: the next trigger recomputes from the same history.
func (a *ImpactAggregator) Notify(ctx context.Context, userID string) {
	if a.queue != nil {
		select {
		case a.queue <- userID:
			return
		default:
		}
	}
	if _, err := a.Recompute(context.WithoutCancel(ctx), userID); err != nil {
		a.Log.Error("impact recompute failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// StartWorkers drains the recompute queue with n goroutines until ctx ends.
// It must be called before the first Notify.
func (a *ImpactAggregator) StartWorkers(ctx context.Context, n, buffer int) {
	a.queue = make(chan string, buffer)
	for i := 0; i < n; i++ {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case userID := <-a.queue:
					if _, err := a.Recompute(ctx, userID); err != nil {
						a.Log.Error("impact recompute failed", zap.String("user_id", userID), zap.Error(err))
					}
				}
			}
		}()
	}
}
