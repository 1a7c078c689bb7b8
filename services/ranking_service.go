package services

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"delivery-impact-service/models"
	"delivery-impact-service/storage"

	"go.uber.org/zap"
)

const (
	DefaultLeaderboardLimit = 10
	MaxLeaderboardLimit     = 100
)

// LeaderboardPublisher exports a refreshed leaderboard to an external store.
type LeaderboardPublisher interface {
	PublishLeaderboard(ctx context.Context, entries []models.LeaderboardEntry) error
}

// RankingService keeps a materialised leaderboard rebuilt from every stored
// snapshot by Refresh, and answers single-user placement on demand.
type RankingService struct {
	Store     storage.Store
	Publisher LeaderboardPublisher
	Log       *zap.Logger

	mu          sync.RWMutex
	index       []models.LeaderboardEntry
	refreshedAt time.Time
	clock       func() time.Time
}

func NewRankingService(store storage.Store, publisher LeaderboardPublisher, log *zap.Logger) *RankingService {
	return &RankingService{Store: store, Publisher: publisher, Log: log, clock: time.Now}
}

// ahead reports whether a ranks before b: more points, then lower user id.
func ahead(aPoints int, aUser string, bPoints int, bUser string) bool {
	if aPoints != bPoints {
		return aPoints > bPoints
	}
	return aUser < bUser
}

// Rank orders snapshots into a strict total order with 1-based ranks.
func Rank(snaps []models.ImpactSnapshot) []models.LeaderboardEntry {
	entries := make([]models.LeaderboardEntry, len(snaps))
	for i, s := range snaps {
		entries[i] = models.LeaderboardEntry{UserID: s.UserID, Points: s.RankingPoints(), Level: s.Level}
	}
	sort.Slice(entries, func(i, j int) bool {
		return ahead(entries[i].Points, entries[i].UserID, entries[j].Points, entries[j].UserID)
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// LocalRank has no locality signal behind it: it scales the global rank by
// a tenth. Replace once snapshots carry a region.
func LocalRank(globalRank int) int {
	return max(1, int(math.Round(float64(globalRank)*0.1)))
}

// Place sets snap's ranks against every other stored snapshot, treating snap
// as the current version of its user.
func (r *RankingService) Place(ctx context.Context, repo storage.Repository, snap *models.ImpactSnapshot) error {
	all, err := repo.ListSnapshots(ctx)
	if err != nil {
		return storeError("ranking.place", err)
	}
	points := snap.RankingPoints()
	rank := 1
	for _, o := range all {
		if o.UserID == snap.UserID {
			continue
		}
		if ahead(o.RankingPoints(), o.UserID, points, snap.UserID) {
			rank++
		}
	}
	snap.GlobalRank = rank
	snap.LocalRank = LocalRank(rank)
	return nil
}

// Refresh rebuilds the index, writes changed ranks back onto the snapshots
// and publishes the result when a publisher is configured.
func (r *RankingService) Refresh(ctx context.Context) ([]models.LeaderboardEntry, error) {
	const op = "ranking.refresh"

	snaps, err := r.Store.ListSnapshots(ctx)
	if err != nil {
		return nil, storeError(op, err)
	}
	entries := Rank(snaps)

	current := make(map[string]models.ImpactSnapshot, len(snaps))
	for _, s := range snaps {
		current[s.UserID] = s
	}
	var updates []storage.RankUpdate
	for _, e := range entries {
		local := LocalRank(e.Rank)
		if s := current[e.UserID]; s.GlobalRank != e.Rank || s.LocalRank != local {
			updates = append(updates, storage.RankUpdate{UserID: e.UserID, GlobalRank: e.Rank, LocalRank: local})
		}
	}
	if len(updates) > 0 {
		if err := r.Store.UpdateRanks(ctx, updates); err != nil {
			return nil, storeError(op, err)
		}
	}

	r.mu.Lock()
	r.index = entries
	r.refreshedAt = r.clock().UTC()
	r.mu.Unlock()

	r.Log.Debug("leaderboard refreshed", zap.Int("users", len(entries)), zap.Int("rank_changes", len(updates)))

	if r.Publisher != nil {
		top := entries[:min(len(entries), MaxLeaderboardLimit)]
		if err := r.Publisher.PublishLeaderboard(ctx, top); err != nil {
			r.Log.Warn("leaderboard publish failed", zap.Error(err))
		}
	}
	return entries, nil
}

// Leaderboard returns the top entries of the index. limit is clamped to
// 1..MaxLeaderboardLimit and defaults to DefaultLeaderboardLimit.
func (r *RankingService) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	switch {
	case limit <= 0:
		limit = DefaultLeaderboardLimit
	case limit > MaxLeaderboardLimit:
		limit = MaxLeaderboardLimit
	}

	r.mu.RLock()
	index, built := r.index, !r.refreshedAt.IsZero()
	r.mu.RUnlock()
	if !built {
		var err error
		if index, err = r.Refresh(ctx); err != nil {
			return nil, err
		}
	}

	n := min(limit, len(index))
	out := make([]models.LeaderboardEntry, n)
	copy(out, index[:n])
	return out, nil
}

// RefreshedAt is the time of the last successful Refresh.
func (r *RankingService) RefreshedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.refreshedAt
}
