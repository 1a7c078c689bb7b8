// handlers/impact.go
package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"delivery-impact-service/middleware"
	"delivery-impact-service/services"
)

func SetupImpactRoutes(r fiber.Router, impact *services.ImpactAggregator, gamification *services.GamificationEngine, ranking *services.RankingService) {
	r.Get("/impact/:userId", func(c *fiber.Ctx) error {
		snap, err := impact.GetSnapshot(c.UserContext(), param(c, "userId"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(snap)
	})

	// Manual recompute, for the caller themself or an operator.
	r.Post("/impact/:userId/recompute", func(c *fiber.Ctx) error {
		userID := param(c, "userId")
		if userID != middleware.UserID(c) && !isDispatcher(c) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "cannot recompute another user's impact"})
		}
		snap, err := impact.Recompute(c.UserContext(), userID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(snap)
	})

	r.Get("/gamification/:userId", func(c *fiber.Ctx) error {
		profile, err := gamification.Profile(c.UserContext(), param(c, "userId"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(profile)
	})

	r.Get("/leaderboard", func(c *fiber.Ctx) error {
		entries, err := ranking.Leaderboard(c.UserContext(), c.QueryInt("limit", services.DefaultLeaderboardLimit))
		if err != nil {
			return respondError(c, err)
		}
		var refreshedAt *time.Time
		if at := ranking.RefreshedAt(); !at.IsZero() {
			refreshedAt = &at
		}
		return c.JSON(fiber.Map{
			"entries":      entries,
			"refreshed_at": refreshedAt,
		})
	})
}

// SetupEventRoutes exposes the caller's domain events over SSE.
func SetupEventRoutes(r fiber.Router, stream *services.EventStream) {
	r.Get("/events/stream", stream.StreamUserEventsSSE)
}
