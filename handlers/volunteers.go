// handlers/volunteers.go
package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"delivery-impact-service/middleware"
	"delivery-impact-service/models"
	"delivery-impact-service/services"
	"delivery-impact-service/storage"
)

type volunteerRosterBody struct {
	IsActive  *bool   `json:"is_active" validate:"required"`
	AvgRating float64 `json:"avg_rating" validate:"gte=0,lte=5"`
}

func SetupVolunteerRoutes(r fiber.Router, store storage.Store, ledger *services.CreditLedger) {
	r.Get("/volunteers/:id/ledger", func(c *fiber.Ctx) error {
		volunteerID := param(c, "id")
		if volunteerID != middleware.UserID(c) && !isDispatcher(c) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "ledger is visible to its volunteer and operators only"})
		}

		entries, err := ledger.Entries(c.UserContext(), volunteerID)
		if err != nil {
			return respondError(c, err)
		}
		balance, err := ledger.Balance(c.UserContext(), volunteerID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{
			"volunteer_id": volunteerID,
			"balance":      balance,
			"entries":      entries,
		})
	})

	// Roster maintenance for deployments without a registry feed.
	r.Put("/s/admin/volunteers/:id", middleware.RequireRole(middleware.RoleAdmin), func(c *fiber.Ctx) error {
		var body volunteerRosterBody
		if err := bindJSON(c, &body); err != nil {
			return badRequest(c, err)
		}
		ctx := c.UserContext()
		id := param(c, "id")
		if err := store.UpsertVolunteer(ctx, &models.VolunteerProfile{
			UserID:    id,
			IsActive:  *body.IsActive,
			AvgRating: body.AvgRating,
		}); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to save volunteer", "cause": err.Error()})
		}
		v, err := store.GetVolunteer(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "volunteer not found"})
		}
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load volunteer", "cause": err.Error()})
		}
		return c.JSON(v)
	})
}
