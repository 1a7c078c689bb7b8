// handlers/deliveries.go
package handlers

import (
	"github.com/gofiber/fiber/v2"

	"delivery-impact-service/middleware"
	"delivery-impact-service/models"
	"delivery-impact-service/services"
)

type assignBody struct {
	VolunteerID string  `json:"volunteer_id" validate:"required"`
	DonationID  string  `json:"donation_id" validate:"required"`
	DistanceKm  float64 `json:"distance_km" validate:"gte=0"`
	From        string  `json:"from"`
	To          string  `json:"to"`
}

type completeBody struct {
	Notes string `json:"notes" validate:"max=2000"`
}

type cancelBody struct {
	Reason string `json:"reason" validate:"max=500"`
}

// SetupDeliveryRoutes mounts the delivery lifecycle. The router is expected
// to carry the user context already.
func SetupDeliveryRoutes(r fiber.Router, orchestrator *services.DeliveryOrchestrator, gateway *services.VerificationGateway) {
	deliveries := r.Group("/deliveries")

	dispatch := middleware.RequireRole(middleware.RoleOperator, middleware.RoleAdmin)

	deliveries.Post("/", dispatch, func(c *fiber.Ctx) error {
		var body assignBody
		if err := bindJSON(c, &body); err != nil {
			return badRequest(c, err)
		}

		var (
			task *models.DeliveryTask
			err  error
		)
		if body.From != "" && body.To != "" {
			task, err = orchestrator.AssignByRoute(c.UserContext(), body.VolunteerID, body.DonationID, body.From, body.To)
		} else {
			task, err = orchestrator.Assign(c.UserContext(), services.AssignRequest{
				VolunteerID: body.VolunteerID,
				DonationID:  body.DonationID,
				DistanceKm:  body.DistanceKm,
			})
		}
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(task)
	})

	deliveries.Get("/:id", func(c *fiber.Ctx) error {
		task, err := orchestrator.Get(c.UserContext(), param(c, "id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(task)
	})

	deliveries.Post("/:id/start", func(c *fiber.Ctx) error {
		task, err := orchestrator.Start(c.UserContext(), param(c, "id"), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(task)
	})

	deliveries.Post("/:id/complete", func(c *fiber.Ctx) error {
		var body completeBody
		if err := bindJSON(c, &body); err != nil {
			return badRequest(c, err)
		}
		task, err := orchestrator.RequestCompletion(c.UserContext(), param(c, "id"), middleware.UserID(c), body.Notes)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(task)
	})

	deliveries.Post("/:id/cancel", func(c *fiber.Ctx) error {
		var body cancelBody
		if err := bindJSON(c, &body); err != nil {
			return badRequest(c, err)
		}
		ctx, id := c.UserContext(), param(c, "id")
		if !isDispatcher(c) {
			// A volunteer may drop their own task; the volunteer never changes after assignment.
			task, err := orchestrator.Get(ctx, id)
			if err != nil {
				return respondError(c, err)
			}
			if task.VolunteerID != middleware.UserID(c) {
				return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "only operators or the assigned volunteer can cancel"})
			}
		}
		task, err := orchestrator.Cancel(ctx, id, body.Reason)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(task)
	})

	deliveries.Post("/:id/verify", dispatch, func(c *fiber.Ctx) error {
		task, err := gateway.OperatorVerify(c.UserContext(), param(c, "id"), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(task)
	})

	deliveries.Post("/:id/confirm", func(c *fiber.Ctx) error {
		task, err := gateway.RecipientConfirm(c.UserContext(), param(c, "id"), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(task)
	})
}

func isDispatcher(c *fiber.Ctx) bool {
	return middleware.HasRole(c, middleware.RoleOperator) || middleware.HasRole(c, middleware.RoleAdmin)
}
