package services

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap/zaptest"
)

func TestEventStreamRequiresUser(t *testing.T) {
	log := zaptest.NewLogger(t)
	stream := &EventStream{Hub: NewEventHub(log), Log: log}
	app := fiber.New()
	app.Get("/events/stream", stream.StreamUserEventsSSE)

	resp, err := app.Test(httptest.NewRequest("GET", "/events/stream", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}
