// handlers/validate.go
package handlers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"delivery-impact-service/services"
)

var validate = validator.New()

// FormatValidationError flattens validator errors into one readable line.
func FormatValidationError(err error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err.Error()
	}
	messages := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		messages = append(messages, fieldErrorMessage(fe))
	}
	return strings.Join(messages, "; ")
}

func fieldErrorMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// bindJSON parses and validates the request body. An empty body is allowed
// so optional-body endpoints can share it; required fields still fail.
func bindJSON(c *fiber.Ctx, dst any) error {
	if len(c.Body()) > 0 {
		if err := c.BodyParser(dst); err != nil {
			return errors.New("invalid request body")
		}
	}
	if err := validate.Struct(dst); err != nil {
		return errors.New(FormatValidationError(err))
	}
	return nil
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
}

// param copies a route parameter out of the reused request buffer.
func param(c *fiber.Ctx, name string) string {
	return utils.CopyString(c.Params(name))
}

func respondError(c *fiber.Ctx, err error) error {
	return c.Status(services.StatusFor(err)).JSON(fiber.Map{"error": err.Error()})
}
