package services

import (
	"errors"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
)

// Typed domain failures. Every expected, recoverable condition is one of these;
// anything else is treated as an internal error and hidden behind a generic
// message.

// ValidationError reports malformed or missing input, naming the field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// AuthorizationError reports an action the acting user is not allowed to take.
type AuthorizationError struct {
	Message string
}

func (e *AuthorizationError) Error() string { return e.Message }

// StateConflictError reports a transition requested against the wrong state
// (wager not in expected status, week not open, duplicate submission, ...).
type StateConflictError struct {
	Message string
}

func (e *StateConflictError) Error() string { return e.Message }

// NotFoundError reports an unknown entity, distinct from a state conflict.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string { return e.Resource + " not found" }

// InsufficientBalanceError carries the shortfall context so callers can show
// the user where their tokens are committed.
type InsufficientBalanceError struct {
	Requested int
	Available int
	Staked    int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient tokens: requested %d, available %d (%d staked on open wagers)",
		e.Requested, e.Available, e.Staked)
}

// RespondError maps a domain error to the matching HTTP response. Unexpected
// errors are logged server-side and surfaced as a generic 500.
func RespondError(c *fiber.Ctx, err error) error {
	var (
		vErr  *ValidationError
		aErr  *AuthorizationError
		sErr  *StateConflictError
		nfErr *NotFoundError
		ibErr *InsufficientBalanceError
	)
	switch {
	case errors.As(err, &vErr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": vErr.Message, "field": vErr.Field})
	case errors.As(err, &aErr):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": aErr.Message})
	case errors.As(err, &sErr):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": sErr.Message})
	case errors.As(err, &nfErr):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": nfErr.Error()})
	case errors.As(err, &ibErr):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":     ibErr.Error(),
			"requested": ibErr.Requested,
			"available": ibErr.Available,
			"staked":    ibErr.Staked,
		})
	default:
		log.Printf("❌ internal error: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "something went wrong, try again"})
	}
}
