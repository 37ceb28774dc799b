package handlers

import (
	"fitness-challenge-system/middleware"
	"fitness-challenge-system/services"

	"github.com/gofiber/fiber/v2"
)

// SetupSideChallengeRoutes registers the wager workflow and the token ledger
// read endpoints.
func SetupSideChallengeRoutes(app *fiber.App, wagerService *services.SideChallengeService, ledgerService *services.LedgerService) {
	secured := app.Group("/", middleware.UserContext())

	secured.Get("/competitions/:id/weeks/:week_id/side-challenges", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		mine := c.Query("mine") == "true"
		wagers, err := wagerService.List(c.Params("id"), c.Params("week_id"), userID, mine)
		if err != nil {
			return services.RespondError(c, err)
		}
		return c.JSON(wagers)
	})

	secured.Post("/side-challenges", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		var req services.ProposeRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON body"})
		}
		wager, err := wagerService.Propose(userID, req)
		if err != nil {
			return services.RespondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(wager)
	})

	secured.Post("/side-challenges/:id/accept", func(c *fiber.Ctx) error {
		wager, err := wagerService.Accept(c.Locals("user_id").(string), c.Params("id"))
		if err != nil {
			return services.RespondError(c, err)
		}
		return c.JSON(wager)
	})

	secured.Post("/side-challenges/:id/decline", func(c *fiber.Ctx) error {
		wager, err := wagerService.Decline(c.Locals("user_id").(string), c.Params("id"))
		if err != nil {
			return services.RespondError(c, err)
		}
		return c.JSON(wager)
	})

	secured.Post("/side-challenges/:id/submit", func(c *fiber.Ctx) error {
		var req struct {
			Value        float64 `json:"value"`
			DisplayValue string  `json:"display_value"`
			Note         string  `json:"note"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON body"})
		}
		wager, err := wagerService.SubmitResult(c.Locals("user_id").(string), c.Params("id"), req.Value, req.DisplayValue, req.Note)
		if err != nil {
			return services.RespondError(c, err)
		}
		return c.JSON(wager)
	})

	secured.Post("/side-challenges/:id/void", func(c *fiber.Ctx) error {
		var req struct {
			Reason string `json:"reason"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON body"})
		}
		wager, err := wagerService.Void(c.Locals("user_id").(string), c.Params("id"), req.Reason)
		if err != nil {
			return services.RespondError(c, err)
		}
		return c.JSON(wager)
	})

	// Token ledger (read-only over HTTP; writes happen inside workflows)
	secured.Get("/competitions/:id/tokens/balance", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		balance, err := ledgerService.Balance(ledgerService.DB, c.Params("id"), userID)
		if err != nil {
			return services.RespondError(c, err)
		}
		return c.JSON(fiber.Map{"balance": balance})
	})

	secured.Get("/competitions/:id/tokens/available", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		breakdown, err := ledgerService.Available(ledgerService.DB, c.Params("id"), userID)
		if err != nil {
			return services.RespondError(c, err)
		}
		return c.JSON(breakdown)
	})

	secured.Get("/competitions/:id/tokens/history", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		history, err := ledgerService.History(c.Params("id"), userID)
		if err != nil {
			return services.RespondError(c, err)
		}
		return c.JSON(history)
	})
}
