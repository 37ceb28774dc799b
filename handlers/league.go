package handlers

import (
	"time"

	"fitness-challenge-system/middleware"
	"fitness-challenge-system/services"

	"github.com/gofiber/fiber/v2"
)

// SetupLeagueRoutes registers the week lifecycle, leaderboard and perfect-week
// endpoints.
func SetupLeagueRoutes(app *fiber.App, weekService *services.WeekService, leaderboardService *services.LeaderboardService, perfectWeekService *services.PerfectWeekService) {
	secured := app.Group("/", middleware.UserContext())

	// Week lifecycle. The sweep also runs hourly via the worker; this endpoint
	// lets an organizer trigger it on demand. It is idempotent either way.
	secured.Post("/weeks/sweep", func(c *fiber.Ctx) error {
		result, err := weekService.RunSweep(time.Now())
		if err != nil {
			return services.RespondError(c, err)
		}
		return c.JSON(result)
	})

	secured.Post("/competitions/:id/weeks/:week_id/lock", func(c *fiber.Ctx) error {
		summary, err := weekService.ForceLock(c.Locals("user_id").(string), c.Params("id"), c.Params("week_id"))
		if err != nil {
			return services.RespondError(c, err)
		}
		return c.JSON(summary)
	})

	secured.Post("/competitions/:id/weeks/:week_id/unlock", func(c *fiber.Ctx) error {
		week, err := weekService.ForceUnlock(c.Locals("user_id").(string), c.Params("id"), c.Params("week_id"))
		if err != nil {
			return services.RespondError(c, err)
		}
		return c.JSON(week)
	})

	// Leaderboards
	secured.Get("/competitions/:id/weeks/:week_id/leaderboard", func(c *fiber.Ctx) error {
		entries, err := leaderboardService.Weekly(c.Params("id"), c.Params("week_id"))
		if err != nil {
			return services.RespondError(c, err)
		}
		payout, err := leaderboardService.Payout(c.Params("id"))
		if err != nil {
			return services.RespondError(c, err)
		}
		return c.JSON(fiber.Map{
			"entries": entries,
			"winners": services.Winners(entries, payout.WeeklyPrize),
		})
	})

	secured.Get("/competitions/:id/leaderboard", func(c *fiber.Ctx) error {
		entries, err := leaderboardService.Overall(c.Params("id"))
		if err != nil {
			return services.RespondError(c, err)
		}
		payout, err := leaderboardService.Payout(c.Params("id"))
		if err != nil {
			return services.RespondError(c, err)
		}
		return c.JSON(fiber.Map{
			"entries": entries,
			"winners": services.Winners(entries, payout.GrandPrize),
			"payout":  payout,
		})
	})

	// Perfect-week maintenance (organizer only, locked weeks only)
	secured.Post("/competitions/:id/weeks/:week_id/perfect-week/recalculate", func(c *fiber.Ctx) error {
		result, err := perfectWeekService.Recalculate(c.Locals("user_id").(string), c.Params("id"), c.Params("week_id"))
		if err != nil {
			return services.RespondError(c, err)
		}
		return c.JSON(result)
	})
}
