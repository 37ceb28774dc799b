package handlers

import (
	"fitness-challenge-system/middleware"
	"fitness-challenge-system/services"

	"github.com/gofiber/fiber/v2"
)

// SetupAuthRoutes registers registration and login, both rate limited.
func SetupAuthRoutes(app *fiber.App, authService *services.AuthService, limiter middleware.Limiter) {
	auth := app.Group("/auth", middleware.RateLimit(limiter))
	auth.Post("/register", authService.Register)
	auth.Post("/login", authService.Login)
}
