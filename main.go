package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"fitness-challenge-system/handlers"
	"fitness-challenge-system/middleware"
	"fitness-challenge-system/models"
	"fitness-challenge-system/services"
	"fitness-challenge-system/utils"
	"fitness-challenge-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	if os.Getenv("JWT_SECRET") == "" {
		log.Fatal("JWT_SECRET environment variable not set")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 20 * 1024 * 1024, // 20MB, cover photos only
	})

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	origins := strings.Split(allowedOriginsEnv, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(origins, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if utils.R2Configured() {
		if err := utils.InitR2(); err != nil {
			log.Fatal("failed to initialize R2 client:", err)
		}
	} else {
		log.Println("⚠️  R2 not configured, cover photo uploads disabled")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Competition{},
		&models.Participant{},
		&models.TaskTemplate{},
		&models.Week{},
		&models.Completion{},
		&models.TokenLedgerEntry{},
		&models.SideChallenge{},
		&models.SideChallengeSubmission{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	// Rate limiter: redis-backed when REDIS_URL is set so multiple instances
	// share one budget, in-memory otherwise.
	var limiter middleware.Limiter
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		limiter, err = middleware.NewRedisLimiter(redisURL, 10, time.Minute)
		if err != nil {
			log.Fatal("failed to connect rate limiter to redis:", err)
		}
		log.Println("✅ Rate limiter backed by redis")
	} else {
		limiter = middleware.NewMemoryLimiter(10, time.Minute)
	}

	authService := services.NewAuthService(db)
	ledgerService := services.NewLedgerService(db)
	wagerService := services.NewSideChallengeService(db, ledgerService)
	perfectWeekService := services.NewPerfectWeekService(db, ledgerService)
	weekService := services.NewWeekService(db, perfectWeekService, wagerService)
	competitionService := services.NewCompetitionService(db, weekService)
	leaderboardService := services.NewLeaderboardService(db)

	handlers.SetupAuthRoutes(app, authService, limiter)
	handlers.SetupCompetitionRoutes(app, competitionService)
	handlers.SetupSideChallengeRoutes(app, wagerService, ledgerService)
	handlers.SetupLeagueRoutes(app, weekService, leaderboardService, perfectWeekService)

	sweepScheduler := workers.StartWeekSweep(weekService)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	port := os.Getenv("PORT")
	if port == "" {
		port = "5300"
	}
	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s", port)
	log.Println("✅ Week sweep worker running (hourly)")

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := sweepScheduler.Shutdown(); err != nil {
		log.Printf("sweep scheduler shutdown: %v", err)
	}
	if err := app.Shutdown(); err != nil {
		log.Printf("server shutdown: %v", err)
	}
}
