package handlers

import (
	"fitness-challenge-system/middleware"
	"fitness-challenge-system/services"

	"github.com/gofiber/fiber/v2"
)

// SetupCompetitionRoutes registers competition, participant, task-template and
// completion endpoints. Everything requires a session.
func SetupCompetitionRoutes(app *fiber.App, competitionService *services.CompetitionService) {
	secured := app.Group("/", middleware.UserContext())

	// Competition CRUD
	secured.Post("/competitions", competitionService.CreateCompetition)
	secured.Get("/competitions", competitionService.ListMyCompetitions)
	secured.Get("/competitions/:id", competitionService.GetCompetition)
	secured.Put("/competitions/:id", competitionService.UpdateCompetition)
	secured.Delete("/competitions/:id", competitionService.DeleteCompetition)

	// Participants
	secured.Post("/competitions/:id/participants", competitionService.InviteParticipant)
	secured.Get("/competitions/:id/participants", competitionService.ListParticipants)
	secured.Patch("/competitions/:id/participants/:user_id/paid", competitionService.MarkBuyInPaid)

	// Task templates (retired via active=false, never deleted)
	secured.Post("/competitions/:id/tasks", competitionService.CreateTask)
	secured.Get("/competitions/:id/tasks", competitionService.ListTasks)
	secured.Put("/competitions/:id/tasks/:task_id", competitionService.UpdateTask)

	// Completions
	secured.Post("/weeks/:week_id/tasks/:task_id/complete", competitionService.SelfReportCompletion)
	secured.Delete("/weeks/:week_id/tasks/:task_id/complete", competitionService.RemoveSelfCompletion)
	secured.Get("/weeks/:week_id/completions", competitionService.ListWeekCompletions)
	secured.Put("/competitions/:id/completions", competitionService.OrganizerSetCompletion)
	secured.Delete("/competitions/:id/completions/:completion_id", competitionService.OrganizerDeleteCompletion)
}
