package services

import (
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strconv"
	"time"

	"fitness-challenge-system/models"
	"fitness-challenge-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// CompetitionService owns competition, participant, task-template and
// completion CRUD. Methods are Fiber handlers; the acting user id comes from
// the auth middleware via c.Locals("user_id").
type CompetitionService struct {
	DB    *gorm.DB
	Weeks *WeekService
}

func NewCompetitionService(db *gorm.DB, weeks *WeekService) *CompetitionService {
	return &CompetitionService{DB: db, Weeks: weeks}
}

// validatePrizeConfig enforces the advisory aggregate cap:
// weekly% × numWeeks + grand% + tokenChampion% ≤ 100.
func validatePrizeConfig(weekly, grand, champ float64, numWeeks int) error {
	if weekly < 0 || grand < 0 || champ < 0 {
		return &ValidationError{Field: "prize_percent", Message: "prize percentages cannot be negative"}
	}
	if weekly*float64(numWeeks)+grand+champ > 100 {
		return &ValidationError{Field: "prize_percent", Message: "prize percentages exceed 100% of the pool across all weeks"}
	}
	return nil
}

func (s *CompetitionService) uniqueSlug(name string) string {
	base := slug.Make(name)
	candidate := base
	for i := 2; ; i++ {
		var count int64
		s.DB.Model(&models.Competition{}).Where("slug = ?", candidate).Count(&count)
		if count == 0 {
			return candidate
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
}

// CreateCompetition creates a competition from a multipart form, bulk-generates
// its weeks and auto-joins the organizer as a paid participant.
func (s *CompetitionService) CreateCompetition(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	name := c.FormValue("name")
	startDateStr := c.FormValue("start_date")
	numWeeksStr := c.FormValue("num_weeks")
	if name == "" || startDateStr == "" || numWeeksStr == "" {
		return RespondError(c, &ValidationError{Field: "name", Message: "name, start_date and num_weeks are required"})
	}

	startDate, err := time.Parse(time.RFC3339, startDateStr)
	if err != nil {
		return RespondError(c, &ValidationError{Field: "start_date", Message: "invalid start_date (use RFC3339)"})
	}
	numWeeks, err := strconv.Atoi(numWeeksStr)
	if err != nil || numWeeks <= 0 {
		return RespondError(c, &ValidationError{Field: "num_weeks", Message: "num_weeks must be a positive integer"})
	}

	buyIn := parseFloatForm(c, "buy_in_amount")
	weekly := parseFloatForm(c, "weekly_prize_percent")
	grand := parseFloatForm(c, "grand_prize_percent")
	champ := parseFloatForm(c, "token_champion_percent")
	if err := validatePrizeConfig(weekly, grand, champ, numWeeks); err != nil {
		return RespondError(c, err)
	}

	var coverURL string
	if photo, err := c.FormFile("cover_photo"); err == nil && photo.Size > 0 {
		ext := filepath.Ext(photo.Filename)
		if ext == "" {
			ext = ".jpg"
		}
		key := "competitions/covers/" + uuid.NewString() + ext
		url, err := utils.UploadFileToR2(photo, key)
		if err != nil {
			log.Printf("⚠️  cover photo upload failed: %v", err)
			return RespondError(c, err)
		}
		coverURL = url
	}

	comp := &models.Competition{
		ID:                   uuid.NewString(),
		Name:                 name,
		Slug:                 s.uniqueSlug(name),
		OrganizerID:          userID,
		StartDate:            startDate,
		NumWeeks:             numWeeks,
		BuyInAmount:          buyIn,
		WeeklyPrizePercent:   weekly,
		GrandPrizePercent:    grand,
		TokenChampionPercent: champ,
		CoverPhotoURL:        coverURL,
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(comp).Error; err != nil {
			return err
		}
		organizer := models.Participant{
			ID:            uuid.NewString(),
			CompetitionID: comp.ID,
			UserID:        userID,
			PaidBuyIn:     true,
		}
		if err := tx.Create(&organizer).Error; err != nil {
			return err
		}
		return s.Weeks.GenerateWeeks(tx, comp)
	})
	if err != nil {
		return RespondError(c, err)
	}

	s.DB.Preload("Weeks", func(db *gorm.DB) *gorm.DB {
		return db.Order("week_index ASC")
	}).Preload("Participants").First(comp, "id = ?", comp.ID)
	return c.Status(fiber.StatusCreated).JSON(comp)
}

// GetCompetition returns a competition with weeks, tasks and participants.
func (s *CompetitionService) GetCompetition(c *fiber.Ctx) error {
	var comp models.Competition
	err := s.DB.
		Preload("Weeks", func(db *gorm.DB) *gorm.DB { return db.Order("week_index ASC") }).
		Preload("Tasks", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC") }).
		Preload("Participants.User").
		First(&comp, "id = ?", c.Params("id")).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return RespondError(c, &NotFoundError{Resource: "competition"})
		}
		return RespondError(c, err)
	}
	return c.JSON(comp)
}

// ListMyCompetitions returns competitions the acting user participates in.
func (s *CompetitionService) ListMyCompetitions(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	var comps []models.Competition
	err := s.DB.
		Joins("JOIN participants ON participants.competition_id = competitions.id").
		Where("participants.user_id = ?", userID).
		Order("competitions.start_date DESC").
		Find(&comps).Error
	if err != nil {
		return RespondError(c, err)
	}
	return c.JSON(comps)
}

// UpdateCompetition edits competition settings (organizer only). A changed
// start date or week count regenerates the week windows.
func (s *CompetitionService) UpdateCompetition(c *fiber.Ctx) error {
	comp, err := s.loadOwned(c)
	if err != nil {
		return RespondError(c, err)
	}

	if name := c.FormValue("name"); name != "" {
		comp.Name = name
	}
	regen := false
	if v := c.FormValue("start_date"); v != "" {
		startDate, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return RespondError(c, &ValidationError{Field: "start_date", Message: "invalid start_date (use RFC3339)"})
		}
		if !startDate.Equal(comp.StartDate) {
			comp.StartDate = startDate
			regen = true
		}
	}
	if v := c.FormValue("num_weeks"); v != "" {
		numWeeks, err := strconv.Atoi(v)
		if err != nil || numWeeks <= 0 {
			return RespondError(c, &ValidationError{Field: "num_weeks", Message: "num_weeks must be a positive integer"})
		}
		if numWeeks != comp.NumWeeks {
			comp.NumWeeks = numWeeks
			regen = true
		}
	}
	if v := c.FormValue("buy_in_amount"); v != "" {
		comp.BuyInAmount = parseFloatForm(c, "buy_in_amount")
	}
	if v := c.FormValue("weekly_prize_percent"); v != "" {
		comp.WeeklyPrizePercent = parseFloatForm(c, "weekly_prize_percent")
	}
	if v := c.FormValue("grand_prize_percent"); v != "" {
		comp.GrandPrizePercent = parseFloatForm(c, "grand_prize_percent")
	}
	if v := c.FormValue("token_champion_percent"); v != "" {
		comp.TokenChampionPercent = parseFloatForm(c, "token_champion_percent")
	}
	if err := validatePrizeConfig(comp.WeeklyPrizePercent, comp.GrandPrizePercent, comp.TokenChampionPercent, comp.NumWeeks); err != nil {
		return RespondError(c, err)
	}

	if photo, err := c.FormFile("cover_photo"); err == nil && photo.Size > 0 {
		ext := filepath.Ext(photo.Filename)
		if ext == "" {
			ext = ".jpg"
		}
		key := "competitions/covers/" + uuid.NewString() + ext
		url, err := utils.UploadFileToR2(photo, key)
		if err != nil {
			return RespondError(c, err)
		}
		comp.CoverPhotoURL = url
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(comp).Error; err != nil {
			return err
		}
		if regen {
			return s.Weeks.RegenerateWeeks(tx, comp)
		}
		return nil
	})
	if err != nil {
		return RespondError(c, err)
	}
	return c.JSON(comp)
}

// DeleteCompetition removes a competition and everything under it.
func (s *CompetitionService) DeleteCompetition(c *fiber.Ctx) error {
	comp, err := s.loadOwned(c)
	if err != nil {
		return RespondError(c, err)
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		var wagerIDs []string
		if err := tx.Model(&models.SideChallenge{}).
			Where("competition_id = ?", comp.ID).Pluck("id", &wagerIDs).Error; err != nil {
			return err
		}
		if len(wagerIDs) > 0 {
			if err := tx.Delete(&models.SideChallengeSubmission{}, "side_challenge_id IN ?", wagerIDs).Error; err != nil {
				return err
			}
		}
		var weekIDs []string
		if err := tx.Model(&models.Week{}).
			Where("competition_id = ?", comp.ID).Pluck("id", &weekIDs).Error; err != nil {
			return err
		}
		if len(weekIDs) > 0 {
			if err := tx.Delete(&models.Completion{}, "week_id IN ?", weekIDs).Error; err != nil {
				return err
			}
		}
		for _, m := range []interface{}{
			&models.SideChallenge{}, &models.TokenLedgerEntry{}, &models.TaskTemplate{},
			&models.Participant{}, &models.Week{},
		} {
			if err := tx.Delete(m, "competition_id = ?", comp.ID).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&models.Competition{}, "id = ?", comp.ID).Error
	})
	if err != nil {
		return RespondError(c, err)
	}
	return c.JSON(fiber.Map{"deleted": comp.ID})
}

// InviteParticipant adds a user to the competition by email (organizer only).
func (s *CompetitionService) InviteParticipant(c *fiber.Ctx) error {
	comp, err := s.loadOwned(c)
	if err != nil {
		return RespondError(c, err)
	}

	var req struct {
		Email string `json:"email"`
	}
	if err := c.BodyParser(&req); err != nil || req.Email == "" {
		return RespondError(c, &ValidationError{Field: "email", Message: "email is required"})
	}

	var user models.User
	if err := s.DB.First(&user, "email = ?", req.Email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return RespondError(c, &NotFoundError{Resource: "user"})
		}
		return RespondError(c, err)
	}

	var existing int64
	s.DB.Model(&models.Participant{}).
		Where("competition_id = ? AND user_id = ?", comp.ID, user.ID).
		Count(&existing)
	if existing > 0 {
		return RespondError(c, &StateConflictError{Message: "user is already a participant"})
	}

	participant := models.Participant{
		ID:            uuid.NewString(),
		CompetitionID: comp.ID,
		UserID:        user.ID,
	}
	if err := s.DB.Create(&participant).Error; err != nil {
		return RespondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(participant)
}

// ListParticipants lists the competition's participants with user info.
func (s *CompetitionService) ListParticipants(c *fiber.Ctx) error {
	var participants []models.Participant
	err := s.DB.Preload("User").
		Where("competition_id = ?", c.Params("id")).
		Order("joined_at ASC").
		Find(&participants).Error
	if err != nil {
		return RespondError(c, err)
	}
	return c.JSON(participants)
}

// MarkBuyInPaid flags a participant's buy-in as received (organizer only).
func (s *CompetitionService) MarkBuyInPaid(c *fiber.Ctx) error {
	comp, err := s.loadOwned(c)
	if err != nil {
		return RespondError(c, err)
	}
	res := s.DB.Model(&models.Participant{}).
		Where("competition_id = ? AND user_id = ?", comp.ID, c.Params("user_id")).
		Update("paid_buy_in", true)
	if res.Error != nil {
		return RespondError(c, res.Error)
	}
	if res.RowsAffected == 0 {
		return RespondError(c, &NotFoundError{Resource: "participant"})
	}
	return c.JSON(fiber.Map{"paid_buy_in": true})
}

// --- Task templates ---

// CreateTask adds a weekly task template (organizer only).
func (s *CompetitionService) CreateTask(c *fiber.Ctx) error {
	comp, err := s.loadOwned(c)
	if err != nil {
		return RespondError(c, err)
	}

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		PointValue  int    `json:"point_value"`
		SortOrder   int    `json:"sort_order"`
	}
	if err := c.BodyParser(&req); err != nil {
		return RespondError(c, &ValidationError{Field: "body", Message: "invalid JSON body"})
	}
	if req.Name == "" {
		return RespondError(c, &ValidationError{Field: "name", Message: "name is required"})
	}
	if req.PointValue <= 0 {
		return RespondError(c, &ValidationError{Field: "point_value", Message: "point_value must be positive"})
	}

	task := models.TaskTemplate{
		ID:            uuid.NewString(),
		CompetitionID: comp.ID,
		Name:          req.Name,
		Description:   req.Description,
		PointValue:    req.PointValue,
		Active:        true,
		SortOrder:     req.SortOrder,
	}
	if err := s.DB.Create(&task).Error; err != nil {
		return RespondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(task)
}

// UpdateTask edits a task template, including retiring it via active=false
// (organizer only). Templates are never hard-deleted.
func (s *CompetitionService) UpdateTask(c *fiber.Ctx) error {
	comp, err := s.loadOwned(c)
	if err != nil {
		return RespondError(c, err)
	}

	var task models.TaskTemplate
	if err := s.DB.First(&task, "id = ? AND competition_id = ?", c.Params("task_id"), comp.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return RespondError(c, &NotFoundError{Resource: "task"})
		}
		return RespondError(c, err)
	}

	var req struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
		PointValue  *int    `json:"point_value"`
		Active      *bool   `json:"active"`
		SortOrder   *int    `json:"sort_order"`
	}
	if err := c.BodyParser(&req); err != nil {
		return RespondError(c, &ValidationError{Field: "body", Message: "invalid JSON body"})
	}
	if req.Name != nil {
		task.Name = *req.Name
	}
	if req.Description != nil {
		task.Description = *req.Description
	}
	if req.PointValue != nil {
		if *req.PointValue <= 0 {
			return RespondError(c, &ValidationError{Field: "point_value", Message: "point_value must be positive"})
		}
		task.PointValue = *req.PointValue
	}
	if req.Active != nil {
		task.Active = *req.Active
	}
	if req.SortOrder != nil {
		task.SortOrder = *req.SortOrder
	}
	if err := s.DB.Save(&task).Error; err != nil {
		return RespondError(c, err)
	}
	return c.JSON(task)
}

// ListTasks lists a competition's task templates, retired ones included.
func (s *CompetitionService) ListTasks(c *fiber.Ctx) error {
	var tasks []models.TaskTemplate
	err := s.DB.Where("competition_id = ?", c.Params("id")).
		Order("sort_order ASC").
		Find(&tasks).Error
	if err != nil {
		return RespondError(c, err)
	}
	return c.JSON(tasks)
}

// --- Completions ---

// SelfReportCompletion records the acting user's own completion while the
// week is open.
func (s *CompetitionService) SelfReportCompletion(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	completion, err := s.upsertCompletion(userID, c.Params("week_id"), c.Params("task_id"), userID, models.CompletionSourceSelf, "")
	if err != nil {
		return RespondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(completion)
}

// RemoveSelfCompletion deletes the acting user's own completion while the
// week is open.
func (s *CompetitionService) RemoveSelfCompletion(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	week, err := s.loadWeek(c.Params("week_id"))
	if err != nil {
		return RespondError(c, err)
	}
	if week.Status != models.WeekStatusOpen {
		return RespondError(c, &StateConflictError{Message: "week is not open for self-reported changes"})
	}
	res := s.DB.Delete(&models.Completion{},
		"week_id = ? AND task_template_id = ? AND user_id = ?", week.ID, c.Params("task_id"), userID)
	if res.Error != nil {
		return RespondError(c, res.Error)
	}
	if res.RowsAffected == 0 {
		return RespondError(c, &NotFoundError{Resource: "completion"})
	}
	return c.JSON(fiber.Map{"removed": true})
}

// OrganizerSetCompletion creates or updates a completion for any participant,
// regardless of week status, recording the editor and an optional note.
func (s *CompetitionService) OrganizerSetCompletion(c *fiber.Ctx) error {
	actorID := c.Locals("user_id").(string)
	comp, err := s.loadOwned(c)
	if err != nil {
		return RespondError(c, err)
	}

	var req struct {
		UserID string `json:"user_id"`
		TaskID string `json:"task_id"`
		WeekID string `json:"week_id"`
		Note   string `json:"note"`
	}
	if err := c.BodyParser(&req); err != nil || req.UserID == "" || req.TaskID == "" || req.WeekID == "" {
		return RespondError(c, &ValidationError{Field: "body", Message: "user_id, task_id and week_id are required"})
	}

	var participant int64
	s.DB.Model(&models.Participant{}).
		Where("competition_id = ? AND user_id = ?", comp.ID, req.UserID).
		Count(&participant)
	if participant == 0 {
		return RespondError(c, &NotFoundError{Resource: "participant"})
	}

	completion, err := s.upsertCompletion(actorID, req.WeekID, req.TaskID, req.UserID, models.CompletionSourceOrganizer, req.Note)
	if err != nil {
		return RespondError(c, err)
	}
	return c.JSON(completion)
}

// OrganizerDeleteCompletion removes any completion regardless of week status.
func (s *CompetitionService) OrganizerDeleteCompletion(c *fiber.Ctx) error {
	_, err := s.loadOwned(c)
	if err != nil {
		return RespondError(c, err)
	}
	res := s.DB.Delete(&models.Completion{}, "id = ?", c.Params("completion_id"))
	if res.Error != nil {
		return RespondError(c, res.Error)
	}
	if res.RowsAffected == 0 {
		return RespondError(c, &NotFoundError{Resource: "completion"})
	}
	return c.JSON(fiber.Map{"removed": true})
}

// ListWeekCompletions lists a week's completions.
func (s *CompetitionService) ListWeekCompletions(c *fiber.Ctx) error {
	var completions []models.Completion
	err := s.DB.Where("week_id = ?", c.Params("week_id")).
		Order("created_at ASC").
		Find(&completions).Error
	if err != nil {
		return RespondError(c, err)
	}
	return c.JSON(completions)
}

func (s *CompetitionService) upsertCompletion(actorID, weekID, taskID, userID string, source models.CompletionSource, note string) (*models.Completion, error) {
	week, err := s.loadWeek(weekID)
	if err != nil {
		return nil, err
	}
	if source == models.CompletionSourceSelf && week.Status != models.WeekStatusOpen {
		return nil, &StateConflictError{Message: "week is not open for self-reported completions"}
	}

	var member int64
	if err := s.DB.Model(&models.Participant{}).
		Where("competition_id = ? AND user_id = ?", week.CompetitionID, userID).
		Count(&member).Error; err != nil {
		return nil, err
	}
	if member == 0 {
		return nil, &AuthorizationError{Message: "only participants can log completions"}
	}

	var task models.TaskTemplate
	if err := s.DB.First(&task, "id = ? AND competition_id = ?", taskID, week.CompetitionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "task"}
		}
		return nil, err
	}
	if source == models.CompletionSourceSelf && !task.Active {
		return nil, &StateConflictError{Message: "task is no longer active"}
	}

	var completion models.Completion
	err = s.DB.Where("week_id = ? AND task_template_id = ? AND user_id = ?", weekID, taskID, userID).
		First(&completion).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		completion = models.Completion{
			ID:             uuid.NewString(),
			WeekID:         weekID,
			TaskTemplateID: taskID,
			UserID:         userID,
			Source:         source,
			Note:           note,
		}
		if source == models.CompletionSourceOrganizer {
			completion.EditedByID = &actorID
		}
		if err := s.DB.Create(&completion).Error; err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		if source == models.CompletionSourceSelf {
			return nil, &StateConflictError{Message: "task already completed this week"}
		}
		completion.Source = source
		completion.EditedByID = &actorID
		completion.Note = note
		if err := s.DB.Save(&completion).Error; err != nil {
			return nil, err
		}
	}
	return &completion, nil
}

func (s *CompetitionService) loadWeek(weekID string) (*models.Week, error) {
	var week models.Week
	if err := s.DB.First(&week, "id = ?", weekID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "week"}
		}
		return nil, err
	}
	return &week, nil
}

// loadOwned fetches the competition in :id and checks the acting user is its
// organizer.
func (s *CompetitionService) loadOwned(c *fiber.Ctx) (*models.Competition, error) {
	userID := c.Locals("user_id").(string)
	var comp models.Competition
	if err := s.DB.First(&comp, "id = ?", c.Params("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "competition"}
		}
		return nil, err
	}
	if comp.OrganizerID != userID {
		return nil, &AuthorizationError{Message: "only the organizer can do this"}
	}
	return &comp, nil
}

func parseFloatForm(c *fiber.Ctx, field string) float64 {
	v := c.FormValue(field)
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return 0
	}
	return f
}
