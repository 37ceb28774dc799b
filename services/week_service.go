package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"fitness-challenge-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WeekService derives week windows from the competition start date and runs
// the lock sweep. The persisted status column is authoritative once written;
// only the sweep and organizer overrides touch it.
type WeekService struct {
	DB          *gorm.DB
	PerfectWeek *PerfectWeekService
	Wagers      *SideChallengeService
}

func NewWeekService(db *gorm.DB, perfectWeek *PerfectWeekService, wagers *SideChallengeService) *WeekService {
	return &WeekService{DB: db, PerfectWeek: perfectWeek, Wagers: wagers}
}

// WeekWindow is a derived [start, end) boundary pair.
type WeekWindow struct {
	Index    int
	StartsAt time.Time
	EndsAt   time.Time
}

// WeekWindows computes the 7-day blocks of a competition.
func WeekWindows(startDate time.Time, numWeeks int) []WeekWindow {
	windows := make([]WeekWindow, 0, numWeeks)
	for i := 0; i < numWeeks; i++ {
		start := startDate.Add(time.Duration(i) * 7 * 24 * time.Hour)
		windows = append(windows, WeekWindow{
			Index:    i,
			StartsAt: start,
			EndsAt:   start.Add(7 * 24 * time.Hour),
		})
	}
	return windows
}

// DeriveStatus is the pure clock-based status, used for display and for
// seeding new weeks. It never overrides a persisted status by itself.
func DeriveStatus(now, startsAt, endsAt time.Time) models.WeekStatus {
	switch {
	case now.Before(startsAt):
		return models.WeekStatusUpcoming
	case now.After(endsAt):
		return models.WeekStatusLocked
	default:
		return models.WeekStatusOpen
	}
}

// GenerateWeeks bulk-creates a competition's weeks on the given handle.
func (s *WeekService) GenerateWeeks(tx *gorm.DB, comp *models.Competition) error {
	now := time.Now()
	for _, w := range WeekWindows(comp.StartDate, comp.NumWeeks) {
		week := models.Week{
			ID:            uuid.NewString(),
			CompetitionID: comp.ID,
			WeekIndex:     w.Index,
			StartsAt:      w.StartsAt,
			EndsAt:        w.EndsAt,
			Status:        DeriveStatus(now, w.StartsAt, w.EndsAt),
		}
		if week.Status == models.WeekStatusLocked {
			week.LockedAt = &now
		}
		if err := tx.Create(&week).Error; err != nil {
			return err
		}
	}
	return nil
}

// RegenerateWeeks recomputes boundaries after a start-date or week-count
// change. Statuses re-derive from the clock; weeks whose window is unchanged
// keep their persisted state. Lock side effects are never re-run here — that
// stays with the sweep and force-lock.
func (s *WeekService) RegenerateWeeks(tx *gorm.DB, comp *models.Competition) error {
	var existing []models.Week
	if err := tx.Where("competition_id = ?", comp.ID).Order("week_index ASC").Find(&existing).Error; err != nil {
		return err
	}
	byIndex := make(map[int]*models.Week, len(existing))
	for i := range existing {
		byIndex[existing[i].WeekIndex] = &existing[i]
	}

	now := time.Now()
	for _, w := range WeekWindows(comp.StartDate, comp.NumWeeks) {
		if week, ok := byIndex[w.Index]; ok {
			delete(byIndex, w.Index)
			if week.StartsAt.Equal(w.StartsAt) && week.EndsAt.Equal(w.EndsAt) {
				continue
			}
			status := DeriveStatus(now, w.StartsAt, w.EndsAt)
			updates := map[string]interface{}{
				"starts_at": w.StartsAt,
				"ends_at":   w.EndsAt,
				"status":    status,
				"locked_at": nil,
			}
			if status == models.WeekStatusLocked {
				updates["locked_at"] = now
			}
			if err := tx.Model(week).Updates(updates).Error; err != nil {
				return err
			}
			continue
		}
		status := DeriveStatus(now, w.StartsAt, w.EndsAt)
		week := models.Week{
			ID:            uuid.NewString(),
			CompetitionID: comp.ID,
			WeekIndex:     w.Index,
			StartsAt:      w.StartsAt,
			EndsAt:        w.EndsAt,
			Status:        status,
		}
		if status == models.WeekStatusLocked {
			week.LockedAt = &now
		}
		if err := tx.Create(&week).Error; err != nil {
			return err
		}
	}

	// Weeks past the new count are dropped.
	for _, week := range byIndex {
		if err := tx.Delete(&models.Week{}, "id = ?", week.ID).Error; err != nil {
			return err
		}
	}
	return nil
}

// WeekSweepSummary reports the side effects of locking a single week.
type WeekSweepSummary struct {
	WeekID          string   `json:"week_id"`
	CompetitionID   string   `json:"competition_id"`
	WeekIndex       int      `json:"week_index"`
	TokensAwarded   int      `json:"tokens_awarded"`
	WagersResolved  int      `json:"wagers_resolved"`
	WagersVoided    int      `json:"wagers_voided"`
	SideEffectError string   `json:"side_effect_error,omitempty"`
}

// SweepResult reports one pass of the lock sweep.
type SweepResult struct {
	Locked int                `json:"locked"`
	Opened int                `json:"opened"`
	Weeks  []WeekSweepSummary `json:"weeks"`
}

// RunSweep locks every open week whose window has passed, then opens every
// upcoming week whose window has arrived. Re-running against an unchanged
// world performs no writes. Side effects of a lock are best-effort: failures
// are logged per week and never abort the sweep or roll back the lock itself.
func (s *WeekService) RunSweep(now time.Time) (*SweepResult, error) {
	result := &SweepResult{Weeks: []WeekSweepSummary{}}

	var due []models.Week
	if err := s.DB.Where("status = ? AND ends_at < ?", models.WeekStatusOpen, now).Find(&due).Error; err != nil {
		return nil, err
	}
	for i := range due {
		week := &due[i]
		if err := s.DB.Model(week).Updates(map[string]interface{}{
			"status":    models.WeekStatusLocked,
			"locked_at": now,
		}).Error; err != nil {
			log.Printf("⚠️  [Sweep] failed to lock week %d of %s: %v", week.WeekIndex, week.CompetitionID, err)
			continue
		}
		result.Locked++
		result.Weeks = append(result.Weeks, s.runLockEffects(week))
	}

	var opening []models.Week
	if err := s.DB.Where("status = ? AND starts_at <= ? AND ends_at >= ?",
		models.WeekStatusUpcoming, now, now).Find(&opening).Error; err != nil {
		return nil, err
	}
	for i := range opening {
		if err := s.DB.Model(&opening[i]).Update("status", models.WeekStatusOpen).Error; err != nil {
			log.Printf("⚠️  [Sweep] failed to open week %d of %s: %v", opening[i].WeekIndex, opening[i].CompetitionID, err)
			continue
		}
		result.Opened++
	}

	if result.Locked > 0 || result.Opened > 0 {
		log.Printf("🧹 [Sweep] locked %d, opened %d weeks", result.Locked, result.Opened)
	}
	return result, nil
}

// runLockEffects runs the two best-effort lock side effects for one week:
// perfect-week token award, then side-challenge cleanup.
func (s *WeekService) runLockEffects(week *models.Week) WeekSweepSummary {
	summary := WeekSweepSummary{
		WeekID:        week.ID,
		CompetitionID: week.CompetitionID,
		WeekIndex:     week.WeekIndex,
	}

	award, err := s.PerfectWeek.AwardIdempotent(week.CompetitionID, week.ID)
	if err != nil {
		log.Printf("⚠️  [Sweep] perfect-week award failed for week %d of %s: %v", week.WeekIndex, week.CompetitionID, err)
		summary.SideEffectError = err.Error()
	} else {
		summary.TokensAwarded = award.Awarded
	}

	resolved, voided, err := s.Wagers.CleanupWeek(week.CompetitionID, week.ID)
	if err != nil {
		log.Printf("⚠️  [Sweep] side-challenge cleanup failed for week %d of %s: %v", week.WeekIndex, week.CompetitionID, err)
		if summary.SideEffectError == "" {
			summary.SideEffectError = err.Error()
		}
	}
	summary.WagersResolved = resolved
	summary.WagersVoided = voided
	return summary
}

// ForceLock locks a week regardless of timing (organizer only) and runs the
// same side effects as the automatic sweep.
func (s *WeekService) ForceLock(actorID, competitionID, weekID string) (*WeekSweepSummary, error) {
	week, err := s.authorizeOverride(actorID, competitionID, weekID)
	if err != nil {
		return nil, err
	}
	if week.Status == models.WeekStatusLocked {
		return nil, &StateConflictError{Message: "week is already locked"}
	}
	now := time.Now()
	if err := s.DB.Model(week).Updates(map[string]interface{}{
		"status":    models.WeekStatusLocked,
		"locked_at": now,
	}).Error; err != nil {
		return nil, err
	}
	summary := s.runLockEffects(week)
	return &summary, nil
}

// ForceUnlock reopens a locked week (organizer only). No side effects run.
func (s *WeekService) ForceUnlock(actorID, competitionID, weekID string) (*models.Week, error) {
	week, err := s.authorizeOverride(actorID, competitionID, weekID)
	if err != nil {
		return nil, err
	}
	if week.Status != models.WeekStatusLocked {
		return nil, &StateConflictError{Message: fmt.Sprintf("week is %s, only locked weeks can be unlocked", week.Status)}
	}
	if err := s.DB.Model(week).Updates(map[string]interface{}{
		"status":    models.WeekStatusOpen,
		"locked_at": nil,
	}).Error; err != nil {
		return nil, err
	}
	week.Status = models.WeekStatusOpen
	week.LockedAt = nil
	return week, nil
}

func (s *WeekService) authorizeOverride(actorID, competitionID, weekID string) (*models.Week, error) {
	var comp models.Competition
	if err := s.DB.First(&comp, "id = ?", competitionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "competition"}
		}
		return nil, err
	}
	if comp.OrganizerID != actorID {
		return nil, &AuthorizationError{Message: "only the organizer can override week status"}
	}
	var week models.Week
	if err := s.DB.First(&week, "id = ? AND competition_id = ?", weekID, competitionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "week"}
		}
		return nil, err
	}
	return &week, nil
}
