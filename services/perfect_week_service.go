package services

import (
	"errors"

	"fitness-challenge-system/models"

	"gorm.io/gorm"
)

// PerfectWeekService credits one token to every participant who completed all
// active tasks in a week. Awards are idempotent per (competition, week, user),
// which is what makes repeated sweeps and force-locks safe.
type PerfectWeekService struct {
	DB     *gorm.DB
	Ledger *LedgerService
}

func NewPerfectWeekService(db *gorm.DB, ledger *LedgerService) *PerfectWeekService {
	return &PerfectWeekService{DB: db, Ledger: ledger}
}

// Detect returns the user ids who completed every active task template in the
// week. An empty active-task list qualifies nobody.
func (s *PerfectWeekService) Detect(competitionID, weekID string) ([]string, error) {
	var activeTaskIDs []string
	if err := s.DB.Model(&models.TaskTemplate{}).
		Where("competition_id = ? AND active = ?", competitionID, true).
		Pluck("id", &activeTaskIDs).Error; err != nil {
		return nil, err
	}
	if len(activeTaskIDs) == 0 {
		return nil, nil
	}

	var participants []models.Participant
	if err := s.DB.Where("competition_id = ?", competitionID).Find(&participants).Error; err != nil {
		return nil, err
	}

	var qualified []string
	for _, p := range participants {
		var done int64
		if err := s.DB.Model(&models.Completion{}).
			Distinct("task_template_id").
			Where("week_id = ? AND user_id = ? AND task_template_id IN ?", weekID, p.UserID, activeTaskIDs).
			Count(&done).Error; err != nil {
			return nil, err
		}
		if done == int64(len(activeTaskIDs)) {
			qualified = append(qualified, p.UserID)
		}
	}
	return qualified, nil
}

// AwardResult reports what AwardIdempotent did.
type AwardResult struct {
	Awarded        int `json:"awarded"`
	AlreadyAwarded int `json:"already_awarded"`
}

// AwardIdempotent detects qualifiers and credits one token each, skipping
// users who already hold a perfect-week entry for this week.
func (s *PerfectWeekService) AwardIdempotent(competitionID, weekID string) (*AwardResult, error) {
	qualified, err := s.Detect(competitionID, weekID)
	if err != nil {
		return nil, err
	}

	result := &AwardResult{}
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		for _, userID := range qualified {
			var existing int64
			if err := tx.Model(&models.TokenLedgerEntry{}).
				Where("competition_id = ? AND week_id = ? AND user_id = ? AND reason = ?",
					competitionID, weekID, userID, models.TokenReasonPerfectWeek).
				Count(&existing).Error; err != nil {
				return err
			}
			if existing > 0 {
				result.AlreadyAwarded++
				continue
			}
			if err := s.Ledger.Append(tx, competitionID, userID, &weekID, 1, models.TokenReasonPerfectWeek, nil); err != nil {
				return err
			}
			result.Awarded++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RecalcResult reports a recalculation diff.
type RecalcResult struct {
	Awarded   int `json:"awarded"`
	Revoked   int `json:"revoked"`
	Unchanged int `json:"unchanged"`
}

// Recalculate re-detects qualifiers for a locked week and diffs them against
// existing perfect-week entries: missing awards are inserted, entries for
// users who no longer qualify are hard-deleted (the single exception to ledger
// immutability). Organizer only.
func (s *PerfectWeekService) Recalculate(actorID, competitionID, weekID string) (*RecalcResult, error) {
	var comp models.Competition
	if err := s.DB.First(&comp, "id = ?", competitionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "competition"}
		}
		return nil, err
	}
	if comp.OrganizerID != actorID {
		return nil, &AuthorizationError{Message: "only the organizer can recalculate perfect-week tokens"}
	}

	var week models.Week
	if err := s.DB.First(&week, "id = ? AND competition_id = ?", weekID, competitionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "week"}
		}
		return nil, err
	}
	if week.Status != models.WeekStatusLocked {
		return nil, &StateConflictError{Message: "perfect-week tokens can only be recalculated for locked weeks"}
	}

	qualified, err := s.Detect(competitionID, weekID)
	if err != nil {
		return nil, err
	}
	qualifiedSet := make(map[string]bool, len(qualified))
	for _, id := range qualified {
		qualifiedSet[id] = true
	}

	var existing []models.TokenLedgerEntry
	if err := s.DB.Where("competition_id = ? AND week_id = ? AND reason = ?",
		competitionID, weekID, models.TokenReasonPerfectWeek).
		Find(&existing).Error; err != nil {
		return nil, err
	}
	existingSet := make(map[string]bool, len(existing))
	for _, e := range existing {
		existingSet[e.UserID] = true
	}

	result := &RecalcResult{}
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		for _, userID := range qualified {
			if existingSet[userID] {
				result.Unchanged++
				continue
			}
			if err := s.Ledger.Append(tx, competitionID, userID, &weekID, 1, models.TokenReasonPerfectWeek, nil); err != nil {
				return err
			}
			result.Awarded++
		}
		for _, e := range existing {
			if qualifiedSet[e.UserID] {
				continue
			}
			if err := tx.Delete(&models.TokenLedgerEntry{}, "id = ?", e.ID).Error; err != nil {
				return err
			}
			result.Revoked++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
