package services

import (
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"fitness-challenge-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultWagerExpiry = 48 * time.Hour

// SideChallengeService runs the head-to-head wager workflow: propose, accept,
// decline, submit, resolve, void, and the week-lock cleanup. Every transition
// that moves tokens executes as one transaction with its ledger entries.
type SideChallengeService struct {
	DB     *gorm.DB
	Ledger *LedgerService
}

func NewSideChallengeService(db *gorm.DB, ledger *LedgerService) *SideChallengeService {
	return &SideChallengeService{DB: db, Ledger: ledger}
}

// ProposeRequest carries the fields of a new wager.
type ProposeRequest struct {
	CompetitionID string            `json:"competition_id"`
	WeekID        string            `json:"week_id"`
	OpponentID    string            `json:"opponent_id"`
	Title         string            `json:"title"`
	Rules         string            `json:"rules"`
	MetricType    models.MetricType `json:"metric_type"`
	Unit          string            `json:"unit"`
	TargetValue   *float64          `json:"target_value,omitempty"`
	Stake         int               `json:"stake"`
	ExpiresAt     *time.Time        `json:"expires_at,omitempty"`
}

// Propose creates a wager and stakes the creator's tokens in one transaction.
func (s *SideChallengeService) Propose(creatorID string, req ProposeRequest) (*models.SideChallenge, error) {
	if req.Title == "" {
		return nil, &ValidationError{Field: "title", Message: "title is required"}
	}
	if req.Stake <= 0 {
		return nil, &ValidationError{Field: "stake", Message: "stake must be a positive token amount"}
	}
	switch req.MetricType {
	case models.MetricHigherWins, models.MetricLowerWins:
		if req.TargetValue != nil {
			return nil, &ValidationError{Field: "target_value", Message: "target_value only applies to target_threshold wagers"}
		}
	case models.MetricTargetThreshold:
		if req.TargetValue == nil {
			return nil, &ValidationError{Field: "target_value", Message: "target_value is required for target_threshold wagers"}
		}
	default:
		return nil, &ValidationError{Field: "metric_type", Message: "metric_type must be higher_wins, lower_wins or target_threshold"}
	}
	if creatorID == req.OpponentID {
		return nil, &AuthorizationError{Message: "you cannot challenge yourself"}
	}

	var week models.Week
	if err := s.DB.First(&week, "id = ? AND competition_id = ?", req.WeekID, req.CompetitionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "week"}
		}
		return nil, err
	}
	if week.Status == models.WeekStatusLocked {
		return nil, &StateConflictError{Message: "week is locked, no new side challenges"}
	}

	for _, userID := range []string{creatorID, req.OpponentID} {
		var count int64
		if err := s.DB.Model(&models.Participant{}).
			Where("competition_id = ? AND user_id = ?", req.CompetitionID, userID).
			Count(&count).Error; err != nil {
			return nil, err
		}
		if count == 0 {
			return nil, &AuthorizationError{Message: "both sides must be participants of the competition"}
		}
	}

	// One live wager per pair per week, in either direction.
	var dup int64
	if err := s.DB.Model(&models.SideChallenge{}).
		Where("week_id = ? AND status IN ?", req.WeekID,
			[]models.SideChallengeStatus{models.SideChallengeStatusProposed, models.SideChallengeStatusAccepted}).
		Where("(creator_id = ? AND opponent_id = ?) OR (creator_id = ? AND opponent_id = ?)",
			creatorID, req.OpponentID, req.OpponentID, creatorID).
		Count(&dup).Error; err != nil {
		return nil, err
	}
	if dup > 0 {
		return nil, &StateConflictError{Message: "an active side challenge between you two already exists this week"}
	}

	expiresAt := time.Now().Add(defaultWagerExpiry)
	if req.ExpiresAt != nil {
		if req.ExpiresAt.Before(time.Now()) {
			return nil, &ValidationError{Field: "expires_at", Message: "expires_at must be in the future"}
		}
		expiresAt = *req.ExpiresAt
	}

	wager := &models.SideChallenge{
		ID:            uuid.NewString(),
		CompetitionID: req.CompetitionID,
		WeekID:        req.WeekID,
		CreatorID:     creatorID,
		OpponentID:    req.OpponentID,
		Title:         req.Title,
		Rules:         req.Rules,
		MetricType:    req.MetricType,
		Unit:          req.Unit,
		TargetValue:   req.TargetValue,
		Stake:         req.Stake,
		Status:        models.SideChallengeStatusProposed,
		ExpiresAt:     expiresAt,
	}

	// Debit first: the balance check must not count this wager's own stake.
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := s.Ledger.DebitStake(tx, req.CompetitionID, creatorID, req.WeekID, req.Stake, wager.ID); err != nil {
			return err
		}
		return tx.Create(wager).Error
	})
	if err != nil {
		return nil, err
	}
	return wager, nil
}

// Accept moves a proposed wager to accepted and stakes the opponent's tokens.
func (s *SideChallengeService) Accept(userID, wagerID string) (*models.SideChallenge, error) {
	wager, err := s.load(wagerID)
	if err != nil {
		return nil, err
	}
	if wager.OpponentID != userID {
		return nil, &AuthorizationError{Message: "only the challenged user can accept"}
	}
	if wager.Status != models.SideChallengeStatusProposed {
		return nil, &StateConflictError{Message: fmt.Sprintf("side challenge is %s, not proposed", wager.Status)}
	}
	if time.Now().After(wager.ExpiresAt) {
		return nil, &StateConflictError{Message: "side challenge proposal has expired"}
	}
	var week models.Week
	if err := s.DB.First(&week, "id = ?", wager.WeekID).Error; err != nil {
		return nil, err
	}
	if week.Status == models.WeekStatusLocked {
		return nil, &StateConflictError{Message: "week is locked, side challenge can no longer be accepted"}
	}

	now := time.Now()
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := s.Ledger.DebitStake(tx, wager.CompetitionID, userID, wager.WeekID, wager.Stake, wager.ID); err != nil {
			return err
		}
		return tx.Model(wager).Updates(map[string]interface{}{
			"status":      models.SideChallengeStatusAccepted,
			"accepted_at": now,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	wager.Status = models.SideChallengeStatusAccepted
	wager.AcceptedAt = &now
	return wager, nil
}

// Decline ends a proposed wager and refunds the creator's stake. The opponent
// never staked, so nothing else moves.
func (s *SideChallengeService) Decline(userID, wagerID string) (*models.SideChallenge, error) {
	wager, err := s.load(wagerID)
	if err != nil {
		return nil, err
	}
	if wager.OpponentID != userID {
		return nil, &AuthorizationError{Message: "only the challenged user can decline"}
	}
	if wager.Status != models.SideChallengeStatusProposed {
		return nil, &StateConflictError{Message: fmt.Sprintf("side challenge is %s, not proposed", wager.Status)}
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(wager).Update("status", models.SideChallengeStatusDeclined).Error; err != nil {
			return err
		}
		return s.Ledger.Append(tx, wager.CompetitionID, wager.CreatorID, &wager.WeekID, wager.Stake, models.TokenReasonVoidRefund, &wager.ID)
	})
	if err != nil {
		return nil, err
	}
	wager.Status = models.SideChallengeStatusDeclined
	return wager, nil
}

// SubmitResult records one party's value. The second submission resolves the
// wager and settles tokens in the same transaction.
func (s *SideChallengeService) SubmitResult(userID, wagerID string, value float64, displayValue, note string) (*models.SideChallenge, error) {
	wager, err := s.load(wagerID)
	if err != nil {
		return nil, err
	}
	if userID != wager.CreatorID && userID != wager.OpponentID {
		return nil, &AuthorizationError{Message: "only the two parties can submit a result"}
	}
	if wager.Status != models.SideChallengeStatusAccepted {
		return nil, &StateConflictError{Message: fmt.Sprintf("side challenge is %s, results are only accepted while accepted", wager.Status)}
	}

	submission := models.SideChallengeSubmission{
		ID:              uuid.NewString(),
		SideChallengeID: wagerID,
		UserID:          userID,
		Value:           value,
		DisplayValue:    displayValue,
		Note:            note,
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		// Read under the wager-row lock so two concurrent first submissions
		// cannot both see an empty set and skip resolution.
		if tx.Dialector.Name() == "postgres" {
			var locked models.SideChallenge
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				First(&locked, "id = ?", wagerID).Error; err != nil {
				return err
			}
		}
		var existing []models.SideChallengeSubmission
		if err := tx.Where("side_challenge_id = ?", wagerID).Find(&existing).Error; err != nil {
			return err
		}
		for _, sub := range existing {
			if sub.UserID == userID {
				return &StateConflictError{Message: "you already submitted a result for this side challenge"}
			}
		}
		if err := tx.Create(&submission).Error; err != nil {
			return err
		}
		if len(existing) == 0 {
			return nil // first submission, wait for the other side
		}
		all := append(existing, submission)
		return s.resolve(tx, wager, all, "")
	})
	if err != nil {
		return nil, err
	}
	return s.load(wagerID)
}

// Void terminates a non-terminal wager (organizer only) and refunds whatever
// was actually staked: the creator always, the opponent only once accepted.
func (s *SideChallengeService) Void(actorID, wagerID, reason string) (*models.SideChallenge, error) {
	if reason == "" {
		return nil, &ValidationError{Field: "reason", Message: "a reason is required to void a side challenge"}
	}
	wager, err := s.load(wagerID)
	if err != nil {
		return nil, err
	}
	var comp models.Competition
	if err := s.DB.First(&comp, "id = ?", wager.CompetitionID).Error; err != nil {
		return nil, err
	}
	if comp.OrganizerID != actorID {
		return nil, &AuthorizationError{Message: "only the organizer can void a side challenge"}
	}
	if isTerminal(wager.Status) {
		return nil, &StateConflictError{Message: fmt.Sprintf("side challenge is already %s", wager.Status)}
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		return s.void(tx, wager, reason)
	})
	if err != nil {
		return nil, err
	}
	return s.load(wagerID)
}

// List returns a week's wagers, optionally only the acting user's.
func (s *SideChallengeService) List(competitionID, weekID, userID string, mineOnly bool) ([]models.SideChallenge, error) {
	q := s.DB.Preload("Submissions").
		Where("competition_id = ? AND week_id = ?", competitionID, weekID).
		Order("created_at DESC")
	if mineOnly {
		q = q.Where("creator_id = ? OR opponent_id = ?", userID, userID)
	}
	var wagers []models.SideChallenge
	if err := q.Find(&wagers).Error; err != nil {
		return nil, err
	}
	return wagers, nil
}

// CleanupWeek settles every non-terminal wager of a locking week: accepted
// wagers with both results auto-resolve, everything else voids with refunds.
// Called once per week by the sweep or a manual force-lock.
func (s *SideChallengeService) CleanupWeek(competitionID, weekID string) (resolved, voided int, err error) {
	var wagers []models.SideChallenge
	if err := s.DB.Where("competition_id = ? AND week_id = ? AND status IN ?",
		competitionID, weekID,
		[]models.SideChallengeStatus{models.SideChallengeStatusProposed, models.SideChallengeStatusAccepted}).
		Find(&wagers).Error; err != nil {
		return 0, 0, err
	}

	for i := range wagers {
		wager := &wagers[i]
		var subs []models.SideChallengeSubmission
		if err := s.DB.Where("side_challenge_id = ?", wager.ID).Find(&subs).Error; err != nil {
			return resolved, voided, err
		}

		txErr := s.DB.Transaction(func(tx *gorm.DB) error {
			if wager.Status == models.SideChallengeStatusAccepted && len(subs) == 2 {
				return s.resolve(tx, wager, subs, "auto-resolved on week lock")
			}
			return s.void(tx, wager, "voided on week lock")
		})
		if txErr != nil {
			// Keep going; one broken wager must not block the rest of the week.
			log.Printf("⚠️  [Cleanup] side challenge %s: %v", wager.ID, txErr)
			continue
		}
		if wager.Status == models.SideChallengeStatusAccepted && len(subs) == 2 {
			resolved++
		} else {
			voided++
		}
	}
	return resolved, voided, nil
}

// resolve computes the winner from both submissions, marks the wager resolved
// and settles tokens: tie refunds each stake, a decisive result credits the
// winner both stakes in one entry.
func (s *SideChallengeService) resolve(tx *gorm.DB, wager *models.SideChallenge, subs []models.SideChallengeSubmission, notePrefix string) error {
	var creatorVal, opponentVal float64
	for _, sub := range subs {
		switch sub.UserID {
		case wager.CreatorID:
			creatorVal = sub.Value
		case wager.OpponentID:
			opponentVal = sub.Value
		}
	}

	winnerID, reason, err := DecideWinner(wager.MetricType, wager.TargetValue, wager.CreatorID, creatorVal, wager.OpponentID, opponentVal)
	if err != nil {
		return err
	}
	if notePrefix != "" {
		reason = notePrefix + ": " + reason
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":          models.SideChallengeStatusResolved,
		"winner_id":       winnerID,
		"resolution_note": reason,
		"resolved_at":     now,
	}
	if err := tx.Model(&models.SideChallenge{}).Where("id = ?", wager.ID).Updates(updates).Error; err != nil {
		return err
	}

	if winnerID == nil {
		if err := s.Ledger.Append(tx, wager.CompetitionID, wager.CreatorID, &wager.WeekID, wager.Stake, models.TokenReasonTieRefund, &wager.ID); err != nil {
			return err
		}
		return s.Ledger.Append(tx, wager.CompetitionID, wager.OpponentID, &wager.WeekID, wager.Stake, models.TokenReasonTieRefund, &wager.ID)
	}
	return s.Ledger.Append(tx, wager.CompetitionID, *winnerID, &wager.WeekID, 2*wager.Stake, models.TokenReasonWin, &wager.ID)
}

// void marks the wager void and refunds whoever staked.
func (s *SideChallengeService) void(tx *gorm.DB, wager *models.SideChallenge, note string) error {
	wasAccepted := wager.Status == models.SideChallengeStatusAccepted || wager.AcceptedAt != nil

	if err := tx.Model(&models.SideChallenge{}).Where("id = ?", wager.ID).Updates(map[string]interface{}{
		"status":          models.SideChallengeStatusVoid,
		"resolution_note": note,
	}).Error; err != nil {
		return err
	}
	if err := s.Ledger.Append(tx, wager.CompetitionID, wager.CreatorID, &wager.WeekID, wager.Stake, models.TokenReasonVoidRefund, &wager.ID); err != nil {
		return err
	}
	if wasAccepted {
		return s.Ledger.Append(tx, wager.CompetitionID, wager.OpponentID, &wager.WeekID, wager.Stake, models.TokenReasonVoidRefund, &wager.ID)
	}
	return nil
}

func (s *SideChallengeService) load(wagerID string) (*models.SideChallenge, error) {
	var wager models.SideChallenge
	if err := s.DB.Preload("Submissions").First(&wager, "id = ?", wagerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "side challenge"}
		}
		return nil, err
	}
	return &wager, nil
}

func isTerminal(status models.SideChallengeStatus) bool {
	switch status {
	case models.SideChallengeStatusResolved, models.SideChallengeStatusDeclined, models.SideChallengeStatusVoid:
		return true
	}
	return false
}

// DecideWinner compares the two submitted values under the wager's metric.
// A nil winner id means a tie.
func DecideWinner(metric models.MetricType, target *float64, creatorID string, creatorVal float64, opponentID string, opponentVal float64) (*string, string, error) {
	pick := func(id string, reason string) (*string, string, error) { return &id, reason, nil }

	switch metric {
	case models.MetricHigherWins:
		if creatorVal > opponentVal {
			return pick(creatorID, fmt.Sprintf("%.2f beats %.2f", creatorVal, opponentVal))
		}
		if opponentVal > creatorVal {
			return pick(opponentID, fmt.Sprintf("%.2f beats %.2f", opponentVal, creatorVal))
		}
		return nil, fmt.Sprintf("tie at %.2f", creatorVal), nil
	case models.MetricLowerWins:
		if creatorVal < opponentVal {
			return pick(creatorID, fmt.Sprintf("%.2f undercuts %.2f", creatorVal, opponentVal))
		}
		if opponentVal < creatorVal {
			return pick(opponentID, fmt.Sprintf("%.2f undercuts %.2f", opponentVal, creatorVal))
		}
		return nil, fmt.Sprintf("tie at %.2f", creatorVal), nil
	case models.MetricTargetThreshold:
		if target == nil {
			return nil, "", &ValidationError{Field: "target_value", Message: "target_threshold wager has no target value"}
		}
		creatorDist := math.Abs(creatorVal - *target)
		opponentDist := math.Abs(opponentVal - *target)
		if creatorDist < opponentDist {
			return pick(creatorID, fmt.Sprintf("%.2f is closer to target %.2f than %.2f", creatorVal, *target, opponentVal))
		}
		if opponentDist < creatorDist {
			return pick(opponentID, fmt.Sprintf("%.2f is closer to target %.2f than %.2f", opponentVal, *target, creatorVal))
		}
		return nil, fmt.Sprintf("tie, both %.2f away from target %.2f", creatorDist, *target), nil
	default:
		return nil, "", &ValidationError{Field: "metric_type", Message: "unknown metric type"}
	}
}
