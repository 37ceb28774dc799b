package services

import (
	"errors"

	"fitness-challenge-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerService owns token accounting. Balances are always derived as the sum
// of immutable deltas; nothing caches them. Mutations go through Append inside
// the same transaction as the state change they justify.
type LedgerService struct {
	DB *gorm.DB
}

func NewLedgerService(db *gorm.DB) *LedgerService {
	return &LedgerService{DB: db}
}

// BalanceBreakdown splits a user's tokens into what they hold and what is
// committed to their own still-open wagers.
type BalanceBreakdown struct {
	Total     int `json:"total"`
	Staked    int `json:"staked"`
	Available int `json:"available"`
}

// Balance sums all deltas for (competition, user) on the given handle, which
// may be a live transaction.
func (s *LedgerService) Balance(db *gorm.DB, competitionID, userID string) (int, error) {
	var total int
	err := db.Model(&models.TokenLedgerEntry{}).
		Select("COALESCE(SUM(delta), 0)").
		Where("competition_id = ? AND user_id = ?", competitionID, userID).
		Scan(&total).Error
	return total, err
}

// Available returns the balance breakdown. Staked tokens are the ledger debits
// the user would get back if all their open wagers voided right now: the full
// stake on wagers they created (staked on proposal) plus the stake on wagers
// they accepted (staked on acceptance).
func (s *LedgerService) Available(db *gorm.DB, competitionID, userID string) (*BalanceBreakdown, error) {
	total, err := s.Balance(db, competitionID, userID)
	if err != nil {
		return nil, err
	}

	var staked int
	err = db.Model(&models.SideChallenge{}).
		Select("COALESCE(SUM(stake), 0)").
		Where("competition_id = ?", competitionID).
		Where(
			db.Where("creator_id = ? AND status IN ?", userID,
				[]models.SideChallengeStatus{models.SideChallengeStatusProposed, models.SideChallengeStatusAccepted}).
				Or("opponent_id = ? AND status = ?", userID, models.SideChallengeStatusAccepted),
		).
		Scan(&staked).Error
	if err != nil {
		return nil, err
	}

	return &BalanceBreakdown{Total: total + staked, Staked: staked, Available: total}, nil
}

// Append inserts one immutable ledger row. Callers must pass the transaction
// handle of the state change this entry justifies.
func (s *LedgerService) Append(tx *gorm.DB, competitionID, userID string, weekID *string, delta int, reason models.TokenReason, sideChallengeID *string) error {
	entry := models.TokenLedgerEntry{
		ID:              uuid.NewString(),
		CompetitionID:   competitionID,
		UserID:          userID,
		WeekID:          weekID,
		Delta:           delta,
		Reason:          reason,
		SideChallengeID: sideChallengeID,
	}
	return tx.Create(&entry).Error
}

// DebitStake re-checks available balance and appends the stake debit under the
// participant-row lock, closing the double-spend race between two concurrent
// stake-validating requests for the same user.
func (s *LedgerService) DebitStake(tx *gorm.DB, competitionID, userID, weekID string, stake int, sideChallengeID string) error {
	if err := s.lockParticipantRow(tx, competitionID, userID); err != nil {
		return err
	}
	breakdown, err := s.Available(tx, competitionID, userID)
	if err != nil {
		return err
	}
	if breakdown.Available < stake {
		return &InsufficientBalanceError{Requested: stake, Available: breakdown.Available, Staked: breakdown.Staked}
	}
	return s.Append(tx, competitionID, userID, &weekID, -stake, models.TokenReasonStake, &sideChallengeID)
}

// lockParticipantRow serializes concurrent stake checks for one user via
// SELECT ... FOR UPDATE on their participant row. sqlite rejects FOR UPDATE
// and serializes writers itself, so the lock is postgres-only.
func (s *LedgerService) lockParticipantRow(tx *gorm.DB, competitionID, userID string) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	var p models.Participant
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("competition_id = ? AND user_id = ?", competitionID, userID).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &NotFoundError{Resource: "participant"}
	}
	return err
}

// LedgerEntryView is a history row annotated with the week index it belongs to.
type LedgerEntryView struct {
	ID              string             `json:"id"`
	Delta           int                `json:"delta"`
	Reason          models.TokenReason `json:"reason"`
	WeekIndex       *int               `json:"week_index,omitempty"`
	SideChallengeID *string            `json:"side_challenge_id,omitempty"`
	CreatedAt       string             `json:"created_at"`
}

// History returns the user's ledger, newest first.
func (s *LedgerService) History(competitionID, userID string) ([]LedgerEntryView, error) {
	var rows []LedgerEntryView
	err := s.DB.Raw(`
		SELECT e.id, e.delta, e.reason, e.side_challenge_id, w.week_index AS week_index, e.created_at
		FROM token_ledger_entries e
		LEFT JOIN weeks w ON w.id = e.week_id
		WHERE e.competition_id = ? AND e.user_id = ?
		ORDER BY e.created_at DESC, e.id DESC
	`, competitionID, userID).Scan(&rows).Error
	if rows == nil {
		rows = []LedgerEntryView{}
	}
	return rows, err
}
