package models

import (
	"time"
)

// TokenReason is the business reason for a ledger entry.
type TokenReason string

const (
	TokenReasonPerfectWeek TokenReason = "perfect_week"
	TokenReasonStake       TokenReason = "stake"
	TokenReasonWin         TokenReason = "win"
	TokenReasonTieRefund   TokenReason = "tie_refund"
	TokenReasonVoidRefund  TokenReason = "void_refund"
)

// TokenLedgerEntry is one immutable signed delta against a user's token balance
// in a competition. The balance is always the sum of deltas — it is never stored.
// Entries are only ever deleted by the perfect-week recalculate operation, which
// removes awards that edited completions invalidated.
type TokenLedgerEntry struct {
	ID              string      `gorm:"primaryKey;type:uuid" json:"id"`
	CompetitionID   string      `gorm:"type:uuid;not null;index:idx_ledger_comp_user" json:"competition_id"`
	UserID          string      `gorm:"type:uuid;not null;index:idx_ledger_comp_user" json:"user_id"`
	WeekID          *string     `gorm:"type:uuid;index" json:"week_id,omitempty"`
	Delta           int         `gorm:"not null" json:"delta"`
	Reason          TokenReason `gorm:"type:varchar(32);not null" json:"reason"`
	SideChallengeID *string     `gorm:"type:uuid;index" json:"side_challenge_id,omitempty"`
	CreatedAt       time.Time   `json:"created_at" gorm:"autoCreateTime"`
}
