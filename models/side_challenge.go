package models

import (
	"time"
)

// SideChallengeStatus is the wager state machine:
// proposed → accepted → resolved, proposed → declined, and any non-terminal
// state → void (organizer only). resolved/declined/void are terminal.
type SideChallengeStatus string

const (
	SideChallengeStatusProposed SideChallengeStatus = "proposed"
	SideChallengeStatusAccepted SideChallengeStatus = "accepted"
	SideChallengeStatusResolved SideChallengeStatus = "resolved"
	SideChallengeStatusDeclined SideChallengeStatus = "declined"
	SideChallengeStatusVoid     SideChallengeStatus = "void"
)

// MetricType decides how two submitted values are compared.
type MetricType string

const (
	MetricHigherWins      MetricType = "higher_wins"
	MetricLowerWins       MetricType = "lower_wins"
	MetricTargetThreshold MetricType = "target_threshold" // closest to TargetValue wins
)

// SideChallenge is a head-to-head token wager between two participants, scoped
// to one week. Both sides stake the same amount: the creator on proposal, the
// opponent on acceptance.
type SideChallenge struct {
	ID            string              `gorm:"primaryKey;type:uuid" json:"id"`
	CompetitionID string              `gorm:"type:uuid;not null;index" json:"competition_id"`
	WeekID        string              `gorm:"type:uuid;not null;index" json:"week_id"`
	CreatorID     string              `gorm:"type:uuid;not null;index" json:"creator_id"`
	OpponentID    string              `gorm:"type:uuid;not null;index" json:"opponent_id"`
	Title         string              `gorm:"not null" json:"title"`
	Rules         string              `json:"rules"`
	MetricType    MetricType          `gorm:"type:varchar(32);not null" json:"metric_type"`
	Unit          string              `json:"unit"`
	TargetValue   *float64            `json:"target_value,omitempty"`
	Stake         int                 `gorm:"not null" json:"stake"`
	Status        SideChallengeStatus `gorm:"type:varchar(16);not null;default:'proposed';index" json:"status"`
	ExpiresAt     time.Time           `gorm:"not null" json:"expires_at"`
	AcceptedAt    *time.Time          `json:"accepted_at,omitempty"`

	// Resolution — WinnerID stays nil on a tie.
	WinnerID       *string    `gorm:"type:uuid" json:"winner_id,omitempty"`
	ResolutionNote string     `json:"resolution_note,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	Submissions []SideChallengeSubmission `json:"submissions,omitempty" gorm:"foreignKey:SideChallengeID;constraint:OnDelete:CASCADE"`
}

// SideChallengeSubmission is one result value per (side challenge, user).
type SideChallengeSubmission struct {
	ID              string    `gorm:"primaryKey;type:uuid" json:"id"`
	SideChallengeID string    `gorm:"type:uuid;not null;uniqueIndex:idx_submission_challenge_user" json:"side_challenge_id"`
	UserID          string    `gorm:"type:uuid;not null;uniqueIndex:idx_submission_challenge_user" json:"user_id"`
	Value           float64   `gorm:"not null" json:"value"`
	DisplayValue    string    `json:"display_value"`
	Note            string    `json:"note,omitempty"`
	SubmittedAt     time.Time `json:"submitted_at" gorm:"autoCreateTime"`
}
