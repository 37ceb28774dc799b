package models

import (
	"time"
)

// Competition is a multi-week group fitness competition run by an organizer.
// The three prize percentages are advisory display configuration: the weekly
// percentage applies once per week, so weekly*num_weeks + grand + token_champion
// must not exceed 100 (validated at create/update, never enforced by the ledger).
type Competition struct {
	ID                   string    `gorm:"primaryKey;type:uuid" json:"id"`
	Name                 string    `gorm:"not null" json:"name"`
	Slug                 string    `gorm:"uniqueIndex;not null" json:"slug"`
	OrganizerID          string    `gorm:"type:uuid;not null;index" json:"organizer_id"`
	StartDate            time.Time `gorm:"not null" json:"start_date"`
	NumWeeks             int       `gorm:"not null" json:"num_weeks"`
	BuyInAmount          float64   `gorm:"default:0" json:"buy_in_amount"`
	WeeklyPrizePercent   float64   `gorm:"default:0" json:"weekly_prize_percent"`
	GrandPrizePercent    float64   `gorm:"default:0" json:"grand_prize_percent"`
	TokenChampionPercent float64   `gorm:"default:0" json:"token_champion_percent"`
	CoverPhotoURL        string    `json:"cover_photo_url,omitempty"`
	CreatedAt            time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt            time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	// Relationships — everything below the competition cascades on delete.
	Organizer      User            `json:"organizer,omitempty" gorm:"foreignKey:OrganizerID"`
	Weeks          []Week          `json:"weeks,omitempty" gorm:"foreignKey:CompetitionID;constraint:OnDelete:CASCADE"`
	Participants   []Participant   `json:"participants,omitempty" gorm:"foreignKey:CompetitionID;constraint:OnDelete:CASCADE"`
	Tasks          []TaskTemplate  `json:"tasks,omitempty" gorm:"foreignKey:CompetitionID;constraint:OnDelete:CASCADE"`
	SideChallenges []SideChallenge `json:"side_challenges,omitempty" gorm:"foreignKey:CompetitionID;constraint:OnDelete:CASCADE"`
}

// Participant joins a User to a Competition. One row per (competition, user).
type Participant struct {
	ID            string    `gorm:"primaryKey;type:uuid" json:"id"`
	CompetitionID string    `gorm:"type:uuid;not null;uniqueIndex:idx_participant_comp_user" json:"competition_id"`
	UserID        string    `gorm:"type:uuid;not null;uniqueIndex:idx_participant_comp_user" json:"user_id"`
	PaidBuyIn     bool      `gorm:"default:false" json:"paid_buy_in"`
	JoinedAt      time.Time `json:"joined_at" gorm:"autoCreateTime"`

	User User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// TaskTemplate is a recurring weekly task. Retired via the Active flag, never
// hard-deleted, so historical completions stay interpretable.
type TaskTemplate struct {
	ID            string    `gorm:"primaryKey;type:uuid" json:"id"`
	CompetitionID string    `gorm:"type:uuid;not null;index" json:"competition_id"`
	Name          string    `gorm:"not null" json:"name"`
	Description   string    `json:"description"`
	PointValue    int       `gorm:"not null" json:"point_value"`
	Active        bool      `gorm:"not null" json:"active"`
	SortOrder     int       `gorm:"column:sort_order;default:0" json:"sort_order"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
