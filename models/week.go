package models

import (
	"time"
)

// WeekStatus is the persisted lifecycle state of a week. Once written it is
// authoritative; only the sweep and an organizer override may change it.
type WeekStatus string

const (
	WeekStatusUpcoming WeekStatus = "upcoming"
	WeekStatusOpen     WeekStatus = "open"
	WeekStatusLocked   WeekStatus = "locked"
)

// Week is one 7-day scoring window of a competition. Status only moves forward
// (upcoming → open → locked) under the automatic sweep; an organizer may force
// either direction manually.
type Week struct {
	ID            string     `gorm:"primaryKey;type:uuid" json:"id"`
	CompetitionID string     `gorm:"type:uuid;not null;uniqueIndex:idx_week_comp_index" json:"competition_id"`
	WeekIndex     int        `gorm:"column:week_index;not null;uniqueIndex:idx_week_comp_index" json:"week_index"`
	StartsAt      time.Time  `gorm:"not null" json:"starts_at"`
	EndsAt        time.Time  `gorm:"not null" json:"ends_at"`
	Status        WeekStatus `gorm:"type:varchar(16);default:'upcoming';index" json:"status"`
	LockedAt      *time.Time `json:"locked_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}
