package models

import (
	"time"
)

// CompletionSource records who reported a completion.
type CompletionSource string

const (
	CompletionSourceSelf      CompletionSource = "self"
	CompletionSourceOrganizer CompletionSource = "organizer"
)

// Completion records that a user finished a task in a given week. Unique per
// (week, task, user). Organizer edits carry the editor's identity and a note
// as an audit trail.
type Completion struct {
	ID             string           `gorm:"primaryKey;type:uuid" json:"id"`
	WeekID         string           `gorm:"type:uuid;not null;uniqueIndex:idx_completion_week_task_user" json:"week_id"`
	TaskTemplateID string           `gorm:"type:uuid;not null;uniqueIndex:idx_completion_week_task_user" json:"task_template_id"`
	UserID         string           `gorm:"type:uuid;not null;uniqueIndex:idx_completion_week_task_user" json:"user_id"`
	Source         CompletionSource `gorm:"type:varchar(16);not null;default:'self'" json:"source"`
	EditedByID     *string          `gorm:"type:uuid" json:"edited_by_id,omitempty"`
	Note           string           `json:"note,omitempty"`
	CreatedAt      time.Time        `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time        `json:"updated_at" gorm:"autoUpdateTime"`
}
