package services

import (
	"testing"

	"fitness-challenge-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelfReportRequiresParticipant(t *testing.T) {
	f := newFixture(t)
	svc := NewCompetitionService(f.db, f.weeks)
	task := f.createTask(t, "Workout", 3, true)

	// Registered but never joined the competition.
	outsider := f.createUser(t, "Mallory", "mallory@example.com")
	_, err := svc.upsertCompletion(outsider.ID, f.week.ID, task.ID, outsider.ID, models.CompletionSourceSelf, "")
	var aErr *AuthorizationError
	require.ErrorAs(t, err, &aErr)

	var count int64
	require.NoError(t, f.db.Model(&models.Completion{}).
		Where("week_id = ? AND user_id = ?", f.week.ID, outsider.ID).
		Count(&count).Error)
	assert.Zero(t, count)

	// A participant logging the same task goes through.
	completion, err := svc.upsertCompletion(f.alice.ID, f.week.ID, task.ID, f.alice.ID, models.CompletionSourceSelf, "")
	require.NoError(t, err)
	assert.Equal(t, f.alice.ID, completion.UserID)
	assert.Equal(t, models.CompletionSourceSelf, completion.Source)
}
