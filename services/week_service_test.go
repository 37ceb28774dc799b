package services

import (
	"testing"
	"time"

	"fitness-challenge-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeekWindowsAreContiguousSevenDayBlocks(t *testing.T) {
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	windows := WeekWindows(start, 4)
	require.Len(t, windows, 4)

	for i, w := range windows {
		assert.Equal(t, i, w.Index)
		assert.Equal(t, 7*24*time.Hour, w.EndsAt.Sub(w.StartsAt))
		if i > 0 {
			assert.True(t, w.StartsAt.Equal(windows[i-1].EndsAt), "windows must not gap or overlap")
		}
	}
	assert.True(t, windows[0].StartsAt.Equal(start))
}

func TestDeriveStatus(t *testing.T) {
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	end := start.Add(7 * 24 * time.Hour)

	assert.Equal(t, models.WeekStatusUpcoming, DeriveStatus(start.Add(-time.Minute), start, end))
	assert.Equal(t, models.WeekStatusOpen, DeriveStatus(start, start, end))
	assert.Equal(t, models.WeekStatusOpen, DeriveStatus(start.Add(3*24*time.Hour), start, end))
	assert.Equal(t, models.WeekStatusLocked, DeriveStatus(end.Add(time.Minute), start, end))
}

func TestRunSweepLocksDueWeeksAndRunsEffects(t *testing.T) {
	f := newFixture(t)

	task := f.createTask(t, "Daily workout", 3, true)
	f.complete(t, f.week, task, f.alice.ID)

	// Week 0 is past due, week 1 should open now.
	now := time.Now()
	require.NoError(t, f.db.Model(f.week).Update("ends_at", now.Add(-time.Hour)).Error)
	require.NoError(t, f.db.Model(f.nextWeek).Updates(map[string]interface{}{
		"starts_at": now.Add(-time.Hour),
		"ends_at":   now.Add(6 * 24 * time.Hour),
	}).Error)

	result, err := f.weeks.RunSweep(now)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Locked)
	assert.Equal(t, 1, result.Opened)
	require.Len(t, result.Weeks, 1)
	assert.Equal(t, f.week.ID, result.Weeks[0].WeekID)
	assert.Equal(t, 1, result.Weeks[0].TokensAwarded)
	assert.Empty(t, result.Weeks[0].SideEffectError)

	var locked models.Week
	require.NoError(t, f.db.First(&locked, "id = ?", f.week.ID).Error)
	assert.Equal(t, models.WeekStatusLocked, locked.Status)
	assert.NotNil(t, locked.LockedAt)

	var opened models.Week
	require.NoError(t, f.db.First(&opened, "id = ?", f.nextWeek.ID).Error)
	assert.Equal(t, models.WeekStatusOpen, opened.Status)

	// Only Alice completed every active task.
	assert.Equal(t, 1, f.balance(t, f.alice.ID))
	assert.Equal(t, 0, f.balance(t, f.bob.ID))

	// A second pass over the unchanged world writes nothing and awards nothing.
	again, err := f.weeks.RunSweep(time.Now())
	require.NoError(t, err)
	assert.Zero(t, again.Locked)
	assert.Zero(t, again.Opened)
	assert.Equal(t, 1, f.balance(t, f.alice.ID))
}

func TestRunSweepIgnoresFutureWeeks(t *testing.T) {
	f := newFixture(t)

	result, err := f.weeks.RunSweep(time.Now())
	require.NoError(t, err)
	assert.Zero(t, result.Locked)
	assert.Zero(t, result.Opened)

	var week models.Week
	require.NoError(t, f.db.First(&week, "id = ?", f.week.ID).Error)
	assert.Equal(t, models.WeekStatusOpen, week.Status)
}

func TestForceLockIsOrganizerOnlyAndRunsEffects(t *testing.T) {
	f := newFixture(t)
	f.grantTokens(t, f.alice.ID, 5)
	wager := proposeSteps(t, f, f.alice.ID, f.bob.ID, 2)

	_, err := f.weeks.ForceLock(f.alice.ID, f.comp.ID, f.week.ID)
	var aErr *AuthorizationError
	require.ErrorAs(t, err, &aErr)

	summary, err := f.weeks.ForceLock(f.organizer.ID, f.comp.ID, f.week.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.WagersVoided)
	assert.Equal(t, 5, f.balance(t, f.alice.ID))

	var voided models.SideChallenge
	require.NoError(t, f.db.First(&voided, "id = ?", wager.ID).Error)
	assert.Equal(t, models.SideChallengeStatusVoid, voided.Status)

	_, err = f.weeks.ForceLock(f.organizer.ID, f.comp.ID, f.week.ID)
	var scErr *StateConflictError
	require.ErrorAs(t, err, &scErr)
}

func TestForceUnlockReopensLockedWeeks(t *testing.T) {
	f := newFixture(t)

	_, err := f.weeks.ForceUnlock(f.organizer.ID, f.comp.ID, f.week.ID)
	var scErr *StateConflictError
	require.ErrorAs(t, err, &scErr)

	_, err = f.weeks.ForceLock(f.organizer.ID, f.comp.ID, f.week.ID)
	require.NoError(t, err)

	week, err := f.weeks.ForceUnlock(f.organizer.ID, f.comp.ID, f.week.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WeekStatusOpen, week.Status)
	assert.Nil(t, week.LockedAt)
}

func TestRegenerateWeeksAfterScheduleChange(t *testing.T) {
	f := newFixture(t)

	// Push the whole schedule into the future and add a week.
	f.comp.StartDate = time.Now().Add(24 * time.Hour)
	f.comp.NumWeeks = 3
	require.NoError(t, f.weeks.RegenerateWeeks(f.db, f.comp))

	var weeks []models.Week
	require.NoError(t, f.db.Where("competition_id = ?", f.comp.ID).Order("week_index ASC").Find(&weeks).Error)
	require.Len(t, weeks, 3)
	for _, w := range weeks {
		assert.Equal(t, models.WeekStatusUpcoming, w.Status)
		assert.Nil(t, w.LockedAt)
	}
	assert.True(t, weeks[0].StartsAt.Equal(f.comp.StartDate))

	// Shrinking the count drops trailing weeks.
	f.comp.NumWeeks = 1
	require.NoError(t, f.weeks.RegenerateWeeks(f.db, f.comp))
	var count int64
	require.NoError(t, f.db.Model(&models.Week{}).Where("competition_id = ?", f.comp.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestRegenerateWeeksKeepsUnchangedWindows(t *testing.T) {
	f := newFixture(t)

	// Lock week 0 manually, then regenerate with identical boundaries.
	now := time.Now()
	require.NoError(t, f.db.Model(f.week).Updates(map[string]interface{}{
		"status":    models.WeekStatusLocked,
		"locked_at": now,
	}).Error)

	f.comp.StartDate = f.week.StartsAt
	require.NoError(t, f.weeks.RegenerateWeeks(f.db, f.comp))

	var week models.Week
	require.NoError(t, f.db.First(&week, "id = ?", f.week.ID).Error)
	assert.Equal(t, models.WeekStatusLocked, week.Status)
	assert.NotNil(t, week.LockedAt)
}
