package services

import (
	"testing"
	"time"

	"fitness-challenge-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func proposeSteps(t *testing.T, f *fixture, creator, opponent string, stake int) *models.SideChallenge {
	t.Helper()
	wager, err := f.wagers.Propose(creator, ProposeRequest{
		CompetitionID: f.comp.ID,
		WeekID:        f.week.ID,
		OpponentID:    opponent,
		Title:         "Step battle",
		MetricType:    models.MetricHigherWins,
		Unit:          "steps",
		Stake:         stake,
	})
	require.NoError(t, err)
	return wager
}

func TestProposeRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	f.grantTokens(t, f.alice.ID, 10)
	past := time.Now().Add(-time.Hour)

	cases := []struct {
		name string
		req  ProposeRequest
		want interface{}
	}{
		{"self challenge", ProposeRequest{CompetitionID: f.comp.ID, WeekID: f.week.ID, OpponentID: f.alice.ID, Title: "x", MetricType: models.MetricHigherWins, Stake: 1}, &AuthorizationError{}},
		{"zero stake", ProposeRequest{CompetitionID: f.comp.ID, WeekID: f.week.ID, OpponentID: f.bob.ID, Title: "x", MetricType: models.MetricHigherWins, Stake: 0}, &ValidationError{}},
		{"missing target", ProposeRequest{CompetitionID: f.comp.ID, WeekID: f.week.ID, OpponentID: f.bob.ID, Title: "x", MetricType: models.MetricTargetThreshold, Stake: 1}, &ValidationError{}},
		{"unknown metric", ProposeRequest{CompetitionID: f.comp.ID, WeekID: f.week.ID, OpponentID: f.bob.ID, Title: "x", MetricType: "coin_flip", Stake: 1}, &ValidationError{}},
		{"missing title", ProposeRequest{CompetitionID: f.comp.ID, WeekID: f.week.ID, OpponentID: f.bob.ID, MetricType: models.MetricHigherWins, Stake: 1}, &ValidationError{}},
		{"expiry in the past", ProposeRequest{CompetitionID: f.comp.ID, WeekID: f.week.ID, OpponentID: f.bob.ID, Title: "x", MetricType: models.MetricHigherWins, Stake: 1, ExpiresAt: &past}, &ValidationError{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.wagers.Propose(f.alice.ID, tc.req)
			require.Error(t, err)
			switch want := tc.want.(type) {
			case *AuthorizationError:
				assert.ErrorAs(t, err, &want)
			case *ValidationError:
				assert.ErrorAs(t, err, &want)
			}
		})
	}

	// Nothing was staked by the rejected attempts.
	assert.Equal(t, 10, f.balance(t, f.alice.ID))
}

func TestProposeRejectsDuplicatePairInWeek(t *testing.T) {
	f := newFixture(t)
	f.grantTokens(t, f.alice.ID, 10)
	f.grantTokens(t, f.bob.ID, 10)

	proposeSteps(t, f, f.alice.ID, f.bob.ID, 2)

	// Same pair, opposite direction, same week.
	_, err := f.wagers.Propose(f.bob.ID, ProposeRequest{
		CompetitionID: f.comp.ID,
		WeekID:        f.week.ID,
		OpponentID:    f.alice.ID,
		Title:         "Counter challenge",
		MetricType:    models.MetricHigherWins,
		Unit:          "steps",
		Stake:         2,
	})
	var scErr *StateConflictError
	require.ErrorAs(t, err, &scErr)
}

func TestProposeRejectsLockedWeekAndOutsiders(t *testing.T) {
	f := newFixture(t)
	f.grantTokens(t, f.alice.ID, 10)
	outsider := f.createUser(t, "Mallory", "mallory@example.com")

	_, err := f.wagers.Propose(f.alice.ID, ProposeRequest{
		CompetitionID: f.comp.ID, WeekID: f.week.ID, OpponentID: outsider.ID,
		Title: "x", MetricType: models.MetricHigherWins, Stake: 1,
	})
	var aErr *AuthorizationError
	require.ErrorAs(t, err, &aErr)

	require.NoError(t, f.db.Model(f.week).Update("status", models.WeekStatusLocked).Error)
	_, err = f.wagers.Propose(f.alice.ID, ProposeRequest{
		CompetitionID: f.comp.ID, WeekID: f.week.ID, OpponentID: f.bob.ID,
		Title: "x", MetricType: models.MetricHigherWins, Stake: 1,
	})
	var scErr *StateConflictError
	require.ErrorAs(t, err, &scErr)
}

func TestDeclineRefundsCreatorOnly(t *testing.T) {
	f := newFixture(t)
	f.grantTokens(t, f.alice.ID, 5)
	f.grantTokens(t, f.bob.ID, 5)

	wager := proposeSteps(t, f, f.alice.ID, f.bob.ID, 3)
	assert.Equal(t, 2, f.balance(t, f.alice.ID))

	declined, err := f.wagers.Decline(f.bob.ID, wager.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SideChallengeStatusDeclined, declined.Status)
	assert.Equal(t, 5, f.balance(t, f.alice.ID))
	assert.Equal(t, 5, f.balance(t, f.bob.ID))
}

func TestDeclineOnlyByOpponentWhileProposed(t *testing.T) {
	f := newFixture(t)
	f.grantTokens(t, f.alice.ID, 5)

	wager := proposeSteps(t, f, f.alice.ID, f.bob.ID, 3)

	_, err := f.wagers.Decline(f.alice.ID, wager.ID)
	var aErr *AuthorizationError
	require.ErrorAs(t, err, &aErr)

	_, err = f.wagers.Decline(f.bob.ID, wager.ID)
	require.NoError(t, err)
	_, err = f.wagers.Decline(f.bob.ID, wager.ID)
	var scErr *StateConflictError
	require.ErrorAs(t, err, &scErr)
}

func TestAcceptRequiresBalanceAndFreshProposal(t *testing.T) {
	f := newFixture(t)
	f.grantTokens(t, f.alice.ID, 5)

	wager := proposeSteps(t, f, f.alice.ID, f.bob.ID, 3)

	// Bob has no tokens.
	_, err := f.wagers.Accept(f.bob.ID, wager.ID)
	var ibErr *InsufficientBalanceError
	require.ErrorAs(t, err, &ibErr)

	// Expired proposals can no longer be accepted.
	f.grantTokens(t, f.bob.ID, 5)
	require.NoError(t, f.db.Model(&models.SideChallenge{}).
		Where("id = ?", wager.ID).
		Update("expires_at", time.Now().Add(-time.Hour)).Error)
	_, err = f.wagers.Accept(f.bob.ID, wager.ID)
	var scErr *StateConflictError
	require.ErrorAs(t, err, &scErr)
}

func TestResolveDecisiveWinner(t *testing.T) {
	f := newFixture(t)
	f.grantTokens(t, f.alice.ID, 5)
	f.grantTokens(t, f.bob.ID, 5)

	wager := proposeSteps(t, f, f.alice.ID, f.bob.ID, 3)
	_, err := f.wagers.Accept(f.bob.ID, wager.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, f.balance(t, f.bob.ID))

	first, err := f.wagers.SubmitResult(f.alice.ID, wager.ID, 1000, "1,000 steps", "")
	require.NoError(t, err)
	assert.Equal(t, models.SideChallengeStatusAccepted, first.Status)

	resolved, err := f.wagers.SubmitResult(f.bob.ID, wager.ID, 1500, "1,500 steps", "")
	require.NoError(t, err)
	assert.Equal(t, models.SideChallengeStatusResolved, resolved.Status)
	require.NotNil(t, resolved.WinnerID)
	assert.Equal(t, f.bob.ID, *resolved.WinnerID)
	assert.NotNil(t, resolved.ResolvedAt)

	// Winner nets +stake, loser nets -stake.
	assert.Equal(t, 8, f.balance(t, f.bob.ID))
	assert.Equal(t, 2, f.balance(t, f.alice.ID))
}

func TestResolveTieRefundsBoth(t *testing.T) {
	f := newFixture(t)
	f.grantTokens(t, f.alice.ID, 5)
	f.grantTokens(t, f.bob.ID, 5)

	wager := proposeSteps(t, f, f.alice.ID, f.bob.ID, 3)
	_, err := f.wagers.Accept(f.bob.ID, wager.ID)
	require.NoError(t, err)

	_, err = f.wagers.SubmitResult(f.alice.ID, wager.ID, 1000, "1,000", "")
	require.NoError(t, err)
	resolved, err := f.wagers.SubmitResult(f.bob.ID, wager.ID, 1000, "1,000", "")
	require.NoError(t, err)

	assert.Equal(t, models.SideChallengeStatusResolved, resolved.Status)
	assert.Nil(t, resolved.WinnerID)
	assert.Equal(t, 5, f.balance(t, f.alice.ID))
	assert.Equal(t, 5, f.balance(t, f.bob.ID))
}

func TestDuplicateSubmissionRejected(t *testing.T) {
	f := newFixture(t)
	f.grantTokens(t, f.alice.ID, 5)
	f.grantTokens(t, f.bob.ID, 5)

	wager := proposeSteps(t, f, f.alice.ID, f.bob.ID, 3)
	_, err := f.wagers.Accept(f.bob.ID, wager.ID)
	require.NoError(t, err)

	_, err = f.wagers.SubmitResult(f.alice.ID, wager.ID, 1000, "", "")
	require.NoError(t, err)
	_, err = f.wagers.SubmitResult(f.alice.ID, wager.ID, 2000, "", "")
	var scErr *StateConflictError
	require.ErrorAs(t, err, &scErr)
}

func TestVoidBeforeAcceptRefundsCreatorOnly(t *testing.T) {
	f := newFixture(t)
	f.grantTokens(t, f.alice.ID, 5)

	wager := proposeSteps(t, f, f.alice.ID, f.bob.ID, 3)

	// Non-organizers cannot void, and a reason is required.
	_, err := f.wagers.Void(f.alice.ID, wager.ID, "because")
	var aErr *AuthorizationError
	require.ErrorAs(t, err, &aErr)
	_, err = f.wagers.Void(f.organizer.ID, wager.ID, "")
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)

	voided, err := f.wagers.Void(f.organizer.ID, wager.ID, "disputed rules")
	require.NoError(t, err)
	assert.Equal(t, models.SideChallengeStatusVoid, voided.Status)
	assert.Equal(t, 5, f.balance(t, f.alice.ID))
	assert.Equal(t, 0, f.balance(t, f.bob.ID))
}

func TestVoidAfterAcceptRefundsBoth(t *testing.T) {
	f := newFixture(t)
	f.grantTokens(t, f.alice.ID, 5)
	f.grantTokens(t, f.bob.ID, 5)

	wager := proposeSteps(t, f, f.alice.ID, f.bob.ID, 3)
	_, err := f.wagers.Accept(f.bob.ID, wager.ID)
	require.NoError(t, err)

	_, err = f.wagers.Void(f.organizer.ID, wager.ID, "week cancelled")
	require.NoError(t, err)
	assert.Equal(t, 5, f.balance(t, f.alice.ID))
	assert.Equal(t, 5, f.balance(t, f.bob.ID))

	// Terminal wagers cannot void again.
	_, err = f.wagers.Void(f.organizer.ID, wager.ID, "again")
	var scErr *StateConflictError
	require.ErrorAs(t, err, &scErr)
}

func TestCleanupWeekVoidsUnansweredAndResolvesFinished(t *testing.T) {
	f := newFixture(t)
	f.grantTokens(t, f.alice.ID, 5)
	f.grantTokens(t, f.bob.ID, 5)
	f.grantTokens(t, f.organizer.ID, 5)

	// Bob never responds to this one.
	unanswered := proposeSteps(t, f, f.alice.ID, f.bob.ID, 3)

	// This one is fully played out but unresolved... both submissions pending.
	played, err := f.wagers.Propose(f.organizer.ID, ProposeRequest{
		CompetitionID: f.comp.ID, WeekID: f.week.ID, OpponentID: f.bob.ID,
		Title: "Plank-off", MetricType: models.MetricLowerWins, Unit: "minutes", Stake: 2,
	})
	require.NoError(t, err)
	_, err = f.wagers.Accept(f.bob.ID, played.ID)
	require.NoError(t, err)
	_, err = f.wagers.SubmitResult(f.organizer.ID, played.ID, 12, "12 min", "")
	require.NoError(t, err)
	// Force it back to accepted-with-both-submissions by submitting via the
	// cleanup path instead: insert Bob's submission row directly.
	require.NoError(t, f.db.Create(&models.SideChallengeSubmission{
		ID: "sub-bob", SideChallengeID: played.ID, UserID: f.bob.ID, Value: 10, DisplayValue: "10 min",
	}).Error)

	resolved, voided, err := f.wagers.CleanupWeek(f.comp.ID, f.week.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)
	assert.Equal(t, 1, voided)

	// Scenario: unanswered wager refunds Alice fully, Bob untouched by it.
	assert.Equal(t, 5, f.balance(t, f.alice.ID))
	// Bob won the played wager (lower time): 5 - 2 + 4 = 7.
	assert.Equal(t, 7, f.balance(t, f.bob.ID))
	assert.Equal(t, 3, f.balance(t, f.organizer.ID))

	// Fresh structs per load: reusing one would leak its primary key into the
	// next query's conditions.
	var reloadedUnanswered models.SideChallenge
	require.NoError(t, f.db.First(&reloadedUnanswered, "id = ?", unanswered.ID).Error)
	assert.Equal(t, models.SideChallengeStatusVoid, reloadedUnanswered.Status)

	var reloadedPlayed models.SideChallenge
	require.NoError(t, f.db.First(&reloadedPlayed, "id = ?", played.ID).Error)
	assert.Equal(t, models.SideChallengeStatusResolved, reloadedPlayed.Status)
	assert.Contains(t, reloadedPlayed.ResolutionNote, "auto-resolved on week lock")

	// Idempotent: nothing left to clean.
	resolved, voided, err = f.wagers.CleanupWeek(f.comp.ID, f.week.ID)
	require.NoError(t, err)
	assert.Zero(t, resolved)
	assert.Zero(t, voided)
}

func TestDecideWinner(t *testing.T) {
	target := 50.0
	creator, opponent := "creator-id", "opponent-id"

	cases := []struct {
		name       string
		metric     models.MetricType
		target     *float64
		cVal, oVal float64
		want       *string
	}{
		{"higher wins creator", models.MetricHigherWins, nil, 10, 5, &creator},
		{"higher wins opponent", models.MetricHigherWins, nil, 5, 10, &opponent},
		{"higher ties", models.MetricHigherWins, nil, 7, 7, nil},
		{"lower wins creator", models.MetricLowerWins, nil, 5, 10, &creator},
		{"lower ties", models.MetricLowerWins, nil, 7, 7, nil},
		{"threshold closer creator", models.MetricTargetThreshold, &target, 49, 60, &creator},
		{"threshold closer opponent", models.MetricTargetThreshold, &target, 40, 51, &opponent},
		{"threshold equidistant ties", models.MetricTargetThreshold, &target, 45, 55, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			winner, reason, err := DecideWinner(tc.metric, tc.target, creator, tc.cVal, opponent, tc.oVal)
			require.NoError(t, err)
			assert.NotEmpty(t, reason)
			if tc.want == nil {
				assert.Nil(t, winner)
			} else {
				require.NotNil(t, winner)
				assert.Equal(t, *tc.want, *winner)
			}
		})
	}

	_, _, err := DecideWinner(models.MetricTargetThreshold, nil, creator, 1, opponent, 2)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestListMineFilters(t *testing.T) {
	f := newFixture(t)
	f.grantTokens(t, f.alice.ID, 5)
	f.grantTokens(t, f.organizer.ID, 5)

	proposeSteps(t, f, f.alice.ID, f.bob.ID, 1)
	_, err := f.wagers.Propose(f.organizer.ID, ProposeRequest{
		CompetitionID: f.comp.ID, WeekID: f.week.ID, OpponentID: f.bob.ID,
		Title: "Plank-off", MetricType: models.MetricHigherWins, Unit: "seconds", Stake: 1,
	})
	require.NoError(t, err)

	all, err := f.wagers.List(f.comp.ID, f.week.ID, f.alice.ID, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := f.wagers.List(f.comp.ID, f.week.ID, f.alice.ID, true)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, f.alice.ID, mine[0].CreatorID)
}
