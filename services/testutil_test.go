package services

import (
	"testing"
	"time"

	"fitness-challenge-system/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens an in-memory sqlite handle with the full schema. Single
// connection, so every query sees the same database.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&models.User{},
		&models.Competition{},
		&models.Participant{},
		&models.TaskTemplate{},
		&models.Week{},
		&models.Completion{},
		&models.TokenLedgerEntry{},
		&models.SideChallenge{},
		&models.SideChallengeSubmission{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// fixture is a competition with an organizer and two participants, week 0
// open and week 1 upcoming.
type fixture struct {
	db        *gorm.DB
	ledger    *LedgerService
	wagers    *SideChallengeService
	perfect   *PerfectWeekService
	weeks     *WeekService
	boards    *LeaderboardService
	comp      *models.Competition
	organizer *models.User
	alice     *models.User
	bob       *models.User
	week      *models.Week // open
	nextWeek  *models.Week // upcoming
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)

	f := &fixture{db: db}
	f.ledger = NewLedgerService(db)
	f.wagers = NewSideChallengeService(db, f.ledger)
	f.perfect = NewPerfectWeekService(db, f.ledger)
	f.weeks = NewWeekService(db, f.perfect, f.wagers)
	f.boards = NewLeaderboardService(db)

	f.organizer = f.createUser(t, "Olivia Organizer", "olivia@example.com")
	f.alice = f.createUser(t, "Alice", "alice@example.com")
	f.bob = f.createUser(t, "Bob", "bob@example.com")

	now := time.Now()
	f.comp = &models.Competition{
		ID:                 uuid.NewString(),
		Name:               "Spring Shred",
		Slug:               "spring-shred",
		OrganizerID:        f.organizer.ID,
		StartDate:          now.Add(-3 * 24 * time.Hour),
		NumWeeks:           2,
		BuyInAmount:        10,
		WeeklyPrizePercent: 10,
		GrandPrizePercent:  30,
	}
	if err := db.Create(f.comp).Error; err != nil {
		t.Fatalf("create competition: %v", err)
	}

	for _, u := range []*models.User{f.organizer, f.alice, f.bob} {
		f.addParticipant(t, u)
	}

	f.week = f.createWeek(t, 0, now.Add(-3*24*time.Hour), now.Add(4*24*time.Hour), models.WeekStatusOpen)
	f.nextWeek = f.createWeek(t, 1, now.Add(4*24*time.Hour), now.Add(11*24*time.Hour), models.WeekStatusUpcoming)
	return f
}

func (f *fixture) createUser(t *testing.T, name, email string) *models.User {
	t.Helper()
	u := &models.User{ID: uuid.NewString(), DisplayName: name, Email: email, PasswordHash: "x"}
	if err := f.db.Create(u).Error; err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u
}

func (f *fixture) addParticipant(t *testing.T, u *models.User) {
	t.Helper()
	p := &models.Participant{ID: uuid.NewString(), CompetitionID: f.comp.ID, UserID: u.ID}
	if err := f.db.Create(p).Error; err != nil {
		t.Fatalf("add participant %s: %v", u.DisplayName, err)
	}
}

func (f *fixture) createWeek(t *testing.T, index int, start, end time.Time, status models.WeekStatus) *models.Week {
	t.Helper()
	w := &models.Week{
		ID:            uuid.NewString(),
		CompetitionID: f.comp.ID,
		WeekIndex:     index,
		StartsAt:      start,
		EndsAt:        end,
		Status:        status,
	}
	if err := f.db.Create(w).Error; err != nil {
		t.Fatalf("create week %d: %v", index, err)
	}
	return w
}

func (f *fixture) createTask(t *testing.T, name string, points int, active bool) *models.TaskTemplate {
	t.Helper()
	task := &models.TaskTemplate{
		ID:            uuid.NewString(),
		CompetitionID: f.comp.ID,
		Name:          name,
		PointValue:    points,
		Active:        active,
	}
	if err := f.db.Create(task).Error; err != nil {
		t.Fatalf("create task %s: %v", name, err)
	}
	return task
}

func (f *fixture) complete(t *testing.T, week *models.Week, task *models.TaskTemplate, userID string) *models.Completion {
	t.Helper()
	c := &models.Completion{
		ID:             uuid.NewString(),
		WeekID:         week.ID,
		TaskTemplateID: task.ID,
		UserID:         userID,
		Source:         models.CompletionSourceSelf,
	}
	if err := f.db.Create(c).Error; err != nil {
		t.Fatalf("create completion: %v", err)
	}
	return c
}

// grantTokens seeds a balance outside the flows under test.
func (f *fixture) grantTokens(t *testing.T, userID string, n int) {
	t.Helper()
	if err := f.ledger.Append(f.db, f.comp.ID, userID, nil, n, models.TokenReasonWin, nil); err != nil {
		t.Fatalf("grant tokens: %v", err)
	}
}

func (f *fixture) balance(t *testing.T, userID string) int {
	t.Helper()
	b, err := f.ledger.Balance(f.db, f.comp.ID, userID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return b
}
