package services

import (
	"errors"
	"sort"

	"fitness-challenge-system/models"

	"gorm.io/gorm"
)

// LeaderboardService is read-only: it aggregates completion points per user,
// assigns competition ranks with tie flags and derives prize splits from the
// percentage-of-pool configuration. Points always join the task's current
// point value, so organizer edits re-score history.
type LeaderboardService struct {
	DB *gorm.DB
}

func NewLeaderboardService(db *gorm.DB) *LeaderboardService {
	return &LeaderboardService{DB: db}
}

// LeaderboardEntry is one ranked row. Every participant appears, zero points
// included.
type LeaderboardEntry struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Points      int    `json:"points"`
	Rank        int    `json:"rank"`
	Tied        bool   `json:"tied"`
}

// Weekly ranks all participants by completion points in one week.
func (s *LeaderboardService) Weekly(competitionID, weekID string) ([]LeaderboardEntry, error) {
	var week models.Week
	if err := s.DB.First(&week, "id = ? AND competition_id = ?", weekID, competitionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "week"}
		}
		return nil, err
	}

	var entries []LeaderboardEntry
	err := s.DB.Raw(`
		SELECT p.user_id,
		       u.display_name,
		       COALESCE(SUM(t.point_value), 0) AS points
		FROM participants p
		JOIN users u ON u.id = p.user_id
		LEFT JOIN completions c ON c.user_id = p.user_id AND c.week_id = ?
		LEFT JOIN task_templates t ON t.id = c.task_template_id
		WHERE p.competition_id = ?
		GROUP BY p.user_id, u.display_name
	`, weekID, competitionID).Scan(&entries).Error
	if err != nil {
		return nil, err
	}
	return rankEntries(entries), nil
}

// Overall ranks all participants by points summed over locked weeks only.
func (s *LeaderboardService) Overall(competitionID string) ([]LeaderboardEntry, error) {
	var entries []LeaderboardEntry
	err := s.DB.Raw(`
		SELECT p.user_id,
		       u.display_name,
		       COALESCE(SUM(t.point_value), 0) AS points
		FROM participants p
		JOIN users u ON u.id = p.user_id
		LEFT JOIN completions c ON c.user_id = p.user_id
		     AND c.week_id IN (SELECT id FROM weeks WHERE competition_id = ? AND status = ?)
		LEFT JOIN task_templates t ON t.id = c.task_template_id
		WHERE p.competition_id = ?
		GROUP BY p.user_id, u.display_name
	`, competitionID, models.WeekStatusLocked, competitionID).Scan(&entries).Error
	if err != nil {
		return nil, err
	}
	return rankEntries(entries), nil
}

// rankEntries sorts descending and assigns competition ranks: tied scores
// share a rank and the next distinct score skips ahead by the tie-group size
// ([10,10,8] ranks as [1,1,3]). An entry is tied when its score matches a
// neighbor in sorted order.
func rankEntries(entries []LeaderboardEntry) []LeaderboardEntry {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Points != entries[j].Points {
			return entries[i].Points > entries[j].Points
		}
		return entries[i].DisplayName < entries[j].DisplayName
	})
	for i := range entries {
		if i > 0 && entries[i].Points == entries[i-1].Points {
			entries[i].Rank = entries[i-1].Rank
		} else {
			entries[i].Rank = i + 1
		}
	}
	for i := range entries {
		prev := i > 0 && entries[i-1].Points == entries[i].Points
		next := i < len(entries)-1 && entries[i+1].Points == entries[i].Points
		entries[i].Tied = prev || next
	}
	if entries == nil {
		entries = []LeaderboardEntry{}
	}
	return entries
}

// Winner is a participant tied for the top score, with their equal prize share.
type Winner struct {
	UserID      string  `json:"user_id"`
	DisplayName string  `json:"display_name"`
	Points      int     `json:"points"`
	Prize       float64 `json:"prize"`
}

// Winners returns the top-score group with prizeAmount split equally, no
// rounding-remainder redistribution.
func Winners(entries []LeaderboardEntry, prizeAmount float64) []Winner {
	if len(entries) == 0 {
		return []Winner{}
	}
	top := entries[0].Points
	var group []LeaderboardEntry
	for _, e := range entries {
		if e.Points != top {
			break
		}
		group = append(group, e)
	}
	share := prizeAmount / float64(len(group))
	winners := make([]Winner, 0, len(group))
	for _, e := range group {
		winners = append(winners, Winner{UserID: e.UserID, DisplayName: e.DisplayName, Points: e.Points, Prize: share})
	}
	return winners
}

// PayoutSummary is advisory display data: no money moves through the system.
type PayoutSummary struct {
	TotalPool          float64 `json:"total_pool"`
	WeeklyPrize        float64 `json:"weekly_prize"`
	WeeklyPayoutTotal  float64 `json:"weekly_payout_total"`
	GrandPrize         float64 `json:"grand_prize"`
	TokenChampionPrize float64 `json:"token_champion_prize"`
	ParticipantCount   int     `json:"participant_count"`
}

// Payout derives the prize pool from buy-in × participants and carves the
// configured percentages out of it.
func (s *LeaderboardService) Payout(competitionID string) (*PayoutSummary, error) {
	var comp models.Competition
	if err := s.DB.First(&comp, "id = ?", competitionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "competition"}
		}
		return nil, err
	}
	var participants int64
	if err := s.DB.Model(&models.Participant{}).
		Where("competition_id = ?", competitionID).
		Count(&participants).Error; err != nil {
		return nil, err
	}

	pool := comp.BuyInAmount * float64(participants)
	weekly := comp.WeeklyPrizePercent / 100 * pool
	return &PayoutSummary{
		TotalPool:          pool,
		WeeklyPrize:        weekly,
		WeeklyPayoutTotal:  weekly * float64(comp.NumWeeks),
		GrandPrize:         comp.GrandPrizePercent / 100 * pool,
		TokenChampionPrize: comp.TokenChampionPercent / 100 * pool,
		ParticipantCount:   int(participants),
	}, nil
}
