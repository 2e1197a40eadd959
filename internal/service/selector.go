package service

import (
	"slices"

	"github.com/skatehive-leaderboard/internal/models"
)

func rosterSet(roster []string) map[string]struct{} {
	set := make(map[string]struct{}, len(roster))
	for _, name := range roster {
		if n := models.NormalizeAuthor(name); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

// compareStaleness orders never-refreshed rows first, then oldest last_updated.
func compareStaleness(a, b models.LeaderboardEntry) int {
	switch {
	case a.LastUpdated == nil && b.LastUpdated == nil:
		return 0
	case a.LastUpdated == nil:
		return -1
	case b.LastUpdated == nil:
		return 1
	default:
		return a.LastUpdated.Compare(*b.LastUpdated)
	}
}

// StalestCandidates returns up to poolSize persisted rows that are still in
// the roster, stalest first. Roster members without a row are never returned.
func StalestCandidates(roster []string, rows []models.LeaderboardEntry, poolSize int) []models.LeaderboardEntry {
	if len(roster) == 0 || len(rows) == 0 || poolSize <= 0 {
		return nil
	}

	subscribed := rosterSet(roster)
	eligible := make([]models.LeaderboardEntry, 0, len(rows))
	for _, row := range rows {
		if _, ok := subscribed[models.NormalizeAuthor(row.HiveAuthor)]; ok {
			eligible = append(eligible, row)
		}
	}

	slices.SortStableFunc(eligible, compareStaleness)
	if len(eligible) > poolSize {
		eligible = eligible[:poolSize]
	}
	return eligible
}

// SelectBatches picks this cycle's users and splits them into waves of batchSize.
func SelectBatches(roster []string, rows []models.LeaderboardEntry, poolSize, batchSize int) [][]string {
	candidates := StalestCandidates(roster, rows, poolSize)
	if len(candidates) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = len(candidates)
	}

	waves := make([][]string, 0, (len(candidates)+batchSize-1)/batchSize)
	for start := 0; start < len(candidates); start += batchSize {
		end := min(start+batchSize, len(candidates))
		wave := make([]string, 0, end-start)
		for _, row := range candidates[start:end] {
			wave = append(wave, row.HiveAuthor)
		}
		waves = append(waves, wave)
	}
	return waves
}

// NewSubscribers returns roster members with no persisted row, lower-cased and
// de-duplicated, in roster order.
func NewSubscribers(roster []string, rows []models.LeaderboardEntry) []string {
	persisted := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		persisted[models.NormalizeAuthor(row.HiveAuthor)] = struct{}{}
	}

	var fresh []string
	for _, name := range roster {
		n := models.NormalizeAuthor(name)
		if n == "" {
			continue
		}
		if _, ok := persisted[n]; ok {
			continue
		}
		persisted[n] = struct{}{}
		fresh = append(fresh, n)
	}
	return fresh
}
