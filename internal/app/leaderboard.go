package app

import (
	"maps"
	"sort"

	"quiz-session-engine/internal/domain"
)

// rankPlayers orders players by score descending, ties by nickname ascending,
// and keeps the first limit entries. limit <= 0 keeps everyone.
func rankPlayers(players []*player, limit int, details bool) []domain.LeaderboardEntry {
	sorted := make([]*player, len(players))
	copy(sorted, players)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].score != sorted[j].score {
			return sorted[i].score > sorted[j].score
		}
		return sorted[i].nickname < sorted[j].nickname
	})
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}

	entries := make([]domain.LeaderboardEntry, 0, len(sorted))
	for i, p := range sorted {
		entry := domain.LeaderboardEntry{
			Rank:           i + 1,
			Nickname:       p.nickname,
			Score:          p.score,
			CorrectAnswers: p.correct,
			TotalAnswers:   p.total,
		}
		if details {
			entry.Questions = maps.Clone(p.history)
		}
		entries = append(entries, entry)
	}
	return entries
}
