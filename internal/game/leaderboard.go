package game

import "sort"

// LeaderboardEntry is one ranked row.
type LeaderboardEntry struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Score              int    `json:"score"`
	NutrientsCollected int    `json:"nutrientsCollected"`
	Kills              int    `json:"kills"`
}

// Top ranks players by score, highest first, and keeps the first n.
// Equal scores keep join order. The result is recomputed on every call.
func Top(reg *Registry, n int) []LeaderboardEntry {
	entries := make([]LeaderboardEntry, 0, reg.Len())
	for _, id := range reg.IDs() {
		p := reg.Get(id)
		entries = append(entries, LeaderboardEntry{
			ID:                 p.ID,
			Name:               p.Name,
			Score:              p.Score,
			NutrientsCollected: p.NutrientsCollected,
			Kills:              p.Kills,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})

	if n >= 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries
}
