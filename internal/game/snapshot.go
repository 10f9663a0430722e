package game

import (
	"sort"
	"time"
)

// Snapshot is an immutable copy of the world for readers outside the
// engine goroutine.
type Snapshot struct {
	Tick        uint64             `json:"tick"`
	Players     []Player           `json:"players"`
	Nutrients   []Nutrient         `json:"nutrients"`
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
	Egg         Point              `json:"egg"`
	Arena       Arena              `json:"arena"`
	TakenAt     time.Time          `json:"takenAt"`
}

// PlayerCount returns the number of players in the snapshot.
func (s *Snapshot) PlayerCount() int {
	return len(s.Players)
}

// Player finds a player by id.
func (s *Snapshot) Player(id string) (Player, bool) {
	i := sort.Search(len(s.Players), func(i int) bool { return s.Players[i].ID >= id })
	if i < len(s.Players) && s.Players[i].ID == id {
		return s.Players[i], true
	}
	return Player{}, false
}

func takeSnapshot(tick uint64, w World, reg *Registry, field *NutrientField, topN int) *Snapshot {
	players := make([]Player, 0, reg.Len())
	for _, p := range reg.All() {
		players = append(players, *p)
	}
	sort.Slice(players, func(i, j int) bool { return players[i].ID < players[j].ID })

	return &Snapshot{
		Tick:        tick,
		Players:     players,
		Nutrients:   field.List(),
		Leaderboard: Top(reg, topN),
		Egg:         w.Egg,
		Arena:       w.Arena,
		TakenAt:     time.Now(),
	}
}
