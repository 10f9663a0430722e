package game

// InitPayload is sent to a player right after joining.
type InitPayload struct {
	ID          string             `json:"id"`
	Players     map[string]Player  `json:"players"`
	Nutrients   []Nutrient         `json:"nutrients"`
	Egg         Point              `json:"egg"`
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
	Arena       Arena              `json:"arena"`
}

// PlayerPayload carries one player's full state.
type PlayerPayload struct {
	ID     string `json:"id"`
	Player Player `json:"player"`
}

// NutrientUpdate is either an incremental change or a full replacement.
type NutrientUpdate struct {
	Removed    string     `json:"removed,omitempty"`
	Added      *Nutrient  `json:"added,omitempty"`
	FullUpdate []Nutrient `json:"fullUpdate,omitempty"`
}

func playerPayload(p *Player) PlayerPayload {
	return PlayerPayload{ID: p.ID, Player: *p}
}
