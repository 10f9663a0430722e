package game

import "math/rand"

const (
	collisionReach = 1.2 // Multiplier on the summed radii
	absorbMargin   = 2.0 // Size lead needed to absorb
)

// Outcome is one absorption resolved during a sweep. Winner and Loser are
// copies taken right after the pair resolved, so a player involved in
// several pairs shows its state at each step.
type Outcome struct {
	WinnerID string
	LoserID  string
	SpawnX   float64
	SpawnY   float64
	Winner   Player
	Loser    Player
}

// Sweep resolves contact between every unordered pair of players, in join
// order. Respawns are applied immediately, so later pairs see the loser at
// its new position and base size.
func Sweep(reg *Registry, w World, rng *rand.Rand) []Outcome {
	ids := reg.IDs()
	var outcomes []Outcome

	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			a, b := reg.Get(ids[i]), reg.Get(ids[j])
			if a == nil || b == nil {
				continue
			}
			if o, ok := resolvePair(a, b, w, rng); ok {
				outcomes = append(outcomes, o)
			}
		}
	}
	return outcomes
}

func resolvePair(a, b *Player, w World, rng *rand.Rand) (Outcome, bool) {
	if a.distanceTo(b.X, b.Y) >= (a.Size+b.Size)*collisionReach {
		return Outcome{}, false
	}

	var winner, loser *Player
	switch {
	case a.Size > b.Size+absorbMargin:
		winner, loser = a, b
	case b.Size > a.Size+absorbMargin:
		winner, loser = b, a
	default:
		return Outcome{}, false
	}

	winner.Kills++
	winner.addScore(w.Rules.KillBonus)
	loser.respawn(w, rng, w.Rules.DeathPenalty)

	return Outcome{
		WinnerID: winner.ID,
		LoserID:  loser.ID,
		SpawnX:   loser.X,
		SpawnY:   loser.Y,
		Winner:   *winner,
		Loser:    *loser,
	}, true
}
