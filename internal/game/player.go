package game

import (
	"fmt"
	"math"
	"math/rand"
)

// Player size bounds. Every player starts (and respawns) at MinPlayerSize.
const (
	MinPlayerSize = 10.0
	MaxPlayerSize = 30.0

	nutrientGrowth = 0.5
)

// Player is the authoritative state of one connection's entity.
// It is owned by the Registry; everything else refers to it by ID.
type Player struct {
	ID                 string  `json:"id"`
	X                  float64 `json:"x"`
	Y                  float64 `json:"y"`
	Angle              float64 `json:"angle"`
	TargetAngle        float64 `json:"targetAngle"`
	Score              int     `json:"score"`
	Size               float64 `json:"size"`
	Name               string  `json:"name"`
	Color              string  `json:"color"`
	NutrientsCollected int     `json:"nutrientsCollected"`
	Kills              int     `json:"kills"`
}

// newPlayer creates a player at a random inset position.
// Blank name and color are replaced with generated defaults.
func newPlayer(id, name, color string, w World, rng *rand.Rand) *Player {
	if name == "" {
		name = defaultName(id)
	}
	if color == "" {
		color = fmt.Sprintf("hsl(%.0f, 70%%, 50%%)", rng.Float64()*360)
	}
	x, y := w.RandomInset(rng)
	return &Player{
		ID:    id,
		X:     x,
		Y:     y,
		Size:  MinPlayerSize,
		Name:  name,
		Color: color,
	}
}

func defaultName(id string) string {
	if len(id) > 4 {
		id = id[:4]
	}
	return "Player" + id
}

// addScore applies a score delta without letting the score go negative.
func (p *Player) addScore(delta int) {
	p.Score += delta
	if p.Score < 0 {
		p.Score = 0
	}
}

// grow increases size up to MaxPlayerSize.
func (p *Player) grow(delta float64) {
	p.Size = math.Min(MaxPlayerSize, p.Size+delta)
}

// respawn moves an absorbed player to a fresh inset position at base size.
func (p *Player) respawn(w World, rng *rand.Rand, penalty int) {
	p.X, p.Y = w.RandomInset(rng)
	p.Size = MinPlayerSize
	p.addScore(-penalty)
}

func (p *Player) distanceTo(x, y float64) float64 {
	return distance(p.X, p.Y, x, y)
}
