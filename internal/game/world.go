package game

import (
	"math"
	"math/rand"

	"egg-arena/internal/config"
)

// Spawn region: 10%-90% of each arena dimension.
const (
	insetMargin = 0.1
	insetSpan   = 0.8
)

// Point is a position in arena coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Arena describes the world bounds sent to clients.
type Arena struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// World holds the immutable rules and geometry of the arena.
type World struct {
	Rules config.WorldConfig
	Arena Arena
	Egg   Point
}

// NewWorld derives the arena geometry from cfg. The egg sits at the centre.
func NewWorld(cfg config.WorldConfig) World {
	return World{
		Rules: cfg,
		Arena: Arena{Width: cfg.ArenaWidth, Height: cfg.ArenaHeight},
		Egg:   Point{X: cfg.ArenaWidth / 2, Y: cfg.ArenaHeight / 2},
	}
}

// Clamp bounds a position to the arena.
func (w World) Clamp(x, y float64) (float64, float64) {
	return clamp(x, 0, w.Arena.Width), clamp(y, 0, w.Arena.Height)
}

// Contains reports whether a position lies inside the arena.
func (w World) Contains(x, y float64) bool {
	return x >= 0 && x <= w.Arena.Width && y >= 0 && y <= w.Arena.Height
}

// InInset reports whether a position lies inside the spawn region.
func (w World) InInset(x, y float64) bool {
	minX, maxX := w.Arena.Width*insetMargin, w.Arena.Width*(insetMargin+insetSpan)
	minY, maxY := w.Arena.Height*insetMargin, w.Arena.Height*(insetMargin+insetSpan)
	return x >= minX && x <= maxX && y >= minY && y <= maxY
}

// RandomInset picks a uniform position inside the spawn region.
func (w World) RandomInset(rng *rand.Rand) (float64, float64) {
	x := rng.Float64()*w.Arena.Width*insetSpan + w.Arena.Width*insetMargin
	y := rng.Float64()*w.Arena.Height*insetSpan + w.Arena.Height*insetMargin
	return x, y
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func distance(x1, y1, x2, y2 float64) float64 {
	return math.Hypot(x1-x2, y1-y2)
}
