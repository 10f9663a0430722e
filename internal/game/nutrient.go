package game

import (
	"errors"
	"math/rand"

	"github.com/google/uuid"
)

// NutrientPalette holds the four nutrient colors.
var NutrientPalette = []string{"#4CAF50", "#2196F3", "#FFC107", "#E91E63"}

const (
	minNutrientSize  = 3.0
	nutrientSizeSpan = 5.0
	jitterAmplitude  = 1.0
	collectReach     = 1.5 // Multiplier on the summed radii
)

var (
	ErrNutrientNotFound   = errors.New("game: nutrient not found")
	ErrNutrientOutOfReach = errors.New("game: nutrient out of reach")
)

// Nutrient is a consumable that grows players.
type Nutrient struct {
	ID    string  `json:"id"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Size  float64 `json:"size"`
	Color string  `json:"color"`
}

// CollectResult describes a successful collection.
type CollectResult struct {
	Removed string
	Added   Nutrient
}

// NutrientField owns the nutrient population.
// Not safe for concurrent use; the Engine goroutine owns it.
type NutrientField struct {
	world World
	rng   *rand.Rand
	newID func() string

	items map[string]*Nutrient
	order []string // insertion order, for stable listings
}

// NewNutrientField creates an empty field. newID may be nil.
func NewNutrientField(w World, rng *rand.Rand, newID func() string) *NutrientField {
	if newID == nil {
		newID = uuid.NewString
	}
	return &NutrientField{
		world: w,
		rng:   rng,
		newID: newID,
		items: make(map[string]*Nutrient),
	}
}

// Create builds a nutrient without adding it. An empty id gets a fresh one.
func (f *NutrientField) Create(id string) *Nutrient {
	if id == "" {
		id = f.newID()
	}
	x, y := f.world.RandomInset(f.rng)
	return &Nutrient{
		ID:    id,
		X:     x,
		Y:     y,
		Size:  f.rng.Float64()*nutrientSizeSpan + minNutrientSize,
		Color: NutrientPalette[f.rng.Intn(len(NutrientPalette))],
	}
}

// Initialize fills the field to the configured maximum.
func (f *NutrientField) Initialize() {
	for len(f.items) < f.world.Rules.MaxNutrients {
		f.add(f.Create(""))
	}
}

// Jitter nudges every nutrient by up to one unit per axis.
func (f *NutrientField) Jitter() {
	for _, id := range f.order {
		n := f.items[id]
		n.X += (f.rng.Float64() - 0.5) * 2 * jitterAmplitude
		n.Y += (f.rng.Float64() - 0.5) * 2 * jitterAmplitude
		n.X, n.Y = f.world.Clamp(n.X, n.Y)
	}
}

// Replenish tops the field up to the configured minimum and returns each
// addition in the order it was made.
func (f *NutrientField) Replenish() []Nutrient {
	var added []Nutrient
	for len(f.items) < f.world.Rules.MinNutrients {
		n := f.Create("")
		f.add(n)
		added = append(added, *n)
	}
	return added
}

// Collect lets p consume the nutrient with id when it is within reach.
// On success the nutrient is replaced 1:1 and p's score, size and counter grow.
func (f *NutrientField) Collect(p *Player, id string) (CollectResult, error) {
	n, ok := f.items[id]
	if !ok {
		return CollectResult{}, ErrNutrientNotFound
	}
	if p.distanceTo(n.X, n.Y) > (p.Size+n.Size)*collectReach {
		return CollectResult{}, ErrNutrientOutOfReach
	}

	p.addScore(f.world.Rules.NutrientScore)
	p.grow(nutrientGrowth)
	p.NutrientsCollected++

	f.remove(id)
	replacement := f.Create("")
	f.add(replacement)

	return CollectResult{Removed: id, Added: *replacement}, nil
}

// Get returns a copy of the nutrient with id.
func (f *NutrientField) Get(id string) (Nutrient, bool) {
	n, ok := f.items[id]
	if !ok {
		return Nutrient{}, false
	}
	return *n, true
}

// List returns a copy of every nutrient in insertion order.
func (f *NutrientField) List() []Nutrient {
	out := make([]Nutrient, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, *f.items[id])
	}
	return out
}

// Len returns the current population.
func (f *NutrientField) Len() int {
	return len(f.items)
}

func (f *NutrientField) add(n *Nutrient) {
	f.items[n.ID] = n
	f.order = append(f.order, n.ID)
}

func (f *NutrientField) remove(id string) {
	delete(f.items, id)
	for i, oid := range f.order {
		if oid == id {
			f.order = append(f.order[:i], f.order[i+1:]...)
			return
		}
	}
}
