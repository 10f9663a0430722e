package game

import (
	"errors"
	"fmt"
	"math/rand"
)

// ErrPlayerExists is returned when a connection joins twice.
var ErrPlayerExists = errors.New("game: player already joined")

// Registry maps connection IDs to players and remembers join order.
// Join order is the iteration order for collision sweeps and leaderboard ties.
//
// Registry is not safe for concurrent use; the Engine goroutine owns it.
type Registry struct {
	world   World
	rng     *rand.Rand
	players map[string]*Player
	order   []string
}

// NewRegistry creates an empty registry spawning players into w.
func NewRegistry(w World, rng *rand.Rand) *Registry {
	return &Registry{
		world:   w,
		rng:     rng,
		players: make(map[string]*Player),
	}
}

// Join registers a new player for id.
func (r *Registry) Join(id, name, color string) (*Player, error) {
	if _, ok := r.players[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrPlayerExists, id)
	}
	p := newPlayer(id, name, color, r.world, r.rng)
	r.players[id] = p
	r.order = append(r.order, id)
	return p, nil
}

// Get returns the player for id, or nil.
func (r *Registry) Get(id string) *Player {
	return r.players[id]
}

// Leave removes the player for id. Unknown ids are ignored.
func (r *Registry) Leave(id string) bool {
	if _, ok := r.players[id]; !ok {
		return false
	}
	delete(r.players, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// All returns a read view of every player keyed by id.
// Callers must not retain it past the current unit of work.
func (r *Registry) All() map[string]*Player {
	return r.players
}

// IDs returns a copy of the player ids in join order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	return ids
}

// Len returns the number of joined players.
func (r *Registry) Len() int {
	return len(r.players)
}
