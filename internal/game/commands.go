package game

// Command is one unit of work executed on the engine goroutine.
type Command interface {
	apply(e *Engine)
}

// JoinCommand spawns a player. Reply, if set, receives the result and
// must have room for one value.
type JoinCommand struct {
	ConnID string
	Name   string
	Color  string
	Reply  chan<- error
}

func (c JoinCommand) apply(e *Engine) {
	err := e.join(c.ConnID, c.Name, c.Color)
	if c.Reply != nil {
		c.Reply <- err
	}
}

// MoveCommand proposes a new position for a player.
type MoveCommand struct {
	ConnID   string
	Proposal Proposal
}

func (c MoveCommand) apply(e *Engine) { e.move(c.ConnID, c.Proposal) }

// CollectCommand attempts to consume a nutrient.
type CollectCommand struct {
	ConnID     string
	NutrientID string
}

func (c CollectCommand) apply(e *Engine) { e.collect(c.ConnID, c.NutrientID) }

// LeaveCommand removes a disconnected player.
type LeaveCommand struct {
	ConnID string
}

func (c LeaveCommand) apply(e *Engine) { e.leave(c.ConnID) }

// tickCommand forces a tick outside the ticker.
type tickCommand struct{}

func (tickCommand) apply(e *Engine) { e.tick() }
