package game

import "math"

// Proposal is a client's requested position and heading.
type Proposal struct {
	X           float64
	Y           float64
	Angle       float64
	TargetAngle float64
}

// NaN compares false against every bound, so it must be caught before
// the distance check.
func (prop Proposal) finite() bool {
	for _, v := range [...]float64{prop.X, prop.Y, prop.Angle, prop.TargetAngle} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// MoveResult is the outcome of TryMove. On rejection only Accepted is set.
type MoveResult struct {
	Accepted    bool
	X           float64
	Y           float64
	Angle       float64
	TargetAngle float64
}

// TryMove validates a proposed displacement against the speed limit.
// Accepted moves are clamped to the arena and applied to p in place; the
// angles are taken as sent. Rejected moves leave p untouched, as do
// proposals carrying NaN or infinite values.
func TryMove(w World, p *Player, prop Proposal) MoveResult {
	if !prop.finite() {
		return MoveResult{}
	}
	if p.distanceTo(prop.X, prop.Y) > w.Rules.MaxMoveDistance {
		return MoveResult{}
	}

	p.X, p.Y = w.Clamp(prop.X, prop.Y)
	p.Angle = prop.Angle
	p.TargetAngle = prop.TargetAngle

	return MoveResult{
		Accepted:    true,
		X:           p.X,
		Y:           p.Y,
		Angle:       p.Angle,
		TargetAngle: p.TargetAngle,
	}
}
