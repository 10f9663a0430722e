package game

// CheckEgg awards the egg bonus when p overlaps the egg.
// There is no cooldown: a player lingering at the egg scores on every
// accepted move.
func CheckEgg(w World, p *Player) bool {
	if p.distanceTo(w.Egg.X, w.Egg.Y) >= p.Size+w.Rules.EggRadius {
		return false
	}
	p.addScore(w.Rules.EggBonus)
	return true
}
