package game

import (
	"maps"
	"slices"

	"showdown-mirror/parser"
)

// Stat stages are clamped to this range.
const (
	MinBoost = -6
	MaxBoost = 6
)

// Combatant is the active pokemon at one position.
type Combatant struct {
	Name    string
	Species string
	Level   int
	HP      int
	MaxHP   int
	Fainted bool
	Status  string
	Ability string
	// Boosts holds non-zero stat stages keyed by stat id ("atk", "spe").
	Boosts map[string]int
	// Moves are the moves seen used, in order of first use.
	Moves []string
}

// NewCombatant builds the entity a switch line creates.
func NewCombatant(nickname string, d parser.Details) Combatant {
	name := nickname
	if name == "" {
		name = d.Species
	}
	return Combatant{Name: name, Species: d.Species, Level: d.Level}
}

// HPPercent is floor(HP/MaxHP*100), or 0 when MaxHP is unknown.
func (c Combatant) HPPercent() int {
	if c.MaxHP == 0 {
		return 0
	}
	return c.HP * 100 / c.MaxHP
}

// ApplyHP copies a decoded HP status onto the combatant. A fainted
// combatant stays at 0 HP until it is replaced.
func (c *Combatant) ApplyHP(hp parser.HPStatus) {
	if hp.Fainted {
		c.Faint()
		return
	}
	if c.Fainted {
		return
	}
	c.HP = hp.Current
	c.MaxHP = hp.Max
	c.Status = hp.Status
}

func (c *Combatant) Faint() {
	c.Fainted = true
	c.HP = 0
}

// Boost shifts a stat stage by delta, clamped to [MinBoost, MaxBoost].
func (c *Combatant) Boost(stat string, delta int) {
	c.SetBoost(stat, c.Boosts[stat]+delta)
}

func (c *Combatant) SetBoost(stat string, stage int) {
	stage = min(max(stage, MinBoost), MaxBoost)
	if stage == 0 {
		delete(c.Boosts, stat)
		return
	}
	if c.Boosts == nil {
		c.Boosts = make(map[string]int)
	}
	c.Boosts[stat] = stage
}

// Reveal records a move the combatant used. Repeats are ignored.
func (c *Combatant) Reveal(move string) {
	if move == "" || slices.Contains(c.Moves, move) {
		return
	}
	c.Moves = append(c.Moves, move)
}

// clone copies the combatant so the result shares no map or slice with c.
func (c Combatant) clone() Combatant {
	c.Boosts = maps.Clone(c.Boosts)
	c.Moves = slices.Clone(c.Moves)
	return c
}
