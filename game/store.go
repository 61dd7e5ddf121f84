package game

import (
	"maps"
	"slices"
	"sync"
)

// Field is the battle-wide state that belongs to no position.
type Field struct {
	Weather string
	// Effects are the active field conditions, sorted.
	Effects []string
	Players map[Side]string
	Ended   bool
	// Winner is empty on a tie.
	Winner string
}

// Store maps positions to their active combatants. It has one writer (the
// dispatcher) and any number of readers; entries are deep-copied in and out
// so a reader never sees a half-applied update.
type Store struct {
	mu      sync.RWMutex
	active  map[Position]Combatant
	slot    Side
	weather string
	effects map[string]struct{}
	players map[Side]string
	ended   bool
	winner  string
}

func NewStore() *Store {
	return &Store{
		active:  make(map[Position]Combatant),
		slot:    Side1,
		effects: make(map[string]struct{}),
		players: make(map[Side]string),
	}
}

// Put replaces whatever occupied pos.
func (s *Store) Put(pos Position, c Combatant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[pos] = c.clone()
}

func (s *Store) Get(pos Position) (Combatant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.active[pos]
	return c.clone(), ok
}

// Update applies fn to the combatant at pos and returns it as it was before
// and after. ok is false when pos is empty; fn is not called then.
func (s *Store) Update(pos Position, fn func(*Combatant)) (before, after Combatant, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before, ok = s.active[pos]
	if !ok {
		return Combatant{}, Combatant{}, false
	}
	after = before.clone()
	fn(&after)
	s.active[pos] = after
	return before, after.clone(), true
}

// Clear drops every combatant and the field conditions. The player slot and
// player names are kept.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.active)
	clear(s.effects)
	s.weather = ""
	s.ended = false
	s.winner = ""
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.active)
}

// Snapshot returns a point-in-time copy of the whole board.
func (s *Store) Snapshot() map[Position]Combatant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[Position]Combatant, len(s.active))
	for pos, c := range s.active {
		out[pos] = c.clone()
	}
	return out
}

// Positions returns the occupied positions in side, slot order.
func (s *Store) Positions() []Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.positionsLocked()
}

func (s *Store) positionsLocked() []Position {
	keys := slices.Collect(maps.Keys(s.active))
	slices.SortFunc(keys, comparePositions)
	return keys
}

// Resolve finds the occupied position an identifier refers to.
func (s *Store) Resolve(ident string) (Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Resolve(ident, s.positionsLocked())
}

func (s *Store) SetSlot(side Side) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slot = side
}

// Slot is the local viewer's side; Side1 until a request says otherwise.
func (s *Store) Slot() Side {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.slot
}

// Active returns the combatant in the lowest occupied slot of side.
func (s *Store) Active(side Side) (Position, Combatant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeLocked(side)
}

func (s *Store) activeLocked(side Side) (Position, Combatant, bool) {
	for _, pos := range s.positionsLocked() {
		if pos.Side == side {
			return pos, s.active[pos].clone(), true
		}
	}
	return Position{}, Combatant{}, false
}

// Mine returns the local viewer's active combatant.
func (s *Store) Mine() (Position, Combatant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeLocked(s.slot)
}

// Opponent returns the active combatant on the other side.
func (s *Store) Opponent() (Position, Combatant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeLocked(s.slot.Opponent())
}

// SetWeather replaces the current weather; "" clears it.
func (s *Store) SetWeather(weather string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.weather = weather
}

func (s *Store) StartEffect(effect string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.effects[effect] = struct{}{}
}

func (s *Store) EndEffect(effect string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.effects, effect)
}

// SetPlayer names the player on side.
func (s *Store) SetPlayer(side Side, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players[side] = name
}

// End marks the battle finished. winner is empty on a tie.
func (s *Store) End(winner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = true
	s.winner = winner
}

// Field returns a copy of the battle-wide state.
func (s *Store) Field() Field {
	s.mu.RLock()
	defer s.mu.RUnlock()
	effects := slices.Sorted(maps.Keys(s.effects))
	return Field{
		Weather: s.weather,
		Effects: effects,
		Players: maps.Clone(s.players),
		Ended:   s.ended,
		Winner:  s.winner,
	}
}
