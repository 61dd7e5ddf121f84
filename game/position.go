package game

import (
	"fmt"
	"slices"

	"showdown-mirror/parser"
)

// Side is one of the two sides of a battle.
type Side int

const (
	Side1 Side = iota + 1
	Side2
)

func (s Side) String() string {
	switch s {
	case Side1:
		return "p1"
	case Side2:
		return "p2"
	}
	return fmt.Sprintf("Side(%d)", int(s))
}

// Opponent returns the complementary side.
func (s Side) Opponent() Side {
	if s == Side2 {
		return Side1
	}
	return Side2
}

// SideFromID maps a protocol side token ("p1", "p2") to a Side.
func SideFromID(id string) (Side, error) {
	switch id {
	case "p1":
		return Side1, nil
	case "p2":
		return Side2, nil
	}
	return 0, &parser.FieldError{Field: "side", Value: id, Reason: parser.ReasonBadPosition}
}

// Position is a board slot: a side plus a slot index (0 for "a").
type Position struct {
	Side Side
	Slot int
}

func (p Position) Letter() byte {
	return byte('a' + p.Slot)
}

func (p Position) String() string {
	return p.Side.String() + string(p.Letter())
}

// ParsePosition strictly parses a position token such as "p1a" or an
// identifier such as "p1a: Pikachu".
func ParsePosition(ident string) (Position, error) {
	token, _ := parser.SplitIdent(ident)
	if len(token) != 3 {
		return Position{}, &parser.FieldError{Field: "position", Value: ident, Reason: parser.ReasonBadPosition}
	}
	side, err := SideFromID(token[:2])
	if err != nil {
		return Position{}, &parser.FieldError{Field: "position", Value: ident, Reason: parser.ReasonBadPosition}
	}
	letter := token[2]
	if letter < 'a' || letter > 'z' {
		return Position{}, &parser.FieldError{Field: "position", Value: ident, Reason: parser.ReasonBadPosition}
	}
	return Position{Side: side, Slot: int(letter - 'a')}, nil
}

// Resolve maps a raw identifier to one of the occupied positions.
//
// An exact match on the strictly parsed token wins. Otherwise, for tokens of
// three or more characters, the first occupied position whose side prefix
// equals token[:2] and whose slot letter equals token[2] is used, which
// tolerates suffixed variants such as "p1aa".
func Resolve(ident string, occupied []Position) (Position, bool) {
	if pos, err := ParsePosition(ident); err == nil && slices.Contains(occupied, pos) {
		return pos, true
	}
	token, _ := parser.SplitIdent(ident)
	if len(token) < 3 {
		return Position{}, false
	}
	side, err := SideFromID(token[:2])
	if err != nil {
		return Position{}, false
	}
	sorted := slices.Clone(occupied)
	slices.SortFunc(sorted, comparePositions)
	for _, pos := range sorted {
		if pos.Side == side && pos.Letter() == token[2] {
			return pos, true
		}
	}
	return Position{}, false
}

func comparePositions(a, b Position) int {
	if a.Side != b.Side {
		return int(a.Side) - int(b.Side)
	}
	return a.Slot - b.Slot
}
