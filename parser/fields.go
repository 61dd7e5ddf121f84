package parser

import (
	"encoding/json"
	"strconv"
	"strings"
)

const DefaultLevel = 100

// HPStatus is a decoded "<current>/<max>[ <status>]" string.
type HPStatus struct {
	Current int
	Max     int
	Fainted bool
	Status  string
}

// ParseHPStatus decodes an HP status string. Any string containing " fnt"
// is the fainted marker and yields a zero, fainted status.
func ParseHPStatus(s string) (HPStatus, error) {
	if strings.Contains(s, " fnt") {
		return HPStatus{Fainted: true}, nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return HPStatus{}, fieldErr("hp", s, ReasonEmpty, nil)
	}
	left, right, ok := strings.Cut(s, "/")
	if !ok {
		return HPStatus{}, fieldErr("hp", s, ReasonMissingSeparator, nil)
	}
	cur, err := strconv.Atoi(strings.TrimSpace(left))
	if err != nil {
		return HPStatus{}, fieldErr("hp", s, ReasonNotNumeric, err)
	}
	maxPart, status, _ := strings.Cut(strings.TrimSpace(right), " ")
	maxHP, err := strconv.Atoi(maxPart)
	if err != nil {
		return HPStatus{}, fieldErr("hp", s, ReasonNotNumeric, err)
	}
	return HPStatus{Current: cur, Max: maxHP, Status: strings.TrimSpace(status)}, nil
}

// Details is a decoded "Species, L50, M, shiny" string.
type Details struct {
	Species string
	Level   int
	Gender  string
	Shiny   bool
}

// ParseDetails decodes a details string. Level defaults to 100; when the
// level segment is present but unreadable the default is kept and an error is
// returned alongside the otherwise usable Details.
func ParseDetails(s string) (Details, error) {
	d := Details{Level: DefaultLevel}
	segments := strings.Split(s, ",")
	d.Species = strings.TrimSpace(segments[0])
	for _, seg := range segments[1:] {
		switch seg = strings.TrimSpace(seg); seg {
		case "M", "F":
			d.Gender = seg
		case "shiny":
			d.Shiny = true
		}
	}

	i := strings.Index(s, ", L")
	if i < 0 {
		return d, nil
	}
	raw := s[i+len(", L"):]
	if j := strings.IndexByte(raw, ','); j >= 0 {
		raw = raw[:j]
	}
	level, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return d, fieldErr("level", raw, ReasonNotNumeric, err)
	}
	d.Level = level
	return d, nil
}

// ParseTurn decodes the argument of a turn line.
func ParseTurn(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fieldErr("turn", s, ReasonNotNumeric, err)
	}
	return n, nil
}

type requestSide struct {
	Side struct {
		ID string `json:"id"`
	} `json:"side"`
}

// ParseRequestSide reads side.id out of a request payload. Every other field
// is left for the presentation layer.
func ParseRequestSide(payload string) (string, error) {
	if strings.TrimSpace(payload) == "" {
		return "", fieldErr("request", payload, ReasonEmpty, nil)
	}
	var req requestSide
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return "", fieldErr("request", payload, ReasonBadJSON, err)
	}
	if req.Side.ID == "" {
		return "", fieldErr("side.id", "", ReasonMissingField, nil)
	}
	return req.Side.ID, nil
}

// ParseBoost decodes the stage amount of a boost line.
func ParseBoost(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fieldErr("boost", s, ReasonNotNumeric, err)
	}
	return n, nil
}

// EffectName strips the "move: " or "ability: " source prefix from an
// effect argument such as "move: Trick Room".
func EffectName(s string) string {
	s = strings.TrimSpace(s)
	if _, name, ok := strings.Cut(s, ": "); ok {
		return name
	}
	return s
}
