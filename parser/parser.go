package parser

import (
	"iter"
	"strings"
)

// Line is one tokenized protocol line. Room is the battle room named by the
// most recent ">room" header in the same frame, if any.
type Line struct {
	Room    string
	Keyword string
	Args    []string
	Raw     string
}

// Arg returns the i-th argument after the keyword, or "" if absent.
func (l Line) Arg(i int) string {
	if i < 0 || i >= len(l.Args) {
		return ""
	}
	return l.Args[i]
}

// Lines splits a raw frame into tokenized lines. The sequence is lazy:
// tokenizing stops as soon as the consumer stops ranging.
func Lines(frame string) iter.Seq[Line] {
	return func(yield func(Line) bool) {
		room := ""
		for raw := range strings.SplitSeq(frame, "\n") {
			raw = strings.TrimSpace(raw)
			if strings.HasPrefix(raw, ">") {
				room = strings.TrimSpace(raw[1:])
				continue
			}
			line, ok := Tokenize(raw)
			if !ok {
				continue
			}
			line.Room = room
			if !yield(line) {
				return
			}
		}
	}
}

// Tokenize splits a single line on the field separator. Leading empty fields
// are skipped; ok is false when no keyword remains.
func Tokenize(raw string) (Line, bool) {
	parts := strings.Split(strings.TrimSpace(raw), "|")
	i := 0
	for i < len(parts) && strings.TrimSpace(parts[i]) == "" {
		i++
	}
	if i == len(parts) {
		return Line{}, false
	}
	return Line{
		Keyword: strings.TrimSpace(parts[i]),
		Args:    parts[i+1:],
		Raw:     raw,
	}, true
}

// SplitIdent splits a pokemon identifier such as "p1a: Pikachu" into its
// position token and nickname.
func SplitIdent(ident string) (token, nickname string) {
	token, nickname, _ = strings.Cut(strings.TrimSpace(ident), ":")
	return strings.TrimSpace(token), strings.TrimSpace(nickname)
}
