package data

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

const defaultMovePower = 80

type PokemonData struct {
	Name  string
	Types []string
}

type MoveData struct {
	Name  string
	Type  string
	Power int
}

type rawPokemonData struct {
	Name  string   `json:"name"`
	Types []string `json:"types"`
}

type rawMoveData struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Power int    `json:"basePower"`
}

// Dex is a read-only species and move lookup, loaded from the simulator's
// pokedex.json and moves.json exports. The zero value is an empty Dex.
type Dex struct {
	pokemon map[string]PokemonData
	moves   map[string]MoveData
}

// ID normalizes a display name to the simulator's lookup form
// ("Mr. Mime" -> "mrmime").
func ID(name string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// Load reads both data files. An empty path skips that table.
func Load(pokedexPath, movesPath string) (*Dex, error) {
	d := &Dex{}
	if pokedexPath != "" {
		if err := d.LoadPokemonData(pokedexPath); err != nil {
			return nil, err
		}
	}
	if movesPath != "" {
		if err := d.LoadMoveData(movesPath); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *Dex) LoadPokemonData(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening pokedex: %w", err)
	}
	defer file.Close()

	var raw map[string]rawPokemonData
	if err := json.NewDecoder(file).Decode(&raw); err != nil {
		return fmt.Errorf("decoding pokedex %s: %w", path, err)
	}

	d.pokemon = make(map[string]PokemonData, len(raw))
	for _, p := range raw {
		d.pokemon[ID(p.Name)] = PokemonData{Name: p.Name, Types: p.Types}
	}
	return nil
}

func (d *Dex) LoadMoveData(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening moves: %w", err)
	}
	defer file.Close()

	var raw map[string]rawMoveData
	if err := json.NewDecoder(file).Decode(&raw); err != nil {
		return fmt.Errorf("decoding moves %s: %w", path, err)
	}

	d.moves = make(map[string]MoveData, len(raw))
	for _, m := range raw {
		d.moves[ID(m.Name)] = MoveData{Name: m.Name, Type: m.Type, Power: m.Power}
	}
	return nil
}

func (d *Dex) Types(species string) []string {
	if d == nil {
		return nil
	}
	if p, ok := d.pokemon[ID(species)]; ok {
		return p.Types
	}
	return nil
}

// Move looks up a move by display name or id. Unknown moves come back with
// the default power and ok == false.
func (d *Dex) Move(name string) (MoveData, bool) {
	if d != nil {
		if m, ok := d.moves[ID(name)]; ok {
			return m, true
		}
	}
	return MoveData{Name: name, Power: defaultMovePower}, false
}

func (d *Dex) Len() (pokemon, moves int) {
	if d == nil {
		return 0, 0
	}
	return len(d.pokemon), len(d.moves)
}
