package tui

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hako/durafmt"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"showdown-mirror/data"
	"showdown-mirror/game"
)

var (
	titleCaser    = cases.Title(language.AmericanEnglish)
	shortUnits, _ = durafmt.DefaultUnitsCoder.Decode("y:yrs,wk:wks,d:d,h:h,m:m,s:s,ms:ms,us:us")
)

const (
	hpBarWidth     = 20
	maxThreatMoves = 5
)

var statLabels = map[string]string{
	"atk":      "Atk",
	"def":      "Def",
	"spa":      "SpA",
	"spd":      "SpD",
	"spe":      "Spe",
	"accuracy": "Acc",
	"evasion":  "Eva",
}

type moveOption struct {
	Name  string
	Type  string
	Power int
	Eff   float64
}

func (m moveOption) score() float64 {
	return float64(m.Power) * m.Eff
}

type request struct {
	Active []struct {
		Moves []struct {
			Move     string `json:"move"`
			Disabled bool   `json:"disabled"`
		} `json:"moves"`
	} `json:"active"`
}

// requestMoves lists the usable moves of the first active slot in a request
// payload. Wait and team-preview requests have none.
func requestMoves(payload string) []string {
	var req request
	if err := json.Unmarshal([]byte(payload), &req); err != nil || len(req.Active) == 0 {
		return nil
	}
	var out []string
	for _, m := range req.Active[0].Moves {
		if m.Disabled || m.Move == "" {
			continue
		}
		out = append(out, m.Move)
	}
	return out
}

// rankMoves scores each move as power times effectiveness against the target
// and sorts strongest first. Ties keep request order.
func rankMoves(dex *data.Dex, moves []string, target []string) []moveOption {
	out := make([]moveOption, 0, len(moves))
	for _, name := range moves {
		m, _ := dex.Move(name)
		if m.Power == 0 {
			// Status moves still get listed, behind every damaging move.
			out = append(out, moveOption{Name: m.Name, Type: m.Type, Eff: data.Effectiveness(m.Type, target)})
			continue
		}
		out = append(out, moveOption{
			Name:  m.Name,
			Type:  m.Type,
			Power: m.Power,
			Eff:   data.Effectiveness(m.Type, target),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score() > out[j].score() })
	return out
}

func hpColor(percent int) string {
	switch {
	case percent > 50:
		return "green"
	case percent > 20:
		return "yellow"
	}
	return "red"
}

// hpBar draws a fixed-width bar with tview color tags.
func hpBar(percent int) string {
	percent = max(0, min(percent, 100))
	filled := percent * hpBarWidth / 100
	if percent > 0 && filled == 0 {
		filled = 1
	}
	return fmt.Sprintf("[%s]%s[gray]%s[-] %3d%%",
		hpColor(percent),
		strings.Repeat("█", filled),
		strings.Repeat("░", hpBarWidth-filled),
		percent)
}

func formatCombatant(pos game.Position, c game.Combatant, types []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[::b]%s[::-] (%s) L%d\n", c.Name, pos, c.Level)
	if c.Species != "" && c.Species != c.Name {
		fmt.Fprintf(&sb, "%s\n", c.Species)
	}
	if len(types) > 0 {
		fmt.Fprintf(&sb, "[aqua]%s[-]\n", strings.Join(types, "/"))
	}
	if c.Fainted {
		sb.WriteString("[red]fainted[-]\n")
		return sb.String()
	}
	sb.WriteString(hpBar(c.HPPercent()))
	if c.Status != "" {
		fmt.Fprintf(&sb, " [yellow]%s[-]", strings.ToUpper(c.Status))
	}
	sb.WriteString("\n")
	if c.Ability != "" {
		fmt.Fprintf(&sb, "[gray]ability[-] %s\n", c.Ability)
	}
	if boosts := formatBoosts(c.Boosts); boosts != "" {
		sb.WriteString(boosts + "\n")
	}
	return sb.String()
}

// formatBoosts renders stat stages like "+2 SpA -1 Spe", sorted by stat.
func formatBoosts(boosts map[string]int) string {
	stats := make([]string, 0, len(boosts))
	for stat := range boosts {
		stats = append(stats, stat)
	}
	sort.Strings(stats)
	parts := make([]string, 0, len(stats))
	for _, stat := range stats {
		label, ok := statLabels[stat]
		if !ok {
			label = titleCaser.String(stat)
		}
		color := "green"
		if boosts[stat] < 0 {
			color = "red"
		}
		parts = append(parts, fmt.Sprintf("[%s]%+d %s[-]", color, boosts[stat], label))
	}
	return strings.Join(parts, " ")
}

// formatThreats lists the moves the opponent has shown, strongest against
// the viewer first.
func formatThreats(moves []moveOption) string {
	if len(moves) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("[gray]seen:[-]\n")
	for _, m := range moves[:min(len(moves), maxThreatMoves)] {
		fmt.Fprintf(&sb, "  %s", titleCaser.String(m.Name))
		if desc := data.Describe(m.Eff); desc != "" {
			fmt.Fprintf(&sb, " [orange](%s)[-]", desc)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// formatField summarizes the battle-wide state for the status bar.
func formatField(f game.Field) string {
	var parts []string
	if f.Ended {
		if f.Winner == "" {
			parts = append(parts, "[::b]tie[::-]")
		} else {
			parts = append(parts, "[::b]"+f.Winner+" won[::-]")
		}
	}
	if f.Weather != "" {
		parts = append(parts, "[aqua]"+f.Weather+"[-]")
	}
	parts = append(parts, f.Effects...)
	return strings.Join(parts, " | ")
}

// paneTitle adds the player name to a side pane title when it is known.
func paneTitle(label, player string) string {
	if player == "" {
		return " " + label + " "
	}
	return fmt.Sprintf(" %s (%s) ", label, player)
}

func formatMoves(moves []moveOption) string {
	if len(moves) == 0 {
		return "[gray]no moves known[-]"
	}
	var sb strings.Builder
	for i, m := range moves {
		typ := m.Type
		if typ == "" {
			typ = "?"
		}
		fmt.Fprintf(&sb, "%d. %s [gray]%s[-]", i+1, titleCaser.String(m.Name), typ)
		if m.Power > 0 {
			fmt.Fprintf(&sb, " %.0f", m.score())
		}
		if desc := data.Describe(m.Eff); desc != "" {
			fmt.Fprintf(&sb, " [orange](%s)[-]", desc)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func formatStatus(room string, turn int, elapsed time.Duration, connected bool) string {
	conn := "[red]offline[-]"
	if connected {
		conn = "[green]online[-]"
	}
	parts := []string{" " + conn}
	if room != "" {
		parts = append(parts, room)
	}
	if turn > 0 {
		parts = append(parts, humanize.Ordinal(turn)+" turn")
	}
	if elapsed > 0 {
		parts = append(parts, durafmt.Parse(elapsed.Truncate(time.Second)).LimitFirstN(2).Format(shortUnits))
	}
	return strings.Join(parts, " | ")
}
