package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"showdown-mirror/data"
	"showdown-mirror/game"
	"showdown-mirror/notify"
)

var (
	_ notify.Listener    = (*App)(nil)
	_ notify.EndListener = (*App)(nil)
)

func testDex(t *testing.T) *data.Dex {
	t.Helper()
	dir := t.TempDir()
	dexPath := filepath.Join(dir, "pokedex.json")
	movesPath := filepath.Join(dir, "moves.json")
	require.NoError(t, os.WriteFile(dexPath, []byte(`{
		"pikachu": {"name": "Pikachu", "types": ["Electric"]},
		"vaporeon": {"name": "Vaporeon", "types": ["Water"]}
	}`), 0o644))
	require.NoError(t, os.WriteFile(movesPath, []byte(`{
		"thunderbolt": {"name": "Thunderbolt", "type": "Electric", "basePower": 90},
		"surf": {"name": "Surf", "type": "Water", "basePower": 90},
		"thunderwave": {"name": "Thunder Wave", "type": "Electric", "basePower": 0}
	}`), 0o644))
	dex, err := data.Load(dexPath, movesPath)
	require.NoError(t, err)
	return dex
}

func TestRequestMoves(t *testing.T) {
	payload := `{"active":[{"moves":[
		{"move":"Thunderbolt","id":"thunderbolt"},
		{"move":"Surf","id":"surf","disabled":true},
		{"move":"Tackle","id":"tackle"}
	]}],"side":{"id":"p1"}}`
	assert.Equal(t, []string{"Thunderbolt", "Tackle"}, requestMoves(payload))

	assert.Nil(t, requestMoves(`{"wait":true,"side":{"id":"p1"}}`))
	assert.Nil(t, requestMoves(`{"active":`))
}

func TestRankMoves(t *testing.T) {
	dex := testDex(t)
	ranked := rankMoves(dex, []string{"Surf", "Thunder Wave", "Tackle", "Thunderbolt"}, []string{"Water"})

	names := make([]string, len(ranked))
	for i, m := range ranked {
		names[i] = m.Name
	}
	assert.Equal(t, []string{"Thunderbolt", "Tackle", "Surf", "Thunder Wave"}, names)
	assert.Equal(t, 2.0, ranked[0].Eff)
	assert.Equal(t, 80, ranked[1].Power)
	assert.Equal(t, 0.5, ranked[2].Eff)
}

func TestHPBar(t *testing.T) {
	full := hpBar(100)
	assert.True(t, strings.HasPrefix(full, "[green]"))
	assert.Equal(t, 20, strings.Count(full, "█"))
	assert.Contains(t, full, "100%")

	low := hpBar(3)
	assert.True(t, strings.HasPrefix(low, "[red]"))
	assert.Equal(t, 1, strings.Count(low, "█"))

	empty := hpBar(-5)
	assert.Equal(t, 0, strings.Count(empty, "█"))
	assert.Contains(t, empty, "  0%")

	assert.True(t, strings.HasPrefix(hpBar(40), "[yellow]"))
}

func TestFormatCombatant(t *testing.T) {
	pos := game.Position{Side: game.Side1}
	c := game.Combatant{Name: "Sparky", Species: "Pikachu", Level: 50, HP: 50, MaxHP: 100, Status: "par"}

	out := formatCombatant(pos, c, []string{"Electric"})
	assert.Contains(t, out, "Sparky")
	assert.Contains(t, out, "(p1a) L50")
	assert.Contains(t, out, "Pikachu")
	assert.Contains(t, out, "Electric")
	assert.Contains(t, out, "PAR")
	assert.Contains(t, out, "50%")

	assert.NotContains(t, out, "ability")

	c.Ability = "Static"
	c.Boost("spe", 2)
	c.Boost("atk", -1)
	out = formatCombatant(pos, c, nil)
	assert.Contains(t, out, "ability[-] Static")
	assert.Contains(t, out, "[red]-1 Atk[-] [green]+2 Spe[-]")

	c.Fainted = true
	out = formatCombatant(pos, c, nil)
	assert.Contains(t, out, "fainted")
	assert.NotContains(t, out, "%")
}

func TestFormatMoves(t *testing.T) {
	assert.Contains(t, formatMoves(nil), "no moves known")

	out := formatMoves([]moveOption{
		{Name: "thunderbolt", Type: "Electric", Power: 90, Eff: 2},
		{Name: "Tackle", Power: 80, Eff: 1},
		{Name: "Earthquake", Type: "Ground", Power: 100, Eff: 0},
	})
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "1. Thunderbolt")
	assert.Contains(t, lines[0], "180")
	assert.Contains(t, lines[0], "super effective")
	assert.Contains(t, lines[1], "Tackle [gray]?[-] 80")
	assert.NotContains(t, lines[1], "effective")
	assert.Contains(t, lines[2], "no effect")
}

func TestFormatStatus(t *testing.T) {
	s := formatStatus("battle-gen9ou-1", 3, 90*time.Second, true)
	assert.Contains(t, s, "online")
	assert.Contains(t, s, "battle-gen9ou-1")
	assert.Contains(t, s, "3rd turn")
	assert.Contains(t, s, "30 s")

	s = formatStatus("", 0, 0, false)
	assert.Contains(t, s, "offline")
	assert.NotContains(t, s, "turn")
}

func TestFormatBoosts(t *testing.T) {
	assert.Empty(t, formatBoosts(nil))
	assert.Equal(t, "[green]+1 Eva[-] [green]+6 SpA[-]", formatBoosts(map[string]int{"spa": 6, "evasion": 1}))
}

func TestFormatField(t *testing.T) {
	assert.Empty(t, formatField(game.Field{}))
	assert.Equal(t, "[aqua]RainDance[-] | Trick Room",
		formatField(game.Field{Weather: "RainDance", Effects: []string{"Trick Room"}}))
	assert.Equal(t, "[::b]ash won[::-]", formatField(game.Field{Ended: true, Winner: "ash"}))
	assert.Equal(t, "[::b]tie[::-]", formatField(game.Field{Ended: true}))
}

func TestFormatThreats_CapsTheList(t *testing.T) {
	assert.Empty(t, formatThreats(nil))

	moves := make([]moveOption, 7)
	for i := range moves {
		moves[i] = moveOption{Name: fmt.Sprintf("move %d", i), Power: 50, Eff: 1}
	}
	lines := strings.Split(strings.TrimSpace(formatThreats(moves)), "\n")
	assert.Len(t, lines, 1+maxThreatMoves)
}

func TestApp_ListenerUpdatesPanes(t *testing.T) {
	store := game.NewStore()
	var sent []string
	a := New(Config{
		Room:  "battle-gen9ou-1",
		Store: store,
		Dex:   testDex(t),
		Send:  func(m string) { sent = append(sent, m) },
		Log:   zerolog.Nop(),
	})
	assert.Contains(t, a.mine.GetText(true), "nobody on the field")

	p1a := game.Position{Side: game.Side1}
	p2a := game.Position{Side: game.Side2}
	store.Put(p1a, game.Combatant{Name: "Pikachu", Species: "Pikachu", Level: 50, HP: 100, MaxHP: 100})
	store.Put(p2a, game.Combatant{Name: "Vaporeon", Species: "Vaporeon", Level: 50, HP: 100, MaxHP: 100})

	a.BattleStarted()
	a.Switched(p1a, "Pikachu", 50, 100)
	a.Switched(p2a, "Vaporeon", 50, 100)
	a.Request(`{"active":[{"moves":[{"move":"Surf"},{"move":"Thunderbolt"}]}],"side":{"id":"p1"}}`)
	a.TurnChanged(1)

	assert.Contains(t, a.mine.GetText(true), "Pikachu")
	assert.Contains(t, a.foe.GetText(true), "Vaporeon")
	assert.Contains(t, a.foe.GetText(true), "Water")

	moves := a.moves.GetText(true)
	assert.Less(t, strings.Index(moves, "Thunderbolt"), strings.Index(moves, "Surf"))

	store.Update(p2a, func(c *game.Combatant) { c.HP = 40 })
	a.HPChanged(p2a, 100, 40)
	assert.Contains(t, a.foe.GetText(true), "40%")

	store.Update(p2a, func(c *game.Combatant) { c.Faint() })
	a.Fainted(p2a, "Vaporeon")
	assert.Contains(t, a.foe.GetText(true), "fainted")

	log := a.events.GetText(true)
	assert.Contains(t, log, "battle started")
	assert.Contains(t, log, "turn 1")
	assert.Contains(t, log, "Vaporeon fainted")
	assert.Contains(t, a.status.GetText(true), "1st turn")

	assert.Empty(t, sent)
}

func TestApp_ShowsSilentStateAndResult(t *testing.T) {
	store := game.NewStore()
	a := New(Config{Room: "battle-gen9ou-1", Store: store, Dex: testDex(t), Log: zerolog.Nop()})

	foe := game.Combatant{Name: "Vaporeon", Species: "Vaporeon", Level: 50, HP: 100, MaxHP: 100, Ability: "Water Absorb"}
	foe.Reveal("Thunder Wave")
	foe.Reveal("Surf")
	foe.Boost("def", 1)
	store.Put(game.Position{Side: game.Side1}, game.Combatant{Name: "Pikachu", Species: "Pikachu", Level: 50, HP: 100, MaxHP: 100})
	store.Put(game.Position{Side: game.Side2}, foe)
	store.SetPlayer(game.Side1, "ash")
	store.SetPlayer(game.Side2, "gary")
	store.SetWeather("RainDance")

	a.refresh()

	foeText := a.foe.GetText(true)
	assert.Contains(t, foeText, "Water Absorb")
	assert.Contains(t, foeText, "+1 Def")
	assert.Less(t, strings.Index(foeText, "Surf"), strings.Index(foeText, "Thunder Wave"))
	assert.Contains(t, foeText, "not very effective")
	assert.Equal(t, " You (ash) ", a.mine.GetTitle())
	assert.Equal(t, " Opponent (gary) ", a.foe.GetTitle())
	assert.Contains(t, a.status.GetText(true), "RainDance")

	store.End("gary")
	a.BattleEnded("gary")
	assert.Contains(t, a.events.GetText(true), "gary won the battle")
	assert.Contains(t, a.status.GetText(true), "gary won")
}

func TestApp_NoticesStayOrderedBehindNotifications(t *testing.T) {
	a := New(Config{Store: game.NewStore(), Log: zerolog.Nop()})
	q := notify.NewQueue(a, nil, 0)

	q.TurnChanged(4)
	q.Do(func() { a.Notice("turn: bad value") })
	q.TurnChanged(5)
	q.Close()

	log := a.events.GetText(true)
	i4 := strings.Index(log, "turn 4")
	iNotice := strings.Index(log, "turn: bad value")
	i5 := strings.Index(log, "turn 5")
	require.True(t, i4 >= 0 && iNotice >= 0 && i5 >= 0, log)
	assert.Less(t, i4, iNotice)
	assert.Less(t, iNotice, i5)
}

func TestApp_PostAfterStopIsDropped(t *testing.T) {
	a := New(Config{Store: game.NewStore(), Log: zerolog.Nop()})
	a.markStopped()

	ran := false
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			a.Post(func() { ran = true })
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Post blocked after stop")
	}
	assert.False(t, ran)
}
