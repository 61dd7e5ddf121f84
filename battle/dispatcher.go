package battle

import (
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"showdown-mirror/game"
	"showdown-mirror/notify"
	"showdown-mirror/parser"
)

// Diagnostic reports a line that was understood but could not be applied.
type Diagnostic struct {
	Keyword string
	Room    string
	Line    string
	Err     error
}

// Reason extracts the parse failure tag, if the error carries one.
func (d Diagnostic) Reason() parser.Reason {
	return reasonOf(d.Err)
}

func reasonOf(err error) parser.Reason {
	var fe *parser.FieldError
	if errors.As(err, &fe) {
		return fe.Reason
	}
	return ""
}

type handlerFunc func(d *Dispatcher, line parser.Line)

// handlers is the fixed keyword table. Keywords not listed are ignored: the
// protocol carries far more than the client mirrors. Only the first group
// notifies directly; the rest update the store silently and are picked up
// by readers on their next refresh.
var handlers = map[string]handlerFunc{
	"switch":  (*Dispatcher).handleSwitch,
	"drag":    (*Dispatcher).handleSwitch,
	"replace": (*Dispatcher).handleSwitch,
	"-damage": (*Dispatcher).handleHP,
	"-heal":   (*Dispatcher).handleHP,
	"-sethp":  (*Dispatcher).handleHP,
	"damage":  (*Dispatcher).handleHP,
	"heal":    (*Dispatcher).handleHP,
	"faint":   (*Dispatcher).handleFaint,
	"turn":    (*Dispatcher).handleTurn,
	"request": (*Dispatcher).handleRequest,
	"start":   (*Dispatcher).handleStart,
	"win":     (*Dispatcher).handleWin,
	"tie":     (*Dispatcher).handleTie,

	"-status":     (*Dispatcher).handleStatus,
	"-curestatus": (*Dispatcher).handleCureStatus,
	"-boost":      (*Dispatcher).handleBoost,
	"-unboost":    (*Dispatcher).handleUnboost,
	"-setboost":   (*Dispatcher).handleSetBoost,
	"-ability":    (*Dispatcher).handleAbility,
	"move":        (*Dispatcher).handleMove,
	"-weather":    (*Dispatcher).handleWeather,
	"-fieldstart": (*Dispatcher).handleFieldStart,
	"-fieldend":   (*Dispatcher).handleFieldEnd,
	"player":      (*Dispatcher).handlePlayer,
}

// Dispatcher applies tokenized lines to a Store and tells a Listener what
// changed. It is not safe for concurrent use; Session serializes calls.
type Dispatcher struct {
	store    *game.Store
	listener notify.Listener
	log      zerolog.Logger
	onDiag   func(Diagnostic)
	metrics  *metrics
}

type Option func(*Dispatcher)

func WithLogger(log zerolog.Logger) Option {
	return func(d *Dispatcher) {
		d.log = log
	}
}

// WithDiagnostics receives every recoverable decode failure.
func WithDiagnostics(fn func(Diagnostic)) Option {
	return func(d *Dispatcher) {
		d.onDiag = fn
	}
}

func NewDispatcher(store *game.Store, listener notify.Listener, opts ...Option) (*Dispatcher, error) {
	m, err := newMetrics()
	if err != nil {
		return nil, err
	}
	if listener == nil {
		listener = notify.Funcs{}
	}
	d := &Dispatcher{
		store:    store,
		listener: listener,
		log:      zerolog.Nop(),
		metrics:  m,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// HasHandler reports whether keyword is decoded.
func HasHandler(keyword string) bool {
	_, ok := handlers[keyword]
	return ok
}

// Dispatch applies one line and reports whether its keyword was handled.
func (d *Dispatcher) Dispatch(line parser.Line) bool {
	h, ok := handlers[line.Keyword]
	if !ok {
		d.metrics.ignored()
		return false
	}
	d.log.Debug().Str("keyword", line.Keyword).Strs("args", line.Args).Msg("dispatch")
	h(d, line)
	d.metrics.dispatched(line.Keyword)
	return true
}

// DispatchFrame applies every line of a raw frame in order.
func (d *Dispatcher) DispatchFrame(frame string) int {
	n := 0
	for line := range parser.Lines(frame) {
		if d.Dispatch(line) {
			n++
		}
	}
	return n
}

func (d *Dispatcher) diagnose(line parser.Line, err error) {
	diag := Diagnostic{Keyword: line.Keyword, Room: line.Room, Line: line.Raw, Err: err}
	d.metrics.diagnosed(line.Keyword, diag.Reason())

	ev := d.log.Warn().Str("keyword", line.Keyword).Err(err)
	var fe *parser.FieldError
	if errors.As(err, &fe) {
		ev = ev.Str("field", fe.Field).Str("value", fe.Value).Str("reason", string(fe.Reason))
	}
	ev.Msg("dropped protocol field")

	if d.onDiag != nil {
		d.onDiag(diag)
	}
}

func (d *Dispatcher) missing(line parser.Line, field string) {
	d.diagnose(line, &parser.FieldError{Field: field, Reason: parser.ReasonMissingField})
}

// resolve finds the existing combatant an HP or faint line addresses.
func (d *Dispatcher) resolve(line parser.Line) (game.Position, bool) {
	ident := line.Arg(0)
	if ident == "" {
		d.missing(line, "position")
		return game.Position{}, false
	}
	pos, ok := d.store.Resolve(ident)
	if !ok {
		d.diagnose(line, &parser.FieldError{Field: "position", Value: ident, Reason: parser.ReasonUnresolved})
	}
	return pos, ok
}

// |switch|POKEMON|DETAILS|HP STATUS
func (d *Dispatcher) handleSwitch(line parser.Line) {
	ident := line.Arg(0)
	pos, err := game.ParsePosition(ident)
	if err != nil {
		d.diagnose(line, err)
		return
	}
	details, err := parser.ParseDetails(line.Arg(1))
	if err != nil {
		d.diagnose(line, err)
	}
	_, nickname := parser.SplitIdent(ident)
	c := game.NewCombatant(nickname, details)

	if len(line.Args) > 2 {
		hp, err := parser.ParseHPStatus(line.Arg(2))
		if err != nil {
			d.diagnose(line, err)
		} else {
			c.ApplyHP(hp)
		}
	}

	d.store.Put(pos, c)
	d.listener.Switched(pos, c.Name, c.Level, c.HPPercent())
}

// |-damage|POKEMON|HP STATUS
func (d *Dispatcher) handleHP(line parser.Line) {
	pos, ok := d.resolve(line)
	if !ok {
		return
	}
	hp, err := parser.ParseHPStatus(line.Arg(1))
	if err != nil {
		d.diagnose(line, err)
		return
	}
	before, after, ok := d.store.Update(pos, func(c *game.Combatant) {
		c.ApplyHP(hp)
	})
	if !ok {
		return
	}
	d.listener.HPChanged(pos, before.HPPercent(), after.HPPercent())
}

// |faint|POKEMON
func (d *Dispatcher) handleFaint(line parser.Line) {
	pos, ok := d.resolve(line)
	if !ok {
		return
	}
	_, after, ok := d.store.Update(pos, func(c *game.Combatant) {
		c.Faint()
	})
	if !ok {
		return
	}
	d.listener.Fainted(pos, after.Name)
}

// |turn|NUMBER
func (d *Dispatcher) handleTurn(line parser.Line) {
	n, err := parser.ParseTurn(line.Arg(0))
	if err != nil {
		d.diagnose(line, err)
		return
	}
	d.listener.TurnChanged(n)
}

// |request|JSON
func (d *Dispatcher) handleRequest(line parser.Line) {
	payload := strings.Join(line.Args, "|")
	if strings.TrimSpace(payload) == "" {
		return
	}
	id, err := parser.ParseRequestSide(payload)
	if reasonOf(err) == parser.ReasonBadJSON {
		d.diagnose(line, err)
		return
	}
	// A well-formed payload always reaches the listener; only the slot
	// depends on side.id.
	if err == nil {
		var side game.Side
		if side, err = game.SideFromID(id); err == nil {
			d.store.SetSlot(side)
			d.listener.SlotAssigned(side)
		}
	}
	if err != nil {
		d.diagnose(line, err)
	}
	d.listener.Request(payload)
}

// |start|
func (d *Dispatcher) handleStart(parser.Line) {
	d.store.Clear()
	d.listener.BattleStarted()
}

// |-status|POKEMON|STATUS
func (d *Dispatcher) handleStatus(line parser.Line) {
	pos, ok := d.resolve(line)
	if !ok {
		return
	}
	status := strings.TrimSpace(line.Arg(1))
	d.store.Update(pos, func(c *game.Combatant) {
		c.Status = status
	})
}

// |-curestatus|POKEMON|STATUS
func (d *Dispatcher) handleCureStatus(line parser.Line) {
	pos, ok := d.resolve(line)
	if !ok {
		return
	}
	d.store.Update(pos, func(c *game.Combatant) {
		c.Status = ""
	})
}

// |-boost|POKEMON|STAT|AMOUNT
func (d *Dispatcher) handleBoost(line parser.Line) {
	d.applyBoost(line, (*game.Combatant).Boost, 1)
}

// |-unboost|POKEMON|STAT|AMOUNT
func (d *Dispatcher) handleUnboost(line parser.Line) {
	d.applyBoost(line, (*game.Combatant).Boost, -1)
}

// |-setboost|POKEMON|STAT|AMOUNT
func (d *Dispatcher) handleSetBoost(line parser.Line) {
	d.applyBoost(line, (*game.Combatant).SetBoost, 1)
}

func (d *Dispatcher) applyBoost(line parser.Line, apply func(*game.Combatant, string, int), sign int) {
	pos, ok := d.resolve(line)
	if !ok {
		return
	}
	stat := strings.TrimSpace(line.Arg(1))
	if stat == "" {
		d.missing(line, "stat")
		return
	}
	n, err := parser.ParseBoost(line.Arg(2))
	if err != nil {
		d.diagnose(line, err)
		return
	}
	d.store.Update(pos, func(c *game.Combatant) {
		apply(c, stat, sign*n)
	})
}

// |-ability|POKEMON|ABILITY
func (d *Dispatcher) handleAbility(line parser.Line) {
	pos, ok := d.resolve(line)
	if !ok {
		return
	}
	ability := strings.TrimSpace(line.Arg(1))
	if ability == "" {
		d.missing(line, "ability")
		return
	}
	d.store.Update(pos, func(c *game.Combatant) {
		c.Ability = ability
	})
}

// |move|POKEMON|MOVE|TARGET
func (d *Dispatcher) handleMove(line parser.Line) {
	pos, ok := d.resolve(line)
	if !ok {
		return
	}
	move := strings.TrimSpace(line.Arg(1))
	if move == "" {
		d.missing(line, "move")
		return
	}
	d.store.Update(pos, func(c *game.Combatant) {
		c.Reveal(move)
	})
}

// |-weather|WEATHER
func (d *Dispatcher) handleWeather(line parser.Line) {
	weather := strings.TrimSpace(line.Arg(0))
	switch weather {
	case "":
		d.missing(line, "weather")
		return
	case "none":
		weather = ""
	}
	d.store.SetWeather(weather)
}

// |-fieldstart|CONDITION
func (d *Dispatcher) handleFieldStart(line parser.Line) {
	if effect := parser.EffectName(line.Arg(0)); effect != "" {
		d.store.StartEffect(effect)
		return
	}
	d.missing(line, "condition")
}

// |-fieldend|CONDITION
func (d *Dispatcher) handleFieldEnd(line parser.Line) {
	if effect := parser.EffectName(line.Arg(0)); effect != "" {
		d.store.EndEffect(effect)
		return
	}
	d.missing(line, "condition")
}

// |player|PLAYER|USERNAME|AVATAR|RATING
func (d *Dispatcher) handlePlayer(line parser.Line) {
	side, err := game.SideFromID(line.Arg(0))
	if err != nil {
		d.diagnose(line, err)
		return
	}
	// A bare |player|p1| line carries no name and is not a rename.
	if name := strings.TrimSpace(line.Arg(1)); name != "" {
		d.store.SetPlayer(side, name)
	}
}

// |win|USER
func (d *Dispatcher) handleWin(line parser.Line) {
	winner := strings.TrimSpace(line.Arg(0))
	d.store.End(winner)
	notify.NotifyEnded(d.listener, winner)
}

// |tie|
func (d *Dispatcher) handleTie(parser.Line) {
	d.store.End("")
	notify.NotifyEnded(d.listener, "")
}
