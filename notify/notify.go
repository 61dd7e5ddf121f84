// Package notify carries battle state changes from the dispatcher to the
// presentation collaborators (UI, SSE bridge, history, logs).
package notify

import (
	"github.com/rs/zerolog"

	"showdown-mirror/game"
)

// Listener is the whole notification surface the presentation layer sees.
type Listener interface {
	SlotAssigned(side game.Side)
	Switched(pos game.Position, name string, level, hpPercent int)
	HPChanged(pos game.Position, prevPercent, newPercent int)
	Fainted(pos game.Position, name string)
	BattleStarted()
	TurnChanged(turn int)
	Request(payload string)
}

// EndListener is implemented by listeners that want to know when a battle
// is decided. winner is empty on a tie. Callers check for it with a type
// assertion.
type EndListener interface {
	BattleEnded(winner string)
}

// NotifyEnded calls BattleEnded on l if it implements EndListener.
func NotifyEnded(l Listener, winner string) {
	if e, ok := l.(EndListener); ok {
		e.BattleEnded(winner)
	}
}

// Funcs adapts optional callbacks to a Listener. Nil fields are skipped.
type Funcs struct {
	OnSlotAssigned  func(side game.Side)
	OnSwitched      func(pos game.Position, name string, level, hpPercent int)
	OnHPChanged     func(pos game.Position, prevPercent, newPercent int)
	OnFainted       func(pos game.Position, name string)
	OnBattleStarted func()
	OnTurnChanged   func(turn int)
	OnRequest       func(payload string)
	OnBattleEnded   func(winner string)
}

func (f Funcs) SlotAssigned(side game.Side) {
	if f.OnSlotAssigned != nil {
		f.OnSlotAssigned(side)
	}
}

func (f Funcs) Switched(pos game.Position, name string, level, hpPercent int) {
	if f.OnSwitched != nil {
		f.OnSwitched(pos, name, level, hpPercent)
	}
}

func (f Funcs) HPChanged(pos game.Position, prevPercent, newPercent int) {
	if f.OnHPChanged != nil {
		f.OnHPChanged(pos, prevPercent, newPercent)
	}
}

func (f Funcs) Fainted(pos game.Position, name string) {
	if f.OnFainted != nil {
		f.OnFainted(pos, name)
	}
}

func (f Funcs) BattleStarted() {
	if f.OnBattleStarted != nil {
		f.OnBattleStarted()
	}
}

func (f Funcs) TurnChanged(turn int) {
	if f.OnTurnChanged != nil {
		f.OnTurnChanged(turn)
	}
}

func (f Funcs) Request(payload string) {
	if f.OnRequest != nil {
		f.OnRequest(payload)
	}
}

func (f Funcs) BattleEnded(winner string) {
	if f.OnBattleEnded != nil {
		f.OnBattleEnded(winner)
	}
}

// Multi fans every notification out to each listener in order.
type Multi []Listener

func (m Multi) SlotAssigned(side game.Side) {
	for _, l := range m {
		l.SlotAssigned(side)
	}
}

func (m Multi) Switched(pos game.Position, name string, level, hpPercent int) {
	for _, l := range m {
		l.Switched(pos, name, level, hpPercent)
	}
}

func (m Multi) HPChanged(pos game.Position, prevPercent, newPercent int) {
	for _, l := range m {
		l.HPChanged(pos, prevPercent, newPercent)
	}
}

func (m Multi) Fainted(pos game.Position, name string) {
	for _, l := range m {
		l.Fainted(pos, name)
	}
}

func (m Multi) BattleStarted() {
	for _, l := range m {
		l.BattleStarted()
	}
}

func (m Multi) TurnChanged(turn int) {
	for _, l := range m {
		l.TurnChanged(turn)
	}
}

func (m Multi) Request(payload string) {
	for _, l := range m {
		l.Request(payload)
	}
}

// BattleEnded forwards to the members that implement EndListener.
func (m Multi) BattleEnded(winner string) {
	for _, l := range m {
		NotifyEnded(l, winner)
	}
}

// LogListener writes every notification to a zerolog logger.
type LogListener struct {
	Log zerolog.Logger
}

func (l LogListener) SlotAssigned(side game.Side) {
	l.Log.Info().Stringer("side", side).Msg("slot assigned")
}

func (l LogListener) Switched(pos game.Position, name string, level, hpPercent int) {
	l.Log.Info().Stringer("pos", pos).Str("name", name).Int("level", level).Int("hp", hpPercent).Msg("switched in")
}

func (l LogListener) HPChanged(pos game.Position, prevPercent, newPercent int) {
	l.Log.Info().Stringer("pos", pos).Int("from", prevPercent).Int("to", newPercent).Msg("hp changed")
}

func (l LogListener) Fainted(pos game.Position, name string) {
	l.Log.Info().Stringer("pos", pos).Str("name", name).Msg("fainted")
}

func (l LogListener) BattleStarted() {
	l.Log.Info().Msg("battle started")
}

func (l LogListener) TurnChanged(turn int) {
	l.Log.Info().Int("turn", turn).Msg("turn")
}

func (l LogListener) Request(payload string) {
	l.Log.Debug().Int("bytes", len(payload)).Msg("request")
}

func (l LogListener) BattleEnded(winner string) {
	if winner == "" {
		l.Log.Info().Msg("battle ended in a tie")
		return
	}
	l.Log.Info().Str("winner", winner).Msg("battle ended")
}
