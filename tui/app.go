// Package tui is the terminal front end: both active combatants, the ranked
// moves from the last request, an event log and a command line.
package tui

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/rs/zerolog"

	"showdown-mirror/data"
	"showdown-mirror/game"
)

const maxLogLines = 500

type Config struct {
	Room  string
	Store *game.Store
	Dex   *data.Dex
	// Send delivers a raw protocol message. The input line is prefixed with
	// "<room>|" before it gets here.
	Send func(message string)
	Log  zerolog.Logger
}

// App is a notify.Listener. Its listener methods touch widgets directly, so
// they must only run on the tview goroutine; wrap it in a notify.Queue with
// Post as the post function.
type App struct {
	app   *tview.Application
	store *game.Store
	dex   *data.Dex
	send  func(string)
	room  string
	log   zerolog.Logger

	mine   *tview.TextView
	foe    *tview.TextView
	moves  *tview.TextView
	events *tview.TextView
	status *tview.TextView
	input  *tview.InputField

	// UI goroutine only.
	turn      int
	started   time.Time
	connected bool
	lastMoves []string

	mu      sync.Mutex
	stopped bool
}

func New(cfg Config) *App {
	a := &App{
		app:   tview.NewApplication(),
		store: cfg.Store,
		dex:   cfg.Dex,
		send:  cfg.Send,
		room:  cfg.Room,
		log:   cfg.Log.With().Str("component", "tui").Logger(),
	}
	if a.send == nil {
		a.send = func(string) {}
	}
	a.setupUI()
	a.refresh()
	return a
}

func pane(title string) *tview.TextView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(true)
	tv.SetBorder(true).SetTitle(" " + title + " ")
	return tv
}

func (a *App) setupUI() {
	a.mine = pane("You")
	a.foe = pane("Opponent")
	a.moves = pane("Moves")

	a.events = pane("Battle")
	a.events.SetMaxLines(maxLogLines)

	a.status = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft).
		SetWrap(false)

	a.input = tview.NewInputField().
		SetLabel("> ").
		SetFieldBackgroundColor(tcell.ColorDefault)
	a.input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		text := a.input.GetText()
		if text == "" {
			return
		}
		a.input.SetText("")
		a.send(a.room + "|" + text)
		a.log.Debug().Str("room", a.room).Str("text", text).Msg("command sent")
		a.logf("[gray]%s[-]", tview.Escape(text))
	})

	sides := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.mine, 0, 1, false).
		AddItem(a.foe, 0, 1, false).
		AddItem(a.moves, 0, 1, false)

	body := tview.NewFlex().
		AddItem(sides, 0, 1, false).
		AddItem(a.events, 0, 2, false)

	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(body, 0, 1, false).
		AddItem(a.status, 1, 0, false).
		AddItem(a.input, 1, 0, true)

	a.app.SetRoot(root, true).SetFocus(a.input)
}

// Run blocks until the user quits or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				a.Stop()
				return
			case <-ticker.C:
				// Boosts and field changes update the store without a
				// notification, so the panes are redrawn on every tick.
				a.Post(a.refresh)
			}
		}
	}()

	err := a.app.Run()
	a.markStopped()
	return err
}

func (a *App) markStopped() {
	a.mu.Lock()
	a.stopped = true
	a.mu.Unlock()
}

func (a *App) Stop() {
	a.markStopped()
	a.app.Stop()
}

// Post runs fn on the tview goroutine and redraws. Calls after Stop are
// dropped so a draining notify.Queue never waits on a dead event loop.
func (a *App) Post(fn func()) {
	a.mu.Lock()
	stopped := a.stopped
	a.mu.Unlock()
	if stopped {
		return
	}
	a.app.QueueUpdateDraw(fn)
}

// SetConnected may be called from any goroutine.
func (a *App) SetConnected(connected bool) {
	a.Post(func() {
		if a.connected != connected {
			if connected {
				a.logf("[green]connected[-]")
			} else {
				a.logf("[red]disconnected[-]")
			}
		}
		a.connected = connected
		a.refreshStatus()
	})
}

func (a *App) logf(format string, args ...any) {
	fmt.Fprintf(a.events, "[gray]%s[-] %s\n", time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
	a.events.ScrollToEnd()
}

// Notice appends a warning to the event log. UI goroutine only.
func (a *App) Notice(text string) {
	a.logf("[orange]%s[-]", tview.Escape(text))
}

func (a *App) refresh() {
	a.refreshSides()
	a.refreshMoves()
	a.refreshStatus()
}

func (a *App) refreshSides() {
	players := a.store.Field().Players
	slot := a.store.Slot()
	a.mine.SetTitle(paneTitle("You", players[slot]))
	a.foe.SetTitle(paneTitle("Opponent", players[slot.Opponent()]))

	_, mine, hasMine := a.store.Mine()
	a.mine.SetText(a.describe(a.store.Mine()))

	foeText := a.describe(a.store.Opponent())
	if _, foe, ok := a.store.Opponent(); ok && !foe.Fainted {
		var myTypes []string
		if hasMine {
			myTypes = a.dex.Types(mine.Species)
		}
		foeText += formatThreats(rankMoves(a.dex, foe.Moves, myTypes))
	}
	a.foe.SetText(foeText)
}

func (a *App) describe(pos game.Position, c game.Combatant, ok bool) string {
	if !ok {
		return "[gray]nobody on the field[-]"
	}
	return formatCombatant(pos, c, a.dex.Types(c.Species))
}

func (a *App) refreshMoves() {
	var target []string
	if _, foe, ok := a.store.Opponent(); ok {
		target = a.dex.Types(foe.Species)
	}
	a.moves.SetText(formatMoves(rankMoves(a.dex, a.lastMoves, target)))
}

func (a *App) refreshStatus() {
	var elapsed time.Duration
	if !a.started.IsZero() {
		elapsed = time.Since(a.started)
	}
	status := formatStatus(a.room, a.turn, elapsed, a.connected)
	if field := formatField(a.store.Field()); field != "" {
		status += " | " + field
	}
	a.status.SetText(status)
}

func (a *App) SlotAssigned(side game.Side) {
	a.logf("playing as [::b]%s[::-]", side)
	a.refresh()
}

func (a *App) Switched(pos game.Position, name string, level, hpPercent int) {
	a.logf("%s: [::b]%s[::-] L%d came in (%d%%)", pos, tview.Escape(name), level, hpPercent)
	a.refreshSides()
	a.refreshMoves()
}

func (a *App) HPChanged(pos game.Position, prevPercent, newPercent int) {
	color := "green"
	if newPercent < prevPercent {
		color = "red"
	}
	a.logf("%s: [%s]%d%% -> %d%%[-]", pos, color, prevPercent, newPercent)
	a.refreshSides()
}

func (a *App) Fainted(pos game.Position, name string) {
	a.logf("%s: [red]%s fainted[-]", pos, tview.Escape(name))
	a.refreshSides()
	a.refreshMoves()
}

func (a *App) BattleStarted() {
	a.started = time.Now()
	a.turn = 0
	a.lastMoves = nil
	a.logf("[::b]battle started[::-]")
	a.refresh()
}

func (a *App) TurnChanged(turn int) {
	a.turn = turn
	a.logf("[::b]turn %d[::-]", turn)
	a.refreshStatus()
}

func (a *App) Request(payload string) {
	a.lastMoves = requestMoves(payload)
	a.refreshMoves()
}

func (a *App) BattleEnded(winner string) {
	if winner == "" {
		a.logf("[::b]battle ended in a tie[::-]")
	} else {
		a.logf("[::b]%s won the battle[::-]", tview.Escape(winner))
	}
	a.refresh()
}
