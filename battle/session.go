package battle

import (
	"context"

	"github.com/rs/zerolog"

	"showdown-mirror/client"
	"showdown-mirror/game"
	"showdown-mirror/notify"
	"showdown-mirror/parser"
)

// Session is the single writer of one battle's state. It owns the Store
// and drains transport events one frame at a time, so every line of a frame
// is applied before the next frame is read.
type Session struct {
	store       *game.Store
	dispatcher  *Dispatcher
	room        string
	log         zerolog.Logger
	onLifecycle func(client.Event)
}

type SessionConfig struct {
	// Room, when set, restricts the session to lines from that battle room.
	Room string
	// Store is shared with presentation code; nil makes a fresh one.
	Store *game.Store
	// OnLifecycle receives transport Opened, Closing and Failed events.
	OnLifecycle func(client.Event)
	Log         zerolog.Logger
	// OnDiagnostic receives recoverable decode failures.
	OnDiagnostic func(Diagnostic)
}

func NewSession(cfg SessionConfig, listener notify.Listener) (*Session, error) {
	store := cfg.Store
	if store == nil {
		store = game.NewStore()
	}
	log := cfg.Log.With().Str("component", "battle").Logger()
	opts := []Option{WithLogger(log)}
	if cfg.OnDiagnostic != nil {
		opts = append(opts, WithDiagnostics(cfg.OnDiagnostic))
	}
	d, err := NewDispatcher(store, listener, opts...)
	if err != nil {
		return nil, err
	}
	return &Session{
		store:       store,
		dispatcher:  d,
		room:        client.RoomID(cfg.Room),
		log:         log,
		onLifecycle: cfg.OnLifecycle,
	}, nil
}

// Store is safe to read from any goroutine.
func (s *Session) Store() *game.Store {
	return s.store
}

// Room is the battle room the session follows, if any.
func (s *Session) Room() string {
	return s.room
}

// Run drains events until the channel is closed or ctx is done.
func (s *Session) Run(ctx context.Context, events <-chan client.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			s.handle(ev)
		}
	}
}

func (s *Session) handle(ev client.Event) {
	if ev.Kind != client.Frame {
		s.log.Info().Stringer("event", ev.Kind).Str("reason", ev.Reason).Msg("transport")
		if s.onLifecycle != nil {
			s.onLifecycle(ev)
		}
		return
	}
	s.HandleFrame(ev.Data)
}

// HandleFrame applies one raw frame. Only Run's goroutine may call it while
// Run is active.
func (s *Session) HandleFrame(frame string) {
	s.dispatcher.metrics.frame()
	for line := range parser.Lines(frame) {
		if s.room != "" && line.Room != "" && line.Room != s.room {
			continue
		}
		s.dispatcher.Dispatch(line)
	}
}
