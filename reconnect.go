package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"showdown-mirror/client"
)

const maxReconnectBackoff = 30 * time.Second

type connector interface {
	Connect(ctx context.Context)
	Send(message string)
	JoinRoom(roomID string)
}

// supervisor reacts to transport lifecycle events: it replays the startup
// commands and the room join on every open, and redials with exponential
// backoff after a failure.
type supervisor struct {
	conn     connector
	room     string
	commands []string
	attempts int
	backoff  time.Duration
	log      zerolog.Logger
	onState  func(connected bool)

	events   chan client.Event
	failures int
}

func newSupervisor(conn connector, room string, commands []string, attempts int, backoff time.Duration, log zerolog.Logger) *supervisor {
	return &supervisor{
		conn:     conn,
		room:     room,
		commands: commands,
		attempts: attempts,
		backoff:  backoff,
		log:      log.With().Str("component", "supervisor").Logger(),
		onState:  func(bool) {},
		events:   make(chan client.Event, 16),
	}
}

// Lifecycle is handed to the battle session; it never blocks the session.
func (s *supervisor) Lifecycle(ev client.Event) {
	select {
	case s.events <- ev:
	default:
		s.log.Warn().Stringer("event", ev.Kind).Msg("lifecycle queue full, dropping")
	}
}

func (s *supervisor) delay() time.Duration {
	d := s.backoff
	for i := 1; i < s.failures && d > 0 && d < maxReconnectBackoff; i++ {
		d *= 2
	}
	if d <= 0 || d > maxReconnectBackoff {
		d = maxReconnectBackoff
	}
	return d
}

// run returns nil when ctx is done and an error once the retry budget is
// spent.
func (s *supervisor) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-s.events:
			switch ev.Kind {
			case client.Opened:
				s.failures = 0
				s.onState(true)
				for _, cmd := range s.commands {
					s.conn.Send(cmd)
				}
				if s.room != "" {
					s.conn.JoinRoom(s.room)
				}
			case client.Closing:
				s.onState(false)
			case client.Failed:
				s.onState(false)
				s.failures++
				if s.failures > s.attempts {
					return fmt.Errorf("giving up after %d reconnect attempts: %s", s.attempts, ev.Reason)
				}
				d := s.delay()
				s.log.Warn().
					Str("reason", ev.Reason).
					Int("attempt", s.failures).
					Int("of", s.attempts).
					Dur("backoff", d).
					Msg("reconnecting")
				timer := time.NewTimer(d)
				select {
				case <-ctx.Done():
					timer.Stop()
					return nil
				case <-timer.C:
				}
				s.conn.Connect(ctx)
			}
		}
	}
}
