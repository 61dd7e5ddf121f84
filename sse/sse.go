// Package sse mirrors battle notifications to browsers as a
// text/event-stream. Every notification becomes one named event whose data
// is a JSON object.
package sse

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"showdown-mirror/game"
)

const (
	defaultPing      = 20 * time.Second
	subscriberBuffer = 64
)

type message struct {
	event string
	data  []byte
}

type combatantJSON struct {
	Pos     string         `json:"pos"`
	Name    string         `json:"name"`
	Species string         `json:"species"`
	Level   int            `json:"level"`
	HP      int            `json:"hp"`
	Fainted bool           `json:"fainted"`
	Status  string         `json:"status,omitempty"`
	Ability string         `json:"ability,omitempty"`
	Boosts  map[string]int `json:"boosts,omitempty"`
	Moves   []string       `json:"moves,omitempty"`
}

type resultJSON struct {
	Winner string `json:"winner"`
}

type stateJSON struct {
	Slot    string            `json:"slot"`
	Players map[string]string `json:"players,omitempty"`
	Weather string            `json:"weather,omitempty"`
	Fields  []string          `json:"fields,omitempty"`
	Result  *resultJSON       `json:"result,omitempty"`
	Active  []combatantJSON   `json:"active"`
}

// Broadcaster is a notify.Listener that fans events out to every connected
// stream. Slow subscribers lose events rather than stall the others.
type Broadcaster struct {
	store *game.Store
	log   zerolog.Logger
	ping  time.Duration

	mu     sync.Mutex
	subs   map[chan message]struct{}
	closed bool
}

func NewBroadcaster(store *game.Store, log zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		store: store,
		log:   log.With().Str("component", "sse").Logger(),
		ping:  defaultPing,
		subs:  make(map[chan message]struct{}),
	}
}

func (b *Broadcaster) subscribe() (chan message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, false
	}
	ch := make(chan message, subscriberBuffer)
	b.subs[ch] = struct{}{}
	return ch, true
}

func (b *Broadcaster) unsubscribe(ch chan message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

// Subscribers reports the number of open streams.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close ends every open stream. Later notifications are dropped.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}

func (b *Broadcaster) publish(event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		b.log.Error().Err(err).Str("event", event).Msg("failed to encode event")
		return
	}
	msg := message{event: event, data: data}

	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- msg:
		default:
			b.log.Warn().Str("event", event).Msg("subscriber too slow, dropping event")
		}
	}
}

func (b *Broadcaster) state() stateJSON {
	snap := b.store.Snapshot()
	field := b.store.Field()
	out := stateJSON{
		Slot:    b.store.Slot().String(),
		Weather: field.Weather,
		Fields:  field.Effects,
		Active:  make([]combatantJSON, 0, len(snap)),
	}
	if len(field.Players) > 0 {
		out.Players = make(map[string]string, len(field.Players))
		for side, name := range field.Players {
			out.Players[side.String()] = name
		}
	}
	if field.Ended {
		out.Result = &resultJSON{Winner: field.Winner}
	}
	for pos, c := range snap {
		out.Active = append(out.Active, combatantJSON{
			Pos:     pos.String(),
			Name:    c.Name,
			Species: c.Species,
			Level:   c.Level,
			HP:      c.HPPercent(),
			Fainted: c.Fainted,
			Status:  c.Status,
			Ability: c.Ability,
			Boosts:  c.Boosts,
			Moves:   c.Moves,
		})
	}
	slices.SortFunc(out.Active, func(x, y combatantJSON) int { return cmp.Compare(x.Pos, y.Pos) })
	return out
}

// Handler serves /events (the stream) and /state (a JSON snapshot).
func (b *Broadcaster) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", b.handleEvents)
	mux.HandleFunc("/state", b.handleState)
	return mux
}

func (b *Broadcaster) handleState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if err := json.NewEncoder(w).Encode(b.state()); err != nil {
		b.log.Debug().Err(err).Msg("failed to write state")
	}
}

func writeEvent(w http.ResponseWriter, event string, data []byte) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

func (b *Broadcaster) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ch, ok := b.subscribe()
	if !ok {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	defer b.unsubscribe(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Cache-Control")

	log := b.log.With().Str("remote", r.RemoteAddr).Logger()
	log.Info().Msg("stream opened")
	defer log.Info().Msg("stream closed")

	state, _ := json.Marshal(b.state())
	if err := writeEvent(w, "state", state); err != nil {
		return
	}
	flusher.Flush()

	ping := time.NewTicker(b.ping)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if err := writeEvent(w, msg.event, msg.data); err != nil {
				log.Debug().Err(err).Msg("write failed")
				return
			}
			flusher.Flush()
		}
	}
}

// Serve runs an HTTP server for h on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, h http.Handler, log zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("sse server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down sse server: %w", err)
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (b *Broadcaster) SlotAssigned(side game.Side) {
	b.publish("slot", struct {
		Side string `json:"side"`
	}{side.String()})
}

func (b *Broadcaster) Switched(pos game.Position, name string, level, hpPercent int) {
	b.publish("switch", struct {
		Pos   string `json:"pos"`
		Name  string `json:"name"`
		Level int    `json:"level"`
		HP    int    `json:"hp"`
	}{pos.String(), name, level, hpPercent})
}

func (b *Broadcaster) HPChanged(pos game.Position, prevPercent, newPercent int) {
	b.publish("hp", struct {
		Pos  string `json:"pos"`
		Prev int    `json:"prev"`
		HP   int    `json:"hp"`
	}{pos.String(), prevPercent, newPercent})
}

func (b *Broadcaster) Fainted(pos game.Position, name string) {
	b.publish("faint", struct {
		Pos  string `json:"pos"`
		Name string `json:"name"`
	}{pos.String(), name})
}

func (b *Broadcaster) BattleStarted() {
	b.publish("start", struct{}{})
}

func (b *Broadcaster) TurnChanged(turn int) {
	b.publish("turn", struct {
		Turn int `json:"turn"`
	}{turn})
}

// Request forwards the raw request object; anything that is not valid JSON
// is dropped.
func (b *Broadcaster) Request(payload string) {
	if !json.Valid([]byte(payload)) {
		b.log.Warn().Int("bytes", len(payload)).Msg("dropping invalid request payload")
		return
	}
	b.publish("request", json.RawMessage(payload))
}

// BattleEnded publishes "end"; winner is empty on a tie.
func (b *Broadcaster) BattleEnded(winner string) {
	b.publish("end", resultJSON{Winner: winner})
}
