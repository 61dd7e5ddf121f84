package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	DefaultServerURL = "wss://sim.psim.us/showdown/websocket"

	defaultEventBuffer  = 64
	defaultSendBuffer   = 32
	defaultSendRate     = 5
	defaultSendBurst    = 3
	defaultWriteTimeout = 10 * time.Second
)

// EventKind distinguishes data frames from connection lifecycle changes.
type EventKind int

const (
	Frame EventKind = iota
	Opened
	Closing
	Failed
)

func (k EventKind) String() string {
	switch k {
	case Frame:
		return "frame"
	case Opened:
		return "opened"
	case Closing:
		return "closing"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is everything the client reports: raw text frames and lifecycle
// changes. Lifecycle events carry a human-readable Reason.
type Event struct {
	Kind   EventKind
	Data   string
	Reason string
	Err    error
}

type Config struct {
	URL          string
	EventBuffer  int
	SendRate     float64
	SendBurst    int
	WriteTimeout time.Duration
	Dialer       *websocket.Dialer
}

func (c Config) withDefaults() Config {
	if c.URL == "" {
		c.URL = DefaultServerURL
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = defaultEventBuffer
	}
	if c.SendRate <= 0 {
		c.SendRate = defaultSendRate
	}
	if c.SendBurst <= 0 {
		c.SendBurst = defaultSendBurst
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}
	return c
}

type state int

const (
	stateIdle state = iota
	stateConnecting
	stateOpen
	stateClosed
)

// link is one live websocket and the goroutines serving it.
type link struct {
	conn   *websocket.Conn
	out    chan string
	ctx    context.Context
	cancel context.CancelFunc
}

// ShowdownClient owns the websocket to the battle server. All output goes to
// a single channel returned by Events; failures are reported there, never
// returned to the caller.
type ShowdownClient struct {
	cfg     Config
	log     zerolog.Logger
	limiter *rate.Limiter
	events  chan Event
	done    chan struct{}
	wg      sync.WaitGroup

	mu         sync.Mutex
	state      state
	link       *link
	dialCancel context.CancelFunc
}

func NewShowdownClient(cfg Config, log zerolog.Logger) *ShowdownClient {
	cfg = cfg.withDefaults()
	return &ShowdownClient{
		cfg:     cfg,
		log:     log.With().Str("component", "client").Logger(),
		limiter: rate.NewLimiter(rate.Limit(cfg.SendRate), cfg.SendBurst),
		events:  make(chan Event, cfg.EventBuffer),
		done:    make(chan struct{}),
	}
}

// Events is closed once Close has returned.
func (sc *ShowdownClient) Events() <-chan Event {
	return sc.events
}

// Connected reports whether the websocket is open.
func (sc *ShowdownClient) Connected() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.state == stateOpen
}

// Connect dials in the background. It does nothing while a dial is in
// progress, while connected, or after Close.
func (sc *ShowdownClient) Connect(ctx context.Context) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.state != stateIdle {
		return
	}
	sc.state = stateConnecting
	dctx, cancel := context.WithCancel(ctx)
	sc.dialCancel = cancel
	sc.wg.Add(1)
	go sc.dial(dctx, cancel)
}

func (sc *ShowdownClient) dial(ctx context.Context, cancel context.CancelFunc) {
	defer sc.wg.Done()
	defer cancel()

	sc.log.Info().Str("url", sc.cfg.URL).Msg("connecting")
	conn, _, err := sc.cfg.Dialer.DialContext(ctx, sc.cfg.URL, nil)

	sc.mu.Lock()
	sc.dialCancel = nil
	if sc.state == stateClosed {
		sc.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		sc.state = stateIdle
		sc.mu.Unlock()
		sc.log.Warn().Err(err).Msg("connect failed")
		sc.emit(Event{Kind: Failed, Reason: fmt.Sprintf("connect to %s: %v", sc.cfg.URL, err), Err: err})
		return
	}

	lctx, lcancel := context.WithCancel(context.Background())
	l := &link{conn: conn, out: make(chan string, defaultSendBuffer), ctx: lctx, cancel: lcancel}
	sc.link = l
	sc.state = stateOpen
	sc.wg.Add(2)
	sc.mu.Unlock()

	sc.log.Info().Msg("connected")
	sc.emit(Event{Kind: Opened, Reason: "connected to " + sc.cfg.URL})
	go sc.readLoop(l)
	go sc.writeLoop(l)
}

func (sc *ShowdownClient) readLoop(l *link) {
	defer sc.wg.Done()
	for {
		_, message, err := l.conn.ReadMessage()
		if err != nil {
			sc.fail(l, "read", err)
			return
		}
		sc.log.Debug().Int("bytes", len(message)).Msg("received")
		if !sc.emit(Event{Kind: Frame, Data: string(message)}) {
			return
		}
	}
}

// writeLoop is the only writer of data frames on l.
func (sc *ShowdownClient) writeLoop(l *link) {
	defer sc.wg.Done()
	for {
		select {
		case <-l.ctx.Done():
			return
		case msg := <-l.out:
			if err := sc.limiter.Wait(l.ctx); err != nil {
				return
			}
			sc.log.Debug().Str("message", msg).Msg("sending")
			if err := l.conn.SetWriteDeadline(time.Now().Add(sc.cfg.WriteTimeout)); err != nil {
				sc.fail(l, "write", err)
				return
			}
			if err := l.conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				sc.fail(l, "write", err)
				return
			}
		}
	}
}

// fail tears down l and reports it once; later calls for the same link, or
// calls made after Close, are ignored.
func (sc *ShowdownClient) fail(l *link, op string, err error) {
	sc.mu.Lock()
	if sc.link != l {
		sc.mu.Unlock()
		return
	}
	sc.link = nil
	sc.state = stateIdle
	sc.mu.Unlock()

	l.cancel()
	l.conn.Close()

	reason := fmt.Sprintf("%s: %v", op, err)
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		reason = fmt.Sprintf("server closed connection (%d %s)", ce.Code, ce.Text)
	}
	sc.log.Warn().Err(err).Str("op", op).Msg("connection lost")
	sc.emit(Event{Kind: Failed, Reason: reason, Err: err})
}

// emit blocks until the consumer takes ev or the client is closed.
func (sc *ShowdownClient) emit(ev Event) bool {
	select {
	case sc.events <- ev:
		return true
	case <-sc.done:
		return false
	}
}

// Send queues a command for the write loop. Before the connection is open it
// is a no-op.
func (sc *ShowdownClient) Send(message string) {
	sc.mu.Lock()
	l := sc.link
	sc.mu.Unlock()
	if l == nil {
		sc.log.Debug().Str("message", message).Msg("not connected, dropping")
		return
	}
	select {
	case l.out <- message:
	case <-l.ctx.Done():
	default:
		sc.log.Warn().Str("message", message).Msg("send queue full, dropping")
	}
}

// JoinRoom asks the server to subscribe us to a battle room.
func (sc *ShowdownClient) JoinRoom(roomID string) {
	sc.Send(fmt.Sprintf("|/join %s", RoomID(roomID)))
}

// RoomID normalizes a battle room id to carry the "battle-" prefix.
func RoomID(room string) string {
	room = strings.TrimSpace(room)
	if room == "" || strings.HasPrefix(room, "battle-") {
		return room
	}
	return "battle-" + room
}

// Close terminates the connection and releases every goroutine. The Events
// channel is closed before Close returns. Safe to call more than once.
func (sc *ShowdownClient) Close() error {
	sc.mu.Lock()
	if sc.state == stateClosed {
		sc.mu.Unlock()
		return nil
	}
	sc.state = stateClosed
	l := sc.link
	sc.link = nil
	if sc.dialCancel != nil {
		sc.dialCancel()
	}
	sc.mu.Unlock()

	select {
	case sc.events <- Event{Kind: Closing, Reason: "client closed"}:
	default:
	}
	close(sc.done)

	var err error
	if l != nil {
		l.cancel()
		_ = l.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = l.conn.Close()
	}
	sc.wg.Wait()
	close(sc.events)
	sc.log.Info().Msg("closed")
	return err
}
