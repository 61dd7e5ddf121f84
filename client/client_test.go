package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testServer upgrades to a websocket, sends greeting as the first frame and
// records every message it receives.
func testServer(t *testing.T, greeting string) (*httptest.Server, *messageLog) {
	t.Helper()
	ml := &messageLog{}

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer c.Close()

		if greeting != "" {
			if err := c.WriteMessage(websocket.TextMessage, []byte(greeting)); err != nil {
				return
			}
		}
		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}
			ml.add(string(msg))
			if string(msg) == "hangup" {
				return
			}
		}
	}))
	return srv, ml
}

type messageLog struct {
	mu       sync.Mutex
	messages []string
}

func (m *messageLog) add(s string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, s)
}

func (m *messageLog) all() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.messages...)
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func next(t *testing.T, sc *ShowdownClient) Event {
	t.Helper()
	select {
	case ev, ok := <-sc.Events():
		require.True(t, ok, "events channel closed")
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestClient_ConnectReceivesOpenedThenFrames(t *testing.T) {
	srv, _ := testServer(t, "|challstr|4|abc")
	defer srv.Close()

	sc := NewShowdownClient(Config{URL: wsURL(srv)}, zerolog.Nop())
	defer sc.Close()

	sc.Connect(context.Background())
	sc.Connect(context.Background())

	ev := next(t, sc)
	assert.Equal(t, Opened, ev.Kind)
	assert.NotEmpty(t, ev.Reason)
	assert.True(t, sc.Connected())

	ev = next(t, sc)
	assert.Equal(t, Frame, ev.Kind)
	assert.Equal(t, "|challstr|4|abc", ev.Data)
}

func TestClient_SendWritesVerbatim(t *testing.T) {
	srv, ml := testServer(t, "")
	defer srv.Close()

	sc := NewShowdownClient(Config{URL: wsURL(srv), SendRate: 100, SendBurst: 10}, zerolog.Nop())
	defer sc.Close()

	sc.Connect(context.Background())
	require.Equal(t, Opened, next(t, sc).Kind)

	sc.JoinRoom("gen9ou-123")
	sc.Send("battle-gen9ou-123|/choose move 1")

	assert.Eventually(t, func() bool { return len(ml.all()) == 2 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"|/join battle-gen9ou-123", "battle-gen9ou-123|/choose move 1"}, ml.all())
}

func TestClient_SendBeforeConnectIsNoop(t *testing.T) {
	sc := NewShowdownClient(Config{URL: "ws://127.0.0.1:1"}, zerolog.Nop())
	assert.NotPanics(t, func() { sc.Send("|/join lobby") })
	assert.False(t, sc.Connected())
	require.NoError(t, sc.Close())
}

func TestClient_DialFailureIsAnEvent(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(srv)
	srv.Close()

	sc := NewShowdownClient(Config{URL: url}, zerolog.Nop())
	defer sc.Close()

	sc.Connect(context.Background())
	ev := next(t, sc)
	assert.Equal(t, Failed, ev.Kind)
	assert.Contains(t, ev.Reason, "connect to")
	assert.Error(t, ev.Err)
	assert.False(t, sc.Connected())
}

func TestClient_ServerHangupIsAnEventAndAllowsReconnect(t *testing.T) {
	srv, _ := testServer(t, "")
	defer srv.Close()

	sc := NewShowdownClient(Config{URL: wsURL(srv)}, zerolog.Nop())
	defer sc.Close()

	sc.Connect(context.Background())
	require.Equal(t, Opened, next(t, sc).Kind)

	sc.Send("hangup")
	ev := next(t, sc)
	assert.Equal(t, Failed, ev.Kind)
	assert.NotEmpty(t, ev.Reason)

	sc.Connect(context.Background())
	assert.Equal(t, Opened, next(t, sc).Kind)
}

func TestClient_CloseIsIdempotentAndClosesEvents(t *testing.T) {
	srv, _ := testServer(t, "")
	defer srv.Close()

	sc := NewShowdownClient(Config{URL: wsURL(srv)}, zerolog.Nop())
	sc.Connect(context.Background())
	require.Equal(t, Opened, next(t, sc).Kind)

	require.NoError(t, sc.Close())
	require.NoError(t, sc.Close())

	var kinds []EventKind
	for ev := range sc.Events() {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []EventKind{Closing}, kinds)

	sc.Connect(context.Background())
	assert.False(t, sc.Connected())
}

func TestRoomID(t *testing.T) {
	assert.Equal(t, "battle-gen9ou-1", RoomID("gen9ou-1"))
	assert.Equal(t, "battle-gen9ou-1", RoomID(" battle-gen9ou-1 "))
	assert.Equal(t, "", RoomID(""))
}

func TestEventKind_String(t *testing.T) {
	assert.Equal(t, "frame", Frame.String())
	assert.Equal(t, "failed", Failed.String())
	assert.Equal(t, "EventKind(9)", EventKind(9).String())
}
