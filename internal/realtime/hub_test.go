package realtime_test

import (
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"order-bridge/internal/model"
	"order-bridge/internal/realtime"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/net/websocket"
)

type fakeParticipant struct {
	id  string
	err error

	mu     sync.Mutex
	events []realtime.Event
}

func (p *fakeParticipant) ID() string { return p.id }

func (p *fakeParticipant) Send(ev realtime.Event) error {
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *fakeParticipant) received() []realtime.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]realtime.Event(nil), p.events...)
}

func TestHubBroadcastExcludesSender(t *testing.T) {
	hub := realtime.NewHub(zaptest.NewLogger(t))

	sender := &fakeParticipant{id: "sender"}
	other := &fakeParticipant{id: "other"}
	elsewhere := &fakeParticipant{id: "elsewhere"}
	hub.Join("o1", sender)
	hub.Join("o1", other)
	hub.Join("o2", elsewhere)

	msg := &model.OrderMessage{Author: model.AuthorUser, Content: "olá", Timestamp: time.Now()}
	n := hub.Broadcast("o1", realtime.MessageEvent("o1", msg), sender.ID())

	assert.Equal(t, 1, n)
	assert.Empty(t, sender.received())
	assert.Empty(t, elsewhere.received())
	require.Len(t, other.received(), 1)
	assert.Equal(t, realtime.EventMessage, other.received()[0].Type)
	assert.Equal(t, "olá", other.received()[0].Message.Content)
}

func TestHubBroadcastToEveryone(t *testing.T) {
	hub := realtime.NewHub(zaptest.NewLogger(t))

	a := &fakeParticipant{id: "a"}
	b := &fakeParticipant{id: "b"}
	broken := &fakeParticipant{id: "broken", err: errors.New("closed")}
	hub.Join("o1", a)
	hub.Join("o1", b)
	hub.Join("o1", broken)

	n := hub.Broadcast("o1", realtime.ErrorEvent("o1", "x"), "")
	assert.Equal(t, 2, n)
	assert.Len(t, a.received(), 1)
	assert.Len(t, b.received(), 1)
}

func TestHubLeave(t *testing.T) {
	hub := realtime.NewHub(zaptest.NewLogger(t))

	a := &fakeParticipant{id: "a"}
	hub.Join("o1", a)
	assert.Equal(t, 1, hub.RoomSize("o1"))

	hub.Leave("o1", "a")
	hub.Leave("o1", "a")
	hub.Leave("nope", "a")
	assert.Equal(t, 0, hub.RoomSize("o1"))
	assert.Equal(t, 0, hub.Broadcast("o1", realtime.ErrorEvent("o1", "x"), ""))
}

func TestWebsocketParticipantRoundTrip(t *testing.T) {
	received := make(chan map[string]string, 1)

	server := httptest.NewServer(websocket.Handler(func(ws *websocket.Conn) {
		p := realtime.NewWebsocketParticipant(ws)
		var in map[string]string
		if err := p.Receive(&in); err != nil {
			return
		}
		received <- in

		msg := &model.OrderMessage{Author: model.AuthorStaff, Content: "pong", Timestamp: time.Now()}
		_ = p.Send(realtime.MessageEvent("o1", msg))
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, err := websocket.Dial(wsURL, "", server.URL)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, websocket.JSON.Send(conn, map[string]string{"text": "ping"}))

	select {
	case in := <-received:
		assert.Equal(t, "ping", in["text"])
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the frame")
	}

	var ev realtime.Event
	require.NoError(t, websocket.JSON.Receive(conn, &ev))
	assert.Equal(t, realtime.EventMessage, ev.Type)
	assert.Equal(t, "o1", ev.OrderID)
	assert.Equal(t, model.AuthorStaff, ev.Message.Author)
	assert.Equal(t, "pong", ev.Message.Content)
}
