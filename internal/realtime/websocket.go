package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"
)

const writeTimeout = 10 * time.Second

// WebsocketParticipant adapts a websocket connection to Participant. Writes
// are serialized because broadcasts arrive from many goroutines.
type WebsocketParticipant struct {
	id   string
	conn *websocket.Conn

	mu sync.Mutex
}

func NewWebsocketParticipant(conn *websocket.Conn) *WebsocketParticipant {
	return &WebsocketParticipant{
		id:   uuid.NewString(),
		conn: conn,
	}
}

func (p *WebsocketParticipant) ID() string {
	return p.id
}

func (p *WebsocketParticipant) Send(ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return websocket.JSON.Send(p.conn, ev)
}

// Receive decodes the next client frame into v.
func (p *WebsocketParticipant) Receive(v interface{}) error {
	return websocket.JSON.Receive(p.conn, v)
}
