// Package realtime keeps the per-order web chat rooms.
package realtime

import (
	"sync"

	"order-bridge/internal/dto"
	"order-bridge/internal/model"

	"go.uber.org/zap"
)

type EventType string

const (
	EventMessage EventType = "message"
	EventHistory EventType = "history"
	EventError   EventType = "error"
)

type Event struct {
	Type     EventType     `json:"type"`
	OrderID  string        `json:"orderId"`
	Message  *dto.Message  `json:"message,omitempty"`
	Messages []dto.Message `json:"messages,omitempty"`
	Error    string        `json:"error,omitempty"`
}

func MessageEvent(orderID string, m *model.OrderMessage) Event {
	msg := dto.NewMessage(m)
	return Event{Type: EventMessage, OrderID: orderID, Message: &msg}
}

func HistoryEvent(orderID string, messages []*model.OrderMessage) Event {
	return Event{Type: EventHistory, OrderID: orderID, Messages: dto.NewMessages(messages)}
}

func ErrorEvent(orderID, text string) Event {
	return Event{Type: EventError, OrderID: orderID, Error: text}
}

// Participant is one joined client. Send must be safe for concurrent use.
type Participant interface {
	ID() string
	Send(Event) error
}

type Hub struct {
	logger *zap.Logger

	mu    sync.RWMutex
	rooms map[string]map[string]Participant
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger: logger,
		rooms:  make(map[string]map[string]Participant),
	}
}

func (h *Hub) Join(orderID string, p Participant) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[orderID]
	if !ok {
		room = make(map[string]Participant)
		h.rooms[orderID] = room
	}
	room[p.ID()] = p
}

func (h *Hub) Leave(orderID, participantID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[orderID]
	if !ok {
		return
	}
	delete(room, participantID)
	if len(room) == 0 {
		delete(h.rooms, orderID)
	}
}

func (h *Hub) RoomSize(orderID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[orderID])
}

// Broadcast sends ev to everyone in the order's room except excludeID and
// returns how many participants it reached. A failed send is logged; the
// participant's own read loop is responsible for leaving.
func (h *Hub) Broadcast(orderID string, ev Event, excludeID string) int {
	h.mu.RLock()
	targets := make([]Participant, 0, len(h.rooms[orderID]))
	for id, p := range h.rooms[orderID] {
		if id != excludeID {
			targets = append(targets, p)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, p := range targets {
		if err := p.Send(ev); err != nil {
			h.logger.Warn("room broadcast failed",
				zap.String("order_id", orderID),
				zap.String("participant_id", p.ID()),
				zap.Error(err),
			)
			continue
		}
		delivered++
	}
	return delivered
}
