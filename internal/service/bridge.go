package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"order-bridge/internal/client"
	"order-bridge/internal/event"
	"order-bridge/internal/model"
	"order-bridge/internal/realtime"
	"order-bridge/internal/repository"
	"order-bridge/internal/syncx"

	"go.uber.org/zap"
)

const (
	defaultSenderName  = "Cliente"
	maxMessageLength   = 2000
	deliveredSystemMsg = "✅ Pedido marcado como entregue. Obrigado pela compra!"

	// platformMessageLimit is the longest message the platform accepts,
	// counted after the relay prefix is added.
	platformMessageLimit = 2000
)

var (
	// ErrNotBridged marks platform messages from channels that do not belong
	// to any site order. Callers ignore them.
	ErrNotBridged   = errors.New("channel is not bridged to an order")
	ErrEmptyMessage = errors.New("message is empty")
)

// Broadcaster is the web room transport.
type Broadcaster interface {
	Broadcast(orderID string, ev realtime.Event, excludeID string) int
}

type WebMessage struct {
	OrderID    string
	UserID     string
	SenderName string
	Text       string
	// SenderID is the room participant that sent it; it does not get an echo.
	SenderID string
}

type PlatformMessage struct {
	ChannelID  string
	Topic      string
	AuthorID   string
	AuthorName string
	Content    string
}

type BridgeService interface {
	HandleWebMessage(ctx context.Context, msg WebMessage) (*model.OrderMessage, error)
	// HandlePlatformMessage returns nil, nil for the bot's own messages.
	HandlePlatformMessage(ctx context.Context, msg PlatformMessage) (*model.OrderMessage, error)
	AppendSystemMessage(ctx context.Context, orderID, content string) (*model.OrderMessage, error)
	Transcript(ctx context.Context, orderID, userID string) ([]*model.OrderMessage, error)

	HandleOrderDelivered(ctx context.Context, e event.Event) error
}

type bridgeServiceImpl struct {
	orderRepo repository.OrderRepository
	platform  client.Platform
	rooms     Broadcaster
	bus       *event.Bus
	locks     syncx.KeyedMutex
	now       func() time.Time
	logger    *zap.Logger
}

func NewBridgeService(
	orderRepo repository.OrderRepository,
	platform client.Platform,
	rooms Broadcaster,
	bus *event.Bus,
	logger *zap.Logger,
) BridgeService {
	return &bridgeServiceImpl{
		orderRepo: orderRepo,
		platform:  platform,
		rooms:     rooms,
		bus:       bus,
		now:       time.Now,
		logger:    logger,
	}
}

func (s *bridgeServiceImpl) HandleWebMessage(ctx context.Context, msg WebMessage) (*model.OrderMessage, error) {
	text, err := cleanMessage(msg.Text)
	if err != nil {
		return nil, err
	}

	order, err := s.orderRepo.FindByIDForUser(ctx, msg.OrderID, msg.UserID)
	if err != nil {
		return nil, err
	}

	appended, err := s.append(ctx, order.ID, model.AuthorUser, text, msg.SenderID)
	if err != nil {
		return nil, err
	}

	// relay outside the order lock; a slow platform must not stall the room
	if channelID, ok := order.Channel().ChatChannelID(); ok {
		name := strings.TrimSpace(msg.SenderName)
		if name == "" {
			name = defaultSenderName
		}
		relay := relayText(name, text)
		if err := s.platform.SendMessage(ctx, channelID, relay); err != nil {
			s.logger.Warn("relay to platform failed",
				zap.String("order_id", order.ID),
				zap.String("channel_id", channelID),
				zap.Error(err),
			)
		}
	}

	return appended, nil
}

func (s *bridgeServiceImpl) HandlePlatformMessage(ctx context.Context, msg PlatformMessage) (*model.OrderMessage, error) {
	if msg.AuthorID == s.platform.SelfID() {
		return nil, nil
	}
	if !model.IsSiteChatTopic(msg.Topic) {
		return nil, ErrNotBridged
	}

	topic, err := model.ParseSiteChatTopic(msg.Topic)
	if err != nil {
		return nil, err
	}

	text, err := cleanMessage(msg.Content)
	if err != nil {
		return nil, err
	}

	order, err := s.orderRepo.FindByID(ctx, topic.OrderID)
	if err != nil {
		return nil, err
	}
	channelID, bound := order.Channel().ChatChannelID()
	if order.UserID != topic.UserID || !bound || channelID != msg.ChannelID {
		return nil, fmt.Errorf("channel %s for order %s: %w", msg.ChannelID, order.ID, ErrNotBridged)
	}

	return s.append(ctx, order.ID, model.AuthorStaff, text, "")
}

func (s *bridgeServiceImpl) AppendSystemMessage(ctx context.Context, orderID, content string) (*model.OrderMessage, error) {
	text, err := cleanMessage(content)
	if err != nil {
		return nil, err
	}
	return s.append(ctx, orderID, model.AuthorSystem, text, "")
}

func (s *bridgeServiceImpl) Transcript(ctx context.Context, orderID, userID string) ([]*model.OrderMessage, error) {
	if _, err := s.orderRepo.FindByIDForUser(ctx, orderID, userID); err != nil {
		return nil, err
	}
	return s.orderRepo.ListMessages(ctx, orderID)
}

func (s *bridgeServiceImpl) HandleOrderDelivered(ctx context.Context, e event.Event) error {
	_, err := s.AppendSystemMessage(ctx, e.OrderID(), deliveredSystemMsg)
	return err
}

// append stores and broadcasts one message, then publishes it to the bus once
// the order's lock is released.
func (s *bridgeServiceImpl) append(ctx context.Context, orderID string, author model.MessageAuthor, content, excludeID string) (*model.OrderMessage, error) {
	msg, err := s.store(ctx, orderID, author, content, excludeID)
	if err != nil {
		return nil, err
	}
	s.bus.Publish(ctx, event.MessageAppended{Order: orderID, Message: *msg})
	return msg, nil
}

// store runs under the order's lock so the room sees messages in transcript
// order.
func (s *bridgeServiceImpl) store(ctx context.Context, orderID string, author model.MessageAuthor, content, excludeID string) (*model.OrderMessage, error) {
	unlock := s.locks.Lock(orderID)
	defer unlock()

	ts := s.now().UTC()
	last, err := s.orderRepo.LastMessage(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("read last message: %w", err)
	}
	if last != nil && ts.Before(last.Timestamp) {
		ts = last.Timestamp
	}

	msg := &model.OrderMessage{
		OrderID:   orderID,
		Author:    author,
		Content:   content,
		Timestamp: ts,
	}
	if err := s.orderRepo.AppendMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	reached := s.rooms.Broadcast(orderID, realtime.MessageEvent(orderID, msg), excludeID)

	s.logger.Debug("message appended",
		zap.String("order_id", orderID),
		zap.String("author", string(author)),
		zap.Uint("message_id", msg.ID),
		zap.Int("reached", reached),
	)
	return msg, nil
}

func cleanMessage(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}
	if r := []rune(text); len(r) > maxMessageLength {
		text = string(r[:maxMessageLength])
	}
	return text, nil
}

// relayText prefixes a site message for the platform, cutting the text so the
// whole message fits the platform limit.
func relayText(name, text string) string {
	prefix := fmt.Sprintf("🌐 **[Site] %s:** ", name)
	room := platformMessageLimit - utf8.RuneCountInString(prefix)
	if room <= 0 {
		return string([]rune(prefix)[:platformMessageLimit])
	}
	if r := []rune(text); len(r) > room {
		text = string(r[:room])
	}
	return prefix + text
}
