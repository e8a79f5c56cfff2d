package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"order-bridge/internal/client"
	"order-bridge/internal/event"
	"order-bridge/internal/model"
	"order-bridge/internal/repository"
	"order-bridge/internal/token"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const channelDeleteTimeout = 15 * time.Second

// Ticket is a platform-only purchase, reconstructed from its channel topic.
// Nothing about it is persisted.
type Ticket struct {
	Topic   model.PaymentTopic
	Channel client.Channel
	Binding model.ChannelBinding
	Product model.Product
}

type ChannelService interface {
	OpenPaymentChannel(ctx context.Context, userID, productID string) (*client.Channel, error)
	PaymentTicket(ctx context.Context, channelID string) (*Ticket, error)
	ConfirmTicketPayment(ctx context.Context, tc token.Context) (*Ticket, error)
	RejectTicketPayment(ctx context.Context, tc token.Context) error
	DeliverTicket(ctx context.Context, tc token.Context) error

	HandleOrderApproved(ctx context.Context, e event.Event) error
	HandleOrderDeclined(ctx context.Context, e event.Event) error
	HandleOrderDelivered(ctx context.Context, e event.Event) error

	// Close cancels deletions that have not run yet.
	Close()
}

type ChannelOptions struct {
	AdminRoleID      string
	TicketCategoryID string
	DeleteDelay      time.Duration
}

type channelServiceImpl struct {
	platform    client.Platform
	notifier    Notifier
	orderRepo   repository.OrderRepository
	productRepo repository.ProductRepository
	opts        ChannelOptions
	logger      *zap.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	settled map[string]struct{}
	closed  bool
}

func NewChannelService(
	platform client.Platform,
	notifier Notifier,
	orderRepo repository.OrderRepository,
	productRepo repository.ProductRepository,
	opts ChannelOptions,
	logger *zap.Logger,
) ChannelService {
	return &channelServiceImpl{
		platform:    platform,
		notifier:    notifier,
		orderRepo:   orderRepo,
		productRepo: productRepo,
		opts:        opts,
		logger:      logger,
		pending:     make(map[string]*time.Timer),
		settled:     make(map[string]struct{}),
	}
}

func (s *channelServiceImpl) OpenPaymentChannel(ctx context.Context, userID, productID string) (*client.Channel, error) {
	product, err := s.productRepo.FindByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if !product.InStock() {
		return nil, fmt.Errorf("product %s: %w", productID, model.ErrOutOfStock)
	}

	topic := model.PaymentTopic{
		TicketID:  uuid.NewString(),
		UserID:    userID,
		ProductID: product.ID,
	}
	ch, err := s.createPrivateChannel(ctx, channelName("pagamento", s.username(ctx, userID)), topic.String(), userID)
	if err != nil {
		return nil, err
	}

	intro := fmt.Sprintf("Olá <@%s>! Você está comprando **%s** por **%s**.\nEnvie o comprovante de pagamento (imagem) neste canal para análise.",
		userID, product.Name, formatPrice(product.Price))
	if err := s.platform.SendMessage(ctx, ch.ID, intro); err != nil {
		s.logger.Warn("payment channel intro failed", zap.String("channel_id", ch.ID), zap.Error(err))
	}

	s.logger.Info("payment channel opened",
		zap.String("ticket_id", topic.TicketID),
		zap.String("channel_id", ch.ID),
		zap.String("user_id", userID),
		zap.String("product_id", product.ID),
	)
	return ch, nil
}

// PaymentTicket reads the ticket back from a channel topic. A channel whose
// topic does not match the payment format is rejected.
func (s *channelServiceImpl) PaymentTicket(ctx context.Context, channelID string) (*Ticket, error) {
	ch, err := s.platform.Channel(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("fetch ticket channel: %w", err)
	}

	topic, err := model.ParsePaymentTopic(ch.Topic)
	if err != nil {
		return nil, err
	}

	product, err := s.productRepo.FindByID(ctx, topic.ProductID)
	if err != nil {
		return nil, fmt.Errorf("get ticket product: %w", err)
	}

	return &Ticket{
		Topic:   topic,
		Channel: *ch,
		Binding: model.PaymentChannel(ch.ID),
		Product: *product,
	}, nil
}

// ConfirmTicketPayment opens the delivery channel, takes one unit of stock and
// then closes the payment channel. Nothing is changed if the delivery channel
// cannot be created. The returned ticket points at the new channel.
func (s *channelServiceImpl) ConfirmTicketPayment(ctx context.Context, tc token.Context) (*Ticket, error) {
	ticket, err := s.verifiedTicket(ctx, tc)
	if err != nil {
		return nil, err
	}
	if err := s.settle(ticket.Channel.ID); err != nil {
		return nil, err
	}

	delivery, err := s.createPrivateChannel(ctx, channelName("entrega", s.username(ctx, tc.UserID)), ticket.Topic.String(), tc.UserID)
	if err != nil {
		s.unsettle(ticket.Channel.ID)
		return nil, err
	}

	decreased, err := s.productRepo.DecreaseStock(ctx, ticket.Product.ID)
	if err != nil {
		s.unsettle(ticket.Channel.ID)
		s.scheduleDelete(delivery.ID)
		return nil, fmt.Errorf("decrease product stock: %w", err)
	}
	if !decreased && ticket.Product.Stock != model.UnlimitedStock {
		s.logger.Warn("ticket approved with no stock left",
			zap.String("ticket_id", ticket.Topic.TicketID),
			zap.String("product_id", ticket.Product.ID),
		)
	}

	closing := fmt.Sprintf("<@%s> pagamento aprovado! ✅ A entrega continua em <#%s>. Este canal será fechado em instantes.", tc.UserID, delivery.ID)
	if err := s.platform.SendMessage(ctx, ticket.Channel.ID, closing); err != nil {
		s.logger.Warn("payment channel notice failed", zap.String("channel_id", ticket.Channel.ID), zap.Error(err))
	}
	s.scheduleDelete(ticket.Channel.ID)

	notice := fmt.Sprintf("<@%s> pagamento aprovado! ✅ Sua compra de **%s** será entregue por aqui.", tc.UserID, ticket.Product.Name)
	if err := s.platform.SendMessage(ctx, delivery.ID, notice); err != nil {
		s.logger.Warn("delivery channel notice failed", zap.String("channel_id", delivery.ID), zap.Error(err))
	}

	s.logger.Info("ticket payment confirmed",
		zap.String("ticket_id", ticket.Topic.TicketID),
		zap.String("delivery_channel_id", delivery.ID),
	)
	ticket.Channel = *delivery
	ticket.Binding = model.DeliveryChannel(delivery.ID)
	return ticket, nil
}

func (s *channelServiceImpl) RejectTicketPayment(ctx context.Context, tc token.Context) error {
	if _, err := s.verifiedTicket(ctx, tc); err != nil {
		return err
	}
	if err := s.settle(tc.ChannelID); err != nil {
		return err
	}

	notice := fmt.Sprintf("<@%s> seu comprovante foi recusado. ❌ Este canal será fechado em instantes.", tc.UserID)
	if err := s.platform.SendMessage(ctx, tc.ChannelID, notice); err != nil {
		s.logger.Warn("rejection notice failed", zap.String("channel_id", tc.ChannelID), zap.Error(err))
	}
	s.notifyUser(ctx, tc.UserID, fmt.Sprintf("Seu pagamento de **%s** foi recusado. Em caso de dúvida, abra um novo ticket.", tc.ProductName))

	s.scheduleDelete(tc.ChannelID)
	return nil
}

func (s *channelServiceImpl) DeliverTicket(ctx context.Context, tc token.Context) error {
	if _, err := s.verifiedTicket(ctx, tc); err != nil {
		return err
	}
	if err := s.settle(tc.ChannelID); err != nil {
		return err
	}

	notice := fmt.Sprintf("<@%s> sua compra de **%s** foi entregue! 🎉 Este canal será fechado em instantes.", tc.UserID, tc.ProductName)
	if err := s.platform.SendMessage(ctx, tc.ChannelID, notice); err != nil {
		s.logger.Warn("delivery notice failed", zap.String("channel_id", tc.ChannelID), zap.Error(err))
	}
	s.notifyUser(ctx, tc.UserID, fmt.Sprintf("Sua compra de **%s** foi entregue. Obrigado!", tc.ProductName))

	s.scheduleDelete(tc.ChannelID)
	return nil
}

// verifiedTicket reads the ticket behind tc.ChannelID and checks that its
// topic names the same buyer and product the token was minted for.
func (s *channelServiceImpl) verifiedTicket(ctx context.Context, tc token.Context) (*Ticket, error) {
	ticket, err := s.PaymentTicket(ctx, tc.ChannelID)
	if err != nil {
		return nil, err
	}
	if ticket.Topic.UserID != tc.UserID || ticket.Topic.ProductID != tc.ProductID {
		return nil, fmt.Errorf("channel %s topic does not match the verified ticket: %w", tc.ChannelID, model.ErrMalformedTopic)
	}
	return ticket, nil
}

// settle claims a ticket channel for its one final action. Any later action on
// the same channel fails until the channel is gone.
func (s *channelServiceImpl) settle(channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, settled := s.settled[channelID]
	_, pending := s.pending[channelID]
	if settled || pending {
		return fmt.Errorf("ticket channel %s is already closing: %w", channelID, model.ErrInvalidTransition)
	}
	s.settled[channelID] = struct{}{}
	return nil
}

func (s *channelServiceImpl) unsettle(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.settled, channelID)
}

func (s *channelServiceImpl) HandleOrderApproved(ctx context.Context, e event.Event) error {
	approved, ok := e.(event.OrderApproved)
	if !ok {
		return fmt.Errorf("unexpected event %T", e)
	}
	order := approved.Order

	// the transition fires once, but never bind a second channel
	if !order.Channel().IsNone() {
		return nil
	}

	topic := model.SiteChatTopic{OrderID: order.ID, UserID: order.UserID}
	ch, err := s.createPrivateChannel(ctx, channelName("pedido", shortID(order.ID)), topic.String(), order.UserID)
	if err != nil {
		return err
	}

	if err := s.orderRepo.BindChannel(ctx, order.ID, model.ChatChannel(ch.ID)); err != nil {
		// an unbound channel can never be relayed to; drop it
		s.scheduleDelete(ch.ID)
		return fmt.Errorf("bind chat channel: %w", err)
	}

	intro := fmt.Sprintf("<@%s> seu pedido de **%s** foi aprovado! ✅\nMensagens enviadas aqui aparecem no chat do site e vice-versa.", order.UserID, order.ProductName)
	if err := s.platform.SendMessage(ctx, ch.ID, intro); err != nil {
		s.logger.Warn("chat channel intro failed", zap.String("channel_id", ch.ID), zap.Error(err))
	}

	s.logger.Info("chat channel bound", zap.String("order_id", order.ID), zap.String("channel_id", ch.ID))
	return nil
}

func (s *channelServiceImpl) HandleOrderDeclined(ctx context.Context, e event.Event) error {
	declined, ok := e.(event.OrderDeclined)
	if !ok {
		return fmt.Errorf("unexpected event %T", e)
	}
	order := declined.Order

	s.notifyUser(ctx, order.UserID, fmt.Sprintf("Seu pedido de **%s** (`%s`) foi recusado após análise do comprovante.", order.ProductName, shortID(order.ID)))
	return nil
}

func (s *channelServiceImpl) HandleOrderDelivered(ctx context.Context, e event.Event) error {
	delivered, ok := e.(event.OrderDelivered)
	if !ok {
		return fmt.Errorf("unexpected event %T", e)
	}
	order := delivered.Order

	s.notifyUser(ctx, order.UserID, fmt.Sprintf("Seu pedido de **%s** (`%s`) foi entregue. Obrigado pela compra!", order.ProductName, shortID(order.ID)))

	channelID, ok := order.Channel().ChatChannelID()
	if !ok {
		return nil
	}

	notice := "Pedido entregue! 🎉 Este canal será fechado em instantes."
	if err := s.platform.SendMessage(ctx, channelID, notice); err != nil {
		s.logger.Warn("delivery notice failed", zap.String("channel_id", channelID), zap.Error(err))
	}

	// unbind first so nothing relays into a channel that is about to vanish
	if err := s.orderRepo.ClearChannel(ctx, order.ID, channelID); err != nil {
		return fmt.Errorf("clear chat channel: %w", err)
	}
	s.scheduleDelete(channelID)
	return nil
}

func (s *channelServiceImpl) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, timer := range s.pending {
		timer.Stop()
		delete(s.pending, id)
	}
	s.closed = true
}

func (s *channelServiceImpl) createPrivateChannel(ctx context.Context, name, topic, userID string) (*client.Channel, error) {
	spec := client.ChannelSpec{
		Name:      name,
		Topic:     topic,
		ParentID:  s.opts.TicketCategoryID,
		MemberIDs: []string{userID},
	}
	if s.opts.AdminRoleID != "" {
		spec.RoleIDs = []string{s.opts.AdminRoleID}
	}

	ch, err := s.platform.CreateChannel(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("create channel %s: %w", name, err)
	}
	return ch, nil
}

// scheduleDelete removes the channel after the grace delay so readers can see
// the final notice. Failures are logged once; a leftover channel is tolerated.
func (s *channelServiceImpl) scheduleDelete(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if _, ok := s.pending[channelID]; ok {
		return
	}

	s.pending[channelID] = time.AfterFunc(s.opts.DeleteDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), channelDeleteTimeout)
		defer cancel()

		err := s.platform.DeleteChannel(ctx, channelID)

		// the entry stays until the delete returns so the channel cannot be
		// settled again while it is going away
		s.mu.Lock()
		delete(s.pending, channelID)
		delete(s.settled, channelID)
		s.mu.Unlock()

		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				s.logger.Info("channel already gone", zap.String("channel_id", channelID))
				return
			}
			s.logger.Error("channel delete failed", zap.String("channel_id", channelID), zap.Error(err))
			return
		}
		s.logger.Info("channel deleted", zap.String("channel_id", channelID))
	})
}

func (s *channelServiceImpl) username(ctx context.Context, userID string) string {
	u, err := s.platform.User(ctx, userID)
	if err != nil {
		s.logger.Debug("user lookup failed, using id for channel name", zap.String("user_id", userID), zap.Error(err))
		return userID
	}
	return u.Username
}

func (s *channelServiceImpl) notifyUser(ctx context.Context, userID, content string) {
	if err := s.notifier.NotifyUser(ctx, userID, content); err != nil {
		s.logger.Warn("user notification failed", zap.String("user_id", userID), zap.Error(err))
	}
}
