package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"order-bridge/internal/event"
	"order-bridge/internal/model"
	"order-bridge/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderService is the only writer of an order's status. Every transition is
// a compare-and-set on the stored status; side effects hang off the events it
// publishes and can never roll the write back.
type OrderService interface {
	CreateOrder(ctx context.Context, userID, productID string) (*model.Order, error)
	GetOrder(ctx context.Context, orderID, userID string) (*model.Order, error)
	GetProduct(ctx context.Context, productID string) (*model.Product, error)
	SubmitProof(ctx context.Context, orderID, userID, receiptURL string) (*model.Order, error)
	Approve(ctx context.Context, orderID string) (*model.Order, error)
	Reject(ctx context.Context, orderID string) (*model.Order, error)
	MarkDelivered(ctx context.Context, orderID string) (*model.Order, error)
}

type orderServiceImpl struct {
	orderRepo   repository.OrderRepository
	productRepo repository.ProductRepository
	bus         *event.Bus
	logger      *zap.Logger
}

func NewOrderService(
	orderRepo repository.OrderRepository,
	productRepo repository.ProductRepository,
	bus *event.Bus,
	logger *zap.Logger,
) OrderService {
	return &orderServiceImpl{
		orderRepo:   orderRepo,
		productRepo: productRepo,
		bus:         bus,
		logger:      logger,
	}
}

func (s *orderServiceImpl) CreateOrder(ctx context.Context, userID, productID string) (*model.Order, error) {
	if userID == "" || productID == "" {
		return nil, errors.New("user id and product id are required")
	}

	product, err := s.productRepo.FindByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if !product.InStock() {
		return nil, fmt.Errorf("product %s: %w", productID, model.ErrOutOfStock)
	}

	order := &model.Order{
		ID:          uuid.NewString(),
		UserID:      userID,
		ProductID:   product.ID,
		ProductName: product.Name,
		Status:      model.OrderStatusAnalise,
		ChannelKind: model.ChannelKindNone,
	}
	if err := s.orderRepo.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("store order in db: %w", err)
	}

	s.logger.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("user_id", userID),
		zap.String("product_id", productID),
	)
	return order, nil
}

// GetOrder never mutates; it is safe to poll.
func (s *orderServiceImpl) GetOrder(ctx context.Context, orderID, userID string) (*model.Order, error) {
	return s.orderRepo.FindByIDForUser(ctx, orderID, userID)
}

func (s *orderServiceImpl) GetProduct(ctx context.Context, productID string) (*model.Product, error) {
	return s.productRepo.FindByID(ctx, productID)
}

func (s *orderServiceImpl) SubmitProof(ctx context.Context, orderID, userID, receiptURL string) (*model.Order, error) {
	receiptURL = strings.TrimSpace(receiptURL)
	if receiptURL == "" {
		return nil, errors.New("receipt url is required")
	}

	if _, err := s.orderRepo.FindByIDForUser(ctx, orderID, userID); err != nil {
		return nil, err
	}

	order, err := s.transition(ctx, orderID, model.OrderStatusAnalise, model.OrderStatusPendingApproval, map[string]interface{}{
		"receipt_url": receiptURL,
	})
	if err != nil {
		return nil, err
	}

	s.bus.Publish(ctx, event.ProofSubmitted{Order: *order})
	return order, nil
}

func (s *orderServiceImpl) Approve(ctx context.Context, orderID string) (*model.Order, error) {
	order, err := s.transition(ctx, orderID, model.OrderStatusPendingApproval, model.OrderStatusApproved, nil)
	if err != nil {
		return nil, err
	}

	s.bus.Publish(ctx, event.OrderApproved{Order: *order})
	return order, nil
}

func (s *orderServiceImpl) Reject(ctx context.Context, orderID string) (*model.Order, error) {
	order, err := s.transition(ctx, orderID, model.OrderStatusPendingApproval, model.OrderStatusDeclined, nil)
	if err != nil {
		return nil, err
	}

	s.bus.Publish(ctx, event.OrderDeclined{Order: *order})
	return order, nil
}

func (s *orderServiceImpl) MarkDelivered(ctx context.Context, orderID string) (*model.Order, error) {
	order, err := s.transition(ctx, orderID, model.OrderStatusApproved, model.OrderStatusDelivered, nil)
	if err != nil {
		return nil, err
	}

	s.bus.Publish(ctx, event.OrderDelivered{Order: *order})
	return order, nil
}

func (s *orderServiceImpl) transition(ctx context.Context, orderID string, from, to model.OrderStatus, extra map[string]interface{}) (*model.Order, error) {
	if !model.CanTransition(from, to) {
		return nil, &model.InvalidTransitionError{From: from, To: to}
	}

	order, err := s.orderRepo.TransitionStatus(ctx, orderID, from, to, extra)
	if err != nil {
		if errors.Is(err, model.ErrInvalidTransition) {
			s.logger.Warn("rejected order transition",
				zap.String("order_id", orderID),
				zap.String("to", string(to)),
				zap.Error(err),
			)
		}
		return nil, fmt.Errorf("transition order %s: %w", orderID, err)
	}

	s.logger.Info("order status changed",
		zap.String("order_id", orderID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return order, nil
}
