package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"order-bridge/internal/model"

	"gorm.io/gorm"
)

type OrderRepository interface {
	Create(ctx context.Context, order *model.Order) error
	FindByID(ctx context.Context, orderID string) (*model.Order, error)
	FindByIDForUser(ctx context.Context, orderID, userID string) (*model.Order, error)
	TransitionStatus(ctx context.Context, orderID string, from, to model.OrderStatus, extra map[string]interface{}) (*model.Order, error)
	BindChannel(ctx context.Context, orderID string, binding model.ChannelBinding) error
	ClearChannel(ctx context.Context, orderID, channelID string) error
	AppendMessage(ctx context.Context, msg *model.OrderMessage) error
	ListMessages(ctx context.Context, orderID string) ([]*model.OrderMessage, error)
	LastMessage(ctx context.Context, orderID string) (*model.OrderMessage, error)
}

type orderRepoImpl struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepoImpl{
		db: db,
	}
}

func (r *orderRepoImpl) Create(ctx context.Context, order *model.Order) error {
	if order.ID == "" {
		return errors.New("order id is empty")
	}
	if order.ChannelKind == "" {
		order.ChannelKind = model.ChannelKindNone
	}
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *orderRepoImpl) FindByID(ctx context.Context, orderID string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Where("id = ?", orderID).
		First(&order).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("order %s: %w", orderID, model.ErrNotFound)
		}
		return nil, err
	}

	return &order, nil
}

// FindByIDForUser distinguishes an absent order from one owned by someone else.
func (r *orderRepoImpl) FindByIDForUser(ctx context.Context, orderID, userID string) (*model.Order, error) {
	order, err := r.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, fmt.Errorf("order %s: %w", orderID, model.ErrUnauthorized)
	}
	return order, nil
}

// TransitionStatus moves the order from `from` to `to` only if it is still in
// `from`. Concurrent callers racing on the same edge see exactly one success;
// the others get an InvalidTransitionError carrying the status they lost to.
func (r *orderRepoImpl) TransitionStatus(ctx context.Context, orderID string, from, to model.OrderStatus, extra map[string]interface{}) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":     to,
			"updated_at": time.Now(),
		}
		for k, v := range extra {
			updates[k] = v
		}

		result := tx.Model(&model.Order{}).
			Where("id = ? AND status = ?", orderID, from).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}

		if result.RowsAffected == 0 {
			var current model.Order
			if err := tx.Where("id = ?", orderID).First(&current).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("order %s: %w", orderID, model.ErrNotFound)
				}
				return err
			}
			return &model.InvalidTransitionError{From: current.Status, To: to}
		}

		return tx.Where("id = ?", orderID).First(&order).Error
	})
	if err != nil {
		return nil, err
	}

	return &order, nil
}

func (r *orderRepoImpl) BindChannel(ctx context.Context, orderID string, binding model.ChannelBinding) error {
	result := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]interface{}{
			"channel_kind": binding.Kind,
			"channel_id":   binding.ID,
			"updated_at":   time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("order %s: %w", orderID, model.ErrNotFound)
	}
	return nil
}

// ClearChannel unbinds channelID; a binding that already points elsewhere is
// left alone.
func (r *orderRepoImpl) ClearChannel(ctx context.Context, orderID, channelID string) error {
	return r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND channel_id = ?", orderID, channelID).
		Updates(map[string]interface{}{
			"channel_kind": model.ChannelKindNone,
			"channel_id":   "",
			"updated_at":   time.Now(),
		}).Error
}

func (r *orderRepoImpl) AppendMessage(ctx context.Context, msg *model.OrderMessage) error {
	msg.ID = 0
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *orderRepoImpl) ListMessages(ctx context.Context, orderID string) ([]*model.OrderMessage, error) {
	var messages []*model.OrderMessage
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id ASC").
		Find(&messages).Error

	if err != nil {
		return nil, err
	}

	return messages, nil
}

func (r *orderRepoImpl) LastMessage(ctx context.Context, orderID string) (*model.OrderMessage, error) {
	var messages []*model.OrderMessage
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id DESC").
		Limit(1).
		Find(&messages).Error

	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, nil
	}

	return messages[0], nil
}
