package model

import (
	"errors"
	"time"
)

type OrderStatus string

// remember to add new statuses to orderTransitions
const (
	OrderStatusAnalise         OrderStatus = "analise"          // awaiting proof
	OrderStatusPendingApproval OrderStatus = "pending_approval" // proof submitted
	OrderStatusApproved        OrderStatus = "approved"
	OrderStatusDelivered       OrderStatus = "entregue"
	OrderStatusDeclined        OrderStatus = "declined"
)

// orderTransitions lists the only legal forward edges. Statuses without an
// entry are terminal.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusAnalise:         {OrderStatusPendingApproval},
	OrderStatusPendingApproval: {OrderStatusApproved, OrderStatusDeclined},
	OrderStatusApproved:        {OrderStatusDelivered},
	OrderStatusDelivered:       nil,
	OrderStatusDeclined:        nil,
}

func ToOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(s)
	if _, ok := orderTransitions[status]; ok {
		return status, nil
	}

	return "", errors.New("invalid order status")
}

func (s OrderStatus) IsTerminal() bool {
	next, ok := orderTransitions[s]
	return ok && len(next) == 0
}

// ChatEnabled reports whether the web and platform transcripts are relayed
// for an order in this status.
func (s OrderStatus) ChatEnabled() bool {
	return s == OrderStatusApproved
}

func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Order struct {
	ID          string      `gorm:"primaryKey;size:64;not null"`
	UserID      string      `gorm:"size:32;index;not null"`
	ProductID   string      `gorm:"size:64;not null"`
	ProductName string      `gorm:"size:255;not null"` // snapshot taken at creation
	Status      OrderStatus `gorm:"size:32;index;not null"`
	ReceiptURL  string      `gorm:"size:512"`
	ChannelKind ChannelKind `gorm:"size:16;not null;default:none"`
	ChannelID   string      `gorm:"size:32;index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Messages []OrderMessage `gorm:"foreignKey:OrderID"`
}

func (o *Order) Channel() ChannelBinding {
	return ChannelBinding{Kind: o.ChannelKind, ID: o.ChannelID}.normalize()
}

type MessageAuthor string

const (
	AuthorUser   MessageAuthor = "user"
	AuthorStaff  MessageAuthor = "staff"
	AuthorSystem MessageAuthor = "system"
)

// OrderMessage is one transcript entry. Rows are only ever inserted; the
// autoincrement ID is the transcript order.
type OrderMessage struct {
	ID        uint          `gorm:"primaryKey"`
	OrderID   string        `gorm:"size:64;index;not null"`
	Author    MessageAuthor `gorm:"size:16;not null"`
	Content   string        `gorm:"type:text;not null"`
	Timestamp time.Time     `gorm:"not null"`
}
