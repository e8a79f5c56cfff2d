package dto

import (
	"time"

	"order-bridge/internal/model"

	"github.com/samber/lo"
)

type CreateOrderRequest struct {
	ProductID string `json:"productId"`
}

type SubmitProofRequest struct {
	ReceiptURL string `json:"receiptUrl"`
}

type ChatMessageRequest struct {
	Text       string `json:"text"`
	SenderName string `json:"senderName"`
}

type VerifyActionRequest struct {
	Action string `json:"action" form:"action"`
}

type Message struct {
	ID        uint                `json:"id"`
	Author    model.MessageAuthor `json:"author"`
	Content   string              `json:"content"`
	Timestamp time.Time           `json:"timestamp"`
}

type Order struct {
	ID          string            `json:"id"`
	UserID      string            `json:"userId"`
	ProductID   string            `json:"productId"`
	ProductName string            `json:"productName"`
	Status      model.OrderStatus `json:"status"`
	ReceiptURL  string            `json:"receiptUrl,omitempty"`
	ChannelKind model.ChannelKind `json:"channelKind"`
	ChatEnabled bool              `json:"chatEnabled"`
	CreatedAt   time.Time         `json:"createdAt"`
}

type Product struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Price   string `json:"price"`
	Stock   int    `json:"stock"`
	InStock bool   `json:"inStock"`
}

func NewMessage(m *model.OrderMessage) Message {
	return Message{
		ID:        m.ID,
		Author:    m.Author,
		Content:   m.Content,
		Timestamp: m.Timestamp,
	}
}

func NewMessages(messages []*model.OrderMessage) []Message {
	return lo.Map(messages, func(m *model.OrderMessage, _ int) Message {
		return NewMessage(m)
	})
}

func NewOrder(o *model.Order) Order {
	return Order{
		ID:          o.ID,
		UserID:      o.UserID,
		ProductID:   o.ProductID,
		ProductName: o.ProductName,
		Status:      o.Status,
		ReceiptURL:  o.ReceiptURL,
		ChannelKind: o.Channel().Kind,
		ChatEnabled: o.Status.ChatEnabled(),
		CreatedAt:   o.CreatedAt,
	}
}

func NewProduct(p *model.Product) Product {
	return Product{
		ID:      p.ID,
		Name:    p.Name,
		Price:   p.Price.StringFixed(2),
		Stock:   p.Stock,
		InStock: p.InStock(),
	}
}
