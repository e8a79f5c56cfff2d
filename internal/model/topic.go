package model

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Channel topics are the only correlation data stored on the platform side.
// Both encodings are parsed strictly: anything that does not match exactly is
// rejected rather than guessed.
const (
	paymentTopicFormat  = "Ticket: %s | User: %s | ProductID: %s"
	siteChatTopicPrefix = "Chat do Pedido do Site"
	siteChatTopicFormat = siteChatTopicPrefix + " | OrderID: %s | UserID: %s"
)

var (
	paymentTopicPattern  = regexp.MustCompile(`^Ticket: (\S+) \| User: (\S+) \| ProductID: (\S+)$`)
	siteChatTopicPattern = regexp.MustCompile(`^Chat do Pedido do Site \| OrderID: (\S+) \| UserID: (\S+)$`)
)

var ErrMalformedTopic = errors.New("malformed channel topic")

// PaymentTopic correlates a ticket channel (payment or delivery) with its
// buyer and product.
type PaymentTopic struct {
	TicketID  string
	UserID    string
	ProductID string
}

func (t PaymentTopic) String() string {
	return fmt.Sprintf(paymentTopicFormat, t.TicketID, t.UserID, t.ProductID)
}

func ParsePaymentTopic(topic string) (PaymentTopic, error) {
	m := paymentTopicPattern.FindStringSubmatch(strings.TrimSpace(topic))
	if m == nil {
		return PaymentTopic{}, fmt.Errorf("payment topic %q: %w", topic, ErrMalformedTopic)
	}
	return PaymentTopic{TicketID: m[1], UserID: m[2], ProductID: m[3]}, nil
}

// SiteChatTopic correlates a chat channel with a persisted site order.
type SiteChatTopic struct {
	OrderID string
	UserID  string
}

func (t SiteChatTopic) String() string {
	return fmt.Sprintf(siteChatTopicFormat, t.OrderID, t.UserID)
}

func ParseSiteChatTopic(topic string) (SiteChatTopic, error) {
	m := siteChatTopicPattern.FindStringSubmatch(strings.TrimSpace(topic))
	if m == nil {
		return SiteChatTopic{}, fmt.Errorf("site chat topic %q: %w", topic, ErrMalformedTopic)
	}
	return SiteChatTopic{OrderID: m[1], UserID: m[2]}, nil
}

// IsSiteChatTopic is a cheap prefix check used to skip unrelated channels
// before full parsing.
func IsSiteChatTopic(topic string) bool {
	return strings.HasPrefix(strings.TrimSpace(topic), siteChatTopicPrefix)
}
