// Package event carries order domain events from the state machine to the
// components that react to them (channel lifecycle, transcript bridge,
// verification dispatcher, external sinks).
package event

import (
	"order-bridge/internal/model"
)

type Kind string

const (
	KindProofSubmitted  Kind = "order.proof_submitted"
	KindOrderApproved   Kind = "order.approved"
	KindOrderDeclined   Kind = "order.declined"
	KindOrderDelivered  Kind = "order.delivered"
	KindMessageAppended Kind = "order.message_appended"
)

type Event interface {
	Kind() Kind
	OrderID() string
}

// ProofSubmitted: analise -> pending_approval.
type ProofSubmitted struct {
	Order model.Order
}

func (ProofSubmitted) Kind() Kind        { return KindProofSubmitted }
func (e ProofSubmitted) OrderID() string { return e.Order.ID }

// OrderApproved: pending_approval -> approved.
type OrderApproved struct {
	Order model.Order
}

func (OrderApproved) Kind() Kind        { return KindOrderApproved }
func (e OrderApproved) OrderID() string { return e.Order.ID }

// OrderDeclined: pending_approval -> declined.
type OrderDeclined struct {
	Order model.Order
}

func (OrderDeclined) Kind() Kind        { return KindOrderDeclined }
func (e OrderDeclined) OrderID() string { return e.Order.ID }

// OrderDelivered: approved -> entregue. Order still carries the channel
// binding it had before delivery.
type OrderDelivered struct {
	Order model.Order
}

func (OrderDelivered) Kind() Kind        { return KindOrderDelivered }
func (e OrderDelivered) OrderID() string { return e.Order.ID }

type MessageAppended struct {
	Order   string
	Message model.OrderMessage
}

func (MessageAppended) Kind() Kind        { return KindMessageAppended }
func (e MessageAppended) OrderID() string { return e.Order }
