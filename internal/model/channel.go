package model

type ChannelKind string

const (
	ChannelKindNone     ChannelKind = "none"
	ChannelKindPayment  ChannelKind = "payment"
	ChannelKindDelivery ChannelKind = "delivery"
	ChannelKindChat     ChannelKind = "chat"
)

// ChannelBinding is the platform channel currently associated with an order
// or ticket. At most one channel is bound at a time.
type ChannelBinding struct {
	Kind ChannelKind
	ID   string
}

func NoChannel() ChannelBinding {
	return ChannelBinding{Kind: ChannelKindNone}
}

func PaymentChannel(id string) ChannelBinding {
	return ChannelBinding{Kind: ChannelKindPayment, ID: id}
}

func DeliveryChannel(id string) ChannelBinding {
	return ChannelBinding{Kind: ChannelKindDelivery, ID: id}
}

func ChatChannel(id string) ChannelBinding {
	return ChannelBinding{Kind: ChannelKindChat, ID: id}
}

func (b ChannelBinding) IsNone() bool {
	return b.Kind == ChannelKindNone
}

// ChatChannelID returns the bound channel id only when it is a chat channel.
func (b ChannelBinding) ChatChannelID() (string, bool) {
	if b.Kind != ChannelKindChat {
		return "", false
	}
	return b.ID, true
}

// a binding without an id, or with an unknown kind, is no binding at all
func (b ChannelBinding) normalize() ChannelBinding {
	switch b.Kind {
	case ChannelKindPayment, ChannelKindDelivery, ChannelKindChat:
		if b.ID != "" {
			return b
		}
	}
	return NoChannel()
}
