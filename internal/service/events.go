package service

import "order-bridge/internal/event"

// Subscribe attaches the services to the order events. Handlers for one kind
// run in the order listed here.
func Subscribe(bus *event.Bus, channels ChannelService, bridge BridgeService, verification VerificationService) {
	bus.Subscribe(event.KindProofSubmitted, "verification.proof_review", verification.HandleProofSubmitted)

	bus.Subscribe(event.KindOrderApproved, "channel.open_chat", channels.HandleOrderApproved)
	bus.Subscribe(event.KindOrderDeclined, "channel.notify_declined", channels.HandleOrderDeclined)

	// the system message lands while the chat channel is still bound
	bus.Subscribe(event.KindOrderDelivered, "bridge.delivered_message", bridge.HandleOrderDelivered)
	bus.Subscribe(event.KindOrderDelivered, "channel.close_chat", channels.HandleOrderDelivered)
}
