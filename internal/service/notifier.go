package service

import (
	"context"
	"errors"

	"order-bridge/internal/client"
)

// Notifier delivers best-effort notices. Callers log failures and move on.
type Notifier interface {
	NotifyOperator(ctx context.Context, content string) error
	NotifyUser(ctx context.Context, userID, content string) error
}

type platformNotifierImpl struct {
	platform          client.Platform
	operatorChannelID string
}

func NewNotifier(platform client.Platform, operatorChannelID string) Notifier {
	return &platformNotifierImpl{
		platform:          platform,
		operatorChannelID: operatorChannelID,
	}
}

func (n *platformNotifierImpl) NotifyOperator(ctx context.Context, content string) error {
	if n.operatorChannelID == "" {
		return errors.New("operator channel is not configured")
	}
	return n.platform.SendMessage(ctx, n.operatorChannelID, content)
}

func (n *platformNotifierImpl) NotifyUser(ctx context.Context, userID, content string) error {
	return n.platform.SendDirectMessage(ctx, userID, content)
}
