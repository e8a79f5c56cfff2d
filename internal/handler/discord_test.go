package handler

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"order-bridge/internal/client"
	"order-bridge/internal/model"
	"order-bridge/internal/service"
	"order-bridge/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type stubBridge struct {
	service.BridgeService
	got []service.PlatformMessage
	err error
}

func (b *stubBridge) HandlePlatformMessage(ctx context.Context, msg service.PlatformMessage) (*model.OrderMessage, error) {
	b.got = append(b.got, msg)
	if b.err != nil {
		return nil, b.err
	}
	return &model.OrderMessage{Author: model.AuthorStaff, Content: msg.Content}, nil
}

type stubVerification struct {
	service.VerificationService
	receipts []string
	err      error
}

func (v *stubVerification) RequestTicketProofReview(ctx context.Context, channelID, userID, attachmentURL string) (string, error) {
	v.receipts = append(v.receipts, fmt.Sprintf("%s/%s/%s", channelID, userID, attachmentURL))
	return "tok", v.err
}

type stubChannels struct {
	service.ChannelService
	err error
}

func (c *stubChannels) OpenPaymentChannel(ctx context.Context, userID, productID string) (*client.Channel, error) {
	if c.err != nil {
		return nil, c.err
	}
	return &client.Channel{ID: "chan-pay"}, nil
}

func newDiscordHandler(t *testing.T) (*DiscordHandler, *testutil.FakePlatform, *stubBridge, *stubVerification, *stubChannels) {
	platform := testutil.NewFakePlatform()
	bridge := &stubBridge{}
	verification := &stubVerification{}
	channels := &stubChannels{}
	h := NewDiscordHandler(platform, bridge, channels, verification, zaptest.NewLogger(t))
	return h, platform, bridge, verification, channels
}

func TestHandleMessageRelaysSiteChat(t *testing.T) {
	h, platform, bridge, verification, _ := newDiscordHandler(t)
	topic := model.SiteChatTopic{OrderID: "o1", UserID: "u1"}.String()
	platform.AddChannel(client.Channel{ID: "c1", Topic: topic})

	err := h.HandleMessage(context.Background(), IncomingMessage{ChannelID: "c1", AuthorID: "staff", AuthorName: "Bia", Content: "oi"})
	require.NoError(t, err)
	require.Len(t, bridge.got, 1)
	assert.Equal(t, topic, bridge.got[0].Topic)
	assert.Equal(t, "staff", bridge.got[0].AuthorID)
	assert.Empty(t, verification.receipts)

	bridge.err = fmt.Errorf("wrapped: %w", service.ErrNotBridged)
	assert.NoError(t, h.HandleMessage(context.Background(), IncomingMessage{ChannelID: "c1", AuthorID: "staff", Content: "oi"}))
}

func TestHandleMessageIgnoresOwnMessages(t *testing.T) {
	h, platform, bridge, _, _ := newDiscordHandler(t)
	platform.AddChannel(client.Channel{ID: "c1", Topic: model.SiteChatTopic{OrderID: "o1", UserID: "u1"}.String()})

	require.NoError(t, h.HandleMessage(context.Background(), IncomingMessage{ChannelID: "c1", AuthorID: testutil.FakeBotID, Content: "eco"}))
	assert.Empty(t, bridge.got)
}

func TestHandleMessageReceiptInTicket(t *testing.T) {
	h, platform, bridge, verification, _ := newDiscordHandler(t)
	topic := model.PaymentTopic{TicketID: "t1", UserID: "u1", ProductID: "vip_30d"}.String()
	platform.AddChannel(client.Channel{ID: "pay", Topic: topic})
	platform.AddChannel(client.Channel{ID: "general", Topic: "bem-vindos"})

	ctx := context.Background()

	require.NoError(t, h.HandleMessage(ctx, IncomingMessage{ChannelID: "pay", AuthorID: "u1", Content: "segue"}))
	assert.Empty(t, verification.receipts, "text without attachment is ignored")

	require.NoError(t, h.HandleMessage(ctx, IncomingMessage{ChannelID: "general", AuthorID: "u1", AttachmentURLs: []string{"https://cdn.test/a.png"}}))
	assert.Empty(t, verification.receipts)

	require.NoError(t, h.HandleMessage(ctx, IncomingMessage{ChannelID: "pay", AuthorID: "u1", AttachmentURLs: []string{"https://cdn.test/a.png", "https://cdn.test/b.png"}}))
	assert.Equal(t, []string{"pay/u1/https://cdn.test/a.png"}, verification.receipts)
	assert.Len(t, platform.MessagesIn("pay"), 1)
	assert.Empty(t, bridge.got)

	verification.err = fmt.Errorf("ticket t1: %w", model.ErrUnauthorized)
	require.NoError(t, h.HandleMessage(ctx, IncomingMessage{ChannelID: "pay", AuthorID: "staff", AttachmentURLs: []string{"https://cdn.test/c.png"}}))
	assert.Len(t, platform.MessagesIn("pay"), 1)
}

func TestHandleMessageUnknownChannel(t *testing.T) {
	h, _, _, _, _ := newDiscordHandler(t)

	err := h.HandleMessage(context.Background(), IncomingMessage{ChannelID: "gone", AuthorID: "u1", Content: "oi"})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestHandleButton(t *testing.T) {
	tests := []struct {
		name      string
		customID  string
		openErr   error
		wantOK    bool
		wantReply string
	}{
		{name: "foreign component", customID: "poll:yes", wantOK: false},
		{name: "opens ticket", customID: "buy:vip_30d", wantOK: true, wantReply: "<#chan-pay>"},
		{name: "sold out", customID: "buy:founder_pack", openErr: model.ErrOutOfStock, wantOK: true, wantReply: "esgotado"},
		{name: "unknown product", customID: "buy:nope", openErr: model.ErrNotFound, wantOK: true, wantReply: "não encontrado"},
		{name: "platform down", customID: "buy:vip_30d", openErr: errors.New("gateway timeout"), wantOK: true, wantReply: "Não foi possível"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, _, _, channels := newDiscordHandler(t)
			channels.err = tt.openErr

			reply, ok := h.HandleButton(context.Background(), "u1", tt.customID)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantReply != "" {
				assert.Contains(t, reply, tt.wantReply)
			}
		})
	}
}
