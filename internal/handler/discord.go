package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"order-bridge/internal/client"
	"order-bridge/internal/model"
	"order-bridge/internal/service"

	"github.com/bwmarrin/discordgo"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	discordEventTimeout = 15 * time.Second
	buyButtonPrefix     = "buy:"
)

// IncomingMessage is the part of a gateway message the handlers act on.
type IncomingMessage struct {
	ChannelID      string
	AuthorID       string
	AuthorName     string
	Content        string
	AttachmentURLs []string
}

// DiscordHandler reacts to gateway events: chat relay from site order
// channels, receipts posted in ticket payment channels and the buy button.
type DiscordHandler struct {
	platform            client.Platform
	bridgeService       service.BridgeService
	channelService      service.ChannelService
	verificationService service.VerificationService
	logger              *zap.Logger
}

func NewDiscordHandler(
	platform client.Platform,
	bridgeService service.BridgeService,
	channelService service.ChannelService,
	verificationService service.VerificationService,
	logger *zap.Logger,
) *DiscordHandler {
	return &DiscordHandler{
		platform:            platform,
		bridgeService:       bridgeService,
		channelService:      channelService,
		verificationService: verificationService,
		logger:              logger,
	}
}

// MessageCreate is registered with discordgo.Session.AddHandler.
func (h *DiscordHandler) MessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.GuildID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), discordEventTimeout)
	defer cancel()

	in := IncomingMessage{
		ChannelID:  m.ChannelID,
		AuthorID:   m.Author.ID,
		AuthorName: m.Author.Username,
		Content:    m.Content,
		AttachmentURLs: lo.Map(m.Attachments, func(a *discordgo.MessageAttachment, _ int) string {
			return a.URL
		}),
	}
	if err := h.HandleMessage(ctx, in); err != nil {
		h.logger.Error("discord message handling failed",
			zap.String("channel_id", m.ChannelID),
			zap.String("author_id", m.Author.ID),
			zap.Error(err),
		)
	}
}

// InteractionCreate is registered with discordgo.Session.AddHandler.
func (h *DiscordHandler) InteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionMessageComponent {
		return
	}

	var userID string
	switch {
	case i.Member != nil && i.Member.User != nil:
		userID = i.Member.User.ID
	case i.User != nil:
		userID = i.User.ID
	default:
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), discordEventTimeout)
	defer cancel()

	reply, ok := h.HandleButton(ctx, userID, i.MessageComponentData().CustomID)
	if !ok {
		return
	}

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: reply,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	}, discordgo.WithContext(ctx))
	if err != nil {
		h.logger.Warn("interaction response failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (h *DiscordHandler) HandleMessage(ctx context.Context, in IncomingMessage) error {
	if in.AuthorID == h.platform.SelfID() {
		return nil
	}

	ch, err := h.platform.Channel(ctx, in.ChannelID)
	if err != nil {
		return err
	}

	if model.IsSiteChatTopic(ch.Topic) {
		_, err := h.bridgeService.HandlePlatformMessage(ctx, service.PlatformMessage{
			ChannelID:  ch.ID,
			Topic:      ch.Topic,
			AuthorID:   in.AuthorID,
			AuthorName: in.AuthorName,
			Content:    in.Content,
		})
		if errors.Is(err, service.ErrNotBridged) || errors.Is(err, service.ErrEmptyMessage) {
			return nil
		}
		return err
	}

	if len(in.AttachmentURLs) == 0 {
		return nil
	}
	if _, err := model.ParsePaymentTopic(ch.Topic); err != nil {
		// not a ticket channel
		return nil
	}

	_, err = h.verificationService.RequestTicketProofReview(ctx, ch.ID, in.AuthorID, in.AttachmentURLs[0])
	if err != nil {
		if errors.Is(err, model.ErrUnauthorized) {
			// staff attaching files in someone else's ticket
			return nil
		}
		return err
	}

	if err := h.platform.SendMessage(ctx, ch.ID, "📨 Comprovante recebido! Aguarde a análise da equipe."); err != nil {
		h.logger.Warn("receipt acknowledgement failed", zap.String("channel_id", ch.ID), zap.Error(err))
	}
	return nil
}

// HandleButton returns the ephemeral reply for a component click; ok is
// false for components this service does not own.
func (h *DiscordHandler) HandleButton(ctx context.Context, userID, customID string) (reply string, ok bool) {
	productID, found := strings.CutPrefix(customID, buyButtonPrefix)
	if !found {
		return "", false
	}

	ch, err := h.channelService.OpenPaymentChannel(ctx, userID, productID)
	switch {
	case err == nil:
		return fmt.Sprintf("🧾 Seu canal de pagamento foi criado: <#%s>", ch.ID), true
	case errors.Is(err, model.ErrOutOfStock):
		return "❌ Produto esgotado.", true
	case errors.Is(err, model.ErrNotFound):
		return "❌ Produto não encontrado.", true
	default:
		h.logger.Error("open payment channel failed",
			zap.String("user_id", userID),
			zap.String("product_id", productID),
			zap.Error(err),
		)
		return "❌ Não foi possível abrir o ticket. Tente novamente mais tarde.", true
	}
}
