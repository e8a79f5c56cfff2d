package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"order-bridge/internal/config"
	"order-bridge/internal/model"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	// what a ticket participant may do inside a private channel
	ticketMemberPermissions = discordgo.PermissionViewChannel |
		discordgo.PermissionSendMessages |
		discordgo.PermissionReadMessageHistory |
		discordgo.PermissionAttachFiles
)

type DiscordClient struct {
	session *discordgo.Session
	guildID string
	logger  *zap.Logger
}

var _ Platform = (*DiscordClient)(nil)

func NewDiscordClient(cfg config.Discord, logger *zap.Logger) (*DiscordClient, error) {
	if cfg.Token == "" {
		return nil, errors.New("discord: token is required")
	}
	if cfg.GuildID == "" {
		return nil, errors.New("discord: guild id is required")
	}

	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentGuilds |
		discordgo.IntentGuildMessages |
		discordgo.IntentMessageContent

	return &DiscordClient{
		session: session,
		guildID: cfg.GuildID,
		logger:  logger,
	}, nil
}

// Session exposes the gateway session so event handlers can be registered
// before Open.
func (c *DiscordClient) Session() *discordgo.Session {
	return c.session
}

func (c *DiscordClient) Open() error {
	if err := c.session.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}
	c.logger.Info("discord gateway connected", zap.String("self_id", c.SelfID()))
	return nil
}

func (c *DiscordClient) Close() error {
	return c.session.Close()
}

func (c *DiscordClient) SelfID() string {
	if c.session.State == nil || c.session.State.User == nil {
		return ""
	}
	return c.session.State.User.ID
}

// Channel reads the gateway cache first; ticket topics never change after
// creation, so a cached copy is as good as a fresh one.
func (c *DiscordClient) Channel(ctx context.Context, channelID string) (*Channel, error) {
	if c.session.State != nil {
		if ch, err := c.session.State.Channel(channelID); err == nil {
			return toChannel(ch), nil
		}
	}

	ch, err := c.session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrapDiscordErr("fetch channel", err)
	}
	return toChannel(ch), nil
}

func (c *DiscordClient) CreateChannel(ctx context.Context, spec ChannelSpec) (*Channel, error) {
	overwrites := []*discordgo.PermissionOverwrite{
		{
			// the @everyone role shares the guild id
			ID:   c.guildID,
			Type: discordgo.PermissionOverwriteTypeRole,
			Deny: discordgo.PermissionViewChannel,
		},
	}
	for _, id := range spec.MemberIDs {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID:    id,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: ticketMemberPermissions,
		})
	}
	for _, id := range spec.RoleIDs {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID:    id,
			Type:  discordgo.PermissionOverwriteTypeRole,
			Allow: ticketMemberPermissions,
		})
	}

	ch, err := c.session.GuildChannelCreateComplex(c.guildID, discordgo.GuildChannelCreateData{
		Name:                 spec.Name,
		Type:                 discordgo.ChannelTypeGuildText,
		Topic:                spec.Topic,
		ParentID:             spec.ParentID,
		PermissionOverwrites: overwrites,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrapDiscordErr("create channel", err)
	}
	return toChannel(ch), nil
}

func (c *DiscordClient) SendMessage(ctx context.Context, channelID, content string) error {
	if _, err := c.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx)); err != nil {
		return wrapDiscordErr("send message", err)
	}
	return nil
}

func (c *DiscordClient) DeleteChannel(ctx context.Context, channelID string) error {
	if _, err := c.session.ChannelDelete(channelID, discordgo.WithContext(ctx)); err != nil {
		return wrapDiscordErr("delete channel", err)
	}
	return nil
}

func (c *DiscordClient) User(ctx context.Context, userID string) (*User, error) {
	u, err := c.session.User(userID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrapDiscordErr("fetch user", err)
	}
	return &User{ID: u.ID, Username: u.Username}, nil
}

func (c *DiscordClient) SendDirectMessage(ctx context.Context, userID, content string) error {
	dm, err := c.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return wrapDiscordErr("open dm channel", err)
	}
	return c.SendMessage(ctx, dm.ID, content)
}

func toChannel(ch *discordgo.Channel) *Channel {
	return &Channel{ID: ch.ID, Name: ch.Name, Topic: ch.Topic}
}

// wrapDiscordErr tags every failure as a transport failure and, when the
// platform answered 404, as not found too.
func wrapDiscordErr(op string, err error) error {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound {
		return fmt.Errorf("discord %s: %w: %w: %w", op, model.ErrTransport, model.ErrNotFound, err)
	}
	return fmt.Errorf("discord %s: %w: %w", op, model.ErrTransport, err)
}
