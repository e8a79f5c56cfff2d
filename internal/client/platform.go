package client

import "context"

// Platform is the subset of the chat platform the service drives. Every call
// is fallible; callers decide which failures are best-effort.
type Platform interface {
	Channel(ctx context.Context, channelID string) (*Channel, error)
	CreateChannel(ctx context.Context, spec ChannelSpec) (*Channel, error)
	SendMessage(ctx context.Context, channelID, content string) error
	DeleteChannel(ctx context.Context, channelID string) error
	User(ctx context.Context, userID string) (*User, error)
	SendDirectMessage(ctx context.Context, userID, content string) error
	// SelfID is the bot's own user id, used to drop echoed messages.
	SelfID() string
}

type Channel struct {
	ID    string
	Name  string
	Topic string
}

type User struct {
	ID       string
	Username string
}

// ChannelSpec describes a private ticket channel: hidden from everyone except
// the listed members and roles.
type ChannelSpec struct {
	Name      string
	Topic     string
	ParentID  string
	MemberIDs []string
	RoleIDs   []string
}
