package testutil

import (
	"context"
	"fmt"
	"sync"
	"unicode/utf8"

	"order-bridge/internal/client"
	"order-bridge/internal/model"
)

const FakeBotID = "bot-1"

// maxMessageRunes mirrors the platform's message length cap.
const maxMessageRunes = 2000

// FakePlatform is an in-memory client.Platform. Channel ids are chan-1,
// chan-2, ... in creation order.
type FakePlatform struct {
	mu       sync.Mutex
	seq      int
	channels map[string]*client.Channel
	specs    map[string]client.ChannelSpec
	messages map[string][]string
	dms      map[string][]string
	deleted  []string
}

func NewFakePlatform() *FakePlatform {
	return &FakePlatform{
		channels: make(map[string]*client.Channel),
		specs:    make(map[string]client.ChannelSpec),
		messages: make(map[string][]string),
		dms:      make(map[string][]string),
	}
}

func notFound(what, id string) error {
	return fmt.Errorf("%s %s: %w: %w", what, id, model.ErrTransport, model.ErrNotFound)
}

func (p *FakePlatform) Channel(ctx context.Context, channelID string) (*client.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, ok := p.channels[channelID]
	if !ok {
		return nil, notFound("channel", channelID)
	}
	cp := *ch
	return &cp, nil
}

func (p *FakePlatform) CreateChannel(ctx context.Context, spec client.ChannelSpec) (*client.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.seq++
	ch := &client.Channel{ID: fmt.Sprintf("chan-%d", p.seq), Name: spec.Name, Topic: spec.Topic}
	p.channels[ch.ID] = ch
	p.specs[ch.ID] = spec
	cp := *ch
	return &cp, nil
}

func (p *FakePlatform) SendMessage(ctx context.Context, channelID, content string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.channels[channelID]; !ok {
		return notFound("channel", channelID)
	}
	if n := utf8.RuneCountInString(content); n > maxMessageRunes {
		return fmt.Errorf("message to %s has %d characters: %w", channelID, n, model.ErrTransport)
	}
	p.messages[channelID] = append(p.messages[channelID], content)
	return nil
}

func (p *FakePlatform) DeleteChannel(ctx context.Context, channelID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.channels[channelID]; !ok {
		return notFound("channel", channelID)
	}
	delete(p.channels, channelID)
	p.deleted = append(p.deleted, channelID)
	return nil
}

func (p *FakePlatform) User(ctx context.Context, userID string) (*client.User, error) {
	return &client.User{ID: userID, Username: "User_" + userID}, nil
}

func (p *FakePlatform) SendDirectMessage(ctx context.Context, userID, content string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dms[userID] = append(p.dms[userID], content)
	return nil
}

func (p *FakePlatform) SelfID() string {
	return FakeBotID
}

// DropChannel removes a channel without going through DeleteChannel, as a
// moderator deleting it by hand would.
func (p *FakePlatform) DropChannel(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.channels, id)
}

func (p *FakePlatform) ChannelByID(id string) (client.Channel, client.ChannelSpec, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.channels[id]
	if !ok {
		return client.Channel{}, client.ChannelSpec{}, false
	}
	return *ch, p.specs[id], true
}

func (p *FakePlatform) CreatedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seq
}

func (p *FakePlatform) WasDeleted(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, d := range p.deleted {
		if d == id {
			return true
		}
	}
	return false
}

func (p *FakePlatform) MessagesIn(id string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.messages[id]...)
}

func (p *FakePlatform) DMsTo(userID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.dms[userID]...)
}

// AddChannel registers a pre-existing channel, such as the operator channel.
func (p *FakePlatform) AddChannel(ch client.Channel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels[ch.ID] = &ch
}
