package service_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"order-bridge/internal/event"
	"order-bridge/internal/model"
	"order-bridge/internal/realtime"
	"order-bridge/internal/repository"
	"order-bridge/internal/service"
	"order-bridge/internal/testutil"
	"order-bridge/internal/token"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

const (
	adminRoleID = "role-admin"
	categoryID  = "category-tickets"
	verifyBase  = "http://orders.test/verify/"
)

type fakeNotifier struct {
	platform *testutil.FakePlatform

	mu          sync.Mutex
	operator    []string
	operatorErr error
}

func (n *fakeNotifier) NotifyOperator(ctx context.Context, content string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.operator = append(n.operator, content)
	return n.operatorErr
}

func (n *fakeNotifier) NotifyUser(ctx context.Context, userID, content string) error {
	return n.platform.SendDirectMessage(ctx, userID, content)
}

func (n *fakeNotifier) failOperator(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.operatorErr = err
}

// lastTokenID extracts the token from the newest operator notification.
func (n *fakeNotifier) lastTokenID(t *testing.T) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()

	require.NotEmpty(t, n.operator, "no operator notification sent")
	last := n.operator[len(n.operator)-1]
	idx := strings.LastIndex(last, verifyBase)
	require.GreaterOrEqual(t, idx, 0, "notification has no verify link: %s", last)
	return strings.TrimSpace(last[idx+len(verifyBase):])
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.operator)
}

type fakeParticipant struct {
	id string

	mu     sync.Mutex
	events []realtime.Event
}

func (p *fakeParticipant) ID() string { return p.id }

func (p *fakeParticipant) Send(ev realtime.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *fakeParticipant) received() []realtime.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]realtime.Event(nil), p.events...)
}

type testEnv struct {
	db          *gorm.DB
	orderRepo   repository.OrderRepository
	productRepo repository.ProductRepository
	tokens      *token.Store
	platform    *testutil.FakePlatform
	notifier    *fakeNotifier
	hub         *realtime.Hub
	logs        *observer.ObservedLogs

	orders       service.OrderService
	channels     service.ChannelService
	bridge       service.BridgeService
	verification service.VerificationService
}

// newTestEnv wires the services the way cmd/api does, over sqlite and a fake
// platform.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithDelay(t, 10*time.Millisecond)
}

// newTestEnvWithDelay is newTestEnv with a custom channel delete delay.
func newTestEnvWithDelay(t *testing.T, deleteDelay time.Duration) *testEnv {
	t.Helper()

	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	db := testutil.NewDB(t)
	env := &testEnv{
		db:          db,
		orderRepo:   repository.NewOrderRepository(db),
		productRepo: repository.NewProductRepository(db),
		tokens:      token.New(time.Hour),
		platform:    testutil.NewFakePlatform(),
		hub:         realtime.NewHub(logger),
		logs:        logs,
	}
	env.notifier = &fakeNotifier{platform: env.platform}
	require.NoError(t, env.productRepo.Seed(context.Background()))

	bus := event.NewBus(logger)
	env.orders = service.NewOrderService(env.orderRepo, env.productRepo, bus, logger)
	env.channels = service.NewChannelService(env.platform, env.notifier, env.orderRepo, env.productRepo, service.ChannelOptions{
		AdminRoleID:      adminRoleID,
		TicketCategoryID: categoryID,
		DeleteDelay:      deleteDelay,
	}, logger)
	env.bridge = service.NewBridgeService(env.orderRepo, env.platform, env.hub, bus, logger)
	env.verification = service.NewVerificationService(env.tokens, env.notifier, env.orders, env.channels, func(id string) string {
		return verifyBase + id
	}, logger)
	service.Subscribe(bus, env.channels, env.bridge, env.verification)

	t.Cleanup(func() {
		env.channels.Close()
		env.tokens.Close()
	})
	return env
}

// approvedOrder drives a fresh order through proof review and approval.
func (e *testEnv) approvedOrder(t *testing.T, userID string) *model.Order {
	t.Helper()
	ctx := context.Background()

	order, err := e.orders.CreateOrder(ctx, userID, "vip_30d")
	require.NoError(t, err)
	_, err = e.orders.SubmitProof(ctx, order.ID, userID, "https://cdn.test/receipt.png")
	require.NoError(t, err)

	res := e.verification.Apply(ctx, e.notifier.lastTokenID(t), "approve")
	require.True(t, res.Success, res.Title)

	order, err = e.orderRepo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	return order
}
