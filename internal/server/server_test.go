package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"order-bridge/internal/client"
	"order-bridge/internal/config"
	"order-bridge/internal/dto"
	"order-bridge/internal/event"
	"order-bridge/internal/handler"
	"order-bridge/internal/realtime"
	"order-bridge/internal/repository"
	"order-bridge/internal/server"
	"order-bridge/internal/service"
	"order-bridge/internal/testutil"
	"order-bridge/internal/token"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"golang.org/x/net/websocket"
)

const operatorChannelID = "ops"

type serverSuite struct {
	suite.Suite

	platform *testutil.FakePlatform
	tokens   *token.Store
	channels service.ChannelService
	srv      *server.Server
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(serverSuite))
}

func (suite *serverSuite) SetupTest() {
	t := suite.T()
	logger := zap.NewNop()

	db := testutil.NewDB(t)
	orderRepo := repository.NewOrderRepository(db)
	productRepo := repository.NewProductRepository(db)
	suite.Require().NoError(productRepo.Seed(context.Background()))

	suite.platform = testutil.NewFakePlatform()
	suite.platform.AddChannel(client.Channel{ID: operatorChannelID, Name: "verificacoes"})
	suite.tokens = token.New(time.Hour)

	bus := event.NewBus(logger)
	hub := realtime.NewHub(logger)
	notifier := service.NewNotifier(suite.platform, operatorChannelID)

	orders := service.NewOrderService(orderRepo, productRepo, bus, logger)
	suite.channels = service.NewChannelService(suite.platform, notifier, orderRepo, productRepo, service.ChannelOptions{
		DeleteDelay: time.Millisecond,
	}, logger)
	bridge := service.NewBridgeService(orderRepo, suite.platform, hub, bus, logger)
	verification := service.NewVerificationService(suite.tokens, notifier, orders, suite.channels, func(id string) string {
		return "http://orders.test/verify/" + id
	}, logger)
	service.Subscribe(bus, suite.channels, bridge, verification)

	suite.srv = server.NewServer(
		handler.NewOrderHandler(orders),
		handler.NewChatHandler(bridge, hub, config.Chat{MessageInterval: time.Millisecond, Burst: 10}, logger),
		handler.NewVerifyHandler(verification),
		logger,
	)
}

func (suite *serverSuite) TearDownTest() {
	suite.channels.Close()
	suite.tokens.Close()
}

func (suite *serverSuite) do(method, target, userID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}
	rec := httptest.NewRecorder()
	suite.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (suite *serverSuite) createOrder(userID string) dto.Order {
	rec := suite.do(http.MethodPost, "/api/orders", userID, `{"productId":"vip_30d"}`)
	suite.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	var order dto.Order
	suite.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &order))
	return order
}

func (suite *serverSuite) lastVerifyToken() string {
	msgs := suite.platform.MessagesIn(operatorChannelID)
	suite.Require().NotEmpty(msgs)
	last := msgs[len(msgs)-1]
	idx := strings.LastIndex(last, "/verify/")
	suite.Require().GreaterOrEqual(idx, 0)
	return strings.TrimSpace(last[idx+len("/verify/"):])
}

func (suite *serverSuite) TestHealth() {
	rec := suite.do(http.MethodGet, "/api/health", "", "")
	assert.Equal(suite.T(), http.StatusOK, rec.Code)
}

func (suite *serverSuite) TestGetProduct() {
	t := suite.T()

	rec := suite.do(http.MethodGet, "/api/products/vip_30d", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var product dto.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &product))
	assert.Equal(t, "19.90", product.Price)
	assert.True(t, product.InStock)

	rec = suite.do(http.MethodGet, "/api/products/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func (suite *serverSuite) TestOrderEndpoints() {
	t := suite.T()

	rec := suite.do(http.MethodPost, "/api/orders", "", `{"productId":"vip_30d"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = suite.do(http.MethodPost, "/api/orders", "1", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	order := suite.createOrder("1")
	assert.Equal(t, "analise", string(order.Status))
	assert.False(t, order.ChatEnabled)

	rec = suite.do(http.MethodGet, "/api/orders/"+order.ID, "2", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = suite.do(http.MethodGet, "/api/orders/missing", "1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = suite.do(http.MethodPost, "/api/orders/"+order.ID+"/proof", "1", `{"receiptUrl":"https://cdn.test/r.png"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = suite.do(http.MethodPost, "/api/orders/"+order.ID+"/proof", "1", `{"receiptUrl":"https://cdn.test/r.png"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = suite.do(http.MethodGet, "/api/orders/"+order.ID, "1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got dto.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "pending_approval", string(got.Status))
}

func (suite *serverSuite) TestVerificationPages() {
	t := suite.T()

	order := suite.createOrder("1")
	rec := suite.do(http.MethodPost, "/api/orders/"+order.ID+"/proof", "1", `{"receiptUrl":"https://cdn.test/r.png"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	tokenID := suite.lastVerifyToken()

	rec = suite.do(http.MethodGet, "/verify/"+tokenID, "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Aprovar")
	assert.Contains(t, rec.Body.String(), "https://cdn.test/r.png")

	form := url.Values{"action": {"approve"}}.Encode()
	post := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/verify/action/"+tokenID, strings.NewReader(form))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		suite.srv.Handler().ServeHTTP(rec, req)
		return rec
	}

	rec = post()
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Pagamento aprovado")

	rec = post()
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Link inválido ou expirado")

	deliverID := suite.lastVerifyToken()
	rec = suite.do(http.MethodGet, "/verify/"+deliverID, "", "")
	assert.Contains(t, rec.Body.String(), "Confirmar entrega")

	rec = suite.do(http.MethodPost, "/verify/action/"+deliverID, "", `{"action":"deliver"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Entrega confirmada")

	rec = suite.do(http.MethodGet, "/verify/does-not-exist", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Link inválido ou expirado")
}

func (suite *serverSuite) TestMessagesEndpoints() {
	t := suite.T()

	order := suite.createOrder("1")

	rec := suite.do(http.MethodPost, "/api/orders/"+order.ID+"/messages", "1", `{"text":"oi","senderName":"Ana"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = suite.do(http.MethodPost, "/api/orders/"+order.ID+"/messages", "1", `{"text":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = suite.do(http.MethodGet, "/api/orders/"+order.ID+"/messages", "2", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = suite.do(http.MethodGet, "/api/orders/"+order.ID+"/messages", "1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var messages []dto.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &messages))
	require.Len(t, messages, 1)
	assert.Equal(t, "oi", messages[0].Content)
	assert.Equal(t, "user", string(messages[0].Author))
}

func (suite *serverSuite) TestWebsocketRoom() {
	t := suite.T()

	order := suite.createOrder("1")
	rec := suite.do(http.MethodPost, "/api/orders/"+order.ID+"/messages", "1", `{"text":"primeira"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	ts := httptest.NewServer(suite.srv.Handler())
	defer ts.Close()

	dial := func(userID string) *websocket.Conn {
		wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/orders/" + order.ID + "?userId=" + userID
		conn, err := websocket.Dial(wsURL, "", ts.URL)
		require.NoError(t, err)
		return conn
	}

	_, err := websocket.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws/orders/"+order.ID+"?userId=2", "", ts.URL)
	assert.Error(t, err, "a stranger must not be upgraded")

	sender := dial("1")
	defer sender.Close()
	other := dial("1")
	defer other.Close()

	for _, conn := range []*websocket.Conn{sender, other} {
		var history realtime.Event
		require.NoError(t, websocket.JSON.Receive(conn, &history))
		assert.Equal(t, realtime.EventHistory, history.Type)
		require.Len(t, history.Messages, 1)
		assert.Equal(t, "primeira", history.Messages[0].Content)
	}

	require.NoError(t, websocket.JSON.Send(sender, dto.ChatMessageRequest{Text: "segunda", SenderName: "Ana"}))

	require.NoError(t, other.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev realtime.Event
	require.NoError(t, websocket.JSON.Receive(other, &ev))
	assert.Equal(t, realtime.EventMessage, ev.Type)
	assert.Equal(t, "segunda", ev.Message.Content)
}
