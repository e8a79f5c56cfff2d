package handler

import (
	"errors"
	"io"
	"net/http"

	"order-bridge/internal/config"
	"order-bridge/internal/dto"
	"order-bridge/internal/middleware"
	"order-bridge/internal/model"
	"order-bridge/internal/realtime"
	"order-bridge/internal/service"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/net/websocket"
	"golang.org/x/time/rate"
)

type ChatHandler struct {
	bridge service.BridgeService
	hub    *realtime.Hub
	cfg    config.Chat
	logger *zap.Logger
}

func NewChatHandler(bridge service.BridgeService, hub *realtime.Hub, cfg config.Chat, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		bridge: bridge,
		hub:    hub,
		cfg:    cfg,
		logger: logger,
	}
}

func (h *ChatHandler) ListMessages(c echo.Context) error {
	ctx := c.Request().Context()

	messages, err := h.bridge.Transcript(ctx, c.Param("id"), middleware.UserID(c))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, dto.NewMessages(messages))
}

// PostMessage is the plain HTTP fallback for clients without a websocket.
func (h *ChatHandler) PostMessage(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.ChatMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	msg, err := h.bridge.HandleWebMessage(ctx, service.WebMessage{
		OrderID:    c.Param("id"),
		UserID:     middleware.UserID(c),
		SenderName: req.SenderName,
		Text:       req.Text,
	})
	if err != nil {
		if errors.Is(err, service.ErrEmptyMessage) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return err
	}

	return c.JSON(http.StatusCreated, dto.NewMessage(msg))
}

// Room upgrades to a websocket joined to the order's room. Ownership is
// checked before the upgrade so a stranger gets a plain HTTP error.
func (h *ChatHandler) Room(c echo.Context) error {
	ctx := c.Request().Context()
	orderID := c.Param("id")
	userID := middleware.UserID(c)

	history, err := h.bridge.Transcript(ctx, orderID, userID)
	if err != nil {
		return err
	}

	websocket.Handler(func(ws *websocket.Conn) {
		defer ws.Close()

		p := realtime.NewWebsocketParticipant(ws)
		logger := h.logger.With(
			zap.String("order_id", orderID),
			zap.String("participant_id", p.ID()),
		)

		// join before sending history; clients drop duplicates by message id
		h.hub.Join(orderID, p)
		defer h.hub.Leave(orderID, p.ID())
		logger.Info("room joined", zap.Int("room_size", h.hub.RoomSize(orderID)))

		if err := p.Send(realtime.HistoryEvent(orderID, history)); err != nil {
			logger.Warn("send history failed", zap.Error(err))
			return
		}

		limiter := rate.NewLimiter(rate.Every(h.cfg.MessageInterval), h.cfg.Burst)
		for {
			var req dto.ChatMessageRequest
			if err := p.Receive(&req); err != nil {
				if !errors.Is(err, io.EOF) {
					logger.Debug("room read ended", zap.Error(err))
				}
				return
			}

			if !limiter.Allow() {
				h.sendError(logger, p, orderID, "Muitas mensagens. Aguarde um instante.")
				continue
			}

			_, err := h.bridge.HandleWebMessage(ws.Request().Context(), service.WebMessage{
				OrderID:    orderID,
				UserID:     userID,
				SenderName: req.SenderName,
				Text:       req.Text,
				SenderID:   p.ID(),
			})
			switch {
			case err == nil:
			case errors.Is(err, service.ErrEmptyMessage):
				h.sendError(logger, p, orderID, "Mensagem vazia.")
			case errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrUnauthorized):
				h.sendError(logger, p, orderID, "Pedido não encontrado.")
				return
			default:
				logger.Error("web message failed", zap.Error(err))
				h.sendError(logger, p, orderID, "Não foi possível enviar a mensagem.")
			}
		}
	}).ServeHTTP(c.Response(), c.Request())

	return nil
}

func (h *ChatHandler) sendError(logger *zap.Logger, p *realtime.WebsocketParticipant, orderID, text string) {
	if err := p.Send(realtime.ErrorEvent(orderID, text)); err != nil {
		logger.Debug("send error event failed", zap.Error(err))
	}
}
