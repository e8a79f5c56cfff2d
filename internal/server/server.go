package server

import (
	"context"
	"errors"
	"net/http"

	"order-bridge/internal/handler"
	appmiddleware "order-bridge/internal/middleware"
	"order-bridge/internal/model"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

type Server struct {
	echo          *echo.Echo
	logger        *zap.Logger
	orderHandler  *handler.OrderHandler
	chatHandler   *handler.ChatHandler
	verifyHandler *handler.VerifyHandler
}

func NewServer(
	orderHandler *handler.OrderHandler,
	chatHandler *handler.ChatHandler,
	verifyHandler *handler.VerifyHandler,
	logger *zap.Logger,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURIPath:  true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("path", v.URIPath),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("remote_ip", v.RemoteIP),
			}
			if v.Error != nil {
				logger.Warn("request failed", append(fields, zap.Error(v.Error))...)
				return nil
			}
			logger.Info("request", fields...)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		echo:          e,
		logger:        logger,
		orderHandler:  orderHandler,
		chatHandler:   chatHandler,
		verifyHandler: verifyHandler,
	}
	e.HTTPErrorHandler = s.handleError

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.echo.Group("/api")

	api.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})

	api.GET("/products/:id", s.orderHandler.GetProduct)

	// -------- orders --------
	orders := api.Group("/orders", appmiddleware.AuthMiddleware())
	orders.POST("", s.orderHandler.CreateOrder)
	orders.GET("/:id", s.orderHandler.GetOrder)
	orders.POST("/:id/proof", s.orderHandler.SubmitProof)
	orders.GET("/:id/messages", s.chatHandler.ListMessages)
	orders.POST("/:id/messages", s.chatHandler.PostMessage)

	// -------- chat room --------
	s.echo.GET("/ws/orders/:id", s.chatHandler.Room, appmiddleware.AuthMiddleware())

	// -------- operator verification links --------
	s.echo.GET("/verify/:tokenId", s.verifyHandler.Page)
	s.echo.POST("/verify/action/:tokenId", s.verifyHandler.Apply)
}

// handleError maps domain errors onto status codes before falling back to
// echo's default handler.
func (s *Server) handleError(err error, c echo.Context) {
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		switch {
		case errors.Is(err, model.ErrNotFound):
			he = echo.NewHTTPError(http.StatusNotFound, "not found")
		case errors.Is(err, model.ErrUnauthorized):
			he = echo.NewHTTPError(http.StatusForbidden, "order belongs to another user")
		case errors.Is(err, model.ErrInvalidTransition):
			he = echo.NewHTTPError(http.StatusConflict, err.Error())
		case errors.Is(err, model.ErrOutOfStock):
			he = echo.NewHTTPError(http.StatusConflict, "product out of stock")
		case errors.Is(err, model.ErrTransport):
			he = echo.NewHTTPError(http.StatusBadGateway, "messaging platform unavailable")
		default:
			s.logger.Error("unhandled request error", zap.String("path", c.Request().URL.Path), zap.Error(err))
			he = echo.NewHTTPError(http.StatusInternalServerError, "internal error")
		}
		he.Internal = err
	}

	s.echo.DefaultHTTPErrorHandler(he, c)
}

// Handler exposes the router for httptest.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
