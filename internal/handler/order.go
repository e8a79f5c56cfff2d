package handler

import (
	"net/http"

	"order-bridge/internal/dto"
	"order-bridge/internal/middleware"
	"order-bridge/internal/service"

	"github.com/labstack/echo/v4"
)

type OrderHandler struct {
	orderService service.OrderService
}

func NewOrderHandler(orderService service.OrderService) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
	}
}

func (h *OrderHandler) GetProduct(c echo.Context) error {
	ctx := c.Request().Context()

	product, err := h.orderService.GetProduct(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, dto.NewProduct(product))
}

func (h *OrderHandler) CreateOrder(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.CreateOrderRequest
	if err := c.Bind(&req); err != nil || req.ProductID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	order, err := h.orderService.CreateOrder(ctx, middleware.UserID(c), req.ProductID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, dto.NewOrder(order))
}

// GetOrder is polled by the checkout page while the operator decides.
func (h *OrderHandler) GetOrder(c echo.Context) error {
	ctx := c.Request().Context()

	order, err := h.orderService.GetOrder(ctx, c.Param("id"), middleware.UserID(c))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, dto.NewOrder(order))
}

func (h *OrderHandler) SubmitProof(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.SubmitProofRequest
	if err := c.Bind(&req); err != nil || req.ReceiptURL == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	order, err := h.orderService.SubmitProof(ctx, c.Param("id"), middleware.UserID(c), req.ReceiptURL)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, dto.NewOrder(order))
}
