package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sellista/marketplace/internal/auth"
	"github.com/sellista/marketplace/internal/metrics"
	"github.com/sellista/marketplace/internal/mykafka"
	"github.com/sellista/marketplace/internal/order"
)

type OrderHandler struct {
	Ledger   *order.Ledger
	Producer *mykafka.Producer
}

func (h *OrderHandler) publish(c echo.Context, event map[string]any) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, "order_events", fmt.Sprint(event["orderID"]), event); err != nil {
		c.Logger().Errorf("Kafka publish error: %v", err)
	}
}

// ledgerHTTPError translates the ledger's error taxonomy to HTTP without
// leaking storage details.
func ledgerHTTPError(err error) *echo.HTTPError {
	var stockErr *order.InsufficientStockError
	switch {
	case errors.Is(err, order.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, "forbidden")
	case errors.Is(err, order.ErrAddressRequired):
		return echo.NewHTTPError(http.StatusBadRequest, "shipping address is required")
	case errors.Is(err, order.ErrEmptyCart):
		return echo.NewHTTPError(http.StatusBadRequest, "cart is empty")
	case errors.Is(err, order.ErrInvalidStatus):
		return echo.NewHTTPError(http.StatusBadRequest,
			"status must be one of pending, shipped, delivered, cancelled")
	case errors.Is(err, order.ErrOrderNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "order not found")
	case errors.Is(err, order.ErrProductNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "product not found")
	case errors.Is(err, order.ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, "order status does not permit this operation")
	case errors.As(err, &stockErr):
		return echo.NewHTTPError(http.StatusConflict, echo.Map{
			"message":    stockErr.Error(),
			"product_id": stockErr.ProductID,
			"available":  stockErr.Available,
		})
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

func (h *OrderHandler) Checkout(c echo.Context) error {
	ident, err := auth.FromContext(c)
	if err != nil {
		return err
	}

	var req struct {
		ShippingAddress string `json:"shippingAddress"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	ord, lines, err := h.Ledger.Checkout(c.Request().Context(), ident, req.ShippingAddress)
	metrics.RecordOrderOperation("checkout", err == nil)
	if err != nil {
		return ledgerHTTPError(err)
	}

	h.publish(c, map[string]any{
		"type":    "order_created",
		"orderID": ord.ID,
		"buyerID": ident.UserID,
		"total":   ord.TotalAmount,
	})

	return c.JSON(http.StatusCreated, echo.Map{
		"message": "order placed successfully",
		"order":   ord,
		"items":   lines,
	})
}

func (h *OrderHandler) MyOrders(c echo.Context) error {
	ident, err := auth.FromContext(c)
	if err != nil {
		return err
	}

	views, err := h.Ledger.BuyerOrders(c.Request().Context(), ident)
	metrics.RecordOrderOperation("list", err == nil)
	if err != nil {
		return ledgerHTTPError(err)
	}
	return c.JSON(http.StatusOK, views)
}

func (h *OrderHandler) CancelOrder(c echo.Context) error {
	ident, err := auth.FromContext(c)
	if err != nil {
		return err
	}

	orderID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid order id")
	}

	ord, err := h.Ledger.Cancel(c.Request().Context(), ident, uint(orderID))
	metrics.RecordOrderOperation("cancel", err == nil)
	if err != nil {
		return ledgerHTTPError(err)
	}

	h.publish(c, map[string]any{
		"type":    "order_cancelled",
		"orderID": ord.ID,
		"buyerID": ident.UserID,
	})

	return c.JSON(http.StatusOK, ord)
}

func (h *OrderHandler) SellerOrders(c echo.Context) error {
	ident, err := auth.FromContext(c)
	if err != nil {
		return err
	}

	views, err := h.Ledger.SellerOrders(c.Request().Context(), ident)
	metrics.RecordOrderOperation("seller_list", err == nil)
	if err != nil {
		return ledgerHTTPError(err)
	}
	return c.JSON(http.StatusOK, views)
}

func (h *OrderHandler) UpdateOrderStatus(c echo.Context) error {
	ident, err := auth.FromContext(c)
	if err != nil {
		return err
	}

	orderID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid order id")
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	ord, err := h.Ledger.UpdateStatus(c.Request().Context(), ident, uint(orderID), req.Status)
	metrics.RecordOrderOperation("update_status", err == nil)
	if err != nil {
		return ledgerHTTPError(err)
	}

	h.publish(c, map[string]any{
		"type":     "order_status_updated",
		"orderID":  ord.ID,
		"sellerID": ident.UserID,
		"status":   ord.Status,
	})

	return c.JSON(http.StatusOK, ord)
}
