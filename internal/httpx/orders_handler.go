package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"github.com/ariefcatur/go-storefront-orders/internal/inventory"
	"github.com/ariefcatur/go-storefront-orders/internal/lifecycle"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	readTimeout  = 3 * time.Second
	writeTimeout = 5 * time.Second
)

// StatusCache is the fast path of GET /orders/{id}/status. Writers only
// invalidate; reads repopulate from the store.
type StatusCache interface {
	Get(ctx context.Context, orderID string) (json.RawMessage, bool)
	Set(ctx context.Context, orderID string, view any) error
	Invalidate(ctx context.Context, orderID string) error
}

// IdempotencyStore maps an Idempotency-Key header to the order it created.
// Claim is atomic: exactly one caller gets claimed=true for a fresh key.
// A losing caller sees the stored order id, or "" while the winner runs.
type IdempotencyStore interface {
	Claim(ctx context.Context, key string) (orderID string, claimed bool, err error)
	Remember(ctx context.Context, key, orderID string) error
	Forget(ctx context.Context, key string) error
}

// OrdersHandler exposes the lifecycle controller over HTTP. Cache and
// Idempotency are optional.
type OrdersHandler struct {
	Orders      *lifecycle.Controller
	Cache       StatusCache
	Idempotency IdempotencyStore
	Logger      *zap.Logger
}

type createOrderReq struct {
	Email    string          `json:"email"`
	Items    []orders.Item   `json:"items"`
	Address  orders.Address  `json:"address"`
	Shipping json.RawMessage `json:"shipping,omitempty"`
	Payment  json.RawMessage `json:"payment,omitempty"`
}

type cancelOrderReq struct {
	Reason string `json:"reason"`
}

type updateStatusReq struct {
	Status      string  `json:"status"`
	AdminStatus *string `json:"adminStatus"`
	ShipperName *string `json:"shipperName"`
}

type errorResp struct {
	Error     string `json:"error"`
	ProductID string `json:"productId,omitempty"`
	Key       string `json:"key,omitempty"`
	Available *int   `json:"available,omitempty"`
	Requested *int   `json:"requested,omitempty"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders", h.listByEmail)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getStatus)
	r.Post("/orders/{id}/cancel", h.cancelOrder)

	r.Route("/admin/orders", func(r chi.Router) {
		r.Get("/", h.listOrders)
		r.Post("/{id}/approve", h.approveOrder)
		r.Post("/{id}/refuse", h.refuseOrder)
		r.Patch("/{id}/status", h.updateStatus)
	})

	r.Get("/products/{id}/stock", h.checkStock)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *OrdersHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		shortfall *inventory.InsufficientStockError
		bad       *orders.TransitionError
	)
	switch {
	case errors.As(err, &shortfall):
		writeJSON(w, http.StatusConflict, errorResp{
			Error:     inventory.ErrInsufficientStock.Error(),
			ProductID: shortfall.ProductID,
			Key:       shortfall.Key,
			Available: &shortfall.Available,
			Requested: &shortfall.Requested,
		})
	case errors.As(err, &bad):
		writeJSON(w, http.StatusConflict, errorResp{Error: orders.ErrInvalidTransition.Error(), From: string(bad.From), To: string(bad.To)})
	case errors.Is(err, orders.ErrOrderNotFound), errors.Is(err, inventory.ErrProductNotFound):
		writeJSON(w, http.StatusNotFound, errorResp{Error: err.Error()})
	case errors.Is(err, orders.ErrAlreadyDelivered), errors.Is(err, orders.ErrConflict):
		writeJSON(w, http.StatusConflict, errorResp{Error: err.Error()})
	case errors.Is(err, orders.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorResp{Error: err.Error()})
	case errors.Is(err, orders.ErrInvalidAddress):
		writeJSON(w, http.StatusUnprocessableEntity, errorResp{Error: err.Error()})
	case errors.Is(err, orders.ErrInvalidInput), errors.Is(err, inventory.ErrInvalidQuantity):
		writeJSON(w, http.StatusBadRequest, errorResp{Error: err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusServiceUnavailable, errorResp{Error: "busy, retry later"})
	default:
		h.logger().Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResp{Error: "internal error"})
	}
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), writeTimeout)
	defer cancel()

	idemKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if h.Idempotency == nil {
		idemKey = ""
	}
	if idemKey != "" {
		orderID, claimed, err := h.Idempotency.Claim(ctx, idemKey)
		if err != nil {
			h.logger().Error("claim idempotency key", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, errorResp{Error: "idempotency store unavailable, retry later"})
			return
		}
		if !claimed {
			h.replayCreate(w, r, orderID)
			return
		}
	}

	o, err := h.Orders.CreateOrder(ctx, lifecycle.CreateOrderCommand{
		Actor:    ActorFrom(r.Context()),
		Email:    req.Email,
		Items:    req.Items,
		Address:  req.Address,
		Shipping: req.Shipping,
		Payment:  req.Payment,
	})
	if err != nil {
		if idemKey != "" {
			if ferr := h.Idempotency.Forget(ctx, idemKey); ferr != nil {
				h.logger().Warn("forget idempotency key", zap.Error(ferr))
			}
		}
		h.writeError(w, r, err)
		return
	}

	if idemKey != "" {
		if err := h.Idempotency.Remember(ctx, idemKey, o.ID); err != nil {
			h.logger().Warn("remember idempotency key", zap.String("order_id", o.ID), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusCreated, o)
}

// replayCreate answers a repeated create with the order the first request
// produced, in the same shape and status code.
func (h *OrdersHandler) replayCreate(w http.ResponseWriter, r *http.Request, orderID string) {
	if orderID == "" {
		writeJSON(w, http.StatusConflict, errorResp{Error: "a request with this Idempotency-Key is in progress"})
		return
	}
	o, err := h.Orders.ReplayOrder(r.Context(), orderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Idempotent-Replayed", "true")
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	o, err := h.Orders.GetOrder(ctx, chi.URLParam(r, "id"), ActorFrom(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// getStatus is public: order ids are unguessable and the body carries no
// personal data.
func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	if h.Cache != nil {
		if b, ok := h.Cache.Get(ctx, orderID); ok {
			writeJSON(w, http.StatusOK, b)
			return
		}
	}

	view, err := h.Orders.OrderStatus(ctx, orderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if h.Cache != nil {
		_ = h.Cache.Set(ctx, view.OrderID, view)
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *OrdersHandler) listByEmail(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	list, err := h.Orders.ListOrdersByEmail(ctx, r.URL.Query().Get("email"), ActorFrom(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	list, err := h.Orders.ListOrders(ctx, ActorFrom(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var req cancelOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), writeTimeout)
	defer cancel()

	o, err := h.Orders.CancelOrder(ctx, lifecycle.CancelOrderCommand{
		OrderID: chi.URLParam(r, "id"),
		Actor:   ActorFrom(r.Context()),
		Reason:  req.Reason,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.invalidateStatus(ctx, o.ID)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) approveOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Orders.ApproveOrder)
}

func (h *OrdersHandler) refuseOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Orders.RefuseOrder)
}

func (h *OrdersHandler) transition(w http.ResponseWriter, r *http.Request, op func(context.Context, string, orders.Actor) (lifecycle.Result, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), writeTimeout)
	defer cancel()

	res, err := op(ctx, chi.URLParam(r, "id"), ActorFrom(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.invalidateStatus(ctx, res.Order.ID)
	writeJSON(w, http.StatusOK, res)
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), writeTimeout)
	defer cancel()

	res, err := h.Orders.UpdateOrderStatus(ctx, lifecycle.UpdateStatusCommand{
		OrderID:     chi.URLParam(r, "id"),
		Actor:       ActorFrom(r.Context()),
		Target:      req.Status,
		AdminStatus: req.AdminStatus,
		ShipperName: req.ShipperName,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.invalidateStatus(ctx, res.Order.ID)
	writeJSON(w, http.StatusOK, res)
}

func (h *OrdersHandler) checkStock(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	qty := 1
	if s := q.Get("qty"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResp{Error: "qty must be an integer"})
			return
		}
		qty = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	writeJSON(w, http.StatusOK, h.Orders.CheckStock(ctx, inventory.Line{
		ProductID: chi.URLParam(r, "id"),
		Size:      q.Get("size"),
		Color:     q.Get("color"),
		Qty:       qty,
	}))
}

func (h *OrdersHandler) invalidateStatus(ctx context.Context, orderID string) {
	if h.Cache == nil {
		return
	}
	if err := h.Cache.Invalidate(ctx, orderID); err != nil {
		h.logger().Warn("invalidate order status", zap.String("order_id", orderID), zap.Error(err))
	}
}

func (h *OrdersHandler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

func nonNil(list []orders.Order) []orders.Order {
	if list == nil {
		return []orders.Order{}
	}
	return list
}
