package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"order-service/internal/models"
	"order-service/internal/service"
	"order-service/internal/util"
)

// OrderHandler handles HTTP requests for checkout and order history.
type OrderHandler struct {
	orders *service.OrderService
	logger *zap.Logger
}

func NewOrderHandler(orders *service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, logger: logger}
}

func (h *OrderHandler) RegisterRoutes(router chi.Router, auth func(http.Handler) http.Handler) {
	router.Route("/orders", func(r chi.Router) {
		r.Use(auth)
		r.Post("/", h.Checkout)
		r.Get("/", h.ListOrders)
		r.Get("/{orderID}/items", h.GetOrderItems)
	})
}

type placedOrder struct {
	Order models.Order       `json:"order"`
	Items []models.OrderItem `json:"items"`
}

// Checkout places an order from the active cart and empties the cart.
func (h *OrderHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()
	user := userFrom(ctx)

	order, items, err := h.orders.Checkout(ctx, user.UserID)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Checkout failed")
		return
	}

	respondWithJSON(w, http.StatusCreated,
		successResponse(placedOrder{Order: *order, Items: items}, "Order placed"))
	h.logger.Info("Order placed via HTTP",
		util.String("user_id", user.UserID),
		util.String("order_id", order.OrderID),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "Checkout"),
	)
}

func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := userFrom(ctx)

	orders, err := h.orders.ListOrders(ctx, user.UserID)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to list orders")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(orders, "Orders retrieved successfully"))
}

// GetOrderItems returns the frozen lines of one of the caller's orders.
// Another user's order id reads as not found.
func (h *OrderHandler) GetOrderItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := userFrom(ctx)

	orderID := chi.URLParam(r, "orderID")
	if orderID == "" {
		respondWithError(w, http.StatusBadRequest,
			errors.New("order id is required"), "Order ID is required")
		return
	}

	owned, err := h.orders.ListOrders(ctx, user.UserID)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to load order")
		return
	}
	found := false
	for _, o := range owned {
		if o.OrderID == orderID {
			found = true
			break
		}
	}
	if !found {
		respondWithError(w, http.StatusNotFound,
			errors.New("order not found"), "Order not found")
		return
	}

	items, err := h.orders.GetOrderItems(ctx, orderID)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to load order items")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(items, "Order items retrieved successfully"))
}
