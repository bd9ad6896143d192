package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"order-service/internal/models"
	"order-service/internal/service"
	"order-service/internal/util"
)

// CartHandler handles HTTP requests for the authenticated user's cart.
type CartHandler struct {
	cart   *service.CartService
	logger *zap.Logger
}

func NewCartHandler(cart *service.CartService, logger *zap.Logger) *CartHandler {
	return &CartHandler{cart: cart, logger: logger}
}

func (h *CartHandler) RegisterRoutes(router chi.Router, auth func(http.Handler) http.Handler) {
	router.Route("/cart", func(r chi.Router) {
		r.Use(auth)
		r.Get("/", h.GetCart)
		r.Post("/items", h.AddItem)
		r.Delete("/", h.ClearCart)
	})
}

var errSuspiciousInstructions = errors.New("special instructions contain disallowed content")

type addItemRequest struct {
	FoodID              int64  `json:"food_id"`
	SideProteinID       int64  `json:"side_protein_id,omitempty"`
	ExtraSideID         int64  `json:"extra_side_id,omitempty"`
	Quantity            int    `json:"quantity"`
	SpecialInstructions string `json:"special_instructions,omitempty"`
}

// AddItem merges the addition into the cart: an identical selection folds
// into its existing line, anything else opens a new one.
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()
	user := userFrom(ctx)

	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if util.ContainsSuspicious(req.SpecialInstructions) {
		respondWithError(w, http.StatusBadRequest, errSuspiciousInstructions, "Invalid special instructions")
		return
	}

	line, err := h.cart.AddToCart(ctx, user.UserID, req.FoodID,
		models.VariantSelection{
			SideProteinID: req.SideProteinID,
			ExtraSideID:   req.ExtraSideID,
		},
		req.Quantity,
		util.SanitizeInput(req.SpecialInstructions),
	)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to add to cart")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(line, "Item added to cart"))
	h.logger.Debug("Cart item added via HTTP",
		util.String("user_id", user.UserID),
		util.Int64("food_id", req.FoodID),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "AddItem"),
	)
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := userFrom(ctx)

	entries, err := h.cart.ListActiveCart(ctx, user.UserID)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to load cart")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(entries, "Cart retrieved successfully"))
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := userFrom(ctx)

	if err := h.cart.ClearCart(ctx, user.UserID); err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to clear cart")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(nil, "Cart cleared"))
}
