package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"order-service/internal/models"
	"order-service/internal/service"
	"order-service/internal/util"
)

// FoodHandler handles HTTP requests for the food catalog.
type FoodHandler struct {
	catalog *service.CatalogService
	logger  *zap.Logger
}

func NewFoodHandler(catalog *service.CatalogService, logger *zap.Logger) *FoodHandler {
	return &FoodHandler{catalog: catalog, logger: logger}
}

// RegisterRoutes wires catalog routes. Reads are public; writes sit behind
// the auth middleware and an admin check in the service.
func (h *FoodHandler) RegisterRoutes(router chi.Router, auth func(http.Handler) http.Handler) {
	router.Route("/foods", func(r chi.Router) {
		r.Get("/", h.ListFoods)
		r.Get("/search", h.SearchFoods)
		r.Get("/{foodID}", h.GetFood)

		r.Group(func(r chi.Router) {
			r.Use(auth)
			r.Post("/", h.CreateFood)
		})
	})
}

type createFoodRequest struct {
	Name              string `json:"name"`
	Description       string `json:"description"`
	Price             int64  `json:"price"`
	ImageURL          string `json:"image_url"`
	Category          string `json:"category"`
	AvailableQuantity int    `json:"available_quantity"`
}

func (h *FoodHandler) CreateFood(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createFoodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	food, err := h.catalog.CreateFood(ctx, userFrom(ctx), &models.Food{
		Name:              req.Name,
		Description:       req.Description,
		Price:             req.Price,
		ImageURL:          req.ImageURL,
		Category:          req.Category,
		AvailableQuantity: req.AvailableQuantity,
	})
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to create food")
		return
	}

	respondWithJSON(w, http.StatusCreated, successResponse(food, "Food created successfully"))
	h.logger.Info("Food created via HTTP",
		util.Int64("food_id", food.FoodID),
		util.String("method", "CreateFood"),
	)
}

func (h *FoodHandler) GetFood(w http.ResponseWriter, r *http.Request) {
	foodID, err := strconv.ParseInt(chi.URLParam(r, "foodID"), 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid food ID")
		return
	}

	food, err := h.catalog.GetFood(r.Context(), foodID)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to get food")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(food, "Food retrieved successfully"))
}

// ListFoods pages through the catalog; the continuation token round-trips
// through Meta.PageToken.
func (h *FoodHandler) ListFoods(w http.ResponseWriter, r *http.Request) {
	pageToken := r.URL.Query().Get("page_token")

	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 || parsed > 100 {
			respondWithError(w, http.StatusBadRequest,
				errors.New("invalid limit"), "Limit must be between 1 and 100")
			return
		}
		limit = parsed
	}

	foods, nextToken, err := h.catalog.ListFoods(r.Context(), limit, pageToken)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to list foods")
		return
	}

	response := successResponse(foods, "Foods retrieved successfully")
	if nextToken != "" {
		response.Meta = &Meta{
			PageToken: nextToken,
			PageSize:  limit,
			Total:     len(foods),
		}
	}
	respondWithJSON(w, http.StatusOK, response)
}

func (h *FoodHandler) SearchFoods(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("q")
	if term == "" {
		respondWithError(w, http.StatusBadRequest,
			errors.New("q is required"), "Search term is required")
		return
	}

	size := 20
	if sizeStr := r.URL.Query().Get("limit"); sizeStr != "" {
		if parsed, err := strconv.Atoi(sizeStr); err == nil && parsed > 0 {
			size = parsed
		}
	}

	foods, err := h.catalog.SearchFoods(r.Context(), term, size)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Search failed")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(foods, "Search results"))
}
