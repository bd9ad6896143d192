package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"order-service/internal/models"
	"order-service/internal/repository/scylla"
	"order-service/internal/search"
	"order-service/internal/util"
)

var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidFood      = errors.New("invalid food item")
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// CatalogService manages the food catalog: admin-only writes, paginated
// reads and full-text search. The search index is fed on write but Scylla
// stays the source of truth.
type CatalogService struct {
	foods  scylla.FoodRepository
	index  *search.CatalogIndex
	logger *zap.Logger
}

func NewCatalogService(foods scylla.FoodRepository, index *search.CatalogIndex, logger *zap.Logger) *CatalogService {
	return &CatalogService{foods: foods, index: index, logger: logger}
}

func newFoodID() (int64, error) {
	// Positive 63-bit id; collisions are handled by the conditional insert.
	n, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		return 0, fmt.Errorf("failed to generate food id: %w", err)
	}
	return n.Int64() + 1, nil
}

// CreateFood adds a catalog item. Only admins may write the catalog.
func (s *CatalogService) CreateFood(ctx context.Context, actor *models.User, food *models.Food) (*models.Food, error) {
	if actor == nil || !actor.IsAdmin {
		return nil, ErrPermissionDenied
	}
	food.Name = util.SanitizeInput(food.Name)
	if food.Name == "" || food.Price < 0 {
		return nil, ErrInvalidFood
	}
	food.Description = util.SanitizeInput(food.Description)
	food.Category = util.SanitizeInput(food.Category)
	food.CreatedAt = time.Now().UTC()

	// Retry the id draw on the unlikely collision.
	for attempt := 0; attempt < 3; attempt++ {
		id, err := newFoodID()
		if err != nil {
			return nil, err
		}
		food.FoodID = id

		applied, err := s.foods.CreateFood(ctx, food)
		if err != nil {
			return nil, err
		}
		if applied {
			if s.index != nil {
				if err := s.index.IndexFood(food); err != nil {
					s.logger.Warn("Failed to index food",
						zap.Int64("food_id", food.FoodID), zap.Error(err))
				}
			}
			s.logger.Info("Food created",
				zap.Int64("food_id", food.FoodID), zap.String("name", food.Name))
			return food, nil
		}
	}
	return nil, fmt.Errorf("failed to allocate food id")
}

// GetFood returns one catalog item, or ErrItemNotFound.
func (s *CatalogService) GetFood(ctx context.Context, foodID int64) (*models.Food, error) {
	food, err := s.foods.GetFood(ctx, foodID)
	if err != nil {
		return nil, err
	}
	if food == nil {
		return nil, fmt.Errorf("%w: food %d", ErrItemNotFound, foodID)
	}
	return food, nil
}

// ListFoods pages through the catalog with an opaque continuation token.
func (s *CatalogService) ListFoods(ctx context.Context, pageSize int, pageToken string) ([]models.Food, string, error) {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return s.foods.ListFoods(ctx, pageSize, pageToken)
}

// SearchFoods runs a full-text query against the search index.
func (s *CatalogService) SearchFoods(_ context.Context, term string, size int) ([]models.Food, error) {
	if s.index == nil {
		return nil, errors.New("search is not configured")
	}
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return s.index.SearchFoods(util.SanitizeInput(term), size)
}
