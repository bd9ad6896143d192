package scylla

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"order-service/internal/models"
)

// FoodRepository is the catalog collaborator: item lookup and CRUD.
type FoodRepository interface {
	CreateFood(ctx context.Context, food *models.Food) (bool, error)
	GetFood(ctx context.Context, foodID int64) (*models.Food, error)
	ListFoods(ctx context.Context, pageSize int, pageToken string) ([]models.Food, string, error)
}

type foodRepository struct {
	client *ScyllaClient
	logger *zap.Logger
}

func NewFoodRepository(client *ScyllaClient, logger *zap.Logger) FoodRepository {
	return &foodRepository{client: client, logger: logger}
}

// CreateFood inserts with IF NOT EXISTS; the applied flag is false when a
// food with the same id already exists.
func (r *foodRepository) CreateFood(ctx context.Context, food *models.Food) (bool, error) {
	applied, err := r.client.Session.Query(stmtCreateFood,
		food.FoodID, food.Name, food.Description, food.Price,
		food.ImageURL, food.Category, food.AvailableQuantity, food.CreatedAt,
	).WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return false, fmt.Errorf("failed to insert food: %w", err)
	}
	return applied, nil
}

func (r *foodRepository) GetFood(ctx context.Context, foodID int64) (*models.Food, error) {
	var f models.Food
	err := r.client.Session.Query(stmtGetFood, foodID).WithContext(ctx).Scan(
		&f.FoodID, &f.Name, &f.Description, &f.Price,
		&f.ImageURL, &f.Category, &f.AvailableQuantity, &f.CreatedAt,
	)
	if err == gocql.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read food: %w", err)
	}
	return &f, nil
}

// ListFoods pages through the catalog with the driver's page state. The
// opaque token round-trips through the API unchanged; results are stable
// for a fixed data set, ordering beyond storage order is not a contract.
func (r *foodRepository) ListFoods(ctx context.Context, pageSize int, pageToken string) ([]models.Food, string, error) {
	var state []byte
	if pageToken != "" {
		var err error
		state, err = base64.URLEncoding.DecodeString(pageToken)
		if err != nil {
			return nil, "", fmt.Errorf("invalid page token: %w", err)
		}
	}

	iter := r.client.Session.Query(stmtListFoods).
		WithContext(ctx).
		PageSize(pageSize).
		PageState(state).
		Iter()

	foods := make([]models.Food, 0, pageSize)
	var f models.Food
	for len(foods) < pageSize && iter.Scan(
		&f.FoodID, &f.Name, &f.Description, &f.Price,
		&f.ImageURL, &f.Category, &f.AvailableQuantity, &f.CreatedAt,
	) {
		foods = append(foods, f)
	}

	nextState := iter.PageState()
	if err := iter.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to list foods: %w", err)
	}

	nextToken := ""
	if len(nextState) > 0 && len(foods) == pageSize {
		nextToken = base64.URLEncoding.EncodeToString(nextState)
	}
	return foods, nextToken, nil
}
