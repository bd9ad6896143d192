package scylla

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"order-service/internal/models"
)

// CartRepository persists cart lines keyed by
// (owner_id, food_id, side_protein_id, extra_side_id). The variant slots are
// clustering columns, so the storage engine itself guarantees at most one
// line per composite key; empty slots are stored as 0 because clustering
// columns cannot hold null.
//
// InsertLine and MergeLine are conditional (LWT) writes. The applied flag is
// false when another writer got there first; the caller owns the retry.
type CartRepository interface {
	FindLine(ctx context.Context, ownerID string, foodID int64, sel models.VariantSelection) (*models.CartLine, error)
	InsertLine(ctx context.Context, line *models.CartLine) (bool, error)
	MergeLine(ctx context.Context, line *models.CartLine, expectedQuantity int) (bool, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.CartLine, error)
	DeleteAll(ctx context.Context, ownerID string) error
}

type cartRepository struct {
	client *ScyllaClient
	logger *zap.Logger
}

func NewCartRepository(client *ScyllaClient, logger *zap.Logger) CartRepository {
	return &cartRepository{client: client, logger: logger}
}

func (r *cartRepository) FindLine(ctx context.Context, ownerID string, foodID int64, sel models.VariantSelection) (*models.CartLine, error) {
	line := models.CartLine{
		OwnerID:   ownerID,
		FoodID:    foodID,
		Selection: sel,
	}
	err := r.client.Session.Query(stmtFindCartLine,
		ownerID, foodID, sel.SideProteinID, sel.ExtraSideID,
	).WithContext(ctx).Scan(&line.Quantity, &line.SpecialInstructions, &line.UpdatedAt)
	if err == gocql.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cart line: %w", err)
	}
	return &line, nil
}

// InsertLine writes a new line only if the composite key is still vacant.
func (r *cartRepository) InsertLine(ctx context.Context, line *models.CartLine) (bool, error) {
	applied, err := r.client.Session.Query(stmtInsertCartLine,
		line.OwnerID, line.FoodID, line.Selection.SideProteinID, line.Selection.ExtraSideID,
		line.Quantity, line.SpecialInstructions, line.UpdatedAt,
	).WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return false, fmt.Errorf("failed to insert cart line: %w", err)
	}
	return applied, nil
}

// MergeLine replaces quantity and instructions only if the quantity still
// matches what the caller observed. A false return means a concurrent add
// moved the line underneath us.
func (r *cartRepository) MergeLine(ctx context.Context, line *models.CartLine, expectedQuantity int) (bool, error) {
	applied, err := r.client.Session.Query(stmtMergeCartLine,
		line.Quantity, line.SpecialInstructions, line.UpdatedAt,
		line.OwnerID, line.FoodID, line.Selection.SideProteinID, line.Selection.ExtraSideID,
		expectedQuantity,
	).WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return false, fmt.Errorf("failed to merge cart line: %w", err)
	}
	return applied, nil
}

func (r *cartRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.CartLine, error) {
	iter := r.client.Session.Query(stmtListCartLines, ownerID).
		WithContext(ctx).Iter()

	var lines []models.CartLine
	line := models.CartLine{OwnerID: ownerID}
	for iter.Scan(
		&line.FoodID, &line.Selection.SideProteinID, &line.Selection.ExtraSideID,
		&line.Quantity, &line.SpecialInstructions, &line.UpdatedAt,
	) {
		lines = append(lines, line)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list cart lines: %w", err)
	}
	return lines, nil
}

// DeleteAll removes the owner's whole partition in one statement. Deleting
// an empty cart succeeds.
func (r *cartRepository) DeleteAll(ctx context.Context, ownerID string) error {
	err := r.client.Session.Query(stmtClearCart, ownerID).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	r.logger.Debug("Cart cleared", zap.String("owner_id", ownerID))
	return nil
}
