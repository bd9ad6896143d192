package scylla

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"order-service/internal/models"
)

// OrderRepository persists checkout snapshots.
type OrderRepository interface {
	CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error
	ListOrders(ctx context.Context, userID string) ([]models.Order, error)
	ListOrderItems(ctx context.Context, orderID string) ([]models.OrderItem, error)
}

type orderRepository struct {
	client *ScyllaClient
	logger *zap.Logger
}

func NewOrderRepository(client *ScyllaClient, logger *zap.Logger) OrderRepository {
	return &orderRepository{client: client, logger: logger}
}

// CreateOrder writes the order row and its items in one logged batch so a
// half-written order never becomes visible.
func (r *orderRepository) CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	batch := r.client.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)

	batch.Query(stmtCreateOrder,
		order.UserID, order.OrderID, order.TotalPrice, order.OrderedAt)
	for _, item := range items {
		batch.Query(stmtCreateOrderItem,
			item.OrderID, item.FoodID, item.Selection.SideProteinID, item.Selection.ExtraSideID,
			item.Quantity, item.SpecialInstructions, item.UnitPrice, item.TotalPrice)
	}

	if err := r.client.Session.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("failed to write order batch: %w", err)
	}

	r.logger.Info("Order persisted",
		zap.String("order_id", order.OrderID),
		zap.Int("items", len(items)),
		zap.Int64("total_price", order.TotalPrice))
	return nil
}

func (r *orderRepository) ListOrders(ctx context.Context, userID string) ([]models.Order, error) {
	iter := r.client.Session.Query(stmtListOrders, userID).WithContext(ctx).Iter()

	var orders []models.Order
	var o models.Order
	for iter.Scan(&o.UserID, &o.OrderID, &o.TotalPrice, &o.OrderedAt) {
		orders = append(orders, o)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

func (r *orderRepository) ListOrderItems(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	iter := r.client.Session.Query(stmtListOrderItems, orderID).WithContext(ctx).Iter()

	var items []models.OrderItem
	var it models.OrderItem
	for iter.Scan(
		&it.OrderID, &it.FoodID, &it.Selection.SideProteinID, &it.Selection.ExtraSideID,
		&it.Quantity, &it.SpecialInstructions, &it.UnitPrice, &it.TotalPrice,
	) {
		items = append(items, it)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list order items: %w", err)
	}
	return items, nil
}
