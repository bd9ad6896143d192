package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"order-service/internal/models"
	"order-service/internal/repository/scylla"
)

// OrderService turns carts into orders. Checkout snapshots the cart at
// current catalog prices, persists the order atomically and then empties
// the cart.
type OrderService struct {
	orders   scylla.OrderRepository
	cart     *CartService
	recorder ActivityRecorder
	logger   *zap.Logger
}

func NewOrderService(orders scylla.OrderRepository, cart *CartService, recorder ActivityRecorder, logger *zap.Logger) *OrderService {
	return &OrderService{orders: orders, cart: cart, recorder: recorder, logger: logger}
}

// unitPrice is the checkout price of one unit of a line: the base item plus
// every selected variant item.
func unitPrice(entry models.CartEntry, foodsByID map[int64]models.Food) int64 {
	price := entry.Food.Price
	if id := entry.Line.Selection.SideProteinID; id != 0 {
		price += foodsByID[id].Price
	}
	if id := entry.Line.Selection.ExtraSideID; id != 0 {
		price += foodsByID[id].Price
	}
	return price
}

// Checkout places an order from the user's active cart. An empty cart is
// ErrCartEmpty. Prices are frozen into the order items at this moment;
// later catalog edits do not touch placed orders.
func (s *OrderService) Checkout(ctx context.Context, userID string) (*models.Order, []models.OrderItem, error) {
	entries, err := s.cart.ListActiveCart(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if len(entries) == 0 {
		return nil, nil, ErrCartEmpty
	}

	// Variant prices are needed alongside base prices; resolve them once.
	foodsByID := make(map[int64]models.Food)
	for _, entry := range entries {
		foodsByID[entry.Food.FoodID] = entry.Food
	}
	for _, entry := range entries {
		for _, id := range []int64{entry.Line.Selection.SideProteinID, entry.Line.Selection.ExtraSideID} {
			if id == 0 {
				continue
			}
			if _, ok := foodsByID[id]; ok {
				continue
			}
			food, err := s.cart.foods.GetFood(ctx, id)
			if err != nil {
				return nil, nil, err
			}
			if food == nil {
				return nil, nil, ErrItemNotFound
			}
			foodsByID[id] = *food
		}
	}

	order := &models.Order{
		OrderID:   uuid.New().String(),
		UserID:    userID,
		OrderedAt: time.Now().UTC(),
	}

	items := make([]models.OrderItem, 0, len(entries))
	for _, entry := range entries {
		unit := unitPrice(entry, foodsByID)
		total := unit * int64(entry.Line.Quantity)
		items = append(items, models.OrderItem{
			OrderID:             order.OrderID,
			FoodID:              entry.Line.FoodID,
			Selection:           entry.Line.Selection,
			Quantity:            entry.Line.Quantity,
			SpecialInstructions: entry.Line.SpecialInstructions,
			UnitPrice:           unit,
			TotalPrice:          total,
		})
		order.TotalPrice += total
	}

	if err := s.orders.CreateOrder(ctx, order, items); err != nil {
		return nil, nil, err
	}

	// The order is placed; a failed cart clear leaves stale lines, not a
	// lost order.
	if err := s.cart.ClearCart(ctx, userID); err != nil {
		s.logger.Error("Failed to clear cart after checkout",
			zap.String("order_id", order.OrderID), zap.Error(err))
	}

	if s.recorder != nil {
		s.recorder.Record(ctx, models.ActivityEvent{
			EventType: models.EventOrderPlaced,
			UserID:    userID,
			Quantity:  len(items),
		})
	}

	s.logger.Info("Order placed",
		zap.String("order_id", order.OrderID),
		zap.String("user_id", userID),
		zap.Int64("total_price", order.TotalPrice))
	return order, items, nil
}

// ListOrders returns the user's placed orders.
func (s *OrderService) ListOrders(ctx context.Context, userID string) ([]models.Order, error) {
	return s.orders.ListOrders(ctx, userID)
}

// GetOrderItems returns the frozen lines of one order.
func (s *OrderService) GetOrderItems(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	return s.orders.ListOrderItems(ctx, orderID)
}
