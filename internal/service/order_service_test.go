package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"order-service/internal/models"
)

type memOrders struct {
	mu     sync.Mutex
	orders map[string]*models.Order
	items  map[string][]models.OrderItem
	byUser map[string][]string
}

func newMemOrders() *memOrders {
	return &memOrders{
		orders: make(map[string]*models.Order),
		items:  make(map[string][]models.OrderItem),
		byUser: make(map[string][]string),
	}
}

func (o *memOrders) CreateOrder(_ context.Context, order *models.Order, items []models.OrderItem) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	copied := *order
	o.orders[order.OrderID] = &copied
	o.items[order.OrderID] = append([]models.OrderItem(nil), items...)
	o.byUser[order.UserID] = append(o.byUser[order.UserID], order.OrderID)
	return nil
}

func (o *memOrders) ListOrders(_ context.Context, userID string) ([]models.Order, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []models.Order
	for _, id := range o.byUser[userID] {
		out = append(out, *o.orders[id])
	}
	return out, nil
}

func (o *memOrders) ListOrderItems(_ context.Context, orderID string) ([]models.OrderItem, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]models.OrderItem(nil), o.items[orderID]...), nil
}

func newOrderFixture() (*OrderService, *CartService, *memRecorder) {
	recorder := &memRecorder{}
	cart := NewCartService(newMemCarts(), newMemFoods(jollofRice, chicken, plantain), recorder, zap.NewNop())
	svc := NewOrderService(newMemOrders(), cart, recorder, zap.NewNop())
	return svc, cart, recorder
}

func TestCheckoutSnapshotsCart(t *testing.T) {
	svc, cart, recorder := newOrderFixture()
	ctx := context.Background()

	sel := models.VariantSelection{SideProteinID: chicken.FoodID, ExtraSideID: plantain.FoodID}
	_, err := cart.AddToCart(ctx, "owner-1", jollofRice.FoodID, sel, 2, "well done")
	require.NoError(t, err)
	_, err = cart.AddToCart(ctx, "owner-1", jollofRice.FoodID, models.VariantSelection{}, 1, "")
	require.NoError(t, err)

	order, items, err := svc.Checkout(ctx, "owner-1")
	require.NoError(t, err)
	require.NotNil(t, order)
	require.Len(t, items, 2)

	// 2 x (2500 + 1800 + 800) + 1 x 2500
	assert.Equal(t, int64(2*(2500+1800+800)+2500), order.TotalPrice)
	for _, item := range items {
		assert.Equal(t, item.UnitPrice*int64(item.Quantity), item.TotalPrice)
	}

	// Checkout empties the cart.
	entries, err := cart.ListActiveCart(ctx, "owner-1")
	require.NoError(t, err)
	assert.Empty(t, entries)

	assert.Contains(t, recorder.types(), models.EventOrderPlaced)
}

func TestCheckoutEmptyCart(t *testing.T) {
	svc, _, _ := newOrderFixture()

	_, _, err := svc.Checkout(context.Background(), "owner-1")
	assert.ErrorIs(t, err, ErrCartEmpty)
}

func TestListOrdersAndItems(t *testing.T) {
	svc, cart, _ := newOrderFixture()
	ctx := context.Background()

	_, err := cart.AddToCart(ctx, "owner-1", jollofRice.FoodID, models.VariantSelection{}, 3, "")
	require.NoError(t, err)

	placed, _, err := svc.Checkout(ctx, "owner-1")
	require.NoError(t, err)

	orders, err := svc.ListOrders(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, placed.OrderID, orders[0].OrderID)

	items, err := svc.GetOrderItems(ctx, placed.OrderID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].Quantity)
	assert.Equal(t, int64(2500), items[0].UnitPrice)
}
