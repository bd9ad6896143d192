package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"order-service/internal/models"
)

type lineKey struct {
	ownerID string
	foodID  int64
	sel     models.VariantSelection
}

// memCarts implements CartRepository with the same conditional-write
// semantics as the Scylla-backed one: inserts apply only into a vacant key,
// merges apply only when the observed quantity still holds.
type memCarts struct {
	mu    sync.Mutex
	lines map[lineKey]*models.CartLine
}

func newMemCarts() *memCarts {
	return &memCarts{lines: make(map[lineKey]*models.CartLine)}
}

func (c *memCarts) FindLine(_ context.Context, ownerID string, foodID int64, sel models.VariantSelection) (*models.CartLine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if line, ok := c.lines[lineKey{ownerID, foodID, sel}]; ok {
		copied := *line
		return &copied, nil
	}
	return nil, nil
}

func (c *memCarts) InsertLine(_ context.Context, line *models.CartLine) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := lineKey{line.OwnerID, line.FoodID, line.Selection}
	if _, ok := c.lines[key]; ok {
		return false, nil
	}
	copied := *line
	c.lines[key] = &copied
	return true, nil
}

func (c *memCarts) MergeLine(_ context.Context, line *models.CartLine, expectedQuantity int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := lineKey{line.OwnerID, line.FoodID, line.Selection}
	existing, ok := c.lines[key]
	if !ok || existing.Quantity != expectedQuantity {
		return false, nil
	}
	copied := *line
	c.lines[key] = &copied
	return true, nil
}

func (c *memCarts) ListByOwner(_ context.Context, ownerID string) ([]models.CartLine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.CartLine
	for key, line := range c.lines {
		if key.ownerID == ownerID {
			out = append(out, *line)
		}
	}
	return out, nil
}

func (c *memCarts) DeleteAll(_ context.Context, ownerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.lines {
		if key.ownerID == ownerID {
			delete(c.lines, key)
		}
	}
	return nil
}

type memFoods struct {
	mu    sync.Mutex
	foods map[int64]models.Food
}

func newMemFoods(foods ...models.Food) *memFoods {
	m := &memFoods{foods: make(map[int64]models.Food)}
	for _, f := range foods {
		m.foods[f.FoodID] = f
	}
	return m
}

func (m *memFoods) CreateFood(_ context.Context, food *models.Food) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.foods[food.FoodID]; ok {
		return false, nil
	}
	m.foods[food.FoodID] = *food
	return true, nil
}

func (m *memFoods) GetFood(_ context.Context, foodID int64) (*models.Food, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if food, ok := m.foods[foodID]; ok {
		return &food, nil
	}
	return nil, nil
}

func (m *memFoods) ListFoods(_ context.Context, pageSize int, _ string) ([]models.Food, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Food, 0, len(m.foods))
	for _, f := range m.foods {
		out = append(out, f)
		if len(out) == pageSize {
			break
		}
	}
	return out, "", nil
}

var (
	jollofRice = models.Food{FoodID: 1, Name: "Jollof Rice", Price: 2500, Category: "main", CreatedAt: time.Now().UTC()}
	chicken    = models.Food{FoodID: 2, Name: "Grilled Chicken", Price: 1800, Category: "protein"}
	plantain   = models.Food{FoodID: 3, Name: "Fried Plantain", Price: 800, Category: "side"}
)

func newCartFixture() (*CartService, *memCarts, *memRecorder) {
	carts := newMemCarts()
	recorder := &memRecorder{}
	svc := NewCartService(carts, newMemFoods(jollofRice, chicken, plantain), recorder, zap.NewNop())
	return svc, carts, recorder
}

func TestAddToCartCreatesLine(t *testing.T) {
	svc, _, recorder := newCartFixture()
	ctx := context.Background()

	sel := models.VariantSelection{SideProteinID: chicken.FoodID}
	line, err := svc.AddToCart(ctx, "owner-1", jollofRice.FoodID, sel, 2, "extra spicy")
	require.NoError(t, err)
	require.NotNil(t, line)
	assert.Equal(t, 2, line.Quantity)
	assert.Equal(t, "extra spicy", line.SpecialInstructions)
	assert.Contains(t, recorder.types(), models.EventCartLineAdded)
}

func TestAddToCartMergesIdenticalSelection(t *testing.T) {
	svc, _, _ := newCartFixture()
	ctx := context.Background()

	sel := models.VariantSelection{SideProteinID: chicken.FoodID, ExtraSideID: plantain.FoodID}
	_, err := svc.AddToCart(ctx, "owner-1", jollofRice.FoodID, sel, 1, "no onions")
	require.NoError(t, err)

	line, err := svc.AddToCart(ctx, "owner-1", jollofRice.FoodID, sel, 3, "lots of onions")
	require.NoError(t, err)
	assert.Equal(t, 4, line.Quantity)
	// The latest add owns the instructions.
	assert.Equal(t, "lots of onions", line.SpecialInstructions)

	entries, err := svc.ListActiveCart(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 4, entries[0].Line.Quantity)
}

func TestAddToCartDistinctSelectionsStaySeparate(t *testing.T) {
	svc, _, _ := newCartFixture()
	ctx := context.Background()

	withChicken := models.VariantSelection{SideProteinID: chicken.FoodID}
	plain := models.VariantSelection{}

	_, err := svc.AddToCart(ctx, "owner-1", jollofRice.FoodID, withChicken, 1, "")
	require.NoError(t, err)
	_, err = svc.AddToCart(ctx, "owner-1", jollofRice.FoodID, plain, 1, "")
	require.NoError(t, err)

	entries, err := svc.ListActiveCart(ctx, "owner-1")
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	// Same base item, different slot: no match either way.
	found, err := svc.FindMatchingLine(ctx, "owner-1", jollofRice.FoodID,
		models.VariantSelection{SideProteinID: chicken.FoodID, ExtraSideID: plantain.FoodID})
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestAddToCartUnknownItems(t *testing.T) {
	svc, _, _ := newCartFixture()
	ctx := context.Background()

	_, err := svc.AddToCart(ctx, "owner-1", 999, models.VariantSelection{}, 1, "")
	assert.ErrorIs(t, err, ErrItemNotFound)

	_, err = svc.AddToCart(ctx, "owner-1", jollofRice.FoodID,
		models.VariantSelection{SideProteinID: 999}, 1, "")
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestAddToCartRejectsNonPositiveQuantity(t *testing.T) {
	svc, _, _ := newCartFixture()
	ctx := context.Background()

	_, err := svc.AddToCart(ctx, "owner-1", jollofRice.FoodID, models.VariantSelection{}, 0, "")
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = svc.AddToCart(ctx, "owner-1", jollofRice.FoodID, models.VariantSelection{}, -2, "")
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestAddToCartConcurrentIdenticalAdds(t *testing.T) {
	svc, _, _ := newCartFixture()
	ctx := context.Background()

	sel := models.VariantSelection{SideProteinID: chicken.FoodID}
	const adds = 8
	var wg sync.WaitGroup
	errs := make(chan error, adds)
	for i := 0; i < adds; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AddToCart(ctx, "owner-1", jollofRice.FoodID, sel, 1, "")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	// All adds funnel into one line; nothing is lost, nothing duplicated.
	entries, err := svc.ListActiveCart(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, adds, entries[0].Line.Quantity)
}

func TestClearCartIsIdempotent(t *testing.T) {
	svc, _, recorder := newCartFixture()
	ctx := context.Background()

	_, err := svc.AddToCart(ctx, "owner-1", jollofRice.FoodID, models.VariantSelection{}, 1, "")
	require.NoError(t, err)

	require.NoError(t, svc.ClearCart(ctx, "owner-1"))
	entries, err := svc.ListActiveCart(ctx, "owner-1")
	require.NoError(t, err)
	assert.Empty(t, entries)

	// Clearing an empty cart is still a success.
	require.NoError(t, svc.ClearCart(ctx, "owner-1"))
	assert.Contains(t, recorder.types(), models.EventCartCleared)
}

func TestCartsAreIsolatedPerOwner(t *testing.T) {
	svc, _, _ := newCartFixture()
	ctx := context.Background()

	_, err := svc.AddToCart(ctx, "owner-1", jollofRice.FoodID, models.VariantSelection{}, 1, "")
	require.NoError(t, err)
	_, err = svc.AddToCart(ctx, "owner-2", jollofRice.FoodID, models.VariantSelection{}, 2, "")
	require.NoError(t, err)

	require.NoError(t, svc.ClearCart(ctx, "owner-1"))

	entries, err := svc.ListActiveCart(ctx, "owner-2")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].Line.Quantity)
}
