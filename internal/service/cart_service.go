package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"order-service/internal/models"
	"order-service/internal/repository/scylla"
)

var (
	ErrItemNotFound        = errors.New("item not found")
	ErrInvalidQuantity     = errors.New("quantity must be positive")
	ErrCompositionConflict = errors.New("cart line changed concurrently, retry")
	ErrCartEmpty           = errors.New("cart is empty")
)

const ownerStripes = 64

// CartService merges additions into per-owner carts. Line identity is the
// composite key (owner, food, variant selection): an add either folds into
// the one existing line with the identical selection or opens a new line.
//
// Two layers defend the one-line-per-key invariant. In-process, adds for
// the same owner serialize on a striped mutex. Across processes, every
// write is conditional at the store and a lost race gets one transparent
// retry before surfacing ErrCompositionConflict.
type CartService struct {
	carts    scylla.CartRepository
	foods    scylla.FoodRepository
	recorder ActivityRecorder
	logger   *zap.Logger

	stripes [ownerStripes]sync.Mutex
}

func NewCartService(carts scylla.CartRepository, foods scylla.FoodRepository, recorder ActivityRecorder, logger *zap.Logger) *CartService {
	return &CartService{
		carts:    carts,
		foods:    foods,
		recorder: recorder,
		logger:   logger,
	}
}

func (s *CartService) ownerLock(ownerID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(ownerID))
	return &s.stripes[h.Sum32()%ownerStripes]
}

// validateSelection checks that the base item and every selected variant
// item exist in the catalog. Lookups run concurrently; the zero value in a
// variant slot means "none selected" and is not looked up.
func (s *CartService) validateSelection(ctx context.Context, foodID int64, sel models.VariantSelection) error {
	ids := []int64{foodID}
	if sel.SideProteinID != 0 {
		ids = append(ids, sel.SideProteinID)
	}
	if sel.ExtraSideID != 0 {
		ids = append(ids, sel.ExtraSideID)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			food, err := s.foods.GetFood(gctx, id)
			if err != nil {
				return err
			}
			if food == nil {
				return fmt.Errorf("%w: food %d", ErrItemNotFound, id)
			}
			return nil
		})
	}
	return g.Wait()
}

// AddToCart merges quantity into the owner's line for the given composite
// key, creating the line if no identical selection exists. Instructions on
// the incoming add replace the stored ones when the line merges.
func (s *CartService) AddToCart(ctx context.Context, ownerID string, foodID int64, sel models.VariantSelection, quantity int, instructions string) (*models.CartLine, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if err := s.validateSelection(ctx, foodID, sel); err != nil {
		return nil, err
	}

	lock := s.ownerLock(ownerID)
	lock.Lock()
	defer lock.Unlock()

	var line *models.CartLine
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		line, err = s.upsertLine(ctx, ownerID, foodID, sel, quantity, instructions)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrCompositionConflict) {
			return nil, err
		}
	}
	if err != nil {
		return nil, err
	}

	if s.recorder != nil {
		s.recorder.Record(ctx, models.ActivityEvent{
			EventType: models.EventCartLineAdded,
			UserID:    ownerID,
			EntityID:  foodID,
			Quantity:  quantity,
		})
	}
	return line, nil
}

func (s *CartService) upsertLine(ctx context.Context, ownerID string, foodID int64, sel models.VariantSelection, quantity int, instructions string) (*models.CartLine, error) {
	existing, err := s.carts.FindLine(ctx, ownerID, foodID, sel)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if existing == nil {
		line := &models.CartLine{
			OwnerID:             ownerID,
			FoodID:              foodID,
			Selection:           sel,
			Quantity:            quantity,
			SpecialInstructions: instructions,
			UpdatedAt:           now,
		}
		applied, err := s.carts.InsertLine(ctx, line)
		if err != nil {
			return nil, err
		}
		if !applied {
			// Another writer created the line between find and insert.
			return nil, ErrCompositionConflict
		}
		return line, nil
	}

	merged := &models.CartLine{
		OwnerID:             ownerID,
		FoodID:              foodID,
		Selection:           sel,
		Quantity:            existing.Quantity + quantity,
		SpecialInstructions: instructions,
		UpdatedAt:           now,
	}
	applied, err := s.carts.MergeLine(ctx, merged, existing.Quantity)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, ErrCompositionConflict
	}
	return merged, nil
}

// FindMatchingLine returns the owner's line with exactly this selection, or
// nil when no identical selection is in the cart. Selections matching on
// the base item but differing in any slot do not match.
func (s *CartService) FindMatchingLine(ctx context.Context, ownerID string, foodID int64, sel models.VariantSelection) (*models.CartLine, error) {
	return s.carts.FindLine(ctx, ownerID, foodID, sel)
}

// ListActiveCart returns the owner's lines joined with their base item
// details. Item lookups fan out concurrently, one per distinct food.
func (s *CartService) ListActiveCart(ctx context.Context, ownerID string) ([]models.CartEntry, error) {
	lines, err := s.carts.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return []models.CartEntry{}, nil
	}

	foodIDs := make(map[int64]struct{}, len(lines))
	for _, line := range lines {
		foodIDs[line.FoodID] = struct{}{}
	}

	var mu sync.Mutex
	foodsByID := make(map[int64]models.Food, len(foodIDs))
	g, gctx := errgroup.WithContext(ctx)
	for id := range foodIDs {
		id := id
		g.Go(func() error {
			food, err := s.foods.GetFood(gctx, id)
			if err != nil {
				return err
			}
			if food == nil {
				return fmt.Errorf("%w: food %d", ErrItemNotFound, id)
			}
			mu.Lock()
			foodsByID[id] = *food
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	entries := make([]models.CartEntry, 0, len(lines))
	for _, line := range lines {
		entries = append(entries, models.CartEntry{Line: line, Food: foodsByID[line.FoodID]})
	}
	return entries, nil
}

// ClearCart removes every line in the owner's cart. Clearing an already
// empty cart succeeds; the operation is idempotent.
func (s *CartService) ClearCart(ctx context.Context, ownerID string) error {
	lock := s.ownerLock(ownerID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.carts.DeleteAll(ctx, ownerID); err != nil {
		return err
	}
	if s.recorder != nil {
		s.recorder.Record(ctx, models.ActivityEvent{
			EventType: models.EventCartCleared,
			UserID:    ownerID,
		})
	}
	s.logger.Debug("Cart cleared", zap.String("owner_id", ownerID))
	return nil
}
