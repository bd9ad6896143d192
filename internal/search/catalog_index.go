package search

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"go.uber.org/zap"

	"order-service/internal/client"
	"order-service/internal/models"
)

// CatalogIndex mirrors the food catalog into Elasticsearch for full-text
// menu search. The Scylla foods table stays authoritative; the index is a
// read replica fed on create.
type CatalogIndex struct {
	es     *client.ESClient
	index  string
	logger *zap.Logger
}

func NewCatalogIndex(es *client.ESClient, index string, logger *zap.Logger) *CatalogIndex {
	return &CatalogIndex{es: es, index: index, logger: logger}
}

// IndexFood upserts one food document. Indexing failures are reported but
// never block catalog writes; the caller decides whether to log and move on.
func (c *CatalogIndex) IndexFood(food *models.Food) error {
	res, err := c.es.IndexDocument(c.index, strconv.FormatInt(food.FoodID, 10), food)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch index error: %s", res.String())
	}
	c.logger.Debug("Food indexed",
		zap.Int64("food_id", food.FoodID),
		zap.String("index", c.index))
	return nil
}

// SearchFoods runs a match query over name, description and category.
func (c *CatalogIndex) SearchFoods(term string, size int) ([]models.Food, error) {
	query := map[string]interface{}{
		"size": size,
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  term,
				"fields": []string{"name^2", "description", "category"},
			},
		},
	}

	res, err := c.es.Search(c.index, query)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch search error: %s", res.String())
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read search response: %w", err)
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source models.Food `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	foods := make([]models.Food, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		foods = append(foods, hit.Source)
	}
	return foods, nil
}
