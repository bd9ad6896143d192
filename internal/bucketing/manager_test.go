package bucketing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"order-service/internal/config"
)

func TestUserBucketIsConsistentAndBounded(t *testing.T) {
	cfg := &config.Config{}
	cfg.Bucketing.UserBuckets = 16
	m := NewManager(cfg)

	seen := map[int]bool{}
	for _, id := range []string{"a", "b", "c", "alice@example.com", "bob@example.com"} {
		b := m.UserBucket(id)
		assert.Equal(t, b, m.UserBucket(id))
		assert.GreaterOrEqual(t, b, 0)
		assert.Less(t, b, 16)
		seen[b] = true
	}
	assert.NotEmpty(t, seen)
}

func TestDateBucketUsesUTC(t *testing.T) {
	cfg := &config.Config{}
	cfg.Bucketing.UserBuckets = 4
	m := NewManager(cfg)

	at := time.Date(2025, 3, 1, 23, 30, 0, 0, time.FixedZone("east", 3*3600))
	assert.Equal(t, "2025-03-01", m.DateBucket(at))
}
