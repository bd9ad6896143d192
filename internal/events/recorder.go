package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"order-service/internal/bucketing"
	"order-service/internal/client"
	"order-service/internal/models"
)

const insertEventsQuery = `
    INSERT INTO ordering_events (event_type, user_id, entity_id, quantity, date_bucket, created_at)`

// Recorder fans ordering activity out to Kafka (per event) and ClickHouse
// (batched). Recording is best-effort: analytics failures never fail the
// request that produced the event.
type Recorder struct {
	producer   *client.KafkaProducer
	clickhouse *client.ClickHouseClient
	topic      string
	buckets    *bucketing.Manager
	logger     *zap.Logger

	mu     sync.Mutex
	buffer []models.ActivityEvent

	flushEvery time.Duration
	done       chan struct{}
	closeOnce  sync.Once
}

func NewRecorder(producer *client.KafkaProducer, ch *client.ClickHouseClient, topic string, buckets *bucketing.Manager, logger *zap.Logger) *Recorder {
	r := &Recorder{
		producer:   producer,
		clickhouse: ch,
		topic:      topic,
		buckets:    buckets,
		logger:     logger,
		flushEvery: 10 * time.Second,
		done:       make(chan struct{}),
	}
	go r.flushLoop()
	return r
}

// Record publishes the event to Kafka and queues it for the next ClickHouse
// batch.
func (r *Recorder) Record(ctx context.Context, event models.ActivityEvent) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if event.DateBucket == "" {
		event.DateBucket = r.buckets.DateBucket(event.CreatedAt)
	}

	if r.producer != nil {
		value, err := json.Marshal(event)
		if err == nil {
			if err := r.producer.ProduceMessage(ctx, r.topic, []byte(event.EventType), value, nil); err != nil {
				r.logger.Warn("Failed to produce activity event",
					zap.String("event_type", event.EventType),
					zap.Error(err))
			}
		}
	}

	r.mu.Lock()
	r.buffer = append(r.buffer, event)
	r.mu.Unlock()
}

func (r *Recorder) flushLoop() {
	ticker := time.NewTicker(r.flushEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Flush(context.Background())
		case <-r.done:
			r.Flush(context.Background())
			return
		}
	}
}

// Flush drains the buffer into one ClickHouse batch insert.
func (r *Recorder) Flush(ctx context.Context) {
	r.mu.Lock()
	pending := r.buffer
	r.buffer = nil
	r.mu.Unlock()

	if len(pending) == 0 || r.clickhouse == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	rows := make([][]interface{}, 0, len(pending))
	for _, ev := range pending {
		rows = append(rows, []interface{}{
			ev.EventType, ev.UserID, ev.EntityID, ev.Quantity, ev.DateBucket, ev.CreatedAt,
		})
	}

	if err := r.clickhouse.BatchInsert(ctx, insertEventsQuery, rows); err != nil {
		r.logger.Warn("Failed to flush activity events",
			zap.Int("count", len(rows)),
			zap.Error(err))
		return
	}
	r.logger.Debug("Activity events flushed", zap.Int("count", len(rows)))
}

func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
	})
}
