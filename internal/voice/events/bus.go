// Package events fans quality updates out to in-process subscribers
// (monitoring endpoints, tests) and publishes them on Redis for
// external dashboards. Publishing never blocks the voice path.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// QualityChannel is the Redis pub/sub channel for quality updates.
const QualityChannel = "voice:quality"

// QualityUpdate is one scored snapshot of a call.
type QualityUpdate struct {
	CallSID        string             `json:"call_sid"`
	ConversationID string             `json:"conversation_id"`
	Overall        float64            `json:"overall"`
	Breakdown      map[string]float64 `json:"breakdown"`
	Flags          []string           `json:"flags,omitempty"`
	Timestamp      time.Time          `json:"timestamp"`
}

// Bus delivers quality updates. Slow subscribers lose updates rather
// than stalling the publisher.
type Bus struct {
	redisClient *redis.Client
	logger      *zap.Logger

	mu   sync.Mutex
	subs map[int]chan QualityUpdate
	next int
}

// NewBus creates a bus. redisClient may be nil, in which case updates
// stay in-process.
func NewBus(redisClient *redis.Client, logger *zap.Logger) *Bus {
	return &Bus{
		redisClient: redisClient,
		logger:      logger,
		subs:        make(map[int]chan QualityUpdate),
	}
}

// Subscribe returns a channel of updates and a cancel function. The
// channel is closed on cancel.
func (b *Bus) Subscribe(buffer int) (<-chan QualityUpdate, func()) {
	if buffer < 1 {
		buffer = 16
	}
	ch := make(chan QualityUpdate, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers the update to all subscribers and Redis.
func (b *Bus) Publish(update QualityUpdate) {
	if update.Timestamp.IsZero() {
		update.Timestamp = time.Now()
	}

	b.mu.Lock()
	for _, ch := range b.subs {
		select {
		case ch <- update:
		default:
			// Subscriber is behind; drop rather than block.
		}
	}
	b.mu.Unlock()

	if b.redisClient == nil {
		return
	}
	payload, err := json.Marshal(update)
	if err != nil {
		b.logger.Warn("failed to marshal quality update", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.redisClient.Publish(ctx, QualityChannel, payload).Err(); err != nil {
		b.logger.Warn("failed to publish quality update",
			zap.String("call_sid", update.CallSID), zap.Error(err))
	}
}
