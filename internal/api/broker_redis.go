package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisBroker implements EventBroker over Redis Pub/Sub so plan events reach
// subscribers on every API instance.
type RedisBroker struct {
	rdb *redis.Client

	mu  sync.Mutex
	ps  map[chan SSEEvent]*redis.PubSub
}

func NewRedisBroker(rdb *redis.Client) *RedisBroker {
	return &RedisBroker{rdb: rdb, ps: map[chan SSEEvent]*redis.PubSub{}}
}

func (b *RedisBroker) Subscribe(tenantID string) chan SSEEvent {
	ch := make(chan SSEEvent, 16)
	ctx := context.Background()
	ps := b.rdb.Subscribe(ctx, b.chanName(tenantID))
	// initial receive confirms the subscription
	_, _ = ps.Receive(ctx)
	b.mu.Lock()
	b.ps[ch] = ps
	b.mu.Unlock()
	go func() {
		for msg := range ps.Channel() {
			var evt SSEEvent
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err == nil {
				select {
				case ch <- evt:
				default:
				}
			}
		}
		close(ch)
	}()
	return ch
}

func (b *RedisBroker) Unsubscribe(tenantID string, ch chan SSEEvent) {
	b.mu.Lock()
	ps := b.ps[ch]
	delete(b.ps, ch)
	b.mu.Unlock()
	if ps != nil {
		_ = ps.Close() // closes ps.Channel(), which closes ch
	}
}

func (b *RedisBroker) Publish(tenantID string, evt SSEEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, _ := json.Marshal(evt)
	_ = b.rdb.Publish(ctx, b.chanName(tenantID), data).Err()
}

func (b *RedisBroker) chanName(tenantID string) string { return "poleplan:events:" + tenantID }
