package api

import (
	"sync"
)

// SSEEvent is one planning event fanned out to stream subscribers.
type SSEEvent struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// EventBroker fans out plan events per tenant.
type EventBroker interface {
	Subscribe(tenantID string) chan SSEEvent
	Unsubscribe(tenantID string, ch chan SSEEvent)
	Publish(tenantID string, evt SSEEvent)
}

// Broker is the in-process fan-out used when no Redis is configured.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan SSEEvent]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan SSEEvent]struct{}{}}
}

func (b *Broker) Subscribe(tenantID string) chan SSEEvent {
	ch := make(chan SSEEvent, 8)
	b.mu.Lock()
	if b.subs[tenantID] == nil {
		b.subs[tenantID] = map[chan SSEEvent]struct{}{}
	}
	b.subs[tenantID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(tenantID string, ch chan SSEEvent) {
	b.mu.Lock()
	if m := b.subs[tenantID]; m != nil {
		delete(m, ch)
		if len(m) == 0 {
			delete(b.subs, tenantID)
		}
	}
	b.mu.Unlock()
	close(ch)
}

func (b *Broker) Publish(tenantID string, evt SSEEvent) {
	b.mu.Lock()
	for ch := range b.subs[tenantID] {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.Unlock()
}
