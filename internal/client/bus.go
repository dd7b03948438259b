package client

import "sync"

// Topic names one category of client-side event. Surfaces (UI layers, loggers,
// tests) subscribe per topic rather than switching on message types.
type Topic string

const (
	TopicConnectionState Topic = "connection_state"
	TopicPrice           Topic = "price"
	TopicViewers         Topic = "viewers"
	TopicChat            Topic = "chat"
	TopicBid             Topic = "bid"
	TopicLiveStatus      Topic = "live_status"
	TopicBanState        Topic = "ban_state"
	TopicBanList         Topic = "ban_list"
	TopicFrame           Topic = "frame"
)

// Bus is a synchronous in-process pub/sub fan-out. Handlers run on the
// publisher's goroutine in subscription order, so a role state machine's
// updates are observed in the order they were applied.
type Bus struct {
	mu   sync.RWMutex
	subs map[Topic][]func(payload any)
}

func NewBus() *Bus {
	return &Bus{subs: make(map[Topic][]func(payload any))}
}

// Subscribe registers a handler for one topic. There is no unsubscribe;
// subscriptions live as long as the bus.
func (b *Bus) Subscribe(topic Topic, fn func(payload any)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = append(b.subs[topic], fn)
}

// Publish delivers the payload to every handler subscribed to the topic.
func (b *Bus) Publish(topic Topic, payload any) {
	b.mu.RLock()
	handlers := b.subs[topic]
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(payload)
	}
}
