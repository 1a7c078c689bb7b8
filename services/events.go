package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"delivery-impact-service/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EventPublisher delivers committed domain events to the presentation layer.
type EventPublisher interface {
	Publish(ctx context.Context, evt models.DomainEvent) error
}

// EventHub fans events out to in-process subscribers, keyed by user id.
type EventHub struct {
	mu     sync.RWMutex
	subs   map[string]map[chan models.DomainEvent]struct{}
	buffer int
	log    *zap.Logger
}

func NewEventHub(log *zap.Logger) *EventHub {
	return &EventHub{
		subs:   map[string]map[chan models.DomainEvent]struct{}{},
		buffer: 32,
		log:    log,
	}
}

// Subscribe registers a listener for userID. The returned func must be called
// to release it.
func (h *EventHub) Subscribe(userID string) (<-chan models.DomainEvent, func()) {
	ch := make(chan models.DomainEvent, h.buffer)
	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = map[chan models.DomainEvent]struct{}{}
	}
	h.subs[userID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[userID], ch)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish never blocks: a subscriber whose buffer is full misses the event.
func (h *EventHub) Publish(ctx context.Context, evt models.DomainEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[evt.UserID] {
		select {
		case ch <- evt:
		default:
			h.log.Warn("event dropped for slow subscriber",
				zap.String("user_id", evt.UserID), zap.String("type", string(evt.Type)))
		}
	}
	return nil
}

// RedisPublisher publishes each event as JSON on delivery_events:<userId>.
type RedisPublisher struct {
	Client *redis.Client
}

func EventChannel(userID string) string {
	return fmt.Sprintf("delivery_events:%s", userID)
}

func (p *RedisPublisher) Publish(ctx context.Context, evt models.DomainEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return p.Client.Publish(ctx, EventChannel(evt.UserID), payload).Err()
}

// MultiPublisher publishes to every target and joins the failures.
type MultiPublisher []EventPublisher

func (m MultiPublisher) Publish(ctx context.Context, evt models.DomainEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Emitter sends events after commit. Keys already claimed in the Deduper are
// dropped, and publish failures are logged rather than returned: the state
// change they describe has already committed.
type Emitter struct {
	Publisher EventPublisher
	Deduper   Deduper
	Log       *zap.Logger
}

func (e *Emitter) Emit(ctx context.Context, events ...models.DomainEvent) {
	if e == nil || e.Publisher == nil {
		return
	}
	for _, evt := range events {
		if e.Deduper != nil && evt.Key != "" {
			first, err := e.Deduper.Claim(ctx, evt.Key)
			if err != nil {
				e.Log.Warn("event dedupe check failed", zap.String("key", evt.Key), zap.Error(err))
			} else if !first {
				e.Log.Debug("duplicate event dropped", zap.String("key", evt.Key))
				continue
			}
		}
		if err := e.Publisher.Publish(ctx, evt); err != nil {
			e.Log.Error("failed to publish event",
				zap.String("type", string(evt.Type)),
				zap.String("user_id", evt.UserID),
				zap.Error(err))
		}
	}
}
