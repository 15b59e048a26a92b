package notify

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Subscriber streams the encoded Messages published to a room. The returned
// channel is closed once ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context, room Room) (<-chan []byte, error)
}

// RedisSubscriber reads room channels over Redis Pub/Sub.
type RedisSubscriber struct {
	rdb *redis.Client
}

func NewRedisSubscriber(rdb *redis.Client) *RedisSubscriber {
	return &RedisSubscriber{rdb: rdb}
}

func (s *RedisSubscriber) Subscribe(ctx context.Context, room Room) (<-chan []byte, error) {
	pubsub := s.rdb.Subscribe(ctx, Channel(room))
	// Wait for the subscription confirmation so no message published right
	// after Subscribe returns is lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	out := make(chan []byte, 16)
	go func() {
		defer close(out)
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Hub is an in-process Publisher and Subscriber for single-instance
// deployments and tests. Slow subscribers drop messages instead of blocking
// publishers.
type Hub struct {
	mu   sync.Mutex
	subs map[Room]map[chan []byte]struct{}
	now  func() time.Time
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[Room]map[chan []byte]struct{}),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (h *Hub) Publish(_ context.Context, room Room, event Event, payload any) error {
	msg, err := Encode(room, event, payload, h.now())
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[room] {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

func (h *Hub) Subscribe(ctx context.Context, room Room) (<-chan []byte, error) {
	ch := make(chan []byte, 16)

	h.mu.Lock()
	if h.subs[room] == nil {
		h.subs[room] = make(map[chan []byte]struct{})
	}
	h.subs[room][ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs[room], ch)
		if len(h.subs[room]) == 0 {
			delete(h.subs, room)
		}
		h.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

// Subscribers reports how many subscriptions room currently has.
func (h *Hub) Subscribers(room Room) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[room])
}

var (
	_ Publisher  = (*Hub)(nil)
	_ Subscriber = (*Hub)(nil)
	_ Subscriber = (*RedisSubscriber)(nil)
)
