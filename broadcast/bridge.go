// broadcast/bridge.go
package broadcast

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/wfunc/puzzleserver/logger"
	"github.com/wfunc/puzzleserver/models"
)

// Bridge is the cross-process event fanout. A committed action publishes
// exactly one canonical event; every server process (the originator
// included) receives it through its subscription and feeds its mirror.
// Delivery is at-least-once, so handlers must stay idempotent.
type Bridge interface {
	Publish(ctx context.Context, channel string, ev *models.Event) error
	Subscribe(ctx context.Context, handler func(*models.Event)) error
	Close() error
}

// channelPatterns covers the full channel set: room, table and per-user.
var channelPatterns = []string{"room:*", "table:*", "user:*"}

// RedisBridge relays events over Redis Pub/Sub.
type RedisBridge struct {
	client *redis.Client
	pubsub *redis.PubSub
}

func NewRedisBridge(addr, password string, db int) (*RedisBridge, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return &RedisBridge{client: client}, nil
}

func (b *RedisBridge) Publish(ctx context.Context, channel string, ev *models.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, channel, data).Err()
}

// Subscribe attaches the handler to the full channel set and pumps messages
// until ctx is cancelled.
func (b *RedisBridge) Subscribe(ctx context.Context, handler func(*models.Event)) error {
	b.pubsub = b.client.PSubscribe(ctx, channelPatterns...)
	if _, err := b.pubsub.Receive(ctx); err != nil {
		return err
	}

	go func() {
		ch := b.pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev models.Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					logger.Log.Errorf("bridge: bad event payload on %s: %v", msg.Channel, err)
					continue
				}
				handler(&ev)
			}
		}
	}()
	return nil
}

func (b *RedisBridge) Close() error {
	if b.pubsub != nil {
		b.pubsub.Close()
	}
	return b.client.Close()
}

// LocalBridge loops events back in-process. Used by tests and single-node
// runs without a broker.
type LocalBridge struct {
	mutex    sync.RWMutex
	handlers []func(*models.Event)
}

func NewLocalBridge() *LocalBridge {
	return &LocalBridge{}
}

func (b *LocalBridge) Publish(ctx context.Context, channel string, ev *models.Event) error {
	b.mutex.RLock()
	handlers := make([]func(*models.Event), len(b.handlers))
	copy(handlers, b.handlers)
	b.mutex.RUnlock()
	for _, h := range handlers {
		h(ev)
	}
	return nil
}

func (b *LocalBridge) Subscribe(ctx context.Context, handler func(*models.Event)) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.handlers = append(b.handlers, handler)
	return nil
}

func (b *LocalBridge) Close() error { return nil }
