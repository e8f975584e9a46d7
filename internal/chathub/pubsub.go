package chathub

import (
	"context"
	"encoding/json"
	"fmt"
	"strangerchat/backend/internal/models"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const eventsChannel = "{mm}:events"

// RedisRelay fans events out to every node. Notify publishes; Listen hands
// whatever arrives to the local hub, so an actor connected to any node gets
// events produced on any other.
type RedisRelay struct {
	Redis redis.UniversalClient
	Local Notifier
}

func NewRedisRelay(rdb redis.UniversalClient, local Notifier) *RedisRelay {
	return &RedisRelay{Redis: rdb, Local: local}
}

func (r *RedisRelay) Notify(ctx context.Context, ev models.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := r.Redis.Publish(ctx, eventsChannel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

// Listen blocks until ctx is done.
func (r *RedisRelay) Listen(ctx context.Context) error {
	pubsub := r.Redis.Subscribe(ctx, eventsChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", eventsChannel, err)
	}
	log.Infof("Listening for events on %s", eventsChannel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev models.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Errorf("Error unmarshalling relayed event: %v", err)
				continue
			}
			if err := r.Local.Notify(ctx, ev); err != nil {
				log.Warnf("Failed to deliver relayed %s to %s: %v", ev.Type, ev.ActorID, err)
			}
		}
	}
}
