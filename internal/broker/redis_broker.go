package broker

import (
	"context"
	"encoding/json"

	"github.com/Baaaki/postboard/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const eventsChannel = "posts:events"

// RedisBroker implements Broker on Redis pub/sub so every API instance sees every event.
type RedisBroker struct {
	client *redis.Client
}

func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

func (r *RedisBroker) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, eventsChannel, data).Err()
}

func (r *RedisBroker) Subscribe(ctx context.Context) (<-chan Event, error) {
	pubsub := r.client.Subscribe(ctx, eventsChannel)
	// Wait for the subscription to be confirmed so no event published afterwards is lost
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	events := make(chan Event, 100)

	go func() {
		defer close(events)
		defer pubsub.Close()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					logger.Log.Warn("Broker: dropping malformed event", zap.Error(err))
					continue
				}
				select {
				case events <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return events, nil
}

func (r *RedisBroker) Close() error {
	return r.client.Close()
}
