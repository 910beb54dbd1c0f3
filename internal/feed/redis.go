package feed

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const channel = "cellstate:events"

// Redis is a Publisher/Subscriber over a redis pub/sub channel, for
// deployments where the webhook and the app session run in separate
// processes.
type Redis struct {
	client *redis.Client
}

// NewRedis connects a feed to the redis instance at url.
func NewRedis(url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &Redis{client: redis.NewClient(opts)}, nil
}

// Publish sends the change to every live subscriber.
func (r *Redis) Publish(ctx context.Context, change Change) error {
	data, err := json.Marshal(change)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, channel, data).Err()
}

// Subscribe streams changes until ctx is cancelled.
func (r *Redis) Subscribe(ctx context.Context) (<-chan Change, error) {
	pubsub := r.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		return nil, err
	}

	out := make(chan Change)
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
				var change Change
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					slog.Warn("feed: dropping malformed change payload", "error", err)
					continue
				}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close releases the underlying redis client.
func (r *Redis) Close() error {
	return r.client.Close()
}
