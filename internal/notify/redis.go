package notify

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// RedisSink publishes each event as JSON on a pub/sub channel.
type RedisSink struct {
	Client  *redis.Client
	Channel string
}

func (s RedisSink) Notify(ctx context.Context, ev ResolutionEvent) error {
	if s.Client == nil || s.Channel == "" {
		return nil
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.Client.Publish(ctx, s.Channel, b).Err()
}
