package oracle

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisLastKnown keeps the last good price per symbol in Redis so a restarted
// process can serve it before falling back to the hard-coded constant.
type RedisLastKnown struct {
	Client *redis.Client
	Prefix string
}

func (r *RedisLastKnown) key(symbol string) string {
	prefix := r.Prefix
	if prefix == "" {
		prefix = "agenthub:price:"
	}
	return prefix + NormalizeSymbol(symbol)
}

func (r *RedisLastKnown) Load(ctx context.Context, symbol string) (Price, bool, error) {
	if r == nil || r.Client == nil {
		return Price{}, false, nil
	}
	raw, err := r.Client.Get(ctx, r.key(symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Price{}, false, nil
	}
	if err != nil {
		return Price{}, false, err
	}
	var p Price
	if err := json.Unmarshal(raw, &p); err != nil {
		return Price{}, false, err
	}
	return p, true, nil
}

func (r *RedisLastKnown) Store(ctx context.Context, p Price) error {
	if r == nil || r.Client == nil {
		return nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return r.Client.Set(ctx, r.key(p.Symbol), raw, 0).Err()
}
