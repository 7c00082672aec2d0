package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis es una ventana fija compartida entre nodos. El contador vence con
// la ventana; una clave sin TTL se repara en el siguiente intento.
type Redis struct {
	client redis.Cmdable
	prefix string
	max    int
	window time.Duration
}

func NewRedis(client redis.Cmdable, prefix string, max int, window time.Duration) *Redis {
	if window <= 0 {
		window = time.Hour
	}
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &Redis{client: client, prefix: prefix, max: max, window: window}
}

func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	if r.max <= 0 {
		return true, nil
	}
	k := fmt.Sprintf("%s:%s", r.prefix, key)

	n, err := r.client.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("ratelimit: incr: %w", err)
	}
	if n == 1 {
		if err := r.expire(ctx, k); err != nil {
			return false, err
		}
		return n <= int64(r.max), nil
	}

	// Un EXPIRE fallido deja la clave sin TTL (-1): sin esto el actor
	// quedaría bloqueado para siempre.
	ttl, err := r.client.TTL(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("ratelimit: ttl: %w", err)
	}
	if ttl < 0 {
		if err := r.expire(ctx, k); err != nil {
			return false, err
		}
	}
	return n <= int64(r.max), nil
}

func (r *Redis) expire(ctx context.Context, k string) error {
	if err := r.client.Expire(ctx, k, r.window).Err(); err != nil {
		return fmt.Errorf("ratelimit: expire: %w", err)
	}
	return nil
}

// Connect abre un cliente desde una URL redis:// y verifica con PING.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ratelimit: failed to connect to redis: %w", err)
	}
	return client, nil
}
