package broker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Relay carries frames to clients connected to other broker instances.
type Relay interface {
	Publish(ctx context.Context, msg *Message) error
	// Subscribe delivers frames published by any instance until the
	// returned close function is called.
	Subscribe(ctx context.Context, deliver func(*Message)) (func() error, error)
}

// RedisRelay fans frames out over a Redis pub/sub channel. Every instance
// sees every frame and keeps those addressed to its own clients.
type RedisRelay struct {
	rdb     *redis.Client
	channel string
	log     *slog.Logger
}

func NewRedisRelay(rdb *redis.Client, log *slog.Logger) *RedisRelay {
	if log == nil {
		log = slog.Default()
	}
	return &RedisRelay{rdb: rdb, channel: "p2pshare:relay", log: log}
}

func (r *RedisRelay) Publish(ctx context.Context, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, r.channel, data).Err()
}

func (r *RedisRelay) Subscribe(ctx context.Context, deliver func(*Message)) (func() error, error) {
	ps := r.rdb.Subscribe(ctx, r.channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, err
	}

	go func() {
		for m := range ps.Channel() {
			var msg Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				r.log.Warn("malformed relay frame", "error", err)
				continue
			}
			deliver(&msg)
		}
	}()
	return ps.Close, nil
}
