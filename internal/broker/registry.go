package broker

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Registry records which endpoint ids are claimed, so that one id has at
// most one owner across every broker instance sharing the registry.
type Registry interface {
	// Claim takes id for token. Reclaiming with the owning token succeeds.
	Claim(ctx context.Context, id, token string) (bool, error)
	// Refresh extends the claim of a live client.
	Refresh(ctx context.Context, id, token string) error
	// Release frees id if token still owns it.
	Release(ctx context.Context, id, token string) error
	Exists(ctx context.Context, id string) (bool, error)
}

// MemoryRegistry is a Registry for a single broker instance.
type MemoryRegistry struct {
	mu     sync.Mutex
	claims map[string]string
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{claims: make(map[string]string)}
}

func (r *MemoryRegistry) Claim(_ context.Context, id, token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if owner, ok := r.claims[id]; ok && owner != token {
		return false, nil
	}
	r.claims[id] = token
	return true, nil
}

func (r *MemoryRegistry) Refresh(context.Context, string, string) error {
	return nil
}

func (r *MemoryRegistry) Release(_ context.Context, id, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.claims[id] == token {
		delete(r.claims, id)
	}
	return nil
}

func (r *MemoryRegistry) Exists(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.claims[id]
	return ok, nil
}

// releaseScript deletes a claim only while it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisRegistry keeps claims in Redis with a TTL refreshed by client
// heartbeats, so ids of a crashed instance free themselves.
type RedisRegistry struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisRegistry(rdb *redis.Client, ttl time.Duration) *RedisRegistry {
	return &RedisRegistry{rdb: rdb, prefix: "p2pshare:id:", ttl: ttl}
}

func (r *RedisRegistry) key(id string) string {
	return r.prefix + id
}

func (r *RedisRegistry) Claim(ctx context.Context, id, token string) (bool, error) {
	ok, err := r.rdb.SetNX(ctx, r.key(id), token, r.ttl).Result()
	if err != nil || ok {
		return ok, err
	}

	owner, err := r.rdb.Get(ctx, r.key(id)).Result()
	if err == redis.Nil {
		// Expired between the two calls.
		return r.rdb.SetNX(ctx, r.key(id), token, r.ttl).Result()
	}
	if err != nil {
		return false, err
	}
	if owner != token {
		return false, nil
	}
	return true, r.rdb.Expire(ctx, r.key(id), r.ttl).Err()
}

func (r *RedisRegistry) Refresh(ctx context.Context, id, _ string) error {
	return r.rdb.Expire(ctx, r.key(id), r.ttl).Err()
}

func (r *RedisRegistry) Release(ctx context.Context, id, token string) error {
	return releaseScript.Run(ctx, r.rdb, []string{r.key(id)}, token).Err()
}

func (r *RedisRegistry) Exists(ctx context.Context, id string) (bool, error) {
	n, err := r.rdb.Exists(ctx, r.key(id)).Result()
	return n > 0, err
}
