package intent

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"zcash-near-intents/pkg/swaperr"
)

// NonceAllocator hands out nonces that are unique and increasing per signer
type NonceAllocator interface {
	Next(ctx context.Context, signer string) (uint64, error)
}

// MemoryNonces allocates nonces in-process. Counters are seeded from the wall clock so a
// restarted process does not reuse nonces the relay has already seen.
type MemoryNonces struct {
	mu   sync.Mutex
	last map[string]uint64
	now  func() time.Time
}

// NewMemoryNonces creates an in-process allocator
func NewMemoryNonces() *MemoryNonces {
	return &MemoryNonces{
		last: make(map[string]uint64),
		now:  time.Now,
	}
}

// Next returns the next nonce for signer
func (m *MemoryNonces) Next(ctx context.Context, signer string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, swaperr.Wrap(swaperr.KindCancelled, "nonce.next", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	n := uint64(m.now().UnixNano())
	if last := m.last[signer]; n <= last {
		n = last + 1
	}
	m.last[signer] = n
	return n, nil
}

// RedisNonceConfig describes the Redis connection for shared nonces
type RedisNonceConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string
}

// RedisNonces allocates nonces with an atomic INCR so several processes can share a signer
type RedisNonces struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisNonces connects to Redis and verifies the connection
func NewRedisNonces(ctx context.Context, cfg RedisNonceConfig) (*RedisNonces, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "failed to connect to redis")
	}
	return NewRedisNoncesFromClient(client, cfg.Prefix), nil
}

// NewRedisNoncesFromClient wraps an existing client
func NewRedisNoncesFromClient(client redis.UniversalClient, prefix string) *RedisNonces {
	if prefix == "" {
		prefix = "zni:nonce:"
	}
	return &RedisNonces{client: client, prefix: prefix, now: time.Now}
}

// Next returns the next nonce for signer
func (r *RedisNonces) Next(ctx context.Context, signer string) (uint64, error) {
	const op = "nonce.next"
	key := r.prefix + signer

	// First use seeds the counter from the clock; SETNX leaves an existing counter alone.
	if err := r.client.SetNX(ctx, key, r.now().UnixNano(), 0).Err(); err != nil {
		return 0, swaperr.Wrap(swaperr.KindNetwork, op, errors.Wrap(err, "failed to seed nonce counter"))
	}
	n, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, swaperr.Wrap(swaperr.KindNetwork, op, errors.Wrap(err, "failed to increment nonce counter"))
	}
	return uint64(n), nil
}

// Close releases the Redis connection
func (r *RedisNonces) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}
