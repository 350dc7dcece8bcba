package intent

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertDistinctConcurrent(t *testing.T, alloc NonceAllocator, signer string, n int) {
	t.Helper()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[uint64]struct{}, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			nonce, err := alloc.Next(context.Background(), signer)
			assert.NoError(t, err)
			mu.Lock()
			seen[nonce] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, n)
}

func TestMemoryNoncesConcurrent(t *testing.T) {
	assertDistinctConcurrent(t, NewMemoryNonces(), "alice.near", 200)
}

func TestMemoryNoncesMonotonicWithFrozenClock(t *testing.T) {
	m := NewMemoryNonces()
	frozen := time.Unix(1700000000, 0)
	m.now = func() time.Time { return frozen }

	a, err := m.Next(context.Background(), "alice.near")
	require.NoError(t, err)
	b, err := m.Next(context.Background(), "alice.near")
	require.NoError(t, err)
	assert.Equal(t, a+1, b)

	c, err := m.Next(context.Background(), "bob.near")
	require.NoError(t, err)
	assert.Equal(t, a, c, "signers have independent counters")
}

func TestMemoryNoncesCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemoryNonces().Next(ctx, "alice.near")
	assert.Error(t, err)
}

func TestRedisNoncesConcurrent(t *testing.T) {
	addr := os.Getenv("ZNI_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ZNI_TEST_REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	prefix := "zni:test:" + uuid.NewString() + ":"
	r := NewRedisNoncesFromClient(client, prefix)
	defer r.Close()
	defer client.Del(context.Background(), prefix+"alice.near")

	assertDistinctConcurrent(t, r, "alice.near", 50)
}
