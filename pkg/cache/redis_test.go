package cache

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisCache_PingFailure(t *testing.T) {
	_, err := NewRedisCache(
		WithRedisAddr("127.0.0.1:1"),
		WithRedisPool(1, 0, time.Second),
		func(c *RedisConfig) { c.PingTimeout = 500 * time.Millisecond },
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping 127.0.0.1:1")
}

func TestRedisCache_KeyPrefix(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { _ = client.Close() })

	c := NewRedisCacheWithClient(client, "quantpipe")
	assert.Equal(t, "quantpipe:alert:1", c.wrapKey(GenerateKey("alert", "1")))
	assert.Equal(t, []string{"quantpipe:a", "quantpipe:b"}, c.wrapKeys("a", "b"))

	bare := NewRedisCacheWithClient(client, "")
	assert.Equal(t, "alert:1", bare.wrapKey("alert:1"))
}
