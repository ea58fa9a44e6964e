package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

// AcquireSaleLock takes a short-lived cross-process lock on a sale so that
// two operators cannot drive release and refund through the gateway at the
// same time. The DB row lock is the source of truth; this keeps the second
// caller from even reaching the gateway.
func (c *Cache) AcquireSaleLock(ctx context.Context, saleID string, ttl time.Duration) (bool, error) {
	res := c.client.SetNX(ctx, "sale-lock:"+saleID, "1", ttl)
	return res.Val(), res.Err()
}

func (c *Cache) ReleaseSaleLock(ctx context.Context, saleID string) error {
	return c.client.Del(ctx, "sale-lock:"+saleID).Err()
}
