package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the subset of Redis operations the transaction coordinator needs.
type Cache interface {
	// Set executes the redis Set command.
	Set(ctx context.Context, key string, value string, expiration time.Duration) error
	// Get executes the redis Get command; found=false when the key is absent.
	Get(ctx context.Context, key string) (bool, string, error)
	// GetEx executes the redis GetEx command, extending the key's TTL.
	GetEx(ctx context.Context, key string, expiration time.Duration) (bool, string, error)
	// Delete executes the redis Del command.
	Delete(ctx context.Context, keys []string) (bool, error)
	// Ping tests connectivity.
	Ping(ctx context.Context) error
}

// CloseableCache is a Cache owning its own connection.
type CloseableCache interface {
	Cache
	Close() error
}

type client struct {
	conn    *Connection
	isOwner bool
}

// NewClient returns a Cache over the singleton connection opened with OpenConnection.
func NewClient() Cache {
	return &client{
		conn: connection,
	}
}

// NewConnectionClient opens a dedicated Redis connection and returns a client
// wrapper for it. Call Close when done with it.
func NewConnectionClient(options Options) CloseableCache {
	c := openConnection(options)
	return &client{
		conn:    c,
		isOwner: true,
	}
}

// Close this client's connection.
func (c *client) Close() error {
	if !c.isOwner || c.conn == nil {
		return nil
	}
	err := closeConnection(c.conn)
	c.conn = nil
	return err
}

// keyNotFound will detect whether error signifies key not found by Redis.
func (c client) keyNotFound(err error) bool {
	return err == redis.Nil
}

// Ping tests connectivity for redis (PONG should be returned).
func (c client) Ping(ctx context.Context) error {
	if c.conn == nil {
		return fmt.Errorf("Redis connection is not open, 'can't create new client")
	}
	return c.conn.Client.Ping(ctx).Err()
}

// Set executes the redis Set command.
func (c client) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	if c.conn == nil {
		return fmt.Errorf("Redis connection is not open, 'can't create new client")
	}
	// No caching if expiration < 0.
	if expiration < 0 {
		return nil
	}
	return c.conn.Client.Set(ctx, key, value, expiration).Err()
}

// Get executes the redis Get command.
func (c client) Get(ctx context.Context, key string) (bool, string, error) {
	if c.conn == nil {
		return false, "", fmt.Errorf("Redis connection is not open, 'can't create new client")
	}
	s, err := c.conn.Client.Get(ctx, key).Result()
	// Convert key not found into returning false and nil err.
	r := err == nil
	if c.keyNotFound(err) {
		err = nil
	}
	return r, s, err
}

// GetEx executes the redis GetEx command.
func (c client) GetEx(ctx context.Context, key string, expiration time.Duration) (bool, string, error) {
	if c.conn == nil {
		return false, "", fmt.Errorf("Redis connection is not open, 'can't create new client")
	}
	s, err := c.conn.Client.GetEx(ctx, key, expiration).Result()
	// Convert key not found into returning false and nil err.
	r := err == nil
	if c.keyNotFound(err) {
		err = nil
	}
	return r, s, err
}

// Delete executes the redis Del command.
func (c client) Delete(ctx context.Context, keys []string) (bool, error) {
	if c.conn == nil {
		return false, fmt.Errorf("Redis connection is not open, 'can't create new client")
	}
	rs := c.conn.Client.Del(ctx, keys...)

	err := rs.Err()
	// Convert key not found into returning false and nil err.
	r := err == nil
	if c.keyNotFound(err) {
		err = nil
	}
	return r, err
}
