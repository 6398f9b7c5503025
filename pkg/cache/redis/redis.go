package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

type ConnectionInfo struct {
	Addr        string
	Password    string
	DB          int
	MaxRetries  int
	DialTimeout time.Duration
	Timeout     time.Duration
}

type Client = goredis.Client

// Nil is returned by reads of missing keys.
const Nil = goredis.Nil

func NewRedisConnection(ctx context.Context, info ConnectionInfo) (*Client, error) {
	opts := &goredis.Options{
		Addr:         info.Addr,
		Password:     info.Password,
		DB:           info.DB,
		MaxRetries:   info.MaxRetries,
		DialTimeout:  info.DialTimeout,
		ReadTimeout:  info.Timeout,
		WriteTimeout: info.Timeout,
	}

	rdb := goredis.NewClient(opts)
	if err := Ping(ctx, rdb, info.Timeout); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis %s: %w", info.Addr, err)
	}

	return rdb, nil
}

// Ping checks the connection, bounded by timeout when it is positive.
func Ping(ctx context.Context, c *Client, timeout time.Duration) error {
	if c == nil {
		return errors.New("redis client is not initialized")
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return c.Ping(ctx).Err()
}

func Close(c *Client) {
	if c == nil {
		return
	}
	_ = c.Close()
}
