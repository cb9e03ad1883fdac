// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package index

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/redis/go-redis/v9"

	"github.com/ava-labs/paranode/block"
	"github.com/ava-labs/paranode/config"
)

const pingTimeout = 5 * time.Second

var (
	_ Index       = (*Redis)(nil)
	_ redisClient = (*goRedisClient)(nil)

	errKeyNotFound = errors.New("key not found")
)

// redisClient is the subset of redis used by the index.
type redisClient interface {
	MSet(ctx context.Context, pairs map[string][]byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Close() error
}

type goRedisClient struct {
	client *redis.Client
}

func newGoRedisClient(ctx context.Context, c config.IndexConfig) (*goRedisClient, error) {
	if c.RedisAddr == "" {
		return nil, errors.New("redis address cannot be empty")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	})
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", c.RedisAddr, err)
	}
	return &goRedisClient{client: client}, nil
}

func (c *goRedisClient) MSet(ctx context.Context, pairs map[string][]byte) error {
	if len(pairs) == 0 {
		return nil
	}
	values := make([]interface{}, 0, 2*len(pairs))
	for k, v := range pairs {
		values = append(values, k, v)
	}
	return c.client.MSet(ctx, values...).Err()
}

func (c *goRedisClient) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errKeyNotFound
	}
	return b, err
}

func (c *goRedisClient) Close() error {
	return c.client.Close()
}

// Redis keeps the index in a shared redis instance. Keys are namespaced by
// chain so several nodes can share one server.
type Redis struct {
	client    redisClient
	namespace string
}

func NewRedis(client redisClient, namespace string) *Redis {
	return &Redis{client: client, namespace: namespace}
}

func (r *Redis) key(txID ids.ID) string {
	return r.namespace + ":tx:" + txID.String()
}

func (r *Redis) IndexBlock(ctx context.Context, b *block.Block) error {
	pairs := make(map[string][]byte, len(b.Txs))
	for txID, loc := range locations(b) {
		pairs[r.key(txID)] = loc.bytes()
	}
	return r.client.MSet(ctx, pairs)
}

func (r *Redis) TxLocation(ctx context.Context, txID ids.ID) (Location, error) {
	v, err := r.client.Get(ctx, r.key(txID))
	if errors.Is(err, errKeyNotFound) {
		return Location{}, ErrNotFound
	}
	if err != nil {
		return Location{}, err
	}
	return parseLocation(v)
}

func (r *Redis) Close() error {
	return r.client.Close()
}
