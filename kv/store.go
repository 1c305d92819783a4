// Package kv is the key-value store the router's shared state lives in:
// string get/set/del, hash ops, set ops, pub/sub on a channel, and ping.
// RedisStore wraps redis/go-redis/v9 for production; MemoryStore is an
// in-process implementation of the same interface used by unit tests and
// single-node deployments that don't want a live Redis; BadgerStore is the
// durable embedded variant.
package kv

import "context"

// Subscription is a live pub/sub subscription. Channel delivers each
// published message until the subscription is closed.
type Subscription interface {
	Channel() <-chan string
	Close() error
}

// Store is the operation set the confirmation store and authority registry
// need from the shared key-value server.
type Store interface {
	Ping(ctx context.Context) error

	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Del(ctx context.Context, key string) error

	HSet(ctx context.Context, key, field, value string) error
	HGet(ctx context.Context, key, field string) (string, bool, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HDel(ctx context.Context, key, field string) error

	SAdd(ctx context.Context, key, member string) error
	SRem(ctx context.Context, key, member string) error
	SMembers(ctx context.Context, key string) ([]string, error)

	Publish(ctx context.Context, channel, message string) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)

	Close() error
}
