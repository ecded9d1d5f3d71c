package state

import "context"

// Store is a small durable key/value surface. The gateway uses it to journal
// outstanding order ids across restarts, and the replay tool records run
// results in it. The decision core itself never touches disk.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}
