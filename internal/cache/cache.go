package cache

import (
	"context"
	"time"
)

// BytesCache — best-effort кэш: пайплайн обязан работать и без него.
type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
