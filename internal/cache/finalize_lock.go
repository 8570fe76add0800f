package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/yuresilva1/inss-study-hub/internal/config"
	"github.com/yuresilva1/inss-study-hub/internal/engine"
)

var releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// FinalizeLock keeps two processes from finalizing the same exam at once.
// The TTL bounds how long a crashed holder can block others.
type FinalizeLock struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewFinalizeLock(rdb *redis.Client, ttl time.Duration) *FinalizeLock {
	return &FinalizeLock{rdb: rdb, ttl: ttl}
}

var _ engine.Lock = (*FinalizeLock)(nil)

func (l *FinalizeLock) Acquire(ctx context.Context, examID uuid.UUID) (func(), error) {
	key := config.CacheKey.FinalizeLockKey(examID.String())
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire finalize lock: %w", err)
	}
	if !ok {
		return nil, engine.ErrFinalizeInProgress
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		releaseLock.Run(ctx, l.rdb, []string{key}, token)
	}, nil
}
