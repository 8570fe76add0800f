package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/yuresilva1/inss-study-hub/internal/config"
	"github.com/yuresilva1/inss-study-hub/internal/engine"
	"github.com/yuresilva1/inss-study-hub/internal/model"
)

// compareAndDelete removes a hash field only if it still holds the value
// that was just persisted, so a newer intent is never dropped.
var compareAndDelete = redis.NewScript(`
if redis.call("HGET", KEYS[1], ARGV[1]) == ARGV[2] then
	return redis.call("HDEL", KEYS[1], ARGV[1])
end
return 0
`)

const (
	// slotLockTTL bounds how long a crashed persister blocks a field.
	slotLockTTL = 10 * time.Second
	// slotWriteTimeout keeps a lock holder well inside slotLockTTL.
	slotWriteTimeout = 5 * time.Second
	slotLockPoll     = 20 * time.Millisecond
)

// SlotRef is the queue item. It points at a hash field, not at a value, so
// a worker always persists the latest intent regardless of queue order.
type SlotRef struct {
	ExamID string `json:"exam_id"`
	Field  string `json:"field"`
}

// SlotQueue is an engine.Sink that parks slot writes in Redis for the
// autosave worker. The latest intent per slot field lives in a hash per exam.
type SlotQueue struct {
	rdb *redis.Client
	gw  engine.Gateway
}

func NewSlotQueue(rdb *redis.Client, gw engine.Gateway) *SlotQueue {
	return &SlotQueue{rdb: rdb, gw: gw}
}

var _ engine.Sink = (*SlotQueue)(nil)

// Write records the intent and enqueues a reference to it.
func (q *SlotQueue) Write(ctx context.Context, w engine.SlotWrite) error {
	raw, err := json.Marshal(w)
	if err != nil {
		return err
	}
	ref, err := json.Marshal(SlotRef{ExamID: w.ExamID.String(), Field: w.Key()})
	if err != nil {
		return err
	}

	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, config.CacheKey.SlotIntentsKey(w.ExamID.String()), w.Key(), raw)
	pipe.RPush(ctx, config.WorkerKey.PersistSlotWritesQueue, ref)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue slot write: %w", err)
	}
	return nil
}

// Persist writes the current intent behind ref to the gateway. A field that
// is already gone was persisted by someone else and is skipped.
func (q *SlotQueue) Persist(ctx context.Context, ref SlotRef) error {
	return q.persistField(ctx, ref.ExamID, ref.Field)
}

// Flush synchronously persists every pending intent of the exam.
func (q *SlotQueue) Flush(ctx context.Context, examID uuid.UUID) error {
	fields, err := q.rdb.HKeys(ctx, config.CacheKey.SlotIntentsKey(examID.String())).Result()
	if err != nil {
		return fmt.Errorf("read slot intents: %w", err)
	}
	for _, field := range fields {
		if err := q.persistField(ctx, examID.String(), field); err != nil {
			return err
		}
	}
	return nil
}

// Pending reports how many intents of the exam are not yet durable.
func (q *SlotQueue) Pending(ctx context.Context, examID uuid.UUID) (int64, error) {
	return q.rdb.HLen(ctx, config.CacheKey.SlotIntentsKey(examID.String())).Result()
}

// persistField reads, writes and clears one field while holding its lock.
// The intent is read after the lock is taken, so whoever writes last writes
// the latest intent.
func (q *SlotQueue) persistField(ctx context.Context, examID, field string) error {
	release, err := q.lockField(ctx, examID, field)
	if err != nil {
		return err
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, slotWriteTimeout)
	defer cancel()

	key := config.CacheKey.SlotIntentsKey(examID)
	raw, err := q.rdb.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read slot intent: %w", err)
	}
	return q.persistRaw(ctx, key, field, raw)
}

func (q *SlotQueue) lockField(ctx context.Context, examID, field string) (func(), error) {
	key := config.CacheKey.SlotIntentLockKey(examID, field)
	token := uuid.NewString()
	for {
		ok, err := q.rdb.SetNX(ctx, key, token, slotLockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("lock slot intent: %w", err)
		}
		if ok {
			return func() {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				releaseLock.Run(ctx, q.rdb, []string{key}, token)
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(slotLockPoll):
		}
	}
}

func (q *SlotQueue) persistRaw(ctx context.Context, key, field, raw string) error {
	var w engine.SlotWrite
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		// Poison entry: drop it rather than block every flush.
		q.rdb.HDel(ctx, key, field)
		return fmt.Errorf("decode slot intent %s: %w", field, err)
	}
	if err := q.gw.UpdateAnswerSlot(ctx, w.SlotID, w.Update); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			q.rdb.HDel(ctx, key, field)
		}
		return err
	}
	return compareAndDelete.Run(ctx, q.rdb, []string{key}, field, raw).Err()
}
