package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/yuresilva1/inss-study-hub/internal/cache"
	"github.com/yuresilva1/inss-study-hub/internal/config"
	"github.com/yuresilva1/inss-study-hub/internal/metrics"
	"github.com/yuresilva1/inss-study-hub/internal/model"
)

const autosavePollTimeout = time.Second

// AutosaveWorker consumes persist_slot_writes_queue and persists the latest
// slot intent behind each reference. Failed items are not requeued: the
// intent stays in its hash and the next flush of that exam retries it.
type AutosaveWorker struct {
	rdb     *redis.Client
	queue   *cache.SlotQueue
	notices *cache.Notices
	log     zerolog.Logger
}

// NewAutosaveWorker creates a new AutosaveWorker.
func NewAutosaveWorker(rdb *redis.Client, queue *cache.SlotQueue, notices *cache.Notices, log zerolog.Logger) *AutosaveWorker {
	return &AutosaveWorker{
		rdb:     rdb,
		queue:   queue,
		notices: notices,
		log:     log.With().Str("component", "autosave_worker").Logger(),
	}
}

// Start begins the worker loop. Call in a goroutine.
func (w *AutosaveWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			w.drain(drainCtx)
			cancel()
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *AutosaveWorker) processNext(ctx context.Context) {
	result, err := w.rdb.BLPop(ctx, autosavePollTimeout, config.WorkerKey.PersistSlotWritesQueue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
			time.Sleep(autosavePollTimeout)
		}
		return
	}
	if len(result) < 2 {
		return
	}
	w.handle(ctx, result[1])
}

func (w *AutosaveWorker) handle(ctx context.Context, raw string) {
	var ref cache.SlotRef
	if err := json.Unmarshal([]byte(raw), &ref); err != nil {
		w.log.Error().Err(err).Msg("Unmarshal error")
		return
	}

	err := w.queue.Persist(ctx, ref)
	if err == nil {
		return
	}

	metrics.SlotWriteFailures.WithLabelValues("queued").Inc()
	w.log.Error().Err(err).
		Str("exam_id", ref.ExamID).
		Str("field", ref.Field).
		Msg("Persist error")

	if errors.Is(err, model.ErrNotFound) {
		return
	}
	examID, perr := uuid.Parse(ref.ExamID)
	if perr != nil || w.notices == nil {
		return
	}
	if perr := w.notices.Publish(ctx, examID, cache.Notice{
		ExamID:  ref.ExamID,
		Field:   ref.Field,
		Message: "Não foi possível salvar sua resposta. Tentaremos novamente ao finalizar.",
	}); perr != nil {
		w.log.Warn().Err(perr).Msg("Publish notice failed")
	}
}

// drain processes the items left in the queue before shutdown.
func (w *AutosaveWorker) drain(ctx context.Context) {
	drained := 0
	for ctx.Err() == nil {
		raw, err := w.rdb.LPop(ctx, config.WorkerKey.PersistSlotWritesQueue).Result()
		if err != nil {
			break
		}
		w.handle(ctx, raw)
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
