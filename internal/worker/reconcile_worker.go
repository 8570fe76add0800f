package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yuresilva1/inss-study-hub/internal/engine"
)

// StaleExamSource lists in-progress exams whose time limit ran out before cutoff.
type StaleExamSource interface {
	ListStaleExams(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
}

// FinalizeFunc forces finalization of one exam.
type FinalizeFunc func(ctx context.Context, examID uuid.UUID) (*engine.Result, error)

// ReconcileWorker finalizes exams abandoned past their deadline, e.g. when the
// browser was closed or the process died mid-exam.
type ReconcileWorker struct {
	source   StaleExamSource
	finalize FinalizeFunc
	interval time.Duration
	grace    time.Duration
	batch    int
	now      func() time.Time
	log      zerolog.Logger
}

func NewReconcileWorker(source StaleExamSource, finalize FinalizeFunc, interval, grace time.Duration, batch int, log zerolog.Logger) *ReconcileWorker {
	if batch <= 0 {
		batch = 50
	}
	return &ReconcileWorker{
		source:   source,
		finalize: finalize,
		interval: interval,
		grace:    grace,
		batch:    batch,
		now:      time.Now,
		log:      log.With().Str("component", "reconcile_worker").Logger(),
	}
}

func (w *ReconcileWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("ReconcileWorker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.RunOnce(ctx)
		select {
		case <-ctx.Done():
			w.log.Info().Msg("ReconcileWorker stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce finalizes one batch of stale exams and returns how many converged.
func (w *ReconcileWorker) RunOnce(ctx context.Context) int {
	stale, err := w.source.ListStaleExams(ctx, w.now().Add(-w.grace), w.batch)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Error().Err(err).Msg("list stale exams failed")
		}
		return 0
	}

	done := 0
	for _, examID := range stale {
		if ctx.Err() != nil {
			break
		}
		res, err := w.finalize(ctx, examID)
		switch {
		case err == nil:
			done++
			w.log.Info().
				Str("exam_id", examID.String()).
				Int("total_correct", res.TotalCorrect).
				Float64("score", res.Score).
				Msg("stale exam finalized")
		case errors.Is(err, engine.ErrFinalizeInProgress):
			w.log.Debug().Str("exam_id", examID.String()).Msg("finalize already running elsewhere")
		default:
			w.log.Error().Err(err).Str("exam_id", examID.String()).Msg("finalize stale exam failed")
		}
	}
	return done
}
