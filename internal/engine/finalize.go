package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/yuresilva1/inss-study-hub/internal/metrics"
	"github.com/yuresilva1/inss-study-hub/internal/model"
)

// finalize runs on the loop. Explicit finish, timer expiry and replay all end
// up here, so two triggers in the same process cannot interleave. Other
// processes are kept out by the optional Lock and by the status
// compare-and-set of the final exam update.
func (s *Session) finalize(ctx context.Context, reason Reason) (*Result, error) {
	if s.fault != nil {
		return nil, s.fault
	}
	if s.result != nil {
		return s.result, nil
	}

	start := time.Now()
	res, outcome, err := s.commit(ctx, reason)
	metrics.FinalizeDuration.Observe(time.Since(start).Seconds())
	metrics.Finalizations.WithLabelValues(string(reason), outcome).Inc()

	if err != nil {
		var iv *InvariantViolation
		if errors.As(err, &iv) {
			return nil, s.fail(err)
		}
		s.log.Warn().Err(err).Str("reason", string(reason)).Msg("Finalization failed")
		s.emit(Event{Type: EventNotice, Err: err})
		return nil, err
	}

	s.result = res
	s.stopTimer()
	s.log.Info().
		Str("reason", string(reason)).
		Str("outcome", outcome).
		Int("total_correct", res.TotalCorrect).
		Float64("score", res.Score).
		Msg("Exam finalized")
	s.emit(Event{Type: EventFinished, Result: res})
	return res, nil
}

func (s *Session) commit(ctx context.Context, reason Reason) (*Result, string, error) {
	if s.lock != nil {
		release, err := s.lock.Acquire(ctx, s.id)
		if err != nil {
			return nil, "failed", err
		}
		defer release()
	}

	// Someone else may have finished the exam since it was loaded.
	current, err := s.gw.GetExam(ctx, s.id)
	if err != nil {
		return nil, "failed", persistErr("get exam", err)
	}
	if current.IsFinished() {
		res, err := StoredResult(ctx, s.gw, current)
		return res, "conflict", err
	}

	s.accumulate()
	if err := s.writer.Flush(ctx); err != nil {
		return nil, "failed", err
	}

	times := make([]model.SlotPatch, len(s.slots))
	for i := range s.slots {
		spent := s.slots[i].TimeSpentSeconds
		times[i] = model.SlotPatch{SlotID: s.slots[i].ID, Update: model.SlotUpdate{TimeSpentSeconds: &spent}}
	}
	if err := s.gw.UpdateAnswerSlots(ctx, times); err != nil {
		return nil, "failed", persistErr("slot time spent", err)
	}

	key, err := answerKey(ctx, s.gw, s.slots)
	if err != nil {
		return nil, "failed", err
	}
	scored, err := Score(s.slots, key)
	if err != nil {
		return nil, "failed", err
	}

	marks := make([]model.SlotPatch, len(scored.Marks))
	for i, m := range scored.Marks {
		correct := m.Correct
		marks[i] = model.SlotPatch{SlotID: m.SlotID, Update: model.SlotUpdate{IsCorrect: &correct}}
	}
	if err := s.gw.UpdateAnswerSlots(ctx, marks); err != nil {
		return nil, "failed", persistErr("slot correctness", err)
	}

	finished := model.ExamStatusFinished
	inProgress := model.ExamStatusInProgress
	now := s.clock.Now().UTC()
	err = s.gw.UpdateExam(ctx, s.id, model.ExamUpdate{
		Status:           &finished,
		Score:            &scored.Score,
		TotalCorrect:     &scored.TotalCorrect,
		TimeSpentSeconds: &scored.TimeSpentSeconds,
		FinishedAt:       &now,
		WhenStatus:       &inProgress,
	})
	if errors.Is(err, ErrStatusConflict) {
		stored, err := s.gw.GetExam(ctx, s.id)
		if err != nil {
			return nil, "failed", persistErr("get exam", err)
		}
		res, err := StoredResult(ctx, s.gw, stored)
		return res, "conflict", err
	}
	if err != nil {
		return nil, "failed", persistErr("exam", err)
	}

	for i := range s.slots {
		correct := scored.Marks[i].Correct
		s.slots[i].IsCorrect = &correct
	}
	s.exam.Status = finished

	scored.ExamID = s.id
	scored.Reason = reason
	scored.FinishedAt = now
	return &scored, "ok", nil
}

// Replay finalizes an exam without a live viewer. It is idempotent: a
// finished exam yields its stored result and nothing is written.
func Replay(ctx context.Context, gw Gateway, examID uuid.UUID, opts Options) (*Result, error) {
	exam, err := gw.GetExam(ctx, examID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &NotFoundError{Resource: "exam", ID: examID}
		}
		return nil, persistErr("get exam", err)
	}
	if exam.IsFinished() {
		metrics.Finalizations.WithLabelValues(string(ReasonReconcile), "replayed").Inc()
		return StoredResult(ctx, gw, exam)
	}

	// Intents still parked in the sink must be durable before the slots are
	// read, or scoring would run on stale answers.
	if opts.Sink != nil {
		if err := opts.Sink.Flush(ctx, examID); err != nil {
			return nil, persistErr("flush slot writes", err)
		}
	}

	opts.DisableTimer = true
	s, err := Load(ctx, gw, examID, opts)
	if errors.Is(err, ErrAlreadyFinished) {
		return Replay(ctx, gw, examID, opts)
	}
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return s.finish(ctx, ReasonReconcile)
}
