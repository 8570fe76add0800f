package engine

import (
	"context"

	"github.com/yuresilva1/inss-study-hub/internal/model"
)

// SelectAnswer sets the answer of the current slot. The in-memory state
// changes immediately; the write is queued and its failure, if any, is
// reported as a notice event rather than returned.
func (s *Session) SelectAnswer(ctx context.Context, opt model.Option) error {
	if !opt.Valid() {
		return ErrInvalidOption
	}
	var opErr error
	err := s.do(ctx, func() {
		if opErr = s.mutable(); opErr != nil {
			return
		}
		slot := &s.slots[s.cursor]
		slot.UserAnswer = opt
		s.writer.Enqueue(SlotWrite{
			ExamID: s.id,
			SlotID: slot.ID,
			Field:  FieldUserAnswer,
			Update: model.SlotUpdate{UserAnswer: &opt},
		})
		s.emit(Event{Type: EventState, View: s.view()})
	})
	if err != nil {
		return err
	}
	return opErr
}

// ToggleFlag inverts the flag of the current slot. Flags never affect scoring.
func (s *Session) ToggleFlag(ctx context.Context) (bool, error) {
	var (
		flagged bool
		opErr   error
	)
	err := s.do(ctx, func() {
		if opErr = s.mutable(); opErr != nil {
			return
		}
		slot := &s.slots[s.cursor]
		slot.IsFlagged = !slot.IsFlagged
		flagged = slot.IsFlagged
		s.writer.Enqueue(SlotWrite{
			ExamID: s.id,
			SlotID: slot.ID,
			Field:  FieldIsFlagged,
			Update: model.SlotUpdate{IsFlagged: &flagged},
		})
		s.emit(Event{Type: EventState, View: s.view()})
	})
	if err != nil {
		return false, err
	}
	return flagged, opErr
}

// GoTo books the time spent on the slot being left and moves the cursor to
// index (0-based). Callers clamp index; an out of range value is fatal to the
// session. Nothing is persisted here.
func (s *Session) GoTo(ctx context.Context, index int) error {
	var opErr error
	err := s.do(ctx, func() {
		if opErr = s.mutable(); opErr != nil {
			return
		}
		if index < 0 || index >= len(s.slots) {
			opErr = s.fail(violation("goto index %d out of range [0,%d)", index, len(s.slots)))
			return
		}
		s.accumulate()
		s.cursor = index
		s.emit(Event{Type: EventState, View: s.view()})
	})
	if err != nil {
		return err
	}
	return opErr
}

// Finish finalizes the exam on explicit user request. Calling it again after
// success returns the same result.
func (s *Session) Finish(ctx context.Context) (*Result, error) {
	return s.finish(ctx, ReasonExplicit)
}

func (s *Session) finish(ctx context.Context, reason Reason) (*Result, error) {
	var (
		res   *Result
		opErr error
	)
	err := s.do(ctx, func() { res, opErr = s.finalize(ctx, reason) })
	if err != nil {
		return nil, err
	}
	return res, opErr
}
