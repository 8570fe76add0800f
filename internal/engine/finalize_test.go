package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yuresilva1/inss-study-hub/internal/model"
)

func TestFinishScoresAndCommits(t *testing.T) {
	ctx := context.Background()
	gw := newMemGateway()
	exam := gw.seed(30, []string{"A", "B", "-", "D", "A"}, fiveKey)
	clock := newFakeClock()
	rec := newRecorder()
	s := loadSession(t, gw, exam.ID, clock, rec)

	clock.Advance(12 * time.Second)
	if err := s.GoTo(ctx, 4); err != nil {
		t.Fatal(err)
	}
	clock.Advance(8 * time.Second)

	res, err := s.Finish(ctx)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if res.TotalCorrect != 3 || res.Score != 60 {
		t.Errorf("got %d correct, score %v; want 3, 60", res.TotalCorrect, res.Score)
	}
	if res.TimeSpentSeconds != 20 {
		t.Errorf("TimeSpentSeconds = %d, want 20", res.TimeSpentSeconds)
	}
	if res.Reason != ReasonExplicit {
		t.Errorf("Reason = %s, want explicit", res.Reason)
	}
	rec.waitFor(t, EventFinished)

	stored := gw.exam(exam.ID)
	if stored.Status != model.ExamStatusFinished {
		t.Fatalf("status = %s, want finished", stored.Status)
	}
	if *stored.Score != 60 || *stored.TotalCorrect != 3 || *stored.TimeSpentSeconds != 20 {
		t.Errorf("stored terminal record = %v/%v/%v", *stored.Score, *stored.TotalCorrect, *stored.TimeSpentSeconds)
	}
	if stored.FinishedAt == nil || !stored.FinishedAt.Equal(clock.Now()) {
		t.Errorf("FinishedAt = %v, want %v", stored.FinishedAt, clock.Now())
	}

	slots, _ := gw.ListAnswerSlots(ctx, exam.ID)
	wantCorrect := []bool{true, true, false, true, false}
	wantTime := []int{12, 0, 0, 0, 8}
	for i, s := range slots {
		if s.IsCorrect == nil || *s.IsCorrect != wantCorrect[i] {
			t.Errorf("slot %d is_correct = %v, want %v", i, s.IsCorrect, wantCorrect[i])
		}
		if s.TimeSpentSeconds != wantTime[i] {
			t.Errorf("slot %d time = %d, want %d", i, s.TimeSpentSeconds, wantTime[i])
		}
	}
	if gw.questionGets != 2 {
		t.Errorf("question lookups = %d, want 2 (load + one batched key fetch)", gw.questionGets)
	}
}

func TestFinishIsIdempotent(t *testing.T) {
	ctx := context.Background()
	gw := newMemGateway()
	exam := gw.seed(30, []string{"A", "B", "-", "D", "A"}, fiveKey)
	clock := newFakeClock()
	s := loadSession(t, gw, exam.ID, clock, nil)

	clock.Advance(4 * time.Second)
	first, err := s.Finish(ctx)
	if err != nil {
		t.Fatal(err)
	}
	clock.Advance(30 * time.Second)
	second, err := s.Finish(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if second.Score != first.Score || second.TotalCorrect != first.TotalCorrect ||
		second.TimeSpentSeconds != first.TimeSpentSeconds {
		t.Errorf("second finish %+v differs from first %+v", second, first)
	}
	if updates, _ := gw.counts(); updates != 1 {
		t.Errorf("exam updated %d times, want 1", updates)
	}
	if err := s.SelectAnswer(ctx, model.OptionC); !errors.Is(err, ErrAlreadyFinished) {
		t.Errorf("expected ErrAlreadyFinished after finish, got %v", err)
	}
}

func TestFlagsDoNotAffectScore(t *testing.T) {
	ctx := context.Background()
	gw := newMemGateway()
	exam := gw.seed(30, []string{"A", "B", "-", "D", "A"}, fiveKey)
	s := loadSession(t, gw, exam.ID, newFakeClock(), nil)

	for i := 0; i < 5; i++ {
		if err := s.GoTo(ctx, i); err != nil {
			t.Fatal(err)
		}
		if _, err := s.ToggleFlag(ctx); err != nil {
			t.Fatal(err)
		}
	}
	res, err := s.Finish(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalCorrect != 3 || res.Score != 60 {
		t.Errorf("flags changed the result: %d correct, score %v", res.TotalCorrect, res.Score)
	}
}

func TestFinishFailureLeavesExamRecoverable(t *testing.T) {
	ctx := context.Background()
	gw := newMemGateway()
	gw.failExam = func(call int) error {
		if call == 1 {
			return errBoom
		}
		return nil
	}
	exam := gw.seed(30, []string{"A", "B", "-", "D", "A"}, fiveKey)
	rec := newRecorder()
	s := loadSession(t, gw, exam.ID, newFakeClock(), rec)

	_, err := s.Finish(ctx)
	var pe *PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	rec.waitFor(t, EventNotice)
	if got := gw.exam(exam.ID).Status; got != model.ExamStatusInProgress {
		t.Fatalf("status after failed finish = %s, want in_progress", got)
	}

	// The session is still live and a retry converges.
	if err := s.GoTo(ctx, 1); err != nil {
		t.Fatalf("session unusable after failed finish: %v", err)
	}
	res, err := s.Finish(ctx)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if res.TotalCorrect != 3 || res.Score != 60 {
		t.Errorf("retry result %d/%v, want 3/60", res.TotalCorrect, res.Score)
	}
}

func TestFinishConvergesWhenFinishedElsewhere(t *testing.T) {
	ctx := context.Background()

	t.Run("finished before commit", func(t *testing.T) {
		gw := newMemGateway()
		exam := gw.seed(30, []string{"A", "B", "-", "D", "A"}, fiveKey)
		s := loadSession(t, gw, exam.ID, newFakeClock(), nil)

		other, err := Replay(ctx, gw, exam.ID, Options{Clock: newFakeClock()})
		if err != nil {
			t.Fatalf("Replay: %v", err)
		}
		res, err := s.Finish(ctx)
		if err != nil {
			t.Fatalf("Finish: %v", err)
		}
		if res.Score != other.Score || res.TotalCorrect != other.TotalCorrect {
			t.Errorf("live session result %+v differs from stored %+v", res, other)
		}
		if updates, _ := gw.counts(); updates != 1 {
			t.Errorf("exam updated %d times, want 1", updates)
		}
	})

	t.Run("status compare-and-set lost", func(t *testing.T) {
		gw := newMemGateway()
		exam := gw.seed(30, []string{"A", "B", "-", "D", "A"}, fiveKey)
		gw.failExam = func(int) error {
			// Runs with the gateway locked: another finalizer commits first.
			e := gw.exams[exam.ID]
			score, correct, spent := 80.0, 4, 99
			now := time.Now()
			e.Status = model.ExamStatusFinished
			e.Score, e.TotalCorrect, e.TimeSpentSeconds, e.FinishedAt = &score, &correct, &spent, &now
			gw.exams[exam.ID] = e
			return model.ErrStatusConflict
		}
		s := loadSession(t, gw, exam.ID, newFakeClock(), nil)

		res, err := s.Finish(ctx)
		if err != nil {
			t.Fatalf("Finish: %v", err)
		}
		if res.Score != 80 || res.TotalCorrect != 4 || res.TimeSpentSeconds != 99 {
			t.Errorf("expected the stored winner's record, got %+v", res)
		}
	})
}

func TestReplay(t *testing.T) {
	ctx := context.Background()
	gw := newMemGateway()
	exam := gw.seed(30, []string{"A", "B", "-", "D", "A"}, fiveKey)

	first, err := Replay(ctx, gw, exam.ID, Options{Clock: newFakeClock()})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if first.Reason != ReasonReconcile || first.TotalCorrect != 3 || first.Score != 60 {
		t.Errorf("unexpected replay result %+v", first)
	}

	second, err := Replay(ctx, gw, exam.ID, Options{Clock: newFakeClock()})
	if err != nil {
		t.Fatalf("second Replay: %v", err)
	}
	if second.Score != first.Score || second.TotalCorrect != first.TotalCorrect ||
		second.TimeSpentSeconds != first.TimeSpentSeconds || len(second.Marks) != 5 {
		t.Errorf("second replay %+v differs from first %+v", second, first)
	}
	if updates, _ := gw.counts(); updates != 1 {
		t.Errorf("exam updated %d times, want 1", updates)
	}

	if _, err := Replay(ctx, gw, uuid.New(), Options{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown exam, got %v", err)
	}
}

func TestReplayAfterPartialFailure(t *testing.T) {
	ctx := context.Background()
	gw := newMemGateway()
	exam := gw.seed(30, []string{"A", "-", "C", "-", "E"}, fiveKey)
	gw.failExam = func(call int) error {
		if call == 1 {
			return errBoom
		}
		return nil
	}

	if _, err := Replay(ctx, gw, exam.ID, Options{Clock: newFakeClock()}); err == nil {
		t.Fatal("expected first replay to fail")
	}
	// Slots are already scored but the exam is stuck in progress.
	if got := gw.exam(exam.ID).Status; got != model.ExamStatusInProgress {
		t.Fatalf("status = %s, want in_progress", got)
	}

	res, err := Replay(ctx, gw, exam.ID, Options{Clock: newFakeClock()})
	if err != nil {
		t.Fatalf("second replay: %v", err)
	}
	if res.TotalCorrect != 3 || res.Score != 60 {
		t.Errorf("replayed result %d/%v, want 3/60", res.TotalCorrect, res.Score)
	}
}

type stubLock struct {
	mu       sync.Mutex
	held     bool
	acquired int
}

func (l *stubLock) Acquire(context.Context, uuid.UUID) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return nil, ErrFinalizeInProgress
	}
	l.held = true
	l.acquired++
	return func() {
		l.mu.Lock()
		l.held = false
		l.mu.Unlock()
	}, nil
}

func TestFinishHonoursLock(t *testing.T) {
	ctx := context.Background()
	gw := newMemGateway()
	exam := gw.seed(30, []string{"A"}, []string{"A"})
	lock := &stubLock{held: true}
	s, err := Load(ctx, gw, exam.ID, Options{Clock: newFakeClock(), Lock: lock, DisableTimer: true})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if _, err := s.Finish(ctx); !errors.Is(err, ErrFinalizeInProgress) {
		t.Fatalf("expected ErrFinalizeInProgress, got %v", err)
	}
	if updates, _ := gw.counts(); updates != 0 {
		t.Fatalf("exam updated while the lock was held elsewhere")
	}

	lock.mu.Lock()
	lock.held = false
	lock.mu.Unlock()
	if _, err := s.Finish(ctx); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if lock.acquired != 1 || lock.held {
		t.Errorf("lock acquired=%d held=%v, want 1/false", lock.acquired, lock.held)
	}
}

// parkedSink holds writes until Flush, like the Redis queue does when its
// worker is behind.
type parkedSink struct {
	gw     Gateway
	parked []SlotWrite
}

func (p *parkedSink) Write(_ context.Context, w SlotWrite) error {
	p.parked = append(p.parked, w)
	return nil
}

func (p *parkedSink) Flush(ctx context.Context, _ uuid.UUID) error {
	for _, w := range p.parked {
		if err := p.gw.UpdateAnswerSlot(ctx, w.SlotID, w.Update); err != nil {
			return err
		}
	}
	p.parked = nil
	return nil
}

func TestReplayScoresParkedWrites(t *testing.T) {
	ctx := context.Background()
	gw := newMemGateway()
	exam := gw.seed(30, []string{"A", "B", "-", "D", "A"}, fiveKey)

	slots, _ := gw.ListAnswerSlots(ctx, exam.ID)
	c := model.OptionC
	sink := &parkedSink{gw: gw, parked: []SlotWrite{{
		ExamID: exam.ID, SlotID: slots[2].ID, Field: FieldUserAnswer,
		Update: model.SlotUpdate{UserAnswer: &c},
	}}}

	res, err := Replay(ctx, gw, exam.ID, Options{Clock: newFakeClock(), Sink: sink})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if res.TotalCorrect != 4 || res.Score != 80 {
		t.Errorf("result = %d correct, score %v; want 4, 80", res.TotalCorrect, res.Score)
	}
	got := gw.slot(slots[2].ID)
	if got.UserAnswer != model.OptionC || got.IsCorrect == nil || !*got.IsCorrect {
		t.Errorf("slot 3 = %q correct=%v, want C scored correct", got.UserAnswer, got.IsCorrect)
	}
}

func TestReplayStopsWhenFlushFails(t *testing.T) {
	ctx := context.Background()
	gw := newMemGateway()
	exam := gw.seed(30, []string{"A", "B", "-", "D", "A"}, fiveKey)
	gw.failSlotWrite = func(model.SlotUpdate) error { return errBoom }

	slots, _ := gw.ListAnswerSlots(ctx, exam.ID)
	c := model.OptionC
	sink := &parkedSink{gw: gw, parked: []SlotWrite{{
		ExamID: exam.ID, SlotID: slots[2].ID, Field: FieldUserAnswer,
		Update: model.SlotUpdate{UserAnswer: &c},
	}}}

	_, err := Replay(ctx, gw, exam.ID, Options{Clock: newFakeClock(), Sink: sink})
	var pe *PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("Replay = %v, want PersistenceError", err)
	}
	if got := gw.exam(exam.ID).Status; got != model.ExamStatusInProgress {
		t.Errorf("status = %s, want in_progress", got)
	}
}
