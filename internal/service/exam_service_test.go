package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yuresilva1/inss-study-hub/internal/database"
	"github.com/yuresilva1/inss-study-hub/internal/engine"
	"github.com/yuresilva1/inss-study-hub/internal/model"
	"github.com/yuresilva1/inss-study-hub/internal/repository"
)

type fixture struct {
	store   *repository.SQLiteStore
	svc     *ExamService
	subject uuid.UUID
	owner   uuid.UUID
}

// newFixture seeds one subject with n questions, all answered correctly by A.
func newFixture(t *testing.T, n int) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := database.OpenSQLite(ctx, ":memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	store := repository.NewSQLiteStore(db)

	subject, err := store.UpsertSubject(ctx, "Noções de Direito Administrativo")
	if err != nil {
		t.Fatal(err)
	}
	qs := make([]model.Question, n)
	for i := range qs {
		qs[i] = model.Question{
			SubjectID: subject, Statement: fmt.Sprintf("questão %d", i+1),
			OptionA: "certo", OptionB: "errado", OptionC: "c", OptionD: "d", OptionE: "e",
			CorrectAnswer: model.OptionA, Explanation: "art. 37 da CF",
		}
	}
	if n > 0 {
		if err := store.CreateQuestions(ctx, qs); err != nil {
			t.Fatal(err)
		}
	}

	svc := NewExamService(store, nil, nil, ExamConfig{}, zerolog.Nop())
	t.Cleanup(svc.Shutdown)
	return &fixture{store: store, svc: svc, subject: subject, owner: uuid.New()}
}

func (f *fixture) create(t *testing.T, count int) *model.Exam {
	t.Helper()
	exam, err := f.svc.CreateExam(context.Background(), f.owner, model.CreateExamRequest{
		SubjectIDs:       []uuid.UUID{f.subject},
		QuestionCount:    count,
		TimeLimitMinutes: 30,
	})
	if err != nil {
		t.Fatalf("CreateExam: %v", err)
	}
	return exam
}

func TestCreateExamPicksDistinctQuestions(t *testing.T) {
	f := newFixture(t, 12)
	exam := f.create(t, 5)

	if exam.Status != model.ExamStatusInProgress || exam.Mode != model.ExamModeRandom {
		t.Errorf("status/mode = %s/%s", exam.Status, exam.Mode)
	}
	if exam.TotalQuestions != 5 || exam.TimeLimitMinutes != 30 {
		t.Errorf("total/limit = %d/%d", exam.TotalQuestions, exam.TimeLimitMinutes)
	}

	slots, err := f.store.ListAnswerSlots(context.Background(), exam.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(slots) != 5 {
		t.Fatalf("slots = %d, want 5", len(slots))
	}
	seen := map[uuid.UUID]bool{}
	for i, sl := range slots {
		if sl.Position != i+1 {
			t.Errorf("slot %d position = %d", i, sl.Position)
		}
		if seen[sl.QuestionID] {
			t.Errorf("question %s picked twice", sl.QuestionID)
		}
		seen[sl.QuestionID] = true
	}
}

func TestCreateExamWithSmallPool(t *testing.T) {
	f := newFixture(t, 3)
	exam := f.create(t, 10)
	if exam.TotalQuestions != 3 {
		t.Errorf("total = %d, want the whole pool of 3", exam.TotalQuestions)
	}
}

func TestCreateExamWithoutQuestions(t *testing.T) {
	f := newFixture(t, 0)
	_, err := f.svc.CreateExam(context.Background(), f.owner, model.CreateExamRequest{
		SubjectIDs: []uuid.UUID{f.subject}, QuestionCount: 5, TimeLimitMinutes: 15,
	})
	if !errors.Is(err, ErrNoQuestions) {
		t.Fatalf("err = %v, want ErrNoQuestions", err)
	}
}

func TestOwnershipIsEnforced(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	exam := f.create(t, 5)
	stranger := uuid.New()

	if _, err := f.svc.GetExam(ctx, stranger, exam.ID); !errors.Is(err, ErrNotExamOwner) {
		t.Errorf("GetExam: %v", err)
	}
	if _, err := f.svc.OpenSession(ctx, stranger, exam.ID, nil); !errors.Is(err, ErrNotExamOwner) {
		t.Errorf("OpenSession: %v", err)
	}
	if _, err := f.svc.Finalize(ctx, stranger, exam.ID); !errors.Is(err, ErrNotExamOwner) {
		t.Errorf("Finalize: %v", err)
	}
	if _, err := f.svc.GetExam(ctx, f.owner, uuid.New()); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("GetExam missing: %v", err)
	}
}

func TestResultAfterFinalize(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	exam := f.create(t, 5)

	if _, err := f.svc.GetResult(ctx, f.owner, exam.ID, false); !errors.Is(err, ErrExamNotFinished) {
		t.Fatalf("GetResult before finish: %v", err)
	}

	sess, err := f.svc.OpenSession(ctx, f.owner, exam.ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i, o := range []model.Option{model.OptionA, model.OptionB, model.OptionA} {
		if err := sess.GoTo(ctx, i); err != nil {
			t.Fatal(err)
		}
		if err := sess.SelectAnswer(ctx, o); err != nil {
			t.Fatal(err)
		}
	}

	res, err := f.svc.Finalize(ctx, f.owner, exam.ID)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if res.TotalCorrect != 2 || res.Score != 40 {
		t.Errorf("result = %d correct, %.2f%%; want 2, 40%%", res.TotalCorrect, res.Score)
	}

	review, err := f.svc.GetResult(ctx, f.owner, exam.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(review.Items) != 5 || !review.Exam.IsFinished() {
		t.Fatalf("review has %d items, finished=%v", len(review.Items), review.Exam.IsFinished())
	}
	if review.Items[0].Question.Explanation != "art. 37 da CF" || review.Items[0].Question.CorrectAnswer != model.OptionA {
		t.Errorf("review item lacks question details: %+v", review.Items[0].Question)
	}

	errorsOnly, err := f.svc.GetResult(ctx, f.owner, exam.ID, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(errorsOnly.Items) != 3 {
		t.Errorf("only_errors items = %d, want 3", len(errorsOnly.Items))
	}
	for _, it := range errorsOnly.Items {
		if it.IsCorrect != nil && *it.IsCorrect {
			t.Errorf("correct item %d kept", it.Position)
		}
	}

	again, err := f.svc.Finalize(ctx, f.owner, exam.ID)
	if err != nil || again.Score != res.Score {
		t.Errorf("second Finalize = %+v, %v", again, err)
	}
	if _, err := f.svc.OpenSession(ctx, f.owner, exam.ID, nil); !errors.Is(err, engine.ErrAlreadyFinished) {
		t.Errorf("OpenSession on finished exam: %v", err)
	}
}

func TestOpenSessionTakesOver(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	exam := f.create(t, 5)

	first, err := f.svc.OpenSession(ctx, f.owner, exam.ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := first.SelectAnswer(ctx, model.OptionC); err != nil {
		t.Fatal(err)
	}

	second, err := f.svc.OpenSession(ctx, f.owner, exam.ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-first.Done():
	case <-time.After(time.Second):
		t.Fatal("first session still live")
	}
	if err := first.SelectAnswer(ctx, model.OptionD); !errors.Is(err, engine.ErrSessionClosed) {
		t.Errorf("old session accepted a write: %v", err)
	}
	if n := f.svc.LiveSessions(); n != 1 {
		t.Errorf("live sessions = %d, want 1", n)
	}

	v, err := second.View(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if v.Current == nil || v.Current.Selected != model.OptionC || v.Unanswered != 4 {
		t.Errorf("takeover lost the drained answer: %+v", v)
	}

	second.Close()
	deadline := time.Now().Add(time.Second)
	for f.svc.LiveSessions() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := f.svc.LiveSessions(); n != 0 {
		t.Errorf("closed session still registered: %d", n)
	}
}

func TestListHistoryNewestFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	var ids []uuid.UUID
	for range 3 {
		ids = append(ids, f.create(t, 5).ID)
		time.Sleep(2 * time.Millisecond)
	}

	exams, err := f.svc.ListHistory(ctx, f.owner, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(exams) != 3 {
		t.Fatalf("history = %d exams", len(exams))
	}
	for i, e := range exams {
		if e.ID != ids[len(ids)-1-i] {
			t.Errorf("history[%d] = %s, want %s", i, e.ID, ids[len(ids)-1-i])
		}
	}

	none, err := f.svc.ListHistory(ctx, uuid.New(), 10)
	if err != nil || none == nil || len(none) != 0 {
		t.Errorf("empty history = %v, %v", none, err)
	}
}
