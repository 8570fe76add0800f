package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yuresilva1/inss-study-hub/internal/engine"
	"github.com/yuresilva1/inss-study-hub/internal/model"
)

// seedBank creates one subject with n questions whose correct answers cycle A..E.
func seedBank(t *testing.T, store Store, subject string, n int) (uuid.UUID, []model.Question) {
	t.Helper()
	ctx := context.Background()
	subjectID, err := store.UpsertSubject(ctx, subject)
	if err != nil {
		t.Fatalf("UpsertSubject: %v", err)
	}
	qs := make([]model.Question, n)
	for i := range qs {
		qs[i] = model.Question{
			SubjectID:     subjectID,
			Statement:     fmt.Sprintf("%s question %d", subject, i+1),
			OptionA:       "alternativa A",
			OptionB:       "alternativa B",
			OptionC:       "alternativa C",
			OptionD:       "alternativa D",
			OptionE:       "alternativa E",
			CorrectAnswer: model.Options[i%5],
			Explanation:   "porque sim",
		}
	}
	if err := store.CreateQuestions(ctx, qs); err != nil {
		t.Fatalf("CreateQuestions: %v", err)
	}
	return subjectID, qs
}

func questionIDs(qs []model.Question) []uuid.UUID {
	ids := make([]uuid.UUID, len(qs))
	for i, q := range qs {
		ids[i] = q.ID
	}
	return ids
}

// runStoreContract exercises the behaviour every Store implementation shares.
func runStoreContract(t *testing.T, store Store) {
	ctx := context.Background()
	subjectName := "Direito Previdenciário " + uuid.NewString()[:8]
	subjectID, qs := seedBank(t, store, subjectName, 5)
	owner := uuid.New()

	newExam := func(t *testing.T, limit int) *model.Exam {
		t.Helper()
		e := &model.Exam{OwnerID: owner, SubjectIDs: []uuid.UUID{subjectID}, Mode: model.ExamModeRandom, TimeLimitMinutes: limit}
		// Reverse order so positions differ from insertion order of questions.
		ids := questionIDs(qs)
		for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
			ids[i], ids[j] = ids[j], ids[i]
		}
		if err := store.CreateExam(ctx, e, ids); err != nil {
			t.Fatalf("CreateExam: %v", err)
		}
		return e
	}

	t.Run("subject upsert is idempotent", func(t *testing.T) {
		again, err := store.UpsertSubject(ctx, subjectName)
		if err != nil {
			t.Fatal(err)
		}
		if again != subjectID {
			t.Errorf("second upsert returned %s, want %s", again, subjectID)
		}
	})

	t.Run("list subjects counts questions", func(t *testing.T) {
		subjects, err := store.ListSubjects(ctx)
		if err != nil {
			t.Fatal(err)
		}
		for _, s := range subjects {
			if s.ID == subjectID {
				if s.Name != subjectName || s.QuestionCount != 5 {
					t.Errorf("subject = %+v", s)
				}
				return
			}
		}
		t.Errorf("subject %s missing from %d subjects", subjectID, len(subjects))
	})

	t.Run("create exam and list slots in position order", func(t *testing.T) {
		e := newExam(t, 30)
		if e.ID == uuid.Nil || e.StartedAt.IsZero() {
			t.Fatalf("CreateExam did not fill ID/StartedAt: %+v", e)
		}
		got, err := store.GetExam(ctx, e.ID)
		if err != nil {
			t.Fatalf("GetExam: %v", err)
		}
		if got.Status != model.ExamStatusInProgress || got.TotalQuestions != 5 || got.TimeLimitMinutes != 30 {
			t.Errorf("unexpected exam %+v", got)
		}
		if len(got.SubjectIDs) != 1 || got.SubjectIDs[0] != subjectID {
			t.Errorf("SubjectIDs = %v", got.SubjectIDs)
		}

		slots, err := store.ListAnswerSlots(ctx, e.ID)
		if err != nil {
			t.Fatalf("ListAnswerSlots: %v", err)
		}
		if len(slots) != 5 {
			t.Fatalf("len(slots) = %d, want 5", len(slots))
		}
		for i, s := range slots {
			if s.Position != i+1 {
				t.Errorf("slot %d position = %d", i, s.Position)
			}
			if s.QuestionID != qs[4-i].ID {
				t.Errorf("slot %d question = %s, want %s", i, s.QuestionID, qs[4-i].ID)
			}
			if s.Answered() || s.IsFlagged || s.IsCorrect != nil || s.TimeSpentSeconds != 0 {
				t.Errorf("slot %d not blank: %+v", i, s)
			}
		}
	})

	t.Run("missing exam", func(t *testing.T) {
		if _, err := store.GetExam(ctx, uuid.New()); !errors.Is(err, model.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		finished := model.ExamStatusFinished
		if err := store.UpdateExam(ctx, uuid.New(), model.ExamUpdate{Status: &finished}); !errors.Is(err, model.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("partial slot updates", func(t *testing.T) {
		e := newExam(t, 30)
		slots, _ := store.ListAnswerSlots(ctx, e.ID)
		answer, flagged := model.OptionC, true
		if err := store.UpdateAnswerSlot(ctx, slots[0].ID, model.SlotUpdate{UserAnswer: &answer}); err != nil {
			t.Fatal(err)
		}
		if err := store.UpdateAnswerSlot(ctx, slots[0].ID, model.SlotUpdate{IsFlagged: &flagged}); err != nil {
			t.Fatal(err)
		}
		if err := store.UpdateAnswerSlot(ctx, uuid.New(), model.SlotUpdate{IsFlagged: &flagged}); !errors.Is(err, model.ErrNotFound) {
			t.Errorf("expected ErrNotFound for unknown slot, got %v", err)
		}

		got, _ := store.ListAnswerSlots(ctx, e.ID)
		if got[0].UserAnswer != model.OptionC || !got[0].IsFlagged {
			t.Errorf("slot after updates = %+v", got[0])
		}
	})

	t.Run("bulk slot updates are all or nothing", func(t *testing.T) {
		e := newExam(t, 30)
		slots, _ := store.ListAnswerSlots(ctx, e.ID)
		spent, correct := 42, true

		bad := []model.SlotPatch{
			{SlotID: slots[0].ID, Update: model.SlotUpdate{TimeSpentSeconds: &spent}},
			{SlotID: uuid.New(), Update: model.SlotUpdate{TimeSpentSeconds: &spent}},
		}
		if err := store.UpdateAnswerSlots(ctx, bad); err == nil {
			t.Fatal("expected error for unknown slot in batch")
		}
		got, _ := store.ListAnswerSlots(ctx, e.ID)
		if got[0].TimeSpentSeconds != 0 {
			t.Errorf("partial batch was applied: %+v", got[0])
		}

		good := []model.SlotPatch{
			{SlotID: slots[0].ID, Update: model.SlotUpdate{TimeSpentSeconds: &spent}},
			{SlotID: slots[1].ID, Update: model.SlotUpdate{IsCorrect: &correct}},
		}
		if err := store.UpdateAnswerSlots(ctx, good); err != nil {
			t.Fatalf("UpdateAnswerSlots: %v", err)
		}
		got, _ = store.ListAnswerSlots(ctx, e.ID)
		if got[0].TimeSpentSeconds != 42 || got[0].IsCorrect != nil {
			t.Errorf("slot 0 = %+v", got[0])
		}
		if got[1].TimeSpentSeconds != 0 || got[1].IsCorrect == nil || !*got[1].IsCorrect {
			t.Errorf("slot 1 = %+v", got[1])
		}
	})

	t.Run("exam status compare-and-set", func(t *testing.T) {
		e := newExam(t, 30)
		finished, inProgress := model.ExamStatusFinished, model.ExamStatusInProgress
		score, correct, spent := 40.0, 2, 120
		now := time.Now().UTC().Truncate(time.Millisecond)
		upd := model.ExamUpdate{
			Status: &finished, Score: &score, TotalCorrect: &correct,
			TimeSpentSeconds: &spent, FinishedAt: &now, WhenStatus: &inProgress,
		}
		if err := store.UpdateExam(ctx, e.ID, upd); err != nil {
			t.Fatalf("first UpdateExam: %v", err)
		}
		if err := store.UpdateExam(ctx, e.ID, upd); !errors.Is(err, model.ErrStatusConflict) {
			t.Fatalf("second UpdateExam = %v, want ErrStatusConflict", err)
		}
		got, _ := store.GetExam(ctx, e.ID)
		if !got.IsFinished() || *got.Score != 40 || *got.TotalCorrect != 2 || *got.TimeSpentSeconds != 120 {
			t.Errorf("terminal record = %+v", got)
		}
		if got.FinishedAt == nil || !got.FinishedAt.Equal(now) {
			t.Errorf("FinishedAt = %v, want %v", got.FinishedAt, now)
		}
	})

	t.Run("questions by ids", func(t *testing.T) {
		got, err := store.GetQuestionsByIDs(ctx, []uuid.UUID{qs[1].ID, qs[3].ID, uuid.New()})
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 {
			t.Fatalf("len = %d, want 2", len(got))
		}
		if got[qs[1].ID].CorrectAnswer != model.OptionB || got[qs[3].ID].CorrectAnswer != model.OptionD {
			t.Errorf("answer key mismatch: %+v", got)
		}
		if got[qs[1].ID].SubjectName == "" {
			t.Errorf("subject name not joined")
		}

		ids, err := store.ListQuestionIDsBySubjects(ctx, []uuid.UUID{subjectID}, 3)
		if err != nil {
			t.Fatal(err)
		}
		if len(ids) != 3 {
			t.Errorf("limit not applied: %d ids", len(ids))
		}
	})

	t.Run("stale exams", func(t *testing.T) {
		e := newExam(t, 15)
		stale, err := store.ListStaleExams(ctx, e.StartedAt.Add(16*time.Minute), 1000)
		if err != nil {
			t.Fatal(err)
		}
		if !containsID(stale, e.ID) {
			t.Errorf("exam past its limit not listed")
		}
		fresh, err := store.ListStaleExams(ctx, e.StartedAt.Add(14*time.Minute), 1000)
		if err != nil {
			t.Fatal(err)
		}
		if containsID(fresh, e.ID) {
			t.Errorf("exam within its limit listed as stale")
		}
	})

	t.Run("engine end to end", func(t *testing.T) {
		e := newExam(t, 30)
		s, err := engine.Load(ctx, store, e.ID, engine.Options{DisableTimer: true})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		defer s.Close()

		// Slots are reversed: slot i holds qs[4-i], whose key is Options[(4-i)%5].
		answers := []model.Option{model.OptionE, model.OptionD, model.OptionA, model.OptionA, model.OptionA}
		for i, a := range answers {
			if err := s.GoTo(ctx, i); err != nil {
				t.Fatal(err)
			}
			if err := s.SelectAnswer(ctx, a); err != nil {
				t.Fatal(err)
			}
		}
		res, err := s.Finish(ctx)
		if err != nil {
			t.Fatalf("Finish: %v", err)
		}
		if res.TotalCorrect != 3 || res.Score != 60 {
			t.Errorf("result %d/%v, want 3/60", res.TotalCorrect, res.Score)
		}

		items, err := store.ListReviewItems(ctx, e.ID)
		if err != nil {
			t.Fatalf("ListReviewItems: %v", err)
		}
		if len(items) != 5 {
			t.Fatalf("len(items) = %d", len(items))
		}
		for i, it := range items {
			if it.UserAnswer != answers[i] || it.IsCorrect == nil {
				t.Errorf("item %d = %+v", i, it)
			}
			if it.Question.CorrectAnswer == model.OptionUnset || it.Question.Explanation == "" {
				t.Errorf("item %d is missing the answer key", i)
			}
		}

		history, err := store.ListExamsByOwner(ctx, owner, 100)
		if err != nil {
			t.Fatal(err)
		}
		if len(history) < 2 {
			t.Fatalf("history has %d exams", len(history))
		}
		for i := 1; i < len(history); i++ {
			if history[i].StartedAt.After(history[i-1].StartedAt) {
				t.Errorf("history not ordered newest first at %d", i)
			}
			if history[i].OwnerID != owner {
				t.Errorf("history leaked another owner's exam")
			}
		}
	})
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
