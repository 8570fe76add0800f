package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yuresilva1/inss-study-hub/internal/model"
)

// Reason identifies what triggered a finalization.
type Reason string

const (
	ReasonExplicit     Reason = "explicit"
	ReasonTimerExpired Reason = "timer_expired"
	ReasonReconcile    Reason = "reconcile"
)

// Mark is the correctness of one slot after scoring.
type Mark struct {
	SlotID  uuid.UUID `json:"slot_id"`
	Correct bool      `json:"is_correct"`
}

// Result is the terminal record of a finished exam.
type Result struct {
	ExamID           uuid.UUID `json:"exam_id"`
	Reason           Reason    `json:"reason,omitempty"`
	TotalQuestions   int       `json:"total_questions"`
	TotalCorrect     int       `json:"total_correct"`
	Score            float64   `json:"score"`
	TimeSpentSeconds int       `json:"time_spent_seconds"`
	FinishedAt       time.Time `json:"finished_at"`
	Marks            []Mark    `json:"marks"`
}

// Score grades slots against the answer key. Slots are expected in position
// order. An unanswered slot is incorrect. Flags have no effect. A slot whose
// question is missing from key is an invariant violation.
func Score(slots []model.AnswerSlot, key map[uuid.UUID]model.Option) (Result, error) {
	res := Result{
		TotalQuestions: len(slots),
		Marks:          make([]Mark, 0, len(slots)),
	}
	for _, s := range slots {
		want, ok := key[s.QuestionID]
		if !ok {
			return Result{}, violation("no answer key for question %s", s.QuestionID)
		}
		correct := s.Answered() && s.UserAnswer == want
		if correct {
			res.TotalCorrect++
		}
		res.TimeSpentSeconds += s.TimeSpentSeconds
		res.Marks = append(res.Marks, Mark{SlotID: s.ID, Correct: correct})
	}
	res.Score = Percentage(res.TotalCorrect, res.TotalQuestions)
	return res, nil
}

// Percentage returns correct/total*100, or 0 when total is 0.
func Percentage(correct, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(correct) / float64(total) * 100
}

// answerKey fetches the correct option of every distinct question in one lookup.
func answerKey(ctx context.Context, gw Gateway, slots []model.AnswerSlot) (map[uuid.UUID]model.Option, error) {
	ids := distinctQuestionIDs(slots)
	if len(ids) == 0 {
		return map[uuid.UUID]model.Option{}, nil
	}
	questions, err := gw.GetQuestionsByIDs(ctx, ids)
	if err != nil {
		return nil, persistErr("fetch answer key", err)
	}
	key := make(map[uuid.UUID]model.Option, len(questions))
	for _, id := range ids {
		q, ok := questions[id]
		if !ok {
			return nil, violation("question %s referenced by exam is missing", id)
		}
		key[id] = q.CorrectAnswer
	}
	return key, nil
}

func distinctQuestionIDs(slots []model.AnswerSlot) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(slots))
	ids := make([]uuid.UUID, 0, len(slots))
	for _, s := range slots {
		if _, ok := seen[s.QuestionID]; ok {
			continue
		}
		seen[s.QuestionID] = struct{}{}
		ids = append(ids, s.QuestionID)
	}
	return ids
}

// StoredResult rebuilds the Result of an exam that is already finished.
func StoredResult(ctx context.Context, gw Gateway, exam *model.Exam) (*Result, error) {
	if !exam.IsFinished() {
		return nil, violation("exam %s is not finished", exam.ID)
	}
	slots, err := gw.ListAnswerSlots(ctx, exam.ID)
	if err != nil {
		return nil, persistErr("list answer slots", err)
	}
	res := &Result{
		ExamID:         exam.ID,
		TotalQuestions: len(slots),
		Marks:          make([]Mark, 0, len(slots)),
	}
	for _, s := range slots {
		res.Marks = append(res.Marks, Mark{SlotID: s.ID, Correct: s.IsCorrect != nil && *s.IsCorrect})
	}
	if exam.TotalCorrect != nil {
		res.TotalCorrect = *exam.TotalCorrect
	}
	if exam.Score != nil {
		res.Score = *exam.Score
	}
	if exam.TimeSpentSeconds != nil {
		res.TimeSpentSeconds = *exam.TimeSpentSeconds
	}
	if exam.FinishedAt != nil {
		res.FinishedAt = *exam.FinishedAt
	}
	return res, nil
}
