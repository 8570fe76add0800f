package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/yuresilva1/inss-study-hub/internal/model"
)

// ListAnswerSlots retrieves an exam's slots ordered by position.
func (r *ExamRepository) ListAnswerSlots(ctx context.Context, examID uuid.UUID) ([]model.AnswerSlot, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, question_id, question_order, user_answer, is_flagged, is_correct, time_spent_seconds
		 FROM exam_answers
		 WHERE exam_id = $1
		 ORDER BY question_order`, examID,
	)
	if err != nil {
		return nil, fmt.Errorf("list answer slots: %w", err)
	}
	defer rows.Close()

	var slots []model.AnswerSlot
	for rows.Next() {
		var (
			s      model.AnswerSlot
			answer *string
		)
		if err := rows.Scan(&s.ID, &s.ExamID, &s.QuestionID, &s.Position, &answer, &s.IsFlagged, &s.IsCorrect, &s.TimeSpentSeconds); err != nil {
			return nil, err
		}
		if answer != nil {
			s.UserAnswer = model.Option(strings.TrimSpace(*answer))
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

// UpdateAnswerSlot applies a partial update to one slot.
func (r *ExamRepository) UpdateAnswerSlot(ctx context.Context, id uuid.UUID, u model.SlotUpdate) error {
	b := &setBuilder{placeholder: dollar}
	if u.UserAnswer != nil {
		b.add("user_answer", nullableOption(*u.UserAnswer))
	}
	if u.IsFlagged != nil {
		b.add("is_flagged", *u.IsFlagged)
	}
	if u.TimeSpentSeconds != nil {
		b.add("time_spent_seconds", *u.TimeSpentSeconds)
	}
	if u.IsCorrect != nil {
		b.add("is_correct", *u.IsCorrect)
	}
	if b.empty() {
		return nil
	}

	tag, err := r.pool.Exec(ctx, `UPDATE exam_answers SET `+b.clause()+` WHERE id = `+b.arg(id), b.args...)
	if err != nil {
		return fmt.Errorf("update answer slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

// UpdateAnswerSlots applies every patch in a single UNNEST statement.
// Fields left nil in a patch keep their stored value.
func (r *ExamRepository) UpdateAnswerSlots(ctx context.Context, patches []model.SlotPatch) error {
	if len(patches) == 0 {
		return nil
	}

	n := len(patches)
	ids := make([]uuid.UUID, n)
	spent := make([]*int32, n)
	correct := make([]*bool, n)
	answers := make([]*string, n)
	flagged := make([]*bool, n)

	for i, p := range patches {
		ids[i] = p.SlotID
		if p.Update.TimeSpentSeconds != nil {
			v := int32(*p.Update.TimeSpentSeconds)
			spent[i] = &v
		}
		correct[i] = p.Update.IsCorrect
		if p.Update.UserAnswer != nil {
			answers[i] = nullableOption(*p.Update.UserAnswer)
		}
		flagged[i] = p.Update.IsFlagged
	}

	query := `
		UPDATE exam_answers AS a
		SET time_spent_seconds = COALESCE(t.spent, a.time_spent_seconds),
		    is_correct         = COALESCE(t.correct, a.is_correct),
		    user_answer        = COALESCE(t.answer, a.user_answer),
		    is_flagged         = COALESCE(t.flagged, a.is_flagged)
		FROM (
			SELECT u.id, u.spent, u.correct, u.answer, u.flagged
			FROM UNNEST(
				$1::uuid[],
				$2::int[],
				$3::bool[],
				$4::text[],
				$5::bool[]
			) AS u (id, spent, correct, answer, flagged)
		) AS t
		WHERE a.id = t.id
	`

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, query, ids, spent, correct, answers, flagged)
	if err != nil {
		return fmt.Errorf("bulk update answer slots: %w", err)
	}
	if tag.RowsAffected() != int64(n) {
		return fmt.Errorf("bulk update answer slots: %d of %d rows matched: %w", tag.RowsAffected(), n, model.ErrNotFound)
	}
	return tx.Commit(ctx)
}

// ListReviewItems joins an exam's slots with their questions for the review view.
func (r *ExamRepository) ListReviewItems(ctx context.Context, examID uuid.UUID) ([]model.ReviewItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.question_order, a.user_answer, a.is_correct,
		        q.id, q.subject_id, COALESCE(s.name, ''), q.statement,
		        q.option_a, q.option_b, q.option_c, q.option_d, q.option_e,
		        q.correct_answer, q.explanation
		 FROM exam_answers a
		 JOIN questions q ON q.id = a.question_id
		 LEFT JOIN subjects s ON s.id = q.subject_id
		 WHERE a.exam_id = $1
		 ORDER BY a.question_order`, examID,
	)
	if err != nil {
		return nil, fmt.Errorf("list review items: %w", err)
	}
	defer rows.Close()

	items := []model.ReviewItem{}
	for rows.Next() {
		var (
			it      model.ReviewItem
			answer  *string
			correct string
		)
		q := &it.Question
		if err := rows.Scan(
			&it.SlotID, &it.Position, &answer, &it.IsCorrect,
			&q.ID, &q.SubjectID, &q.SubjectName, &q.Statement,
			&q.OptionA, &q.OptionB, &q.OptionC, &q.OptionD, &q.OptionE,
			&correct, &q.Explanation,
		); err != nil {
			return nil, err
		}
		if answer != nil {
			it.UserAnswer = model.Option(strings.TrimSpace(*answer))
		}
		q.CorrectAnswer = model.Option(strings.TrimSpace(correct))
		items = append(items, it)
	}
	return items, rows.Err()
}

func nullableOption(o model.Option) *string {
	if o == model.OptionUnset {
		return nil
	}
	s := string(o)
	return &s
}
