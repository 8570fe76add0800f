package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yuresilva1/inss-study-hub/internal/model"
)

// ExamRepository handles exam and answer slot data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

const examColumns = `id, user_id, subject_ids, mode, status, total_questions, time_limit_minutes,
	score, total_correct, time_spent_seconds, started_at, finished_at`

func scanExam(row pgx.Row, e *model.Exam) error {
	return row.Scan(
		&e.ID, &e.OwnerID, &e.SubjectIDs, &e.Mode, &e.Status, &e.TotalQuestions, &e.TimeLimitMinutes,
		&e.Score, &e.TotalCorrect, &e.TimeSpentSeconds, &e.StartedAt, &e.FinishedAt,
	)
}

// GetExam retrieves an exam by ID.
func (r *ExamRepository) GetExam(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	err := scanExam(r.pool.QueryRow(ctx, `SELECT `+examColumns+` FROM exams WHERE id = $1`, id), e)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	return e, nil
}

// CreateExam inserts the exam and its slots in one transaction.
func (r *ExamRepository) CreateExam(ctx context.Context, e *model.Exam, questionIDs []uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	e.Status = model.ExamStatusInProgress
	e.TotalQuestions = len(questionIDs)
	if e.SubjectIDs == nil {
		e.SubjectIDs = []uuid.UUID{}
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO exams (user_id, subject_ids, mode, status, total_questions, time_limit_minutes)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, started_at`,
		e.OwnerID, e.SubjectIDs, e.Mode, e.Status, e.TotalQuestions, e.TimeLimitMinutes,
	).Scan(&e.ID, &e.StartedAt)
	if err != nil {
		return fmt.Errorf("insert exam: %w", err)
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"exam_answers"},
		[]string{"id", "exam_id", "question_id", "question_order"},
		pgx.CopyFromSlice(len(questionIDs), func(i int) ([]any, error) {
			return []any{uuid.New(), e.ID, questionIDs[i], i + 1}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("insert answer slots: %w", err)
	}

	return tx.Commit(ctx)
}

// UpdateExam applies a partial update. With WhenStatus set, a row whose
// status differs is left alone and model.ErrStatusConflict is returned.
func (r *ExamRepository) UpdateExam(ctx context.Context, id uuid.UUID, u model.ExamUpdate) error {
	b := &setBuilder{placeholder: dollar}
	if u.Status != nil {
		b.add("status", *u.Status)
	}
	if u.Score != nil {
		b.add("score", *u.Score)
	}
	if u.TotalCorrect != nil {
		b.add("total_correct", *u.TotalCorrect)
	}
	if u.TimeSpentSeconds != nil {
		b.add("time_spent_seconds", *u.TimeSpentSeconds)
	}
	if u.FinishedAt != nil {
		b.add("finished_at", *u.FinishedAt)
	}
	if b.empty() {
		return nil
	}

	query := `UPDATE exams SET ` + b.clause() + ` WHERE id = ` + b.arg(id)
	if u.WhenStatus != nil {
		query += ` AND status = ` + b.arg(*u.WhenStatus)
	}

	tag, err := r.pool.Exec(ctx, query, b.args...)
	if err != nil {
		return fmt.Errorf("update exam: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Nothing matched: tell a missing exam apart from a lost compare-and-set.
	if _, err := r.GetExam(ctx, id); err != nil {
		return err
	}
	return model.ErrStatusConflict
}

// ListExamsByOwner returns the owner's exams, newest first.
func (r *ExamRepository) ListExamsByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+examColumns+`
		 FROM exams
		 WHERE user_id = $1
		 ORDER BY started_at DESC
		 LIMIT $2`, ownerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}
	defer rows.Close()

	exams := []model.Exam{}
	for rows.Next() {
		var e model.Exam
		if err := scanExam(rows, &e); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// ListStaleExams returns in-progress exams whose deadline passed before cutoff.
func (r *ExamRepository) ListStaleExams(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id
		 FROM exams
		 WHERE status = 'in_progress'
		   AND started_at + make_interval(mins => time_limit_minutes) < $1
		 ORDER BY started_at
		 LIMIT $2`, cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list stale exams: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
