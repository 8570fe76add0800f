package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yuresilva1/inss-study-hub/internal/model"
)

// QuestionRepository reads the question bank.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// GetQuestionsByIDs fetches many questions in a single round trip.
func (r *QuestionRepository) GetQuestionsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Question, error) {
	out := make(map[uuid.UUID]model.Question, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT q.id, q.subject_id, COALESCE(s.name, ''), q.statement,
		        q.option_a, q.option_b, q.option_c, q.option_d, q.option_e,
		        q.correct_answer, q.explanation
		 FROM questions q
		 LEFT JOIN subjects s ON s.id = q.subject_id
		 WHERE q.id = ANY($1)`, ids,
	)
	if err != nil {
		return nil, fmt.Errorf("get questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			q       model.Question
			correct string
		)
		if err := rows.Scan(
			&q.ID, &q.SubjectID, &q.SubjectName, &q.Statement,
			&q.OptionA, &q.OptionB, &q.OptionC, &q.OptionD, &q.OptionE,
			&correct, &q.Explanation,
		); err != nil {
			return nil, err
		}
		q.CorrectAnswer = model.Option(strings.TrimSpace(correct))
		out[q.ID] = q
	}
	return out, rows.Err()
}

// ListQuestionIDsBySubjects returns up to limit question IDs from the given subjects.
// The order is arbitrary; callers shuffle.
func (r *QuestionRepository) ListQuestionIDsBySubjects(ctx context.Context, subjectIDs []uuid.UUID, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM questions WHERE subject_id = ANY($1) LIMIT $2`, subjectIDs, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list question ids: %w", err)
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

// UpsertSubject returns the ID of the subject with the given name, creating it if needed.
func (r *QuestionRepository) UpsertSubject(ctx context.Context, name string) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx,
		`INSERT INTO subjects (name) VALUES ($1)
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id`, strings.TrimSpace(name),
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("upsert subject: %w", err)
	}
	return id, nil
}

// CreateQuestions bulk-inserts questions. Missing IDs are generated.
func (r *QuestionRepository) CreateQuestions(ctx context.Context, questions []model.Question) error {
	for i := range questions {
		if questions[i].ID == uuid.Nil {
			questions[i].ID = uuid.New()
		}
	}
	_, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"questions"},
		[]string{"id", "subject_id", "statement", "option_a", "option_b", "option_c", "option_d", "option_e", "correct_answer", "explanation"},
		pgx.CopyFromSlice(len(questions), func(i int) ([]any, error) {
			q := questions[i]
			return []any{q.ID, q.SubjectID, q.Statement, q.OptionA, q.OptionB, q.OptionC, q.OptionD, q.OptionE, string(q.CorrectAnswer), q.Explanation}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("insert questions: %w", err)
	}
	return nil
}

// PostgresStore is the PostgreSQL implementation of Store.
type PostgresStore struct {
	*ExamRepository
	*QuestionRepository
}

// NewPostgresStore wires the PostgreSQL repositories into one Store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		ExamRepository:     NewExamRepository(pool),
		QuestionRepository: NewQuestionRepository(pool),
	}
}

var _ Store = (*PostgresStore)(nil)
