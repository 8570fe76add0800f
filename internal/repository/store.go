package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yuresilva1/inss-study-hub/internal/engine"
	"github.com/yuresilva1/inss-study-hub/internal/model"
)

// Store is everything the application needs from storage: the engine's
// gateway plus exam assembly, history and review queries.
type Store interface {
	engine.Gateway

	// CreateExam inserts the exam and one slot per question, positions 1..N
	// in the given order, atomically. It fills exam.ID and exam.StartedAt.
	CreateExam(ctx context.Context, exam *model.Exam, questionIDs []uuid.UUID) error
	ListQuestionIDsBySubjects(ctx context.Context, subjectIDs []uuid.UUID, limit int) ([]uuid.UUID, error)
	ListExamsByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]model.Exam, error)
	ListReviewItems(ctx context.Context, examID uuid.UUID) ([]model.ReviewItem, error)
	// ListStaleExams returns in-progress exams whose time limit ran out before cutoff.
	ListStaleExams(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)

	ListSubjects(ctx context.Context) ([]model.Subject, error)
	UpsertSubject(ctx context.Context, name string) (uuid.UUID, error)
	CreateQuestions(ctx context.Context, questions []model.Question) error
}

// setBuilder assembles the SET clause of a partial update.
type setBuilder struct {
	placeholder func(n int) string
	cols        []string
	args        []any
}

func dollar(n int) string { return fmt.Sprintf("$%d", n) }
func question(int) string { return "?" }

func (b *setBuilder) add(col string, v any) {
	b.args = append(b.args, v)
	b.cols = append(b.cols, col+" = "+b.placeholder(len(b.args)))
}

// arg appends a value that is not part of the SET list and returns its placeholder.
func (b *setBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return b.placeholder(len(b.args))
}

func (b *setBuilder) empty() bool { return len(b.cols) == 0 }

func (b *setBuilder) clause() string { return strings.Join(b.cols, ", ") }
