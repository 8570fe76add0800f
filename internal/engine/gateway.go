package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/yuresilva1/inss-study-hub/internal/model"
)

// Gateway is the durable store the engine reads exams from and writes answers to.
// Implementations return model.ErrNotFound for missing records and
// model.ErrStatusConflict when an ExamUpdate's WhenStatus no longer matches.
type Gateway interface {
	GetExam(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	// ListAnswerSlots returns the exam's slots ordered by position.
	ListAnswerSlots(ctx context.Context, examID uuid.UUID) ([]model.AnswerSlot, error)
	GetQuestionsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Question, error)
	UpdateAnswerSlot(ctx context.Context, id uuid.UUID, u model.SlotUpdate) error
	// UpdateAnswerSlots applies every patch or none of them.
	UpdateAnswerSlots(ctx context.Context, patches []model.SlotPatch) error
	UpdateExam(ctx context.Context, id uuid.UUID, u model.ExamUpdate) error
}

// Lock serializes finalization of one exam across processes.
// Acquire returns ErrFinalizeInProgress when another holder owns the lock.
type Lock interface {
	Acquire(ctx context.Context, examID uuid.UUID) (release func(), err error)
}
