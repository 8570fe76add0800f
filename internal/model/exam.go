package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the possible states of a practice exam.
type ExamStatus string

const (
	ExamStatusInProgress ExamStatus = "in_progress"
	ExamStatusFinished   ExamStatus = "finished"
)

// ExamMode is how the questions were picked when the exam was assembled.
type ExamMode string

const (
	ExamModeRandom   ExamMode = "random"
	ExamModeThematic ExamMode = "thematic"
)

// Exam represents one timed attempt at a set of questions by one user.
// Score, TotalCorrect, TimeSpentSeconds and FinishedAt are only set once
// the exam is finished.
type Exam struct {
	ID               uuid.UUID   `json:"id"`
	OwnerID          uuid.UUID   `json:"user_id"`
	SubjectIDs       []uuid.UUID `json:"subject_ids"`
	Mode             ExamMode    `json:"mode"`
	Status           ExamStatus  `json:"status"`
	TotalQuestions   int         `json:"total_questions"`
	TimeLimitMinutes int         `json:"time_limit_minutes"`
	Score            *float64    `json:"score,omitempty"`
	TotalCorrect     *int        `json:"total_correct,omitempty"`
	TimeSpentSeconds *int        `json:"time_spent_seconds,omitempty"`
	StartedAt        time.Time   `json:"started_at"`
	FinishedAt       *time.Time  `json:"finished_at,omitempty"`
}

// IsFinished reports whether the exam reached its terminal state.
func (e *Exam) IsFinished() bool {
	return e.Status == ExamStatusFinished
}

// ExamUpdate is a partial update of an exam. Nil fields are left untouched.
// When WhenStatus is set the update only applies if the stored status still
// matches it; otherwise the store reports ErrStatusConflict.
type ExamUpdate struct {
	Status           *ExamStatus
	Score            *float64
	TotalCorrect     *int
	TimeSpentSeconds *int
	FinishedAt       *time.Time
	WhenStatus       *ExamStatus
}

// Empty reports whether the update would not change any column.
func (u ExamUpdate) Empty() bool {
	return u.Status == nil && u.Score == nil && u.TotalCorrect == nil &&
		u.TimeSpentSeconds == nil && u.FinishedAt == nil
}

// CreateExamRequest is the payload for assembling a new practice exam.
type CreateExamRequest struct {
	SubjectIDs       []uuid.UUID `json:"subject_ids" binding:"required,min=1"`
	QuestionCount    int         `json:"question_count" binding:"required,min=5,max=50"`
	TimeLimitMinutes int         `json:"time_limit_minutes" binding:"required,min=15,max=180"`
	Mode             ExamMode    `json:"mode" binding:"omitempty,oneof=random thematic"`
}

// ExamReview is the read-only view of a finished exam.
type ExamReview struct {
	Exam  Exam         `json:"exam"`
	Items []ReviewItem `json:"items"`
}

// ReviewItem is one answered (or skipped) question in a finished exam.
type ReviewItem struct {
	SlotID     uuid.UUID `json:"id"`
	Position   int       `json:"question_order"`
	UserAnswer Option    `json:"user_answer,omitempty"`
	IsCorrect  *bool     `json:"is_correct"`
	Question   Question  `json:"question"`
}
