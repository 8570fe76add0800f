package model

import (
	"errors"

	"github.com/google/uuid"
)

// Storage-level errors shared by every gateway implementation.
var (
	ErrNotFound       = errors.New("record not found")
	ErrStatusConflict = errors.New("exam status changed concurrently")
)

// Question is read-only reference data owned by the question bank.
type Question struct {
	ID            uuid.UUID `json:"id"`
	SubjectID     uuid.UUID `json:"subject_id"`
	SubjectName   string    `json:"subject_name,omitempty"`
	Statement     string    `json:"statement"`
	OptionA       string    `json:"option_a"`
	OptionB       string    `json:"option_b"`
	OptionC       string    `json:"option_c"`
	OptionD       string    `json:"option_d"`
	OptionE       string    `json:"option_e"`
	CorrectAnswer Option    `json:"correct_answer,omitempty"`
	Explanation   string    `json:"explanation,omitempty"`
}

// Choice is one lettered option with its text.
type Choice struct {
	Key  Option `json:"key"`
	Text string `json:"text"`
}

// Choices returns the five options in A..E order.
func (q *Question) Choices() []Choice {
	return []Choice{
		{Key: OptionA, Text: q.OptionA},
		{Key: OptionB, Text: q.OptionB},
		{Key: OptionC, Text: q.OptionC},
		{Key: OptionD, Text: q.OptionD},
		{Key: OptionE, Text: q.OptionE},
	}
}

// WithoutAnswer returns a copy safe to show while the exam is running.
func (q Question) WithoutAnswer() Question {
	q.CorrectAnswer = OptionUnset
	q.Explanation = ""
	return q
}
