package model

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Option is one of the five lettered choices of a question. The zero value
// means the slot was left unanswered.
type Option string

const (
	OptionUnset Option = ""
	OptionA     Option = "A"
	OptionB     Option = "B"
	OptionC     Option = "C"
	OptionD     Option = "D"
	OptionE     Option = "E"
)

// Options lists the valid choices in presentation order.
var Options = []Option{OptionA, OptionB, OptionC, OptionD, OptionE}

// Valid reports whether o is one of A..E.
func (o Option) Valid() bool {
	switch o {
	case OptionA, OptionB, OptionC, OptionD, OptionE:
		return true
	}
	return false
}

// ParseOption normalizes s ("a", " B ") into an Option.
func ParseOption(s string) (Option, error) {
	o := Option(strings.ToUpper(strings.TrimSpace(s)))
	if !o.Valid() {
		return OptionUnset, fmt.Errorf("invalid option %q", s)
	}
	return o, nil
}

// AnswerSlot is the per-question record within an exam. Slots are created
// together with their exam and never added or removed afterwards.
type AnswerSlot struct {
	ID               uuid.UUID `json:"id"`
	ExamID           uuid.UUID `json:"exam_id"`
	QuestionID       uuid.UUID `json:"question_id"`
	Position         int       `json:"question_order"`
	UserAnswer       Option    `json:"user_answer,omitempty"`
	IsFlagged        bool      `json:"is_flagged"`
	IsCorrect        *bool     `json:"is_correct,omitempty"`
	TimeSpentSeconds int       `json:"time_spent_seconds"`
}

// Answered reports whether the user picked an option for this slot.
func (s *AnswerSlot) Answered() bool {
	return s.UserAnswer != OptionUnset
}

// SlotUpdate is a partial update of an answer slot. Nil fields are left untouched.
type SlotUpdate struct {
	UserAnswer       *Option `json:"user_answer,omitempty"`
	IsFlagged        *bool   `json:"is_flagged,omitempty"`
	TimeSpentSeconds *int    `json:"time_spent_seconds,omitempty"`
	IsCorrect        *bool   `json:"is_correct,omitempty"`
}

// Empty reports whether the update would not change any column.
func (u SlotUpdate) Empty() bool {
	return u.UserAnswer == nil && u.IsFlagged == nil && u.TimeSpentSeconds == nil && u.IsCorrect == nil
}

// SlotPatch targets a SlotUpdate at one slot, for bulk commits.
type SlotPatch struct {
	SlotID uuid.UUID
	Update SlotUpdate
}
