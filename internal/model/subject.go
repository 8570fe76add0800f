package model

import "github.com/google/uuid"

// Subject is a topic of the question bank, e.g. "Direito Previdenciário".
type Subject struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	QuestionCount int       `json:"question_count"`
}
