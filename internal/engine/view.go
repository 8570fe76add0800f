package engine

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/yuresilva1/inss-study-hub/internal/model"
)

// LowTimeThreshold is the remaining time under which the view signals low time.
const LowTimeThreshold = 300

type EventType string

const (
	EventState    EventType = "state"
	EventTick     EventType = "tick"
	EventNotice   EventType = "notice"
	EventFinished EventType = "finished"
	EventFault    EventType = "fault"
)

// Event is pushed to the session Listener. Only the fields relevant to Type are set.
type Event struct {
	Type      EventType
	Remaining int
	View      *View
	Result    *Result
	Err       error
}

// Listener receives session events. It may be called from the session loop
// and from the slot writer, never concurrently. It must not block and must
// not call back into the session.
type Listener func(Event)

type SlotState string

const (
	SlotCurrent    SlotState = "current"
	SlotAnswered   SlotState = "answered"
	SlotFlagged    SlotState = "flagged"
	SlotUnanswered SlotState = "unanswered"
)

type SlotView struct {
	Position int       `json:"position"`
	State    SlotState `json:"state"`
	Answered bool      `json:"answered"`
	Flagged  bool      `json:"flagged"`
}

type QuestionView struct {
	SlotID      uuid.UUID      `json:"slot_id"`
	QuestionID  uuid.UUID      `json:"question_id"`
	SubjectName string         `json:"subject_name,omitempty"`
	Statement   string         `json:"statement"`
	Choices     []model.Choice `json:"choices"`
	Selected    model.Option   `json:"selected,omitempty"`
	Flagged     bool           `json:"flagged"`
}

// View is the presentation snapshot of a live session.
type View struct {
	ExamID     uuid.UUID     `json:"exam_id"`
	Position   int           `json:"position"`
	Count      int           `json:"count"`
	Remaining  int           `json:"remaining_seconds"`
	Clock      string        `json:"clock"`
	LowTime    bool          `json:"low_time"`
	Current    *QuestionView `json:"current,omitempty"`
	Slots      []SlotView    `json:"slots"`
	Unanswered int           `json:"unanswered"`
	Finished   bool          `json:"finished"`
}

// FormatClock renders seconds as mm:ss. Minutes are not wrapped into hours.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

func slotState(s *model.AnswerSlot, current bool) SlotState {
	switch {
	case current:
		return SlotCurrent
	case s.Answered():
		return SlotAnswered
	case s.IsFlagged:
		return SlotFlagged
	default:
		return SlotUnanswered
	}
}

// view must run on the session loop.
func (s *Session) view() *View {
	v := &View{
		ExamID:    s.id,
		Count:     len(s.slots),
		Remaining: s.remaining,
		Clock:     FormatClock(s.remaining),
		LowTime:   s.remaining < LowTimeThreshold,
		Slots:     make([]SlotView, len(s.slots)),
		Finished:  s.result != nil,
	}
	for i := range s.slots {
		slot := &s.slots[i]
		v.Slots[i] = SlotView{
			Position: slot.Position,
			State:    slotState(slot, i == s.cursor),
			Answered: slot.Answered(),
			Flagged:  slot.IsFlagged,
		}
		if !slot.Answered() {
			v.Unanswered++
		}
	}
	if s.cursor >= 0 && s.cursor < len(s.slots) {
		slot := &s.slots[s.cursor]
		v.Position = s.cursor + 1
		q := s.questions[slot.QuestionID]
		v.Current = &QuestionView{
			SlotID:      slot.ID,
			QuestionID:  slot.QuestionID,
			SubjectName: q.SubjectName,
			Statement:   q.Statement,
			Choices:     q.Choices(),
			Selected:    slot.UserAnswer,
			Flagged:     slot.IsFlagged,
		}
	}
	return v
}
