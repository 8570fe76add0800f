package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yuresilva1/inss-study-hub/internal/model"
)

// memGateway is an in-memory Gateway. Fail* hooks let tests inject errors.
type memGateway struct {
	mu        sync.Mutex
	exams     map[uuid.UUID]model.Exam
	slots     map[uuid.UUID]model.AnswerSlot
	questions map[uuid.UUID]model.Question

	slotWrites   []model.SlotUpdate
	bulkCalls    int
	examUpdates  int
	questionGets int

	failSlotWrite func(model.SlotUpdate) error
	failBulk      func(call int) error
	failExam      func(call int) error
}

func newMemGateway() *memGateway {
	return &memGateway{
		exams:     map[uuid.UUID]model.Exam{},
		slots:     map[uuid.UUID]model.AnswerSlot{},
		questions: map[uuid.UUID]model.Question{},
	}
}

// seed creates an exam whose slot i has answer answers[i] against key[i].
// A "-" answer leaves the slot unanswered.
func (g *memGateway) seed(limitMinutes int, answers, key []string) model.Exam {
	g.mu.Lock()
	defer g.mu.Unlock()
	exam := model.Exam{
		ID:               uuid.New(),
		OwnerID:          uuid.New(),
		Mode:             model.ExamModeRandom,
		Status:           model.ExamStatusInProgress,
		TotalQuestions:   len(key),
		TimeLimitMinutes: limitMinutes,
		StartedAt:        time.Now(),
	}
	g.exams[exam.ID] = exam
	for i := range key {
		q := model.Question{
			ID:            uuid.New(),
			Statement:     "question",
			OptionA:       "a",
			OptionB:       "b",
			OptionC:       "c",
			OptionD:       "d",
			OptionE:       "e",
			CorrectAnswer: model.Option(key[i]),
		}
		g.questions[q.ID] = q
		slot := model.AnswerSlot{
			ID:         uuid.New(),
			ExamID:     exam.ID,
			QuestionID: q.ID,
			Position:   i + 1,
		}
		if i < len(answers) && answers[i] != "-" {
			slot.UserAnswer = model.Option(answers[i])
		}
		g.slots[slot.ID] = slot
	}
	return exam
}

func (g *memGateway) GetExam(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.exams[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &e, nil
}

func (g *memGateway) ListAnswerSlots(_ context.Context, examID uuid.UUID) ([]model.AnswerSlot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []model.AnswerSlot
	for _, s := range g.slots {
		if s.ExamID == examID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (g *memGateway) GetQuestionsByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Question, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.questionGets++
	out := make(map[uuid.UUID]model.Question, len(ids))
	for _, id := range ids {
		if q, ok := g.questions[id]; ok {
			out[id] = q
		}
	}
	return out, nil
}

func (g *memGateway) UpdateAnswerSlot(_ context.Context, id uuid.UUID, u model.SlotUpdate) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failSlotWrite != nil {
		if err := g.failSlotWrite(u); err != nil {
			return err
		}
	}
	s, ok := g.slots[id]
	if !ok {
		return model.ErrNotFound
	}
	g.slotWrites = append(g.slotWrites, u)
	g.slots[id] = applySlot(s, u)
	return nil
}

func (g *memGateway) UpdateAnswerSlots(_ context.Context, patches []model.SlotPatch) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.bulkCalls++
	if g.failBulk != nil {
		if err := g.failBulk(g.bulkCalls); err != nil {
			return err
		}
	}
	for _, p := range patches {
		s, ok := g.slots[p.SlotID]
		if !ok {
			return model.ErrNotFound
		}
		g.slots[p.SlotID] = applySlot(s, p.Update)
	}
	return nil
}

func (g *memGateway) UpdateExam(_ context.Context, id uuid.UUID, u model.ExamUpdate) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.examUpdates++
	if g.failExam != nil {
		if err := g.failExam(g.examUpdates); err != nil {
			return err
		}
	}
	e, ok := g.exams[id]
	if !ok {
		return model.ErrNotFound
	}
	if u.WhenStatus != nil && e.Status != *u.WhenStatus {
		return model.ErrStatusConflict
	}
	if u.Status != nil {
		e.Status = *u.Status
	}
	if u.Score != nil {
		v := *u.Score
		e.Score = &v
	}
	if u.TotalCorrect != nil {
		v := *u.TotalCorrect
		e.TotalCorrect = &v
	}
	if u.TimeSpentSeconds != nil {
		v := *u.TimeSpentSeconds
		e.TimeSpentSeconds = &v
	}
	if u.FinishedAt != nil {
		v := *u.FinishedAt
		e.FinishedAt = &v
	}
	g.exams[id] = e
	return nil
}

func (g *memGateway) slot(id uuid.UUID) model.AnswerSlot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.slots[id]
}

func (g *memGateway) exam(id uuid.UUID) model.Exam {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.exams[id]
}

func (g *memGateway) counts() (examUpdates, bulkCalls int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.examUpdates, g.bulkCalls
}

func applySlot(s model.AnswerSlot, u model.SlotUpdate) model.AnswerSlot {
	if u.UserAnswer != nil {
		s.UserAnswer = *u.UserAnswer
	}
	if u.IsFlagged != nil {
		s.IsFlagged = *u.IsFlagged
	}
	if u.TimeSpentSeconds != nil {
		s.TimeSpentSeconds = *u.TimeSpentSeconds
	}
	if u.IsCorrect != nil {
		v := *u.IsCorrect
		s.IsCorrect = &v
	}
	return s
}

// fakeClock only moves when Advance is called. Its tickers fire on Tick.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) NewTicker(time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{ch: make(chan time.Time, 1)}
	c.tickers = append(c.tickers, t)
	return t
}

func (c *fakeClock) ticker(t *testing.T) *fakeTicker {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.tickers) != 1 {
		t.Fatalf("expected exactly one ticker, got %d", len(c.tickers))
	}
	return c.tickers[0]
}

type fakeTicker struct {
	ch      chan time.Time
	mu      sync.Mutex
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *fakeTicker) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// Tick delivers one tick, giving up after a short wait if nobody listens.
func (t *fakeTicker) Tick() bool {
	select {
	case t.ch <- time.Time{}:
		return true
	case <-time.After(100 * time.Millisecond):
		return false
	}
}

// recorder collects events for assertions.
type recorder struct {
	events chan Event
}

func newRecorder() *recorder {
	return &recorder{events: make(chan Event, 1024)}
}

func (r *recorder) listen(ev Event) {
	select {
	case r.events <- ev:
	default:
	}
}

func (r *recorder) waitFor(t *testing.T, typ EventType) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-r.events:
			if ev.Type == typ {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s event", typ)
			return Event{}
		}
	}
}

// drain returns every event recorded so far without waiting.
func (r *recorder) drain() []Event {
	var out []Event
	for {
		select {
		case ev := <-r.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

var errBoom = errors.New("boom")

func loadSession(t *testing.T, gw *memGateway, examID uuid.UUID, clock *fakeClock, rec *recorder) *Session {
	t.Helper()
	opts := Options{Clock: clock}
	if rec != nil {
		opts.Listener = rec.listen
	}
	s, err := Load(context.Background(), gw, examID, opts)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}
