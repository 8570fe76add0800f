package engine

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yuresilva1/inss-study-hub/internal/metrics"
	"github.com/yuresilva1/inss-study-hub/internal/model"
)

const (
	DefaultTimeLimit    = 60 * time.Minute
	defaultWriteTimeout = 5 * time.Second
)

// Options configures a live session. Zero values pick sensible defaults.
type Options struct {
	Clock    Clock
	Sink     Sink // defaults to DirectSink(gw)
	Lock     Lock // optional cross-process finalize lock
	Listener Listener
	Logger   *zerolog.Logger

	// DefaultTimeLimit applies when the exam has no positive time limit.
	DefaultTimeLimit time.Duration
	WriteTimeout     time.Duration
	DisableTimer     bool
}

// Session is the live state of one in-progress exam. All mutations and
// timer ticks run one at a time on the session's own goroutine; the exported
// methods are safe for concurrent use.
type Session struct {
	id       uuid.UUID
	ownerID  uuid.UUID
	gw       Gateway
	clock    Clock
	lock     Lock
	listener Listener
	log      zerolog.Logger
	writer   *slotWriter
	count    int

	// Owned by the loop goroutine.
	exam          model.Exam
	slots         []model.AnswerSlot
	questions     map[uuid.UUID]model.Question
	cursor        int
	remaining     int
	questionStart time.Time
	deadline      bool
	result        *Result
	fault         error
	ticker        Ticker
	timerStop     chan struct{}

	emitMu    sync.Mutex
	cmds      chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// Load builds a live session for an in-progress exam and starts its timer.
// A finished exam is refused with an InvariantViolation wrapping
// ErrAlreadyFinished; callers should send the user to the review instead.
func Load(ctx context.Context, gw Gateway, examID uuid.UUID, opts Options) (*Session, error) {
	exam, err := gw.GetExam(ctx, examID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &NotFoundError{Resource: "exam", ID: examID}
		}
		return nil, persistErr("get exam", err)
	}
	if exam.IsFinished() {
		return nil, &InvariantViolation{Reason: "cannot load a finished exam", Err: ErrAlreadyFinished}
	}

	slots, err := gw.ListAnswerSlots(ctx, examID)
	if err != nil {
		return nil, persistErr("list answer slots", err)
	}
	sort.SliceStable(slots, func(i, j int) bool { return slots[i].Position < slots[j].Position })

	questions := map[uuid.UUID]model.Question{}
	if ids := distinctQuestionIDs(slots); len(ids) > 0 {
		questions, err = gw.GetQuestionsByIDs(ctx, ids)
		if err != nil {
			return nil, persistErr("get questions", err)
		}
		if len(questions) == 0 {
			return nil, &NotFoundError{Resource: "question set"}
		}
		for _, id := range ids {
			if _, ok := questions[id]; !ok {
				return nil, violation("exam has %d questions but question %s is missing", len(ids), id)
			}
		}
	}

	limit := time.Duration(exam.TimeLimitMinutes) * time.Minute
	if limit <= 0 {
		limit = opts.DefaultTimeLimit
		if limit <= 0 {
			limit = DefaultTimeLimit
		}
	}

	s := &Session{
		id:        exam.ID,
		ownerID:   exam.OwnerID,
		gw:        gw,
		clock:     opts.Clock,
		lock:      opts.Lock,
		listener:  opts.Listener,
		exam:      *exam,
		slots:     slots,
		count:     len(slots),
		questions: questions,
		remaining: int(limit / time.Second),
		cmds:      make(chan func()),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	if s.clock == nil {
		s.clock = RealClock()
	}
	base := zerolog.Nop()
	if opts.Logger != nil {
		base = *opts.Logger
	}
	s.log = base.With().
		Str("component", "exam_session").
		Str("exam_id", exam.ID.String()).
		Str("owner_id", exam.OwnerID.String()).
		Logger()

	sink := opts.Sink
	if sink == nil {
		sink = DirectSink(gw)
	}
	timeout := opts.WriteTimeout
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	s.writer = newSlotWriter(exam.ID, sink, timeout, s.onWriteError, s.log)

	s.questionStart = s.clock.Now()
	if !opts.DisableTimer {
		s.startTimer()
	}
	metrics.LiveSessions.Inc()
	go s.run()

	s.log.Debug().Int("slots", len(slots)).Int("remaining", s.remaining).Msg("Session loaded")
	return s, nil
}

// ID returns the exam identifier.
func (s *Session) ID() uuid.UUID { return s.id }

// OwnerID returns the identifier of the user who owns the exam.
func (s *Session) OwnerID() uuid.UUID { return s.ownerID }

// Len returns the number of slots. It never changes after Load.
func (s *Session) Len() int { return s.count }

// Done is closed once the session has shut down.
func (s *Session) Done() <-chan struct{} { return s.done }

// Close dismounts the session: the timer stops, queued writes are drained and
// the exam is left in progress. Must not be called from a Listener.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.quit) })
	<-s.done
}

func (s *Session) run() {
	defer close(s.done)
	for {
		select {
		case fn := <-s.cmds:
			fn()
		case <-s.quit:
			s.stopTimer()
			s.writer.Close()
			metrics.LiveSessions.Dec()
			s.log.Debug().Msg("Session closed")
			return
		}
	}
}

// do runs fn on the loop goroutine and waits for it to complete.
func (s *Session) do(ctx context.Context, fn func()) error {
	reply := make(chan struct{})
	cmd := func() {
		defer close(reply)
		fn()
	}
	select {
	case s.cmds <- cmd:
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	<-reply
	return nil
}

func (s *Session) emit(ev Event) {
	if s.listener == nil {
		return
	}
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	s.listener(ev)
}

func (s *Session) onWriteError(sw SlotWrite, err error) {
	metrics.SlotWriteFailures.WithLabelValues(string(sw.Field)).Inc()
	s.emit(Event{Type: EventNotice, Err: persistErr("slot "+string(sw.Field), err)})
}

// fail poisons the session. Every later operation returns err.
func (s *Session) fail(err error) error {
	if s.fault == nil {
		s.fault = err
		s.stopTimer()
		s.log.Error().Err(err).Msg("Session invariant violated")
		s.emit(Event{Type: EventFault, Err: err})
	}
	return s.fault
}

// mutable reports why the session refuses mutations, if it does.
func (s *Session) mutable() error {
	switch {
	case s.fault != nil:
		return s.fault
	case s.result != nil:
		return ErrAlreadyFinished
	case s.deadline:
		return ErrDeadlinePassed
	case s.cursor < 0 || s.cursor >= len(s.slots):
		return s.fail(violation("cursor %d out of range [0,%d)", s.cursor, len(s.slots)))
	}
	return nil
}

// accumulate books the time spent on the current slot since it was entered.
// Each departure is rounded to whole seconds on its own and the remainder is
// dropped, so many sub-second visits can add up to less than the wall time.
func (s *Session) accumulate() {
	now := s.clock.Now()
	if s.cursor >= 0 && s.cursor < len(s.slots) {
		secs := int(math.Round(now.Sub(s.questionStart).Seconds()))
		if secs > 0 {
			s.slots[s.cursor].TimeSpentSeconds += secs
		}
	}
	s.questionStart = now
}

// View returns the current presentation snapshot.
func (s *Session) View(ctx context.Context) (*View, error) {
	var v *View
	if err := s.do(ctx, func() { v = s.view() }); err != nil {
		return nil, err
	}
	return v, nil
}

// Slots returns a copy of the in-memory slots in position order.
func (s *Session) Slots(ctx context.Context) ([]model.AnswerSlot, error) {
	var out []model.AnswerSlot
	err := s.do(ctx, func() {
		out = make([]model.AnswerSlot, len(s.slots))
		copy(out, s.slots)
	})
	return out, err
}
