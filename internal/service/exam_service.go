package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yuresilva1/inss-study-hub/internal/engine"
	"github.com/yuresilva1/inss-study-hub/internal/model"
	"github.com/yuresilva1/inss-study-hub/internal/repository"
)

// Domain Errors
var (
	ErrNotExamOwner    = errors.New("exam belongs to another user")
	ErrNoQuestions     = errors.New("no questions available for the selected subjects")
	ErrExamNotFinished = errors.New("exam is still in progress")
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// ExamConfig holds the tunables of ExamService.
type ExamConfig struct {
	DefaultTimeLimit time.Duration
	MaxQuestionPool  int
	WriteTimeout     time.Duration
}

// ExamService assembles exams, serves their history and review, and owns the
// live sessions of this process. At most one live session exists per exam;
// opening another one takes over.
type ExamService struct {
	store repository.Store
	sink  engine.Sink
	lock  engine.Lock
	cfg   ExamConfig
	base  zerolog.Logger
	log   zerolog.Logger

	mu   sync.Mutex
	live map[uuid.UUID]*engine.Session
}

// NewExamService creates a new ExamService. sink and lock may be nil, which
// selects direct slot writes and no cross-process finalize lock.
func NewExamService(store repository.Store, sink engine.Sink, lock engine.Lock, cfg ExamConfig, log zerolog.Logger) *ExamService {
	if cfg.MaxQuestionPool <= 0 {
		cfg.MaxQuestionPool = 200
	}
	if sink == nil {
		sink = engine.DirectSink(store)
	}
	return &ExamService{
		store: store,
		sink:  sink,
		lock:  lock,
		cfg:   cfg,
		base:  log,
		log:   log.With().Str("component", "exam_service").Logger(),
		live:  make(map[uuid.UUID]*engine.Session),
	}
}

// CreateExam picks req.QuestionCount random questions from the selected
// subjects and stores the exam with its slots in shuffled order.
func (s *ExamService) CreateExam(ctx context.Context, ownerID uuid.UUID, req model.CreateExamRequest) (*model.Exam, error) {
	pool, err := s.store.ListQuestionIDsBySubjects(ctx, req.SubjectIDs, s.cfg.MaxQuestionPool)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if len(pool) == 0 {
		return nil, ErrNoQuestions
	}

	rand.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if len(pool) > req.QuestionCount {
		pool = pool[:req.QuestionCount]
	}

	mode := req.Mode
	if mode == "" {
		mode = model.ExamModeRandom
	}
	exam := &model.Exam{
		OwnerID:          ownerID,
		SubjectIDs:       req.SubjectIDs,
		Mode:             mode,
		TimeLimitMinutes: req.TimeLimitMinutes,
	}
	if err := s.store.CreateExam(ctx, exam, pool); err != nil {
		return nil, fmt.Errorf("create exam: %w", err)
	}

	s.log.Info().
		Str("exam_id", exam.ID.String()).
		Str("owner_id", ownerID.String()).
		Int("questions", exam.TotalQuestions).
		Msg("Exam created")
	return exam, nil
}

// GetExam returns the exam if ownerID owns it.
func (s *ExamService) GetExam(ctx context.Context, ownerID, examID uuid.UUID) (*model.Exam, error) {
	exam, err := s.store.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if exam.OwnerID != ownerID {
		return nil, ErrNotExamOwner
	}
	return exam, nil
}

// GetResult returns the review of a finished exam. With onlyErrors the
// items answered correctly are left out.
func (s *ExamService) GetResult(ctx context.Context, ownerID, examID uuid.UUID, onlyErrors bool) (*model.ExamReview, error) {
	exam, err := s.GetExam(ctx, ownerID, examID)
	if err != nil {
		return nil, err
	}
	if !exam.IsFinished() {
		return nil, ErrExamNotFinished
	}

	items, err := s.store.ListReviewItems(ctx, examID)
	if err != nil {
		return nil, err
	}
	if onlyErrors {
		kept := items[:0]
		for _, it := range items {
			if it.IsCorrect == nil || !*it.IsCorrect {
				kept = append(kept, it)
			}
		}
		items = kept
	}
	return &model.ExamReview{Exam: *exam, Items: items}, nil
}

// ListHistory returns the owner's exams, newest first.
func (s *ExamService) ListHistory(ctx context.Context, ownerID uuid.UUID, limit int) ([]model.Exam, error) {
	if limit < 1 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	exams, err := s.store.ListExamsByOwner(ctx, ownerID, limit)
	if err != nil {
		return nil, err
	}
	if exams == nil {
		exams = []model.Exam{}
	}
	return exams, nil
}

// OpenSession loads a live session for the owner's in-progress exam. A
// session already live for the same exam is closed first; its pending
// writes are flushed before the new one reads storage.
func (s *ExamService) OpenSession(ctx context.Context, ownerID, examID uuid.UUID, listener engine.Listener) (*engine.Session, error) {
	exam, err := s.GetExam(ctx, ownerID, examID)
	if err != nil {
		return nil, err
	}
	if exam.IsFinished() {
		return nil, engine.ErrAlreadyFinished
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old := s.live[examID]; old != nil {
		delete(s.live, examID)
		old.Close()
		s.log.Info().Str("exam_id", examID.String()).Msg("Live session taken over")
	}

	if err := s.sink.Flush(ctx, examID); err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Flush before load failed")
	}

	opts := s.sessionOptions()
	opts.Listener = listener
	sess, err := engine.Load(ctx, s.store, examID, opts)
	if err != nil {
		return nil, err
	}
	s.live[examID] = sess

	go func() {
		<-sess.Done()
		s.mu.Lock()
		if s.live[examID] == sess {
			delete(s.live, examID)
		}
		s.mu.Unlock()
	}()
	return sess, nil
}

// Finalize finishes the owner's exam. It is idempotent: a finished exam
// yields its stored result.
func (s *ExamService) Finalize(ctx context.Context, ownerID, examID uuid.UUID) (*engine.Result, error) {
	if _, err := s.GetExam(ctx, ownerID, examID); err != nil {
		return nil, err
	}
	return s.ForceFinalize(ctx, examID)
}

// ForceFinalize finishes any exam without an ownership check. A live
// session of this process is finished in place; otherwise the exam is
// replayed from storage.
func (s *ExamService) ForceFinalize(ctx context.Context, examID uuid.UUID) (*engine.Result, error) {
	s.mu.Lock()
	sess := s.live[examID]
	s.mu.Unlock()

	if sess != nil {
		res, err := sess.Finish(ctx)
		if !errors.Is(err, engine.ErrSessionClosed) {
			return res, err
		}
	}
	return engine.Replay(ctx, s.store, examID, s.sessionOptions())
}

// LiveSessions reports how many sessions this process currently holds.
func (s *ExamService) LiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Shutdown closes every live session. Their timers stop and pending writes
// are drained; nothing is finalized.
func (s *ExamService) Shutdown() {
	s.mu.Lock()
	sessions := make([]*engine.Session, 0, len(s.live))
	for id, sess := range s.live {
		sessions = append(sessions, sess)
		delete(s.live, id)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.Close()
	}
}

func (s *ExamService) sessionOptions() engine.Options {
	return engine.Options{
		Sink:             s.sink,
		Lock:             s.lock,
		Logger:           &s.base,
		DefaultTimeLimit: s.cfg.DefaultTimeLimit,
		WriteTimeout:     s.cfg.WriteTimeout,
	}
}
