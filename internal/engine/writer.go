package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yuresilva1/inss-study-hub/internal/model"
)

// SlotField names the answer slot column a write targets.
type SlotField string

const (
	FieldUserAnswer SlotField = "user_answer"
	FieldIsFlagged  SlotField = "is_flagged"
)

// SlotWrite is the intent to persist one field of one slot.
type SlotWrite struct {
	ExamID uuid.UUID        `json:"exam_id"`
	SlotID uuid.UUID        `json:"slot_id"`
	Field  SlotField        `json:"field"`
	Update model.SlotUpdate `json:"update"`
}

// Key identifies the slot field a write targets.
func (w SlotWrite) Key() string {
	return fmt.Sprintf("%s:%s", w.SlotID, w.Field)
}

// Sink carries slot writes to durable storage.
// Flush must return only once every intent accepted for examID is durable.
type Sink interface {
	Write(ctx context.Context, w SlotWrite) error
	Flush(ctx context.Context, examID uuid.UUID) error
}

// DirectSink writes straight through to the gateway.
func DirectSink(gw Gateway) Sink { return directSink{gw: gw} }

type directSink struct{ gw Gateway }

func (d directSink) Write(ctx context.Context, w SlotWrite) error {
	return d.gw.UpdateAnswerSlot(ctx, w.SlotID, w.Update)
}

func (directSink) Flush(context.Context, uuid.UUID) error { return nil }

type flushRequest struct {
	ctx   context.Context
	reply chan error
}

// slotWriter serializes the writes of one session. Pending intents are
// coalesced per slot field so only the latest one is sent. A failed write is
// not retried on its own; it is kept until a newer intent replaces it or the
// next Flush sends it again.
type slotWriter struct {
	examID  uuid.UUID
	sink    Sink
	timeout time.Duration
	onError func(SlotWrite, error)
	log     zerolog.Logger

	mu      sync.Mutex
	pending map[string]SlotWrite
	order   []string
	failed  map[string]SlotWrite

	wake    chan struct{}
	flushCh chan flushRequest
	quit    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

func newSlotWriter(examID uuid.UUID, sink Sink, timeout time.Duration, onError func(SlotWrite, error), log zerolog.Logger) *slotWriter {
	w := &slotWriter{
		examID:  examID,
		sink:    sink,
		timeout: timeout,
		onError: onError,
		log:     log,
		pending: make(map[string]SlotWrite),
		failed:  make(map[string]SlotWrite),
		wake:    make(chan struct{}, 1),
		flushCh: make(chan flushRequest),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go w.run()
	return w
}

// Enqueue records the intent and returns immediately.
func (w *slotWriter) Enqueue(sw SlotWrite) {
	key := sw.Key()
	w.mu.Lock()
	if _, ok := w.pending[key]; !ok {
		w.order = append(w.order, key)
	}
	w.pending[key] = sw
	delete(w.failed, key)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Flush drains the queue, resends failed intents and flushes the sink.
func (w *slotWriter) Flush(ctx context.Context) error {
	req := flushRequest{ctx: ctx, reply: make(chan error, 1)}
	select {
	case w.flushCh <- req:
	case <-w.stopped:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains what is queued and stops the writer goroutine.
func (w *slotWriter) Close() {
	w.once.Do(func() { close(w.quit) })
	<-w.stopped
}

func (w *slotWriter) run() {
	defer close(w.stopped)
	for {
		select {
		case <-w.wake:
			w.drain()
		case req := <-w.flushCh:
			w.drain()
			req.reply <- w.flush(req.ctx)
		case <-w.quit:
			w.drain()
			return
		}
	}
}

func (w *slotWriter) next() (SlotWrite, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.order) == 0 {
		return SlotWrite{}, false
	}
	key := w.order[0]
	w.order = w.order[1:]
	sw := w.pending[key]
	delete(w.pending, key)
	return sw, true
}

func (w *slotWriter) drain() {
	for {
		sw, ok := w.next()
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		err := w.sink.Write(ctx, sw)
		cancel()
		if err != nil {
			w.markFailed(sw)
			w.log.Warn().Err(err).
				Str("slot_id", sw.SlotID.String()).
				Str("field", string(sw.Field)).
				Msg("Slot write failed")
			if w.onError != nil {
				w.onError(sw, err)
			}
		}
	}
}

func (w *slotWriter) markFailed(sw SlotWrite) {
	key := sw.Key()
	w.mu.Lock()
	defer w.mu.Unlock()
	// A newer intent already queued supersedes the failed one.
	if _, ok := w.pending[key]; ok {
		return
	}
	w.failed[key] = sw
}

func (w *slotWriter) flush(ctx context.Context) error {
	w.mu.Lock()
	retry := make([]SlotWrite, 0, len(w.failed))
	for _, sw := range w.failed {
		retry = append(retry, sw)
	}
	w.mu.Unlock()

	for _, sw := range retry {
		if err := w.sink.Write(ctx, sw); err != nil {
			return persistErr("slot "+string(sw.Field), err)
		}
		w.mu.Lock()
		if cur, ok := w.failed[sw.Key()]; ok && cur == sw {
			delete(w.failed, sw.Key())
		}
		w.mu.Unlock()
	}
	return persistErr("flush slot writes", w.sink.Flush(ctx, w.examID))
}
