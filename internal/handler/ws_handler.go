package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/yuresilva1/inss-study-hub/internal/cache"
	"github.com/yuresilva1/inss-study-hub/internal/engine"
	"github.com/yuresilva1/inss-study-hub/internal/model"
	"github.com/yuresilva1/inss-study-hub/internal/response"
	"github.com/yuresilva1/inss-study-hub/internal/service"
	"github.com/yuresilva1/inss-study-hub/internal/validator"
	ws "github.com/yuresilva1/inss-study-hub/internal/websocket"
)

const (
	outboundBuffer = 64
	finishTimeout  = 30 * time.Second
	commandTimeout = 10 * time.Second
)

const (
	noticeSaveFailed     = "Não foi possível salvar sua última alteração. Ela será enviada novamente ao finalizar."
	noticeFinalizeFailed = "Não foi possível finalizar o simulado. Tente novamente."
	closeTakenOver       = "simulado aberto em outra janela"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler serves the live exam session. One connection drives one session.
type WSHandler struct {
	examService *service.ExamService
	notices     *cache.Notices
	log         zerolog.Logger
	upgrader    websocket.Upgrader
}

// NewWSHandler creates a new WSHandler. notices may be nil when Redis is off.
func NewWSHandler(examService *service.ExamService, notices *cache.Notices, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		examService: examService,
		notices:     notices,
		log:         log.With().Str("component", "ws_handler").Logger(),
		upgrader:    buildUpgrader(allowedOrigins),
	}
}

// outbound is everything the writer goroutine sends, in order.
type outbound struct {
	msgs     chan interface{}
	finished chan *engine.Result
	fatal    chan ws.ErrorResponse
}

func newOutbound() *outbound {
	return &outbound{
		msgs:     make(chan interface{}, outboundBuffer),
		finished: make(chan *engine.Result, 2),
		fatal:    make(chan ws.ErrorResponse, 1),
	}
}

// offer never blocks. Under backpressure ticks and states are dropped; the
// next one supersedes them anyway.
func (o *outbound) offer(v interface{}) bool {
	select {
	case o.msgs <- v:
		return true
	default:
		return false
	}
}

func (o *outbound) send(ctx context.Context, v interface{}) {
	select {
	case o.msgs <- v:
	case <-ctx.Done():
	}
}

func (o *outbound) finish(res *engine.Result) {
	select {
	case o.finished <- res:
	default:
	}
}

// ExamSession godoc
// WS /ws/v1/exams/:exam_id/session?token=...
// Opens the live session of an in-progress exam. Closing the connection
// dismounts the session without finalizing it.
func (h *WSHandler) ExamSession(c *gin.Context) {
	userID, examID, ok := userAndExam(c)
	if !ok {
		return
	}

	// Refuse before upgrading so the client gets a plain HTTP error.
	exam, err := h.examService.GetExam(c.Request.Context(), userID, examID)
	if err != nil {
		fail(c, err)
		return
	}
	if exam.IsFinished() {
		fail(c, engine.ErrAlreadyFinished)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()
	ws.Prepare(conn)

	wsLog := h.log.With().
		Str("owner_id", userID.String()).
		Str("exam_id", examID.String()).
		Logger()

	out := newOutbound()
	listener := h.listener(out, wsLog)

	sess, err := h.examService.OpenSession(c.Request.Context(), userID, examID, listener)
	if err != nil {
		status, code := classify(err)
		if status >= http.StatusInternalServerError {
			wsLog.Error().Err(err).Msg("Open session failed")
		}
		ws.WriteTyped(conn, errorEvent(code, nil))
		ws.WriteClose(conn, websocket.CloseNormalClosure, string(code))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeLoop(ctx, conn, out, sess, examID, wsLog)
	}()

	wsLog.Info().Msg("Session connected")
	if v, err := sess.View(ctx); err == nil {
		out.send(ctx, ws.StateResponse{Event: ws.EventState, View: v})
	}

	for {
		data, err := ws.ReadMessage(conn)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}
		h.dispatch(ctx, sess, out, data)
	}

	cancel()
	sess.Close()
	<-writerDone
	wsLog.Info().Msg("Session disconnected")
}

// listener translates session events into outbound messages. It runs on the
// session goroutine and must not block.
func (h *WSHandler) listener(out *outbound, log zerolog.Logger) engine.Listener {
	return func(ev engine.Event) {
		switch ev.Type {
		case engine.EventState:
			out.offer(ws.StateResponse{Event: ws.EventState, View: ev.View})
		case engine.EventTick:
			if !out.offer(ws.TickResponse{
				Event:     ws.EventTick,
				Remaining: ev.Remaining,
				Clock:     engine.FormatClock(ev.Remaining),
				LowTime:   ev.Remaining < engine.LowTimeThreshold,
			}) {
				log.Debug().Msg("tick dropped")
			}
		case engine.EventNotice:
			out.offer(ws.NoticeResponse{Event: ws.EventNotice, Message: noticeMessage(ev.Err)})
		case engine.EventFinished:
			out.finish(ev.Result)
		case engine.EventFault:
			select {
			case out.fatal <- errorEvent(response.ErrSessionFault, nil):
			default:
			}
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, out *outbound, sess *engine.Session, examID uuid.UUID, log zerolog.Logger) {
	ping := time.NewTicker(ws.PingPeriod)
	defer ping.Stop()

	var notices <-chan cache.Notice
	if h.notices != nil {
		notices = h.notices.Subscribe(ctx, examID)
	}

	var delivered *engine.Result
	write := func(v interface{}) bool {
		if err := ws.WriteTyped(conn, v); err != nil {
			log.Debug().Err(err).Msg("write failed")
			conn.Close()
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-sess.Done():
			// Closed by a takeover; our own close cancels ctx first.
			if ctx.Err() == nil {
				ws.WriteClose(conn, websocket.ClosePolicyViolation, closeTakenOver)
				conn.Close()
			}
			return
		case res := <-out.finished:
			if res == delivered {
				continue
			}
			delivered = res
			if !write(ws.FinishedResponse{Event: ws.EventFinished, Result: res, Redirect: "/result/" + examID.String()}) {
				return
			}
		case fatal := <-out.fatal:
			write(fatal)
			ws.WriteClose(conn, websocket.CloseInternalServerErr, string(response.ErrSessionFault))
			conn.Close()
			return
		case msg := <-out.msgs:
			if !write(msg) {
				return
			}
		case n, ok := <-notices:
			if !ok {
				notices = nil
				continue
			}
			if !write(ws.NoticeResponse{Event: ws.EventNotice, Message: n.Message}) {
				return
			}
		case <-ping.C:
			if err := ws.WritePing(conn); err != nil {
				conn.Close()
				return
			}
		}
	}
}

func (h *WSHandler) dispatch(ctx context.Context, sess *engine.Session, out *outbound, data []byte) {
	var env ws.RequestEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		out.send(ctx, errorEvent(response.ErrInvalidPayload, nil))
		return
	}

	cmdCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	var err error
	switch env.Action {
	case ws.ActionSelect:
		var req ws.SelectRequest
		if fields := decode(data, &req); fields != nil {
			out.send(ctx, errorEvent(response.ErrValidation, fields))
			return
		}
		opt, _ := model.ParseOption(req.Option)
		err = sess.SelectAnswer(cmdCtx, opt)

	case ws.ActionFlag:
		_, err = sess.ToggleFlag(cmdCtx)

	case ws.ActionGoto:
		var req ws.GotoRequest
		if fields := decode(data, &req); fields != nil {
			out.send(ctx, errorEvent(response.ErrValidation, fields))
			return
		}
		if *req.Index >= sess.Len() {
			out.send(ctx, errorEvent(response.ErrValidation, map[string]string{
				"index": fmt.Sprintf("deve ser menor que %d", sess.Len()),
			}))
			return
		}
		err = sess.GoTo(cmdCtx, *req.Index)

	case ws.ActionFinish:
		finishCtx, cancelFinish := context.WithTimeout(ctx, finishTimeout)
		var res *engine.Result
		res, err = sess.Finish(finishCtx)
		cancelFinish()
		if err == nil {
			out.finish(res)
		}

	case ws.ActionState:
		var v *engine.View
		if v, err = sess.View(cmdCtx); err == nil {
			out.send(ctx, ws.StateResponse{Event: ws.EventState, View: v})
		}

	case ws.ActionPing:
		out.send(ctx, ws.PongResponse{Event: ws.EventPong})

	default:
		out.send(ctx, ws.ErrorResponse{Event: ws.EventError, Code: string(response.ErrInvalidPayload), Error: "ação desconhecida: " + string(env.Action)})
		return
	}

	if err != nil {
		_, code := classify(err)
		// A fault is reported once by the listener, which also closes the connection.
		if code != response.ErrSessionFault {
			out.send(ctx, errorEvent(code, nil))
		}
	}
}

func decode(data []byte, dst interface{}) map[string]string {
	if err := json.Unmarshal(data, dst); err != nil {
		return map[string]string{"detail": err.Error()}
	}
	return validator.Validate(dst)
}

func errorEvent(code response.ErrCode, fields map[string]string) ws.ErrorResponse {
	return ws.ErrorResponse{
		Event:  ws.EventError,
		Code:   string(code),
		Error:  response.GetMessage(code),
		Fields: fields,
		Fatal:  code == response.ErrSessionFault,
	}
}

func noticeMessage(err error) string {
	var pe *engine.PersistenceError
	if errors.As(err, &pe) {
		switch engine.SlotField(strings.TrimPrefix(pe.Op, "slot ")) {
		case engine.FieldUserAnswer, engine.FieldIsFlagged:
			return noticeSaveFailed
		}
	}
	if errors.Is(err, engine.ErrFinalizeInProgress) {
		return response.GetMessage(response.ErrFinalizeInProgress)
	}
	return noticeFinalizeFailed
}
