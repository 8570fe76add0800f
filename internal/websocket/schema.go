package websocket

import "github.com/yuresilva1/inss-study-hub/internal/engine"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionSelect Action = "select"
	ActionFlag   Action = "flag"
	ActionGoto   Action = "goto"
	ActionFinish Action = "finish"
	ActionState  Action = "state"
	ActionPing   Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// SelectRequest picks an option for the current question.
type SelectRequest struct {
	Action Action `json:"action"`
	Option string `json:"option" binding:"required,option"`
}

// GotoRequest moves to the question at the zero-based index.
type GotoRequest struct {
	Action Action `json:"action"`
	Index  *int   `json:"index" binding:"required,min=0"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState    Event = "state"
	EventTick     Event = "tick"
	EventNotice   Event = "notice"
	EventFinished Event = "finished"
	EventError    Event = "error"
	EventPong     Event = "pong"
)

type StateResponse struct {
	Event Event        `json:"event"`
	View  *engine.View `json:"view"`
}

type TickResponse struct {
	Event     Event  `json:"event"`
	Remaining int    `json:"remaining_seconds"`
	Clock     string `json:"clock"`
	LowTime   bool   `json:"low_time"`
}

type NoticeResponse struct {
	Event   Event  `json:"event"`
	Message string `json:"message"`
}

type FinishedResponse struct {
	Event    Event          `json:"event"`
	Result   *engine.Result `json:"result"`
	Redirect string         `json:"redirect"`
}

type ErrorResponse struct {
	Event  Event             `json:"event"`
	Code   string            `json:"code"`
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
	Fatal  bool              `json:"fatal,omitempty"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
