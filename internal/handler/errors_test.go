package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"

	"github.com/yuresilva1/inss-study-hub/internal/engine"
	"github.com/yuresilva1/inss-study-hub/internal/response"
	"github.com/yuresilva1/inss-study-hub/internal/service"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   response.ErrCode
	}{
		{"missing exam", &engine.NotFoundError{Resource: "exam", ID: uuid.New()}, http.StatusNotFound, response.ErrExamNotFound},
		{"missing question set", &engine.NotFoundError{Resource: "question set", ID: uuid.New()}, http.StatusNotFound, response.ErrQuestionSetNotFound},
		{"wrapped not found", fmt.Errorf("get: %w", engine.ErrNotFound), http.StatusNotFound, response.ErrExamNotFound},
		{"not owner", service.ErrNotExamOwner, http.StatusForbidden, response.ErrNotExamOwner},
		{"empty pool", service.ErrNoQuestions, http.StatusUnprocessableEntity, response.ErrNoQuestions},
		{"not finished", service.ErrExamNotFinished, http.StatusConflict, response.ErrExamNotFinished},
		{"already finished", engine.ErrAlreadyFinished, http.StatusConflict, response.ErrExamFinished},
		{"finished on load", &engine.InvariantViolation{Err: engine.ErrAlreadyFinished}, http.StatusConflict, response.ErrExamFinished},
		{"broken invariant", &engine.InvariantViolation{Err: errors.New("index out of range")}, http.StatusInternalServerError, response.ErrSessionFault},
		{"lock held", engine.ErrFinalizeInProgress, http.StatusConflict, response.ErrFinalizeInProgress},
		{"time up", engine.ErrDeadlinePassed, http.StatusConflict, response.ErrTimeUp},
		{"closed", engine.ErrSessionClosed, http.StatusGone, response.ErrSessionClosed},
		{"bad option", engine.ErrInvalidOption, http.StatusBadRequest, response.ErrInvalidOption},
		{"storage", &engine.PersistenceError{Op: "get exam", Err: errors.New("conn refused")}, http.StatusServiceUnavailable, response.ErrStorageUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, response.ErrInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := classify(tt.err)
			if status != tt.status || code != tt.code {
				t.Errorf("classify(%v) = %d %s, want %d %s", tt.err, status, code, tt.status, tt.code)
			}
		})
	}
}

func TestNoticeMessage(t *testing.T) {
	slotErr := &engine.PersistenceError{Op: "slot " + string(engine.FieldUserAnswer), Err: errors.New("timeout")}
	if got := noticeMessage(slotErr); got != noticeSaveFailed {
		t.Errorf("slot write notice = %q", got)
	}
	finErr := &engine.PersistenceError{Op: "finalize exam", Err: errors.New("timeout")}
	if got := noticeMessage(finErr); got != noticeFinalizeFailed {
		t.Errorf("finalize notice = %q", got)
	}
	if got := noticeMessage(engine.ErrFinalizeInProgress); got != response.GetMessage(response.ErrFinalizeInProgress) {
		t.Errorf("lock notice = %q", got)
	}
}
