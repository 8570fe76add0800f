package handler

import (
	"errors"
	"net/http"

	"github.com/yuresilva1/inss-study-hub/internal/engine"
	"github.com/yuresilva1/inss-study-hub/internal/response"
	"github.com/yuresilva1/inss-study-hub/internal/service"
)

// classify maps a domain error to its HTTP status and API error code.
func classify(err error) (int, response.ErrCode) {
	var (
		notFound  *engine.NotFoundError
		violation *engine.InvariantViolation
		persist   *engine.PersistenceError
	)
	switch {
	case errors.As(err, &violation):
		if errors.Is(err, engine.ErrAlreadyFinished) {
			return http.StatusConflict, response.ErrExamFinished
		}
		return http.StatusInternalServerError, response.ErrSessionFault
	case errors.As(err, &notFound) && notFound.Resource == "question set":
		return http.StatusNotFound, response.ErrQuestionSetNotFound
	case errors.Is(err, engine.ErrNotFound):
		return http.StatusNotFound, response.ErrExamNotFound
	case errors.Is(err, service.ErrNotExamOwner):
		return http.StatusForbidden, response.ErrNotExamOwner
	case errors.Is(err, service.ErrNoQuestions):
		return http.StatusUnprocessableEntity, response.ErrNoQuestions
	case errors.Is(err, service.ErrExamNotFinished):
		return http.StatusConflict, response.ErrExamNotFinished
	case errors.Is(err, engine.ErrAlreadyFinished):
		return http.StatusConflict, response.ErrExamFinished
	case errors.Is(err, engine.ErrFinalizeInProgress):
		return http.StatusConflict, response.ErrFinalizeInProgress
	case errors.Is(err, engine.ErrDeadlinePassed):
		return http.StatusConflict, response.ErrTimeUp
	case errors.Is(err, engine.ErrSessionClosed):
		return http.StatusGone, response.ErrSessionClosed
	case errors.Is(err, engine.ErrInvalidOption):
		return http.StatusBadRequest, response.ErrInvalidOption
	case errors.As(err, &persist):
		return http.StatusServiceUnavailable, response.ErrStorageUnavailable
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}
