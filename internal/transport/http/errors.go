package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"
	"quiz-session-engine/internal/domain"
)

type errorBody struct {
	Detail string `json:"detail"`
	Code   string `json:"code"`
}

var errBadRequest = errors.New("bad request")

// StatusFor maps an engine error to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnknownSession),
		errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrUnknownPlayer):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotHost):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrNicknameTaken),
		errors.Is(err, domain.ErrDuplicateAnswer),
		errors.Is(err, domain.ErrNoActiveQuestion):
		return http.StatusConflict
	case errors.Is(err, domain.ErrSessionFinished),
		errors.Is(err, domain.ErrQuestionExpired):
		return http.StatusGone
	case errors.Is(err, domain.ErrInvalidAnswer),
		errors.Is(err, domain.ErrInvalidNickname),
		errors.Is(err, domain.ErrInvalidQuiz):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, log logrus.FieldLogger, err error) {
	status := StatusFor(err)
	body := errorBody{Detail: err.Error(), Code: domain.Code(err)}
	if errors.Is(err, errBadRequest) {
		body.Code = "bad_request"
	}
	if status == http.StatusInternalServerError {
		log.WithError(err).Error("request failed")
		body.Detail = "internal error"
	}
	writeJSON(w, status, body)
}
