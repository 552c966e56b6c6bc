package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"quiz-session-engine/internal/app"
)

// HostHeader carries the authenticated user id set by the upstream gateway.
const HostHeader = "X-User-ID"

// GameHandler serves the host and player pull endpoints.
type GameHandler struct {
	service *app.GameService
	log     logrus.FieldLogger
}

func NewGameHandler(service *app.GameService, log logrus.FieldLogger) *GameHandler {
	return &GameHandler{service: service, log: log}
}

type createRequest struct {
	QuizID string `json:"quiz_id"`
}

type startRequest struct {
	GameCode      string `json:"game_code"`
	QuestionIndex *int   `json:"question_index"`
}

type gameRequest struct {
	GameCode string `json:"game_code"`
}

func (h *GameHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	if req.QuizID == "" {
		writeError(w, h.log, fmt.Errorf("%w: quiz_id is required", errBadRequest))
		return
	}
	created, err := h.service.CreateSession(r.Context(), r.Header.Get(HostHeader), req.QuizID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *GameHandler) Session(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.SessionInfo(r.Header.Get(HostHeader), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *GameHandler) StartQuestion(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	if req.GameCode == "" || req.QuestionIndex == nil {
		writeError(w, h.log, fmt.Errorf("%w: game_code and question_index are required", errBadRequest))
		return
	}
	view, err := h.service.StartQuestion(r.Header.Get(HostHeader), req.GameCode, *req.QuestionIndex)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *GameHandler) FinishQuestion(w http.ResponseWriter, r *http.Request) {
	var req gameRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	if req.GameCode == "" {
		writeError(w, h.log, fmt.Errorf("%w: game_code is required", errBadRequest))
		return
	}
	results, err := h.service.FinishQuestion(r.Header.Get(HostHeader), req.GameCode)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *GameHandler) FinishGame(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("game_code")
	if code == "" {
		var req gameRequest
		if err := decode(r, &req); err != nil {
			writeError(w, h.log, err)
			return
		}
		code = req.GameCode
	}
	if code == "" {
		writeError(w, h.log, fmt.Errorf("%w: game_code is required", errBadRequest))
		return
	}
	summary, err := h.service.FinishGame(r.Context(), r.Header.Get(HostHeader), code)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"game_code":   summary.GameCode,
		"status":      "finished",
		"leaderboard": summary.Leaderboard,
	})
}

func (h *GameHandler) Results(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Results(r.Context(), r.Header.Get(HostHeader), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *GameHandler) CurrentQuestion(w http.ResponseWriter, r *http.Request) {
	current, err := h.service.CurrentQuestion(chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, current)
}

func (h *GameHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, h.log, fmt.Errorf("%w: limit must be a non-negative integer", errBadRequest))
			return
		}
		limit = n
	}
	board, err := h.service.Leaderboard(chi.URLParam(r, "code"), limit)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"leaderboard": board})
}

func decode(r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}
