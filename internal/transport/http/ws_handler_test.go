package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"quiz-session-engine/internal/app"
	"quiz-session-engine/internal/domain"
	"quiz-session-engine/internal/hub"
	"quiz-session-engine/internal/infra/memory"
	"quiz-session-engine/internal/logging"
	"quiz-session-engine/internal/metrics"
)

const host = "host-1"

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	log := logging.Discard()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(sampleQuiz()), time.Minute)
	service := app.NewGameService(app.Config{
		Sessions: memory.NewSessionStore(),
		Quizzes:  quizzes,
		Hub:      hub.New(64, log, m),
		Logger:   log,
		Metrics:  m,
	})
	server := httptest.NewServer(NewRouter(service, NewWSHandler(service, log), reg, log))
	t.Cleanup(server.Close)
	return server
}

func call(t *testing.T, server *httptest.Server, method, path, user string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, server.URL+path, reader)
	require.NoError(t, err)
	if user != "" {
		req.Header.Set(HostHeader, user)
	}
	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func createGame(t *testing.T, server *httptest.Server) string {
	t.Helper()
	status, body := call(t, server, http.MethodPost, "/api/game/create", host, map[string]string{"quiz_id": "quiz-1"})
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, "Arithmetic", body["quiz_title"])
	assert.EqualValues(t, 1, body["question_count"])
	return body["game_code"].(string)
}

func dial(t *testing.T, server *httptest.Server, code, nickname string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/game/ws/" + code + "/" + nickname
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg map[string]interface{}
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

// readUntil skips presence and progress events until typ arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) map[string]interface{} {
	t.Helper()
	for i := 0; i < 10; i++ {
		msg := readEvent(t, conn)
		if msg["type"] == typ {
			return msg
		}
	}
	t.Fatalf("no %s event", typ)
	return nil
}

func TestWebSocketGameFlow(t *testing.T) {
	server := newServer(t)
	code := createGame(t, server)

	conn := dial(t, server, code, "alice")
	connected := readEvent(t, conn)
	assert.Equal(t, "connected", connected["type"])
	assert.Equal(t, "alice", connected["nickname"])
	assert.Equal(t, false, connected["reconnected"])
	readUntil(t, conn, "player_joined")

	status, body := call(t, server, http.MethodPost, "/api/game/start-question", host, map[string]interface{}{
		"game_code": code, "question_index": 0,
	})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "question_active", body["status"])

	started := readUntil(t, conn, "question_started")
	assert.EqualValues(t, 0, started["question_index"])
	assert.NotContains(t, started, "correct_answer")

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "submit_answer", "answer": "1"}))
	ack := readUntil(t, conn, "answer_submitted")
	assert.Equal(t, true, ack["success"])
	assert.NotContains(t, ack, "correct")

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "submit_answer", "answer": "0"}))
	dup := readUntil(t, conn, "answer_submitted")
	assert.Equal(t, "duplicate_answer", dup["code"])

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	readUntil(t, conn, "pong")

	status, body = call(t, server, http.MethodPost, "/api/game/finish-question", host, map[string]string{"game_code": code})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "1", body["correct_answer"])

	finished := readUntil(t, conn, "question_finished")
	results := finished["results"].(map[string]interface{})
	alice := results["alice"].(map[string]interface{})
	assert.Equal(t, true, alice["correct"])
	assert.EqualValues(t, 13, alice["points"])

	status, body = call(t, server, http.MethodPost, "/api/game/finish-game?game_code="+code, host, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "finished", body["status"])

	gameOver := readUntil(t, conn, "game_finished")
	assert.Equal(t, "quiz-1", gameOver["quiz_id"])

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestWebSocketRefusesTakenNickname(t *testing.T) {
	server := newServer(t)
	code := createGame(t, server)

	first := dial(t, server, code, "alice")
	readEvent(t, first)

	second := dial(t, server, code, "ALICE")
	refusal := readEvent(t, second)
	assert.Equal(t, "error", refusal["type"])
	assert.Equal(t, "nickname_taken", refusal["code"])

	_ = second.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := second.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
}

func TestWebSocketReconnectAfterDrop(t *testing.T) {
	server := newServer(t)
	code := createGame(t, server)

	first := dial(t, server, code, "alice")
	readEvent(t, first)
	first.Close()

	require.Eventually(t, func() bool {
		_, body := call(t, server, http.MethodGet, "/api/game/session/"+code, host, nil)
		players, _ := body["players"].([]interface{})
		if len(players) != 1 {
			return false
		}
		return players[0].(map[string]interface{})["connected"] == false
	}, 5*time.Second, 20*time.Millisecond)

	again := dial(t, server, code, "alice")
	connected := readEvent(t, again)
	assert.Equal(t, "connected", connected["type"])
	assert.Equal(t, true, connected["reconnected"])
}

func TestWebSocketUnknownGame(t *testing.T) {
	server := newServer(t)

	conn := dial(t, server, "NOPE00", "alice")
	refusal := readEvent(t, conn)
	assert.Equal(t, "unknown_session", refusal["code"])
}

func TestCloseMessageKeepsReasonValidUTF8(t *testing.T) {
	msg := closeMessage(hub.ClosePolicyViolation, strings.Repeat("é", 100))

	require.LessOrEqual(t, len(msg), 125)
	assert.Equal(t, hub.ClosePolicyViolation, int(msg[0])<<8|int(msg[1]))
	reason := string(msg[2:])
	assert.True(t, utf8.ValidString(reason))
	assert.Equal(t, strings.Repeat("é", 61), reason)

	assert.Equal(t, "bye", string(closeMessage(0, "bye")[2:]))
}

func TestHostErrors(t *testing.T) {
	server := newServer(t)
	code := createGame(t, server)

	tests := []struct {
		name   string
		method string
		path   string
		user   string
		body   interface{}
		status int
		code   string
	}{
		{"missing host header", http.MethodGet, "/api/game/session/" + code, "", nil, http.StatusForbidden, "not_host"},
		{"other host", http.MethodGet, "/api/game/session/" + code, "intruder", nil, http.StatusForbidden, "not_host"},
		{"unknown game", http.MethodGet, "/api/game/session/NOPE00", host, nil, http.StatusNotFound, "unknown_session"},
		{"unknown quiz", http.MethodPost, "/api/game/create", host, map[string]string{"quiz_id": "missing"}, http.StatusNotFound, "quiz_not_found"},
		{"missing quiz id", http.MethodPost, "/api/game/create", host, map[string]string{}, http.StatusBadRequest, "bad_request"},
		{"skipping a question", http.MethodPost, "/api/game/start-question", host, map[string]interface{}{"game_code": code, "question_index": 1}, http.StatusConflict, "invalid_transition"},
		{"missing index", http.MethodPost, "/api/game/start-question", host, map[string]interface{}{"game_code": code}, http.StatusBadRequest, "bad_request"},
		{"bad limit", http.MethodGet, "/api/game/leaderboard/" + code + "?limit=x", "", nil, http.StatusBadRequest, "bad_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := call(t, server, tt.method, tt.path, tt.user, tt.body)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, body["code"])
			assert.NotEmpty(t, body["detail"])
		})
	}
}

func TestPlayerPullEndpoints(t *testing.T) {
	server := newServer(t)
	code := createGame(t, server)

	status, body := call(t, server, http.MethodGet, "/api/game/current-question/"+strings.ToLower(code), "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "waiting", body["status"])
	assert.Nil(t, body["question"])

	_, _ = call(t, server, http.MethodPost, "/api/game/start-question", host, map[string]interface{}{"game_code": code, "question_index": 0})

	status, body = call(t, server, http.MethodGet, "/api/game/current-question/"+code, "", nil)
	require.Equal(t, http.StatusOK, status)
	question := body["question"].(map[string]interface{})
	assert.Equal(t, "What is 2 + 2?", question["question_text"])
	assert.NotContains(t, question, "correct_answer")
	assert.Greater(t, body["time_remaining"].(float64), 0.0)

	status, body = call(t, server, http.MethodGet, "/api/game/leaderboard/"+code+"?limit=5", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "leaderboard")
}

func TestOpsEndpoints(t *testing.T) {
	server := newServer(t)
	createGame(t, server)

	resp, err := server.Client().Get(server.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = server.Client().Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "quiz_sessions_active 1")
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusGone, StatusFor(domain.ErrSessionFinished))
	assert.Equal(t, http.StatusUnprocessableEntity, StatusFor(domain.ErrInvalidAnswer))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(io.EOF))
}

func sampleQuiz() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Arithmetic",
			Questions: []domain.Question{
				{
					ID:            "q1",
					Type:          domain.SingleChoice,
					Text:          "What is 2 + 2?",
					Options:       []string{"3", "4", "5"},
					CorrectAnswer: "1",
					TimeLimit:     30,
					Points:        10,
					SpeedBonus:    true,
				},
			},
		},
	}
}
