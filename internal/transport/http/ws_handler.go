package http

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"quiz-session-engine/internal/app"
	"quiz-session-engine/internal/domain"
	"quiz-session-engine/internal/hub"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	closeGrace     = time.Second
	maxMessageSize = 4096
	// Control frame payloads are limited to 125 bytes, two of which hold the code.
	maxCloseReason = 123
)

type WSHandler struct {
	service  *app.GameService
	log      logrus.FieldLogger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.GameService, log logrus.FieldLogger) *WSHandler {
	return &WSHandler{
		service: service,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type   string          `json:"type"`
	Answer json.RawMessage `json:"answer"`
}

// ServeWS upgrades a player connection and joins it to the session in the path.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	nickname, err := url.PathUnescape(chi.URLParam(r, "nickname"))
	if err != nil {
		nickname = chi.URLParam(r, "nickname")
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	client, err := h.service.Connect(code, nickname, uuid.NewString())
	if err != nil {
		h.refuse(conn, err)
		return
	}
	log := h.log.WithFields(logrus.Fields{"game_code": code, "nickname": client.Nickname})

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writePump(conn, client, log)
	}()

	h.readPump(conn, code, client, log)

	h.service.Disconnect(code, client.Nickname, client)
	<-writerDone
}

func (h *WSHandler) readPump(conn *websocket.Conn, code string, client *hub.Client, log logrus.FieldLogger) {
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithError(err).Debug("ws read ended")
			}
			return
		}
		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.service.Reply(code, client, domain.ErrorEvent{Type: domain.EventError, Message: "invalid json", Code: "bad_request"})
			continue
		}
		switch msg.Type {
		case "submit_answer":
			_, err := h.service.SubmitAnswer(code, client.Nickname, rawAnswer(msg.Answer))
			if err != nil {
				log.WithError(err).Debug("answer rejected")
			}
			h.service.Reply(code, client, domain.NewAnswerSubmitted(err))
		case "ping":
			h.service.Reply(code, client, domain.NewPong())
		default:
			h.service.Reply(code, client, domain.ErrorEvent{Type: domain.EventError, Message: "unsupported message type", Code: "bad_request"})
		}
	}
}

// writePump is the only writer of conn. It ends once the hub closes the
// client queue, sending the close status the hub chose.
func (h *WSHandler) writePump(conn *websocket.Conn, client *hub.Client, log logrus.FieldLogger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-client.Events():
			if !ok {
				status, reason := client.CloseStatus()
				_ = conn.WriteControl(websocket.CloseMessage, closeMessage(status, reason), time.Now().Add(writeWait))
				_ = conn.SetReadDeadline(time.Now().Add(closeGrace))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				log.WithError(err).Debug("ws write failed")
				_ = conn.Close()
				drain(client)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = conn.Close()
				drain(client)
				return
			}
		}
	}
}

func (h *WSHandler) refuse(conn *websocket.Conn, err error) {
	h.log.WithError(err).Info("player refused")
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteJSON(domain.NewError(err))
	_ = conn.WriteControl(websocket.CloseMessage, closeMessage(hub.ClosePolicyViolation, err.Error()), time.Now().Add(writeWait))
}

// drain waits for the hub to close the queue after the reader has seen the
// broken connection and unregistered the client.
func drain(client *hub.Client) {
	for range client.Events() {
	}
}

func closeMessage(status int, reason string) []byte {
	if status == 0 {
		status = websocket.CloseNormalClosure
	}
	if len(reason) > maxCloseReason {
		reason = reason[:maxCloseReason]
		for !utf8.ValidString(reason) {
			reason = reason[:len(reason)-1]
		}
	}
	return websocket.FormatCloseMessage(status, reason)
}

// rawAnswer turns the JSON answer into the engine's text encoding: strings
// are unquoted, arrays and numbers are passed through.
func rawAnswer(answer json.RawMessage) string {
	var s string
	if err := json.Unmarshal(answer, &s); err == nil {
		return s
	}
	return string(answer)
}
