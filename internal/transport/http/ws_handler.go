package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"exam-attempt-service/internal/app"
	"exam-attempt-service/internal/domain"
)

// WSHandler is the autosave channel for an in-progress attempt: clients
// stream answer selections over one socket instead of issuing an HTTP call
// per keystroke, and receive authoritative remaining-time ticks back.
type WSHandler struct {
	service       *app.AttemptService
	upgrader      websocket.Upgrader
	clockInterval time.Duration
}

func NewWSHandler(service *app.AttemptService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clockInterval: 15 * time.Second,
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID    string `json:"questionId"`
	SelectedIndex *int   `json:"selectedIndex"`
}

type savedPayload struct {
	AttemptID  string `json:"attemptId"`
	QuestionID string `json:"questionId"`
}

type clockPayload struct {
	RemainingSec int `json:"remainingSec"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and pumps answer saves for one attempt.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	attemptID := r.URL.Query().Get("attemptId")
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		userID = r.URL.Query().Get("userId")
	}
	if attemptID == "" || userID == "" {
		http.Error(w, "missing attemptId or userId", http.StatusBadRequest)
		return
	}

	view, err := h.service.Get(r.Context(), userID, attemptID, false)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, domain.ErrForbidden) {
			status = http.StatusForbidden
		} else if errors.Is(err, domain.ErrAttemptNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	if view.Status != domain.StatusInProgress {
		http.Error(w, "attempt already submitted", http.StatusConflict)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	tickerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(tickerDone)
		if view.RemainingSec == nil {
			return // untimed paper, nothing to tick
		}
		ticker := time.NewTicker(h.clockInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				current, err := h.service.Get(r.Context(), userID, attemptID, false)
				if err != nil || current.RemainingSec == nil {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "clock", Payload: clockPayload{RemainingSec: *current.RemainingSec}}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "attempt", Payload: view}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}}
				continue
			}
			ack, err := h.service.Answer(r.Context(), userID, attemptID, payload.QuestionID, payload.SelectedIndex)
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			send <- outboundMessage[any]{Type: "saved", Payload: savedPayload{
				AttemptID:  ack.AttemptID,
				QuestionID: payload.QuestionID,
			}}
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	close(closeSignals)
	<-tickerDone
	close(send)
	<-writerDone
}
