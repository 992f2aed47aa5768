package http

import (
	"encoding/json"
	"log"
	"net/http"

	"caselab-service/internal/app"
	"github.com/gorilla/websocket"
)

type WSHandler struct {
	service  *app.SessionService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.SessionService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID string `json:"questionId"`
	Response   string `json:"response"`
}

type answerResult struct {
	QuestionID      string `json:"questionId"`
	Correct         bool   `json:"correct"`
	Awarded         int    `json:"awarded"`
	Feedback        string `json:"feedback"`
	ProgressPercent int    `json:"progressPercent"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into the live
// session: the student joins the roster, receives pushed session events, and
// submits answers and heartbeats over the same connection.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	studentID := r.URL.Query().Get("studentId")
	name := r.URL.Query().Get("name")
	if code == "" || studentID == "" || name == "" {
		http.Error(w, "missing code, studentId, or name", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	session, _, err := h.service.Join(r.Context(), code, studentID, name)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}

	updates, cancel, err := h.service.Subscribe(r.Context(), session.ID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer cancel()
	defer h.service.Leave(session.ID, studentID)

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// Single writer goroutine; gorilla connections do not allow concurrent writes.
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
		defer close(updatesDone)
		for {
			select {
			case event, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: string(event.Type), Payload: event.Payload}:
				case <-writerDone:
					return
				case <-closeSignals:
					return
				}
			case <-writerDone:
				return
			case <-closeSignals:
				return
			}
		}
	}()

	// Sends give up once the writer has exited; a write failure must not
	// wedge the read loop behind a full send buffer.
	trySend := func(msg outboundMessage[any]) bool {
		select {
		case send <- msg:
			return true
		case <-writerDone:
			return false
		}
	}

	if trySend(outboundMessage[any]{Type: "joined", Payload: session}) {
	readLoop:
		for {
			var inbound inboundMessage
			if err := conn.ReadJSON(&inbound); err != nil {
				break
			}
			switch inbound.Type {
			case "answer":
				var payload answerPayload
				if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
					if !trySend(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}}) {
						break readLoop
					}
					continue
				}
				result, err := h.service.SubmitResponse(r.Context(), app.SubmitRequest{
					SessionID:  session.ID,
					StudentID:  studentID,
					QuestionID: payload.QuestionID,
					Answer:     payload.Response,
				})
				if err != nil {
					if !trySend(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}) {
						break readLoop
					}
					continue
				}
				if !trySend(outboundMessage[any]{Type: "answerResult", Payload: answerResult{
					QuestionID:      payload.QuestionID,
					Correct:         result.Correct,
					Awarded:         result.Awarded,
					Feedback:        result.Feedback,
					ProgressPercent: result.Progress.ProgressPercent,
				}}) {
					break readLoop
				}
			case "heartbeat":
				h.service.Heartbeat(session.ID, studentID)
			default:
				if !trySend(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}) {
					break readLoop
				}
			}
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}
