package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"contest-service/internal/app"
	"contest-service/internal/domain"
	"github.com/gorilla/websocket"
)

type WSHandler struct {
	service  *app.ContestService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.ContestService) *WSHandler {
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
	RecordID    int64 `json:"recordId"`
	AnswerIndex int   `json:"answerIndex"`
}

type answerResult struct {
	RecordID int64 `json:"recordId"`
	Correct  bool  `json:"correct"`
	Score    int   `json:"score"`
}

type questionPayload struct {
	Question string `json:"question"`
}

type flagPayload struct {
	Value bool `json:"value"`
}

type verdictPayload struct {
	Verdict string `json:"verdict"`
}

type scorePayload struct {
	Score int `json:"score"`
}

type matchPayload struct {
	Matched bool   `json:"matched"`
	RoomID  int64  `json:"roomId,omitempty"`
	Title   string `json:"title,omitempty"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into the
// contest use cases. Identity arrives pre-resolved in query parameters; a
// missing userId plays the unauthenticated caller.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	roomID, err := strconv.ParseInt(r.URL.Query().Get("roomId"), 10, 64)
	if err != nil {
		http.Error(w, "missing or invalid roomId", http.StatusBadRequest)
		return
	}
	userID, _ := strconv.ParseInt(r.URL.Query().Get("userId"), 10, 64)
	user := domain.User{ID: userID, Username: r.URL.Query().Get("name")}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()

	room, err := h.service.GetRoom(ctx, roomID, user)
	if err != nil {
		_ = conn.WriteJSON(clientErrorMessage(err))
		return
	}
	_ = conn.WriteJSON(outboundMessage[domain.Room]{Type: "room", Payload: room})

	// All replies are request-driven, so the read loop is the only writer.
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}

		switch inbound.Type {
		case "draw":
			payload, err := h.service.DrawQuestion(ctx, room)
			if err != nil {
				_ = conn.WriteJSON(clientErrorMessage(err))
				continue
			}
			if payload == domain.ContestEnded {
				_ = conn.WriteJSON(outboundMessage[struct{}]{Type: "contestEnd"})
				continue
			}
			_ = conn.WriteJSON(outboundMessage[questionPayload]{Type: "question", Payload: questionPayload{Question: payload}})

		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				_ = conn.WriteJSON(invalidPayloadMessage())
				continue
			}
			correct, err := h.service.CheckAnswer(ctx, payload.RecordID, payload.AnswerIndex)
			if err != nil {
				_ = conn.WriteJSON(clientErrorMessage(err))
				continue
			}
			if err := h.service.RecordAnswer(ctx, user, payload.RecordID, correct); err != nil {
				_ = conn.WriteJSON(clientErrorMessage(err))
				continue
			}
			if correct {
				if err := h.service.AddScore(ctx, user, 1); err != nil {
					_ = conn.WriteJSON(clientErrorMessage(err))
					continue
				}
			}
			score, err := h.service.Score(ctx, user)
			if err != nil {
				_ = conn.WriteJSON(clientErrorMessage(err))
				continue
			}
			_ = conn.WriteJSON(outboundMessage[answerResult]{Type: "answerResult", Payload: answerResult{
				RecordID: payload.RecordID,
				Correct:  correct,
				Score:    score,
			}})

		case "turn":
			elapsed, err := h.service.TurnElapsed(ctx, user, room)
			if err != nil {
				_ = conn.WriteJSON(clientErrorMessage(err))
				continue
			}
			_ = conn.WriteJSON(outboundMessage[flagPayload]{Type: "turn", Payload: flagPayload{Value: elapsed}})

		case "confirmStart":
			ready, err := h.service.ConfirmStart(ctx, user, room)
			if err != nil {
				_ = conn.WriteJSON(clientErrorMessage(err))
				continue
			}
			_ = conn.WriteJSON(outboundMessage[flagPayload]{Type: "start", Payload: flagPayload{Value: ready}})

		case "outcome":
			verdict, err := h.service.JudgeOutcome(ctx, user, room)
			if err != nil {
				_ = conn.WriteJSON(clientErrorMessage(err))
				continue
			}
			_ = conn.WriteJSON(outboundMessage[verdictPayload]{Type: "outcome", Payload: verdictPayload{Verdict: verdict}})

		case "score":
			score, err := h.service.Score(ctx, user)
			if err != nil {
				_ = conn.WriteJSON(clientErrorMessage(err))
				continue
			}
			_ = conn.WriteJSON(outboundMessage[scorePayload]{Type: "score", Payload: scorePayload{Score: score}})

		case "resetScore":
			if err := h.service.ResetScore(ctx, user); err != nil {
				_ = conn.WriteJSON(clientErrorMessage(err))
				continue
			}
			_ = conn.WriteJSON(outboundMessage[scorePayload]{Type: "score", Payload: scorePayload{Score: 0}})

		case "match":
			opponent, matched, err := h.service.FindMatch(ctx, user)
			if err != nil {
				_ = conn.WriteJSON(clientErrorMessage(err))
				continue
			}
			if !matched {
				_ = conn.WriteJSON(outboundMessage[matchPayload]{Type: "match", Payload: matchPayload{Matched: false}})
				continue
			}
			newRoom, err := h.service.CreateRoom(ctx, user, domain.User{ID: opponent.UserID, Username: opponent.Username})
			if err != nil {
				_ = conn.WriteJSON(clientErrorMessage(err))
				continue
			}
			_ = conn.WriteJSON(outboundMessage[matchPayload]{Type: "match", Payload: matchPayload{
				Matched: true,
				RoomID:  newRoom.ID,
				Title:   newRoom.Title,
			}})

		case "history":
			records, err := h.service.History(ctx, user)
			if err != nil {
				_ = conn.WriteJSON(clientErrorMessage(err))
				continue
			}
			_ = conn.WriteJSON(outboundMessage[[]domain.LearnRecord]{Type: "history", Payload: records})

		default:
			_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{
				Code:    "UNSUPPORTED",
				Message: "unsupported message type",
			}})
		}
	}
}

// clientErrorMessage translates an error into a reply for the caller's
// connection; client errors keep their short reason code.
func clientErrorMessage(err error) outboundMessage[errorPayload] {
	var clientErr *domain.ClientError
	if errors.As(err, &clientErr) {
		return outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{
			Code:    clientErr.Code,
			Message: clientErr.Message,
		}}
	}
	return outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{
		Code:    "INTERNAL",
		Message: err.Error(),
	}}
}

func invalidPayloadMessage() outboundMessage[errorPayload] {
	return outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{
		Code:    "BAD_PAYLOAD",
		Message: "invalid message payload",
	}}
}
