package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"contest-service/internal/app"
	"contest-service/internal/domain"
	"contest-service/internal/infra/memory"
	"github.com/gorilla/websocket"
)

func TestWebSocketContestFlow(t *testing.T) {
	store := memory.NewStore()
	room := domain.Room{Title: "contest"}
	if err := store.CreateRoom(context.Background(), &room); err != nil {
		t.Fatalf("create room: %v", err)
	}
	server := newTestServer(t, store)
	defer server.Close()

	conn := dial(t, server, "?roomId=1&userId=7&name=Alice")
	defer conn.Close()

	// Expect the room event first.
	_, payload := readNext(conn, t, "room")
	if payload["title"] != "contest" {
		t.Fatalf("expected room title contest, got %v", payload["title"])
	}

	// Draw a question and locate the correct choice in the payload.
	if err := conn.WriteJSON(map[string]any{"type": "draw"}); err != nil {
		t.Fatalf("write draw: %v", err)
	}
	_, payload = readNext(conn, t, "question")
	question, _ := payload["question"].(string)
	parts := strings.Split(question, domain.PayloadDelimiter)
	if len(parts) != 6 {
		t.Fatalf("expected 6 payload fields, got %d (%q)", len(parts), question)
	}
	correctIndex := -1
	for i := 0; i < 4; i++ {
		if parts[i] == "4" {
			correctIndex = i
		}
	}
	if correctIndex == -1 {
		t.Fatalf("correct choice not found in %q", question)
	}
	recordID, err := strconv.ParseInt(parts[5], 10, 64)
	if err != nil {
		t.Fatalf("parse record id %q: %v", parts[5], err)
	}

	// A correct answer scores a point.
	answer := map[string]any{
		"type": "answer",
		"payload": map[string]any{
			"recordId":    recordID,
			"answerIndex": correctIndex,
		},
	}
	if err := conn.WriteJSON(answer); err != nil {
		t.Fatalf("write answer: %v", err)
	}
	_, payload = readNext(conn, t, "answerResult")
	if payload["correct"] != true {
		t.Fatalf("expected correct answer, got %v", payload["correct"])
	}
	if payload["score"] != float64(1) {
		t.Fatalf("expected score 1, got %v", payload["score"])
	}

	// The score is queryable and resettable.
	if err := conn.WriteJSON(map[string]any{"type": "resetScore"}); err != nil {
		t.Fatalf("write resetScore: %v", err)
	}
	_, payload = readNext(conn, t, "score")
	if payload["score"] != float64(0) {
		t.Fatalf("expected score 0 after reset, got %v", payload["score"])
	}
}

func TestWebSocketRejectsUnknownRoom(t *testing.T) {
	server := newTestServer(t, memory.NewStore())
	defer server.Close()

	conn := dial(t, server, "?roomId=999&userId=7&name=Alice")
	defer conn.Close()

	_, payload := readNext(conn, t, "error")
	if payload["code"] != "ROOM_INVALID" {
		t.Fatalf("expected ROOM_INVALID, got %v", payload["code"])
	}
}

func TestWebSocketRejectsAnonymousCaller(t *testing.T) {
	store := memory.NewStore()
	room := domain.Room{Title: "contest"}
	if err := store.CreateRoom(context.Background(), &room); err != nil {
		t.Fatalf("create room: %v", err)
	}
	server := newTestServer(t, store)
	defer server.Close()

	conn := dial(t, server, "?roomId=1&name=Alice")
	defer conn.Close()

	_, payload := readNext(conn, t, "error")
	if payload["code"] != "USER_HAS_TO_LOGIN" {
		t.Fatalf("expected USER_HAS_TO_LOGIN, got %v", payload["code"])
	}
}

func newTestServer(t *testing.T, store *memory.Store) *httptest.Server {
	t.Helper()
	catalog := memory.NewCatalogCache(memory.NewStaticCatalogLoader([]domain.Question{
		{ID: 1, Content: "What is 2 + 2?", Choice1: "3", Choice2: "5", Choice3: "22", Answer: "4"},
	}), time.Minute)
	service := app.NewContestService(store, catalog, memory.NewSlotStore(), app.Settings{})
	wsHandler := NewWSHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	return httptest.NewServer(mux)
}

func dial(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Type, msg.Payload
}
