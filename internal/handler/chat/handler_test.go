package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-tutor/backend/internal/model/chat"
	"github.com/zhouzirui/z-tutor/backend/internal/service/orchestrator"
)

type fakeConversations struct {
	turns   map[string][]chat.Turn
	cleared []string
	fail    error
}

func (f *fakeConversations) History(_ context.Context, id string) ([]chat.Turn, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	turns, ok := f.turns[id]
	if !ok {
		return nil, orchestrator.ErrSessionNotFound
	}
	return turns, nil
}

func (f *fakeConversations) ClearConversation(_ context.Context, id string) error {
	if _, ok := f.turns[id]; !ok {
		return orchestrator.ErrSessionNotFound
	}
	f.cleared = append(f.cleared, id)
	return nil
}

func setupRouter(f *fakeConversations) *chi.Mux {
	r := chi.NewRouter()
	New(f).RegisterRoutes(r)
	return r
}

func TestHistory(t *testing.T) {
	f := &fakeConversations{turns: map[string][]chat.Turn{
		"u1:sofia": {{ID: "t1", Input: "hola", Output: "¡Hola!", State: chat.TurnCompleted}},
	}}
	resp := httptest.NewRecorder()
	setupRouter(f).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/sessions/u1/sofia/history", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var body struct {
		SessionID string      `json:"sessionId"`
		Turns     []chat.Turn `json:"turns"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.SessionID != "u1:sofia" || len(body.Turns) != 1 || body.Turns[0].Output != "¡Hola!" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestHistoryNotFound(t *testing.T) {
	resp := httptest.NewRecorder()
	setupRouter(&fakeConversations{}).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/sessions/u9/mei/history", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestHistoryStoreFailure(t *testing.T) {
	resp := httptest.NewRecorder()
	f := &fakeConversations{fail: errors.New("redis down")}
	setupRouter(f).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/sessions/u1/sofia/history", nil))
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
}

func TestClearHistory(t *testing.T) {
	f := &fakeConversations{turns: map[string][]chat.Turn{"u1:kenji": nil}}
	resp := httptest.NewRecorder()
	setupRouter(f).ServeHTTP(resp, httptest.NewRequest(http.MethodDelete, "/sessions/u1/kenji/history", nil))

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
	if len(f.cleared) != 1 || f.cleared[0] != "u1:kenji" {
		t.Fatalf("expected session cleared, got %v", f.cleared)
	}
}
