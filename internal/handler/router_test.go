package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	personaModel "github.com/zhouzirui/pymind/backend/internal/model/persona"
	chatService "github.com/zhouzirui/pymind/backend/internal/service/chat"
	"github.com/zhouzirui/pymind/backend/internal/store"
)

func TestRouterMountsAPI(t *testing.T) {
	personas := personaModel.NewMemoryStore(personaModel.Seed())
	chatSvc := chatService.NewService(store.NewMemoryStore(), nil, chatService.Options{})
	r := NewRouter(personas, chatSvc)

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/api/persona", http.StatusOK},
		{http.MethodPost, "/api/session", http.StatusCreated},
		{http.MethodGet, "/api/session/missing/history", http.StatusNotFound},
		{http.MethodOptions, "/api/session", http.StatusNoContent},
	}

	for _, tt := range tests {
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, httptest.NewRequest(tt.method, tt.path, nil))
		if resp.Code != tt.want {
			t.Fatalf("%s %s: expected %d, got %d", tt.method, tt.path, tt.want, resp.Code)
		}
	}
}
