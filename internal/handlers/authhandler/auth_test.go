package authhandler

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHandler() *Handler {
	return NewHandler(nil, nil, nil, "phoenix_session", true, testLogger())
}

func TestHandleRegister_Validation(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{name: "missing email", body: `{"password":"hunter2hunter2"}`, wantStatus: http.StatusUnprocessableEntity},
		{name: "missing password", body: `{"email":"a@example.com"}`, wantStatus: http.StatusUnprocessableEntity},
		{name: "invalid email", body: `{"email":"not-an-email","password":"hunter2hunter2"}`, wantStatus: http.StatusUnprocessableEntity},
		{name: "invalid JSON", body: `{bad}`, wantStatus: http.StatusBadRequest},
	}

	h := newTestHandler()
	router := chi.NewRouter()
	router.Mount("/auth", h.Routes())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(tt.body))
			r.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, r)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestHandleMe_MissingToken(t *testing.T) {
	h := newTestHandler()
	router := chi.NewRouter()
	router.Mount("/auth", h.Routes())

	r := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestHandleLogoutSecure_ClearsCookie(t *testing.T) {
	h := newTestHandler()
	router := chi.NewRouter()
	router.Mount("/auth", h.Routes())

	r := httptest.NewRequest(http.MethodPost, "/auth/logout-secure", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	resp := w.Result()
	cookies := resp.Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Errorf("expected a single expiring cookie, got %+v", cookies)
	}
}

func TestHandleDelegateSpecialist_MissingToken(t *testing.T) {
	h := newTestHandler()
	router := chi.NewRouter()
	router.Mount("/auth", h.Routes())

	r := httptest.NewRequest(http.MethodPost, "/auth/luna/delegate-specialist", strings.NewReader(`{"specialist_name":"cv","permissions":["cv_analysis"],"ttl_seconds":300}`))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d (body %s)", w.Code, http.StatusUnauthorized, w.Body.String())
	}
}
