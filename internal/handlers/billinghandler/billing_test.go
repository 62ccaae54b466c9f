package billinghandler

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
	return NewHandler(nil, nil, nil, "phoenix_session", testLogger())
}

func TestHandleCreateIntent_Validation(t *testing.T) {
	h := newTestHandler()
	router := chi.NewRouter()
	router.Mount("/billing", h.Routes())

	r := httptest.NewRequest(http.MethodPost, "/billing/create-intent", strings.NewReader(`{}`))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, r)

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d (body %s)", w.Code, http.StatusUnprocessableEntity, w.Body.String())
	}
}

func TestHandleCreateIntent_MissingToken(t *testing.T) {
	h := newTestHandler()
	router := chi.NewRouter()
	router.Mount("/billing", h.Routes())

	r := httptest.NewRequest(http.MethodPost, "/billing/create-intent", strings.NewReader(`{"pack_code":"small","app_source":"cv"}`))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d (body %s)", w.Code, http.StatusUnauthorized, w.Body.String())
	}
}

func TestHandleHistory_MissingToken(t *testing.T) {
	h := newTestHandler()
	router := chi.NewRouter()
	router.Mount("/billing", h.Routes())

	r := httptest.NewRequest(http.MethodGet, "/billing/history/00000000-0000-0000-0000-000000000001", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d (body %s)", w.Code, http.StatusUnauthorized, w.Body.String())
	}
}
