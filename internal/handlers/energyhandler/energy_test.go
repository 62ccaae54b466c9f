package energyhandler

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
	return NewHandler(nil, nil, nil, nil, "phoenix_session", testLogger())
}

func TestHandleCanPerform_Validation(t *testing.T) {
	h := newTestHandler()
	router := chi.NewRouter()
	router.Mount("/luna/energy", h.Routes())

	r := httptest.NewRequest(http.MethodPost, "/luna/energy/can-perform", strings.NewReader(`{}`))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, r)

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d (body %s)", w.Code, http.StatusUnprocessableEntity, w.Body.String())
	}
}

func TestHandleCanPerform_MissingToken(t *testing.T) {
	h := newTestHandler()
	router := chi.NewRouter()
	router.Mount("/luna/energy", h.Routes())

	r := httptest.NewRequest(http.MethodPost, "/luna/energy/can-perform", strings.NewReader(`{"action_name":"cv_analysis"}`))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d (body %s)", w.Code, http.StatusUnauthorized, w.Body.String())
	}
}

func TestHandleConsume_MissingToken(t *testing.T) {
	h := newTestHandler()
	router := chi.NewRouter()
	router.Mount("/luna/energy", h.Routes())

	r := httptest.NewRequest(http.MethodPost, "/luna/energy/consume", strings.NewReader(`{"action_name":"cv_analysis","app_source":"cv"}`))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d (body %s)", w.Code, http.StatusUnauthorized, w.Body.String())
	}
}

func TestHandleRefund_InvalidEventID(t *testing.T) {
	h := newTestHandler()
	router := chi.NewRouter()
	router.Mount("/luna/energy", h.Routes())

	// Validation runs before authentication, and original_event_id must be a
	// uuid, so a malformed id is rejected at 422 without ever checking auth.
	r := httptest.NewRequest(http.MethodPost, "/luna/energy/refund", strings.NewReader(`{"original_event_id":"not-a-uuid","app_source":"cv"}`))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, r)

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d (body %s)", w.Code, http.StatusUnprocessableEntity, w.Body.String())
	}
}

func TestHandleRefundEligibility_MissingToken(t *testing.T) {
	h := newTestHandler()
	router := chi.NewRouter()
	router.Mount("/luna/energy", h.Routes())

	r := httptest.NewRequest(http.MethodGet, "/luna/energy/refund-eligibility/00000000-0000-0000-0000-000000000001/00000000-0000-0000-0000-000000000002", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d (body %s)", w.Code, http.StatusUnauthorized, w.Body.String())
	}
}
