package httpserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/lunahub/hub/internal/apierr"
)

// Respond writes v as a JSON response with the given status code.
func Respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorBody is the "error" object inside the structured error envelope.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

// envelope is the full structured error envelope.
type envelope struct {
	Error     errorBody      `json:"error"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp string         `json:"timestamp"`
}

// RespondError writes the structured error envelope for err. If err is
// not an *apierr.Error it is treated as an unclassified internal error and
// its details are not leaked to the caller.
func RespondError(w http.ResponseWriter, err error) {
	apiErr, ok := apierr.As(err)
	if !ok {
		apiErr = apierr.New(apierr.CodeInternal, "internal error")
	}

	Respond(w, apiErr.HTTPStatus(), envelope{
		Error: errorBody{
			Code:    string(apiErr.Code),
			Message: apiErr.Message,
			Type:    apiErr.Type(),
		},
		Details:   apiErr.Details,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// RespondErrorCode is a convenience for handlers that want to construct the
// error inline rather than through the apierr package.
func RespondErrorCode(w http.ResponseWriter, code apierr.Code, message string, details map[string]any) {
	RespondError(w, apierr.New(code, message).WithDetails(details))
}
