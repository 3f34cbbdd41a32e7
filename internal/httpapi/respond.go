package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/safar/franchise-orders/internal/auth"
	"github.com/safar/franchise-orders/internal/cache"
	"github.com/safar/franchise-orders/internal/database"
	"github.com/safar/franchise-orders/internal/validate"
)

const maxBodyBytes = 1 << 20

type envelope struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   any    `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func respond(w http.ResponseWriter, code int, message string, data any) {
	writeJSON(w, code, envelope{Message: message, Data: data})
}

// errorContext tunes how a handler's errors are rendered.
type errorContext struct {
	// productNotFound is the status for a missing product; placement
	// reports it as an input problem rather than a missing resource.
	productNotFound int
	// failure is the message for a 500.
	failure string
}

var defaultErrors = errorContext{productNotFound: http.StatusNotFound, failure: "Internal server error"}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, ec errorContext) {
	var (
		verr     *validate.Error
		stockErr *database.StockError
	)

	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, envelope{Message: verr.First(), Error: verr.Fields})
	case errors.As(err, &stockErr):
		msg := fmt.Sprintf("Insufficient stock for product '%s'. Available stock: %d",
			stockErr.ProductName, stockErr.Available)
		writeJSON(w, http.StatusUnprocessableEntity, envelope{
			Message: msg,
			Error:   map[string][]string{"items": {msg}},
		})
	case errors.Is(err, database.ErrProductNotFound):
		writeJSON(w, ec.productNotFound, envelope{Message: "Product not found"})
	case errors.Is(err, database.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, envelope{Message: "Order not found"})
	case errors.Is(err, auth.ErrUnauthenticated), errors.Is(err, database.ErrUserNotFound):
		writeJSON(w, http.StatusUnauthorized, envelope{Message: "Unauthenticated."})
	case errors.Is(err, auth.ErrForbidden):
		writeJSON(w, http.StatusForbidden, envelope{Message: "Forbidden."})
	case errors.Is(err, cache.ErrInFlight):
		writeJSON(w, http.StatusConflict, envelope{Message: "A request with this Idempotency-Key is still in progress"})
	default:
		s.logger.Error("request failed",
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))

		body := envelope{Message: ec.failure}
		if s.debug {
			body.Error = err.Error()
		}
		writeJSON(w, http.StatusInternalServerError, body)
	}
}

// decode reads a JSON body strictly. Malformed bodies, unknown fields and
// type mismatches are reported as validation failures.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return validate.Field(typeErr.Field, fmt.Sprintf("The %s field has an invalid type.", typeErr.Field))
		}
		return validate.Field("body", "The request body is not valid JSON: "+err.Error())
	}
	if dec.More() {
		return validate.Field("body", "The request body must contain a single JSON object.")
	}
	return nil
}
