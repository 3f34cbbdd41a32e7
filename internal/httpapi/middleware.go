package httpapi

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/safar/franchise-orders/internal/auth"
	"github.com/safar/franchise-orders/internal/events"
	"github.com/safar/franchise-orders/internal/models"
)

// requestLogger logs one line per request and records its latency under
// the matched route pattern.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		reqID := middleware.GetReqID(r.Context())
		r = r.WithContext(events.WithRequestID(r.Context(), reqID))

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)

		s.metrics.ObserveHTTP(r.Method, route, strconv.Itoa(status), elapsed)
		s.logger.Info("http request",
			slog.String("request_id", reqID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("duration", elapsed))
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			s.writeError(w, r, auth.ErrUnauthenticated, defaultErrors)
			return
		}

		id, err := s.tokens.Verify(strings.TrimSpace(raw))
		if err != nil {
			s.logger.Debug("token rejected", slog.String("error", err.Error()))
			s.writeError(w, r, auth.ErrUnauthenticated, defaultErrors)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	})
}

func requireRole(role models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.FromContext(r.Context())
			if !ok {
				writeJSON(w, http.StatusUnauthorized, envelope{Message: "Unauthenticated."})
				return
			}
			if id.Role != role {
				writeJSON(w, http.StatusForbidden, envelope{Message: "Forbidden."})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
