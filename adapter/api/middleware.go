package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	notificationWS "github.com/felixgeelhaar/tracklane/internal/notifications/infrastructure/websocket"
	"github.com/felixgeelhaar/tracklane/pkg/observability"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const correlationHeader = "X-Correlation-ID"

type userIDKey struct{}

// requestContext stamps request and correlation IDs and logs each request.
func requestContext(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := observability.NewRequestContext(r.Context(), r.Header.Get(correlationHeader))
			w.Header().Set(correlationHeader, observability.CorrelationIDFromContext(ctx))

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r.WithContext(ctx))

			logger.DebugContext(ctx, "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

// authenticate rejects requests without a valid user and stores the user in
// the request context.
func authenticate(auth notificationWS.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := auth.Authenticate(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "missing or invalid user")
				return
			}
			ctx := context.WithValue(r.Context(), userIDKey{}, userID)
			ctx = observability.WithUserID(ctx, userID.String())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func userIDFrom(r *http.Request) uuid.UUID {
	id, _ := r.Context().Value(userIDKey{}).(uuid.UUID)
	return id
}
