package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/felixgeelhaar/tracklane/internal/notifications/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// DefaultUserHeader carries the user ID set by the upstream gateway after it
// has validated the session.
const DefaultUserHeader = "X-User-ID"

// ErrUnauthenticated is returned by authenticators for anonymous requests.
var ErrUnauthenticated = errors.New("unauthenticated")

// Authenticator resolves the user behind a connect request.
type Authenticator interface {
	Authenticate(r *http.Request) (uuid.UUID, error)
}

// HeaderAuthenticator trusts a user ID header written by the gateway.
type HeaderAuthenticator struct {
	Header string
}

func (a HeaderAuthenticator) Authenticate(r *http.Request) (uuid.UUID, error) {
	header := a.Header
	if header == "" {
		header = DefaultUserHeader
	}
	raw := strings.TrimSpace(r.Header.Get(header))
	if raw == "" {
		return uuid.Nil, ErrUnauthenticated
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, ErrUnauthenticated
	}
	return id, nil
}

// BacklogSource returns the unread notifications to replay on connect,
// oldest first.
type BacklogSource interface {
	Unread(ctx context.Context, userID uuid.UUID) ([]domain.Payload, error)
}

// RepositoryBacklog reads the backlog from the durable inbox.
type RepositoryBacklog struct {
	Repo  domain.Repository
	Limit int
}

func (b RepositoryBacklog) Unread(ctx context.Context, userID uuid.UUID) ([]domain.Payload, error) {
	notifications, err := b.Repo.FindByRecipient(ctx, userID, domain.ListFilter{UnreadOnly: true, Limit: b.Limit})
	if err != nil {
		return nil, err
	}
	payloads := make([]domain.Payload, len(notifications))
	for i, n := range notifications {
		payloads[len(notifications)-1-i] = n.Payload()
	}
	return payloads, nil
}

// HandlerConfig configures the connect endpoint.
type HandlerConfig struct {
	// ConnectRate and ConnectBurst bound upgrades per second across the node.
	// Zero disables limiting.
	ConnectRate  float64
	ConnectBurst int

	CheckOrigin func(r *http.Request) bool
}

// Handler upgrades authenticated requests and hands them to the hub.
type Handler struct {
	hub      *Hub
	auth     Authenticator
	backlog  BacklogSource
	limiter  *rate.Limiter
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler creates the connect endpoint. backlog may be nil.
func NewHandler(hub *Hub, auth Authenticator, backlog BacklogSource, cfg HandlerConfig, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if auth == nil {
		auth = HeaderAuthenticator{}
	}
	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}

	h := &Handler{
		hub:     hub,
		auth:    auth,
		backlog: backlog,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		logger: logger,
	}
	if cfg.ConnectRate > 0 {
		burst := cfg.ConnectBurst
		if burst <= 0 {
			burst = int(cfg.ConnectRate)
		}
		if burst < 1 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(cfg.ConnectRate), burst)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.limiter != nil && !h.limiter.Allow() {
		w.Header().Set("Retry-After", "1")
		http.Error(w, "too many connection attempts", http.StatusTooManyRequests)
		return
	}

	userID, err := h.auth.Authenticate(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "user_id", userID, "error", err)
		return
	}

	h.hub.Serve(r.Context(), userID, ws, h.backlog)
}
