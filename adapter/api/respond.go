package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	notificationDomain "github.com/felixgeelhaar/tracklane/internal/notifications/domain"
	recurrenceDomain "github.com/felixgeelhaar/tracklane/internal/recurrence/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", "error", err)
		}
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error":   http.StatusText(status),
		"message": message,
	})
}

// errorStatus maps domain errors onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, recurrenceDomain.ErrInvalidRule),
		errors.Is(err, notificationDomain.ErrEmptyMessage),
		errors.Is(err, notificationDomain.ErrMissingRecipient),
		errors.Is(err, notificationDomain.ErrUnknownType),
		errors.Is(err, notificationDomain.ErrUnknownResourceType):
		return http.StatusBadRequest
	case errors.Is(err, recurrenceDomain.ErrRuleNotOwner),
		errors.Is(err, notificationDomain.ErrNotificationNotRecipient):
		return http.StatusForbidden
	case errors.Is(err, recurrenceDomain.ErrRuleNotFound),
		errors.Is(err, notificationDomain.ErrNotificationNotFound):
		return http.StatusNotFound
	case errors.Is(err, recurrenceDomain.ErrRuleConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with its mapped status. Internal errors are logged and
// their detail withheld.
func fail(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func pathUUID(r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	return id, err == nil
}

func parseIntParam(r *http.Request, name string, defaultValue int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i >= 0 {
			return i
		}
	}
	return defaultValue
}

func parseBoolParam(r *http.Request, name string, defaultValue bool) bool {
	if v := r.URL.Query().Get(name); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}
