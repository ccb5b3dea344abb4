package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/taskbeacon/taskbeacon/pkg/clientip"
	"github.com/taskbeacon/taskbeacon/pkg/eventbus"
	"github.com/taskbeacon/taskbeacon/pkg/logger"
	"github.com/taskbeacon/taskbeacon/pkg/notify"
	"github.com/taskbeacon/taskbeacon/pkg/stream"
)

type upsertRequest struct {
	Subject  string         `json:"subject"`
	Message  string         `json:"message"`
	Status   notify.Status  `json:"status"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type subjectRequest struct {
	Subject string `json:"subject"`
}

func newRouter(store *notify.Store, manager *stream.Manager, bus *eventbus.Bus, log *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/notifications", handleUpsert(store))
		r.Post("/notifications/read", handleMarkRead(store))
		r.Delete("/notifications", handleRemove(store))
		r.Get("/notifications/unread", handleGetUnread(store))
		r.Get("/events", handleEvents(manager, log))
	})
	r.Get("/healthz", handleHealth(store, manager, bus))

	return r
}

func handleUpsert(store *notify.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req upsertRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.Subject == "" {
			writeError(w, http.StatusBadRequest, "subject is required")
			return
		}
		if !req.Status.Valid() {
			writeError(w, http.StatusBadRequest, "status must be working or completed")
			return
		}

		n := store.Upsert(req.Subject, req.Message, req.Status, req.Metadata)
		writeJSON(w, http.StatusOK, n)
	}
}

func handleMarkRead(store *notify.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req subjectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.Subject == "" {
			writeError(w, http.StatusBadRequest, "subject is required")
			return
		}

		if !store.MarkRead(req.Subject) {
			writeError(w, http.StatusNotFound, "notification not found")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleRemove deletes one subject's record, or the whole table when no
// subject is given.
func handleRemove(store *notify.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subject := r.URL.Query().Get("subject")
		if subject == "" {
			count := store.RemoveAll()
			writeJSON(w, http.StatusOK, map[string]int{"removed": count})
			return
		}

		if !store.Remove(subject) {
			writeError(w, http.StatusNotFound, "notification not found")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleGetUnread(store *notify.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subject := r.URL.Query().Get("subject")
		writeJSON(w, http.StatusOK, store.GetUnread(subject))
	}
}

func handleEvents(manager *stream.Manager, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subject := r.URL.Query().Get("subject")
		if subject == "" {
			writeError(w, http.StatusBadRequest, "subject is required")
			return
		}

		transport, err := stream.NewSSETransport(w, r)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "streaming unsupported")
			return
		}

		sourceKey := clientip.GetIP(r)
		err = manager.Establish(r.Context(), sourceKey, subject, transport)
		if err == nil {
			return
		}

		if rej, ok := stream.AsRejection(err); ok {
			status := http.StatusServiceUnavailable
			if rej.Reason == stream.ReasonTooManySourceConnections {
				status = http.StatusTooManyRequests
			}
			w.Header().Set("Retry-After", strconv.Itoa(int(rej.RetryAfter.Seconds())))
			writeError(w, status, string(rej.Reason))
			return
		}

		log.Error("stream ended with error",
			logger.Component("http"),
			logger.Source(sourceKey),
			logger.Error(err),
		)
	}
}

func handleHealth(store *notify.Store, manager *stream.Manager, bus *eventbus.Bus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":        "ok",
			"store":         store.Stats(),
			"stream":        manager.Stats(),
			"bus_listeners": bus.ListenerCount(),
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
