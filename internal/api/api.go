// Scrobblarr - Trakt Watch-State and Collection Sync for Media Servers
// Copyright 2026 Scrobblarr Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scrobblarr/scrobblarr

// Package api exposes the embedded HTTP surface: account checks, rating
// and comment pass-through, recommendations, manual task triggers and
// the Prometheus endpoint.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scrobblarr/scrobblarr/internal/host"
	"github.com/scrobblarr/scrobblarr/internal/logging"
	"github.com/scrobblarr/scrobblarr/internal/metrics"
	"github.com/scrobblarr/scrobblarr/internal/scheduler"
	"github.com/scrobblarr/scrobblarr/internal/trakt"
	"github.com/scrobblarr/scrobblarr/internal/users"
)

// Handler carries the dependencies shared by all endpoints.
type Handler struct {
	client    trakt.Client
	directory *users.Directory
	library   host.LibraryBrowser
	scheduler *scheduler.Scheduler
	events    host.EventSource
	validate  *validator.Validate
}

// NewHandler wires the API handler. events receives the webhook
// notifications; pass nil to disable the webhook route.
func NewHandler(client trakt.Client, directory *users.Directory, library host.LibraryBrowser, sched *scheduler.Scheduler, events host.EventSource) *Handler {
	return &Handler{
		client:    client,
		directory: directory,
		library:   library,
		scheduler: sched,
		events:    events,
		validate:  validator.New(),
	}
}

// Routes builds the full router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", h.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(requestMetrics)

		r.Get("/users", h.Users)
		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/account", h.Account)
			r.Get("/recommendations/movies", h.RecommendedMovies)
			r.Get("/recommendations/shows", h.RecommendedShows)
			r.Post("/items/{itemID}/rate", h.RateItem)
			r.Post("/items/{itemID}/comment", h.CommentItem)
		})

		r.Get("/tasks", h.Tasks)
		r.Post("/tasks/{name}/run", h.RunTask)

		if h.events != nil {
			r.Post("/webhooks/media-server", h.Webhook)
		}
	})
	return r
}

// requestMetrics records per-route counters and latencies. The route
// pattern, not the raw path, keeps the label cardinality bounded.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := chi.RouteContext(r.Context()).RoutePattern()
		metrics.RecordAPIRequest(r.Method, endpoint, strconv.Itoa(ww.Status()), time.Since(start))
	})
}

// apiError is the error payload shape.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(payload)
	if err != nil {
		logging.Error().Err(err).Msg("response marshal failed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("response write failed")
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, &errorResponse{Error: apiError{Code: code, Message: message}})
}

// respondRemoteError maps a remote-call failure onto an HTTP status.
func respondRemoteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, trakt.ErrInvalidArgument):
		respondError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
	case errors.Is(err, trakt.ErrStatusFailure):
		respondError(w, http.StatusBadGateway, "REMOTE_REJECTED", "the remote service rejected the request")
	default:
		respondError(w, http.StatusBadGateway, "REMOTE_UNAVAILABLE", "the remote service could not be reached")
	}
}
