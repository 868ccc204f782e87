// Scrobblarr - Trakt Watch-State and Collection Sync for Media Servers
// Copyright 2026 Scrobblarr Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scrobblarr/scrobblarr

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/scrobblarr/scrobblarr/internal/logging"
	"github.com/scrobblarr/scrobblarr/internal/models"
	"github.com/scrobblarr/scrobblarr/internal/scheduler"
)

// Health is the liveness endpoint.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// userSummary is the public projection of a linked profile.
type userSummary struct {
	Username     string   `json:"username"`
	LinkedUserID string   `json:"linked_user_id"`
	Locations    []string `json:"locations"`
}

// Users lists the linked profiles.
func (h *Handler) Users(w http.ResponseWriter, _ *http.Request) {
	profiles := h.directory.Profiles()
	out := make([]userSummary, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, userSummary{
			Username:     p.Username,
			LinkedUserID: p.LinkedUserID,
			Locations:    p.Locations,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

// Account verifies the profile's remote credentials and returns the
// remote account settings.
func (h *Handler) Account(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.resolveProfile(w, r)
	if !ok {
		return
	}

	if err := h.client.AccountTest(r.Context(), profile); err != nil {
		respondRemoteError(w, err)
		return
	}
	account, err := h.client.GetUserAccount(r.Context(), profile)
	if err != nil {
		respondRemoteError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, account)
}

// RecommendedMovies proxies the remote movie recommendations.
func (h *Handler) RecommendedMovies(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.resolveProfile(w, r)
	if !ok {
		return
	}
	movies, err := h.client.GetRecommendedMovies(r.Context(), profile)
	if err != nil {
		respondRemoteError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, movies)
}

// RecommendedShows proxies the remote show recommendations.
func (h *Handler) RecommendedShows(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.resolveProfile(w, r)
	if !ok {
		return
	}
	shows, err := h.client.GetRecommendedShows(r.Context(), profile)
	if err != nil {
		respondRemoteError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, shows)
}

type rateRequest struct {
	Rating *int `json:"rating" validate:"required,gte=0,lte=10"`
}

// RateItem forwards a 0-10 rating for a library item.
func (h *Handler) RateItem(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.resolveProfile(w, r)
	if !ok {
		return
	}
	item, ok := h.resolveItem(w, r)
	if !ok {
		return
	}

	var req rateRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	if err := h.client.RateItem(r.Context(), profile, item, *req.Rating); err != nil {
		respondRemoteError(w, err)
		return
	}
	logging.Info().Str("user", profile.Username).Str("item", item.Name).
		Int("rating", *req.Rating).Msg("rating forwarded")
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type commentRequest struct {
	Comment string `json:"comment" validate:"required,min=1"`
	Spoiler bool   `json:"spoiler"`
	Review  bool   `json:"review"`
}

// CommentItem forwards a comment or review for a library item.
func (h *Handler) CommentItem(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.resolveProfile(w, r)
	if !ok {
		return
	}
	item, ok := h.resolveItem(w, r)
	if !ok {
		return
	}

	var req commentRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	if err := h.client.CommentItem(r.Context(), profile, item, req.Comment, req.Spoiler, req.Review); err != nil {
		respondRemoteError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Tasks lists the registered sync tasks and their last outcomes.
func (h *Handler) Tasks(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, h.scheduler.Statuses())
}

// RunTask starts a sync task in the background.
func (h *Handler) RunTask(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	switch err := h.scheduler.TriggerBackground(name); {
	case err == nil:
		respondJSON(w, http.StatusAccepted, map[string]string{"status": "started", "task": name})
	case errors.Is(err, scheduler.ErrUnknownTask):
		respondError(w, http.StatusNotFound, "TASK_NOT_FOUND", err.Error())
	case errors.Is(err, scheduler.ErrAlreadyRunning):
		respondError(w, http.StatusConflict, "TASK_RUNNING", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "TASK_FAILED", err.Error())
	}
}

// resolveProfile maps the userID route param to a linked profile; a miss
// answers 404 and reports false.
func (h *Handler) resolveProfile(w http.ResponseWriter, r *http.Request) (*models.UserProfile, bool) {
	userID := chi.URLParam(r, "userID")
	profile, ok := h.directory.Resolve(userID)
	if !ok {
		respondError(w, http.StatusNotFound, "USER_NOT_FOUND", "no linked profile for this user")
		return nil, false
	}
	return profile, true
}

// resolveItem maps the itemID route param to a library item; a miss
// answers 404 and reports false.
func (h *Handler) resolveItem(w http.ResponseWriter, r *http.Request) (*models.LibraryItem, bool) {
	itemID := chi.URLParam(r, "itemID")
	item, err := h.library.ItemByID(r.Context(), itemID)
	if err != nil {
		logging.Error().Err(err).Str("item_id", itemID).Msg("library lookup failed")
		respondError(w, http.StatusInternalServerError, "LIBRARY_ERROR", "library lookup failed")
		return nil, false
	}
	if item == nil {
		respondError(w, http.StatusNotFound, "ITEM_NOT_FOUND", "no such library item")
		return nil, false
	}
	return item, true
}

// decodeBody decodes and validates a JSON request body; failures answer
// 400 and report false.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_BODY", "request body is not valid JSON")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return false
	}
	return true
}
