// Scrobblarr - Trakt Watch-State and Collection Sync for Media Servers
// Copyright 2026 Scrobblarr Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scrobblarr/scrobblarr

package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/scrobblarr/scrobblarr/internal/logging"
	"github.com/scrobblarr/scrobblarr/internal/mediaserver"
	"github.com/scrobblarr/scrobblarr/internal/models"
)

// Webhook event names accepted from the media server's notification
// plugin.
const (
	WebhookPlaybackStart    = "playback.start"
	WebhookPlaybackProgress = "playback.progress"
	WebhookPlaybackStop     = "playback.stop"
	WebhookItemAdded        = "library.added"
	WebhookItemRemoved      = "library.removed"
	WebhookItemUpdated      = "library.updated"
	WebhookUserDataSaved    = "userdata.saved"
)

// webhookPayload is the notification body posted by the media server.
// Item and Series use the server's own wire shapes.
type webhookPayload struct {
	Event string `json:"Event"`

	User struct {
		ID   string `json:"Id"`
		Name string `json:"Name"`
	} `json:"User"`

	Item   *mediaserver.Item `json:"Item"`
	Series *mediaserver.Item `json:"Series,omitempty"`

	PlaybackInfo struct {
		PositionTicks      int64 `json:"PositionTicks"`
		PlayedToCompletion *bool `json:"PlayedToCompletion,omitempty"`
	} `json:"PlaybackInfo"`

	SaveReason string `json:"SaveReason,omitempty"`
	Rating     *int   `json:"Rating,omitempty"`
}

// Webhook ingests one media-server notification and publishes it onto the
// event bus. Unknown events are acknowledged and dropped so a newer server
// plugin never sees delivery failures.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_BODY", "notification body is not valid JSON")
		return
	}
	if payload.Item == nil {
		respondError(w, http.StatusBadRequest, "MISSING_ITEM", "notification carries no item")
		return
	}

	var series *models.SeriesRef
	if payload.Series != nil {
		series = payload.Series.SeriesRef()
	}
	item := payload.Item.ToLibraryItem(series)

	var err error
	switch payload.Event {
	case WebhookPlaybackStart:
		err = h.events.PublishPlaybackStart(h.playbackEvent(&payload, item))
	case WebhookPlaybackProgress:
		err = h.events.PublishPlaybackProgress(h.playbackEvent(&payload, item))
	case WebhookPlaybackStop:
		err = h.events.PublishPlaybackStop(h.playbackEvent(&payload, item))
	case WebhookItemAdded:
		err = h.events.PublishItemChange(&models.ItemChangeEvent{Item: item, Event: models.EventAdd})
	case WebhookItemRemoved:
		err = h.events.PublishItemChange(&models.ItemChangeEvent{Item: item, Event: models.EventRemove})
	case WebhookItemUpdated:
		err = h.events.PublishItemChange(&models.ItemChangeEvent{Item: item, Event: models.EventUpdate})
	case WebhookUserDataSaved:
		err = h.events.PublishUserDataSaved(&models.UserDataSavedEvent{
			UserID: payload.User.ID,
			Item:   item,
			Reason: payload.SaveReason,
			Rating: payload.Rating,
		})
	default:
		logging.Debug().Str("event", payload.Event).Msg("ignoring unknown webhook event")
		respondJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	if err != nil {
		logging.Error().Err(err).Str("event", payload.Event).Msg("webhook publish failed")
		respondError(w, http.StatusInternalServerError, "PUBLISH_FAILED", "event could not be queued")
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (h *Handler) playbackEvent(payload *webhookPayload, item *models.LibraryItem) *models.PlaybackEvent {
	return &models.PlaybackEvent{
		UserID:             payload.User.ID,
		Item:               item,
		PositionTicks:      payload.PlaybackInfo.PositionTicks,
		PlayedToCompletion: payload.PlaybackInfo.PlayedToCompletion,
	}
}
