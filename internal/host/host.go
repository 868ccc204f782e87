// Scrobblarr - Trakt Watch-State and Collection Sync for Media Servers
// Copyright 2026 Scrobblarr Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scrobblarr/scrobblarr

// Package host defines the seam between the embedding media server and the
// sync core: the event bus the server publishes playback and library
// notifications on, the library browser, and the per-user play-state store.
package host

import (
	"context"

	"github.com/scrobblarr/scrobblarr/internal/models"
)

// Topics the embedding server publishes on.
const (
	TopicPlaybackStart    = "playback.start"
	TopicPlaybackProgress = "playback.progress"
	TopicPlaybackStop     = "playback.stop"
	TopicItemChange       = "library.item"
	TopicUserDataSaved    = "userdata.saved"
)

// EventHandler consumes host events. The mediator implements this and
// fans events out to the sync components. Handler errors are logged and
// never propagate back to the publishing server code.
type EventHandler interface {
	HandlePlaybackStart(ctx context.Context, event *models.PlaybackEvent) error
	HandlePlaybackProgress(ctx context.Context, event *models.PlaybackEvent) error
	HandlePlaybackStop(ctx context.Context, event *models.PlaybackEvent) error
	HandleItemChange(ctx context.Context, event *models.ItemChangeEvent) error
	HandleUserDataSaved(ctx context.Context, event *models.UserDataSavedEvent) error
}

// EventSource is the publishing side handed to the embedding server.
type EventSource interface {
	PublishPlaybackStart(event *models.PlaybackEvent) error
	PublishPlaybackProgress(event *models.PlaybackEvent) error
	PublishPlaybackStop(event *models.PlaybackEvent) error
	PublishItemChange(event *models.ItemChangeEvent) error
	PublishUserDataSaved(event *models.UserDataSavedEvent) error
}

// LibraryBrowser exposes the host's media library to the sync core.
type LibraryBrowser interface {
	// RecursiveItems returns every movie and episode in the library,
	// in library order. Series containers are not included.
	RecursiveItems(ctx context.Context) ([]*models.LibraryItem, error)

	// ItemByID looks up a single item. Returns nil, nil when the id is
	// unknown to the library.
	ItemByID(ctx context.Context, id string) (*models.LibraryItem, error)
}

// UserDataStore persists per-user play-state keyed by the item's user-data
// key. Get returns a zero-value record when none exists, so callers always
// receive a record they can mutate and save back.
type UserDataStore interface {
	Get(ctx context.Context, userID, itemKey string) (*models.UserData, error)
	Save(ctx context.Context, userID, itemKey string, data *models.UserData) error
}
