// Scrobblarr - Trakt Watch-State and Collection Sync for Media Servers
// Copyright 2026 Scrobblarr Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scrobblarr/scrobblarr

// Package mediator routes host events to the sync components: playback
// events to the progress tracker, library changes to the batching queue,
// and rating saves to the remote rating call.
package mediator

import (
	"context"

	"github.com/scrobblarr/scrobblarr/internal/host"
	"github.com/scrobblarr/scrobblarr/internal/logging"
	"github.com/scrobblarr/scrobblarr/internal/models"
	"github.com/scrobblarr/scrobblarr/internal/progress"
	"github.com/scrobblarr/scrobblarr/internal/queue"
	"github.com/scrobblarr/scrobblarr/internal/trakt"
	"github.com/scrobblarr/scrobblarr/internal/users"
)

// ReasonUserRating is the host's save-reason for a user rating an item.
const ReasonUserRating = "UpdateUserRating"

// Mediator implements host.EventHandler over the sync components. Every
// handler is best-effort and returns nil: a lost update is logged, never
// propagated back into the host's dispatch.
type Mediator struct {
	directory *users.Directory
	tracker   *progress.Tracker
	queue     *queue.Queue
	client    trakt.Client
}

// Ensure Mediator implements the handler surface.
var _ host.EventHandler = (*Mediator)(nil)

// New wires the mediator.
func New(directory *users.Directory, tracker *progress.Tracker, q *queue.Queue, client trakt.Client) *Mediator {
	return &Mediator{
		directory: directory,
		tracker:   tracker,
		queue:     q,
		client:    client,
	}
}

// HandlePlaybackStart opens a watching session.
func (m *Mediator) HandlePlaybackStart(ctx context.Context, event *models.PlaybackEvent) error {
	m.tracker.Start(ctx, event)
	return nil
}

// HandlePlaybackProgress re-pings a tracked session.
func (m *Mediator) HandlePlaybackProgress(ctx context.Context, event *models.PlaybackEvent) error {
	m.tracker.Progress(ctx, event)
	return nil
}

// HandlePlaybackStop closes the session and sends the terminal call.
func (m *Mediator) HandlePlaybackStop(ctx context.Context, event *models.PlaybackEvent) error {
	m.tracker.Stop(ctx, event)
	return nil
}

// HandleItemChange enqueues a library change for every linked user whose
// monitored locations contain the item. Items the remote cannot identify
// are skipped here rather than producing an empty-id payload.
func (m *Mediator) HandleItemChange(ctx context.Context, event *models.ItemChangeEvent) error {
	if event == nil || event.Item == nil {
		return nil
	}
	item := event.Item
	if !identifiable(item) {
		logging.Debug().Str("item", item.Name).Msg("ignoring library change for unidentifiable item")
		return nil
	}

	for _, profile := range m.directory.Profiles() {
		p := profile
		if !p.Monitors(item.Path) {
			continue
		}
		m.queue.Enqueue(ctx, &p, item, event.Event)
	}
	return nil
}

// HandleUserDataSaved propagates a rating save to the remote service for
// profiles with advanced rating enabled.
func (m *Mediator) HandleUserDataSaved(ctx context.Context, event *models.UserDataSavedEvent) error {
	if event == nil || event.Item == nil || event.Reason != ReasonUserRating || event.Rating == nil {
		return nil
	}
	profile, ok := m.directory.Resolve(event.UserID)
	if !ok {
		return nil
	}
	if !profile.AdvancedRating {
		logging.Debug().Str("user", profile.Username).Msg("advanced rating disabled, not propagating rating")
		return nil
	}
	item := event.Item
	if !profile.Monitors(item.Path) {
		return nil
	}

	if err := m.client.RateItem(ctx, profile, item, *event.Rating); err != nil {
		logging.Warn().Err(err).Str("user", profile.Username).Str("item", item.Name).
			Int("rating", *event.Rating).Msg("rating propagation failed")
	}
	return nil
}

// identifiable reports whether the remote can match the item at all.
func identifiable(item *models.LibraryItem) bool {
	switch item.Kind {
	case models.KindMovie:
		return item.HasMovieIDs()
	case models.KindEpisode:
		return item.HasSeriesIDs()
	case models.KindSeries:
		// Bare series events are the queue's no-op concern; let them
		// through so the drop is counted in one place.
		return true
	default:
		return false
	}
}
