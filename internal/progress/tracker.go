// Scrobblarr - Trakt Watch-State and Collection Sync for Media Servers
// Copyright 2026 Scrobblarr Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scrobblarr/scrobblarr

// Package progress tracks active playback sessions and reports watching
// state to the remote service.
//
// Each (user, item) pair moves Idle -> Watching -> Idle. Start issues an
// immediate "watching" update and opens a session; progress events re-ping
// at most once per ping interval; stop always closes the session and issues
// exactly one terminal call, scrobble or cancel. Remote calls are
// best-effort: transport failures are logged and never block session
// bookkeeping.
package progress

import (
	"context"
	"sync"
	"time"

	"github.com/scrobblarr/scrobblarr/internal/host"
	"github.com/scrobblarr/scrobblarr/internal/logging"
	"github.com/scrobblarr/scrobblarr/internal/metrics"
	"github.com/scrobblarr/scrobblarr/internal/models"
	"github.com/scrobblarr/scrobblarr/internal/trakt"
	"github.com/scrobblarr/scrobblarr/internal/users"
)

type sessionKey struct {
	userID string
	itemID string
}

// Tracker is the playback progress tracker. Safe for concurrent use; the
// host may deliver events for the same user from multiple goroutines.
type Tracker struct {
	client       trakt.Client
	directory    *users.Directory
	store        host.UserDataStore
	pingInterval time.Duration
	now          func() time.Time

	mu       sync.Mutex
	sessions map[sessionKey]time.Time // value: time of last watching ping
}

// NewTracker creates a tracker issuing pings at most once per pingInterval
// per session.
func NewTracker(client trakt.Client, directory *users.Directory, store host.UserDataStore, pingInterval time.Duration) *Tracker {
	return &Tracker{
		client:       client,
		directory:    directory,
		store:        store,
		pingInterval: pingInterval,
		now:          time.Now,
		sessions:     make(map[sessionKey]time.Time),
	}
}

// Start handles a playback-start event: for a linked user playing a
// monitored item, it reports "watching" and opens a session. A second
// start for the same (user, item) replaces the existing session.
func (t *Tracker) Start(ctx context.Context, event *models.PlaybackEvent) {
	profile, item, ok := t.admit(event)
	if !ok {
		return
	}

	key := sessionKey{userID: profile.LinkedUserID, itemID: item.ID}
	t.mu.Lock()
	t.sessions[key] = t.now()
	t.updateGaugeLocked()
	t.mu.Unlock()

	if err := t.sendStatus(ctx, profile, item, trakt.StatusWatching); err != nil {
		logging.Warn().Err(err).Str("user", profile.Username).Str("item", item.Name).
			Msg("watching update failed")
		return
	}
	metrics.WatchingPingsTotal.WithLabelValues(item.Kind.String()).Inc()
}

// Progress handles a periodic playback-position event. Sessions are
// re-pinged only when the ping interval has elapsed; events for untracked
// playback are ignored.
func (t *Tracker) Progress(ctx context.Context, event *models.PlaybackEvent) {
	profile, item, ok := t.admit(event)
	if !ok {
		return
	}

	key := sessionKey{userID: profile.LinkedUserID, itemID: item.ID}
	t.mu.Lock()
	lastPing, tracked := t.sessions[key]
	if !tracked || t.now().Sub(lastPing) < t.pingInterval {
		t.mu.Unlock()
		return
	}
	// Claim the ping under the lock so concurrent progress events for the
	// same session cannot double-send.
	t.sessions[key] = t.now()
	t.mu.Unlock()

	if err := t.sendStatus(ctx, profile, item, trakt.StatusWatching); err != nil {
		logging.Warn().Err(err).Str("user", profile.Username).Str("item", item.Name).
			Msg("watching re-ping failed")
		return
	}
	metrics.WatchingPingsTotal.WithLabelValues(item.Kind.String()).Inc()
}

// Stop handles a playback-stop event. The session is removed no matter
// what; exactly one terminal call follows — scrobble when the host reports
// completion (or, absent that signal, when local play-state says played),
// cancel-watching otherwise.
func (t *Tracker) Stop(ctx context.Context, event *models.PlaybackEvent) {
	profile, item, ok := t.admit(event)
	if !ok {
		return
	}

	key := sessionKey{userID: profile.LinkedUserID, itemID: item.ID}
	t.mu.Lock()
	delete(t.sessions, key)
	t.updateGaugeLocked()
	t.mu.Unlock()

	status := trakt.StatusCancelWatching
	result := "cancelled"
	if t.playedToCompletion(ctx, event, item) {
		status = trakt.StatusScrobble
		result = "watched"
	}

	if err := t.sendStatus(ctx, profile, item, status); err != nil {
		logging.Warn().Err(err).Str("user", profile.Username).Str("item", item.Name).
			Str("status", status.String()).Msg("playback-stop update failed")
		return
	}
	metrics.ScrobblesTotal.WithLabelValues(item.Kind.String(), result).Inc()
}

// ActiveSessions returns the current session count, for health reporting.
func (t *Tracker) ActiveSessions() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// admit resolves the event's profile and checks the item is monitored and
// of a reportable kind. Everything else stays Idle with no remote call.
func (t *Tracker) admit(event *models.PlaybackEvent) (*models.UserProfile, *models.LibraryItem, bool) {
	if event == nil || event.Item == nil {
		return nil, nil, false
	}
	profile, ok := t.directory.Resolve(event.UserID)
	if !ok {
		return nil, nil, false
	}
	item := event.Item
	if item.Kind != models.KindMovie && item.Kind != models.KindEpisode {
		return nil, nil, false
	}
	if !profile.Monitors(item.Path) {
		return nil, nil, false
	}
	return profile, item, true
}

// playedToCompletion prefers the host's completion signal and falls back
// to the locally recorded play-state.
func (t *Tracker) playedToCompletion(ctx context.Context, event *models.PlaybackEvent, item *models.LibraryItem) bool {
	if event.PlayedToCompletion != nil {
		return *event.PlayedToCompletion
	}
	data, err := t.store.Get(ctx, event.UserID, item.UserDataKey())
	if err != nil {
		logging.Warn().Err(err).Str("item", item.Name).Msg("play-state lookup failed, treating as unplayed")
		return false
	}
	return data.Played
}

func (t *Tracker) sendStatus(ctx context.Context, profile *models.UserProfile, item *models.LibraryItem, status trakt.MediaStatus) error {
	if item.Kind == models.KindMovie {
		return t.client.UpdateMovieStatus(ctx, profile, item, status)
	}
	return t.client.UpdateEpisodeStatus(ctx, profile, item, status)
}

func (t *Tracker) updateGaugeLocked() {
	metrics.ActiveSessions.Set(float64(len(t.sessions)))
}
