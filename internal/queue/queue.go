// Scrobblarr - Trakt Watch-State and Collection Sync for Media Servers
// Copyright 2026 Scrobblarr Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scrobblarr/scrobblarr

// Package queue coalesces individual library add/remove notifications into
// batched remote collection updates.
//
// Batches are kept per (user, event type, media kind) lane. A lane flushes
// when it reaches the size cap, when an episode from a different series
// arrives (so one remote call can carry "series + these episodes"), or when
// a quiet-period timer elapses, which guarantees eventual flush for bursts
// smaller than the cap.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/scrobblarr/scrobblarr/internal/config"
	"github.com/scrobblarr/scrobblarr/internal/logging"
	"github.com/scrobblarr/scrobblarr/internal/metrics"
	"github.com/scrobblarr/scrobblarr/internal/models"
	"github.com/scrobblarr/scrobblarr/internal/trakt"
)

// FlushErrorPolicy decides what happens to a batch the remote rejected or
// the transport lost. The batch is always cleared before the policy runs,
// so delivery is at-most-once; a retrying policy would have to requeue
// explicitly.
type FlushErrorPolicy interface {
	HandleFlushError(profile *models.UserProfile, event models.EventType, kind models.MediaKind, items []*models.LibraryItem, err error)
}

// dropPolicy logs the loss and drops the batch. Status rejections are
// logged distinctly from transport failures: a rejected payload would fail
// identically on retry, a transport failure might not.
type dropPolicy struct{}

func (dropPolicy) HandleFlushError(profile *models.UserProfile, event models.EventType, kind models.MediaKind, items []*models.LibraryItem, err error) {
	evt := logging.Error()
	if errors.Is(err, trakt.ErrStatusFailure) {
		evt = logging.Warn()
	}
	evt.Err(err).
		Str("user", profile.Username).
		Str("event", event.String()).
		Str("kind", kind.String()).
		Int("dropped", len(items)).
		Msg("batch flush failed, dropping batch")
	metrics.QueueEventsDropped.WithLabelValues("flush_failure").Add(float64(len(items)))
}

type laneKey struct {
	userID string
	event  models.EventType
	kind   models.MediaKind
}

// lane is one per-user, per-event-type, per-kind batch. The lane mutex
// serializes same-lane enqueues and flushes, preserving series contiguity;
// distinct lanes flush concurrently.
type lane struct {
	mu            sync.Mutex
	profile       *models.UserProfile
	items         []*models.LibraryItem
	currentSeries string
	timer         *time.Timer
}

// Queue is the library-change batching queue.
type Queue struct {
	client  trakt.Client
	cfg     config.QueueConfig
	onError FlushErrorPolicy

	mu    sync.Mutex
	lanes map[laneKey]*lane
}

// Option customizes queue construction.
type Option func(*Queue)

// WithFlushErrorPolicy replaces the default log-and-drop policy.
func WithFlushErrorPolicy(p FlushErrorPolicy) Option {
	return func(q *Queue) { q.onError = p }
}

// New creates a queue pushing batches through client.
func New(client trakt.Client, cfg config.QueueConfig, opts ...Option) *Queue {
	q := &Queue{
		client:  client,
		cfg:     cfg,
		onError: dropPolicy{},
		lanes:   make(map[laneKey]*lane),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue adds one library change to the user's batch, flushing when a
// batch rule fires. Update events carry no remote collection verb and are
// dropped here; so are bare series events, which have no per-item remote
// mapping of their own (their episodes arrive as separate events).
func (q *Queue) Enqueue(ctx context.Context, profile *models.UserProfile, item *models.LibraryItem, event models.EventType) {
	if profile == nil || item == nil {
		return
	}
	if event == models.EventUpdate {
		logging.Debug().Str("item", item.Name).Msg("ignoring update event, no collection verb")
		metrics.QueueEventsDropped.WithLabelValues("unsupported_event").Inc()
		return
	}
	switch item.Kind {
	case models.KindMovie, models.KindEpisode:
	case models.KindSeries:
		logging.Debug().Str("series", item.Name).Str("event", event.String()).
			Msg("ignoring bare series event")
		metrics.QueueEventsDropped.WithLabelValues("unsupported_kind").Inc()
		return
	default:
		metrics.QueueEventsDropped.WithLabelValues("unsupported_kind").Inc()
		return
	}

	metrics.QueueEventsTotal.WithLabelValues(item.Kind.String(), event.String()).Inc()

	key := laneKey{userID: profile.LinkedUserID, event: event, kind: item.Kind}
	ln := q.lane(key, profile)

	ln.mu.Lock()
	defer ln.mu.Unlock()

	if item.Kind == models.KindEpisode {
		seriesKey := item.SeriesKey()
		if len(ln.items) > 0 && seriesKey != ln.currentSeries {
			q.flushLocked(ctx, key, ln, "discontinuity")
		}
		ln.currentSeries = seriesKey
	}

	ln.items = append(ln.items, item)

	if len(ln.items) >= q.cfg.MaxBatchSize {
		q.flushLocked(ctx, key, ln, "cap")
		return
	}
	q.resetTimerLocked(key, ln)
}

// Flush pushes the user's pending batch for one event type and kind, if
// any. Exposed for drains at shutdown and for tests.
func (q *Queue) Flush(ctx context.Context, profile *models.UserProfile, event models.EventType, kind models.MediaKind) {
	key := laneKey{userID: profile.LinkedUserID, event: event, kind: kind}

	q.mu.Lock()
	ln, ok := q.lanes[key]
	q.mu.Unlock()
	if !ok {
		return
	}

	ln.mu.Lock()
	defer ln.mu.Unlock()
	q.flushLocked(ctx, key, ln, "drain")
}

// Drain flushes every non-empty lane. Used at shutdown.
func (q *Queue) Drain(ctx context.Context) {
	q.mu.Lock()
	keys := make([]laneKey, 0, len(q.lanes))
	for key := range q.lanes {
		keys = append(keys, key)
	}
	q.mu.Unlock()

	for _, key := range keys {
		q.mu.Lock()
		ln := q.lanes[key]
		q.mu.Unlock()

		ln.mu.Lock()
		q.flushLocked(ctx, key, ln, "drain")
		ln.mu.Unlock()
	}
}

// lane returns the batch lane for key, creating it on first use.
func (q *Queue) lane(key laneKey, profile *models.UserProfile) *lane {
	q.mu.Lock()
	defer q.mu.Unlock()
	ln, ok := q.lanes[key]
	if !ok {
		ln = &lane{profile: profile}
		q.lanes[key] = ln
	}
	return ln
}

// resetTimerLocked (re)arms the quiet-period timer for a non-empty lane.
// Caller holds ln.mu.
func (q *Queue) resetTimerLocked(key laneKey, ln *lane) {
	if q.cfg.FlushInterval <= 0 {
		return
	}
	if ln.timer != nil {
		ln.timer.Stop()
	}
	ln.timer = time.AfterFunc(q.cfg.FlushInterval, func() {
		ln.mu.Lock()
		defer ln.mu.Unlock()
		q.flushLocked(context.Background(), key, ln, "timer")
	})
}

// flushLocked issues the remote call for the lane's pending batch and
// clears it. Errors go to the flush policy; the batch never survives a
// failure, so a stuck payload cannot wedge the lane. Caller holds ln.mu.
func (q *Queue) flushLocked(ctx context.Context, key laneKey, ln *lane, trigger string) {
	if len(ln.items) == 0 {
		return
	}
	items := ln.items
	ln.items = nil
	ln.currentSeries = ""
	if ln.timer != nil {
		ln.timer.Stop()
		ln.timer = nil
	}

	var err error
	switch key.kind {
	case models.KindMovie:
		err = q.client.UpdateMovieLibrary(ctx, ln.profile, items, key.event)
	case models.KindEpisode:
		err = q.client.UpdateEpisodeLibrary(ctx, ln.profile, items, key.event)
	}

	metrics.RecordBatchFlush(key.kind.String(), key.event.String(), trigger, len(items))

	if err != nil {
		q.onError.HandleFlushError(ln.profile, key.event, key.kind, items, err)
		return
	}
	logging.Debug().
		Str("user", ln.profile.Username).
		Str("event", key.event.String()).
		Str("kind", key.kind.String()).
		Str("trigger", trigger).
		Int("items", len(items)).
		Msg("batch flushed")
}
