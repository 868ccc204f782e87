// Scrobblarr - Trakt Watch-State and Collection Sync for Media Servers
// Copyright 2026 Scrobblarr Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scrobblarr/scrobblarr

// Package librarysync pushes the existence of every monitored local item
// to the remote collection in one scheduled pass.
//
// The walk drives the same batching rules as the live library-change
// queue: the size cap and the series-discontinuity flush, plus a final
// drain when the walk ends. Watched-state is not touched here; that is
// the reconciler's job.
package librarysync

import (
	"context"
	"fmt"
	"time"

	"github.com/scrobblarr/scrobblarr/internal/config"
	"github.com/scrobblarr/scrobblarr/internal/host"
	"github.com/scrobblarr/scrobblarr/internal/logging"
	"github.com/scrobblarr/scrobblarr/internal/metrics"
	"github.com/scrobblarr/scrobblarr/internal/models"
	"github.com/scrobblarr/scrobblarr/internal/queue"
	"github.com/scrobblarr/scrobblarr/internal/trakt"
	"github.com/scrobblarr/scrobblarr/internal/users"
)

// Syncer is the full library sync pass.
type Syncer struct {
	client       trakt.Client
	directory    *users.Directory
	library      host.LibraryBrowser
	maxBatchSize int
}

// NewSyncer wires the library sync pass. maxBatchSize caps each remote
// batch exactly as the live queue does.
func NewSyncer(client trakt.Client, directory *users.Directory, library host.LibraryBrowser, maxBatchSize int) *Syncer {
	return &Syncer{
		client:       client,
		directory:    directory,
		library:      library,
		maxBatchSize: maxBatchSize,
	}
}

// Run walks the library once per linked user, pushing add updates for
// every monitored, identifiable movie and episode. Flush failures are
// logged and skipped; they never abort the remaining walk. progress, if
// non-nil, receives the overall completed fraction in [0, 1].
func (s *Syncer) Run(ctx context.Context, progress func(float64)) error {
	start := time.Now()

	profiles := s.linkedProfiles()
	if len(profiles) == 0 {
		logging.Info().Msg("library sync: no linked users with monitored locations")
		report(progress, 1)
		return nil
	}

	perUser := 1.0 / float64(len(profiles))
	for i := range profiles {
		if err := ctx.Err(); err != nil {
			return err
		}
		base := float64(i) * perUser
		if err := s.syncUser(ctx, &profiles[i], base, perUser, progress); err != nil {
			if ctx.Err() != nil {
				return err
			}
			logging.Error().Err(err).Str("user", profiles[i].Username).
				Msg("library sync: skipping user")
		}
		report(progress, base+perUser)
	}

	metrics.LibrarySyncDuration.Observe(time.Since(start).Seconds())
	metrics.LibrarySyncLastSuccess.SetToCurrentTime()
	return nil
}

func (s *Syncer) linkedProfiles() []models.UserProfile {
	all := s.directory.Profiles()
	linked := make([]models.UserProfile, 0, len(all))
	for _, p := range all {
		if len(p.Locations) > 0 {
			linked = append(linked, p)
		}
	}
	return linked
}

// syncUser walks the library for one user. A fresh one-shot batcher per
// user keeps the walk's batches isolated from the live event queue.
func (s *Syncer) syncUser(ctx context.Context, profile *models.UserProfile, base, span float64, progress func(float64)) error {
	items, err := s.library.RecursiveItems(ctx)
	if err != nil {
		return fmt.Errorf("enumerate library: %w", err)
	}
	if len(items) == 0 {
		return nil
	}

	// No quiet-period timer: the walk ends with an explicit drain.
	batcher := queue.New(s.client, config.QueueConfig{
		MaxBatchSize: s.maxBatchSize,
	})

	perItem := span / float64(len(items))
	pushed := 0
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		report(progress, base+float64(i+1)*perItem)

		if !s.eligible(profile, item) {
			continue
		}
		batcher.Enqueue(ctx, profile, item, models.EventAdd)
		metrics.LibrarySyncItems.WithLabelValues(item.Kind.String()).Inc()
		pushed++
	}
	batcher.Drain(ctx)

	logging.Info().Str("user", profile.Username).Int("items", pushed).
		Msg("library sync: user pass complete")
	return nil
}

// eligible filters the walk to monitored, remotely identifiable movies
// and episodes.
func (s *Syncer) eligible(profile *models.UserProfile, item *models.LibraryItem) bool {
	if item == nil {
		return false
	}
	switch item.Kind {
	case models.KindMovie:
		if !item.HasMovieIDs() {
			return false
		}
	case models.KindEpisode:
		if !item.HasSeriesIDs() {
			return false
		}
	default:
		return false
	}
	return profile.Monitors(item.Path)
}

func report(progress func(float64), fraction float64) {
	if progress != nil {
		progress(fraction)
	}
}
