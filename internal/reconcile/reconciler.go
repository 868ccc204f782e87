// Scrobblarr - Trakt Watch-State and Collection Sync for Media Servers
// Copyright 2026 Scrobblarr Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scrobblarr/scrobblarr

// Package reconcile pulls each linked user's remote watched/collection
// snapshots and rewrites the matching local play-state from them.
package reconcile

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/scrobblarr/scrobblarr/internal/host"
	"github.com/scrobblarr/scrobblarr/internal/logging"
	"github.com/scrobblarr/scrobblarr/internal/metrics"
	"github.com/scrobblarr/scrobblarr/internal/models"
	"github.com/scrobblarr/scrobblarr/internal/trakt"
	"github.com/scrobblarr/scrobblarr/internal/users"
)

// Reconciler is the watched-state reconciliation pass. One Run iterates
// every linked user; a user whose snapshot fetch fails is skipped whole,
// per-item problems are counted as soft failures and never abort the pass.
type Reconciler struct {
	client    trakt.Client
	directory *users.Directory
	library   host.LibraryBrowser
	store     host.UserDataStore
}

// NewReconciler wires the reconciliation pass.
func NewReconciler(client trakt.Client, directory *users.Directory, library host.LibraryBrowser, store host.UserDataStore) *Reconciler {
	return &Reconciler{
		client:    client,
		directory: directory,
		library:   library,
		store:     store,
	}
}

// snapshot bundles the three per-user remote fetches.
type snapshot struct {
	movies     []models.MovieSnapshot
	collection []models.ShowSnapshot
	watched    []models.ShowSnapshot

	moviesByIMDB map[string]*models.MovieSnapshot
	moviesByTMDB map[string]*models.MovieSnapshot
}

// Run executes one reconciliation pass over all linked users. progress,
// if non-nil, receives the overall completed fraction in [0, 1].
func (r *Reconciler) Run(ctx context.Context, progress func(float64)) error {
	start := time.Now()

	profiles := r.linkedProfiles()
	if len(profiles) == 0 {
		logging.Info().Msg("reconcile: no linked users with monitored locations")
		report(progress, 1)
		return nil
	}

	perUser := 1.0 / float64(len(profiles))
	for i := range profiles {
		if err := ctx.Err(); err != nil {
			return err
		}
		base := float64(i) * perUser
		if err := r.reconcileUser(ctx, &profiles[i], base, perUser, progress); err != nil {
			if ctx.Err() != nil {
				return err
			}
			logging.Error().Err(err).Str("user", profiles[i].Username).
				Msg("reconcile: skipping user")
		}
		report(progress, base+perUser)
	}

	metrics.ReconcileDuration.Observe(time.Since(start).Seconds())
	metrics.ReconcileLastSuccess.SetToCurrentTime()
	return nil
}

func (r *Reconciler) linkedProfiles() []models.UserProfile {
	all := r.directory.Profiles()
	linked := make([]models.UserProfile, 0, len(all))
	for _, p := range all {
		if len(p.Locations) > 0 {
			linked = append(linked, p)
		}
	}
	return linked
}

// reconcileUser fetches the user's snapshots and rewrites the play-state
// of every matchable local item. A snapshot fetch failure aborts this user
// only.
func (r *Reconciler) reconcileUser(ctx context.Context, profile *models.UserProfile, base, span float64, progress func(float64)) error {
	snap, err := r.fetchSnapshot(ctx, profile)
	if err != nil {
		return err
	}

	items, err := r.matchableItems(ctx)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	collection := indexShows(snap.collection)
	watched := indexShows(snap.watched)

	perItem := span / float64(len(items))
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch item.Kind {
		case models.KindMovie:
			r.reconcileMovie(ctx, profile, item, snap)
		case models.KindEpisode:
			r.reconcileEpisode(ctx, profile, item, collection, watched)
		}
		report(progress, base+float64(i+1)*perItem)
	}
	return nil
}

// fetchSnapshot pulls all three remote views. Any failure aborts the user.
func (r *Reconciler) fetchSnapshot(ctx context.Context, profile *models.UserProfile) (*snapshot, error) {
	movies, err := r.client.GetAllMovies(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("fetch movie snapshot: %w", err)
	}
	collection, err := r.client.GetCollectionShows(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("fetch show collection snapshot: %w", err)
	}
	watched, err := r.client.GetWatchedShows(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("fetch watched shows snapshot: %w", err)
	}

	snap := &snapshot{
		movies:       movies,
		collection:   collection,
		watched:      watched,
		moviesByIMDB: make(map[string]*models.MovieSnapshot, len(movies)),
		moviesByTMDB: make(map[string]*models.MovieSnapshot, len(movies)),
	}
	for i := range movies {
		if movies[i].IMDBID != "" {
			snap.moviesByIMDB[movies[i].IMDBID] = &movies[i]
		}
		if movies[i].TMDBID != "" {
			snap.moviesByTMDB[movies[i].TMDBID] = &movies[i]
		}
	}
	return snap, nil
}

// matchableItems enumerates local movies and episodes that carry a usable
// external identifier, ordered so episodes of one series stay contiguous.
func (r *Reconciler) matchableItems(ctx context.Context) ([]*models.LibraryItem, error) {
	all, err := r.library.RecursiveItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate library: %w", err)
	}

	items := make([]*models.LibraryItem, 0, len(all))
	for _, item := range all {
		switch item.Kind {
		case models.KindMovie:
			if !item.HasMovieIDs() {
				metrics.ReconcileSoftFailures.WithLabelValues("movie", "no_ids").Inc()
				continue
			}
		case models.KindEpisode:
			if !item.HasSeriesIDs() {
				metrics.ReconcileSoftFailures.WithLabelValues("episode", "no_ids").Inc()
				continue
			}
		default:
			continue
		}
		items = append(items, item)
	}

	sort.SliceStable(items, func(i, j int) bool {
		ki, kj := orderKey(items[i]), orderKey(items[j])
		if ki != kj {
			return ki < kj
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

// orderKey groups episodes by their series and leaves movies keyed by
// their own identity.
func orderKey(item *models.LibraryItem) string {
	if item.Kind == models.KindEpisode {
		return item.SeriesKey()
	}
	return item.ID
}

// reconcileMovie overwrites one movie's local play-state from the remote
// record, matching by primary then secondary external id. No remote match
// leaves local state untouched.
func (r *Reconciler) reconcileMovie(ctx context.Context, profile *models.UserProfile, item *models.LibraryItem, snap *snapshot) {
	remote, ok := snap.moviesByIMDB[item.Providers.IMDB]
	if !ok || item.Providers.IMDB == "" {
		remote, ok = snap.moviesByTMDB[item.Providers.TMDB]
	}
	if !ok {
		metrics.ReconcileSoftFailures.WithLabelValues("movie", "lookup").Inc()
		return
	}

	data, err := r.store.Get(ctx, profile.LinkedUserID, item.UserDataKey())
	if err != nil {
		logging.Warn().Err(err).Str("item", item.Name).Msg("reconcile: play-state read failed")
		metrics.ReconcileSoftFailures.WithLabelValues("movie", "read").Inc()
		return
	}

	if remote.Watched() {
		data.Played = true
		if remote.Plays > data.PlayCount {
			data.PlayCount = remote.Plays
		}
		if remote.LastPlayed > 0 {
			remotePlayed := models.ConvertEpoch(remote.LastPlayed)
			if remotePlayed.After(data.LastPlayed) {
				data.LastPlayed = remotePlayed
			}
		}
	} else {
		data.Played = false
		data.PlayCount = 0
	}

	r.save(ctx, profile, item, data, "movie")
}

// reconcileEpisode overwrites one episode's local play-state. Episodes the
// remote collection does not know are skipped without touching local
// state: absence of knowledge is not evidence of unwatched.
func (r *Reconciler) reconcileEpisode(ctx context.Context, profile *models.UserProfile, item *models.LibraryItem, collection, watched *showIndex) {
	show := collection.find(item.Series)
	if show == nil {
		metrics.ReconcileSoftFailures.WithLabelValues("episode", "lookup").Inc()
		return
	}
	if !show.HasEpisode(item.Season, item.Episode) {
		metrics.ReconcileSoftFailures.WithLabelValues("episode", "lookup").Inc()
		return
	}

	data, err := r.store.Get(ctx, profile.LinkedUserID, item.UserDataKey())
	if err != nil {
		logging.Warn().Err(err).Str("item", item.Name).Msg("reconcile: play-state read failed")
		metrics.ReconcileSoftFailures.WithLabelValues("episode", "read").Inc()
		return
	}

	watchedShow := watched.find(item.Series)
	if watchedShow != nil && watchedShow.HasEpisode(item.Season, item.Episode) {
		data.Played = true
	} else {
		data.Played = false
		data.PlayCount = 0
		data.LastPlayed = time.Time{}
	}

	r.save(ctx, profile, item, data, "episode")
}

func (r *Reconciler) save(ctx context.Context, profile *models.UserProfile, item *models.LibraryItem, data *models.UserData, kind string) {
	if err := r.store.Save(ctx, profile.LinkedUserID, item.UserDataKey(), data); err != nil {
		logging.Warn().Err(err).Str("item", item.Name).Msg("reconcile: play-state write failed")
		metrics.ReconcileSoftFailures.WithLabelValues(kind, "save").Inc()
		return
	}
	metrics.ReconcileItemsUpdated.WithLabelValues(kind).Inc()
}

// showIndex looks up show snapshots by external id, primary (TVDB) first,
// IMDB as fallback.
type showIndex struct {
	byTVDB map[string]*models.ShowSnapshot
	byIMDB map[string]*models.ShowSnapshot
}

func indexShows(shows []models.ShowSnapshot) *showIndex {
	idx := &showIndex{
		byTVDB: make(map[string]*models.ShowSnapshot, len(shows)),
		byIMDB: make(map[string]*models.ShowSnapshot, len(shows)),
	}
	for i := range shows {
		if shows[i].TVDBID != "" {
			idx.byTVDB[shows[i].TVDBID] = &shows[i]
		}
		if shows[i].IMDBID != "" {
			idx.byIMDB[shows[i].IMDBID] = &shows[i]
		}
	}
	return idx
}

func (idx *showIndex) find(series *models.SeriesRef) *models.ShowSnapshot {
	if series == nil {
		return nil
	}
	if series.Providers.TVDB != "" {
		if show, ok := idx.byTVDB[series.Providers.TVDB]; ok {
			return show
		}
	}
	if series.Providers.IMDB != "" {
		if show, ok := idx.byIMDB[series.Providers.IMDB]; ok {
			return show
		}
	}
	return nil
}

func report(progress func(float64), fraction float64) {
	if progress != nil {
		progress(fraction)
	}
}
