// Scrobblarr - Trakt Watch-State and Collection Sync for Media Servers
// Copyright 2026 Scrobblarr Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scrobblarr/scrobblarr

package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/scrobblarr/scrobblarr/internal/metrics"
	"github.com/scrobblarr/scrobblarr/internal/models"
	"github.com/scrobblarr/scrobblarr/internal/trakt"
	"github.com/scrobblarr/scrobblarr/internal/users"
)

const (
	aliceID = "8c9d64c0-61c6-4cfa-9f4c-a379f3b1b6a6"
	bobID   = "0f8fad5b-d9cb-469f-a165-70867728950e"
)

type fakeClient struct {
	trakt.Client

	mu            sync.Mutex
	movies        map[string][]models.MovieSnapshot // keyed by username
	collection    map[string][]models.ShowSnapshot
	watched       map[string][]models.ShowSnapshot
	failMoviesFor string
}

func (f *fakeClient) GetAllMovies(_ context.Context, profile *models.UserProfile) ([]models.MovieSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if profile.Username == f.failMoviesFor {
		return nil, errors.New("connection refused")
	}
	return f.movies[profile.Username], nil
}

func (f *fakeClient) GetCollectionShows(_ context.Context, profile *models.UserProfile) ([]models.ShowSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.collection[profile.Username], nil
}

func (f *fakeClient) GetWatchedShows(_ context.Context, profile *models.UserProfile) ([]models.ShowSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.watched[profile.Username], nil
}

type fakeLibrary struct {
	items []*models.LibraryItem
}

func (f *fakeLibrary) RecursiveItems(_ context.Context) ([]*models.LibraryItem, error) {
	return f.items, nil
}

func (f *fakeLibrary) ItemByID(_ context.Context, id string) (*models.LibraryItem, error) {
	for _, item := range f.items {
		if item.ID == id {
			return item, nil
		}
	}
	return nil, nil
}

type memStore struct {
	mu    sync.Mutex
	data  map[string]models.UserData
	saves map[string]int
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]models.UserData), saves: make(map[string]int)}
}

func (m *memStore) Get(_ context.Context, userID, itemKey string) (*models.UserData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data := m.data[userID+"|"+itemKey]
	return &data, nil
}

func (m *memStore) Save(_ context.Context, userID, itemKey string, data *models.UserData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[userID+"|"+itemKey] = *data
	m.saves[userID+"|"+itemKey]++
	return nil
}

func (m *memStore) get(userID, itemKey string) (models.UserData, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[userID+"|"+itemKey], m.saves[userID+"|"+itemKey]
}

func singleUserDirectory() *users.Directory {
	return users.NewDirectory([]models.UserProfile{{
		Username:     "alice",
		LinkedUserID: aliceID,
		Locations:    []string{"/media"},
	}})
}

func localMovie(id, imdb, tmdb string) *models.LibraryItem {
	return &models.LibraryItem{
		ID:        id,
		Kind:      models.KindMovie,
		Name:      id,
		Providers: models.ProviderIDs{IMDB: imdb, TMDB: tmdb},
	}
}

func localEpisode(id, tvdb string, season, ep int) *models.LibraryItem {
	return &models.LibraryItem{
		ID:      id,
		Kind:    models.KindEpisode,
		Season:  season,
		Episode: ep,
		Series: &models.SeriesRef{
			ID:        "series-" + tvdb,
			Name:      "Series " + tvdb,
			Providers: models.ProviderIDs{TVDB: tvdb},
		},
	}
}

func TestMovieRemotePlaysWinOverLocal(t *testing.T) {
	client := &fakeClient{movies: map[string][]models.MovieSnapshot{
		"alice": {{Title: "Heat", IMDBID: "tt0113277", Plays: 3, LastPlayed: 1700000000}},
	}}
	store := newMemStore()
	item := localMovie("movie-1", "tt0113277", "")
	localLastPlayed := time.Unix(1600000000, 0)
	store.data[aliceID+"|movie-1"] = models.UserData{Played: true, PlayCount: 1, LastPlayed: localLastPlayed}

	r := NewReconciler(client, singleUserDirectory(), &fakeLibrary{items: []*models.LibraryItem{item}}, store)
	if err := r.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	data, saves := store.get(aliceID, "movie-1")
	if saves != 1 {
		t.Fatalf("saves = %d, want 1", saves)
	}
	if !data.Played || data.PlayCount != 3 {
		t.Errorf("want played with count 3, got %+v", data)
	}
	if !data.LastPlayed.Equal(models.ConvertEpoch(1700000000)) {
		t.Errorf("last played should take the later remote time, got %v", data.LastPlayed)
	}
}

func TestMovieKeepsHigherLocalPlayCountAndLaterLocalTime(t *testing.T) {
	client := &fakeClient{movies: map[string][]models.MovieSnapshot{
		"alice": {{Title: "Heat", IMDBID: "tt0113277", Plays: 2, LastPlayed: 1600000000}},
	}}
	store := newMemStore()
	localLastPlayed := time.Unix(1700000000, 0)
	store.data[aliceID+"|movie-1"] = models.UserData{Played: true, PlayCount: 5, LastPlayed: localLastPlayed}
	item := localMovie("movie-1", "tt0113277", "")

	r := NewReconciler(client, singleUserDirectory(), &fakeLibrary{items: []*models.LibraryItem{item}}, store)
	if err := r.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	data, _ := store.get(aliceID, "movie-1")
	if data.PlayCount != 5 {
		t.Errorf("play count = %d, want local max 5", data.PlayCount)
	}
	if !data.LastPlayed.Equal(localLastPlayed) {
		t.Errorf("later local last-played must win, got %v", data.LastPlayed)
	}
}

func TestMovieZeroPlaysMarksUnwatched(t *testing.T) {
	client := &fakeClient{movies: map[string][]models.MovieSnapshot{
		"alice": {{Title: "Heat", IMDBID: "tt0113277", Plays: 0, InCollection: true}},
	}}
	store := newMemStore()
	store.data[aliceID+"|movie-1"] = models.UserData{Played: true, PlayCount: 4}
	item := localMovie("movie-1", "tt0113277", "")

	r := NewReconciler(client, singleUserDirectory(), &fakeLibrary{items: []*models.LibraryItem{item}}, store)
	if err := r.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	data, _ := store.get(aliceID, "movie-1")
	if data.Played || data.PlayCount != 0 {
		t.Errorf("zero remote plays must mark unwatched, got %+v", data)
	}
}

func TestMovieUnmatchedIsUntouched(t *testing.T) {
	client := &fakeClient{movies: map[string][]models.MovieSnapshot{
		"alice": {{Title: "Other", IMDBID: "tt9999999", Plays: 1}},
	}}
	store := newMemStore()
	store.data[aliceID+"|movie-1"] = models.UserData{Played: true, PlayCount: 2}
	item := localMovie("movie-1", "tt0113277", "")

	r := NewReconciler(client, singleUserDirectory(), &fakeLibrary{items: []*models.LibraryItem{item}}, store)
	if err := r.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	data, saves := store.get(aliceID, "movie-1")
	if saves != 0 {
		t.Fatalf("unmatched movie must not be saved, saves = %d", saves)
	}
	if !data.Played || data.PlayCount != 2 {
		t.Errorf("unmatched movie state changed: %+v", data)
	}
}

func TestMovieMatchesByTMDBFallback(t *testing.T) {
	client := &fakeClient{movies: map[string][]models.MovieSnapshot{
		"alice": {{Title: "Heat", TMDBID: "949", Plays: 1}},
	}}
	store := newMemStore()
	item := localMovie("movie-1", "", "949")

	r := NewReconciler(client, singleUserDirectory(), &fakeLibrary{items: []*models.LibraryItem{item}}, store)
	if err := r.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	data, _ := store.get(aliceID, "movie-1")
	if !data.Played {
		t.Errorf("TMDB fallback match should mark played, got %+v", data)
	}
}

func TestEpisodeWatchedAndUnwatched(t *testing.T) {
	client := &fakeClient{
		collection: map[string][]models.ShowSnapshot{
			"alice": {{Title: "House", TVDBID: "73255", Seasons: []models.SeasonSnapshot{{Season: 1, Episodes: []int{1, 2}}}}},
		},
		watched: map[string][]models.ShowSnapshot{
			"alice": {{Title: "House", TVDBID: "73255", Seasons: []models.SeasonSnapshot{{Season: 1, Episodes: []int{1}}}}},
		},
	}
	store := newMemStore()
	store.data[aliceID+"|ep-2"] = models.UserData{Played: true, PlayCount: 2, LastPlayed: time.Unix(1700000000, 0)}

	items := []*models.LibraryItem{
		localEpisode("ep-1", "73255", 1, 1),
		localEpisode("ep-2", "73255", 1, 2),
	}
	r := NewReconciler(client, singleUserDirectory(), &fakeLibrary{items: items}, store)
	if err := r.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	watched, _ := store.get(aliceID, "ep-1")
	if !watched.Played {
		t.Errorf("episode in watched snapshot must be played, got %+v", watched)
	}

	unwatched, _ := store.get(aliceID, "ep-2")
	if unwatched.Played || unwatched.PlayCount != 0 || !unwatched.LastPlayed.IsZero() {
		t.Errorf("collected-but-unwatched episode must be fully cleared, got %+v", unwatched)
	}
}

func TestEpisodeUnknownToCollectionIsUntouched(t *testing.T) {
	client := &fakeClient{
		collection: map[string][]models.ShowSnapshot{
			"alice": {{Title: "House", TVDBID: "73255", Seasons: []models.SeasonSnapshot{{Season: 1, Episodes: []int{1}}}}},
		},
		watched: map[string][]models.ShowSnapshot{"alice": {}},
	}
	store := newMemStore()
	store.data[aliceID+"|ep-unknown-season"] = models.UserData{Played: true}
	store.data[aliceID+"|ep-unknown-episode"] = models.UserData{Played: true}
	store.data[aliceID+"|ep-unknown-show"] = models.UserData{Played: true}

	items := []*models.LibraryItem{
		localEpisode("ep-unknown-season", "73255", 2, 1),
		localEpisode("ep-unknown-episode", "73255", 1, 9),
		localEpisode("ep-unknown-show", "99999", 1, 1),
	}
	r := NewReconciler(client, singleUserDirectory(), &fakeLibrary{items: items}, store)
	if err := r.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	for _, key := range []string{"ep-unknown-season", "ep-unknown-episode", "ep-unknown-show"} {
		data, saves := store.get(aliceID, key)
		if saves != 0 || !data.Played {
			t.Errorf("%s: remote ignorance must not alter local state (saves=%d, data=%+v)", key, saves, data)
		}
	}
}

func TestItemsWithoutUsableIDsAreSkipped(t *testing.T) {
	client := &fakeClient{movies: map[string][]models.MovieSnapshot{"alice": {{Title: "Heat", IMDBID: "tt1", Plays: 1}}}}
	store := newMemStore()

	items := []*models.LibraryItem{
		localMovie("movie-bare", "", ""),
		{ID: "ep-bare", Kind: models.KindEpisode, Season: 1, Episode: 1, Series: &models.SeriesRef{Name: "No IDs"}},
	}
	r := NewReconciler(client, singleUserDirectory(), &fakeLibrary{items: items}, store)
	if err := r.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if _, saves := store.get(aliceID, "movie-bare"); saves != 0 {
		t.Error("movie without ids must be skipped")
	}
	if _, saves := store.get(aliceID, "ep-bare"); saves != 0 {
		t.Error("episode without series ids must be skipped")
	}
}

func TestSnapshotFailureIsolatedPerUser(t *testing.T) {
	directory := users.NewDirectory([]models.UserProfile{
		{Username: "alice", LinkedUserID: aliceID, Locations: []string{"/media"}},
		{Username: "bob", LinkedUserID: bobID, Locations: []string{"/media"}},
	})
	client := &fakeClient{
		failMoviesFor: "alice",
		movies: map[string][]models.MovieSnapshot{
			"bob": {{Title: "Heat", IMDBID: "tt0113277", Plays: 1}},
		},
	}
	store := newMemStore()
	item := localMovie("movie-1", "tt0113277", "")

	r := NewReconciler(client, directory, &fakeLibrary{items: []*models.LibraryItem{item}}, store)
	if err := r.Run(context.Background(), nil); err != nil {
		t.Fatalf("one user's fetch failure must not fail the pass: %v", err)
	}

	if _, saves := store.get(aliceID, "movie-1"); saves != 0 {
		t.Error("alice's reconciliation should have been aborted")
	}
	if data, saves := store.get(bobID, "movie-1"); saves != 1 || !data.Played {
		t.Errorf("bob's reconciliation should have completed, saves=%d data=%+v", saves, data)
	}
}

// failingReadStore rejects every read while keeping writes observable.
type failingReadStore struct {
	*memStore
}

func (f *failingReadStore) Get(context.Context, string, string) (*models.UserData, error) {
	return nil, errors.New("disk i/o error")
}

func TestPlayStateReadFailureCountedSeparately(t *testing.T) {
	client := &fakeClient{movies: map[string][]models.MovieSnapshot{
		"alice": {{Title: "Heat", IMDBID: "tt0113277", Plays: 1}},
	}}
	store := &failingReadStore{memStore: newMemStore()}
	item := localMovie("movie-1", "tt0113277", "")

	readBefore := testutil.ToFloat64(metrics.ReconcileSoftFailures.WithLabelValues("movie", "read"))
	saveBefore := testutil.ToFloat64(metrics.ReconcileSoftFailures.WithLabelValues("movie", "save"))

	r := NewReconciler(client, singleUserDirectory(), &fakeLibrary{items: []*models.LibraryItem{item}}, store)
	if err := r.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if _, saves := store.get(aliceID, "movie-1"); saves != 0 {
		t.Fatal("a failed read must not be followed by a save")
	}
	if got := testutil.ToFloat64(metrics.ReconcileSoftFailures.WithLabelValues("movie", "read")) - readBefore; got != 1 {
		t.Errorf("read soft-failure delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.ReconcileSoftFailures.WithLabelValues("movie", "save")) - saveBefore; got != 0 {
		t.Errorf("save soft-failure delta = %v, want 0", got)
	}
}

func TestRunHonoursCancellation(t *testing.T) {
	client := &fakeClient{movies: map[string][]models.MovieSnapshot{"alice": {}}}
	store := newMemStore()
	r := NewReconciler(client, singleUserDirectory(), &fakeLibrary{}, store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Run(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestProgressReachesOne(t *testing.T) {
	client := &fakeClient{movies: map[string][]models.MovieSnapshot{
		"alice": {{Title: "Heat", IMDBID: "tt0113277", Plays: 1}},
	}}
	store := newMemStore()
	item := localMovie("movie-1", "tt0113277", "")

	var last float64
	r := NewReconciler(client, singleUserDirectory(), &fakeLibrary{items: []*models.LibraryItem{item}}, store)
	if err := r.Run(context.Background(), func(f float64) { last = f }); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if last != 1 {
		t.Errorf("final progress = %v, want 1", last)
	}
}
