// Scrobblarr - Trakt Watch-State and Collection Sync for Media Servers
// Copyright 2026 Scrobblarr Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scrobblarr/scrobblarr

package mediaserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/scrobblarr/scrobblarr/internal/config"
	"github.com/scrobblarr/scrobblarr/internal/models"
)

const itemsPayload = `{
	"Items": [
		{
			"Id": "series-1",
			"Name": "The Wire",
			"Type": "Series",
			"ProductionYear": 2002,
			"ProviderIds": {"Tvdb": "79126", "Imdb": "tt0306414"}
		},
		{
			"Id": "ep-1",
			"Name": "The Target",
			"Type": "Episode",
			"Path": "/media/tv/the-wire/s01e01.mkv",
			"SeriesId": "series-1",
			"SeriesName": "The Wire",
			"ParentIndexNumber": 1,
			"IndexNumber": 1,
			"RunTimeTicks": 37200000000
		},
		{
			"Id": "movie-1",
			"Name": "Heat",
			"Type": "Movie",
			"Path": "/media/movies/heat.mkv",
			"ProductionYear": 1995,
			"RunTimeTicks": 102000000000,
			"ProviderIds": {"Imdb": "tt0113277", "Tmdb": "949"}
		}
	],
	"TotalRecordCount": 3
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(&config.MediaServerConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Timeout: 5 * time.Second,
	})
}

func TestRecursiveItemsJoinsSeriesProviders(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Items" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("api_key") != "test-key" {
			t.Error("api key missing from query")
		}
		if r.URL.Query().Get("Recursive") != "true" {
			t.Error("recursive flag missing")
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(itemsPayload)); err != nil {
			t.Error(err)
		}
	})

	items, err := client.RecursiveItems(context.Background())
	if err != nil {
		t.Fatalf("RecursiveItems failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want movie and episode only", len(items))
	}

	byID := map[string]*models.LibraryItem{}
	for _, item := range items {
		byID[item.ID] = item
	}
	if byID["series-1"] != nil {
		t.Error("series containers must not appear in the listing")
	}

	episode := byID["ep-1"]
	if episode == nil || episode.Kind != models.KindEpisode {
		t.Fatalf("episode missing or mis-typed: %+v", episode)
	}
	if episode.Season != 1 || episode.Episode != 1 {
		t.Errorf("episode numbering = s%de%d", episode.Season, episode.Episode)
	}
	if episode.Series == nil || episode.Series.Providers.TVDB != "79126" {
		t.Errorf("episode series ref did not inherit provider ids: %+v", episode.Series)
	}
	if episode.RunTime != 62*time.Minute {
		t.Errorf("episode runtime = %s", episode.RunTime)
	}

	movie := byID["movie-1"]
	if movie == nil || movie.Kind != models.KindMovie {
		t.Fatalf("movie missing or mis-typed: %+v", movie)
	}
	if movie.Providers.IMDB != "tt0113277" || movie.Providers.TMDB != "949" {
		t.Errorf("movie providers = %+v", movie.Providers)
	}
	if movie.Year != 1995 || movie.RunTime != 170*time.Minute {
		t.Errorf("movie year = %d runtime = %s", movie.Year, movie.RunTime)
	}
}

func TestItemByIDUnknownReturnsNil(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Items": [], "TotalRecordCount": 0}`))
	})

	item, err := client.ItemByID(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("ItemByID failed: %v", err)
	}
	if item != nil {
		t.Errorf("got %+v, want nil for unknown id", item)
	}
}

func TestItemByIDFetchesEpisodeSeries(t *testing.T) {
	requests := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("Ids") {
		case "ep-1":
			_, _ = w.Write([]byte(`{"Items": [{
				"Id": "ep-1", "Name": "The Target", "Type": "Episode",
				"SeriesId": "series-1", "SeriesName": "The Wire",
				"ParentIndexNumber": 1, "IndexNumber": 1
			}], "TotalRecordCount": 1}`))
		case "series-1":
			_, _ = w.Write([]byte(`{"Items": [{
				"Id": "series-1", "Name": "The Wire", "Type": "Series",
				"ProviderIds": {"Tvdb": "79126"}
			}], "TotalRecordCount": 1}`))
		default:
			t.Errorf("unexpected Ids query: %s", r.URL.Query().Get("Ids"))
		}
	})

	item, err := client.ItemByID(context.Background(), "ep-1")
	if err != nil {
		t.Fatalf("ItemByID failed: %v", err)
	}
	if requests != 2 {
		t.Errorf("made %d requests, want item + series lookup", requests)
	}
	if item.Series == nil || item.Series.Providers.TVDB != "79126" {
		t.Errorf("series providers not resolved: %+v", item.Series)
	}
}

func TestItemsErrorStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})

	if _, err := client.RecursiveItems(context.Background()); err == nil {
		t.Fatal("want error on non-200 response")
	}
}

func TestProviderKeyNormalization(t *testing.T) {
	item := Item{
		ID:   "movie-1",
		Type: "Movie",
		ProviderIDs: map[string]string{
			"IMDB": "tt1",
			"tmdb": "2",
			"Tvdb": "3",
		},
	}
	got := item.ToLibraryItem(nil)
	if got.Providers.IMDB != "tt1" || got.Providers.TMDB != "2" || got.Providers.TVDB != "3" {
		t.Errorf("providers = %+v", got.Providers)
	}
}
