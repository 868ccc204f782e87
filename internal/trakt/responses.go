// Scrobblarr - Trakt Watch-State and Collection Sync for Media Servers
// Copyright 2026 Scrobblarr Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scrobblarr/scrobblarr

package trakt

import "github.com/scrobblarr/scrobblarr/internal/models"

// Response is the status envelope returned by every write endpoint.
type Response struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// OK reports whether the remote accepted the request.
func (r *Response) OK() bool {
	return r.Status == "success"
}

// Rating modes reported by the account settings.
const (
	RatingModeSimple   = "simple"
	RatingModeAdvanced = "advanced"
)

// AccountSettings is the remote account profile returned by the
// settings endpoint.
type AccountSettings struct {
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Joined   int64  `json:"joined"`
	About    string `json:"about"`

	Viewing struct {
		Ratings struct {
			Mode string `json:"mode"`
		} `json:"ratings"`
	} `json:"viewing"`
}

// RatingMode returns the account's configured rating mode, "simple" or
// "advanced".
func (s *AccountSettings) RatingMode() string {
	return s.Viewing.Ratings.Mode
}

// AdvancedRatings reports whether the account rates on the 1-10 scale
// instead of the love/hate toggle.
func (s *AccountSettings) AdvancedRatings() bool {
	return s.RatingMode() == RatingModeAdvanced
}

// RecommendedMovie is one entry of a movie recommendation response.
type RecommendedMovie struct {
	Title    string `json:"title"`
	Year     int    `json:"year"`
	IMDBID   string `json:"imdb_id"`
	TMDBID   string `json:"tmdb_id"`
	Overview string `json:"overview"`
}

// RecommendedShow is one entry of a show recommendation response.
type RecommendedShow struct {
	Title    string `json:"title"`
	Year     int    `json:"year"`
	IMDBID   string `json:"imdb_id"`
	TVDBID   string `json:"tvdb_id"`
	Overview string `json:"overview"`
}

// movieRecord is the wire form of one movie in the user's remote library.
type movieRecord struct {
	Title        string `json:"title"`
	Year         int    `json:"year"`
	IMDBID       string `json:"imdb_id"`
	TMDBID       string `json:"tmdb_id"`
	Plays        int    `json:"plays"`
	LastPlayed   int64  `json:"last_played"`
	InCollection bool   `json:"in_collection"`
}

func (m *movieRecord) toSnapshot() models.MovieSnapshot {
	return models.MovieSnapshot{
		Title:        m.Title,
		Year:         m.Year,
		IMDBID:       m.IMDBID,
		TMDBID:       m.TMDBID,
		Plays:        m.Plays,
		LastPlayed:   m.LastPlayed,
		InCollection: m.InCollection,
	}
}

// showRecord is the wire form of one show in the collection/watched
// library listings.
type showRecord struct {
	Title   string         `json:"title"`
	Year    int            `json:"year"`
	IMDBID  string         `json:"imdb_id"`
	TVDBID  string         `json:"tvdb_id"`
	Seasons []seasonRecord `json:"seasons"`
}

type seasonRecord struct {
	Season   int   `json:"season"`
	Episodes []int `json:"episodes"`
}

func (s *showRecord) toSnapshot() models.ShowSnapshot {
	seasons := make([]models.SeasonSnapshot, 0, len(s.Seasons))
	for _, season := range s.Seasons {
		seasons = append(seasons, models.SeasonSnapshot{
			Season:   season.Season,
			Episodes: season.Episodes,
		})
	}
	return models.ShowSnapshot{
		Title:   s.Title,
		Year:    s.Year,
		IMDBID:  s.IMDBID,
		TVDBID:  s.TVDBID,
		Seasons: seasons,
	}
}
