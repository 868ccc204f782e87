// Scrobblarr - Trakt Watch-State and Collection Sync for Media Servers
// Copyright 2026 Scrobblarr Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scrobblarr/scrobblarr

package models

// MovieSnapshot is one remote movie record from the bulk library query.
type MovieSnapshot struct {
	Title        string `json:"title"`
	Year         int    `json:"year"`
	IMDBID       string `json:"imdb_id"`
	TMDBID       string `json:"tmdb_id"`
	Plays        int    `json:"plays"`
	LastPlayed   int64  `json:"last_played"` // epoch seconds, 0 when never played
	InCollection bool   `json:"in_collection"`
}

// Watched reports whether the remote side considers the movie seen.
func (m *MovieSnapshot) Watched() bool {
	return m.Plays > 0
}

// SeasonSnapshot lists the episode numbers the remote service knows for
// one season of a show.
type SeasonSnapshot struct {
	Season   int   `json:"season"`
	Episodes []int `json:"episodes"`
}

// ShowSnapshot is one remote show membership record, used for both the
// collection and the watched snapshot.
type ShowSnapshot struct {
	Title   string           `json:"title"`
	Year    int              `json:"year"`
	IMDBID  string           `json:"imdb_id"`
	TVDBID  string           `json:"tvdb_id"`
	Seasons []SeasonSnapshot `json:"seasons"`
}

// FindSeason returns the season entry with the given number, or nil.
func (s *ShowSnapshot) FindSeason(season int) *SeasonSnapshot {
	for i := range s.Seasons {
		if s.Seasons[i].Season == season {
			return &s.Seasons[i]
		}
	}
	return nil
}

// Contains reports whether the season entry lists the episode number.
func (s *SeasonSnapshot) Contains(episode int) bool {
	for _, e := range s.Episodes {
		if e == episode {
			return true
		}
	}
	return false
}

// HasEpisode reports whether the show snapshot lists the season/episode pair.
func (s *ShowSnapshot) HasEpisode(season, episode int) bool {
	sn := s.FindSeason(season)
	return sn != nil && sn.Contains(episode)
}
