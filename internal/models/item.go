// Scrobblarr - Trakt Watch-State and Collection Sync for Media Servers
// Copyright 2026 Scrobblarr Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scrobblarr/scrobblarr

// Package models defines the shared data model: library items, user
// profiles, play-state records, host events and remote snapshots.
package models

import "time"

// MediaKind discriminates the LibraryItem variant.
type MediaKind int

const (
	KindUnknown MediaKind = iota
	KindMovie
	KindEpisode
	KindSeries
)

// String returns the lowercase kind name for logging and metrics labels.
func (k MediaKind) String() string {
	switch k {
	case KindMovie:
		return "movie"
	case KindEpisode:
		return "episode"
	case KindSeries:
		return "series"
	default:
		return "unknown"
	}
}

// ProviderIDs carries the external-database identifiers attached to a
// library item by the host's metadata providers. Empty string means the
// provider has no identifier for the item.
type ProviderIDs struct {
	IMDB string `json:"imdb,omitempty"`
	TMDB string `json:"tmdb,omitempty"`
	TVDB string `json:"tvdb,omitempty"`
}

// SeriesRef is the episode back-reference to its series. Episodes carry a
// copy rather than a pointer into the host library so an event payload is
// self-contained once serialized onto the bus.
type SeriesRef struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Year      int         `json:"year,omitempty"`
	Providers ProviderIDs `json:"providers"`
}

// LibraryItem is the local library entity as seen by the sync core.
// It is a tagged variant over movie/episode/series: Kind selects which
// fields are meaningful. Items are owned by the host library and treated
// as immutable here.
type LibraryItem struct {
	ID        string        `json:"id"`
	Kind      MediaKind     `json:"kind"`
	Name      string        `json:"name"`
	Path      string        `json:"path,omitempty"`
	Year      int           `json:"year,omitempty"` // 0 when unknown
	RunTime   time.Duration `json:"run_time,omitempty"`
	Providers ProviderIDs   `json:"providers"`

	// Episode-only fields.
	Series  *SeriesRef `json:"series,omitempty"`
	Season  int        `json:"season,omitempty"`
	Episode int        `json:"episode,omitempty"`
}

// UserDataKey returns the key under which the host stores per-user
// play-state for this item.
func (i *LibraryItem) UserDataKey() string {
	return i.ID
}

// HasMovieIDs reports whether the item carries an identifier usable for
// remote movie matching.
func (i *LibraryItem) HasMovieIDs() bool {
	return i.Providers.IMDB != "" || i.Providers.TMDB != ""
}

// HasSeriesIDs reports whether the episode's series carries an identifier
// usable for remote show matching.
func (i *LibraryItem) HasSeriesIDs() bool {
	return i.Series != nil && (i.Series.Providers.TVDB != "" || i.Series.Providers.IMDB != "")
}

// SeriesKey returns the identity used for contiguous-series grouping.
// Falls back to the series name when the host assigned no id.
func (i *LibraryItem) SeriesKey() string {
	if i.Series == nil {
		return ""
	}
	if i.Series.ID != "" {
		return i.Series.ID
	}
	return i.Series.Name
}

// ConvertEpoch converts a remote epoch-seconds timestamp to local time.
// All last-played comparisons go through this single conversion so the
// ordering of remote and local timestamps stays consistent.
func ConvertEpoch(sec int64) time.Time {
	return time.Unix(sec, 0)
}
