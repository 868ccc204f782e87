// Scrobblarr - Trakt Watch-State and Collection Sync for Media Servers
// Copyright 2026 Scrobblarr Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scrobblarr/scrobblarr

package mediaserver

import (
	"time"

	"github.com/scrobblarr/scrobblarr/internal/models"
)

// Item is the media server's wire representation of a library item, as
// returned by the Items endpoints and carried in webhook payloads.
type Item struct {
	ID        string `json:"Id"`
	Name      string `json:"Name"`
	Type      string `json:"Type"` // "Movie", "Episode", "Series"
	Path      string `json:"Path,omitempty"`
	MediaType string `json:"MediaType,omitempty"`

	// Episode fields.
	SeriesID          string `json:"SeriesId,omitempty"`
	SeriesName        string `json:"SeriesName,omitempty"`
	IndexNumber       int    `json:"IndexNumber,omitempty"`       // episode number
	ParentIndexNumber int    `json:"ParentIndexNumber,omitempty"` // season number

	RunTimeTicks   int64             `json:"RunTimeTicks,omitempty"` // 100ns units
	ProductionYear int               `json:"ProductionYear,omitempty"`
	ProviderIDs    map[string]string `json:"ProviderIds,omitempty"`
}

// Kind maps the wire Type to the internal media kind.
func (i *Item) Kind() models.MediaKind {
	switch i.Type {
	case "Movie":
		return models.KindMovie
	case "Episode":
		return models.KindEpisode
	case "Series":
		return models.KindSeries
	default:
		return models.KindUnknown
	}
}

// providerIDs normalizes the server's provider map. Keys vary in case
// between server versions.
func (i *Item) providerIDs() models.ProviderIDs {
	var ids models.ProviderIDs
	for key, value := range i.ProviderIDs {
		switch key {
		case "Imdb", "IMDB", "imdb":
			ids.IMDB = value
		case "Tmdb", "TMDB", "tmdb":
			ids.TMDB = value
		case "Tvdb", "TVDB", "tvdb":
			ids.TVDB = value
		}
	}
	return ids
}

// ToLibraryItem converts the wire item. series supplies the episode's
// series back-reference; nil builds one from the item's own series fields,
// which carry no provider ids.
func (i *Item) ToLibraryItem(series *models.SeriesRef) *models.LibraryItem {
	item := &models.LibraryItem{
		ID:        i.ID,
		Kind:      i.Kind(),
		Name:      i.Name,
		Path:      i.Path,
		Year:      i.ProductionYear,
		RunTime:   time.Duration(i.RunTimeTicks) * 100 * time.Nanosecond,
		Providers: i.providerIDs(),
	}
	if item.Kind == models.KindEpisode {
		item.Season = i.ParentIndexNumber
		item.Episode = i.IndexNumber
		if series != nil {
			item.Series = series
		} else if i.SeriesID != "" || i.SeriesName != "" {
			item.Series = &models.SeriesRef{ID: i.SeriesID, Name: i.SeriesName}
		}
	}
	return item
}

// SeriesRef builds the back-reference other items use to point at this
// series item.
func (i *Item) SeriesRef() *models.SeriesRef {
	return &models.SeriesRef{
		ID:        i.ID,
		Name:      i.Name,
		Year:      i.ProductionYear,
		Providers: i.providerIDs(),
	}
}
