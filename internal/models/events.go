// Scrobblarr - Trakt Watch-State and Collection Sync for Media Servers
// Copyright 2026 Scrobblarr Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scrobblarr/scrobblarr

package models

// EventType classifies a library-change event.
type EventType int

const (
	// EventAdd reports an item newly added to the local library.
	EventAdd EventType = iota
	// EventRemove reports an item removed from the local library.
	EventRemove
	// EventUpdate reports metadata changes. The remote service has no
	// partial-update verb for collection membership, so Update never
	// produces a remote call.
	EventUpdate
)

// String returns the lowercase event name for logging and metrics labels.
func (e EventType) String() string {
	switch e {
	case EventAdd:
		return "add"
	case EventRemove:
		return "remove"
	case EventUpdate:
		return "update"
	default:
		return "unknown"
	}
}

// PlaybackEvent is emitted by the host on playback start, progress and stop.
type PlaybackEvent struct {
	UserID        string       `json:"user_id"`
	Item          *LibraryItem `json:"item"`
	PositionTicks int64        `json:"position_ticks"`

	// PlayedToCompletion is only meaningful on stop events. Nil means the
	// host did not report a completion signal and the locally recorded
	// play-state decides scrobble vs. cancel.
	PlayedToCompletion *bool `json:"played_to_completion,omitempty"`
}

// ItemChangeEvent is emitted by the host when a library item is added,
// removed or updated.
type ItemChangeEvent struct {
	Item  *LibraryItem `json:"item"`
	Event EventType    `json:"event"`
}

// UserDataSavedEvent is emitted by the host after per-user play-state or
// rating data is written.
type UserDataSavedEvent struct {
	UserID string       `json:"user_id"`
	Item   *LibraryItem `json:"item"`
	Reason string       `json:"reason"`

	// Rating is present when the save was triggered by a user rating the
	// item, scaled 0-10.
	Rating *int `json:"rating,omitempty"`
}
