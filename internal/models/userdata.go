// Scrobblarr - Trakt Watch-State and Collection Sync for Media Servers
// Copyright 2026 Scrobblarr Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scrobblarr/scrobblarr

package models

import "time"

// UserData is the per-user play-state the host keeps for a library item.
type UserData struct {
	Played     bool      `json:"played"`
	PlayCount  int       `json:"play_count"`
	LastPlayed time.Time `json:"last_played"`
}
