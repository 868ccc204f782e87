// Scrobblarr - Trakt Watch-State and Collection Sync for Media Servers
// Copyright 2026 Scrobblarr Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scrobblarr/scrobblarr

// Package users resolves local media-server accounts to their linked
// remote profiles.
package users

import (
	"strings"

	"github.com/google/uuid"

	"github.com/scrobblarr/scrobblarr/internal/models"
)

// Directory maps local user identifiers to configured remote profiles.
// The profile list is fixed at construction; lookups are read-only and
// safe for concurrent use.
type Directory struct {
	profiles []models.UserProfile
}

// NewDirectory builds a directory over the configured profiles.
func NewDirectory(profiles []models.UserProfile) *Directory {
	return &Directory{profiles: profiles}
}

// Resolve returns the profile linked to the local user, or false when the
// user has no linked remote account. Unlinked users are an expected steady
// state, never an error: most events simply don't concern this component.
//
// Identifiers are compared as canonical UUIDs so hyphenation and case
// variations between host rendering styles cannot break the link. The
// first matching profile wins.
func (d *Directory) Resolve(localUserID string) (*models.UserProfile, bool) {
	key := canonicalID(localUserID)
	if key == "" {
		return nil, false
	}
	for i := range d.profiles {
		if canonicalID(d.profiles[i].LinkedUserID) == key {
			return &d.profiles[i], true
		}
	}
	return nil, false
}

// Profiles returns all linked profiles, for iteration by the scheduled
// sync passes.
func (d *Directory) Profiles() []models.UserProfile {
	return d.profiles
}

// canonicalID normalizes a UUID rendering, returning "" when the value is
// not a UUID at all.
func canonicalID(id string) string {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return ""
	}
	return parsed.String()
}
