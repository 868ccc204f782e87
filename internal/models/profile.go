// Scrobblarr - Trakt Watch-State and Collection Sync for Media Servers
// Copyright 2026 Scrobblarr Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scrobblarr/scrobblarr

package models

import (
	"path"
	"strings"
)

// UserProfile links a host user to a trakt.tv account. Profiles are
// created through configuration and read-only at runtime.
type UserProfile struct {
	// LinkedUserID is the host user identity this profile belongs to,
	// stored as a UUID in whatever textual rendering the operator used.
	LinkedUserID string `koanf:"linked_user_id" json:"linked_user_id"`

	// Username and PasswordHash authenticate against the remote service.
	Username     string `koanf:"username" json:"username"`
	PasswordHash string `koanf:"password_hash" json:"-"`

	// Locations are the filesystem path prefixes under which local media
	// is eligible for synchronization.
	Locations []string `koanf:"locations" json:"locations"`

	// AdvancedRating selects the 1-10 rating mode reported by the remote
	// account settings instead of the simple love/hate toggle.
	AdvancedRating bool `koanf:"advanced_rating" json:"advanced_rating"`
}

// Monitors reports whether the given item path is contained under one of
// the profile's monitored locations. Containment is checked on path
// segment boundaries: "/media" monitors "/media/show" but not "/mediaextra".
// Paths come from the media server, which may run on a different OS than
// this process, so both separator styles are normalized before comparing.
func (p *UserProfile) Monitors(itemPath string) bool {
	cleaned := normalizePath(itemPath)
	if cleaned == "" {
		return false
	}
	for _, loc := range p.Locations {
		root := normalizePath(loc)
		if root == "" {
			continue
		}
		if cleaned == root || strings.HasPrefix(cleaned, root+"/") {
			return true
		}
	}
	return false
}

// normalizePath maps both separator styles onto forward slashes and
// resolves dot segments, independent of the local OS.
func normalizePath(p string) string {
	if p == "" {
		return ""
	}
	return path.Clean(strings.ReplaceAll(p, "\\", "/"))
}
