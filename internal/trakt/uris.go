// Scrobblarr - Trakt Watch-State and Collection Sync for Media Servers
// Copyright 2026 Scrobblarr Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scrobblarr/scrobblarr

package trakt

// Endpoint paths, relative to the configured base URL. The path doubles as
// the "operation" label on the remote-call metrics.
const (
	uriAccountTest     = "/account/test"
	uriAccountSettings = "/account/settings"

	uriMovieWatching       = "/movie/watching"
	uriMovieScrobble       = "/movie/scrobble"
	uriMovieCancelWatching = "/movie/cancelwatching"

	uriShowWatching       = "/show/watching"
	uriShowScrobble       = "/show/scrobble"
	uriShowCancelWatching = "/show/cancelwatching"

	uriMovieLibrary         = "/movie/library"
	uriMovieUnlibrary       = "/movie/unlibrary"
	uriShowEpisodeLibrary   = "/show/episode/library"
	uriShowEpisodeUnlibrary = "/show/episode/unlibrary"

	uriRateMovie   = "/rate/movie"
	uriRateShow    = "/rate/show"
	uriRateEpisode = "/rate/episode"

	uriCommentMovie   = "/comment/movie"
	uriCommentShow    = "/comment/show"
	uriCommentEpisode = "/comment/episode"

	uriLibraryMoviesAll       = "/user/library/movies/all"
	uriLibraryShowsCollection = "/user/library/shows/collection"
	uriLibraryShowsWatched    = "/user/library/shows/watched"

	uriRecommendMovies = "/recommendations/movies"
	uriRecommendShows  = "/recommendations/shows"
)
