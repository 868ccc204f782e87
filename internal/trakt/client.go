// Scrobblarr - Trakt Watch-State and Collection Sync for Media Servers
// Copyright 2026 Scrobblarr Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scrobblarr/scrobblarr

// Package trakt implements the remote watch-state service client.
//
// All outbound calls share a weighted admission pool sized by
// TraktConfig.MaxConcurrent, so event bursts queue locally instead of
// opening unbounded simultaneous connections, and an optional token-bucket
// limiter paces calls below the remote rate limits. Requests are
// form-encoded POSTs authenticated per call with the profile's linked
// username and password hash.
package trakt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/scrobblarr/scrobblarr/internal/config"
	"github.com/scrobblarr/scrobblarr/internal/metrics"
	"github.com/scrobblarr/scrobblarr/internal/models"
)

var (
	// ErrInvalidArgument marks caller mistakes: nil profiles or items,
	// out-of-range ratings, unsupported event types. These are permanent
	// and must not be retried.
	ErrInvalidArgument = errors.New("trakt: invalid argument")

	// ErrStatusFailure marks a request the remote service received,
	// parsed and rejected. The transport worked; retrying the same
	// payload will fail again.
	ErrStatusFailure = errors.New("trakt: request rejected")
)

// MediaStatus selects the playback state transition reported to the remote.
type MediaStatus int

const (
	StatusWatching MediaStatus = iota
	StatusScrobble
	StatusCancelWatching
)

// String returns the lowercase status name for logging.
func (s MediaStatus) String() string {
	switch s {
	case StatusWatching:
		return "watching"
	case StatusScrobble:
		return "scrobble"
	case StatusCancelWatching:
		return "cancelwatching"
	default:
		return "unknown"
	}
}

// Client is the remote service surface the sync core depends on.
// Both HTTPClient and CircuitBreakerClient implement this interface.
type Client interface {
	AccountTest(ctx context.Context, profile *models.UserProfile) error
	GetUserAccount(ctx context.Context, profile *models.UserProfile) (*AccountSettings, error)

	UpdateMovieStatus(ctx context.Context, profile *models.UserProfile, movie *models.LibraryItem, status MediaStatus) error
	UpdateEpisodeStatus(ctx context.Context, profile *models.UserProfile, episode *models.LibraryItem, status MediaStatus) error

	UpdateMovieLibrary(ctx context.Context, profile *models.UserProfile, movies []*models.LibraryItem, event models.EventType) error
	UpdateEpisodeLibrary(ctx context.Context, profile *models.UserProfile, episodes []*models.LibraryItem, event models.EventType) error

	RateItem(ctx context.Context, profile *models.UserProfile, item *models.LibraryItem, rating int) error
	CommentItem(ctx context.Context, profile *models.UserProfile, item *models.LibraryItem, comment string, spoiler, review bool) error

	GetAllMovies(ctx context.Context, profile *models.UserProfile) ([]models.MovieSnapshot, error)
	GetCollectionShows(ctx context.Context, profile *models.UserProfile) ([]models.ShowSnapshot, error)
	GetWatchedShows(ctx context.Context, profile *models.UserProfile) ([]models.ShowSnapshot, error)

	GetRecommendedMovies(ctx context.Context, profile *models.UserProfile) ([]RecommendedMovie, error)
	GetRecommendedShows(ctx context.Context, profile *models.UserProfile) ([]RecommendedShow, error)
}

// Ensure HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)

// HTTPClient talks to the remote service over HTTP.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	pool       *semaphore.Weighted
	limiter    *rate.Limiter
}

// NewHTTPClient creates a client from the remote-service configuration.
func NewHTTPClient(cfg *config.TraktConfig) *HTTPClient {
	c := &HTTPClient{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		pool: semaphore.NewWeighted(cfg.MaxConcurrent),
	}
	if cfg.RatePerSecond > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return c
}

// AccountTest verifies the profile's linked credentials.
func (c *HTTPClient) AccountTest(ctx context.Context, profile *models.UserProfile) error {
	form, err := authForm(profile)
	if err != nil {
		return err
	}
	return c.postStatus(ctx, uriAccountTest, form)
}

// GetUserAccount fetches the remote account profile.
func (c *HTTPClient) GetUserAccount(ctx context.Context, profile *models.UserProfile) (*AccountSettings, error) {
	form, err := authForm(profile)
	if err != nil {
		return nil, err
	}
	settings := &AccountSettings{}
	if err := c.postJSON(ctx, uriAccountSettings, form, settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// UpdateMovieStatus reports a movie playback state transition.
func (c *HTTPClient) UpdateMovieStatus(ctx context.Context, profile *models.UserProfile, movie *models.LibraryItem, status MediaStatus) error {
	form, err := authForm(profile)
	if err != nil {
		return err
	}
	if movie == nil {
		return fmt.Errorf("%w: nil movie", ErrInvalidArgument)
	}

	form.Set("imdb_id", movie.Providers.IMDB)
	form.Set("tmdb_id", movie.Providers.TMDB)
	form.Set("title", movie.Name)
	form.Set("year", strconv.Itoa(movie.Year))
	form.Set("duration", strconv.Itoa(int(movie.RunTime.Minutes())))

	uri, err := movieStatusURI(status)
	if err != nil {
		return err
	}
	return c.postStatus(ctx, uri, form)
}

// UpdateEpisodeStatus reports an episode playback state transition.
func (c *HTTPClient) UpdateEpisodeStatus(ctx context.Context, profile *models.UserProfile, episode *models.LibraryItem, status MediaStatus) error {
	form, err := authForm(profile)
	if err != nil {
		return err
	}
	if episode == nil || episode.Series == nil {
		return fmt.Errorf("%w: episode without series", ErrInvalidArgument)
	}

	form.Set("imdb_id", episode.Series.Providers.IMDB)
	form.Set("tvdb_id", episode.Series.Providers.TVDB)
	form.Set("title", episode.Series.Name)
	form.Set("year", strconv.Itoa(episode.Series.Year))
	form.Set("season", strconv.Itoa(episode.Season))
	form.Set("episode", strconv.Itoa(episode.Episode))
	form.Set("duration", strconv.Itoa(int(episode.RunTime.Minutes())))

	uri, err := episodeStatusURI(status)
	if err != nil {
		return err
	}
	return c.postStatus(ctx, uri, form)
}

// UpdateMovieLibrary adds or removes a batch of movies in the remote
// collection. An empty batch is a successful no-op.
func (c *HTTPClient) UpdateMovieLibrary(ctx context.Context, profile *models.UserProfile, movies []*models.LibraryItem, event models.EventType) error {
	if len(movies) == 0 {
		return nil
	}
	form, err := authForm(profile)
	if err != nil {
		return err
	}

	uri := uriMovieLibrary
	if event == models.EventRemove {
		uri = uriMovieUnlibrary
	} else if event != models.EventAdd {
		return fmt.Errorf("%w: unsupported library event %s", ErrInvalidArgument, event)
	}

	payload := make([]map[string]any, 0, len(movies))
	for _, m := range movies {
		if m == nil {
			return fmt.Errorf("%w: nil movie in batch", ErrInvalidArgument)
		}
		payload = append(payload, map[string]any{
			"title":   m.Name,
			"year":    m.Year,
			"imdb_id": m.Providers.IMDB,
			"tmdb_id": m.Providers.TMDB,
		})
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode movie batch: %w", err)
	}
	form.Set("movies", string(encoded))

	return c.postStatus(ctx, uri, form)
}

// UpdateEpisodeLibrary adds or removes a batch of episodes in the remote
// collection. All episodes in the batch must belong to the same series;
// an empty batch is a successful no-op.
func (c *HTTPClient) UpdateEpisodeLibrary(ctx context.Context, profile *models.UserProfile, episodes []*models.LibraryItem, event models.EventType) error {
	if len(episodes) == 0 {
		return nil
	}
	form, err := authForm(profile)
	if err != nil {
		return err
	}

	uri := uriShowEpisodeLibrary
	if event == models.EventRemove {
		uri = uriShowEpisodeUnlibrary
	} else if event != models.EventAdd {
		return fmt.Errorf("%w: unsupported library event %s", ErrInvalidArgument, event)
	}

	first := episodes[0]
	if first == nil || first.Series == nil {
		return fmt.Errorf("%w: episode without series", ErrInvalidArgument)
	}
	seriesKey := first.SeriesKey()

	payload := make([]map[string]int, 0, len(episodes))
	for _, ep := range episodes {
		if ep == nil || ep.Series == nil {
			return fmt.Errorf("%w: episode without series", ErrInvalidArgument)
		}
		if ep.SeriesKey() != seriesKey {
			return fmt.Errorf("%w: mixed series in episode batch", ErrInvalidArgument)
		}
		payload = append(payload, map[string]int{
			"season":  ep.Season,
			"episode": ep.Episode,
		})
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode episode batch: %w", err)
	}

	form.Set("imdb_id", first.Series.Providers.IMDB)
	form.Set("tvdb_id", first.Series.Providers.TVDB)
	form.Set("title", first.Series.Name)
	form.Set("year", strconv.Itoa(first.Series.Year))
	form.Set("episodes", string(encoded))

	return c.postStatus(ctx, uri, form)
}

// RateItem sends a 1-10 rating for a movie, episode or series.
// Rating 0 removes an existing rating.
func (c *HTTPClient) RateItem(ctx context.Context, profile *models.UserProfile, item *models.LibraryItem, rating int) error {
	form, err := authForm(profile)
	if err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("%w: nil item", ErrInvalidArgument)
	}
	if rating < 0 || rating > 10 {
		return fmt.Errorf("%w: rating %d out of range", ErrInvalidArgument, rating)
	}

	uri, err := itemForm(form, item, uriRateMovie, uriRateEpisode, uriRateShow)
	if err != nil {
		return err
	}
	form.Set("rating", strconv.Itoa(rating))

	return c.postStatus(ctx, uri, form)
}

// CommentItem posts a comment (or a 200+ word review) on a movie, episode
// or series.
func (c *HTTPClient) CommentItem(ctx context.Context, profile *models.UserProfile, item *models.LibraryItem, comment string, spoiler, review bool) error {
	form, err := authForm(profile)
	if err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("%w: nil item", ErrInvalidArgument)
	}
	if comment == "" {
		return fmt.Errorf("%w: empty comment", ErrInvalidArgument)
	}

	uri, err := itemForm(form, item, uriCommentMovie, uriCommentEpisode, uriCommentShow)
	if err != nil {
		return err
	}
	form.Set("comment", comment)
	form.Set("spoiler", strconv.FormatBool(spoiler))
	form.Set("review", strconv.FormatBool(review))

	return c.postStatus(ctx, uri, form)
}

// GetAllMovies fetches the user's complete remote movie library, watched
// and unwatched, collected or not.
func (c *HTTPClient) GetAllMovies(ctx context.Context, profile *models.UserProfile) ([]models.MovieSnapshot, error) {
	form, err := authForm(profile)
	if err != nil {
		return nil, err
	}
	var records []movieRecord
	if err := c.postJSON(ctx, uriLibraryMoviesAll, form, &records); err != nil {
		return nil, err
	}
	snapshots := make([]models.MovieSnapshot, 0, len(records))
	for i := range records {
		snapshots = append(snapshots, records[i].toSnapshot())
	}
	return snapshots, nil
}

// GetCollectionShows fetches the shows in the user's remote collection.
func (c *HTTPClient) GetCollectionShows(ctx context.Context, profile *models.UserProfile) ([]models.ShowSnapshot, error) {
	return c.getShows(ctx, profile, uriLibraryShowsCollection)
}

// GetWatchedShows fetches the shows the user has watched episodes of.
func (c *HTTPClient) GetWatchedShows(ctx context.Context, profile *models.UserProfile) ([]models.ShowSnapshot, error) {
	return c.getShows(ctx, profile, uriLibraryShowsWatched)
}

func (c *HTTPClient) getShows(ctx context.Context, profile *models.UserProfile, uri string) ([]models.ShowSnapshot, error) {
	form, err := authForm(profile)
	if err != nil {
		return nil, err
	}
	var records []showRecord
	if err := c.postJSON(ctx, uri, form, &records); err != nil {
		return nil, err
	}
	snapshots := make([]models.ShowSnapshot, 0, len(records))
	for i := range records {
		snapshots = append(snapshots, records[i].toSnapshot())
	}
	return snapshots, nil
}

// GetRecommendedMovies fetches movie recommendations derived from the
// user's watch history.
func (c *HTTPClient) GetRecommendedMovies(ctx context.Context, profile *models.UserProfile) ([]RecommendedMovie, error) {
	form, err := authForm(profile)
	if err != nil {
		return nil, err
	}
	var recs []RecommendedMovie
	if err := c.postJSON(ctx, uriRecommendMovies, form, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// GetRecommendedShows fetches show recommendations derived from the
// user's watch history.
func (c *HTTPClient) GetRecommendedShows(ctx context.Context, profile *models.UserProfile) ([]RecommendedShow, error) {
	form, err := authForm(profile)
	if err != nil {
		return nil, err
	}
	var recs []RecommendedShow
	if err := c.postJSON(ctx, uriRecommendShows, form, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// authForm builds the per-call credential form every endpoint requires.
func authForm(profile *models.UserProfile) (url.Values, error) {
	if profile == nil || profile.Username == "" {
		return nil, fmt.Errorf("%w: profile with username required", ErrInvalidArgument)
	}
	form := url.Values{}
	form.Set("username", profile.Username)
	form.Set("password", profile.PasswordHash)
	return form, nil
}

func movieStatusURI(status MediaStatus) (string, error) {
	switch status {
	case StatusWatching:
		return uriMovieWatching, nil
	case StatusScrobble:
		return uriMovieScrobble, nil
	case StatusCancelWatching:
		return uriMovieCancelWatching, nil
	default:
		return "", fmt.Errorf("%w: unknown media status %d", ErrInvalidArgument, status)
	}
}

func episodeStatusURI(status MediaStatus) (string, error) {
	switch status {
	case StatusWatching:
		return uriShowWatching, nil
	case StatusScrobble:
		return uriShowScrobble, nil
	case StatusCancelWatching:
		return uriShowCancelWatching, nil
	default:
		return "", fmt.Errorf("%w: unknown media status %d", ErrInvalidArgument, status)
	}
}

// itemForm fills the identification fields for a rate/comment call and
// picks the endpoint matching the item's kind.
func itemForm(form url.Values, item *models.LibraryItem, movieURI, episodeURI, showURI string) (string, error) {
	switch item.Kind {
	case models.KindMovie:
		form.Set("imdb_id", item.Providers.IMDB)
		form.Set("title", item.Name)
		form.Set("year", strconv.Itoa(item.Year))
		return movieURI, nil
	case models.KindEpisode:
		if item.Series == nil {
			return "", fmt.Errorf("%w: episode without series", ErrInvalidArgument)
		}
		form.Set("imdb_id", item.Series.Providers.IMDB)
		form.Set("tvdb_id", item.Series.Providers.TVDB)
		form.Set("title", item.Series.Name)
		form.Set("year", strconv.Itoa(item.Series.Year))
		form.Set("season", strconv.Itoa(item.Season))
		form.Set("episode", strconv.Itoa(item.Episode))
		return episodeURI, nil
	case models.KindSeries:
		form.Set("imdb_id", item.Providers.IMDB)
		form.Set("tvdb_id", item.Providers.TVDB)
		form.Set("title", item.Name)
		form.Set("year", strconv.Itoa(item.Year))
		return showURI, nil
	default:
		return "", fmt.Errorf("%w: unsupported item kind %s", ErrInvalidArgument, item.Kind)
	}
}

// postStatus sends a form POST and checks the status envelope.
func (c *HTTPClient) postStatus(ctx context.Context, uri string, form url.Values) error {
	body, err := c.post(ctx, uri, form)
	if err != nil {
		return err
	}

	resp := &Response{}
	if err := json.Unmarshal(body, resp); err != nil {
		return fmt.Errorf("%s: decode response: %w", uri, err)
	}
	if !resp.OK() {
		detail := resp.Error
		if detail == "" {
			detail = resp.Message
		}
		return fmt.Errorf("%w: %s: %s", ErrStatusFailure, uri, detail)
	}
	return nil
}

// postJSON sends a form POST and decodes the JSON body into out.
func (c *HTTPClient) postJSON(ctx context.Context, uri string, form url.Values, out any) error {
	body, err := c.post(ctx, uri, form)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", uri, err)
	}
	return nil
}

// post performs one admission-controlled, rate-paced HTTP round trip and
// returns the response body.
func (c *HTTPClient) post(ctx context.Context, uri string, form url.Values) ([]byte, error) {
	waitStart := time.Now()
	if err := c.pool.Acquire(ctx, 1); err != nil {
		metrics.RecordRemoteRejection(uri)
		return nil, fmt.Errorf("%s: admission pool: %w", uri, err)
	}
	defer c.pool.Release(1)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			metrics.RecordRemoteRejection(uri)
			return nil, fmt.Errorf("%s: rate limiter: %w", uri, err)
		}
	}
	metrics.RemoteAdmissionWait.Observe(time.Since(waitStart).Seconds())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+uri, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", uri, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.RecordRemoteCall(uri, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", uri, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", uri, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status %d: %s", uri, resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
