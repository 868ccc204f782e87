// Scrobblarr - Trakt Watch-State and Collection Sync for Media Servers
// Copyright 2026 Scrobblarr Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scrobblarr/scrobblarr

package trakt

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/scrobblarr/scrobblarr/internal/logging"
	"github.com/scrobblarr/scrobblarr/internal/metrics"
	"github.com/scrobblarr/scrobblarr/internal/models"
)

// CircuitBreakerClient wraps a Client with the circuit breaker pattern so a
// slow or unreachable remote cannot pile up goroutines behind the admission
// pool. While the circuit is open, calls fail fast with
// gobreaker.ErrOpenState.
//
// Status rejections (ErrStatusFailure) and caller mistakes
// (ErrInvalidArgument) do not count towards tripping: the transport worked,
// the remote is healthy, the request was just bad.
type CircuitBreakerClient struct {
	inner Client
	cb    *gobreaker.CircuitBreaker[any]
	name  string
}

// Ensure CircuitBreakerClient implements Client.
var _ Client = (*CircuitBreakerClient)(nil)

// NewCircuitBreakerClient wraps inner with a circuit breaker.
//
// Breaker configuration:
//   - Max 3 concurrent requests in half-open state
//   - 1 minute measurement window in closed state
//   - 2 minute timeout before attempting recovery
//   - Opens after 60% failure rate with minimum 10 requests
func NewCircuitBreakerClient(inner Client) *CircuitBreakerClient {
	const cbName = "trakt-api"

	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			if failureRatio >= 0.6 {
				logging.Warn().
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Msg("remote circuit opening")
				return true
			}
			return false
		},

		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrStatusFailure) ||
				errors.Is(err, ErrInvalidArgument)
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr, toStr := stateToString(from), stateToString(to)
			logging.Info().Str("from", fromStr).Str("to", toStr).Msg("remote circuit state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})

	return &CircuitBreakerClient{inner: inner, cb: cb, name: cbName}
}

// execute runs fn under the breaker, translating a rejected call into a
// metric and a warning.
func (c *CircuitBreakerClient) execute(fn func() (any, error)) (any, error) {
	result, err := c.cb.Execute(fn)
	if err != nil && (errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)) {
		metrics.RecordRemoteRejection(c.name)
		logging.Warn().Err(err).Msg("remote call rejected by circuit breaker")
	}
	return result, err
}

// call wraps an error-only operation.
func (c *CircuitBreakerClient) call(fn func() error) error {
	_, err := c.execute(func() (any, error) {
		return nil, fn()
	})
	return err
}

func (c *CircuitBreakerClient) AccountTest(ctx context.Context, profile *models.UserProfile) error {
	return c.call(func() error { return c.inner.AccountTest(ctx, profile) })
}

func (c *CircuitBreakerClient) GetUserAccount(ctx context.Context, profile *models.UserProfile) (*AccountSettings, error) {
	result, err := c.execute(func() (any, error) {
		return c.inner.GetUserAccount(ctx, profile)
	})
	if err != nil {
		return nil, err
	}
	return result.(*AccountSettings), nil
}

func (c *CircuitBreakerClient) UpdateMovieStatus(ctx context.Context, profile *models.UserProfile, movie *models.LibraryItem, status MediaStatus) error {
	return c.call(func() error { return c.inner.UpdateMovieStatus(ctx, profile, movie, status) })
}

func (c *CircuitBreakerClient) UpdateEpisodeStatus(ctx context.Context, profile *models.UserProfile, episode *models.LibraryItem, status MediaStatus) error {
	return c.call(func() error { return c.inner.UpdateEpisodeStatus(ctx, profile, episode, status) })
}

func (c *CircuitBreakerClient) UpdateMovieLibrary(ctx context.Context, profile *models.UserProfile, movies []*models.LibraryItem, event models.EventType) error {
	return c.call(func() error { return c.inner.UpdateMovieLibrary(ctx, profile, movies, event) })
}

func (c *CircuitBreakerClient) UpdateEpisodeLibrary(ctx context.Context, profile *models.UserProfile, episodes []*models.LibraryItem, event models.EventType) error {
	return c.call(func() error { return c.inner.UpdateEpisodeLibrary(ctx, profile, episodes, event) })
}

func (c *CircuitBreakerClient) RateItem(ctx context.Context, profile *models.UserProfile, item *models.LibraryItem, rating int) error {
	return c.call(func() error { return c.inner.RateItem(ctx, profile, item, rating) })
}

func (c *CircuitBreakerClient) CommentItem(ctx context.Context, profile *models.UserProfile, item *models.LibraryItem, comment string, spoiler, review bool) error {
	return c.call(func() error { return c.inner.CommentItem(ctx, profile, item, comment, spoiler, review) })
}

func (c *CircuitBreakerClient) GetAllMovies(ctx context.Context, profile *models.UserProfile) ([]models.MovieSnapshot, error) {
	result, err := c.execute(func() (any, error) {
		return c.inner.GetAllMovies(ctx, profile)
	})
	if err != nil {
		return nil, err
	}
	return result.([]models.MovieSnapshot), nil
}

func (c *CircuitBreakerClient) GetCollectionShows(ctx context.Context, profile *models.UserProfile) ([]models.ShowSnapshot, error) {
	result, err := c.execute(func() (any, error) {
		return c.inner.GetCollectionShows(ctx, profile)
	})
	if err != nil {
		return nil, err
	}
	return result.([]models.ShowSnapshot), nil
}

func (c *CircuitBreakerClient) GetWatchedShows(ctx context.Context, profile *models.UserProfile) ([]models.ShowSnapshot, error) {
	result, err := c.execute(func() (any, error) {
		return c.inner.GetWatchedShows(ctx, profile)
	})
	if err != nil {
		return nil, err
	}
	return result.([]models.ShowSnapshot), nil
}

func (c *CircuitBreakerClient) GetRecommendedMovies(ctx context.Context, profile *models.UserProfile) ([]RecommendedMovie, error) {
	result, err := c.execute(func() (any, error) {
		return c.inner.GetRecommendedMovies(ctx, profile)
	})
	if err != nil {
		return nil, err
	}
	return result.([]RecommendedMovie), nil
}

func (c *CircuitBreakerClient) GetRecommendedShows(ctx context.Context, profile *models.UserProfile) ([]RecommendedShow, error) {
	result, err := c.execute(func() (any, error) {
		return c.inner.GetRecommendedShows(ctx, profile)
	})
	if err != nil {
		return nil, err
	}
	return result.([]RecommendedShow), nil
}

// State returns the current breaker state, for health reporting.
func (c *CircuitBreakerClient) State() gobreaker.State {
	return c.cb.State()
}

func stateToString(s gobreaker.State) string {
	switch s {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
