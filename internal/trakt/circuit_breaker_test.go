// Scrobblarr - Trakt Watch-State and Collection Sync for Media Servers
// Copyright 2026 Scrobblarr Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scrobblarr/scrobblarr

package trakt

import (
	"context"
	"errors"
	"fmt"
	"testing"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/scrobblarr/scrobblarr/internal/models"
)

// stubClient lets each test script the inner client's behavior.
type stubClient struct {
	Client
	accountTestErr error
	movies         []models.MovieSnapshot
	moviesErr      error
}

func (s *stubClient) AccountTest(_ context.Context, _ *models.UserProfile) error {
	return s.accountTestErr
}

func (s *stubClient) GetAllMovies(_ context.Context, _ *models.UserProfile) ([]models.MovieSnapshot, error) {
	return s.movies, s.moviesErr
}

func TestCircuitBreakerOpensOnTransportFailures(t *testing.T) {
	inner := &stubClient{accountTestErr: errors.New("connection refused")}
	cbc := NewCircuitBreakerClient(inner)

	// Push past the minimum request count at a 100% failure rate.
	for i := 0; i < 10; i++ {
		if err := cbc.AccountTest(context.Background(), testProfile()); err == nil {
			t.Fatal("expected failure")
		}
	}

	if cbc.State() != gobreaker.StateOpen {
		t.Fatalf("breaker state = %v, want open", cbc.State())
	}

	// Calls now fail fast without reaching the inner client.
	inner.accountTestErr = nil
	err := cbc.AccountTest(context.Background(), testProfile())
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("want ErrOpenState, got %v", err)
	}
}

func TestCircuitBreakerIgnoresStatusRejections(t *testing.T) {
	inner := &stubClient{accountTestErr: fmt.Errorf("%w: bad credentials", ErrStatusFailure)}
	cbc := NewCircuitBreakerClient(inner)

	for i := 0; i < 20; i++ {
		err := cbc.AccountTest(context.Background(), testProfile())
		if !errors.Is(err, ErrStatusFailure) {
			t.Fatalf("want ErrStatusFailure, got %v", err)
		}
	}

	if cbc.State() != gobreaker.StateClosed {
		t.Fatalf("status rejections must not trip the breaker, state = %v", cbc.State())
	}
}

func TestCircuitBreakerPassesThroughResults(t *testing.T) {
	inner := &stubClient{movies: []models.MovieSnapshot{{Title: "Heat", Plays: 2}}}
	cbc := NewCircuitBreakerClient(inner)

	movies, err := cbc.GetAllMovies(context.Background(), testProfile())
	if err != nil {
		t.Fatalf("GetAllMovies failed: %v", err)
	}
	if len(movies) != 1 || movies[0].Title != "Heat" {
		t.Fatalf("unexpected result: %+v", movies)
	}
}
