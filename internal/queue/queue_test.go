// Scrobblarr - Trakt Watch-State and Collection Sync for Media Servers
// Copyright 2026 Scrobblarr Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scrobblarr/scrobblarr

package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/scrobblarr/scrobblarr/internal/config"
	"github.com/scrobblarr/scrobblarr/internal/models"
	"github.com/scrobblarr/scrobblarr/internal/trakt"
)

// libraryCall records one remote library update.
type libraryCall struct {
	kind  models.MediaKind
	event models.EventType
	items []*models.LibraryItem
}

// fakeClient records library updates and can be scripted to fail.
type fakeClient struct {
	trakt.Client

	mu      sync.Mutex
	calls   []libraryCall
	failSeq []error // errors returned call-by-call, nil entries succeed
}

func (f *fakeClient) nextErr() error {
	if len(f.failSeq) == 0 {
		return nil
	}
	err := f.failSeq[0]
	f.failSeq = f.failSeq[1:]
	return err
}

func (f *fakeClient) UpdateMovieLibrary(_ context.Context, _ *models.UserProfile, movies []*models.LibraryItem, event models.EventType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, libraryCall{kind: models.KindMovie, event: event, items: movies})
	return f.nextErr()
}

func (f *fakeClient) UpdateEpisodeLibrary(_ context.Context, _ *models.UserProfile, episodes []*models.LibraryItem, event models.EventType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, libraryCall{kind: models.KindEpisode, event: event, items: episodes})
	return f.nextErr()
}

func (f *fakeClient) snapshot() []libraryCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]libraryCall, len(f.calls))
	copy(out, f.calls)
	return out
}

func testQueue(client trakt.Client, flushInterval time.Duration) *Queue {
	return New(client, config.QueueConfig{
		MaxBatchSize:  200,
		FlushInterval: flushInterval,
	})
}

func profile() *models.UserProfile {
	return &models.UserProfile{
		Username:     "alice",
		LinkedUserID: "8c9d64c0-61c6-4cfa-9f4c-a379f3b1b6a6",
	}
}

func movie(n int) *models.LibraryItem {
	return &models.LibraryItem{
		ID:        fmt.Sprintf("movie-%d", n),
		Kind:      models.KindMovie,
		Name:      fmt.Sprintf("Movie %d", n),
		Providers: models.ProviderIDs{IMDB: fmt.Sprintf("tt%07d", n)},
	}
}

func episode(series string, season, ep int) *models.LibraryItem {
	return &models.LibraryItem{
		ID:      fmt.Sprintf("%s-s%de%d", series, season, ep),
		Kind:    models.KindEpisode,
		Season:  season,
		Episode: ep,
		Series:  &models.SeriesRef{ID: series, Name: series},
	}
}

func TestCapTriggersImmediateFlush(t *testing.T) {
	client := &fakeClient{}
	q := testQueue(client, 0)
	ctx := context.Background()

	for i := 0; i < 201; i++ {
		q.Enqueue(ctx, profile(), movie(i), models.EventAdd)
	}

	calls := client.snapshot()
	if len(calls) != 1 {
		t.Fatalf("got %d flushes, want exactly 1 at the cap", len(calls))
	}
	if len(calls[0].items) != 200 {
		t.Errorf("flushed %d items, want 200", len(calls[0].items))
	}

	// The 201st movie started a fresh batch.
	q.Flush(ctx, profile(), models.EventAdd, models.KindMovie)
	calls = client.snapshot()
	if len(calls) != 2 || len(calls[1].items) != 1 {
		t.Fatalf("201st movie should sit alone in a new batch, calls: %d", len(calls))
	}
	if calls[1].items[0].ID != "movie-200" {
		t.Errorf("new batch holds %s, want movie-200", calls[1].items[0].ID)
	}
}

func TestNoMovieDuplicatedOrDropped(t *testing.T) {
	client := &fakeClient{}
	q := testQueue(client, 0)
	ctx := context.Background()

	const total = 450
	for i := 0; i < total; i++ {
		q.Enqueue(ctx, profile(), movie(i), models.EventAdd)
	}
	q.Drain(ctx)

	seen := make(map[string]int)
	for _, call := range client.snapshot() {
		for _, item := range call.items {
			seen[item.ID]++
		}
	}
	if len(seen) != total {
		t.Fatalf("saw %d distinct movies, want %d", len(seen), total)
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("%s flushed %d times, want once", id, n)
		}
	}
}

func TestSeriesDiscontinuityFlushes(t *testing.T) {
	client := &fakeClient{}
	q := testQueue(client, 0)
	ctx := context.Background()

	q.Enqueue(ctx, profile(), episode("series-a", 1, 1), models.EventAdd)
	q.Enqueue(ctx, profile(), episode("series-a", 1, 2), models.EventAdd)
	q.Enqueue(ctx, profile(), episode("series-b", 1, 1), models.EventAdd)
	q.Drain(ctx)

	calls := client.snapshot()
	if len(calls) != 2 {
		t.Fatalf("got %d flushes, want 2 (boundary + drain)", len(calls))
	}
	if len(calls[0].items) != 2 || calls[0].items[0].SeriesKey() != "series-a" {
		t.Errorf("first flush should carry both series-a episodes: %+v", calls[0].items)
	}
	if len(calls[1].items) != 1 || calls[1].items[0].SeriesKey() != "series-b" {
		t.Errorf("second flush should carry the series-b episode: %+v", calls[1].items)
	}
}

func TestReturningSeriesAlsoFlushes(t *testing.T) {
	client := &fakeClient{}
	q := testQueue(client, 0)
	ctx := context.Background()

	// A, B, A — contiguity is positional, not global grouping.
	q.Enqueue(ctx, profile(), episode("series-a", 1, 1), models.EventAdd)
	q.Enqueue(ctx, profile(), episode("series-b", 1, 1), models.EventAdd)
	q.Enqueue(ctx, profile(), episode("series-a", 1, 2), models.EventAdd)
	q.Drain(ctx)

	if got := len(client.snapshot()); got != 3 {
		t.Fatalf("got %d flushes, want 3", got)
	}
}

func TestUpdateEventsAreDropped(t *testing.T) {
	client := &fakeClient{}
	q := testQueue(client, 0)
	ctx := context.Background()

	q.Enqueue(ctx, profile(), movie(1), models.EventUpdate)
	q.Drain(ctx)

	if got := len(client.snapshot()); got != 0 {
		t.Fatalf("update events must never flush, got %d calls", got)
	}
}

func TestBareSeriesEventsAreDropped(t *testing.T) {
	client := &fakeClient{}
	q := testQueue(client, 0)
	ctx := context.Background()

	series := &models.LibraryItem{ID: "series-a", Kind: models.KindSeries, Name: "Series A"}
	q.Enqueue(ctx, profile(), series, models.EventAdd)
	q.Drain(ctx)

	if got := len(client.snapshot()); got != 0 {
		t.Fatalf("bare series events must never flush, got %d calls", got)
	}
}

func TestAddAndRemoveAreIndependentLanes(t *testing.T) {
	client := &fakeClient{}
	q := testQueue(client, 0)
	ctx := context.Background()

	q.Enqueue(ctx, profile(), movie(1), models.EventAdd)
	q.Enqueue(ctx, profile(), movie(2), models.EventRemove)
	q.Drain(ctx)

	calls := client.snapshot()
	if len(calls) != 2 {
		t.Fatalf("got %d flushes, want one per event type", len(calls))
	}
	events := map[models.EventType]bool{}
	for _, call := range calls {
		if len(call.items) != 1 {
			t.Errorf("lane mixed event types: %+v", call.items)
		}
		events[call.event] = true
	}
	if !events[models.EventAdd] || !events[models.EventRemove] {
		t.Errorf("expected one add and one remove flush, got %v", events)
	}
}

func TestFailedFlushDropsBatch(t *testing.T) {
	client := &fakeClient{failSeq: []error{errors.New("connection refused")}}
	q := testQueue(client, 0)
	ctx := context.Background()

	q.Enqueue(ctx, profile(), movie(1), models.EventAdd)
	q.Flush(ctx, profile(), models.EventAdd, models.KindMovie)

	// The failed batch is gone; a later flush carries only new items.
	q.Enqueue(ctx, profile(), movie(2), models.EventAdd)
	q.Flush(ctx, profile(), models.EventAdd, models.KindMovie)

	calls := client.snapshot()
	if len(calls) != 2 {
		t.Fatalf("got %d calls, want 2", len(calls))
	}
	if len(calls[1].items) != 1 || calls[1].items[0].ID != "movie-2" {
		t.Errorf("dropped batch was retried: %+v", calls[1].items)
	}
}

func TestQuietPeriodTimerFlushes(t *testing.T) {
	client := &fakeClient{}
	q := testQueue(client, 30*time.Millisecond)
	ctx := context.Background()

	q.Enqueue(ctx, profile(), movie(1), models.EventAdd)

	deadline := time.After(5 * time.Second)
	for len(client.snapshot()) == 0 {
		select {
		case <-deadline:
			t.Fatal("quiet-period timer never flushed")
		case <-time.After(10 * time.Millisecond):
		}
	}

	calls := client.snapshot()
	if len(calls[0].items) != 1 {
		t.Errorf("timer flush carried %d items, want 1", len(calls[0].items))
	}
}

func TestConcurrentEnqueueSameLane(t *testing.T) {
	client := &fakeClient{}
	q := testQueue(client, 0)
	ctx := context.Background()

	const workers = 8
	const perWorker = 50
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				q.Enqueue(ctx, profile(), movie(w*perWorker+i), models.EventAdd)
			}
		}(w)
	}
	wg.Wait()
	q.Drain(ctx)

	total := 0
	for _, call := range client.snapshot() {
		total += len(call.items)
	}
	if total != workers*perWorker {
		t.Fatalf("flushed %d items, want %d", total, workers*perWorker)
	}
}
