// Scrobblarr - Trakt Watch-State and Collection Sync for Media Servers
// Copyright 2026 Scrobblarr Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scrobblarr/scrobblarr

package supervisor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/scrobblarr/scrobblarr/internal/host"
	"github.com/scrobblarr/scrobblarr/internal/logging"
	"github.com/scrobblarr/scrobblarr/internal/scheduler"
)

// BusService supervises the event bus router.
type BusService struct {
	bus *host.Bus
}

// NewBusService wraps the bus for supervision.
func NewBusService(bus *host.Bus) *BusService {
	return &BusService{bus: bus}
}

// Serve runs the bus until ctx is cancelled.
func (s *BusService) Serve(ctx context.Context) error {
	return s.bus.Run(ctx)
}

func (s *BusService) String() string { return "event-bus" }

// SchedulerService supervises the cron loop.
type SchedulerService struct {
	sched *scheduler.Scheduler
}

// NewSchedulerService wraps the scheduler for supervision.
func NewSchedulerService(sched *scheduler.Scheduler) *SchedulerService {
	return &SchedulerService{sched: sched}
}

// Serve starts the schedules and blocks until ctx is cancelled, then
// waits for in-flight runs to finish.
func (s *SchedulerService) Serve(ctx context.Context) error {
	s.sched.Start(ctx)
	<-ctx.Done()
	s.sched.Stop()
	return ctx.Err()
}

func (s *SchedulerService) String() string { return "scheduler" }

// HTTPService supervises the embedded HTTP server.
type HTTPService struct {
	server          *http.Server
	ready           <-chan struct{}
	shutdownTimeout time.Duration
}

// NewHTTPService wraps an HTTP server for supervision. ready, if non-nil,
// gates listening: the server accepts no request before the channel
// closes, so webhook ingress cannot outrun the event bus it publishes to.
func NewHTTPService(server *http.Server, ready <-chan struct{}, shutdownTimeout time.Duration) *HTTPService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPService{server: server, ready: ready, shutdownTimeout: shutdownTimeout}
}

// Serve listens until ctx is cancelled, then shuts down gracefully.
func (s *HTTPService) Serve(ctx context.Context) error {
	if s.ready != nil {
		select {
		case <-s.ready:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("http server shutdown incomplete")
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}

func (s *HTTPService) String() string { return "http-server" }
