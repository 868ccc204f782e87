// Scrobblarr - Trakt Watch-State and Collection Sync for Media Servers
// Copyright 2026 Scrobblarr Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scrobblarr/scrobblarr

// Command server runs Scrobblarr as a sidecar next to a media server:
// it ingests the server's webhook notifications, tracks playback into
// trakt.tv watching/scrobble calls, batches library changes, and runs the
// scheduled library and watched-state sync passes.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/scrobblarr/scrobblarr/internal/api"
	"github.com/scrobblarr/scrobblarr/internal/config"
	"github.com/scrobblarr/scrobblarr/internal/host"
	"github.com/scrobblarr/scrobblarr/internal/librarysync"
	"github.com/scrobblarr/scrobblarr/internal/logging"
	"github.com/scrobblarr/scrobblarr/internal/mediaserver"
	"github.com/scrobblarr/scrobblarr/internal/mediator"
	"github.com/scrobblarr/scrobblarr/internal/progress"
	"github.com/scrobblarr/scrobblarr/internal/queue"
	"github.com/scrobblarr/scrobblarr/internal/reconcile"
	"github.com/scrobblarr/scrobblarr/internal/scheduler"
	"github.com/scrobblarr/scrobblarr/internal/supervisor"
	"github.com/scrobblarr/scrobblarr/internal/trakt"
	"github.com/scrobblarr/scrobblarr/internal/userdata"
	"github.com/scrobblarr/scrobblarr/internal/users"
)

// Task names exposed through the API and the cron schedules.
const (
	taskLibrarySync = "library-sync"
	taskWatchedSync = "watched-sync"
)

// busBufferSize bounds each topic's in-flight event backlog.
const busBufferSize = 256

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("fatal error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().Int("profiles", len(cfg.Profiles)).Msg("starting scrobblarr")

	store, err := userdata.NewStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open play-state store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Warn().Err(err).Msg("play-state store close failed")
		}
	}()

	client := trakt.NewCircuitBreakerClient(trakt.NewHTTPClient(&cfg.Trakt))
	library := mediaserver.NewClient(&cfg.MediaServer)
	directory := users.NewDirectory(cfg.Profiles)

	changeQueue := queue.New(client, cfg.Queue)
	tracker := progress.NewTracker(client, directory, store, cfg.Sync.PingInterval)

	bus, err := host.NewBus(busBufferSize)
	if err != nil {
		return fmt.Errorf("create event bus: %w", err)
	}
	bus.RegisterHandlers(mediator.New(directory, tracker, changeQueue, client))

	sched := scheduler.New()
	librarySync := librarysync.NewSyncer(client, directory, library, cfg.Queue.MaxBatchSize)
	watchedSync := reconcile.NewReconciler(client, directory, library, store)
	if err := sched.Add(scheduler.TaskFunc(taskLibrarySync, librarySync.Run), cfg.Sync.LibrarySchedule); err != nil {
		return fmt.Errorf("register library sync: %w", err)
	}
	if err := sched.Add(scheduler.TaskFunc(taskWatchedSync, watchedSync.Run), cfg.Sync.WatchedSchedule); err != nil {
		return fmt.Errorf("register watched sync: %w", err)
	}

	handler := api.NewHandler(client, directory, library, sched, bus)
	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           handler.Routes(),
		ReadHeaderTimeout: cfg.Server.Timeout,
	}

	tree := supervisor.NewTree(supervisor.DefaultTreeConfig())
	tree.AddSyncService(supervisor.NewBusService(bus))
	tree.AddSyncService(supervisor.NewSchedulerService(sched))
	// The API starts once the bus router subscribes, so an early webhook
	// cannot publish into a topic nobody consumes yet.
	tree.AddAPIService(supervisor.NewHTTPService(server, bus.Running(), cfg.Server.Timeout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("addr", server.Addr).Msg("serving")
	err = tree.Serve(ctx)

	// Shutdown: stop accepting events, then push out whatever the queue
	// still holds.
	if closeErr := bus.Close(); closeErr != nil {
		logging.Warn().Err(closeErr).Msg("event bus close failed")
	}
	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Trakt.Timeout)
	defer cancel()
	changeQueue.Drain(drainCtx)

	if err != nil && ctx.Err() == nil {
		return err
	}
	logging.Info().Msg("shutdown complete")
	return nil
}
