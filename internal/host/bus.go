// Scrobblarr - Trakt Watch-State and Collection Sync for Media Servers
// Copyright 2026 Scrobblarr Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scrobblarr/scrobblarr

package host

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/scrobblarr/scrobblarr/internal/logging"
	"github.com/scrobblarr/scrobblarr/internal/metrics"
	"github.com/scrobblarr/scrobblarr/internal/models"
)

// Bus is the in-process event bus between the embedding server and the
// sync core. It decouples the server's playback and library threads from
// the sync handlers: publishing never blocks on remote I/O, and a failing
// or panicking handler can never surface into server code.
type Bus struct {
	pubsub *gochannel.GoChannel
	router *message.Router
}

// Ensure Bus implements the publishing surface.
var _ EventSource = (*Bus)(nil)

// NewBus creates the bus and its handler router. Call RegisterHandlers
// before Run.
func NewBus(bufferSize int64) (*Bus, error) {
	wmLogger := watermill.NewSlogLogger(logging.NewSlogLogger())

	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: bufferSize,
	}, wmLogger)

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("create event router: %w", err)
	}
	// Backstop: handler wrappers recover their own panics, Recoverer
	// catches anything escaping the wrappers.
	router.AddMiddleware(middleware.Recoverer)

	return &Bus{pubsub: pubsub, router: router}, nil
}

// RegisterHandlers subscribes the handler to every host topic.
func (b *Bus) RegisterHandlers(h EventHandler) {
	addHandler(b, TopicPlaybackStart, h.HandlePlaybackStart)
	addHandler(b, TopicPlaybackProgress, h.HandlePlaybackProgress)
	addHandler(b, TopicPlaybackStop, h.HandlePlaybackStop)
	addHandler(b, TopicItemChange, h.HandleItemChange)
	addHandler(b, TopicUserDataSaved, h.HandleUserDataSaved)
}

// addHandler registers one decoding handler for a topic. Decode failures,
// handler errors and handler panics are logged and acked: events are never
// redelivered and the host keeps running no matter what a handler does.
func addHandler[E any](b *Bus, topic string, handle func(context.Context, *E) error) {
	b.router.AddNoPublisherHandler(
		topic,
		topic,
		b.pubsub,
		func(msg *message.Message) error {
			defer func() {
				if r := recover(); r != nil {
					logging.Error().Interface("panic", r).Str("topic", topic).Str("message_id", msg.UUID).
						Msg("event handler panicked")
					metrics.BusHandlerErrors.WithLabelValues(topic).Inc()
				}
			}()

			event := new(E)
			if err := json.Unmarshal(msg.Payload, event); err != nil {
				logging.Error().Err(err).Str("topic", topic).Str("message_id", msg.UUID).
					Msg("dropping undecodable event")
				metrics.BusHandlerErrors.WithLabelValues(topic).Inc()
				return nil
			}
			if err := handle(msg.Context(), event); err != nil {
				logging.Error().Err(err).Str("topic", topic).Str("message_id", msg.UUID).
					Msg("event handler failed")
				metrics.BusHandlerErrors.WithLabelValues(topic).Inc()
			}
			return nil
		},
	)
}

// Run processes events until the context is cancelled. It blocks, so it is
// meant to be driven by the supervision tree.
func (b *Bus) Run(ctx context.Context) error {
	return b.router.Run(ctx)
}

// Running returns a channel closed once the router is accepting events.
func (b *Bus) Running() <-chan struct{} {
	return b.router.Running()
}

// Close shuts down the router and the underlying pub/sub.
func (b *Bus) Close() error {
	if err := b.router.Close(); err != nil {
		return err
	}
	return b.pubsub.Close()
}

func (b *Bus) publish(topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", topic, err)
	}
	msg := message.NewMessage(uuid.NewString(), payload)
	if err := b.pubsub.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}
	metrics.BusEventsPublished.WithLabelValues(topic).Inc()
	return nil
}

// PublishPlaybackStart announces that a user started playing an item.
func (b *Bus) PublishPlaybackStart(event *models.PlaybackEvent) error {
	return b.publish(TopicPlaybackStart, event)
}

// PublishPlaybackProgress announces a periodic playback position update.
func (b *Bus) PublishPlaybackProgress(event *models.PlaybackEvent) error {
	return b.publish(TopicPlaybackProgress, event)
}

// PublishPlaybackStop announces that playback ended.
func (b *Bus) PublishPlaybackStop(event *models.PlaybackEvent) error {
	return b.publish(TopicPlaybackStop, event)
}

// PublishItemChange announces a library add, remove or update.
func (b *Bus) PublishItemChange(event *models.ItemChangeEvent) error {
	return b.publish(TopicItemChange, event)
}

// PublishUserDataSaved announces that the server persisted per-user
// play-state, for example after the user rated an item.
func (b *Bus) PublishUserDataSaved(event *models.UserDataSavedEvent) error {
	return b.publish(TopicUserDataSaved, event)
}
