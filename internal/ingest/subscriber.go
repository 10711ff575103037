// Tharsis - Terraforming Mars Replay Ingestion and Normalization
// Copyright 2026 Ares Stats (arestats)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arestats/tharsis

package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
	"golang.org/x/time/rate"

	"github.com/arestats/tharsis/internal/config"
	"github.com/arestats/tharsis/internal/logging"
	"github.com/arestats/tharsis/internal/metrics"
)

// Subscriber consumes stored-replay events from JetStream and feeds them to
// the ingestion core. Processing failures nack the message so the broker's
// redelivery policy retries it; rejections and freshness skips ack, since
// redelivering them can never succeed.
type Subscriber struct {
	subscriber message.Subscriber
	service    *Service
	subject    string
	limiter    *rate.Limiter
}

// NewSubscriber creates a durable queue-group subscriber bound to the
// pre-provisioned stream. eventsPerSecond throttles consumption; zero means
// unlimited.
func NewSubscriber(cfg *config.NATSConfig, url string, service *Service, eventsPerSecond float64, logger watermill.LoggerAdapter) (*Subscriber, error) {
	if logger == nil {
		logger = NewWatermillLogger()
	}

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(time.Second),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("Subscriber disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("Subscriber reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	ackWait := cfg.AckWaitPeriod
	if ackWait <= 0 {
		ackWait = 30 * time.Second
	}
	subOpts := []natsgo.SubOpt{
		natsgo.MaxDeliver(5),
		natsgo.MaxAckPending(64),
		natsgo.AckWait(ackWait),
		natsgo.DeliverNew(),
		natsgo.BindStream(cfg.StreamName),
	}

	wmConfig := wmNats.SubscriberConfig{
		URL:              url,
		QueueGroupPrefix: cfg.QueueGroup,
		SubscribersCount: 1,
		AckWaitTimeout:   ackWait,
		CloseTimeout:     30 * time.Second,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:         false,
			AutoProvision:    false,
			AckAsync:         false,
			SubscribeOptions: subOpts,
			DurablePrefix:    cfg.DurableName,
		},
	}

	sub, err := wmNats.NewSubscriber(wmConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill subscriber: %w", err)
	}

	var limiter *rate.Limiter
	if eventsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(eventsPerSecond), 1)
	}

	return &Subscriber{
		subscriber: sub,
		service:    service,
		subject:    cfg.Subject,
		limiter:    limiter,
	}, nil
}

// Run consumes stored-replay events until the context is canceled.
func (s *Subscriber) Run(ctx context.Context) error {
	messages, err := s.subscriber.Subscribe(ctx, s.subject)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", s.subject, err)
	}

	logging.Info().Str("subject", s.subject).Msg("Async ingestion adapter started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			if s.limiter != nil {
				if err := s.limiter.Wait(ctx); err != nil {
					msg.Nack()
					return err
				}
			}
			s.processMessage(ctx, msg)
		}
	}
}

func (s *Subscriber) processMessage(ctx context.Context, msg *message.Message) {
	event, err := DeserializeEvent(msg.Payload)
	if err != nil {
		// A malformed event can never be repaired by redelivery.
		logging.Error().Err(err).Str("message_uuid", msg.UUID).Msg("Dropping undecodable stored event")
		metrics.EventsConsumed.WithLabelValues("malformed").Inc()
		msg.Ack()
		return
	}

	_, err = s.service.IngestStored(ctx, event)
	switch {
	case err == nil:
		metrics.EventsConsumed.WithLabelValues("ok").Inc()
		msg.Ack()
	case errors.Is(err, ErrStaleObject):
		metrics.EventsConsumed.WithLabelValues("skipped").Inc()
		msg.Ack()
	case IsRejection(err):
		// The stored document itself is invalid; redelivery cannot help.
		logging.Error().Err(err).Str("replay_id", event.ReplayID).Msg("Stored replay rejected")
		metrics.EventsConsumed.WithLabelValues("rejected").Inc()
		msg.Ack()
	default:
		// Transient failure (store read, database write): nack so the
		// broker redelivers.
		logging.Error().Err(err).Str("replay_id", event.ReplayID).Msg("Stored replay ingestion failed")
		metrics.EventsConsumed.WithLabelValues("failed").Inc()
		msg.Nack()
	}
}

// Close gracefully shuts down the subscriber.
func (s *Subscriber) Close() error {
	return s.subscriber.Close()
}
