// Tharsis - Terraforming Mars Replay Ingestion and Normalization
// Copyright 2026 Ares Stats (arestats)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arestats/tharsis

package services

import (
	"context"
	"errors"
	"fmt"
)

// EventConsumer matches the subscriber's run loop. Run blocks until the
// context is canceled or the subscription fails.
type EventConsumer interface {
	Run(ctx context.Context) error
}

// SubscriberService wraps the stored-event subscriber as a supervised
// service, so a broken subscription is restarted with backoff instead of
// silently ending async ingestion.
type SubscriberService struct {
	consumer EventConsumer
}

// NewSubscriberService creates the wrapper.
func NewSubscriberService(consumer EventConsumer) *SubscriberService {
	return &SubscriberService{consumer: consumer}
}

// Serve implements suture.Service.
func (s *SubscriberService) Serve(ctx context.Context) error {
	err := s.consumer.Run(ctx)
	if err == nil || errors.Is(err, context.Canceled) {
		return ctx.Err()
	}
	return fmt.Errorf("event subscriber failed: %w", err)
}

// String identifies the service in supervisor logs.
func (s *SubscriberService) String() string {
	return "replay-subscriber"
}
