/*
SPDX-FileCopyrightText: 2026 urumi.ai and store-operator contributors
SPDX-License-Identifier: Apache-2.0
*/

// Package events fans out store lifecycle events to an optional redis
// stream+pubsub store. Publishing is strictly best-effort: it never blocks
// reconciliation and never surfaces errors to the caller.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/urumi-ai/store-operator/internal/status"
)

const (
	// streamMaxLen caps each per-store stream.
	streamMaxLen = 100

	globalChannel   = "store:events"
	streamKeyFormat = "store:events:%s"
)

// Publisher writes store events to redis. A nil or unconfigured Publisher
// no-ops on every call.
type Publisher struct {
	client *redis.Client
}

// NewPublisher connects to the given redis URL; an empty URL or an invalid
// one yields a disabled publisher.
func NewPublisher(redisURL string) *Publisher {
	if redisURL == "" {
		return &Publisher{}
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return &Publisher{}
	}
	return &Publisher{client: redis.NewClient(opts)}
}

// Enabled reports whether events are actually published anywhere.
func (p *Publisher) Enabled() bool {
	return p != nil && p.client != nil
}

// Publish appends the event to the per-store stream and broadcasts it on the
// global channel. Errors are logged at debug level and swallowed.
func (p *Publisher) Publish(ctx context.Context, store string, phase string, eventType string, message string) {
	if !p.Enabled() {
		return
	}
	logger := log.FromContext(ctx)
	timestamp := status.Now()

	streamKey := fmt.Sprintf(streamKeyFormat, store)
	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{
			"type":      eventType,
			"message":   message,
			"phase":     phase,
			"timestamp": timestamp,
			"store":     store,
		},
	}).Err(); err != nil {
		logger.V(2).Info("event stream append failed", "store", store, "error", err.Error())
	}

	payload, err := json.Marshal(map[string]string{
		"store":     store,
		"type":      eventType,
		"message":   message,
		"phase":     phase,
		"timestamp": timestamp,
	})
	if err != nil {
		return
	}
	if err := p.client.Publish(ctx, globalChannel, payload).Err(); err != nil {
		logger.V(2).Info("event publish failed", "store", store, "error", err.Error())
	}
}

// DeleteStream removes the per-store stream key; called on store deletion.
func (p *Publisher) DeleteStream(ctx context.Context, store string) {
	if !p.Enabled() {
		return
	}
	if err := p.client.Del(ctx, fmt.Sprintf(streamKeyFormat, store)).Err(); err != nil {
		log.FromContext(ctx).V(2).Info("event stream delete failed", "store", store, "error", err.Error())
	}
}

// Close releases the redis connection.
func (p *Publisher) Close() error {
	if !p.Enabled() {
		return nil
	}
	return p.client.Close()
}
