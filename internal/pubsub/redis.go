// SPDX-License-Identifier: AGPL-3.0-or-later
// TetraStream - Ingest, record and route TETRA call streams in a single binary
// Copyright (C) 2023-2026 Jacob McSwain
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// The source code is available at <https://github.com/USA-RedDragon/TetraStream>

package pubsub

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/USA-RedDragon/TetraStream/internal/config"
	"github.com/redis/go-redis/v9"
)

func makePubSubFromRedis(ctx context.Context, cfg *config.Config) (PubSub, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.Database,
	})
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &redisPubSub{ctx: ctx, client: client}, nil
}

type redisPubSub struct {
	ctx    context.Context
	client *redis.Client
}

func (ps *redisPubSub) Publish(topic string, message []byte) error {
	if err := ps.client.Publish(ps.ctx, topic, message).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

func (ps *redisPubSub) Subscribe(prefix string) Subscription {
	// Prefix subscriptions map onto redis channel patterns.
	pubsub := ps.client.PSubscribe(ps.ctx, prefix+"*")
	sub := &redisSubscription{
		pubsub: pubsub,
		ch:     make(chan []byte, subscriptionBufferSize),
	}
	go sub.relay()
	return sub
}

func (ps *redisPubSub) Close() error {
	if err := ps.client.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	ch     chan []byte
}

func (s *redisSubscription) relay() {
	defer close(s.ch)
	for msg := range s.pubsub.Channel() {
		select {
		case s.ch <- []byte(msg.Payload):
		default:
			slog.Warn("Dropping message for slow subscriber", "channel", msg.Channel)
		}
	}
}

func (s *redisSubscription) Close() error {
	if err := s.pubsub.Close(); err != nil {
		return fmt.Errorf("redis subscription close: %w", err)
	}
	return nil
}

func (s *redisSubscription) Channel() <-chan []byte {
	return s.ch
}
