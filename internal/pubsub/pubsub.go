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

// Package pubsub is the internal bus: topic-keyed fan-out with prefix-match
// subscriptions. A subscriber to "S_" receives all signaling; a subscriber
// to "V_42" receives only voice for call 42. Delivery is at-most-once and
// slow subscribers drop.
package pubsub

import (
	"context"

	"github.com/USA-RedDragon/TetraStream/internal/config"
)

type PubSub interface {
	Publish(topic string, message []byte) error
	// Subscribe registers a prefix filter. The empty prefix matches
	// every topic.
	Subscribe(prefix string) Subscription
	Close() error
}

type Subscription interface {
	Close() error
	Channel() <-chan []byte
}

func MakePubSub(ctx context.Context, config *config.Config) (PubSub, error) {
	if config.Redis.Enabled {
		return makePubSubFromRedis(ctx, config)
	}
	return makeInMemoryPubSub(config)
}
