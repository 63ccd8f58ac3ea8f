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
	"strings"
	"sync/atomic"

	"github.com/USA-RedDragon/TetraStream/internal/config"
	"github.com/puzpuzpuz/xsync/v4"
)

// subscriptionBufferSize bounds each subscriber inbox. A full inbox drops
// the message rather than blocking the publisher.
const subscriptionBufferSize = 256

func makeInMemoryPubSub(_ *config.Config) (PubSub, error) {
	return &inMemoryPubSub{
		subs: xsync.NewMap[uint64, *inMemorySubscription](),
	}, nil
}

type inMemoryPubSub struct {
	subs   *xsync.Map[uint64, *inMemorySubscription]
	nextID atomic.Uint64
	closed atomic.Bool
}

type inMemorySubscription struct {
	id     uint64
	prefix string
	ch     chan []byte
	parent *inMemoryPubSub
	closed atomic.Bool
}

func (ps *inMemoryPubSub) Publish(topic string, message []byte) error {
	if ps.closed.Load() {
		return nil
	}
	ps.subs.Range(func(_ uint64, sub *inMemorySubscription) bool {
		if sub.closed.Load() {
			return true
		}
		if strings.HasPrefix(topic, sub.prefix) {
			select {
			case sub.ch <- message:
			default:
				// Slow subscriber; drop.
			}
		}
		return true
	})
	return nil
}

func (ps *inMemoryPubSub) Subscribe(prefix string) Subscription {
	sub := &inMemorySubscription{
		id:     ps.nextID.Add(1),
		prefix: prefix,
		ch:     make(chan []byte, subscriptionBufferSize),
		parent: ps,
	}
	ps.subs.Store(sub.id, sub)
	return sub
}

func (ps *inMemoryPubSub) Close() error {
	if ps.closed.Swap(true) {
		return nil
	}
	ps.subs.Range(func(id uint64, sub *inMemorySubscription) bool {
		_ = sub.Close()
		return true
	})
	return nil
}

func (s *inMemorySubscription) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.parent.subs.Delete(s.id)
	close(s.ch)
	return nil
}

func (s *inMemorySubscription) Channel() <-chan []byte {
	return s.ch
}
