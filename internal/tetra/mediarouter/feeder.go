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

package mediarouter

import (
	"fmt"
	"net"

	"github.com/USA-RedDragon/TetraStream/internal/childproc"
	"github.com/USA-RedDragon/TetraStream/internal/config"
)

// Feeder is one reserved UDP media-server input channel. Feeders outlive
// calls; only the reservation toggles. The pool is fixed by configuration.
type Feeder struct {
	Stream string
	Addr   *net.UDPAddr
	Type   config.FeederType
	Busy   bool
	CallID string
}

// Player is one legacy playback slot. Its child process exists only
// during a playback.
type Player struct {
	Stream       string
	FeederStream string
	Busy         bool
	CallID       string
	CallDBID     string
	proc         *childproc.Process
}

func makeFeeders(cfg *config.Config) ([]*Feeder, error) {
	feeders := make([]*Feeder, 0, len(cfg.Media.Feeders))
	for _, fc := range cfg.Media.Feeders {
		addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", fc.IP, fc.Port))
		if err != nil {
			return nil, fmt.Errorf("resolving feeder %s: %w", fc.Stream, err)
		}
		feeders = append(feeders, &Feeder{
			Stream: fc.Stream,
			Addr:   addr,
			Type:   fc.Type,
		})
	}
	return feeders, nil
}

func makePlayers(cfg *config.Config) []*Player {
	players := make([]*Player, 0, len(cfg.Media.Players))
	for _, pc := range cfg.Media.Players {
		players = append(players, &Player{
			Stream:       pc.Stream,
			FeederStream: pc.Feeder,
		})
	}
	return players
}

// freeFeeder returns the first free feeder of the wanted type.
func freeFeeder(feeders []*Feeder, wanted config.FeederType) *Feeder {
	for _, f := range feeders {
		if !f.Busy && f.Type == wanted {
			return f
		}
	}
	return nil
}

// freePlayer returns the first free playback slot.
func freePlayer(players []*Player) *Player {
	for _, p := range players {
		if !p.Busy {
			return p
		}
	}
	return nil
}
