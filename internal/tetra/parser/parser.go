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

// Package parser frames signature-tagged records out of the rolling byte
// buffer owned by the ingestor. It is a pure function over a slice: it
// never retains the input and never blocks.
package parser

import (
	"encoding/binary"
	"log/slog"
	"time"

	"github.com/USA-RedDragon/TetraStream/internal/tetra/events"
	"github.com/USA-RedDragon/TetraStream/internal/tetra/tetraconst"
)

const signatureLength = 4

// RxEvent is one framed record with its reception timestamp, taken at the
// moment the header was matched, not when the datagram arrived.
type RxEvent struct {
	ReceivedAt time.Time
	Topic      string
	Event      events.Event
	Raw        []byte
}

// Parser frames records out of a byte stream. Now is swappable for tests.
type Parser struct {
	Now func() time.Time
}

// New creates a Parser using the wall clock.
func New() *Parser {
	return &Parser{Now: time.Now}
}

// Parse scans buf for complete records. It returns the framed events, the
// number of bytes consumed, and the number of junk bytes skipped during
// resynchronization. Unconsumed trailing bytes are a partial record; the
// caller keeps them for the next datagram.
func (p *Parser) Parse(buf []byte) ([]RxEvent, int, int) {
	var out []RxEvent
	consumed := 0
	junked := 0

	for len(buf)-consumed >= signatureLength {
		rest := buf[consumed:]

		switch binary.LittleEndian.Uint32(rest[0:4]) {
		case tetraconst.SignatureSignaling:
			n, ev := p.parseSignaling(rest)
			if n == 0 {
				return out, consumed, junked
			}
			if ev != nil {
				out = append(out, *ev)
			} else if n == 1 {
				junked++
			}
			consumed += n
		case tetraconst.SignatureVoice:
			n, ev := p.parseVoice(rest)
			if n == 0 {
				return out, consumed, junked
			}
			if ev != nil {
				out = append(out, *ev)
			} else if n == 1 {
				junked++
			}
			consumed += n
		default:
			// Junk byte; resynchronize one byte at a time.
			consumed++
			junked++
		}
	}

	return out, consumed, junked
}

// parseSignaling returns (bytes to advance, event). Advancing 0 bytes means
// the record is not yet complete; advancing 1 with no event is a resync.
func (p *Parser) parseSignaling(rest []byte) (int, *RxEvent) {
	if len(rest) < tetraconst.HeaderLength {
		return 0, nil
	}

	id := tetraconst.MessageID(rest[7])
	size, ok := tetraconst.RecordSize(id)
	if !ok {
		// Unknown message id: the record length cannot be known, so favor
		// resynchronization over guessing.
		slog.Debug("Unknown signaling message id", "messageID", uint8(id))
		return 1, nil
	}
	if len(rest) < size {
		return 0, nil
	}

	raw := make([]byte, size)
	copy(raw, rest[:size])
	ev, err := events.DecodeSignaling(raw)
	if err != nil {
		slog.Warn("Undecodable signaling record", "messageID", id.String(), "error", err)
		return 1, nil
	}

	return size, &RxEvent{
		ReceivedAt: p.Now(),
		Topic:      ev.Topic(),
		Event:      ev,
		Raw:        raw,
	}
}

func (p *Parser) parseVoice(rest []byte) (int, *RxEvent) {
	if len(rest) < tetraconst.VoiceHeaderLength {
		return 0, nil
	}

	len1, ok := tetraconst.PayloadLength(tetraconst.PayloadKind(rest[18]))
	if !ok {
		slog.Debug("Unknown voice payload 1 kind", "kind", rest[18])
		return 1, nil
	}
	len2, ok := tetraconst.PayloadLength(tetraconst.PayloadKind(rest[19]))
	if !ok {
		slog.Debug("Unknown voice payload 2 kind", "kind", rest[19])
		return 1, nil
	}

	size := tetraconst.VoiceHeaderLength + len1 + len2
	if len(rest) < size {
		return 0, nil
	}

	raw := make([]byte, size)
	copy(raw, rest[:size])
	frame, err := events.DecodeVoice(raw)
	if err != nil {
		slog.Warn("Undecodable voice record", "error", err)
		return 1, nil
	}

	if !frame.IsALaw() {
		// Declared but unprocessed payload kinds are skipped whole.
		return size, nil
	}

	return size, &RxEvent{
		ReceivedAt: p.Now(),
		Topic:      frame.Topic(),
		Event:      frame,
		Raw:        raw,
	}
}
