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

package events

import (
	"encoding/binary"
	"time"
)

// Bus messages prepend the wall-clock reception timestamp (unix seconds,
// little-endian) to the raw wire record. Subscribers recover the typed
// event with DecodeAny.

const envelopeTimestampLength = 8

// PackEnvelope builds a bus message from a reception time and a raw record.
func PackEnvelope(receivedAt time.Time, record []byte) []byte {
	b := make([]byte, envelopeTimestampLength+len(record))
	binary.LittleEndian.PutUint64(b[0:8], uint64(receivedAt.Unix()))
	copy(b[8:], record)
	return b
}

// UnpackEnvelope splits a bus message back into reception time and record.
func UnpackEnvelope(b []byte) (time.Time, []byte, error) {
	if len(b) < envelopeTimestampLength {
		return time.Time{}, nil, ErrShortRecord
	}
	ts := time.Unix(int64(binary.LittleEndian.Uint64(b[0:8])), 0)
	return ts, b[envelopeTimestampLength:], nil
}
