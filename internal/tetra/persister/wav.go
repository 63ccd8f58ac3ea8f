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

package persister

import (
	"encoding/binary"
	"fmt"
)

// WAVHeaderSize is the fixed header length for the A-law recordings:
// RIFF descriptor, an 18-byte fmt chunk (format tag 6, G.711 A-law) and
// the data chunk header.
const WAVHeaderSize = 46

const (
	wavFormatALaw  = 6
	wavSampleRate  = 8000
	wavBitsPerSamp = 8
)

// WAVHeader builds the 46-byte header for dataSize bytes of A-law audio.
// Duplex recordings are two-channel with block-align 2; everything else
// is mono.
func WAVHeader(channels int, dataSize int) []byte {
	b := make([]byte, WAVHeaderSize)

	copy(b[0:4], "RIFF")
	binary.LittleEndian.PutUint32(b[4:8], uint32(dataSize)+WAVHeaderSize-8)
	copy(b[8:12], "WAVE")

	copy(b[12:16], "fmt ")
	binary.LittleEndian.PutUint32(b[16:20], 18)
	binary.LittleEndian.PutUint16(b[20:22], wavFormatALaw)
	binary.LittleEndian.PutUint16(b[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(b[24:28], wavSampleRate)
	binary.LittleEndian.PutUint32(b[28:32], uint32(wavSampleRate*channels))
	binary.LittleEndian.PutUint16(b[32:34], uint16(channels))
	binary.LittleEndian.PutUint16(b[34:36], wavBitsPerSamp)
	binary.LittleEndian.PutUint16(b[36:38], 0)

	copy(b[38:42], "data")
	binary.LittleEndian.PutUint32(b[42:46], uint32(dataSize))

	return b
}

// FormatDuration renders the recording length as H:M:S.mmm for the
// database duration column.
func FormatDuration(dataSize int, channels int) string {
	if channels < 1 {
		channels = 1
	}
	ms := int64(dataSize) * 1000 / int64(wavSampleRate*channels)
	return fmt.Sprintf("%d:%02d:%02d.%03d",
		ms/3600000, ms/60000%60, ms/1000%60, ms%1000)
}
