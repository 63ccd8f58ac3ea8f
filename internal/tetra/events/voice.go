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
	"fmt"

	"github.com/USA-RedDragon/TetraStream/internal/tetra/tetraconst"
)

// VoiceFrame is one voice record: the 20-byte fixed prefix plus payload 1
// and optional payload 2. Only G.711 A-law payload 1 frames are routed and
// persisted; the others are carried for tracing only.
type VoiceFrame struct {
	Version        uint8
	Originator     tetraconst.StreamOriginator
	Node           uint8
	CallID         uint32
	SourceAndIndex uint16
	StreamRandom   uint16
	PacketSeq      uint16
	Payload1Kind   tetraconst.PayloadKind
	Payload2Kind   tetraconst.PayloadKind
	Payload1       []byte
	Payload2       []byte
}

// Topic returns the per-call voice topic.
func (v *VoiceFrame) Topic() string {
	return tetraconst.TopicVoice(v.CallID)
}

// IsALaw reports whether the frame carries a routable 480-byte A-law payload.
func (v *VoiceFrame) IsALaw() bool {
	return v.Payload1Kind == tetraconst.PayloadG711ALaw &&
		len(v.Payload1) == tetraconst.ALawFrameLength
}

// String renders the frame for trace lines.
func (v *VoiceFrame) String() string {
	return fmt.Sprintf("VoiceFrame: Call %d, Originator %s, Seq %d, Kind %d, Len %d",
		v.CallID, v.Originator, v.PacketSeq, v.Payload1Kind, len(v.Payload1))
}

// DecodeVoice decodes one complete voice record. The slice must hold the
// 20-byte prefix plus both payloads; the parser enforces this.
func DecodeVoice(b []byte) (*VoiceFrame, error) {
	if len(b) < tetraconst.VoiceHeaderLength {
		return nil, ErrShortRecord
	}
	if binary.LittleEndian.Uint32(b[0:4]) != tetraconst.SignatureVoice {
		return nil, ErrBadSignature
	}

	v := &VoiceFrame{
		Version:        b[4],
		Originator:     tetraconst.StreamOriginator(b[5]),
		Node:           b[6],
		CallID:         binary.LittleEndian.Uint32(b[7:11]),
		SourceAndIndex: binary.LittleEndian.Uint16(b[11:13]),
		StreamRandom:   binary.LittleEndian.Uint16(b[13:15]),
		PacketSeq:      binary.LittleEndian.Uint16(b[15:17]),
		Payload1Kind:   tetraconst.PayloadKind(b[18]),
		Payload2Kind:   tetraconst.PayloadKind(b[19]),
	}

	len1, ok := tetraconst.PayloadLength(v.Payload1Kind)
	if !ok {
		return nil, fmt.Errorf("voice payload 1 kind %d: %w", v.Payload1Kind, ErrUnknownMessageID)
	}
	len2, ok := tetraconst.PayloadLength(v.Payload2Kind)
	if !ok {
		return nil, fmt.Errorf("voice payload 2 kind %d: %w", v.Payload2Kind, ErrUnknownMessageID)
	}
	if len(b) < tetraconst.VoiceHeaderLength+len1+len2 {
		return nil, ErrShortRecord
	}

	if len1 > 0 {
		v.Payload1 = b[tetraconst.VoiceHeaderLength : tetraconst.VoiceHeaderLength+len1]
	}
	if len2 > 0 {
		v.Payload2 = b[tetraconst.VoiceHeaderLength+len1 : tetraconst.VoiceHeaderLength+len1+len2]
	}

	return v, nil
}

// Encode mirrors DecodeVoice byte for byte.
func (v *VoiceFrame) Encode() []byte {
	b := make([]byte, tetraconst.VoiceHeaderLength+len(v.Payload1)+len(v.Payload2))
	binary.LittleEndian.PutUint32(b[0:4], tetraconst.SignatureVoice)
	b[4] = v.Version
	b[5] = uint8(v.Originator)
	b[6] = v.Node
	binary.LittleEndian.PutUint32(b[7:11], v.CallID)
	binary.LittleEndian.PutUint16(b[11:13], v.SourceAndIndex)
	binary.LittleEndian.PutUint16(b[13:15], v.StreamRandom)
	binary.LittleEndian.PutUint16(b[15:17], v.PacketSeq)
	b[18] = uint8(v.Payload1Kind)
	b[19] = uint8(v.Payload2Kind)
	copy(b[tetraconst.VoiceHeaderLength:], v.Payload1)
	copy(b[tetraconst.VoiceHeaderLength+len(v.Payload1):], v.Payload2)
	return b
}

// DecodeAny routes a complete record to the signaling or voice decoder
// based on its signature. Bus subscribers use it to recover the typed
// event from an envelope payload.
func DecodeAny(b []byte) (Event, error) {
	if len(b) < 4 {
		return nil, ErrShortRecord
	}
	switch binary.LittleEndian.Uint32(b[0:4]) {
	case tetraconst.SignatureSignaling:
		return DecodeSignaling(b)
	case tetraconst.SignatureVoice:
		return DecodeVoice(b)
	default:
		return nil, ErrBadSignature
	}
}
