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

package events_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/USA-RedDragon/TetraStream/internal/tetra/events"
	"github.com/USA-RedDragon/TetraStream/internal/tetra/tetraconst"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeepAliveRoundTrip(t *testing.T) {
	t.Parallel()
	in := &events.KeepAlive{
		Header:      events.Header{Seq: 77, APIVersion: 2, MessageID: tetraconst.MsgKeepAlive},
		ServerNo:    7,
		Timeout:     30,
		SWVersion:   0x00070102,
		SWVerString: "7.1.2",
		Description: "central log server",
	}

	record := in.Encode()
	require.Len(t, record, 68)

	out, err := events.DecodeSignaling(record)
	require.NoError(t, err)
	ka, ok := out.(*events.KeepAlive)
	require.True(t, ok)
	assert.Equal(t, in, ka)
}

func TestCallChangeRoundTrip(t *testing.T) {
	t.Parallel()
	in := &events.DuplexCallChange{
		Header:  events.Header{Seq: 3, APIVersion: 1, MessageID: tetraconst.MsgDuplexCallChange},
		CallID:  1234,
		Action:  tetraconst.ActionNewCallSetup,
		Timeout: 60,
		AParty: events.Party{
			SSI: 2001, MNC: 9, MCC: 262,
			Number:      "0421*#",
			Description: "DISPATCH-1",
		},
		BParty: events.Party{
			SSI: 2002, MNC: 9, MCC: 262,
			Description: "UNIT-7",
		},
	}

	record := in.Encode()
	require.Len(t, record, 96)

	out, err := events.DecodeSignaling(record)
	require.NoError(t, err)
	dc, ok := out.(*events.DuplexCallChange)
	require.True(t, ok)
	assert.Equal(t, in, dc)
	assert.Equal(t, "S_10", out.Topic())
}

func TestTextSDSRoundTrip(t *testing.T) {
	t.Parallel()
	in := &events.TextSDS{
		Header:   events.Header{Seq: 9},
		Calling:  events.Party{SSI: 5, MNC: 1, MCC: 262},
		Called:   events.Party{SSI: 6, MNC: 1, MCC: 262},
		UserData: "engine room flooding",
	}

	out, err := events.DecodeSignaling(in.Encode())
	require.NoError(t, err)
	sds, ok := out.(*events.TextSDS)
	require.True(t, ok)
	assert.Equal(t, in.UserData, sds.UserData)
	assert.Equal(t, in.Calling.SSI, sds.Calling.SSI)
}

func TestVoiceFrameRoundTrip(t *testing.T) {
	t.Parallel()
	in := &events.VoiceFrame{
		Version:      1,
		Originator:   tetraconst.OriginatorB,
		Node:         3,
		CallID:       100,
		PacketSeq:    12,
		StreamRandom: 0xBEEF,
		Payload1Kind: tetraconst.PayloadG711ALaw,
		Payload1:     bytes.Repeat([]byte{0xD5}, tetraconst.ALawFrameLength),
	}

	record := in.Encode()
	require.Len(t, record, 500)

	out, err := events.DecodeVoice(record)
	require.NoError(t, err)
	assert.Equal(t, in.CallID, out.CallID)
	assert.Equal(t, in.Originator, out.Originator)
	assert.Equal(t, in.PacketSeq, out.PacketSeq)
	assert.True(t, out.IsALaw())
	assert.Equal(t, in.Payload1, out.Payload1)
	assert.Equal(t, "V_100", out.Topic())
}

func TestDecodeSignalingRejectsVoice(t *testing.T) {
	t.Parallel()
	frame := &events.VoiceFrame{CallID: 1, Payload1Kind: tetraconst.PayloadG711ALaw, Payload1: make([]byte, 480)}
	_, err := events.DecodeSignaling(frame.Encode())
	assert.Error(t, err)
}

func TestEnvelopeRoundTrip(t *testing.T) {
	t.Parallel()
	ts := time.Unix(1700000000, 0)
	record := []byte{1, 2, 3, 4}

	gotTS, gotRecord, err := events.UnpackEnvelope(events.PackEnvelope(ts, record))
	require.NoError(t, err)
	assert.True(t, ts.Equal(gotTS))
	assert.Equal(t, record, gotRecord)
}
