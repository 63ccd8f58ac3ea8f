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

	"github.com/USA-RedDragon/TetraStream/internal/tetra/tetraconst"
)

// Encode methods mirror DecodeSignaling byte for byte. They exist for the
// test tooling; the ingest path never re-encodes records.

func newRecord(id tetraconst.MessageID, hdr Header) []byte {
	size, _ := tetraconst.RecordSize(id)
	b := make([]byte, size)
	hdr.MessageID = id
	hdr.encode(b)
	return b
}

func (e *KeepAlive) Encode() []byte {
	b := newRecord(tetraconst.MsgKeepAlive, e.Header)
	binary.LittleEndian.PutUint32(b[8:12], e.ServerNo)
	binary.LittleEndian.PutUint32(b[12:16], e.Timeout)
	binary.LittleEndian.PutUint32(b[16:20], e.SWVersion)
	putFixed(b[20:36], e.SWVerString)
	putFixed(b[36:68], e.Description)
	return b
}

func encodeCallChange(b []byte, callID uint32, action tetraconst.CallAction, timeout uint16, a, bp Party) {
	binary.LittleEndian.PutUint32(b[8:12], callID)
	binary.LittleEndian.PutUint16(b[12:14], uint16(action))
	binary.LittleEndian.PutUint16(b[14:16], timeout)
	a.encode(b[16:56])
	bp.encode(b[56:96])
}

func (e *DuplexCallChange) Encode() []byte {
	b := newRecord(tetraconst.MsgDuplexCallChange, e.Header)
	encodeCallChange(b, e.CallID, e.Action, e.Timeout, e.AParty, e.BParty)
	return b
}

func (e *SimplexCallStartChange) Encode() []byte {
	b := newRecord(tetraconst.MsgSimplexCallStartChange, e.Header)
	encodeCallChange(b, e.CallID, e.Action, e.Timeout, e.AParty, e.BParty)
	return b
}

func encodeRelease(b []byte, callID uint32, cause tetraconst.ReleaseCause) {
	binary.LittleEndian.PutUint32(b[8:12], callID)
	binary.LittleEndian.PutUint16(b[12:14], uint16(cause))
}

func (e *DuplexCallRelease) Encode() []byte {
	b := newRecord(tetraconst.MsgDuplexCallRelease, e.Header)
	encodeRelease(b, e.CallID, e.Cause)
	return b
}

func (e *SimplexCallRelease) Encode() []byte {
	b := newRecord(tetraconst.MsgSimplexCallRelease, e.Header)
	encodeRelease(b, e.CallID, e.Cause)
	return b
}

func (e *GroupCallRelease) Encode() []byte {
	b := newRecord(tetraconst.MsgGroupCallRelease, e.Header)
	encodeRelease(b, e.CallID, e.Cause)
	return b
}

func (e *SimplexCallPttChange) Encode() []byte {
	b := newRecord(tetraconst.MsgSimplexCallPttChange, e.Header)
	binary.LittleEndian.PutUint32(b[8:12], e.CallID)
	binary.LittleEndian.PutUint16(b[12:14], uint16(e.TalkingParty))
	return b
}

func (e *GroupCallStartChange) Encode() []byte {
	b := newRecord(tetraconst.MsgGroupCallStartChange, e.Header)
	binary.LittleEndian.PutUint32(b[8:12], e.CallID)
	binary.LittleEndian.PutUint16(b[12:14], uint16(e.Action))
	binary.LittleEndian.PutUint16(b[14:16], e.Timeout)
	e.Group.encode(b[16:56])
	return b
}

func (e *GroupCallPttActive) Encode() []byte {
	b := newRecord(tetraconst.MsgGroupCallPttActive, e.Header)
	binary.LittleEndian.PutUint32(b[8:12], e.CallID)
	e.Talking.encode(b[12:52])
	return b
}

func (e *GroupCallPttIdle) Encode() []byte {
	b := newRecord(tetraconst.MsgGroupCallPttIdle, e.Header)
	binary.LittleEndian.PutUint32(b[8:12], e.CallID)
	return b
}

func (e *StatusSDS) Encode() []byte {
	b := newRecord(tetraconst.MsgStatusSDS, e.Header)
	e.Calling.encode(b[8:48])
	e.Called.encode(b[48:88])
	binary.LittleEndian.PutUint16(b[88:90], e.Status)
	return b
}

func (e *TextSDS) Encode() []byte {
	b := newRecord(tetraconst.MsgTextSDS, e.Header)
	e.Calling.encode(b[8:48])
	e.Called.encode(b[48:88])
	data := e.UserData
	if len(data) > 140 {
		data = data[:140]
	}
	binary.LittleEndian.PutUint16(b[88:90], uint16(len(data)))
	copy(b[90:230], data)
	return b
}
