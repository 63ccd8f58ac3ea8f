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

// Package events defines the typed records of the log-server stream and
// their wire codec. All multi-byte fields are little-endian and packed.
package events

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/USA-RedDragon/TetraStream/internal/tetra/tetraconst"
)

var (
	ErrShortRecord      = errors.New("record shorter than its fixed size")
	ErrBadSignature     = errors.New("record signature mismatch")
	ErrUnknownMessageID = errors.New("unknown message id")
)

// Event is one typed record from the stream.
type Event interface {
	// Topic returns the bus topic the event is published under.
	Topic() string
}

// Header is the 8-byte common header of every signaling record.
type Header struct {
	Seq        uint16
	APIVersion uint8
	MessageID  tetraconst.MessageID
}

func decodeHeader(b []byte) (Header, error) {
	if len(b) < tetraconst.HeaderLength {
		return Header{}, ErrShortRecord
	}
	if binary.LittleEndian.Uint32(b[0:4]) != tetraconst.SignatureSignaling {
		return Header{}, ErrBadSignature
	}
	return Header{
		Seq:        binary.LittleEndian.Uint16(b[4:6]),
		APIVersion: b[6],
		MessageID:  tetraconst.MessageID(b[7]),
	}, nil
}

func (h Header) encode(b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], tetraconst.SignatureSignaling)
	binary.LittleEndian.PutUint16(b[4:6], h.Seq)
	b[6] = h.APIVersion
	b[7] = uint8(h.MessageID)
}

// Topic returns the signaling topic derived from the message id.
func (h Header) Topic() string {
	return tetraconst.TopicSignaling(h.MessageID)
}

// Party is a TETRA subscriber identity: TSI triple, optional BCD user
// number and fixed-width display description.
type Party struct {
	SSI         uint32
	MNC         uint16
	MCC         uint16
	Number      string
	Description string
}

func decodeParty(b []byte) Party {
	// Caller guarantees len(b) >= tetraconst.PartyLength.
	return Party{
		SSI:         binary.LittleEndian.Uint32(b[0:4]),
		MNC:         binary.LittleEndian.Uint16(b[4:6]),
		MCC:         binary.LittleEndian.Uint16(b[6:8]),
		Number:      tetraconst.DecodeBCDNumber(b[8], b[9:16]),
		Description: trimFixed(b[16:40]),
	}
}

func (p Party) encode(b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], p.SSI)
	binary.LittleEndian.PutUint16(b[4:6], p.MNC)
	binary.LittleEndian.PutUint16(b[6:8], p.MCC)
	length, digits := tetraconst.EncodeBCDNumber(p.Number)
	b[8] = length
	copy(b[9:16], digits[:])
	putFixed(b[16:40], p.Description)
}

// String renders the TSI as MCC:MNC:SSI for trace lines.
func (p Party) String() string {
	return fmt.Sprintf("%d:%d:%d", p.MCC, p.MNC, p.SSI)
}

func trimFixed(b []byte) string {
	return strings.TrimRight(string(b), "\x00")
}

func putFixed(b []byte, s string) {
	for i := range b {
		b[i] = 0
	}
	copy(b, s)
}

// KeepAlive is the log server's periodic heartbeat.
type KeepAlive struct {
	Header
	ServerNo    uint32
	Timeout     uint32
	SWVersion   uint32
	SWVerString string
	Description string
}

// DuplexCallChange announces or updates a duplex call.
type DuplexCallChange struct {
	Header
	CallID  uint32
	Action  tetraconst.CallAction
	Timeout uint16
	AParty  Party
	BParty  Party
}

// DuplexCallRelease ends a duplex call.
type DuplexCallRelease struct {
	Header
	CallID uint32
	Cause  tetraconst.ReleaseCause
}

// SimplexCallStartChange announces or updates a simplex call.
type SimplexCallStartChange struct {
	Header
	CallID  uint32
	Action  tetraconst.CallAction
	Timeout uint16
	AParty  Party
	BParty  Party
}

// SimplexCallPttChange reports the current talking party of a simplex call.
type SimplexCallPttChange struct {
	Header
	CallID       uint32
	TalkingParty tetraconst.TalkingParty
}

// SimplexCallRelease ends a simplex call.
type SimplexCallRelease struct {
	Header
	CallID uint32
	Cause  tetraconst.ReleaseCause
}

// GroupCallStartChange announces or updates a group call.
type GroupCallStartChange struct {
	Header
	CallID  uint32
	Action  tetraconst.CallAction
	Timeout uint16
	Group   Party
}

// GroupCallPttActive reports a new talker on a group call.
type GroupCallPttActive struct {
	Header
	CallID  uint32
	Talking Party
}

// GroupCallPttIdle reports that a group call went silent.
type GroupCallPttIdle struct {
	Header
	CallID uint32
}

// GroupCallRelease ends a group call.
type GroupCallRelease struct {
	Header
	CallID uint32
	Cause  tetraconst.ReleaseCause
}

// StatusSDS is a precoded short-data status message.
type StatusSDS struct {
	Header
	Calling Party
	Called  Party
	Status  uint16
}

// TextSDS is a free-text short-data message.
type TextSDS struct {
	Header
	Calling  Party
	Called   Party
	UserData string
}

// DecodeSignaling decodes one complete signaling record. The slice must
// hold exactly the fixed record size for the header's message id; the
// parser enforces this before calling.
func DecodeSignaling(b []byte) (Event, error) {
	hdr, err := decodeHeader(b)
	if err != nil {
		return nil, err
	}
	size, ok := tetraconst.RecordSize(hdr.MessageID)
	if !ok {
		return nil, ErrUnknownMessageID
	}
	if len(b) < size {
		return nil, ErrShortRecord
	}

	switch hdr.MessageID {
	case tetraconst.MsgKeepAlive:
		return &KeepAlive{
			Header:      hdr,
			ServerNo:    binary.LittleEndian.Uint32(b[8:12]),
			Timeout:     binary.LittleEndian.Uint32(b[12:16]),
			SWVersion:   binary.LittleEndian.Uint32(b[16:20]),
			SWVerString: trimFixed(b[20:36]),
			Description: trimFixed(b[36:68]),
		}, nil
	case tetraconst.MsgDuplexCallChange:
		return &DuplexCallChange{
			Header:  hdr,
			CallID:  binary.LittleEndian.Uint32(b[8:12]),
			Action:  tetraconst.CallAction(binary.LittleEndian.Uint16(b[12:14])),
			Timeout: binary.LittleEndian.Uint16(b[14:16]),
			AParty:  decodeParty(b[16:56]),
			BParty:  decodeParty(b[56:96]),
		}, nil
	case tetraconst.MsgDuplexCallRelease:
		return &DuplexCallRelease{
			Header: hdr,
			CallID: binary.LittleEndian.Uint32(b[8:12]),
			Cause:  tetraconst.ReleaseCause(binary.LittleEndian.Uint16(b[12:14])),
		}, nil
	case tetraconst.MsgSimplexCallStartChange:
		return &SimplexCallStartChange{
			Header:  hdr,
			CallID:  binary.LittleEndian.Uint32(b[8:12]),
			Action:  tetraconst.CallAction(binary.LittleEndian.Uint16(b[12:14])),
			Timeout: binary.LittleEndian.Uint16(b[14:16]),
			AParty:  decodeParty(b[16:56]),
			BParty:  decodeParty(b[56:96]),
		}, nil
	case tetraconst.MsgSimplexCallPttChange:
		return &SimplexCallPttChange{
			Header:       hdr,
			CallID:       binary.LittleEndian.Uint32(b[8:12]),
			TalkingParty: tetraconst.TalkingParty(binary.LittleEndian.Uint16(b[12:14])),
		}, nil
	case tetraconst.MsgSimplexCallRelease:
		return &SimplexCallRelease{
			Header: hdr,
			CallID: binary.LittleEndian.Uint32(b[8:12]),
			Cause:  tetraconst.ReleaseCause(binary.LittleEndian.Uint16(b[12:14])),
		}, nil
	case tetraconst.MsgGroupCallStartChange:
		return &GroupCallStartChange{
			Header:  hdr,
			CallID:  binary.LittleEndian.Uint32(b[8:12]),
			Action:  tetraconst.CallAction(binary.LittleEndian.Uint16(b[12:14])),
			Timeout: binary.LittleEndian.Uint16(b[14:16]),
			Group:   decodeParty(b[16:56]),
		}, nil
	case tetraconst.MsgGroupCallPttActive:
		return &GroupCallPttActive{
			Header:  hdr,
			CallID:  binary.LittleEndian.Uint32(b[8:12]),
			Talking: decodeParty(b[12:52]),
		}, nil
	case tetraconst.MsgGroupCallPttIdle:
		return &GroupCallPttIdle{
			Header: hdr,
			CallID: binary.LittleEndian.Uint32(b[8:12]),
		}, nil
	case tetraconst.MsgGroupCallRelease:
		return &GroupCallRelease{
			Header: hdr,
			CallID: binary.LittleEndian.Uint32(b[8:12]),
			Cause:  tetraconst.ReleaseCause(binary.LittleEndian.Uint16(b[12:14])),
		}, nil
	case tetraconst.MsgStatusSDS:
		return &StatusSDS{
			Header:  hdr,
			Calling: decodeParty(b[8:48]),
			Called:  decodeParty(b[48:88]),
			Status:  binary.LittleEndian.Uint16(b[88:90]),
		}, nil
	case tetraconst.MsgTextSDS:
		length := binary.LittleEndian.Uint16(b[88:90])
		if length > 140 {
			length = 140
		}
		return &TextSDS{
			Header:  hdr,
			Calling: decodeParty(b[8:48]),
			Called:  decodeParty(b[48:88]),
			UserData: string(b[90 : 90+int(length)]),
		}, nil
	default:
		return nil, ErrUnknownMessageID
	}
}
