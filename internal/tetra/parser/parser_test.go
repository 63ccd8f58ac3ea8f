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

package parser_test

import (
	"bytes"
	"testing"

	"github.com/USA-RedDragon/TetraStream/internal/tetra/events"
	"github.com/USA-RedDragon/TetraStream/internal/tetra/parser"
	"github.com/USA-RedDragon/TetraStream/internal/tetra/tetraconst"
)

func keepAliveRecord(serverNo uint32) []byte {
	ka := &events.KeepAlive{
		Header:      events.Header{Seq: 1, APIVersion: 1},
		ServerNo:    serverNo,
		Timeout:     30,
		SWVersion:   0x010203,
		SWVerString: "7.12",
		Description: "log server",
	}
	return ka.Encode()
}

func callChangeRecord(callID uint32) []byte {
	ev := &events.SimplexCallStartChange{
		Header:  events.Header{Seq: 2, APIVersion: 1},
		CallID:  callID,
		Action:  tetraconst.ActionNewCallSetup,
		Timeout: 30,
		AParty:  events.Party{SSI: 1001, MNC: 9, MCC: 262, Number: "123*#", Description: "ALPHA"},
		BParty:  events.Party{SSI: 1002, MNC: 9, MCC: 262, Description: "BRAVO"},
	}
	return ev.Encode()
}

func voiceRecord(callID uint32, seq uint16, fill byte) []byte {
	payload := bytes.Repeat([]byte{fill}, tetraconst.ALawFrameLength)
	frame := &events.VoiceFrame{
		Version:      1,
		Originator:   tetraconst.OriginatorA,
		CallID:       callID,
		PacketSeq:    seq,
		Payload1Kind: tetraconst.PayloadG711ALaw,
		Payload1:     payload,
	}
	return frame.Encode()
}

func TestParseSingleSignalingRecord(t *testing.T) {
	t.Parallel()
	p := parser.New()

	record := keepAliveRecord(7)
	framed, consumed, junked := p.Parse(record)

	if len(framed) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(framed))
	}
	if consumed != len(record) {
		t.Errorf("Expected %d bytes consumed, got %d", len(record), consumed)
	}
	if junked != 0 {
		t.Errorf("Expected no junk, got %d", junked)
	}
	if framed[0].Topic != "S_01" {
		t.Errorf("Expected topic S_01, got %s", framed[0].Topic)
	}
	ka, ok := framed[0].Event.(*events.KeepAlive)
	if !ok {
		t.Fatalf("Expected KeepAlive, got %T", framed[0].Event)
	}
	if ka.ServerNo != 7 {
		t.Errorf("Expected server 7, got %d", ka.ServerNo)
	}
}

// A record split across datagrams is never dropped: nothing is consumed
// until the full message is buffered.
func TestParseFragmentedRecord(t *testing.T) {
	t.Parallel()
	p := parser.New()

	record := callChangeRecord(100)
	if len(record) != 96 {
		t.Fatalf("Expected a 96-byte call change record, got %d", len(record))
	}

	var buf []byte
	for _, chunk := range [][]byte{record[:30], record[30:60], record[60:]} {
		buf = append(buf, chunk...)
		framed, consumed, _ := p.Parse(buf)
		if len(buf) < len(record) {
			if len(framed) != 0 {
				t.Fatalf("Emitted an event from a partial record")
			}
			if consumed != 0 {
				t.Fatalf("Consumed %d bytes of a partial record", consumed)
			}
			continue
		}
		if len(framed) != 1 {
			t.Fatalf("Expected exactly 1 event after the final fragment, got %d", len(framed))
		}
		if consumed != len(record) {
			t.Errorf("Expected %d bytes consumed, got %d", len(record), consumed)
		}
	}
}

// Junk bytes between well-formed records delay but never drop them.
func TestParseJunkResynchronization(t *testing.T) {
	t.Parallel()
	p := parser.New()

	var buf []byte
	buf = append(buf, 0xDE, 0xAD, 0xBE)
	buf = append(buf, keepAliveRecord(1)...)
	buf = append(buf, 0xFF)
	buf = append(buf, callChangeRecord(42)...)
	buf = append(buf, 0x00, 0x01)
	buf = append(buf, voiceRecord(42, 5, 0xAA)...)

	framed, consumed, junked := p.Parse(buf)
	if len(framed) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(framed))
	}
	if consumed != len(buf) {
		t.Errorf("Expected %d bytes consumed, got %d", len(buf), consumed)
	}
	if junked != 6 {
		t.Errorf("Expected 6 junk bytes, got %d", junked)
	}
}

func TestParseUnknownMessageIDResyncs(t *testing.T) {
	t.Parallel()
	p := parser.New()

	bogus := keepAliveRecord(1)
	bogus[7] = 0x7F // no such message id
	buf := append(bogus, keepAliveRecord(2)...)

	framed, consumed, _ := p.Parse(buf)
	if len(framed) != 1 {
		t.Fatalf("Expected the trailing record to survive, got %d events", len(framed))
	}
	ka, ok := framed[0].Event.(*events.KeepAlive)
	if !ok || ka.ServerNo != 2 {
		t.Errorf("Wrong surviving record: %+v", framed[0].Event)
	}
	if consumed != len(buf) {
		t.Errorf("Expected %d bytes consumed, got %d", len(buf), consumed)
	}
}

func TestParseVoiceFrame(t *testing.T) {
	t.Parallel()
	p := parser.New()

	record := voiceRecord(42, 17, 0x5A)
	framed, consumed, _ := p.Parse(record)

	if len(framed) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(framed))
	}
	if consumed != tetraconst.VoiceHeaderLength+tetraconst.ALawFrameLength {
		t.Errorf("Expected %d bytes consumed, got %d", tetraconst.VoiceHeaderLength+tetraconst.ALawFrameLength, consumed)
	}
	frame, ok := framed[0].Event.(*events.VoiceFrame)
	if !ok {
		t.Fatalf("Expected VoiceFrame, got %T", framed[0].Event)
	}
	if frame.CallID != 42 || frame.PacketSeq != 17 {
		t.Errorf("Wrong frame fields: %+v", frame)
	}
	if framed[0].Topic != "V_42" {
		t.Errorf("Expected topic V_42, got %s", framed[0].Topic)
	}
	if !bytes.Equal(frame.Payload1, bytes.Repeat([]byte{0x5A}, tetraconst.ALawFrameLength)) {
		t.Error("Payload mismatch")
	}
}

// A voice record with a declared but unprocessed payload kind advances
// whole without emitting.
func TestParseVoiceNonALawSkipsWhole(t *testing.T) {
	t.Parallel()
	p := parser.New()

	frame := &events.VoiceFrame{
		CallID:       9,
		Payload1Kind: 3,
		Payload1:     make([]byte, 27),
	}
	buf := append(frame.Encode(), keepAliveRecord(3)...)

	framed, consumed, junked := p.Parse(buf)
	if len(framed) != 1 {
		t.Fatalf("Expected only the keepalive, got %d events", len(framed))
	}
	if _, ok := framed[0].Event.(*events.KeepAlive); !ok {
		t.Errorf("Expected KeepAlive, got %T", framed[0].Event)
	}
	if consumed != len(buf) {
		t.Errorf("Expected %d bytes consumed, got %d", len(buf), consumed)
	}
	if junked != 0 {
		t.Errorf("Expected no junk bytes, got %d", junked)
	}
}

// Frame completeness: N well-formed records separated by arbitrary junk
// arrive as exactly N events regardless of datagram boundaries.
func TestParseCompletenessAcrossBoundaries(t *testing.T) {
	t.Parallel()
	p := parser.New()

	var stream []byte
	const n = 25
	for i := 0; i < n; i++ {
		stream = append(stream, 0x13) // junk that prefixes no signature
		stream = append(stream, voiceRecord(uint32(i), uint16(i), byte(i))...)
	}

	var got int
	var buf []byte
	// Deliberately awkward datagram sizes.
	for offset := 0; offset < len(stream); offset += 37 {
		end := offset + 37
		if end > len(stream) {
			end = len(stream)
		}
		buf = append(buf, stream[offset:end]...)
		framed, consumed, _ := p.Parse(buf)
		got += len(framed)
		buf = buf[consumed:]
	}

	if got != n {
		t.Errorf("Expected %d events, got %d", n, got)
	}
}
