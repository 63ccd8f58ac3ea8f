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

package tracer

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/USA-RedDragon/TetraStream/internal/config"
	"github.com/USA-RedDragon/TetraStream/internal/metrics"
	"github.com/USA-RedDragon/TetraStream/internal/pubsub"
	"github.com/USA-RedDragon/TetraStream/internal/tetra/events"
	"github.com/USA-RedDragon/TetraStream/internal/tetra/tetraconst"
	"github.com/USA-RedDragon/configulator"
)

// The prometheus default registry rejects duplicate registration, so the
// package's tests share one Metrics instance.
var testMetrics = metrics.NewMetrics() //nolint:gochecknoglobals

func makeTestTracer(t *testing.T, divisor int) (*Tracer, *net.UDPConn) {
	t.Helper()

	sink, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("Failed to open sink: %v", err)
	}
	t.Cleanup(func() { _ = sink.Close() })

	cfg, err := configulator.New[config.Config]().Default()
	if err != nil {
		t.Fatalf("Failed to create default config: %v", err)
	}
	cfg.Tracer.VoiceJSONDivisor = divisor
	cfg.Tracer.JSONPublisher = sink.LocalAddr().String()

	bus, err := pubsub.MakePubSub(context.Background(), &cfg)
	if err != nil {
		t.Fatalf("Failed to create pubsub: %v", err)
	}

	tr := NewTracer(&cfg, bus, testMetrics)
	conn, err := net.DialUDP("udp", nil, sink.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("Failed to dial sink: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	tr.conn = conn

	return tr, sink
}

func voiceEnvelope(callID uint32, seq uint16) []byte {
	frame := &events.VoiceFrame{
		Originator:   tetraconst.OriginatorA,
		CallID:       callID,
		PacketSeq:    seq,
		Payload1Kind: tetraconst.PayloadG711ALaw,
		Payload1:     bytes.Repeat([]byte{0x7F}, tetraconst.ALawFrameLength),
	}
	return events.PackEnvelope(time.Now(), frame.Encode())
}

func countDatagrams(t *testing.T, sink *net.UDPConn) int {
	t.Helper()
	count := 0
	buf := make([]byte, 4096)
	for {
		_ = sink.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		if _, _, err := sink.ReadFromUDP(buf); err != nil {
			return count
		}
		count++
	}
}

// Only every Nth voice frame goes out as JSON.
func TestVoiceJSONRateReduction(t *testing.T) {
	tr, sink := makeTestTracer(t, 3)

	for seq := uint16(0); seq < 9; seq++ {
		tr.trace(voiceEnvelope(1, seq))
	}

	if got := countDatagrams(t, sink); got != 3 {
		t.Errorf("Expected 3 JSON datagrams for 9 voice frames at divisor 3, got %d", got)
	}
}

// Signaling always goes out as JSON.
func TestSignalingJSONAlwaysPublished(t *testing.T) {
	tr, sink := makeTestTracer(t, 10)

	ka := &events.KeepAlive{ServerNo: 7, Timeout: 30}
	tr.trace(events.PackEnvelope(time.Now(), ka.Encode()))
	tr.trace(events.PackEnvelope(time.Now(), ka.Encode()))

	if got := countDatagrams(t, sink); got != 2 {
		t.Errorf("Expected 2 JSON datagrams, got %d", got)
	}
}

func TestJSONCarriesTypeTag(t *testing.T) {
	tr, sink := makeTestTracer(t, 1)

	release := &events.SimplexCallRelease{CallID: 42, Cause: tetraconst.CauseARelease}
	tr.trace(events.PackEnvelope(time.Now(), release.Encode()))

	buf := make([]byte, 4096)
	_ = sink.SetReadDeadline(time.Now().Add(time.Second))
	n, _, err := sink.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("Sink read failed: %v", err)
	}

	var obj map[string]string
	if err := json.Unmarshal(buf[:n], &obj); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if obj["type"] != "SimplexCallRelease" {
		t.Errorf("type = %q, want SimplexCallRelease", obj["type"])
	}
	if obj["call_id"] != "42" {
		t.Errorf("call_id = %q, want 42", obj["call_id"])
	}
	if obj["cause"] != "ARelease" {
		t.Errorf("cause = %q, want ARelease", obj["cause"])
	}
}

func TestDescribeCoversVoice(t *testing.T) {
	t.Parallel()
	frame := &events.VoiceFrame{
		CallID:       5,
		Originator:   tetraconst.OriginatorB,
		PacketSeq:    3,
		Payload1Kind: tetraconst.PayloadG711ALaw,
		Payload1:     make([]byte, 480),
	}
	msgType, fields := describe(frame)
	if msgType != "VoiceFrame" {
		t.Errorf("msgType = %s", msgType)
	}
	if len(fields) == 0 {
		t.Fatal("Expected fields")
	}
	line := renderDelimited(time.Unix(0, 0).UTC(), msgType, fields)
	if !bytes.Contains([]byte(line), []byte("|VoiceFrame|5|B|3|7|480")) {
		t.Errorf("Unexpected delimited line: %s", line)
	}
}
