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

package ingest_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/USA-RedDragon/TetraStream/internal/config"
	"github.com/USA-RedDragon/TetraStream/internal/metrics"
	"github.com/USA-RedDragon/TetraStream/internal/pubsub"
	"github.com/USA-RedDragon/TetraStream/internal/tetra/events"
	"github.com/USA-RedDragon/TetraStream/internal/tetra/ingest"
	"github.com/USA-RedDragon/TetraStream/internal/tetra/tetraconst"
	"github.com/USA-RedDragon/configulator"
)

// The prometheus default registry rejects duplicate registration, so the
// package's tests share one Metrics instance.
var testMetrics = metrics.NewMetrics() //nolint:gochecknoglobals

func startTestServer(t *testing.T) (*ingest.Server, pubsub.PubSub, *net.UDPConn) {
	t.Helper()

	cfg, err := configulator.New[config.Config]().Default()
	if err != nil {
		t.Fatalf("Failed to create default config: %v", err)
	}
	cfg.Collector.Bind = "127.0.0.1"
	cfg.Collector.Port = 0 // ephemeral

	bus, err := pubsub.MakePubSub(context.Background(), &cfg)
	if err != nil {
		t.Fatalf("Failed to create pubsub: %v", err)
	}

	server := ingest.MakeServer(&cfg, bus, testMetrics)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := server.Start(ctx); err != nil {
		t.Fatalf("Failed to start ingress: %v", err)
	}
	t.Cleanup(func() { server.Stop(ctx) })

	conn, err := net.DialUDP("udp", nil, server.Server.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("Failed to dial ingress: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return &server, bus, conn
}

func receiveEvent(t *testing.T, sub pubsub.Subscription, timeout time.Duration) events.Event {
	t.Helper()
	select {
	case msg := <-sub.Channel():
		_, record, err := events.UnpackEnvelope(msg)
		if err != nil {
			t.Fatalf("Bad envelope: %v", err)
		}
		event, err := events.DecodeAny(record)
		if err != nil {
			t.Fatalf("Bad record: %v", err)
		}
		return event
	case <-time.After(timeout):
		t.Fatal("Timed out waiting for a bus event")
		return nil
	}
}

func TestIngestPublishesKeepAlive(t *testing.T) {
	_, bus, conn := startTestServer(t)

	sub := bus.Subscribe("S_01")
	defer func() { _ = sub.Close() }()

	ka := &events.KeepAlive{ServerNo: 7, Timeout: 30, SWVerString: "7.1"}
	if _, err := conn.Write(ka.Encode()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	event := receiveEvent(t, sub, 2*time.Second)
	got, ok := event.(*events.KeepAlive)
	if !ok {
		t.Fatalf("Expected KeepAlive, got %T", event)
	}
	if got.ServerNo != 7 {
		t.Errorf("ServerNo = %d, want 7", got.ServerNo)
	}
}

// A 96-byte signaling record fragmented across three datagrams yields
// exactly one event after the third.
func TestIngestReassemblesFragmentedRecord(t *testing.T) {
	_, bus, conn := startTestServer(t)

	sub := bus.Subscribe("S_20")
	defer func() { _ = sub.Close() }()

	ev := &events.SimplexCallStartChange{
		CallID: 100,
		Action: tetraconst.ActionNewCallSetup,
		AParty: events.Party{SSI: 1, MNC: 9, MCC: 262},
		BParty: events.Party{SSI: 2, MNC: 9, MCC: 262},
	}
	record := ev.Encode()

	for _, chunk := range [][]byte{record[:30], record[30:60], record[60:]} {
		if _, err := conn.Write(chunk); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	event := receiveEvent(t, sub, 2*time.Second)
	got, ok := event.(*events.SimplexCallStartChange)
	if !ok {
		t.Fatalf("Expected SimplexCallStartChange, got %T", event)
	}
	if got.CallID != 100 {
		t.Errorf("CallID = %d, want 100", got.CallID)
	}

	select {
	case <-sub.Channel():
		t.Error("Expected exactly one event")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestIngestSurvivesJunk(t *testing.T) {
	_, bus, conn := startTestServer(t)

	sub := bus.Subscribe("V_")
	defer func() { _ = sub.Close() }()

	frame := &events.VoiceFrame{
		Originator:   tetraconst.OriginatorA,
		CallID:       42,
		Payload1Kind: tetraconst.PayloadG711ALaw,
		Payload1:     make([]byte, tetraconst.ALawFrameLength),
	}

	junk := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	if _, err := conn.Write(append(junk, frame.Encode()...)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	event := receiveEvent(t, sub, 2*time.Second)
	got, ok := event.(*events.VoiceFrame)
	if !ok {
		t.Fatalf("Expected VoiceFrame, got %T", event)
	}
	if got.CallID != 42 {
		t.Errorf("CallID = %d, want 42", got.CallID)
	}
}
