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

// Package tracer mirrors every bus event as a pipe-delimited trace line
// and a JSON object on the external publish endpoint. Voice frames are
// rate-reduced on the JSON side to avoid flooding.
package tracer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/USA-RedDragon/TetraStream/internal/config"
	"github.com/USA-RedDragon/TetraStream/internal/metrics"
	"github.com/USA-RedDragon/TetraStream/internal/pubsub"
	"github.com/USA-RedDragon/TetraStream/internal/tetra/events"
)

// field is one named value of a trace line. Order is significant for the
// delimited rendering.
type field struct {
	key   string
	value string
}

// Tracer is the structured event publisher worker.
type Tracer struct {
	config  *config.Config
	pubsub  pubsub.PubSub
	metrics *metrics.Metrics

	conn       *net.UDPConn
	sub        pubsub.Subscription
	voiceCount uint64
	doneChan   chan struct{}
}

// NewTracer creates a Tracer.
func NewTracer(cfg *config.Config, ps pubsub.PubSub, m *metrics.Metrics) *Tracer {
	return &Tracer{
		config:   cfg,
		pubsub:   ps,
		metrics:  m,
		doneChan: make(chan struct{}),
	}
}

// Start subscribes to every topic and runs the trace loop.
func (t *Tracer) Start(ctx context.Context) error {
	if t.config.Tracer.JSONPublisher != "" {
		addr, err := net.ResolveUDPAddr("udp", t.config.Tracer.JSONPublisher)
		if err != nil {
			return fmt.Errorf("resolving json publisher endpoint: %w", err)
		}
		conn, err := net.DialUDP("udp", nil, addr)
		if err != nil {
			return fmt.Errorf("dialing json publisher endpoint: %w", err)
		}
		t.conn = conn
	}

	t.sub = t.pubsub.Subscribe("")
	go t.run(ctx)
	return nil
}

// Done is closed once the trace loop has exited.
func (t *Tracer) Done() <-chan struct{} {
	return t.doneChan
}

func (t *Tracer) run(ctx context.Context) {
	defer close(t.doneChan)
	for {
		select {
		case <-ctx.Done():
			slog.Info("Stopping tracer")
			_ = t.sub.Close()
			if t.conn != nil {
				_ = t.conn.Close()
			}
			return
		case msg, ok := <-t.sub.Channel():
			if !ok {
				return
			}
			t.trace(msg)
		}
	}
}

func (t *Tracer) trace(msg []byte) {
	receivedAt, record, err := events.UnpackEnvelope(msg)
	if err != nil {
		return
	}
	event, err := events.DecodeAny(record)
	if err != nil {
		return
	}

	msgType, fields := describe(event)
	isVoice := msgType == "VoiceFrame"

	// The delimited line is always produced for local tracing.
	delimited := renderDelimited(receivedAt, msgType, fields)
	if isVoice {
		slog.Debug(delimited)
	} else {
		slog.Info(delimited)
	}
	t.metrics.TraceLinesPublished.WithLabelValues("delimited").Inc()

	if isVoice {
		t.voiceCount++
		if t.voiceCount%uint64(t.config.Tracer.VoiceJSONDivisor) != 0 {
			return
		}
	}
	t.publishJSON(receivedAt, msgType, fields)
}

func renderDelimited(receivedAt time.Time, msgType string, fields []field) string {
	parts := make([]string, 0, len(fields)+2)
	parts = append(parts, receivedAt.Format(time.RFC3339), msgType)
	for _, f := range fields {
		parts = append(parts, f.value)
	}
	return strings.Join(parts, "|")
}

func (t *Tracer) publishJSON(receivedAt time.Time, msgType string, fields []field) {
	if t.conn == nil {
		return
	}

	obj := make(map[string]string, len(fields)+2)
	obj["type"] = msgType
	obj["received_at"] = receivedAt.Format(time.RFC3339)
	for _, f := range fields {
		obj[f.key] = f.value
	}

	line, err := json.Marshal(obj)
	if err != nil {
		slog.Error("Error marshalling trace JSON", "error", err)
		return
	}
	if _, err := t.conn.Write(line); err != nil {
		slog.Error("Error publishing trace JSON", "error", err)
		return
	}
	t.metrics.TraceLinesPublished.WithLabelValues("json").Inc()
}

func partyFields(prefix string, p events.Party) []field {
	return []field{
		{prefix + "_ssi", fmt.Sprintf("%d", p.SSI)},
		{prefix + "_mnc", fmt.Sprintf("%d", p.MNC)},
		{prefix + "_mcc", fmt.Sprintf("%d", p.MCC)},
		{prefix + "_number", p.Number},
		{prefix + "_descr", p.Description},
	}
}

// describe flattens an event into its type tag and ordered field set.
func describe(event events.Event) (string, []field) {
	switch ev := event.(type) {
	case *events.KeepAlive:
		return "KeepAlive", []field{
			{"server_no", fmt.Sprintf("%d", ev.ServerNo)},
			{"timeout", fmt.Sprintf("%d", ev.Timeout)},
			{"sw_ver", fmt.Sprintf("%d", ev.SWVersion)},
			{"sw_ver_string", ev.SWVerString},
			{"descr", ev.Description},
		}
	case *events.DuplexCallChange:
		f := []field{
			{"call_id", fmt.Sprintf("%d", ev.CallID)},
			{"action", ev.Action.String()},
			{"timeout", fmt.Sprintf("%d", ev.Timeout)},
		}
		f = append(f, partyFields("a", ev.AParty)...)
		return "DuplexCallChange", append(f, partyFields("b", ev.BParty)...)
	case *events.SimplexCallStartChange:
		f := []field{
			{"call_id", fmt.Sprintf("%d", ev.CallID)},
			{"action", ev.Action.String()},
			{"timeout", fmt.Sprintf("%d", ev.Timeout)},
		}
		f = append(f, partyFields("a", ev.AParty)...)
		return "SimplexCallStartChange", append(f, partyFields("b", ev.BParty)...)
	case *events.SimplexCallPttChange:
		return "SimplexCallPttChange", []field{
			{"call_id", fmt.Sprintf("%d", ev.CallID)},
			{"talking_party", fmt.Sprintf("%d", ev.TalkingParty)},
		}
	case *events.DuplexCallRelease:
		return "DuplexCallRelease", []field{
			{"call_id", fmt.Sprintf("%d", ev.CallID)},
			{"cause", ev.Cause.String()},
		}
	case *events.SimplexCallRelease:
		return "SimplexCallRelease", []field{
			{"call_id", fmt.Sprintf("%d", ev.CallID)},
			{"cause", ev.Cause.String()},
		}
	case *events.GroupCallStartChange:
		f := []field{
			{"call_id", fmt.Sprintf("%d", ev.CallID)},
			{"action", ev.Action.String()},
			{"timeout", fmt.Sprintf("%d", ev.Timeout)},
		}
		return "GroupCallStartChange", append(f, partyFields("group", ev.Group)...)
	case *events.GroupCallPttActive:
		f := []field{{"call_id", fmt.Sprintf("%d", ev.CallID)}}
		return "GroupCallPttActive", append(f, partyFields("talking", ev.Talking)...)
	case *events.GroupCallPttIdle:
		return "GroupCallPttIdle", []field{
			{"call_id", fmt.Sprintf("%d", ev.CallID)},
		}
	case *events.GroupCallRelease:
		return "GroupCallRelease", []field{
			{"call_id", fmt.Sprintf("%d", ev.CallID)},
			{"cause", ev.Cause.String()},
		}
	case *events.StatusSDS:
		f := partyFields("calling", ev.Calling)
		f = append(f, partyFields("called", ev.Called)...)
		return "StatusSDS", append(f, field{"status", fmt.Sprintf("%d", ev.Status)})
	case *events.TextSDS:
		f := partyFields("calling", ev.Calling)
		f = append(f, partyFields("called", ev.Called)...)
		return "TextSDS", append(f, field{"user_data", ev.UserData})
	case *events.VoiceFrame:
		return "VoiceFrame", []field{
			{"call_id", fmt.Sprintf("%d", ev.CallID)},
			{"originator", ev.Originator.String()},
			{"packet_seq", fmt.Sprintf("%d", ev.PacketSeq)},
			{"payload_kind", fmt.Sprintf("%d", ev.Payload1Kind)},
			{"payload_len", fmt.Sprintf("%d", len(ev.Payload1))},
		}
	default:
		return "Unknown", nil
	}
}
