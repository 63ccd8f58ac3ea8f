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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	// Ingress metrics
	DatagramsReceived prometheus.Counter
	BytesReceived     prometheus.Counter
	RecordsParsed     *prometheus.CounterVec
	JunkBytesSkipped  prometheus.Counter
	EventsPublished   *prometheus.CounterVec

	// Persister metrics
	ActiveCalls         prometheus.Gauge
	VoiceFramesBuffered prometheus.Counter
	VoiceFramesDropped  *prometheus.CounterVec
	CallsFinalized      *prometheus.CounterVec
	VoiceBytesPersisted prometheus.Counter
	StorageErrors       prometheus.Counter

	// Media router metrics
	FeedersBusy       prometheus.Gauge
	FramesRouted      prometheus.Counter
	PlaybacksStarted  prometheus.Counter
	ControlRequests   *prometheus.CounterVec

	// Tracer metrics
	TraceLinesPublished *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	metrics := &Metrics{
		DatagramsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_datagrams_received_total",
			Help: "The total number of UDP datagrams received from the log server",
		}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_bytes_received_total",
			Help: "The total number of bytes received from the log server",
		}),
		RecordsParsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_records_parsed_total",
			Help: "The total number of records framed out of the stream",
		}, []string{"type"}),
		JunkBytesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_junk_bytes_skipped_total",
			Help: "The total number of bytes skipped during resynchronization",
		}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bus_events_published_total",
			Help: "The total number of events published on the internal bus",
		}, []string{"class"}),
		ActiveCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "persister_active_calls",
			Help: "The current number of calls being assembled",
		}),
		VoiceFramesBuffered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "persister_voice_frames_buffered_total",
			Help: "The total number of voice frames appended to call buffers",
		}),
		VoiceFramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "persister_voice_frames_dropped_total",
			Help: "The total number of voice frames dropped",
		}, []string{"reason"}),
		CallsFinalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "persister_calls_finalized_total",
			Help: "The total number of calls finalized",
		}, []string{"kind", "reason"}),
		VoiceBytesPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "persister_voice_bytes_persisted_total",
			Help: "The total number of voice bytes written to the database",
		}),
		StorageErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "persister_storage_errors_total",
			Help: "The total number of failed database statements",
		}),
		FeedersBusy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "media_feeders_busy",
			Help: "The current number of reserved feeders",
		}),
		FramesRouted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "media_frames_routed_total",
			Help: "The total number of voice frames forwarded to feeders",
		}),
		PlaybacksStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "media_playbacks_started_total",
			Help: "The total number of playback sessions started",
		}),
		ControlRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "media_control_requests_total",
			Help: "The total number of control-plane requests",
		}, []string{"command", "status"}),
		TraceLinesPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracer_lines_published_total",
			Help: "The total number of trace lines emitted",
		}, []string{"format"}),
	}
	metrics.register()
	return metrics
}

func (m *Metrics) register() {
	prometheus.MustRegister(m.DatagramsReceived)
	prometheus.MustRegister(m.BytesReceived)
	prometheus.MustRegister(m.RecordsParsed)
	prometheus.MustRegister(m.JunkBytesSkipped)
	prometheus.MustRegister(m.EventsPublished)
	prometheus.MustRegister(m.ActiveCalls)
	prometheus.MustRegister(m.VoiceFramesBuffered)
	prometheus.MustRegister(m.VoiceFramesDropped)
	prometheus.MustRegister(m.CallsFinalized)
	prometheus.MustRegister(m.VoiceBytesPersisted)
	prometheus.MustRegister(m.StorageErrors)
	prometheus.MustRegister(m.FeedersBusy)
	prometheus.MustRegister(m.FramesRouted)
	prometheus.MustRegister(m.PlaybacksStarted)
	prometheus.MustRegister(m.ControlRequests)
	prometheus.MustRegister(m.TraceLinesPublished)
}
