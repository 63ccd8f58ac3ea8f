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

// Package ingest owns the UDP socket the log server streams into. It
// appends datagrams to a rolling buffer, drives the frame parser and
// publishes every framed record on the internal bus. A record split
// across datagrams is never dropped: the undecoded tail is compacted to
// the head of the buffer for the next receive.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"github.com/USA-RedDragon/TetraStream/internal/config"
	"github.com/USA-RedDragon/TetraStream/internal/metrics"
	"github.com/USA-RedDragon/TetraStream/internal/pubsub"
	"github.com/USA-RedDragon/TetraStream/internal/tetra/events"
	"github.com/USA-RedDragon/TetraStream/internal/tetra/parser"
	"go.opentelemetry.io/otel"
)

const channelBufferSize = 100

// datagramSize is the largest UDP payload the log server emits.
const datagramSize = 65535

const socketBufferSize = 1000000 // 1MB

var (
	ErrOpenSocket     = errors.New("error opening socket")
	ErrSocketBuffer   = errors.New("error setting socket buffer size")
	ErrBufferOverflow = errors.New("a single record exceeds the rolling buffer capacity")
)

// Server is the log-server ingress.
type Server struct {
	Buffer        []byte
	bufLen        int
	config        *config.Config
	SocketAddress net.UDPAddr
	Server        *net.UDPConn
	Started       bool
	parser        *parser.Parser
	pubsub        pubsub.PubSub
	metrics       *metrics.Metrics
	incomingChan  chan []byte
	fatalChan     chan error
}

// MakeServer creates a new ingress server.
func MakeServer(config *config.Config, pubsub pubsub.PubSub, metrics *metrics.Metrics) Server {
	return Server{
		Buffer: make([]byte, config.Collector.BufferSize),
		config: config,
		SocketAddress: net.UDPAddr{
			IP:   net.ParseIP(config.Collector.Bind),
			Port: config.Collector.Port,
		},
		Started:      false,
		parser:       parser.New(),
		pubsub:       pubsub,
		metrics:      metrics,
		incomingChan: make(chan []byte, channelBufferSize),
		fatalChan:    make(chan error, 1),
	}
}

// Fatal delivers unrecoverable ingress errors: a single record larger
// than the rolling buffer is a configuration error the process must not
// survive.
func (s *Server) Fatal() <-chan error {
	return s.fatalChan
}

// Start binds the ingress socket and begins parsing.
func (s *Server) Start(ctx context.Context) error {
	ctx, span := otel.Tracer("TetraStream").Start(ctx, "ingest.Server.Start")
	defer span.End()

	server, err := net.ListenUDP("udp", &s.SocketAddress)
	if err != nil {
		slog.Error("Error opening UDP Socket", "error", err)
		return ErrOpenSocket
	}

	err = server.SetReadBuffer(socketBufferSize)
	if err != nil {
		slog.Error("Error setting read buffer on UDP Socket", "error", err)
		return ErrSocketBuffer
	}

	s.Server = server
	s.Started = true

	slog.Info("Log-server ingress listening", "address", s.SocketAddress.String())

	go s.listen(ctx)

	go func() {
		readBuf := make([]byte, datagramSize)
		for {
			length, remoteaddr, err := s.Server.ReadFromUDP(readBuf)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					return
				}
				slog.Error("Error reading from UDP Socket, Swallowing Error", "error", err)
				continue
			}
			if length == 0 {
				continue
			}
			slog.Debug("Read datagram from UDP socket", "remoteaddr", remoteaddr, "length", length)
			// Copy the buffer data since readBuf will be reused for the next read
			data := make([]byte, length)
			copy(data, readBuf[:length])
			s.incomingChan <- data
		}
	}()

	return nil
}

// Stop closes the ingress socket.
func (s *Server) Stop(_ context.Context) {
	s.Started = false
	if s.Server != nil {
		if err := s.Server.Close(); err != nil {
			slog.Error("Error closing ingress socket", "error", err)
		}
	}
}

func (s *Server) listen(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			slog.Info("Stopping ingress server")
			return
		case data := <-s.incomingChan:
			if err := s.ingest(data); err != nil {
				slog.Error("Fatal ingress error", "error", err)
				select {
				case s.fatalChan <- err:
				default:
				}
				return
			}
		}
	}
}

// ingest appends one datagram to the rolling buffer, frames what it can
// and compacts the unparsed tail to offset zero.
func (s *Server) ingest(data []byte) error {
	s.metrics.DatagramsReceived.Inc()
	s.metrics.BytesReceived.Add(float64(len(data)))

	if s.bufLen+len(data) > len(s.Buffer) {
		// The tail is always compacted after each parse, so overflowing
		// here means the stream carries a record larger than the buffer.
		// No amount of compaction will fix that.
		return ErrBufferOverflow
	}

	copy(s.Buffer[s.bufLen:], data)
	s.bufLen += len(data)

	framed, consumed, junked := s.parser.Parse(s.Buffer[:s.bufLen])
	if junked > 0 {
		s.metrics.JunkBytesSkipped.Add(float64(junked))
		slog.Warn("Skipped junk bytes while resynchronizing", "bytes", junked)
	}

	for _, ev := range framed {
		s.publish(ev)
	}

	if consumed > 0 {
		copy(s.Buffer, s.Buffer[consumed:s.bufLen])
		s.bufLen -= consumed
	}

	return nil
}

func (s *Server) publish(ev parser.RxEvent) {
	class := "signaling"
	if _, ok := ev.Event.(*events.VoiceFrame); ok {
		class = "voice"
	}
	s.metrics.RecordsParsed.WithLabelValues(class).Inc()

	if err := s.pubsub.Publish(ev.Topic, events.PackEnvelope(ev.ReceivedAt, ev.Raw)); err != nil {
		slog.Error("Error publishing event", "topic", ev.Topic, "error", err)
		return
	}
	s.metrics.EventsPublished.WithLabelValues(class).Inc()
}
