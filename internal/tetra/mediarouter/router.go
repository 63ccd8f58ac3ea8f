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

// Package mediarouter tracks live calls, routes intercepted voice to
// reserved UDP feeders and serves recorded playback. All router state is
// owned by a single loop; the control plane and per-call voice pumps
// communicate with it over channels only.
package mediarouter

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/USA-RedDragon/TetraStream/internal/config"
	"github.com/USA-RedDragon/TetraStream/internal/metrics"
	"github.com/USA-RedDragon/TetraStream/internal/pubsub"
	"github.com/USA-RedDragon/TetraStream/internal/tetra/events"
	"github.com/USA-RedDragon/TetraStream/internal/tetra/tetraconst"
	"gorm.io/gorm"
)

const channelBufferSize = 100

var ErrOpenControlSocket = errors.New("error opening control socket")

// LiveCall is the router's view of one in-progress call.
type LiveCall struct {
	CallID       string
	Kind         tetraconst.CallKind
	Feeder       *Feeder
	sub          pubsub.Subscription
	aFrame       []byte
	bFrame       []byte
	lastActivity time.Time
}

type routedFrame struct {
	callID string
	msg    []byte
}

// Router is the media router worker.
type Router struct {
	config  *config.Config
	db      *gorm.DB
	pubsub  pubsub.PubSub
	metrics *metrics.Metrics

	liveCalls map[string]*LiveCall
	feeders   []*Feeder
	players   []*Player

	listener net.Listener
	udp      *net.UDPConn

	sigSub          pubsub.Subscription
	requestChan     chan request
	routeChan       chan routedFrame
	maintenanceChan chan struct{}
	doneChan        chan struct{}
}

// MakeRouter creates a media router with its fixed feeder and player
// pools resolved from configuration.
func MakeRouter(cfg *config.Config, database *gorm.DB, ps pubsub.PubSub, m *metrics.Metrics) (*Router, error) {
	feeders, err := makeFeeders(cfg)
	if err != nil {
		return nil, err
	}

	return &Router{
		config:          cfg,
		db:              database,
		pubsub:          ps,
		metrics:         m,
		liveCalls:       make(map[string]*LiveCall),
		feeders:         feeders,
		players:         makePlayers(cfg),
		requestChan:     make(chan request, channelBufferSize),
		routeChan:       make(chan routedFrame, channelBufferSize),
		maintenanceChan: make(chan struct{}, 1),
		doneChan:        make(chan struct{}),
	}, nil
}

// Start opens the control socket and the feeder send socket and runs the
// router loop.
func (r *Router) Start(ctx context.Context) error {
	udp, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		slog.Error("Error opening feeder send socket", "error", err)
		return ErrOpenControlSocket
	}
	r.udp = udp

	listener, err := net.Listen("tcp", net.JoinHostPort(r.config.Media.Bind, strconv.Itoa(r.config.Media.Port)))
	if err != nil {
		slog.Error("Error opening control socket", "error", err)
		_ = udp.Close()
		return ErrOpenControlSocket
	}
	r.listener = listener

	r.sigSub = r.pubsub.Subscribe("S_")

	slog.Info("Media router control plane listening", "address", listener.Addr().String())

	go r.acceptLoop(ctx)
	go r.run(ctx)

	return nil
}

// Done is closed once the router loop has torn down.
func (r *Router) Done() <-chan struct{} {
	return r.doneChan
}

// TickMaintenance requests a live-call sweep. It never blocks the
// scheduler.
func (r *Router) TickMaintenance() {
	select {
	case r.maintenanceChan <- struct{}{}:
	default:
	}
}

func (r *Router) run(ctx context.Context) {
	defer close(r.doneChan)
	for {
		select {
		case <-ctx.Done():
			slog.Info("Stopping media router")
			r.teardown()
			return
		case msg, ok := <-r.sigSub.Channel():
			if !ok {
				return
			}
			r.handleSignaling(msg)
		case req := <-r.requestChan:
			req.reply <- r.handleRequest(ctx, req.parts)
		case rf := <-r.routeChan:
			r.routeFrame(rf)
		case <-r.maintenanceChan:
			r.sweep(time.Now())
		}
	}
}

func (r *Router) teardown() {
	if r.listener != nil {
		_ = r.listener.Close()
	}
	for id := range r.liveCalls {
		r.removeLiveCall(id)
	}
	for _, p := range r.players {
		if p.Busy && p.proc != nil {
			if err := p.proc.Stop(); err != nil {
				slog.Error("Error stopping player", "stream", p.Stream, "error", err)
			}
		}
	}
	_ = r.sigSub.Close()
	if r.udp != nil {
		_ = r.udp.Close()
	}
}

func (r *Router) handleSignaling(msg []byte) {
	receivedAt, record, err := events.UnpackEnvelope(msg)
	if err != nil {
		slog.Error("Malformed bus envelope", "error", err)
		return
	}
	event, err := events.DecodeAny(record)
	if err != nil {
		slog.Error("Undecodable signaling event", "error", err)
		return
	}

	switch ev := event.(type) {
	case *events.DuplexCallChange:
		r.upsertLiveCall(callKey(ev.CallID), tetraconst.CallKindDuplex, ev.Action, receivedAt)
	case *events.SimplexCallStartChange:
		r.upsertLiveCall(callKey(ev.CallID), tetraconst.CallKindSimplex, ev.Action, receivedAt)
	case *events.GroupCallStartChange:
		r.upsertLiveCall(callKey(ev.CallID), tetraconst.CallKindGroup, ev.Action, receivedAt)
	case *events.SimplexCallPttChange:
		r.touch(callKey(ev.CallID), receivedAt)
	case *events.GroupCallPttActive:
		r.touch(callKey(ev.CallID), receivedAt)
	case *events.GroupCallPttIdle:
		r.touch(callKey(ev.CallID), receivedAt)
	case *events.DuplexCallRelease:
		r.removeLiveCall(callKey(ev.CallID))
	case *events.SimplexCallRelease:
		r.removeLiveCall(callKey(ev.CallID))
	case *events.GroupCallRelease:
		r.removeLiveCall(callKey(ev.CallID))
	}
}

func callKey(callID uint32) string {
	return strconv.FormatUint(uint64(callID), 10)
}

func (r *Router) upsertLiveCall(id string, kind tetraconst.CallKind, action tetraconst.CallAction, receivedAt time.Time) {
	if lc, ok := r.liveCalls[id]; ok {
		lc.lastActivity = receivedAt
		return
	}
	if action != tetraconst.ActionNewCallSetup {
		return
	}
	r.liveCalls[id] = &LiveCall{
		CallID:       id,
		Kind:         kind,
		lastActivity: receivedAt,
	}
	slog.Info("Live call tracked", "callID", id, "kind", kind.String())
}

func (r *Router) touch(id string, receivedAt time.Time) {
	if lc, ok := r.liveCalls[id]; ok {
		lc.lastActivity = receivedAt
	}
}

func (r *Router) removeLiveCall(id string) {
	lc, ok := r.liveCalls[id]
	if !ok {
		return
	}
	r.stopInterception(lc)
	delete(r.liveCalls, id)
	slog.Info("Live call removed", "callID", id)
}

// startInterception reserves a type-compatible feeder and wires a
// per-call voice pump into the router loop.
func (r *Router) startInterception(ctx context.Context, lc *LiveCall) *Feeder {
	wanted := config.FeederTypeMono
	if lc.Kind == tetraconst.CallKindDuplex {
		wanted = config.FeederTypeStereo
	}

	feeder := freeFeeder(r.feeders, wanted)
	if feeder == nil {
		return nil
	}

	feeder.Busy = true
	feeder.CallID = lc.CallID
	lc.Feeder = feeder
	r.updateFeederGauge()

	sub := r.pubsub.Subscribe("V_" + lc.CallID)
	lc.sub = sub
	go func() {
		for msg := range sub.Channel() {
			select {
			case r.routeChan <- routedFrame{callID: lc.CallID, msg: msg}:
			case <-ctx.Done():
				return
			}
		}
	}()

	slog.Info("Interception started", "callID", lc.CallID, "feeder", feeder.Stream)
	return feeder
}

func (r *Router) stopInterception(lc *LiveCall) {
	if lc.sub != nil {
		_ = lc.sub.Close()
		lc.sub = nil
	}
	if lc.Feeder != nil {
		lc.Feeder.Busy = false
		lc.Feeder.CallID = ""
		lc.Feeder = nil
		r.updateFeederGauge()
		slog.Info("Interception stopped", "callID", lc.CallID)
	}
	lc.aFrame = nil
	lc.bFrame = nil
}

func (r *Router) updateFeederGauge() {
	busy := 0
	for _, f := range r.feeders {
		if f.Busy {
			busy++
		}
	}
	r.metrics.FeedersBusy.Set(float64(busy))
}

// routeFrame forwards one intercepted voice frame. Simplex and group
// audio passes through verbatim; duplex audio is paired by originator
// and interleaved sample by sample into a single stereo datagram.
func (r *Router) routeFrame(rf routedFrame) {
	lc, ok := r.liveCalls[rf.callID]
	if !ok || lc.Feeder == nil {
		return
	}

	_, record, err := events.UnpackEnvelope(rf.msg)
	if err != nil {
		return
	}
	event, err := events.DecodeAny(record)
	if err != nil {
		return
	}
	frame, ok := event.(*events.VoiceFrame)
	if !ok || !frame.IsALaw() {
		return
	}
	// The prefix subscription V_<id> also matches longer ids; drop
	// anything that is not exactly this call.
	if callKey(frame.CallID) != rf.callID {
		return
	}

	lc.lastActivity = time.Now()

	if lc.Kind != tetraconst.CallKindDuplex {
		r.send(lc.Feeder, frame.Payload1)
		return
	}

	switch frame.Originator {
	case tetraconst.OriginatorA:
		lc.aFrame = frame.Payload1
	case tetraconst.OriginatorB:
		if lc.aFrame == nil {
			// Alignment is re-established when the next A-frame arrives.
			return
		}
		lc.bFrame = frame.Payload1
	default:
		return
	}

	if lc.aFrame != nil && lc.bFrame != nil {
		r.send(lc.Feeder, interleavePair(lc.aFrame, lc.bFrame))
		lc.aFrame = nil
		lc.bFrame = nil
	}
}

func (r *Router) send(feeder *Feeder, payload []byte) {
	if _, err := r.udp.WriteToUDP(payload, feeder.Addr); err != nil {
		slog.Error("Error writing to feeder", "feeder", feeder.Stream, "error", err)
		return
	}
	r.metrics.FramesRouted.Inc()
}

// interleavePair merges two equal-length A-law frames into one stereo
// buffer: A0,B0,A1,B1,...
func interleavePair(a, b []byte) []byte {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	out := make([]byte, 0, 2*n)
	for i := 0; i < n; i++ {
		out = append(out, a[i], b[i])
	}
	return out
}

// sweep drops live calls idle beyond the configured threshold.
func (r *Router) sweep(now time.Time) {
	inactivity := time.Duration(r.config.Media.CallInactivityPeriod) * time.Second
	for id, lc := range r.liveCalls {
		if now.Sub(lc.lastActivity) > inactivity {
			slog.Warn("Live call expired without release", "callID", id)
			r.removeLiveCall(id)
		}
	}
}
