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

// Package persister assembles complete voice calls from signaling and
// voice frames and writes call and recording rows. All call state is
// owned by a single loop; handlers run to completion between events, so
// no locking is needed on the call map.
package persister

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/USA-RedDragon/TetraStream/internal/alarm"
	"github.com/USA-RedDragon/TetraStream/internal/childproc"
	"github.com/USA-RedDragon/TetraStream/internal/config"
	"github.com/USA-RedDragon/TetraStream/internal/db/models"
	"github.com/USA-RedDragon/TetraStream/internal/kv"
	"github.com/USA-RedDragon/TetraStream/internal/metrics"
	"github.com/USA-RedDragon/TetraStream/internal/pubsub"
	"github.com/USA-RedDragon/TetraStream/internal/tetra/events"
	"github.com/USA-RedDragon/TetraStream/internal/tetra/tetraconst"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"
)

// activeCallKeyPrefix mirrors assembling calls into the kv store so
// operational tooling can inspect a running instance.
const activeCallKeyPrefix = "calls:active:"

// call is the in-flight assembly state of one call id.
type call struct {
	kind         tetraconst.CallKind
	dbID         uint
	callBegin    time.Time
	seqNoBegin   uint16
	streamA      [][]byte
	streamB      [][]byte
	lastActivity time.Time
}

// Persister subscribes to all signaling and voice and materializes
// recordings on release or inactivity.
type Persister struct {
	config  *config.Config
	db      *gorm.DB
	pubsub  pubsub.PubSub
	kv      kv.KV
	metrics *metrics.Metrics
	alarmer *alarm.Alarmer

	calls           map[string]*call
	signalingSub    pubsub.Subscription
	voiceSub        pubsub.Subscription
	maintenanceChan chan struct{}
	doneChan        chan struct{}
}

// NewPersister creates a Persister.
func NewPersister(cfg *config.Config, database *gorm.DB, ps pubsub.PubSub, kvStore kv.KV, m *metrics.Metrics, alarmer *alarm.Alarmer) *Persister {
	return &Persister{
		config:          cfg,
		db:              database,
		pubsub:          ps,
		kv:              kvStore,
		metrics:         m,
		alarmer:         alarmer,
		calls:           make(map[string]*call),
		maintenanceChan: make(chan struct{}, 1),
		doneChan:        make(chan struct{}),
	}
}

// Start subscribes to the bus and runs the event loop until the context
// is cancelled. Cancellation finalizes every in-flight call as an
// implicit release before returning.
func (p *Persister) Start(ctx context.Context) {
	p.signalingSub = p.pubsub.Subscribe("S")
	p.voiceSub = p.pubsub.Subscribe("V")
	go p.run(ctx)
}

// Done is closed once the event loop has flushed and exited.
func (p *Persister) Done() <-chan struct{} {
	return p.doneChan
}

// TickMaintenance requests an inactivity sweep. It never blocks the
// scheduler; a pending tick is enough.
func (p *Persister) TickMaintenance() {
	select {
	case p.maintenanceChan <- struct{}{}:
	default:
	}
}

func (p *Persister) run(ctx context.Context) {
	defer close(p.doneChan)
	for {
		select {
		case <-ctx.Done():
			slog.Info("Stopping persister, flushing in-flight calls", "calls", len(p.calls))
			p.flush(ctx)
			_ = p.signalingSub.Close()
			_ = p.voiceSub.Close()
			return
		case msg, ok := <-p.signalingSub.Channel():
			if !ok {
				return
			}
			p.handleSignaling(ctx, msg)
		case msg, ok := <-p.voiceSub.Channel():
			if !ok {
				return
			}
			p.handleVoice(msg)
		case <-p.maintenanceChan:
			p.sweep(ctx, time.Now())
		}
	}
}

func (p *Persister) handleSignaling(ctx context.Context, msg []byte) {
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
	case *events.KeepAlive:
		p.handleKeepAlive(ev, receivedAt)
	case *events.DuplexCallChange:
		p.handleCallChange(ev.Header, tetraconst.CallKindDuplex, ev.CallID, ev.Action, ev.Timeout, ev.AParty, ev.BParty, receivedAt)
	case *events.SimplexCallStartChange:
		p.handleCallChange(ev.Header, tetraconst.CallKindSimplex, ev.CallID, ev.Action, ev.Timeout, ev.AParty, ev.BParty, receivedAt)
	case *events.GroupCallStartChange:
		p.handleGroupChange(ev, receivedAt)
	case *events.SimplexCallPttChange:
		p.handlePtt(ev, receivedAt)
	case *events.GroupCallPttActive:
		p.handleGroupPtt(ev.Header, ev.CallID, &ev.Talking, receivedAt)
	case *events.GroupCallPttIdle:
		p.handleGroupPtt(ev.Header, ev.CallID, nil, receivedAt)
	case *events.DuplexCallRelease:
		p.finalize(ctx, callKey(ev.CallID), receivedAt, ev.Seq, int16(ev.Cause), "release")
	case *events.SimplexCallRelease:
		p.finalize(ctx, callKey(ev.CallID), receivedAt, ev.Seq, int16(ev.Cause), "release")
	case *events.GroupCallRelease:
		p.finalize(ctx, callKey(ev.CallID), receivedAt, ev.Seq, int16(ev.Cause), "release")
	case *events.StatusSDS:
		p.handleStatusSDS(ev, receivedAt)
	case *events.TextSDS:
		p.handleTextSDS(ev, receivedAt)
	default:
		slog.Debug("Ignoring event", "topic", event.Topic())
	}
}

func callKey(callID uint32) string {
	return strconv.FormatUint(uint64(callID), 10)
}

func partyIdentity(p events.Party) models.PartyIdentity {
	return models.PartyIdentity{
		SSI:   p.SSI,
		MNC:   p.MNC,
		MCC:   p.MCC,
		ESN:   p.Number,
		Descr: p.Description,
	}
}

func (p *Persister) handleKeepAlive(ev *events.KeepAlive, receivedAt time.Time) {
	err := models.UpsertKeepAlive(p.db, &models.KeepAlive{
		LogServerNo:    ev.ServerNo,
		LastHeartbeat:  receivedAt,
		Timeout:        ev.Timeout,
		SwVer:          ev.SWVersion,
		SwVerString:    ev.SWVerString,
		LogServerDescr: ev.Description,
	})
	if err != nil {
		p.storageError("keepalive upsert", err)
	}
}

func (p *Persister) handleCallChange(hdr events.Header, kind tetraconst.CallKind, callID uint32, action tetraconst.CallAction, timeout uint16, aParty, bParty events.Party, receivedAt time.Time) {
	id := callKey(callID)

	if action == tetraconst.ActionNewCallSetup {
		if _, exists := p.calls[id]; exists {
			// Duplicate setup for a live call; treat as activity.
			p.touch(id, receivedAt)
			return
		}
		row := models.IndiCall{
			CallID:        id,
			Timeout:       timeout,
			CallBegin:     receivedAt,
			SeqNoBegin:    hdr.Seq,
			Calling:       partyIdentity(aParty),
			Called:        partyIdentity(bParty),
			SimplexDuplex: models.CallSimplex,
		}
		if kind == tetraconst.CallKindDuplex {
			row.SimplexDuplex = models.CallDuplex
		}
		if err := p.db.Create(&row).Error; err != nil {
			p.storageError("indicall insert", err)
		}
		p.createCall(id, kind, row.DBID, receivedAt, hdr.Seq)
		return
	}

	// Subsequent change rows for a call already set up.
	change := models.IndiCallStatusChange{
		CallID:     id,
		SeqNo:      hdr.Seq,
		ReceivedAt: receivedAt,
		ActionID:   uint16(action),
		Timeout:    timeout,
		Calling:    partyIdentity(aParty),
		Called:     partyIdentity(bParty),
	}
	if err := p.db.Create(&change).Error; err != nil {
		p.storageError("indicall status change insert", err)
	}
	p.touch(id, receivedAt)
}

func (p *Persister) handleGroupChange(ev *events.GroupCallStartChange, receivedAt time.Time) {
	id := callKey(ev.CallID)

	if ev.Action == tetraconst.ActionNewCallSetup {
		if _, exists := p.calls[id]; exists {
			p.touch(id, receivedAt)
			return
		}
		row := models.GroupCall{
			CallID:     id,
			Timeout:    ev.Timeout,
			CallBegin:  receivedAt,
			SeqNoBegin: ev.Seq,
			Group:      partyIdentity(ev.Group),
		}
		if err := p.db.Create(&row).Error; err != nil {
			p.storageError("groupcall insert", err)
		}
		p.createCall(id, tetraconst.CallKindGroup, row.DBID, receivedAt, ev.Seq)
		return
	}

	change := models.GroupCallStatusChange{
		CallID:     id,
		SeqNo:      ev.Seq,
		ReceivedAt: receivedAt,
		ActionID:   uint16(ev.Action),
		Timeout:    ev.Timeout,
		Group:      partyIdentity(ev.Group),
	}
	if err := p.db.Create(&change).Error; err != nil {
		p.storageError("groupcall status change insert", err)
	}
	p.touch(id, receivedAt)
}

func (p *Persister) handlePtt(ev *events.SimplexCallPttChange, receivedAt time.Time) {
	row := models.IndiCallPtt{
		CallID:       callKey(ev.CallID),
		SeqNo:        ev.Seq,
		ReceivedAt:   receivedAt,
		TalkingParty: uint16(ev.TalkingParty),
	}
	if err := p.db.Create(&row).Error; err != nil {
		p.storageError("indicall ptt insert", err)
	}
	p.touch(row.CallID, receivedAt)
}

func (p *Persister) handleGroupPtt(hdr events.Header, callID uint32, talking *events.Party, receivedAt time.Time) {
	row := models.GroupCallPtt{
		CallID:     callKey(callID),
		SeqNo:      hdr.Seq,
		ReceivedAt: receivedAt,
	}
	if talking != nil {
		row.Talking = partyIdentity(*talking)
		row.TalkingParty = 1
	}
	if err := p.db.Create(&row).Error; err != nil {
		p.storageError("groupcall ptt insert", err)
	}
	p.touch(row.CallID, receivedAt)
}

func (p *Persister) handleStatusSDS(ev *events.StatusSDS, receivedAt time.Time) {
	row := models.SDSStatus{
		ReceivedAt:          receivedAt,
		Calling:             partyIdentity(ev.Calling),
		Called:              partyIdentity(ev.Called),
		PrecodedStatusValue: ev.Status,
	}
	if err := p.db.Create(&row).Error; err != nil {
		p.storageError("sds status insert", err)
	}
}

func (p *Persister) handleTextSDS(ev *events.TextSDS, receivedAt time.Time) {
	row := models.SDSData{
		ReceivedAt:     receivedAt,
		Calling:        partyIdentity(ev.Calling),
		Called:         partyIdentity(ev.Called),
		UserDataLength: uint16(len(ev.UserData)),
		UserData:       ev.UserData,
	}
	if err := p.db.Create(&row).Error; err != nil {
		p.storageError("sds data insert", err)
	}
}

func (p *Persister) createCall(id string, kind tetraconst.CallKind, dbID uint, receivedAt time.Time, seqNo uint16) {
	p.calls[id] = &call{
		kind:         kind,
		dbID:         dbID,
		callBegin:    receivedAt,
		seqNoBegin:   seqNo,
		lastActivity: receivedAt,
	}
	p.metrics.ActiveCalls.Set(float64(len(p.calls)))
	if err := p.kv.Set(context.Background(), activeCallKeyPrefix+id, []byte(kind.String())); err != nil {
		slog.Error("Error mirroring active call to kv", "callID", id, "error", err)
	}
	slog.Info("Call setup", "callID", id, "kind", kind.String())
}

func (p *Persister) touch(id string, receivedAt time.Time) {
	if c, ok := p.calls[id]; ok {
		c.lastActivity = receivedAt
	}
}

func (p *Persister) handleVoice(msg []byte) {
	receivedAt, record, err := events.UnpackEnvelope(msg)
	if err != nil {
		slog.Error("Malformed bus envelope", "error", err)
		return
	}
	event, err := events.DecodeAny(record)
	if err != nil {
		slog.Error("Undecodable voice event", "error", err)
		return
	}
	frame, ok := event.(*events.VoiceFrame)
	if !ok {
		return
	}
	if !frame.IsALaw() {
		p.metrics.VoiceFramesDropped.WithLabelValues("not_alaw").Inc()
		return
	}

	id := callKey(frame.CallID)
	c, ok := p.calls[id]
	if !ok {
		// Voice with no call setup is a protocol error; there is no
		// buffer-and-replay. Calls with lost setup events produce no
		// recording.
		p.metrics.VoiceFramesDropped.WithLabelValues("no_call").Inc()
		slog.Warn("Voice frame for unknown call", "callID", id, "seq", frame.PacketSeq)
		return
	}

	// Stream B exists only for duplex calls; everything else, whatever
	// the originator, lands in stream A.
	if frame.Originator == tetraconst.OriginatorB && c.kind == tetraconst.CallKindDuplex {
		c.streamB = append(c.streamB, frame.Payload1)
	} else {
		c.streamA = append(c.streamA, frame.Payload1)
	}
	c.lastActivity = receivedAt
	p.metrics.VoiceFramesBuffered.Inc()
}

// sweep finalizes calls idle beyond the configured inactivity period.
func (p *Persister) sweep(ctx context.Context, now time.Time) {
	inactivity := time.Duration(p.config.Persistence.CallInactivityPeriod) * time.Second
	for id, c := range p.calls {
		if now.Sub(c.lastActivity) > inactivity {
			slog.Warn("Call expired without release", "callID", id, "lastActivity", c.lastActivity)
			p.finalize(ctx, id, now, c.seqNoBegin, int16(tetraconst.CauseUnknown), "inactivity")
		}
	}
}

// flush finalizes every in-flight call during shutdown.
func (p *Persister) flush(ctx context.Context) {
	for id, c := range p.calls {
		p.finalize(ctx, id, time.Now(), c.seqNoBegin, int16(tetraconst.CauseUnknown), "shutdown")
	}
}

// finalize materializes the recording and closes the call row. The
// in-memory state advances even when a database statement fails.
func (p *Persister) finalize(ctx context.Context, id string, end time.Time, seqNo uint16, cause int16, reason string) {
	ctx, span := otel.Tracer("TetraStream").Start(ctx, "Persister.finalize")
	defer span.End()

	c, ok := p.calls[id]
	if !ok {
		slog.Warn("Release for unknown call", "callID", id)
		return
	}
	delete(p.calls, id)
	p.metrics.ActiveCalls.Set(float64(len(p.calls)))
	if err := p.kv.Delete(context.Background(), activeCallKeyPrefix+id); err != nil {
		slog.Error("Error clearing active call from kv", "callID", id, "error", err)
	}
	p.metrics.CallsFinalized.WithLabelValues(c.kind.String(), reason).Inc()

	if c.kind == tetraconst.CallKindGroup {
		if err := models.CloseGroupCall(p.db, id, end, seqNo, cause); err != nil {
			p.storageError("groupcall close", err)
		}
	} else {
		if err := models.CloseIndiCall(p.db, id, end, seqNo, cause); err != nil {
			p.storageError("indicall close", err)
		}
	}

	channels := 1
	var data []byte
	if c.kind == tetraconst.CallKindDuplex && len(c.streamB) > 0 {
		channels = 2
		data = interleaveStreams(id, c.streamA, c.streamB)
	} else {
		data = concatChunks(c.streamA)
	}

	if len(data) == 0 {
		slog.Info("Call ended with no voice", "callID", id, "reason", reason)
		return
	}

	blob := append(WAVHeader(channels, len(data)), data...)
	duration := FormatDuration(len(data), channels)

	if p.config.Collector.GenerateWAVFiles {
		path := filepath.Join(p.config.Persistence.WorkPath, fmt.Sprintf("call_%s.wav", id))
		if err := os.WriteFile(path, blob, 0o644); err != nil {
			slog.Error("Error writing WAV file", "path", path, "error", err)
		}
	}

	slog.Info("Finalizing call recording", "callID", id, "bytes", len(data), "channels", channels, "duration", duration, "reason", reason)

	if p.config.Persistence.MP3Mode {
		p.encodeAndStore(ctx, id, c, blob, end, duration)
		return
	}

	p.storeVoice(c, blob, end, duration)
}

func (p *Persister) storeVoice(c *call, blob []byte, end time.Time, duration string) {
	var err error
	if c.kind == tetraconst.CallKindGroup {
		err = p.db.Create(&models.VoiceGroupCall{
			DBID:         c.dbID,
			CallBegin:    c.callBegin,
			CallEnd:      end,
			VoiceDataLen: len(blob),
			VoiceData:    blob,
			Duration:     duration,
		}).Error
	} else {
		err = p.db.Create(&models.VoiceIndiCall{
			DBID:         c.dbID,
			CallBegin:    c.callBegin,
			CallEnd:      end,
			VoiceDataLen: len(blob),
			VoiceData:    blob,
			Duration:     duration,
		}).Error
	}
	if err != nil {
		p.storageError("voice insert", err)
		return
	}
	p.metrics.VoiceBytesPersisted.Add(float64(len(blob)))
}

// encodeAndStore writes the WAV to a scratch file, hands it to the
// external encoder and stores the MP3 once the child finishes. The wait
// happens off-loop so the encoder never blocks event handling.
func (p *Persister) encodeAndStore(ctx context.Context, id string, c *call, wavBlob []byte, end time.Time, duration string) {
	wavPath := filepath.Join(p.config.Persistence.WorkPath, fmt.Sprintf("voice_%s_%d.wav", id, c.dbID))
	mp3Path := filepath.Join(p.config.Persistence.WorkPath, fmt.Sprintf("voice_%s_%d.mp3", id, c.dbID))

	if err := os.WriteFile(wavPath, wavBlob, 0o644); err != nil {
		slog.Error("Error writing encoder input", "path", wavPath, "error", err)
		return
	}

	commandLine := fmt.Sprintf(p.config.Persistence.MP3ConverterCommand, wavPath, mp3Path, "call_"+id)
	proc, err := childproc.Start(ctx, "mp3-encoder", commandLine)
	if err != nil {
		slog.Error("Error starting encoder, recording not saved", "callID", id, "error", err)
		_ = os.Remove(wavPath)
		return
	}

	go func() {
		err := <-proc.Done()
		defer func() {
			_ = os.Remove(wavPath)
			_ = os.Remove(mp3Path)
		}()
		if err != nil {
			slog.Error("Encoder failed, recording not saved", "callID", id, "error", err)
			return
		}
		mp3, err := os.ReadFile(mp3Path)
		if err != nil {
			slog.Error("Error reading encoder output, recording not saved", "callID", id, "error", err)
			return
		}
		p.storeVoice(c, mp3, end, duration)
	}()
}

func (p *Persister) storageError(op string, err error) {
	slog.Error("Database statement failed", "op", op, "error", err)
	p.metrics.StorageErrors.Inc()
	p.alarmer.Raise("DB_WRITE_FAILED", op)
}

func concatChunks(chunks [][]byte) []byte {
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	out := make([]byte, 0, total)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

// interleaveStreams pairs the A and B buffers chunk by chunk and
// interleaves them sample by sample. Paired chunks are equal length by
// contract of the feed (always one A-law frame); unmatched trailing
// chunks are discarded.
func interleaveStreams(id string, a, b [][]byte) []byte {
	pairs := len(a)
	if len(b) < pairs {
		pairs = len(b)
	}
	if len(a) != len(b) {
		slog.Warn("Discarding unmatched trailing voice chunks",
			"callID", id, "aChunks", len(a), "bChunks", len(b))
	}

	total := 0
	for i := 0; i < pairs; i++ {
		n := len(a[i])
		if len(b[i]) < n {
			n = len(b[i])
		}
		total += 2 * n
	}

	out := make([]byte, 0, total)
	for i := 0; i < pairs; i++ {
		ca, cb := a[i], b[i]
		n := len(ca)
		if len(cb) < n {
			n = len(cb)
		}
		for j := 0; j < n; j++ {
			out = append(out, ca[j], cb[j])
		}
	}
	return out
}
