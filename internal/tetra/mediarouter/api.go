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

package mediarouter

import (
	"bufio"
	"context"
	"crypto/md5" //nolint:gosec // the playback filename digest is a legacy contract, not a security boundary
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/USA-RedDragon/TetraStream/internal/childproc"
	"github.com/USA-RedDragon/TetraStream/internal/db/models"
)

// Control-plane commands. Requests are newline-delimited with
// space-separated string parts; every reply starts with OK or NOK.
const (
	cmdGetActiveCalls        = "GET_ACTIVE_CALLS"
	cmdStartCallInterception = "START_CALL_INTERCEPTION"
	cmdStopCallInterception  = "STOP_CALL_INTERCEPTION"
	cmdStartPlayCall         = "START_PLAY_CALL"
	cmdStopPlayCall          = "STOP_PLAY_CALL"
)

const replyTimeout = 5 * time.Second

type request struct {
	parts []string
	reply chan string
}

func (r *Router) acceptLoop(ctx context.Context) {
	for {
		conn, err := r.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("Error accepting control connection", "error", err)
			return
		}
		go r.handleConn(ctx, conn)
	}
}

func (r *Router) handleConn(ctx context.Context, conn net.Conn) {
	defer func() {
		_ = conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}

		req := request{parts: parts, reply: make(chan string, 1)}
		select {
		case r.requestChan <- req:
		case <-ctx.Done():
			return
		}

		select {
		case reply := <-req.reply:
			if _, err := fmt.Fprintln(conn, reply); err != nil {
				slog.Error("Error writing control reply", "error", err)
				return
			}
		case <-time.After(replyTimeout):
			slog.Error("Control request timed out", "command", parts[0])
			return
		case <-ctx.Done():
			return
		}
	}
}

// handleRequest dispatches one control command inside the router loop.
func (r *Router) handleRequest(ctx context.Context, parts []string) string {
	command := parts[0]
	args := parts[1:]

	reply := "NOK Unknown command"
	switch command {
	case cmdGetActiveCalls:
		reply = r.handleGetActiveCalls()
	case cmdStartCallInterception:
		reply = r.handleStartInterception(ctx, args)
	case cmdStopCallInterception:
		reply = r.handleStopInterception(args)
	case cmdStartPlayCall:
		reply = r.handleStartPlayCall(ctx, args)
	case cmdStopPlayCall:
		reply = r.handleStopPlayCall(args)
	case cmdPlayerFinished:
		if len(args) != 1 {
			return "NOK"
		}
		for _, p := range r.players {
			if p.Stream == args[0] {
				p.Busy = false
				p.CallID = ""
				p.CallDBID = ""
				p.proc = nil
			}
		}
		return "OK"
	}

	status := "ok"
	if strings.HasPrefix(reply, "NOK") {
		status = "nok"
	}
	r.metrics.ControlRequests.WithLabelValues(command, status).Inc()
	return reply
}

func (r *Router) handleGetActiveCalls() string {
	calls := make([]string, 0, len(r.liveCalls))
	for id, lc := range r.liveCalls {
		calls = append(calls, id+":"+lc.Kind.String())
	}
	sort.Strings(calls)
	return strings.TrimSpace("OK " + strings.Join(calls, " "))
}

func (r *Router) handleStartInterception(ctx context.Context, args []string) string {
	if len(args) < 2 {
		return "NOK START_CALL_INTERCEPTION requires call id and format"
	}
	callID, format := args[0], args[1]

	lc, ok := r.liveCalls[callID]
	if !ok {
		return "NOK Call not active"
	}

	if lc.Feeder != nil {
		return "OK " + r.streamURL(lc.Feeder.Stream, format)
	}

	feeder := r.startInterception(ctx, lc)
	if feeder == nil {
		return "NOK Feeder not available"
	}
	return "OK " + r.streamURL(feeder.Stream, format)
}

func (r *Router) handleStopInterception(args []string) string {
	if len(args) < 1 {
		return "NOK STOP_CALL_INTERCEPTION requires call id"
	}
	lc, ok := r.liveCalls[args[0]]
	if !ok {
		return "NOK Call not active"
	}
	if lc.Feeder == nil {
		return "NOK Call not intercepted"
	}
	r.stopInterception(lc)
	return "OK"
}

func (r *Router) streamURL(stream, format string) string {
	return fmt.Sprintf("%s/%s.%s", strings.TrimRight(r.config.Media.MediaServerEndpoint, "/"), stream, format)
}

// PlaybackFileName returns the deterministic hex MD5 digest naming the
// materialized playback file for a session.
func PlaybackFileName(callDBID, callID, session string) string {
	sum := md5.Sum([]byte(fmt.Sprintf("voice_%s_%s_%s", callDBID, callID, session))) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

func (r *Router) handleStartPlayCall(ctx context.Context, args []string) string {
	if len(args) < 5 {
		return "NOK START_PLAY_CALL requires call db id, call id, type, format and session"
	}
	callDBID, callID, callType, format, session := args[0], args[1], args[2], args[3], args[4]

	dbID, err := strconv.ParseUint(callDBID, 10, 32)
	if err != nil {
		return "NOK Invalid call db id"
	}

	blob, err := r.fetchVoice(uint(dbID), callType)
	if err != nil {
		slog.Error("Error fetching recording", "dbID", dbID, "error", err)
		return "NOK Recording not found"
	}

	if r.config.Media.LegacyPlayer {
		return r.startLegacyPlayback(ctx, callDBID, callID, format, blob)
	}

	name := PlaybackFileName(callDBID, callID, session)
	path := filepath.Join(r.config.Media.VoiceRecRepo, name+"."+format)
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		slog.Error("Error materializing playback file", "path", path, "error", err)
		return "NOK Cannot write playback file"
	}

	r.metrics.PlaybacksStarted.Inc()
	slog.Info("Playback materialized", "dbID", dbID, "file", path)
	return fmt.Sprintf("OK %s/%s.%s", strings.TrimRight(r.config.Media.VoiceRecURL, "/"), name, format)
}

func (r *Router) fetchVoice(dbID uint, callType string) ([]byte, error) {
	if callType == "G" {
		voice, err := models.FindVoiceGroupCall(r.db, dbID)
		if err != nil {
			return nil, err
		}
		return voice.VoiceData, nil
	}
	voice, err := models.FindVoiceIndiCall(r.db, dbID)
	if err != nil {
		return nil, err
	}
	return voice.VoiceData, nil
}

// startLegacyPlayback binds a free player slot and spawns the external
// audio player child. The slot frees itself when the child exits.
func (r *Router) startLegacyPlayback(ctx context.Context, callDBID, callID, format string, blob []byte) string {
	player := freePlayer(r.players)
	if player == nil {
		return "NOK Player not available"
	}

	path := filepath.Join(r.config.Media.VoiceRecRepo, PlaybackFileName(callDBID, callID, player.Stream)+"."+format)
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		slog.Error("Error writing player input", "path", path, "error", err)
		return "NOK Cannot write playback file"
	}

	commandLine := fmt.Sprintf(r.config.Media.PlayerCommand, path, player.FeederStream)
	proc, err := childproc.Start(ctx, "player-"+player.Stream, commandLine)
	if err != nil {
		slog.Error("Error starting player", "stream", player.Stream, "error", err)
		_ = os.Remove(path)
		return "NOK Cannot start player"
	}

	player.Busy = true
	player.CallID = callID
	player.CallDBID = callDBID
	player.proc = proc

	go func() {
		if err := <-proc.Done(); err != nil {
			slog.Error("Player exited with error", "stream", player.Stream, "error", err)
		}
		_ = os.Remove(path)
		r.requestChan <- request{
			parts: []string{cmdPlayerFinished, player.Stream},
			reply: make(chan string, 1),
		}
	}()

	r.metrics.PlaybacksStarted.Inc()
	return "OK " + r.streamURL(player.Stream, format)
}

// cmdPlayerFinished is an internal control message marking a player slot
// free again once its child exited.
const cmdPlayerFinished = "_PLAYER_FINISHED"

func (r *Router) handleStopPlayCall(args []string) string {
	if len(args) < 5 {
		return "NOK STOP_PLAY_CALL requires call db id, call id, type, format and session"
	}
	callDBID, callID, _, format, session := args[0], args[1], args[2], args[3], args[4]

	if r.config.Media.LegacyPlayer {
		for _, p := range r.players {
			if p.Busy && p.CallID == callID && p.CallDBID == callDBID {
				if err := p.proc.Stop(); err != nil {
					slog.Error("Error stopping player", "stream", p.Stream, "error", err)
				}
				return "OK"
			}
		}
		return "NOK No playback in progress"
	}

	name := PlaybackFileName(callDBID, callID, session)
	path := filepath.Join(r.config.Media.VoiceRecRepo, name+"."+format)
	if err := os.Remove(path); err != nil {
		slog.Error("Error removing playback file", "path", path, "error", err)
		return "NOK Playback file not found"
	}
	return "OK"
}
