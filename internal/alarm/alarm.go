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

// Package alarm shells out to the external alarm-raising CLI. The channel
// is opaque: failures to raise an alarm are logged, never propagated.
package alarm

import (
	"log/slog"
	"os/exec"
	"path/filepath"

	"github.com/USA-RedDragon/TetraStream/internal/config"
)

// Alarmer invokes the external alarm CLI configured at startup.
type Alarmer struct {
	binary string
	apli   string
}

// New builds an Alarmer from the alarm section. A missing httpd-home
// disables alarms entirely.
func New(cfg *config.Config) *Alarmer {
	if cfg.Alarm.HTTPDHome == "" {
		return &Alarmer{}
	}
	return &Alarmer{
		binary: filepath.Join(cfg.Alarm.HTTPDHome, "bin", "raise_alarm"),
		apli:   cfg.Alarm.APLI,
	}
}

// Raise fires an alarm asynchronously. The caller never waits.
func (a *Alarmer) Raise(code string, detail string) {
	if a.binary == "" {
		slog.Warn("Alarm raised with no alarm CLI configured", "code", code, "detail", detail)
		return
	}
	go func() {
		cmd := exec.Command(a.binary, a.apli, code, detail)
		if err := cmd.Run(); err != nil {
			slog.Error("Failed to raise alarm", "code", code, "error", err)
		}
	}()
}
