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

package config

import (
	"errors"
	"strings"
)

// minBufferSize is the smallest usable rolling parse buffer. It must hold at
// least one complete voice record plus a partial follow-up.
const minBufferSize = 4096

var (
	// ErrInvalidLogLevel indicates that the provided log level is not valid.
	ErrInvalidLogLevel = errors.New("invalid log level provided")
	// ErrInvalidRedisHost indicates that the provided Redis host is not valid.
	ErrInvalidRedisHost = errors.New("invalid Redis host provided")
	// ErrInvalidRedisPort indicates that the provided Redis port is not valid.
	ErrInvalidRedisPort = errors.New("invalid Redis port provided")
	// ErrInvalidDatabaseDriver indicates that the provided database driver is not valid.
	ErrInvalidDatabaseDriver = errors.New("invalid database driver provided")
	// ErrInvalidDatabaseHost indicates that the provided database host is not valid.
	ErrInvalidDatabaseHost = errors.New("invalid database host provided")
	// ErrInvalidDatabasePort indicates that the provided database port is not valid.
	ErrInvalidDatabasePort = errors.New("invalid database port provided")
	// ErrInvalidDatabaseName indicates that the provided database name is not valid.
	ErrInvalidDatabaseName = errors.New("invalid database name provided")
	// ErrInvalidCollectorBind indicates that the provided collector bind address is not valid.
	ErrInvalidCollectorBind = errors.New("invalid collector bind address provided")
	// ErrInvalidCollectorPort indicates that the provided collector port is not valid.
	ErrInvalidCollectorPort = errors.New("invalid collector port provided")
	// ErrInvalidBufferSize indicates that the rolling parse buffer is too small.
	ErrInvalidBufferSize = errors.New("collector buffer size must be at least 4096 bytes")
	// ErrInvalidInactivityPeriod indicates a non-positive call inactivity period.
	ErrInvalidInactivityPeriod = errors.New("call inactivity period must be positive")
	// ErrInvalidMaintenanceFrequency indicates a non-positive maintenance frequency.
	ErrInvalidMaintenanceFrequency = errors.New("maintenance frequency must be positive")
	// ErrMP3CommandRequired indicates that MP3 mode is enabled without an encoder command.
	ErrMP3CommandRequired = errors.New("mp3 converter command template is required when mp3 mode is enabled")
	// ErrInvalidMP3Command indicates that the encoder command template is malformed.
	ErrInvalidMP3Command = errors.New("mp3 converter command template must contain exactly three %s slots")
	// ErrInvalidMediaBind indicates that the provided media control bind address is not valid.
	ErrInvalidMediaBind = errors.New("invalid media control bind address provided")
	// ErrInvalidMediaPort indicates that the provided media control port is not valid.
	ErrInvalidMediaPort = errors.New("invalid media control port provided")
	// ErrInvalidFeeder indicates an incomplete feeder declaration.
	ErrInvalidFeeder = errors.New("feeder declarations require stream, ip and port")
	// ErrInvalidFeederType indicates that a feeder type is neither M nor S.
	ErrInvalidFeederType = errors.New("feeder type must be M or S")
	// ErrDuplicateFeederStream indicates two feeders sharing a stream name.
	ErrDuplicateFeederStream = errors.New("feeder stream names must be unique")
	// ErrInvalidPlayer indicates an incomplete player declaration.
	ErrInvalidPlayer = errors.New("player declarations require stream and feeder")
	// ErrUnknownPlayerFeeder indicates a player bound to an undeclared feeder.
	ErrUnknownPlayerFeeder = errors.New("player references an undeclared feeder")
	// ErrPlayerCommandRequired indicates legacy playback without a player command.
	ErrPlayerCommandRequired = errors.New("player command template is required when the legacy player is enabled")
	// ErrInvalidVoiceJSONDivisor indicates a non-positive voice JSON divisor.
	ErrInvalidVoiceJSONDivisor = errors.New("voice json divisor must be positive")
	// ErrInvalidMetricsBindAddress indicates that the provided metrics server bind address is not valid.
	ErrInvalidMetricsBindAddress = errors.New("invalid metrics server bind address provided")
	// ErrInvalidMetricsPort indicates that the provided metrics server port is not valid.
	ErrInvalidMetricsPort = errors.New("invalid metrics server port provided")
	// ErrInvalidPProfBindAddress indicates that the provided PProf server bind address is not valid.
	ErrInvalidPProfBindAddress = errors.New("invalid PProf server bind address provided")
	// ErrInvalidPProfPort indicates that the provided PProf server port is not valid.
	ErrInvalidPProfPort = errors.New("invalid PProf server port provided")
)

// Validate validates the Redis configuration.
func (r Redis) Validate() error {
	if !r.Enabled {
		return nil
	}

	if r.Host == "" {
		return ErrInvalidRedisHost
	}
	if r.Port <= 0 || r.Port > 65535 {
		return ErrInvalidRedisPort
	}

	return nil
}

// Validate validates the Database configuration.
func (d Database) Validate() error {
	if d.Driver != DatabaseDriverSQLite &&
		d.Driver != DatabaseDriverPostgres &&
		d.Driver != DatabaseDriverMySQL {
		return ErrInvalidDatabaseDriver
	}

	if d.Driver != DatabaseDriverSQLite && d.Host == "" {
		return ErrInvalidDatabaseHost
	}

	if d.Driver != DatabaseDriverSQLite && (d.Port <= 0 || d.Port > 65535) {
		return ErrInvalidDatabasePort
	}

	if d.Database == "" {
		return ErrInvalidDatabaseName
	}

	return nil
}

// Validate validates the Collector configuration.
func (c Collector) Validate() error {
	if c.Bind == "" {
		return ErrInvalidCollectorBind
	}
	if c.Port <= 0 || c.Port > 65535 {
		return ErrInvalidCollectorPort
	}
	if c.BufferSize < minBufferSize {
		return ErrInvalidBufferSize
	}

	return nil
}

// Validate validates the Persistence configuration.
func (p Persistence) Validate() error {
	if p.CallInactivityPeriod <= 0 {
		return ErrInvalidInactivityPeriod
	}
	if p.MaintenanceFrequency <= 0 {
		return ErrInvalidMaintenanceFrequency
	}
	if p.MP3Mode {
		if p.MP3ConverterCommand == "" {
			return ErrMP3CommandRequired
		}
		if strings.Count(p.MP3ConverterCommand, "%s") != 3 {
			return ErrInvalidMP3Command
		}
	}

	return nil
}

// Validate validates one feeder declaration.
func (f FeederConfig) Validate() error {
	if f.Stream == "" || f.IP == "" || f.Port <= 0 || f.Port > 65535 {
		return ErrInvalidFeeder
	}
	if f.Type != FeederTypeMono && f.Type != FeederTypeStereo {
		return ErrInvalidFeederType
	}

	return nil
}

// Validate validates the Media configuration.
func (m Media) Validate() error {
	if m.Bind == "" {
		return ErrInvalidMediaBind
	}
	if m.Port <= 0 || m.Port > 65535 {
		return ErrInvalidMediaPort
	}
	if m.CallInactivityPeriod <= 0 {
		return ErrInvalidInactivityPeriod
	}
	if m.MaintenanceFrequency <= 0 {
		return ErrInvalidMaintenanceFrequency
	}

	streams := make(map[string]bool)
	for _, f := range m.Feeders {
		if err := f.Validate(); err != nil {
			return err
		}
		if streams[f.Stream] {
			return ErrDuplicateFeederStream
		}
		streams[f.Stream] = true
	}

	for _, p := range m.Players {
		if p.Stream == "" || p.Feeder == "" {
			return ErrInvalidPlayer
		}
		if !streams[p.Feeder] {
			return ErrUnknownPlayerFeeder
		}
	}

	if m.LegacyPlayer && m.PlayerCommand == "" {
		return ErrPlayerCommandRequired
	}

	return nil
}

// Validate validates the Tracer configuration.
func (t Tracer) Validate() error {
	if t.VoiceJSONDivisor <= 0 {
		return ErrInvalidVoiceJSONDivisor
	}

	return nil
}

// Validate validates the Metrics configuration.
func (m Metrics) Validate() error {
	if !m.Enabled {
		return nil
	}

	if m.Bind == "" {
		return ErrInvalidMetricsBindAddress
	}
	if m.Port <= 0 || m.Port > 65535 {
		return ErrInvalidMetricsPort
	}

	return nil
}

// Validate validates the PProf configuration.
func (p PProf) Validate() error {
	if !p.Enabled {
		return nil
	}

	if p.Bind == "" {
		return ErrInvalidPProfBindAddress
	}
	if p.Port <= 0 || p.Port > 65535 {
		return ErrInvalidPProfPort
	}

	return nil
}

func (c Config) Validate() error {
	if c.LogLevel != LogLevelDebug &&
		c.LogLevel != LogLevelInfo &&
		c.LogLevel != LogLevelWarn &&
		c.LogLevel != LogLevelError {
		return ErrInvalidLogLevel
	}

	if err := c.Redis.Validate(); err != nil {
		return err
	}

	if err := c.Database.Validate(); err != nil {
		return err
	}

	if err := c.Collector.Validate(); err != nil {
		return err
	}

	if err := c.Persistence.Validate(); err != nil {
		return err
	}

	if err := c.Media.Validate(); err != nil {
		return err
	}

	if err := c.Tracer.Validate(); err != nil {
		return err
	}

	if err := c.Metrics.Validate(); err != nil {
		return err
	}

	if err := c.PProf.Validate(); err != nil {
		return err
	}

	return nil
}
