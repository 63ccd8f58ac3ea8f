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

// LogLevel represents the logging level for the application.
type LogLevel string

const (
	// LogLevelDebug is the debug logging level, providing detailed information.
	LogLevelDebug LogLevel = "debug"
	// LogLevelInfo is the informational logging level, providing general information.
	LogLevelInfo LogLevel = "info"
	// LogLevelWarn is the warning logging level, indicating potential issues.
	LogLevelWarn LogLevel = "warn"
	// LogLevelError is the error logging level, indicating serious issues.
	LogLevelError LogLevel = "error"
)

// DatabaseDriver represents the type of database driver used in the application.
type DatabaseDriver string

const (
	// DatabaseDriverSQLite is the SQLite database driver.
	DatabaseDriverSQLite DatabaseDriver = "sqlite"
	// DatabaseDriverPostgres is the PostgreSQL database driver.
	DatabaseDriverPostgres DatabaseDriver = "postgres"
	// DatabaseDriverMySQL is the MySQL database driver.
	DatabaseDriverMySQL DatabaseDriver = "mysql"
)

// FeederType represents the channel layout of a media-server feeder.
type FeederType string

const (
	// FeederTypeMono is a single-channel feeder for simplex and group calls.
	FeederTypeMono FeederType = "M"
	// FeederTypeStereo is a two-channel feeder for duplex calls.
	FeederTypeStereo FeederType = "S"
)
