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

package db

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/USA-RedDragon/TetraStream/internal/config"
	"github.com/USA-RedDragon/TetraStream/internal/db/models"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	ErrUnsupportedDriver = errors.New("unsupported database driver")
	ErrOpenDatabase      = errors.New("error opening database")
	ErrMigrateDatabase   = errors.New("error migrating database")
)

// MakeDB opens the configured database and migrates the call-stream schema.
func MakeDB(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch cfg.Database.Driver {
	case config.DatabaseDriverSQLite:
		dsn := cfg.Database.Database
		if cfg.Database.ExtraParameters != "" {
			dsn += "?" + cfg.Database.ExtraParameters
		}
		dialector = sqlite.Open(dsn)
	case config.DatabaseDriverPostgres:
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s %s",
			cfg.Database.Host, cfg.Database.Port, cfg.Database.Username,
			cfg.Database.Password, cfg.Database.Database, cfg.Database.ExtraParameters)
		dialector = postgres.Open(dsn)
	case config.DatabaseDriverMySQL:
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&%s",
			cfg.Database.Username, cfg.Database.Password, cfg.Database.Host,
			cfg.Database.Port, cfg.Database.Database, cfg.Database.ExtraParameters)
		dialector = mysql.Open(dsn)
	default:
		return nil, ErrUnsupportedDriver
	}

	database, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpenDatabase, err)
	}

	err = database.AutoMigrate(
		&models.KeepAlive{},
		&models.IndiCall{},
		&models.IndiCallStatusChange{},
		&models.IndiCallPtt{},
		&models.GroupCall{},
		&models.GroupCallStatusChange{},
		&models.GroupCallPtt{},
		&models.VoiceIndiCall{},
		&models.VoiceGroupCall{},
		&models.SDSStatus{},
		&models.SDSData{},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMigrateDatabase, err)
	}

	sqlDB, err := database.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpenDatabase, err)
	}
	sqlDB.SetMaxIdleConns(runtime.GOMAXPROCS(0))
	const connsPerCPU = 10
	sqlDB.SetMaxOpenConns(runtime.GOMAXPROCS(0) * connsPerCPU)
	const maxIdleTime = 10 * time.Minute
	sqlDB.SetConnMaxIdleTime(maxIdleTime)

	return database, nil
}
