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

package models

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KeepAlive is the last heartbeat seen from each log server.
type KeepAlive struct {
	LogServerNo    uint32    `gorm:"primaryKey;column:log_server_no"`
	LastHeartbeat  time.Time `gorm:"column:last_heartbeat"`
	Timeout        uint32    `gorm:"column:timeout"`
	SwVer          uint32    `gorm:"column:sw_ver"`
	SwVerString    string    `gorm:"column:sw_ver_string"`
	LogServerDescr string    `gorm:"column:log_server_descr"`
}

func (KeepAlive) TableName() string {
	return "d_callstream_keepalive"
}

// UpsertKeepAlive inserts or refreshes the heartbeat row for a log server.
func UpsertKeepAlive(db *gorm.DB, ka *KeepAlive) error {
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "log_server_no"}},
		UpdateAll: true,
	}).Create(ka).Error
}

// FindKeepAlive returns the heartbeat row for a log server.
func FindKeepAlive(db *gorm.DB, logServerNo uint32) (KeepAlive, error) {
	var ka KeepAlive
	err := db.Where("log_server_no = ?", logServerNo).First(&ka).Error
	return ka, err
}
