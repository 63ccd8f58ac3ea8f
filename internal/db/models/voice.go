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
)

// VoiceIndiCall is the recorded audio of one individual call.
type VoiceIndiCall struct {
	ID           uint      `gorm:"primaryKey"`
	DBID         uint      `gorm:"column:db_id;index"`
	CallBegin    time.Time `gorm:"column:call_begin"`
	CallEnd      time.Time `gorm:"column:call_end"`
	VoiceDataLen int       `gorm:"column:voice_data_len"`
	VoiceData    []byte    `gorm:"column:voice_data"`
	Duration     string    `gorm:"column:duration"`
}

func (VoiceIndiCall) TableName() string {
	return "d_callstream_voiceindicall"
}

// VoiceGroupCall is the recorded audio of one group call.
type VoiceGroupCall struct {
	ID           uint      `gorm:"primaryKey"`
	DBID         uint      `gorm:"column:db_id;index"`
	CallBegin    time.Time `gorm:"column:call_begin"`
	CallEnd      time.Time `gorm:"column:call_end"`
	VoiceDataLen int       `gorm:"column:voice_data_len"`
	VoiceData    []byte    `gorm:"column:voice_data"`
	Duration     string    `gorm:"column:duration"`
}

func (VoiceGroupCall) TableName() string {
	return "d_callstream_voicegroupcall"
}

// FindVoiceIndiCall returns the recording for an individual call row.
func FindVoiceIndiCall(db *gorm.DB, dbID uint) (VoiceIndiCall, error) {
	var voice VoiceIndiCall
	err := db.Where("db_id = ?", dbID).First(&voice).Error
	return voice, err
}

// FindVoiceGroupCall returns the recording for a group call row.
func FindVoiceGroupCall(db *gorm.DB, dbID uint) (VoiceGroupCall, error) {
	var voice VoiceGroupCall
	err := db.Where("db_id = ?", dbID).First(&voice).Error
	return voice, err
}
