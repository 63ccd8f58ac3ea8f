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

import "time"

// SDSStatus is one precoded short-data status message.
type SDSStatus struct {
	ID                  uint          `gorm:"primaryKey"`
	ReceivedAt          time.Time     `gorm:"column:received_at"`
	Calling             PartyIdentity `gorm:"embedded;embeddedPrefix:calling_"`
	Called              PartyIdentity `gorm:"embedded;embeddedPrefix:called_"`
	PrecodedStatusValue uint16        `gorm:"column:precoded_status_value"`
}

func (SDSStatus) TableName() string {
	return "d_callstream_sdsstatus"
}

// SDSData is one free-text short-data message.
type SDSData struct {
	ID             uint          `gorm:"primaryKey"`
	ReceivedAt     time.Time     `gorm:"column:received_at"`
	Calling        PartyIdentity `gorm:"embedded;embeddedPrefix:calling_"`
	Called         PartyIdentity `gorm:"embedded;embeddedPrefix:called_"`
	UserDataLength uint16        `gorm:"column:user_data_length"`
	UserData       string        `gorm:"column:user_data"`
}

func (SDSData) TableName() string {
	return "d_callstream_sdsdata"
}
