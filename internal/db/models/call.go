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

// PartyIdentity is the persisted shape of a TETRA subscriber identity.
// It is embedded with a calling_/called_/group_ column prefix.
type PartyIdentity struct {
	SSI   uint32
	MNC   uint16
	MCC   uint16
	ESN   string
	Descr string
}

// SimplexDuplex values of the indicall rows.
const (
	CallSimplex int16 = 0
	CallDuplex  int16 = 1
)

// IndiCall is one individual (simplex or duplex) call.
type IndiCall struct {
	DBID            uint          `gorm:"primaryKey;column:db_id"`
	CallID          string        `gorm:"column:call_id;index"`
	Timeout         uint16        `gorm:"column:timeout"`
	CallBegin       time.Time     `gorm:"column:call_begin"`
	CallEnd         *time.Time    `gorm:"column:call_end"`
	SeqNoBegin      uint16        `gorm:"column:seq_no_begin"`
	SeqNoEnd        uint16        `gorm:"column:seq_no_end"`
	Calling         PartyIdentity `gorm:"embedded;embeddedPrefix:calling_"`
	Called          PartyIdentity `gorm:"embedded;embeddedPrefix:called_"`
	SimplexDuplex   int16         `gorm:"column:simplex_duplex"`
	DisconnectCause int16         `gorm:"column:disconnect_cause"`
}

func (IndiCall) TableName() string {
	return "d_callstream_indicall"
}

// IndiCallStatusChange records every subsequent change row of an
// individual call after its setup.
type IndiCallStatusChange struct {
	ID         uint          `gorm:"primaryKey"`
	CallID     string        `gorm:"column:call_id;index"`
	SeqNo      uint16        `gorm:"column:seq_no"`
	ReceivedAt time.Time     `gorm:"column:received_at"`
	ActionID   uint16        `gorm:"column:action_id"`
	Timeout    uint16        `gorm:"column:timeout"`
	Calling    PartyIdentity `gorm:"embedded;embeddedPrefix:calling_"`
	Called     PartyIdentity `gorm:"embedded;embeddedPrefix:called_"`
}

func (IndiCallStatusChange) TableName() string {
	return "d_callstream_indicall_status_change"
}

// IndiCallPtt records a talking-party change on a simplex call.
type IndiCallPtt struct {
	ID           uint      `gorm:"primaryKey"`
	CallID       string    `gorm:"column:call_id;index"`
	SeqNo        uint16    `gorm:"column:seq_no"`
	ReceivedAt   time.Time `gorm:"column:received_at"`
	TalkingParty uint16    `gorm:"column:talking_party"`
}

func (IndiCallPtt) TableName() string {
	return "d_callstream_indicall_ptt"
}

// GroupCall is one group call.
type GroupCall struct {
	DBID            uint          `gorm:"primaryKey;column:db_id"`
	CallID          string        `gorm:"column:call_id;index"`
	Timeout         uint16        `gorm:"column:timeout"`
	CallBegin       time.Time     `gorm:"column:call_begin"`
	CallEnd         *time.Time    `gorm:"column:call_end"`
	SeqNoBegin      uint16        `gorm:"column:seq_no_begin"`
	SeqNoEnd        uint16        `gorm:"column:seq_no_end"`
	Group           PartyIdentity `gorm:"embedded;embeddedPrefix:group_"`
	DisconnectCause int16         `gorm:"column:disconnect_cause"`
}

func (GroupCall) TableName() string {
	return "d_callstream_groupcall"
}

// GroupCallStatusChange records every subsequent change row of a group call.
type GroupCallStatusChange struct {
	ID         uint          `gorm:"primaryKey"`
	CallID     string        `gorm:"column:call_id;index"`
	SeqNo      uint16        `gorm:"column:seq_no"`
	ReceivedAt time.Time     `gorm:"column:received_at"`
	ActionID   uint16        `gorm:"column:action_id"`
	Timeout    uint16        `gorm:"column:timeout"`
	Group      PartyIdentity `gorm:"embedded;embeddedPrefix:group_"`
}

func (GroupCallStatusChange) TableName() string {
	return "d_callstream_groupcall_status_change"
}

// GroupCallPtt records a talker change on a group call.
type GroupCallPtt struct {
	ID           uint          `gorm:"primaryKey"`
	CallID       string        `gorm:"column:call_id;index"`
	SeqNo        uint16        `gorm:"column:seq_no"`
	ReceivedAt   time.Time     `gorm:"column:received_at"`
	Talking      PartyIdentity `gorm:"embedded;embeddedPrefix:talking_"`
	TalkingParty uint16        `gorm:"column:talking_party"`
}

func (GroupCallPtt) TableName() string {
	return "d_callstream_groupcall_ptt"
}

// FindOpenIndiCall returns the newest individual call row for a call id
// that has not been closed yet.
func FindOpenIndiCall(db *gorm.DB, callID string) (IndiCall, error) {
	var call IndiCall
	err := db.Where("call_id = ? AND call_end IS NULL", callID).
		Order("db_id desc").First(&call).Error
	return call, err
}

// CloseIndiCall stamps the end time, closing sequence number and
// disconnect cause on the open row for a call id.
func CloseIndiCall(db *gorm.DB, callID string, end time.Time, seqNo uint16, cause int16) error {
	return db.Model(&IndiCall{}).
		Where("call_id = ? AND call_end IS NULL", callID).
		Updates(map[string]interface{}{
			"call_end":         end,
			"seq_no_end":       seqNo,
			"disconnect_cause": cause,
		}).Error
}

// FindOpenGroupCall returns the newest group call row for a call id that
// has not been closed yet.
func FindOpenGroupCall(db *gorm.DB, callID string) (GroupCall, error) {
	var call GroupCall
	err := db.Where("call_id = ? AND call_end IS NULL", callID).
		Order("db_id desc").First(&call).Error
	return call, err
}

// CloseGroupCall stamps the end time, closing sequence number and
// disconnect cause on the open row for a call id.
func CloseGroupCall(db *gorm.DB, callID string, end time.Time, seqNo uint16, cause int16) error {
	return db.Model(&GroupCall{}).
		Where("call_id = ? AND call_end IS NULL", callID).
		Updates(map[string]interface{}{
			"call_end":         end,
			"seq_no_end":       seqNo,
			"disconnect_cause": cause,
		}).Error
}
