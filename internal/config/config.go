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

// Package config holds the application configuration, loaded once at startup
// and passed by reference into every worker. No worker reads the environment
// after initialization.
package config

// Config stores the application configuration.
type Config struct {
	LogLevel    LogLevel    `name:"log-level" description:"Logging level (debug, info, warn, error)" default:"info"`
	Redis       Redis       `name:"redis" description:"Redis-backed pubsub and key-value store settings"`
	Database    Database    `name:"database" description:"Database settings"`
	Collector   Collector   `name:"collector" description:"Log-server ingress settings"`
	Persistence Persistence `name:"persistence" description:"Call persistence settings"`
	Media       Media       `name:"media" description:"Media router settings"`
	Tracer      Tracer      `name:"tracer" description:"Event tracer settings"`
	Alarm       Alarm       `name:"alarm" description:"External alarm collaborator settings"`
	Metrics     Metrics     `name:"metrics" description:"Metrics server settings"`
	PProf       PProf       `name:"pprof" description:"PProf server settings"`
}

// Redis configures the optional Redis backend for pubsub and kv.
type Redis struct {
	Enabled  bool   `name:"enabled" description:"Use Redis instead of the in-memory pubsub and key-value store" default:"false"`
	Host     string `name:"host" description:"Redis host" default:"localhost"`
	Port     int    `name:"port" description:"Redis port" default:"6379"`
	Password string `name:"password" description:"Redis password"`
	Database int    `name:"database" description:"Redis database number" default:"0"`
}

// Database configures the relational store for calls and voice recordings.
type Database struct {
	Driver          DatabaseDriver `name:"driver" description:"Database driver (sqlite, postgres, mysql)" default:"sqlite"`
	Host            string         `name:"host" description:"Database host"`
	Port            int            `name:"port" description:"Database port"`
	Username        string         `name:"username" description:"Database username"`
	Password        string         `name:"password" description:"Database password"`
	Database        string         `name:"database" description:"Database name, or file path for sqlite" default:"tetrastream.db"`
	ExtraParameters string         `name:"extra-parameters" description:"Extra DSN parameters appended verbatim"`
}

// Collector configures the log-server UDP ingress.
type Collector struct {
	Bind             string `name:"bind" description:"IP address to bind the ingress UDP socket to" default:"0.0.0.0"`
	Port             int    `name:"port" description:"Port to listen for the log-server stream on" default:"42420"`
	BufferSize       int    `name:"buffer-size" description:"Rolling parse buffer size in bytes" default:"65536"`
	GenerateWAVFiles bool   `name:"generate-wav-files" description:"Also write per-call WAV files to the work path" default:"false"`
}

// Persistence configures the call persister.
type Persistence struct {
	CallInactivityPeriod int    `name:"call-inactivity-period" description:"Seconds without voice or signaling before a call is finalized implicitly" default:"300"`
	MaintenanceFrequency int    `name:"maintenance-frequency" description:"Seconds between inactivity sweeps" default:"60"`
	MP3Mode              bool   `name:"mp3-mode" description:"Store voice recordings as MP3 instead of WAV" default:"false"`
	MP3ConverterCommand  string `name:"mp3-converter-command-template" description:"Encoder command template with three %s slots: input WAV, output MP3, log label"`
	WorkPath             string `name:"work-path" description:"Scratch directory for WAV and MP3 files" default:"."`
}

// FeederConfig declares one reserved UDP media-server input channel.
type FeederConfig struct {
	Stream string     `name:"stream" description:"Media-server stream name"`
	IP     string     `name:"ip" description:"Destination IP for live audio"`
	Port   int        `name:"port" description:"Destination port for live audio"`
	Type   FeederType `name:"type" description:"Feeder type: M (mono) or S (stereo)"`
}

// PlayerConfig declares one legacy playback slot bound to a feeder.
type PlayerConfig struct {
	Stream string `name:"stream" description:"Media-server stream name"`
	Feeder string `name:"feeder" description:"Feeder stream this player writes into"`
}

// Media configures the media router.
type Media struct {
	Bind                 string         `name:"bind" description:"IP address to bind the request/reply control socket to" default:"0.0.0.0"`
	Port                 int            `name:"port" description:"Port for the request/reply control socket" default:"42421"`
	MediaServerEndpoint  string         `name:"media-server-endpoint" description:"URL prefix for live interception stream URLs"`
	VoiceRecRepo         string         `name:"voicerec-repo" description:"Directory playback files are materialized into" default:"."`
	VoiceRecURL          string         `name:"voicerec-url" description:"URL namespace playback files are served under" default:"/voicerec"`
	CallInactivityPeriod int            `name:"call-inactivity-period" description:"Seconds without voice before a live call is dropped" default:"300"`
	MaintenanceFrequency int            `name:"maintenance-frequency" description:"Seconds between live-call sweeps" default:"60"`
	LegacyPlayer         bool           `name:"legacy-player" description:"Use the v1 child-process playback instead of static file materialization" default:"false"`
	PlayerCommand        string         `name:"player-command-template" description:"v1 player command template with two %s slots: file, stream"`
	Feeders              []FeederConfig `name:"feeders" description:"Fixed pool of media-server feeders"`
	Players              []PlayerConfig `name:"players" description:"Fixed pool of legacy playback slots"`
}

// Tracer configures the structured event publisher.
type Tracer struct {
	JSONPublisher    string `name:"json-publisher" description:"host:port UDP sink for JSON event lines"`
	VoiceJSONDivisor int    `name:"voice-json-divisor" description:"Publish every Nth voice frame as JSON" default:"10"`
}

// Alarm configures the external alarm-raising CLI.
type Alarm struct {
	HTTPDHome string `name:"httpd-home" description:"Root directory of the alarm CLI installation"`
	APLI      string `name:"apli" description:"Application identifier passed to the alarm CLI"`
}

// Metrics configures the Prometheus metrics server.
type Metrics struct {
	Enabled      bool   `name:"enabled" description:"Enable the metrics server" default:"false"`
	Bind         string `name:"bind" description:"Metrics server bind address" default:"127.0.0.1"`
	Port         int    `name:"port" description:"Metrics server port" default:"9100"`
	OTLPEndpoint string `name:"otlp-endpoint" description:"OTLP gRPC endpoint for traces"`
}

// PProf configures the pprof server.
type PProf struct {
	Enabled        bool     `name:"enabled" description:"Enable the pprof server" default:"false"`
	Bind           string   `name:"bind" description:"PProf server bind address" default:"127.0.0.1"`
	Port           int      `name:"port" description:"PProf server port" default:"9101"`
	TrustedProxies []string `name:"trusted-proxies" description:"Trusted proxies for the pprof server"`
}
