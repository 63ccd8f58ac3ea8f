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

package config_test

import (
	"errors"
	"testing"

	"github.com/USA-RedDragon/TetraStream/internal/config"
	"github.com/USA-RedDragon/configulator"
)

func makeValidConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := configulator.New[config.Config]().Default()
	if err != nil {
		t.Fatalf("Failed to create default config: %v", err)
	}
	return cfg
}

func TestDefaultConfigValidates(t *testing.T) {
	t.Parallel()
	cfg := makeValidConfig(t)
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected the default config to validate, got %v", err)
	}
}

func TestInvalidLogLevel(t *testing.T) {
	t.Parallel()
	cfg := makeValidConfig(t)
	cfg.LogLevel = "verbose"
	if !errors.Is(cfg.Validate(), config.ErrInvalidLogLevel) {
		t.Errorf("Expected ErrInvalidLogLevel, got %v", cfg.Validate())
	}
}

func TestRedisValidateDisabled(t *testing.T) {
	t.Parallel()
	r := config.Redis{Enabled: false}
	if err := r.Validate(); err != nil {
		t.Errorf("Expected nil error for disabled Redis, got %v", err)
	}
}

func TestRedisValidateEmptyHost(t *testing.T) {
	t.Parallel()
	r := config.Redis{Enabled: true, Host: "", Port: 6379}
	if !errors.Is(r.Validate(), config.ErrInvalidRedisHost) {
		t.Errorf("Expected ErrInvalidRedisHost, got %v", r.Validate())
	}
}

func TestCollectorBufferTooSmall(t *testing.T) {
	t.Parallel()
	cfg := makeValidConfig(t)
	cfg.Collector.BufferSize = 512
	if !errors.Is(cfg.Validate(), config.ErrInvalidBufferSize) {
		t.Errorf("Expected ErrInvalidBufferSize, got %v", cfg.Validate())
	}
}

func TestMP3ModeRequiresCommand(t *testing.T) {
	t.Parallel()
	cfg := makeValidConfig(t)
	cfg.Persistence.MP3Mode = true
	if !errors.Is(cfg.Validate(), config.ErrMP3CommandRequired) {
		t.Errorf("Expected ErrMP3CommandRequired, got %v", cfg.Validate())
	}

	cfg.Persistence.MP3ConverterCommand = "lame %s %s"
	if !errors.Is(cfg.Validate(), config.ErrInvalidMP3Command) {
		t.Errorf("Expected ErrInvalidMP3Command, got %v", cfg.Validate())
	}

	cfg.Persistence.MP3ConverterCommand = "lame --quiet %s %s --label %s"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected a three-slot template to validate, got %v", err)
	}
}

func TestFeederValidation(t *testing.T) {
	t.Parallel()
	cfg := makeValidConfig(t)

	cfg.Media.Feeders = []config.FeederConfig{
		{Stream: "f1", IP: "10.0.0.1", Port: 9000, Type: "X"},
	}
	if !errors.Is(cfg.Validate(), config.ErrInvalidFeederType) {
		t.Errorf("Expected ErrInvalidFeederType, got %v", cfg.Validate())
	}

	cfg.Media.Feeders = []config.FeederConfig{
		{Stream: "f1", IP: "10.0.0.1", Port: 9000, Type: config.FeederTypeMono},
		{Stream: "f1", IP: "10.0.0.2", Port: 9001, Type: config.FeederTypeStereo},
	}
	if !errors.Is(cfg.Validate(), config.ErrDuplicateFeederStream) {
		t.Errorf("Expected ErrDuplicateFeederStream, got %v", cfg.Validate())
	}
}

func TestPlayerReferencesKnownFeeder(t *testing.T) {
	t.Parallel()
	cfg := makeValidConfig(t)
	cfg.Media.Feeders = []config.FeederConfig{
		{Stream: "f1", IP: "10.0.0.1", Port: 9000, Type: config.FeederTypeMono},
	}
	cfg.Media.Players = []config.PlayerConfig{
		{Stream: "p1", Feeder: "nope"},
	}
	if !errors.Is(cfg.Validate(), config.ErrUnknownPlayerFeeder) {
		t.Errorf("Expected ErrUnknownPlayerFeeder, got %v", cfg.Validate())
	}

	cfg.Media.Players[0].Feeder = "f1"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected a valid player declaration, got %v", err)
	}
}

func TestTracerDivisorMustBePositive(t *testing.T) {
	t.Parallel()
	cfg := makeValidConfig(t)
	cfg.Tracer.VoiceJSONDivisor = 0
	if !errors.Is(cfg.Validate(), config.ErrInvalidVoiceJSONDivisor) {
		t.Errorf("Expected ErrInvalidVoiceJSONDivisor, got %v", cfg.Validate())
	}
}
