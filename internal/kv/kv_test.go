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

package kv_test

import (
	"context"
	"testing"
	"time"

	"github.com/USA-RedDragon/TetraStream/internal/config"
	"github.com/USA-RedDragon/TetraStream/internal/kv"
	"github.com/USA-RedDragon/configulator"
)

func makeTestKV(t *testing.T) kv.KV {
	t.Helper()
	defConfig, err := configulator.New[config.Config]().Default()
	if err != nil {
		t.Fatalf("Failed to create default config: %v", err)
	}
	store, err := kv.MakeKV(context.Background(), &defConfig)
	if err != nil {
		t.Fatalf("Failed to create kv: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func TestKVSetGet(t *testing.T) {
	t.Parallel()
	store := makeTestKV(t)
	ctx := context.Background()

	if err := store.Set(ctx, "calls:active:100", []byte("S")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	value, err := store.Get(ctx, "calls:active:100")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(value) != "S" {
		t.Errorf("Expected 'S', got '%s'", string(value))
	}

	has, err := store.Has(ctx, "calls:active:100")
	if err != nil || !has {
		t.Errorf("Expected key to exist, got %t, %v", has, err)
	}
}

func TestKVDelete(t *testing.T) {
	t.Parallel()
	store := makeTestKV(t)
	ctx := context.Background()

	_ = store.Set(ctx, "key", []byte("value"))
	if err := store.Delete(ctx, "key"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	has, err := store.Has(ctx, "key")
	if err != nil {
		t.Fatalf("Has failed: %v", err)
	}
	if has {
		t.Error("Expected key to be gone")
	}
}

func TestKVExpire(t *testing.T) {
	t.Parallel()
	store := makeTestKV(t)
	ctx := context.Background()

	_ = store.Set(ctx, "ephemeral", []byte("value"))
	if err := store.Expire(ctx, "ephemeral", time.Millisecond); err != nil {
		t.Fatalf("Expire failed: %v", err)
	}

	time.Sleep(10 * time.Millisecond)

	has, err := store.Has(ctx, "ephemeral")
	if err != nil {
		t.Fatalf("Has failed: %v", err)
	}
	if has {
		t.Error("Expected key to have expired")
	}
}

func TestKVScan(t *testing.T) {
	t.Parallel()
	store := makeTestKV(t)
	ctx := context.Background()

	_ = store.Set(ctx, "calls:active:1", []byte("D"))
	_ = store.Set(ctx, "calls:active:2", []byte("G"))
	_ = store.Set(ctx, "other", []byte("x"))

	keys, _, err := store.Scan(ctx, 0, "calls:active:*", 100)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("Expected 2 keys, got %d: %v", len(keys), keys)
	}
}
