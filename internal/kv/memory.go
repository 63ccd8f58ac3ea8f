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

package kv

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/USA-RedDragon/TetraStream/internal/config"
	"github.com/puzpuzpuz/xsync/v4"
)

func makeInMemoryKV(_ *config.Config) (KV, error) {
	return inMemoryKV{
		kv: xsync.NewMap[string, kvValue](),
	}, nil
}

type kvValue struct {
	value   []byte
	expires time.Time
}

func (v kvValue) expired() bool {
	return !v.expires.IsZero() && v.expires.Before(time.Now())
}

type inMemoryKV struct {
	kv *xsync.Map[string, kvValue]
}

func (kv inMemoryKV) Has(_ context.Context, key string) (bool, error) {
	value, ok := kv.kv.Load(key)
	if !ok {
		return false, nil
	}
	if value.expired() {
		kv.kv.Delete(key)
		return false, nil
	}
	return true, nil
}

func (kv inMemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	value, ok := kv.kv.Load(key)
	if !ok {
		return nil, fmt.Errorf("key %s not found", key)
	}
	if value.expired() {
		kv.kv.Delete(key)
		return nil, fmt.Errorf("key %s has expired", key)
	}
	return value.value, nil
}

func (kv inMemoryKV) Set(_ context.Context, key string, value []byte) error {
	kv.kv.Store(key, kvValue{value: value})
	return nil
}

func (kv inMemoryKV) Delete(_ context.Context, key string) error {
	kv.kv.Delete(key)
	return nil
}

func (kv inMemoryKV) Expire(_ context.Context, key string, ttl time.Duration) error {
	value, ok := kv.kv.Load(key)
	if !ok {
		return fmt.Errorf("key %s not found", key)
	}
	if ttl <= 0 {
		kv.kv.Delete(key)
		return nil
	}
	value.expires = time.Now().Add(ttl)
	kv.kv.Store(key, value)
	return nil
}

func (kv inMemoryKV) Scan(_ context.Context, _ uint64, match string, _ int64) ([]string, uint64, error) {
	keys := make([]string, 0)
	kv.kv.Range(func(key string, value kvValue) bool {
		if value.expired() {
			kv.kv.Delete(key)
			return true
		}
		if match == "" {
			keys = append(keys, key)
			return true
		}
		ok, err := path.Match(match, key)
		if err == nil && ok {
			keys = append(keys, key)
		}
		return true
	})
	return keys, 0, nil
}

func (kv inMemoryKV) Close() error {
	return nil
}
