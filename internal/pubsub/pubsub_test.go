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

package pubsub_test

import (
	"context"
	"testing"
	"time"

	"github.com/USA-RedDragon/TetraStream/internal/config"
	"github.com/USA-RedDragon/TetraStream/internal/pubsub"
	"github.com/USA-RedDragon/configulator"
)

func makeTestPubSub(t *testing.T) pubsub.PubSub {
	t.Helper()
	defConfig, err := configulator.New[config.Config]().Default()
	if err != nil {
		t.Fatalf("Failed to create default config: %v", err)
	}
	ps, err := pubsub.MakePubSub(context.Background(), &defConfig)
	if err != nil {
		t.Fatalf("Failed to create pubsub: %v", err)
	}
	t.Cleanup(func() {
		_ = ps.Close()
	})
	return ps
}

func TestPubSubPublishAndSubscribe(t *testing.T) {
	t.Parallel()
	ps := makeTestPubSub(t)

	sub := ps.Subscribe("test-topic")
	defer func() { _ = sub.Close() }()

	msg := []byte("hello world")
	err := ps.Publish("test-topic", msg)
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case received := <-sub.Channel():
		if string(received) != string(msg) {
			t.Errorf("Expected '%s', got '%s'", string(msg), string(received))
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for message")
	}
}

func TestPubSubPrefixMatch(t *testing.T) {
	t.Parallel()
	ps := makeTestPubSub(t)

	all := ps.Subscribe("S_")
	defer func() { _ = all.Close() }()
	one := ps.Subscribe("V_42")
	defer func() { _ = one.Close() }()

	_ = ps.Publish("S_01", []byte("keepalive"))
	_ = ps.Publish("S_20", []byte("callchange"))
	_ = ps.Publish("V_42", []byte("voice42"))
	_ = ps.Publish("V_7", []byte("voice7"))

	for _, expected := range []string{"keepalive", "callchange"} {
		select {
		case received := <-all.Channel():
			if string(received) != expected {
				t.Errorf("Expected '%s', got '%s'", expected, string(received))
			}
		case <-time.After(time.Second):
			t.Fatalf("Timed out waiting for '%s'", expected)
		}
	}

	select {
	case received := <-one.Channel():
		if string(received) != "voice42" {
			t.Errorf("Expected 'voice42', got '%s'", string(received))
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for voice42")
	}

	select {
	case received := <-one.Channel():
		t.Fatalf("V_42 subscriber received unexpected message '%s'", string(received))
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPubSubEmptyPrefixMatchesEverything(t *testing.T) {
	t.Parallel()
	ps := makeTestPubSub(t)

	sub := ps.Subscribe("")
	defer func() { _ = sub.Close() }()

	topics := []string{"S_01", "V_1", "anything"}
	for _, topic := range topics {
		_ = ps.Publish(topic, []byte(topic))
	}

	for _, topic := range topics {
		select {
		case received := <-sub.Channel():
			if string(received) != topic {
				t.Errorf("Expected '%s', got '%s'", topic, string(received))
			}
		case <-time.After(time.Second):
			t.Fatalf("Timed out waiting for '%s'", topic)
		}
	}
}

func TestPubSubMultipleMessages(t *testing.T) {
	t.Parallel()
	ps := makeTestPubSub(t)

	sub := ps.Subscribe("multi")
	defer func() { _ = sub.Close() }()

	messages := []string{"msg1", "msg2", "msg3"}
	for _, m := range messages {
		if err := ps.Publish("multi", []byte(m)); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}

	for _, expected := range messages {
		select {
		case received := <-sub.Channel():
			if string(received) != expected {
				t.Errorf("Expected '%s', got '%s'", expected, string(received))
			}
		case <-time.After(time.Second):
			t.Fatalf("Timed out waiting for message '%s'", expected)
		}
	}
}

func TestPubSubClosedSubscriberStopsReceiving(t *testing.T) {
	t.Parallel()
	ps := makeTestPubSub(t)

	sub := ps.Subscribe("topic")
	if err := sub.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	_ = ps.Publish("topic", []byte("late"))

	if _, ok := <-sub.Channel(); ok {
		t.Error("Expected a closed channel after Close")
	}
}

func TestPubSubClose(t *testing.T) {
	t.Parallel()
	defConfig, err := configulator.New[config.Config]().Default()
	if err != nil {
		t.Fatalf("Failed to create default config: %v", err)
	}
	ps, err := pubsub.MakePubSub(context.Background(), &defConfig)
	if err != nil {
		t.Fatalf("Failed to create pubsub: %v", err)
	}
	_ = ps.Subscribe("topic")
	err = ps.Close()
	if err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestPubSubBinaryData(t *testing.T) {
	t.Parallel()
	ps := makeTestPubSub(t)

	sub := ps.Subscribe("binary")
	defer func() { _ = sub.Close() }()

	data := []byte{0x00, 0xFF, 0xAB, 0xCD, 0xEF}
	_ = ps.Publish("binary", data)

	select {
	case received := <-sub.Channel():
		if len(received) != len(data) {
			t.Fatalf("Expected %d bytes, got %d", len(data), len(received))
		}
		for i, b := range data {
			if received[i] != b {
				t.Errorf("Byte %d: expected %x, got %x", i, b, received[i])
			}
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out")
	}
}
