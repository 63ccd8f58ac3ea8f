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

package childproc_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/USA-RedDragon/TetraStream/internal/childproc"
)

func TestStartAndFinish(t *testing.T) {
	t.Parallel()
	proc, err := childproc.Start(context.Background(), "true", "true")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case err := <-proc.Done():
		if err != nil {
			t.Errorf("Expected a clean exit, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for the child to finish")
	}
}

// Stop writes the quit command to stdin; a child reading one line exits.
func TestStopQuitsChild(t *testing.T) {
	t.Parallel()
	proc, err := childproc.Start(context.Background(), "reader", "head -n 1")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := proc.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	select {
	case err := <-proc.Done():
		if err != nil {
			t.Errorf("Expected a clean exit after stop, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for the stopped child")
	}
}

func TestStopTwiceIsSafe(t *testing.T) {
	t.Parallel()
	proc, err := childproc.Start(context.Background(), "reader", "head -n 1")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := proc.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := proc.Stop(); err != nil {
		t.Errorf("Second stop must be a no-op, got %v", err)
	}
	<-proc.Done()
}

func TestEmptyCommandRejected(t *testing.T) {
	t.Parallel()
	_, err := childproc.Start(context.Background(), "empty", "   ")
	if !errors.Is(err, childproc.ErrEmptyCommand) {
		t.Errorf("Expected ErrEmptyCommand, got %v", err)
	}
}

func TestNonZeroExitReported(t *testing.T) {
	t.Parallel()
	proc, err := childproc.Start(context.Background(), "false", "false")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case err := <-proc.Done():
		if err == nil {
			t.Error("Expected a non-nil exit error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out")
	}
}
