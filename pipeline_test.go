// Copyright 2025-2026 Patrick J. Scruggs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package slogex_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/pjscruggs/slogex"
)

// TestHandlersRunInRegistrationOrder runs every handler once per call, in order.
func TestHandlersRunInRegistrationOrder(t *testing.T) {
	t.Parallel()

	var order []string
	first := func(context.Context, slogex.CallOptions) error {
		order = append(order, "first")
		return nil
	}
	e := newTestEngine(t, slogex.WithHandler(first))
	if err := e.RegisterHandler(func(context.Context, slogex.CallOptions) error {
		order = append(order, "second")
		return nil
	}); err != nil {
		t.Fatalf("RegisterHandler() returned %v", err)
	}

	_ = e.Info(slogex.V(9).WithoutRecording(), "neither displayed nor recorded")
	if want := []string{"first", "second"}; !cmp.Equal(order, want) {
		t.Fatalf("handler order = %v, want %v", order, want)
	}
}

// TestHandlerErrorStopsPipeline returns the first handler error and skips the rest.
func TestHandlerErrorStopsPipeline(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")
	var ranLater bool
	e := newTestEngine(t, slogex.WithHandler(
		func(context.Context, slogex.CallOptions) error { return errBoom },
		func(context.Context, slogex.CallOptions) error {
			ranLater = true
			return nil
		},
	))

	err := e.Warn(0, "fails")
	if !errors.Is(err, errBoom) {
		t.Fatalf("Warn() = %v, want wrapped handler error", err)
	}
	if ranLater {
		t.Fatal("handler after the failing one still ran")
	}
	if n := len(e.Transient().Records()); n != 1 {
		t.Fatalf("recorded %d entries, want 1 (record precedes handlers)", n)
	}
	if n := len(e.display.Records()); n != 1 {
		t.Fatalf("displayed %d entries, want 1", n)
	}
}

// TestHandlerPanicPropagates does not recover handler panics.
func TestHandlerPanicPropagates(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, slogex.WithHandler(func(context.Context, slogex.CallOptions) error {
		panic("handler exploded")
	}))

	defer func() {
		if r := recover(); r != "handler exploded" {
			t.Fatalf("recover() = %v, want handler panic", r)
		}
	}()
	_ = e.Info(0, "panics")
	t.Fatal("Info() returned after a panicking handler")
}

// TestRegisterHandlerRejectsNil refuses a nil handler.
func TestRegisterHandlerRejectsNil(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	if err := e.RegisterHandler(nil); !errors.Is(err, slogex.ErrInvalidHandler) {
		t.Fatalf("RegisterHandler(nil) = %v, want ErrInvalidHandler", err)
	}
	if _, err := slogex.New(slogex.WithMode(slogex.ModeDevelopment), slogex.WithHandler(nil)); !errors.Is(err, slogex.ErrInvalidHandler) {
		t.Fatalf("New(WithHandler(nil)) = %v, want ErrInvalidHandler", err)
	}
}
