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
	"log/slog"
	"sync"
	"testing"

	"github.com/benbjohnson/clock"

	"github.com/pjscruggs/slogex"
)

// recordingHandler captures every display entry it receives.
type recordingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

// Enabled accepts every level.
func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

// Handle stores a clone of r.
func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	h.records = append(h.records, r.Clone())
	h.mu.Unlock()
	return nil
}

// WithAttrs returns h unchanged.
func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

// WithGroup returns h unchanged.
func (h *recordingHandler) WithGroup(string) slog.Handler { return h }

// Records returns a snapshot of the captured entries.
func (h *recordingHandler) Records() []slog.Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]slog.Record(nil), h.records...)
}

// attrsOf flattens the attributes of r into a map.
func attrsOf(r slog.Record) map[string]slog.Value {
	out := make(map[string]slog.Value)
	r.Attrs(func(a slog.Attr) bool {
		out[a.Key] = a.Value
		return true
	})
	return out
}

// testEngine bundles an engine with its display capture and mock clock.
type testEngine struct {
	*slogex.Engine
	display *recordingHandler
	clock   *clock.Mock
}

// newTestEngine builds a development client engine that displays to a
// recording handler and reads time from a mock clock.
func newTestEngine(t *testing.T, opts ...slogex.Option) *testEngine {
	t.Helper()

	display := &recordingHandler{}
	mock := clock.NewMock()
	base := []slogex.Option{
		slogex.WithMode(slogex.ModeDevelopment),
		slogex.WithSide(slogex.SideClient),
		slogex.WithDisplayHandler(display),
		slogex.WithClock(mock),
		slogex.WithInternalLogger(slog.New(slog.DiscardHandler)),
	}
	engine, err := slogex.New(append(base, opts...)...)
	if err != nil {
		t.Fatalf("New() returned %v", err)
	}
	t.Cleanup(func() {
		if cerr := engine.Close(); cerr != nil {
			t.Errorf("Engine.Close() returned %v", cerr)
		}
	})
	return &testEngine{Engine: engine, display: display, clock: mock}
}

// lastRecord returns the newest transient record.
func lastRecord(t *testing.T, e *slogex.Engine) slogex.LogRecord {
	t.Helper()
	records := e.Transient().Records()
	if len(records) == 0 {
		t.Fatal("transient store is empty")
	}
	return records[len(records)-1]
}
